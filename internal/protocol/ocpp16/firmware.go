package ocpp16

import (
	"context"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
)

// runFirmwareUpdate 固件升级模拟
// 依次经历下载、等待交易结束、安装三个阶段，阶段间随机延迟
// 配置的FailureStatus命中时在对应阶段终止
func (s *Service) runFirmwareUpdate(ctx context.Context) {
	st := s.station

	// 空闲连接器先下线
	for _, connectorID := range st.ConnectorIDs() {
		if snap, ok := st.ConnectorSnapshot(connectorID); ok && !snap.TransactionStarted {
			s.sendAndSetConnectorStatus(ctx, connectorID, ocpp16.ChargePointStatusUnavailable)
		}
	}

	s.setFirmwareStatus(ctx, ocpp16.FirmwareStatusDownloading)

	if s.config.Firmware.FailureStatus == ocpp16.FirmwareStatusDownloadFailed {
		s.randomSleep(ctx)
		s.setFirmwareStatus(ctx, ocpp16.FirmwareStatusDownloadFailed)
		return
	}

	if !s.randomSleep(ctx) {
		return
	}
	s.setFirmwareStatus(ctx, ocpp16.FirmwareStatusDownloaded)

	// 等待在途交易结束后再让所有连接器下线
	waited := false
	for st.ActiveTransactionCount() > 0 {
		waited = true
		s.logger.Infof("Firmware install deferred, %d transactions still active", st.ActiveTransactionCount())
		if !s.sleep(ctx, s.config.TransactionWaitInterval) {
			return
		}
	}
	for _, connectorID := range st.ConnectorIDs() {
		if status, ok := st.StatusV16(connectorID); ok && status != ocpp16.ChargePointStatusUnavailable {
			s.sendAndSetConnectorStatus(ctx, connectorID, ocpp16.ChargePointStatusUnavailable)
		}
	}
	if !waited {
		if !s.randomSleep(ctx) {
			return
		}
	}

	s.setFirmwareStatus(ctx, ocpp16.FirmwareStatusInstalling)

	if s.config.Firmware.FailureStatus == ocpp16.FirmwareStatusInstallationFailed {
		s.randomSleep(ctx)
		s.setFirmwareStatus(ctx, ocpp16.FirmwareStatusInstallationFailed)
		return
	}

	if s.config.Firmware.Reset {
		if !s.randomSleep(ctx) {
			return
		}
		// 重启完成并重新注册后宣告Installed
		s.restartStation(ctx, ocpp16.ReasonReboot)
	}
}

// setFirmwareStatus 通知并落地固件状态
func (s *Service) setFirmwareStatus(ctx context.Context, status ocpp16.FirmwareStatus) {
	if err := s.SendFirmwareStatusNotification(ctx, status, nil); err != nil {
		s.logger.Warnf("FirmwareStatusNotification(%s) failed: %v", status, err)
	}
	s.station.SetFirmwareStatus(status)
}

// performReset 执行CSMS下发的重置
// 严格合规的Hard重置不保证优雅停止交易，其余情况先按类型对应的原因结清交易
func (s *Service) performReset(ctx context.Context, resetType ocpp16.ResetType) {
	if resetType == ocpp16.ResetTypeHard && s.station.StrictCompliance() {
		s.logger.Warn("Hard reset, restarting without stopping transactions")
		s.restart(ctx)
		return
	}

	reason := ocpp16.ReasonSoftReset
	if resetType == ocpp16.ResetTypeHard {
		reason = ocpp16.ReasonHardReset
	}
	s.restartStation(ctx, reason)
}

// restartStation 以给定原因结清全部交易后重启站点
func (s *Service) restartStation(ctx context.Context, reason ocpp16.Reason) {
	for _, connectorID := range s.station.ActiveTransactionConnectors() {
		s.stopTransactionFlow(ctx, connectorID, reason)
	}
	s.restart(ctx)
}

// restart 停止后台任务、复位站点状态并重新注册
func (s *Service) restart(ctx context.Context) {
	s.stopHeartbeat()
	s.stopAllMeterTasks()
	s.station.PrepareRestart()

	if s.router.IsOpen() {
		s.runBootSequence(ctx)
	}
}
