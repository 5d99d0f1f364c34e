package ocpp201

import (
	"context"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	"github.com/charging-platform/station-simulator/internal/station"
)

// scheduleIdleReset 排队一次OnIdle重置，交易计数归零后执行
// 已有排队中的重置时返回false
func (s *Service) scheduleIdleReset() bool {
	s.resetMutex.Lock()
	if s.resetPending {
		s.resetMutex.Unlock()
		return false
	}
	s.resetPending = true
	s.resetMutex.Unlock()

	s.runAsync(func() {
		defer func() {
			s.resetMutex.Lock()
			s.resetPending = false
			s.resetMutex.Unlock()
		}()

		for s.station.ActiveTransactionCount() > 0 {
			if !s.sleep(s.ctx, s.config.ResetIdlePollInterval) {
				return
			}
		}
		s.performReset(s.ctx)
	})
	return true
}

// performReset 结清全部在途交易后重启站点并重新注册
func (s *Service) performReset(ctx context.Context) {
	st := s.station
	for _, connectorID := range st.ActiveTransactionConnectors() {
		s.stopTransactionFlow(ctx, connectorID, ocpp201.StoppedReasonImmediateReset,
			station.EventContext{RemoteCommand: station.RemoteCommandReset})
	}

	s.stopHeartbeat()
	s.stopAllMeterTasks()
	st.PrepareRestart()

	if s.router.IsOpen() {
		s.runBootSequence(ctx, ocpp201.BootReasonRemoteReset)
	}
}

// resetEvse 重启单个EVSE：结清其交易后让连接器经由Unavailable回到Available
func (s *Service) resetEvse(ctx context.Context, evseID int) {
	st := s.station
	for _, connectorID := range st.EvseConnectorIDs(evseID) {
		if st.HasActiveTransaction(connectorID) {
			s.stopTransactionFlow(ctx, connectorID, ocpp201.StoppedReasonImmediateReset,
				station.EventContext{RemoteCommand: station.RemoteCommandReset})
		}
		s.sendAndSetConnectorStatus(ctx, connectorID, ocpp201.ConnectorStatusUnavailable)
		s.sendAndSetConnectorStatus(ctx, connectorID, ocpp201.ConnectorStatusAvailable)
	}
	s.logger.Infof("EVSE %d reset completed", evseID)
}
