package ocpp16

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-simulator/internal/station"
	"github.com/charging-platform/station-simulator/internal/transport/router"
)

// handleReset 重置请求
// 总是应答Accepted，实际重启在后台执行
func (s *Service) handleReset(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.ResetRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	s.logger.Warnf("%s reset requested by CSMS", req.Type)
	resetType := req.Type
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.performReset(s.ctx, resetType)
	}()

	return &ocpp16.ResetResponse{Status: ocpp16.ResetStatusAccepted}, nil
}

// handleClearCache 清除授权缓存
func (s *Service) handleClearCache(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	if err := s.station.AuthCache().Clear(); err != nil {
		s.logger.ErrorWithErr(err, "Failed to clear authorization cache")
		return &ocpp16.ClearCacheResponse{Status: ocpp16.ClearCacheStatusRejected}, nil
	}
	return &ocpp16.ClearCacheResponse{Status: ocpp16.ClearCacheStatusAccepted}, nil
}

// handleUnlockConnector 解锁连接器
// 有交易时先以UnlockCommand停止交易，停止被拒绝则解锁失败
func (s *Service) handleUnlockConnector(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.UnlockConnectorRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	connectorID := req.ConnectorId
	if connectorID == 0 || !s.station.HasConnector(connectorID) {
		s.logger.Warnf("Cannot unlock unknown connector %d", connectorID)
		return &ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockStatusNotSupported}, nil
	}

	if s.station.HasActiveTransaction(connectorID) {
		if !s.stopTransactionFlow(ctx, connectorID, ocpp16.ReasonUnlockCommand) {
			return &ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockStatusUnlockFailed}, nil
		}
		return &ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockStatusUnlocked}, nil
	}

	s.sendAndSetConnectorStatus(ctx, connectorID, ocpp16.ChargePointStatusAvailable)
	return &ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockStatusUnlocked}, nil
}

// handleGetConfiguration 查询配置
// 不带键名返回全部可见键，带键名时保留原始大小写并单独列出未知键
func (s *Service) handleGetConfiguration(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.GetConfigurationRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	store := s.station.Configuration()
	var found []station.ConfigurationKey
	var unknown []string
	if len(req.Key) == 0 {
		found = store.Visible()
	} else {
		found, unknown = store.Lookup(req.Key)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Key < found[j].Key })

	resp := &ocpp16.GetConfigurationResponse{UnknownKey: unknown}
	for _, entry := range found {
		value := entry.Value
		resp.ConfigurationKey = append(resp.ConfigurationKey, ocpp16.KeyValue{
			Key:      entry.Key,
			Readonly: entry.Readonly,
			Value:    &value,
		})
	}
	return resp, nil
}

// handleChangeConfiguration 修改配置
// 未知键NotSupported，只读键Rejected，值未变化时Accepted且无副作用
func (s *Service) handleChangeConfiguration(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.ChangeConfigurationRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	result := s.station.UpdateConfiguration(req.Key, req.Value)
	status := ocpp16.ConfigurationStatusAccepted
	switch {
	case result.Unknown:
		status = ocpp16.ConfigurationStatusNotSupported
	case result.Readonly:
		status = ocpp16.ConfigurationStatusRejected
	case result.Unchanged:
		status = ocpp16.ConfigurationStatusAccepted
	case result.RebootRequired:
		status = ocpp16.ConfigurationStatusRebootRequired
	}
	return &ocpp16.ChangeConfigurationResponse{Status: status}, nil
}

// handleChangeAvailability 改变可用性
// 连接器0作用于全部连接器；存在交易时记录可用性并应答Scheduled
func (s *Service) handleChangeAvailability(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.ChangeAvailabilityRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	st := s.station
	if !st.HasConnector(req.ConnectorId) {
		return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusRejected}, nil
	}

	availability := station.AvailabilityOperative
	target := ocpp16.ChargePointStatusAvailable
	if req.Type == ocpp16.AvailabilityTypeInoperative {
		availability = station.AvailabilityInoperative
		target = ocpp16.ChargePointStatusUnavailable
	}

	if req.ConnectorId == 0 {
		scheduled := st.ActiveTransactionCount() > 0
		if err := st.SetAvailability(0, availability); err != nil {
			return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusRejected}, nil
		}
		for _, connectorID := range st.ConnectorIDs() {
			if err := st.SetAvailability(connectorID, availability); err != nil {
				s.logger.Warnf("Failed to set availability on connector %d: %v", connectorID, err)
			}
		}
		if scheduled {
			return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusScheduled}, nil
		}
		for _, connectorID := range st.ConnectorIDs() {
			s.sendAndSetConnectorStatus(ctx, connectorID, target)
		}
		return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusAccepted}, nil
	}

	if err := st.SetAvailability(req.ConnectorId, availability); err != nil {
		return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusRejected}, nil
	}
	if st.HasActiveTransaction(req.ConnectorId) {
		return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusScheduled}, nil
	}
	s.sendAndSetConnectorStatus(ctx, req.ConnectorId, target)
	return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusAccepted}, nil
}

// handleSetChargingProfile 设置充电配置文件
func (s *Service) handleSetChargingProfile(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.SetChargingProfileRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	if !s.station.HasConnector(req.ConnectorId) {
		return &ocpp16.SetChargingProfileResponse{Status: ocpp16.ChargingProfileStatusRejected}, nil
	}
	if err := s.station.SetChargingProfileV16(req.ConnectorId, req.CsChargingProfiles); err != nil {
		s.logger.Warnf("SetChargingProfile rejected: %v", err)
		return &ocpp16.SetChargingProfileResponse{Status: ocpp16.ChargingProfileStatusRejected}, nil
	}
	return &ocpp16.SetChargingProfileResponse{Status: ocpp16.ChargingProfileStatusAccepted}, nil
}

// handleClearChargingProfile 清除充电配置文件，至少清除一个才算Accepted
func (s *Service) handleClearChargingProfile(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.ClearChargingProfileRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	if removed := s.station.ClearChargingProfilesV16(req); removed > 0 {
		s.logger.Infof("Cleared %d charging profiles", removed)
		return &ocpp16.ClearChargingProfileResponse{Status: ocpp16.ClearChargingProfileStatusAccepted}, nil
	}
	return &ocpp16.ClearChargingProfileResponse{Status: ocpp16.ClearChargingProfileStatusUnknown}, nil
}

// handleGetCompositeSchedule 获取组合充电计划
// 取连接器上栈层级最高的配置文件，按请求时长截断
func (s *Service) handleGetCompositeSchedule(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.GetCompositeScheduleRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	if !s.station.HasConnector(req.ConnectorId) {
		return &ocpp16.GetCompositeScheduleResponse{Status: ocpp16.GetCompositeScheduleStatusRejected}, nil
	}
	profiles := s.station.ChargingProfilesV16(req.ConnectorId)
	if len(profiles) == 0 {
		return &ocpp16.GetCompositeScheduleResponse{Status: ocpp16.GetCompositeScheduleStatusRejected}, nil
	}

	best := profiles[0]
	for _, profile := range profiles[1:] {
		if profile.StackLevel > best.StackLevel {
			best = profile
		}
	}

	duration := req.Duration
	if best.ChargingSchedule.Duration != nil && *best.ChargingSchedule.Duration < duration {
		duration = *best.ChargingSchedule.Duration
	}
	start := ocpp16.NewDateTime(s.clock.Now())
	schedule := best.ChargingSchedule
	schedule.Duration = &duration
	schedule.StartSchedule = &start

	connectorID := req.ConnectorId
	return &ocpp16.GetCompositeScheduleResponse{
		Status:           ocpp16.GetCompositeScheduleStatusAccepted,
		ConnectorId:      &connectorID,
		ScheduleStart:    &start,
		ChargingSchedule: &schedule,
	}, nil
}

// handleDataTransfer 数据传输，仅认可配置的vendorId
func (s *Service) handleDataTransfer(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.DataTransferRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	for _, vendorID := range s.config.RecognizedVendorIDs {
		if vendorID == req.VendorId {
			return &ocpp16.DataTransferResponse{Status: ocpp16.DataTransferStatusAccepted}, nil
		}
	}
	return &ocpp16.DataTransferResponse{Status: ocpp16.DataTransferStatusUnknownVendorId}, nil
}

// handleTriggerMessage 触发消息
// 应答Accepted后延迟发送被请求的消息
func (s *Service) handleTriggerMessage(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.TriggerMessageRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	switch req.RequestedMessage {
	case ocpp16.MessageTriggerBootNotification,
		ocpp16.MessageTriggerHeartbeat,
		ocpp16.MessageTriggerMeterValues,
		ocpp16.MessageTriggerStatusNotification,
		ocpp16.MessageTriggerFirmwareStatusNotification,
		ocpp16.MessageTriggerDiagnosticsStatusNotification:
	default:
		return &ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusNotImplemented}, nil
	}

	if req.ConnectorId != nil && (*req.ConnectorId < 1 || !s.station.HasConnector(*req.ConnectorId)) {
		return &ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusRejected}, nil
	}

	trigger := req.RequestedMessage
	connectorID := req.ConnectorId
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if !s.sleep(s.ctx, s.config.TriggerMessageDelay) {
			return
		}
		s.emitTriggeredMessage(s.ctx, trigger, connectorID)
	}()

	return &ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusAccepted}, nil
}

// emitTriggeredMessage 发送被触发的消息
func (s *Service) emitTriggeredMessage(ctx context.Context, trigger ocpp16.MessageTrigger, connectorID *int) {
	st := s.station
	opts := &router.CallOptions{TriggerMessage: true}

	switch trigger {
	case ocpp16.MessageTriggerBootNotification:
		if _, err := s.SendBootNotification(ctx, &router.CallOptions{TriggerMessage: true, SkipBufferingOnError: true}); err != nil {
			s.logger.Warnf("Triggered BootNotification failed: %v", err)
		}
	case ocpp16.MessageTriggerHeartbeat:
		if _, err := s.SendHeartbeat(ctx, opts); err != nil {
			s.logger.Warnf("Triggered Heartbeat failed: %v", err)
		}
	case ocpp16.MessageTriggerStatusNotification:
		for _, id := range s.triggerTargets(connectorID) {
			snap, ok := st.ConnectorSnapshot(id)
			if !ok {
				continue
			}
			if err := s.SendStatusNotification(ctx, id, snap.Status16, snap.ErrorCode, opts); err != nil {
				s.logger.Warnf("Triggered StatusNotification for connector %d failed: %v", id, err)
			}
		}
	case ocpp16.MessageTriggerMeterValues:
		for _, id := range s.triggerTargets(connectorID) {
			s.sendTriggeredMeterValues(ctx, id, opts)
		}
	case ocpp16.MessageTriggerFirmwareStatusNotification:
		status := st.FirmwareStatus()
		if status == "" {
			status = ocpp16.FirmwareStatusIdle
		}
		if err := s.SendFirmwareStatusNotification(ctx, status, opts); err != nil {
			s.logger.Warnf("Triggered FirmwareStatusNotification failed: %v", err)
		}
	case ocpp16.MessageTriggerDiagnosticsStatusNotification:
		status := st.DiagnosticsStatus()
		if status == "" {
			status = ocpp16.DiagnosticsStatusIdle
		}
		if err := s.SendDiagnosticsStatusNotification(ctx, status, opts); err != nil {
			s.logger.Warnf("Triggered DiagnosticsStatusNotification failed: %v", err)
		}
	}
}

// triggerTargets 触发消息的目标连接器列表
func (s *Service) triggerTargets(connectorID *int) []int {
	if connectorID != nil {
		return []int{*connectorID}
	}
	return s.station.ConnectorIDs()
}

// sendTriggeredMeterValues 发送Trigger上下文的电表读数
func (s *Service) sendTriggeredMeterValues(ctx context.Context, connectorID int, opts *router.CallOptions) {
	var transactionID *int
	if snap, ok := s.station.ConnectorSnapshot(connectorID); ok && snap.TransactionStarted {
		id := snap.TransactionID
		transactionID = &id
	}
	value := s.buildEnergyMeterValue(connectorID, ocpp16.ReadingContextTrigger, s.clock.Now())
	if err := s.SendMeterValues(ctx, connectorID, transactionID, []ocpp16.MeterValue{value}, opts); err != nil {
		s.logger.Warnf("Triggered MeterValues for connector %d failed: %v", connectorID, err)
	}
}

// handleReserveNow 预约连接器
func (s *Service) handleReserveNow(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.ReserveNowRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	st := s.station
	connectorID := req.ConnectorId
	if connectorID == 0 || !st.HasConnector(connectorID) {
		return &ocpp16.ReserveNowResponse{Status: ocpp16.ReservationStatusRejected}, nil
	}

	status, _ := st.StatusV16(connectorID)
	switch status {
	case ocpp16.ChargePointStatusFaulted:
		return &ocpp16.ReserveNowResponse{Status: ocpp16.ReservationStatusFaulted}, nil
	case ocpp16.ChargePointStatusPreparing, ocpp16.ChargePointStatusCharging,
		ocpp16.ChargePointStatusSuspendedEV, ocpp16.ChargePointStatusSuspendedEVSE,
		ocpp16.ChargePointStatusFinishing:
		return &ocpp16.ReserveNowResponse{Status: ocpp16.ReservationStatusOccupied}, nil
	case ocpp16.ChargePointStatusUnavailable:
		return &ocpp16.ReserveNowResponse{Status: ocpp16.ReservationStatusUnavailable}, nil
	case ocpp16.ChargePointStatusReserved:
		snap, _ := st.ConnectorSnapshot(connectorID)
		switch {
		case snap.ReservationID != nil && *snap.ReservationID == req.ReservationId:
			// 同一预约更新过期时间
		case !snap.ReservationExpiry.IsZero() && snap.ReservationExpiry.Before(s.clock.Now()):
			st.ClearReservation(connectorID)
		default:
			return &ocpp16.ReserveNowResponse{Status: ocpp16.ReservationStatusOccupied}, nil
		}
	}

	if err := st.Reserve(connectorID, req.ReservationId, req.IdTag, req.ExpiryDate.Time); err != nil {
		s.logger.Warnf("Reservation %d rejected: %v", req.ReservationId, err)
		return &ocpp16.ReserveNowResponse{Status: ocpp16.ReservationStatusRejected}, nil
	}
	s.sendAndSetConnectorStatus(ctx, connectorID, ocpp16.ChargePointStatusReserved)
	return &ocpp16.ReserveNowResponse{Status: ocpp16.ReservationStatusAccepted}, nil
}

// handleCancelReservation 取消预约
func (s *Service) handleCancelReservation(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.CancelReservationRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	connectorID, found := s.station.CancelReservationByID(req.ReservationId)
	if !found {
		return &ocpp16.CancelReservationResponse{Status: ocpp16.CancelReservationStatusRejected}, nil
	}
	s.sendAndSetConnectorStatus(ctx, connectorID, ocpp16.ChargePointStatusAvailable)
	return &ocpp16.CancelReservationResponse{Status: ocpp16.CancelReservationStatusAccepted}, nil
}

// handleGetDiagnostics 诊断上传
// 仅支持ftp://；上传状态经progress回调逐步通知CSMS
func (s *Service) handleGetDiagnostics(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.GetDiagnosticsRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	location, err := url.Parse(req.Location)
	if err != nil || location.Scheme != "ftp" || s.uploader == nil {
		s.logger.Warnf("Unsupported diagnostics upload location %q", req.Location)
		s.setDiagnosticsStatus(ctx, ocpp16.DiagnosticsStatusUploadFailed)
		return &ocpp16.GetDiagnosticsResponse{}, nil
	}

	fileName, err := s.uploader.Upload(ctx, req.Location, func(status string) {
		s.setDiagnosticsStatus(ctx, ocpp16.DiagnosticsStatus(status))
	})
	if err != nil {
		if s.station.DiagnosticsStatus() != ocpp16.DiagnosticsStatusUploadFailed {
			s.setDiagnosticsStatus(ctx, ocpp16.DiagnosticsStatusUploadFailed)
		}
		return nil, ocpp.NewError(ocpp.ErrorCodeGenericError,
			fmt.Sprintf("diagnostics upload failed: %v", err))
	}
	return &ocpp16.GetDiagnosticsResponse{FileName: stringPtr(fileName)}, nil
}

// setDiagnosticsStatus 通知并落地诊断状态
func (s *Service) setDiagnosticsStatus(ctx context.Context, status ocpp16.DiagnosticsStatus) {
	if err := s.SendDiagnosticsStatusNotification(ctx, status, nil); err != nil {
		s.logger.Warnf("DiagnosticsStatusNotification(%s) failed: %v", status, err)
	}
	s.station.SetDiagnosticsStatus(status)
}

// handleUpdateFirmware 固件升级
// 应答空载荷后由后台任务模拟下载与安装，已有升级在途时忽略
func (s *Service) handleUpdateFirmware(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.UpdateFirmwareRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	if current := s.station.FirmwareStatus(); current != "" && current != ocpp16.FirmwareStatusInstalled {
		s.logger.Warnf("Firmware update requested while status is %s, ignoring", current)
		return &ocpp16.UpdateFirmwareResponse{}, nil
	}

	s.firmwareMutex.Lock()
	if s.firmwareRunning {
		s.firmwareMutex.Unlock()
		s.logger.Warn("Firmware update already in progress, ignoring")
		return &ocpp16.UpdateFirmwareResponse{}, nil
	}
	s.firmwareRunning = true
	s.firmwareMutex.Unlock()

	var delay time.Duration
	if wait := req.RetrieveDate.Time.Sub(s.clock.Now()); wait > 0 {
		delay = wait
	}
	s.logger.Infof("Firmware update scheduled from %s in %s", req.Location, delay)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.clearFirmwareRunning()
		if delay > 0 && !s.sleep(s.ctx, delay) {
			return
		}
		s.runFirmwareUpdate(s.ctx)
	}()

	return &ocpp16.UpdateFirmwareResponse{}, nil
}

func (s *Service) clearFirmwareRunning() {
	s.firmwareMutex.Lock()
	s.firmwareRunning = false
	s.firmwareMutex.Unlock()
}
