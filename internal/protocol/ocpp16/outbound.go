package ocpp16

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/charging-platform/station-simulator/internal/domain/events"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-simulator/internal/domain/protocol"
	"github.com/charging-platform/station-simulator/internal/metrics"
	"github.com/charging-platform/station-simulator/internal/station"
	"github.com/charging-platform/station-simulator/internal/transport/router"
)

// send 出站请求统一通道
// 构造后的载荷先过出站模式校验（失败视为编程错误），应答再过入站模式校验
func (s *Service) send(ctx context.Context, action ocpp16.Action, request, response interface{}, opts *router.CallOptions) error {
	if _, ok := outboundActions[action]; !ok {
		return ocpp.NewError(ocpp.ErrorCodeNotSupported,
			fmt.Sprintf("%s is not supported in the station-to-CSMS direction", action))
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return ocpp.NewError(ocpp.ErrorCodeInternalError,
			fmt.Sprintf("failed to marshal %s request: %v", action, err))
	}
	if err := s.schemas.ValidateRequest(protocol.OCPP_VERSION_1_6, string(action), payload); err != nil {
		return ocpp.NewError(ocpp.ErrorCodeInternalError,
			fmt.Sprintf("outbound %s payload invalid: %v", action, err))
	}

	callOpts := router.CallOptions{Timeout: s.config.CallTimeout}
	if opts != nil {
		callOpts = *opts
		if callOpts.Timeout == 0 {
			callOpts.Timeout = s.config.CallTimeout
		}
	}

	s.incrementCallsSent()
	raw, err := s.router.Call(ctx, string(action), json.RawMessage(payload), &callOpts)
	if err != nil {
		s.incrementCallsFailed()
		s.emitCallFailed(action, err)
		return err
	}

	if err := s.schemas.ValidateResponse(protocol.OCPP_VERSION_1_6, string(action), raw); err != nil {
		return ocpp.NewError(ocpp.ErrorCodeFormationViolation,
			fmt.Sprintf("%s response invalid: %v", action, err))
	}
	if response != nil {
		if err := json.Unmarshal(raw, response); err != nil {
			return ocpp.NewError(ocpp.ErrorCodeFormationViolation,
				fmt.Sprintf("failed to unmarshal %s response: %v", action, err))
		}
	}
	return nil
}

// emitCallFailed 出站CALL失败事件
func (s *Service) emitCallFailed(action ocpp16.Action, err error) {
	ocppErr := ocpp.AsError(err)
	st := s.station
	st.EmitEvent(st.EventFactory().CreateCallFailedEvent(st.ID(), string(action), events.ErrorInfo{
		Code:        events.ErrorCode(ocppErr.Code),
		Description: ocppErr.Description,
		Timestamp:   s.clock.Now(),
	}, st.Metadata()))
}

// 启动序列

// runBootSequence 发送BootNotification直到被接受
// Pending/Rejected时按应答的interval（缺省用配置的重试间隔）等待后重试
func (s *Service) runBootSequence(ctx context.Context) {
	for {
		s.incrementBootAttempts()
		resp, err := s.SendBootNotification(ctx, nil)
		if err == nil && resp.Status == ocpp16.RegistrationStatusAccepted {
			// 重启前处于安装中的固件在注册完成后宣告安装完毕
			if s.station.FirmwareStatus() == ocpp16.FirmwareStatusInstalling {
				s.setFirmwareStatus(ctx, ocpp16.FirmwareStatusInstalled)
			}
			return
		}

		wait := s.config.BootRetryInterval
		if err != nil {
			s.logger.ErrorWithErr(err, "BootNotification failed")
		} else if resp.Interval > 0 {
			wait = time.Duration(resp.Interval) * time.Second
		}

		if !s.sleep(ctx, wait) {
			return
		}
		if !s.router.IsOpen() {
			// 连接已断开，下次重连时重新进入启动序列
			return
		}
	}
}

// SendBootNotification 发送启动通知并处理应答
func (s *Service) SendBootNotification(ctx context.Context, opts *router.CallOptions) (*ocpp16.BootNotificationResponse, error) {
	st := s.station
	req := &ocpp16.BootNotificationRequest{
		ChargePointVendor: st.Vendor(),
		ChargePointModel:  st.Model(),
	}
	if serial := st.SerialNumber(); serial != "" {
		req.ChargePointSerialNumber = stringPtr(serial)
	}
	if firmware := st.FirmwareVersion(); firmware != "" {
		req.FirmwareVersion = stringPtr(firmware)
	}

	resp := &ocpp16.BootNotificationResponse{}
	if err := s.send(ctx, ocpp16.ActionBootNotification, req, resp, opts); err != nil {
		return nil, err
	}
	s.handleBootNotificationResponse(resp)
	return resp, nil
}

// handleBootNotificationResponse 按注册结果更新站点状态，被接受时回填心跳间隔并启动心跳
func (s *Service) handleBootNotificationResponse(resp *ocpp16.BootNotificationResponse) {
	st := s.station
	st.SetRegistrationStatus(station.RegistrationState(resp.Status))

	switch resp.Status {
	case ocpp16.RegistrationStatusAccepted:
		if resp.Interval > 0 {
			st.ApplyHeartbeatInterval(resp.Interval)
		} else {
			s.restartHeartbeat(st.Configuration().HeartbeatInterval(s.config.HeartbeatInterval))
		}
		st.EmitEvent(st.EventFactory().CreateStationRegisteredEvent(st.ID(), st.StationInfo(), resp.Interval, st.Metadata()))
		s.logger.Infof("Registration accepted, heartbeat interval %ds", resp.Interval)
	case ocpp16.RegistrationStatusPending:
		st.EmitEvent(events.NewBaseEvent(events.EventTypeStationBootPending, st.ID(), events.EventSeverityWarning, st.Metadata()))
		s.logger.Warn("Registration pending, CSMS will decide later")
	case ocpp16.RegistrationStatusRejected:
		st.EmitEvent(events.NewBaseEvent(events.EventTypeStationBootRejected, st.ID(), events.EventSeverityWarning, st.Metadata()))
		s.logger.Warn("Registration rejected by CSMS")
	}
}

// SendHeartbeat 发送心跳
func (s *Service) SendHeartbeat(ctx context.Context, opts *router.CallOptions) (*ocpp16.HeartbeatResponse, error) {
	resp := &ocpp16.HeartbeatResponse{}
	if err := s.send(ctx, ocpp16.ActionHeartbeat, &ocpp16.HeartbeatRequest{}, resp, opts); err != nil {
		return nil, err
	}

	s.incrementHeartbeatsSent()
	st := s.station
	st.EmitEvent(events.NewBaseEvent(events.EventTypeHeartbeatSent, st.ID(), events.EventSeverityInfo, st.Metadata()))
	s.logger.Debugf("Heartbeat acknowledged, CSMS time %s", resp.CurrentTime.Format(time.RFC3339))
	return resp, nil
}

// SendAuthorize 发送授权请求并登记授权结果
func (s *Service) SendAuthorize(ctx context.Context, connectorID int, idTag string) (*ocpp16.AuthorizeResponse, error) {
	resp := &ocpp16.AuthorizeResponse{}
	if err := s.send(ctx, ocpp16.ActionAuthorize, &ocpp16.AuthorizeRequest{IdTag: idTag}, resp, nil); err != nil {
		return nil, err
	}

	accepted := resp.IdTagInfo.Status == ocpp16.AuthorizationStatusAccepted
	s.station.CompleteAuthorization(connectorID, idTag, accepted)
	if accepted {
		s.station.AuthCache().Accept(idTag)
	}
	return resp, nil
}

// SendStartTransaction 发送开始交易请求并按应答落地交易
func (s *Service) SendStartTransaction(ctx context.Context, connectorID int, idTag string) (*ocpp16.StartTransactionResponse, error) {
	st := s.station
	register, ok := st.MeterRegister(connectorID)
	if !ok {
		return nil, fmt.Errorf("unknown connector %d", connectorID)
	}

	requestTime := s.clock.Now()
	req := &ocpp16.StartTransactionRequest{
		ConnectorId: connectorID,
		IdTag:       idTag,
		MeterStart:  register,
		Timestamp:   ocpp16.NewDateTime(requestTime),
	}
	// 同一idTag的预约随交易兑现
	reserved := false
	if snap, ok := st.ConnectorSnapshot(connectorID); ok && snap.ReservationID != nil && snap.ReservedIdTag == idTag {
		req.ReservationId = snap.ReservationID
		reserved = true
	}

	resp := &ocpp16.StartTransactionResponse{}
	if err := s.send(ctx, ocpp16.ActionStartTransaction, req, resp, nil); err != nil {
		return nil, err
	}

	if reserved && resp.IdTagInfo.Status == ocpp16.AuthorizationStatusAccepted {
		st.ClearReservation(connectorID)
	}
	s.handleStartTransactionResponse(ctx, connectorID, idTag, requestTime, resp)
	return resp, nil
}

// handleStartTransactionResponse 开始交易应答处理
// 依次校验本地授权、远程授权、授权idTag一致性、连接器占用与状态，再落地交易
func (s *Service) handleStartTransactionResponse(ctx context.Context, connectorID int, idTag string, requestTime time.Time, resp *ocpp16.StartTransactionResponse) {
	st := s.station
	snap, ok := st.ConnectorSnapshot(connectorID)
	if !ok {
		s.logger.Errorf("StartTransaction response for unknown connector %d", connectorID)
		return
	}

	if st.LocalAuthListEnabled() && snap.IdTagLocalAuthorized && snap.LocalAuthorizeIdTag != idTag {
		s.logger.Errorf("Connector %d: idTag %s differs from the locally authorized tag %s",
			connectorID, idTag, snap.LocalAuthorizeIdTag)
		s.resetConnectorOnStartError(ctx, connectorID)
		return
	}
	if st.AuthorizeRemoteTxRequests() && st.RemoteAuthorization() && snap.RemoteStarted &&
		!snap.IdTagLocalAuthorized && !snap.IdTagAuthorized {
		s.logger.Errorf("Connector %d: remote start with unauthorized idTag %s", connectorID, idTag)
		s.resetConnectorOnStartError(ctx, connectorID)
		return
	}
	if snap.IdTagAuthorized && snap.AuthorizeIdTag != idTag {
		s.logger.Errorf("Connector %d: idTag %s differs from the authorized tag %s",
			connectorID, idTag, snap.AuthorizeIdTag)
		s.resetConnectorOnStartError(ctx, connectorID)
		return
	}
	if snap.TransactionStarted {
		s.logger.Errorf("Connector %d already has transaction %d", connectorID, snap.TransactionID)
		return
	}
	if status, _ := st.StatusV16(connectorID); status != ocpp16.ChargePointStatusAvailable &&
		status != ocpp16.ChargePointStatusPreparing {
		s.logger.Errorf("Connector %d: cannot start a transaction in status %s", connectorID, status)
		s.resetConnectorOnStartError(ctx, connectorID)
		return
	}

	if resp.IdTagInfo.Status != ocpp16.AuthorizationStatusAccepted {
		s.logger.Warnf("Connector %d: StartTransaction rejected with status %s",
			connectorID, resp.IdTagInfo.Status)
		s.resetConnectorOnStartError(ctx, connectorID)
		return
	}

	if err := st.BeginTransactionV16(connectorID, resp.TransactionId, idTag, requestTime); err != nil {
		s.logger.ErrorWithErr(err, "Failed to begin transaction")
		s.resetConnectorOnStartError(ctx, connectorID)
		return
	}

	if st.BeginEndMeterValues() {
		begin := s.buildEnergyMeterValue(connectorID, ocpp16.ReadingContextTransactionBegin, requestTime)
		if err := s.SendMeterValues(ctx, connectorID, &resp.TransactionId, []ocpp16.MeterValue{begin}, nil); err != nil {
			s.logger.Warnf("Transaction begin MeterValues failed: %v", err)
		}
	}

	s.sendAndSetConnectorStatus(ctx, connectorID, ocpp16.ChargePointStatusCharging)
	st.IncrementPowerDivider()
	s.startMeterTask(connectorID, resp.TransactionId)
	metrics.ActiveTransactions.Inc()
	s.logger.Infof("Transaction %d started on connector %d", resp.TransactionId, connectorID)
}

// resetConnectorOnStartError 交易启动失败的回滚：停采样、清现场、撤销TxProfile并回到Available
func (s *Service) resetConnectorOnStartError(ctx context.Context, connectorID int) {
	s.stopMeterTask(connectorID)

	st := s.station
	st.ClearTransaction(connectorID)
	purpose := ocpp16.ChargingProfilePurposeTxProfile
	st.ClearChargingProfilesV16(&ocpp16.ClearChargingProfileRequest{
		ConnectorId:            &connectorID,
		ChargingProfilePurpose: &purpose,
	})

	if status, ok := st.StatusV16(connectorID); ok && status != ocpp16.ChargePointStatusAvailable {
		s.sendAndSetConnectorStatus(ctx, connectorID, ocpp16.ChargePointStatusAvailable)
	}
}

// SendStopTransaction 发送停止交易请求并结清交易
func (s *Service) SendStopTransaction(ctx context.Context, connectorID int, reason ocpp16.Reason) (*ocpp16.StopTransactionResponse, error) {
	st := s.station
	snap, ok := st.ConnectorSnapshot(connectorID)
	if !ok || !snap.TransactionStarted {
		return nil, fmt.Errorf("no active transaction on connector %d", connectorID)
	}

	stopTime := s.clock.Now()
	transactionID := snap.TransactionID
	endMeterValue := s.buildEnergyMeterValue(connectorID, ocpp16.ReadingContextTransactionEnd, stopTime)

	// 严格合规时Transaction.End读数必须先于StopTransaction送达
	if st.BeginEndMeterValues() && st.StrictCompliance() && !st.OutOfOrderEndMeterValues() {
		if err := s.SendMeterValues(ctx, connectorID, &transactionID, []ocpp16.MeterValue{endMeterValue}, nil); err != nil {
			s.logger.Warnf("Transaction end MeterValues failed: %v", err)
		}
	}

	req := &ocpp16.StopTransactionRequest{
		MeterStop:     snap.EnergyActiveImportRegister,
		Timestamp:     ocpp16.NewDateTime(stopTime),
		TransactionId: transactionID,
		Reason:        &reason,
	}
	if snap.TransactionIdTag != "" {
		req.IdTag = stringPtr(snap.TransactionIdTag)
	}
	if st.TransactionDataMeterValues() {
		req.TransactionData = []ocpp16.MeterValue{endMeterValue}
	}

	resp := &ocpp16.StopTransactionResponse{}
	if err := s.send(ctx, ocpp16.ActionStopTransaction, req, resp, nil); err != nil {
		return nil, err
	}
	s.handleStopTransactionResponse(ctx, connectorID, transactionID, reason, stopTime, endMeterValue)
	return resp, nil
}

// handleStopTransactionResponse 停止交易应答处理：补发读数、结清交易并恢复连接器状态
func (s *Service) handleStopTransactionResponse(ctx context.Context, connectorID, transactionID int, reason ocpp16.Reason, stopTime time.Time, endMeterValue ocpp16.MeterValue) {
	st := s.station

	// 宽松模式允许Transaction.End读数晚于StopTransaction补发
	if st.BeginEndMeterValues() && !st.StrictCompliance() && st.OutOfOrderEndMeterValues() {
		if err := s.SendMeterValues(ctx, connectorID, &transactionID, []ocpp16.MeterValue{endMeterValue}, nil); err != nil {
			s.logger.Warnf("Out of order transaction end MeterValues failed: %v", err)
		}
	}

	if _, err := st.EndTransactionV16(connectorID, reason, stopTime); err != nil {
		s.logger.ErrorWithErr(err, "Failed to end transaction")
	} else {
		metrics.ActiveTransactions.Dec()
	}

	s.stopMeterTask(connectorID)
	st.DecrementPowerDivider()

	target := ocpp16.ChargePointStatusAvailable
	if !st.IsStationAvailable() || !st.IsConnectorAvailable(connectorID) {
		target = ocpp16.ChargePointStatusUnavailable
	}
	s.sendAndSetConnectorStatus(ctx, connectorID, target)
	s.logger.Infof("Transaction %d stopped on connector %d (%s)", transactionID, connectorID, reason)
}

// stopTransactionFlow 停止指定连接器上的交易，返回CSMS是否接受
func (s *Service) stopTransactionFlow(ctx context.Context, connectorID int, reason ocpp16.Reason) bool {
	resp, err := s.SendStopTransaction(ctx, connectorID, reason)
	if err != nil {
		s.logger.ErrorWithErr(err, fmt.Sprintf("StopTransaction on connector %d failed", connectorID))
		return false
	}
	return resp.IdTagInfo == nil || resp.IdTagInfo.Status == ocpp16.AuthorizationStatusAccepted
}

// SendStatusNotification 发送状态通知
func (s *Service) SendStatusNotification(ctx context.Context, connectorID int, status ocpp16.ChargePointStatus, errorCode ocpp16.ChargePointErrorCode, opts *router.CallOptions) error {
	now := s.clock.Now()
	req := &ocpp16.StatusNotificationRequest{
		ConnectorId: connectorID,
		ErrorCode:   errorCode,
		Status:      status,
	}
	timestamp := ocpp16.NewDateTime(now)
	req.Timestamp = &timestamp

	return s.send(ctx, ocpp16.ActionStatusNotification, req, &ocpp16.StatusNotificationResponse{}, opts)
}

// sendAndSetConnectorStatus 通知并落地连接器状态，当前状态已一致时跳过
// 先发送StatusNotification再执行状态迁移，发送失败不阻止迁移
func (s *Service) sendAndSetConnectorStatus(ctx context.Context, connectorID int, status ocpp16.ChargePointStatus) {
	current, ok := s.station.StatusV16(connectorID)
	if !ok || current == status {
		return
	}

	if err := s.SendStatusNotification(ctx, connectorID, status, ocpp16.ChargePointErrorCodeNoError, nil); err != nil {
		s.logger.Warnf("StatusNotification(%s) for connector %d failed: %v", status, connectorID, err)
	}
	if err := s.station.TransitionV16(connectorID, status); err != nil {
		s.logger.Warnf("Connector %d transition rejected: %v", connectorID, err)
	}
}

// SendMeterValues 发送电表读数
func (s *Service) SendMeterValues(ctx context.Context, connectorID int, transactionID *int, values []ocpp16.MeterValue, opts *router.CallOptions) error {
	req := &ocpp16.MeterValuesRequest{
		ConnectorId:   connectorID,
		TransactionId: transactionID,
		MeterValue:    values,
	}
	if err := s.send(ctx, ocpp16.ActionMeterValues, req, &ocpp16.MeterValuesResponse{}, opts); err != nil {
		return err
	}
	s.incrementMeterValuesSent()
	return nil
}

// SendFirmwareStatusNotification 发送固件状态通知
func (s *Service) SendFirmwareStatusNotification(ctx context.Context, status ocpp16.FirmwareStatus, opts *router.CallOptions) error {
	req := &ocpp16.FirmwareStatusNotificationRequest{Status: status}
	return s.send(ctx, ocpp16.ActionFirmwareStatusNotification, req, &ocpp16.FirmwareStatusNotificationResponse{}, opts)
}

// SendDiagnosticsStatusNotification 发送诊断状态通知
func (s *Service) SendDiagnosticsStatusNotification(ctx context.Context, status ocpp16.DiagnosticsStatus, opts *router.CallOptions) error {
	req := &ocpp16.DiagnosticsStatusNotificationRequest{Status: status}
	return s.send(ctx, ocpp16.ActionDiagnosticsStatusNotification, req, &ocpp16.DiagnosticsStatusNotificationResponse{}, opts)
}

// SendDataTransfer 发送站点侧数据传输
func (s *Service) SendDataTransfer(ctx context.Context, vendorID string, messageID, data *string) (*ocpp16.DataTransferResponse, error) {
	req := &ocpp16.DataTransferRequest{
		VendorId:  vendorID,
		MessageId: messageID,
		Data:      data,
	}
	resp := &ocpp16.DataTransferResponse{}
	if err := s.send(ctx, ocpp16.ActionDataTransfer, req, resp, nil); err != nil {
		return nil, err
	}
	return resp, nil
}

// buildEnergyMeterValue 电量累计值读数
func (s *Service) buildEnergyMeterValue(connectorID int, readingContext ocpp16.ReadingContext, at time.Time) ocpp16.MeterValue {
	register, _ := s.station.MeterRegister(connectorID)
	return ocpp16.MeterValue{
		Timestamp: ocpp16.NewDateTime(at),
		SampledValue: []ocpp16.SampledValue{{
			Value:     strconv.Itoa(register),
			Context:   readingContextPtr(readingContext),
			Measurand: measurandPtr(ocpp16.MeasurandEnergyActiveImportRegister),
			Location:  locationPtr(ocpp16.LocationOutlet),
			Unit:      unitPtr(ocpp16.UnitOfMeasureWh),
		}},
	}
}

func stringPtr(v string) *string { return &v }

func readingContextPtr(v ocpp16.ReadingContext) *ocpp16.ReadingContext { return &v }

func measurandPtr(v ocpp16.Measurand) *ocpp16.Measurand { return &v }

func locationPtr(v ocpp16.Location) *ocpp16.Location { return &v }

func unitPtr(v ocpp16.UnitOfMeasure) *ocpp16.UnitOfMeasure { return &v }
