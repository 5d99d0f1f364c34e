package ocpp201

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charging-platform/station-simulator/internal/devicemodel"
	"github.com/charging-platform/station-simulator/internal/domain/events"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	"github.com/charging-platform/station-simulator/internal/domain/protocol"
	"github.com/charging-platform/station-simulator/internal/metrics"
	"github.com/charging-platform/station-simulator/internal/station"
	"github.com/charging-platform/station-simulator/internal/transport/router"
)

// send 出站请求统一通道
// 构造后的载荷先过出站模式校验（失败视为编程错误），应答再过入站模式校验
func (s *Service) send(ctx context.Context, action ocpp201.Action, request, response interface{}, opts *router.CallOptions) error {
	if _, ok := outboundActions[action]; !ok {
		return ocpp.NewError(ocpp.ErrorCodeNotSupported,
			fmt.Sprintf("%s is not supported in the station-to-CSMS direction", action))
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return ocpp.NewError(ocpp.ErrorCodeInternalError,
			fmt.Sprintf("failed to marshal %s request: %v", action, err))
	}
	if err := s.schemas.ValidateRequest(protocol.OCPP_VERSION_2_0_1, string(action), payload); err != nil {
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

	if err := s.schemas.ValidateResponse(protocol.OCPP_VERSION_2_0_1, string(action), raw); err != nil {
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
func (s *Service) emitCallFailed(action ocpp201.Action, err error) {
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
func (s *Service) runBootSequence(ctx context.Context, reason ocpp201.BootReason) {
	for {
		s.incrementBootAttempts()
		resp, err := s.SendBootNotification(ctx, reason, nil)
		if err == nil && resp.Status == ocpp201.RegistrationStatusAccepted {
			s.sendAllStatusNotifications(ctx)
			s.sendQueuedTransactionEvents(ctx)
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
func (s *Service) SendBootNotification(ctx context.Context, reason ocpp201.BootReason, opts *router.CallOptions) (*ocpp201.BootNotificationResponse, error) {
	st := s.station
	req := &ocpp201.BootNotificationRequest{
		ChargingStation: ocpp201.ChargingStation{
			Model:      st.Model(),
			VendorName: st.Vendor(),
		},
		Reason: reason,
	}
	if serial := st.SerialNumber(); serial != "" {
		req.ChargingStation.SerialNumber = stringPtr(serial)
	}
	if firmware := st.FirmwareVersion(); firmware != "" {
		req.ChargingStation.FirmwareVersion = stringPtr(firmware)
	}

	resp := &ocpp201.BootNotificationResponse{}
	if err := s.send(ctx, ocpp201.ActionBootNotification, req, resp, opts); err != nil {
		return nil, err
	}
	s.handleBootNotificationResponse(resp)
	return resp, nil
}

// handleBootNotificationResponse 按注册结果更新站点状态，被接受时回填心跳间隔并启动心跳
func (s *Service) handleBootNotificationResponse(resp *ocpp201.BootNotificationResponse) {
	st := s.station
	st.SetRegistrationStatus(station.RegistrationState(resp.Status))

	switch resp.Status {
	case ocpp201.RegistrationStatusAccepted:
		if resp.Interval > 0 {
			st.ApplyHeartbeatInterval(resp.Interval)
		} else {
			s.restartHeartbeat(st.Configuration().HeartbeatInterval(s.config.HeartbeatInterval))
		}
		st.EmitEvent(st.EventFactory().CreateStationRegisteredEvent(st.ID(), st.StationInfo(), resp.Interval, st.Metadata()))
		s.logger.Infof("Registration accepted, heartbeat interval %ds", resp.Interval)
	case ocpp201.RegistrationStatusPending:
		st.EmitEvent(events.NewBaseEvent(events.EventTypeStationBootPending, st.ID(), events.EventSeverityWarning, st.Metadata()))
		s.logger.Warn("Registration pending, CSMS will decide later")
	case ocpp201.RegistrationStatusRejected:
		st.EmitEvent(events.NewBaseEvent(events.EventTypeStationBootRejected, st.ID(), events.EventSeverityWarning, st.Metadata()))
		s.logger.Warn("Registration rejected by CSMS")
	}
}

// SendHeartbeat 发送心跳
func (s *Service) SendHeartbeat(ctx context.Context, opts *router.CallOptions) (*ocpp201.HeartbeatResponse, error) {
	resp := &ocpp201.HeartbeatResponse{}
	if err := s.send(ctx, ocpp201.ActionHeartbeat, &ocpp201.HeartbeatRequest{}, resp, opts); err != nil {
		return nil, err
	}

	s.incrementHeartbeatsSent()
	st := s.station
	st.EmitEvent(events.NewBaseEvent(events.EventTypeHeartbeatSent, st.ID(), events.EventSeverityInfo, st.Metadata()))
	s.logger.Debugf("Heartbeat acknowledged, CSMS time %s", resp.CurrentTime.Format(time.RFC3339))
	return resp, nil
}

// SendStatusNotification 发送连接器状态通知
func (s *Service) SendStatusNotification(ctx context.Context, evseID, connectorID int, status ocpp201.ConnectorStatus, opts *router.CallOptions) error {
	req := &ocpp201.StatusNotificationRequest{
		Timestamp:       ocpp201.NewDateTime(s.clock.Now()),
		ConnectorStatus: status,
		EvseId:          evseID,
		ConnectorId:     connectorID,
	}
	return s.send(ctx, ocpp201.ActionStatusNotification, req, &ocpp201.StatusNotificationResponse{}, opts)
}

// sendAllStatusNotifications 上报每个EVSE下所有连接器的当前状态
func (s *Service) sendAllStatusNotifications(ctx context.Context) {
	st := s.station
	for _, evseID := range st.EvseIDs() {
		for _, connectorID := range st.EvseConnectorIDs(evseID) {
			status, ok := st.StatusV201(connectorID)
			if !ok {
				continue
			}
			if err := s.SendStatusNotification(ctx, evseID, connectorID, status, nil); err != nil {
				s.logger.Warnf("StatusNotification for connector %d failed: %v", connectorID, err)
			}
		}
	}
}

// sendAndSetConnectorStatus 通知并落地连接器状态，当前状态已一致时跳过
// 先发送StatusNotification再执行状态迁移，发送失败不阻止迁移
func (s *Service) sendAndSetConnectorStatus(ctx context.Context, connectorID int, status ocpp201.ConnectorStatus) {
	st := s.station
	current, ok := st.StatusV201(connectorID)
	if !ok || current == status {
		return
	}

	snap, ok := st.ConnectorSnapshot(connectorID)
	if !ok {
		return
	}
	if err := s.SendStatusNotification(ctx, snap.EvseID, connectorID, status, nil); err != nil {
		s.logger.Warnf("StatusNotification(%s) for connector %d failed: %v", status, connectorID, err)
	}
	if err := st.TransitionV201(connectorID, status); err != nil {
		s.logger.Warnf("Connector %d transition rejected: %v", connectorID, err)
	}
}

// TransactionEventParams 一次TransactionEvent的可变输入
type TransactionEventParams struct {
	EventType     ocpp201.TransactionEventType
	Context       station.EventContext
	IdToken       *ocpp201.IdToken
	MeterValue    []ocpp201.MeterValue
	ChargingState *ocpp201.ChargingState
	StoppedReason *ocpp201.StoppedReason
	ReservationId *int
}

// SendTransactionEvent 构造并发送交易事件
// 序号由连接器簿记递增；evse和idToken只随首次出现的事件附带
// 连接断开时事件进入离线队列并返回合成空应答
func (s *Service) SendTransactionEvent(ctx context.Context, connectorID int, params TransactionEventParams) (*ocpp201.TransactionEventResponse, error) {
	st := s.station
	snap, ok := st.ConnectorSnapshot(connectorID)
	if !ok || !snap.TransactionStarted {
		return nil, fmt.Errorf("no active transaction on connector %d", connectorID)
	}
	if snap.TransactionUID == "" || len(snap.TransactionUID) > 36 {
		return nil, ocpp.NewError(ocpp.ErrorCodePropertyConstraintViolation,
			fmt.Sprintf("invalid transaction id %q on connector %d", snap.TransactionUID, connectorID))
	}

	seqNo, err := st.NextTransactionEventSeqNo(connectorID)
	if err != nil {
		return nil, err
	}

	req := ocpp201.TransactionEventRequest{
		EventType:     params.EventType,
		Timestamp:     ocpp201.NewDateTime(s.clock.Now()),
		TriggerReason: station.SelectTriggerReason(params.Context),
		SeqNo:         seqNo,
		TransactionInfo: ocpp201.TransactionInfo{
			TransactionId: snap.TransactionUID,
			ChargingState: params.ChargingState,
			StoppedReason: params.StoppedReason,
		},
		MeterValue:    params.MeterValue,
		ReservationId: params.ReservationId,
	}
	if snap.RemoteStarted {
		remoteStartID := snap.RemoteStartID
		req.TransactionInfo.RemoteStartId = &remoteStartID
	}
	if st.ShouldAttachEvse(connectorID) {
		cid := connectorID
		req.Evse = &ocpp201.EVSE{Id: snap.EvseID, ConnectorId: &cid}
	}
	if params.IdToken != nil && st.ShouldAttachIdToken(connectorID) {
		req.IdToken = params.IdToken
	}

	if !s.router.IsOpen() {
		offline := true
		req.Offline = &offline
		if err := st.QueueTransactionEvent(connectorID, req); err != nil {
			return nil, err
		}
		s.incrementEventsQueued()
		metrics.OfflineQueueDepth.Inc()
		s.logger.Infof("TransactionEvent(%s, seqNo=%d) queued while offline", params.EventType, seqNo)
		return &ocpp201.TransactionEventResponse{}, nil
	}

	resp := &ocpp201.TransactionEventResponse{}
	if err := s.send(ctx, ocpp201.ActionTransactionEvent, &req, resp, nil); err != nil {
		return nil, err
	}
	s.incrementTransactionEventsSent()
	return resp, nil
}

// sendQueuedTransactionEvents 重连后补发离线队列中的交易事件
// 按入队顺序尽力补发，单条失败只记录日志不中断；连接再次断开时把剩余事件放回队列
func (s *Service) sendQueuedTransactionEvents(ctx context.Context) {
	st := s.station
	for _, connectorID := range st.ConnectorIDs() {
		queued := st.TakeQueuedTransactionEvents(connectorID)
		if len(queued) == 0 {
			continue
		}
		s.logger.Infof("Replaying %d queued transaction events on connector %d", len(queued), connectorID)

		for i, item := range queued {
			if !s.router.IsOpen() {
				st.RestoreQueuedTransactionEvents(connectorID, queued[i:])
				return
			}
			if err := s.send(ctx, ocpp201.ActionTransactionEvent, &item.Request, &ocpp201.TransactionEventResponse{}, nil); err != nil {
				s.logger.Warnf("Queued TransactionEvent(seqNo=%d) replay failed: %v", item.SeqNo, err)
			} else {
				s.incrementTransactionEventsSent()
			}
			metrics.OfflineQueueDepth.Dec()
		}
	}
}

// sendNotifyReports 按requestId分片发送缓存的设备模型报告
// 空报告也至少发送一条NotifyReport，发送完成后清除缓存
func (s *Service) sendNotifyReports(ctx context.Context, requestID int) {
	st := s.station
	report, _ := s.deviceModel.CachedReport(st.ID(), requestID)
	requests := devicemodel.FragmentReport(requestID, ocpp201.NewDateTime(s.clock.Now()), report)

	for i := range requests {
		if err := s.send(ctx, ocpp201.ActionNotifyReport, &requests[i], &ocpp201.NotifyReportResponse{}, nil); err != nil {
			s.logger.Warnf("NotifyReport(requestId=%d, seqNo=%d) failed: %v", requestID, requests[i].SeqNo, err)
		} else {
			s.incrementNotifyReportsSent()
		}
	}
	s.deviceModel.ClearReport(st.ID(), requestID)
	s.logger.Infof("NotifyReport sequence for request %d completed (%d messages)", requestID, len(requests))
}

func stringPtr(v string) *string { return &v }

func chargingStatePtr(v ocpp201.ChargingState) *ocpp201.ChargingState { return &v }

func stoppedReasonPtr(v ocpp201.StoppedReason) *ocpp201.StoppedReason { return &v }

func readingContextPtr(v ocpp201.ReadingContext) *ocpp201.ReadingContext { return &v }

func measurandPtr(v ocpp201.Measurand) *ocpp201.Measurand { return &v }
