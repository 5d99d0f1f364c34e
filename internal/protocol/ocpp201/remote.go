package ocpp201

import (
	"context"

	"github.com/google/uuid"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	"github.com/charging-platform/station-simulator/internal/metrics"
	"github.com/charging-platform/station-simulator/internal/station"
	"github.com/charging-platform/station-simulator/internal/transport/router"
)

// handleRequestStartTransaction 远程启动交易
// 流程：EVSE定位 -> 空闲连接器挑选 -> 授权 -> 预存TxProfile -> 落地交易 -> 置Occupied -> TransactionEvent(Started)
// 交易落地后的任一步失败都回滚到Available并应答Rejected
func (s *Service) handleRequestStartTransaction(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp201.RequestStartTransactionRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	st := s.station
	if req.EvseId == nil {
		s.logger.Warn("Remote start without evseId rejected")
		return s.rejectRequestStart("evseId is required"), nil
	}
	evseID := *req.EvseId
	if !st.HasEvse(evseID) {
		s.logger.Warnf("Remote start on unknown EVSE %d rejected", evseID)
		return s.rejectRequestStart("unknown EVSE"), nil
	}

	connectorID, ok := s.pickIdleConnector(evseID)
	if !ok {
		s.logger.Warnf("Remote start on EVSE %d rejected, no idle connector", evseID)
		return s.rejectRequestStart("no available connector on EVSE"), nil
	}

	if st.AuthorizeRemoteTxRequests() {
		if !st.AuthorizeLocally(connectorID, req.IdToken.IdToken) {
			s.logger.Warnf("Remote start with unauthorized idToken %s rejected", req.IdToken.IdToken)
			return s.rejectRequestStart("idToken not authorized"), nil
		}
		// 组令牌也必须通过授权
		if req.GroupIdToken != nil && !s.tagAuthorized(req.GroupIdToken.IdToken) {
			s.logger.Warnf("Remote start with unauthorized groupIdToken %s rejected", req.GroupIdToken.IdToken)
			return s.rejectRequestStart("groupIdToken not authorized"), nil
		}
	}

	if req.ChargingProfile != nil {
		if req.ChargingProfile.ChargingProfilePurpose != ocpp201.ChargingProfilePurposeTxProfile {
			return s.rejectRequestStart("charging profile purpose must be TxProfile"), nil
		}
		if err := st.SetChargingProfileV201(evseID, *req.ChargingProfile); err != nil {
			return s.rejectRequestStart(err.Error()), nil
		}
	}

	transactionUID := uuid.NewString()
	if err := st.BeginTransactionV201(connectorID, transactionUID, req.IdToken.IdToken, req.RemoteStartId, s.clock.Now()); err != nil {
		s.logger.ErrorWithErr(err, "Failed to begin transaction")
		return s.rejectRequestStart(err.Error()), nil
	}

	s.sendAndSetConnectorStatus(ctx, connectorID, ocpp201.ConnectorStatusOccupied)

	idToken := req.IdToken
	if _, err := s.SendTransactionEvent(ctx, connectorID, TransactionEventParams{
		EventType:     ocpp201.TransactionEventTypeStarted,
		Context:       station.EventContext{RemoteCommand: station.RemoteCommandRequestStart},
		IdToken:       &idToken,
		ChargingState: chargingStatePtr(ocpp201.ChargingStateCharging),
		MeterValue:    []ocpp201.MeterValue{s.buildEnergyMeterValue(connectorID, ocpp201.ReadingContextTransactionBegin)},
	}); err != nil {
		s.logger.ErrorWithErr(err, "TransactionEvent(Started) failed")
		s.rollbackRequestStart(ctx, connectorID)
		return s.rejectRequestStart("failed to emit TransactionEvent(Started)"), nil
	}

	st.IncrementPowerDivider()
	s.startMeterTask(connectorID)
	metrics.ActiveTransactions.Inc()

	s.logger.Infof("Remote start accepted on connector %d (transaction %s)", connectorID, transactionUID)
	return &ocpp201.RequestStartTransactionResponse{
		Status:        ocpp201.RequestStartStopStatusAccepted,
		TransactionId: stringPtr(transactionUID),
	}, nil
}

// pickIdleConnector 在EVSE内挑选首个可用且无交易的连接器
func (s *Service) pickIdleConnector(evseID int) (int, bool) {
	st := s.station
	for _, connectorID := range st.EvseConnectorIDs(evseID) {
		if st.HasActiveTransaction(connectorID) {
			continue
		}
		if status, ok := st.StatusV201(connectorID); ok && status == ocpp201.ConnectorStatusAvailable {
			return connectorID, true
		}
	}
	return 0, false
}

// tagAuthorized 令牌是否被本地名单或授权缓存认可
func (s *Service) tagAuthorized(idTag string) bool {
	st := s.station
	if st.LocalAuthListEnabled() && st.IsTagInLocalList(idTag) {
		return true
	}
	return st.AuthCache().IsAuthorized(idTag)
}

func (s *Service) rejectRequestStart(reason string) *ocpp201.RequestStartTransactionResponse {
	return &ocpp201.RequestStartTransactionResponse{
		Status:     ocpp201.RequestStartStopStatusRejected,
		StatusInfo: &ocpp201.StatusInfo{ReasonCode: "Rejected", AdditionalInfo: stringPtr(reason)},
	}
}

// rollbackRequestStart 远程启动失败的回滚：清交易现场并回到Available
func (s *Service) rollbackRequestStart(ctx context.Context, connectorID int) {
	s.stopMeterTask(connectorID)

	st := s.station
	st.ClearTransaction(connectorID)
	if status, ok := st.StatusV201(connectorID); ok && status != ocpp201.ConnectorStatusAvailable {
		s.sendAndSetConnectorStatus(ctx, connectorID, ocpp201.ConnectorStatusAvailable)
	}
}

// handleRequestStopTransaction 远程停止交易
// 按transactionId定位连接器并以Remote原因结清
func (s *Service) handleRequestStopTransaction(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp201.RequestStopTransactionRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	connectorID, found := s.station.ConnectorIDByTransactionUID(req.TransactionId)
	if !found {
		s.logger.Warnf("Remote stop for unknown transaction %s rejected", req.TransactionId)
		return &ocpp201.RequestStopTransactionResponse{Status: ocpp201.RequestStartStopStatusRejected}, nil
	}

	if !s.stopTransactionFlow(ctx, connectorID, ocpp201.StoppedReasonRemote,
		station.EventContext{RemoteCommand: station.RemoteCommandRequestStop}) {
		return &ocpp201.RequestStopTransactionResponse{Status: ocpp201.RequestStartStopStatusRejected}, nil
	}

	s.logger.Infof("Remote stop accepted for transaction %s on connector %d", req.TransactionId, connectorID)
	return &ocpp201.RequestStopTransactionResponse{Status: ocpp201.RequestStartStopStatusAccepted}, nil
}

// stopTransactionFlow 结清连接器上的交易
// 先发TransactionEvent(Ended)（离线时排队），再落地结束并恢复连接器状态
func (s *Service) stopTransactionFlow(ctx context.Context, connectorID int, reason ocpp201.StoppedReason, evctx station.EventContext) bool {
	st := s.station
	if !st.HasActiveTransaction(connectorID) {
		return false
	}

	if _, err := s.SendTransactionEvent(ctx, connectorID, TransactionEventParams{
		EventType:     ocpp201.TransactionEventTypeEnded,
		Context:       evctx,
		ChargingState: chargingStatePtr(ocpp201.ChargingStateIdle),
		StoppedReason: stoppedReasonPtr(reason),
		MeterValue:    []ocpp201.MeterValue{s.buildEnergyMeterValue(connectorID, ocpp201.ReadingContextTransactionEnd)},
	}); err != nil {
		s.logger.ErrorWithErr(err, "TransactionEvent(Ended) failed")
	}

	transactionUID, energy, err := st.EndTransactionV201(connectorID, reason, s.clock.Now())
	if err != nil {
		s.logger.ErrorWithErr(err, "Failed to end transaction")
		return false
	}

	s.stopMeterTask(connectorID)
	st.DecrementPowerDivider()
	metrics.ActiveTransactions.Dec()

	target := ocpp201.ConnectorStatusAvailable
	if !st.IsStationAvailable() || !st.IsConnectorAvailable(connectorID) {
		target = ocpp201.ConnectorStatusUnavailable
	}
	s.sendAndSetConnectorStatus(ctx, connectorID, target)
	s.logger.Infof("Transaction %s stopped on connector %d (%s, %dWh)", transactionUID, connectorID, reason, energy)
	return true
}

// buildEnergyMeterValue 电量累计值读数
func (s *Service) buildEnergyMeterValue(connectorID int, readingContext ocpp201.ReadingContext) ocpp201.MeterValue {
	register, _ := s.station.MeterRegister(connectorID)
	wh := "Wh"
	return ocpp201.MeterValue{
		Timestamp: ocpp201.NewDateTime(s.clock.Now()),
		SampledValue: []ocpp201.SampledValue{{
			Value:         float64(register),
			Context:       readingContextPtr(readingContext),
			Measurand:     measurandPtr(ocpp201.MeasurandEnergyActiveImportRegister),
			UnitOfMeasure: &ocpp201.UnitOfMeasure{Unit: &wh},
		}},
	}
}
