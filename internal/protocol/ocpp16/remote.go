package ocpp16

import (
	"context"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-simulator/internal/transport/router"
)

// handleRemoteStartTransaction 远程启动交易
// 流程：置Preparing -> 可用性检查 -> 授权 -> 预存TxProfile -> StartTransaction
// 任一步失败都回滚到Available并应答Rejected
func (s *Service) handleRemoteStartTransaction(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.RemoteStartTransactionRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	st := s.station
	if req.ConnectorId == nil {
		s.logger.Warn("Remote start without connectorId rejected")
		return &ocpp16.RemoteStartTransactionResponse{Status: ocpp16.RemoteStartStopStatusRejected}, nil
	}
	connectorID := *req.ConnectorId
	if connectorID == 0 || !st.HasConnector(connectorID) {
		s.logger.Warnf("Remote start on unknown connector %d rejected", connectorID)
		return &ocpp16.RemoteStartTransactionResponse{Status: ocpp16.RemoteStartStopStatusRejected}, nil
	}

	s.sendAndSetConnectorStatus(ctx, connectorID, ocpp16.ChargePointStatusPreparing)

	if !st.IsStationAvailable() || !st.IsConnectorAvailable(connectorID) {
		return s.rejectRemoteStart(ctx, connectorID, "station or connector unavailable")
	}

	if st.AuthorizeRemoteTxRequests() {
		authorized := false
		switch {
		case st.AuthorizeLocally(connectorID, req.IdTag):
			authorized = true
		case st.RemoteAuthorization():
			st.BeginAuthorization(connectorID, req.IdTag)
			resp, err := s.SendAuthorize(ctx, connectorID, req.IdTag)
			if err != nil {
				s.logger.Warnf("Authorize for remote start failed: %v", err)
			} else {
				authorized = resp.IdTagInfo.Status == ocpp16.AuthorizationStatusAccepted
			}
		default:
			s.logger.Warnf("Authorization of idTag %s required but both local and remote authorization are disabled", req.IdTag)
		}
		if !authorized {
			return s.rejectRemoteStart(ctx, connectorID, "idTag "+req.IdTag+" not authorized")
		}
	}

	if req.ChargingProfile != nil {
		if req.ChargingProfile.ChargingProfilePurpose != ocpp16.ChargingProfilePurposeTxProfile {
			return s.rejectRemoteStart(ctx, connectorID, "charging profile purpose must be TxProfile")
		}
		if err := st.SetRemoteStartProfileV16(connectorID, *req.ChargingProfile); err != nil {
			return s.rejectRemoteStart(ctx, connectorID, err.Error())
		}
	}

	st.MarkRemoteStarted(connectorID, 0)

	resp, err := s.SendStartTransaction(ctx, connectorID, req.IdTag)
	if err != nil {
		return s.rejectRemoteStart(ctx, connectorID, err.Error())
	}
	if resp.IdTagInfo.Status != ocpp16.AuthorizationStatusAccepted {
		return s.rejectRemoteStart(ctx, connectorID, "StartTransaction not accepted")
	}

	s.logger.Infof("Remote start accepted on connector %d (transaction %d)", connectorID, resp.TransactionId)
	return &ocpp16.RemoteStartTransactionResponse{Status: ocpp16.RemoteStartStopStatusAccepted}, nil
}

// rejectRemoteStart 回滚远程启动：状态回到Available并应答Rejected
func (s *Service) rejectRemoteStart(ctx context.Context, connectorID int, reason string) (interface{}, error) {
	s.logger.Warnf("Remote start on connector %d rejected: %s", connectorID, reason)
	if status, ok := s.station.StatusV16(connectorID); ok && status != ocpp16.ChargePointStatusAvailable {
		s.sendAndSetConnectorStatus(ctx, connectorID, ocpp16.ChargePointStatusAvailable)
	}
	return &ocpp16.RemoteStartTransactionResponse{Status: ocpp16.RemoteStartStopStatusRejected}, nil
}

// handleRemoteStopTransaction 远程停止交易
// 按transactionId定位连接器，置Finishing后以Remote原因停止
func (s *Service) handleRemoteStopTransaction(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp16.RemoteStopTransactionRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	connectorID, found := s.station.ConnectorIDByTransaction(req.TransactionId)
	if !found {
		s.logger.Warnf("Remote stop for unknown transaction %d rejected", req.TransactionId)
		return &ocpp16.RemoteStopTransactionResponse{Status: ocpp16.RemoteStartStopStatusRejected}, nil
	}

	s.sendAndSetConnectorStatus(ctx, connectorID, ocpp16.ChargePointStatusFinishing)

	if !s.stopTransactionFlow(ctx, connectorID, ocpp16.ReasonRemote) {
		return &ocpp16.RemoteStopTransactionResponse{Status: ocpp16.RemoteStartStopStatusRejected}, nil
	}
	s.logger.Infof("Remote stop accepted for transaction %d on connector %d", req.TransactionId, connectorID)
	return &ocpp16.RemoteStopTransactionResponse{Status: ocpp16.RemoteStartStopStatusAccepted}, nil
}
