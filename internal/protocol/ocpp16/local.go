package ocpp16

import (
	"context"
	"fmt"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
)

// StartTransactionLocally 站点侧发起交易，模拟用户插枪刷卡
// connectorID为0时选首个空闲连接器，返回CSMS分配的交易ID
func (s *Service) StartTransactionLocally(ctx context.Context, connectorID int, idTag string) (int, error) {
	st := s.station

	if connectorID <= 0 {
		for _, id := range st.ConnectorIDs() {
			status, ok := st.StatusV16(id)
			if ok && status == ocpp16.ChargePointStatusAvailable && !st.HasActiveTransaction(id) {
				connectorID = id
				break
			}
		}
		if connectorID <= 0 {
			return 0, fmt.Errorf("no idle connector")
		}
	} else if !st.HasConnector(connectorID) {
		return 0, fmt.Errorf("unknown connector %d", connectorID)
	}
	if st.HasActiveTransaction(connectorID) {
		return 0, fmt.Errorf("connector %d already has a transaction", connectorID)
	}

	s.sendAndSetConnectorStatus(ctx, connectorID, ocpp16.ChargePointStatusPreparing)

	if !st.IsStationAvailable() || !st.IsConnectorAvailable(connectorID) {
		s.resetConnectorOnStartError(ctx, connectorID)
		return 0, fmt.Errorf("station or connector unavailable")
	}

	// 刷卡授权：本地白名单优先，其次在线授权
	if !st.AuthorizeLocally(connectorID, idTag) {
		st.BeginAuthorization(connectorID, idTag)
		resp, err := s.SendAuthorize(ctx, connectorID, idTag)
		if err != nil {
			s.resetConnectorOnStartError(ctx, connectorID)
			return 0, err
		}
		if resp.IdTagInfo.Status != ocpp16.AuthorizationStatusAccepted {
			s.resetConnectorOnStartError(ctx, connectorID)
			return 0, fmt.Errorf("idTag %s not authorized: %s", idTag, resp.IdTagInfo.Status)
		}
	}

	resp, err := s.SendStartTransaction(ctx, connectorID, idTag)
	if err != nil {
		s.resetConnectorOnStartError(ctx, connectorID)
		return 0, err
	}
	if resp.IdTagInfo.Status != ocpp16.AuthorizationStatusAccepted {
		return 0, fmt.Errorf("StartTransaction rejected: %s", resp.IdTagInfo.Status)
	}
	return resp.TransactionId, nil
}

// StopTransactionLocally 站点侧结束交易，模拟用户刷卡停止
// connectorID为0时结束任意一笔在途交易
func (s *Service) StopTransactionLocally(ctx context.Context, connectorID int) error {
	st := s.station

	if connectorID <= 0 {
		active := st.ActiveTransactionConnectors()
		if len(active) == 0 {
			return fmt.Errorf("no active transaction")
		}
		connectorID = active[0]
	}

	s.sendAndSetConnectorStatus(ctx, connectorID, ocpp16.ChargePointStatusFinishing)
	if !s.stopTransactionFlow(ctx, connectorID, ocpp16.ReasonLocal) {
		return fmt.Errorf("no active transaction on connector %d", connectorID)
	}
	return nil
}
