package ocpp201

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	"github.com/charging-platform/station-simulator/internal/metrics"
	"github.com/charging-platform/station-simulator/internal/station"
)

// StartTransactionLocally 站点侧发起交易，模拟用户插枪刷卡
// evseID为0时选首个有空闲连接器的EVSE，返回交易标识
func (s *Service) StartTransactionLocally(ctx context.Context, evseID int, idTag string) (string, error) {
	st := s.station

	if evseID <= 0 {
		for _, id := range st.EvseIDs() {
			if _, ok := s.pickIdleConnector(id); ok {
				evseID = id
				break
			}
		}
		if evseID <= 0 {
			return "", fmt.Errorf("no idle connector on any EVSE")
		}
	} else if !st.HasEvse(evseID) {
		return "", fmt.Errorf("unknown EVSE %d", evseID)
	}

	connectorID, ok := s.pickIdleConnector(evseID)
	if !ok {
		return "", fmt.Errorf("no idle connector on EVSE %d", evseID)
	}

	transactionUID := uuid.NewString()
	if err := st.BeginTransactionV201(connectorID, transactionUID, idTag, 0, s.clock.Now()); err != nil {
		return "", err
	}

	s.sendAndSetConnectorStatus(ctx, connectorID, ocpp201.ConnectorStatusOccupied)

	idToken := ocpp201.IdToken{IdToken: idTag, Type: ocpp201.IdTokenTypeISO14443}
	if _, err := s.SendTransactionEvent(ctx, connectorID, TransactionEventParams{
		EventType: ocpp201.TransactionEventTypeStarted,
		Context: station.EventContext{
			LocalAuthorization: station.LocalAuthAuthorized,
			CableAction:        station.CableActionPluggedIn,
		},
		IdToken:       &idToken,
		ChargingState: chargingStatePtr(ocpp201.ChargingStateCharging),
		MeterValue:    []ocpp201.MeterValue{s.buildEnergyMeterValue(connectorID, ocpp201.ReadingContextTransactionBegin)},
	}); err != nil {
		s.logger.ErrorWithErr(err, "TransactionEvent(Started) failed")
		s.rollbackRequestStart(ctx, connectorID)
		return "", err
	}

	st.IncrementPowerDivider()
	s.startMeterTask(connectorID)
	metrics.ActiveTransactions.Inc()

	s.logger.Infof("Local transaction %s started on connector %d", transactionUID, connectorID)
	return transactionUID, nil
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

	if !s.stopTransactionFlow(ctx, connectorID, ocpp201.StoppedReasonLocal,
		station.EventContext{LocalAuthorization: station.LocalAuthStopAuthorized}) {
		return fmt.Errorf("no active transaction on connector %d", connectorID)
	}
	return nil
}
