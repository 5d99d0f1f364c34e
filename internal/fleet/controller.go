package fleet

import (
	"context"
	"fmt"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	"github.com/charging-platform/station-simulator/internal/logger"
	protocol16 "github.com/charging-platform/station-simulator/internal/protocol/ocpp16"
	protocol201 "github.com/charging-platform/station-simulator/internal/protocol/ocpp201"
	"github.com/charging-platform/station-simulator/internal/station"
)

// Controller 单个站点的操作面，屏蔽协议版本差异
// 车队指令经此下发到对应协议的服务
type Controller interface {
	// StartTransaction 站点侧发起交易，connectorID为0时自动选择空闲连接器
	StartTransaction(ctx context.Context, connectorID int, idTag string) error

	// StopTransaction 站点侧结束交易，connectorID为0时结束任意在途交易
	StopTransaction(ctx context.Context, connectorID int) error

	// NotifyStatus 将连接器置为指定状态并上报StatusNotification
	NotifyStatus(ctx context.Context, connectorID int, status, errorCode string) error
}

// v16Controller 1.6站点的指令适配
type v16Controller struct {
	service *protocol16.Service
	station *station.Station
	logger  *logger.Logger
}

func newV16Controller(service *protocol16.Service, st *station.Station, log *logger.Logger) *v16Controller {
	return &v16Controller{service: service, station: st, logger: log}
}

func (c *v16Controller) StartTransaction(ctx context.Context, connectorID int, idTag string) error {
	_, err := c.service.StartTransactionLocally(ctx, connectorID, idTag)
	return err
}

func (c *v16Controller) StopTransaction(ctx context.Context, connectorID int) error {
	return c.service.StopTransactionLocally(ctx, connectorID)
}

func (c *v16Controller) NotifyStatus(ctx context.Context, connectorID int, status, errorCode string) error {
	if !c.station.HasConnector(connectorID) {
		return fmt.Errorf("unknown connector %d", connectorID)
	}

	code := ocpp16.ChargePointErrorCodeNoError
	if errorCode != "" {
		code = ocpp16.ChargePointErrorCode(errorCode)
	}
	if err := c.service.SendStatusNotification(ctx, connectorID, ocpp16.ChargePointStatus(status), code, nil); err != nil {
		return err
	}
	if err := c.station.TransitionV16(connectorID, ocpp16.ChargePointStatus(status)); err != nil {
		c.logger.Warnf("Connector %d transition to %s rejected: %v", connectorID, status, err)
	}
	return nil
}

// v201Controller 2.0.1站点的指令适配
type v201Controller struct {
	service *protocol201.Service
	station *station.Station
	logger  *logger.Logger
}

func newV201Controller(service *protocol201.Service, st *station.Station, log *logger.Logger) *v201Controller {
	return &v201Controller{service: service, station: st, logger: log}
}

func (c *v201Controller) StartTransaction(ctx context.Context, connectorID int, idTag string) error {
	// 2.0.1每个EVSE一个连接器，指令中的编号按EVSE解释
	_, err := c.service.StartTransactionLocally(ctx, connectorID, idTag)
	return err
}

func (c *v201Controller) StopTransaction(ctx context.Context, connectorID int) error {
	return c.service.StopTransactionLocally(ctx, connectorID)
}

func (c *v201Controller) NotifyStatus(ctx context.Context, connectorID int, status, errorCode string) error {
	snap, ok := c.station.ConnectorSnapshot(connectorID)
	if !ok {
		return fmt.Errorf("unknown connector %d", connectorID)
	}
	if errorCode != "" {
		c.logger.Debugf("StatusNotification errorCode %q ignored, not part of the 2.0.1 payload", errorCode)
	}

	target := ocpp201.ConnectorStatus(status)
	if err := c.service.SendStatusNotification(ctx, snap.EvseID, connectorID, target, nil); err != nil {
		return err
	}
	if err := c.station.TransitionV201(connectorID, target); err != nil {
		c.logger.Warnf("Connector %d transition to %s rejected: %v", connectorID, status, err)
	}
	return nil
}
