package station

import (
	"fmt"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
)

// TransitionError 状态机拒绝的非法状态迁移
type TransitionError struct {
	StationID   string `json:"station_id"`
	ConnectorID int    `json:"connector_id"`
	From        string `json:"from"`
	To          string `json:"to"`
}

// Error 实现error接口
func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal status transition on %s connector %d: %s -> %s",
		e.StationID, e.ConnectorID, e.From, e.To)
}

// connectorTransitionsV16 OCPP 1.6连接器状态迁移白名单
// 按1.6规范的状态迁移表推导：Faulted可从任意状态进入，也可恢复到任意非Faulted状态
var connectorTransitionsV16 = map[ocpp16.ChargePointStatus][]ocpp16.ChargePointStatus{
	ocpp16.ChargePointStatusAvailable: {
		ocpp16.ChargePointStatusPreparing,
		ocpp16.ChargePointStatusCharging,
		ocpp16.ChargePointStatusSuspendedEV,
		ocpp16.ChargePointStatusSuspendedEVSE,
		ocpp16.ChargePointStatusReserved,
		ocpp16.ChargePointStatusUnavailable,
		ocpp16.ChargePointStatusFaulted,
	},
	ocpp16.ChargePointStatusPreparing: {
		ocpp16.ChargePointStatusAvailable,
		ocpp16.ChargePointStatusCharging,
		ocpp16.ChargePointStatusSuspendedEV,
		ocpp16.ChargePointStatusSuspendedEVSE,
		ocpp16.ChargePointStatusFinishing,
		ocpp16.ChargePointStatusFaulted,
	},
	ocpp16.ChargePointStatusCharging: {
		ocpp16.ChargePointStatusAvailable,
		ocpp16.ChargePointStatusSuspendedEV,
		ocpp16.ChargePointStatusSuspendedEVSE,
		ocpp16.ChargePointStatusFinishing,
		ocpp16.ChargePointStatusUnavailable,
		ocpp16.ChargePointStatusFaulted,
	},
	ocpp16.ChargePointStatusSuspendedEV: {
		ocpp16.ChargePointStatusAvailable,
		ocpp16.ChargePointStatusCharging,
		ocpp16.ChargePointStatusSuspendedEVSE,
		ocpp16.ChargePointStatusFinishing,
		ocpp16.ChargePointStatusUnavailable,
		ocpp16.ChargePointStatusFaulted,
	},
	ocpp16.ChargePointStatusSuspendedEVSE: {
		ocpp16.ChargePointStatusAvailable,
		ocpp16.ChargePointStatusCharging,
		ocpp16.ChargePointStatusSuspendedEV,
		ocpp16.ChargePointStatusFinishing,
		ocpp16.ChargePointStatusUnavailable,
		ocpp16.ChargePointStatusFaulted,
	},
	ocpp16.ChargePointStatusFinishing: {
		ocpp16.ChargePointStatusAvailable,
		ocpp16.ChargePointStatusPreparing,
		ocpp16.ChargePointStatusUnavailable,
		ocpp16.ChargePointStatusFaulted,
	},
	ocpp16.ChargePointStatusReserved: {
		ocpp16.ChargePointStatusAvailable,
		ocpp16.ChargePointStatusPreparing,
		ocpp16.ChargePointStatusUnavailable,
		ocpp16.ChargePointStatusFaulted,
	},
	ocpp16.ChargePointStatusUnavailable: {
		ocpp16.ChargePointStatusAvailable,
		ocpp16.ChargePointStatusPreparing,
		ocpp16.ChargePointStatusCharging,
		ocpp16.ChargePointStatusSuspendedEV,
		ocpp16.ChargePointStatusSuspendedEVSE,
		ocpp16.ChargePointStatusFaulted,
	},
	ocpp16.ChargePointStatusFaulted: {
		ocpp16.ChargePointStatusAvailable,
		ocpp16.ChargePointStatusPreparing,
		ocpp16.ChargePointStatusCharging,
		ocpp16.ChargePointStatusSuspendedEV,
		ocpp16.ChargePointStatusSuspendedEVSE,
		ocpp16.ChargePointStatusFinishing,
		ocpp16.ChargePointStatusReserved,
		ocpp16.ChargePointStatusUnavailable,
	},
}

// stationTransitionsV16 站级（连接器0）状态迁移白名单，比连接器级窄
var stationTransitionsV16 = map[ocpp16.ChargePointStatus][]ocpp16.ChargePointStatus{
	ocpp16.ChargePointStatusAvailable: {
		ocpp16.ChargePointStatusUnavailable,
		ocpp16.ChargePointStatusFaulted,
	},
	ocpp16.ChargePointStatusUnavailable: {
		ocpp16.ChargePointStatusAvailable,
		ocpp16.ChargePointStatusFaulted,
	},
	ocpp16.ChargePointStatusFaulted: {
		ocpp16.ChargePointStatusAvailable,
		ocpp16.ChargePointStatusUnavailable,
	},
}

// connectorTransitionsV201 OCPP 2.0.1连接器状态迁移白名单
var connectorTransitionsV201 = map[ocpp201.ConnectorStatus][]ocpp201.ConnectorStatus{
	ocpp201.ConnectorStatusAvailable: {
		ocpp201.ConnectorStatusOccupied,
		ocpp201.ConnectorStatusReserved,
		ocpp201.ConnectorStatusUnavailable,
		ocpp201.ConnectorStatusFaulted,
	},
	ocpp201.ConnectorStatusOccupied: {
		ocpp201.ConnectorStatusAvailable,
		ocpp201.ConnectorStatusUnavailable,
		ocpp201.ConnectorStatusFaulted,
	},
	ocpp201.ConnectorStatusReserved: {
		ocpp201.ConnectorStatusAvailable,
		ocpp201.ConnectorStatusOccupied,
		ocpp201.ConnectorStatusUnavailable,
		ocpp201.ConnectorStatusFaulted,
	},
	ocpp201.ConnectorStatusUnavailable: {
		ocpp201.ConnectorStatusAvailable,
		ocpp201.ConnectorStatusOccupied,
		ocpp201.ConnectorStatusReserved,
		ocpp201.ConnectorStatusFaulted,
	},
	ocpp201.ConnectorStatusFaulted: {
		ocpp201.ConnectorStatusAvailable,
		ocpp201.ConnectorStatusOccupied,
		ocpp201.ConnectorStatusReserved,
		ocpp201.ConnectorStatusUnavailable,
	},
}

// stationTransitionsV201 2.0.1站级状态迁移白名单
var stationTransitionsV201 = map[ocpp201.ConnectorStatus][]ocpp201.ConnectorStatus{
	ocpp201.ConnectorStatusAvailable: {
		ocpp201.ConnectorStatusUnavailable,
		ocpp201.ConnectorStatusFaulted,
	},
	ocpp201.ConnectorStatusUnavailable: {
		ocpp201.ConnectorStatusAvailable,
		ocpp201.ConnectorStatusFaulted,
	},
	ocpp201.ConnectorStatusFaulted: {
		ocpp201.ConnectorStatusAvailable,
		ocpp201.ConnectorStatusUnavailable,
	},
}

// IsValidTransitionV16 判断1.6状态迁移是否合法，connectorID为0时使用站级白名单
func IsValidTransitionV16(connectorID int, from, to ocpp16.ChargePointStatus) bool {
	table := connectorTransitionsV16
	if connectorID == 0 {
		table = stationTransitionsV16
	}
	for _, allowed := range table[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsValidTransitionV201 判断2.0.1状态迁移是否合法，connectorID为0时使用站级白名单
func IsValidTransitionV201(connectorID int, from, to ocpp201.ConnectorStatus) bool {
	table := connectorTransitionsV201
	if connectorID == 0 {
		table = stationTransitionsV201
	}
	for _, allowed := range table[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
