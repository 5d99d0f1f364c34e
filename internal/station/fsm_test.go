package station

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
)

func TestIsValidTransitionV16_Connector(t *testing.T) {
	tests := []struct {
		name  string
		from  ocpp16.ChargePointStatus
		to    ocpp16.ChargePointStatus
		valid bool
	}{
		{"Available到Preparing", ocpp16.ChargePointStatusAvailable, ocpp16.ChargePointStatusPreparing, true},
		{"Available到Charging", ocpp16.ChargePointStatusAvailable, ocpp16.ChargePointStatusCharging, true},
		{"Available到Reserved", ocpp16.ChargePointStatusAvailable, ocpp16.ChargePointStatusReserved, true},
		{"Available到Finishing非法", ocpp16.ChargePointStatusAvailable, ocpp16.ChargePointStatusFinishing, false},
		{"Preparing到Charging", ocpp16.ChargePointStatusPreparing, ocpp16.ChargePointStatusCharging, true},
		{"Preparing到Reserved非法", ocpp16.ChargePointStatusPreparing, ocpp16.ChargePointStatusReserved, false},
		{"Charging到Finishing", ocpp16.ChargePointStatusCharging, ocpp16.ChargePointStatusFinishing, true},
		{"Charging到SuspendedEV", ocpp16.ChargePointStatusCharging, ocpp16.ChargePointStatusSuspendedEV, true},
		{"Charging到Preparing非法", ocpp16.ChargePointStatusCharging, ocpp16.ChargePointStatusPreparing, false},
		{"Charging到Reserved非法", ocpp16.ChargePointStatusCharging, ocpp16.ChargePointStatusReserved, false},
		{"SuspendedEV到Charging", ocpp16.ChargePointStatusSuspendedEV, ocpp16.ChargePointStatusCharging, true},
		{"SuspendedEVSE到SuspendedEV", ocpp16.ChargePointStatusSuspendedEVSE, ocpp16.ChargePointStatusSuspendedEV, true},
		{"Finishing到Available", ocpp16.ChargePointStatusFinishing, ocpp16.ChargePointStatusAvailable, true},
		{"Finishing到Charging非法", ocpp16.ChargePointStatusFinishing, ocpp16.ChargePointStatusCharging, false},
		{"Reserved到Preparing", ocpp16.ChargePointStatusReserved, ocpp16.ChargePointStatusPreparing, true},
		{"Reserved到Charging非法", ocpp16.ChargePointStatusReserved, ocpp16.ChargePointStatusCharging, false},
		{"Unavailable到Available", ocpp16.ChargePointStatusUnavailable, ocpp16.ChargePointStatusAvailable, true},
		{"Unavailable到Charging", ocpp16.ChargePointStatusUnavailable, ocpp16.ChargePointStatusCharging, true},
		{"Unavailable到Reserved非法", ocpp16.ChargePointStatusUnavailable, ocpp16.ChargePointStatusReserved, false},
		// Faulted从任意状态可达，恢复到任意非Faulted状态
		{"Available到Faulted", ocpp16.ChargePointStatusAvailable, ocpp16.ChargePointStatusFaulted, true},
		{"Charging到Faulted", ocpp16.ChargePointStatusCharging, ocpp16.ChargePointStatusFaulted, true},
		{"Faulted恢复到Available", ocpp16.ChargePointStatusFaulted, ocpp16.ChargePointStatusAvailable, true},
		{"Faulted恢复到Charging", ocpp16.ChargePointStatusFaulted, ocpp16.ChargePointStatusCharging, true},
		{"Faulted自环非法", ocpp16.ChargePointStatusFaulted, ocpp16.ChargePointStatusFaulted, false},
		{"同状态自环非法", ocpp16.ChargePointStatusAvailable, ocpp16.ChargePointStatusAvailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidTransitionV16(1, tt.from, tt.to))
		})
	}
}

func TestIsValidTransitionV16_Station(t *testing.T) {
	tests := []struct {
		name  string
		from  ocpp16.ChargePointStatus
		to    ocpp16.ChargePointStatus
		valid bool
	}{
		{"Available到Unavailable", ocpp16.ChargePointStatusAvailable, ocpp16.ChargePointStatusUnavailable, true},
		{"Unavailable到Available", ocpp16.ChargePointStatusUnavailable, ocpp16.ChargePointStatusAvailable, true},
		{"Available到Faulted", ocpp16.ChargePointStatusAvailable, ocpp16.ChargePointStatusFaulted, true},
		{"Faulted到Unavailable", ocpp16.ChargePointStatusFaulted, ocpp16.ChargePointStatusUnavailable, true},
		{"Available到Charging非法", ocpp16.ChargePointStatusAvailable, ocpp16.ChargePointStatusCharging, false},
		{"Available到Preparing非法", ocpp16.ChargePointStatusAvailable, ocpp16.ChargePointStatusPreparing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidTransitionV16(0, tt.from, tt.to))
		})
	}
}

func TestIsValidTransitionV201(t *testing.T) {
	tests := []struct {
		name        string
		connectorID int
		from        ocpp201.ConnectorStatus
		to          ocpp201.ConnectorStatus
		valid       bool
	}{
		{"Available到Occupied", 1, ocpp201.ConnectorStatusAvailable, ocpp201.ConnectorStatusOccupied, true},
		{"Available到Reserved", 1, ocpp201.ConnectorStatusAvailable, ocpp201.ConnectorStatusReserved, true},
		{"Occupied到Available", 1, ocpp201.ConnectorStatusOccupied, ocpp201.ConnectorStatusAvailable, true},
		{"Occupied到Reserved非法", 1, ocpp201.ConnectorStatusOccupied, ocpp201.ConnectorStatusReserved, false},
		{"Reserved到Occupied", 1, ocpp201.ConnectorStatusReserved, ocpp201.ConnectorStatusOccupied, true},
		{"Faulted恢复到Available", 1, ocpp201.ConnectorStatusFaulted, ocpp201.ConnectorStatusAvailable, true},
		{"自环非法", 1, ocpp201.ConnectorStatusAvailable, ocpp201.ConnectorStatusAvailable, false},
		{"站点级Available到Unavailable", 0, ocpp201.ConnectorStatusAvailable, ocpp201.ConnectorStatusUnavailable, true},
		{"站点级Available到Occupied非法", 0, ocpp201.ConnectorStatusAvailable, ocpp201.ConnectorStatusOccupied, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidTransitionV201(tt.connectorID, tt.from, tt.to))
		})
	}
}

func TestTransitionError_Message(t *testing.T) {
	err := &TransitionError{StationID: "CP-1", ConnectorID: 2, From: "Charging", To: "Reserved"}
	assert.Contains(t, err.Error(), "CP-1")
	assert.Contains(t, err.Error(), "Charging")
	assert.Contains(t, err.Error(), "Reserved")
}
