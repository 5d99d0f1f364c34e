package ocpp16

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-simulator/internal/station"
)

// statusOf 解码一条StatusNotification记录
func statusOf(t *testing.T, call recordedCall) ocpp16.ChargePointStatus {
	t.Helper()
	var req ocpp16.StatusNotificationRequest
	require.NoError(t, json.Unmarshal(call.Payload, &req))
	return req.Status
}

func TestRemoteStart_LocalAuthList(t *testing.T) {
	h := newTestService(t, func(c *station.Config) {
		c.LocalAuthTags = []string{"TAG-1"}
	}, nil)
	h.register(t)

	h.router.deliver(t, "RemoteStartTransaction", `{"connectorId":1,"idTag":"TAG-1"}`)

	var resp ocpp16.RemoteStartTransactionResponse
	resultAs(t, h.router, &resp)
	assert.Equal(t, ocpp16.RemoteStartStopStatusAccepted, resp.Status)

	// 本地白名单命中，不需要Authorize往返
	assert.Equal(t, []string{"StatusNotification", "StartTransaction", "StatusNotification"}, h.router.actions())

	notifications := h.router.callsFor("StatusNotification")
	assert.Equal(t, ocpp16.ChargePointStatusPreparing, statusOf(t, notifications[0]))
	assert.Equal(t, ocpp16.ChargePointStatusCharging, statusOf(t, notifications[1]))

	snap, ok := h.station.ConnectorSnapshot(1)
	require.True(t, ok)
	assert.True(t, snap.TransactionStarted)
	assert.True(t, snap.IdTagLocalAuthorized)
	assert.Equal(t, "TAG-1", snap.LocalAuthorizeIdTag)
	assert.True(t, snap.RemoteStarted)
	assert.Equal(t, ocpp16.ChargePointStatusCharging, snap.Status16)
}

func TestRemoteStart_RemoteAuthorization(t *testing.T) {
	h := newTestService(t, nil, nil)
	h.register(t)

	// 标签不在本地白名单，走Authorize远程授权
	h.router.deliver(t, "RemoteStartTransaction", `{"connectorId":1,"idTag":"TAG-7"}`)

	var resp ocpp16.RemoteStartTransactionResponse
	resultAs(t, h.router, &resp)
	assert.Equal(t, ocpp16.RemoteStartStopStatusAccepted, resp.Status)

	assert.Equal(t, []string{"StatusNotification", "Authorize", "StartTransaction", "StatusNotification"}, h.router.actions())
	assert.True(t, h.station.AuthCache().IsAuthorized("TAG-7"))

	snap, _ := h.station.ConnectorSnapshot(1)
	assert.True(t, snap.TransactionStarted)
	assert.True(t, snap.IdTagAuthorized)
}

func TestRemoteStart_UnauthorizedTagRejected(t *testing.T) {
	h := newTestService(t, func(c *station.Config) {
		c.LocalAuthTags = []string{"TAG-1"}
		c.RemoteAuthorization = false
	}, nil)
	h.register(t)

	h.router.deliver(t, "RemoteStartTransaction", `{"connectorId":1,"idTag":"TAG-X"}`)

	var resp ocpp16.RemoteStartTransactionResponse
	resultAs(t, h.router, &resp)
	assert.Equal(t, ocpp16.RemoteStartStopStatusRejected, resp.Status)

	// Preparing后回退Available，不发Authorize和StartTransaction
	assert.Equal(t, []string{"StatusNotification", "StatusNotification"}, h.router.actions())

	notifications := h.router.callsFor("StatusNotification")
	assert.Equal(t, ocpp16.ChargePointStatusPreparing, statusOf(t, notifications[0]))
	assert.Equal(t, ocpp16.ChargePointStatusAvailable, statusOf(t, notifications[1]))

	assert.False(t, h.station.HasActiveTransaction(1))
	snap, _ := h.station.ConnectorSnapshot(1)
	assert.Equal(t, ocpp16.ChargePointStatusAvailable, snap.Status16)
}

func TestRemoteStart_AuthorizeRejected(t *testing.T) {
	h := newTestService(t, nil, nil)
	h.register(t)
	h.router.setRespond(func(action string, payload json.RawMessage) (interface{}, error) {
		if action == "Authorize" {
			return map[string]interface{}{"idTagInfo": map[string]interface{}{"status": "Invalid"}}, nil
		}
		return nil, nil
	})

	h.router.deliver(t, "RemoteStartTransaction", `{"connectorId":1,"idTag":"TAG-X"}`)

	var resp ocpp16.RemoteStartTransactionResponse
	resultAs(t, h.router, &resp)
	assert.Equal(t, ocpp16.RemoteStartStopStatusRejected, resp.Status)

	assert.Equal(t, []string{"StatusNotification", "Authorize", "StatusNotification"}, h.router.actions())
	assert.Equal(t, 0, h.router.callCount("StartTransaction"))
	assert.False(t, h.station.AuthCache().IsAuthorized("TAG-X"))
}

func TestRemoteStart_MissingConnectorId(t *testing.T) {
	h := newTestService(t, nil, nil)
	h.register(t)

	h.router.deliver(t, "RemoteStartTransaction", `{"idTag":"TAG-1"}`)

	var resp ocpp16.RemoteStartTransactionResponse
	resultAs(t, h.router, &resp)
	assert.Equal(t, ocpp16.RemoteStartStopStatusRejected, resp.Status)
	assert.Empty(t, h.router.actions())
}

func TestRemoteStart_UnknownConnector(t *testing.T) {
	h := newTestService(t, nil, nil)
	h.register(t)

	h.router.deliver(t, "RemoteStartTransaction", `{"connectorId":9,"idTag":"TAG-1"}`)

	var resp ocpp16.RemoteStartTransactionResponse
	resultAs(t, h.router, &resp)
	assert.Equal(t, ocpp16.RemoteStartStopStatusRejected, resp.Status)
	assert.Empty(t, h.router.actions())
}

func TestRemoteStart_InoperativeConnector(t *testing.T) {
	h := newTestService(t, nil, nil)
	h.register(t)
	require.NoError(t, h.station.SetAvailability(1, station.AvailabilityInoperative))

	h.router.deliver(t, "RemoteStartTransaction", `{"connectorId":1,"idTag":"TAG-1"}`)

	var resp ocpp16.RemoteStartTransactionResponse
	resultAs(t, h.router, &resp)
	assert.Equal(t, ocpp16.RemoteStartStopStatusRejected, resp.Status)

	assert.Equal(t, []string{"StatusNotification", "StatusNotification"}, h.router.actions())
	assert.Equal(t, 0, h.router.callCount("StartTransaction"))
	assert.False(t, h.station.HasActiveTransaction(1))
}

func TestRemoteStart_WithTxProfile(t *testing.T) {
	h := newTestService(t, nil, nil)
	h.register(t)

	payload := `{
		"connectorId": 1,
		"idTag": "TAG-1",
		"chargingProfile": {
			"chargingProfileId": 11,
			"stackLevel": 0,
			"chargingProfilePurpose": "TxProfile",
			"chargingProfileKind": "Relative",
			"chargingSchedule": {
				"chargingRateUnit": "A",
				"chargingSchedulePeriod": [{"startPeriod": 0, "limit": 16}]
			}
		}
	}`
	h.router.deliver(t, "RemoteStartTransaction", payload)

	var resp ocpp16.RemoteStartTransactionResponse
	resultAs(t, h.router, &resp)
	assert.Equal(t, ocpp16.RemoteStartStopStatusAccepted, resp.Status)

	profiles := h.station.ChargingProfilesV16(1)
	require.Len(t, profiles, 1)
	assert.Equal(t, 11, profiles[0].ChargingProfileId)
	assert.Equal(t, ocpp16.ChargingProfilePurposeTxProfile, profiles[0].ChargingProfilePurpose)
}

func TestRemoteStart_WrongProfilePurposeRejected(t *testing.T) {
	h := newTestService(t, nil, nil)
	h.register(t)

	payload := `{
		"connectorId": 1,
		"idTag": "TAG-1",
		"chargingProfile": {
			"chargingProfileId": 12,
			"stackLevel": 0,
			"chargingProfilePurpose": "TxDefaultProfile",
			"chargingProfileKind": "Relative",
			"chargingSchedule": {
				"chargingRateUnit": "A",
				"chargingSchedulePeriod": [{"startPeriod": 0, "limit": 16}]
			}
		}
	}`
	h.router.deliver(t, "RemoteStartTransaction", payload)

	var resp ocpp16.RemoteStartTransactionResponse
	resultAs(t, h.router, &resp)
	assert.Equal(t, ocpp16.RemoteStartStopStatusRejected, resp.Status)

	// 授权通过后因配置文件用途不符而回退
	assert.Equal(t, []string{"StatusNotification", "Authorize", "StatusNotification"}, h.router.actions())
	assert.False(t, h.station.HasActiveTransaction(1))
	assert.Empty(t, h.station.ChargingProfilesV16(1))
}

func TestRemoteStop(t *testing.T) {
	h := newTestService(t, nil, nil)
	h.register(t)

	_, err := h.service.SendStartTransaction(context.Background(), 1, "TAG-1")
	require.NoError(t, err)

	h.router.deliver(t, "RemoteStopTransaction", `{"transactionId":7001}`)

	var resp ocpp16.RemoteStopTransactionResponse
	resultAs(t, h.router, &resp)
	assert.Equal(t, ocpp16.RemoteStartStopStatusAccepted, resp.Status)

	// Finishing -> StopTransaction(Remote) -> Available
	assert.Equal(t, []string{
		"StartTransaction",
		"StatusNotification",
		"StatusNotification",
		"StopTransaction",
		"StatusNotification",
	}, h.router.actions())

	notifications := h.router.callsFor("StatusNotification")
	assert.Equal(t, ocpp16.ChargePointStatusFinishing, statusOf(t, notifications[1]))
	assert.Equal(t, ocpp16.ChargePointStatusAvailable, statusOf(t, notifications[2]))

	var stop ocpp16.StopTransactionRequest
	require.NoError(t, json.Unmarshal(h.router.callsFor("StopTransaction")[0].Payload, &stop))
	assert.Equal(t, 7001, stop.TransactionId)
	require.NotNil(t, stop.Reason)
	assert.Equal(t, ocpp16.ReasonRemote, *stop.Reason)

	assert.False(t, h.station.HasActiveTransaction(1))
	snap, _ := h.station.ConnectorSnapshot(1)
	assert.Equal(t, ocpp16.ChargePointStatusAvailable, snap.Status16)
}

func TestRemoteStop_UnknownTransaction(t *testing.T) {
	h := newTestService(t, nil, nil)
	h.register(t)

	h.router.deliver(t, "RemoteStopTransaction", `{"transactionId":999}`)

	var resp ocpp16.RemoteStopTransactionResponse
	resultAs(t, h.router, &resp)
	assert.Equal(t, ocpp16.RemoteStartStopStatusRejected, resp.Status)
	assert.Empty(t, h.router.actions())
}

func TestRemoteStart_ReservedConnectorConsumesReservation(t *testing.T) {
	h := newTestService(t, nil, nil)
	h.register(t)

	require.NoError(t, h.station.Reserve(1, 77, "TAG-1", time.Now().Add(time.Hour)))

	h.router.deliver(t, "RemoteStartTransaction", `{"connectorId":1,"idTag":"TAG-1"}`)

	var resp ocpp16.RemoteStartTransactionResponse
	resultAs(t, h.router, &resp)
	assert.Equal(t, ocpp16.RemoteStartStopStatusAccepted, resp.Status)

	var req ocpp16.StartTransactionRequest
	require.NoError(t, json.Unmarshal(h.router.callsFor("StartTransaction")[0].Payload, &req))
	require.NotNil(t, req.ReservationId)
	assert.Equal(t, 77, *req.ReservationId)

	snap, _ := h.station.ConnectorSnapshot(1)
	assert.Nil(t, snap.ReservationID)
}
