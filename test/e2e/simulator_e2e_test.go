package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	protocol201 "github.com/charging-platform/station-simulator/internal/protocol/ocpp201"
	"github.com/charging-platform/station-simulator/internal/station"
	"github.com/charging-platform/station-simulator/test/utils"
)

func TestBootAndHeartbeat(t *testing.T) {
	csms := utils.NewFakeCSMS(t)
	csms.Respond("BootNotification", func(json.RawMessage) interface{} {
		return map[string]interface{}{
			"status":      "Accepted",
			"interval":    45,
			"currentTime": "2024-01-01T00:00:00Z",
		}
	})

	fc := clocktesting.NewFakeClock(time.Now())
	stack := utils.StartStation(t, csms.URL(), "CP-E2E-001", "ocpp1.6", &utils.StationOpts{
		BeforeStart: func(s *utils.StationStack) { s.V16.SetClock(fc) },
	})
	stack.WaitRegistered(t)

	// CSMS下发的interval写入两个拼写的心跳键
	value, ok := stack.Station.Configuration().Value(station.KeyHeartbeatInterval)
	require.True(t, ok)
	assert.Equal(t, "45", value)
	legacy, ok := stack.Station.Configuration().Value(station.KeyHeartBeatIntervalLegacy)
	require.True(t, ok)
	assert.Equal(t, "45", legacy)

	// 心跳任务按45秒周期运行
	require.Eventually(t, fc.HasWaiters, 5*time.Second, 10*time.Millisecond)
	fc.Step(46 * time.Second)
	csms.WaitForCall(t, "Heartbeat")
}

func TestRemoteStartTransactionHappyPath(t *testing.T) {
	csms := utils.NewFakeCSMS(t)
	stack := utils.StartStation(t, csms.URL(), "CP-E2E-002", "ocpp1.6", &utils.StationOpts{
		MutateStation: func(c *station.Config) {
			c.LocalAuthTags = []string{"TAG-1"}
		},
	})
	stack.WaitRegistered(t)

	reply := csms.SendCall(t, "RemoteStartTransaction", map[string]interface{}{
		"connectorId": 1,
		"idTag":       "TAG-1",
	})
	require.Empty(t, reply.ErrorCode)

	var resp ocpp16.RemoteStartTransactionResponse
	require.NoError(t, json.Unmarshal(reply.Result, &resp))
	assert.Equal(t, ocpp16.RemoteStartStopStatusAccepted, resp.Status)

	// Preparing先于StartTransaction上报
	csms.WaitForCall(t, "StartTransaction")
	statuses := csms.CallsFor("StatusNotification")
	require.NotEmpty(t, statuses)
	sawPreparing := false
	for _, call := range statuses {
		var sn ocpp16.StatusNotificationRequest
		require.NoError(t, json.Unmarshal(call.Payload, &sn))
		if sn.ConnectorId == 1 && sn.Status == ocpp16.ChargePointStatusPreparing {
			sawPreparing = true
		}
	}
	assert.True(t, sawPreparing, "no StatusNotification(Preparing) for connector 1")

	require.Eventually(t, func() bool {
		status, ok := stack.Station.StatusV16(1)
		return ok && status == ocpp16.ChargePointStatusCharging
	}, 5*time.Second, 10*time.Millisecond)

	snap, ok := stack.Station.ConnectorSnapshot(1)
	require.True(t, ok)
	assert.Equal(t, 555, snap.TransactionID)
}

func TestRemoteStartTransactionUnauthorized(t *testing.T) {
	csms := utils.NewFakeCSMS(t)
	stack := utils.StartStation(t, csms.URL(), "CP-E2E-003", "ocpp1.6", &utils.StationOpts{
		MutateStation: func(c *station.Config) {
			// 本地名单未命中且远程授权关闭，启动必须被拒绝
			c.RemoteAuthorization = false
		},
	})
	stack.WaitRegistered(t)

	reply := csms.SendCall(t, "RemoteStartTransaction", map[string]interface{}{
		"connectorId": 1,
		"idTag":       "TAG-X",
	})
	require.Empty(t, reply.ErrorCode)

	var resp ocpp16.RemoteStartTransactionResponse
	require.NoError(t, json.Unmarshal(reply.Result, &resp))
	assert.Equal(t, ocpp16.RemoteStartStopStatusRejected, resp.Status)

	require.Eventually(t, func() bool {
		status, ok := stack.Station.StatusV16(1)
		return ok && status == ocpp16.ChargePointStatusAvailable
	}, 5*time.Second, 10*time.Millisecond)
	assert.False(t, stack.Station.HasActiveTransaction(1))
}

func TestChangeConfigurationHeartbeatInterval(t *testing.T) {
	csms := utils.NewFakeCSMS(t)
	stack := utils.StartStation(t, csms.URL(), "CP-E2E-004", "ocpp1.6", nil)
	stack.WaitRegistered(t)

	reply := csms.SendCall(t, "ChangeConfiguration", map[string]interface{}{
		"key":   "HeartbeatInterval",
		"value": "30",
	})
	require.Empty(t, reply.ErrorCode)

	var resp ocpp16.ChangeConfigurationResponse
	require.NoError(t, json.Unmarshal(reply.Result, &resp))
	assert.Equal(t, ocpp16.ConfigurationStatusAccepted, resp.Status)

	value, _ := stack.Station.Configuration().Value(station.KeyHeartbeatInterval)
	assert.Equal(t, "30", value)
	legacy, _ := stack.Station.Configuration().Value(station.KeyHeartBeatIntervalLegacy)
	assert.Equal(t, "30", legacy)
}

func TestGetBaseReportFullInventory(t *testing.T) {
	csms := utils.NewFakeCSMS(t)
	stack := utils.StartStation(t, csms.URL(), "CP-E2E-005", "ocpp2.0.1", nil)
	stack.WaitRegistered(t)

	reply := csms.SendCall(t, "GetBaseReport", map[string]interface{}{
		"requestId":  7,
		"reportBase": "FullInventory",
	})
	require.Empty(t, reply.ErrorCode)

	var resp ocpp201.GetBaseReportResponse
	require.NoError(t, json.Unmarshal(reply.Result, &resp))
	assert.Equal(t, ocpp201.GenericDeviceModelStatusAccepted, resp.Status)

	// 分片以tbc=false收尾，seqNo从0递增
	var reports []ocpp201.NotifyReportRequest
	require.Eventually(t, func() bool {
		calls := csms.CallsFor("NotifyReport")
		if len(calls) == 0 {
			return false
		}
		reports = reports[:0]
		for _, call := range calls {
			var req ocpp201.NotifyReportRequest
			if err := json.Unmarshal(call.Payload, &req); err != nil {
				return false
			}
			reports = append(reports, req)
		}
		return !reports[len(reports)-1].Tbc
	}, 5*time.Second, 20*time.Millisecond)

	for i, report := range reports {
		assert.Equal(t, 7, report.RequestId)
		assert.Equal(t, i, report.SeqNo)
		if i < len(reports)-1 {
			assert.True(t, report.Tbc)
		}
	}
}

func TestOfflineTransactionEventQueueing(t *testing.T) {
	csms := utils.NewFakeCSMS(t)
	stack := utils.StartStation(t, csms.URL(), "CP-E2E-006", "ocpp2.0.1", nil)
	stack.WaitRegistered(t)

	ctx := context.Background()
	_, err := stack.V201.StartTransactionLocally(ctx, 0, "TAG-1")
	require.NoError(t, err)
	connectors := stack.Station.ActiveTransactionConnectors()
	require.Len(t, connectors, 1)
	connectorID := connectors[0]
	startedEvents := len(csms.CallsFor("TransactionEvent"))

	// 断网：后续事件只入队不发送
	csms.SetReject(true)
	csms.CloseConnections()
	require.Eventually(t, func() bool {
		return !stack.Client.IsOpen()
	}, 5*time.Second, 10*time.Millisecond)

	for i := 0; i < 2; i++ {
		_, err := stack.V201.SendTransactionEvent(ctx, connectorID, protocol201.TransactionEventParams{
			EventType: ocpp201.TransactionEventTypeUpdated,
			Context:   station.EventContext{MeterValue: station.MeterValuePeriodic},
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, stack.Station.QueuedTransactionEventCount(connectorID))
	assert.Equal(t, startedEvents, len(csms.CallsFor("TransactionEvent")))

	// 复联后按入队顺序补发
	csms.SetReject(false)
	require.Eventually(t, func() bool {
		return stack.Station.QueuedTransactionEventCount(connectorID) == 0
	}, 10*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(csms.CallsFor("TransactionEvent")) >= startedEvents+2
	}, 5*time.Second, 20*time.Millisecond)

	replayed := csms.CallsFor("TransactionEvent")[startedEvents:]
	lastSeq := -1
	for _, call := range replayed {
		var req ocpp201.TransactionEventRequest
		require.NoError(t, json.Unmarshal(call.Payload, &req))
		if req.Offline == nil || !*req.Offline {
			continue
		}
		assert.Greater(t, req.SeqNo, lastSeq)
		lastSeq = req.SeqNo
	}
	assert.GreaterOrEqual(t, lastSeq, 0, "no offline-flagged TransactionEvent was replayed")
}
