package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseEvent_Implementation(t *testing.T) {
	metadata := Metadata{
		Source:          "test-simulator",
		ProtocolVersion: "ocpp1.6",
		MessageID:       stringPtr("test-msg-123"),
	}

	event := NewBaseEvent(EventTypeStationConnected, "SIM-00001", EventSeverityInfo, metadata)

	// 测试基础字段
	assert.NotEmpty(t, event.GetID())
	assert.Equal(t, EventTypeStationConnected, event.GetType())
	assert.Equal(t, "SIM-00001", event.GetStationID())
	assert.Equal(t, EventSeverityInfo, event.GetSeverity())
	assert.Equal(t, metadata, event.GetMetadata())
	assert.WithinDuration(t, time.Now(), event.GetTimestamp(), time.Second)
}

func TestStationConnectedEvent(t *testing.T) {
	stationInfo := StationInfo{
		ID:              "SIM-00001",
		Vendor:          "SimVendor",
		Model:           "SimModel-X",
		SerialNumber:    stringPtr("SN123456"),
		FirmwareVersion: stringPtr("1.0.0"),
		ConnectorCount:  2,
		LastSeen:        time.Now().UTC(),
		ProtocolVersion: "ocpp1.6",
	}

	metadata := Metadata{
		Source:          "test-simulator",
		ProtocolVersion: "ocpp1.6",
	}

	factory := NewEventFactory()
	event := factory.CreateStationConnectedEvent("SIM-00001", stationInfo, metadata)

	// 测试事件属性
	assert.Equal(t, EventTypeStationConnected, event.GetType())
	assert.Equal(t, "SIM-00001", event.GetStationID())
	assert.Equal(t, EventSeverityInfo, event.GetSeverity())

	// 测试载荷
	payload := event.GetPayload()
	assert.Equal(t, stationInfo, payload)

	// 测试JSON序列化
	jsonData, err := event.ToJSON()
	require.NoError(t, err)

	// 测试JSON反序列化
	var decoded StationConnectedEvent
	err = json.Unmarshal(jsonData, &decoded)
	require.NoError(t, err)

	assert.Equal(t, event.GetID(), decoded.GetID())
	assert.Equal(t, event.GetType(), decoded.GetType())
	assert.Equal(t, event.StationInfo.ID, decoded.StationInfo.ID)
	assert.Equal(t, event.StationInfo.Vendor, decoded.StationInfo.Vendor)
}

func TestConnectorStatusChangedEvent(t *testing.T) {
	connectorInfo := ConnectorInfo{
		ID:        1,
		StationID: "SIM-00001",
		Status:    ConnectorStatusCharging,
	}

	metadata := Metadata{
		Source:          "test-simulator",
		ProtocolVersion: "ocpp1.6",
		CorrelationID:   stringPtr("corr-123"),
	}

	factory := NewEventFactory()
	event := factory.CreateConnectorStatusChangedEvent("SIM-00001", connectorInfo, ConnectorStatusAvailable, metadata)

	// 测试事件属性
	assert.Equal(t, EventTypeConnectorStatusChanged, event.GetType())
	assert.Equal(t, "SIM-00001", event.GetStationID())
	assert.Equal(t, ConnectorStatusAvailable, event.PreviousStatus)

	// 测试载荷
	payload := event.GetPayload()
	payloadMap, ok := payload.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, payloadMap, "connector_info")
	assert.Contains(t, payloadMap, "previous_status")

	// 测试JSON序列化
	jsonData, err := event.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "connector_info")
	assert.Contains(t, string(jsonData), "previous_status")
}

func TestTransactionStartedEvent(t *testing.T) {
	transactionInfo := TransactionInfo{
		ID:          "12345",
		NumericID:   intPtr(12345),
		StationID:   "SIM-00001",
		ConnectorID: 1,
		IdTag:       "RFID123456",
		Status:      TransactionStatusActive,
		StartTime:   time.Now().UTC(),
		MeterStart:  1000,
	}

	metadata := Metadata{
		Source:          "test-simulator",
		ProtocolVersion: "ocpp1.6",
	}

	factory := NewEventFactory()
	event := factory.CreateTransactionStartedEvent("SIM-00001", transactionInfo, metadata)

	// 测试事件属性
	assert.Equal(t, EventTypeTransactionStarted, event.GetType())
	assert.Equal(t, "SIM-00001", event.GetStationID())

	// 测试载荷
	payload := event.GetPayload()
	info, ok := payload.(TransactionInfo)
	require.True(t, ok)
	assert.Equal(t, "12345", info.ID)
	assert.Equal(t, 1, info.ConnectorID)

	// 测试JSON序列化
	jsonData, err := event.ToJSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	err = json.Unmarshal(jsonData, &decoded)
	require.NoError(t, err)
	assert.Contains(t, decoded, "transaction_info")
}

func TestTransactionStoppedEvent(t *testing.T) {
	endTime := time.Now().UTC()
	transactionInfo := TransactionInfo{
		ID:          "tx-0001",
		StationID:   "SIM-00002",
		ConnectorID: 1,
		EvseID:      1,
		IdTag:       "TOKEN-A",
		Status:      TransactionStatusStopped,
		StartTime:   endTime.Add(-30 * time.Minute),
		EndTime:     &endTime,
		MeterStart:  0,
		MeterStop:   intPtr(4200),
		StopReason:  stringPtr("Remote"),
	}

	factory := NewEventFactory()
	event := factory.CreateTransactionStoppedEvent("SIM-00002", transactionInfo, 4200, Metadata{
		Source:          "test-simulator",
		ProtocolVersion: "ocpp2.0.1",
	})

	assert.Equal(t, EventTypeTransactionStopped, event.GetType())
	assert.Equal(t, 4200, event.EnergyDelivered)

	payload := event.GetPayload()
	payloadMap, ok := payload.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, payloadMap, "transaction_info")
	assert.Contains(t, payloadMap, "energy_delivered_wh")
}

func TestCallFailedEvent(t *testing.T) {
	errorInfo := ErrorInfo{
		Code:        ErrorCodeTimeout,
		Description: "CALL timed out waiting for CALLRESULT",
		Timestamp:   time.Now().UTC(),
	}

	factory := NewEventFactory()
	event := factory.CreateCallFailedEvent("SIM-00001", "Heartbeat", errorInfo, Metadata{
		Source:          "test-simulator",
		ProtocolVersion: "ocpp1.6",
	})

	assert.Equal(t, EventTypeCallFailed, event.GetType())
	assert.Equal(t, EventSeverityWarning, event.GetSeverity())
	assert.Equal(t, "Heartbeat", event.Action)

	jsonData, err := event.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "error_info")
	assert.Contains(t, string(jsonData), "timeout")
}

func TestProtocolErrorEvent(t *testing.T) {
	errorInfo := ErrorInfo{
		Code:        ErrorCodeProtocolError,
		Description: "Invalid message format",
		Details: map[string]interface{}{
			"field":    "messageTypeId",
			"expected": "2, 3, or 4",
			"actual":   "5",
		},
		Timestamp: time.Now().UTC(),
	}

	originalMessage := map[string]interface{}{
		"messageTypeId": 5,
		"messageId":     "invalid-msg",
	}

	metadata := Metadata{
		Source:          "test-simulator",
		ProtocolVersion: "ocpp1.6",
		MessageID:       stringPtr("invalid-msg"),
	}

	factory := NewEventFactory()
	event := factory.CreateProtocolErrorEvent("SIM-00001", errorInfo, originalMessage, metadata)

	// 测试事件属性
	assert.Equal(t, EventTypeProtocolError, event.GetType())
	assert.Equal(t, "SIM-00001", event.GetStationID())
	assert.Equal(t, EventSeverityError, event.GetSeverity())

	// 测试载荷
	payload := event.GetPayload()
	payloadMap, ok := payload.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, payloadMap, "error_info")
	assert.Contains(t, payloadMap, "original_message")

	// 测试JSON序列化
	jsonData, err := event.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "error_info")
	assert.Contains(t, string(jsonData), "original_message")
}

func TestEventInterface(t *testing.T) {
	// 测试所有事件类型都实现了Event接口
	var events []Event

	metadata := Metadata{
		Source:          "test-simulator",
		ProtocolVersion: "ocpp1.6",
	}

	factory := NewEventFactory()

	// 添加各种事件类型
	events = append(events, factory.CreateStationConnectedEvent("SIM-00001", StationInfo{}, metadata))
	events = append(events, factory.CreateStationDisconnectedEvent("SIM-00001", "read error", metadata))
	events = append(events, factory.CreateStationRegisteredEvent("SIM-00001", StationInfo{}, 300, metadata))
	events = append(events, factory.CreateConnectorStatusChangedEvent("SIM-00001", ConnectorInfo{}, ConnectorStatusAvailable, metadata))
	events = append(events, factory.CreateTransactionStartedEvent("SIM-00001", TransactionInfo{}, metadata))
	events = append(events, factory.CreateTransactionStoppedEvent("SIM-00001", TransactionInfo{}, 0, metadata))
	events = append(events, factory.CreateCsmsRequestHandledEvent("SIM-00001", CsmsRequestInfo{Action: "Reset"}, metadata))
	events = append(events, factory.CreateCallFailedEvent("SIM-00001", "Heartbeat", ErrorInfo{}, metadata))
	events = append(events, factory.CreateProtocolErrorEvent("SIM-00001", ErrorInfo{}, nil, metadata))

	// 测试接口方法
	for i, event := range events {
		t.Run(string(event.GetType()), func(t *testing.T) {
			assert.NotEmpty(t, event.GetID(), "Event %d should have ID", i)
			assert.NotEmpty(t, event.GetType(), "Event %d should have type", i)
			assert.Equal(t, "SIM-00001", event.GetStationID(), "Event %d should have station ID", i)
			assert.WithinDuration(t, time.Now(), event.GetTimestamp(), time.Second, "Event %d should have recent timestamp", i)
			assert.NotEmpty(t, event.GetSeverity(), "Event %d should have severity", i)

			// 测试JSON序列化
			jsonData, err := event.ToJSON()
			assert.NoError(t, err, "Event %d should serialize to JSON", i)
			assert.NotEmpty(t, jsonData, "Event %d JSON should not be empty", i)

			// 验证JSON是有效的
			var decoded map[string]interface{}
			err = json.Unmarshal(jsonData, &decoded)
			assert.NoError(t, err, "Event %d JSON should be valid", i)
		})
	}
}

func TestEventTypes(t *testing.T) {
	// 测试所有事件类型常量
	eventTypes := []EventType{
		EventTypeStationConnected,
		EventTypeStationDisconnected,
		EventTypeStationRegistered,
		EventTypeConnectorStatusChanged,
		EventTypeTransactionStarted,
		EventTypeTransactionUpdated,
		EventTypeTransactionStopped,
		EventTypeCsmsRequestReceived,
		EventTypeCsmsRequestHandled,
		EventTypeFirmwareStatusChanged,
		EventTypeDiagnosticsStatusChanged,
		EventTypeCallFailed,
		EventTypeProtocolError,
	}

	for _, eventType := range eventTypes {
		assert.NotEmpty(t, string(eventType), "Event type should not be empty")
		assert.Contains(t, string(eventType), ".", "Event type should contain namespace separator")
	}
}

// 辅助函数
func stringPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}
