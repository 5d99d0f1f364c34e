package ocpp16

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateTime_MarshalJSON(t *testing.T) {
	dt := NewDateTime(time.Date(2023, 12, 25, 10, 30, 45, 0, time.UTC))

	data, err := json.Marshal(dt)
	require.NoError(t, err)

	assert.Equal(t, `"2023-12-25T10:30:45Z"`, string(data))
}

func TestDateTime_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
		wantErr  bool
	}{
		{
			name:     "valid RFC3339 time",
			input:    `"2023-12-25T10:30:45Z"`,
			expected: time.Date(2023, 12, 25, 10, 30, 45, 0, time.UTC),
			wantErr:  false,
		},
		{
			name:     "valid RFC3339 time with timezone",
			input:    `"2023-12-25T10:30:45+08:00"`,
			expected: time.Date(2023, 12, 25, 2, 30, 45, 0, time.UTC),
			wantErr:  false,
		},
		{
			name:    "null value",
			input:   `null`,
			wantErr: false,
		},
		{
			name:    "invalid format",
			input:   `"invalid-time"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dt DateTime
			err := json.Unmarshal([]byte(tt.input), &dt)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				if tt.input != `null` {
					assert.True(t, tt.expected.Equal(dt.Time))
				}
			}
		})
	}
}

func TestBootNotificationRequest_OptionalFieldsOmitted(t *testing.T) {
	req := BootNotificationRequest{
		ChargePointVendor: "TestVendor",
		ChargePointModel:  "TestModel",
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	// 未设置的可选字段不得出现在线上报文里
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "chargePointVendor")
	assert.Contains(t, raw, "chargePointModel")
	assert.NotContains(t, raw, "firmwareVersion")
	assert.NotContains(t, raw, "chargePointSerialNumber")
}

func TestBootNotificationResponse_Decode(t *testing.T) {
	// CSMS应答按1.6J线格式解析
	payload := `{"status":"Accepted","currentTime":"2023-12-25T10:30:45Z","interval":300}`

	var resp BootNotificationResponse
	require.NoError(t, json.Unmarshal([]byte(payload), &resp))

	assert.Equal(t, RegistrationStatusAccepted, resp.Status)
	assert.Equal(t, 300, resp.Interval)
	assert.Equal(t, time.Date(2023, 12, 25, 10, 30, 45, 0, time.UTC), resp.CurrentTime.Time.UTC())
}

func TestStatusNotificationRequest_WireFormat(t *testing.T) {
	timestamp := NewDateTime(time.Date(2023, 12, 25, 10, 30, 45, 0, time.UTC))
	req := StatusNotificationRequest{
		ConnectorId: 1,
		ErrorCode:   ChargePointErrorCodeNoError,
		Status:      ChargePointStatusCharging,
		Timestamp:   &timestamp,
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(1), raw["connectorId"])
	assert.Equal(t, "NoError", raw["errorCode"])
	assert.Equal(t, "Charging", raw["status"])
	assert.Equal(t, "2023-12-25T10:30:45Z", raw["timestamp"])
}

func TestStopTransactionRequest_ReasonAndTransactionData(t *testing.T) {
	reason := ReasonLocal
	req := StopTransactionRequest{
		TransactionId: 12345,
		MeterStop:     4200,
		Timestamp:     NewDateTime(time.Now().UTC()),
		Reason:        &reason,
		TransactionData: []MeterValue{
			{
				Timestamp: NewDateTime(time.Now().UTC()),
				SampledValue: []SampledValue{
					{
						Value:     "1234.56",
						Measurand: measurandPtr(MeasurandEnergyActiveImportRegister),
						Unit:      unitPtr(UnitOfMeasureKWh),
					},
				},
			},
		},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Local", raw["reason"])
	assert.Len(t, raw["transactionData"], 1)

	// 无原因、无抄表数据时两个字段整体省略
	bare := StopTransactionRequest{
		TransactionId: 12345,
		MeterStop:     4200,
		Timestamp:     NewDateTime(time.Now().UTC()),
	}
	data, err = json.Marshal(bare)
	require.NoError(t, err)
	raw = nil
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "reason")
	assert.NotContains(t, raw, "transactionData")
}

func TestRemoteStartTransactionRequest_OptionalConnector(t *testing.T) {
	// connectorId缺省表示由充电站自选枪头
	var req RemoteStartTransactionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"idTag":"RFID123456"}`), &req))

	assert.Equal(t, "RFID123456", req.IdTag)
	assert.Nil(t, req.ConnectorId)

	require.NoError(t, json.Unmarshal([]byte(`{"idTag":"RFID123456","connectorId":2}`), &req))
	require.NotNil(t, req.ConnectorId)
	assert.Equal(t, 2, *req.ConnectorId)
}

func TestMeterValuesRequest_WireFormat(t *testing.T) {
	req := MeterValuesRequest{
		ConnectorId:   1,
		TransactionId: intPtr(12345),
		MeterValue: []MeterValue{
			{
				Timestamp: NewDateTime(time.Now().UTC()),
				SampledValue: []SampledValue{
					{
						Value:     "1234.56",
						Measurand: measurandPtr(MeasurandEnergyActiveImportRegister),
						Unit:      unitPtr(UnitOfMeasureKWh),
					},
				},
			},
		},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded MeterValuesRequest
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, req.ConnectorId, decoded.ConnectorId)
	assert.Equal(t, req.TransactionId, decoded.TransactionId)
	require.Len(t, decoded.MeterValue, 1)
	require.Len(t, decoded.MeterValue[0].SampledValue, 1)
	assert.Equal(t, "1234.56", decoded.MeterValue[0].SampledValue[0].Value)
	assert.Equal(t, MeasurandEnergyActiveImportRegister, *decoded.MeterValue[0].SampledValue[0].Measurand)
}

func TestChargingProfile_DecodeFromCSMS(t *testing.T) {
	// SetChargingProfile下行的嵌套结构
	payload := `{
		"connectorId": 1,
		"csChargingProfiles": {
			"chargingProfileId": 1,
			"stackLevel": 0,
			"chargingProfilePurpose": "TxProfile",
			"chargingProfileKind": "Absolute",
			"chargingSchedule": {
				"chargingRateUnit": "A",
				"chargingSchedulePeriod": [{"startPeriod": 0, "limit": 32.0}]
			}
		}
	}`

	var req SetChargingProfileRequest
	require.NoError(t, json.Unmarshal([]byte(payload), &req))

	assert.Equal(t, 1, req.ConnectorId)
	profile := req.CsChargingProfiles
	assert.Equal(t, 1, profile.ChargingProfileId)
	assert.Equal(t, ChargingProfilePurposeTxProfile, profile.ChargingProfilePurpose)
	assert.Equal(t, ChargingProfileKindAbsolute, profile.ChargingProfileKind)
	assert.Equal(t, ChargingRateUnitA, profile.ChargingSchedule.ChargingRateUnit)
	require.Len(t, profile.ChargingSchedule.ChargingSchedulePeriod, 1)
	assert.Equal(t, 32.0, profile.ChargingSchedule.ChargingSchedulePeriod[0].Limit)
}

// 辅助函数
func intPtr(i int) *int {
	return &i
}

func measurandPtr(m Measurand) *Measurand {
	return &m
}

func unitPtr(u UnitOfMeasure) *UnitOfMeasure {
	return &u
}
