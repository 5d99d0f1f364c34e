package station

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
)

func TestSelectTriggerReason(t *testing.T) {
	tests := []struct {
		name string
		ctx  EventContext
		want ocpp201.TriggerReason
	}{
		{"远程启动", EventContext{RemoteCommand: RemoteCommandRequestStart}, ocpp201.TriggerReasonRemoteStart},
		{"远程停止", EventContext{RemoteCommand: RemoteCommandRequestStop}, ocpp201.TriggerReasonRemoteStop},
		{"重置指令", EventContext{RemoteCommand: RemoteCommandReset}, ocpp201.TriggerReasonResetCommand},
		{"触发消息", EventContext{RemoteCommand: RemoteCommandTriggerMessage}, ocpp201.TriggerReasonTrigger},
		{"解锁指令", EventContext{RemoteCommand: RemoteCommandUnlockConnector}, ocpp201.TriggerReasonUnlockCommand},
		{"本地授权", EventContext{LocalAuthorization: LocalAuthAuthorized}, ocpp201.TriggerReasonAuthorized},
		{"停止授权", EventContext{LocalAuthorization: LocalAuthStopAuthorized}, ocpp201.TriggerReasonStopAuthorized},
		{"取消授权", EventContext{LocalAuthorization: LocalAuthDeauthorized}, ocpp201.TriggerReasonDeauthorized},
		{"检测到车辆", EventContext{CableAction: CableActionDetected}, ocpp201.TriggerReasonEVDetected},
		{"插入电缆", EventContext{CableAction: CableActionPluggedIn}, ocpp201.TriggerReasonCablePluggedIn},
		{"拔出电缆", EventContext{CableAction: CableActionUnplugged}, ocpp201.TriggerReasonEVDeparted},
		{"充电状态变化", EventContext{ChargingStateChanged: true}, ocpp201.TriggerReasonChargingStateChanged},
		{"通信丢失", EventContext{SystemEvent: SystemEventCommunicationLost}, ocpp201.TriggerReasonEVCommunicationLost},
		{"连接超时", EventContext{SystemEvent: SystemEventConnectTimeout}, ocpp201.TriggerReasonEVConnectTimeout},
		{"签名电表值", EventContext{MeterValue: MeterValueSigned}, ocpp201.TriggerReasonSignedDataReceived},
		{"周期电表值", EventContext{MeterValue: MeterValuePeriodic}, ocpp201.TriggerReasonMeterValuePeriodic},
		{"时钟电表值", EventContext{MeterValue: MeterValueClock}, ocpp201.TriggerReasonMeterValueClock},
		{"能量限值", EventContext{EnergyLimitReached: true}, ocpp201.TriggerReasonEnergyLimitReached},
		{"时间限值", EventContext{TimeLimitReached: true}, ocpp201.TriggerReasonTimeLimitReached},
		{"外部限值", EventContext{ExternalLimit: true}, ocpp201.TriggerReasonChargingRateChanged},
		{"异常条件", EventContext{AbnormalCondition: true}, ocpp201.TriggerReasonAbnormalCondition},
		{"空上下文兜底Trigger", EventContext{}, ocpp201.TriggerReasonTrigger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectTriggerReason(tt.ctx))
		})
	}
}

// 优先级：高优先级成因覆盖低优先级成因
func TestSelectTriggerReason_Priority(t *testing.T) {
	// 远程指令压过其余全部成因
	ctx := EventContext{
		RemoteCommand:        RemoteCommandRequestStop,
		LocalAuthorization:   LocalAuthStopAuthorized,
		CableAction:          CableActionUnplugged,
		ChargingStateChanged: true,
		MeterValue:           MeterValuePeriodic,
		AbnormalCondition:    true,
	}
	assert.Equal(t, ocpp201.TriggerReasonRemoteStop, SelectTriggerReason(ctx))

	// 本地授权压过电缆动作
	ctx.RemoteCommand = RemoteCommandNone
	assert.Equal(t, ocpp201.TriggerReasonStopAuthorized, SelectTriggerReason(ctx))

	// 电缆动作压过充电状态
	ctx.LocalAuthorization = LocalAuthNone
	assert.Equal(t, ocpp201.TriggerReasonEVDeparted, SelectTriggerReason(ctx))

	// 充电状态压过电表值
	ctx.CableAction = CableActionNone
	assert.Equal(t, ocpp201.TriggerReasonChargingStateChanged, SelectTriggerReason(ctx))

	// 电表值压过限值与异常
	ctx.ChargingStateChanged = false
	assert.Equal(t, ocpp201.TriggerReasonMeterValuePeriodic, SelectTriggerReason(ctx))

	// 异常条件是最后一个具名成因
	ctx.MeterValue = MeterValueNone
	assert.Equal(t, ocpp201.TriggerReasonAbnormalCondition, SelectTriggerReason(ctx))
}
