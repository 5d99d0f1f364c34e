package station

import (
	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
)

// RemoteCommand 触发TransactionEvent的CSMS指令
type RemoteCommand string

const (
	RemoteCommandNone            RemoteCommand = ""
	RemoteCommandRequestStart    RemoteCommand = "RequestStartTransaction"
	RemoteCommandRequestStop     RemoteCommand = "RequestStopTransaction"
	RemoteCommandReset           RemoteCommand = "Reset"
	RemoteCommandTriggerMessage  RemoteCommand = "TriggerMessage"
	RemoteCommandUnlockConnector RemoteCommand = "UnlockConnector"
)

// LocalAuthAction 本地授权动作
type LocalAuthAction string

const (
	LocalAuthNone           LocalAuthAction = ""
	LocalAuthAuthorized     LocalAuthAction = "authorized"
	LocalAuthStopAuthorized LocalAuthAction = "stop_authorized"
	LocalAuthDeauthorized   LocalAuthAction = "deauthorized"
)

// CableAction 电缆与车辆动作
type CableAction string

const (
	CableActionNone      CableAction = ""
	CableActionDetected  CableAction = "detected"
	CableActionPluggedIn CableAction = "plugged_in"
	CableActionUnplugged CableAction = "unplugged"
)

// MeterValueKind 电表值的采样来源
type MeterValueKind string

const (
	MeterValueNone     MeterValueKind = ""
	MeterValueSigned   MeterValueKind = "signed"
	MeterValuePeriodic MeterValueKind = "periodic"
	MeterValueClock    MeterValueKind = "clock"
)

// SystemEventKind 站点侧系统事件
type SystemEventKind string

const (
	SystemEventNone              SystemEventKind = ""
	SystemEventCommunicationLost SystemEventKind = "communication_lost"
	SystemEventConnectTimeout    SystemEventKind = "connect_timeout"
)

// EventContext 描述一次TransactionEvent的成因
// 各字段按固定优先级参与triggerReason推导，零值表示该成因不存在
type EventContext struct {
	RemoteCommand        RemoteCommand
	LocalAuthorization   LocalAuthAction
	CableAction          CableAction
	ChargingStateChanged bool
	SystemEvent          SystemEventKind
	MeterValue           MeterValueKind
	EnergyLimitReached   bool
	TimeLimitReached     bool
	ExternalLimit        bool
	AbnormalCondition    bool
}

// SelectTriggerReason 按固定优先级从事件上下文推导triggerReason
// 远程指令 > 本地授权 > 电缆动作 > 充电状态 > 系统事件 > 电表值 > 限值 > 异常，兜底Trigger
func SelectTriggerReason(ctx EventContext) ocpp201.TriggerReason {
	switch ctx.RemoteCommand {
	case RemoteCommandRequestStart:
		return ocpp201.TriggerReasonRemoteStart
	case RemoteCommandRequestStop:
		return ocpp201.TriggerReasonRemoteStop
	case RemoteCommandReset:
		return ocpp201.TriggerReasonResetCommand
	case RemoteCommandTriggerMessage:
		return ocpp201.TriggerReasonTrigger
	case RemoteCommandUnlockConnector:
		return ocpp201.TriggerReasonUnlockCommand
	}

	switch ctx.LocalAuthorization {
	case LocalAuthAuthorized:
		return ocpp201.TriggerReasonAuthorized
	case LocalAuthStopAuthorized:
		return ocpp201.TriggerReasonStopAuthorized
	case LocalAuthDeauthorized:
		return ocpp201.TriggerReasonDeauthorized
	}

	switch ctx.CableAction {
	case CableActionDetected:
		return ocpp201.TriggerReasonEVDetected
	case CableActionPluggedIn:
		return ocpp201.TriggerReasonCablePluggedIn
	case CableActionUnplugged:
		return ocpp201.TriggerReasonEVDeparted
	}

	if ctx.ChargingStateChanged {
		return ocpp201.TriggerReasonChargingStateChanged
	}

	switch ctx.SystemEvent {
	case SystemEventCommunicationLost:
		return ocpp201.TriggerReasonEVCommunicationLost
	case SystemEventConnectTimeout:
		return ocpp201.TriggerReasonEVConnectTimeout
	}

	if ctx.MeterValue != MeterValueNone {
		switch ctx.MeterValue {
		case MeterValueSigned:
			return ocpp201.TriggerReasonSignedDataReceived
		case MeterValuePeriodic:
			return ocpp201.TriggerReasonMeterValuePeriodic
		default:
			return ocpp201.TriggerReasonMeterValueClock
		}
	}

	if ctx.EnergyLimitReached {
		return ocpp201.TriggerReasonEnergyLimitReached
	}
	if ctx.TimeLimitReached {
		return ocpp201.TriggerReasonTimeLimitReached
	}
	if ctx.ExternalLimit {
		return ocpp201.TriggerReasonChargingRateChanged
	}
	if ctx.AbnormalCondition {
		return ocpp201.TriggerReasonAbnormalCondition
	}

	return ocpp201.TriggerReasonTrigger
}
