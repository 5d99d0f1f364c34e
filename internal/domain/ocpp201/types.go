package ocpp201

import (
	"time"
)

// Action OCPP 2.0.1动作类型
type Action string

const (
	// 站端发起的动作
	ActionBootNotification   Action = "BootNotification"
	ActionHeartbeat          Action = "Heartbeat"
	ActionStatusNotification Action = "StatusNotification"
	ActionTransactionEvent   Action = "TransactionEvent"
	ActionNotifyReport       Action = "NotifyReport"
	ActionAuthorize          Action = "Authorize"
	ActionMeterValues        Action = "MeterValues"

	// CSMS发起的动作
	ActionClearCache              Action = "ClearCache"
	ActionReset                   Action = "Reset"
	ActionGetBaseReport           Action = "GetBaseReport"
	ActionGetVariables            Action = "GetVariables"
	ActionSetVariables            Action = "SetVariables"
	ActionRequestStartTransaction Action = "RequestStartTransaction"
	ActionRequestStopTransaction  Action = "RequestStopTransaction"
)

// BootReason 启动原因
type BootReason string

const (
	BootReasonApplicationReset BootReason = "ApplicationReset"
	BootReasonFirmwareUpdate   BootReason = "FirmwareUpdate"
	BootReasonLocalReset       BootReason = "LocalReset"
	BootReasonPowerUp          BootReason = "PowerUp"
	BootReasonRemoteReset      BootReason = "RemoteReset"
	BootReasonScheduledReset   BootReason = "ScheduledReset"
	BootReasonTriggered        BootReason = "Triggered"
	BootReasonUnknown          BootReason = "Unknown"
	BootReasonWatchdog         BootReason = "Watchdog"
)

// RegistrationStatus 注册状态
type RegistrationStatus string

const (
	RegistrationStatusAccepted RegistrationStatus = "Accepted"
	RegistrationStatusPending  RegistrationStatus = "Pending"
	RegistrationStatusRejected RegistrationStatus = "Rejected"
)

// ConnectorStatus 连接器状态
type ConnectorStatus string

const (
	ConnectorStatusAvailable   ConnectorStatus = "Available"
	ConnectorStatusOccupied    ConnectorStatus = "Occupied"
	ConnectorStatusReserved    ConnectorStatus = "Reserved"
	ConnectorStatusUnavailable ConnectorStatus = "Unavailable"
	ConnectorStatusFaulted     ConnectorStatus = "Faulted"
)

// OperationalStatus 运行状态
type OperationalStatus string

const (
	OperationalStatusInoperative OperationalStatus = "Inoperative"
	OperationalStatusOperative   OperationalStatus = "Operative"
)

// TransactionEventType 交易事件类型
type TransactionEventType string

const (
	TransactionEventTypeStarted TransactionEventType = "Started"
	TransactionEventTypeUpdated TransactionEventType = "Updated"
	TransactionEventTypeEnded   TransactionEventType = "Ended"
)

// TriggerReason 交易事件触发原因
type TriggerReason string

const (
	TriggerReasonAuthorized           TriggerReason = "Authorized"
	TriggerReasonCablePluggedIn       TriggerReason = "CablePluggedIn"
	TriggerReasonChargingRateChanged  TriggerReason = "ChargingRateChanged"
	TriggerReasonChargingStateChanged TriggerReason = "ChargingStateChanged"
	TriggerReasonDeauthorized         TriggerReason = "Deauthorized"
	TriggerReasonEnergyLimitReached   TriggerReason = "EnergyLimitReached"
	TriggerReasonEVCommunicationLost  TriggerReason = "EVCommunicationLost"
	TriggerReasonEVConnectTimeout     TriggerReason = "EVConnectTimeout"
	TriggerReasonEVDeparted           TriggerReason = "EVDeparted"
	TriggerReasonEVDetected           TriggerReason = "EVDetected"
	TriggerReasonMeterValueClock      TriggerReason = "MeterValueClock"
	TriggerReasonMeterValuePeriodic   TriggerReason = "MeterValuePeriodic"
	TriggerReasonRemoteStart          TriggerReason = "RemoteStart"
	TriggerReasonRemoteStop           TriggerReason = "RemoteStop"
	TriggerReasonResetCommand         TriggerReason = "ResetCommand"
	TriggerReasonSignedDataReceived   TriggerReason = "SignedDataReceived"
	TriggerReasonStopAuthorized       TriggerReason = "StopAuthorized"
	TriggerReasonTimeLimitReached     TriggerReason = "TimeLimitReached"
	TriggerReasonTrigger              TriggerReason = "Trigger"
	TriggerReasonUnlockCommand        TriggerReason = "UnlockCommand"
	TriggerReasonAbnormalCondition    TriggerReason = "AbnormalCondition"
)

// ChargingState 充电状态
type ChargingState string

const (
	ChargingStateCharging      ChargingState = "Charging"
	ChargingStateEVConnected   ChargingState = "EVConnected"
	ChargingStateSuspendedEV   ChargingState = "SuspendedEV"
	ChargingStateSuspendedEVSE ChargingState = "SuspendedEVSE"
	ChargingStateIdle          ChargingState = "Idle"
)

// StoppedReason 交易停止原因
type StoppedReason string

const (
	StoppedReasonDeAuthorized       StoppedReason = "DeAuthorized"
	StoppedReasonEmergencyStop      StoppedReason = "EmergencyStop"
	StoppedReasonEnergyLimitReached StoppedReason = "EnergyLimitReached"
	StoppedReasonEVDisconnected     StoppedReason = "EVDisconnected"
	StoppedReasonGroundFault        StoppedReason = "GroundFault"
	StoppedReasonImmediateReset     StoppedReason = "ImmediateReset"
	StoppedReasonLocal              StoppedReason = "Local"
	StoppedReasonLocalOutOfCredit   StoppedReason = "LocalOutOfCredit"
	StoppedReasonMasterPass         StoppedReason = "MasterPass"
	StoppedReasonOther              StoppedReason = "Other"
	StoppedReasonOvercurrentFault   StoppedReason = "OvercurrentFault"
	StoppedReasonPowerLoss          StoppedReason = "PowerLoss"
	StoppedReasonPowerQuality       StoppedReason = "PowerQuality"
	StoppedReasonReboot             StoppedReason = "Reboot"
	StoppedReasonRemote             StoppedReason = "Remote"
	StoppedReasonSOCLimitReached    StoppedReason = "SOCLimitReached"
	StoppedReasonStoppedByEV        StoppedReason = "StoppedByEV"
	StoppedReasonTimeLimitReached   StoppedReason = "TimeLimitReached"
	StoppedReasonTimeout            StoppedReason = "Timeout"
)

// IdTokenType ID令牌类型
type IdTokenType string

const (
	IdTokenTypeCentral         IdTokenType = "Central"
	IdTokenTypeEMAID           IdTokenType = "eMAID"
	IdTokenTypeISO14443        IdTokenType = "ISO14443"
	IdTokenTypeISO15693        IdTokenType = "ISO15693"
	IdTokenTypeKeyCode         IdTokenType = "KeyCode"
	IdTokenTypeLocal           IdTokenType = "Local"
	IdTokenTypeMacAddress      IdTokenType = "MacAddress"
	IdTokenTypeNoAuthorization IdTokenType = "NoAuthorization"
)

// AuthorizationStatus 授权状态
type AuthorizationStatus string

const (
	AuthorizationStatusAccepted           AuthorizationStatus = "Accepted"
	AuthorizationStatusBlocked            AuthorizationStatus = "Blocked"
	AuthorizationStatusConcurrentTx       AuthorizationStatus = "ConcurrentTx"
	AuthorizationStatusExpired            AuthorizationStatus = "Expired"
	AuthorizationStatusInvalid            AuthorizationStatus = "Invalid"
	AuthorizationStatusNoCredit           AuthorizationStatus = "NoCredit"
	AuthorizationStatusNotAllowedTypeEVSE AuthorizationStatus = "NotAllowedTypeEVSE"
	AuthorizationStatusNotAtThisLocation  AuthorizationStatus = "NotAtThisLocation"
	AuthorizationStatusNotAtThisTime      AuthorizationStatus = "NotAtThisTime"
	AuthorizationStatusUnknown            AuthorizationStatus = "Unknown"
)

// ResetType 重置类型
type ResetType string

const (
	ResetTypeImmediate ResetType = "Immediate"
	ResetTypeOnIdle    ResetType = "OnIdle"
)

// ResetStatus 重置状态
type ResetStatus string

const (
	ResetStatusAccepted  ResetStatus = "Accepted"
	ResetStatusRejected  ResetStatus = "Rejected"
	ResetStatusScheduled ResetStatus = "Scheduled"
)

// ClearCacheStatus 清除缓存状态
type ClearCacheStatus string

const (
	ClearCacheStatusAccepted ClearCacheStatus = "Accepted"
	ClearCacheStatusRejected ClearCacheStatus = "Rejected"
)

// ReportBase 报告基准
type ReportBase string

const (
	ReportBaseConfigurationInventory ReportBase = "ConfigurationInventory"
	ReportBaseFullInventory          ReportBase = "FullInventory"
	ReportBaseSummaryInventory       ReportBase = "SummaryInventory"
)

// GenericDeviceModelStatus 设备模型操作状态
type GenericDeviceModelStatus string

const (
	GenericDeviceModelStatusAccepted       GenericDeviceModelStatus = "Accepted"
	GenericDeviceModelStatusRejected       GenericDeviceModelStatus = "Rejected"
	GenericDeviceModelStatusNotSupported   GenericDeviceModelStatus = "NotSupported"
	GenericDeviceModelStatusEmptyResultSet GenericDeviceModelStatus = "EmptyResultSet"
)

// GetVariableStatus 获取变量状态
type GetVariableStatus string

const (
	GetVariableStatusAccepted                  GetVariableStatus = "Accepted"
	GetVariableStatusRejected                  GetVariableStatus = "Rejected"
	GetVariableStatusUnknownComponent          GetVariableStatus = "UnknownComponent"
	GetVariableStatusUnknownVariable           GetVariableStatus = "UnknownVariable"
	GetVariableStatusNotSupportedAttributeType GetVariableStatus = "NotSupportedAttributeType"
)

// SetVariableStatus 设置变量状态
type SetVariableStatus string

const (
	SetVariableStatusAccepted                  SetVariableStatus = "Accepted"
	SetVariableStatusRejected                  SetVariableStatus = "Rejected"
	SetVariableStatusUnknownComponent          SetVariableStatus = "UnknownComponent"
	SetVariableStatusUnknownVariable           SetVariableStatus = "UnknownVariable"
	SetVariableStatusNotSupportedAttributeType SetVariableStatus = "NotSupportedAttributeType"
	SetVariableStatusRebootRequired            SetVariableStatus = "RebootRequired"
)

// AttributeType 属性类型
type AttributeType string

const (
	AttributeTypeActual AttributeType = "Actual"
	AttributeTypeTarget AttributeType = "Target"
	AttributeTypeMinSet AttributeType = "MinSet"
	AttributeTypeMaxSet AttributeType = "MaxSet"
)

// MutabilityType 变量可变性
type MutabilityType string

const (
	MutabilityTypeReadOnly  MutabilityType = "ReadOnly"
	MutabilityTypeWriteOnly MutabilityType = "WriteOnly"
	MutabilityTypeReadWrite MutabilityType = "ReadWrite"
)

// DataType 变量数据类型
type DataType string

const (
	DataTypeString       DataType = "string"
	DataTypeDecimal      DataType = "decimal"
	DataTypeInteger      DataType = "integer"
	DataTypeDateTime     DataType = "dateTime"
	DataTypeBoolean      DataType = "boolean"
	DataTypeOptionList   DataType = "OptionList"
	DataTypeSequenceList DataType = "SequenceList"
	DataTypeMemberList   DataType = "MemberList"
)

// RequestStartStopStatus 远程启停状态
type RequestStartStopStatus string

const (
	RequestStartStopStatusAccepted RequestStartStopStatus = "Accepted"
	RequestStartStopStatusRejected RequestStartStopStatus = "Rejected"
)

// ChargingProfilePurpose 充电配置文件用途
type ChargingProfilePurpose string

const (
	ChargingProfilePurposeChargingStationExternalConstraints ChargingProfilePurpose = "ChargingStationExternalConstraints"
	ChargingProfilePurposeChargingStationMaxProfile          ChargingProfilePurpose = "ChargingStationMaxProfile"
	ChargingProfilePurposeTxDefaultProfile                   ChargingProfilePurpose = "TxDefaultProfile"
	ChargingProfilePurposeTxProfile                          ChargingProfilePurpose = "TxProfile"
)

// ChargingProfileKind 充电配置文件类型
type ChargingProfileKind string

const (
	ChargingProfileKindAbsolute  ChargingProfileKind = "Absolute"
	ChargingProfileKindRecurring ChargingProfileKind = "Recurring"
	ChargingProfileKindRelative  ChargingProfileKind = "Relative"
)

// RecurrencyKind 重复类型
type RecurrencyKind string

const (
	RecurrencyKindDaily  RecurrencyKind = "Daily"
	RecurrencyKindWeekly RecurrencyKind = "Weekly"
)

// ChargingRateUnit 充电速率单位
type ChargingRateUnit string

const (
	ChargingRateUnitW ChargingRateUnit = "W"
	ChargingRateUnitA ChargingRateUnit = "A"
)

// ReadingContext 读数上下文
type ReadingContext string

const (
	ReadingContextInterruptionBegin ReadingContext = "Interruption.Begin"
	ReadingContextInterruptionEnd   ReadingContext = "Interruption.End"
	ReadingContextOther             ReadingContext = "Other"
	ReadingContextSampleClock       ReadingContext = "Sample.Clock"
	ReadingContextSamplePeriodic    ReadingContext = "Sample.Periodic"
	ReadingContextTransactionBegin  ReadingContext = "Transaction.Begin"
	ReadingContextTransactionEnd    ReadingContext = "Transaction.End"
	ReadingContextTrigger           ReadingContext = "Trigger"
)

// Measurand 测量值类型
type Measurand string

const (
	MeasurandCurrentImport              Measurand = "Current.Import"
	MeasurandCurrentOffered             Measurand = "Current.Offered"
	MeasurandEnergyActiveImportRegister Measurand = "Energy.Active.Import.Register"
	MeasurandPowerActiveImport          Measurand = "Power.Active.Import"
	MeasurandPowerOffered               Measurand = "Power.Offered"
	MeasurandSoC                        Measurand = "SoC"
	MeasurandVoltage                    Measurand = "Voltage"
)

// DateTime 自定义时间类型，用于JSON序列化
type DateTime struct {
	time.Time
}

// NewDateTime 由time.Time构造DateTime
func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t}
}

// MarshalJSON 实现JSON序列化
func (dt DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + dt.Time.UTC().Format(time.RFC3339) + `"`), nil
}

// UnmarshalJSON 实现JSON反序列化
func (dt *DateTime) UnmarshalJSON(data []byte) error {
	str := string(data)
	if str == "null" {
		return nil
	}
	str = str[1 : len(str)-1] // 去掉引号
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	dt.Time = t
	return nil
}

// CustomData 厂商自定义数据透传
type CustomData map[string]interface{}

// StatusInfo 附加状态信息
type StatusInfo struct {
	ReasonCode     string  `json:"reasonCode" validate:"required,max=20"`
	AdditionalInfo *string `json:"additionalInfo,omitempty" validate:"omitempty,max=512"`
}

// ChargingStation 充电站标识信息
type ChargingStation struct {
	Model           string  `json:"model" validate:"required,max=20"`
	VendorName      string  `json:"vendorName" validate:"required,max=50"`
	SerialNumber    *string `json:"serialNumber,omitempty" validate:"omitempty,max=25"`
	FirmwareVersion *string `json:"firmwareVersion,omitempty" validate:"omitempty,max=50"`
	Modem           *Modem  `json:"modem,omitempty"`
}

// Modem 调制解调器信息
type Modem struct {
	Iccid *string `json:"iccid,omitempty" validate:"omitempty,max=20"`
	Imsi  *string `json:"imsi,omitempty" validate:"omitempty,max=20"`
}

// IdToken ID令牌
type IdToken struct {
	IdToken        string           `json:"idToken" validate:"max=36"`
	Type           IdTokenType      `json:"type" validate:"required"`
	AdditionalInfo []AdditionalInfo `json:"additionalInfo,omitempty"`
}

// AdditionalInfo 令牌附加信息
type AdditionalInfo struct {
	AdditionalIdToken string `json:"additionalIdToken" validate:"required,max=36"`
	Type              string `json:"type" validate:"required,max=50"`
}

// IdTokenInfo ID令牌授权信息
type IdTokenInfo struct {
	Status              AuthorizationStatus `json:"status" validate:"required"`
	CacheExpiryDateTime *DateTime           `json:"cacheExpiryDateTime,omitempty"`
	ChargingPriority    *int                `json:"chargingPriority,omitempty"`
	GroupIdToken        *IdToken            `json:"groupIdToken,omitempty"`
}

// EVSE EVSE标识
type EVSE struct {
	Id          int  `json:"id" validate:"required,min=1"`
	ConnectorId *int `json:"connectorId,omitempty" validate:"omitempty,min=1"`
}

// Component 组件标识
type Component struct {
	Name     string  `json:"name" validate:"required,max=50"`
	Instance *string `json:"instance,omitempty" validate:"omitempty,max=50"`
	Evse     *EVSE   `json:"evse,omitempty"`
}

// Variable 变量标识
type Variable struct {
	Name     string  `json:"name" validate:"required,max=50"`
	Instance *string `json:"instance,omitempty" validate:"omitempty,max=50"`
}

// MeterValue 电表值
type MeterValue struct {
	Timestamp    DateTime       `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1"`
}

// SampledValue 采样值
type SampledValue struct {
	Value            float64           `json:"value"`
	Context          *ReadingContext   `json:"context,omitempty"`
	Measurand        *Measurand        `json:"measurand,omitempty"`
	Phase            *string           `json:"phase,omitempty"`
	Location         *string           `json:"location,omitempty"`
	UnitOfMeasure    *UnitOfMeasure    `json:"unitOfMeasure,omitempty"`
	SignedMeterValue *SignedMeterValue `json:"signedMeterValue,omitempty"`
}

// UnitOfMeasure 测量单位
type UnitOfMeasure struct {
	Unit       *string `json:"unit,omitempty" validate:"omitempty,max=20"`
	Multiplier *int    `json:"multiplier,omitempty"`
}

// SignedMeterValue 签名电表读数
type SignedMeterValue struct {
	SignedMeterData string `json:"signedMeterData" validate:"required,max=2500"`
	SigningMethod   string `json:"signingMethod" validate:"required,max=50"`
	EncodingMethod  string `json:"encodingMethod" validate:"required,max=50"`
	PublicKey       string `json:"publicKey" validate:"required,max=2500"`
}

// TransactionInfo 交易信息
type TransactionInfo struct {
	TransactionId     string         `json:"transactionId" validate:"required,max=36"`
	ChargingState     *ChargingState `json:"chargingState,omitempty"`
	TimeSpentCharging *int           `json:"timeSpentCharging,omitempty"`
	StoppedReason     *StoppedReason `json:"stoppedReason,omitempty"`
	RemoteStartId     *int           `json:"remoteStartId,omitempty"`
}

// ChargingProfile 充电配置文件
type ChargingProfile struct {
	Id                     int                    `json:"id"`
	StackLevel             int                    `json:"stackLevel" validate:"gte=0,lte=9"`
	ChargingProfilePurpose ChargingProfilePurpose `json:"chargingProfilePurpose" validate:"required"`
	ChargingProfileKind    ChargingProfileKind    `json:"chargingProfileKind" validate:"required"`
	RecurrencyKind         *RecurrencyKind        `json:"recurrencyKind,omitempty"`
	ValidFrom              *DateTime              `json:"validFrom,omitempty"`
	ValidTo                *DateTime              `json:"validTo,omitempty"`
	TransactionId          *string                `json:"transactionId,omitempty" validate:"omitempty,max=36"`
	ChargingSchedule       []ChargingSchedule     `json:"chargingSchedule" validate:"required,min=1,max=3"`
}

// ChargingSchedule 充电计划
type ChargingSchedule struct {
	Id                     int                      `json:"id" validate:"required,min=1"`
	StartSchedule          *DateTime                `json:"startSchedule,omitempty"`
	Duration               *int                     `json:"duration,omitempty" validate:"omitempty,min=1"`
	ChargingRateUnit       ChargingRateUnit         `json:"chargingRateUnit" validate:"required"`
	MinChargingRate        *float64                 `json:"minChargingRate,omitempty" validate:"omitempty,gte=0"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod" validate:"required,min=1"`
}

// ChargingSchedulePeriod 充电计划周期
type ChargingSchedulePeriod struct {
	StartPeriod  int     `json:"startPeriod" validate:"gte=0"`
	Limit        float64 `json:"limit" validate:"gt=0"`
	NumberPhases *int    `json:"numberPhases,omitempty" validate:"omitempty,min=1,max=3"`
	PhaseToUse   *int    `json:"phaseToUse,omitempty" validate:"omitempty,min=1,max=3"`
}

// GetVariableData 获取变量请求项
type GetVariableData struct {
	Component     Component      `json:"component" validate:"required"`
	Variable      Variable       `json:"variable" validate:"required"`
	AttributeType *AttributeType `json:"attributeType,omitempty"`
}

// GetVariableResult 获取变量结果项
type GetVariableResult struct {
	AttributeStatus GetVariableStatus `json:"attributeStatus" validate:"required"`
	Component       Component         `json:"component" validate:"required"`
	Variable        Variable          `json:"variable" validate:"required"`
	AttributeType   *AttributeType    `json:"attributeType,omitempty"`
	AttributeValue  *string           `json:"attributeValue,omitempty" validate:"omitempty,max=2500"`
	StatusInfo      *StatusInfo       `json:"statusInfo,omitempty"`
}

// SetVariableData 设置变量请求项
type SetVariableData struct {
	AttributeType  *AttributeType `json:"attributeType,omitempty"`
	AttributeValue string         `json:"attributeValue" validate:"max=1000"`
	Component      Component      `json:"component" validate:"required"`
	Variable       Variable       `json:"variable" validate:"required"`
}

// SetVariableResult 设置变量结果项
type SetVariableResult struct {
	AttributeStatus SetVariableStatus `json:"attributeStatus" validate:"required"`
	Component       Component         `json:"component" validate:"required"`
	Variable        Variable          `json:"variable" validate:"required"`
	AttributeType   *AttributeType    `json:"attributeType,omitempty"`
	StatusInfo      *StatusInfo       `json:"statusInfo,omitempty"`
}

// ReportData 设备模型报告项
type ReportData struct {
	Component               Component                `json:"component" validate:"required"`
	Variable                Variable                 `json:"variable" validate:"required"`
	VariableAttribute       []VariableAttribute      `json:"variableAttribute" validate:"required,min=1,max=4"`
	VariableCharacteristics *VariableCharacteristics `json:"variableCharacteristics,omitempty"`
}

// VariableAttribute 变量属性
type VariableAttribute struct {
	Type       *AttributeType  `json:"type,omitempty"`
	Value      *string         `json:"value,omitempty" validate:"omitempty,max=2500"`
	Mutability *MutabilityType `json:"mutability,omitempty"`
	Persistent *bool           `json:"persistent,omitempty"`
	Constant   *bool           `json:"constant,omitempty"`
}

// VariableCharacteristics 变量特征
type VariableCharacteristics struct {
	Unit               *string  `json:"unit,omitempty" validate:"omitempty,max=16"`
	DataType           DataType `json:"dataType" validate:"required"`
	MinLimit           *float64 `json:"minLimit,omitempty"`
	MaxLimit           *float64 `json:"maxLimit,omitempty"`
	ValuesList         *string  `json:"valuesList,omitempty" validate:"omitempty,max=1000"`
	SupportsMonitoring bool     `json:"supportsMonitoring"`
}
