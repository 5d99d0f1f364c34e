package ocpp201

// BootNotificationRequest 启动通知请求
type BootNotificationRequest struct {
	ChargingStation ChargingStation `json:"chargingStation" validate:"required"`
	Reason          BootReason      `json:"reason" validate:"required"`
}

// BootNotificationResponse 启动通知响应
type BootNotificationResponse struct {
	CurrentTime DateTime           `json:"currentTime" validate:"required"`
	Interval    int                `json:"interval" validate:"gte=0"`
	Status      RegistrationStatus `json:"status" validate:"required"`
	StatusInfo  *StatusInfo        `json:"statusInfo,omitempty"`
}

// HeartbeatRequest 心跳请求
type HeartbeatRequest struct{}

// HeartbeatResponse 心跳响应
type HeartbeatResponse struct {
	CurrentTime DateTime `json:"currentTime" validate:"required"`
}

// StatusNotificationRequest 状态通知请求
type StatusNotificationRequest struct {
	Timestamp       DateTime        `json:"timestamp" validate:"required"`
	ConnectorStatus ConnectorStatus `json:"connectorStatus" validate:"required"`
	EvseId          int             `json:"evseId" validate:"required,min=1"`
	ConnectorId     int             `json:"connectorId" validate:"required,min=1"`
}

// StatusNotificationResponse 状态通知响应
type StatusNotificationResponse struct{}

// AuthorizeRequest 授权请求
type AuthorizeRequest struct {
	IdToken IdToken `json:"idToken" validate:"required"`
}

// AuthorizeResponse 授权响应
type AuthorizeResponse struct {
	IdTokenInfo IdTokenInfo `json:"idTokenInfo" validate:"required"`
}

// TransactionEventRequest 交易事件请求
type TransactionEventRequest struct {
	EventType          TransactionEventType `json:"eventType" validate:"required"`
	Timestamp          DateTime             `json:"timestamp" validate:"required"`
	TriggerReason      TriggerReason        `json:"triggerReason" validate:"required"`
	SeqNo              int                  `json:"seqNo" validate:"gte=0"`
	TransactionInfo    TransactionInfo      `json:"transactionInfo" validate:"required"`
	Offline            *bool                `json:"offline,omitempty"`
	NumberOfPhasesUsed *int                 `json:"numberOfPhasesUsed,omitempty"`
	CableMaxCurrent    *int                 `json:"cableMaxCurrent,omitempty"`
	ReservationId      *int                 `json:"reservationId,omitempty"`
	IdToken            *IdToken             `json:"idToken,omitempty"`
	Evse               *EVSE                `json:"evse,omitempty"`
	MeterValue         []MeterValue         `json:"meterValue,omitempty"`
	CustomData         CustomData           `json:"customData,omitempty"`
}

// TransactionEventResponse 交易事件响应
type TransactionEventResponse struct {
	TotalCost              *float64     `json:"totalCost,omitempty"`
	ChargingPriority       *int         `json:"chargingPriority,omitempty"`
	IdTokenInfo            *IdTokenInfo `json:"idTokenInfo,omitempty"`
	UpdatedPersonalMessage *string      `json:"updatedPersonalMessage,omitempty"`
}

// MeterValuesRequest 电表值请求
type MeterValuesRequest struct {
	EvseId     int          `json:"evseId" validate:"gte=0"`
	MeterValue []MeterValue `json:"meterValue" validate:"required,min=1"`
}

// MeterValuesResponse 电表值响应
type MeterValuesResponse struct{}

// NotifyReportRequest 设备模型报告请求
type NotifyReportRequest struct {
	RequestId   int          `json:"requestId" validate:"gte=0"`
	GeneratedAt DateTime     `json:"generatedAt" validate:"required"`
	SeqNo       int          `json:"seqNo" validate:"gte=0"`
	Tbc         bool         `json:"tbc"`
	ReportData  []ReportData `json:"reportData,omitempty"`
}

// NotifyReportResponse 设备模型报告响应
type NotifyReportResponse struct{}

// ClearCacheRequest 清除缓存请求
type ClearCacheRequest struct{}

// ClearCacheResponse 清除缓存响应
type ClearCacheResponse struct {
	Status     ClearCacheStatus `json:"status" validate:"required"`
	StatusInfo *StatusInfo      `json:"statusInfo,omitempty"`
}

// ResetRequest 重置请求
type ResetRequest struct {
	Type   ResetType `json:"type" validate:"required"`
	EvseId *int      `json:"evseId,omitempty" validate:"omitempty,min=1"`
}

// ResetResponse 重置响应
type ResetResponse struct {
	Status     ResetStatus `json:"status" validate:"required"`
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
}

// GetBaseReportRequest 获取基础报告请求
type GetBaseReportRequest struct {
	RequestId  int        `json:"requestId" validate:"gte=0"`
	ReportBase ReportBase `json:"reportBase" validate:"required"`
}

// GetBaseReportResponse 获取基础报告响应
type GetBaseReportResponse struct {
	Status     GenericDeviceModelStatus `json:"status" validate:"required"`
	StatusInfo *StatusInfo              `json:"statusInfo,omitempty"`
}

// GetVariablesRequest 获取变量请求
type GetVariablesRequest struct {
	GetVariableData []GetVariableData `json:"getVariableData" validate:"required,min=1"`
}

// GetVariablesResponse 获取变量响应
type GetVariablesResponse struct {
	GetVariableResult []GetVariableResult `json:"getVariableResult" validate:"required,min=1"`
}

// SetVariablesRequest 设置变量请求
type SetVariablesRequest struct {
	SetVariableData []SetVariableData `json:"setVariableData" validate:"required,min=1"`
}

// SetVariablesResponse 设置变量响应
type SetVariablesResponse struct {
	SetVariableResult []SetVariableResult `json:"setVariableResult" validate:"required,min=1"`
}

// RequestStartTransactionRequest 远程启动交易请求
type RequestStartTransactionRequest struct {
	IdToken         IdToken          `json:"idToken" validate:"required"`
	RemoteStartId   int              `json:"remoteStartId" validate:"required"`
	EvseId          *int             `json:"evseId,omitempty" validate:"omitempty,min=1"`
	GroupIdToken    *IdToken         `json:"groupIdToken,omitempty"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty"`
}

// RequestStartTransactionResponse 远程启动交易响应
type RequestStartTransactionResponse struct {
	Status        RequestStartStopStatus `json:"status" validate:"required"`
	TransactionId *string                `json:"transactionId,omitempty" validate:"omitempty,max=36"`
	StatusInfo    *StatusInfo            `json:"statusInfo,omitempty"`
}

// RequestStopTransactionRequest 远程停止交易请求
type RequestStopTransactionRequest struct {
	TransactionId string `json:"transactionId" validate:"required,max=36"`
}

// RequestStopTransactionResponse 远程停止交易响应
type RequestStopTransactionResponse struct {
	Status     RequestStartStopStatus `json:"status" validate:"required"`
	StatusInfo *StatusInfo            `json:"statusInfo,omitempty"`
}
