package events

import (
	"time"
)

// EventType 事件类型
type EventType string

const (
	// 站点生命周期事件
	EventTypeStationConnected    EventType = "station.connected"
	EventTypeStationDisconnected EventType = "station.disconnected"
	EventTypeStationRegistered   EventType = "station.registered"
	EventTypeStationBootPending  EventType = "station.boot_pending"
	EventTypeStationBootRejected EventType = "station.boot_rejected"

	// 连接器状态事件
	EventTypeConnectorStatusChanged EventType = "connector.status_changed"
	EventTypeHeartbeatSent          EventType = "station.heartbeat_sent"

	// 交易事件
	EventTypeTransactionStarted EventType = "transaction.started"
	EventTypeTransactionUpdated EventType = "transaction.updated"
	EventTypeTransactionStopped EventType = "transaction.stopped"

	// CSMS下发指令事件
	EventTypeCsmsRequestReceived EventType = "csms_request.received"
	EventTypeCsmsRequestHandled  EventType = "csms_request.handled"
	EventTypeCsmsRequestRejected EventType = "csms_request.rejected"

	// 固件和诊断事件
	EventTypeFirmwareStatusChanged    EventType = "firmware.status_changed"
	EventTypeDiagnosticsStatusChanged EventType = "diagnostics.status_changed"

	// 错误事件
	EventTypeCallFailed    EventType = "call.failed"
	EventTypeProtocolError EventType = "protocol.error"
)

// EventSeverity 事件严重程度
type EventSeverity string

const (
	EventSeverityInfo     EventSeverity = "info"
	EventSeverityWarning  EventSeverity = "warning"
	EventSeverityError    EventSeverity = "error"
	EventSeverityCritical EventSeverity = "critical"
)

// StationStatus 统一的站点状态
type StationStatus string

const (
	StationStatusOnline     StationStatus = "online"
	StationStatusOffline    StationStatus = "offline"
	StationStatusRegistered StationStatus = "registered"
	StationStatusRejected   StationStatus = "rejected"
)

// ConnectorStatus 统一的连接器状态
type ConnectorStatus string

const (
	ConnectorStatusAvailable     ConnectorStatus = "available"
	ConnectorStatusPreparing     ConnectorStatus = "preparing"
	ConnectorStatusCharging      ConnectorStatus = "charging"
	ConnectorStatusSuspendedEVSE ConnectorStatus = "suspended_evse"
	ConnectorStatusSuspendedEV   ConnectorStatus = "suspended_ev"
	ConnectorStatusFinishing     ConnectorStatus = "finishing"
	ConnectorStatusReserved      ConnectorStatus = "reserved"
	ConnectorStatusUnavailable   ConnectorStatus = "unavailable"
	ConnectorStatusFaulted       ConnectorStatus = "faulted"
)

// TransactionStatus 统一的交易状态
type TransactionStatus string

const (
	TransactionStatusStarting TransactionStatus = "starting"
	TransactionStatusActive   TransactionStatus = "active"
	TransactionStatusStopping TransactionStatus = "stopping"
	TransactionStatusStopped  TransactionStatus = "stopped"
)

// ErrorCode 统一错误代码
type ErrorCode string

const (
	ErrorCodeProtocolError      ErrorCode = "protocol_error"
	ErrorCodeFormatViolation    ErrorCode = "format_violation"
	ErrorCodePropertyConstraint ErrorCode = "property_constraint"
	ErrorCodeGenericError       ErrorCode = "generic_error"
	ErrorCodeInternalError      ErrorCode = "internal_error"
	ErrorCodeNotImplemented     ErrorCode = "not_implemented"
	ErrorCodeNotSupported       ErrorCode = "not_supported"
	ErrorCodeSecurityError      ErrorCode = "security_error"
	ErrorCodeTimeout            ErrorCode = "timeout"
)

// StationInfo 站点基本信息
type StationInfo struct {
	ID              string    `json:"id"`
	Vendor          string    `json:"vendor"`
	Model           string    `json:"model"`
	SerialNumber    *string   `json:"serial_number,omitempty"`
	FirmwareVersion *string   `json:"firmware_version,omitempty"`
	ConnectorCount  int       `json:"connector_count"`
	LastSeen        time.Time `json:"last_seen"`
	ProtocolVersion string    `json:"protocol_version"`
}

// ConnectorInfo 连接器信息
type ConnectorInfo struct {
	ID        int             `json:"id"`
	EvseID    int             `json:"evse_id,omitempty"`
	StationID string          `json:"station_id"`
	Status    ConnectorStatus `json:"status"`
	ErrorCode *string         `json:"error_code,omitempty"`
	Info      *string         `json:"info,omitempty"`
}

// TransactionInfo 交易信息
// 1.6的交易ID是CSMS分配的整数，2.0.1是站点生成的字符串，两者统一为字符串并保留原始整数
type TransactionInfo struct {
	ID          string            `json:"id"`
	NumericID   *int              `json:"numeric_id,omitempty"`
	StationID   string            `json:"station_id"`
	ConnectorID int               `json:"connector_id"`
	EvseID      int               `json:"evse_id,omitempty"`
	IdTag       string            `json:"id_tag"`
	Status      TransactionStatus `json:"status"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	MeterStart  int               `json:"meter_start"`
	MeterStop   *int              `json:"meter_stop,omitempty"`
	StopReason  *string           `json:"stop_reason,omitempty"`
}

// CsmsRequestInfo CSMS下发请求信息
type CsmsRequestInfo struct {
	Action    string                 `json:"action"`
	MessageID string                 `json:"message_id"`
	Outcome   string                 `json:"outcome,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ErrorInfo 错误信息
type ErrorInfo struct {
	Code        ErrorCode              `json:"code"`
	Description string                 `json:"description"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Metadata 事件元数据
type Metadata struct {
	Source          string                 `json:"source"`                   // 事件源标识，通常是模拟器实例ID
	CorrelationID   *string                `json:"correlation_id,omitempty"` // 关联ID
	ProtocolVersion string                 `json:"protocol_version"`         // 协议版本
	MessageID       *string                `json:"message_id,omitempty"`     // 原始消息ID
	Custom          map[string]interface{} `json:"custom,omitempty"`         // 自定义字段
}
