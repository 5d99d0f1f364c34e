package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event 统一业务事件接口
type Event interface {
	// GetID 获取事件ID
	GetID() string
	// GetType 获取事件类型
	GetType() EventType
	// GetStationID 获取站点ID
	GetStationID() string
	// GetTimestamp 获取事件时间戳
	GetTimestamp() time.Time
	// GetSeverity 获取事件严重程度
	GetSeverity() EventSeverity
	// GetMetadata 获取事件元数据
	GetMetadata() Metadata
	// GetPayload 获取事件载荷
	GetPayload() interface{}
	// ToJSON 序列化为JSON
	ToJSON() ([]byte, error)
}

// BaseEvent 基础事件结构
type BaseEvent struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	StationID string        `json:"station_id"`
	Timestamp time.Time     `json:"timestamp"`
	Severity  EventSeverity `json:"severity"`
	Metadata  Metadata      `json:"metadata"`
}

// GetID 实现Event接口
func (e *BaseEvent) GetID() string {
	return e.ID
}

// GetType 实现Event接口
func (e *BaseEvent) GetType() EventType {
	return e.Type
}

// GetStationID 实现Event接口
func (e *BaseEvent) GetStationID() string {
	return e.StationID
}

// GetTimestamp 实现Event接口
func (e *BaseEvent) GetTimestamp() time.Time {
	return e.Timestamp
}

// GetSeverity 实现Event接口
func (e *BaseEvent) GetSeverity() EventSeverity {
	return e.Severity
}

// GetMetadata 实现Event接口
func (e *BaseEvent) GetMetadata() Metadata {
	return e.Metadata
}

// GetPayload 实现Event接口
func (e *BaseEvent) GetPayload() interface{} {
	return nil
}

// ToJSON 实现Event接口
func (e *BaseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NewBaseEvent 创建基础事件
func NewBaseEvent(eventType EventType, stationID string, severity EventSeverity, metadata Metadata) *BaseEvent {
	return &BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		StationID: stationID,
		Timestamp: time.Now().UTC(),
		Severity:  severity,
		Metadata:  metadata,
	}
}

// StationConnectedEvent 站点上线事件
type StationConnectedEvent struct {
	*BaseEvent
	StationInfo StationInfo `json:"station_info"`
}

// GetPayload 实现Event接口
func (e *StationConnectedEvent) GetPayload() interface{} {
	return e.StationInfo
}

// ToJSON 实现Event接口
func (e *StationConnectedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// StationDisconnectedEvent 站点离线事件
type StationDisconnectedEvent struct {
	*BaseEvent
	Reason string `json:"reason"`
}

// GetPayload 实现Event接口
func (e *StationDisconnectedEvent) GetPayload() interface{} {
	return map[string]interface{}{
		"reason": e.Reason,
	}
}

// ToJSON 实现Event接口
func (e *StationDisconnectedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// StationRegisteredEvent 站点注册事件，CSMS接受BootNotification后发出
type StationRegisteredEvent struct {
	*BaseEvent
	StationInfo StationInfo `json:"station_info"`
	Interval    int         `json:"interval"`
}

// GetPayload 实现Event接口
func (e *StationRegisteredEvent) GetPayload() interface{} {
	return map[string]interface{}{
		"station_info": e.StationInfo,
		"interval":     e.Interval,
	}
}

// ToJSON 实现Event接口
func (e *StationRegisteredEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ConnectorStatusChangedEvent 连接器状态变更事件
type ConnectorStatusChangedEvent struct {
	*BaseEvent
	ConnectorInfo  ConnectorInfo   `json:"connector_info"`
	PreviousStatus ConnectorStatus `json:"previous_status"`
}

// GetPayload 实现Event接口
func (e *ConnectorStatusChangedEvent) GetPayload() interface{} {
	return map[string]interface{}{
		"connector_info":  e.ConnectorInfo,
		"previous_status": e.PreviousStatus,
	}
}

// ToJSON 实现Event接口
func (e *ConnectorStatusChangedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionStartedEvent 交易开始事件
type TransactionStartedEvent struct {
	*BaseEvent
	TransactionInfo TransactionInfo `json:"transaction_info"`
}

// GetPayload 实现Event接口
func (e *TransactionStartedEvent) GetPayload() interface{} {
	return e.TransactionInfo
}

// ToJSON 实现Event接口
func (e *TransactionStartedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionStoppedEvent 交易停止事件
type TransactionStoppedEvent struct {
	*BaseEvent
	TransactionInfo TransactionInfo `json:"transaction_info"`
	EnergyDelivered int             `json:"energy_delivered_wh"`
}

// GetPayload 实现Event接口
func (e *TransactionStoppedEvent) GetPayload() interface{} {
	return map[string]interface{}{
		"transaction_info":    e.TransactionInfo,
		"energy_delivered_wh": e.EnergyDelivered,
	}
}

// ToJSON 实现Event接口
func (e *TransactionStoppedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// CsmsRequestReceivedEvent CSMS请求接收事件
type CsmsRequestReceivedEvent struct {
	*BaseEvent
	Request CsmsRequestInfo `json:"request"`
}

// GetPayload 实现Event接口
func (e *CsmsRequestReceivedEvent) GetPayload() interface{} {
	return e.Request
}

// ToJSON 实现Event接口
func (e *CsmsRequestReceivedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// CsmsRequestHandledEvent CSMS请求处理完成事件，携带本侧的处置结果
type CsmsRequestHandledEvent struct {
	*BaseEvent
	Request CsmsRequestInfo `json:"request"`
}

// GetPayload 实现Event接口
func (e *CsmsRequestHandledEvent) GetPayload() interface{} {
	return e.Request
}

// ToJSON 实现Event接口
func (e *CsmsRequestHandledEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FirmwareStatusChangedEvent 固件升级状态变更事件
type FirmwareStatusChangedEvent struct {
	*BaseEvent
	Status string `json:"status"`
}

// GetPayload 实现Event接口
func (e *FirmwareStatusChangedEvent) GetPayload() interface{} {
	return map[string]interface{}{
		"status": e.Status,
	}
}

// ToJSON 实现Event接口
func (e *FirmwareStatusChangedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// DiagnosticsStatusChangedEvent 诊断上传状态变更事件
type DiagnosticsStatusChangedEvent struct {
	*BaseEvent
	Status string `json:"status"`
}

// GetPayload 实现Event接口
func (e *DiagnosticsStatusChangedEvent) GetPayload() interface{} {
	return map[string]interface{}{
		"status": e.Status,
	}
}

// ToJSON 实现Event接口
func (e *DiagnosticsStatusChangedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// CallFailedEvent CALL失败事件，覆盖超时和CALLERROR响应
type CallFailedEvent struct {
	*BaseEvent
	Action    string    `json:"action"`
	ErrorInfo ErrorInfo `json:"error_info"`
}

// GetPayload 实现Event接口
func (e *CallFailedEvent) GetPayload() interface{} {
	return map[string]interface{}{
		"action":     e.Action,
		"error_info": e.ErrorInfo,
	}
}

// ToJSON 实现Event接口
func (e *CallFailedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ProtocolErrorEvent 协议错误事件
type ProtocolErrorEvent struct {
	*BaseEvent
	ErrorInfo       ErrorInfo   `json:"error_info"`
	OriginalMessage interface{} `json:"original_message,omitempty"`
}

// GetPayload 实现Event接口
func (e *ProtocolErrorEvent) GetPayload() interface{} {
	return map[string]interface{}{
		"error_info":       e.ErrorInfo,
		"original_message": e.OriginalMessage,
	}
}

// ToJSON 实现Event接口
func (e *ProtocolErrorEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFactory 事件工厂
type EventFactory struct{}

// NewEventFactory 创建事件工厂
func NewEventFactory() *EventFactory {
	return &EventFactory{}
}

// CreateStationConnectedEvent 创建站点上线事件
func (f *EventFactory) CreateStationConnectedEvent(stationID string, info StationInfo, metadata Metadata) *StationConnectedEvent {
	return &StationConnectedEvent{
		BaseEvent:   NewBaseEvent(EventTypeStationConnected, stationID, EventSeverityInfo, metadata),
		StationInfo: info,
	}
}

// CreateStationDisconnectedEvent 创建站点离线事件
func (f *EventFactory) CreateStationDisconnectedEvent(stationID string, reason string, metadata Metadata) *StationDisconnectedEvent {
	return &StationDisconnectedEvent{
		BaseEvent: NewBaseEvent(EventTypeStationDisconnected, stationID, EventSeverityWarning, metadata),
		Reason:    reason,
	}
}

// CreateStationRegisteredEvent 创建站点注册事件
func (f *EventFactory) CreateStationRegisteredEvent(stationID string, info StationInfo, interval int, metadata Metadata) *StationRegisteredEvent {
	return &StationRegisteredEvent{
		BaseEvent:   NewBaseEvent(EventTypeStationRegistered, stationID, EventSeverityInfo, metadata),
		StationInfo: info,
		Interval:    interval,
	}
}

// CreateConnectorStatusChangedEvent 创建连接器状态变更事件
func (f *EventFactory) CreateConnectorStatusChangedEvent(stationID string, connectorInfo ConnectorInfo, previousStatus ConnectorStatus, metadata Metadata) *ConnectorStatusChangedEvent {
	return &ConnectorStatusChangedEvent{
		BaseEvent:      NewBaseEvent(EventTypeConnectorStatusChanged, stationID, EventSeverityInfo, metadata),
		ConnectorInfo:  connectorInfo,
		PreviousStatus: previousStatus,
	}
}

// CreateTransactionStartedEvent 创建交易开始事件
func (f *EventFactory) CreateTransactionStartedEvent(stationID string, transactionInfo TransactionInfo, metadata Metadata) *TransactionStartedEvent {
	return &TransactionStartedEvent{
		BaseEvent:       NewBaseEvent(EventTypeTransactionStarted, stationID, EventSeverityInfo, metadata),
		TransactionInfo: transactionInfo,
	}
}

// CreateTransactionStoppedEvent 创建交易停止事件
func (f *EventFactory) CreateTransactionStoppedEvent(stationID string, transactionInfo TransactionInfo, energyDelivered int, metadata Metadata) *TransactionStoppedEvent {
	return &TransactionStoppedEvent{
		BaseEvent:       NewBaseEvent(EventTypeTransactionStopped, stationID, EventSeverityInfo, metadata),
		TransactionInfo: transactionInfo,
		EnergyDelivered: energyDelivered,
	}
}

// CreateCsmsRequestHandledEvent 创建CSMS请求处理事件
func (f *EventFactory) CreateCsmsRequestHandledEvent(stationID string, request CsmsRequestInfo, metadata Metadata) *CsmsRequestHandledEvent {
	return &CsmsRequestHandledEvent{
		BaseEvent: NewBaseEvent(EventTypeCsmsRequestHandled, stationID, EventSeverityInfo, metadata),
		Request:   request,
	}
}

// CreateCallFailedEvent 创建CALL失败事件
func (f *EventFactory) CreateCallFailedEvent(stationID string, action string, errorInfo ErrorInfo, metadata Metadata) *CallFailedEvent {
	return &CallFailedEvent{
		BaseEvent: NewBaseEvent(EventTypeCallFailed, stationID, EventSeverityWarning, metadata),
		Action:    action,
		ErrorInfo: errorInfo,
	}
}

// CreateProtocolErrorEvent 创建协议错误事件
func (f *EventFactory) CreateProtocolErrorEvent(stationID string, errorInfo ErrorInfo, originalMessage interface{}, metadata Metadata) *ProtocolErrorEvent {
	return &ProtocolErrorEvent{
		BaseEvent:       NewBaseEvent(EventTypeProtocolError, stationID, EventSeverityError, metadata),
		ErrorInfo:       errorInfo,
		OriginalMessage: originalMessage,
	}
}
