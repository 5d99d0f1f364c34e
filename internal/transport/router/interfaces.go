package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp"
)

// Transport 底层消息传输接口，由WebSocket客户端实现
type Transport interface {
	// Send 发送一帧文本消息
	Send(data []byte) error

	// IsOpen 当前连接是否可用
	IsOpen() bool

	// OnFrame 注册入站帧回调
	OnFrame(fn func(data []byte))

	// OnOpen 注册连接建立回调
	OnOpen(fn func(subprotocol string))

	// OnClose 注册连接断开回调
	OnClose(fn func(err error))
}

// InboundCall CSMS下发的CALL请求
type InboundCall struct {
	MessageID  string          `json:"message_id"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// CallHandler 处理CSMS下发的CALL，响应经路由器发回
type CallHandler func(ctx context.Context, call *InboundCall)

// CallOptions 单次CALL发送选项
type CallOptions struct {
	// Timeout 等待CALLRESULT的超时，0使用路由器默认值
	Timeout time.Duration

	// SkipBufferingOnError 发送失败时不进入离线缓冲，直接报错
	SkipBufferingOnError bool

	// TriggerMessage 标记此消息由TriggerMessage触发
	TriggerMessage bool
}

// MessageRouter 消息路由器接口
// 专注于OCPP-J帧的封装、关联与离线缓冲，不处理协议语义
type MessageRouter interface {
	// Call 发送CALL并等待关联的CALLRESULT/CALLERROR
	Call(ctx context.Context, action string, payload interface{}, opts *CallOptions) (json.RawMessage, error)

	// SendCallResult 发送CALLRESULT响应
	SendCallResult(messageID string, payload interface{}) error

	// SendCallError 发送CALLERROR响应
	SendCallError(messageID string, ocppErr *ocpp.Error) error

	// SetTransport 设置底层传输
	SetTransport(transport Transport) error

	// SetCallHandler 设置入站CALL处理器
	SetCallHandler(handler CallHandler) error

	// OnOpen 注册连接建立订阅，回调在缓冲重放完成后异步触发
	OnOpen(fn func(subprotocol string))

	// OnClose 注册连接断开订阅
	OnClose(fn func(err error))

	// Start 启动路由器
	Start() error

	// Stop 停止路由器，未决请求以Cancelled结束
	Stop() error

	// IsOpen 底层连接是否可用
	IsOpen() bool

	// PendingCount 等待响应的请求数
	PendingCount() int

	// BufferedCount 离线缓冲中的请求数
	BufferedCount() int

	// GetStats 获取路由统计信息
	GetStats() RouterStats

	// ResetStats 重置统计信息
	ResetStats()
}

// RouterConfig 路由器配置
type RouterConfig struct {
	// 站点标识，用于日志前缀与指标标签
	StationID   string `json:"station_id"`
	OCPPVersion string `json:"ocpp_version"`

	// 消息处理配置
	DefaultCallTimeout time.Duration `json:"default_call_timeout"`

	// 离线缓冲配置
	OfflineQueueLimit int `json:"offline_queue_limit"`

	// 日志与统计
	EnableMessageLogging bool          `json:"enable_message_logging"`
	EnableMetrics        bool          `json:"enable_metrics"`
	StatsInterval        time.Duration `json:"stats_interval"`
}

// DefaultRouterConfig 默认路由器配置
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		DefaultCallTimeout:   30 * time.Second,
		OfflineQueueLimit:    1000,
		EnableMessageLogging: false,
		EnableMetrics:        true,
		StatsInterval:        1 * time.Minute,
	}
}

// RouterStats 路由器统计信息
type RouterStats struct {
	// 出站统计
	CallsSent      int64 `json:"calls_sent"`
	CallsSucceeded int64 `json:"calls_succeeded"`
	CallsFailed    int64 `json:"calls_failed"`
	CallsTimedOut  int64 `json:"calls_timed_out"`
	CallsCancelled int64 `json:"calls_cancelled"`

	// 离线缓冲统计
	CallsBuffered  int64 `json:"calls_buffered"`
	BufferReplayed int64 `json:"buffer_replayed"`
	BufferDropped  int64 `json:"buffer_dropped"`

	// 入站统计
	InboundCalls       int64 `json:"inbound_calls"`
	RepliesUnknown     int64 `json:"replies_unknown"`
	MalformedFrames    int64 `json:"malformed_frames"`
	CallErrorsReceived int64 `json:"call_errors_received"`
	CallErrorsSent     int64 `json:"call_errors_sent"`
	ResponsesSent      int64 `json:"responses_sent"`

	// 性能统计
	AverageRoundTripMs float64 `json:"average_round_trip_ms"`
	MaxRoundTripMs     float64 `json:"max_round_trip_ms"`

	// 当前状态
	PendingCalls  int `json:"pending_calls"`
	BufferedCalls int `json:"buffered_calls"`

	// 时间信息
	StartTime     time.Time     `json:"start_time"`
	LastResetTime time.Time     `json:"last_reset_time"`
	Uptime        time.Duration `json:"uptime"`
}

// RouterError 路由器错误类型
type RouterError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 预定义错误代码
const (
	ErrCodeTransportNotSet  = "TRANSPORT_NOT_SET"
	ErrCodeHandlerNotSet    = "CALL_HANDLER_NOT_SET"
	ErrCodeAlreadyStarted   = "ALREADY_STARTED"
	ErrCodeNotStarted       = "NOT_STARTED"
	ErrCodeSendFailed       = "SEND_FAILED"
	ErrCodeOfflineQueueFull = "OFFLINE_QUEUE_FULL"
	ErrCodeEncodeFailed     = "ENCODE_FAILED"
)

// IsTransient 判断错误是否为可重试的传输类失败
func IsTransient(err error) bool {
	routerErr, ok := err.(*RouterError)
	if !ok {
		return false
	}
	return routerErr.Code == ErrCodeSendFailed || routerErr.Code == ErrCodeOfflineQueueFull
}
