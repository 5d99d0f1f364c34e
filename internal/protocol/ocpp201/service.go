package ocpp201

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/charging-platform/station-simulator/internal/devicemodel"
	"github.com/charging-platform/station-simulator/internal/domain/events"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	"github.com/charging-platform/station-simulator/internal/domain/protocol"
	"github.com/charging-platform/station-simulator/internal/domain/validation"
	"github.com/charging-platform/station-simulator/internal/logger"
	"github.com/charging-platform/station-simulator/internal/schema"
	"github.com/charging-platform/station-simulator/internal/station"
	"github.com/charging-platform/station-simulator/internal/transport/router"
)

// Config OCPP 2.0.1协议服务配置
type Config struct {
	// 请求配置
	CallTimeout       time.Duration `json:"call_timeout"`        // 出站CALL默认超时
	BootRetryInterval time.Duration `json:"boot_retry_interval"` // BootNotification重试间隔

	// 任务配置
	HeartbeatInterval        time.Duration `json:"heartbeat_interval"`          // 配置键缺失时的心跳间隔
	MeterValueSampleInterval time.Duration `json:"meter_value_sample_interval"` // 配置键缺失时的电表采样间隔
	NotifyReportDelay        time.Duration `json:"notify_report_delay"`         // GetBaseReport应答与首条NotifyReport之间的延迟
	ResetIdlePollInterval    time.Duration `json:"reset_idle_poll_interval"`    // OnIdle重置等待交易结束的轮询间隔
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		CallTimeout:              30 * time.Second,
		BootRetryInterval:        10 * time.Second,
		HeartbeatInterval:        60 * time.Second,
		MeterValueSampleInterval: 60 * time.Second,
		NotifyReportDelay:        time.Second,
		ResetIdlePollInterval:    5 * time.Second,
	}
}

// MeterSample 一次电表采样的结果
type MeterSample struct {
	EnergyIncrementWh int                    // 本周期的电量增量
	SampledValues     []ocpp201.SampledValue // 电量累计值之外的附加采样
}

// MeterSampler 周期电表采样器，未注入时不发送周期TransactionEvent
type MeterSampler interface {
	Sample(interval time.Duration, powerDivider int) MeterSample
}

// inboundHandler 入站请求处理函数，返回响应载荷或OCPP错误
type inboundHandler func(ctx context.Context, call *router.InboundCall) (interface{}, error)

// outboundActions 本服务会主动发起的动作
var outboundActions = map[ocpp201.Action]struct{}{
	ocpp201.ActionBootNotification:   {},
	ocpp201.ActionHeartbeat:          {},
	ocpp201.ActionStatusNotification: {},
	ocpp201.ActionTransactionEvent:   {},
	ocpp201.ActionNotifyReport:       {},
}

// ServiceStats 协议服务统计
type ServiceStats struct {
	RequestsHandled       uint64 `json:"requests_handled"`
	RequestsRejected      uint64 `json:"requests_rejected"`
	CallsSent             uint64 `json:"calls_sent"`
	CallsFailed           uint64 `json:"calls_failed"`
	BootAttempts          uint64 `json:"boot_attempts"`
	HeartbeatsSent        uint64 `json:"heartbeats_sent"`
	TransactionEventsSent uint64 `json:"transaction_events_sent"`
	NotifyReportsSent     uint64 `json:"notify_reports_sent"`
	EventsQueued          uint64 `json:"events_queued"`
}

// Service OCPP 2.0.1站点协议引擎
// 处理CSMS下发的请求，构造站点发起的请求，并驱动心跳、交易事件等后台任务
type Service struct {
	config      *Config
	station     *station.Station
	router      router.MessageRouter
	deviceModel *devicemodel.Manager
	schemas     *schema.Validator
	validator   *validation.Validator
	clock       clock.WithTicker

	sampler MeterSampler

	handlers map[ocpp201.Action]inboundHandler

	// 后台任务
	heartbeatStop chan struct{}
	meterStops    map[int]chan struct{}
	taskMutex     sync.Mutex

	// OnIdle重置在途标记
	resetPending bool
	resetMutex   sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started    bool
	startMutex sync.Mutex

	stats      ServiceStats
	statsMutex sync.RWMutex

	logger *logger.Logger
}

// NewService 创建协议服务
// 设备模型管理器为进程级共享，可在多个站点服务间复用
func NewService(config *Config, st *station.Station, rt router.MessageRouter, dm *devicemodel.Manager, log *logger.Logger) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if dm == nil {
		dm = devicemodel.NewManager(nil, log)
	}

	s := &Service{
		config:      config,
		station:     st,
		router:      rt,
		deviceModel: dm,
		schemas:     schema.NewValidator(),
		validator:   validation.NewValidator(),
		clock:       clock.RealClock{},
		meterStops:  make(map[int]chan struct{}),
		logger:      log.WithComponent("ocpp201").WithStation(st.ID()),
	}
	s.handlers = map[ocpp201.Action]inboundHandler{
		ocpp201.ActionClearCache:              s.handleClearCache,
		ocpp201.ActionReset:                   s.handleReset,
		ocpp201.ActionGetBaseReport:           s.handleGetBaseReport,
		ocpp201.ActionGetVariables:            s.handleGetVariables,
		ocpp201.ActionSetVariables:            s.handleSetVariables,
		ocpp201.ActionRequestStartTransaction: s.handleRequestStartTransaction,
		ocpp201.ActionRequestStopTransaction:  s.handleRequestStopTransaction,
	}
	return s
}

// SetClock 替换时钟，测试使用
func (s *Service) SetClock(c clock.WithTicker) {
	s.clock = c
}

// SetMeterSampler 注入电表采样器
func (s *Service) SetMeterSampler(sampler MeterSampler) {
	s.sampler = sampler
}

// Start 注册路由回调并启动服务
// 必须在路由器Start之前调用
func (s *Service) Start() error {
	s.startMutex.Lock()
	defer s.startMutex.Unlock()

	if s.started {
		return fmt.Errorf("ocpp201 service already started")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	if err := s.router.SetCallHandler(s.handleIncoming); err != nil {
		s.cancel()
		return fmt.Errorf("failed to register call handler: %w", err)
	}
	s.router.OnOpen(s.handleConnected)
	s.router.OnClose(s.handleDisconnected)

	s.station.SetHeartbeatRestartHook(s.restartHeartbeat)

	s.started = true
	s.logger.Info("OCPP 2.0.1 service started")
	return nil
}

// Stop 取消后台任务、清除运行期变量覆盖并等待在途处理结束
func (s *Service) Stop() error {
	s.startMutex.Lock()
	defer s.startMutex.Unlock()

	if !s.started {
		return nil
	}

	s.cancel()
	s.stopHeartbeat()
	s.stopAllMeterTasks()
	s.wg.Wait()
	s.deviceModel.ResetRuntimeOverrides(s.station.ID())

	s.started = false
	s.logger.Info("OCPP 2.0.1 service stopped")
	return nil
}

// handleConnected 连接建立回调：未注册时执行启动序列，已注册时恢复心跳并补发离线事件
func (s *Service) handleConnected(subprotocol string) {
	s.logger.Infof("Connection established (subprotocol: %s)", subprotocol)

	st := s.station
	st.EmitEvent(st.EventFactory().CreateStationConnectedEvent(st.ID(), st.StationInfo(), st.Metadata()))

	if !st.IsRegistered() {
		s.runBootSequence(s.ctx, ocpp201.BootReasonPowerUp)
		return
	}

	s.restartHeartbeat(st.Configuration().HeartbeatInterval(s.config.HeartbeatInterval))
	s.sendAllStatusNotifications(s.ctx)
	s.sendQueuedTransactionEvents(s.ctx)
}

// handleDisconnected 连接断开回调：暂停心跳，交易事件转入离线队列
func (s *Service) handleDisconnected(err error) {
	reason := "connection closed"
	if err != nil {
		reason = err.Error()
	}
	s.logger.Warnf("Connection lost: %s", reason)

	s.stopHeartbeat()

	st := s.station
	st.EmitEvent(st.EventFactory().CreateStationDisconnectedEvent(st.ID(), reason, st.Metadata()))
}

// handleIncoming CSMS请求入口
// 流程：注册门禁 -> 支持检查 -> 模式校验 -> 分发 -> 应答
func (s *Service) handleIncoming(ctx context.Context, call *router.InboundCall) {
	action := ocpp201.Action(call.Action)
	s.logger.Debugf("Handling %s (message %s)", call.Action, call.MessageID)

	if ocppErr := s.checkRegistrationGate(action); ocppErr != nil {
		s.replyError(call, ocppErr)
		return
	}

	handler, ok := s.handlers[action]
	if !ok || s.validator.ValidateAction(protocol.OCPP_VERSION_2_0_1, call.Action) != nil {
		s.replyError(call, ocpp.NewError(ocpp.ErrorCodeNotImplemented,
			fmt.Sprintf("%s is not implemented", call.Action)))
		return
	}

	if err := s.schemas.ValidateRequest(protocol.OCPP_VERSION_2_0_1, call.Action, call.Payload); err != nil {
		s.replyError(call, ocpp.NewError(ocpp.ErrorCodeFormationViolation, err.Error()))
		return
	}

	response, err := handler(ctx, call)
	if err != nil {
		s.replyError(call, ocpp.AsError(err))
		return
	}

	if err := s.router.SendCallResult(call.MessageID, response); err != nil {
		s.logger.ErrorWithErr(err, fmt.Sprintf("Failed to send %s response", call.Action))
		s.incrementRequestsRejected()
		return
	}

	s.incrementRequestsHandled()
	s.emitRequestHandled(call, "Success")
}

// checkRegistrationGate 注册状态门禁
// 2.0.1在Pending状态仍处理CSMS请求，但严格合规时拒绝远程启停
func (s *Service) checkRegistrationGate(action ocpp201.Action) *ocpp.Error {
	st := s.station

	if action == ocpp201.ActionRequestStartTransaction || action == ocpp201.ActionRequestStopTransaction {
		if st.InPendingState() && st.StrictCompliance() {
			return ocpp.NewError(ocpp.ErrorCodeSecurityError,
				fmt.Sprintf("cannot handle %s while in pending registration state", action))
		}
	}
	if st.InAcceptedState() || st.InPendingState() || (st.InUnknownState() && !st.StrictCompliance()) {
		return nil
	}
	return ocpp.NewError(ocpp.ErrorCodeSecurityError,
		fmt.Sprintf("cannot handle %s while not registered", action))
}

// replyError 回复CALLERROR并发布失败事件
func (s *Service) replyError(call *router.InboundCall, ocppErr *ocpp.Error) {
	s.logger.Warnf("Rejecting %s: %s (%s)", call.Action, ocppErr.Description, ocppErr.Code)

	if err := s.router.SendCallError(call.MessageID, ocppErr); err != nil {
		s.logger.ErrorWithErr(err, fmt.Sprintf("Failed to send %s call error", call.Action))
	}
	s.incrementRequestsRejected()

	st := s.station
	st.EmitEvent(st.EventFactory().CreateCallFailedEvent(st.ID(), call.Action, events.ErrorInfo{
		Code:        events.ErrorCode(ocppErr.Code),
		Description: ocppErr.Description,
		Timestamp:   s.clock.Now(),
	}, st.Metadata()))
}

// emitRequestHandled 请求处理完成事件，应答发出后发布
func (s *Service) emitRequestHandled(call *router.InboundCall, outcome string) {
	st := s.station
	st.EmitEvent(st.EventFactory().CreateCsmsRequestHandledEvent(st.ID(), events.CsmsRequestInfo{
		Action:    call.Action,
		MessageID: call.MessageID,
		Outcome:   outcome,
	}, st.Metadata()))
}

// decodePayload 解析入站载荷，失败返回FormationViolation
func decodePayload(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return ocpp.NewError(ocpp.ErrorCodeFormationViolation, err.Error())
	}
	return nil
}

// GetStats 统计快照
func (s *Service) GetStats() ServiceStats {
	s.statsMutex.RLock()
	defer s.statsMutex.RUnlock()
	return s.stats
}

func (s *Service) incrementRequestsHandled() {
	s.statsMutex.Lock()
	s.stats.RequestsHandled++
	s.statsMutex.Unlock()
}

func (s *Service) incrementRequestsRejected() {
	s.statsMutex.Lock()
	s.stats.RequestsRejected++
	s.statsMutex.Unlock()
}

func (s *Service) incrementCallsSent() {
	s.statsMutex.Lock()
	s.stats.CallsSent++
	s.statsMutex.Unlock()
}

func (s *Service) incrementCallsFailed() {
	s.statsMutex.Lock()
	s.stats.CallsFailed++
	s.statsMutex.Unlock()
}

func (s *Service) incrementBootAttempts() {
	s.statsMutex.Lock()
	s.stats.BootAttempts++
	s.statsMutex.Unlock()
}

func (s *Service) incrementHeartbeatsSent() {
	s.statsMutex.Lock()
	s.stats.HeartbeatsSent++
	s.statsMutex.Unlock()
}

func (s *Service) incrementTransactionEventsSent() {
	s.statsMutex.Lock()
	s.stats.TransactionEventsSent++
	s.statsMutex.Unlock()
}

func (s *Service) incrementNotifyReportsSent() {
	s.statsMutex.Lock()
	s.stats.NotifyReportsSent++
	s.statsMutex.Unlock()
}

func (s *Service) incrementEventsQueued() {
	s.statsMutex.Lock()
	s.stats.EventsQueued++
	s.statsMutex.Unlock()
}
