package ocpp16

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/charging-platform/station-simulator/internal/domain/events"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-simulator/internal/domain/protocol"
	"github.com/charging-platform/station-simulator/internal/domain/validation"
	"github.com/charging-platform/station-simulator/internal/logger"
	"github.com/charging-platform/station-simulator/internal/schema"
	"github.com/charging-platform/station-simulator/internal/station"
	"github.com/charging-platform/station-simulator/internal/transport/router"
)

// Config OCPP 1.6协议服务配置
type Config struct {
	// 请求配置
	CallTimeout       time.Duration `json:"call_timeout"`        // 出站CALL默认超时
	BootRetryInterval time.Duration `json:"boot_retry_interval"` // BootNotification重试间隔

	// 任务配置
	HeartbeatInterval        time.Duration `json:"heartbeat_interval"`          // 配置键缺失时的心跳间隔
	MeterValueSampleInterval time.Duration `json:"meter_value_sample_interval"` // 配置键缺失时的电表采样间隔
	TriggerMessageDelay      time.Duration `json:"trigger_message_delay"`       // TriggerMessage触发消息前的延迟
	TransactionWaitInterval  time.Duration `json:"transaction_wait_interval"`   // 固件升级等待交易结束的轮询间隔

	// 行为配置
	RecognizedVendorIDs []string          `json:"recognized_vendor_ids"` // DataTransfer认可的vendorId，空时默认站点厂商
	Firmware            FirmwareSimConfig `json:"firmware"`              // 固件升级模拟参数
}

// FirmwareSimConfig 固件升级模拟参数
type FirmwareSimConfig struct {
	MinDelay      time.Duration         `json:"min_delay"`      // 每个阶段的最小耗时
	MaxDelay      time.Duration         `json:"max_delay"`      // 每个阶段的最大耗时
	FailureStatus ocpp16.FirmwareStatus `json:"failure_status"` // 模拟失败的阶段，空值表示升级成功
	Reset         bool                  `json:"reset"`          // 安装完成后是否重启站点
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		CallTimeout:              30 * time.Second,
		BootRetryInterval:        10 * time.Second,
		HeartbeatInterval:        60 * time.Second,
		MeterValueSampleInterval: 60 * time.Second,
		TriggerMessageDelay:      2 * time.Second,
		TransactionWaitInterval:  15 * time.Second,
		Firmware: FirmwareSimConfig{
			MinDelay: 2 * time.Second,
			MaxDelay: 5 * time.Second,
			Reset:    true,
		},
	}
}

// MeterSample 一次电表采样的结果
type MeterSample struct {
	EnergyIncrementWh int                   // 本周期的电量增量
	SampledValues     []ocpp16.SampledValue // 电量累计值之外的附加采样
}

// MeterSampler 周期电表采样器，未注入时不发送周期MeterValues
type MeterSampler interface {
	Sample(interval time.Duration, powerDivider int) MeterSample
}

// DiagnosticsUploader 诊断归档上传器，未注入时GetDiagnostics按上传失败处理
// progress回调报告上传状态变化（Uploading/Uploaded/UploadFailed）
type DiagnosticsUploader interface {
	Upload(ctx context.Context, location string, progress func(status string)) (string, error)
}

// inboundHandler 入站请求处理函数，返回响应载荷或OCPP错误
type inboundHandler func(ctx context.Context, call *router.InboundCall) (interface{}, error)

// actionProfiles 入站动作所属的功能配置集
var actionProfiles = map[ocpp16.Action]ocpp16.FeatureProfile{
	ocpp16.ActionReset:                  ocpp16.ProfileCore,
	ocpp16.ActionClearCache:             ocpp16.ProfileCore,
	ocpp16.ActionUnlockConnector:        ocpp16.ProfileCore,
	ocpp16.ActionGetConfiguration:       ocpp16.ProfileCore,
	ocpp16.ActionChangeConfiguration:    ocpp16.ProfileCore,
	ocpp16.ActionChangeAvailability:     ocpp16.ProfileCore,
	ocpp16.ActionRemoteStartTransaction: ocpp16.ProfileCore,
	ocpp16.ActionRemoteStopTransaction:  ocpp16.ProfileCore,
	ocpp16.ActionDataTransfer:           ocpp16.ProfileCore,
	ocpp16.ActionGetDiagnostics:         ocpp16.ProfileFirmwareManagement,
	ocpp16.ActionUpdateFirmware:         ocpp16.ProfileFirmwareManagement,
	ocpp16.ActionSetChargingProfile:     ocpp16.ProfileSmartCharging,
	ocpp16.ActionClearChargingProfile:   ocpp16.ProfileSmartCharging,
	ocpp16.ActionGetCompositeSchedule:   ocpp16.ProfileSmartCharging,
	ocpp16.ActionTriggerMessage:         ocpp16.ProfileRemoteTrigger,
	ocpp16.ActionReserveNow:             ocpp16.ProfileReservation,
	ocpp16.ActionCancelReservation:      ocpp16.ProfileReservation,
}

// outboundActions 本服务会主动发起的动作
var outboundActions = map[ocpp16.Action]struct{}{
	ocpp16.ActionBootNotification:              {},
	ocpp16.ActionHeartbeat:                     {},
	ocpp16.ActionAuthorize:                     {},
	ocpp16.ActionStartTransaction:              {},
	ocpp16.ActionStopTransaction:               {},
	ocpp16.ActionStatusNotification:            {},
	ocpp16.ActionMeterValues:                   {},
	ocpp16.ActionFirmwareStatusNotification:    {},
	ocpp16.ActionDiagnosticsStatusNotification: {},
	ocpp16.ActionDataTransfer:                  {},
}

// ServiceStats 协议服务统计
type ServiceStats struct {
	RequestsHandled  uint64 `json:"requests_handled"`
	RequestsRejected uint64 `json:"requests_rejected"`
	CallsSent        uint64 `json:"calls_sent"`
	CallsFailed      uint64 `json:"calls_failed"`
	BootAttempts     uint64 `json:"boot_attempts"`
	HeartbeatsSent   uint64 `json:"heartbeats_sent"`
	MeterValuesSent  uint64 `json:"meter_values_sent"`
}

// Service OCPP 1.6站点协议引擎
// 处理CSMS下发的请求，构造站点发起的请求，并驱动心跳、电表采样等后台任务
type Service struct {
	config    *Config
	station   *station.Station
	router    router.MessageRouter
	schemas   *schema.Validator
	validator *validation.Validator
	clock     clock.WithTicker

	uploader DiagnosticsUploader
	sampler  MeterSampler

	handlers map[ocpp16.Action]inboundHandler

	// 后台任务
	heartbeatStop chan struct{}
	meterStops    map[int]chan struct{}
	taskMutex     sync.Mutex

	// 固件升级模拟在途标记
	firmwareRunning bool
	firmwareMutex   sync.Mutex

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
func NewService(config *Config, st *station.Station, rt router.MessageRouter, log *logger.Logger) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if len(config.RecognizedVendorIDs) == 0 {
		config.RecognizedVendorIDs = []string{st.Vendor()}
	}

	s := &Service{
		config:     config,
		station:    st,
		router:     rt,
		schemas:    schema.NewValidator(),
		validator:  validation.NewValidator(),
		clock:      clock.RealClock{},
		meterStops: make(map[int]chan struct{}),
		logger:     log.WithComponent("ocpp16").WithStation(st.ID()),
	}
	s.handlers = map[ocpp16.Action]inboundHandler{
		ocpp16.ActionReset:                  s.handleReset,
		ocpp16.ActionClearCache:             s.handleClearCache,
		ocpp16.ActionUnlockConnector:        s.handleUnlockConnector,
		ocpp16.ActionGetConfiguration:       s.handleGetConfiguration,
		ocpp16.ActionChangeConfiguration:    s.handleChangeConfiguration,
		ocpp16.ActionChangeAvailability:     s.handleChangeAvailability,
		ocpp16.ActionRemoteStartTransaction: s.handleRemoteStartTransaction,
		ocpp16.ActionRemoteStopTransaction:  s.handleRemoteStopTransaction,
		ocpp16.ActionDataTransfer:           s.handleDataTransfer,
		ocpp16.ActionGetDiagnostics:         s.handleGetDiagnostics,
		ocpp16.ActionUpdateFirmware:         s.handleUpdateFirmware,
		ocpp16.ActionSetChargingProfile:     s.handleSetChargingProfile,
		ocpp16.ActionClearChargingProfile:   s.handleClearChargingProfile,
		ocpp16.ActionGetCompositeSchedule:   s.handleGetCompositeSchedule,
		ocpp16.ActionTriggerMessage:         s.handleTriggerMessage,
		ocpp16.ActionReserveNow:             s.handleReserveNow,
		ocpp16.ActionCancelReservation:      s.handleCancelReservation,
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

// SetDiagnosticsUploader 注入诊断上传器
func (s *Service) SetDiagnosticsUploader(uploader DiagnosticsUploader) {
	s.uploader = uploader
}

// Start 注册路由回调并启动服务
// 必须在路由器Start之前调用
func (s *Service) Start() error {
	s.startMutex.Lock()
	defer s.startMutex.Unlock()

	if s.started {
		return fmt.Errorf("ocpp16 service already started")
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
	s.logger.Info("OCPP 1.6 service started")
	return nil
}

// Stop 取消后台任务并等待在途处理结束
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

	s.started = false
	s.logger.Info("OCPP 1.6 service stopped")
	return nil
}

// handleConnected 连接建立回调：未注册时执行启动序列
func (s *Service) handleConnected(subprotocol string) {
	s.logger.Infof("Connection established (subprotocol: %s)", subprotocol)

	st := s.station
	st.EmitEvent(st.EventFactory().CreateStationConnectedEvent(st.ID(), st.StationInfo(), st.Metadata()))

	if !st.IsRegistered() {
		s.runBootSequence(s.ctx)
		return
	}
	// 重连且已注册，恢复心跳即可
	s.restartHeartbeat(st.Configuration().HeartbeatInterval(s.config.HeartbeatInterval))
}

// handleDisconnected 连接断开回调：暂停心跳，电表任务继续写入离线缓冲
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
	action := ocpp16.Action(call.Action)
	s.logger.Debugf("Handling %s (message %s)", call.Action, call.MessageID)

	if ocppErr := s.checkRegistrationGate(action); ocppErr != nil {
		s.replyError(call, ocppErr)
		return
	}

	handler, ok := s.handlers[action]
	if !ok || s.validator.ValidateAction(protocol.OCPP_VERSION_1_6, call.Action) != nil {
		s.replyError(call, ocpp.NewError(ocpp.ErrorCodeNotImplemented,
			fmt.Sprintf("%s is not implemented", call.Action)))
		return
	}
	if !s.profileEnabled(action) {
		s.replyError(call, ocpp.NewError(ocpp.ErrorCodeNotImplemented,
			fmt.Sprintf("%s is disabled by the supported feature profiles", call.Action)))
		return
	}

	if err := s.schemas.ValidateRequest(protocol.OCPP_VERSION_1_6, call.Action, call.Payload); err != nil {
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
// 远程启停在Pending且严格合规时拒绝；其余动作要求Accepted或宽松模式下的Unknown
func (s *Service) checkRegistrationGate(action ocpp16.Action) *ocpp.Error {
	st := s.station

	if action == ocpp16.ActionRemoteStartTransaction || action == ocpp16.ActionRemoteStopTransaction {
		if st.InPendingState() && st.StrictCompliance() {
			return ocpp.NewError(ocpp.ErrorCodeSecurityError,
				fmt.Sprintf("cannot handle %s while in pending registration state", action))
		}
	}
	if st.InAcceptedState() || (st.InUnknownState() && !st.StrictCompliance()) {
		return nil
	}
	return ocpp.NewError(ocpp.ErrorCodeSecurityError,
		fmt.Sprintf("cannot handle %s while not registered", action))
}

// profileEnabled 动作所属的功能配置集是否启用
func (s *Service) profileEnabled(action ocpp16.Action) bool {
	profile, ok := actionProfiles[action]
	if !ok {
		return false
	}
	value, ok := s.station.Configuration().Value(station.KeySupportedFeatureProfiles)
	if !ok {
		return false
	}
	for _, name := range strings.Split(value, ",") {
		if ocpp16.FeatureProfile(strings.TrimSpace(name)) == profile {
			return true
		}
	}
	return false
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

func (s *Service) incrementMeterValuesSent() {
	s.statsMutex.Lock()
	s.stats.MeterValuesSent++
	s.statsMutex.Unlock()
}
