package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp"
	"github.com/charging-platform/station-simulator/internal/logger"
	"github.com/charging-platform/station-simulator/internal/metrics"
)

// DefaultMessageRouter 默认消息路由器实现
// 每个站点持有一个实例，对应一条到CSMS的全双工通道
type DefaultMessageRouter struct {
	// 核心组件
	transport   Transport
	callHandler CallHandler

	// 配置
	config *RouterConfig

	// 未决请求，键为messageId
	pending      map[string]*pendingCall
	pendingMutex sync.Mutex

	// 离线缓冲，sendMutex同时串行化发送保证顺序
	buffer    []*bufferedCall
	sendMutex sync.Mutex

	// 连接生命周期订阅
	openSubs  []func(subprotocol string)
	closeSubs []func(err error)
	subsMutex sync.Mutex

	// 统计信息
	stats      RouterStats
	statsMutex sync.RWMutex

	// 生命周期管理
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 状态管理
	started    bool
	startMutex sync.Mutex

	// 日志器
	logger *logger.Logger
}

// pendingCall 等待CALLRESULT/CALLERROR的出站请求
type pendingCall struct {
	messageID  string
	action     string
	sentAt     time.Time
	timer      *time.Timer
	resultChan chan callOutcome
}

// callOutcome 请求的最终结果
type callOutcome struct {
	payload json.RawMessage
	err     error
}

// bufferedCall 离线期间缓冲的CALL帧
type bufferedCall struct {
	messageID string
	action    string
	frame     []byte
	queuedAt  time.Time
}

// NewDefaultMessageRouter 创建消息路由器
func NewDefaultMessageRouter(config *RouterConfig, log *logger.Logger) *DefaultMessageRouter {
	if config == nil {
		config = DefaultRouterConfig()
	}
	if config.DefaultCallTimeout <= 0 {
		config.DefaultCallTimeout = 30 * time.Second
	}

	if log == nil {
		l, _ := logger.New(logger.DefaultConfig())
		log = l
	}
	if config.StationID != "" {
		log = log.WithStation(config.StationID)
	}

	return &DefaultMessageRouter{
		config:  config,
		pending: make(map[string]*pendingCall),
		stats: RouterStats{
			StartTime:     time.Now(),
			LastResetTime: time.Now(),
		},
		logger: log.WithComponent("router"),
	}
}

// OnOpen 注册连接建立订阅
// 回调在离线缓冲重放之后异步触发，订阅方可以在其中发起新的CALL
func (r *DefaultMessageRouter) OnOpen(fn func(subprotocol string)) {
	r.subsMutex.Lock()
	defer r.subsMutex.Unlock()
	r.openSubs = append(r.openSubs, fn)
}

// OnClose 注册连接断开订阅
func (r *DefaultMessageRouter) OnClose(fn func(err error)) {
	r.subsMutex.Lock()
	defer r.subsMutex.Unlock()
	r.closeSubs = append(r.closeSubs, fn)
}

// SetTransport 设置底层传输
func (r *DefaultMessageRouter) SetTransport(transport Transport) error {
	if transport == nil {
		return &RouterError{
			Code:      ErrCodeTransportNotSet,
			Message:   "transport cannot be nil",
			Timestamp: time.Now(),
		}
	}

	r.transport = transport
	return nil
}

// SetCallHandler 设置入站CALL处理器
func (r *DefaultMessageRouter) SetCallHandler(handler CallHandler) error {
	if handler == nil {
		return &RouterError{
			Code:      ErrCodeHandlerNotSet,
			Message:   "call handler cannot be nil",
			Timestamp: time.Now(),
		}
	}

	r.callHandler = handler
	return nil
}

// Start 启动路由器并挂接传输回调
func (r *DefaultMessageRouter) Start() error {
	r.startMutex.Lock()
	defer r.startMutex.Unlock()

	if r.started {
		return &RouterError{
			Code:      ErrCodeAlreadyStarted,
			Message:   "router is already started",
			Timestamp: time.Now(),
		}
	}

	if r.transport == nil {
		return &RouterError{
			Code:      ErrCodeTransportNotSet,
			Message:   "transport must be set before starting",
			Timestamp: time.Now(),
		}
	}

	if r.callHandler == nil {
		return &RouterError{
			Code:      ErrCodeHandlerNotSet,
			Message:   "call handler must be set before starting",
			Timestamp: time.Now(),
		}
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.transport.OnFrame(r.handleFrame)
	r.transport.OnOpen(r.handleOpen)
	r.transport.OnClose(r.handleClose)

	if r.config.EnableMetrics && r.config.StatsInterval > 0 {
		r.wg.Add(1)
		go r.statsRoutine()
	}

	r.started = true
	r.logger.Info("Message router started")

	return nil
}

// Stop 停止路由器，未决请求以Cancelled结束，离线缓冲清空
func (r *DefaultMessageRouter) Stop() error {
	r.startMutex.Lock()
	defer r.startMutex.Unlock()

	if !r.started {
		return nil
	}

	r.logger.Info("Stopping message router")

	r.cancel()
	r.drainPending()
	r.clearBuffer()
	r.wg.Wait()

	r.started = false
	r.logger.Info("Message router stopped")

	return nil
}

// IsOpen 底层连接是否可用
func (r *DefaultMessageRouter) IsOpen() bool {
	return r.transport != nil && r.transport.IsOpen()
}

// Call 发送CALL并等待关联响应
// 发送失败时按SkipBufferingOnError决定报错还是进入离线缓冲
func (r *DefaultMessageRouter) Call(ctx context.Context, action string, payload interface{}, opts *CallOptions) (json.RawMessage, error) {
	if !r.isStarted() {
		return nil, &RouterError{
			Code:      ErrCodeNotStarted,
			Message:   "router is not started",
			Timestamp: time.Now(),
		}
	}

	messageID := uuid.NewString()

	frame, err := ocpp.MarshalCall(messageID, action, payload)
	if err != nil {
		return nil, &RouterError{
			Code:      ErrCodeEncodeFailed,
			Message:   fmt.Sprintf("failed to encode %s payload: %v", action, err),
			Timestamp: time.Now(),
		}
	}

	pc := &pendingCall{
		messageID:  messageID,
		action:     action,
		sentAt:     time.Now(),
		resultChan: make(chan callOutcome, 1),
	}

	r.pendingMutex.Lock()
	r.pending[messageID] = pc
	r.pendingMutex.Unlock()

	if err := r.deliver(frame, messageID, action, opts); err != nil {
		r.takePending(messageID)
		r.incrementCallsFailed()
		return nil, err
	}

	timeout := r.config.DefaultCallTimeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	// 响应可能在定时器挂接前到达，此时不再启动定时器
	r.pendingMutex.Lock()
	if _, exists := r.pending[messageID]; exists {
		pc.timer = time.AfterFunc(timeout, func() {
			r.expireCall(messageID, timeout)
		})
	}
	r.pendingMutex.Unlock()

	if r.config.EnableMessageLogging {
		r.logger.Debugf("CALL %s action=%s sent", messageID, action)
	}

	select {
	case outcome := <-pc.resultChan:
		if outcome.err != nil {
			return nil, outcome.err
		}
		return outcome.payload, nil

	case <-ctx.Done():
		r.takePending(messageID)
		r.dropBuffered(messageID)
		r.incrementCallsCancelled()
		return nil, ocpp.NewError(ocpp.ErrorCodeCancelled,
			fmt.Sprintf("request %s cancelled: %v", action, ctx.Err()))
	}
}

// SendCallResult 发送CALLRESULT响应，响应不进入离线缓冲
func (r *DefaultMessageRouter) SendCallResult(messageID string, payload interface{}) error {
	frame, err := ocpp.MarshalCallResult(messageID, payload)
	if err != nil {
		return &RouterError{
			Code:      ErrCodeEncodeFailed,
			Message:   fmt.Sprintf("failed to encode CALLRESULT for %s: %v", messageID, err),
			Timestamp: time.Now(),
		}
	}

	if err := r.transport.Send(frame); err != nil {
		return &RouterError{
			Code:      ErrCodeSendFailed,
			Message:   fmt.Sprintf("failed to send CALLRESULT for %s: %v", messageID, err),
			Timestamp: time.Now(),
		}
	}

	r.incrementResponsesSent()

	if r.config.EnableMessageLogging {
		r.logger.Debugf("CALLRESULT %s sent", messageID)
	}

	return nil
}

// SendCallError 发送CALLERROR响应
func (r *DefaultMessageRouter) SendCallError(messageID string, ocppErr *ocpp.Error) error {
	if messageID == "" {
		messageID = "-1"
	}

	frame, err := ocpp.MarshalCallError(messageID, ocppErr)
	if err != nil {
		return &RouterError{
			Code:      ErrCodeEncodeFailed,
			Message:   fmt.Sprintf("failed to encode CALLERROR for %s: %v", messageID, err),
			Timestamp: time.Now(),
		}
	}

	if err := r.transport.Send(frame); err != nil {
		return &RouterError{
			Code:      ErrCodeSendFailed,
			Message:   fmt.Sprintf("failed to send CALLERROR for %s: %v", messageID, err),
			Timestamp: time.Now(),
		}
	}

	r.incrementCallErrorsSent()
	metrics.CallErrors.WithLabelValues("sent", string(ocppErr.Code)).Inc()

	r.logger.Warnf("CALLERROR %s sent: %v", messageID, ocppErr)

	return nil
}

// PendingCount 等待响应的请求数
func (r *DefaultMessageRouter) PendingCount() int {
	r.pendingMutex.Lock()
	defer r.pendingMutex.Unlock()
	return len(r.pending)
}

// BufferedCount 离线缓冲中的请求数
func (r *DefaultMessageRouter) BufferedCount() int {
	r.sendMutex.Lock()
	defer r.sendMutex.Unlock()
	return len(r.buffer)
}

// GetStats 获取路由统计信息
func (r *DefaultMessageRouter) GetStats() RouterStats {
	r.statsMutex.RLock()
	stats := r.stats
	r.statsMutex.RUnlock()

	stats.Uptime = time.Since(stats.StartTime)
	stats.PendingCalls = r.PendingCount()
	stats.BufferedCalls = r.BufferedCount()

	return stats
}

// ResetStats 重置统计信息
func (r *DefaultMessageRouter) ResetStats() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()

	r.stats = RouterStats{
		StartTime:     r.stats.StartTime,
		LastResetTime: time.Now(),
	}

	r.logger.Info("Router statistics reset")
}

// deliver 发送或缓冲一帧CALL
// sendMutex串行化所有CALL发送：缓冲非空时新请求一律排队，保证重放顺序
func (r *DefaultMessageRouter) deliver(frame []byte, messageID, action string, opts *CallOptions) error {
	r.sendMutex.Lock()
	defer r.sendMutex.Unlock()

	if r.transport.IsOpen() && len(r.buffer) == 0 {
		err := r.transport.Send(frame)
		if err == nil {
			r.incrementCallsSent()
			metrics.MessagesSent.WithLabelValues(r.config.OCPPVersion, action).Inc()
			return nil
		}
		r.logger.Warnf("Send failed for %s (%s): %v", messageID, action, err)
	}

	if opts != nil && opts.SkipBufferingOnError {
		return &RouterError{
			Code:      ErrCodeSendFailed,
			Message:   fmt.Sprintf("transport unavailable for %s", action),
			Timestamp: time.Now(),
			Context:   map[string]interface{}{"message_id": messageID},
		}
	}

	if r.config.OfflineQueueLimit > 0 && len(r.buffer) >= r.config.OfflineQueueLimit {
		return &RouterError{
			Code:      ErrCodeOfflineQueueFull,
			Message:   fmt.Sprintf("offline queue limit %d reached, dropping %s", r.config.OfflineQueueLimit, action),
			Timestamp: time.Now(),
			Context:   map[string]interface{}{"message_id": messageID},
		}
	}

	r.buffer = append(r.buffer, &bufferedCall{
		messageID: messageID,
		action:    action,
		frame:     frame,
		queuedAt:  time.Now(),
	})
	r.incrementCallsBuffered()
	metrics.OfflineQueueDepth.Inc()

	r.logger.Debugf("Buffered %s (%s) while offline, queue depth %d", messageID, action, len(r.buffer))

	return nil
}

// handleFrame 传输层入站帧入口
func (r *DefaultMessageRouter) handleFrame(data []byte) {
	frame, err := ocpp.ParseFrame(data)
	if err != nil {
		r.incrementMalformedFrames()
		r.logger.Warnf("Malformed frame from CSMS: %v", err)

		if sendErr := r.SendCallError(peekMessageID(data), ocpp.AsError(err)); sendErr != nil {
			r.logger.Errorf("Failed to send FormationViolation: %v", sendErr)
		}
		return
	}

	switch frame.MessageType {
	case ocpp.MessageTypeCall:
		r.dispatchCall(frame)

	case ocpp.MessageTypeCallResult:
		if r.config.EnableMessageLogging {
			r.logger.Debugf("CALLRESULT %s received", frame.MessageID)
		}
		r.completeCall(frame.MessageID, callOutcome{payload: frame.Payload}, false)

	case ocpp.MessageTypeCallError:
		ocppErr := frame.ToError()
		r.incrementCallErrorsReceived()
		metrics.CallErrors.WithLabelValues("received", string(ocppErr.Code)).Inc()
		r.completeCall(frame.MessageID, callOutcome{err: ocppErr}, true)
	}
}

// dispatchCall 分发入站CALL，每个在途命令一个协程
func (r *DefaultMessageRouter) dispatchCall(frame *ocpp.Frame) {
	r.incrementInboundCalls()
	metrics.MessagesReceived.WithLabelValues(r.config.OCPPVersion, frame.Action).Inc()

	if r.config.EnableMessageLogging {
		r.logger.Debugf("CALL %s action=%s received", frame.MessageID, frame.Action)
	}

	call := &InboundCall{
		MessageID:  frame.MessageID,
		Action:     frame.Action,
		Payload:    frame.Payload,
		ReceivedAt: time.Now(),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.callHandler(r.ctx, call)
	}()
}

// completeCall 将响应交付给等待方，未知messageId记录后丢弃
func (r *DefaultMessageRouter) completeCall(messageID string, outcome callOutcome, isError bool) {
	pc := r.takePending(messageID)
	if pc == nil {
		r.incrementRepliesUnknown()
		r.logger.Warnf("Dropping reply for unknown message id %s", messageID)
		return
	}

	roundTrip := time.Since(pc.sentAt)
	r.updateRoundTrip(roundTrip)
	metrics.CallRoundTripDuration.WithLabelValues(pc.action).Observe(roundTrip.Seconds())

	if isError {
		r.incrementCallsFailed()
		r.logger.Warnf("CALL %s (%s) answered with CALLERROR: %v", messageID, pc.action, outcome.err)
	} else {
		r.incrementCallsSucceeded()
	}

	pc.resultChan <- outcome
}

// expireCall 请求超时，等待方收到Timeout，未发送的缓冲帧一并丢弃
func (r *DefaultMessageRouter) expireCall(messageID string, timeout time.Duration) {
	pc := r.takePending(messageID)
	if pc == nil {
		return
	}

	r.dropBuffered(messageID)
	r.incrementCallsTimedOut()
	r.logger.Warnf("CALL %s (%s) timed out after %v", messageID, pc.action, timeout)

	pc.resultChan <- callOutcome{
		err: ocpp.NewError(ocpp.ErrorCodeTimeout,
			fmt.Sprintf("no response for %s within %v", pc.action, timeout)),
	}
}

// handleOpen 连接建立，按入队顺序重放离线缓冲
func (r *DefaultMessageRouter) handleOpen(subprotocol string) {
	r.logger.Infof("Transport connected (subprotocol %s)", subprotocol)
	r.replayBuffer()

	r.subsMutex.Lock()
	subs := make([]func(string), len(r.openSubs))
	copy(subs, r.openSubs)
	r.subsMutex.Unlock()

	// 传输在读循环启动前同步触发回调，订阅方若同步等待CALL响应会死锁
	for _, fn := range subs {
		fn := fn
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			fn(subprotocol)
		}()
	}
}

// handleClose 连接断开，在途请求继续等待直至超时
func (r *DefaultMessageRouter) handleClose(err error) {
	if err != nil {
		r.logger.Warnf("Transport disconnected: %v", err)
	} else {
		r.logger.Info("Transport disconnected")
	}

	r.subsMutex.Lock()
	subs := make([]func(error), len(r.closeSubs))
	copy(subs, r.closeSubs)
	r.subsMutex.Unlock()

	for _, fn := range subs {
		fn := fn
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			fn(err)
		}()
	}
}

// replayBuffer 重放离线缓冲；发送中断时剩余帧按原顺序回到队首
func (r *DefaultMessageRouter) replayBuffer() {
	r.sendMutex.Lock()
	defer r.sendMutex.Unlock()

	if len(r.buffer) == 0 {
		return
	}

	r.logger.Infof("Replaying %d buffered calls", len(r.buffer))

	queued := r.buffer
	r.buffer = nil

	for i, bc := range queued {
		// 等待方已超时或取消的帧不再重放
		if !r.hasPending(bc.messageID) {
			r.incrementBufferDropped()
			metrics.OfflineQueueDepth.Dec()
			continue
		}

		if err := r.transport.Send(bc.frame); err != nil {
			r.logger.Warnf("Replay interrupted at %s (%s): %v", bc.messageID, bc.action, err)
			r.buffer = append(queued[i:], r.buffer...)
			return
		}

		r.incrementCallsSent()
		r.incrementBufferReplayed()
		metrics.OfflineQueueDepth.Dec()
		metrics.MessagesSent.WithLabelValues(r.config.OCPPVersion, bc.action).Inc()
	}
}

// dropBuffered 丢弃指定messageId的缓冲帧
func (r *DefaultMessageRouter) dropBuffered(messageID string) {
	r.sendMutex.Lock()
	defer r.sendMutex.Unlock()

	for i, bc := range r.buffer {
		if bc.messageID == messageID {
			r.buffer = append(r.buffer[:i], r.buffer[i+1:]...)
			r.incrementBufferDropped()
			metrics.OfflineQueueDepth.Dec()
			return
		}
	}
}

// drainPending 以Cancelled结束所有未决请求
func (r *DefaultMessageRouter) drainPending() {
	r.pendingMutex.Lock()
	pending := r.pending
	r.pending = make(map[string]*pendingCall)
	r.pendingMutex.Unlock()

	for _, pc := range pending {
		if pc.timer != nil {
			pc.timer.Stop()
		}
		r.incrementCallsCancelled()
		pc.resultChan <- callOutcome{
			err: ocpp.NewError(ocpp.ErrorCodeCancelled,
				fmt.Sprintf("station stopping, request %s abandoned", pc.action)),
		}
	}

	if len(pending) > 0 {
		r.logger.Infof("Drained %d pending requests with Cancelled", len(pending))
	}
}

// clearBuffer 清空离线缓冲
func (r *DefaultMessageRouter) clearBuffer() {
	r.sendMutex.Lock()
	dropped := len(r.buffer)
	r.buffer = nil
	r.sendMutex.Unlock()

	if dropped > 0 {
		r.statsMutex.Lock()
		r.stats.BufferDropped += int64(dropped)
		r.statsMutex.Unlock()
		metrics.OfflineQueueDepth.Sub(float64(dropped))
		r.logger.Infof("Dropped %d buffered calls on stop", dropped)
	}
}

// takePending 取出并移除未决请求，同时停掉其超时定时器
func (r *DefaultMessageRouter) takePending(messageID string) *pendingCall {
	r.pendingMutex.Lock()
	defer r.pendingMutex.Unlock()

	pc, exists := r.pending[messageID]
	if !exists {
		return nil
	}
	delete(r.pending, messageID)

	if pc.timer != nil {
		pc.timer.Stop()
	}
	return pc
}

func (r *DefaultMessageRouter) hasPending(messageID string) bool {
	r.pendingMutex.Lock()
	defer r.pendingMutex.Unlock()

	_, exists := r.pending[messageID]
	return exists
}

func (r *DefaultMessageRouter) isStarted() bool {
	r.startMutex.Lock()
	defer r.startMutex.Unlock()
	return r.started
}

// statsRoutine 统计协程，周期性输出路由统计
func (r *DefaultMessageRouter) statsRoutine() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.logStats()
		}
	}
}

// logStats 记录统计信息
func (r *DefaultMessageRouter) logStats() {
	stats := r.GetStats()

	r.logger.Infof("Router stats - sent: %d, succeeded: %d, failed: %d, timed out: %d, buffered: %d, pending: %d, avg rtt: %.2fms",
		stats.CallsSent,
		stats.CallsSucceeded,
		stats.CallsFailed,
		stats.CallsTimedOut,
		stats.CallsBuffered,
		stats.PendingCalls,
		stats.AverageRoundTripMs)
}

// peekMessageID 尽力从畸形帧中提取messageId用于CALLERROR回复
func peekMessageID(data []byte) string {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil || len(elements) < 2 {
		return "-1"
	}

	var messageID string
	if err := json.Unmarshal(elements[1], &messageID); err != nil || messageID == "" {
		return "-1"
	}
	return messageID
}

// 统计更新方法
func (r *DefaultMessageRouter) incrementCallsSent() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.CallsSent++
}

func (r *DefaultMessageRouter) incrementCallsSucceeded() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.CallsSucceeded++
}

func (r *DefaultMessageRouter) incrementCallsFailed() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.CallsFailed++
}

func (r *DefaultMessageRouter) incrementCallsTimedOut() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.CallsTimedOut++
}

func (r *DefaultMessageRouter) incrementCallsCancelled() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.CallsCancelled++
}

func (r *DefaultMessageRouter) incrementCallsBuffered() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.CallsBuffered++
}

func (r *DefaultMessageRouter) incrementBufferReplayed() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.BufferReplayed++
}

func (r *DefaultMessageRouter) incrementBufferDropped() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.BufferDropped++
}

func (r *DefaultMessageRouter) incrementInboundCalls() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.InboundCalls++
}

func (r *DefaultMessageRouter) incrementRepliesUnknown() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.RepliesUnknown++
}

func (r *DefaultMessageRouter) incrementMalformedFrames() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.MalformedFrames++
}

func (r *DefaultMessageRouter) incrementCallErrorsReceived() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.CallErrorsReceived++
}

func (r *DefaultMessageRouter) incrementCallErrorsSent() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.CallErrorsSent++
}

func (r *DefaultMessageRouter) incrementResponsesSent() {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	r.stats.ResponsesSent++
}

func (r *DefaultMessageRouter) updateRoundTrip(duration time.Duration) {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()

	durationMs := float64(duration.Nanoseconds()) / 1e6

	if durationMs > r.stats.MaxRoundTripMs {
		r.stats.MaxRoundTripMs = durationMs
	}

	if r.stats.AverageRoundTripMs == 0 {
		r.stats.AverageRoundTripMs = durationMs
	} else {
		// 简单移动平均
		r.stats.AverageRoundTripMs = (r.stats.AverageRoundTripMs + durationMs) / 2
	}
}
