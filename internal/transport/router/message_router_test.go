package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp"
	"github.com/charging-platform/station-simulator/internal/logger"
)

// fakeTransport 进程内传输桩，记录发送并允许注入入站帧
type fakeTransport struct {
	mu        sync.Mutex
	open      bool
	sent      [][]byte
	failAfter int // 发送N帧后开始失败，0表示不失败

	frameFn func([]byte)
	openFn  func(string)
	closeFn func(error)
}

func newFakeTransport(open bool) *fakeTransport {
	return &fakeTransport{open: open}
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return fmt.Errorf("transport closed")
	}
	if t.failAfter > 0 && len(t.sent) >= t.failAfter {
		return fmt.Errorf("injected send failure")
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	t.sent = append(t.sent, copied)
	return nil
}

func (t *fakeTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *fakeTransport) OnFrame(fn func(data []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frameFn = fn
}

func (t *fakeTransport) OnOpen(fn func(subprotocol string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openFn = fn
}

func (t *fakeTransport) OnClose(fn func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeFn = fn
}

// setOpen 切换连接状态并触发相应回调
func (t *fakeTransport) setOpen(open bool) {
	t.mu.Lock()
	t.open = open
	openFn := t.openFn
	closeFn := t.closeFn
	t.mu.Unlock()

	if open && openFn != nil {
		openFn("ocpp1.6")
	}
	if !open && closeFn != nil {
		closeFn(fmt.Errorf("connection lost"))
	}
}

// deliver 注入一帧入站消息
func (t *fakeTransport) deliver(data []byte) {
	t.mu.Lock()
	fn := t.frameFn
	t.mu.Unlock()

	if fn != nil {
		fn(data)
	}
}

func (t *fakeTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func (t *fakeTransport) sentFrame(i int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.sent) {
		return nil
	}
	return t.sent[i]
}

func newTestRouter(t *testing.T, transport Transport, handler CallHandler, mutate func(*RouterConfig)) *DefaultMessageRouter {
	t.Helper()

	config := DefaultRouterConfig()
	config.StationID = "CP-RT-001"
	config.OCPPVersion = "ocpp1.6"
	config.DefaultCallTimeout = 2 * time.Second
	config.EnableMetrics = false
	if mutate != nil {
		mutate(config)
	}

	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)

	router := NewDefaultMessageRouter(config, log)
	require.NoError(t, router.SetTransport(transport))

	if handler == nil {
		handler = func(ctx context.Context, call *InboundCall) {}
	}
	require.NoError(t, router.SetCallHandler(handler))

	require.NoError(t, router.Start())
	t.Cleanup(func() { router.Stop() })

	return router
}

// parseSentCall 解析路由器发出的CALL帧
func parseSentCall(t *testing.T, data []byte) *ocpp.Frame {
	t.Helper()

	frame, err := ocpp.ParseFrame(data)
	require.NoError(t, err)
	require.Equal(t, ocpp.MessageTypeCall, frame.MessageType)
	return frame
}

func TestDefaultRouterConfig(t *testing.T) {
	config := DefaultRouterConfig()

	assert.Equal(t, 30*time.Second, config.DefaultCallTimeout)
	assert.Equal(t, 1000, config.OfflineQueueLimit)
	assert.True(t, config.EnableMetrics)
	assert.False(t, config.EnableMessageLogging)
}

func TestRouter_StartValidation(t *testing.T) {
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)

	// 未设置传输
	router := NewDefaultMessageRouter(nil, log)
	err = router.Start()
	require.Error(t, err)
	assert.Equal(t, ErrCodeTransportNotSet, err.(*RouterError).Code)

	// 未设置处理器
	require.NoError(t, router.SetTransport(newFakeTransport(true)))
	err = router.Start()
	require.Error(t, err)
	assert.Equal(t, ErrCodeHandlerNotSet, err.(*RouterError).Code)

	// 启动前调用Call
	_, err = router.Call(context.Background(), "Heartbeat", nil, nil)
	require.Error(t, err)
	assert.Equal(t, ErrCodeNotStarted, err.(*RouterError).Code)

	// 重复启动
	require.NoError(t, router.SetCallHandler(func(ctx context.Context, call *InboundCall) {}))
	require.NoError(t, router.Start())
	defer router.Stop()

	err = router.Start()
	require.Error(t, err)
	assert.Equal(t, ErrCodeAlreadyStarted, err.(*RouterError).Code)
}

func TestRouter_CallResult(t *testing.T) {
	transport := newFakeTransport(true)
	router := newTestRouter(t, transport, nil, nil)

	type result struct {
		payload json.RawMessage
		err     error
	}
	resultCh := make(chan result, 1)

	go func() {
		payload, err := router.Call(context.Background(), "Heartbeat", map[string]interface{}{}, nil)
		resultCh <- result{payload, err}
	}()

	// 等CALL发出后回一条CALLRESULT
	require.Eventually(t, func() bool { return transport.sentCount() == 1 }, time.Second, 5*time.Millisecond)

	frame := parseSentCall(t, transport.sentFrame(0))
	assert.Equal(t, "Heartbeat", frame.Action)
	assert.NotEmpty(t, frame.MessageID)

	reply := fmt.Sprintf(`[3,"%s",{"currentTime":"2026-01-02T03:04:05Z"}]`, frame.MessageID)
	transport.deliver([]byte(reply))

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		assert.JSONEq(t, `{"currentTime":"2026-01-02T03:04:05Z"}`, string(res.payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for call result")
	}

	stats := router.GetStats()
	assert.Equal(t, int64(1), stats.CallsSent)
	assert.Equal(t, int64(1), stats.CallsSucceeded)
	assert.Equal(t, 0, stats.PendingCalls)
}

func TestRouter_CallError(t *testing.T) {
	transport := newFakeTransport(true)
	router := newTestRouter(t, transport, nil, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := router.Call(context.Background(), "DataTransfer", map[string]interface{}{"vendorId": "x"}, nil)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return transport.sentCount() == 1 }, time.Second, 5*time.Millisecond)
	frame := parseSentCall(t, transport.sentFrame(0))

	reply := fmt.Sprintf(`[4,"%s","NotSupported","vendor unknown",{}]`, frame.MessageID)
	transport.deliver([]byte(reply))

	select {
	case err := <-errCh:
		require.Error(t, err)
		ocppErr, ok := err.(*ocpp.Error)
		require.True(t, ok, "expected *ocpp.Error, got %T", err)
		assert.Equal(t, ocpp.ErrorCodeNotSupported, ocppErr.Code)
		assert.Equal(t, "vendor unknown", ocppErr.Description)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for call error")
	}

	stats := router.GetStats()
	assert.Equal(t, int64(1), stats.CallsFailed)
	assert.Equal(t, int64(1), stats.CallErrorsReceived)
}

func TestRouter_CallTimeout(t *testing.T) {
	transport := newFakeTransport(true)
	router := newTestRouter(t, transport, nil, nil)

	start := time.Now()
	_, err := router.Call(context.Background(), "Authorize",
		map[string]interface{}{"idTag": "TAG-1"},
		&CallOptions{Timeout: 50 * time.Millisecond})

	require.Error(t, err)
	assert.True(t, ocpp.IsTimeout(err), "expected timeout error, got %v", err)
	assert.Less(t, time.Since(start), time.Second)

	stats := router.GetStats()
	assert.Equal(t, int64(1), stats.CallsTimedOut)
	assert.Equal(t, 0, stats.PendingCalls)
}

func TestRouter_ContextCancelled(t *testing.T) {
	transport := newFakeTransport(true)
	router := newTestRouter(t, transport, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		_, err := router.Call(ctx, "Heartbeat", nil, nil)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return router.PendingCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		ocppErr, ok := err.(*ocpp.Error)
		require.True(t, ok)
		assert.Equal(t, ocpp.ErrorCodeCancelled, ocppErr.Code)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation")
	}

	assert.Equal(t, int64(1), router.GetStats().CallsCancelled)
}

func TestRouter_OfflineBufferingAndReplay(t *testing.T) {
	transport := newFakeTransport(false)
	router := newTestRouter(t, transport, nil, nil)

	type result struct {
		seq int
		err error
	}
	results := make(chan result, 3)

	// 逐个入队保证缓冲顺序确定
	for i := 0; i < 3; i++ {
		seq := i
		go func() {
			_, err := router.Call(context.Background(), "MeterValues",
				map[string]interface{}{"seq": seq}, &CallOptions{Timeout: 5 * time.Second})
			results <- result{seq, err}
		}()
		require.Eventually(t, func() bool { return router.BufferedCount() == seq+1 },
			time.Second, 5*time.Millisecond)
	}

	assert.Equal(t, 0, transport.sentCount())
	assert.Equal(t, int64(3), router.GetStats().CallsBuffered)

	// 重连后按入队顺序重放
	transport.setOpen(true)

	require.Eventually(t, func() bool { return transport.sentCount() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, router.BufferedCount())

	for i := 0; i < 3; i++ {
		frame := parseSentCall(t, transport.sentFrame(i))

		var payload struct {
			Seq int `json:"seq"`
		}
		require.NoError(t, json.Unmarshal(frame.Payload, &payload))
		assert.Equal(t, i, payload.Seq, "replay order must match enqueue order")

		transport.deliver([]byte(fmt.Sprintf(`[3,"%s",{}]`, frame.MessageID)))
	}

	for i := 0; i < 3; i++ {
		select {
		case res := <-results:
			assert.NoError(t, res.err, "call %d should succeed after replay", res.seq)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for replayed calls")
		}
	}

	stats := router.GetStats()
	assert.Equal(t, int64(3), stats.BufferReplayed)
	assert.Equal(t, int64(3), stats.CallsSucceeded)
}

func TestRouter_ReplayInterruptedKeepsOrder(t *testing.T) {
	transport := newFakeTransport(false)
	router := newTestRouter(t, transport, nil, nil)

	for i := 0; i < 3; i++ {
		seq := i
		go func() {
			router.Call(context.Background(), "MeterValues",
				map[string]interface{}{"seq": seq}, &CallOptions{Timeout: 5 * time.Second})
		}()
		require.Eventually(t, func() bool { return router.BufferedCount() == seq+1 },
			time.Second, 5*time.Millisecond)
	}

	// 第一帧重放成功后传输再次失败
	transport.mu.Lock()
	transport.failAfter = 1
	transport.mu.Unlock()
	transport.setOpen(true)

	require.Eventually(t, func() bool { return transport.sentCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, router.BufferedCount())

	// 解除故障并再次重连，剩余帧按原顺序送出
	transport.mu.Lock()
	transport.failAfter = 0
	transport.mu.Unlock()
	transport.setOpen(true)

	require.Eventually(t, func() bool { return transport.sentCount() == 3 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		frame := parseSentCall(t, transport.sentFrame(i))

		var payload struct {
			Seq int `json:"seq"`
		}
		require.NoError(t, json.Unmarshal(frame.Payload, &payload))
		assert.Equal(t, i, payload.Seq)
	}
}

func TestRouter_SkipBufferingOnError(t *testing.T) {
	transport := newFakeTransport(false)
	router := newTestRouter(t, transport, nil, nil)

	_, err := router.Call(context.Background(), "Heartbeat", nil,
		&CallOptions{SkipBufferingOnError: true})

	require.Error(t, err)
	routerErr, ok := err.(*RouterError)
	require.True(t, ok, "expected *RouterError, got %T", err)
	assert.Equal(t, ErrCodeSendFailed, routerErr.Code)
	assert.True(t, IsTransient(err))

	assert.Equal(t, 0, router.BufferedCount())
	assert.Equal(t, 0, router.PendingCount())
}

func TestRouter_OfflineQueueLimit(t *testing.T) {
	transport := newFakeTransport(false)
	router := newTestRouter(t, transport, nil, func(config *RouterConfig) {
		config.OfflineQueueLimit = 2
	})

	for i := 0; i < 2; i++ {
		seq := i
		go func() {
			router.Call(context.Background(), "MeterValues",
				map[string]interface{}{"seq": seq}, &CallOptions{Timeout: 5 * time.Second})
		}()
		require.Eventually(t, func() bool { return router.BufferedCount() == seq+1 },
			time.Second, 5*time.Millisecond)
	}

	// 超过上限的请求立刻失败
	_, err := router.Call(context.Background(), "MeterValues", map[string]interface{}{"seq": 2}, nil)
	require.Error(t, err)
	routerErr, ok := err.(*RouterError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeOfflineQueueFull, routerErr.Code)
	assert.True(t, IsTransient(err))

	assert.Equal(t, 2, router.BufferedCount())
}

func TestRouter_TimeoutDropsBufferedFrame(t *testing.T) {
	transport := newFakeTransport(false)
	router := newTestRouter(t, transport, nil, nil)

	_, err := router.Call(context.Background(), "Heartbeat", nil,
		&CallOptions{Timeout: 40 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, ocpp.IsTimeout(err))

	// 等待方已超时，重连后不再重放该帧
	require.Eventually(t, func() bool { return router.BufferedCount() == 0 },
		time.Second, 5*time.Millisecond)

	transport.setOpen(true)
	assert.Equal(t, 0, transport.sentCount())

	stats := router.GetStats()
	assert.Equal(t, int64(1), stats.CallsTimedOut)
	assert.GreaterOrEqual(t, stats.BufferDropped, int64(1))
}

func TestRouter_InboundCallDispatched(t *testing.T) {
	transport := newFakeTransport(true)

	type received struct {
		messageID string
		action    string
		payload   string
	}
	calls := make(chan received, 1)

	var router *DefaultMessageRouter
	handler := func(ctx context.Context, call *InboundCall) {
		calls <- received{call.MessageID, call.Action, string(call.Payload)}
		router.SendCallResult(call.MessageID, map[string]interface{}{"status": "Accepted"})
	}
	router = newTestRouter(t, transport, handler, nil)

	transport.deliver([]byte(`[2,"m-100","Reset",{"type":"Soft"}]`))

	select {
	case call := <-calls:
		assert.Equal(t, "m-100", call.messageID)
		assert.Equal(t, "Reset", call.action)
		assert.JSONEq(t, `{"type":"Soft"}`, call.payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound call dispatch")
	}

	// 处理器的响应经路由器原样送出
	require.Eventually(t, func() bool { return transport.sentCount() == 1 }, time.Second, 5*time.Millisecond)

	frame, err := ocpp.ParseFrame(transport.sentFrame(0))
	require.NoError(t, err)
	assert.Equal(t, ocpp.MessageTypeCallResult, frame.MessageType)
	assert.Equal(t, "m-100", frame.MessageID)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(frame.Payload))

	stats := router.GetStats()
	assert.Equal(t, int64(1), stats.InboundCalls)
	assert.Equal(t, int64(1), stats.ResponsesSent)
}

func TestRouter_MalformedFrameAnswersFormationViolation(t *testing.T) {
	transport := newFakeTransport(true)
	router := newTestRouter(t, transport, nil, nil)

	// 完全无法解析时回复id为-1
	transport.deliver([]byte(`this is not json`))

	require.Eventually(t, func() bool { return transport.sentCount() == 1 }, time.Second, 5*time.Millisecond)

	frame, err := ocpp.ParseFrame(transport.sentFrame(0))
	require.NoError(t, err)
	assert.Equal(t, ocpp.MessageTypeCallError, frame.MessageType)
	assert.Equal(t, "-1", frame.MessageID)
	assert.Equal(t, string(ocpp.ErrorCodeFormationViolation), frame.ErrorCode)

	// 能提取messageId时原样回填
	transport.deliver([]byte(`[7,"m-7",{}]`))

	require.Eventually(t, func() bool { return transport.sentCount() == 2 }, time.Second, 5*time.Millisecond)

	frame, err = ocpp.ParseFrame(transport.sentFrame(1))
	require.NoError(t, err)
	assert.Equal(t, ocpp.MessageTypeCallError, frame.MessageType)
	assert.Equal(t, "m-7", frame.MessageID)
	assert.Equal(t, string(ocpp.ErrorCodeFormationViolation), frame.ErrorCode)

	stats := router.GetStats()
	assert.Equal(t, int64(2), stats.MalformedFrames)
	assert.Equal(t, int64(2), stats.CallErrorsSent)
}

func TestRouter_UnknownReplyDropped(t *testing.T) {
	transport := newFakeTransport(true)
	router := newTestRouter(t, transport, nil, nil)

	transport.deliver([]byte(`[3,"never-sent",{}]`))
	transport.deliver([]byte(`[4,"also-never-sent","GenericError","desc",{}]`))

	require.Eventually(t, func() bool {
		return router.GetStats().RepliesUnknown == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, transport.sentCount())
}

func TestRouter_StopDrainsPendingWithCancelled(t *testing.T) {
	transport := newFakeTransport(true)
	router := newTestRouter(t, transport, nil, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := router.Call(context.Background(), "StartTransaction",
			map[string]interface{}{"connectorId": 1}, &CallOptions{Timeout: 10 * time.Second})
		errCh <- err
	}()

	require.Eventually(t, func() bool { return router.PendingCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, router.Stop())

	select {
	case err := <-errCh:
		require.Error(t, err)
		ocppErr, ok := err.(*ocpp.Error)
		require.True(t, ok, "expected *ocpp.Error, got %T", err)
		assert.Equal(t, ocpp.ErrorCodeCancelled, ocppErr.Code)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for drained call")
	}

	stats := router.GetStats()
	assert.Equal(t, int64(1), stats.CallsCancelled)
	assert.Equal(t, 0, stats.PendingCalls)
}
