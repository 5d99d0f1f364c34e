package ocpp201

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/station-simulator/internal/domain/events"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	"github.com/charging-platform/station-simulator/internal/domain/protocol"
	"github.com/charging-platform/station-simulator/internal/logger"
	"github.com/charging-platform/station-simulator/internal/station"
	"github.com/charging-platform/station-simulator/internal/transport/router"
)

// recordedCall 出站CALL记录
type recordedCall struct {
	Action  string
	Payload json.RawMessage
	Opts    router.CallOptions
}

// recordedReply 出站CALLRESULT记录
type recordedReply struct {
	MessageID string
	Payload   json.RawMessage
}

// recordedCallError 出站CALLERROR记录
type recordedCallError struct {
	MessageID string
	Err       *ocpp.Error
}

// fakeRouter 进程内路由器替身
// 出站CALL同步记录并按respond脚本应答，未脚本化的动作走最小合法响应
type fakeRouter struct {
	mu         sync.Mutex
	open       bool
	handler    router.CallHandler
	openFns    []func(subprotocol string)
	closeFns   []func(err error)
	calls      []recordedCall
	replies    []recordedReply
	callErrors []recordedCallError
	respond    func(action string, payload json.RawMessage) (interface{}, error)
	inboundSeq int
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{open: true}
}

func (f *fakeRouter) Call(ctx context.Context, action string, payload interface{}, opts *router.CallOptions) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	options := router.CallOptions{}
	if opts != nil {
		options = *opts
	}
	f.calls = append(f.calls, recordedCall{Action: action, Payload: raw, Opts: options})
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		response, err := respond(action, raw)
		if err != nil {
			return nil, err
		}
		if response != nil {
			return json.Marshal(response)
		}
	}
	return json.Marshal(f.defaultResponse(action))
}

// defaultResponse 动作的最小模式合法响应
func (f *fakeRouter) defaultResponse(action string) interface{} {
	now := time.Now().UTC().Format(time.RFC3339)
	switch action {
	case "BootNotification":
		return map[string]interface{}{"status": "Accepted", "currentTime": now, "interval": 300}
	case "Heartbeat":
		return map[string]interface{}{"currentTime": now}
	default:
		return map[string]interface{}{}
	}
}

func (f *fakeRouter) SendCallResult(messageID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.replies = append(f.replies, recordedReply{MessageID: messageID, Payload: raw})
	f.mu.Unlock()
	return nil
}

func (f *fakeRouter) SendCallError(messageID string, ocppErr *ocpp.Error) error {
	f.mu.Lock()
	f.callErrors = append(f.callErrors, recordedCallError{MessageID: messageID, Err: ocppErr})
	f.mu.Unlock()
	return nil
}

func (f *fakeRouter) SetTransport(router.Transport) error { return nil }

func (f *fakeRouter) SetCallHandler(handler router.CallHandler) error {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	return nil
}

func (f *fakeRouter) OnOpen(fn func(subprotocol string)) {
	f.mu.Lock()
	f.openFns = append(f.openFns, fn)
	f.mu.Unlock()
}

func (f *fakeRouter) OnClose(fn func(err error)) {
	f.mu.Lock()
	f.closeFns = append(f.closeFns, fn)
	f.mu.Unlock()
}

func (f *fakeRouter) Start() error { return nil }
func (f *fakeRouter) Stop() error  { return nil }

func (f *fakeRouter) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeRouter) PendingCount() int            { return 0 }
func (f *fakeRouter) BufferedCount() int           { return 0 }
func (f *fakeRouter) GetStats() router.RouterStats { return router.RouterStats{} }
func (f *fakeRouter) ResetStats()                  {}

// fireOpen 模拟连接建立，回调异步触发，与真实路由器一致
func (f *fakeRouter) fireOpen(subprotocol string) {
	f.mu.Lock()
	f.open = true
	fns := append([]func(string){}, f.openFns...)
	f.mu.Unlock()

	for _, fn := range fns {
		go fn(subprotocol)
	}
}

// setOpen 直接设置连接状态，不触发回调
func (f *fakeRouter) setOpen(open bool) {
	f.mu.Lock()
	f.open = open
	f.mu.Unlock()
}

// deliver 同步投递一条CSMS请求，返回分配的消息ID
func (f *fakeRouter) deliver(t *testing.T, action, payload string) string {
	t.Helper()

	f.mu.Lock()
	handler := f.handler
	f.inboundSeq++
	messageID := fmt.Sprintf("m-%d", f.inboundSeq)
	f.mu.Unlock()

	require.NotNil(t, handler, "call handler not registered")
	handler(context.Background(), &router.InboundCall{
		MessageID:  messageID,
		Action:     action,
		Payload:    json.RawMessage(payload),
		ReceivedAt: time.Now(),
	})
	return messageID
}

func (f *fakeRouter) setRespond(fn func(action string, payload json.RawMessage) (interface{}, error)) {
	f.mu.Lock()
	f.respond = fn
	f.mu.Unlock()
}

func (f *fakeRouter) callsFor(action string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []recordedCall
	for _, c := range f.calls {
		if c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRouter) callCount(action string) int {
	return len(f.callsFor(action))
}

func (f *fakeRouter) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

func (f *fakeRouter) callErrorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.callErrors)
}

func (f *fakeRouter) lastReply(t *testing.T) recordedReply {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	require.NotEmpty(t, f.replies, "expected a CALLRESULT to be sent")
	return f.replies[len(f.replies)-1]
}

func (f *fakeRouter) lastCallError(t *testing.T) recordedCallError {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	require.NotEmpty(t, f.callErrors, "expected a CALLERROR to be sent")
	return f.callErrors[len(f.callErrors)-1]
}

// harness 测试装配：站点 + 替身路由器 + 协议服务
type harness struct {
	service *Service
	station *station.Station
	router  *fakeRouter
}

// newTestService 创建测试服务，后台任务间隔压短，日志级别压到error
func newTestService(t *testing.T, mutateStation func(*station.Config), mutateConfig func(*Config)) *harness {
	t.Helper()

	stationConfig := station.DefaultConfig()
	stationConfig.ID = "CS-OCPP201-001"
	stationConfig.Version = protocol.OCPP_VERSION_2_0_1
	stationConfig.EvseCount = 2
	stationConfig.LocalAuthTags = []string{"TAG-LOCAL"}
	stationConfig.EventChannelSize = 128
	if mutateStation != nil {
		mutateStation(stationConfig)
	}

	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)

	st := station.New(stationConfig, log)

	config := DefaultConfig()
	config.CallTimeout = time.Second
	config.BootRetryInterval = 10 * time.Millisecond
	config.NotifyReportDelay = time.Millisecond
	config.ResetIdlePollInterval = 5 * time.Millisecond
	if mutateConfig != nil {
		mutateConfig(config)
	}

	fr := newFakeRouter()
	svc := NewService(config, st, fr, nil, log)

	require.NoError(t, svc.Start())
	t.Cleanup(func() { _ = svc.Stop() })

	return &harness{service: svc, station: st, router: fr}
}

// register 直接置为已注册，绕过启动序列
func (h *harness) register(t *testing.T) {
	t.Helper()
	h.station.SetRegistrationStatus(station.RegistrationAccepted)
}

// beginTransaction 直接在站点上落地一笔交易，绕过远程启动
func (h *harness) beginTransaction(t *testing.T, connectorID int, transactionUID string) {
	t.Helper()
	require.NoError(t, h.station.BeginTransactionV201(connectorID, transactionUID, "TAG-LOCAL", 0, time.Now()))
}

// resultAs 解码最近一条CALLRESULT
func resultAs(t *testing.T, f *fakeRouter, v interface{}) {
	t.Helper()
	reply := f.lastReply(t)
	require.NoError(t, json.Unmarshal(reply.Payload, v))
}

func TestServiceDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 30*time.Second, config.CallTimeout)
	assert.Equal(t, 10*time.Second, config.BootRetryInterval)
	assert.Equal(t, 60*time.Second, config.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, config.MeterValueSampleInterval)
	assert.Equal(t, time.Second, config.NotifyReportDelay)
	assert.Equal(t, 5*time.Second, config.ResetIdlePollInterval)
}

func TestService_StartTwice(t *testing.T) {
	h := newTestService(t, nil, nil)

	err := h.service.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestService_RegistrationGate_StrictUnknown(t *testing.T) {
	h := newTestService(t, func(c *station.Config) {
		c.StrictCompliance = true
	}, nil)

	h.router.deliver(t, "ClearCache", `{}`)

	callErr := h.router.lastCallError(t)
	assert.Equal(t, ocpp.ErrorCodeSecurityError, callErr.Err.Code)
	assert.Contains(t, callErr.Err.Description, "not registered")
}

func TestService_RegistrationGate_PendingAllowsDeviceModel(t *testing.T) {
	h := newTestService(t, func(c *station.Config) {
		c.StrictCompliance = true
	}, nil)
	h.station.SetRegistrationStatus(station.RegistrationPending)

	// 2.0.1在Pending状态仍处理设备模型请求
	h.router.deliver(t, "ClearCache", `{}`)

	assert.Equal(t, 1, h.router.replyCount())
	assert.Equal(t, 0, h.router.callErrorCount())
}

func TestService_RegistrationGate_PendingRemoteStartStrict(t *testing.T) {
	h := newTestService(t, func(c *station.Config) {
		c.StrictCompliance = true
	}, nil)
	h.station.SetRegistrationStatus(station.RegistrationPending)

	h.router.deliver(t, "RequestStartTransaction",
		`{"idToken":{"idToken":"TAG-LOCAL","type":"ISO14443"},"remoteStartId":1,"evseId":1}`)

	callErr := h.router.lastCallError(t)
	assert.Equal(t, ocpp.ErrorCodeSecurityError, callErr.Err.Code)
	assert.Contains(t, callErr.Err.Description, "pending registration state")
}

func TestService_V16ActionNotImplemented(t *testing.T) {
	h := newTestService(t, nil, nil)
	h.register(t)

	// 1.6动作不在2.0.1的动作表里
	h.router.deliver(t, "GetConfiguration", `{}`)

	callErr := h.router.lastCallError(t)
	assert.Equal(t, ocpp.ErrorCodeNotImplemented, callErr.Err.Code)
}

func TestService_SchemaViolation(t *testing.T) {
	h := newTestService(t, nil, nil)
	h.register(t)

	h.router.deliver(t, "Reset", `{"type":"Sideways"}`)

	callErr := h.router.lastCallError(t)
	assert.Equal(t, ocpp.ErrorCodeFormationViolation, callErr.Err.Code)
}

func TestService_EmitsRequestHandledEvent(t *testing.T) {
	h := newTestService(t, nil, nil)
	h.register(t)
	drainStationEvents(h.station)

	messageID := h.router.deliver(t, "ClearCache", `{}`)

	ev := waitEvent(t, h.station, events.EventTypeCsmsRequestHandled)
	handled, ok := ev.(*events.CsmsRequestHandledEvent)
	require.True(t, ok)
	assert.Equal(t, "ClearCache", handled.Request.Action)
	assert.Equal(t, messageID, handled.Request.MessageID)
	assert.Equal(t, "Success", handled.Request.Outcome)
}

func TestService_Stats(t *testing.T) {
	h := newTestService(t, nil, nil)
	h.register(t)

	h.router.deliver(t, "ClearCache", `{}`)
	h.router.deliver(t, "GetConfiguration", `{}`)

	stats := h.service.GetStats()
	assert.Equal(t, uint64(1), stats.RequestsHandled)
	assert.Equal(t, uint64(1), stats.RequestsRejected)
}

func TestService_BootSequenceOnConnect(t *testing.T) {
	h := newTestService(t, nil, nil)

	h.router.fireOpen(protocol.OCPP_VERSION_2_0_1)

	require.Eventually(t, func() bool {
		return h.station.IsRegistered()
	}, time.Second, 5*time.Millisecond)

	require.GreaterOrEqual(t, h.router.callCount("BootNotification"), 1)

	var req ocpp201.BootNotificationRequest
	boot := h.router.callsFor("BootNotification")[0]
	require.NoError(t, json.Unmarshal(boot.Payload, &req))
	assert.Equal(t, "SimModel-X", req.ChargingStation.Model)
	assert.Equal(t, "SimVendor", req.ChargingStation.VendorName)
	assert.Equal(t, ocpp201.BootReasonPowerUp, req.Reason)

	// 注册完成后逐个EVSE上报连接器状态
	require.Eventually(t, func() bool {
		return h.router.callCount("StatusNotification") >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestService_BootSequenceRetriesOnRejected(t *testing.T) {
	h := newTestService(t, nil, nil)

	var mu sync.Mutex
	attempts := 0
	h.router.setRespond(func(action string, payload json.RawMessage) (interface{}, error) {
		if action != "BootNotification" {
			return nil, nil
		}
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()

		now := time.Now().UTC().Format(time.RFC3339)
		if n < 3 {
			return map[string]interface{}{"status": "Rejected", "currentTime": now, "interval": 0}, nil
		}
		return map[string]interface{}{"status": "Accepted", "currentTime": now, "interval": 300}, nil
	})

	h.router.fireOpen(protocol.OCPP_VERSION_2_0_1)

	require.Eventually(t, func() bool {
		return h.station.IsRegistered()
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, h.router.callCount("BootNotification"), 3)
}

// drainStationEvents 清空站点事件通道
func drainStationEvents(st *station.Station) {
	for {
		select {
		case <-st.Events():
		default:
			return
		}
	}
}

// waitEvent 等待指定类型的站点事件
func waitEvent(t *testing.T, st *station.Station, eventType events.EventType) events.Event {
	t.Helper()

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-st.Events():
			if ev.GetType() == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
			return nil
		}
	}
}
