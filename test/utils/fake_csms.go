package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// ReceivedCall 站点上行的一条CALL
type ReceivedCall struct {
	MessageID string
	Action    string
	Payload   json.RawMessage
}

// CallReply CSMS下行CALL的应答
type CallReply struct {
	Result    json.RawMessage // CALLRESULT载荷，CALLERROR时为nil
	ErrorCode string          // CALLERROR错误码，正常应答时为空
}

// Responder 按动作定制CALLRESULT载荷，返回nil时走默认应答
type Responder func(payload json.RawMessage) interface{}

// csmsConn 一条站点连接，写操作串行化
type csmsConn struct {
	conn        *websocket.Conn
	subprotocol string
	mu          sync.Mutex
}

func (c *csmsConn) write(frame []interface{}) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// FakeCSMS 进程内CSMS替身
// 接受站点的WebSocket连接，记录上行CALL并按应答脚本回CALLRESULT，
// 也能主动下发CALL并等待站点应答
type FakeCSMS struct {
	t      *testing.T
	server *httptest.Server

	mu         sync.Mutex
	rejecting  bool
	conns      []*csmsConn
	calls      []ReceivedCall
	responders map[string]Responder
	pending    map[string]chan CallReply
}

// NewFakeCSMS 启动测试CSMS，测试结束自动关闭
func NewFakeCSMS(t *testing.T) *FakeCSMS {
	t.Helper()

	f := &FakeCSMS{
		t:          t,
		responders: make(map[string]Responder),
		pending:    make(map[string]chan CallReply),
	}

	upgrader := websocket.Upgrader{
		Subprotocols: []string{"ocpp1.6", "ocpp2.0.1"},
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		rejecting := f.rejecting
		f.mu.Unlock()
		if rejecting {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cc := &csmsConn{conn: conn, subprotocol: conn.Subprotocol()}
		f.mu.Lock()
		f.conns = append(f.conns, cc)
		f.mu.Unlock()

		go f.readLoop(cc)
	}))
	t.Cleanup(f.server.Close)

	return f
}

// URL CSMS根地址，站点ID由客户端追加
func (f *FakeCSMS) URL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ocpp"
}

// Respond 注册动作的应答脚本
func (f *FakeCSMS) Respond(action string, responder Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[action] = responder
}

// SetReject 控制是否拒绝新的握手，用于模拟CSMS不可达
func (f *FakeCSMS) SetReject(reject bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejecting = reject
}

// CloseConnections 关闭全部在线连接
func (f *FakeCSMS) CloseConnections() {
	f.mu.Lock()
	conns := append([]*csmsConn{}, f.conns...)
	f.conns = nil
	f.mu.Unlock()

	for _, cc := range conns {
		_ = cc.conn.Close()
	}
}

// readLoop 处理一条连接上的OCPP-J帧
func (f *FakeCSMS) readLoop(cc *csmsConn) {
	defer func() {
		f.mu.Lock()
		for i, c := range f.conns {
			if c == cc {
				f.conns = append(f.conns[:i], f.conns[i+1:]...)
				break
			}
		}
		f.mu.Unlock()
		_ = cc.conn.Close()
	}()

	for {
		_, data, err := cc.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 3 {
			continue
		}
		var messageType int
		if err := json.Unmarshal(frame[0], &messageType); err != nil {
			continue
		}
		var messageID string
		if err := json.Unmarshal(frame[1], &messageID); err != nil {
			continue
		}

		switch messageType {
		case 2: // CALL
			if len(frame) < 4 {
				continue
			}
			var action string
			if err := json.Unmarshal(frame[2], &action); err != nil {
				continue
			}
			f.handleCall(cc, messageID, action, frame[3])
		case 3: // CALLRESULT
			f.deliver(messageID, CallReply{Result: frame[2]})
		case 4: // CALLERROR
			var code string
			_ = json.Unmarshal(frame[2], &code)
			f.deliver(messageID, CallReply{ErrorCode: code})
		}
	}
}

func (f *FakeCSMS) handleCall(cc *csmsConn, messageID, action string, payload json.RawMessage) {
	f.mu.Lock()
	f.calls = append(f.calls, ReceivedCall{MessageID: messageID, Action: action, Payload: payload})
	responder := f.responders[action]
	f.mu.Unlock()

	var response interface{}
	if responder != nil {
		response = responder(payload)
	}
	if response == nil {
		response = f.defaultResponse(cc.subprotocol, action)
	}
	if err := cc.write([]interface{}{3, messageID, response}); err != nil {
		f.t.Logf("fake CSMS reply to %s failed: %v", action, err)
	}
}

func (f *FakeCSMS) deliver(messageID string, reply CallReply) {
	f.mu.Lock()
	ch, ok := f.pending[messageID]
	delete(f.pending, messageID)
	f.mu.Unlock()

	if ok {
		ch <- reply
	}
}

// defaultResponse 动作的最小合法应答
func (f *FakeCSMS) defaultResponse(subprotocol, action string) interface{} {
	now := time.Now().UTC().Format(time.RFC3339)
	switch action {
	case "BootNotification":
		return map[string]interface{}{"status": "Accepted", "currentTime": now, "interval": 45}
	case "Heartbeat":
		return map[string]interface{}{"currentTime": now}
	case "Authorize":
		if subprotocol == "ocpp2.0.1" {
			return map[string]interface{}{"idTokenInfo": map[string]interface{}{"status": "Accepted"}}
		}
		return map[string]interface{}{"idTagInfo": map[string]interface{}{"status": "Accepted"}}
	case "StartTransaction":
		return map[string]interface{}{"idTagInfo": map[string]interface{}{"status": "Accepted"}, "transactionId": 555}
	case "StopTransaction":
		return map[string]interface{}{"idTagInfo": map[string]interface{}{"status": "Accepted"}}
	default:
		return map[string]interface{}{}
	}
}

// SendCall 向最近一条连接下发CALL并等待站点应答
func (f *FakeCSMS) SendCall(t *testing.T, action string, payload interface{}) CallReply {
	t.Helper()

	f.mu.Lock()
	require.NotEmpty(t, f.conns, "no station connection to the fake CSMS")
	cc := f.conns[len(f.conns)-1]
	messageID := uuid.NewString()
	ch := make(chan CallReply, 1)
	f.pending[messageID] = ch
	f.mu.Unlock()

	require.NoError(t, cc.write([]interface{}{2, messageID, action, payload}))

	select {
	case reply := <-ch:
		return reply
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the %s reply", action)
		return CallReply{}
	}
}

// CallsFor 按动作过滤已收到的CALL
func (f *FakeCSMS) CallsFor(action string) []ReceivedCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []ReceivedCall
	for _, c := range f.calls {
		if c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

// WaitForCall 等待指定动作的CALL出现，返回最早的一条
func (f *FakeCSMS) WaitForCall(t *testing.T, action string) ReceivedCall {
	t.Helper()

	require.Eventually(t, func() bool {
		return len(f.CallsFor(action)) > 0
	}, 5*time.Second, 10*time.Millisecond, "no %s call reached the fake CSMS", action)
	return f.CallsFor(action)[0]
}

// ConnectionCount 当前在线连接数
func (f *FakeCSMS) ConnectionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}
