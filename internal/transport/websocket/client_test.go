package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/station-simulator/internal/logger"
)

func newTestLogger() (*logger.Logger, error) {
	return logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
}

// echoServer 简易CSMS端，记录握手信息并回显收到的文本帧
type echoServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu          sync.Mutex
	authHeader  string
	subprotocol string
	received    [][]byte
	conns       []*websocket.Conn

	closeAfter int32 // 收到N条消息后主动断开，0表示不断开
}

func newEchoServer(t *testing.T) (*echoServer, *httptest.Server) {
	s := &echoServer{
		t: t,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"ocpp1.6", "ocpp2.0.1"},
		},
	}
	server := httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(server.Close)
	return s, server
}

func (s *echoServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.authHeader = r.Header.Get("Authorization")
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.subprotocol = conn.Subprotocol()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	go func() {
		defer conn.Close()
		count := int32(0)
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}

			s.mu.Lock()
			s.received = append(s.received, data)
			s.mu.Unlock()

			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

			count++
			if limit := atomic.LoadInt32(&s.closeAfter); limit > 0 && count >= limit {
				return
			}
		}
	}()
}

func (s *echoServer) receivedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func (s *echoServer) connectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func newTestClient(t *testing.T, server *httptest.Server, mutate func(*Config)) *Client {
	t.Helper()

	config := DefaultConfig()
	config.URL = wsURL(server) + "/ocpp"
	config.StationID = "CP-WS-001"
	config.ReconnectInitialBackoff = 20 * time.Millisecond
	config.ReconnectMaxBackoff = 100 * time.Millisecond
	if mutate != nil {
		mutate(config)
	}

	client, err := newClientForTest(config)
	require.NoError(t, err)
	t.Cleanup(func() { client.Stop() })
	return client
}

func newClientForTest(config *Config) (*Client, error) {
	log, err := newTestLogger()
	if err != nil {
		return nil, err
	}
	return NewClient(config, log)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "ocpp1.6", config.Subprotocol)
	assert.Equal(t, 30*time.Second, config.PingInterval)
	assert.Equal(t, int64(1024*1024), config.MaxMessageSize)
	assert.Equal(t, 0, config.ReconnectMaxAttempts)
	assert.Greater(t, config.SendQueueSize, 0)
}

func TestNewClient_Validation(t *testing.T) {
	log, err := newTestLogger()
	require.NoError(t, err)

	// 缺少站点ID
	config := DefaultConfig()
	_, err = NewClient(config, log)
	assert.Error(t, err)

	// 非ws协议
	config = DefaultConfig()
	config.StationID = "CP-001"
	config.URL = "http://localhost:8080/ocpp"
	_, err = NewClient(config, log)
	assert.Error(t, err)
}

func TestClient_ConnectAndExchange(t *testing.T) {
	server, httpServer := newEchoServer(t)

	var openCount atomic.Int32
	var negotiated atomic.Value
	receivedFrames := make(chan []byte, 16)

	client := newTestClient(t, httpServer, nil)
	client.OnOpen(func(subprotocol string) {
		openCount.Add(1)
		negotiated.Store(subprotocol)
	})
	client.OnFrame(func(data []byte) {
		receivedFrames <- data
	})

	require.NoError(t, client.Start())

	// 等待连接建立
	require.Eventually(t, client.IsOpen, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), openCount.Load())
	assert.Equal(t, "ocpp1.6", negotiated.Load())
	assert.Equal(t, "ocpp1.6", client.Subprotocol())

	// 发送并通过回显收回
	payload := []byte(`[2,"msg-1","Heartbeat",{}]`)
	require.NoError(t, client.Send(payload))

	select {
	case frame := <-receivedFrames:
		assert.Equal(t, payload, frame)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed frame")
	}

	// 服务端看到站点ID追加在路径上并记录了帧
	assert.Equal(t, 1, server.receivedCount())

	stats := client.GetStats()
	assert.Equal(t, int64(1), stats.MessagesSent)
	assert.Equal(t, int64(1), stats.MessagesReceived)
	assert.True(t, stats.Connected)
}

func TestClient_BasicAuthAndSubprotocol(t *testing.T) {
	server, httpServer := newEchoServer(t)

	client := newTestClient(t, httpServer, func(config *Config) {
		config.Subprotocol = "ocpp2.0.1"
		config.BasicAuthUser = "CP-WS-001"
		config.BasicAuthPassword = "s3cret"
	})
	require.NoError(t, client.Start())
	require.Eventually(t, client.IsOpen, 2*time.Second, 10*time.Millisecond)

	server.mu.Lock()
	authHeader := server.authHeader
	subprotocol := server.subprotocol
	server.mu.Unlock()

	// Basic base64("CP-WS-001:s3cret")
	assert.Equal(t, "Basic Q1AtV1MtMDAxOnMzY3JldA==", authHeader)
	assert.Equal(t, "ocpp2.0.1", subprotocol)
	assert.Equal(t, "ocpp2.0.1", client.Subprotocol())
}

func TestClient_SendWhileDisconnected(t *testing.T) {
	_, httpServer := newEchoServer(t)

	client := newTestClient(t, httpServer, nil)

	// 未启动时发送失败
	err := client.Send([]byte("hello"))
	assert.Error(t, err)
	assert.False(t, client.IsOpen())
}

func TestClient_Reconnect(t *testing.T) {
	server, httpServer := newEchoServer(t)
	atomic.StoreInt32(&server.closeAfter, 1)

	var openCount atomic.Int32
	var closeCount atomic.Int32

	client := newTestClient(t, httpServer, nil)
	client.OnOpen(func(string) { openCount.Add(1) })
	client.OnClose(func(error) { closeCount.Add(1) })

	require.NoError(t, client.Start())
	require.Eventually(t, client.IsOpen, 2*time.Second, 10*time.Millisecond)

	// 服务端收到一条消息后断开，客户端应自动重连
	require.NoError(t, client.Send([]byte(`[2,"msg-1","Heartbeat",{}]`)))

	require.Eventually(t, func() bool {
		return openCount.Load() >= 2
	}, 3*time.Second, 10*time.Millisecond, "client should reconnect after server drop")

	assert.GreaterOrEqual(t, closeCount.Load(), int32(1))
	assert.GreaterOrEqual(t, server.connectionCount(), 2)

	require.Eventually(t, client.IsOpen, 2*time.Second, 10*time.Millisecond)

	stats := client.GetStats()
	assert.GreaterOrEqual(t, stats.Reconnects, int64(1))
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	// 先拿到一个地址再关掉，保证拨号失败
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := wsURL(httpServer)
	httpServer.Close()

	config := DefaultConfig()
	config.URL = url + "/ocpp"
	config.StationID = "CP-WS-002"
	config.ReconnectInitialBackoff = 5 * time.Millisecond
	config.ReconnectMaxBackoff = 10 * time.Millisecond
	config.ReconnectMaxAttempts = 3

	client, err := newClientForTest(config)
	require.NoError(t, err)
	require.NoError(t, client.Start())

	require.Eventually(t, func() bool {
		return client.GetStats().ConnectFailures >= 3
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, client.IsOpen())
	require.NoError(t, client.Stop())
}

func TestClient_PingPong(t *testing.T) {
	_, httpServer := newEchoServer(t)

	client := newTestClient(t, httpServer, func(config *Config) {
		config.PingInterval = 30 * time.Millisecond
		config.PongTimeout = 100 * time.Millisecond
	})
	require.NoError(t, client.Start())
	require.Eventually(t, client.IsOpen, 2*time.Second, 10*time.Millisecond)

	// gorilla服务端默认自动回pong
	require.Eventually(t, func() bool {
		stats := client.GetStats()
		return stats.PingsSent >= 2 && stats.PongsReceived >= 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestClient_RestartPing(t *testing.T) {
	_, httpServer := newEchoServer(t)

	client := newTestClient(t, httpServer, func(config *Config) {
		config.PingInterval = time.Hour // 重启前不会有ping
	})
	require.NoError(t, client.Start())
	require.Eventually(t, client.IsOpen, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(0), client.GetStats().PingsSent)

	client.RestartPing(20 * time.Millisecond)

	require.Eventually(t, func() bool {
		return client.GetStats().PingsSent >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// 非法间隔被忽略
	client.RestartPing(0)
	assert.True(t, client.IsOpen())
}

func TestClient_StopIsIdempotent(t *testing.T) {
	_, httpServer := newEchoServer(t)

	client := newTestClient(t, httpServer, nil)
	require.NoError(t, client.Start())
	require.Eventually(t, client.IsOpen, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Stop())
	require.NoError(t, client.Stop())
	assert.False(t, client.IsOpen())

	err := client.Send([]byte("after stop"))
	assert.Error(t, err)
}
