package websocket

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charging-platform/station-simulator/internal/logger"
	"github.com/charging-platform/station-simulator/internal/metrics"
)

// Config WebSocket客户端配置
type Config struct {
	// 连接配置
	URL         string `json:"url"`          // CSMS根地址，站点ID追加到路径末尾
	StationID   string `json:"station_id"`   // 站点标识，同时作为日志前缀
	Subprotocol string `json:"subprotocol"`  // 握手时请求的OCPP子协议

	// 认证配置
	BasicAuthUser      string `json:"basic_auth_user"`
	BasicAuthPassword  string `json:"basic_auth_password"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`

	// WebSocket配置
	HandshakeTimeout  time.Duration `json:"handshake_timeout"`
	ReadBufferSize    int           `json:"read_buffer_size"`
	WriteBufferSize   int           `json:"write_buffer_size"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	PingInterval      time.Duration `json:"ping_interval"`
	PongTimeout       time.Duration `json:"pong_timeout"`
	MaxMessageSize    int64         `json:"max_message_size"`
	EnableCompression bool          `json:"enable_compression"`
	SendQueueSize     int           `json:"send_queue_size"`

	// 重连退避
	ReconnectInitialBackoff time.Duration `json:"reconnect_initial_backoff"`
	ReconnectMaxBackoff     time.Duration `json:"reconnect_max_backoff"`
	ReconnectMaxAttempts    int           `json:"reconnect_max_attempts"` // 0表示不限次数
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		URL:         "ws://localhost:8080/ocpp",
		Subprotocol: "ocpp1.6",

		HandshakeTimeout:  10 * time.Second,
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		WriteTimeout:      10 * time.Second,
		PingInterval:      30 * time.Second,
		PongTimeout:       10 * time.Second,
		MaxMessageSize:    1024 * 1024, // 1MB
		EnableCompression: false,
		SendQueueSize:     256,

		ReconnectInitialBackoff: 1 * time.Second,
		ReconnectMaxBackoff:     2 * time.Minute,
		ReconnectMaxAttempts:    0,
	}
}

// MessageType 消息类型枚举
type MessageType int

const (
	MessageTypeText MessageType = iota
	MessageTypePing
	MessageTypePong
)

// WebSocketMessage WebSocket消息结构
type WebSocketMessage struct {
	Type MessageType
	Data []byte
}

// ClientStats 客户端统计信息
type ClientStats struct {
	ConnectAttempts  int64     `json:"connect_attempts"`
	ConnectFailures  int64     `json:"connect_failures"`
	Reconnects       int64     `json:"reconnects"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesReceived int64     `json:"messages_received"`
	BytesSent        int64     `json:"bytes_sent"`
	BytesReceived    int64     `json:"bytes_received"`
	PingsSent        int64     `json:"pings_sent"`
	PongsReceived    int64     `json:"pongs_received"`
	LastConnectedAt  time.Time `json:"last_connected_at"`
	LastClosedAt     time.Time `json:"last_closed_at"`
	Connected        bool      `json:"connected"`
}

// Client 站点到CSMS的WebSocket客户端
// 维持单条长连接，断开后按退避策略自动重连
type Client struct {
	// 配置
	config   *Config
	endpoint string
	header   http.Header
	dialer   *websocket.Dialer

	// 回调，应在Start前注册
	handlerMutex sync.RWMutex
	frameHandler func(data []byte)
	openHandler  func(subprotocol string)
	closeHandler func(err error)

	// 当前活跃连接
	mutex  sync.RWMutex
	active *wsConn

	// 统计信息
	stats      ClientStats
	statsMutex sync.RWMutex

	// 生命周期管理
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	started    bool
	startMutex sync.Mutex

	// 日志器
	logger *logger.Logger
}

// wsConn 单条已建立连接的包装器
type wsConn struct {
	conn        *websocket.Conn
	subprotocol string

	// 消息通道 - 统一处理所有类型的WebSocket写入
	sendChan  chan WebSocketMessage
	pingReset chan time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient 创建WebSocket客户端，endpoint为URL加站点ID
func NewClient(config *Config, log *logger.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if config.StationID == "" {
		return nil, fmt.Errorf("station id is required")
	}

	base, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid CSMS url %q: %w", config.URL, err)
	}
	if base.Scheme != "ws" && base.Scheme != "wss" {
		return nil, fmt.Errorf("CSMS url must use ws or wss scheme, got %q", base.Scheme)
	}
	endpoint := base.JoinPath(config.StationID)

	header := http.Header{}
	if config.BasicAuthUser != "" {
		credential := config.BasicAuthUser + ":" + config.BasicAuthPassword
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credential)))
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout:  config.HandshakeTimeout,
		ReadBufferSize:    config.ReadBufferSize,
		WriteBufferSize:   config.WriteBufferSize,
		EnableCompression: config.EnableCompression,
		Subprotocols:      []string{config.Subprotocol},
	}
	if config.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if log == nil {
		l, err := logger.New(logger.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		log = l
	}

	return &Client{
		config:   config,
		endpoint: endpoint.String(),
		header:   header,
		dialer:   dialer,
		logger:   log.WithStation(config.StationID).WithComponent("websocket"),
	}, nil
}

// OnFrame 注册文本帧回调
func (c *Client) OnFrame(fn func(data []byte)) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.frameHandler = fn
}

// OnOpen 注册连接建立回调，参数为协商到的子协议
func (c *Client) OnOpen(fn func(subprotocol string)) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.openHandler = fn
}

// OnClose 注册连接断开回调
func (c *Client) OnClose(fn func(err error)) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.closeHandler = fn
}

// Start 启动客户端，连接和重连都在后台进行
func (c *Client) Start() error {
	c.startMutex.Lock()
	defer c.startMutex.Unlock()

	if c.started {
		return fmt.Errorf("websocket client already started")
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.started = true

	c.wg.Add(1)
	go c.runLoop()

	c.logger.Infof("WebSocket client started, endpoint: %s, subprotocol: %s",
		c.endpoint, c.config.Subprotocol)

	return nil
}

// Stop 停止客户端并关闭当前连接
func (c *Client) Stop() error {
	c.startMutex.Lock()
	defer c.startMutex.Unlock()

	if !c.started {
		return nil
	}

	c.logger.Info("Stopping WebSocket client")

	c.cancel()

	c.mutex.Lock()
	if c.active != nil {
		c.active.close(c.config.WriteTimeout)
	}
	c.mutex.Unlock()

	c.wg.Wait()
	c.started = false

	c.logger.Info("WebSocket client stopped")
	return nil
}

// IsOpen 当前是否有活跃连接
func (c *Client) IsOpen() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.active == nil {
		return false
	}
	select {
	case <-c.active.ctx.Done():
		return false
	default:
		return true
	}
}

// Subprotocol 返回当前连接协商到的子协议，未连接时为空
func (c *Client) Subprotocol() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.active == nil {
		return ""
	}
	return c.active.subprotocol
}

// Send 发送文本帧，连接不可用或发送队列满时返回错误
func (c *Client) Send(data []byte) error {
	c.mutex.RLock()
	active := c.active
	c.mutex.RUnlock()

	if active == nil {
		return fmt.Errorf("websocket not connected")
	}

	msg := WebSocketMessage{Type: MessageTypeText, Data: data}
	select {
	case active.sendChan <- msg:
		return nil
	case <-active.ctx.Done():
		return fmt.Errorf("websocket connection closed")
	default:
		return fmt.Errorf("websocket send queue full")
	}
}

// RestartPing 以新间隔重启WebSocket保活任务
func (c *Client) RestartPing(interval time.Duration) {
	if interval <= 0 {
		c.logger.Warnf("Ignoring non-positive ping interval: %v", interval)
		return
	}

	c.mutex.Lock()
	c.config.PingInterval = interval
	active := c.active
	c.mutex.Unlock()

	if active == nil {
		return
	}

	select {
	case active.pingReset <- interval:
		c.logger.Infof("WebSocket ping interval changed to %v", interval)
	case <-active.ctx.Done():
	default:
		c.logger.Warn("Ping reset signal dropped: previous reset still pending")
	}
}

// GetStats 获取客户端统计信息
func (c *Client) GetStats() ClientStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()

	stats := c.stats
	stats.Connected = c.IsOpen()
	return stats
}

// runLoop 连接维持循环：拨号、泵送、断开后退避重连
func (c *Client) runLoop() {
	defer c.wg.Done()

	backoff := c.config.ReconnectInitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	failures := 0

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.incrementConnectAttempts()

		conn, resp, err := c.dialer.DialContext(c.ctx, c.endpoint, c.header)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}

			failures++
			c.incrementConnectFailures()
			metrics.Reconnects.WithLabelValues("failure").Inc()

			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			c.logger.Warnf("Failed to connect to CSMS (attempt %d, status %d): %v, retrying in %v",
				failures, status, err, backoff)

			if c.config.ReconnectMaxAttempts > 0 && failures >= c.config.ReconnectMaxAttempts {
				c.logger.Errorf("Giving up after %d failed connection attempts", failures)
				return
			}

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}

			backoff *= 2
			if c.config.ReconnectMaxBackoff > 0 && backoff > c.config.ReconnectMaxBackoff {
				backoff = c.config.ReconnectMaxBackoff
			}
			continue
		}

		// 连接成功，重置退避
		failures = 0
		backoff = c.config.ReconnectInitialBackoff
		metrics.Reconnects.WithLabelValues("success").Inc()

		c.runConnection(conn)

		if c.ctx.Err() != nil {
			return
		}
	}
}

// runConnection 泵送单条连接直到其关闭
func (c *Client) runConnection(conn *websocket.Conn) {
	subprotocol := conn.Subprotocol()
	if subprotocol == "" {
		c.logger.Warnf("CSMS did not confirm subprotocol %s, continuing without", c.config.Subprotocol)
	} else if subprotocol != c.config.Subprotocol {
		c.logger.Warnf("CSMS negotiated unexpected subprotocol %s, requested %s",
			subprotocol, c.config.Subprotocol)
	}

	connCtx, connCancel := context.WithCancel(c.ctx)
	active := &wsConn{
		conn:        conn,
		subprotocol: subprotocol,
		sendChan:    make(chan WebSocketMessage, c.config.SendQueueSize),
		pingReset:   make(chan time.Duration, 1),
		ctx:         connCtx,
		cancel:      connCancel,
		done:        make(chan struct{}),
	}

	c.mutex.Lock()
	c.active = active
	pingInterval := c.config.PingInterval
	c.mutex.Unlock()

	c.recordConnected()
	metrics.StationsOnline.Inc()
	c.logger.Infof("Connected to CSMS, negotiated subprotocol: %s", subprotocol)

	c.handlerMutex.RLock()
	openHandler := c.openHandler
	c.handlerMutex.RUnlock()
	if openHandler != nil {
		openHandler(subprotocol)
	}

	c.wg.Add(2)
	go c.sendRoutine(active)
	go c.pingRoutine(active, pingInterval)

	// 接收在当前协程同步运行，返回即连接已断开
	readErr := c.receiveRoutine(active)

	connCancel()
	conn.Close()
	<-active.done

	c.mutex.Lock()
	c.active = nil
	c.mutex.Unlock()

	c.recordClosed()
	metrics.StationsOnline.Dec()

	if c.ctx.Err() == nil {
		c.logger.Warnf("Connection to CSMS lost: %v", readErr)
	}

	c.handlerMutex.RLock()
	closeHandler := c.closeHandler
	c.handlerMutex.RUnlock()
	if closeHandler != nil {
		closeHandler(readErr)
	}
}

// sendRoutine 发送协程 - 统一处理所有WebSocket写入操作
func (c *Client) sendRoutine(active *wsConn) {
	defer c.wg.Done()
	defer close(active.done)

	for {
		select {
		case <-active.ctx.Done():
			return
		case wsMessage := <-active.sendChan:
			active.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))

			var err error
			switch wsMessage.Type {
			case MessageTypeText:
				err = active.conn.WriteMessage(websocket.TextMessage, wsMessage.Data)
			case MessageTypePing:
				err = active.conn.WriteMessage(websocket.PingMessage, wsMessage.Data)
			case MessageTypePong:
				err = active.conn.WriteMessage(websocket.PongMessage, wsMessage.Data)
			default:
				c.logger.Errorf("Unknown message type: %v", wsMessage.Type)
				continue
			}

			if err != nil {
				c.logger.Errorf("Failed to write message: %v", err)
				active.cancel()
				return
			}

			if wsMessage.Type == MessageTypeText {
				c.recordSent(len(wsMessage.Data))
			} else if wsMessage.Type == MessageTypePing {
				c.incrementPingsSent()
			}
		}
	}
}

// receiveRoutine 接收协程，返回读取终止的原因
func (c *Client) receiveRoutine(active *wsConn) error {
	pongWait := c.pongWait()

	active.conn.SetReadLimit(c.config.MaxMessageSize)
	active.conn.SetReadDeadline(time.Now().Add(pongWait))
	active.conn.SetPongHandler(func(string) error {
		active.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		c.incrementPongsReceived()
		return nil
	})

	for {
		messageType, data, err := active.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.ctx.Err() == nil {
				c.logger.Errorf("WebSocket read error: %v", err)
			}
			return err
		}

		c.recordReceived(len(data))

		if messageType != websocket.TextMessage {
			c.logger.Debugf("Ignoring non-text message of type %d", messageType)
			continue
		}

		c.handlerMutex.RLock()
		frameHandler := c.frameHandler
		c.handlerMutex.RUnlock()

		if frameHandler != nil {
			frameHandler(data)
		}
	}
}

// pingRoutine 保活协程，通过sendChan统一发送ping帧
func (c *Client) pingRoutine(active *wsConn, interval time.Duration) {
	defer c.wg.Done()

	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-active.ctx.Done():
			return
		case newInterval := <-active.pingReset:
			if newInterval > 0 {
				ticker.Reset(newInterval)
			}
		case <-ticker.C:
			pingMsg := WebSocketMessage{Type: MessageTypePing, Data: nil}
			select {
			case active.sendChan <- pingMsg:
			case <-active.ctx.Done():
				return
			default:
				c.logger.Warn("Failed to enqueue ping: send queue full")
			}
		}
	}
}

// pongWait 读超时为ping间隔加pong宽限
func (c *Client) pongWait() time.Duration {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	wait := c.config.PingInterval + c.config.PongTimeout
	if wait <= 0 {
		wait = 60 * time.Second
	}
	return wait
}

// close 主动关闭连接，尽力发送关闭帧
func (w *wsConn) close(writeTimeout time.Duration) {
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "station shutting down"))
	w.cancel()
	w.conn.Close()
}

// 统计更新方法
func (c *Client) incrementConnectAttempts() {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()
	c.stats.ConnectAttempts++
}

func (c *Client) incrementConnectFailures() {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()
	c.stats.ConnectFailures++
}

func (c *Client) recordConnected() {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()
	if !c.stats.LastConnectedAt.IsZero() {
		c.stats.Reconnects++
	}
	c.stats.LastConnectedAt = time.Now()
}

func (c *Client) recordClosed() {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()
	c.stats.LastClosedAt = time.Now()
}

func (c *Client) recordSent(bytes int) {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()
	c.stats.MessagesSent++
	c.stats.BytesSent += int64(bytes)
}

func (c *Client) recordReceived(bytes int) {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()
	c.stats.MessagesReceived++
	c.stats.BytesReceived += int64(bytes)
}

func (c *Client) incrementPingsSent() {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()
	c.stats.PingsSent++
}

func (c *Client) incrementPongsReceived() {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()
	c.stats.PongsReceived++
}
