package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charging-platform/station-simulator/internal/config"
	"github.com/charging-platform/station-simulator/internal/devicemodel"
	"github.com/charging-platform/station-simulator/internal/diagnostics"
	"github.com/charging-platform/station-simulator/internal/domain/protocol"
	"github.com/charging-platform/station-simulator/internal/logger"
	"github.com/charging-platform/station-simulator/internal/message"
	"github.com/charging-platform/station-simulator/internal/meter"
	protocol16 "github.com/charging-platform/station-simulator/internal/protocol/ocpp16"
	protocol201 "github.com/charging-platform/station-simulator/internal/protocol/ocpp201"
	"github.com/charging-platform/station-simulator/internal/station"
	"github.com/charging-platform/station-simulator/internal/storage"
	"github.com/charging-platform/station-simulator/internal/transport/router"
	"github.com/charging-platform/station-simulator/internal/transport/websocket"
)

const (
	// presenceTTL 在线登记的过期时间，到期未刷新视为实例失联
	presenceTTL = 90 * time.Second

	// presenceRefreshInterval 在线登记的刷新周期
	presenceRefreshInterval = 30 * time.Second
)

// transport 站点到CSMS的连接，既是路由器的底层传输也有自己的生命周期
type transport interface {
	router.Transport
	Start() error
	Stop() error
}

// serviceLifecycle 协议服务的启停
type serviceLifecycle interface {
	Start() error
	Stop() error
}

// CommandConsumer 车队指令源
type CommandConsumer interface {
	Start(handler message.CommandHandler) error
	Close() error
}

// Deps 车队的外部依赖，nil项对应的能力关闭
type Deps struct {
	Producer message.EventProducer
	Consumer CommandConsumer
	Presence storage.PresenceStorage
}

// transportFactory 创建站点连接，测试注入替身时使用
type transportFactory func(cfg *websocket.Config, log *logger.Logger) (transport, error)

// simStation 一个模拟站点的全套部件
type simStation struct {
	id      string
	version string
	station *station.Station
	client  transport
	router  router.MessageRouter
	service serviceLifecycle
	ctrl    Controller
}

// Supervisor 车队监督者
// 按配置装配全部站点，负责启停编排、事件外发、指令分发与在线登记
type Supervisor struct {
	config *config.Config
	deps   Deps
	logger *logger.Logger

	mu       sync.Mutex
	stations map[string]*simStation
	order    []string
	started  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	newTransport transportFactory
}

// NewSupervisor 创建车队监督者并装配全部站点
func NewSupervisor(cfg *config.Config, deps Deps, log *logger.Logger) (*Supervisor, error) {
	return newSupervisor(cfg, deps, log, func(wsCfg *websocket.Config, l *logger.Logger) (transport, error) {
		return websocket.NewClient(wsCfg, l)
	})
}

func newSupervisor(cfg *config.Config, deps Deps, log *logger.Logger, factory transportFactory) (*Supervisor, error) {
	s := &Supervisor{
		config:       cfg,
		deps:         deps,
		logger:       log.WithComponent("fleet"),
		stations:     make(map[string]*simStation),
		newTransport: factory,
	}

	for _, sc := range cfg.StationConfigs() {
		sim, err := s.buildStation(sc)
		if err != nil {
			return nil, fmt.Errorf("failed to build station %s: %w", sc.ID, err)
		}
		s.stations[sim.id] = sim
		s.order = append(s.order, sim.id)
	}
	if len(s.order) == 0 {
		return nil, fmt.Errorf("fleet has no stations")
	}

	s.logger.Infof("Fleet assembled with %d stations", len(s.order))
	return s, nil
}

// buildStation 装配单个站点：站点聚合根、WebSocket客户端、消息路由器与协议服务
func (s *Supervisor) buildStation(sc config.StationConfig) (*simStation, error) {
	version := protocol.NormalizeVersion(sc.Version)
	if !protocol.IsVersionSupported(version) {
		return nil, fmt.Errorf("unsupported ocpp version %q", sc.Version)
	}

	stationCfg := station.DefaultConfig()
	stationCfg.ID = sc.ID
	stationCfg.Version = version
	stationCfg.Vendor = sc.Vendor
	stationCfg.Model = sc.Model
	stationCfg.SerialNumber = sc.SerialNumber
	stationCfg.FirmwareVersion = sc.FirmwareVersion
	stationCfg.ConnectorCount = sc.ConnectorCount
	stationCfg.EvseCount = sc.EvseCount
	stationCfg.LocalAuthTags = sc.LocalAuthTags
	stationCfg.StrictCompliance = s.config.OCPP.StrictCompliance
	if s.config.OCPP.HeartbeatInterval > 0 {
		stationCfg.HeartbeatInterval = s.config.OCPP.HeartbeatInterval
	}
	if s.config.OCPP.MeterValueSampleInterval > 0 {
		stationCfg.MeterValueSampleInterval = s.config.OCPP.MeterValueSampleInterval
	}
	if s.config.OCPP.ItemsPerMessage > 0 {
		stationCfg.ItemsPerMessage = s.config.OCPP.ItemsPerMessage
	}
	if s.config.OCPP.BytesPerMessage > 0 {
		stationCfg.BytesPerMessage = s.config.OCPP.BytesPerMessage
	}
	if s.config.OCPP.OfflineQueueLimit > 0 {
		stationCfg.OfflineQueueLimit = s.config.OCPP.OfflineQueueLimit
	}

	st := station.New(stationCfg, s.logger)

	client, err := s.newTransport(s.websocketConfig(sc.ID, version), s.logger)
	if err != nil {
		return nil, err
	}

	routerCfg := router.DefaultRouterConfig()
	routerCfg.StationID = sc.ID
	routerCfg.OCPPVersion = version
	if s.config.OCPP.CallTimeout > 0 {
		routerCfg.DefaultCallTimeout = s.config.OCPP.CallTimeout
	}
	if s.config.OCPP.OfflineQueueLimit > 0 {
		routerCfg.OfflineQueueLimit = s.config.OCPP.OfflineQueueLimit
	}
	routerCfg.EnableMetrics = s.config.Metrics.Enabled

	rt := router.NewDefaultMessageRouter(routerCfg, s.logger)
	if err := rt.SetTransport(client); err != nil {
		return nil, err
	}

	sampler := meter.NewSimulator(meter.DefaultConfig(), meter.NewRNG(0))

	sim := &simStation{id: sc.ID, version: version, station: st, client: client, router: rt}
	switch version {
	case protocol.OCPP_VERSION_1_6:
		svc := protocol16.NewService(s.v16Config(), st, rt, s.logger)
		svc.SetMeterSampler(sampler.V16Sampler())
		svc.SetDiagnosticsUploader(diagnostics.NewUploader(s.diagnosticsConfig(sc.ID), s.logger))
		sim.service = svc
		sim.ctrl = newV16Controller(svc, st, s.logger)
	case protocol.OCPP_VERSION_2_0_1:
		svc := protocol201.NewService(s.v201Config(), st, rt, devicemodel.NewManager(nil, s.logger), s.logger)
		svc.SetMeterSampler(sampler.V201Sampler())
		sim.service = svc
		sim.ctrl = newV201Controller(svc, st, s.logger)
	default:
		return nil, fmt.Errorf("unsupported ocpp version %q", version)
	}

	// 在线登记随连接状态同步，连接事件本身由协议服务上报
	if s.deps.Presence != nil {
		rt.OnOpen(func(string) { s.markOnline(sim.id) })
		rt.OnClose(func(error) { s.markOffline(sim.id) })
	}

	return sim, nil
}

// websocketConfig 站点的WebSocket客户端配置
func (s *Supervisor) websocketConfig(stationID, version string) *websocket.Config {
	cfg := websocket.DefaultConfig()
	cfg.URL = s.config.CSMS.URL
	cfg.StationID = stationID
	cfg.Subprotocol = version
	cfg.BasicAuthUser = s.config.CSMS.BasicAuthUser
	cfg.BasicAuthPassword = s.config.CSMS.BasicAuthPassword
	cfg.InsecureSkipVerify = s.config.CSMS.InsecureSkipVerify

	ws := s.config.WebSocket
	if ws.HandshakeTimeout > 0 {
		cfg.HandshakeTimeout = ws.HandshakeTimeout
	}
	if ws.ReadBufferSize > 0 {
		cfg.ReadBufferSize = ws.ReadBufferSize
	}
	if ws.WriteBufferSize > 0 {
		cfg.WriteBufferSize = ws.WriteBufferSize
	}
	if ws.WriteTimeout > 0 {
		cfg.WriteTimeout = ws.WriteTimeout
	}
	if ws.PingInterval > 0 {
		cfg.PingInterval = ws.PingInterval
	}
	if ws.PongTimeout > 0 {
		cfg.PongTimeout = ws.PongTimeout
	}
	if ws.MaxMessageSize > 0 {
		cfg.MaxMessageSize = ws.MaxMessageSize
	}
	cfg.EnableCompression = ws.EnableCompression
	if ws.ReconnectInitialBackoff > 0 {
		cfg.ReconnectInitialBackoff = ws.ReconnectInitialBackoff
	}
	if ws.ReconnectMaxBackoff > 0 {
		cfg.ReconnectMaxBackoff = ws.ReconnectMaxBackoff
	}
	cfg.ReconnectMaxAttempts = ws.ReconnectMaxAttempts
	return cfg
}

// v16Config 1.6协议服务配置
func (s *Supervisor) v16Config() *protocol16.Config {
	cfg := protocol16.DefaultConfig()
	if s.config.OCPP.CallTimeout > 0 {
		cfg.CallTimeout = s.config.OCPP.CallTimeout
	}
	if s.config.OCPP.BootRetryInterval > 0 {
		cfg.BootRetryInterval = s.config.OCPP.BootRetryInterval
	}
	if s.config.OCPP.HeartbeatInterval > 0 {
		cfg.HeartbeatInterval = s.config.OCPP.HeartbeatInterval
	}
	if s.config.OCPP.MeterValueSampleInterval > 0 {
		cfg.MeterValueSampleInterval = s.config.OCPP.MeterValueSampleInterval
	}
	if fw := s.config.Firmware; fw.DownloadDuration > 0 {
		cfg.Firmware.MinDelay = fw.DownloadDuration
		cfg.Firmware.MaxDelay = fw.DownloadDuration + fw.InstallDuration
	}
	return cfg
}

// v201Config 2.0.1协议服务配置
func (s *Supervisor) v201Config() *protocol201.Config {
	cfg := protocol201.DefaultConfig()
	if s.config.OCPP.CallTimeout > 0 {
		cfg.CallTimeout = s.config.OCPP.CallTimeout
	}
	if s.config.OCPP.BootRetryInterval > 0 {
		cfg.BootRetryInterval = s.config.OCPP.BootRetryInterval
	}
	if s.config.OCPP.HeartbeatInterval > 0 {
		cfg.HeartbeatInterval = s.config.OCPP.HeartbeatInterval
	}
	if s.config.OCPP.MeterValueSampleInterval > 0 {
		cfg.MeterValueSampleInterval = s.config.OCPP.MeterValueSampleInterval
	}
	return cfg
}

// diagnosticsConfig 站点的诊断上传配置
func (s *Supervisor) diagnosticsConfig(stationID string) *diagnostics.Config {
	cfg := diagnostics.DefaultConfig()
	cfg.StationID = stationID
	if s.config.Diagnostics.WorkDir != "" {
		cfg.LogDir = s.config.Diagnostics.WorkDir
	}
	if s.config.Diagnostics.UploadTimeout > 0 {
		cfg.DialTimeout = s.config.Diagnostics.UploadTimeout
	}
	return cfg
}

// Start 启动车队：先接入指令源，再按启动间隔逐个拉起站点
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("fleet already started")
	}
	s.started = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	if s.deps.Consumer != nil {
		if err := s.deps.Consumer.Start(s.HandleCommand); err != nil {
			return fmt.Errorf("failed to start command consumer: %w", err)
		}
	}

	for i, id := range s.order {
		sim := s.stations[id]
		if err := s.startStation(sim); err != nil {
			s.logger.Errorf("Station %s failed to start: %v", id, err)
			continue
		}

		// 错峰启动，避免对CSMS的连接风暴
		if delay := s.config.Fleet.StartupDelay; delay > 0 && i < len(s.order)-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
		}
	}

	if s.deps.Presence != nil {
		s.wg.Add(1)
		go s.presenceLoop(ctx)
	}

	s.logger.Infof("Fleet started with %d stations", len(s.order))
	return nil
}

// startStation 站点启动顺序：聚合根 -> 协议服务 -> 路由器 -> 事件外发 -> 连接
func (s *Supervisor) startStation(sim *simStation) error {
	if err := sim.station.Start(); err != nil {
		return err
	}
	if err := sim.service.Start(); err != nil {
		return err
	}
	if err := sim.router.Start(); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.pumpEvents(sim)

	return sim.client.Start()
}

// Stop 停止车队，与启动相反的顺序收尾
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.deps.Consumer != nil {
		if err := s.deps.Consumer.Close(); err != nil {
			s.logger.Warnf("Command consumer close: %v", err)
		}
	}

	for i := len(s.order) - 1; i >= 0; i-- {
		sim := s.stations[s.order[i]]
		if err := sim.client.Stop(); err != nil {
			s.logger.Warnf("Station %s client stop: %v", sim.id, err)
		}
		if err := sim.router.Stop(); err != nil {
			s.logger.Warnf("Station %s router stop: %v", sim.id, err)
		}
		if err := sim.service.Stop(); err != nil {
			s.logger.Warnf("Station %s service stop: %v", sim.id, err)
		}
		if err := sim.station.Stop(); err != nil {
			s.logger.Warnf("Station %s stop: %v", sim.id, err)
		}
		s.markOffline(sim.id)
	}

	s.wg.Wait()
	s.logger.Info("Fleet stopped")
	return nil
}

// pumpEvents 将站点事件外发到事件总线，站点停止后随通道关闭退出
func (s *Supervisor) pumpEvents(sim *simStation) {
	defer s.wg.Done()

	for ev := range sim.station.Events() {
		if s.deps.Producer == nil {
			continue
		}
		if err := s.deps.Producer.PublishEvent(ev); err != nil {
			s.logger.Warnf("Station %s event %s publish failed: %v", sim.id, ev.GetType(), err)
		}
	}
}

// presenceLoop 周期刷新在线登记，保持TTL不过期
func (s *Supervisor) presenceLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(presenceRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			sims := make([]*simStation, 0, len(s.order))
			for _, id := range s.order {
				sims = append(sims, s.stations[id])
			}
			s.mu.Unlock()

			for _, sim := range sims {
				if sim.client.IsOpen() {
					s.markOnline(sim.id)
				}
			}
		}
	}
}

// markOnline 登记站点在线
func (s *Supervisor) markOnline(stationID string) {
	if s.deps.Presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.Presence.SetOnline(ctx, stationID, s.config.InstanceID, presenceTTL); err != nil {
		s.logger.Warnf("Station %s online registration failed: %v", stationID, err)
	}
}

// markOffline 注销站点在线登记
func (s *Supervisor) markOffline(stationID string) {
	if s.deps.Presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.Presence.DeleteOnline(ctx, stationID); err != nil {
		s.logger.Warnf("Station %s online deregistration failed: %v", stationID, err)
	}
}

// HandleCommand 执行一条车队指令
func (s *Supervisor) HandleCommand(cmd *message.Command) {
	s.mu.Lock()
	sim, ok := s.stations[cmd.StationID]
	s.mu.Unlock()
	if !ok {
		s.logger.Warnf("Fleet command %s for unknown station %s ignored", cmd.Type, cmd.StationID)
		return
	}

	timeout := 30 * time.Second
	if s.config.OCPP.CallTimeout > 0 {
		timeout = s.config.OCPP.CallTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	switch cmd.Type {
	case message.CommandConnect:
		err = sim.client.Start()
	case message.CommandDisconnect:
		err = sim.client.Stop()
	case message.CommandStartTransaction:
		err = sim.ctrl.StartTransaction(ctx, cmd.ConnectorID, cmd.IdTag)
	case message.CommandStopTransaction:
		err = sim.ctrl.StopTransaction(ctx, cmd.ConnectorID)
	case message.CommandStatusNotification:
		err = sim.ctrl.NotifyStatus(ctx, cmd.ConnectorID, cmd.Status, cmd.ErrorCode)
	default:
		err = fmt.Errorf("unknown command type %q", cmd.Type)
	}

	if err != nil {
		s.logger.Warnf("Fleet command %s for station %s failed: %v", cmd.Type, cmd.StationID, err)
		return
	}
	s.logger.Debugf("Fleet command %s for station %s executed", cmd.Type, cmd.StationID)
}

// StationIDs 车队的全部站点标识，按装配顺序
func (s *Supervisor) StationIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.order...)
}

// ConnectedCount 当前有活跃连接的站点数量
func (s *Supervisor) ConnectedCount() int {
	s.mu.Lock()
	sims := make([]*simStation, 0, len(s.order))
	for _, id := range s.order {
		sims = append(sims, s.stations[id])
	}
	s.mu.Unlock()

	count := 0
	for _, sim := range sims {
		if sim.client.IsOpen() {
			count++
		}
	}
	return count
}
