package station

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charging-platform/station-simulator/internal/cache"
	"github.com/charging-platform/station-simulator/internal/domain/events"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	"github.com/charging-platform/station-simulator/internal/domain/protocol"
	"github.com/charging-platform/station-simulator/internal/logger"
)

// RegistrationState 站点注册状态
type RegistrationState string

const (
	RegistrationUnknown  RegistrationState = "Unknown"
	RegistrationPending  RegistrationState = "Pending"
	RegistrationAccepted RegistrationState = "Accepted"
	RegistrationRejected RegistrationState = "Rejected"
)

// Config 站点配置
type Config struct {
	ID              string `json:"id"`
	Version         string `json:"version"` // ocpp1.6 或 ocpp2.0.1
	Vendor          string `json:"vendor"`
	Model           string `json:"model"`
	SerialNumber    string `json:"serial_number"`
	FirmwareVersion string `json:"firmware_version"`

	ConnectorCount int `json:"connector_count"`
	EvseCount      int `json:"evse_count"` // 仅2.0.1，每个EVSE一个连接器

	// 授权
	LocalAuthTags []string `json:"local_auth_tags"`

	// 行为开关
	StrictCompliance           bool `json:"strict_compliance"`
	PowerSharedByConnectors    bool `json:"power_shared_by_connectors"`
	TransactionDataMeterValues bool `json:"transaction_data_meter_values"` // StopTransaction附带transactionData
	BeginEndMeterValues        bool `json:"begin_end_meter_values"`        // 交易起止发送MeterValues(Transaction.Begin/End)
	OutOfOrderEndMeterValues   bool `json:"out_of_order_end_meter_values"`
	RemoteAuthorization        bool `json:"remote_authorization"` // 本地名单未命中时发送Authorize远程授权

	// 定时参数
	HeartbeatInterval        time.Duration `json:"heartbeat_interval"`
	MeterValueSampleInterval time.Duration `json:"meter_value_sample_interval"`

	// 2.0.1设备模型上限
	ItemsPerMessage int `json:"items_per_message"`
	BytesPerMessage int `json:"bytes_per_message"`

	// 离线队列
	OfflineQueueLimit int `json:"offline_queue_limit"`

	// 事件通道容量
	EventChannelSize int `json:"event_channel_size"`
}

// DefaultConfig 默认站点配置
func DefaultConfig() *Config {
	return &Config{
		ID:              "SIM-00001",
		Version:         protocol.OCPP_VERSION_1_6,
		Vendor:          "SimVendor",
		Model:           "SimModel-X",
		FirmwareVersion: "1.0.0",
		ConnectorCount:  2,
		EvseCount:       2,

		RemoteAuthorization: true,

		HeartbeatInterval:        60 * time.Second,
		MeterValueSampleInterval: 60 * time.Second,

		ItemsPerMessage: 50,
		BytesPerMessage: 51200,

		OfflineQueueLimit: 1000,
		EventChannelSize:  256,
	}
}

// Stats 站点统计信息
type Stats struct {
	StatusTransitions    int64     `json:"status_transitions"`
	RejectedTransitions  int64     `json:"rejected_transitions"`
	TransactionsStarted  int64     `json:"transactions_started"`
	TransactionsStopped  int64     `json:"transactions_stopped"`
	QueuedEvents         int64     `json:"queued_events"`
	TotalEnergyDelivered int64     `json:"total_energy_delivered"` // Wh
	LastStatusChange     time.Time `json:"last_status_change"`
}

// Station 单个模拟站点的聚合根
// 站点独占其连接器、EVSE、配置存储与配置文件列表，所有可变状态经station.mu串行化
type Station struct {
	config *Config

	mu           sync.RWMutex
	registration RegistrationState
	connectors   map[int]*Connector // 0号代表站点本身
	evses        map[int]*Evse
	powerDivider int
	stopped      bool

	firmwareStatus    ocpp16.FirmwareStatus // 空值表示从未升级
	diagnosticsStatus ocpp16.DiagnosticsStatus

	configuration *ConfigurationStore
	authCache     *cache.AuthorizationCache
	localAuthList map[string]struct{}

	stats Stats

	// 心跳与保活任务归协议层所有，站点只保留重启钩子
	heartbeatRestart func(time.Duration)
	pingRestart      func(time.Duration)

	eventFactory *events.EventFactory
	eventChan    chan events.Event

	logger *logger.Logger
}

// New 创建站点
func New(config *Config, log *logger.Logger) *Station {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		l, _ := logger.New(logger.DefaultConfig())
		log = l
	}

	version := protocol.NormalizeVersion(config.Version)
	if version == "" {
		version = protocol.GetDefaultVersion()
	}
	config.Version = version

	s := &Station{
		config:        config,
		registration:  RegistrationUnknown,
		connectors:    make(map[int]*Connector),
		evses:         make(map[int]*Evse),
		authCache:     cache.NewAuthorizationCache(cache.DefaultCacheConfig()),
		localAuthList: make(map[string]struct{}, len(config.LocalAuthTags)),
		eventFactory:  events.NewEventFactory(),
		eventChan:     make(chan events.Event, config.EventChannelSize),
		logger:        log.WithStation(config.ID),
	}

	for _, tag := range config.LocalAuthTags {
		s.localAuthList[tag] = struct{}{}
	}

	s.buildTopology()
	s.seedConfiguration()

	return s
}

// buildTopology 按协议版本创建连接器与EVSE
func (s *Station) buildTopology() {
	s.connectors[0] = newConnector(0, 0)

	if s.config.Version == protocol.OCPP_VERSION_2_0_1 {
		evseCount := s.config.EvseCount
		if evseCount <= 0 {
			evseCount = s.config.ConnectorCount
		}
		if evseCount <= 0 {
			evseCount = 1
		}
		for id := 1; id <= evseCount; id++ {
			s.connectors[id] = newConnector(id, id)
			s.evses[id] = &Evse{
				ID:           id,
				Availability: AvailabilityOperative,
				ConnectorIDs: []int{id},
			}
		}
		return
	}

	connectorCount := s.config.ConnectorCount
	if connectorCount <= 0 {
		connectorCount = 1
	}
	for id := 1; id <= connectorCount; id++ {
		s.connectors[id] = newConnector(id, 0)
	}
}

// seedConfiguration 按版本播种出厂配置键
func (s *Station) seedConfiguration() {
	if s.config.Version == protocol.OCPP_VERSION_2_0_1 {
		s.configuration = NewConfigurationStore(DefaultKeysV201(
			len(s.evses),
			s.config.HeartbeatInterval,
			s.config.MeterValueSampleInterval,
			s.config.ItemsPerMessage,
			s.config.BytesPerMessage,
		))
		return
	}
	s.configuration = NewConfigurationStore(DefaultKeysV16(
		len(s.connectors)-1,
		s.config.HeartbeatInterval,
		s.config.MeterValueSampleInterval,
	))
}

// Start 启动站点内部组件
func (s *Station) Start() error {
	return s.authCache.Start()
}

// Stop 停止站点并关闭事件通道
func (s *Station) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("station %s already stopped", s.config.ID)
	}
	s.stopped = true
	s.mu.Unlock()

	if err := s.authCache.Stop(); err != nil {
		s.logger.Warnf("Auth cache stop: %v", err)
	}
	close(s.eventChan)
	return nil
}

// 基本信息

// ID 站点标识
func (s *Station) ID() string { return s.config.ID }

// Version 协议版本（规范化形式）
func (s *Station) Version() string { return s.config.Version }

// Vendor 厂商名
func (s *Station) Vendor() string { return s.config.Vendor }

// Model 型号
func (s *Station) Model() string { return s.config.Model }

// SerialNumber 序列号
func (s *Station) SerialNumber() string { return s.config.SerialNumber }

// FirmwareVersion 固件版本
func (s *Station) FirmwareVersion() string { return s.config.FirmwareVersion }

// Config 站点配置
func (s *Station) Config() *Config { return s.config }

// Logger 站点级日志器
func (s *Station) Logger() *logger.Logger { return s.logger }

// StrictCompliance 是否严格遵循协议文本
func (s *Station) StrictCompliance() bool { return s.config.StrictCompliance }

// 注册状态

// RegistrationStatus 当前注册状态
func (s *Station) RegistrationStatus() RegistrationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registration
}

// SetRegistrationStatus 更新注册状态
func (s *Station) SetRegistrationStatus(state RegistrationState) {
	s.mu.Lock()
	old := s.registration
	s.registration = state
	s.mu.Unlock()

	if old != state {
		s.logger.Infof("Registration status changed: %s -> %s", old, state)
	}
}

// IsRegistered 是否已被CSMS接受
func (s *Station) IsRegistered() bool {
	return s.RegistrationStatus() == RegistrationAccepted
}

// InAcceptedState 注册状态为Accepted
func (s *Station) InAcceptedState() bool {
	return s.RegistrationStatus() == RegistrationAccepted
}

// InPendingState 注册状态为Pending
func (s *Station) InPendingState() bool {
	return s.RegistrationStatus() == RegistrationPending
}

// InUnknownState 尚未收到BootNotification响应
func (s *Station) InUnknownState() bool {
	return s.RegistrationStatus() == RegistrationUnknown
}

// 配置

// Configuration 配置存储
func (s *Station) Configuration() *ConfigurationStore {
	return s.configuration
}

// SetHeartbeatRestartHook 注册心跳任务重启钩子
func (s *Station) SetHeartbeatRestartHook(fn func(time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeatRestart = fn
}

// SetPingRestartHook 注册WebSocket保活任务重启钩子
func (s *Station) SetPingRestartHook(fn func(time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingRestart = fn
}

// RestartHeartbeat 以当前配置的间隔重启心跳任务
func (s *Station) RestartHeartbeat() {
	interval := s.configuration.HeartbeatInterval(s.config.HeartbeatInterval)

	s.mu.RLock()
	hook := s.heartbeatRestart
	s.mu.RUnlock()

	if hook != nil {
		hook(interval)
	}
}

// RestartWebSocketPing 以当前配置的间隔重启保活任务
func (s *Station) RestartWebSocketPing() {
	seconds := s.configuration.IntValue(KeyWebSocketPingInterval, 30)

	s.mu.RLock()
	hook := s.pingRestart
	s.mu.RUnlock()

	if hook != nil && seconds > 0 {
		hook(time.Duration(seconds) * time.Second)
	}
}

// UpdateConfiguration 写入配置键并触发副作用
func (s *Station) UpdateConfiguration(key, value string) SetResult {
	result := s.configuration.Set(key, value)
	if result.Unknown || result.Readonly || result.Unchanged {
		return result
	}

	switch key {
	case KeyHeartbeatInterval, KeyHeartBeatIntervalLegacy:
		s.RestartHeartbeat()
	case KeyWebSocketPingInterval:
		s.RestartWebSocketPing()
	}
	return result
}

// ApplyHeartbeatInterval 回填CSMS下发的心跳间隔并重启心跳
// BootNotification响应处理使用，1.6下两个心跳键互为镜像
func (s *Station) ApplyHeartbeatInterval(seconds int) {
	if seconds <= 0 {
		return
	}
	s.configuration.ForceSet(KeyHeartbeatInterval, strconv.Itoa(seconds))
	s.RestartHeartbeat()
}

// 连接器访问

// ConnectorIDs 全部连接器ID（不含0号），升序
func (s *Station) ConnectorIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int, 0, len(s.connectors)-1)
	for id := range s.connectors {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// ConnectorCount 连接器数量（不含0号）
func (s *Station) ConnectorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connectors) - 1
}

// HasConnector 判断连接器是否存在（0号视为存在）
func (s *Station) HasConnector(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.connectors[id]
	return ok
}

// EvseIDs 全部EVSE ID，升序（仅2.0.1）
func (s *Station) EvseIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int, 0, len(s.evses))
	for id := range s.evses {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// HasEvse 判断EVSE是否存在
func (s *Station) HasEvse(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.evses[id]
	return ok
}

// EvseHasConnector 判断连接器是否挂在指定EVSE下
func (s *Station) EvseHasConnector(evseID, connectorID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evse, ok := s.evses[evseID]
	if !ok {
		return false
	}
	for _, id := range evse.ConnectorIDs {
		if id == connectorID {
			return true
		}
	}
	return false
}

// EvseConnectorIDs 返回EVSE下的连接器编号，未知EVSE返回nil
func (s *Station) EvseConnectorIDs(evseID int) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evse, ok := s.evses[evseID]
	if !ok {
		return nil
	}
	ids := make([]int, len(evse.ConnectorIDs))
	copy(ids, evse.ConnectorIDs)
	return ids
}

// ConnectorSnapshot 连接器状态快照
func (s *Station) ConnectorSnapshot(id int) (Connector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connectors[id]
	if !ok {
		return Connector{}, false
	}
	return snapshotConnector(conn), true
}

// snapshotConnector 深拷贝连接器，切片不共享底层数组
func snapshotConnector(conn *Connector) Connector {
	copied := *conn
	if len(conn.ChargingProfiles16) > 0 {
		copied.ChargingProfiles16 = append([]ocpp16.ChargingProfile(nil), conn.ChargingProfiles16...)
	}
	if len(conn.ChargingProfiles201) > 0 {
		copied.ChargingProfiles201 = append([]ocpp201.ChargingProfile(nil), conn.ChargingProfiles201...)
	}
	if len(conn.TransactionEventQueue) > 0 {
		copied.TransactionEventQueue = append([]QueuedTransactionEvent(nil), conn.TransactionEventQueue...)
	}
	if conn.TransactionSeqNo != nil {
		seqNo := *conn.TransactionSeqNo
		copied.TransactionSeqNo = &seqNo
	}
	if conn.ReservationID != nil {
		id := *conn.ReservationID
		copied.ReservationID = &id
	}
	return copied
}

// 状态机

// TransitionV16 执行1.6状态迁移，非法迁移被拒绝并记录
func (s *Station) TransitionV16(connectorID int, to ocpp16.ChargePointStatus) error {
	s.mu.Lock()

	conn, ok := s.connectors[connectorID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("connector %d not found on %s", connectorID, s.config.ID)
	}

	from := conn.Status16
	if !IsValidTransitionV16(connectorID, from, to) {
		s.stats.RejectedTransitions++
		s.mu.Unlock()
		err := &TransitionError{StationID: s.config.ID, ConnectorID: connectorID, From: string(from), To: string(to)}
		s.logger.Warnf("%v", err)
		return err
	}

	conn.Status16 = to
	s.stats.StatusTransitions++
	s.stats.LastStatusChange = time.Now()
	s.mu.Unlock()

	s.logger.Infof("Connector %d status: %s -> %s", connectorID, from, to)
	s.emitConnectorStatusChanged(connectorID, statusToEventV16(from), statusToEventV16(to))
	return nil
}

// TransitionV201 执行2.0.1状态迁移，非法迁移被拒绝并记录
func (s *Station) TransitionV201(connectorID int, to ocpp201.ConnectorStatus) error {
	s.mu.Lock()

	conn, ok := s.connectors[connectorID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("connector %d not found on %s", connectorID, s.config.ID)
	}

	from := conn.Status201
	if !IsValidTransitionV201(connectorID, from, to) {
		s.stats.RejectedTransitions++
		s.mu.Unlock()
		err := &TransitionError{StationID: s.config.ID, ConnectorID: connectorID, From: string(from), To: string(to)}
		s.logger.Warnf("%v", err)
		return err
	}

	conn.Status201 = to
	s.stats.StatusTransitions++
	s.stats.LastStatusChange = time.Now()
	s.mu.Unlock()

	s.logger.Infof("Connector %d status: %s -> %s", connectorID, from, to)
	s.emitConnectorStatusChanged(connectorID, statusToEventV201(from), statusToEventV201(to))
	return nil
}

// StatusV16 当前1.6状态
func (s *Station) StatusV16(connectorID int) (ocpp16.ChargePointStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connectors[connectorID]
	if !ok {
		return "", false
	}
	return conn.Status16, true
}

// StatusV201 当前2.0.1状态
func (s *Station) StatusV201(connectorID int) (ocpp201.ConnectorStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connectors[connectorID]
	if !ok {
		return "", false
	}
	return conn.Status201, true
}

// 可用性

// SetAvailability 设置连接器可用性，0号应用到站点
func (s *Station) SetAvailability(connectorID int, availability Availability) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connectors[connectorID]
	if !ok {
		return fmt.Errorf("connector %d not found on %s", connectorID, s.config.ID)
	}
	conn.Availability = availability
	return nil
}

// AvailabilityOf 查询连接器可用性
func (s *Station) AvailabilityOf(connectorID int) (Availability, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connectors[connectorID]
	if !ok {
		return "", false
	}
	return conn.Availability, true
}

// IsStationAvailable 站点（0号连接器）是否可用
func (s *Station) IsStationAvailable() bool {
	availability, ok := s.AvailabilityOf(0)
	return ok && availability == AvailabilityOperative
}

// IsConnectorAvailable 指定连接器是否可用
func (s *Station) IsConnectorAvailable(connectorID int) bool {
	availability, ok := s.AvailabilityOf(connectorID)
	return ok && availability == AvailabilityOperative
}

// 授权

// AuthCache 授权缓存
func (s *Station) AuthCache() *cache.AuthorizationCache {
	return s.authCache
}

// IsTagInLocalList 本地白名单是否包含idTag
func (s *Station) IsTagInLocalList(idTag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.localAuthList[idTag]
	return ok
}

// LocalAuthListEnabled 本地授权列表是否启用
func (s *Station) LocalAuthListEnabled() bool {
	return s.configuration.BoolValue(KeyLocalAuthListEnabled, false)
}

// AuthorizeRemoteTxRequests 远程启动是否要求授权
func (s *Station) AuthorizeRemoteTxRequests() bool {
	return s.configuration.BoolValue(KeyAuthorizeRemoteTxRequests, false)
}

// RemoteAuthorization 本地名单未命中时是否允许发送Authorize远程授权
func (s *Station) RemoteAuthorization() bool {
	return s.config.RemoteAuthorization
}

// BeginEndMeterValues 交易起止时是否发送MeterValues(Transaction.Begin/End)
func (s *Station) BeginEndMeterValues() bool {
	return s.config.BeginEndMeterValues
}

// OutOfOrderEndMeterValues 交易结束的MeterValues是否在StopTransaction之后补发
func (s *Station) OutOfOrderEndMeterValues() bool {
	return s.config.OutOfOrderEndMeterValues
}

// TransactionDataMeterValues StopTransaction是否附带transactionData
func (s *Station) TransactionDataMeterValues() bool {
	return s.config.TransactionDataMeterValues
}

// 功率分配

// PowerDivider 当前功率分配计数
func (s *Station) PowerDivider() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.powerDivider
}

// IncrementPowerDivider 交易开始时递增功率分配
func (s *Station) IncrementPowerDivider() {
	if !s.config.PowerSharedByConnectors {
		return
	}
	s.mu.Lock()
	s.powerDivider++
	s.mu.Unlock()
}

// DecrementPowerDivider 交易结束时递减功率分配
func (s *Station) DecrementPowerDivider() {
	if !s.config.PowerSharedByConnectors {
		return
	}
	s.mu.Lock()
	if s.powerDivider > 0 {
		s.powerDivider--
	}
	s.mu.Unlock()
}

// 固件与诊断

// FirmwareStatus 固件升级状态，空值表示从未升级
func (s *Station) FirmwareStatus() ocpp16.FirmwareStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firmwareStatus
}

// SetFirmwareStatus 更新固件升级状态
func (s *Station) SetFirmwareStatus(status ocpp16.FirmwareStatus) {
	s.mu.Lock()
	old := s.firmwareStatus
	s.firmwareStatus = status
	s.mu.Unlock()

	if old != status {
		s.logger.Infof("Firmware status: %s -> %s", old, status)
		s.emit(&events.FirmwareStatusChangedEvent{
			BaseEvent: events.NewBaseEvent(events.EventTypeFirmwareStatusChanged, s.config.ID, events.EventSeverityInfo, s.metadata()),
			Status:    string(status),
		})
	}
}

// DiagnosticsStatus 诊断上传状态
func (s *Station) DiagnosticsStatus() ocpp16.DiagnosticsStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diagnosticsStatus
}

// SetDiagnosticsStatus 更新诊断上传状态
func (s *Station) SetDiagnosticsStatus(status ocpp16.DiagnosticsStatus) {
	s.mu.Lock()
	old := s.diagnosticsStatus
	s.diagnosticsStatus = status
	s.mu.Unlock()

	if old != status {
		s.logger.Infof("Diagnostics status: %s -> %s", old, status)
		s.emit(&events.DiagnosticsStatusChangedEvent{
			BaseEvent: events.NewBaseEvent(events.EventTypeDiagnosticsStatusChanged, s.config.ID, events.EventSeverityInfo, s.metadata()),
			Status:    string(status),
		})
	}
}

// PrepareRestart 模拟重启前的状态复位：清空交易现场并回到未注册状态
// 离线事件队列保留，重连后继续补发
func (s *Station) PrepareRestart() {
	s.mu.Lock()
	s.registration = RegistrationUnknown
	s.powerDivider = 0
	for id, conn := range s.connectors {
		conn.clearTransactionLocked()
		if id == 0 {
			continue
		}
		if conn.Availability == AvailabilityOperative {
			conn.Status16 = ocpp16.ChargePointStatusAvailable
			conn.Status201 = ocpp201.ConnectorStatusAvailable
		}
	}
	s.mu.Unlock()

	s.logger.Info("Station state reset for restart")
}

// 统计与事件

// GetStats 统计信息快照
func (s *Station) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Events 事件通道
func (s *Station) Events() <-chan events.Event {
	return s.eventChan
}

// StationInfo 事件载荷用的站点信息
func (s *Station) StationInfo() events.StationInfo {
	serial := s.config.SerialNumber
	firmware := s.config.FirmwareVersion
	return events.StationInfo{
		ID:              s.config.ID,
		Vendor:          s.config.Vendor,
		Model:           s.config.Model,
		SerialNumber:    &serial,
		FirmwareVersion: &firmware,
		ConnectorCount:  s.ConnectorCount(),
		LastSeen:        time.Now().UTC(),
		ProtocolVersion: s.config.Version,
	}
}

// metadata 事件元数据
func (s *Station) metadata() events.Metadata {
	return events.Metadata{
		Source:          "station",
		ProtocolVersion: s.config.Version,
	}
}

// emit 非阻塞发送事件，通道满时丢弃并告警
func (s *Station) emit(event events.Event) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case s.eventChan <- event:
	default:
		s.logger.Warnf("Event channel full, dropping %s", event.GetType())
	}
}

// EmitEvent 供协议层发布站点事件
func (s *Station) EmitEvent(event events.Event) {
	s.emit(event)
}

// EventFactory 事件工厂
func (s *Station) EventFactory() *events.EventFactory {
	return s.eventFactory
}

// Metadata 供协议层构造事件元数据
func (s *Station) Metadata() events.Metadata {
	return s.metadata()
}

// emitConnectorStatusChanged 连接器状态变化事件
func (s *Station) emitConnectorStatusChanged(connectorID int, from, to events.ConnectorStatus) {
	s.mu.RLock()
	conn, ok := s.connectors[connectorID]
	var evseID int
	if ok {
		evseID = conn.EvseID
	}
	s.mu.RUnlock()
	if !ok {
		return
	}

	info := events.ConnectorInfo{
		ID:        connectorID,
		EvseID:    evseID,
		StationID: s.config.ID,
		Status:    to,
	}
	s.emit(s.eventFactory.CreateConnectorStatusChangedEvent(s.config.ID, info, from, s.metadata()))
}

// statusToEventV16 1.6状态到事件状态的映射
func statusToEventV16(status ocpp16.ChargePointStatus) events.ConnectorStatus {
	switch status {
	case ocpp16.ChargePointStatusAvailable:
		return events.ConnectorStatusAvailable
	case ocpp16.ChargePointStatusPreparing:
		return events.ConnectorStatusPreparing
	case ocpp16.ChargePointStatusCharging:
		return events.ConnectorStatusCharging
	case ocpp16.ChargePointStatusSuspendedEVSE:
		return events.ConnectorStatusSuspendedEVSE
	case ocpp16.ChargePointStatusSuspendedEV:
		return events.ConnectorStatusSuspendedEV
	case ocpp16.ChargePointStatusFinishing:
		return events.ConnectorStatusFinishing
	case ocpp16.ChargePointStatusReserved:
		return events.ConnectorStatusReserved
	case ocpp16.ChargePointStatusUnavailable:
		return events.ConnectorStatusUnavailable
	case ocpp16.ChargePointStatusFaulted:
		return events.ConnectorStatusFaulted
	default:
		return events.ConnectorStatusUnavailable
	}
}

// statusToEventV201 2.0.1状态到事件状态的映射
func statusToEventV201(status ocpp201.ConnectorStatus) events.ConnectorStatus {
	switch status {
	case ocpp201.ConnectorStatusAvailable:
		return events.ConnectorStatusAvailable
	case ocpp201.ConnectorStatusOccupied:
		return events.ConnectorStatusCharging
	case ocpp201.ConnectorStatusReserved:
		return events.ConnectorStatusReserved
	case ocpp201.ConnectorStatusUnavailable:
		return events.ConnectorStatusUnavailable
	case ocpp201.ConnectorStatusFaulted:
		return events.ConnectorStatusFaulted
	default:
		return events.ConnectorStatusUnavailable
	}
}
