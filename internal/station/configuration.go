package station

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// 标准配置键名
const (
	KeyHeartbeatInterval         = "HeartbeatInterval"
	KeyHeartBeatIntervalLegacy   = "HeartBeatInterval" // 1.6遗留别名，与HeartbeatInterval互为镜像
	KeyWebSocketPingInterval     = "WebSocketPingInterval"
	KeyMeterValueSampleInterval  = "MeterValueSampleInterval"
	KeyMeterValuesSampledData    = "MeterValuesSampledData"
	KeyNumberOfConnectors        = "NumberOfConnectors"
	KeyConnectionTimeOut         = "ConnectionTimeOut"
	KeySupportedFeatureProfiles  = "SupportedFeatureProfiles"
	KeyAuthorizeRemoteTxRequests = "AuthorizeRemoteTxRequests"
	KeyLocalAuthListEnabled      = "LocalAuthListEnabled"
	KeyAuthorizationKey          = "AuthorizationKey"

	// 2.0.1设备模型键（OCPPCommCtrlr组件）
	KeyItemsPerMessage = "ItemsPerMessage"
	KeyBytesPerMessage = "BytesPerMessage"
)

// ConfigurationKey 单个配置键
type ConfigurationKey struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Readonly bool   `json:"readonly"`
	Visible  bool   `json:"visible"` // 不可见键不随GetConfiguration返回
	Reboot   bool   `json:"reboot"`  // 修改后需要重启
}

// ConfigurationStore 站点配置存储
// 键大小写不敏感匹配，但返回时保留写入时的原始大小写
type ConfigurationStore struct {
	mu   sync.RWMutex
	keys map[string]*ConfigurationKey // 小写键 -> 条目
}

// NewConfigurationStore 创建配置存储
func NewConfigurationStore(seed []ConfigurationKey) *ConfigurationStore {
	s := &ConfigurationStore{
		keys: make(map[string]*ConfigurationKey, len(seed)),
	}
	for i := range seed {
		entry := seed[i]
		s.keys[strings.ToLower(entry.Key)] = &entry
	}
	return s
}

// Get 查询配置键，返回副本
func (s *ConfigurationStore) Get(key string) (ConfigurationKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.keys[strings.ToLower(key)]
	if !ok {
		return ConfigurationKey{}, false
	}
	return *entry, true
}

// Value 查询配置值
func (s *ConfigurationStore) Value(key string) (string, bool) {
	entry, ok := s.Get(key)
	if !ok {
		return "", false
	}
	return entry.Value, true
}

// BoolValue 查询布尔配置值，缺失或非法时返回fallback
func (s *ConfigurationStore) BoolValue(key string, fallback bool) bool {
	value, ok := s.Value(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// IntValue 查询整数配置值，缺失或非法时返回fallback
func (s *ConfigurationStore) IntValue(key string, fallback int) int {
	value, ok := s.Value(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// SetResult 写入配置的结果
type SetResult struct {
	Unknown        bool // 键不存在
	Readonly       bool // 键只读，拒绝写入
	Unchanged      bool // 新值与旧值相同，无副作用
	RebootRequired bool // 键带reboot标记
}

// Set 写入配置键
// 值比较按字符串进行；HeartbeatInterval与HeartBeatInterval在一次写入中互相镜像
func (s *ConfigurationStore) Set(key, value string) SetResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.keys[strings.ToLower(key)]
	if !ok {
		return SetResult{Unknown: true}
	}
	if entry.Readonly {
		return SetResult{Readonly: true}
	}
	if entry.Value == value {
		return SetResult{Unchanged: true, RebootRequired: entry.Reboot}
	}

	entry.Value = value
	s.mirrorHeartbeatLocked(entry.Key, value)

	return SetResult{RebootRequired: entry.Reboot}
}

// ForceSet 绕过只读检查写入，键不存在时创建可见可写键
// 用于站点内部写入（例如BootNotification响应回填心跳间隔）
func (s *ConfigurationStore) ForceSet(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lower := strings.ToLower(key)
	entry, ok := s.keys[lower]
	if !ok {
		s.keys[lower] = &ConfigurationKey{Key: key, Value: value, Visible: true}
		s.mirrorHeartbeatLocked(key, value)
		return
	}
	entry.Value = value
	s.mirrorHeartbeatLocked(entry.Key, value)
}

// mirrorHeartbeatLocked 心跳键镜像写入，调用方必须持有写锁
func (s *ConfigurationStore) mirrorHeartbeatLocked(key, value string) {
	var mirror string
	switch key {
	case KeyHeartbeatInterval:
		mirror = KeyHeartBeatIntervalLegacy
	case KeyHeartBeatIntervalLegacy:
		mirror = KeyHeartbeatInterval
	default:
		return
	}
	if entry, ok := s.keys[strings.ToLower(mirror)]; ok {
		entry.Value = value
	}
}

// Visible 返回全部可见配置键，保留原始大小写
func (s *ConfigurationStore) Visible() []ConfigurationKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ConfigurationKey, 0, len(s.keys))
	for _, entry := range s.keys {
		if entry.Visible {
			result = append(result, *entry)
		}
	}
	return result
}

// Lookup 按键名列表查询，返回命中的可见键和未知键名
func (s *ConfigurationStore) Lookup(names []string) (found []ConfigurationKey, unknown []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, name := range names {
		entry, ok := s.keys[strings.ToLower(name)]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if !entry.Visible {
			// 隐藏键静默忽略
			continue
		}
		found = append(found, *entry)
	}
	return found, unknown
}

// HeartbeatInterval 解析当前心跳间隔，非法值时返回fallback
func (s *ConfigurationStore) HeartbeatInterval(fallback time.Duration) time.Duration {
	value, ok := s.Value(KeyHeartbeatInterval)
	if !ok {
		return fallback
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// DefaultKeysV16 1.6站点的出厂配置键
func DefaultKeysV16(connectorCount int, heartbeatInterval, meterSampleInterval time.Duration) []ConfigurationKey {
	heartbeat := strconv.Itoa(int(heartbeatInterval / time.Second))
	sample := strconv.Itoa(int(meterSampleInterval / time.Second))

	return []ConfigurationKey{
		{Key: KeyHeartbeatInterval, Value: heartbeat, Visible: true},
		{Key: KeyHeartBeatIntervalLegacy, Value: heartbeat, Visible: true},
		{Key: KeyWebSocketPingInterval, Value: "30", Visible: true},
		{Key: KeyMeterValueSampleInterval, Value: sample, Visible: true},
		{Key: KeyMeterValuesSampledData, Value: "Energy.Active.Import.Register", Visible: true},
		{Key: KeyNumberOfConnectors, Value: strconv.Itoa(connectorCount), Readonly: true, Visible: true},
		{Key: KeyConnectionTimeOut, Value: "60", Visible: true},
		{Key: KeySupportedFeatureProfiles, Value: "Core,FirmwareManagement,LocalAuthListManagement,SmartCharging,RemoteTrigger,Reservation", Readonly: true, Visible: true},
		{Key: KeyAuthorizeRemoteTxRequests, Value: "true", Visible: true},
		{Key: KeyLocalAuthListEnabled, Value: "true", Visible: true},
		{Key: "LocalPreAuthorize", Value: "false", Visible: true},
		{Key: "TransactionMessageAttempts", Value: "3", Visible: true},
		{Key: "TransactionMessageRetryInterval", Value: "10", Visible: true},
		{Key: "StopTransactionOnInvalidId", Value: "true", Visible: true},
		{Key: "StopTransactionOnEVSideDisconnect", Value: "true", Visible: true},
		{Key: "UnlockConnectorOnEVSideDisconnect", Value: "true", Visible: true},
		{Key: "GetConfigurationMaxKeys", Value: "50", Readonly: true, Visible: true},
		{Key: "ResetRetries", Value: "1", Visible: true, Reboot: false},
		{Key: "MaxChargingProfilesInstalled", Value: "10", Readonly: true, Visible: true},
		// 隐藏键：安全凭据不随GetConfiguration返回
		{Key: KeyAuthorizationKey, Value: "", Visible: false},
	}
}

// DefaultKeysV201 2.0.1站点的出厂配置键（OCPPCommCtrlr组件变量的镜像）
func DefaultKeysV201(evseCount int, heartbeatInterval, meterSampleInterval time.Duration, itemsPerMessage, bytesPerMessage int) []ConfigurationKey {
	heartbeat := strconv.Itoa(int(heartbeatInterval / time.Second))
	sample := strconv.Itoa(int(meterSampleInterval / time.Second))

	return []ConfigurationKey{
		{Key: KeyHeartbeatInterval, Value: heartbeat, Visible: true},
		{Key: KeyWebSocketPingInterval, Value: "30", Visible: true},
		{Key: KeyMeterValueSampleInterval, Value: sample, Visible: true},
		{Key: "TxUpdatedInterval", Value: sample, Visible: true},
		{Key: "EVSEConnectors", Value: strconv.Itoa(evseCount), Readonly: true, Visible: true},
		{Key: "NetworkConnectionProfiles", Value: "[]", Visible: true},
		{Key: "MessageTimeout", Value: "30", Visible: true},
		{Key: "RetryBackOffRepeatTimes", Value: "3", Visible: true},
		{Key: KeyItemsPerMessage, Value: strconv.Itoa(itemsPerMessage), Visible: true},
		{Key: KeyBytesPerMessage, Value: strconv.Itoa(bytesPerMessage), Visible: true},
		{Key: KeyAuthorizationKey, Value: "", Visible: false},
	}
}

// FormatSeconds 将时长格式化为秒数字符串
func FormatSeconds(d time.Duration) string {
	return fmt.Sprintf("%d", int(d/time.Second))
}
