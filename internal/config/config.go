package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 模拟器配置结构
type Config struct {
	InstanceID  string            `mapstructure:"instance_id"`
	CSMS        CSMSConfig        `mapstructure:"csms"`
	Fleet       FleetConfig       `mapstructure:"fleet"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
	OCPP        OCPPConfig        `mapstructure:"ocpp"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Firmware    FirmwareConfig    `mapstructure:"firmware"`
}

// CSMSConfig 中央系统连接配置
type CSMSConfig struct {
	URL                string `mapstructure:"url"`                   // ws(s)://host:port/path，站点ID会追加到路径末尾
	BasicAuthUser      string `mapstructure:"basic_auth_user"`       // 可选的HTTP Basic认证用户名
	BasicAuthPassword  string `mapstructure:"basic_auth_password"`   // 可选的HTTP Basic认证密码
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`  // wss时跳过证书校验，仅用于测试环境
}

// FleetConfig 模拟车队配置
type FleetConfig struct {
	StationCount int             `mapstructure:"station_count"` // 从模板批量生成的站点数量
	IDPrefix     string          `mapstructure:"id_prefix"`     // 生成站点ID的前缀，如 SIM- 生成 SIM-00001
	Template     StationTemplate `mapstructure:"template"`      // 批量生成站点使用的模板
	Stations     []StationConfig `mapstructure:"stations"`      // 显式声明的站点，优先于模板生成
	StartupDelay time.Duration   `mapstructure:"startup_delay"` // 相邻站点启动间隔，避免连接风暴
}

// StationTemplate 批量生成站点的模板
type StationTemplate struct {
	Version         string `mapstructure:"version"`          // ocpp1.6 或 ocpp2.0.1
	Vendor          string `mapstructure:"vendor"`
	Model           string `mapstructure:"model"`
	FirmwareVersion string `mapstructure:"firmware_version"`
	ConnectorCount  int    `mapstructure:"connector_count"`  // 1.6: 站点连接器数量; 2.0.1: 每个EVSE一个连接器
	EvseCount       int    `mapstructure:"evse_count"`       // 仅2.0.1
}

// StationConfig 单个站点配置
type StationConfig struct {
	ID              string   `mapstructure:"id"`
	Version         string   `mapstructure:"version"`
	Vendor          string   `mapstructure:"vendor"`
	Model           string   `mapstructure:"model"`
	SerialNumber    string   `mapstructure:"serial_number"`
	FirmwareVersion string   `mapstructure:"firmware_version"`
	ConnectorCount  int      `mapstructure:"connector_count"`
	EvseCount       int      `mapstructure:"evse_count"`
	LocalAuthTags   []string `mapstructure:"local_auth_tags"` // 本地认证缓存预置的idTag
}

// WebSocketConfig WebSocket客户端配置
type WebSocketConfig struct {
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	EnableCompression bool          `mapstructure:"enable_compression"`

	// 重连退避
	ReconnectInitialBackoff time.Duration `mapstructure:"reconnect_initial_backoff"`
	ReconnectMaxBackoff     time.Duration `mapstructure:"reconnect_max_backoff"`
	ReconnectMaxAttempts    int           `mapstructure:"reconnect_max_attempts"` // 0表示不限次数
}

// OCPPConfig OCPP协议行为配置
type OCPPConfig struct {
	CallTimeout             time.Duration `mapstructure:"call_timeout"`              // 等待CALLRESULT的超时
	BootRetryInterval       time.Duration `mapstructure:"boot_retry_interval"`       // CSMS未给interval时的Boot重试间隔
	HeartbeatInterval       time.Duration `mapstructure:"heartbeat_interval"`        // 注册前的默认心跳间隔
	MeterValueSampleInterval time.Duration `mapstructure:"meter_value_sample_interval"`
	OfflineQueueLimit       int           `mapstructure:"offline_queue_limit"`       // 离线消息缓冲上限
	StrictCompliance        bool          `mapstructure:"strict_compliance"`         // 1.6硬重置时停止事务的原因码遵循规范
	ItemsPerMessage         int           `mapstructure:"items_per_message"`         // 2.0.1 GetVariables/SetVariables单消息条目上限
	BytesPerMessage         int           `mapstructure:"bytes_per_message"`         // 2.0.1 单消息字节上限
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	EventsTopic   string   `mapstructure:"events_topic"`   // 模拟器上报的业务事件
	CommandsTopic string   `mapstructure:"commands_topic"` // 下发给模拟器的车队指令
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MemoryLimitMB   int           `mapstructure:"memory_limit_mb"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// MetricsConfig 监控指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DiagnosticsConfig 诊断上传配置
type DiagnosticsConfig struct {
	WorkDir       string        `mapstructure:"work_dir"`       // 诊断归档的临时目录
	UploadTimeout time.Duration `mapstructure:"upload_timeout"` // 单次FTP上传超时
	LogLines      int           `mapstructure:"log_lines"`      // 归档中包含的模拟日志行数
}

// FirmwareConfig 固件升级模拟配置
type FirmwareConfig struct {
	DownloadDuration time.Duration `mapstructure:"download_duration"` // 模拟下载耗时
	InstallDuration  time.Duration `mapstructure:"install_duration"`  // 模拟安装耗时
}

// Load 加载配置，configPath为空时仅使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SIMULATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("instance_id", "simulator-0")

	v.SetDefault("csms.url", "ws://localhost:8080/ocpp")
	v.SetDefault("csms.insecure_skip_verify", false)

	v.SetDefault("fleet.station_count", 1)
	v.SetDefault("fleet.id_prefix", "SIM-")
	v.SetDefault("fleet.startup_delay", "50ms")
	v.SetDefault("fleet.template.version", "ocpp1.6")
	v.SetDefault("fleet.template.vendor", "SimVendor")
	v.SetDefault("fleet.template.model", "SimModel-X")
	v.SetDefault("fleet.template.firmware_version", "1.0.0")
	v.SetDefault("fleet.template.connector_count", 2)
	v.SetDefault("fleet.template.evse_count", 2)

	v.SetDefault("websocket.handshake_timeout", "10s")
	v.SetDefault("websocket.read_buffer_size", 4096)
	v.SetDefault("websocket.write_buffer_size", 4096)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_timeout", "10s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.enable_compression", false)
	v.SetDefault("websocket.reconnect_initial_backoff", "1s")
	v.SetDefault("websocket.reconnect_max_backoff", "2m")
	v.SetDefault("websocket.reconnect_max_attempts", 0)

	v.SetDefault("ocpp.call_timeout", "30s")
	v.SetDefault("ocpp.boot_retry_interval", "10s")
	v.SetDefault("ocpp.heartbeat_interval", "60s")
	v.SetDefault("ocpp.meter_value_sample_interval", "60s")
	v.SetDefault("ocpp.offline_queue_limit", 1000)
	v.SetDefault("ocpp.strict_compliance", false)
	v.SetDefault("ocpp.items_per_message", 50)
	v.SetDefault("ocpp.bytes_per_message", 51200)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("redis.min_idle_conns", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.events_topic", "simulator-events")
	v.SetDefault("kafka.commands_topic", "simulator-commands")
	v.SetDefault("kafka.consumer_group", "station-simulator")

	v.SetDefault("cache.max_size", 10000)
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.cleanup_interval", "10m")
	v.SetDefault("cache.memory_limit_mb", 128)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.async", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9091")

	v.SetDefault("diagnostics.work_dir", "/tmp/simulator-diagnostics")
	v.SetDefault("diagnostics.upload_timeout", "60s")
	v.SetDefault("diagnostics.log_lines", 200)

	v.SetDefault("firmware.download_duration", "3s")
	v.SetDefault("firmware.install_duration", "5s")
}

// Validate 校验配置有效性
func (c *Config) Validate() error {
	if c.CSMS.URL == "" {
		return fmt.Errorf("csms.url is required")
	}
	if !strings.HasPrefix(c.CSMS.URL, "ws://") && !strings.HasPrefix(c.CSMS.URL, "wss://") {
		return fmt.Errorf("csms.url must use ws or wss scheme, got %s", c.CSMS.URL)
	}
	if len(c.Fleet.Stations) == 0 && c.Fleet.StationCount <= 0 {
		return fmt.Errorf("fleet requires stations or station_count > 0")
	}
	for i, s := range c.Fleet.Stations {
		if s.ID == "" {
			return fmt.Errorf("fleet.stations[%d].id is required", i)
		}
		if err := validateVersion(s.Version); err != nil {
			return fmt.Errorf("fleet.stations[%d]: %w", i, err)
		}
	}
	if len(c.Fleet.Stations) == 0 {
		if err := validateVersion(c.Fleet.Template.Version); err != nil {
			return fmt.Errorf("fleet.template: %w", err)
		}
	}
	if c.OCPP.CallTimeout <= 0 {
		return fmt.Errorf("ocpp.call_timeout must be positive")
	}
	if c.OCPP.OfflineQueueLimit <= 0 {
		return fmt.Errorf("ocpp.offline_queue_limit must be positive")
	}
	return nil
}

func validateVersion(version string) error {
	switch version {
	case "ocpp1.6", "ocpp2.0.1":
		return nil
	default:
		return fmt.Errorf("unsupported ocpp version %q", version)
	}
}

// StationConfigs 展开车队配置为具体的站点列表
// 显式声明的站点优先，数量不足时用模板补齐
func (c *Config) StationConfigs() []StationConfig {
	stations := make([]StationConfig, 0, len(c.Fleet.Stations)+c.Fleet.StationCount)
	seen := make(map[string]bool)

	for _, s := range c.Fleet.Stations {
		applyTemplateDefaults(&s, c.Fleet.Template)
		stations = append(stations, s)
		seen[s.ID] = true
	}

	for i := 1; len(stations) < c.Fleet.StationCount; i++ {
		id := fmt.Sprintf("%s%05d", c.Fleet.IDPrefix, i)
		if seen[id] {
			continue
		}
		s := StationConfig{ID: id}
		applyTemplateDefaults(&s, c.Fleet.Template)
		stations = append(stations, s)
		seen[id] = true
	}

	return stations
}

// applyTemplateDefaults 用模板填充站点未设置的字段
func applyTemplateDefaults(s *StationConfig, t StationTemplate) {
	if s.Version == "" {
		s.Version = t.Version
	}
	if s.Vendor == "" {
		s.Vendor = t.Vendor
	}
	if s.Model == "" {
		s.Model = t.Model
	}
	if s.SerialNumber == "" {
		s.SerialNumber = s.ID
	}
	if s.FirmwareVersion == "" {
		s.FirmwareVersion = t.FirmwareVersion
	}
	if s.ConnectorCount <= 0 {
		s.ConnectorCount = t.ConnectorCount
	}
	if s.ConnectorCount <= 0 {
		s.ConnectorCount = 1
	}
	if s.EvseCount <= 0 {
		s.EvseCount = t.EvseCount
	}
	if s.EvseCount <= 0 {
		s.EvseCount = s.ConnectorCount
	}
}

// GetMetricsAddr 获取监控地址
func (c *Config) GetMetricsAddr() string {
	return c.Metrics.Addr
}
