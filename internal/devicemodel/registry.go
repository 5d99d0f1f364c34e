package devicemodel

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	"github.com/charging-platform/station-simulator/internal/station"
)

// 设备模型使用的标准组件名
const (
	ComponentChargingStation  = "ChargingStation"
	ComponentEVSE             = "EVSE"
	ComponentConnector        = "Connector"
	ComponentOCPPCommCtrlr    = "OCPPCommCtrlr"
	ComponentDeviceDataCtrlr  = "DeviceDataCtrlr"
	ComponentSampledDataCtrlr = "SampledDataCtrlr"
	ComponentAuthCtrlr        = "AuthCtrlr"
	ComponentSecurityCtrlr    = "SecurityCtrlr"
	ComponentTxCtrlr          = "TxCtrlr"
)

// ResolveFunc 解析变量当前值
// 返回false表示该变量在当前站点上下文中取不到值
type ResolveFunc func(st *station.Station, component ocpp201.Component) (string, bool)

// Characteristics 注册表中一个变量的特征描述
// 注册表在构造后不可变，getter与report共享同一份条目
type Characteristics struct {
	Component string
	Variable  string
	Instance  string

	DataType            ocpp201.DataType
	Mutability          ocpp201.MutabilityType
	Persistent          bool
	SupportedAttributes []ocpp201.AttributeType
	MinLimit            *float64
	MaxLimit            *float64
	MaxLength           *int
	Enumeration         []string
	RebootRequired      bool
	Unit                string

	// ConfigKey 非空时变量镜像到站点配置存储，写入直接落到配置键
	ConfigKey string
	// Resolve 提供当前值，配置镜像变量由configValue生成
	Resolve ResolveFunc
}

// Key 组合键 component::variable[::instance]
func (c *Characteristics) Key() string {
	return CompositeKey(c.Component, c.Variable, c.Instance)
}

// SupportsAttribute 判断属性类型是否受支持
func (c *Characteristics) SupportsAttribute(attr ocpp201.AttributeType) bool {
	for _, supported := range c.SupportedAttributes {
		if supported == attr {
			return true
		}
	}
	return false
}

// CompositeKey 构造注册表组合键
func CompositeKey(component, variable, instance string) string {
	if instance == "" {
		return component + "::" + variable
	}
	return component + "::" + variable + "::" + instance
}

// Registry 变量特征注册表
// 键先精确匹配，未命中时回退大小写不敏感匹配
type Registry struct {
	entries    map[string]*Characteristics
	folded     map[string]*Characteristics
	components map[string]struct{}
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		entries:    make(map[string]*Characteristics),
		folded:     make(map[string]*Characteristics),
		components: make(map[string]struct{}),
	}
}

// Register 注册一个变量，组合键重复时报错
func (r *Registry) Register(c Characteristics) error {
	if c.Component == "" || c.Variable == "" {
		return fmt.Errorf("registry entry requires component and variable, got %q/%q", c.Component, c.Variable)
	}
	if len(c.SupportedAttributes) == 0 {
		c.SupportedAttributes = []ocpp201.AttributeType{ocpp201.AttributeTypeActual}
	}
	if c.Mutability == "" {
		c.Mutability = ocpp201.MutabilityTypeReadOnly
	}
	if c.DataType == "" {
		c.DataType = ocpp201.DataTypeString
	}

	key := c.Key()
	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("registry entry %s already registered", key)
	}

	entry := c
	r.entries[key] = &entry
	r.folded[strings.ToLower(key)] = &entry
	r.components[strings.ToLower(c.Component)] = struct{}{}
	return nil
}

// mustRegister 注册失败即panic，仅用于构造默认注册表
func (r *Registry) mustRegister(c Characteristics) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Lookup 按组件/变量/实例查找，先精确后大小写不敏感
func (r *Registry) Lookup(component, variable, instance string) (*Characteristics, bool) {
	key := CompositeKey(component, variable, instance)
	if entry, ok := r.entries[key]; ok {
		return entry, true
	}
	if entry, ok := r.folded[strings.ToLower(key)]; ok {
		return entry, true
	}
	return nil, false
}

// HasComponent 判断组件名是否注册过任何变量
func (r *Registry) HasComponent(component string) bool {
	_, ok := r.components[strings.ToLower(component)]
	return ok
}

// Variables 按组合键排序返回全部条目
func (r *Registry) Variables() []*Characteristics {
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]*Characteristics, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.entries[key])
	}
	return result
}

// Len 条目数量
func (r *Registry) Len() int {
	return len(r.entries)
}

// evseScoped 判断条目是否属于EVSE或连接器组件
// 这类条目的取值依赖请求中的EVSE限定符，报告时按EVSE逐个展开
func (c *Characteristics) evseScoped() bool {
	return c.Component == ComponentEVSE || c.Component == ComponentConnector
}

// configValue 生成配置镜像变量的解析函数
func configValue(key string) ResolveFunc {
	return func(st *station.Station, _ ocpp201.Component) (string, bool) {
		return st.Configuration().Value(key)
	}
}

// staticValue 生成固定默认值的解析函数
func staticValue(value string) ResolveFunc {
	return func(_ *station.Station, _ ocpp201.Component) (string, bool) {
		return value, true
	}
}

// resolveStationAvailability 站级AvailabilityState
func resolveStationAvailability(st *station.Station, _ ocpp201.Component) (string, bool) {
	status, ok := st.StatusV201(0)
	if !ok {
		return "", false
	}
	return string(status), true
}

// resolveStationAvailable 站级Operative布尔值
func resolveStationAvailable(st *station.Station, _ ocpp201.Component) (string, bool) {
	return strconv.FormatBool(st.IsStationAvailable()), true
}

// resolveEvseAvailability EVSE/连接器级AvailabilityState，要求请求带EVSE限定符
func resolveEvseAvailability(st *station.Station, component ocpp201.Component) (string, bool) {
	if component.Evse == nil {
		return "", false
	}
	status, ok := st.StatusV201(component.Evse.Id)
	if !ok {
		return "", false
	}
	return string(status), true
}

var connectorStatusValues = []string{
	string(ocpp201.ConnectorStatusAvailable),
	string(ocpp201.ConnectorStatusOccupied),
	string(ocpp201.ConnectorStatusReserved),
	string(ocpp201.ConnectorStatusUnavailable),
	string(ocpp201.ConnectorStatusFaulted),
}

// DefaultRegistry 模拟器默认设备模型
// 覆盖站点标识之外的标准2.0.1控制器变量，标识信息由报告构建器单独输出
func DefaultRegistry() *Registry {
	r := NewRegistry()

	intPtr := func(v int) *int { return &v }
	floatPtr := func(v float64) *float64 { return &v }

	// 充电站组件
	r.mustRegister(Characteristics{
		Component:   ComponentChargingStation,
		Variable:    "AvailabilityState",
		DataType:    ocpp201.DataTypeOptionList,
		Enumeration: connectorStatusValues,
		Resolve:     resolveStationAvailability,
	})
	r.mustRegister(Characteristics{
		Component: ComponentChargingStation,
		Variable:  "Available",
		DataType:  ocpp201.DataTypeBoolean,
		Resolve:   resolveStationAvailable,
	})
	r.mustRegister(Characteristics{
		Component: ComponentChargingStation,
		Variable:  "SupplyPhases",
		DataType:  ocpp201.DataTypeInteger,
		Resolve:   staticValue("3"),
	})

	// EVSE组件，取值需要请求携带EVSE限定符
	r.mustRegister(Characteristics{
		Component:   ComponentEVSE,
		Variable:    "AvailabilityState",
		DataType:    ocpp201.DataTypeOptionList,
		Enumeration: connectorStatusValues,
		Resolve:     resolveEvseAvailability,
	})
	r.mustRegister(Characteristics{
		Component: ComponentEVSE,
		Variable:  "Power",
		DataType:  ocpp201.DataTypeDecimal,
		Unit:      "W",
		MaxLimit:  floatPtr(22000),
		Resolve:   staticValue("22000"),
	})
	r.mustRegister(Characteristics{
		Component: ComponentEVSE,
		Variable:  "SupplyPhases",
		DataType:  ocpp201.DataTypeInteger,
		Resolve:   staticValue("3"),
	})

	// 连接器组件
	r.mustRegister(Characteristics{
		Component:   ComponentConnector,
		Variable:    "AvailabilityState",
		DataType:    ocpp201.DataTypeOptionList,
		Enumeration: connectorStatusValues,
		Resolve:     resolveEvseAvailability,
	})
	r.mustRegister(Characteristics{
		Component: ComponentConnector,
		Variable:  "ConnectorType",
		DataType:  ocpp201.DataTypeString,
		Resolve:   staticValue("cType2"),
	})
	r.mustRegister(Characteristics{
		Component: ComponentConnector,
		Variable:  "SupplyPhases",
		DataType:  ocpp201.DataTypeInteger,
		Resolve:   staticValue("3"),
	})

	// OCPP通信控制器，多数变量镜像到配置存储
	r.mustRegister(Characteristics{
		Component:  ComponentOCPPCommCtrlr,
		Variable:   "HeartbeatInterval",
		DataType:   ocpp201.DataTypeInteger,
		Mutability: ocpp201.MutabilityTypeReadWrite,
		Unit:       "s",
		MinLimit:   floatPtr(1),
		ConfigKey:  station.KeyHeartbeatInterval,
		Resolve:    configValue(station.KeyHeartbeatInterval),
	})
	r.mustRegister(Characteristics{
		Component:  ComponentOCPPCommCtrlr,
		Variable:   "WebSocketPingInterval",
		DataType:   ocpp201.DataTypeInteger,
		Mutability: ocpp201.MutabilityTypeReadWrite,
		Unit:       "s",
		MinLimit:   floatPtr(0),
		ConfigKey:  station.KeyWebSocketPingInterval,
		Resolve:    configValue(station.KeyWebSocketPingInterval),
	})
	r.mustRegister(Characteristics{
		Component:  ComponentOCPPCommCtrlr,
		Variable:   "MessageTimeout",
		DataType:   ocpp201.DataTypeInteger,
		Mutability: ocpp201.MutabilityTypeReadWrite,
		Unit:       "s",
		MinLimit:   floatPtr(1),
		MaxLimit:   floatPtr(3600),
		ConfigKey:  "MessageTimeout",
		Resolve:    configValue("MessageTimeout"),
	})
	r.mustRegister(Characteristics{
		Component:  ComponentOCPPCommCtrlr,
		Variable:   "RetryBackOffRepeatTimes",
		DataType:   ocpp201.DataTypeInteger,
		Mutability: ocpp201.MutabilityTypeReadWrite,
		MinLimit:   floatPtr(0),
		ConfigKey:  "RetryBackOffRepeatTimes",
		Resolve:    configValue("RetryBackOffRepeatTimes"),
	})
	r.mustRegister(Characteristics{
		Component:      ComponentOCPPCommCtrlr,
		Variable:       "NetworkConfigurationPriority",
		DataType:       ocpp201.DataTypeSequenceList,
		Mutability:     ocpp201.MutabilityTypeReadWrite,
		RebootRequired: true,
		Resolve:        staticValue("0"),
	})
	r.mustRegister(Characteristics{
		Component:  ComponentOCPPCommCtrlr,
		Variable:   "OfflineThreshold",
		DataType:   ocpp201.DataTypeInteger,
		Mutability: ocpp201.MutabilityTypeReadWrite,
		Unit:       "s",
		MinLimit:   floatPtr(0),
		Resolve:    staticValue("60"),
	})

	// 设备数据控制器，GetVariables与SetVariables各一份实例
	for _, instance := range []string{"GetVariables", "SetVariables"} {
		r.mustRegister(Characteristics{
			Component: ComponentDeviceDataCtrlr,
			Variable:  "ItemsPerMessage",
			Instance:  instance,
			DataType:  ocpp201.DataTypeInteger,
			ConfigKey: station.KeyItemsPerMessage,
			Resolve:   configValue(station.KeyItemsPerMessage),
		})
		r.mustRegister(Characteristics{
			Component: ComponentDeviceDataCtrlr,
			Variable:  "BytesPerMessage",
			Instance:  instance,
			DataType:  ocpp201.DataTypeInteger,
			ConfigKey: station.KeyBytesPerMessage,
			Resolve:   configValue(station.KeyBytesPerMessage),
		})
	}

	// 采样数据控制器
	r.mustRegister(Characteristics{
		Component:  ComponentSampledDataCtrlr,
		Variable:   "TxUpdatedInterval",
		DataType:   ocpp201.DataTypeInteger,
		Mutability: ocpp201.MutabilityTypeReadWrite,
		Unit:       "s",
		MinLimit:   floatPtr(0),
		ConfigKey:  "TxUpdatedInterval",
		Resolve:    configValue("TxUpdatedInterval"),
	})

	// 鉴权控制器
	r.mustRegister(Characteristics{
		Component:  ComponentAuthCtrlr,
		Variable:   "AuthorizeRemoteTxRequests",
		DataType:   ocpp201.DataTypeBoolean,
		Mutability: ocpp201.MutabilityTypeReadWrite,
		Resolve:    staticValue("true"),
	})
	r.mustRegister(Characteristics{
		Component:  ComponentAuthCtrlr,
		Variable:   "LocalAuthorizeOffline",
		DataType:   ocpp201.DataTypeBoolean,
		Mutability: ocpp201.MutabilityTypeReadWrite,
		Resolve:    staticValue("true"),
	})

	// 安全控制器
	r.mustRegister(Characteristics{
		Component: ComponentSecurityCtrlr,
		Variable:  "SecurityProfile",
		DataType:  ocpp201.DataTypeInteger,
		Resolve:   staticValue("1"),
	})
	r.mustRegister(Characteristics{
		Component:  ComponentSecurityCtrlr,
		Variable:   "BasicAuthPassword",
		DataType:   ocpp201.DataTypeString,
		Mutability: ocpp201.MutabilityTypeWriteOnly,
		MaxLength:  intPtr(40),
		ConfigKey:  station.KeyAuthorizationKey,
		Resolve:    configValue(station.KeyAuthorizationKey),
	})
	r.mustRegister(Characteristics{
		Component:  ComponentSecurityCtrlr,
		Variable:   "OrganizationName",
		DataType:   ocpp201.DataTypeString,
		Mutability: ocpp201.MutabilityTypeReadWrite,
		MaxLength:  intPtr(48),
		Resolve:    staticValue("Charging Platform"),
	})

	// 交易控制器
	txPoints := []string{"Authorized", "EVConnected", "PowerPathClosed", "EnergyTransfer"}
	r.mustRegister(Characteristics{
		Component:   ComponentTxCtrlr,
		Variable:    "TxStartPoint",
		DataType:    ocpp201.DataTypeMemberList,
		Mutability:  ocpp201.MutabilityTypeReadWrite,
		Enumeration: txPoints,
		Resolve:     staticValue("PowerPathClosed"),
	})
	r.mustRegister(Characteristics{
		Component:   ComponentTxCtrlr,
		Variable:    "TxStopPoint",
		DataType:    ocpp201.DataTypeMemberList,
		Mutability:  ocpp201.MutabilityTypeReadWrite,
		Enumeration: txPoints,
		Resolve:     staticValue("PowerPathClosed"),
	})
	r.mustRegister(Characteristics{
		Component:  ComponentTxCtrlr,
		Variable:   "StopTxOnEVSideDisconnect",
		DataType:   ocpp201.DataTypeBoolean,
		Mutability: ocpp201.MutabilityTypeReadWrite,
		Resolve:    staticValue("true"),
	})
	r.mustRegister(Characteristics{
		Component:  ComponentTxCtrlr,
		Variable:   "EVConnectionTimeOut",
		DataType:   ocpp201.DataTypeInteger,
		Mutability: ocpp201.MutabilityTypeReadWrite,
		Unit:       "s",
		MinLimit:   floatPtr(1),
		MaxLimit:   floatPtr(3600),
		Resolve:    staticValue("120"),
	})

	return r
}
