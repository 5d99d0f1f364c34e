package devicemodel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	"github.com/charging-platform/station-simulator/internal/logger"
	"github.com/charging-platform/station-simulator/internal/station"
)

// StatusInfo使用的原因码，长度受schema限制(≤20)
const (
	reasonTooManyElements  = "TooManyElements"
	reasonTooLargeElement  = "TooLargeElement"
	reasonReadOnly         = "ReadOnly"
	reasonWriteOnly        = "WriteOnly"
	reasonInvalidValue     = "InvalidValue"
	reasonValueOutOfRange  = "ValueOutOfRange"
	reasonValueTooLong     = "ValueTooLong"
	reasonValueUnavailable = "ValueUnavailable"
)

// Manager 2.0.1设备模型变量管理器
// 整个进程共享一个实例，多个站点并发访问
// 运行时覆盖按站点隔离，站点停止时必须调用ResetRuntimeOverrides回收
type Manager struct {
	// 变量注册表，构造后只读
	registry *Registry

	// 运行时状态
	mu sync.RWMutex
	// overrides 站点ID -> 覆盖键 -> 值
	overrides map[string]map[string]string
	// reports 站点ID -> requestId -> 缓存的报告数据
	reports map[string]map[int][]ocpp201.ReportData

	// 统计信息
	stats Stats

	// 日志器
	logger *logger.Logger
}

// Stats 管理器统计信息
type Stats struct {
	GetVariableCalls int64 `json:"get_variable_calls"`
	SetVariableCalls int64 `json:"set_variable_calls"`
	RejectedItems    int64 `json:"rejected_items"`
	ReportsBuilt     int64 `json:"reports_built"`
}

// NewManager 创建变量管理器
// registry为nil时使用默认设备模型，测试可注入隔离的注册表
func NewManager(registry *Registry, log *logger.Logger) *Manager {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Manager{
		registry:  registry,
		overrides: make(map[string]map[string]string),
		reports:   make(map[string]map[int][]ocpp201.ReportData),
		logger:    log.WithComponent("devicemodel"),
	}
}

// Registry 返回注册表
func (m *Manager) Registry() *Registry {
	return m.registry
}

// GetVariables 处理GetVariables请求
// 先检查条目数与请求字节数限制，再逐项取值，最后复测响应大小
func (m *Manager) GetVariables(st *station.Station, req *ocpp201.GetVariablesRequest) *ocpp201.GetVariablesResponse {
	m.mu.Lock()
	m.stats.GetVariableCalls++
	m.mu.Unlock()

	items := req.GetVariableData
	byteLimit := m.byteLimit(st)

	if limit := m.itemLimit(st); limit > 0 && len(items) > limit {
		m.countRejected(len(items))
		return &ocpp201.GetVariablesResponse{GetVariableResult: m.rejectAllGet(items, reasonTooManyElements)}
	}
	if exceedsByteLimit(req, byteLimit) {
		m.countRejected(len(items))
		return &ocpp201.GetVariablesResponse{GetVariableResult: m.rejectAllGet(items, reasonTooLargeElement)}
	}

	results := make([]ocpp201.GetVariableResult, 0, len(items))
	for _, item := range items {
		results = append(results, m.getVariable(st, item))
	}

	resp := &ocpp201.GetVariablesResponse{GetVariableResult: results}
	if exceedsByteLimit(resp, byteLimit) {
		m.countRejected(len(items))
		return &ocpp201.GetVariablesResponse{GetVariableResult: m.rejectAllGet(items, reasonTooLargeElement)}
	}
	return resp
}

// SetVariables 处理SetVariables请求，限制检查与GetVariables一致
func (m *Manager) SetVariables(st *station.Station, req *ocpp201.SetVariablesRequest) *ocpp201.SetVariablesResponse {
	m.mu.Lock()
	m.stats.SetVariableCalls++
	m.mu.Unlock()

	items := req.SetVariableData
	byteLimit := m.byteLimit(st)

	if limit := m.itemLimit(st); limit > 0 && len(items) > limit {
		m.countRejected(len(items))
		return &ocpp201.SetVariablesResponse{SetVariableResult: m.rejectAllSet(items, reasonTooManyElements)}
	}
	if exceedsByteLimit(req, byteLimit) {
		m.countRejected(len(items))
		return &ocpp201.SetVariablesResponse{SetVariableResult: m.rejectAllSet(items, reasonTooLargeElement)}
	}

	results := make([]ocpp201.SetVariableResult, 0, len(items))
	for _, item := range items {
		results = append(results, m.setVariable(st, item))
	}

	resp := &ocpp201.SetVariablesResponse{SetVariableResult: results}
	if exceedsByteLimit(resp, byteLimit) {
		m.countRejected(len(items))
		return &ocpp201.SetVariablesResponse{SetVariableResult: m.rejectAllSet(items, reasonTooLargeElement)}
	}
	return resp
}

// getVariable 处理单个GetVariables条目
func (m *Manager) getVariable(st *station.Station, item ocpp201.GetVariableData) ocpp201.GetVariableResult {
	attrType := ocpp201.AttributeTypeActual
	if item.AttributeType != nil {
		attrType = *item.AttributeType
	}
	result := ocpp201.GetVariableResult{
		Component:     item.Component,
		Variable:      item.Variable,
		AttributeType: &attrType,
	}

	entry, status := m.resolveEntry(st, item.Component, item.Variable)
	if entry == nil {
		result.AttributeStatus = ocpp201.GetVariableStatus(status)
		return result
	}
	if !entry.SupportsAttribute(attrType) {
		result.AttributeStatus = ocpp201.GetVariableStatusNotSupportedAttributeType
		return result
	}
	if entry.Mutability == ocpp201.MutabilityTypeWriteOnly {
		result.AttributeStatus = ocpp201.GetVariableStatusRejected
		result.StatusInfo = &ocpp201.StatusInfo{ReasonCode: reasonWriteOnly}
		return result
	}

	value, ok := m.currentValue(st, entry, item.Component)
	if !ok {
		result.AttributeStatus = ocpp201.GetVariableStatusRejected
		result.StatusInfo = &ocpp201.StatusInfo{ReasonCode: reasonValueUnavailable}
		return result
	}
	result.AttributeStatus = ocpp201.GetVariableStatusAccepted
	result.AttributeValue = &value
	return result
}

// setVariable 处理单个SetVariables条目
func (m *Manager) setVariable(st *station.Station, item ocpp201.SetVariableData) ocpp201.SetVariableResult {
	attrType := ocpp201.AttributeTypeActual
	if item.AttributeType != nil {
		attrType = *item.AttributeType
	}
	result := ocpp201.SetVariableResult{
		Component:     item.Component,
		Variable:      item.Variable,
		AttributeType: &attrType,
	}

	entry, status := m.resolveEntry(st, item.Component, item.Variable)
	if entry == nil {
		result.AttributeStatus = ocpp201.SetVariableStatus(status)
		return result
	}
	if !entry.SupportsAttribute(attrType) {
		result.AttributeStatus = ocpp201.SetVariableStatusNotSupportedAttributeType
		return result
	}
	if entry.Mutability == ocpp201.MutabilityTypeReadOnly {
		result.AttributeStatus = ocpp201.SetVariableStatusRejected
		result.StatusInfo = &ocpp201.StatusInfo{ReasonCode: reasonReadOnly}
		return result
	}
	if reason, ok := validateValue(entry, item.AttributeValue); !ok {
		result.AttributeStatus = ocpp201.SetVariableStatusRejected
		result.StatusInfo = &ocpp201.StatusInfo{ReasonCode: reason}
		return result
	}

	m.storeValue(st, entry, item.Component, item.AttributeValue)

	if entry.RebootRequired {
		result.AttributeStatus = ocpp201.SetVariableStatusRebootRequired
		return result
	}
	result.AttributeStatus = ocpp201.SetVariableStatusAccepted
	return result
}

// resolveEntry 定位注册表条目并校验EVSE限定符
// 未命中时返回区分组件与变量的未知状态字符串
func (m *Manager) resolveEntry(st *station.Station, component ocpp201.Component, variable ocpp201.Variable) (*Characteristics, string) {
	instance := ""
	if variable.Instance != nil {
		instance = *variable.Instance
	}
	entry, ok := m.registry.Lookup(component.Name, variable.Name, instance)
	if !ok {
		if m.registry.HasComponent(component.Name) {
			return nil, string(ocpp201.GetVariableStatusUnknownVariable)
		}
		return nil, string(ocpp201.GetVariableStatusUnknownComponent)
	}
	if !validEvseRef(st, component) {
		return nil, string(ocpp201.GetVariableStatusUnknownComponent)
	}
	return entry, ""
}

// validEvseRef 校验组件上的EVSE限定符指向真实存在的EVSE与连接器
func validEvseRef(st *station.Station, component ocpp201.Component) bool {
	if component.Evse == nil {
		return true
	}
	if !st.HasEvse(component.Evse.Id) {
		return false
	}
	if component.Evse.ConnectorId != nil {
		return st.EvseHasConnector(component.Evse.Id, *component.Evse.ConnectorId)
	}
	return true
}

// currentValue 取变量当前值，运行时覆盖优先于解析函数
func (m *Manager) currentValue(st *station.Station, entry *Characteristics, component ocpp201.Component) (string, bool) {
	m.mu.RLock()
	byStation := m.overrides[st.ID()]
	value, ok := "", false
	if byStation != nil {
		value, ok = byStation[overrideKey(entry, component)]
	}
	m.mu.RUnlock()
	if ok {
		return value, true
	}
	if entry.Resolve == nil {
		return "", false
	}
	return entry.Resolve(st, component)
}

// storeValue 落盘写入
// 配置镜像变量经站点配置存储写入以触发心跳等副作用，其余写入运行时覆盖
func (m *Manager) storeValue(st *station.Station, entry *Characteristics, component ocpp201.Component, value string) {
	if entry.ConfigKey != "" {
		res := st.UpdateConfiguration(entry.ConfigKey, value)
		if !res.Unknown && !res.Readonly {
			return
		}
		m.logger.Warnf("config mirror write for %s fell back to runtime override (unknown=%v readonly=%v)",
			entry.Key(), res.Unknown, res.Readonly)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	byStation := m.overrides[st.ID()]
	if byStation == nil {
		byStation = make(map[string]string)
		m.overrides[st.ID()] = byStation
	}
	byStation[overrideKey(entry, component)] = value
}

// overrideKey 覆盖存储键，EVSE限定的变量按EVSE区分
func overrideKey(entry *Characteristics, component ocpp201.Component) string {
	key := entry.Key()
	if component.Evse == nil {
		return key
	}
	key = fmt.Sprintf("%s@evse=%d", key, component.Evse.Id)
	if component.Evse.ConnectorId != nil {
		key = fmt.Sprintf("%s,connector=%d", key, *component.Evse.ConnectorId)
	}
	return key
}

// validateValue 按注册表特征校验写入值
func validateValue(entry *Characteristics, value string) (string, bool) {
	if entry.MaxLength != nil && len(value) > *entry.MaxLength {
		return reasonValueTooLong, false
	}

	checkRange := func(v float64) (string, bool) {
		if entry.MinLimit != nil && v < *entry.MinLimit {
			return reasonValueOutOfRange, false
		}
		if entry.MaxLimit != nil && v > *entry.MaxLimit {
			return reasonValueOutOfRange, false
		}
		return "", true
	}

	switch entry.DataType {
	case ocpp201.DataTypeBoolean:
		if value != "true" && value != "false" {
			return reasonInvalidValue, false
		}
	case ocpp201.DataTypeInteger:
		n, err := strconv.Atoi(value)
		if err != nil {
			return reasonInvalidValue, false
		}
		return checkRange(float64(n))
	case ocpp201.DataTypeDecimal:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return reasonInvalidValue, false
		}
		return checkRange(f)
	case ocpp201.DataTypeOptionList:
		if len(entry.Enumeration) > 0 && !containsValue(entry.Enumeration, value) {
			return reasonInvalidValue, false
		}
	case ocpp201.DataTypeMemberList, ocpp201.DataTypeSequenceList:
		if len(entry.Enumeration) == 0 {
			break
		}
		for _, token := range strings.Split(value, ",") {
			if !containsValue(entry.Enumeration, strings.TrimSpace(token)) {
				return reasonInvalidValue, false
			}
		}
	}
	return "", true
}

func containsValue(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// rejectAllGet 按输入顺序整单拒绝
func (m *Manager) rejectAllGet(items []ocpp201.GetVariableData, reason string) []ocpp201.GetVariableResult {
	results := make([]ocpp201.GetVariableResult, 0, len(items))
	for _, item := range items {
		attrType := ocpp201.AttributeTypeActual
		if item.AttributeType != nil {
			attrType = *item.AttributeType
		}
		results = append(results, ocpp201.GetVariableResult{
			AttributeStatus: ocpp201.GetVariableStatusRejected,
			Component:       item.Component,
			Variable:        item.Variable,
			AttributeType:   &attrType,
			StatusInfo:      &ocpp201.StatusInfo{ReasonCode: reason},
		})
	}
	return results
}

// rejectAllSet 按输入顺序整单拒绝
func (m *Manager) rejectAllSet(items []ocpp201.SetVariableData, reason string) []ocpp201.SetVariableResult {
	results := make([]ocpp201.SetVariableResult, 0, len(items))
	for _, item := range items {
		attrType := ocpp201.AttributeTypeActual
		if item.AttributeType != nil {
			attrType = *item.AttributeType
		}
		results = append(results, ocpp201.SetVariableResult{
			AttributeStatus: ocpp201.SetVariableStatusRejected,
			Component:       item.Component,
			Variable:        item.Variable,
			AttributeType:   &attrType,
			StatusInfo:      &ocpp201.StatusInfo{ReasonCode: reason},
		})
	}
	return results
}

// itemLimit 单次消息条目上限，0表示不限制
func (m *Manager) itemLimit(st *station.Station) int {
	return st.Configuration().IntValue(station.KeyItemsPerMessage, st.Config().ItemsPerMessage)
}

// byteLimit 单次消息字节上限，0表示不限制
func (m *Manager) byteLimit(st *station.Station) int {
	return st.Configuration().IntValue(station.KeyBytesPerMessage, st.Config().BytesPerMessage)
}

// exceedsByteLimit 按JSON编码后的字节数判断是否超限
func exceedsByteLimit(payload interface{}, limit int) bool {
	if limit <= 0 {
		return false
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return len(data) > limit
}

func (m *Manager) countRejected(n int) {
	m.mu.Lock()
	m.stats.RejectedItems += int64(n)
	m.mu.Unlock()
}

// ResetRuntimeOverrides 清除指定站点的运行时覆盖与缓存报告
// 站点停止时调用，防止进程级状态泄漏到下一次运行
func (m *Manager) ResetRuntimeOverrides(stationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.overrides, stationID)
	delete(m.reports, stationID)
	m.logger.Debugf("runtime overrides cleared for station %s", stationID)
}

// Shutdown 清空全部运行时状态
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.overrides = make(map[string]map[string]string)
	m.reports = make(map[string]map[int][]ocpp201.ReportData)
	m.logger.Info("device model manager shut down")
}

// OverrideCount 指定站点当前的覆盖条数
func (m *Manager) OverrideCount(stationID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.overrides[stationID])
}

// GetStats 返回统计信息快照
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
