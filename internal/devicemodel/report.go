package devicemodel

import (
	"sort"
	"strings"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	"github.com/charging-platform/station-simulator/internal/station"
)

// maxReportItems 单条NotifyReport最多携带的条目数
const maxReportItems = 100

// PrepareBaseReport 处理GetBaseReport请求
// 按reportBase确定性地构建报告并以requestId缓存，同步响应只携带状态
// NotifyReport序列由调用方在响应发出后基于缓存发送
func (m *Manager) PrepareBaseReport(st *station.Station, req *ocpp201.GetBaseReportRequest) *ocpp201.GetBaseReportResponse {
	var report []ocpp201.ReportData

	switch req.ReportBase {
	case ocpp201.ReportBaseConfigurationInventory:
		report = m.configurationReportData(st)
	case ocpp201.ReportBaseSummaryInventory:
		report = append(report, m.identityReportData(st)...)
		report = append(report, m.availabilityReportData(st)...)
	case ocpp201.ReportBaseFullInventory:
		report = append(report, m.identityReportData(st)...)
		report = append(report, m.configurationReportData(st)...)
		report = append(report, m.registryReportData(st)...)
		report = append(report, m.evseReportData(st)...)
	default:
		m.logger.Warnf("unsupported report base %q requested by %s", req.ReportBase, st.ID())
		return &ocpp201.GetBaseReportResponse{Status: ocpp201.GenericDeviceModelStatusNotSupported}
	}

	if len(report) == 0 {
		return &ocpp201.GetBaseReportResponse{Status: ocpp201.GenericDeviceModelStatusEmptyResultSet}
	}

	m.mu.Lock()
	byStation := m.reports[st.ID()]
	if byStation == nil {
		byStation = make(map[int][]ocpp201.ReportData)
		m.reports[st.ID()] = byStation
	}
	byStation[req.RequestId] = report
	m.stats.ReportsBuilt++
	m.mu.Unlock()

	m.logger.Debugf("base report %s cached for %s: requestId=%d items=%d",
		req.ReportBase, st.ID(), req.RequestId, len(report))
	return &ocpp201.GetBaseReportResponse{Status: ocpp201.GenericDeviceModelStatusAccepted}
}

// CachedReport 查看缓存的报告数据，不清除缓存
func (m *Manager) CachedReport(stationID string, requestID int) ([]ocpp201.ReportData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byStation, ok := m.reports[stationID]
	if !ok {
		return nil, false
	}
	report, ok := byStation[requestID]
	return report, ok
}

// ClearReport 清除缓存的报告，NotifyReport序列发送完毕后调用
func (m *Manager) ClearReport(stationID string, requestID int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byStation, ok := m.reports[stationID]
	if !ok {
		return
	}
	delete(byStation, requestID)
	if len(byStation) == 0 {
		delete(m.reports, stationID)
	}
}

// FragmentReport 把报告切分为NotifyReport序列
// 每条不超过maxReportItems条目，tbc在最后一条为false
// 空报告仍然产生一条不带reportData的消息
func FragmentReport(requestID int, generatedAt ocpp201.DateTime, report []ocpp201.ReportData) []ocpp201.NotifyReportRequest {
	if len(report) == 0 {
		return []ocpp201.NotifyReportRequest{{
			RequestId:   requestID,
			GeneratedAt: generatedAt,
			SeqNo:       0,
			Tbc:         false,
		}}
	}

	messages := make([]ocpp201.NotifyReportRequest, 0, (len(report)+maxReportItems-1)/maxReportItems)
	for start := 0; start < len(report); start += maxReportItems {
		end := start + maxReportItems
		if end > len(report) {
			end = len(report)
		}
		chunk := make([]ocpp201.ReportData, end-start)
		copy(chunk, report[start:end])
		messages = append(messages, ocpp201.NotifyReportRequest{
			RequestId:   requestID,
			GeneratedAt: generatedAt,
			SeqNo:       len(messages),
			Tbc:         end < len(report),
			ReportData:  chunk,
		})
	}
	return messages
}

// identityReportData 站点标识四元组，未配置的字段不上报
func (m *Manager) identityReportData(st *station.Station) []ocpp201.ReportData {
	identity := []struct {
		variable string
		value    string
	}{
		{"Model", st.Model()},
		{"VendorName", st.Vendor()},
		{"SerialNumber", st.SerialNumber()},
		{"FirmwareVersion", st.FirmwareVersion()},
	}

	report := make([]ocpp201.ReportData, 0, len(identity))
	for _, item := range identity {
		if item.value == "" {
			continue
		}
		report = append(report, plainReportItem(ComponentChargingStation, item.variable, item.value))
	}
	return report
}

// configurationReportData 全部可见配置键，挂在OCPPCommCtrlr组件下
func (m *Manager) configurationReportData(st *station.Station) []ocpp201.ReportData {
	keys := st.Configuration().Visible()
	sort.Slice(keys, func(i, j int) bool { return keys[i].Key < keys[j].Key })

	report := make([]ocpp201.ReportData, 0, len(keys))
	for _, key := range keys {
		mutability := ocpp201.MutabilityTypeReadWrite
		if key.Readonly {
			mutability = ocpp201.MutabilityTypeReadOnly
		}
		actual := ocpp201.AttributeTypeActual
		value := key.Value
		report = append(report, ocpp201.ReportData{
			Component: ocpp201.Component{Name: ComponentOCPPCommCtrlr},
			Variable:  ocpp201.Variable{Name: key.Key},
			VariableAttribute: []ocpp201.VariableAttribute{{
				Type:       &actual,
				Value:      &value,
				Mutability: &mutability,
			}},
		})
	}
	return report
}

// registryReportData 站级注册表变量，EVSE级条目由evseReportData展开
func (m *Manager) registryReportData(st *station.Station) []ocpp201.ReportData {
	var report []ocpp201.ReportData
	for _, entry := range m.registry.Variables() {
		if entry.evseScoped() {
			continue
		}
		component := ocpp201.Component{Name: entry.Component}
		report = append(report, m.registryReportItem(st, entry, component))
	}
	return report
}

// evseReportData 按EVSE升序展开EVSE级与连接器级条目
func (m *Manager) evseReportData(st *station.Station) []ocpp201.ReportData {
	var report []ocpp201.ReportData
	for _, evseID := range st.EvseIDs() {
		for _, entry := range m.registry.Variables() {
			if !entry.evseScoped() {
				continue
			}
			evse := &ocpp201.EVSE{Id: evseID}
			if entry.Component == ComponentConnector {
				if connectorIDs := st.EvseConnectorIDs(evseID); len(connectorIDs) > 0 {
					evse.ConnectorId = &connectorIDs[0]
				}
			}
			component := ocpp201.Component{Name: entry.Component, Evse: evse}
			report = append(report, m.registryReportItem(st, entry, component))
		}
	}
	return report
}

// availabilityReportData 摘要报告的可用性部分，站级加每个EVSE一条
func (m *Manager) availabilityReportData(st *station.Station) []ocpp201.ReportData {
	var report []ocpp201.ReportData

	if entry, ok := m.registry.Lookup(ComponentChargingStation, "AvailabilityState", ""); ok {
		component := ocpp201.Component{Name: ComponentChargingStation}
		report = append(report, m.registryReportItem(st, entry, component))
	}
	entry, ok := m.registry.Lookup(ComponentEVSE, "AvailabilityState", "")
	if !ok {
		return report
	}
	for _, evseID := range st.EvseIDs() {
		component := ocpp201.Component{Name: ComponentEVSE, Evse: &ocpp201.EVSE{Id: evseID}}
		report = append(report, m.registryReportItem(st, entry, component))
	}
	return report
}

// registryReportItem 由注册表条目构建一条报告数据
func (m *Manager) registryReportItem(st *station.Station, entry *Characteristics, component ocpp201.Component) ocpp201.ReportData {
	actual := ocpp201.AttributeTypeActual
	mutability := entry.Mutability
	attr := ocpp201.VariableAttribute{Type: &actual, Mutability: &mutability}

	// 只写变量不回显值
	if entry.Mutability != ocpp201.MutabilityTypeWriteOnly {
		if value, ok := m.currentValue(st, entry, component); ok {
			attr.Value = &value
		}
	}
	if entry.Persistent {
		persistent := true
		attr.Persistent = &persistent
	}

	variable := ocpp201.Variable{Name: entry.Variable}
	if entry.Instance != "" {
		instance := entry.Instance
		variable.Instance = &instance
	}
	return ocpp201.ReportData{
		Component:               component,
		Variable:                variable,
		VariableAttribute:       []ocpp201.VariableAttribute{attr},
		VariableCharacteristics: wireCharacteristics(entry),
	}
}

// plainReportItem 不带特征描述的只读报告项
func plainReportItem(componentName, variableName, value string) ocpp201.ReportData {
	actual := ocpp201.AttributeTypeActual
	readonly := ocpp201.MutabilityTypeReadOnly
	v := value
	return ocpp201.ReportData{
		Component: ocpp201.Component{Name: componentName},
		Variable:  ocpp201.Variable{Name: variableName},
		VariableAttribute: []ocpp201.VariableAttribute{{
			Type:       &actual,
			Value:      &v,
			Mutability: &readonly,
		}},
	}
}

// wireCharacteristics 注册表特征转线上结构
func wireCharacteristics(entry *Characteristics) *ocpp201.VariableCharacteristics {
	wc := &ocpp201.VariableCharacteristics{
		DataType:           entry.DataType,
		MinLimit:           entry.MinLimit,
		MaxLimit:           entry.MaxLimit,
		SupportsMonitoring: false,
	}
	if entry.Unit != "" {
		unit := entry.Unit
		wc.Unit = &unit
	}
	if len(entry.Enumeration) > 0 {
		values := strings.Join(entry.Enumeration, ",")
		wc.ValuesList = &values
	}
	return wc
}
