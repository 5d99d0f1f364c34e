package devicemodel

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	"github.com/charging-platform/station-simulator/internal/domain/protocol"
	"github.com/charging-platform/station-simulator/internal/logger"
	"github.com/charging-platform/station-simulator/internal/station"
)

func prepareReport(t *testing.T, m *Manager, st *station.Station, requestID int, base ocpp201.ReportBase) []ocpp201.ReportData {
	t.Helper()

	resp := m.PrepareBaseReport(st, &ocpp201.GetBaseReportRequest{RequestId: requestID, ReportBase: base})
	require.Equal(t, ocpp201.GenericDeviceModelStatusAccepted, resp.Status)

	report, ok := m.CachedReport(st.ID(), requestID)
	require.True(t, ok)
	return report
}

func TestManager_PrepareBaseReport_NotSupported(t *testing.T) {
	m, st := newTestManager(t, nil)

	resp := m.PrepareBaseReport(st, &ocpp201.GetBaseReportRequest{RequestId: 1, ReportBase: "BogusInventory"})
	assert.Equal(t, ocpp201.GenericDeviceModelStatusNotSupported, resp.Status)

	_, ok := m.CachedReport(st.ID(), 1)
	assert.False(t, ok)
}

func TestManager_PrepareBaseReport_Configuration(t *testing.T) {
	m, st := newTestManager(t, nil)

	report := prepareReport(t, m, st, 3, ocpp201.ReportBaseConfigurationInventory)

	visible := st.Configuration().Visible()
	require.Equal(t, len(visible), len(report))

	// 全部挂在OCPPCommCtrlr下，按键名升序
	for i, item := range report {
		assert.Equal(t, ComponentOCPPCommCtrlr, item.Component.Name)
		require.Len(t, item.VariableAttribute, 1)
		require.NotNil(t, item.VariableAttribute[0].Value)
		if i > 0 {
			assert.Less(t, report[i-1].Variable.Name, item.Variable.Name)
		}
	}

	// 隐藏键不出现
	for _, item := range report {
		assert.NotEqual(t, station.KeyAuthorizationKey, item.Variable.Name)
	}

	// 只读键的可变性
	var evseConnectors *ocpp201.ReportData
	for i := range report {
		if report[i].Variable.Name == "EVSEConnectors" {
			evseConnectors = &report[i]
		}
	}
	require.NotNil(t, evseConnectors)
	require.NotNil(t, evseConnectors.VariableAttribute[0].Mutability)
	assert.Equal(t, ocpp201.MutabilityTypeReadOnly, *evseConnectors.VariableAttribute[0].Mutability)
	assert.Equal(t, "2", *evseConnectors.VariableAttribute[0].Value)
}

func TestManager_PrepareBaseReport_Summary(t *testing.T) {
	m, st := newTestManager(t, nil)

	report := prepareReport(t, m, st, 4, ocpp201.ReportBaseSummaryInventory)

	// 标识4项 + 站级可用性1项 + 每EVSE可用性1项
	require.Equal(t, 4+1+2, len(report))

	assert.Equal(t, "Model", report[0].Variable.Name)
	require.NotNil(t, report[0].VariableAttribute[0].Value)
	assert.Equal(t, "SimModel-X", *report[0].VariableAttribute[0].Value)
	assert.Equal(t, "VendorName", report[1].Variable.Name)
	assert.Equal(t, "SerialNumber", report[2].Variable.Name)
	assert.Equal(t, "FirmwareVersion", report[3].Variable.Name)

	assert.Equal(t, ComponentChargingStation, report[4].Component.Name)
	assert.Equal(t, "AvailabilityState", report[4].Variable.Name)

	for i, item := range report[5:] {
		assert.Equal(t, ComponentEVSE, item.Component.Name)
		require.NotNil(t, item.Component.Evse)
		assert.Equal(t, i+1, item.Component.Evse.Id)
		require.NotNil(t, item.VariableAttribute[0].Value)
		assert.Equal(t, "Available", *item.VariableAttribute[0].Value)
	}
}

func TestManager_PrepareBaseReport_Full(t *testing.T) {
	m, st := newTestManager(t, nil)

	// 先写一个覆盖值，报告应反映最新值
	result := setOne(t, m, st, setItem(ComponentOCPPCommCtrlr, "OfflineThreshold", "90"))
	require.Equal(t, ocpp201.SetVariableStatusAccepted, result.AttributeStatus)

	report := prepareReport(t, m, st, 7, ocpp201.ReportBaseFullInventory)

	stationScoped, evseScoped := 0, 0
	for _, entry := range m.Registry().Variables() {
		if entry.evseScoped() {
			evseScoped++
		} else {
			stationScoped++
		}
	}
	visible := len(st.Configuration().Visible())
	evseCount := len(st.EvseIDs())

	// 标识 + 配置键 + 站级注册变量 + 每EVSE的EVSE/连接器条目
	require.Equal(t, 4+visible+stationScoped+evseCount*evseScoped, len(report))

	byKey := make(map[string]ocpp201.ReportData)
	for _, item := range report {
		key := item.Component.Name + "::" + item.Variable.Name
		if item.Variable.Instance != nil {
			key += "::" + *item.Variable.Instance
		}
		if item.Component.Evse != nil {
			key += fmt.Sprintf("@%d", item.Component.Evse.Id)
		}
		byKey[key] = item
	}

	// 覆盖值生效
	offline, ok := byKey["OCPPCommCtrlr::OfflineThreshold"]
	require.True(t, ok)
	require.NotNil(t, offline.VariableAttribute[0].Value)
	assert.Equal(t, "90", *offline.VariableAttribute[0].Value)

	// 只写变量不回显值但保留特征
	password, ok := byKey["SecurityCtrlr::BasicAuthPassword"]
	require.True(t, ok)
	assert.Nil(t, password.VariableAttribute[0].Value)
	require.NotNil(t, password.VariableAttribute[0].Mutability)
	assert.Equal(t, ocpp201.MutabilityTypeWriteOnly, *password.VariableAttribute[0].Mutability)
	require.NotNil(t, password.VariableCharacteristics)

	// 实例化变量带实例名
	items, ok := byKey["DeviceDataCtrlr::ItemsPerMessage::GetVariables"]
	require.True(t, ok)
	require.NotNil(t, items.VariableAttribute[0].Value)
	assert.Equal(t, "50", *items.VariableAttribute[0].Value)

	// 每个EVSE都有连接器条目，且带连接器编号
	for _, evseID := range st.EvseIDs() {
		connector, ok := byKey[fmt.Sprintf("Connector::ConnectorType@%d", evseID)]
		require.True(t, ok, "connector entry for evse %d", evseID)
		require.NotNil(t, connector.Component.Evse.ConnectorId)
		require.NotNil(t, connector.VariableAttribute[0].Value)
		assert.Equal(t, "cType2", *connector.VariableAttribute[0].Value)
	}

	// 枚举特征下发为逗号分隔列表
	startPoint, ok := byKey["TxCtrlr::TxStartPoint"]
	require.True(t, ok)
	require.NotNil(t, startPoint.VariableCharacteristics)
	require.NotNil(t, startPoint.VariableCharacteristics.ValuesList)
	assert.Equal(t, "Authorized,EVConnected,PowerPathClosed,EnergyTransfer", *startPoint.VariableCharacteristics.ValuesList)
}

func TestManager_PrepareBaseReport_EmptyResultSet(t *testing.T) {
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)

	config := station.DefaultConfig()
	config.ID = "CS-EMPTY-201"
	config.Version = protocol.OCPP_VERSION_2_0_1
	config.Vendor = ""
	config.Model = ""
	config.FirmwareVersion = ""
	st := station.New(config, log)

	// 空注册表加空标识，摘要报告无内容
	m := NewManager(NewRegistry(), log)
	resp := m.PrepareBaseReport(st, &ocpp201.GetBaseReportRequest{RequestId: 1, ReportBase: ocpp201.ReportBaseSummaryInventory})
	assert.Equal(t, ocpp201.GenericDeviceModelStatusEmptyResultSet, resp.Status)

	_, ok := m.CachedReport(st.ID(), 1)
	assert.False(t, ok)
}

func TestManager_ReportCacheLifecycle(t *testing.T) {
	m, st := newTestManager(t, nil)

	prepareReport(t, m, st, 10, ocpp201.ReportBaseSummaryInventory)
	prepareReport(t, m, st, 11, ocpp201.ReportBaseConfigurationInventory)

	// 两个requestId各自缓存
	first, ok := m.CachedReport(st.ID(), 10)
	require.True(t, ok)
	second, ok := m.CachedReport(st.ID(), 11)
	require.True(t, ok)
	assert.NotEqual(t, len(first), len(second))

	// 清除只影响目标requestId
	m.ClearReport(st.ID(), 10)
	_, ok = m.CachedReport(st.ID(), 10)
	assert.False(t, ok)
	_, ok = m.CachedReport(st.ID(), 11)
	assert.True(t, ok)

	// 重复清除无副作用
	m.ClearReport(st.ID(), 10)
	m.ClearReport("unknown-station", 1)

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats.ReportsBuilt)
}

func TestFragmentReport_Empty(t *testing.T) {
	generatedAt := ocpp201.NewDateTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	messages := FragmentReport(5, generatedAt, nil)
	require.Len(t, messages, 1)
	assert.Equal(t, 5, messages[0].RequestId)
	assert.Equal(t, 0, messages[0].SeqNo)
	assert.False(t, messages[0].Tbc)
	assert.Nil(t, messages[0].ReportData)
}

func TestFragmentReport_Chunking(t *testing.T) {
	generatedAt := ocpp201.NewDateTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	report := make([]ocpp201.ReportData, 0, 250)
	for i := 0; i < 250; i++ {
		report = append(report, plainReportItem(ComponentOCPPCommCtrlr, fmt.Sprintf("Var%03d", i), "v"))
	}

	messages := FragmentReport(7, generatedAt, report)
	require.Len(t, messages, 3)

	assert.Equal(t, 0, messages[0].SeqNo)
	assert.True(t, messages[0].Tbc)
	assert.Len(t, messages[0].ReportData, 100)

	assert.Equal(t, 1, messages[1].SeqNo)
	assert.True(t, messages[1].Tbc)
	assert.Len(t, messages[1].ReportData, 100)

	assert.Equal(t, 2, messages[2].SeqNo)
	assert.False(t, messages[2].Tbc)
	assert.Len(t, messages[2].ReportData, 50)

	// 顺序保持
	assert.Equal(t, "Var000", messages[0].ReportData[0].Variable.Name)
	assert.Equal(t, "Var100", messages[1].ReportData[0].Variable.Name)
	assert.Equal(t, "Var249", messages[2].ReportData[49].Variable.Name)

	for _, msg := range messages {
		assert.Equal(t, 7, msg.RequestId)
	}
}

func TestFragmentReport_ExactBoundary(t *testing.T) {
	generatedAt := ocpp201.NewDateTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	report := make([]ocpp201.ReportData, 0, 100)
	for i := 0; i < 100; i++ {
		report = append(report, plainReportItem(ComponentOCPPCommCtrlr, fmt.Sprintf("Var%03d", i), "v"))
	}

	messages := FragmentReport(8, generatedAt, report)
	require.Len(t, messages, 1)
	assert.False(t, messages[0].Tbc)
	assert.Len(t, messages[0].ReportData, 100)
}
