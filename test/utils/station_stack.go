package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charging-platform/station-simulator/internal/devicemodel"
	"github.com/charging-platform/station-simulator/internal/domain/protocol"
	"github.com/charging-platform/station-simulator/internal/logger"
	protocol16 "github.com/charging-platform/station-simulator/internal/protocol/ocpp16"
	protocol201 "github.com/charging-platform/station-simulator/internal/protocol/ocpp201"
	"github.com/charging-platform/station-simulator/internal/station"
	"github.com/charging-platform/station-simulator/internal/transport/router"
	transportws "github.com/charging-platform/station-simulator/internal/transport/websocket"
)

// StationStack 一个直连测试CSMS的完整站点栈
type StationStack struct {
	Station *station.Station
	Client  *transportws.Client
	Router  router.MessageRouter
	V16     *protocol16.Service
	V201    *protocol201.Service
}

// StationOpts 站点栈的可选定制
type StationOpts struct {
	MutateStation func(*station.Config)
	BeforeStart   func(*StationStack)
}

// StartStation 装配并启动一个站点栈，后台间隔压短，测试结束自动收尾
func StartStation(t *testing.T, csmsURL, id, version string, opts *StationOpts) *StationStack {
	t.Helper()
	if opts == nil {
		opts = &StationOpts{}
	}

	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)

	stationCfg := station.DefaultConfig()
	stationCfg.ID = id
	stationCfg.Version = version
	if opts.MutateStation != nil {
		opts.MutateStation(stationCfg)
	}
	st := station.New(stationCfg, log)

	wsCfg := transportws.DefaultConfig()
	wsCfg.URL = csmsURL
	wsCfg.StationID = id
	wsCfg.Subprotocol = version
	wsCfg.HandshakeTimeout = 2 * time.Second
	wsCfg.ReconnectInitialBackoff = 50 * time.Millisecond
	wsCfg.ReconnectMaxBackoff = 200 * time.Millisecond
	client, err := transportws.NewClient(wsCfg, log)
	require.NoError(t, err)

	routerCfg := router.DefaultRouterConfig()
	routerCfg.StationID = id
	routerCfg.OCPPVersion = version
	routerCfg.DefaultCallTimeout = 2 * time.Second
	routerCfg.OfflineQueueLimit = 100
	rt := router.NewDefaultMessageRouter(routerCfg, log)
	require.NoError(t, rt.SetTransport(client))

	stack := &StationStack{Station: st, Client: client, Router: rt}
	switch version {
	case protocol.OCPP_VERSION_1_6:
		svcCfg := protocol16.DefaultConfig()
		svcCfg.CallTimeout = 2 * time.Second
		svcCfg.BootRetryInterval = 50 * time.Millisecond
		svcCfg.TriggerMessageDelay = time.Millisecond
		svcCfg.TransactionWaitInterval = 5 * time.Millisecond
		svcCfg.Firmware.MinDelay = time.Millisecond
		svcCfg.Firmware.MaxDelay = 2 * time.Millisecond
		stack.V16 = protocol16.NewService(svcCfg, st, rt, log)
	case protocol.OCPP_VERSION_2_0_1:
		svcCfg := protocol201.DefaultConfig()
		svcCfg.CallTimeout = 2 * time.Second
		svcCfg.BootRetryInterval = 50 * time.Millisecond
		svcCfg.NotifyReportDelay = 10 * time.Millisecond
		svcCfg.ResetIdlePollInterval = 10 * time.Millisecond
		stack.V201 = protocol201.NewService(svcCfg, st, rt, devicemodel.NewManager(nil, log), log)
	default:
		t.Fatalf("unsupported version %q", version)
	}

	if opts.BeforeStart != nil {
		opts.BeforeStart(stack)
	}

	require.NoError(t, st.Start())
	if stack.V16 != nil {
		require.NoError(t, stack.V16.Start())
	} else {
		require.NoError(t, stack.V201.Start())
	}
	require.NoError(t, rt.Start())
	require.NoError(t, client.Start())

	t.Cleanup(func() {
		_ = client.Stop()
		_ = rt.Stop()
		if stack.V16 != nil {
			_ = stack.V16.Stop()
		} else {
			_ = stack.V201.Stop()
		}
		_ = st.Stop()
	})

	return stack
}

// WaitRegistered 等待站点完成注册
func (s *StationStack) WaitRegistered(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Station.RegistrationStatus() == station.RegistrationAccepted
	}, 5*time.Second, 10*time.Millisecond, "station did not reach the Accepted registration state")
}
