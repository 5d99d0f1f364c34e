package ocpp201

import (
	"context"
	"time"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	"github.com/charging-platform/station-simulator/internal/station"
	"github.com/charging-platform/station-simulator/internal/transport/router"
)

// restartHeartbeat 重启心跳任务，站点配置变更钩子也走这里
func (s *Service) restartHeartbeat(interval time.Duration) {
	s.stopHeartbeat()
	if interval <= 0 {
		return
	}

	s.taskMutex.Lock()
	stop := make(chan struct{})
	s.heartbeatStop = stop
	s.taskMutex.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.heartbeatLoop(interval, stop)
	}()
	s.logger.Infof("Heartbeat task started, interval %s", interval)
}

// stopHeartbeat 停止心跳任务
func (s *Service) stopHeartbeat() {
	s.taskMutex.Lock()
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
	s.taskMutex.Unlock()
}

// heartbeatLoop 周期发送心跳
// 心跳不进离线缓冲，断线期间的心跳直接丢弃
func (s *Service) heartbeatLoop(interval time.Duration, stop chan struct{}) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C():
			if _, err := s.SendHeartbeat(s.ctx, &router.CallOptions{SkipBufferingOnError: true}); err != nil {
				s.logger.Warnf("Heartbeat failed: %v", err)
			}
		}
	}
}

// startMeterTask 启动连接器的周期电表采样
// 采样间隔取MeterValueSampleInterval配置键，为0时禁用
func (s *Service) startMeterTask(connectorID int) {
	if s.sampler == nil {
		return
	}
	fallback := int(s.config.MeterValueSampleInterval / time.Second)
	seconds := s.station.Configuration().IntValue(station.KeyMeterValueSampleInterval, fallback)
	if seconds <= 0 {
		s.logger.Debugf("Meter value sampling disabled for connector %d", connectorID)
		return
	}
	interval := time.Duration(seconds) * time.Second

	s.taskMutex.Lock()
	if old, ok := s.meterStops[connectorID]; ok {
		close(old)
	}
	stop := make(chan struct{})
	s.meterStops[connectorID] = stop
	s.taskMutex.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.meterLoop(connectorID, interval, stop)
	}()
	s.logger.Infof("Meter value task started on connector %d, interval %s", connectorID, interval)
}

// stopMeterTask 停止连接器的电表采样
func (s *Service) stopMeterTask(connectorID int) {
	s.taskMutex.Lock()
	if stop, ok := s.meterStops[connectorID]; ok {
		close(stop)
		delete(s.meterStops, connectorID)
	}
	s.taskMutex.Unlock()
}

// stopAllMeterTasks 停止全部电表采样
func (s *Service) stopAllMeterTasks() {
	s.taskMutex.Lock()
	for connectorID, stop := range s.meterStops {
		close(stop)
		delete(s.meterStops, connectorID)
	}
	s.taskMutex.Unlock()
}

// meterLoop 周期采样并以TransactionEvent(Updated)上报
func (s *Service) meterLoop(connectorID int, interval time.Duration, stop chan struct{}) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C():
			s.sampleMeterValues(connectorID, interval)
		}
	}
}

// sampleMeterValues 采样一次：累计电量写回站点后连同附加读数随交易事件上报
func (s *Service) sampleMeterValues(connectorID int, interval time.Duration) {
	sample := s.sampler.Sample(interval, s.station.PowerDivider())
	register, err := s.station.AddMeterEnergy(connectorID, sample.EnergyIncrementWh)
	if err != nil {
		s.logger.Warnf("Meter sampling on connector %d failed: %v", connectorID, err)
		return
	}

	wh := "Wh"
	reading := ocpp201.MeterValue{
		Timestamp: ocpp201.NewDateTime(s.clock.Now()),
		SampledValue: append([]ocpp201.SampledValue{{
			Value:         float64(register),
			Context:       readingContextPtr(ocpp201.ReadingContextSamplePeriodic),
			Measurand:     measurandPtr(ocpp201.MeasurandEnergyActiveImportRegister),
			UnitOfMeasure: &ocpp201.UnitOfMeasure{Unit: &wh},
		}}, sample.SampledValues...),
	}

	if _, err := s.SendTransactionEvent(s.ctx, connectorID, TransactionEventParams{
		EventType:     ocpp201.TransactionEventTypeUpdated,
		Context:       station.EventContext{MeterValue: station.MeterValuePeriodic},
		ChargingState: chargingStatePtr(ocpp201.ChargingStateCharging),
		MeterValue:    []ocpp201.MeterValue{reading},
	}); err != nil {
		s.logger.Warnf("Periodic TransactionEvent on connector %d failed: %v", connectorID, err)
	}
}

// sleep 可中断等待，返回是否等满
func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C():
		return true
	}
}
