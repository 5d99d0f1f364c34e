package meter

import (
	"strconv"
	"sync"
	"time"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	protocol16 "github.com/charging-platform/station-simulator/internal/protocol/ocpp16"
	protocol201 "github.com/charging-platform/station-simulator/internal/protocol/ocpp201"
)

// Config 电表模拟配置
type Config struct {
	PowerW             float64 // 额定充电功率（整站，按连接器分摊）
	PowerFluctuation   float64 // 功率围绕额定值的波动比例
	VoltageV           float64 // 额定电压
	VoltageFluctuation float64 // 电压波动比例
}

// DefaultConfig 默认电表模拟配置：22kW交流桩、230V
func DefaultConfig() *Config {
	return &Config{
		PowerW:             22000,
		PowerFluctuation:   0.1,
		VoltageV:           230,
		VoltageFluctuation: 0.02,
	}
}

// Simulator 电表模拟器
// 功率在额定值附近随机游走，电量增量按功率对采样周期积分
type Simulator struct {
	config *Config
	rng    *RNG

	mu        sync.Mutex
	lastPower float64
}

// NewSimulator 创建电表模拟器，config或rng为nil时使用默认值
func NewSimulator(config *Config, rng *RNG) *Simulator {
	if config == nil {
		config = DefaultConfig()
	}
	if rng == nil {
		rng = NewRNG(0)
	}
	return &Simulator{config: config, rng: rng, lastPower: config.PowerW}
}

// sample 一次采样：当前功率（按功率分配数分摊）、电压、周期电量增量
func (s *Simulator) sample(interval time.Duration, powerDivider int) (powerW, voltageV float64, energyWh int) {
	if powerDivider < 1 {
		powerDivider = 1
	}

	nominal := s.config.PowerW
	min := nominal * (1 - s.config.PowerFluctuation)
	max := nominal * (1 + s.config.PowerFluctuation)
	maxStep := nominal * s.config.PowerFluctuation / 2

	s.mu.Lock()
	s.lastPower = s.rng.Fluctuate(s.lastPower, min, max, maxStep)
	powerW = s.lastPower / float64(powerDivider)
	s.mu.Unlock()

	voltageV = s.rng.Float64Between(
		s.config.VoltageV*(1-s.config.VoltageFluctuation),
		s.config.VoltageV*(1+s.config.VoltageFluctuation),
	)
	energyWh = int(powerW*interval.Hours() + 0.5)
	return powerW, voltageV, energyWh
}

// V16Sampler 1.6协议服务用的采样器视图
func (s *Simulator) V16Sampler() protocol16.MeterSampler {
	return v16Sampler{sim: s}
}

// V201Sampler 2.0.1协议服务用的采样器视图
func (s *Simulator) V201Sampler() protocol201.MeterSampler {
	return v201Sampler{sim: s}
}

type v16Sampler struct {
	sim *Simulator
}

func (v v16Sampler) Sample(interval time.Duration, powerDivider int) protocol16.MeterSample {
	powerW, voltageV, energyWh := v.sim.sample(interval, powerDivider)

	powerMeasurand := ocpp16.MeasurandPowerActiveImport
	voltageMeasurand := ocpp16.MeasurandVoltage
	context := ocpp16.ReadingContextSamplePeriodic
	unitW := ocpp16.UnitOfMeasureW
	unitV := ocpp16.UnitOfMeasureV

	return protocol16.MeterSample{
		EnergyIncrementWh: energyWh,
		SampledValues: []ocpp16.SampledValue{
			{
				Value:     strconv.FormatFloat(powerW, 'f', 1, 64),
				Context:   &context,
				Measurand: &powerMeasurand,
				Unit:      &unitW,
			},
			{
				Value:     strconv.FormatFloat(voltageV, 'f', 1, 64),
				Context:   &context,
				Measurand: &voltageMeasurand,
				Unit:      &unitV,
			},
		},
	}
}

type v201Sampler struct {
	sim *Simulator
}

func (v v201Sampler) Sample(interval time.Duration, powerDivider int) protocol201.MeterSample {
	powerW, voltageV, energyWh := v.sim.sample(interval, powerDivider)

	powerMeasurand := ocpp201.MeasurandPowerActiveImport
	voltageMeasurand := ocpp201.MeasurandVoltage
	context := ocpp201.ReadingContextSamplePeriodic
	unitW := "W"
	unitV := "V"

	return protocol201.MeterSample{
		EnergyIncrementWh: energyWh,
		SampledValues: []ocpp201.SampledValue{
			{
				Value:         powerW,
				Context:       &context,
				Measurand:     &powerMeasurand,
				UnitOfMeasure: &ocpp201.UnitOfMeasure{Unit: &unitW},
			},
			{
				Value:         voltageV,
				Context:       &context,
				Measurand:     &voltageMeasurand,
				UnitOfMeasure: &ocpp201.UnitOfMeasure{Unit: &unitV},
			},
		},
	}
}
