package main

import (
	"fmt"
	"os"

	"github.com/charging-platform/station-simulator/internal/config"
)

// 配置调试工具
// 用于验证和调试配置加载，支持多环境配置测试
func main() {
	fmt.Println("=== Station Simulator Configuration Test ===")

	// 显示环境变量
	fmt.Println("\n--- Environment Variables ---")
	envVars := []string{
		"SIMULATOR_CSMS_URL",
		"SIMULATOR_FLEET_STATION_COUNT",
		"SIMULATOR_REDIS_ADDR",
		"SIMULATOR_KAFKA_BROKERS",
		"SIMULATOR_LOG_LEVEL",
		"SIMULATOR_METRICS_ADDR",
	}

	for _, env := range envVars {
		value := os.Getenv(env)
		if value != "" {
			fmt.Printf("%s = %s\n", env, value)
		} else {
			fmt.Printf("%s = (not set)\n", env)
		}
	}

	// 加载配置
	fmt.Println("\n--- Loading Configuration ---")
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// 显示最终配置
	fmt.Println("\n--- Final Configuration ---")
	fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
	fmt.Printf("CSMS URL: %s\n", cfg.CSMS.URL)
	fmt.Printf("Redis Enabled: %v (%s)\n", cfg.Redis.Enabled, cfg.Redis.Addr)
	fmt.Printf("Kafka Enabled: %v (%v)\n", cfg.Kafka.Enabled, cfg.Kafka.Brokers)
	fmt.Printf("Log Level: %s\n", cfg.Log.Level)
	fmt.Printf("Metrics Address: %s\n", cfg.GetMetricsAddr())

	// 展开车队
	stations := cfg.StationConfigs()
	fmt.Printf("\n--- Fleet (%d stations) ---\n", len(stations))
	for _, s := range stations {
		fmt.Printf("%s version=%s vendor=%s model=%s connectors=%d evses=%d\n",
			s.ID, s.Version, s.Vendor, s.Model, s.ConnectorCount, s.EvseCount)
	}

	fmt.Println("\n=== Configuration Test Complete ===")
}
