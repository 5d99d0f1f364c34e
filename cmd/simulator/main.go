package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charging-platform/station-simulator/internal/config"
	"github.com/charging-platform/station-simulator/internal/fleet"
	"github.com/charging-platform/station-simulator/internal/logger"
	"github.com/charging-platform/station-simulator/internal/message"
	"github.com/charging-platform/station-simulator/internal/metrics"
	"github.com/charging-platform/station-simulator/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("Logger initialized")

	// 3. 初始化在线登记存储
	var presence storage.PresenceStorage
	if cfg.Redis.Enabled {
		presence, err = storage.NewRedisStorage(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to initialize storage: %v", err)
		}
		log.Info("Redis presence storage initialized")
	}

	// 4. 初始化Kafka生产者与指令消费者
	var producer message.EventProducer
	var consumer fleet.CommandConsumer
	if cfg.Kafka.Enabled {
		kafkaProducer, err := message.NewKafkaProducer(cfg.Kafka, log)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka producer: %v", err)
		}
		producer = kafkaProducer
		log.Info("Kafka producer initialized")

		kafkaConsumer, err := message.NewKafkaConsumer(cfg.Kafka, cfg.InstanceID, log)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka consumer: %v", err)
		}
		consumer = kafkaConsumer
		log.Infof("Kafka consumer initialized with brokers: %v, group: %s",
			cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup)
	}

	// 5. 装配车队
	supervisor, err := fleet.NewSupervisor(cfg, fleet.Deps{
		Producer: producer,
		Consumer: consumer,
		Presence: presence,
	}, log)
	if err != nil {
		log.Fatalf("Failed to assemble fleet: %v", err)
	}

	// 6. 启动监控服务器
	if cfg.Metrics.Enabled {
		metrics.RegisterMetrics()
		go startMetricsServer(cfg.GetMetricsAddr(), supervisor, log)
	}

	// 7. 启动车队
	if err := supervisor.Start(); err != nil {
		log.Fatalf("Failed to start fleet: %v", err)
	}
	log.Info("Station simulator started successfully")

	// 8. 监听并处理优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down simulator...")

	if err := supervisor.Stop(); err != nil {
		log.Errorf("Error stopping fleet: %v", err)
	}
	log.Info("Fleet stopped")

	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("Error closing Kafka producer: %v", err)
		}
		log.Info("Kafka producer closed")
	}

	if presence != nil {
		if err := presence.Close(); err != nil {
			log.Errorf("Error closing storage: %v", err)
		}
		log.Info("Storage closed")
	}

	log.Info("Simulator gracefully stopped.")
}

// startMetricsServer 启动监控服务器，暴露指标与健康检查
func startMetricsServer(addr string, supervisor *fleet.Supervisor, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"stations":  len(supervisor.StationIDs()),
			"connected": supervisor.ConnectedCount(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	log.Infof("Metrics server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Metrics server failed: %v", err)
	}
}
