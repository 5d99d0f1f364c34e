package message

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/charging-platform/station-simulator/internal/config"
	"github.com/charging-platform/station-simulator/internal/domain/events"
	"github.com/charging-platform/station-simulator/internal/logger"
	"github.com/charging-platform/station-simulator/internal/metrics"
)

// KafkaProducer 把模拟器事件异步发布到Kafka
type KafkaProducer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *logger.Logger
}

// NewKafkaProducer 创建Kafka事件生产者
func NewKafkaProducer(cfg config.KafkaConfig, log *logger.Logger) (*KafkaProducer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 500 * time.Millisecond
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka async producer: %w", err)
	}
	return NewKafkaProducerWithClient(producer, cfg.EventsTopic, log), nil
}

// NewKafkaProducerWithClient 用现成的sarama生产者装配，测试注入mock时使用
func NewKafkaProducerWithClient(producer sarama.AsyncProducer, topic string, log *logger.Logger) *KafkaProducer {
	kp := &KafkaProducer{
		producer: producer,
		topic:    topic,
		logger:   log.WithComponent("kafka-producer"),
	}
	go kp.handleSuccesses()
	go kp.handleErrors()
	return kp
}

// PublishEvent 发布事件，以站点ID为Key保证同站点事件有序
func (p *KafkaProducer) PublishEvent(event events.Event) error {
	eventData, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.GetStationID()),
		Value: sarama.ByteEncoder(eventData),
	}
	metrics.EventsPublished.WithLabelValues(string(event.GetType())).Inc()
	return nil
}

// Close 关闭生产者，未交付的消息会先刷出
func (p *KafkaProducer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

func (p *KafkaProducer) handleSuccesses() {
	for msg := range p.producer.Successes() {
		p.logger.Debugf("Event delivered to topic %s partition %d offset %d", msg.Topic, msg.Partition, msg.Offset)
	}
}

func (p *KafkaProducer) handleErrors() {
	for err := range p.producer.Errors() {
		p.logger.Errorf("Failed to deliver event to topic %s: %v", err.Msg.Topic, err.Err)
	}
}
