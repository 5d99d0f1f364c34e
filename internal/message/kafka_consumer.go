package message

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/charging-platform/station-simulator/internal/config"
	"github.com/charging-platform/station-simulator/internal/logger"
	"github.com/charging-platform/station-simulator/internal/metrics"
)

// KafkaConsumer 消费车队指令并分发给处理函数
type KafkaConsumer struct {
	consumerGroup SaramaConsumerGroup
	topic         string
	instanceID    string
	logger        *logger.Logger
	cancel        context.CancelFunc
	handler       CommandHandler
}

// NewKafkaConsumer 创建车队指令消费者
func NewKafkaConsumer(cfg config.KafkaConfig, instanceID string, log *logger.Logger) (*KafkaConsumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRange()
	saramaConfig.Consumer.Group.Session.Timeout = 10 * time.Second
	saramaConfig.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama consumer group: %w", err)
	}

	consumer := NewKafkaConsumerWithGroup(consumerGroup, cfg.CommandsTopic, instanceID, log)
	go func() {
		for err := range consumerGroup.Errors() {
			consumer.logger.Errorf("Sarama consumer group error: %v", err)
		}
	}()
	return consumer, nil
}

// NewKafkaConsumerWithGroup 用现成的消费者组装配，测试注入mock时使用
func NewKafkaConsumerWithGroup(group SaramaConsumerGroup, topic, instanceID string, log *logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		consumerGroup: group,
		topic:         topic,
		instanceID:    instanceID,
		logger:        log.WithComponent("kafka-consumer"),
	}
}

// Start 启动消费循环
// Consume在再均衡后返回，循环内重入直到Close取消context
func (c *KafkaConsumer) Start(handler CommandHandler) error {
	if handler == nil {
		return fmt.Errorf("command handler is required")
	}
	c.handler = handler

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go func() {
		for {
			if err := c.consumerGroup.Consume(ctx, []string{c.topic}, c); err != nil {
				if ctx.Err() != nil {
					c.logger.Info("Command consumer stopped")
					return
				}
				c.logger.Errorf("Kafka consumer group error: %v", err)
				time.Sleep(time.Second)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return nil
}

// Close 停止消费并关闭消费者组
func (c *KafkaConsumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.consumerGroup != nil {
		return c.consumerGroup.Close()
	}
	return nil
}

// Setup 实现sarama.ConsumerGroupHandler
func (c *KafkaConsumer) Setup(sarama.ConsumerGroupSession) error {
	c.logger.Infof("Command consumer %s joined group for topic %s", c.instanceID, c.topic)
	return nil
}

// Cleanup 实现sarama.ConsumerGroupHandler
func (c *KafkaConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.logger.Debug("Command consumer session cleaned up")
	return nil
}

// ConsumeClaim 逐条解析并分发指令
// 坏消息记日志后标记跳过，不能阻塞整个分区
func (c *KafkaConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var cmd Command
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			c.logger.Errorf("Failed to unmarshal fleet command at offset %d: %v", msg.Offset, err)
			session.MarkMessage(msg, "")
			continue
		}
		if err := cmd.Validate(); err != nil {
			c.logger.Errorf("Invalid fleet command at offset %d: %v", msg.Offset, err)
			session.MarkMessage(msg, "")
			continue
		}

		metrics.CommandsConsumed.WithLabelValues(string(cmd.Type)).Inc()
		c.handler(&cmd)
		session.MarkMessage(msg, "")

		c.logger.Debugf("Fleet command %s for station %s consumed (partition=%d offset=%d)",
			cmd.Type, cmd.StationID, msg.Partition, msg.Offset)
	}
	return nil
}
