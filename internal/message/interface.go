package message

import (
	"context"

	"github.com/IBM/sarama"

	"github.com/charging-platform/station-simulator/internal/domain/events"
)

// EventProducer 向消息队列发布模拟器业务事件的接口
type EventProducer interface {
	// PublishEvent 异步发布一个事件
	PublishEvent(event events.Event) error
	// Close 关闭生产者
	Close() error
}

// CommandHandler 车队指令处理函数
type CommandHandler func(cmd *Command)

// SaramaConsumerGroup sarama.ConsumerGroup的子集，便于测试注入
type SaramaConsumerGroup interface {
	Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error
	Errors() <-chan error
	Close() error
}
