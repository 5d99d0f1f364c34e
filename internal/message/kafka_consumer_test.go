package message

import (
	"context"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession sarama.ConsumerGroupSession替身，记录已标记的偏移量
type fakeSession struct {
	mu     sync.Mutex
	marked []int64
}

func (f *fakeSession) Claims() map[string][]int32               { return nil }
func (f *fakeSession) MemberID() string                         { return "member-0" }
func (f *fakeSession) GenerationID() int32                      { return 1 }
func (f *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (f *fakeSession) Commit()                                  {}
func (f *fakeSession) ResetOffset(string, int32, int64, string) {}
func (f *fakeSession) Context() context.Context                 { return context.Background() }

func (f *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, msg.Offset)
}

func (f *fakeSession) markedOffsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64{}, f.marked...)
}

// fakeClaim sarama.ConsumerGroupClaim替身
type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func newFakeClaim(payloads ...string) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(payloads))
	for i, p := range payloads {
		ch <- &sarama.ConsumerMessage{
			Topic:     "simulator-commands",
			Partition: 0,
			Offset:    int64(i),
			Value:     []byte(p),
		}
	}
	close(ch)
	return &fakeClaim{messages: ch}
}

func (f *fakeClaim) Topic() string                            { return "simulator-commands" }
func (f *fakeClaim) Partition() int32                         { return 0 }
func (f *fakeClaim) InitialOffset() int64                     { return 0 }
func (f *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (f *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return f.messages }

func TestKafkaConsumer_ConsumeClaimDispatchesCommands(t *testing.T) {
	consumer := NewKafkaConsumerWithGroup(nil, "simulator-commands", "simulator-0", newTestLogger(t))

	var received []Command
	consumer.handler = func(cmd *Command) {
		received = append(received, *cmd)
	}

	session := &fakeSession{}
	claim := newFakeClaim(
		`{"type":"connect","stationId":"SIM-00001"}`,
		`{"type":"startTransaction","stationId":"SIM-00002","connectorId":1,"idTag":"TAG-1"}`,
	)

	require.NoError(t, consumer.ConsumeClaim(session, claim))

	require.Len(t, received, 2)
	assert.Equal(t, CommandConnect, received[0].Type)
	assert.Equal(t, "SIM-00001", received[0].StationID)
	assert.Equal(t, CommandStartTransaction, received[1].Type)
	assert.Equal(t, "TAG-1", received[1].IdTag)
	assert.Equal(t, []int64{0, 1}, session.markedOffsets())
}

func TestKafkaConsumer_ConsumeClaimSkipsBadMessages(t *testing.T) {
	consumer := NewKafkaConsumerWithGroup(nil, "simulator-commands", "simulator-0", newTestLogger(t))

	var received []Command
	consumer.handler = func(cmd *Command) {
		received = append(received, *cmd)
	}

	session := &fakeSession{}
	claim := newFakeClaim(
		`not json at all`,
		`{"type":"reboot","stationId":"SIM-00001"}`,
		`{"type":"disconnect","stationId":"SIM-00003"}`,
	)

	require.NoError(t, consumer.ConsumeClaim(session, claim))

	// 坏消息跳过但仍标记，避免卡住分区
	require.Len(t, received, 1)
	assert.Equal(t, CommandDisconnect, received[0].Type)
	assert.Equal(t, []int64{0, 1, 2}, session.markedOffsets())
}

func TestKafkaConsumer_StartRequiresHandler(t *testing.T) {
	consumer := NewKafkaConsumerWithGroup(nil, "simulator-commands", "simulator-0", newTestLogger(t))

	err := consumer.Start(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler is required")
}
