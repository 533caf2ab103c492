package events

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher 把序列化好的事件发到外部消息系统
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher 一个 writer 复用给所有 topic，topic 写在每条消息上
func NewKafkaPublisher(brokers []string, writeTimeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{}, // 同一订单落到同一分区，保证顺序
			RequiredAcks:           kafka.RequireOne,
			WriteTimeout:           writeTimeout,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher kafka 未启用时使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, []byte) error { return nil }
func (NopPublisher) Close() error                                          { return nil }

// Message 记录下来的一条消息
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// RecordingPublisher 把消息留在内存里，测试用
type RecordingPublisher struct {
	mu       sync.Mutex
	Messages []Message
}

func (p *RecordingPublisher) Publish(_ context.Context, topic, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = append(p.Messages, Message{Topic: topic, Key: key, Value: value})
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

// Topics 按发布顺序返回 topic
func (p *RecordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.Messages))
	for _, m := range p.Messages {
		out = append(out, m.Topic)
	}
	return out
}
