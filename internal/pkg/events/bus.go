package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"order_payment_service/internal/pkg/worker"
	"order_payment_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler 本进程内的事件订阅者
type Handler func(ctx context.Context, e Event) error

// Bus 事件总线
// Emit 只在事务提交之后调用，发布和订阅者都在 worker pool 里异步执行，
// 失败按 pool 的策略重试，不影响已经提交的业务
type Bus struct {
	publisher   Publisher
	pool        *worker.WorkerPool // nil 时同步执行
	topicPrefix string

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus(publisher Publisher, pool *worker.WorkerPool, topicPrefix string) *Bus {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Bus{
		publisher:   publisher,
		pool:        pool,
		topicPrefix: topicPrefix,
		handlers:    make(map[string][]Handler),
	}
}

// Subscribe 注册订阅者
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Topic 返回事件类型对应的 kafka topic
func (b *Bus) Topic(eventType string) string {
	if b.topicPrefix == "" {
		return eventType
	}
	return b.topicPrefix + "." + eventType
}

// Emit 发布事件，从不阻塞调用方，也不返回错误
func (b *Bus) Emit(eventType, key string, payload interface{}) {
	if b == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Error("marshal event payload", zap.String("type", eventType), zap.Error(err))
		return
	}
	e := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}
	value, err := json.Marshal(e)
	if err != nil {
		logger.Log.Error("marshal event", zap.String("type", eventType), zap.Error(err))
		return
	}

	topic := b.Topic(eventType)
	b.run(worker.Func("publish:"+eventType, func(ctx context.Context) error {
		return b.publisher.Publish(ctx, topic, key, value)
	}))

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h := h
		b.run(worker.Func("handle:"+eventType, func(ctx context.Context) error {
			return h(ctx, e)
		}))
	}
}

func (b *Bus) run(task worker.Task) {
	if b.pool != nil {
		b.pool.AddTask(task)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := task.Run(ctx); err != nil {
		logger.Log.Warn("event task failed", zap.String("task", task.Name()), zap.Error(err))
	}
}

// Close 关闭 publisher，调用前应先停掉 worker pool
func (b *Bus) Close() error {
	return b.publisher.Close()
}
