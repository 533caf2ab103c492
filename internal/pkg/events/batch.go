package events

import (
	"context"

	"order_payment_service/pkg/logger"

	"go.uber.org/zap"
)

type batchKey struct{}

type pending struct {
	eventType string
	key       string
	payload   interface{}
}

// Batch 事务内产生的事件，提交成功后统一发出，回滚则丢弃
type Batch struct {
	items  []pending
	nested bool
	parent *Batch
}

// Collect 在 ctx 上挂一个 Batch
// ctx 已经挂了 Batch 时复用外层的，返回的 Batch Flush 为空操作，由外层负责发出
func Collect(ctx context.Context) (context.Context, *Batch) {
	if outer, ok := ctx.Value(batchKey{}).(*Batch); ok {
		return ctx, &Batch{nested: true, parent: outer}
	}
	b := &Batch{}
	return context.WithValue(ctx, batchKey{}, b), b
}

// Add 记录一个待发事件，ctx 上没有 Batch 时丢弃并告警
func Add(ctx context.Context, eventType, key string, payload interface{}) {
	b, ok := ctx.Value(batchKey{}).(*Batch)
	if !ok {
		logger.Log.Warn("event emitted outside a batch, dropped", zap.String("type", eventType), zap.String("key", key))
		return
	}
	b.items = append(b.items, pending{eventType: eventType, key: key, payload: payload})
}

// Flush 把事件发到总线，只在事务提交后调用
func (b *Batch) Flush(bus *Bus) {
	if b.nested {
		return
	}
	for _, p := range b.items {
		bus.Emit(p.eventType, p.key, p.payload)
	}
	b.items = nil
}

// Discard 事务失败时丢弃
func (b *Batch) Discard() {
	if b.nested {
		return
	}
	b.items = nil
}

// Len 待发事件数
func (b *Batch) Len() int {
	if b.nested {
		return b.parent.Len()
	}
	return len(b.items)
}
