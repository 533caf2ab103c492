package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"order_payment_service/internal/pkg/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusEmitPublishesAndNotifies(t *testing.T) {
	pub := &RecordingPublisher{}
	bus := NewBus(pub, nil, "shop")

	var got OrderPayload
	bus.Subscribe(OrderConfirmed, func(ctx context.Context, e Event) error {
		return e.Decode(&got)
	})

	bus.Emit(OrderConfirmed, "order-1", OrderPayload{OrderID: "order-1", UserID: "u1", Status: "CONFIRMED"})

	require.Len(t, pub.Messages, 1)
	assert.Equal(t, "shop.order.confirmed", pub.Messages[0].Topic)
	assert.Equal(t, "order-1", pub.Messages[0].Key)

	var envelope Event
	require.NoError(t, json.Unmarshal(pub.Messages[0].Value, &envelope))
	assert.Equal(t, OrderConfirmed, envelope.Type)
	assert.NotEmpty(t, envelope.ID)

	assert.Equal(t, "order-1", got.OrderID)
	assert.Equal(t, "CONFIRMED", got.Status)
}

func TestBusHandlerErrorDoesNotPropagate(t *testing.T) {
	bus := NewBus(nil, nil, "")
	bus.Subscribe(RefundFailed, func(ctx context.Context, e Event) error {
		return errors.New("push provider down")
	})

	assert.NotPanics(t, func() {
		bus.Emit(RefundFailed, "r1", RefundPayload{RefundID: "r1"})
	})
}

func TestBusWithPool(t *testing.T) {
	pool := worker.NewWorkerPool(2, 10, 0)
	pool.Start()

	bus := NewBus(&RecordingPublisher{}, pool, "")
	var calls int32
	bus.Subscribe(InvoiceIssued, func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	bus.Emit(InvoiceIssued, "o1", InvoicePayload{InvoiceNumber: "INV-2026-000001"})
	bus.Emit(OrderCreated, "o2", OrderPayload{})

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, pool.Stop(context.Background()))
}

func TestNilBusEmit(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Emit(OrderCreated, "x", nil) })
}
