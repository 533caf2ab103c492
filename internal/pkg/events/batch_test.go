package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatch(t *testing.T) {
	t.Run("Flush emits in order", func(t *testing.T) {
		pub := &RecordingPublisher{}
		bus := NewBus(pub, nil, "")

		ctx, batch := Collect(context.Background())
		Add(ctx, OrderConfirmed, "o1", OrderPayload{OrderID: "o1"})
		Add(ctx, InvoiceIssued, "o1", InvoicePayload{OrderID: "o1"})
		assert.Empty(t, pub.Messages)

		batch.Flush(bus)
		assert.Equal(t, []string{OrderConfirmed, InvoiceIssued}, pub.Topics())
	})

	t.Run("Discard drops events", func(t *testing.T) {
		pub := &RecordingPublisher{}
		bus := NewBus(pub, nil, "")

		ctx, batch := Collect(context.Background())
		Add(ctx, OrderCreated, "o1", OrderPayload{})
		batch.Discard()
		batch.Flush(bus)
		assert.Empty(t, pub.Messages)
	})

	t.Run("Nested batch defers to outer", func(t *testing.T) {
		pub := &RecordingPublisher{}
		bus := NewBus(pub, nil, "")

		ctx, outer := Collect(context.Background())
		inner := func(ctx context.Context) {
			ctx, b := Collect(ctx)
			Add(ctx, PaymentSucceeded, "o1", PaymentPayload{})
			b.Flush(bus)
		}
		inner(ctx)
		assert.Empty(t, pub.Messages)
		assert.Equal(t, 1, outer.Len())

		outer.Flush(bus)
		assert.Equal(t, []string{PaymentSucceeded}, pub.Topics())
	})

	t.Run("Add without batch is dropped", func(t *testing.T) {
		assert.NotPanics(t, func() { Add(context.Background(), OrderCreated, "o1", nil) })
	})
}
