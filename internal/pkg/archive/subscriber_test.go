package archive

import (
	"context"
	"testing"
	"time"

	"order_payment_service/internal/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	objects map[string]string
}

func (m *memStore) Put(_ context.Context, key string, body []byte, _ string) error {
	m.objects[key] = string(body)
	return nil
}

func TestSubscribeArchivesInvoice(t *testing.T) {
	store := &memStore{objects: map[string]string{}}
	bus := events.NewBus(nil, nil, "")
	Subscribe(bus, store)

	bus.Emit(events.InvoiceIssued, "o1", events.InvoicePayload{
		InvoiceNumber: "INV-2026-000042",
		OrderID:       "o1",
		IssuedAt:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Document:      "INVOICE INV-2026-000042",
	})

	require.Contains(t, store.objects, "invoices/2026/INV-2026-000042.txt")
	assert.Equal(t, "INVOICE INV-2026-000042", store.objects["invoices/2026/INV-2026-000042.txt"])
}
