package archive

import (
	"context"
	"fmt"

	"order_payment_service/internal/pkg/events"
)

// InvoiceKey 发票归档路径 invoices/<年>/<发票号>.txt
func InvoiceKey(p events.InvoicePayload) string {
	return fmt.Sprintf("invoices/%d/%s.txt", p.IssuedAt.Year(), p.InvoiceNumber)
}

// Subscribe 开票和作废后把发票文本归档到对象存储，作废会覆盖原文件
func Subscribe(bus *events.Bus, store Store) {
	bus.Subscribe(events.InvoiceIssued, archiveInvoice(store))
	bus.Subscribe(events.InvoiceVoided, archiveInvoice(store))
}

func archiveInvoice(store Store) events.Handler {
	return func(ctx context.Context, e events.Event) error {
		var p events.InvoicePayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		if p.Document == "" {
			return nil
		}
		return store.Put(ctx, InvoiceKey(p), []byte(p.Document), "text/plain; charset=utf-8")
	}
}
