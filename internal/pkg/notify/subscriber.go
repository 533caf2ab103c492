package notify

import (
	"context"
	"fmt"

	"order_payment_service/internal/pkg/events"
	"order_payment_service/pkg/utils"
)

// Subscribe 把用户关心的事件转成推送
func Subscribe(bus *events.Bus, n Notifier) {
	bus.Subscribe(events.PaymentSucceeded, func(ctx context.Context, e events.Event) error {
		var p events.PaymentPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		return n.NotifyUser(ctx, p.UserID, "Payment received",
			fmt.Sprintf("We received your payment of %s.", utils.FormatMinor(p.Amount, p.Currency)),
			map[string]string{"order_id": p.OrderID})
	})

	bus.Subscribe(events.PaymentFailed, func(ctx context.Context, e events.Event) error {
		var p events.PaymentPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		return n.NotifyUser(ctx, p.UserID, "Payment failed",
			"We could not take your payment. Please try again.",
			map[string]string{"order_id": p.OrderID})
	})

	bus.Subscribe(events.RefundSucceeded, func(ctx context.Context, e events.Event) error {
		var p events.RefundPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		if p.UserID == "" {
			return nil
		}
		return n.NotifyUser(ctx, p.UserID, "Refund processed",
			fmt.Sprintf("A refund of %s has been processed.", utils.FormatMinor(p.Amount, p.Currency)),
			map[string]string{"order_id": p.OrderID, "refund_id": p.RefundID})
	})

	bus.Subscribe(events.ShipmentUpdated, func(ctx context.Context, e events.Event) error {
		var p events.ShipmentPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		if p.Status != "SHIPPED" {
			return nil
		}
		return n.NotifyUser(ctx, p.UserID, "Order shipped",
			fmt.Sprintf("Your order is on its way with %s (%s).", p.Carrier, p.TrackingNumber),
			map[string]string{"order_id": p.OrderID})
	})
}
