package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	invoiceService "order_payment_service/internal/domain/invoice/service"
	orderModel "order_payment_service/internal/domain/order/model"
	orderService "order_payment_service/internal/domain/order/service"
	"order_payment_service/internal/domain/payment/gateway"
	"order_payment_service/internal/domain/payment/gatewaytest"
	paymentModel "order_payment_service/internal/domain/payment/model"
	paymentService "order_payment_service/internal/domain/payment/service"
	refundModel "order_payment_service/internal/domain/refund/model"
	refundService "order_payment_service/internal/domain/refund/service"
	"order_payment_service/internal/pkg/auth"
	"order_payment_service/internal/pkg/config"
	"order_payment_service/internal/pkg/events"
	"order_payment_service/internal/pkg/ledgertest"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	customer = auth.Principal{UserID: "user-1", Role: auth.RoleUser}
	admin    = auth.Principal{UserID: "admin-1", Role: auth.RoleAdmin}
)

type harness struct {
	store    *ledgertest.Store
	gw       *gatewaytest.Fake
	pub      *events.RecordingPublisher
	payments paymentService.PaymentService
	refunds  refundService.RefundService
	webhooks WebhookService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: ledgertest.New(),
		gw:    gatewaytest.New(),
		pub:   &events.RecordingPublisher{},
	}
	bus := events.NewBus(h.pub, nil, "")
	m := metrics.Default()

	invoices := invoiceService.NewInvoiceService(h.store.Invoices(), h.store, bus, config.InvoiceConfig{}, m)
	machine := orderService.NewStateMachine(h.store.Orders(), []orderService.ConfirmationHook{invoices}, nil)

	h.payments = paymentService.NewPaymentService(h.store.Payments(), h.store.Orders(), machine, h.gw, h.store, bus)
	reconciler := paymentService.NewReconciler(h.store.Payments(), h.store.Orders(), machine, h.gw, h.store, bus, m)
	h.refunds = refundService.NewRefundService(h.store.Refunds(), h.store.Payments(), machine, h.gw, h.store, bus, m)
	h.webhooks = NewWebhookService(h.gw, reconciler, h.refunds, m)
	return h
}

// placeOrder 直接落一个待支付订单并创建一次支付
func (h *harness) placeOrder(t *testing.T) (*orderModel.Order, *paymentService.IntentResult) {
	t.Helper()
	ctx := context.Background()
	order := &orderModel.Order{
		OrderNumber:    orderModel.NewOrderNumber(time.Now()),
		UserID:         customer.UserID,
		Status:         orderModel.StatusPending,
		PaymentStatus:  orderModel.PaymentUnpaid,
		Subtotal:       150000,
		TaxAmount:      30000,
		ShippingAmount: 995,
		TotalAmount:    180995,
		Currency:       "gbp",
		ShippingRateID: "rate-1",
		Items: []orderModel.OrderItem{
			{ProductID: "p1", Name: "Lamp", Category: "standard", Quantity: 3, UnitPrice: 50000, TotalPrice: 150000},
		},
	}
	require.NoError(t, h.store.Orders().Create(ctx, order))
	intent := h.newAttempt(t, order.ID)
	return order, intent
}

func (h *harness) newAttempt(t *testing.T, orderID string) *paymentService.IntentResult {
	t.Helper()
	intent, err := h.payments.CreateIntent(context.Background(), customer, orderID)
	require.NoError(t, err)
	return intent
}

func (h *harness) send(t *testing.T, evt gateway.Event) *Result {
	t.Helper()
	res, err := h.webhooks.Handle(context.Background(), gatewaytest.Payload(evt), h.gw.Secret)
	require.NoError(t, err)
	return res
}

func succeeded(intentID string) gateway.Event {
	return gateway.Event{ID: "evt_ok_" + intentID, Type: gateway.EventIntentSucceeded, IntentID: intentID}
}

func (h *harness) published(topic string) int {
	n := 0
	for _, t := range h.pub.Topics() {
		if t == topic {
			n++
		}
	}
	return n
}

func TestDuplicateSucceededAppliesOnce(t *testing.T) {
	h := newHarness(t)
	order, intent := h.placeOrder(t)

	first := h.send(t, succeeded(intent.GatewayIntentID))
	second := h.send(t, succeeded(intent.GatewayIntentID))

	assert.Equal(t, paymentService.OutcomeApplied, first.Outcome)
	assert.Equal(t, paymentService.OutcomeNoop, second.Outcome)

	got := h.store.Order(order.ID)
	assert.Equal(t, orderModel.StatusConfirmed, got.Status)
	assert.Equal(t, orderModel.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, 1, h.store.InvoiceCount())
	assert.Equal(t, 1, h.published(events.OrderConfirmed))
	assert.Equal(t, 1, h.published(events.InvoiceIssued))
}

func TestConcurrentDeliveriesConfirmOnce(t *testing.T) {
	h := newHarness(t)
	order, intent := h.placeOrder(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.webhooks.Handle(context.Background(), gatewaytest.Payload(succeeded(intent.GatewayIntentID)), h.gw.Secret)
			if assert.NoError(t, err) && res.Outcome == paymentService.OutcomeApplied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, orderModel.StatusConfirmed, h.store.Order(order.ID).Status)
	assert.Equal(t, 1, h.store.InvoiceCount())
}

func TestFailedAfterSucceededIsNoop(t *testing.T) {
	h := newHarness(t)
	order, intent := h.placeOrder(t)

	h.send(t, succeeded(intent.GatewayIntentID))
	res := h.send(t, gateway.Event{ID: "evt_late", Type: gateway.EventIntentFailed, IntentID: intent.GatewayIntentID, FailureMessage: "card_declined"})

	assert.Equal(t, paymentService.OutcomeNoop, res.Outcome)
	payments := h.store.PaymentsOf(order.ID)
	require.Len(t, payments, 1)
	assert.Equal(t, paymentModel.StatusSucceeded, payments[0].Status)
	assert.Equal(t, orderModel.PaymentPaid, h.store.Order(order.ID).PaymentStatus)
}

func TestFailedThenRetrySucceeds(t *testing.T) {
	h := newHarness(t)
	order, first := h.placeOrder(t)

	res := h.send(t, gateway.Event{ID: "evt_fail", Type: gateway.EventIntentFailed, IntentID: first.GatewayIntentID, FailureMessage: "insufficient_funds"})
	assert.Equal(t, paymentService.OutcomeApplied, res.Outcome)
	got := h.store.Order(order.ID)
	assert.Equal(t, orderModel.StatusPending, got.Status)
	assert.Equal(t, orderModel.PaymentFailed, got.PaymentStatus)

	second := h.newAttempt(t, order.ID)
	assert.Equal(t, orderModel.PaymentUnpaid, h.store.Order(order.ID).PaymentStatus)

	h.send(t, succeeded(second.GatewayIntentID))
	got = h.store.Order(order.ID)
	assert.Equal(t, orderModel.StatusConfirmed, got.Status)
	assert.Equal(t, orderModel.PaymentPaid, got.PaymentStatus)

	payments := h.store.PaymentsOf(order.ID)
	require.Len(t, payments, 2)
	assert.Equal(t, paymentModel.StatusFailed, payments[0].Status)
	assert.Equal(t, "insufficient_funds", payments[0].FailureReason)
	assert.Equal(t, paymentModel.StatusSucceeded, payments[1].Status)
}

func TestFailureOfSupersededAttemptKeepsOrderUnpaid(t *testing.T) {
	h := newHarness(t)
	order, first := h.placeOrder(t)
	h.newAttempt(t, order.ID)

	// 第一次尝试已被本地关闭，迟到的失败事件不影响订单
	res := h.send(t, gateway.Event{ID: "evt_fail", Type: gateway.EventIntentFailed, IntentID: first.GatewayIntentID})
	assert.Equal(t, paymentService.OutcomeNoop, res.Outcome)
	assert.Equal(t, orderModel.PaymentUnpaid, h.store.Order(order.ID).PaymentStatus)
}

func TestCanceledSupersededIntentKeepsOrder(t *testing.T) {
	h := newHarness(t)
	order, first := h.placeOrder(t)
	second := h.newAttempt(t, order.ID)
	assert.Contains(t, h.gw.Canceled, first.GatewayIntentID)

	res := h.send(t, gateway.Event{ID: "evt_cancel", Type: gateway.EventIntentCanceled, IntentID: first.GatewayIntentID})
	assert.Equal(t, paymentService.OutcomeNoop, res.Outcome)
	assert.Equal(t, orderModel.StatusPending, h.store.Order(order.ID).Status)

	h.send(t, succeeded(second.GatewayIntentID))
	assert.Equal(t, orderModel.StatusConfirmed, h.store.Order(order.ID).Status)
}

func TestCanceledLastIntentCancelsOrder(t *testing.T) {
	h := newHarness(t)
	order, intent := h.placeOrder(t)

	res := h.send(t, gateway.Event{ID: "evt_cancel", Type: gateway.EventIntentCanceled, IntentID: intent.GatewayIntentID})
	assert.Equal(t, paymentService.OutcomeApplied, res.Outcome)
	assert.Equal(t, orderModel.StatusCancelled, h.store.Order(order.ID).Status)

	again := h.send(t, gateway.Event{ID: "evt_cancel", Type: gateway.EventIntentCanceled, IntentID: intent.GatewayIntentID})
	assert.Equal(t, paymentService.OutcomeNoop, again.Outcome)
	assert.Equal(t, 1, h.published(events.OrderCancelled))
}

func TestSucceededAfterCancelKeepsOrderCancelled(t *testing.T) {
	h := newHarness(t)
	order, intent := h.placeOrder(t)

	h.send(t, gateway.Event{ID: "evt_cancel", Type: gateway.EventIntentCanceled, IntentID: intent.GatewayIntentID})
	res := h.send(t, succeeded(intent.GatewayIntentID))
	assert.Equal(t, paymentService.OutcomeApplied, res.Outcome)

	got := h.store.Order(order.ID)
	assert.Equal(t, orderModel.StatusCancelled, got.Status)
	assert.Equal(t, orderModel.PaymentPaid, got.PaymentStatus)
	assert.Zero(t, h.store.InvoiceCount())
	assert.Equal(t, 1, h.published(events.PaymentCapturedAfterCancel))
}

func TestSecondCaptureIsFlagged(t *testing.T) {
	h := newHarness(t)
	order, first := h.placeOrder(t)
	second := h.newAttempt(t, order.ID)

	// 第一次尝试在本地关闭前已经在网关扣款成功
	h.send(t, succeeded(first.GatewayIntentID))
	res := h.send(t, succeeded(second.GatewayIntentID))
	assert.Equal(t, paymentService.OutcomeApplied, res.Outcome)

	payments := h.store.PaymentsOf(order.ID)
	require.Len(t, payments, 2)
	assert.Equal(t, paymentModel.StatusSucceeded, payments[0].Status)
	assert.Equal(t, paymentModel.StatusPending, payments[1].Status)
	assert.NotEmpty(t, payments[1].FailureReason)
	assert.Equal(t, 1, h.published(events.PaymentDuplicateCapture))
	assert.Equal(t, 1, h.store.InvoiceCount())

	again := h.send(t, succeeded(second.GatewayIntentID))
	assert.Equal(t, paymentService.OutcomeNoop, again.Outcome)
	assert.Equal(t, 1, h.published(events.PaymentDuplicateCapture))
}

func TestRefundEventBeforeLocalRecord(t *testing.T) {
	h := newHarness(t)
	order, intent := h.placeOrder(t)
	h.send(t, succeeded(intent.GatewayIntentID))

	evt := gateway.Event{
		ID:       "evt_refund",
		Type:     gateway.EventChargeRefunded,
		IntentID: intent.GatewayIntentID,
		Refunds:  []gateway.Refund{{ID: "re_dashboard", Amount: 180995, Status: gateway.RefundSucceeded}},
	}
	res := h.send(t, evt)
	assert.Equal(t, paymentService.OutcomeApplied, res.Outcome)

	refunds := h.store.RefundsOf(intent.PaymentID)
	require.Len(t, refunds, 1)
	assert.Equal(t, refundModel.StatusSucceeded, refunds[0].Status)
	assert.Equal(t, "re_dashboard", refunds[0].GatewayRefundID)
	assert.Equal(t, orderModel.PaymentRefunded, h.store.Order(order.ID).PaymentStatus)

	again := h.send(t, evt)
	assert.Equal(t, paymentService.OutcomeNoop, again.Outcome)
	assert.Len(t, h.store.RefundsOf(intent.PaymentID), 1)
}

func TestPartialRefundLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, intent := h.placeOrder(t)
	h.send(t, succeeded(intent.GatewayIntentID))

	refund, err := h.refunds.Create(ctx, admin, refundService.CreateInput{PaymentID: intent.PaymentID, Amount: 80000, Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, refundModel.StatusPending, refund.Status)

	// 进行中的退款计入额度
	_, err = h.refunds.Create(ctx, admin, refundService.CreateInput{PaymentID: intent.PaymentID, Amount: 100996})
	assert.True(t, apperr.Is(err, apperr.KindUnprocessable))

	h.send(t, gateway.Event{
		ID:       "evt_refund_1",
		Type:     gateway.EventRefundUpdated,
		IntentID: intent.GatewayIntentID,
		Refunds:  []gateway.Refund{{ID: refund.GatewayRefundID, Amount: 80000, Status: gateway.RefundSucceeded}},
	})
	assert.Equal(t, orderModel.PaymentPartiallyRefunded, h.store.Order(order.ID).PaymentStatus)

	rest, err := h.refunds.Create(ctx, admin, refundService.CreateInput{PaymentID: intent.PaymentID, Amount: 100995})
	require.NoError(t, err)
	h.send(t, gateway.Event{
		ID:       "evt_refund_2",
		Type:     gateway.EventRefundUpdated,
		IntentID: intent.GatewayIntentID,
		Refunds:  []gateway.Refund{{ID: rest.GatewayRefundID, Amount: 100995, Status: gateway.RefundSucceeded}},
	})
	assert.Equal(t, orderModel.PaymentRefunded, h.store.Order(order.ID).PaymentStatus)
	assert.Equal(t, 2, h.published(events.RefundSucceeded))
}

func TestFailedRefundReleasesAmount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, intent := h.placeOrder(t)
	h.send(t, succeeded(intent.GatewayIntentID))

	refund, err := h.refunds.Create(ctx, admin, refundService.CreateInput{PaymentID: intent.PaymentID, Amount: 180995})
	require.NoError(t, err)
	res := h.send(t, gateway.Event{
		ID:       "evt_refund_failed",
		Type:     gateway.EventRefundUpdated,
		IntentID: intent.GatewayIntentID,
		Refunds:  []gateway.Refund{{ID: refund.GatewayRefundID, Status: gateway.RefundFailed, FailureReason: "expired_or_canceled_card"}},
	})
	assert.Equal(t, paymentService.OutcomeApplied, res.Outcome)
	assert.Equal(t, orderModel.PaymentPaid, h.store.Order(order.ID).PaymentStatus)

	_, err = h.refunds.Create(ctx, admin, refundService.CreateInput{PaymentID: intent.PaymentID, Amount: 180995})
	assert.NoError(t, err)
}

func TestRejectedPayloads(t *testing.T) {
	h := newHarness(t)

	_, err := h.webhooks.Handle(context.Background(), gatewaytest.Payload(succeeded("pi_x")), "wrong")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = h.webhooks.Handle(context.Background(), []byte("{not json"), h.gw.Secret)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestIgnoredEvents(t *testing.T) {
	h := newHarness(t)

	res := h.send(t, gateway.Event{ID: "evt_other", Type: "customer.created"})
	assert.Equal(t, paymentService.OutcomeIgnored, res.Outcome)

	res = h.send(t, succeeded("pi_not_ours"))
	assert.Equal(t, paymentService.OutcomeIgnored, res.Outcome)
	assert.Empty(t, h.pub.Topics())
}

func TestPersistenceFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	order, intent := h.placeOrder(t)

	h.store.WriteErr = errors.New("connection reset")
	_, err := h.webhooks.Handle(context.Background(), gatewaytest.Payload(succeeded(intent.GatewayIntentID)), h.gw.Secret)
	require.Error(t, err)
	assert.False(t, apperr.Is(err, apperr.KindBadRequest))
	assert.Equal(t, orderModel.StatusPending, h.store.Order(order.ID).Status)

	// 网关重试时恢复正常
	h.store.WriteErr = nil
	res := h.send(t, succeeded(intent.GatewayIntentID))
	assert.Equal(t, paymentService.OutcomeApplied, res.Outcome)
	assert.Equal(t, orderModel.StatusConfirmed, h.store.Order(order.ID).Status)
}

func TestChargeRefundedWithoutEmbeddedRefunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, intent := h.placeOrder(t)
	h.send(t, succeeded(intent.GatewayIntentID))

	refund, err := h.refunds.Create(ctx, admin, refundService.CreateInput{PaymentID: intent.PaymentID, Amount: 180995})
	require.NoError(t, err)
	h.gw.SetRefundStatus(refund.GatewayRefundID, gateway.RefundSucceeded)

	// charge 对象里没有 refunds 列表，退款要向网关查
	evt := gateway.Event{ID: "evt_charge_refunded", Type: gateway.EventChargeRefunded, IntentID: intent.GatewayIntentID, Amount: 180995}
	res := h.send(t, evt)
	assert.Equal(t, paymentService.OutcomeApplied, res.Outcome)

	refunds := h.store.RefundsOf(intent.PaymentID)
	require.Len(t, refunds, 1)
	assert.Equal(t, refundModel.StatusSucceeded, refunds[0].Status)
	assert.Equal(t, orderModel.PaymentRefunded, h.store.Order(order.ID).PaymentStatus)

	again := h.send(t, evt)
	assert.Equal(t, paymentService.OutcomeNoop, again.Outcome)
	assert.Equal(t, 1, h.published(events.RefundSucceeded))
}

func TestChargeRefundedLookupFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, intent := h.placeOrder(t)
	h.send(t, succeeded(intent.GatewayIntentID))

	refund, err := h.refunds.Create(ctx, admin, refundService.CreateInput{PaymentID: intent.PaymentID, Amount: 500})
	require.NoError(t, err)
	h.gw.SetRefundStatus(refund.GatewayRefundID, gateway.RefundSucceeded)

	h.gw.ListRefundsErr = errors.New("stripe unavailable")
	evt := gateway.Event{ID: "evt_charge_refunded", Type: gateway.EventChargeRefunded, IntentID: intent.GatewayIntentID}
	_, err = h.webhooks.Handle(ctx, gatewaytest.Payload(evt), h.gw.Secret)
	require.Error(t, err)
	assert.False(t, apperr.Is(err, apperr.KindBadRequest))
	assert.Equal(t, refundModel.StatusPending, h.store.RefundsOf(intent.PaymentID)[0].Status)

	h.gw.ListRefundsErr = nil
	res := h.send(t, evt)
	assert.Equal(t, paymentService.OutcomeApplied, res.Outcome)
	assert.Equal(t, refundModel.StatusSucceeded, h.store.RefundsOf(intent.PaymentID)[0].Status)
}

func TestRefundOfSecondCaptureKeepsOrderPaid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, first := h.placeOrder(t)
	second := h.newAttempt(t, order.ID)
	h.send(t, succeeded(first.GatewayIntentID))
	h.send(t, succeeded(second.GatewayIntentID))

	// 重复扣款的那笔可以由管理员退回
	refund, err := h.refunds.Create(ctx, admin, refundService.CreateInput{PaymentID: second.PaymentID, Amount: 180995, Reason: "duplicate capture"})
	require.NoError(t, err)

	res := h.send(t, gateway.Event{
		ID:       "evt_refund_dup",
		Type:     gateway.EventRefundUpdated,
		IntentID: second.GatewayIntentID,
		Refunds:  []gateway.Refund{{ID: refund.GatewayRefundID, Amount: 180995, Status: gateway.RefundSucceeded}},
	})
	assert.Equal(t, paymentService.OutcomeApplied, res.Outcome)
	assert.Equal(t, refundModel.StatusSucceeded, h.store.RefundsOf(second.PaymentID)[0].Status)

	got := h.store.Order(order.ID)
	assert.Equal(t, orderModel.StatusConfirmed, got.Status)
	assert.Equal(t, orderModel.PaymentPaid, got.PaymentStatus)

	// 网关后台直接退的也一样
	res = h.send(t, gateway.Event{
		ID:       "evt_refund_dashboard",
		Type:     gateway.EventRefundUpdated,
		IntentID: second.GatewayIntentID,
		Refunds:  []gateway.Refund{{ID: "re_dashboard_dup", Amount: 1, Status: gateway.RefundSucceeded}},
	})
	assert.Equal(t, paymentService.OutcomeApplied, res.Outcome)
	assert.Equal(t, orderModel.PaymentPaid, h.store.Order(order.ID).PaymentStatus)
	assert.Empty(t, h.store.RefundsOf(first.PaymentID))
}
