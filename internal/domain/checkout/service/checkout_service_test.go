package service

import (
	"context"
	"errors"
	"testing"

	couponService "order_payment_service/internal/domain/coupon/service"
	invoiceService "order_payment_service/internal/domain/invoice/service"
	orderModel "order_payment_service/internal/domain/order/model"
	orderRepo "order_payment_service/internal/domain/order/repository"
	orderService "order_payment_service/internal/domain/order/service"
	"order_payment_service/internal/domain/payment/gatewaytest"
	paymentModel "order_payment_service/internal/domain/payment/model"
	paymentService "order_payment_service/internal/domain/payment/service"
	"order_payment_service/internal/pkg/auth"
	"order_payment_service/internal/pkg/config"
	"order_payment_service/internal/pkg/events"
	"order_payment_service/internal/pkg/ledgertest"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCouponRedeemer struct {
	mock.Mock
}

func (m *MockCouponRedeemer) Redeem(ctx context.Context, d *couponService.Discount, orderID, userID string) error {
	args := m.Called(ctx, d, orderID, userID)
	return args.Error(0)
}

type checkoutFixture struct {
	store    *ledgertest.Store
	gateway  *gatewaytest.Fake
	pub      *events.RecordingPublisher
	coupons  *MockCouponValidator
	redeemer *MockCouponRedeemer
	webhook  *paymentService.Reconciler
	service  CheckoutService
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	f := &checkoutFixture{
		store:    ledgertest.New(),
		gateway:  gatewaytest.New(),
		pub:      &events.RecordingPublisher{},
		coupons:  new(MockCouponValidator),
		redeemer: new(MockCouponRedeemer),
	}
	bus := events.NewBus(f.pub, nil, "")

	tax := new(MockTaxResolver)
	tax.On("Resolve", mock.Anything, "GB", "", "standard").Return(percentRule("vat", 20), nil)
	shipping := new(MockShippingResolver)
	shipping.On("Resolve", mock.Anything, "rate-1", "GB", mock.Anything).Return(int64(995), nil)

	orders := f.store.Orders()
	invoices := invoiceService.NewInvoiceService(f.store.Invoices(), f.store, bus, config.InvoiceConfig{}, metrics.Default())
	machine := orderService.NewStateMachine(orders, []orderService.ConfirmationHook{invoices}, nil)
	payments := paymentService.NewPaymentService(f.store.Payments(), orders, machine, f.gateway, f.store, bus)
	reconciler := paymentService.NewReconciler(f.store.Payments(), orders, machine, f.gateway, f.store, bus, metrics.Default())
	f.webhook = reconciler

	f.service = NewCheckoutService(Deps{
		Pricing:   NewPricingEngine(tax, shipping, f.coupons, "gbp"),
		Coupons:   f.coupons,
		Redeemer:  f.redeemer,
		Orders:    orders,
		Payments:  payments,
		Confirmer: reconciler,
		Tx:        f.store,
		Bus:       bus,
		Metrics:   metrics.Default(),
	})
	return f
}

var customer = auth.Principal{UserID: "user-1", Role: auth.RoleUser}

func orderInput() OrderInput {
	return OrderInput{
		Items: []LineItem{{ProductID: "p1", Name: "Lamp", Quantity: 3, UnitPrice: 50000}},
		ShippingAddress: orderModel.Address{
			Name: "Ada", Line1: "1 High St", City: "London", PostalCode: "N1 1AA", Country: "gb",
		},
		ShippingRateID: "rate-1",
	}
}

func TestInitiate(t *testing.T) {
	f := newCheckoutFixture(t)

	result, err := f.service.Initiate(context.Background(), customer, orderInput())
	require.NoError(t, err)
	assert.NotEmpty(t, result.ClientSecret)
	assert.Equal(t, int64(180995), result.Pricing.TotalAmount)

	order := f.store.Order(result.OrderID)
	assert.Equal(t, orderModel.StatusPending, order.Status)
	assert.Equal(t, orderModel.PaymentUnpaid, order.PaymentStatus)
	assert.Equal(t, "GB", order.ShippingAddress.Country)
	assert.Equal(t, int64(180995), order.TotalAmount)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "standard", order.Items[0].Category)
	assert.Equal(t, int64(150000), order.Items[0].TotalPrice)

	payments := f.store.PaymentsOf(result.OrderID)
	require.Len(t, payments, 1)
	assert.Equal(t, paymentModel.StatusPending, payments[0].Status)
	assert.Equal(t, result.GatewayIntentID, payments[0].GatewayIntentID)
	assert.Equal(t, int64(180995), payments[0].Amount)

	assert.Equal(t, []string{events.OrderCreated}, f.pub.Topics())
}

func TestInitiateGatewayFailureRollsBack(t *testing.T) {
	f := newCheckoutFixture(t)
	f.gateway.CreateIntentErr = errors.New("card_declined")

	_, err := f.service.Initiate(context.Background(), customer, orderInput())
	assert.True(t, apperr.Is(err, apperr.KindUnprocessable))

	orders, total, err := f.store.Orders().List(context.Background(), orderRepo.ListFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
	assert.Empty(t, f.pub.Topics())
}

func TestPlaceOrderRedeemsCoupon(t *testing.T) {
	f := newCheckoutFixture(t)
	discount := &couponService.Discount{CouponID: "c1", Code: "SAVE10", DiscountAmount: 15000}
	f.coupons.On("Validate", mock.Anything, "SAVE10", int64(150000)).Return(discount, nil)
	f.redeemer.On("Redeem", mock.Anything, discount, mock.AnythingOfType("string"), "user-1").Return(nil)

	in := orderInput()
	in.CouponCode = "SAVE10"
	order, err := f.service.PlaceOrder(context.Background(), customer, in)
	require.NoError(t, err)

	assert.Equal(t, int64(15000), order.DiscountAmount)
	assert.Equal(t, int64(150000+30000+995-15000), order.TotalAmount)
	require.NotNil(t, order.CouponID)
	assert.Equal(t, "c1", *order.CouponID)
	assert.Empty(t, f.store.PaymentsOf(order.ID))
	f.redeemer.AssertCalled(t, "Redeem", mock.Anything, discount, order.ID, "user-1")
}

func TestPlaceOrderCouponExhaustedRollsBack(t *testing.T) {
	f := newCheckoutFixture(t)
	discount := &couponService.Discount{CouponID: "c1", Code: "LAST", DiscountAmount: 100}
	f.coupons.On("Validate", mock.Anything, "LAST", int64(150000)).Return(discount, nil)
	f.redeemer.On("Redeem", mock.Anything, discount, mock.Anything, "user-1").
		Return(apperr.Validation("coupon usage limit reached"))

	in := orderInput()
	in.CouponCode = "LAST"
	_, err := f.service.PlaceOrder(context.Background(), customer, in)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, total, _ := f.store.Orders().List(context.Background(), orderRepo.ListFilter{}, 0, 10)
	assert.Zero(t, total)
}

func TestConfirm(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	result, err := f.service.Initiate(ctx, customer, orderInput())
	require.NoError(t, err)

	t.Run("not yet paid on the gateway", func(t *testing.T) {
		_, err := f.service.Confirm(ctx, customer, result.OrderID, result.GatewayIntentID)
		assert.True(t, apperr.Is(err, apperr.KindUnprocessable))
		assert.Equal(t, orderModel.StatusPending, f.store.Order(result.OrderID).Status)
	})

	t.Run("someone else's order", func(t *testing.T) {
		other := auth.Principal{UserID: "user-2", Role: auth.RoleUser}
		_, err := f.service.Confirm(ctx, other, result.OrderID, result.GatewayIntentID)
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
	})

	t.Run("paid", func(t *testing.T) {
		f.gateway.SetIntentStatus(result.GatewayIntentID, "succeeded")
		order, err := f.service.Confirm(ctx, customer, result.OrderID, result.GatewayIntentID)
		require.NoError(t, err)
		assert.Equal(t, orderModel.StatusConfirmed, order.Status)
		assert.Equal(t, orderModel.PaymentPaid, order.PaymentStatus)

		// 重复确认不报错
		again, err := f.service.Confirm(ctx, customer, result.OrderID, result.GatewayIntentID)
		require.NoError(t, err)
		assert.Equal(t, orderModel.StatusConfirmed, again.Status)
	})
}

func TestConfirmAfterWebhook(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	result, err := f.service.Initiate(ctx, customer, orderInput())
	require.NoError(t, err)
	f.gateway.SetIntentStatus(result.GatewayIntentID, "succeeded")

	outcome, err := f.webhook.ApplyIntentSucceeded(ctx, result.GatewayIntentID)
	require.NoError(t, err)
	assert.Equal(t, paymentService.OutcomeApplied, outcome)

	order, err := f.service.Confirm(ctx, customer, result.OrderID, result.GatewayIntentID)
	require.NoError(t, err)
	assert.Equal(t, orderModel.StatusConfirmed, order.Status)
	assert.Equal(t, orderModel.PaymentPaid, order.PaymentStatus)

	payments := f.store.PaymentsOf(result.OrderID)
	require.Len(t, payments, 1)
	assert.Equal(t, paymentModel.StatusSucceeded, payments[0].Status)
	assert.Equal(t, 1, f.store.InvoiceCount())
}

func TestConfirmCancelledOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	result, err := f.service.Initiate(ctx, customer, orderInput())
	require.NoError(t, err)

	_, err = f.webhook.ApplyIntentCanceled(ctx, result.GatewayIntentID)
	require.NoError(t, err)
	require.Equal(t, orderModel.StatusCancelled, f.store.Order(result.OrderID).Status)

	f.gateway.SetIntentStatus(result.GatewayIntentID, "succeeded")
	_, err = f.service.Confirm(ctx, customer, result.OrderID, result.GatewayIntentID)
	assert.True(t, apperr.Is(err, apperr.KindUnprocessable))

	order := f.store.Order(result.OrderID)
	assert.Equal(t, orderModel.StatusCancelled, order.Status)
	assert.NotEqual(t, orderModel.PaymentPaid, order.PaymentStatus)
	assert.Equal(t, paymentModel.StatusCanceled, f.store.PaymentsOf(result.OrderID)[0].Status)
	assert.Zero(t, f.store.InvoiceCount())
}
