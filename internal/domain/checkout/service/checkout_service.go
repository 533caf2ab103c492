package service

import (
	"context"
	"strings"
	"time"

	couponService "order_payment_service/internal/domain/coupon/service"
	orderModel "order_payment_service/internal/domain/order/model"
	orderRepo "order_payment_service/internal/domain/order/repository"
	orderService "order_payment_service/internal/domain/order/service"
	paymentService "order_payment_service/internal/domain/payment/service"
	"order_payment_service/internal/pkg/auth"
	"order_payment_service/internal/pkg/events"
	"order_payment_service/pkg/database"
	"order_payment_service/pkg/logger"
	"order_payment_service/pkg/metrics"

	"go.uber.org/zap"
)

// CouponRedeemer 在下单事务内占用优惠券
type CouponRedeemer interface {
	Redeem(ctx context.Context, d *couponService.Discount, orderID, userID string) error
}

// AttemptStarter 在下单事务内创建支付尝试
type AttemptStarter interface {
	StartAttempt(ctx context.Context, order *orderModel.Order) (*paymentService.IntentResult, error)
}

// ClientConfirmer 前端支付完成后的确认
type ClientConfirmer interface {
	ConfirmFromClient(ctx context.Context, p auth.Principal, orderID, intentID string) (*orderModel.Order, error)
}

type OrderInput struct {
	Items           []LineItem
	ShippingAddress orderModel.Address
	ShippingRateID  string
	CouponCode      string
}

func (in OrderInput) priceRequest() PriceRequest {
	return PriceRequest{
		Items:          in.Items,
		ShippingRateID: in.ShippingRateID,
		Country:        strings.ToUpper(in.ShippingAddress.Country),
		Region:         in.ShippingAddress.Region,
		CouponCode:     in.CouponCode,
	}
}

// InitiateResult 下单并创建支付的结果
type InitiateResult struct {
	OrderID         string     `json:"orderId"`
	OrderNumber     string     `json:"orderNumber"`
	PaymentID       string     `json:"paymentId"`
	GatewayIntentID string     `json:"gatewayIntentId"`
	ClientSecret    string     `json:"clientSecret"`
	Pricing         *Breakdown `json:"pricing"`
}

type CheckoutService interface {
	// Summary 只计算价格，不落库
	Summary(ctx context.Context, req PriceRequest) (*Breakdown, error)
	// ApplyCoupon 校验优惠券，不占用次数
	ApplyCoupon(ctx context.Context, code string, orderAmount int64) (*couponService.Discount, error)
	// PlaceOrder 只创建订单，支付稍后通过 create-intent 发起
	PlaceOrder(ctx context.Context, p auth.Principal, in OrderInput) (*orderModel.Order, error)
	// Initiate 同一事务内创建订单和 PaymentIntent，网关失败整体回滚
	Initiate(ctx context.Context, p auth.Principal, in OrderInput) (*InitiateResult, error)
	Confirm(ctx context.Context, p auth.Principal, orderID, intentID string) (*orderModel.Order, error)
}

type checkoutService struct {
	pricing   *PricingEngine
	coupons   CouponValidator
	redeemer  CouponRedeemer
	orders    orderRepo.OrderRepository
	payments  AttemptStarter
	confirmer ClientConfirmer
	tx        database.Transactor
	bus       *events.Bus
	metrics   *metrics.MetricsCollector
	now       func() time.Time
}

type Deps struct {
	Pricing   *PricingEngine
	Coupons   CouponValidator
	Redeemer  CouponRedeemer
	Orders    orderRepo.OrderRepository
	Payments  AttemptStarter
	Confirmer ClientConfirmer
	Tx        database.Transactor
	Bus       *events.Bus
	Metrics   *metrics.MetricsCollector
}

func NewCheckoutService(d Deps) CheckoutService {
	return &checkoutService{
		pricing:   d.Pricing,
		coupons:   d.Coupons,
		redeemer:  d.Redeemer,
		orders:    d.Orders,
		payments:  d.Payments,
		confirmer: d.Confirmer,
		tx:        d.Tx,
		bus:       d.Bus,
		metrics:   d.Metrics,
		now:       time.Now,
	}
}

func (s *checkoutService) Summary(ctx context.Context, req PriceRequest) (*Breakdown, error) {
	req.Country = strings.ToUpper(req.Country)
	bd, err := s.pricing.Price(ctx, req)
	s.metrics.RecordCheckout("summary", err)
	return bd, err
}

func (s *checkoutService) ApplyCoupon(ctx context.Context, code string, orderAmount int64) (*couponService.Discount, error) {
	d, err := s.coupons.Validate(ctx, code, orderAmount)
	s.metrics.RecordCheckout("apply_coupon", err)
	return d, err
}

func (s *checkoutService) PlaceOrder(ctx context.Context, p auth.Principal, in OrderInput) (*orderModel.Order, error) {
	var order *orderModel.Order
	ctx, batch := events.Collect(ctx)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		order, _, err = s.placeOrder(ctx, p, in)
		return err
	})
	s.metrics.RecordCheckout("place_order", err)
	if err != nil {
		batch.Discard()
		return nil, err
	}
	batch.Flush(s.bus)
	return order, nil
}

func (s *checkoutService) Initiate(ctx context.Context, p auth.Principal, in OrderInput) (*InitiateResult, error) {
	var result *InitiateResult
	ctx, batch := events.Collect(ctx)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		order, bd, err := s.placeOrder(ctx, p, in)
		if err != nil {
			return err
		}
		// 网关调用在提交之前，失败则订单一起回滚
		intent, err := s.payments.StartAttempt(ctx, order)
		if err != nil {
			return err
		}
		result = &InitiateResult{
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			PaymentID:       intent.PaymentID,
			GatewayIntentID: intent.GatewayIntentID,
			ClientSecret:    intent.ClientSecret,
			Pricing:         bd,
		}
		return nil
	})
	s.metrics.RecordCheckout("initiate", err)
	if err != nil {
		batch.Discard()
		return nil, err
	}
	batch.Flush(s.bus)
	return result, nil
}

func (s *checkoutService) placeOrder(ctx context.Context, p auth.Principal, in OrderInput) (*orderModel.Order, *Breakdown, error) {
	bd, err := s.pricing.Price(ctx, in.priceRequest())
	if err != nil {
		return nil, nil, err
	}

	address := in.ShippingAddress
	address.Country = strings.ToUpper(address.Country)
	order := &orderModel.Order{
		OrderNumber:     orderModel.NewOrderNumber(s.now()),
		UserID:          p.UserID,
		Status:          orderModel.StatusPending,
		PaymentStatus:   orderModel.PaymentUnpaid,
		Subtotal:        bd.Subtotal,
		TaxAmount:       bd.TaxAmount,
		ShippingAmount:  bd.ShippingAmount,
		DiscountAmount:  bd.DiscountAmount,
		TotalAmount:     bd.TotalAmount,
		Currency:        bd.Currency,
		ShippingAddress: address,
		ShippingRateID:  in.ShippingRateID,
	}
	for _, item := range in.Items {
		order.Items = append(order.Items, orderModel.OrderItem{
			ProductID:  item.ProductID,
			Name:       item.Name,
			Category:   Category(item.Category),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.Total(),
		})
	}
	if bd.Coupon != nil {
		couponID := bd.Coupon.CouponID
		order.CouponID = &couponID
		order.CouponCode = bd.Coupon.Code
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, nil, err
	}
	if bd.Coupon != nil {
		if err := s.redeemer.Redeem(ctx, bd.Coupon, order.ID, p.UserID); err != nil {
			return nil, nil, err
		}
	}

	events.Add(ctx, events.OrderCreated, order.ID, orderService.Payload(order))
	logger.Log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", p.UserID),
		zap.Int64("total", order.TotalAmount))
	return order, bd, nil
}

func (s *checkoutService) Confirm(ctx context.Context, p auth.Principal, orderID, intentID string) (*orderModel.Order, error) {
	order, err := s.confirmer.ConfirmFromClient(ctx, p, orderID, intentID)
	s.metrics.RecordCheckout("confirm", err)
	return order, err
}
