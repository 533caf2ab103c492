package service

import (
	"context"

	orderModel "order_payment_service/internal/domain/order/model"
	orderRepo "order_payment_service/internal/domain/order/repository"
	orderService "order_payment_service/internal/domain/order/service"
	"order_payment_service/internal/domain/payment/gateway"
	"order_payment_service/internal/domain/payment/model"
	"order_payment_service/internal/domain/payment/repository"
	"order_payment_service/internal/pkg/auth"
	"order_payment_service/internal/pkg/events"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/database"
	"order_payment_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IntentResult 新建的支付尝试，ClientSecret 交给前端完成支付
type IntentResult struct {
	PaymentID       string `json:"paymentId"`
	OrderID         string `json:"orderId"`
	GatewayIntentID string `json:"gatewayIntentId"`
	ClientSecret    string `json:"clientSecret"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

type ListQuery struct {
	Status model.Status
	Offset int
	Limit  int
}

type PaymentService interface {
	// CreateIntent 为待支付订单发起新的支付尝试
	CreateIntent(ctx context.Context, p auth.Principal, orderID string) (*IntentResult, error)
	// StartAttempt 供下单流程在已锁定订单的事务内调用
	StartAttempt(ctx context.Context, order *orderModel.Order) (*IntentResult, error)
	// CancelOpenPayments 关闭订单上所有 PENDING 的支付，网关调用失败时返回 422
	CancelOpenPayments(ctx context.Context, orderID string) error

	Get(ctx context.Context, p auth.Principal, id string) (*model.Payment, error)
	ListByOrder(ctx context.Context, p auth.Principal, orderID string) ([]model.Payment, error)
	List(ctx context.Context, p auth.Principal, q ListQuery) ([]model.Payment, int64, error)
}

type paymentService struct {
	payments repository.PaymentRepository
	orders   orderRepo.OrderRepository
	machine  *orderService.StateMachine
	gateway  gateway.PaymentGateway
	tx       database.Transactor
	bus      *events.Bus
}

func NewPaymentService(
	payments repository.PaymentRepository,
	orders orderRepo.OrderRepository,
	machine *orderService.StateMachine,
	gw gateway.PaymentGateway,
	tx database.Transactor,
	bus *events.Bus,
) PaymentService {
	return &paymentService{
		payments: payments,
		orders:   orders,
		machine:  machine,
		gateway:  gw,
		tx:       tx,
		bus:      bus,
	}
}

func (s *paymentService) CreateIntent(ctx context.Context, p auth.Principal, orderID string) (*IntentResult, error) {
	var result *IntentResult
	ctx, batch := events.Collect(ctx)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		// 锁住订单，同一订单的并发 create-intent 串行执行
		order, err := s.orders.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !p.CanAccess(order.UserID) {
			return apperr.Forbidden("you do not have access to this order")
		}
		if order.PaymentStatus.Settled() {
			return apperr.Conflict("order is already paid").With("orderId", order.ID)
		}
		if order.Status != orderModel.StatusPending {
			return apperr.Newf(apperr.KindUnprocessable, "cannot pay for an order that is %s", order.Status)
		}

		result, err = s.StartAttempt(ctx, order)
		return err
	})
	if err != nil {
		batch.Discard()
		return nil, err
	}
	batch.Flush(s.bus)
	return result, nil
}

func (s *paymentService) StartAttempt(ctx context.Context, order *orderModel.Order) (*IntentResult, error) {
	payment := &model.Payment{
		OrderID:  order.ID,
		UserID:   order.UserID,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
		Status:   model.StatusPending,
		Method:   model.MethodCard,
	}
	// 先生成 ID，同时作为网关幂等键
	payment.ID = uuid.NewString()

	intent, err := s.gateway.CreateIntent(ctx, gateway.CreateIntentParams{
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		IdempotencyKey: payment.ID,
		Metadata: map[string]string{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"payment_id":   payment.ID,
			"user_id":      order.UserID,
		},
	})
	if err != nil {
		logger.Log.Warn("create payment intent failed", zap.String("order_id", order.ID), zap.Error(err))
		return nil, apperr.Wrap(apperr.KindUnprocessable, err, "payment gateway rejected the request")
	}
	payment.GatewayIntentID = intent.ID

	// 新 intent 建好之后再关旧的，失败回滚时旧的尝试仍然可用
	if err := s.CancelOpenPayments(ctx, order.ID); err != nil {
		return nil, err
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	if _, err := s.machine.PaymentRetried(ctx, order.ID); err != nil {
		return nil, err
	}

	logger.Log.Info("payment intent created",
		zap.String("order_id", order.ID),
		zap.String("payment_id", payment.ID),
		zap.String("intent_id", intent.ID),
		zap.Int64("amount", payment.Amount))

	return &IntentResult{
		PaymentID:       payment.ID,
		OrderID:         order.ID,
		GatewayIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
	}, nil
}

func (s *paymentService) CancelOpenPayments(ctx context.Context, orderID string) error {
	payments, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, payment := range payments {
		if payment.Status != model.StatusPending {
			continue
		}
		if err := s.gateway.CancelIntent(ctx, payment.GatewayIntentID); err != nil {
			return apperr.Wrap(apperr.KindUnprocessable, err, "could not cancel the previous payment attempt")
		}
		if _, err := s.payments.MarkCanceled(ctx, payment.ID); err != nil {
			return err
		}
		logger.Log.Info("payment attempt cancelled", zap.String("order_id", orderID), zap.String("payment_id", payment.ID))
	}
	return nil
}

func (s *paymentService) Get(ctx context.Context, p auth.Principal, id string) (*model.Payment, error) {
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(payment.UserID) {
		return nil, apperr.Forbidden("you do not have access to this payment")
	}
	return payment, nil
}

func (s *paymentService) ListByOrder(ctx context.Context, p auth.Principal, orderID string) ([]model.Payment, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(order.UserID) {
		return nil, apperr.Forbidden("you do not have access to this order")
	}
	return s.payments.ListByOrder(ctx, orderID)
}

func (s *paymentService) List(ctx context.Context, p auth.Principal, q ListQuery) ([]model.Payment, int64, error) {
	filter := repository.ListFilter{Status: q.Status}
	if !p.IsAdmin() {
		filter.UserID = p.UserID
	}
	return s.payments.List(ctx, filter, q.Offset, q.Limit)
}
