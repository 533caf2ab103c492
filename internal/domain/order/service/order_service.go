package service

import (
	"context"

	"order_payment_service/internal/domain/order/model"
	"order_payment_service/internal/domain/order/repository"
	"order_payment_service/internal/pkg/auth"
	"order_payment_service/internal/pkg/events"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/database"
)

// PaymentCanceller 取消订单前关闭仍在进行中的支付尝试 (本地和网关两侧)
type PaymentCanceller interface {
	CancelOpenPayments(ctx context.Context, orderID string) error
}

type ListQuery struct {
	Status model.Status
	Offset int
	Limit  int
}

type OrderService interface {
	Get(ctx context.Context, p auth.Principal, id string) (*model.Order, error)
	// List 普通用户只能看到自己的订单
	List(ctx context.Context, p auth.Principal, q ListQuery) ([]model.Order, int64, error)
	Cancel(ctx context.Context, p auth.Principal, id string) (*model.Order, error)
	// Transition PATCH 入口，目前只允许转到 CANCELLED，确认只能由支付结果驱动
	Transition(ctx context.Context, p auth.Principal, id string, to model.Status) (*model.Order, error)
}

type orderService struct {
	orders   repository.OrderRepository
	machine  *StateMachine
	payments PaymentCanceller
	tx       database.Transactor
	bus      *events.Bus
}

func NewOrderService(orders repository.OrderRepository, machine *StateMachine, payments PaymentCanceller, tx database.Transactor, bus *events.Bus) OrderService {
	return &orderService{orders: orders, machine: machine, payments: payments, tx: tx, bus: bus}
}

func (s *orderService) Get(ctx context.Context, p auth.Principal, id string) (*model.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(order.UserID) {
		return nil, apperr.Forbidden("you do not have access to this order")
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, p auth.Principal, q ListQuery) ([]model.Order, int64, error) {
	filter := repository.ListFilter{Status: q.Status}
	if !p.IsAdmin() {
		filter.UserID = p.UserID
	}
	return s.orders.List(ctx, filter, q.Offset, q.Limit)
}

func (s *orderService) Cancel(ctx context.Context, p auth.Principal, id string) (*model.Order, error) {
	ctx, batch := events.Collect(ctx)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		order, err := s.orders.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if !p.CanAccess(order.UserID) {
			return apperr.Forbidden("you do not have access to this order")
		}
		if order.Status != model.StatusPending {
			return apperr.Newf(apperr.KindUnprocessable, "cannot cancel an order that is %s", order.Status)
		}

		// 先关掉网关上的 intent，之后到达的 canceled webhook 会被当作已处理
		if err := s.payments.CancelOpenPayments(ctx, order.ID); err != nil {
			return err
		}
		cancelled, err := s.machine.Cancel(ctx, order.ID)
		if err != nil {
			return err
		}
		if !cancelled {
			return apperr.Unprocessable("order is no longer pending")
		}
		return nil
	})
	if err != nil {
		batch.Discard()
		return nil, err
	}
	batch.Flush(s.bus)
	return s.orders.GetByID(ctx, id)
}

func (s *orderService) Transition(ctx context.Context, p auth.Principal, id string, to model.Status) (*model.Order, error) {
	switch to {
	case model.StatusCancelled:
		return s.Cancel(ctx, p, id)
	case model.StatusConfirmed:
		return nil, apperr.Unprocessable("orders are confirmed by payment settlement, use /checkout/confirm")
	default:
		return nil, apperr.Validation("unsupported order status " + string(to))
	}
}
