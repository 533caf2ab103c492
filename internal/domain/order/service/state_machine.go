package service

import (
	"context"
	"time"

	"order_payment_service/internal/domain/order/model"
	"order_payment_service/internal/domain/order/repository"
	"order_payment_service/internal/pkg/events"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/logger"

	"go.uber.org/zap"
)

// ConfirmationHook 订单确认时在同一事务内执行 (开票、创建发货单)
type ConfirmationHook interface {
	OnOrderConfirmed(ctx context.Context, order *model.Order) error
}

// CancellationHook 订单取消时在同一事务内执行 (释放优惠券)
type CancellationHook interface {
	OnOrderCancelled(ctx context.Context, order *model.Order) error
}

// ConfirmResult 确认结果
type ConfirmResult int

const (
	// Confirmed 本次调用完成了 PENDING -> CONFIRMED
	Confirmed ConfirmResult = iota
	// AlreadyConfirmed 之前已经确认过
	AlreadyConfirmed
	// CapturedAfterCancel 订单已取消但钱已经扣了，需要人工退款
	CapturedAfterCancel
)

// StateMachine 订单状态机
// 所有方法都要求调用方已开启事务，事件通过 events.Add 在提交后发出
type StateMachine struct {
	orders    repository.OrderRepository
	onConfirm []ConfirmationHook
	onCancel  []CancellationHook
	now       func() time.Time
}

func NewStateMachine(orders repository.OrderRepository, onConfirm []ConfirmationHook, onCancel []CancellationHook) *StateMachine {
	return &StateMachine{orders: orders, onConfirm: onConfirm, onCancel: onCancel, now: time.Now}
}

// Confirm 支付成功后确认订单
func (m *StateMachine) Confirm(ctx context.Context, orderID string) (ConfirmResult, error) {
	applied, err := m.orders.Confirm(ctx, orderID, m.now())
	if err != nil {
		return 0, err
	}
	order, err := m.orders.GetByID(ctx, orderID)
	if err != nil {
		return 0, err
	}

	if applied {
		for _, hook := range m.onConfirm {
			if err := hook.OnOrderConfirmed(ctx, order); err != nil {
				return 0, err
			}
		}
		events.Add(ctx, events.OrderConfirmed, order.ID, Payload(order))
		logger.Log.Info("order confirmed", zap.String("order_id", order.ID))
		return Confirmed, nil
	}

	switch order.Status {
	case model.StatusConfirmed:
		logger.Log.Debug("order already confirmed", zap.String("order_id", order.ID))
		return AlreadyConfirmed, nil
	case model.StatusCancelled:
		// 订单状态保持 CANCELLED，只记录已收款，等待运营退款
		if _, err := m.orders.SetPaymentStatus(ctx, order.ID, model.PaymentPaid, model.PaymentUnpaid, model.PaymentFailed); err != nil {
			return 0, err
		}
		order.PaymentStatus = model.PaymentPaid
		logger.Log.Warn("payment captured on cancelled order, refund required",
			zap.String("order_id", order.ID), zap.String("user_id", order.UserID), zap.Int64("total", order.TotalAmount))
		events.Add(ctx, events.PaymentCapturedAfterCancel, order.ID, Payload(order))
		return CapturedAfterCancel, nil
	default:
		return 0, apperr.Newf(apperr.KindInternal, "order %s is %s after a failed confirm", order.ID, order.Status)
	}
}

// Cancel PENDING -> CANCELLED，订单不是 PENDING 时返回 false
func (m *StateMachine) Cancel(ctx context.Context, orderID string) (bool, error) {
	applied, err := m.orders.Cancel(ctx, orderID, m.now())
	if err != nil || !applied {
		return false, err
	}
	order, err := m.orders.GetByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	for _, hook := range m.onCancel {
		if err := hook.OnOrderCancelled(ctx, order); err != nil {
			return false, err
		}
	}
	events.Add(ctx, events.OrderCancelled, order.ID, Payload(order))
	logger.Log.Info("order cancelled", zap.String("order_id", order.ID))
	return true, nil
}

// PaymentFailed 最近一次支付失败，订单保持 PENDING 等待重试
func (m *StateMachine) PaymentFailed(ctx context.Context, orderID string) (bool, error) {
	return m.orders.SetPaymentStatus(ctx, orderID, model.PaymentFailed, model.PaymentUnpaid)
}

// PaymentRetried 新的支付尝试开始，FAILED 回到 UNPAID
func (m *StateMachine) PaymentRetried(ctx context.Context, orderID string) (bool, error) {
	return m.orders.SetPaymentStatus(ctx, orderID, model.PaymentUnpaid, model.PaymentFailed)
}

// RefundSettled 退款到账后更新订单的支付状态
func (m *StateMachine) RefundSettled(ctx context.Context, orderID string, fully bool) (bool, error) {
	if fully {
		return m.orders.SetPaymentStatus(ctx, orderID, model.PaymentRefunded, model.PaymentPaid, model.PaymentPartiallyRefunded)
	}
	return m.orders.SetPaymentStatus(ctx, orderID, model.PaymentPartiallyRefunded, model.PaymentPaid)
}

// Payload 订单事件内容
func Payload(o *model.Order) events.OrderPayload {
	return events.OrderPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Total:         o.TotalAmount,
		Currency:      o.Currency,
	}
}
