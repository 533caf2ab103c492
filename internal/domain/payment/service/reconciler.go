package service

import (
	"context"
	"time"

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
	"order_payment_service/pkg/metrics"

	"go.uber.org/zap"
)

// Outcome 一次对账的结果
type Outcome string

const (
	OutcomeApplied Outcome = "applied" // 本次完成了状态变更
	OutcomeNoop    Outcome = "noop"    // 已经处理过
	OutcomeIgnored Outcome = "ignored" // 与本系统无关的事件
)

// 状态变更来源，用于指标
const (
	SourceWebhook = "webhook"
	SourceConfirm = "confirm"
)

// Reconciler 把网关上的支付结果应用到本地账本
// webhook 与前端 confirm 都走这里，幂等由带条件的更新保证
type Reconciler struct {
	payments repository.PaymentRepository
	orders   orderRepo.OrderRepository
	machine  *orderService.StateMachine
	gateway  gateway.PaymentGateway
	tx       database.Transactor
	bus      *events.Bus
	metrics  *metrics.MetricsCollector
	now      func() time.Time
}

func NewReconciler(
	payments repository.PaymentRepository,
	orders orderRepo.OrderRepository,
	machine *orderService.StateMachine,
	gw gateway.PaymentGateway,
	tx database.Transactor,
	bus *events.Bus,
	m *metrics.MetricsCollector,
) *Reconciler {
	return &Reconciler{
		payments: payments,
		orders:   orders,
		machine:  machine,
		gateway:  gw,
		tx:       tx,
		bus:      bus,
		metrics:  m,
		now:      time.Now,
	}
}

// inTx 在事务内执行 fn，提交后发出事件
func (r *Reconciler) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, batch := events.Collect(ctx)
	if err := r.tx.WithinTransaction(ctx, fn); err != nil {
		batch.Discard()
		return err
	}
	batch.Flush(r.bus)
	return nil
}

// ApplyIntentSucceeded payment_intent.succeeded
func (r *Reconciler) ApplyIntentSucceeded(ctx context.Context, intentID string) (Outcome, error) {
	outcome := OutcomeIgnored
	err := r.inTx(ctx, func(ctx context.Context) error {
		payment, err := r.payments.GetByIntentID(ctx, intentID)
		if apperr.Is(err, apperr.KindNotFound) {
			logger.Log.Info("succeeded intent has no local payment", zap.String("intent_id", intentID))
			return nil
		}
		if err != nil {
			return err
		}
		outcome, err = r.settle(ctx, payment, SourceWebhook)
		return err
	})
	return outcome, err
}

// settle 支付成功：Payment -> SUCCEEDED，订单 -> CONFIRMED/PAID
func (r *Reconciler) settle(ctx context.Context, payment *model.Payment, source string) (Outcome, error) {
	applied, err := r.payments.MarkSucceeded(ctx, payment.ID, r.now())
	if err != nil {
		return "", err
	}
	if !applied {
		current, err := r.payments.GetByID(ctx, payment.ID)
		if err != nil {
			return "", err
		}
		if current.Status == model.StatusSucceeded {
			logger.Log.Debug("payment already succeeded", zap.String("payment_id", payment.ID), zap.String("source", source))
			return OutcomeNoop, nil
		}
		// 订单已经有另一笔成功支付，这笔钱需要退回
		if current.FailureReason != model.DuplicateCaptureReason {
			if err := r.payments.SetFailureReason(ctx, current.ID, model.DuplicateCaptureReason); err != nil {
				return "", err
			}
			current.FailureReason = model.DuplicateCaptureReason
			logger.Log.Error("second payment captured for an already paid order, refund required",
				zap.String("order_id", current.OrderID),
				zap.String("payment_id", current.ID),
				zap.String("intent_id", current.GatewayIntentID),
				zap.Int64("amount", current.Amount))
			events.Add(ctx, events.PaymentDuplicateCapture, current.OrderID, paymentPayload(current))
			return OutcomeApplied, nil
		}
		return OutcomeNoop, nil
	}

	payment.Status = model.StatusSucceeded
	r.metrics.RecordPaymentTransition(string(model.StatusSucceeded), source)
	events.Add(ctx, events.PaymentSucceeded, payment.OrderID, paymentPayload(payment))

	if _, err := r.machine.Confirm(ctx, payment.OrderID); err != nil {
		return "", err
	}
	logger.Log.Info("payment succeeded",
		zap.String("order_id", payment.OrderID),
		zap.String("payment_id", payment.ID),
		zap.String("source", source))
	return OutcomeApplied, nil
}

// ApplyIntentFailed payment_intent.payment_failed
// 订单保持 PENDING，只有最近一次尝试失败时订单 paymentStatus 才变为 FAILED
func (r *Reconciler) ApplyIntentFailed(ctx context.Context, intentID, reason string) (Outcome, error) {
	outcome := OutcomeIgnored
	err := r.inTx(ctx, func(ctx context.Context) error {
		payment, err := r.payments.GetByIntentID(ctx, intentID)
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		applied, err := r.payments.MarkFailed(ctx, payment.ID, reason)
		if err != nil {
			return err
		}
		if !applied {
			logger.Log.Debug("payment failure already applied or superseded",
				zap.String("payment_id", payment.ID), zap.String("status", string(payment.Status)))
			outcome = OutcomeNoop
			return nil
		}
		outcome = OutcomeApplied
		payment.Status = model.StatusFailed
		payment.FailureReason = reason
		r.metrics.RecordPaymentTransition(string(model.StatusFailed), SourceWebhook)
		events.Add(ctx, events.PaymentFailed, payment.OrderID, paymentPayload(payment))

		latest, err := r.payments.Latest(ctx, payment.OrderID)
		if err != nil {
			return err
		}
		if latest.ID != payment.ID {
			return nil
		}
		_, err = r.machine.PaymentFailed(ctx, payment.OrderID)
		return err
	})
	return outcome, err
}

// ApplyIntentCanceled payment_intent.canceled
// 订单上还有其他进行中或已成功的支付时不取消订单 (被新尝试替换掉的 intent 也会触发这个事件)
func (r *Reconciler) ApplyIntentCanceled(ctx context.Context, intentID string) (Outcome, error) {
	outcome := OutcomeIgnored
	err := r.inTx(ctx, func(ctx context.Context) error {
		payment, err := r.payments.GetByIntentID(ctx, intentID)
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		marked, err := r.payments.MarkCanceled(ctx, payment.ID)
		if err != nil {
			return err
		}
		outcome = OutcomeNoop
		if marked {
			outcome = OutcomeApplied
			r.metrics.RecordPaymentTransition(string(model.StatusCanceled), SourceWebhook)
		}

		sibling, err := r.payments.HasOpenOrSucceeded(ctx, payment.OrderID, payment.ID)
		if err != nil {
			return err
		}
		if sibling {
			return nil
		}
		cancelled, err := r.machine.Cancel(ctx, payment.OrderID)
		if err != nil {
			return err
		}
		if cancelled {
			outcome = OutcomeApplied
		}
		return nil
	})
	return outcome, err
}

// ConfirmFromClient 前端支付完成后主动确认
// 先向网关核实 intent 确实已成功，再走与 webhook 相同的条件更新
func (r *Reconciler) ConfirmFromClient(ctx context.Context, p auth.Principal, orderID, intentID string) (*orderModel.Order, error) {
	order, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(order.UserID) {
		return nil, apperr.Forbidden("you do not have access to this order")
	}

	payment, err := r.payments.GetByIntentID(ctx, intentID)
	if apperr.Is(err, apperr.KindNotFound) || (err == nil && payment.OrderID != order.ID) {
		return nil, apperr.Unprocessable("payment intent does not belong to this order")
	}
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case orderModel.StatusConfirmed:
		// webhook 已经先到了
		return order, nil
	case orderModel.StatusCancelled:
		return nil, apperr.Unprocessable("order has been cancelled")
	}

	intent, err := r.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnprocessable, err, "could not verify payment with the gateway")
	}
	if intent.Status != gateway.IntentSucceeded {
		return nil, apperr.Newf(apperr.KindUnprocessable, "payment has not succeeded (status %s)", intent.Status)
	}

	err = r.inTx(ctx, func(ctx context.Context) error {
		_, err := r.settle(ctx, payment, SourceConfirm)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.orders.GetByID(ctx, orderID)
}

func paymentPayload(p *model.Payment) events.PaymentPayload {
	return events.PaymentPayload{
		PaymentID:       p.ID,
		OrderID:         p.OrderID,
		UserID:          p.UserID,
		GatewayIntentID: p.GatewayIntentID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Status:          string(p.Status),
		FailureReason:   p.FailureReason,
	}
}
