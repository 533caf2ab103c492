package service

import (
	"context"
	"time"

	orderService "order_payment_service/internal/domain/order/service"
	"order_payment_service/internal/domain/payment/gateway"
	paymentModel "order_payment_service/internal/domain/payment/model"
	paymentRepo "order_payment_service/internal/domain/payment/repository"
	paymentService "order_payment_service/internal/domain/payment/service"
	"order_payment_service/internal/domain/refund/model"
	"order_payment_service/internal/domain/refund/repository"
	"order_payment_service/internal/pkg/auth"
	"order_payment_service/internal/pkg/events"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/database"
	"order_payment_service/pkg/logger"
	"order_payment_service/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateInput struct {
	PaymentID string
	Amount    int64
	Reason    string
}

type ListQuery struct {
	Status model.Status
	Offset int
	Limit  int
}

type RefundService interface {
	// Create 管理员发起退款，只落 PENDING，到账以回调为准
	Create(ctx context.Context, p auth.Principal, in CreateInput) (*model.Refund, error)
	Get(ctx context.Context, p auth.Principal, id string) (*model.Refund, error)
	List(ctx context.Context, p auth.Principal, q ListQuery) ([]model.Refund, int64, error)
	ListByPayment(ctx context.Context, p auth.Principal, paymentID string) ([]model.Refund, error)

	// ApplyGatewayRefund 处理网关推送的退款状态，允许先于本地创建到达
	ApplyGatewayRefund(ctx context.Context, r gateway.Refund) (paymentService.Outcome, error)
}

type refundService struct {
	refunds  repository.RefundRepository
	payments paymentRepo.PaymentRepository
	machine  *orderService.StateMachine
	gateway  gateway.PaymentGateway
	tx       database.Transactor
	bus      *events.Bus
	metrics  *metrics.MetricsCollector
	now      func() time.Time
}

func NewRefundService(
	refunds repository.RefundRepository,
	payments paymentRepo.PaymentRepository,
	machine *orderService.StateMachine,
	gw gateway.PaymentGateway,
	tx database.Transactor,
	bus *events.Bus,
	m *metrics.MetricsCollector,
) RefundService {
	return &refundService{
		refunds:  refunds,
		payments: payments,
		machine:  machine,
		gateway:  gw,
		tx:       tx,
		bus:      bus,
		metrics:  m,
		now:      time.Now,
	}
}

func (s *refundService) Create(ctx context.Context, p auth.Principal, in CreateInput) (*model.Refund, error) {
	if !p.IsAdmin() {
		return nil, apperr.Forbidden("only admins can issue refunds")
	}
	if in.Amount <= 0 {
		return nil, apperr.Unprocessable("refund amount must be positive")
	}

	var refund *model.Refund
	ctx, batch := events.Collect(ctx)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		// 锁住支付行，同一笔支付的并发退款串行做额度校验
		payment, err := s.payments.LockByID(ctx, in.PaymentID)
		if err != nil {
			return err
		}
		if !payment.Refundable() {
			return apperr.Newf(apperr.KindUnprocessable, "cannot refund a payment that is %s", payment.Status)
		}

		active, err := s.refunds.SumActive(ctx, payment.ID)
		if err != nil {
			return err
		}
		if in.Amount+active > payment.Amount {
			return apperr.Newf(apperr.KindUnprocessable, "refund exceeds the refundable amount of %d", payment.Amount-active).
				With("paymentAmount", payment.Amount).
				With("alreadyRefunded", active)
		}

		refund = &model.Refund{
			PaymentID: payment.ID,
			OrderID:   payment.OrderID,
			UserID:    payment.UserID,
			Amount:    in.Amount,
			Currency:  payment.Currency,
			Reason:    in.Reason,
			Status:    model.StatusPending,
			CreatedBy: p.UserID,
		}
		refund.ID = uuid.NewString()

		gr, err := s.gateway.CreateRefund(ctx, gateway.CreateRefundParams{
			IntentID:       payment.GatewayIntentID,
			Amount:         in.Amount,
			Reason:         in.Reason,
			IdempotencyKey: refund.ID,
			Metadata: map[string]string{
				"refund_id":  refund.ID,
				"payment_id": payment.ID,
				"order_id":   payment.OrderID,
			},
		})
		if err != nil {
			logger.Log.Warn("create refund failed", zap.String("payment_id", payment.ID), zap.Error(err))
			return apperr.Wrap(apperr.KindUnprocessable, err, "payment gateway rejected the refund")
		}
		refund.GatewayRefundID = gr.ID

		created, err := s.refunds.CreateIfAbsent(ctx, refund)
		if err != nil {
			return err
		}
		if !created {
			existing, err := s.refunds.GetByGatewayID(ctx, gr.ID)
			if err != nil {
				return err
			}
			if err := s.refunds.FillDetails(ctx, existing.ID, in.Reason, p.UserID); err != nil {
				return err
			}
			existing.Reason, existing.CreatedBy = in.Reason, p.UserID
			refund = existing
			return nil
		}
		events.Add(ctx, events.RefundCreated, refund.OrderID, payload(refund))
		return nil
	})
	if err != nil {
		batch.Discard()
		return nil, err
	}
	batch.Flush(s.bus)

	s.metrics.RecordRefundCreated(refund.Currency, refund.Amount)
	logger.Log.Info("refund requested",
		zap.String("refund_id", refund.ID),
		zap.String("payment_id", refund.PaymentID),
		zap.Int64("amount", refund.Amount),
		zap.String("admin", p.UserID))
	return refund, nil
}

func (s *refundService) ApplyGatewayRefund(ctx context.Context, gr gateway.Refund) (paymentService.Outcome, error) {
	outcome := paymentService.OutcomeIgnored
	ctx, batch := events.Collect(ctx)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		payment, err := s.payments.GetByIntentID(ctx, gr.IntentID)
		if apperr.Is(err, apperr.KindNotFound) {
			logger.Log.Info("refund for unknown intent", zap.String("refund", gr.ID), zap.String("intent_id", gr.IntentID))
			return nil
		}
		if err != nil {
			return err
		}
		// 与 Create 使用同一把锁，本地创建的事务提交后才会继续
		if payment, err = s.payments.LockByID(ctx, payment.ID); err != nil {
			return err
		}

		refund, err := s.refunds.GetByGatewayID(ctx, gr.ID)
		if apperr.Is(err, apperr.KindNotFound) {
			// 网关后台直接发起的退款，或者本地记录尚未落库
			refund = &model.Refund{
				PaymentID:       payment.ID,
				OrderID:         payment.OrderID,
				UserID:          payment.UserID,
				GatewayRefundID: gr.ID,
				Amount:          gr.Amount,
				Currency:        payment.Currency,
				Status:          model.StatusPending,
			}
			if _, err := s.refunds.CreateIfAbsent(ctx, refund); err != nil {
				return err
			}
			if refund, err = s.refunds.GetByGatewayID(ctx, gr.ID); err != nil {
				return err
			}
			logger.Log.Warn("refund recorded from gateway event",
				zap.String("refund", gr.ID), zap.String("payment_id", payment.ID), zap.Int64("amount", gr.Amount))
		} else if err != nil {
			return err
		}

		switch gr.Status {
		case gateway.RefundSucceeded:
			applied, err := s.refunds.MarkSucceeded(ctx, refund.ID, s.now())
			if err != nil {
				return err
			}
			if !applied {
				outcome = paymentService.OutcomeNoop
				return nil
			}
			outcome = paymentService.OutcomeApplied
			refund.Status = model.StatusSucceeded

			succeeded, err := s.refunds.SumSucceeded(ctx, payment.ID)
			if err != nil {
				return err
			}
			if succeeded > payment.Amount {
				logger.Log.Error("refunded more than captured",
					zap.String("payment_id", payment.ID), zap.Int64("refunded", succeeded), zap.Int64("amount", payment.Amount))
			}
			// 重复扣款的退款不影响订单，订单的钱仍在成功的那笔支付上
			if payment.Status == paymentModel.StatusSucceeded {
				if _, err := s.machine.RefundSettled(ctx, payment.OrderID, succeeded >= payment.Amount); err != nil {
					return err
				}
			} else {
				logger.Log.Info("duplicate capture refunded",
					zap.String("payment_id", payment.ID), zap.String("order_id", payment.OrderID), zap.Int64("refunded", succeeded))
			}
			events.Add(ctx, events.RefundSucceeded, refund.OrderID, payload(refund))

		case gateway.RefundFailed, gateway.RefundCanceled:
			applied, err := s.refunds.MarkFailed(ctx, refund.ID, gr.FailureReason)
			if err != nil {
				return err
			}
			if !applied {
				outcome = paymentService.OutcomeNoop
				return nil
			}
			outcome = paymentService.OutcomeApplied
			refund.Status = model.StatusFailed
			events.Add(ctx, events.RefundFailed, refund.OrderID, payload(refund))

		default:
			// pending 等中间状态只需要保证记录存在
			outcome = paymentService.OutcomeNoop
		}
		return nil
	})
	if err != nil {
		batch.Discard()
		return "", err
	}
	batch.Flush(s.bus)
	return outcome, nil
}

func (s *refundService) Get(ctx context.Context, p auth.Principal, id string) (*model.Refund, error) {
	refund, err := s.refunds.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(refund.UserID) {
		return nil, apperr.Forbidden("you do not have access to this refund")
	}
	return refund, nil
}

func (s *refundService) List(ctx context.Context, p auth.Principal, q ListQuery) ([]model.Refund, int64, error) {
	filter := repository.ListFilter{Status: q.Status}
	if !p.IsAdmin() {
		filter.UserID = p.UserID
	}
	return s.refunds.List(ctx, filter, q.Offset, q.Limit)
}

func (s *refundService) ListByPayment(ctx context.Context, p auth.Principal, paymentID string) ([]model.Refund, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(payment.UserID) {
		return nil, apperr.Forbidden("you do not have access to this payment")
	}
	return s.refunds.ListByPayment(ctx, paymentID)
}

func payload(r *model.Refund) events.RefundPayload {
	return events.RefundPayload{
		RefundID:        r.ID,
		PaymentID:       r.PaymentID,
		OrderID:         r.OrderID,
		UserID:          r.UserID,
		GatewayRefundID: r.GatewayRefundID,
		Amount:          r.Amount,
		Currency:        r.Currency,
		Status:          string(r.Status),
	}
}
