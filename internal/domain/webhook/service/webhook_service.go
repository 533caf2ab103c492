package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order_payment_service/internal/domain/payment/gateway"
	paymentService "order_payment_service/internal/domain/payment/service"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/logger"
	"order_payment_service/pkg/metrics"

	"go.uber.org/zap"
)

// IntentReconciler 支付状态对账
type IntentReconciler interface {
	ApplyIntentSucceeded(ctx context.Context, intentID string) (paymentService.Outcome, error)
	ApplyIntentFailed(ctx context.Context, intentID, reason string) (paymentService.Outcome, error)
	ApplyIntentCanceled(ctx context.Context, intentID string) (paymentService.Outcome, error)
}

// RefundReconciler 退款状态对账
type RefundReconciler interface {
	ApplyGatewayRefund(ctx context.Context, r gateway.Refund) (paymentService.Outcome, error)
}

// Result 一次 webhook 处理的结果，用于日志和响应
type Result struct {
	EventID string
	Type    string
	Outcome paymentService.Outcome
}

type WebhookService interface {
	// Handle 验签后分发；签名或内容错误返回 BadRequest，其余错误由调用方返回 5xx 让网关重试
	Handle(ctx context.Context, payload []byte, signature string) (*Result, error)
}

type webhookService struct {
	gateway  gateway.PaymentGateway
	payments IntentReconciler
	refunds  RefundReconciler
	metrics  *metrics.MetricsCollector
}

func NewWebhookService(gw gateway.PaymentGateway, payments IntentReconciler, refunds RefundReconciler, m *metrics.MetricsCollector) WebhookService {
	return &webhookService{gateway: gw, payments: payments, refunds: refunds, metrics: m}
}

func (s *webhookService) Handle(ctx context.Context, payload []byte, signature string) (*Result, error) {
	start := time.Now()

	evt, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.metrics.RecordWebhook("unknown", "rejected", time.Since(start))
		if errors.Is(err, gateway.ErrInvalidSignature) {
			logger.Log.Warn("webhook signature rejected", zap.Error(err))
			return nil, apperr.Wrap(apperr.KindBadRequest, err, "invalid webhook signature")
		}
		logger.Log.Warn("webhook payload rejected", zap.Error(err))
		return nil, apperr.Wrap(apperr.KindBadRequest, err, "malformed webhook payload")
	}

	res := &Result{EventID: evt.ID, Type: evt.Type, Outcome: paymentService.OutcomeIgnored}
	res.Outcome, err = s.dispatch(ctx, evt)

	outcome := string(res.Outcome)
	if err != nil {
		outcome = "error"
	}
	s.metrics.RecordWebhook(evt.Type, outcome, time.Since(start))

	fields := []zap.Field{
		zap.String("event_id", evt.ID),
		zap.String("type", evt.Type),
		zap.String("intent_id", evt.IntentID),
		zap.String("outcome", outcome),
		zap.Duration("took", time.Since(start)),
	}
	if err != nil {
		logger.Log.Error("webhook processing failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	logger.Log.Info("webhook processed", fields...)
	return res, nil
}

func (s *webhookService) dispatch(ctx context.Context, evt *gateway.Event) (paymentService.Outcome, error) {
	switch evt.Type {
	case gateway.EventIntentSucceeded:
		return s.payments.ApplyIntentSucceeded(ctx, evt.IntentID)
	case gateway.EventIntentFailed:
		return s.payments.ApplyIntentFailed(ctx, evt.IntentID, evt.FailureMessage)
	case gateway.EventIntentCanceled:
		return s.payments.ApplyIntentCanceled(ctx, evt.IntentID)
	case gateway.EventChargeRefunded, gateway.EventRefundUpdated:
		refunds, err := s.refundsOf(ctx, evt)
		if err != nil {
			return "", err
		}
		// 一个 charge 事件可能带多笔退款，逐笔处理，有一笔生效即算 applied
		outcome := paymentService.OutcomeIgnored
		for _, r := range refunds {
			if r.IntentID == "" {
				r.IntentID = evt.IntentID
			}
			o, err := s.refunds.ApplyGatewayRefund(ctx, r)
			if err != nil {
				return "", err
			}
			outcome = merge(outcome, o)
		}
		return outcome, nil
	default:
		logger.Log.Debug("webhook event type not handled", zap.String("type", evt.Type))
		return paymentService.OutcomeIgnored, nil
	}
}

// refundsOf charge.refunded 没有内嵌退款时向网关查询
func (s *webhookService) refundsOf(ctx context.Context, evt *gateway.Event) ([]gateway.Refund, error) {
	if len(evt.Refunds) > 0 || evt.Type != gateway.EventChargeRefunded || evt.IntentID == "" {
		return evt.Refunds, nil
	}
	refunds, err := s.gateway.ListRefunds(ctx, evt.IntentID)
	if err != nil {
		return nil, fmt.Errorf("fetch refunds for %s: %w", evt.IntentID, err)
	}
	return refunds, nil
}

func merge(a, b paymentService.Outcome) paymentService.Outcome {
	rank := map[paymentService.Outcome]int{
		paymentService.OutcomeIgnored: 0,
		paymentService.OutcomeNoop:    1,
		paymentService.OutcomeApplied: 2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
