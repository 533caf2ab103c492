package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"order_payment_service/internal/pkg/config"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeGateway 基于 stripe-go 的网关实现
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	callTimeout   time.Duration
}

func NewStripeGateway(cfg config.StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is missing")
	}
	return &StripeGateway{
		api:           client.New(cfg.SecretKey, nil),
		webhookSecret: cfg.WebhookSecret,
		callTimeout:   cfg.CallTimeout,
	}, nil
}

func (g *StripeGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.callTimeout)
}

func (g *StripeGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", describe(err))
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent: %w", describe(err))
	}
	return toIntent(pi), nil
}

// CancelIntent 已经是终态的 intent 视为成功
func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	params.SetIdempotencyKey("cancel-" + intentID)
	_, err := g.api.PaymentIntents.Cancel(intentID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			return nil
		}
		return fmt.Errorf("cancel payment intent: %w", describe(err))
	}
	return nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, p CreateRefundParams) (*Refund, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	// Stripe 只接受固定的 reason 取值，原始原因放进 metadata
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(p.IntentID),
		Amount:        stripe.Int64(p.Amount),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	if p.Reason != "" {
		params.AddMetadata("reason", p.Reason)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	r, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", describe(err))
	}
	out := toRefund(r)
	if out.IntentID == "" {
		out.IntentID = p.IntentID
	}
	return &out, nil
}

func (g *StripeGateway) ListRefunds(ctx context.Context, intentID string) ([]Refund, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.RefundListParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	var out []Refund
	it := g.api.Refunds.List(params)
	for it.Next() {
		r := toRefund(it.Refund())
		if r.IntentID == "" {
			r.IntentID = intentID
		}
		out = append(out, r)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list refunds: %w", describe(err))
	}
	return out, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if signature == "" {
		return nil, ErrInvalidSignature
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrTooOld) || errors.Is(err, webhook.ErrInvalidHeader) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return normalize(evt)
}

// normalize 把 Stripe 事件转换成与网关无关的 Event
func normalize(evt stripe.Event) (*Event, error) {
	out := &Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data == nil {
		return out, nil
	}

	switch evt.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		out.IntentID = pi.ID
		out.Amount = pi.Amount
		out.Currency = string(pi.Currency)
		if pi.LastPaymentError != nil {
			out.FailureMessage = pi.LastPaymentError.Msg
		}
		if out.FailureMessage == "" && pi.CancellationReason != "" {
			out.FailureMessage = string(pi.CancellationReason)
		}

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if ch.PaymentIntent != nil {
			out.IntentID = ch.PaymentIntent.ID
		}
		out.Amount = ch.AmountRefunded
		out.Currency = string(ch.Currency)
		if ch.Refunds != nil {
			for _, r := range ch.Refunds.Data {
				ref := toRefund(r)
				if ref.IntentID == "" {
					ref.IntentID = out.IntentID
				}
				out.Refunds = append(out.Refunds, ref)
			}
		}

	case "charge.refund.updated", "refund.created", "refund.updated", "refund.failed":
		var r stripe.Refund
		if err := json.Unmarshal(evt.Data.Raw, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		out.Type = EventRefundUpdated
		ref := toRefund(&r)
		out.IntentID = ref.IntentID
		out.Amount = ref.Amount
		out.Currency = ref.Currency
		out.Refunds = []Refund{ref}
	}
	return out, nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}

func toRefund(r *stripe.Refund) Refund {
	out := Refund{
		ID:            r.ID,
		Amount:        r.Amount,
		Currency:      string(r.Currency),
		Status:        string(r.Status),
		FailureReason: string(r.FailureReason),
	}
	if r.PaymentIntent != nil {
		out.IntentID = r.PaymentIntent.ID
	}
	return out
}

// describe 保留 Stripe 返回的错误信息，便于排查
func describe(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return fmt.Errorf("%s (%s): %w", se.Msg, se.Code, err)
	}
	return err
}
