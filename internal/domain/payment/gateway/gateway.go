package gateway

import (
	"context"
	"errors"
)

// 网关侧 PaymentIntent 状态，取值与 Stripe 一致
const (
	IntentSucceeded             = "succeeded"
	IntentProcessing            = "processing"
	IntentRequiresPaymentMethod = "requires_payment_method"
	IntentRequiresConfirmation  = "requires_confirmation"
	IntentRequiresAction        = "requires_action"
	IntentCanceled              = "canceled"
)

// 网关侧退款状态
const (
	RefundPending   = "pending"
	RefundSucceeded = "succeeded"
	RefundFailed    = "failed"
	RefundCanceled  = "canceled"
)

// 归一化后的 webhook 事件类型
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventIntentCanceled  = "payment_intent.canceled"
	EventChargeRefunded  = "charge.refunded"
	EventRefundUpdated   = "charge.refund.updated"
)

// ErrInvalidSignature webhook 签名校验失败
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ErrMalformedEvent webhook 内容无法解析
var ErrMalformedEvent = errors.New("malformed webhook event")

type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

type CreateIntentParams struct {
	Amount         int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

type Refund struct {
	ID            string
	IntentID      string
	Amount        int64
	Currency      string
	Status        string
	FailureReason string
}

type CreateRefundParams struct {
	IntentID       string
	Amount         int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// Event 已验签的网关事件
type Event struct {
	ID             string
	Type           string
	IntentID       string
	Amount         int64
	Currency       string
	FailureMessage string
	Refunds        []Refund // charge.refunded 的 charge 对象通常不再内嵌退款列表，此时为空
}

// PaymentGateway 支付网关
// 调用方负责传入带超时的 ctx，失败时整个事务回滚
type PaymentGateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
	CreateRefund(ctx context.Context, params CreateRefundParams) (*Refund, error)
	// ListRefunds 查询某个 intent 上的全部退款
	ListRefunds(ctx context.Context, intentID string) ([]Refund, error)

	// ParseWebhook 对原始请求体验签并解析，签名错误返回 ErrInvalidSignature
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
