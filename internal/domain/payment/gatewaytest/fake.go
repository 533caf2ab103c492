// Package gatewaytest 提供内存版支付网关，供测试使用
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"order_payment_service/internal/domain/payment/gateway"
)

// Fake 可编程的内存网关
// webhook 的签名就是 Secret 本身，payload 为 gateway.Event 的 JSON
type Fake struct {
	mu sync.Mutex

	Secret string

	// 注入的错误，非 nil 时对应调用直接失败
	CreateIntentErr error
	RetrieveErr     error
	CancelErr       error
	CreateRefundErr error
	ListRefundsErr  error

	Intents  map[string]*gateway.Intent
	Refunds  map[string]*gateway.Refund
	Canceled []string
	seq      int
}

func New() *Fake {
	return &Fake{
		Secret:  "whsec_fake",
		Intents: make(map[string]*gateway.Intent),
		Refunds: make(map[string]*gateway.Refund),
	}
}

var _ gateway.PaymentGateway = (*Fake)(nil)

func (f *Fake) CreateIntent(ctx context.Context, p gateway.CreateIntentParams) (*gateway.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateIntentErr != nil {
		return nil, f.CreateIntentErr
	}
	f.seq++
	id := fmt.Sprintf("pi_fake_%d", f.seq)
	in := &gateway.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       gateway.IntentRequiresPaymentMethod,
		Amount:       p.Amount,
		Currency:     p.Currency,
		Metadata:     p.Metadata,
	}
	f.Intents[id] = in
	cp := *in
	return &cp, nil
}

func (f *Fake) RetrieveIntent(ctx context.Context, id string) (*gateway.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RetrieveErr != nil {
		return nil, f.RetrieveErr
	}
	in, ok := f.Intents[id]
	if !ok {
		return nil, fmt.Errorf("no such payment intent: %s", id)
	}
	cp := *in
	return &cp, nil
}

func (f *Fake) CancelIntent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CancelErr != nil {
		return f.CancelErr
	}
	if in, ok := f.Intents[id]; ok && in.Status != gateway.IntentSucceeded {
		in.Status = gateway.IntentCanceled
	}
	f.Canceled = append(f.Canceled, id)
	return nil
}

func (f *Fake) CreateRefund(ctx context.Context, p gateway.CreateRefundParams) (*gateway.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateRefundErr != nil {
		return nil, f.CreateRefundErr
	}
	f.seq++
	r := &gateway.Refund{
		ID:       fmt.Sprintf("re_fake_%d", f.seq),
		IntentID: p.IntentID,
		Amount:   p.Amount,
		Status:   gateway.RefundPending,
	}
	if in, ok := f.Intents[p.IntentID]; ok {
		r.Currency = in.Currency
	}
	f.Refunds[r.ID] = r
	cp := *r
	return &cp, nil
}

func (f *Fake) ListRefunds(ctx context.Context, intentID string) ([]gateway.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListRefundsErr != nil {
		return nil, f.ListRefundsErr
	}
	var out []gateway.Refund
	for _, r := range f.Refunds {
		if r.IntentID == intentID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) ParseWebhook(payload []byte, signature string) (*gateway.Event, error) {
	if signature == "" || signature != f.Secret {
		return nil, gateway.ErrInvalidSignature
	}
	var evt gateway.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedEvent, err)
	}
	return &evt, nil
}

// SetIntentStatus 模拟客户端在网关侧完成支付
func (f *Fake) SetIntentStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in, ok := f.Intents[id]; ok {
		in.Status = status
	}
}

// Payload 构造一个可被 ParseWebhook 接受的请求体
func Payload(evt gateway.Event) []byte {
	b, _ := json.Marshal(evt)
	return b
}

// SetRefundStatus 模拟网关侧退款结算
func (f *Fake) SetRefundStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.Refunds[id]; ok {
		r.Status = status
	}
}
