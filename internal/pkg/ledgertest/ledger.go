// Package ledgertest 内存版订单/支付/退款/发票仓储，供跨模块的流程测试使用
// 事务串行执行，失败时整体回滚到快照，带前置条件的更新与 SQL 版本语义一致
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	invoiceModel "order_payment_service/internal/domain/invoice/model"
	invoiceRepo "order_payment_service/internal/domain/invoice/repository"
	orderModel "order_payment_service/internal/domain/order/model"
	orderRepo "order_payment_service/internal/domain/order/repository"
	paymentModel "order_payment_service/internal/domain/payment/model"
	paymentRepo "order_payment_service/internal/domain/payment/repository"
	refundModel "order_payment_service/internal/domain/refund/model"
	refundRepo "order_payment_service/internal/domain/refund/repository"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/database"

	"github.com/google/uuid"
)

type txKey struct{}

// Store 所有表共用一把锁
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	// WriteErr 非 nil 时所有写操作直接失败，模拟数据库故障
	WriteErr error

	orders    map[string]orderModel.Order
	payments  map[string]paymentModel.Payment
	refunds   map[string]refundModel.Refund
	invoices  map[string]invoiceModel.Invoice
	sequences map[int]int64

	clock time.Time
}

func New() *Store {
	return &Store{
		orders:    make(map[string]orderModel.Order),
		payments:  make(map[string]paymentModel.Payment),
		refunds:   make(map[string]refundModel.Refund),
		invoices:  make(map[string]invoiceModel.Invoice),
		sequences: make(map[int]int64),
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

var _ database.Transactor = (*Store)(nil)

// WithinTransaction 嵌套调用直接加入外层事务
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	orders    map[string]orderModel.Order
	payments  map[string]paymentModel.Payment
	refunds   map[string]refundModel.Refund
	invoices  map[string]invoiceModel.Invoice
	sequences map[int]int64
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		orders:    clone(s.orders),
		payments:  clone(s.payments),
		refunds:   clone(s.refunds),
		invoices:  clone(s.invoices),
		sequences: clone(s.sequences),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders, s.payments, s.refunds, s.invoices, s.sequences =
		snap.orders, snap.payments, snap.refunds, snap.invoices, snap.sequences
}

func clone[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// tick 单调递增的创建时间，保证 Latest 的顺序确定
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *Store) Orders() orderRepo.OrderRepository { return &orders{s} }
func (s *Store) Payments() paymentRepo.PaymentRepository { return &payments{s} }
func (s *Store) Refunds() refundRepo.RefundRepository { return &refunds{s} }
func (s *Store) Invoices() invoiceRepo.InvoiceRepository { return &invoices{s} }

// Order 测试断言用，返回当前已提交的快照
func (s *Store) Order(id string) orderModel.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *Store) PaymentsOf(orderID string) []paymentModel.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paymentsOf(orderID)
}

func (s *Store) paymentsOf(orderID string) []paymentModel.Payment {
	var out []paymentModel.Payment
	for _, p := range s.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) RefundsOf(paymentID string) []refundModel.Refund {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refundsOf(paymentID)
}

func (s *Store) refundsOf(paymentID string) []refundModel.Refund {
	var out []refundModel.Refund
	for _, r := range s.refunds {
		if r.PaymentID == paymentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) InvoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invoices)
}

func page[T any](list []T, offset, limit int) []T {
	if offset >= len(list) {
		return []T{}
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end]
}

// ---- orders ----

type orders struct{ s *Store }

func (r *orders) Create(ctx context.Context, o *orderModel.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.WriteErr != nil {
		return r.s.WriteErr
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt = r.s.tick()
	o.UpdatedAt = o.CreatedAt
	for i := range o.Items {
		if o.Items[i].ID == "" {
			o.Items[i].ID = uuid.NewString()
		}
		o.Items[i].OrderID = o.ID
	}
	cp := *o
	cp.Items = append([]orderModel.OrderItem(nil), o.Items...)
	r.s.orders[o.ID] = cp
	return nil
}

func (r *orders) GetByID(ctx context.Context, id string) (*orderModel.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order not found")
	}
	return &o, nil
}

func (r *orders) LockByID(ctx context.Context, id string) (*orderModel.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *orders) List(ctx context.Context, f orderRepo.ListFilter, offset, limit int) ([]orderModel.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []orderModel.Order
	for _, o := range r.s.orders {
		if (f.UserID == "" || o.UserID == f.UserID) && (f.Status == "" || o.Status == f.Status) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, offset, limit), int64(len(out)), nil
}

func (r *orders) update(id string, cond func(o *orderModel.Order) bool, apply func(o *orderModel.Order)) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.WriteErr != nil {
		return false, r.s.WriteErr
	}
	o, ok := r.s.orders[id]
	if !ok || !cond(&o) {
		return false, nil
	}
	apply(&o)
	o.UpdatedAt = r.s.tick()
	r.s.orders[id] = o
	return true, nil
}

func (r *orders) Confirm(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.update(id,
		func(o *orderModel.Order) bool { return o.Status == orderModel.StatusPending },
		func(o *orderModel.Order) {
			o.Status = orderModel.StatusConfirmed
			o.PaymentStatus = orderModel.PaymentPaid
			o.ConfirmedAt = &at
		})
}

func (r *orders) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.update(id,
		func(o *orderModel.Order) bool { return o.Status == orderModel.StatusPending },
		func(o *orderModel.Order) {
			o.Status = orderModel.StatusCancelled
			o.CancelledAt = &at
		})
}

func (r *orders) SetPaymentStatus(ctx context.Context, id string, to orderModel.PaymentStatus, from ...orderModel.PaymentStatus) (bool, error) {
	return r.update(id,
		func(o *orderModel.Order) bool {
			for _, f := range from {
				if o.PaymentStatus == f {
					return true
				}
			}
			return false
		},
		func(o *orderModel.Order) { o.PaymentStatus = to })
}

// ---- payments ----

type payments struct{ s *Store }

func (r *payments) Create(ctx context.Context, p *paymentModel.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.WriteErr != nil {
		return r.s.WriteErr
	}
	for _, existing := range r.s.payments {
		if existing.GatewayIntentID == p.GatewayIntentID {
			return apperr.Conflict("duplicate gateway intent")
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = r.s.tick()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	cp.ClientSecret = ""
	r.s.payments[p.ID] = cp
	return nil
}

func (r *payments) find(match func(p paymentModel.Payment) bool) (*paymentModel.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if match(p) {
			return &p, nil
		}
	}
	return nil, apperr.NotFound("payment not found")
}

func (r *payments) GetByID(ctx context.Context, id string) (*paymentModel.Payment, error) {
	return r.find(func(p paymentModel.Payment) bool { return p.ID == id })
}

func (r *payments) GetByIntentID(ctx context.Context, intentID string) (*paymentModel.Payment, error) {
	return r.find(func(p paymentModel.Payment) bool { return p.GatewayIntentID == intentID })
}

func (r *payments) LockByID(ctx context.Context, id string) (*paymentModel.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *payments) ListByOrder(ctx context.Context, orderID string) ([]paymentModel.Payment, error) {
	return r.s.PaymentsOf(orderID), nil
}

func (r *payments) Latest(ctx context.Context, orderID string) (*paymentModel.Payment, error) {
	list := r.s.PaymentsOf(orderID)
	if len(list) == 0 {
		return nil, apperr.NotFound("payment not found")
	}
	return &list[len(list)-1], nil
}

func (r *payments) List(ctx context.Context, f paymentRepo.ListFilter, offset, limit int) ([]paymentModel.Payment, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []paymentModel.Payment
	for _, p := range r.s.payments {
		if (f.UserID == "" || p.UserID == f.UserID) &&
			(f.OrderID == "" || p.OrderID == f.OrderID) &&
			(f.Status == "" || p.Status == f.Status) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, offset, limit), int64(len(out)), nil
}

func (r *payments) update(id string, cond func(p *paymentModel.Payment) bool, apply func(p *paymentModel.Payment)) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.WriteErr != nil {
		return false, r.s.WriteErr
	}
	p, ok := r.s.payments[id]
	if !ok || !cond(&p) {
		return false, nil
	}
	apply(&p)
	p.UpdatedAt = r.s.tick()
	r.s.payments[id] = p
	return true, nil
}

func in[T comparable](v T, set ...T) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

func (r *payments) MarkSucceeded(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.update(id,
		func(p *paymentModel.Payment) bool {
			if !in(p.Status, paymentModel.StatusPending, paymentModel.StatusFailed, paymentModel.StatusCanceled) {
				return false
			}
			for _, other := range r.s.payments {
				if other.OrderID == p.OrderID && other.ID != p.ID && other.Status == paymentModel.StatusSucceeded {
					return false
				}
			}
			return true
		},
		func(p *paymentModel.Payment) {
			p.Status = paymentModel.StatusSucceeded
			p.PaidAt = &at
			p.FailureReason = ""
		})
}

func (r *payments) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	return r.update(id,
		func(p *paymentModel.Payment) bool { return p.Status == paymentModel.StatusPending },
		func(p *paymentModel.Payment) {
			p.Status = paymentModel.StatusFailed
			p.FailureReason = reason
		})
}

func (r *payments) MarkCanceled(ctx context.Context, id string) (bool, error) {
	return r.update(id,
		func(p *paymentModel.Payment) bool {
			return in(p.Status, paymentModel.StatusPending, paymentModel.StatusFailed)
		},
		func(p *paymentModel.Payment) { p.Status = paymentModel.StatusCanceled })
}

func (r *payments) SetFailureReason(ctx context.Context, id, reason string) error {
	_, err := r.update(id,
		func(p *paymentModel.Payment) bool { return true },
		func(p *paymentModel.Payment) { p.FailureReason = reason })
	return err
}

func (r *payments) HasOpenOrSucceeded(ctx context.Context, orderID, excludeID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.OrderID == orderID && p.ID != excludeID &&
			in(p.Status, paymentModel.StatusPending, paymentModel.StatusSucceeded) {
			return true, nil
		}
	}
	return false, nil
}

// ---- refunds ----

type refunds struct{ s *Store }

func (r *refunds) CreateIfAbsent(ctx context.Context, refund *refundModel.Refund) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.WriteErr != nil {
		return false, r.s.WriteErr
	}
	for _, existing := range r.s.refunds {
		if existing.GatewayRefundID == refund.GatewayRefundID {
			return false, nil
		}
	}
	if refund.ID == "" {
		refund.ID = uuid.NewString()
	}
	refund.CreatedAt = r.s.tick()
	refund.UpdatedAt = refund.CreatedAt
	r.s.refunds[refund.ID] = *refund
	return true, nil
}

func (r *refunds) find(match func(refundModel.Refund) bool) (*refundModel.Refund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rf := range r.s.refunds {
		if match(rf) {
			return &rf, nil
		}
	}
	return nil, apperr.NotFound("refund not found")
}

func (r *refunds) GetByID(ctx context.Context, id string) (*refundModel.Refund, error) {
	return r.find(func(rf refundModel.Refund) bool { return rf.ID == id })
}

func (r *refunds) GetByGatewayID(ctx context.Context, gatewayRefundID string) (*refundModel.Refund, error) {
	return r.find(func(rf refundModel.Refund) bool { return rf.GatewayRefundID == gatewayRefundID })
}

func (r *refunds) ListByPayment(ctx context.Context, paymentID string) ([]refundModel.Refund, error) {
	return r.s.RefundsOf(paymentID), nil
}

func (r *refunds) List(ctx context.Context, f refundRepo.ListFilter, offset, limit int) ([]refundModel.Refund, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []refundModel.Refund
	for _, rf := range r.s.refunds {
		if (f.UserID == "" || rf.UserID == f.UserID) &&
			(f.PaymentID == "" || rf.PaymentID == f.PaymentID) &&
			(f.Status == "" || rf.Status == f.Status) {
			out = append(out, rf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, offset, limit), int64(len(out)), nil
}

func (r *refunds) sum(paymentID string, statuses ...refundModel.Status) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, rf := range r.s.refunds {
		if rf.PaymentID == paymentID && in(rf.Status, statuses...) {
			total += rf.Amount
		}
	}
	return total
}

func (r *refunds) SumActive(ctx context.Context, paymentID string) (int64, error) {
	return r.sum(paymentID, refundModel.StatusPending, refundModel.StatusSucceeded), nil
}

func (r *refunds) SumSucceeded(ctx context.Context, paymentID string) (int64, error) {
	return r.sum(paymentID, refundModel.StatusSucceeded), nil
}

func (r *refunds) update(id string, cond func(*refundModel.Refund) bool, apply func(*refundModel.Refund)) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.WriteErr != nil {
		return false, r.s.WriteErr
	}
	rf, ok := r.s.refunds[id]
	if !ok || !cond(&rf) {
		return false, nil
	}
	apply(&rf)
	rf.UpdatedAt = r.s.tick()
	r.s.refunds[id] = rf
	return true, nil
}

func (r *refunds) MarkSucceeded(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.update(id,
		func(rf *refundModel.Refund) bool { return rf.Status == refundModel.StatusPending },
		func(rf *refundModel.Refund) {
			rf.Status = refundModel.StatusSucceeded
			rf.SucceededAt = &at
		})
}

func (r *refunds) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	return r.update(id,
		func(rf *refundModel.Refund) bool { return rf.Status == refundModel.StatusPending },
		func(rf *refundModel.Refund) {
			rf.Status = refundModel.StatusFailed
			rf.FailureReason = reason
		})
}

func (r *refunds) FillDetails(ctx context.Context, id, reason, createdBy string) error {
	_, err := r.update(id,
		func(*refundModel.Refund) bool { return true },
		func(rf *refundModel.Refund) {
			rf.Reason = reason
			rf.CreatedBy = createdBy
		})
	return err
}

// ---- invoices ----

type invoices struct{ s *Store }

func (r *invoices) CreateIfAbsent(ctx context.Context, inv *invoiceModel.Invoice) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.WriteErr != nil {
		return false, r.s.WriteErr
	}
	for _, existing := range r.s.invoices {
		if existing.OrderID == inv.OrderID {
			return false, nil
		}
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.CreatedAt = r.s.tick()
	inv.UpdatedAt = inv.CreatedAt
	r.s.invoices[inv.ID] = *inv
	return true, nil
}

func (r *invoices) find(match func(invoiceModel.Invoice) bool) (*invoiceModel.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inv := range r.s.invoices {
		if match(inv) {
			return &inv, nil
		}
	}
	return nil, apperr.NotFound("invoice not found")
}

func (r *invoices) GetByID(ctx context.Context, id string) (*invoiceModel.Invoice, error) {
	return r.find(func(inv invoiceModel.Invoice) bool { return inv.ID == id })
}

func (r *invoices) GetByOrderID(ctx context.Context, orderID string) (*invoiceModel.Invoice, error) {
	return r.find(func(inv invoiceModel.Invoice) bool { return inv.OrderID == orderID })
}

func (r *invoices) List(ctx context.Context, userID string, offset, limit int) ([]invoiceModel.Invoice, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []invoiceModel.Invoice
	for _, inv := range r.s.invoices {
		if userID == "" || inv.UserID == userID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return page(out, offset, limit), int64(len(out)), nil
}

func (r *invoices) Void(ctx context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.WriteErr != nil {
		return false, r.s.WriteErr
	}
	inv, ok := r.s.invoices[id]
	if !ok || inv.Status != invoiceModel.StatusIssued {
		return false, nil
	}
	inv.Status = invoiceModel.StatusVoid
	inv.VoidedAt = &at
	inv.UpdatedAt = at
	r.s.invoices[id] = inv
	return true, nil
}

func (r *invoices) NextNumber(ctx context.Context, year int) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.WriteErr != nil {
		return 0, r.s.WriteErr
	}
	r.s.sequences[year]++
	return r.s.sequences[year], nil
}
