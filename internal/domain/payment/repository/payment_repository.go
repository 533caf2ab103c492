package repository

import (
	"context"
	"errors"
	"time"

	"order_payment_service/internal/domain/payment/model"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/database"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListFilter struct {
	UserID  string
	OrderID string
	Status  model.Status
}

// PaymentRepository 支付记录仓储，状态变更都是带前置条件的更新
type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	GetByID(ctx context.Context, id string) (*model.Payment, error)
	GetByIntentID(ctx context.Context, intentID string) (*model.Payment, error)
	// LockByID SELECT ... FOR NO KEY UPDATE，串行化同一笔支付上的退款
	LockByID(ctx context.Context, id string) (*model.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]model.Payment, error)
	// Latest 订单最近一次支付尝试
	Latest(ctx context.Context, orderID string) (*model.Payment, error)
	List(ctx context.Context, filter ListFilter, offset, limit int) ([]model.Payment, int64, error)

	// MarkSucceeded 非 SUCCEEDED 且订单没有其他成功支付时才更新
	MarkSucceeded(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkFailed PENDING -> FAILED
	MarkFailed(ctx context.Context, id, reason string) (bool, error)
	// MarkCanceled PENDING/FAILED -> CANCELED
	MarkCanceled(ctx context.Context, id string) (bool, error)
	// SetFailureReason 只记录原因，不改状态
	SetFailureReason(ctx context.Context, id, reason string) error
	// HasOpenOrSucceeded 订单除 excludeID 外是否还有 PENDING 或 SUCCEEDED 的支付
	HasOpenOrSucceeded(ctx context.Context, orderID, excludeID string) (bool, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return database.Conn(ctx, r.db).Create(payment).Error
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*model.Payment, error) {
	return first(database.Conn(ctx, r.db).Where("id = ?", id))
}

func (r *paymentRepository) GetByIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	return first(database.Conn(ctx, r.db).Where("gateway_intent_id = ?", intentID))
}

func (r *paymentRepository) LockByID(ctx context.Context, id string) (*model.Payment, error) {
	return first(database.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "NO KEY UPDATE"}).
		Where("id = ?", id))
}

func (r *paymentRepository) Latest(ctx context.Context, orderID string) (*model.Payment, error) {
	return first(database.Conn(ctx, r.db).Where("order_id = ?", orderID).Order("created_at DESC"))
}

func first(q *gorm.DB) (*model.Payment, error) {
	var payment model.Payment
	err := q.First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("payment not found")
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]model.Payment, error) {
	var payments []model.Payment
	err := database.Conn(ctx, r.db).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) List(ctx context.Context, filter ListFilter, offset, limit int) ([]model.Payment, int64, error) {
	var payments []model.Payment
	var total int64

	q := database.Conn(ctx, r.db).Model(&model.Payment{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.OrderID != "" {
		q = q.Where("order_id = ?", filter.OrderID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&payments).Error
	return payments, total, err
}

func (r *paymentRepository) MarkSucceeded(ctx context.Context, id string, at time.Time) (bool, error) {
	// CANCELED 也允许：本地关闭和网关扣款可能交错，以网关结果为准
	// partial unique index (order_id) WHERE status = 'SUCCEEDED' 兜底并发
	return transition(
		database.Conn(ctx, r.db).
			Where("id = ? AND status IN ?", id, []model.Status{model.StatusPending, model.StatusFailed, model.StatusCanceled}).
			Where("NOT EXISTS (SELECT 1 FROM payments p2 WHERE p2.order_id = payments.order_id AND p2.status = ? AND p2.id <> payments.id)", model.StatusSucceeded),
		map[string]interface{}{
			"status":         model.StatusSucceeded,
			"paid_at":        at,
			"failure_reason": "",
			"updated_at":     at,
		})
}

func (r *paymentRepository) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	return transition(
		database.Conn(ctx, r.db).Where("id = ? AND status = ?", id, model.StatusPending),
		map[string]interface{}{
			"status":         model.StatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now(),
		})
}

func (r *paymentRepository) MarkCanceled(ctx context.Context, id string) (bool, error) {
	return transition(
		database.Conn(ctx, r.db).Where("id = ? AND status IN ?", id, []model.Status{model.StatusPending, model.StatusFailed}),
		map[string]interface{}{
			"status":     model.StatusCanceled,
			"updated_at": time.Now(),
		})
}

func transition(q *gorm.DB, fields map[string]interface{}) (bool, error) {
	result := q.Model(&model.Payment{}).UpdateColumns(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *paymentRepository) SetFailureReason(ctx context.Context, id, reason string) error {
	return database.Conn(ctx, r.db).Model(&model.Payment{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{"failure_reason": reason, "updated_at": time.Now()}).Error
}

func (r *paymentRepository) HasOpenOrSucceeded(ctx context.Context, orderID, excludeID string) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&model.Payment{}).
		Where("order_id = ? AND id <> ? AND status IN ?", orderID, excludeID,
			[]model.Status{model.StatusPending, model.StatusSucceeded}).
		Count(&count).Error
	return count > 0, err
}
