package repository

import (
	"context"
	"errors"
	"time"

	"order_payment_service/internal/domain/order/model"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/database"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListFilter 订单列表过滤条件，空值表示不过滤
type ListFilter struct {
	UserID string
	Status model.Status
}

// OrderRepository 订单仓储
// 所有状态变更都是带前置条件的更新，返回 false 表示条件不满足 (已被其他请求处理)
type OrderRepository interface {
	// Create 连同明细一起写入
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id string) (*model.Order, error)
	// LockByID SELECT ... FOR UPDATE，必须在事务内调用
	LockByID(ctx context.Context, id string) (*model.Order, error)
	List(ctx context.Context, filter ListFilter, offset, limit int) ([]model.Order, int64, error)

	// Confirm PENDING -> CONFIRMED，同时 paymentStatus -> PAID
	Confirm(ctx context.Context, id string, at time.Time) (bool, error)
	// Cancel PENDING -> CANCELLED
	Cancel(ctx context.Context, id string, at time.Time) (bool, error)
	// SetPaymentStatus 仅当当前 paymentStatus 属于 from 时更新
	SetPaymentStatus(ctx context.Context, id string, to model.PaymentStatus, from ...model.PaymentStatus) (bool, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return database.Conn(ctx, r.db).Create(order).Error
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := database.Conn(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) LockByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := database.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) List(ctx context.Context, filter ListFilter, offset, limit int) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	q := database.Conn(ctx, r.db).Model(&model.Order{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Preload("Items").Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error
	return orders, total, err
}

func (r *orderRepository) Confirm(ctx context.Context, id string, at time.Time) (bool, error) {
	return guarded(database.Conn(ctx, r.db).Where("id = ? AND status = ?", id, model.StatusPending),
		map[string]interface{}{
			"status":         model.StatusConfirmed,
			"payment_status": model.PaymentPaid,
			"confirmed_at":   at,
			"updated_at":     at,
		})
}

func (r *orderRepository) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	return guarded(database.Conn(ctx, r.db).Where("id = ? AND status = ?", id, model.StatusPending),
		map[string]interface{}{
			"status":       model.StatusCancelled,
			"cancelled_at": at,
			"updated_at":   at,
		})
}

func (r *orderRepository) SetPaymentStatus(ctx context.Context, id string, to model.PaymentStatus, from ...model.PaymentStatus) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("SetPaymentStatus requires at least one source status")
	}
	return guarded(database.Conn(ctx, r.db).Where("id = ? AND payment_status IN ?", id, from),
		map[string]interface{}{
			"payment_status": to,
			"updated_at":     time.Now(),
		})
}

func guarded(q *gorm.DB, fields map[string]interface{}) (bool, error) {
	result := q.Model(&model.Order{}).UpdateColumns(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
