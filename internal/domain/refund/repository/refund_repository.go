package repository

import (
	"context"
	"errors"
	"time"

	"order_payment_service/internal/domain/refund/model"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/database"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListFilter struct {
	UserID    string
	PaymentID string
	Status    model.Status
}

type RefundRepository interface {
	// CreateIfAbsent 以网关退款 ID 去重，已存在返回 false
	CreateIfAbsent(ctx context.Context, refund *model.Refund) (bool, error)
	GetByID(ctx context.Context, id string) (*model.Refund, error)
	GetByGatewayID(ctx context.Context, gatewayRefundID string) (*model.Refund, error)
	ListByPayment(ctx context.Context, paymentID string) ([]model.Refund, error)
	List(ctx context.Context, filter ListFilter, offset, limit int) ([]model.Refund, int64, error)

	// SumActive PENDING + SUCCEEDED 退款总额，用于额度校验
	SumActive(ctx context.Context, paymentID string) (int64, error)
	SumSucceeded(ctx context.Context, paymentID string) (int64, error)

	// MarkSucceeded PENDING -> SUCCEEDED
	MarkSucceeded(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkFailed PENDING -> FAILED
	MarkFailed(ctx context.Context, id, reason string) (bool, error)
	// FillDetails 回调先于本地创建落库时补上原因和操作人
	FillDetails(ctx context.Context, id, reason, createdBy string) error
}

type refundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) RefundRepository {
	return &refundRepository{db: db}
}

func (r *refundRepository) CreateIfAbsent(ctx context.Context, refund *model.Refund) (bool, error) {
	result := database.Conn(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "gateway_refund_id"}}, DoNothing: true}).
		Create(refund)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *refundRepository) GetByID(ctx context.Context, id string) (*model.Refund, error) {
	return first(database.Conn(ctx, r.db).Where("id = ?", id))
}

func (r *refundRepository) GetByGatewayID(ctx context.Context, gatewayRefundID string) (*model.Refund, error) {
	return first(database.Conn(ctx, r.db).Where("gateway_refund_id = ?", gatewayRefundID))
}

func first(q *gorm.DB) (*model.Refund, error) {
	var refund model.Refund
	err := q.First(&refund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("refund not found")
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *refundRepository) ListByPayment(ctx context.Context, paymentID string) ([]model.Refund, error) {
	var refunds []model.Refund
	err := database.Conn(ctx, r.db).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&refunds).Error
	return refunds, err
}

func (r *refundRepository) List(ctx context.Context, filter ListFilter, offset, limit int) ([]model.Refund, int64, error) {
	var refunds []model.Refund
	var total int64

	q := database.Conn(ctx, r.db).Model(&model.Refund{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.PaymentID != "" {
		q = q.Where("payment_id = ?", filter.PaymentID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&refunds).Error
	return refunds, total, err
}

func (r *refundRepository) SumActive(ctx context.Context, paymentID string) (int64, error) {
	return r.sum(ctx, paymentID, model.StatusPending, model.StatusSucceeded)
}

func (r *refundRepository) SumSucceeded(ctx context.Context, paymentID string) (int64, error) {
	return r.sum(ctx, paymentID, model.StatusSucceeded)
}

func (r *refundRepository) sum(ctx context.Context, paymentID string, statuses ...model.Status) (int64, error) {
	var total int64
	err := database.Conn(ctx, r.db).Model(&model.Refund{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("payment_id = ? AND status IN ?", paymentID, statuses).
		Scan(&total).Error
	return total, err
}

func (r *refundRepository) MarkSucceeded(ctx context.Context, id string, at time.Time) (bool, error) {
	result := database.Conn(ctx, r.db).Model(&model.Refund{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		UpdateColumns(map[string]interface{}{
			"status":       model.StatusSucceeded,
			"succeeded_at": at,
			"updated_at":   at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *refundRepository) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	result := database.Conn(ctx, r.db).Model(&model.Refund{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		UpdateColumns(map[string]interface{}{
			"status":         model.StatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *refundRepository) FillDetails(ctx context.Context, id, reason, createdBy string) error {
	return database.Conn(ctx, r.db).Model(&model.Refund{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"reason":     reason,
			"created_by": createdBy,
			"updated_at": time.Now(),
		}).Error
}
