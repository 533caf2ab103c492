package repository

import (
	"context"
	"errors"
	"time"

	"order_payment_service/internal/domain/coupon/model"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/database"
	baseModel "order_payment_service/pkg/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CouponRepository interface {
	Create(ctx context.Context, coupon *model.Coupon) error
	GetByID(ctx context.Context, id string) (*model.Coupon, error)
	GetByCode(ctx context.Context, code string) (*model.Coupon, error)
	List(ctx context.Context, offset, limit int) ([]model.Coupon, int64, error)
	Update(ctx context.Context, coupon *model.Coupon) error
	Delete(ctx context.Context, id string) error

	// IncrementUsage 乐观扣减使用次数，达到上限返回 false
	IncrementUsage(ctx context.Context, couponID string) (bool, error)
	CreateRedemption(ctx context.Context, r *model.Redemption) error
	// ReleaseForOrder 释放订单占用的优惠券，没有可释放的记录返回 false
	ReleaseForOrder(ctx context.Context, orderID string) (bool, error)
}

type couponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) CouponRepository {
	return &couponRepository{db: db}
}

func (r *couponRepository) Create(ctx context.Context, coupon *model.Coupon) error {
	err := database.Conn(ctx, r.db).Create(coupon).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("coupon code already exists")
	}
	return err
}

func (r *couponRepository) GetByID(ctx context.Context, id string) (*model.Coupon, error) {
	return r.first(database.Conn(ctx, r.db).Where("id = ?", id))
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	return r.first(database.Conn(ctx, r.db).Where("code = ?", code))
}

func (r *couponRepository) first(q *gorm.DB) (*model.Coupon, error) {
	var coupon model.Coupon
	err := q.Where(baseModel.NotDeleted).First(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("coupon not found")
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *couponRepository) List(ctx context.Context, offset, limit int) ([]model.Coupon, int64, error) {
	var list []model.Coupon
	var total int64
	q := database.Conn(ctx, r.db).Model(&model.Coupon{}).Where(baseModel.NotDeleted)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *couponRepository) Update(ctx context.Context, coupon *model.Coupon) error {
	result := database.Conn(ctx, r.db).Model(coupon).
		Where(baseModel.NotDeleted).
		Select("type", "value", "min_order_amount", "max_discount_amount", "usage_limit", "expires_at", "status").
		Updates(coupon)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("coupon not found")
	}
	return nil
}

func (r *couponRepository) Delete(ctx context.Context, id string) error {
	result := database.Conn(ctx, r.db).Model(&model.Coupon{}).
		Where("id = ? AND "+baseModel.NotDeleted, id).
		UpdateColumn("deleted_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("coupon not found")
	}
	return nil
}

func (r *couponRepository) IncrementUsage(ctx context.Context, couponID string) (bool, error) {
	result := database.Conn(ctx, r.db).Model(&model.Coupon{}).
		Where("id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", couponID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *couponRepository) CreateRedemption(ctx context.Context, redemption *model.Redemption) error {
	return database.Conn(ctx, r.db).Create(redemption).Error
}

func (r *couponRepository) ReleaseForOrder(ctx context.Context, orderID string) (bool, error) {
	db := database.Conn(ctx, r.db)

	var released []model.Redemption
	result := db.Model(&released).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "coupon_id"}}}).
		Where("order_id = ? AND released_at IS NULL", orderID).
		UpdateColumn("released_at", time.Now())
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 || len(released) == 0 {
		return false, nil
	}

	err := db.Model(&model.Coupon{}).
		Where("id = ? AND usage_count > 0", released[0].CouponID).
		UpdateColumn("usage_count", gorm.Expr("usage_count - 1")).Error
	return err == nil, err
}
