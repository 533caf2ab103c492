package repository

import (
	"context"
	"errors"
	"time"

	"order_payment_service/internal/domain/tax/model"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/database"
	baseModel "order_payment_service/pkg/model"

	"gorm.io/gorm"
)

type TaxRuleRepository interface {
	Create(ctx context.Context, rule *model.TaxRule) error
	GetByID(ctx context.Context, id string) (*model.TaxRule, error)
	List(ctx context.Context, country string, offset, limit int) ([]model.TaxRule, int64, error)
	Update(ctx context.Context, rule *model.TaxRule) error
	Delete(ctx context.Context, id string) error

	// FindRegional 查找 country+region+category 的生效规则，没有返回 nil
	FindRegional(ctx context.Context, country, region, category string) (*model.TaxRule, error)
	// FindDefault 查找 country+category 的国家默认规则 (region 为空)，没有返回 nil
	FindDefault(ctx context.Context, country, category string) (*model.TaxRule, error)
}

type taxRuleRepository struct {
	db *gorm.DB
}

func NewTaxRuleRepository(db *gorm.DB) TaxRuleRepository {
	return &taxRuleRepository{db: db}
}

func (r *taxRuleRepository) Create(ctx context.Context, rule *model.TaxRule) error {
	return database.Conn(ctx, r.db).Create(rule).Error
}

func (r *taxRuleRepository) GetByID(ctx context.Context, id string) (*model.TaxRule, error) {
	var rule model.TaxRule
	err := database.Conn(ctx, r.db).Where(baseModel.NotDeleted).First(&rule, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("tax rule not found")
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *taxRuleRepository) List(ctx context.Context, country string, offset, limit int) ([]model.TaxRule, int64, error) {
	var rules []model.TaxRule
	var total int64

	q := database.Conn(ctx, r.db).Model(&model.TaxRule{}).Where(baseModel.NotDeleted)
	if country != "" {
		q = q.Where("country = ?", country)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("country, region NULLS FIRST, category").Offset(offset).Limit(limit).Find(&rules).Error
	return rules, total, err
}

func (r *taxRuleRepository) Update(ctx context.Context, rule *model.TaxRule) error {
	result := database.Conn(ctx, r.db).Model(rule).
		Where(baseModel.NotDeleted).
		Select("name", "type", "rate", "country", "region", "category", "is_default", "is_active").
		Updates(rule)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("tax rule not found")
	}
	return nil
}

// Delete 软删除
func (r *taxRuleRepository) Delete(ctx context.Context, id string) error {
	result := database.Conn(ctx, r.db).Model(&model.TaxRule{}).
		Where("id = ? AND "+baseModel.NotDeleted, id).
		UpdateColumn("deleted_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("tax rule not found")
	}
	return nil
}

func (r *taxRuleRepository) FindRegional(ctx context.Context, country, region, category string) (*model.TaxRule, error) {
	return r.findOne(database.Conn(ctx, r.db).
		Where("country = ? AND region = ? AND category = ?", country, region, category))
}

func (r *taxRuleRepository) FindDefault(ctx context.Context, country, category string) (*model.TaxRule, error) {
	return r.findOne(database.Conn(ctx, r.db).
		Where("country = ? AND region IS NULL AND category = ? AND is_default", country, category))
}

func (r *taxRuleRepository) findOne(q *gorm.DB) (*model.TaxRule, error) {
	var rules []model.TaxRule
	err := q.Where("is_active AND " + baseModel.NotDeleted).
		Order("updated_at DESC").
		Limit(1).
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}
	return &rules[0], nil
}
