package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"order_payment_service/internal/domain/tax/model"
	"order_payment_service/internal/domain/tax/repository"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/cache"
	"order_payment_service/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

type CreateRuleInput struct {
	Name      string
	Type      model.RuleType
	Rate      decimal.Decimal
	Country   string
	Region    *string
	Category  string
	IsDefault bool
	IsActive  *bool
}

type UpdateRuleInput struct {
	Name      *string
	Type      *model.RuleType
	Rate      *decimal.Decimal
	Region    *string
	Category  *string
	IsDefault *bool
	IsActive  *bool
}

type TaxService interface {
	// Resolve 地区规则优先，其次国家默认规则，都没有返回 nil
	Resolve(ctx context.Context, country, region, category string) (*model.TaxRule, error)
	// Calculate 按规则计算税额，规则为空或未启用时为 0
	Calculate(amount int64, rule *model.TaxRule) int64

	CreateRule(ctx context.Context, in CreateRuleInput) (*model.TaxRule, error)
	GetRule(ctx context.Context, id string) (*model.TaxRule, error)
	ListRules(ctx context.Context, country string, offset, limit int) ([]model.TaxRule, int64, error)
	UpdateRule(ctx context.Context, id string, in UpdateRuleInput) (*model.TaxRule, error)
	DeleteRule(ctx context.Context, id string) error
}

type taxService struct {
	repo  repository.TaxRuleRepository
	cache cache.CacheService
	ttl   time.Duration
}

func NewTaxService(repo repository.TaxRuleRepository, c cache.CacheService, ttl time.Duration) TaxService {
	if c == nil {
		c = cache.NopCache{}
	}
	return &taxService{repo: repo, cache: c, ttl: ttl}
}

// cachedRule 缓存里允许存"没有规则"
type cachedRule struct {
	Rule *model.TaxRule `json:"rule"`
}

func ruleKey(country, region, category string) string {
	return fmt.Sprintf("tax:rule:%s:%s:%s", country, region, category)
}

func normalize(country, region, category string) (string, string, string) {
	country = strings.ToUpper(strings.TrimSpace(country))
	region = strings.ToUpper(strings.TrimSpace(region))
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = model.DefaultCategory
	}
	return country, region, category
}

func (s *taxService) Resolve(ctx context.Context, country, region, category string) (*model.TaxRule, error) {
	country, region, category = normalize(country, region, category)
	key := ruleKey(country, region, category)

	var hit cachedRule
	if err := s.cache.Get(ctx, key, &hit); err == nil {
		return hit.Rule, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		logger.Log.Warn("tax cache read failed", zap.String("key", key), zap.Error(err))
	}

	rule, err := s.lookup(ctx, country, region, category)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, cachedRule{Rule: rule}, s.ttl); err != nil {
		logger.Log.Warn("tax cache write failed", zap.String("key", key), zap.Error(err))
	}
	return rule, nil
}

func (s *taxService) lookup(ctx context.Context, country, region, category string) (*model.TaxRule, error) {
	if region != "" {
		rule, err := s.repo.FindRegional(ctx, country, region, category)
		if err != nil || rule != nil {
			return rule, err
		}
	}
	return s.repo.FindDefault(ctx, country, category)
}

func (s *taxService) Calculate(amount int64, rule *model.TaxRule) int64 {
	if rule == nil || !rule.IsActive {
		return 0
	}
	switch rule.Type {
	case model.TypePercentage:
		// 四舍五入到最小货币单位
		return decimal.NewFromInt(amount).Mul(rule.Rate).Div(hundred).Round(0).IntPart()
	case model.TypeFixed:
		return rule.Rate.Round(0).IntPart()
	}
	return 0
}

func validateRule(ruleType model.RuleType, rate decimal.Decimal, country string) error {
	switch ruleType {
	case model.TypePercentage:
		if rate.IsNegative() || rate.GreaterThan(hundred) {
			return apperr.Validation("percentage rate must be between 0 and 100")
		}
	case model.TypeFixed:
		if rate.IsNegative() {
			return apperr.Validation("fixed rate must not be negative")
		}
	default:
		return apperr.Validation("type must be PERCENTAGE or FIXED")
	}
	if len(country) != 2 {
		return apperr.Validation("country must be an ISO 3166-1 alpha-2 code")
	}
	return nil
}

func normalizeRegion(region *string) *string {
	if region == nil {
		return nil
	}
	r := strings.ToUpper(strings.TrimSpace(*region))
	if r == "" {
		return nil
	}
	return &r
}

func (s *taxService) CreateRule(ctx context.Context, in CreateRuleInput) (*model.TaxRule, error) {
	country, _, category := normalize(in.Country, "", in.Category)
	if err := validateRule(in.Type, in.Rate, country); err != nil {
		return nil, err
	}
	region := normalizeRegion(in.Region)
	if in.IsDefault && region != nil {
		return nil, apperr.Validation("a default rule cannot be region specific")
	}

	rule := &model.TaxRule{
		Name:      in.Name,
		Type:      in.Type,
		Rate:      in.Rate,
		Country:   country,
		Region:    region,
		Category:  category,
		IsDefault: in.IsDefault,
		IsActive:  in.IsActive == nil || *in.IsActive,
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return rule, nil
}

func (s *taxService) GetRule(ctx context.Context, id string) (*model.TaxRule, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *taxService) ListRules(ctx context.Context, country string, offset, limit int) ([]model.TaxRule, int64, error) {
	return s.repo.List(ctx, strings.ToUpper(country), offset, limit)
}

func (s *taxService) UpdateRule(ctx context.Context, id string, in UpdateRuleInput) (*model.TaxRule, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		rule.Name = *in.Name
	}
	if in.Type != nil {
		rule.Type = *in.Type
	}
	if in.Rate != nil {
		rule.Rate = *in.Rate
	}
	if in.Region != nil {
		rule.Region = normalizeRegion(in.Region)
	}
	if in.Category != nil {
		_, _, rule.Category = normalize("", "", *in.Category)
	}
	if in.IsDefault != nil {
		rule.IsDefault = *in.IsDefault
	}
	if in.IsActive != nil {
		rule.IsActive = *in.IsActive
	}
	if err := validateRule(rule.Type, rule.Rate, rule.Country); err != nil {
		return nil, err
	}
	if rule.IsDefault && rule.Region != nil {
		return nil, apperr.Validation("a default rule cannot be region specific")
	}

	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return rule, nil
}

func (s *taxService) DeleteRule(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *taxService) invalidate(ctx context.Context) {
	if err := s.cache.InvalidatePattern(ctx, "tax:*"); err != nil {
		logger.Log.Warn("tax cache invalidation failed", zap.Error(err))
	}
}
