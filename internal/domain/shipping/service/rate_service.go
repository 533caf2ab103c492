package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"order_payment_service/internal/domain/shipping/model"
	"order_payment_service/internal/domain/shipping/repository"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/cache"
	"order_payment_service/pkg/logger"

	"go.uber.org/zap"
)

type RateInput struct {
	Name          string
	Method        string
	Price         int64
	FreeThreshold *int64
	Countries     []string
	EstimatedDays int
	IsActive      *bool
}

type RateUpdate struct {
	Name          *string
	Method        *string
	Price         *int64
	FreeThreshold *int64
	Countries     []string
	EstimatedDays *int
	IsActive      *bool
}

type RateService interface {
	// Resolve 返回实际运费，运费模板不可用返回 NotFound，国家不在配送范围返回 Validation
	Resolve(ctx context.Context, rateID, country string, orderAmount int64) (int64, error)
	GetRate(ctx context.Context, id string) (*model.ShippingRate, error)
	ListRates(ctx context.Context, activeOnly bool) ([]model.ShippingRate, error)
	CreateRate(ctx context.Context, in RateInput) (*model.ShippingRate, error)
	UpdateRate(ctx context.Context, id string, in RateUpdate) (*model.ShippingRate, error)
	DeleteRate(ctx context.Context, id string) error
}

type rateService struct {
	repo  repository.RateRepository
	cache cache.CacheService
	ttl   time.Duration
}

func NewRateService(repo repository.RateRepository, c cache.CacheService, ttl time.Duration) RateService {
	if c == nil {
		c = cache.NopCache{}
	}
	return &rateService{repo: repo, cache: c, ttl: ttl}
}

func rateKey(id string) string {
	return "shipping:rate:" + id
}

func (s *rateService) GetRate(ctx context.Context, id string) (*model.ShippingRate, error) {
	var rate model.ShippingRate
	err := s.cache.Get(ctx, rateKey(id), &rate)
	if err == nil {
		return &rate, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logger.Log.Warn("shipping cache read failed", zap.String("rate_id", id), zap.Error(err))
	}

	found, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, rateKey(id), found, s.ttl); err != nil {
		logger.Log.Warn("shipping cache write failed", zap.String("rate_id", id), zap.Error(err))
	}
	return found, nil
}

func (s *rateService) Resolve(ctx context.Context, rateID, country string, orderAmount int64) (int64, error) {
	rate, err := s.GetRate(ctx, rateID)
	if err != nil {
		return 0, err
	}
	if !rate.IsActive {
		return 0, apperr.NotFound("shipping rate is not available")
	}
	if !rate.Serves(country) {
		return 0, apperr.Validation("shipping rate does not deliver to " + strings.ToUpper(country)).
			With("rateId", rateID).With("country", country)
	}
	return rate.EffectiveCost(orderAmount), nil
}

func (s *rateService) ListRates(ctx context.Context, activeOnly bool) ([]model.ShippingRate, error) {
	return s.repo.List(ctx, activeOnly)
}

func normalizeCountries(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func validateRate(r *model.ShippingRate) error {
	if r.Price < 0 {
		return apperr.Validation("price must not be negative")
	}
	if r.FreeThreshold != nil && *r.FreeThreshold < 0 {
		return apperr.Validation("free threshold must not be negative")
	}
	if len(r.Countries) == 0 {
		return apperr.Validation("at least one country is required")
	}
	return nil
}

func (s *rateService) CreateRate(ctx context.Context, in RateInput) (*model.ShippingRate, error) {
	rate := &model.ShippingRate{
		Name:          in.Name,
		Method:        strings.ToUpper(in.Method),
		Price:         in.Price,
		FreeThreshold: in.FreeThreshold,
		Countries:     normalizeCountries(in.Countries),
		EstimatedDays: in.EstimatedDays,
		IsActive:      in.IsActive == nil || *in.IsActive,
	}
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rate); err != nil {
		return nil, err
	}
	return rate, nil
}

func (s *rateService) UpdateRate(ctx context.Context, id string, in RateUpdate) (*model.ShippingRate, error) {
	rate, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		rate.Name = *in.Name
	}
	if in.Method != nil {
		rate.Method = strings.ToUpper(*in.Method)
	}
	if in.Price != nil {
		rate.Price = *in.Price
	}
	if in.FreeThreshold != nil {
		// 负数表示取消免邮
		if *in.FreeThreshold < 0 {
			rate.FreeThreshold = nil
		} else {
			rate.FreeThreshold = in.FreeThreshold
		}
	}
	if in.Countries != nil {
		rate.Countries = normalizeCountries(in.Countries)
	}
	if in.EstimatedDays != nil {
		rate.EstimatedDays = *in.EstimatedDays
	}
	if in.IsActive != nil {
		rate.IsActive = *in.IsActive
	}
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, rate); err != nil {
		return nil, err
	}
	s.evict(ctx, id)
	return rate, nil
}

func (s *rateService) DeleteRate(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.evict(ctx, id)
	return nil
}

func (s *rateService) evict(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, rateKey(id)); err != nil {
		logger.Log.Warn("shipping cache eviction failed", zap.String("rate_id", id), zap.Error(err))
	}
}
