package service

import (
	"context"
	"testing"

	"order_payment_service/internal/domain/shipping/model"
	"order_payment_service/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func standardRate() *model.ShippingRate {
	r := &model.ShippingRate{
		Name:          "Standard",
		Method:        "STANDARD",
		Price:         995,
		FreeThreshold: int64Ptr(50000),
		Countries:     []string{"GB", "IE"},
		EstimatedDays: 3,
		IsActive:      true,
	}
	r.ID = "rate-1"
	return r
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("Free above threshold", func(t *testing.T) {
		repo := new(MockRateRepository)
		svc := NewRateService(repo, nil, 0)
		repo.On("GetByID", ctx, "rate-1").Return(standardRate(), nil)

		cost, err := svc.Resolve(ctx, "rate-1", "GB", 60000)
		require.NoError(t, err)
		assert.Equal(t, int64(0), cost)
	})

	t.Run("Threshold is inclusive", func(t *testing.T) {
		repo := new(MockRateRepository)
		svc := NewRateService(repo, nil, 0)
		repo.On("GetByID", ctx, "rate-1").Return(standardRate(), nil)

		cost, err := svc.Resolve(ctx, "rate-1", "gb", 50000)
		require.NoError(t, err)
		assert.Equal(t, int64(0), cost)
	})

	t.Run("Charged below threshold", func(t *testing.T) {
		repo := new(MockRateRepository)
		svc := NewRateService(repo, nil, 0)
		repo.On("GetByID", ctx, "rate-1").Return(standardRate(), nil)

		cost, err := svc.Resolve(ctx, "rate-1", "GB", 10000)
		require.NoError(t, err)
		assert.Equal(t, int64(995), cost)
	})

	t.Run("No threshold always charges", func(t *testing.T) {
		repo := new(MockRateRepository)
		svc := NewRateService(repo, nil, 0)
		rate := standardRate()
		rate.FreeThreshold = nil
		repo.On("GetByID", ctx, "rate-1").Return(rate, nil)

		cost, err := svc.Resolve(ctx, "rate-1", "GB", 1000000)
		require.NoError(t, err)
		assert.Equal(t, int64(995), cost)
	})

	t.Run("Country not served", func(t *testing.T) {
		repo := new(MockRateRepository)
		svc := NewRateService(repo, nil, 0)
		repo.On("GetByID", ctx, "rate-1").Return(standardRate(), nil)

		_, err := svc.Resolve(ctx, "rate-1", "US", 10000)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("Inactive rate", func(t *testing.T) {
		repo := new(MockRateRepository)
		svc := NewRateService(repo, nil, 0)
		rate := standardRate()
		rate.IsActive = false
		repo.On("GetByID", ctx, "rate-1").Return(rate, nil)

		_, err := svc.Resolve(ctx, "rate-1", "GB", 10000)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("Unknown rate", func(t *testing.T) {
		repo := new(MockRateRepository)
		svc := NewRateService(repo, nil, 0)
		repo.On("GetByID", ctx, "missing").Return(nil, apperr.NotFound("shipping rate not found"))

		_, err := svc.Resolve(ctx, "missing", "GB", 10000)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

func TestCreateRateValidation(t *testing.T) {
	svc := NewRateService(new(MockRateRepository), nil, 0)
	_, err := svc.CreateRate(context.Background(), RateInput{Name: "x", Method: "standard", Price: 100})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
