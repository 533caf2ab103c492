package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"order_payment_service/internal/domain/tax/model"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/cache"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTaxRuleRepository is a mock of TaxRuleRepository
type MockTaxRuleRepository struct {
	mock.Mock
}

func (m *MockTaxRuleRepository) Create(ctx context.Context, rule *model.TaxRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockTaxRuleRepository) GetByID(ctx context.Context, id string) (*model.TaxRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TaxRule), args.Error(1)
}

func (m *MockTaxRuleRepository) List(ctx context.Context, country string, offset, limit int) ([]model.TaxRule, int64, error) {
	args := m.Called(ctx, country, offset, limit)
	return args.Get(0).([]model.TaxRule), args.Get(1).(int64), args.Error(2)
}

func (m *MockTaxRuleRepository) Update(ctx context.Context, rule *model.TaxRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockTaxRuleRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaxRuleRepository) FindRegional(ctx context.Context, country, region, category string) (*model.TaxRule, error) {
	args := m.Called(ctx, country, region, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TaxRule), args.Error(1)
}

func (m *MockTaxRuleRepository) FindDefault(ctx context.Context, country, category string) (*model.TaxRule, error) {
	args := m.Called(ctx, country, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TaxRule), args.Error(1)
}

// mapCache 内存缓存，按 JSON 存取，行为与 RedisCache 一致
type mapCache struct {
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string, dest interface{}) error {
	b, ok := c.data[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	c.data[key] = b
	return err
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func (c *mapCache) InvalidatePattern(context.Context, string) error {
	c.data = map[string][]byte{}
	return nil
}

func percentRule(rate int64, region *string, isDefault bool) *model.TaxRule {
	return &model.TaxRule{
		Type:      model.TypePercentage,
		Rate:      decimal.NewFromInt(rate),
		Country:   "GB",
		Region:    region,
		Category:  model.DefaultCategory,
		IsDefault: isDefault,
		IsActive:  true,
	}
}

func strPtr(s string) *string { return &s }

func TestResolve(t *testing.T) {
	ctx := context.Background()
	gbDefault := percentRule(20, nil, true)
	scotland := percentRule(18, strPtr("SCOTLAND"), false)

	t.Run("Region rule overrides country default", func(t *testing.T) {
		repo := new(MockTaxRuleRepository)
		svc := NewTaxService(repo, nil, time.Minute)
		repo.On("FindRegional", ctx, "GB", "SCOTLAND", "standard").Return(scotland, nil)

		rule, err := svc.Resolve(ctx, "gb", "Scotland", "")
		require.NoError(t, err)
		assert.Equal(t, int64(18000), svc.Calculate(100000, rule))
		repo.AssertNotCalled(t, "FindDefault", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Falls back to country default", func(t *testing.T) {
		repo := new(MockTaxRuleRepository)
		svc := NewTaxService(repo, nil, time.Minute)
		repo.On("FindRegional", ctx, "GB", "WALES", "standard").Return(nil, nil)
		repo.On("FindDefault", ctx, "GB", "standard").Return(gbDefault, nil)

		rule, err := svc.Resolve(ctx, "GB", "WALES", "standard")
		require.NoError(t, err)
		assert.Equal(t, int64(20000), svc.Calculate(100000, rule))
	})

	t.Run("No rule means no tax", func(t *testing.T) {
		repo := new(MockTaxRuleRepository)
		svc := NewTaxService(repo, nil, time.Minute)
		repo.On("FindDefault", ctx, "US", "books").Return(nil, nil)

		rule, err := svc.Resolve(ctx, "US", "", "books")
		require.NoError(t, err)
		assert.Nil(t, rule)
		assert.Equal(t, int64(0), svc.Calculate(100000, rule))
	})

	t.Run("Cached lookups skip the repository", func(t *testing.T) {
		repo := new(MockTaxRuleRepository)
		svc := NewTaxService(repo, newMapCache(), time.Minute)
		repo.On("FindDefault", ctx, "GB", "standard").Return(gbDefault, nil).Once()

		for i := 0; i < 3; i++ {
			rule, err := svc.Resolve(ctx, "GB", "", "standard")
			require.NoError(t, err)
			assert.Equal(t, int64(20000), svc.Calculate(100000, rule))
		}
		repo.AssertNumberOfCalls(t, "FindDefault", 1)
	})
}

func TestCalculate(t *testing.T) {
	svc := NewTaxService(new(MockTaxRuleRepository), nil, 0)

	tests := []struct {
		name   string
		amount int64
		rule   *model.TaxRule
		want   int64
	}{
		{"GB standard 20%", 150000, percentRule(20, nil, true), 30000},
		{"Rounds half away from zero", 1, &model.TaxRule{Type: model.TypePercentage, Rate: decimal.NewFromInt(50), IsActive: true}, 1},
		{"Fractional rate", 999, &model.TaxRule{Type: model.TypePercentage, Rate: decimal.RequireFromString("7.5"), IsActive: true}, 75},
		{"Fixed ignores amount", 123456, &model.TaxRule{Type: model.TypeFixed, Rate: decimal.NewFromInt(250), IsActive: true}, 250},
		{"Inactive rule", 100000, &model.TaxRule{Type: model.TypePercentage, Rate: decimal.NewFromInt(20), IsActive: false}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.Calculate(tt.amount, tt.rule))
		})
	}
}

func TestCreateRule(t *testing.T) {
	ctx := context.Background()

	t.Run("Normalises and stores", func(t *testing.T) {
		repo := new(MockTaxRuleRepository)
		svc := NewTaxService(repo, nil, 0)
		repo.On("Create", ctx, mock.MatchedBy(func(r *model.TaxRule) bool {
			return r.Country == "GB" && *r.Region == "SCOTLAND" && r.Category == "standard" && r.IsActive
		})).Return(nil)

		rule, err := svc.CreateRule(ctx, CreateRuleInput{
			Name: "Scotland", Type: model.TypePercentage, Rate: decimal.NewFromInt(18),
			Country: "gb", Region: strPtr(" scotland "),
		})
		require.NoError(t, err)
		assert.Equal(t, "GB", rule.Country)
		repo.AssertExpectations(t)
	})

	t.Run("Percentage above 100", func(t *testing.T) {
		svc := NewTaxService(new(MockTaxRuleRepository), nil, 0)
		_, err := svc.CreateRule(ctx, CreateRuleInput{Type: model.TypePercentage, Rate: decimal.NewFromInt(101), Country: "GB"})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("Default rule with region", func(t *testing.T) {
		svc := NewTaxService(new(MockTaxRuleRepository), nil, 0)
		_, err := svc.CreateRule(ctx, CreateRuleInput{
			Type: model.TypePercentage, Rate: decimal.NewFromInt(18), Country: "GB",
			Region: strPtr("SCOTLAND"), IsDefault: true,
		})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})
}
