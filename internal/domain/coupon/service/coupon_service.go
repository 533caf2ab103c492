package service

import (
	"context"
	"strings"
	"time"

	"order_payment_service/internal/domain/coupon/model"
	"order_payment_service/internal/domain/coupon/repository"
	orderModel "order_payment_service/internal/domain/order/model"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// Discount 校验通过的优惠
type Discount struct {
	CouponID       string `json:"couponId"`
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discountAmount"`
}

type CouponInput struct {
	Code              string
	Type              model.CouponType
	Value             decimal.Decimal
	MinOrderAmount    int64
	MaxDiscountAmount *int64
	UsageLimit        *int64
	ExpiresAt         *time.Time
	Status            model.CouponStatus
}

type CouponUpdate struct {
	Type              *model.CouponType
	Value             *decimal.Decimal
	MinOrderAmount    *int64
	MaxDiscountAmount *int64
	UsageLimit        *int64
	ExpiresAt         *time.Time
	Status            *model.CouponStatus
}

type CouponService interface {
	// Validate 只读校验并计算优惠金额，不占用次数
	Validate(ctx context.Context, code string, orderAmount int64) (*Discount, error)
	// Redeem 在下单事务内占用一次使用次数并记录
	Redeem(ctx context.Context, d *Discount, orderID, userID string) error
	// OnOrderCancelled 取消未支付订单时释放占用
	OnOrderCancelled(ctx context.Context, order *orderModel.Order) error

	CreateCoupon(ctx context.Context, in CouponInput) (*model.Coupon, error)
	GetCoupon(ctx context.Context, id string) (*model.Coupon, error)
	ListCoupons(ctx context.Context, offset, limit int) ([]model.Coupon, int64, error)
	UpdateCoupon(ctx context.Context, id string, in CouponUpdate) (*model.Coupon, error)
	DeleteCoupon(ctx context.Context, id string) error
}

type couponService struct {
	repo repository.CouponRepository
	now  func() time.Time
}

func NewCouponService(repo repository.CouponRepository) CouponService {
	return &couponService{repo: repo, now: time.Now}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *couponService) Validate(ctx context.Context, code string, orderAmount int64) (*Discount, error) {
	coupon, err := s.repo.GetByCode(ctx, normalizeCode(code))
	if err != nil {
		return nil, err
	}

	if coupon.Status != model.StatusActive {
		return nil, apperr.Unprocessable("coupon is not active")
	}
	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(s.now()) {
		return nil, apperr.Unprocessable("coupon has expired")
	}
	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return nil, apperr.Unprocessable("coupon usage limit reached")
	}
	if orderAmount < coupon.MinOrderAmount {
		return nil, apperr.Newf(apperr.KindUnprocessable, "order amount must be at least %d to use this coupon", coupon.MinOrderAmount).
			With("minOrderAmount", coupon.MinOrderAmount)
	}

	return &Discount{
		CouponID:       coupon.ID,
		Code:           coupon.Code,
		DiscountAmount: DiscountFor(coupon, orderAmount),
	}, nil
}

// DiscountFor 计算优惠金额
// PERCENTAGE 按比例四舍五入并受 MaxDiscountAmount 封顶，FIXED 不超过订单金额
func DiscountFor(c *model.Coupon, orderAmount int64) int64 {
	var discount int64
	switch c.Type {
	case model.TypePercentage:
		discount = decimal.NewFromInt(orderAmount).Mul(c.Value).Div(hundred).Round(0).IntPart()
		if c.MaxDiscountAmount != nil && discount > *c.MaxDiscountAmount {
			discount = *c.MaxDiscountAmount
		}
	case model.TypeFixed:
		discount = c.Value.Round(0).IntPart()
	}
	if discount > orderAmount {
		discount = orderAmount
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

func (s *couponService) Redeem(ctx context.Context, d *Discount, orderID, userID string) error {
	ok, err := s.repo.IncrementUsage(ctx, d.CouponID)
	if err != nil {
		return err
	}
	if !ok {
		// 校验之后被并发下单用完
		return apperr.Unprocessable("coupon usage limit reached")
	}
	return s.repo.CreateRedemption(ctx, &model.Redemption{
		CouponID:       d.CouponID,
		OrderID:        orderID,
		UserID:         userID,
		DiscountAmount: d.DiscountAmount,
	})
}

func (s *couponService) OnOrderCancelled(ctx context.Context, order *orderModel.Order) error {
	if order.CouponID == nil {
		return nil
	}
	released, err := s.repo.ReleaseForOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if released {
		logger.Log.Info("coupon usage released", zap.String("order_id", order.ID), zap.String("coupon_id", *order.CouponID))
	}
	return nil
}

func validateCoupon(c *model.Coupon) error {
	switch c.Type {
	case model.TypePercentage:
		if !c.Value.IsPositive() || c.Value.GreaterThan(hundred) {
			return apperr.Validation("percentage value must be between 0 and 100")
		}
	case model.TypeFixed:
		if !c.Value.IsPositive() {
			return apperr.Validation("fixed value must be positive")
		}
	default:
		return apperr.Validation("type must be PERCENTAGE or FIXED")
	}
	if c.Status != model.StatusActive && c.Status != model.StatusInactive {
		return apperr.Validation("status must be ACTIVE or INACTIVE")
	}
	if c.MinOrderAmount < 0 {
		return apperr.Validation("minOrderAmount must not be negative")
	}
	if c.MaxDiscountAmount != nil && *c.MaxDiscountAmount <= 0 {
		return apperr.Validation("maxDiscountAmount must be positive")
	}
	if c.UsageLimit != nil && *c.UsageLimit <= 0 {
		return apperr.Validation("usageLimit must be positive")
	}
	return nil
}

func (s *couponService) CreateCoupon(ctx context.Context, in CouponInput) (*model.Coupon, error) {
	coupon := &model.Coupon{
		Code:              normalizeCode(in.Code),
		Type:              in.Type,
		Value:             in.Value,
		MinOrderAmount:    in.MinOrderAmount,
		MaxDiscountAmount: in.MaxDiscountAmount,
		UsageLimit:        in.UsageLimit,
		ExpiresAt:         in.ExpiresAt,
		Status:            in.Status,
	}
	if coupon.Status == "" {
		coupon.Status = model.StatusActive
	}
	if coupon.Code == "" {
		return nil, apperr.Validation("code is required")
	}
	if err := validateCoupon(coupon); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

func (s *couponService) GetCoupon(ctx context.Context, id string) (*model.Coupon, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *couponService) ListCoupons(ctx context.Context, offset, limit int) ([]model.Coupon, int64, error) {
	return s.repo.List(ctx, offset, limit)
}

func (s *couponService) UpdateCoupon(ctx context.Context, id string, in CouponUpdate) (*model.Coupon, error) {
	coupon, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Type != nil {
		coupon.Type = *in.Type
	}
	if in.Value != nil {
		coupon.Value = *in.Value
	}
	if in.MinOrderAmount != nil {
		coupon.MinOrderAmount = *in.MinOrderAmount
	}
	if in.MaxDiscountAmount != nil {
		coupon.MaxDiscountAmount = in.MaxDiscountAmount
	}
	if in.UsageLimit != nil {
		coupon.UsageLimit = in.UsageLimit
	}
	if in.ExpiresAt != nil {
		coupon.ExpiresAt = in.ExpiresAt
	}
	if in.Status != nil {
		coupon.Status = *in.Status
	}
	if err := validateCoupon(coupon); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

func (s *couponService) DeleteCoupon(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
