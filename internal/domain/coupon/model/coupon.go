package model

import (
	"time"

	baseModel "order_payment_service/pkg/model"

	"github.com/shopspring/decimal"
)

type CouponType string

const (
	TypePercentage CouponType = "PERCENTAGE"
	TypeFixed      CouponType = "FIXED"
)

type CouponStatus string

const (
	StatusActive   CouponStatus = "ACTIVE"
	StatusInactive CouponStatus = "INACTIVE"
)

// Coupon 优惠券定义
// PERCENTAGE 时 Value 为百分比，FIXED 时 Value 为减免金额 (最小货币单位)
type Coupon struct {
	baseModel.BaseModel
	baseModel.SoftDelete
	Code              string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Type              CouponType      `gorm:"type:varchar(20);not null" json:"type"`
	Value             decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"value"`
	MinOrderAmount    int64           `gorm:"not null;default:0" json:"minOrderAmount"`
	MaxDiscountAmount *int64          `json:"maxDiscountAmount"`
	UsageLimit        *int64          `json:"usageLimit"` // nil 表示不限
	UsageCount        int64           `gorm:"not null;default:0" json:"usageCount"`
	ExpiresAt         *time.Time      `json:"expiresAt"`
	Status            CouponStatus    `gorm:"type:varchar(20);not null" json:"status"`
}

// Redemption 优惠券使用记录，每个订单最多一条
// 取消未支付订单时释放，释放后不再计入使用次数
type Redemption struct {
	baseModel.BaseModel
	CouponID       string     `gorm:"type:uuid;index;not null" json:"couponId"`
	OrderID        string     `gorm:"type:uuid;uniqueIndex;not null" json:"orderId"`
	UserID         string     `gorm:"type:varchar(64);index;not null" json:"userId"`
	DiscountAmount int64      `gorm:"not null" json:"discountAmount"`
	ReleasedAt     *time.Time `json:"releasedAt,omitempty"`
}

func (Redemption) TableName() string {
	return "coupon_redemptions"
}
