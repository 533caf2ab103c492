package model

import (
	"strings"
	"time"

	baseModel "order_payment_service/pkg/model"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentUnpaid            PaymentStatus = "UNPAID"
	PaymentPaid              PaymentStatus = "PAID"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
)

// Settled 已收款 (含部分或全部退款)
func (s PaymentStatus) Settled() bool {
	return s == PaymentPaid || s == PaymentPartiallyRefunded || s == PaymentRefunded
}

// Address 收货地址，以 jsonb 存储
type Address struct {
	Name       string `json:"name" binding:"required"`
	Line1      string `json:"line1" binding:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" binding:"required"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode" binding:"required"`
	Country    string `json:"country" binding:"required,len=2"`
}

// Order 订单，金额均为最小货币单位
// TotalAmount = Subtotal + TaxAmount + ShippingAmount - DiscountAmount
type Order struct {
	baseModel.BaseModel
	OrderNumber     string        `gorm:"type:varchar(32);uniqueIndex;not null" json:"orderNumber"`
	UserID          string        `gorm:"type:varchar(64);index;not null" json:"userId"`
	Status          Status        `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatus   PaymentStatus `gorm:"type:varchar(20);not null" json:"paymentStatus"`
	Subtotal        int64         `gorm:"not null" json:"subtotal"`
	TaxAmount       int64         `gorm:"not null" json:"taxAmount"`
	ShippingAmount  int64         `gorm:"not null" json:"shippingAmount"`
	DiscountAmount  int64         `gorm:"not null" json:"discountAmount"`
	TotalAmount     int64         `gorm:"not null" json:"totalAmount"`
	Currency        string        `gorm:"type:char(3);not null" json:"currency"`
	ShippingAddress Address       `gorm:"type:jsonb;serializer:json;not null" json:"shippingAddress"`
	ShippingRateID  string        `gorm:"type:uuid;not null" json:"shippingRateId"`
	CouponID        *string       `gorm:"type:uuid" json:"couponId,omitempty"`
	CouponCode      string        `gorm:"type:varchar(64)" json:"couponCode,omitempty"`
	ConfirmedAt     *time.Time    `json:"confirmedAt,omitempty"`
	CancelledAt     *time.Time    `json:"cancelledAt,omitempty"`
	Items           []OrderItem   `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

// OrderItem 订单明细，创建后不可修改
type OrderItem struct {
	baseModel.BaseModel
	OrderID    string `gorm:"type:uuid;index;not null" json:"orderId"`
	ProductID  string `gorm:"type:varchar(64);not null" json:"productId"`
	Name       string `gorm:"type:varchar(255)" json:"name,omitempty"`
	Category   string `gorm:"type:varchar(64);not null" json:"category"`
	Quantity   int    `gorm:"not null" json:"quantity"`
	UnitPrice  int64  `gorm:"not null" json:"unitPrice"`
	TotalPrice int64  `gorm:"not null" json:"totalPrice"`
}

// NewOrderNumber 生成对外展示的订单号：时间戳 + 8 位随机串
func NewOrderNumber(now time.Time) string {
	return now.UTC().Format("20060102150405") + strings.ToUpper(uuid.New().String()[:8])
}
