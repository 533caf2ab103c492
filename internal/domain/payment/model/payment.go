package model

import (
	"time"

	baseModel "order_payment_service/pkg/model"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	// StatusCanceled 被新的支付尝试或订单取消关闭
	StatusCanceled Status = "CANCELED"
)

const MethodCard = "card"

// DuplicateCaptureReason 订单已有成功支付后又被扣款的尝试，钱需要退回
const DuplicateCaptureReason = "duplicate capture: order already has a succeeded payment"

// Payment 一次支付尝试，对应网关上的一个 PaymentIntent
// 一个订单可以有多次尝试，但最多一条 SUCCEEDED
type Payment struct {
	baseModel.BaseModel
	OrderID         string     `gorm:"type:uuid;index;not null" json:"orderId"`
	UserID          string     `gorm:"type:varchar(64);index;not null" json:"userId"`
	GatewayIntentID string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"gatewayIntentId"`
	Amount          int64      `gorm:"not null" json:"amount"`
	Currency        string     `gorm:"type:char(3);not null" json:"currency"`
	Status          Status     `gorm:"type:varchar(20);not null;index" json:"status"`
	Method          string     `gorm:"type:varchar(32);not null" json:"method"`
	FailureReason   string     `gorm:"type:text" json:"failureReason,omitempty"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`

	// ClientSecret 只在创建时返回给前端，不落库
	ClientSecret string `gorm:"-" json:"clientSecret,omitempty"`
}

// DuplicateCapture 网关已扣款但订单已由另一笔支付结清
func (p *Payment) DuplicateCapture() bool {
	return p.Status != StatusSucceeded && p.FailureReason == DuplicateCaptureReason
}

// Refundable 网关上确实有这笔钱
func (p *Payment) Refundable() bool {
	return p.Status == StatusSucceeded || p.DuplicateCapture()
}
