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
)

// Refund 针对一笔成功支付的退款，只能通过网关回调变为 SUCCEEDED
type Refund struct {
	baseModel.BaseModel
	PaymentID       string     `gorm:"type:uuid;index;not null" json:"paymentId"`
	OrderID         string     `gorm:"type:uuid;index;not null" json:"orderId"`
	UserID          string     `gorm:"type:varchar(64);index;not null" json:"userId"`
	GatewayRefundID string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"gatewayRefundId"`
	Amount          int64      `gorm:"not null" json:"amount"`
	Currency        string     `gorm:"type:char(3);not null" json:"currency"`
	Reason          string     `gorm:"type:text" json:"reason,omitempty"`
	Status          Status     `gorm:"type:varchar(20);not null;index" json:"status"`
	FailureReason   string     `gorm:"type:text" json:"failureReason,omitempty"`
	CreatedBy       string     `gorm:"type:varchar(64)" json:"createdBy,omitempty"` // 发起退款的管理员，网关侧发起的为空
	SucceededAt     *time.Time `json:"succeededAt,omitempty"`
}
