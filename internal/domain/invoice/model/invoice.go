package model

import (
	"time"

	orderModel "order_payment_service/internal/domain/order/model"
	baseModel "order_payment_service/pkg/model"
)

type Status string

const (
	StatusIssued Status = "ISSUED"
	StatusVoid   Status = "VOID"
)

// Line 开票时的明细快照
type Line struct {
	ProductID  string `json:"productId"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unitPrice"`
	TotalPrice int64  `json:"totalPrice"`
}

// Invoice 订单确认时生成的财务快照，除 ISSUED -> VOID 外不再修改
type Invoice struct {
	baseModel.BaseModel
	OrderID        string             `gorm:"type:uuid;uniqueIndex;not null" json:"orderId"`
	OrderNumber    string             `gorm:"type:varchar(32);not null" json:"orderNumber"`
	UserID         string             `gorm:"type:varchar(64);index;not null" json:"userId"`
	InvoiceNumber  string             `gorm:"type:varchar(32);uniqueIndex;not null" json:"invoiceNumber"`
	Status         Status             `gorm:"type:varchar(20);not null" json:"status"`
	Subtotal       int64              `gorm:"not null" json:"subtotal"`
	TaxAmount      int64              `gorm:"not null" json:"taxAmount"`
	ShippingAmount int64              `gorm:"not null" json:"shippingAmount"`
	DiscountAmount int64              `gorm:"not null" json:"discountAmount"`
	TotalAmount    int64              `gorm:"not null" json:"totalAmount"`
	Currency       string             `gorm:"type:char(3);not null" json:"currency"`
	BillingAddress orderModel.Address `gorm:"type:jsonb;serializer:json;not null" json:"billingAddress"`
	Lines          []Line             `gorm:"type:jsonb;serializer:json;not null" json:"lines"`
	IssuedAt       time.Time          `gorm:"not null" json:"issuedAt"`
	DueAt          time.Time          `gorm:"not null" json:"dueAt"`
	VoidedAt       *time.Time         `json:"voidedAt,omitempty"`
}

// Sequence 按年递增的发票号计数器
type Sequence struct {
	Year      int   `gorm:"primaryKey;autoIncrement:false"`
	LastValue int64 `gorm:"not null"`
}

func (Sequence) TableName() string {
	return "invoice_sequences"
}
