package events

import (
	"encoding/json"
	"time"
)

// 事件类型，同时作为 kafka topic 的后缀
const (
	OrderCreated   = "order.created"
	OrderConfirmed = "order.confirmed"
	OrderCancelled = "order.cancelled"

	PaymentSucceeded = "payment.succeeded"
	PaymentFailed    = "payment.failed"
	// 订单已取消后仍然收到扣款成功
	PaymentCapturedAfterCancel = "payment.captured_after_cancel"
	// 订单已有成功支付，又收到另一笔扣款成功
	PaymentDuplicateCapture = "payment.duplicate_capture"

	RefundCreated   = "refund.created"
	RefundSucceeded = "refund.succeeded"
	RefundFailed    = "refund.failed"

	InvoiceIssued = "invoice.issued"
	InvoiceVoided = "invoice.voided"

	ShipmentUpdated = "shipment.updated"
)

// Event 总线上传递的事件信封
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Decode 把 payload 解到 v
func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

type OrderPayload struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	UserID        string `json:"user_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Total         int64  `json:"total"`
	Currency      string `json:"currency"`
}

type PaymentPayload struct {
	PaymentID       string `json:"payment_id"`
	OrderID         string `json:"order_id"`
	UserID          string `json:"user_id"`
	GatewayIntentID string `json:"gateway_intent_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	FailureReason   string `json:"failure_reason,omitempty"`
}

type RefundPayload struct {
	RefundID        string `json:"refund_id"`
	PaymentID       string `json:"payment_id"`
	OrderID         string `json:"order_id"`
	UserID          string `json:"user_id"`
	GatewayRefundID string `json:"gateway_refund_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
}

type InvoicePayload struct {
	InvoiceID     string    `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	Total         int64     `json:"total"`
	Currency      string    `json:"currency"`
	IssuedAt      time.Time `json:"issued_at"`
	Document      string    `json:"document,omitempty"` // 纯文本发票，归档用
}

type ShipmentPayload struct {
	ShipmentID     string `json:"shipment_id"`
	OrderID        string `json:"order_id"`
	UserID         string `json:"user_id"`
	Status         string `json:"status"`
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}
