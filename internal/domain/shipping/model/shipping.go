package model

import (
	"strings"
	"time"

	baseModel "order_payment_service/pkg/model"
)

// ShippingRate 运费模板
type ShippingRate struct {
	baseModel.BaseModel
	baseModel.SoftDelete
	Name          string   `gorm:"type:varchar(100);not null" json:"name"`
	Method        string   `gorm:"type:varchar(32);not null" json:"method"` // STANDARD, EXPRESS ...
	Price         int64    `gorm:"not null" json:"price"`
	FreeThreshold *int64   `json:"freeThreshold"` // 订单金额达到该值免运费
	Countries     []string `gorm:"type:jsonb;serializer:json;not null" json:"countries"`
	EstimatedDays int      `gorm:"not null;default:0" json:"estimatedDays"`
	IsActive      bool     `gorm:"not null;default:true" json:"isActive"`
}

// Serves 是否配送到该国家
func (r *ShippingRate) Serves(country string) bool {
	for _, c := range r.Countries {
		if strings.EqualFold(c, country) {
			return true
		}
	}
	return false
}

// EffectiveCost 达到免邮门槛时为 0
func (r *ShippingRate) EffectiveCost(orderAmount int64) int64 {
	if r.FreeThreshold != nil && orderAmount >= *r.FreeThreshold {
		return 0
	}
	return r.Price
}

type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "PENDING"
	ShipmentShipped   ShipmentStatus = "SHIPPED"
	ShipmentDelivered ShipmentStatus = "DELIVERED"
	ShipmentCancelled ShipmentStatus = "CANCELLED"
)

// Shipment 发货单，订单确认时创建，每个订单一条
type Shipment struct {
	baseModel.BaseModel
	OrderID           string         `gorm:"type:uuid;uniqueIndex;not null" json:"orderId"`
	UserID            string         `gorm:"type:varchar(64);index;not null" json:"userId"`
	RateID            string         `gorm:"type:uuid;not null" json:"rateId"`
	Method            string         `gorm:"type:varchar(32)" json:"method"`
	TrackingNumber    string         `gorm:"type:varchar(100)" json:"trackingNumber"`
	Carrier           string         `gorm:"type:varchar(100)" json:"carrier"`
	Status            ShipmentStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	EstimatedDelivery *time.Time     `json:"estimatedDelivery"`
	ShippedAt         *time.Time     `json:"shippedAt"`
	DeliveredAt       *time.Time     `json:"deliveredAt"`
}
