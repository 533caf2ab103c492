package repository

import (
	"context"
	"errors"
	"time"

	"order_payment_service/internal/domain/shipping/model"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/database"
	baseModel "order_payment_service/pkg/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RateRepository interface {
	Create(ctx context.Context, rate *model.ShippingRate) error
	GetByID(ctx context.Context, id string) (*model.ShippingRate, error)
	List(ctx context.Context, activeOnly bool) ([]model.ShippingRate, error)
	Update(ctx context.Context, rate *model.ShippingRate) error
	Delete(ctx context.Context, id string) error
}

type rateRepository struct {
	db *gorm.DB
}

func NewRateRepository(db *gorm.DB) RateRepository {
	return &rateRepository{db: db}
}

func (r *rateRepository) Create(ctx context.Context, rate *model.ShippingRate) error {
	return database.Conn(ctx, r.db).Create(rate).Error
}

func (r *rateRepository) GetByID(ctx context.Context, id string) (*model.ShippingRate, error) {
	var rate model.ShippingRate
	err := database.Conn(ctx, r.db).Where(baseModel.NotDeleted).First(&rate, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("shipping rate not found")
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

func (r *rateRepository) List(ctx context.Context, activeOnly bool) ([]model.ShippingRate, error) {
	var rates []model.ShippingRate
	q := database.Conn(ctx, r.db).Where(baseModel.NotDeleted)
	if activeOnly {
		q = q.Where("is_active")
	}
	err := q.Order("price").Find(&rates).Error
	return rates, err
}

func (r *rateRepository) Update(ctx context.Context, rate *model.ShippingRate) error {
	result := database.Conn(ctx, r.db).Model(rate).
		Where(baseModel.NotDeleted).
		Select("name", "method", "price", "free_threshold", "countries", "estimated_days", "is_active").
		Updates(rate)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("shipping rate not found")
	}
	return nil
}

func (r *rateRepository) Delete(ctx context.Context, id string) error {
	result := database.Conn(ctx, r.db).Model(&model.ShippingRate{}).
		Where("id = ? AND "+baseModel.NotDeleted, id).
		UpdateColumn("deleted_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("shipping rate not found")
	}
	return nil
}

type ShipmentRepository interface {
	// CreateIfAbsent 每个订单只有一条发货单，已存在时返回 false
	CreateIfAbsent(ctx context.Context, s *model.Shipment) (bool, error)
	GetByID(ctx context.Context, id string) (*model.Shipment, error)
	GetByOrderID(ctx context.Context, orderID string) (*model.Shipment, error)
	List(ctx context.Context, status string, offset, limit int) ([]model.Shipment, int64, error)
	// Transition 仅当当前状态为 from 时更新，返回是否生效
	Transition(ctx context.Context, id string, from, to model.ShipmentStatus, fields map[string]interface{}) (bool, error)
	UpdateTracking(ctx context.Context, id, carrier, trackingNumber string) (bool, error)
}

type shipmentRepository struct {
	db *gorm.DB
}

func NewShipmentRepository(db *gorm.DB) ShipmentRepository {
	return &shipmentRepository{db: db}
}

func (r *shipmentRepository) CreateIfAbsent(ctx context.Context, s *model.Shipment) (bool, error) {
	result := database.Conn(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(s)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *shipmentRepository) GetByID(ctx context.Context, id string) (*model.Shipment, error) {
	return r.first(database.Conn(ctx, r.db).Where("id = ?", id))
}

func (r *shipmentRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Shipment, error) {
	return r.first(database.Conn(ctx, r.db).Where("order_id = ?", orderID))
}

func (r *shipmentRepository) first(q *gorm.DB) (*model.Shipment, error) {
	var s model.Shipment
	err := q.First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("shipment not found")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *shipmentRepository) List(ctx context.Context, status string, offset, limit int) ([]model.Shipment, int64, error) {
	var list []model.Shipment
	var total int64
	q := database.Conn(ctx, r.db).Model(&model.Shipment{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *shipmentRepository) Transition(ctx context.Context, id string, from, to model.ShipmentStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to, "updated_at": time.Now()}
	for k, v := range fields {
		updates[k] = v
	}
	result := database.Conn(ctx, r.db).Model(&model.Shipment{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(updates)
	return result.RowsAffected > 0, result.Error
}

func (r *shipmentRepository) UpdateTracking(ctx context.Context, id, carrier, trackingNumber string) (bool, error) {
	result := database.Conn(ctx, r.db).Model(&model.Shipment{}).
		Where("id = ? AND status IN ?", id, []model.ShipmentStatus{model.ShipmentPending, model.ShipmentShipped}).
		UpdateColumns(map[string]interface{}{
			"carrier":         carrier,
			"tracking_number": trackingNumber,
			"updated_at":      time.Now(),
		})
	return result.RowsAffected > 0, result.Error
}
