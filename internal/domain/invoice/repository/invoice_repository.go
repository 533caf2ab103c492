package repository

import (
	"context"
	"errors"
	"time"

	"order_payment_service/internal/domain/invoice/model"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/database"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InvoiceRepository interface {
	// CreateIfAbsent 每个订单只有一张发票，已存在返回 false
	CreateIfAbsent(ctx context.Context, invoice *model.Invoice) (bool, error)
	GetByID(ctx context.Context, id string) (*model.Invoice, error)
	GetByOrderID(ctx context.Context, orderID string) (*model.Invoice, error)
	List(ctx context.Context, userID string, offset, limit int) ([]model.Invoice, int64, error)
	// Void ISSUED -> VOID
	Void(ctx context.Context, id string, at time.Time) (bool, error)
	// NextNumber 当年的下一个序号，必须在事务内调用
	NextNumber(ctx context.Context, year int) (int64, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) CreateIfAbsent(ctx context.Context, invoice *model.Invoice) (bool, error) {
	result := database.Conn(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(invoice)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *invoiceRepository) GetByID(ctx context.Context, id string) (*model.Invoice, error) {
	return first(database.Conn(ctx, r.db).Where("id = ?", id))
}

func (r *invoiceRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Invoice, error) {
	return first(database.Conn(ctx, r.db).Where("order_id = ?", orderID))
}

func first(q *gorm.DB) (*model.Invoice, error) {
	var invoice model.Invoice
	err := q.First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("invoice not found")
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) List(ctx context.Context, userID string, offset, limit int) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	q := database.Conn(ctx, r.db).Model(&model.Invoice{})
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("issued_at DESC").Offset(offset).Limit(limit).Find(&invoices).Error
	return invoices, total, err
}

func (r *invoiceRepository) Void(ctx context.Context, id string, at time.Time) (bool, error) {
	result := database.Conn(ctx, r.db).Model(&model.Invoice{}).
		Where("id = ? AND status = ?", id, model.StatusIssued).
		UpdateColumns(map[string]interface{}{
			"status":     model.StatusVoid,
			"voided_at":  at,
			"updated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *invoiceRepository) NextNumber(ctx context.Context, year int) (int64, error) {
	var next int64
	err := database.Conn(ctx, r.db).Raw(`
		INSERT INTO invoice_sequences (year, last_value) VALUES (?, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value`, year).
		Scan(&next).Error
	return next, err
}
