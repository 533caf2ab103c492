package service

import (
	"context"
	"fmt"
	"time"

	"order_payment_service/internal/domain/invoice/model"
	"order_payment_service/internal/domain/invoice/repository"
	orderModel "order_payment_service/internal/domain/order/model"
	"order_payment_service/internal/pkg/auth"
	"order_payment_service/internal/pkg/config"
	"order_payment_service/internal/pkg/events"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/database"
	"order_payment_service/pkg/logger"
	"order_payment_service/pkg/metrics"

	"go.uber.org/zap"
)

// Document 可下载的发票文件
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

type InvoiceService interface {
	// OnOrderConfirmed 订单确认的同一事务内开票
	OnOrderConfirmed(ctx context.Context, order *orderModel.Order) error

	Get(ctx context.Context, p auth.Principal, id string) (*model.Invoice, error)
	GetByOrder(ctx context.Context, p auth.Principal, orderID string) (*model.Invoice, error)
	List(ctx context.Context, p auth.Principal, offset, limit int) ([]model.Invoice, int64, error)
	// Void 作废，已作废的直接返回
	Void(ctx context.Context, id string) (*model.Invoice, error)
	Download(ctx context.Context, p auth.Principal, id string) (*Document, error)
}

type invoiceService struct {
	repo    repository.InvoiceRepository
	tx      database.Transactor
	bus     *events.Bus
	cfg     config.InvoiceConfig
	metrics *metrics.MetricsCollector
	now     func() time.Time
}

func NewInvoiceService(repo repository.InvoiceRepository, tx database.Transactor, bus *events.Bus, cfg config.InvoiceConfig, m *metrics.MetricsCollector) InvoiceService {
	if cfg.Prefix == "" {
		cfg.Prefix = "INV"
	}
	if cfg.DueDays <= 0 {
		cfg.DueDays = 30
	}
	return &invoiceService{repo: repo, tx: tx, bus: bus, cfg: cfg, metrics: m, now: time.Now}
}

func (s *invoiceService) OnOrderConfirmed(ctx context.Context, order *orderModel.Order) error {
	issuedAt := s.now().UTC()
	seq, err := s.repo.NextNumber(ctx, issuedAt.Year())
	if err != nil {
		return err
	}

	lines := make([]model.Line, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, model.Line{
			ProductID:  item.ProductID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
		})
	}

	invoice := &model.Invoice{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		InvoiceNumber:  fmt.Sprintf("%s-%d-%06d", s.cfg.Prefix, issuedAt.Year(), seq),
		Status:         model.StatusIssued,
		Subtotal:       order.Subtotal,
		TaxAmount:      order.TaxAmount,
		ShippingAmount: order.ShippingAmount,
		DiscountAmount: order.DiscountAmount,
		TotalAmount:    order.TotalAmount,
		Currency:       order.Currency,
		BillingAddress: order.ShippingAddress,
		Lines:          lines,
		IssuedAt:       issuedAt,
		DueAt:          issuedAt.AddDate(0, 0, s.cfg.DueDays),
	}

	created, err := s.repo.CreateIfAbsent(ctx, invoice)
	if err != nil {
		return err
	}
	if !created {
		// 序号会留空，发票号不要求连续
		logger.Log.Debug("invoice already issued", zap.String("order_id", order.ID))
		return nil
	}

	s.metrics.RecordInvoiceIssued()
	events.Add(ctx, events.InvoiceIssued, order.ID, payload(invoice))
	logger.Log.Info("invoice issued", zap.String("order_id", order.ID), zap.String("invoice_number", invoice.InvoiceNumber))
	return nil
}

func (s *invoiceService) Get(ctx context.Context, p auth.Principal, id string) (*model.Invoice, error) {
	invoice, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(invoice.UserID) {
		return nil, apperr.Forbidden("you do not have access to this invoice")
	}
	return invoice, nil
}

func (s *invoiceService) GetByOrder(ctx context.Context, p auth.Principal, orderID string) (*model.Invoice, error) {
	invoice, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(invoice.UserID) {
		return nil, apperr.Forbidden("you do not have access to this invoice")
	}
	return invoice, nil
}

func (s *invoiceService) List(ctx context.Context, p auth.Principal, offset, limit int) ([]model.Invoice, int64, error) {
	userID := ""
	if !p.IsAdmin() {
		userID = p.UserID
	}
	return s.repo.List(ctx, userID, offset, limit)
}

func (s *invoiceService) Void(ctx context.Context, id string) (*model.Invoice, error) {
	var invoice *model.Invoice
	ctx, batch := events.Collect(ctx)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		voided, err := s.repo.Void(ctx, id, s.now().UTC())
		if err != nil {
			return err
		}
		invoice, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if voided {
			events.Add(ctx, events.InvoiceVoided, invoice.OrderID, payload(invoice))
			logger.Log.Info("invoice voided", zap.String("invoice_number", invoice.InvoiceNumber))
		}
		return nil
	})
	if err != nil {
		batch.Discard()
		return nil, err
	}
	batch.Flush(s.bus)
	return invoice, nil
}

func (s *invoiceService) Download(ctx context.Context, p auth.Principal, id string) (*Document, error) {
	invoice, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return &Document{
		Filename:    invoice.InvoiceNumber + ".txt",
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(Render(invoice)),
	}, nil
}

func payload(inv *model.Invoice) events.InvoicePayload {
	return events.InvoicePayload{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		OrderID:       inv.OrderID,
		UserID:        inv.UserID,
		Total:         inv.TotalAmount,
		Currency:      inv.Currency,
		IssuedAt:      inv.IssuedAt,
		Document:      Render(inv),
	}
}
