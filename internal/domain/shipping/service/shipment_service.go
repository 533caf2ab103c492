package service

import (
	"context"
	"time"

	orderModel "order_payment_service/internal/domain/order/model"
	"order_payment_service/internal/domain/shipping/model"
	"order_payment_service/internal/domain/shipping/repository"
	"order_payment_service/internal/pkg/auth"
	"order_payment_service/internal/pkg/events"
	"order_payment_service/pkg/apperr"
	"order_payment_service/pkg/logger"

	"go.uber.org/zap"
)

type ShipmentUpdate struct {
	Status         *model.ShipmentStatus
	Carrier        *string
	TrackingNumber *string
}

type ShipmentService interface {
	// OnOrderConfirmed 订单确认时在同一事务内创建发货单
	OnOrderConfirmed(ctx context.Context, order *orderModel.Order) error

	Get(ctx context.Context, p auth.Principal, id string) (*model.Shipment, error)
	GetByOrder(ctx context.Context, p auth.Principal, orderID string) (*model.Shipment, error)
	List(ctx context.Context, status string, offset, limit int) ([]model.Shipment, int64, error)
	Update(ctx context.Context, id string, in ShipmentUpdate) (*model.Shipment, error)
}

type shipmentService struct {
	repo  repository.ShipmentRepository
	rates RateService
	bus   *events.Bus
	now   func() time.Time
}

func NewShipmentService(repo repository.ShipmentRepository, rates RateService, bus *events.Bus) ShipmentService {
	return &shipmentService{repo: repo, rates: rates, bus: bus, now: time.Now}
}

func (s *shipmentService) OnOrderConfirmed(ctx context.Context, order *orderModel.Order) error {
	shipment := &model.Shipment{
		OrderID: order.ID,
		UserID:  order.UserID,
		RateID:  order.ShippingRateID,
		Status:  model.ShipmentPending,
	}

	// 运费模板之后被删除也不影响发货单创建
	if rate, err := s.rates.GetRate(ctx, order.ShippingRateID); err == nil {
		shipment.Method = rate.Method
		if rate.EstimatedDays > 0 {
			eta := s.now().AddDate(0, 0, rate.EstimatedDays)
			shipment.EstimatedDelivery = &eta
		}
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return err
	}

	created, err := s.repo.CreateIfAbsent(ctx, shipment)
	if err != nil {
		return err
	}
	if !created {
		logger.Log.Debug("shipment already exists", zap.String("order_id", order.ID))
		return nil
	}
	events.Add(ctx, events.ShipmentUpdated, order.ID, payload(shipment))
	return nil
}

func (s *shipmentService) Get(ctx context.Context, p auth.Principal, id string) (*model.Shipment, error) {
	shipment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(shipment.UserID) {
		return nil, apperr.Forbidden("you do not have access to this shipment")
	}
	return shipment, nil
}

func (s *shipmentService) GetByOrder(ctx context.Context, p auth.Principal, orderID string) (*model.Shipment, error) {
	shipment, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(shipment.UserID) {
		return nil, apperr.Forbidden("you do not have access to this shipment")
	}
	return shipment, nil
}

func (s *shipmentService) List(ctx context.Context, status string, offset, limit int) ([]model.Shipment, int64, error) {
	return s.repo.List(ctx, status, offset, limit)
}

// 合法的发货单状态流转
var shipmentTransitions = map[model.ShipmentStatus]model.ShipmentStatus{
	model.ShipmentShipped:   model.ShipmentPending,
	model.ShipmentDelivered: model.ShipmentShipped,
	model.ShipmentCancelled: model.ShipmentPending,
}

func (s *shipmentService) Update(ctx context.Context, id string, in ShipmentUpdate) (*model.Shipment, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Status == nil {
		if in.Carrier == nil && in.TrackingNumber == nil {
			return nil, apperr.Validation("nothing to update")
		}
		carrier, tracking := current.Carrier, current.TrackingNumber
		if in.Carrier != nil {
			carrier = *in.Carrier
		}
		if in.TrackingNumber != nil {
			tracking = *in.TrackingNumber
		}
		ok, err := s.repo.UpdateTracking(ctx, id, carrier, tracking)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Unprocessable("tracking can only change before delivery")
		}
		return s.reload(ctx, id)
	}

	to := *in.Status
	from, legal := shipmentTransitions[to]
	if !legal {
		return nil, apperr.Validation("unsupported shipment status " + string(to))
	}
	if current.Status == to {
		return current, nil
	}

	fields := map[string]interface{}{}
	now := s.now()
	switch to {
	case model.ShipmentShipped:
		carrier, tracking := current.Carrier, current.TrackingNumber
		if in.Carrier != nil {
			carrier = *in.Carrier
		}
		if in.TrackingNumber != nil {
			tracking = *in.TrackingNumber
		}
		if carrier == "" || tracking == "" {
			return nil, apperr.Validation("carrier and trackingNumber are required to ship")
		}
		fields["carrier"] = carrier
		fields["tracking_number"] = tracking
		fields["shipped_at"] = now
	case model.ShipmentDelivered:
		fields["delivered_at"] = now
	}

	ok, err := s.repo.Transition(ctx, id, from, to, fields)
	if err != nil {
		return nil, err
	}
	updated, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		if updated.Status == to {
			return updated, nil
		}
		return nil, apperr.Newf(apperr.KindUnprocessable, "cannot move shipment from %s to %s", updated.Status, to)
	}

	s.bus.Emit(events.ShipmentUpdated, updated.OrderID, payload(updated))
	return updated, nil
}

func (s *shipmentService) reload(ctx context.Context, id string) (*model.Shipment, error) {
	return s.repo.GetByID(ctx, id)
}

func payload(s *model.Shipment) events.ShipmentPayload {
	return events.ShipmentPayload{
		ShipmentID:     s.ID,
		OrderID:        s.OrderID,
		UserID:         s.UserID,
		Status:         string(s.Status),
		Carrier:        s.Carrier,
		TrackingNumber: s.TrackingNumber,
	}
}
