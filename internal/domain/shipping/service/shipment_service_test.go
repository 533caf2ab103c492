package service

import (
	"context"
	"testing"
	"time"

	orderModel "order_payment_service/internal/domain/order/model"
	"order_payment_service/internal/domain/shipping/model"
	"order_payment_service/internal/pkg/auth"
	"order_payment_service/internal/pkg/events"
	"order_payment_service/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newShipmentService(repo *MockShipmentRepository, rates *MockRateRepository) (*shipmentService, *events.RecordingPublisher) {
	pub := &events.RecordingPublisher{}
	svc := NewShipmentService(repo, NewRateService(rates, nil, 0), events.NewBus(pub, nil, "")).(*shipmentService)
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc, pub
}

func shipment(status model.ShipmentStatus) *model.Shipment {
	s := &model.Shipment{OrderID: "order-1", UserID: "user-1", RateID: "rate-1", Status: status}
	s.ID = "ship-1"
	return s
}

func TestOnOrderConfirmed(t *testing.T) {
	repo := new(MockShipmentRepository)
	rates := new(MockRateRepository)
	svc, _ := newShipmentService(repo, rates)

	order := &orderModel.Order{UserID: "user-1", ShippingRateID: "rate-1"}
	order.ID = "order-1"

	rates.On("GetByID", mock.Anything, "rate-1").Return(standardRate(), nil)
	repo.On("CreateIfAbsent", mock.Anything, mock.MatchedBy(func(s *model.Shipment) bool {
		return s.Status == model.ShipmentPending && s.Method == "STANDARD" &&
			s.EstimatedDelivery != nil && s.EstimatedDelivery.Equal(time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	})).Return(true, nil)

	ctx, batch := events.Collect(context.Background())
	require.NoError(t, svc.OnOrderConfirmed(ctx, order))
	assert.Equal(t, 1, batch.Len())
	repo.AssertExpectations(t)
}

func TestUpdateShipment(t *testing.T) {
	ctx := context.Background()

	t.Run("Ship with tracking", func(t *testing.T) {
		repo := new(MockShipmentRepository)
		svc, pub := newShipmentService(repo, new(MockRateRepository))
		shipped := shipment(model.ShipmentShipped)
		shipped.Carrier, shipped.TrackingNumber = "Royal Mail", "RM123"

		repo.On("GetByID", ctx, "ship-1").Return(shipment(model.ShipmentPending), nil).Once()
		repo.On("Transition", ctx, "ship-1", model.ShipmentPending, model.ShipmentShipped, mock.MatchedBy(func(f map[string]interface{}) bool {
			return f["carrier"] == "Royal Mail" && f["tracking_number"] == "RM123" && f["shipped_at"] != nil
		})).Return(true, nil)
		repo.On("GetByID", ctx, "ship-1").Return(shipped, nil).Once()

		status := model.ShipmentShipped
		carrier, tracking := "Royal Mail", "RM123"
		got, err := svc.Update(ctx, "ship-1", ShipmentUpdate{Status: &status, Carrier: &carrier, TrackingNumber: &tracking})
		require.NoError(t, err)
		assert.Equal(t, model.ShipmentShipped, got.Status)
		assert.Equal(t, []string{events.ShipmentUpdated}, pub.Topics())
	})

	t.Run("Ship without tracking", func(t *testing.T) {
		repo := new(MockShipmentRepository)
		svc, _ := newShipmentService(repo, new(MockRateRepository))
		repo.On("GetByID", ctx, "ship-1").Return(shipment(model.ShipmentPending), nil)

		status := model.ShipmentShipped
		_, err := svc.Update(ctx, "ship-1", ShipmentUpdate{Status: &status})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("Delivered only from shipped", func(t *testing.T) {
		repo := new(MockShipmentRepository)
		svc, pub := newShipmentService(repo, new(MockRateRepository))
		repo.On("GetByID", ctx, "ship-1").Return(shipment(model.ShipmentPending), nil)
		repo.On("Transition", ctx, "ship-1", model.ShipmentShipped, model.ShipmentDelivered, mock.Anything).Return(false, nil)

		status := model.ShipmentDelivered
		_, err := svc.Update(ctx, "ship-1", ShipmentUpdate{Status: &status})
		assert.True(t, apperr.Is(err, apperr.KindUnprocessable))
		assert.Empty(t, pub.Messages)
	})

	t.Run("Repeated transition is a no-op", func(t *testing.T) {
		repo := new(MockShipmentRepository)
		svc, _ := newShipmentService(repo, new(MockRateRepository))
		repo.On("GetByID", ctx, "ship-1").Return(shipment(model.ShipmentDelivered), nil)

		status := model.ShipmentDelivered
		got, err := svc.Update(ctx, "ship-1", ShipmentUpdate{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, model.ShipmentDelivered, got.Status)
		repo.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGetShipmentOwnership(t *testing.T) {
	ctx := context.Background()
	repo := new(MockShipmentRepository)
	svc, _ := newShipmentService(repo, new(MockRateRepository))
	repo.On("GetByID", ctx, "ship-1").Return(shipment(model.ShipmentPending), nil)

	_, err := svc.Get(ctx, auth.Principal{UserID: "someone-else", Role: auth.RoleUser}, "ship-1")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	got, err := svc.Get(ctx, auth.Principal{UserID: "admin", Role: auth.RoleAdmin}, "ship-1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", got.OrderID)
}
