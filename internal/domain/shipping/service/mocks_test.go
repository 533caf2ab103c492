package service

import (
	"context"

	"order_payment_service/internal/domain/shipping/model"

	"github.com/stretchr/testify/mock"
)

// MockRateRepository is a mock of RateRepository
type MockRateRepository struct {
	mock.Mock
}

func (m *MockRateRepository) Create(ctx context.Context, rate *model.ShippingRate) error {
	args := m.Called(ctx, rate)
	return args.Error(0)
}

func (m *MockRateRepository) GetByID(ctx context.Context, id string) (*model.ShippingRate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ShippingRate), args.Error(1)
}

func (m *MockRateRepository) List(ctx context.Context, activeOnly bool) ([]model.ShippingRate, error) {
	args := m.Called(ctx, activeOnly)
	return args.Get(0).([]model.ShippingRate), args.Error(1)
}

func (m *MockRateRepository) Update(ctx context.Context, rate *model.ShippingRate) error {
	args := m.Called(ctx, rate)
	return args.Error(0)
}

func (m *MockRateRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockShipmentRepository is a mock of ShipmentRepository
type MockShipmentRepository struct {
	mock.Mock
}

func (m *MockShipmentRepository) CreateIfAbsent(ctx context.Context, s *model.Shipment) (bool, error) {
	args := m.Called(ctx, s)
	return args.Bool(0), args.Error(1)
}

func (m *MockShipmentRepository) GetByID(ctx context.Context, id string) (*model.Shipment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Shipment), args.Error(1)
}

func (m *MockShipmentRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Shipment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Shipment), args.Error(1)
}

func (m *MockShipmentRepository) List(ctx context.Context, status string, offset, limit int) ([]model.Shipment, int64, error) {
	args := m.Called(ctx, status, offset, limit)
	return args.Get(0).([]model.Shipment), args.Get(1).(int64), args.Error(2)
}

func (m *MockShipmentRepository) Transition(ctx context.Context, id string, from, to model.ShipmentStatus, fields map[string]interface{}) (bool, error) {
	args := m.Called(ctx, id, from, to, fields)
	return args.Bool(0), args.Error(1)
}

func (m *MockShipmentRepository) UpdateTracking(ctx context.Context, id, carrier, trackingNumber string) (bool, error) {
	args := m.Called(ctx, id, carrier, trackingNumber)
	return args.Bool(0), args.Error(1)
}
