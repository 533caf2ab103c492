package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"order_payment_service/internal/domain/order/model"
	"order_payment_service/internal/pkg/auth"
	"order_payment_service/internal/pkg/events"
	"order_payment_service/internal/pkg/ledgertest"
	"order_payment_service/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPaymentCanceller struct {
	mock.Mock
}

func (m *MockPaymentCanceller) CancelOpenPayments(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

type MockCancellationHook struct {
	mock.Mock
}

func (m *MockCancellationHook) OnOrderCancelled(ctx context.Context, order *model.Order) error {
	args := m.Called(ctx, order.ID)
	return args.Error(0)
}

type MockConfirmationHook struct {
	mock.Mock
}

func (m *MockConfirmationHook) OnOrderConfirmed(ctx context.Context, order *model.Order) error {
	args := m.Called(ctx, order.ID)
	return args.Error(0)
}

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

var (
	owner    = auth.Principal{UserID: "user-1", Role: auth.RoleUser}
	stranger = auth.Principal{UserID: "user-2", Role: auth.RoleUser}
	admin    = auth.Principal{UserID: "ops", Role: auth.RoleAdmin}
)

func seedOrder(t *testing.T, store *ledgertest.Store, userID string) *model.Order {
	t.Helper()
	o := &model.Order{
		OrderNumber:   model.NewOrderNumber(testNow),
		UserID:        userID,
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentUnpaid,
		TotalAmount:   1000,
		Currency:      "gbp",
	}
	require.NoError(t, store.Orders().Create(context.Background(), o))
	return o
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels pending order", func(t *testing.T) {
		store := ledgertest.New()
		payments := new(MockPaymentCanceller)
		hook := new(MockCancellationHook)
		pub := &events.RecordingPublisher{}
		machine := NewStateMachine(store.Orders(), nil, []CancellationHook{hook})
		s := NewOrderService(store.Orders(), machine, payments, store, events.NewBus(pub, nil, ""))

		order := seedOrder(t, store, owner.UserID)
		payments.On("CancelOpenPayments", mock.Anything, order.ID).Return(nil)
		hook.On("OnOrderCancelled", mock.Anything, order.ID).Return(nil)

		got, err := s.Cancel(ctx, owner, order.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, got.Status)
		assert.NotNil(t, got.CancelledAt)
		assert.Equal(t, []string{events.OrderCancelled}, pub.Topics())
		payments.AssertExpectations(t)
		hook.AssertExpectations(t)

		_, err = s.Cancel(ctx, owner, order.ID)
		assert.True(t, apperr.Is(err, apperr.KindUnprocessable))
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		store := ledgertest.New()
		s := NewOrderService(store.Orders(), NewStateMachine(store.Orders(), nil, nil), new(MockPaymentCanceller), store, nil)
		order := seedOrder(t, store, owner.UserID)

		_, err := s.Cancel(ctx, stranger, order.ID)
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
		assert.Equal(t, model.StatusPending, store.Order(order.ID).Status)
	})

	t.Run("gateway failure keeps order pending", func(t *testing.T) {
		store := ledgertest.New()
		payments := new(MockPaymentCanceller)
		s := NewOrderService(store.Orders(), NewStateMachine(store.Orders(), nil, nil), payments, store, nil)
		order := seedOrder(t, store, owner.UserID)
		payments.On("CancelOpenPayments", mock.Anything, order.ID).
			Return(apperr.Wrap(apperr.KindUnprocessable, errors.New("stripe down"), "could not cancel the previous payment attempt"))

		_, err := s.Cancel(ctx, admin, order.ID)
		assert.True(t, apperr.Is(err, apperr.KindUnprocessable))
		assert.Equal(t, model.StatusPending, store.Order(order.ID).Status)
	})

	t.Run("hook failure rolls back", func(t *testing.T) {
		store := ledgertest.New()
		payments := new(MockPaymentCanceller)
		hook := new(MockCancellationHook)
		s := NewOrderService(store.Orders(), NewStateMachine(store.Orders(), nil, []CancellationHook{hook}), payments, store, nil)
		order := seedOrder(t, store, owner.UserID)
		payments.On("CancelOpenPayments", mock.Anything, order.ID).Return(nil)
		hook.On("OnOrderCancelled", mock.Anything, order.ID).Return(errors.New("db gone"))

		_, err := s.Cancel(ctx, owner, order.ID)
		assert.Error(t, err)
		assert.Equal(t, model.StatusPending, store.Order(order.ID).Status)
	})
}

func TestTransition(t *testing.T) {
	store := ledgertest.New()
	s := NewOrderService(store.Orders(), NewStateMachine(store.Orders(), nil, nil), new(MockPaymentCanceller), store, nil)
	order := seedOrder(t, store, owner.UserID)

	_, err := s.Transition(context.Background(), owner, order.ID, model.StatusConfirmed)
	assert.True(t, apperr.Is(err, apperr.KindUnprocessable))

	_, err = s.Transition(context.Background(), owner, order.ID, model.Status("SHIPPED"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, model.StatusPending, store.Order(order.ID).Status)
}

func TestListAndGet(t *testing.T) {
	store := ledgertest.New()
	s := NewOrderService(store.Orders(), NewStateMachine(store.Orders(), nil, nil), new(MockPaymentCanceller), store, nil)
	mine := seedOrder(t, store, owner.UserID)
	seedOrder(t, store, stranger.UserID)

	list, total, err := s.List(context.Background(), owner, ListQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	_, total, err = s.List(context.Background(), admin, ListQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, err = s.Get(context.Background(), stranger, mine.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = s.Get(context.Background(), owner, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
