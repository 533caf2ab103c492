package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"order_payment_service/internal/domain/order/model"
	"order_payment_service/internal/pkg/events"
	"order_payment_service/internal/pkg/ledgertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// inTx 在事务中执行并返回提交后发出的事件
func inTx(t *testing.T, store *ledgertest.Store, fn func(ctx context.Context) error) ([]string, error) {
	t.Helper()
	pub := &events.RecordingPublisher{}
	ctx, batch := events.Collect(context.Background())
	err := store.WithinTransaction(ctx, fn)
	if err != nil {
		batch.Discard()
		return nil, err
	}
	batch.Flush(events.NewBus(pub, nil, ""))
	return pub.Topics(), nil
}

func TestStateMachineConfirm(t *testing.T) {
	store := ledgertest.New()
	hook := new(MockConfirmationHook)
	m := NewStateMachine(store.Orders(), []ConfirmationHook{hook}, nil)
	m.now = func() time.Time { return testNow }
	order := seedOrder(t, store, owner.UserID)
	hook.On("OnOrderConfirmed", mock.Anything, order.ID).Return(nil).Once()

	var result ConfirmResult
	topics, err := inTx(t, store, func(ctx context.Context) (err error) {
		result, err = m.Confirm(ctx, order.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, Confirmed, result)
	assert.Equal(t, []string{events.OrderConfirmed}, topics)

	got := store.Order(order.ID)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)
	require.NotNil(t, got.ConfirmedAt)
	assert.Equal(t, testNow, *got.ConfirmedAt)

	// 第二次确认不再触发 hook
	topics, err = inTx(t, store, func(ctx context.Context) (err error) {
		result, err = m.Confirm(ctx, order.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, AlreadyConfirmed, result)
	assert.Empty(t, topics)
	hook.AssertExpectations(t)
}

func TestStateMachineConfirmHookFailure(t *testing.T) {
	store := ledgertest.New()
	hook := new(MockConfirmationHook)
	m := NewStateMachine(store.Orders(), []ConfirmationHook{hook}, nil)
	order := seedOrder(t, store, owner.UserID)
	hook.On("OnOrderConfirmed", mock.Anything, order.ID).Return(errors.New("sequence locked"))

	_, err := inTx(t, store, func(ctx context.Context) error {
		_, err := m.Confirm(ctx, order.ID)
		return err
	})
	assert.Error(t, err)
	assert.Equal(t, model.StatusPending, store.Order(order.ID).Status)
	assert.Equal(t, model.PaymentUnpaid, store.Order(order.ID).PaymentStatus)
}

func TestStateMachineCapturedAfterCancel(t *testing.T) {
	store := ledgertest.New()
	m := NewStateMachine(store.Orders(), nil, nil)
	order := seedOrder(t, store, owner.UserID)

	_, err := inTx(t, store, func(ctx context.Context) error {
		_, err := m.Cancel(ctx, order.ID)
		return err
	})
	require.NoError(t, err)

	var result ConfirmResult
	topics, err := inTx(t, store, func(ctx context.Context) (err error) {
		result, err = m.Confirm(ctx, order.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, CapturedAfterCancel, result)
	assert.Equal(t, []string{events.PaymentCapturedAfterCancel}, topics)

	got := store.Order(order.ID)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)
}

func TestStateMachinePaymentStatus(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	m := NewStateMachine(store.Orders(), nil, nil)
	order := seedOrder(t, store, owner.UserID)

	ok, err := m.PaymentFailed(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.PaymentFailed, store.Order(order.ID).PaymentStatus)

	ok, err = m.PaymentRetried(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.PaymentUnpaid, store.Order(order.ID).PaymentStatus)

	// 未付款的订单不能进入退款状态
	ok, err = m.RefundSettled(ctx, order.ID, false)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = inTx(t, store, func(ctx context.Context) error {
		_, err := m.Confirm(ctx, order.ID)
		return err
	})
	require.NoError(t, err)

	ok, err = m.RefundSettled(ctx, order.ID, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.PaymentPartiallyRefunded, store.Order(order.ID).PaymentStatus)

	ok, err = m.RefundSettled(ctx, order.ID, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.PaymentRefunded, store.Order(order.ID).PaymentStatus)

	// 已付款后失败回调不会把状态打回去
	ok, err = m.PaymentFailed(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, model.PaymentRefunded, store.Order(order.ID).PaymentStatus)
}
