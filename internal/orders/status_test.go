package orders

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
)

func TestCancelOnlyFromPendingOrProcessing(t *testing.T) {
	now := time.Now()
	for _, from := range []Status{StatusPending, StatusProcessing} {
		o := &Order{Status: from}
		assert.NoError(t, o.Transition(StatusCancelled, "u1", "changed my mind", now), from)
		assert.Equal(t, StatusCancelled, o.Status)
	}
	for _, from := range []Status{StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded} {
		o := &Order{Status: from}
		err := o.Transition(StatusCancelled, "u1", "", now)
		assert.True(t, errors.Is(err, apperr.ErrInvalidTransition), from)
		assert.Equal(t, from, o.Status, "status unchanged on rejected transition")
	}
}

func TestDeliveredSetsTimestamp(t *testing.T) {
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	o := &Order{Status: StatusProcessing}
	require.NoError(t, o.Transition(StatusShipped, "seller", "", now))
	require.NoError(t, o.Transition(StatusDelivered, "seller", "left at porter's lodge", now))
	require.NotNil(t, o.DeliveredAt)
	assert.Equal(t, now, *o.DeliveredAt)
	assert.Len(t, o.History, 2)
	assert.True(t, IsTerminal(o.Status))
}

func TestMarkPaid(t *testing.T) {
	now := time.Now()
	o := &Order{Status: StatusPending, PaymentStatus: PaymentPending}
	assert.False(t, o.IsPaid())
	require.NoError(t, o.MarkPaid("TXN-1", now))
	assert.Equal(t, StatusProcessing, o.Status)
	assert.True(t, o.IsPaid())

	cancelled := &Order{Status: StatusCancelled}
	assert.Error(t, cancelled.MarkPaid("TXN-2", now))
}

func TestTransactionMachine(t *testing.T) {
	now := time.Now()
	txn := &Transaction{Status: TxnPending}
	require.NoError(t, txn.Complete(`{}`, now))
	assert.NotNil(t, txn.PaidAt)
	assert.Error(t, txn.Fail(`{}`, now), "completed cannot fail")
	assert.True(t, CanTransitionTxn(TxnCompleted, TxnRefunded))
	assert.True(t, CanTransitionTxn(TxnFailed, TxnRefunded))
	assert.False(t, CanTransitionTxn(TxnRefunded, TxnPending))
}

func TestParsePaymentMethod(t *testing.T) {
	m, ok := ParsePaymentMethod("paystack")
	assert.True(t, ok)
	assert.Equal(t, MethodGateway, m)
	_, ok = ParsePaymentMethod("crypto")
	assert.False(t, ok)
}
