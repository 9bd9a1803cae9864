package orders

import (
	"time"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
)

var orderTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered, StatusRefunded},
}

var txnTransitions = map[TxnStatus][]TxnStatus{
	TxnPending:   {TxnCompleted, TxnFailed},
	TxnCompleted: {TxnRefunded},
	TxnFailed:    {TxnRefunded},
}

// CanTransition reports whether an order may move from one status to another.
// Cancelled, delivered and refunded are terminal.
func CanTransition(from, to Status) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func CanTransitionTxn(from, to TxnStatus) bool {
	for _, s := range txnTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	return len(orderTransitions[s]) == 0
}

// Transition moves the order to status `to`, recording a history entry.
func (o *Order) Transition(to Status, actor, note string, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return apperr.InvalidTransition(string(o.Status), string(to))
	}
	o.Status = to
	o.UpdatedAt = at
	if to == StatusDelivered {
		t := at
		o.DeliveredAt = &t
	}
	o.History = append(o.History, HistoryEntry{Status: to, Note: note, ChangedBy: actor, At: at})
	return nil
}

// MarkPaid records a confirmed payment. A pending order moves to processing;
// an order a seller already advanced keeps its status.
func (o *Order) MarkPaid(reference string, at time.Time) error {
	if o.Status == StatusPending {
		if err := o.Transition(StatusProcessing, "system", "payment confirmed", at); err != nil {
			return err
		}
	} else if IsTerminal(o.Status) {
		return apperr.InvalidTransition(string(o.Status), string(StatusProcessing))
	}
	t := at
	o.PaymentStatus = PaymentPaid
	o.PaidAt = &t
	o.PaymentReference = reference
	o.UpdatedAt = at
	return nil
}

// Complete marks a pending transaction as paid.
func (t *Transaction) Complete(raw string, at time.Time) error {
	if !CanTransitionTxn(t.Status, TxnCompleted) {
		return apperr.InvalidTransition(string(t.Status), string(TxnCompleted))
	}
	paid := at
	t.Status = TxnCompleted
	t.GatewayResponse = raw
	t.PaidAt = &paid
	t.UpdatedAt = at
	return nil
}

// Fail marks a pending transaction as failed.
func (t *Transaction) Fail(raw string, at time.Time) error {
	if !CanTransitionTxn(t.Status, TxnFailed) {
		return apperr.InvalidTransition(string(t.Status), string(TxnFailed))
	}
	t.Status = TxnFailed
	t.GatewayResponse = raw
	t.UpdatedAt = at
	return nil
}
