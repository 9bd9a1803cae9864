package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
	"github.com/imrishuroy/campus-checkout/internal/auth"
	"github.com/imrishuroy/campus-checkout/internal/catalog"
	"github.com/imrishuroy/campus-checkout/internal/orders"
	"github.com/imrishuroy/campus-checkout/internal/paystack"
)

// Outcome is the result of a settlement attempt.
type Outcome string

const (
	OutcomePaid        Outcome = "paid"
	OutcomeAlreadyPaid Outcome = "already_paid"
	OutcomeFailed      Outcome = "failed"
	OutcomePending     Outcome = "pending"
)

type Settled struct {
	Outcome     Outcome             `json:"outcome"`
	Message     string              `json:"message"`
	Order       *orders.Order       `json:"order,omitempty"`
	Transaction *orders.Transaction `json:"transaction,omitempty"`
}

// Success reports whether the order's payment is confirmed.
func (r *Settled) Success() bool {
	return r.Outcome == OutcomePaid || r.Outcome == OutcomeAlreadyPaid
}

// VerifyPayment settles reference on behalf of a buyer returning from the
// gateway. Only the paying user (or staff) may trigger it.
func (s *Service) VerifyPayment(ctx context.Context, actor auth.Actor, reference string) (*Settled, error) {
	txn, err := s.transaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, auth.Resource{OwnerID: txn.UserID}); err != nil {
		return nil, err
	}
	return s.Settle(ctx, reference)
}

func (s *Service) transaction(ctx context.Context, reference string) (*orders.Transaction, error) {
	txn, err := s.ledger.GetTransaction(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if txn == nil {
		return nil, apperr.NotFound("transaction not found")
	}
	return txn, nil
}

// Settle confirms a payment with the gateway and applies the outcome. The
// verify endpoint and the webhook both end up here; repeated calls for the
// same reference change nothing after the first success.
func (s *Service) Settle(ctx context.Context, reference string) (*Settled, error) {
	txn, err := s.transaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	switch txn.Status {
	case orders.TxnCompleted:
		return s.alreadySettled(ctx, txn)
	case orders.TxnRefunded:
		return nil, apperr.InvalidTransition(string(txn.Status), string(orders.TxnCompleted))
	}

	vr := s.gateway.Verify(ctx, reference)
	if !vr.Success {
		log.Printf("[settlement] verify failed ref=%s msg=%q", reference, vr.Message)
		s.count(ctx, "GatewayFailures", map[string]string{"Operation": "verify"})
		return nil, apperr.GatewayFailure("payment verification failed: " + vr.Message)
	}

	switch vr.Status {
	case paystack.VerifyPending:
		return &Settled{Outcome: OutcomePending, Message: "payment not completed yet", Transaction: txn}, nil
	case paystack.VerifyFailed:
		return s.fail(ctx, txn, string(vr.Raw), "payment failed: "+vr.RawStatus)
	}

	if vr.PaidAmount != nil && vr.PaidAmount.LessThan(txn.ChargeAmount()) {
		log.Printf("[settlement] UNDERPAID ref=%s paid=%s expected=%s", reference, vr.PaidAmount, txn.ChargeAmount())
		return s.fail(ctx, txn, string(vr.Raw), "amount paid does not match the order total")
	}
	if vr.Currency != "" && vr.Currency != txn.Currency {
		log.Printf("[settlement] CURRENCY MISMATCH ref=%s paid=%s expected=%s", reference, vr.Currency, txn.Currency)
		return s.fail(ctx, txn, string(vr.Raw), "payment currency does not match")
	}
	if txn.Status == orders.TxnFailed {
		log.Printf("[settlement] ALERT gateway reports success for failed transaction ref=%s order=%s", reference, txn.OrderNumber)
		s.count(ctx, "SettlementAnomalies", map[string]string{"Kind": "success_after_failure"})
		return nil, apperr.InvalidTransition(string(txn.Status), string(orders.TxnCompleted))
	}

	return s.complete(ctx, txn, string(vr.Raw))
}

// complete applies a confirmed payment, retrying when a concurrent writer
// moved the order or the stock between the read and the write.
func (s *Service) complete(ctx context.Context, pending *orders.Transaction, raw string) (*Settled, error) {
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		txn := *pending
		now := s.nowFunc().UTC()
		if err := txn.Complete(raw, now); err != nil {
			return nil, err
		}

		order, err := s.ledger.GetOrder(ctx, txn.OrderNumber)
		if err != nil {
			return nil, fmt.Errorf("get order: %w", err)
		}
		if order == nil {
			return nil, fmt.Errorf("order %s of transaction %s is missing", txn.OrderNumber, txn.Reference)
		}

		st := Settlement{Transaction: &txn}
		switch {
		case order.IsPaid():
			log.Printf("[settlement] WARN order=%s already paid by ref=%s, recording ref=%s only", order.OrderNumber, order.PaymentReference, txn.Reference)
		case orders.IsTerminal(order.Status):
			log.Printf("[settlement] WARN payment for %s order=%s ref=%s, recording transaction only", order.Status, order.OrderNumber, txn.Reference)
		default:
			expected := order.Status
			if err := order.MarkPaid(txn.Reference, now); err != nil {
				return nil, err
			}
			st.Order = order
			st.ExpectedStatus = expected
			if st.Decrements, err = s.plannedDecrements(ctx, order); err != nil {
				return nil, err
			}
		}

		err = s.ledger.Settle(ctx, st)
		switch {
		case err == nil:
			log.Printf("[settlement] settled order=%s ref=%s amount=%s lines=%d decrements=%d",
				order.OrderNumber, txn.Reference, txn.ChargeAmount(), len(order.Items), len(st.Decrements))
			if st.Order != nil {
				s.publish(ctx, orders.EventPaymentSucceeded, order, txn.Reference)
			}
			s.count(ctx, "PaymentsSettled", map[string]string{"Currency": txn.Currency})
			return &Settled{Outcome: OutcomePaid, Message: "Payment verified successfully", Order: order, Transaction: &txn}, nil
		case errors.Is(err, orders.ErrStatusMismatch):
			// someone else settled or failed this transaction first
			current, gerr := s.transaction(ctx, txn.Reference)
			if gerr != nil {
				return nil, gerr
			}
			if current.Status == orders.TxnCompleted {
				return s.alreadySettled(ctx, current)
			}
			return nil, apperr.InvalidTransition(string(current.Status), string(orders.TxnCompleted))
		case errors.Is(err, ErrOrderChanged), errors.Is(err, ErrStockChanged):
			log.Printf("[settlement] retry order=%s ref=%s attempt=%d: %v", order.OrderNumber, txn.Reference, attempt, err)
			continue
		default:
			return nil, err
		}
	}
	return nil, apperr.Conflict("could not settle %s, please retry", pending.Reference)
}

// plannedDecrements returns the stock decrements for order, skipping rows
// that no longer hold enough units. Skipped rows are logged for follow-up.
func (s *Service) plannedDecrements(ctx context.Context, order *orders.Order) ([]catalog.StockDecrement, error) {
	decs := make([]catalog.StockDecrement, 0, len(order.Items))
	for _, it := range order.Items {
		decs = append(decs, catalog.StockDecrement{
			Key:      catalog.StockKey{ProductID: it.ProductID, VariantID: it.VariantID},
			Quantity: it.Quantity,
		})
	}
	var out []catalog.StockDecrement
	for _, d := range catalog.Aggregate(decs) {
		available, err := s.catalog.Available(ctx, d.Key)
		if err != nil {
			return nil, err
		}
		if available < d.Quantity {
			log.Printf("[settlement] OVERSOLD order=%s stock=%s wanted=%d available=%d, not decremented",
				order.OrderNumber, d.Key, d.Quantity, available)
			s.count(ctx, "StockShortfalls", nil)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Service) alreadySettled(ctx context.Context, txn *orders.Transaction) (*Settled, error) {
	order, err := s.ledger.GetOrder(ctx, txn.OrderNumber)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &Settled{Outcome: OutcomeAlreadyPaid, Message: "Payment already verified", Order: order, Transaction: txn}, nil
}

func (s *Service) fail(ctx context.Context, pending *orders.Transaction, raw, msg string) (*Settled, error) {
	if pending.Status == orders.TxnFailed {
		return &Settled{Outcome: OutcomeFailed, Message: msg, Transaction: pending}, nil
	}
	txn := *pending
	if err := txn.Fail(raw, s.nowFunc().UTC()); err != nil {
		return nil, err
	}
	err := s.ledger.FailTransaction(ctx, &txn)
	if errors.Is(err, orders.ErrStatusMismatch) {
		current, gerr := s.transaction(ctx, txn.Reference)
		if gerr != nil {
			return nil, gerr
		}
		if current.Status == orders.TxnCompleted {
			return s.alreadySettled(ctx, current)
		}
		return &Settled{Outcome: OutcomeFailed, Message: msg, Transaction: current}, nil
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[settlement] payment failed order=%s ref=%s: %s", txn.OrderNumber, txn.Reference, msg)
	s.count(ctx, "PaymentsFailed", map[string]string{"Currency": txn.Currency})
	order, err := s.ledger.GetOrder(ctx, txn.OrderNumber)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order != nil {
		s.publish(ctx, orders.EventPaymentFailed, order, txn.Reference)
	}
	return &Settled{Outcome: OutcomeFailed, Message: msg, Order: order, Transaction: &txn}, nil
}

// HandleWebhook processes a gateway notification. The signature is checked
// against the raw body before anything is parsed. Events that cannot be
// acted on (unknown types, unknown references) are acknowledged; only
// transient failures return an error so the gateway redelivers.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !s.gateway.VerifyWebhookSignature(payload, signature) {
		log.Printf("[webhook] rejected: invalid signature")
		s.count(ctx, "WebhookRejected", nil)
		return apperr.New(apperr.KindInvalidSignature, "invalid signature")
	}
	ev, err := paystack.ParseEvent(payload)
	if err != nil {
		log.Printf("[webhook] ignoring undecodable body: %v", err)
		return nil
	}
	ref := ev.Data.Reference

	switch ev.Event {
	case paystack.EventChargeSuccess:
		res, err := s.Settle(ctx, ref)
		switch {
		case err == nil:
			log.Printf("[webhook] %s ref=%s outcome=%s", ev.Event, ref, res.Outcome)
			return nil
		case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrInvalidTransition):
			log.Printf("[webhook] %s ref=%s not settled: %v", ev.Event, ref, err)
			return nil
		default:
			log.Printf("[webhook] %s ref=%s error: %v", ev.Event, ref, err)
			return err
		}
	case paystack.EventTransferSuccess, paystack.EventTransferFailed, paystack.EventTransferReverse:
		if s.transfers == nil {
			log.Printf("[webhook] %s ref=%s ignored: payouts not configured", ev.Event, ref)
			return nil
		}
		if ev.Event == paystack.EventTransferSuccess {
			err = s.transfers.TransferSucceeded(ctx, ref)
		} else {
			reason := ev.Data.Reason
			if reason == "" {
				reason = ev.Event
			}
			err = s.transfers.TransferFailed(ctx, ref, reason)
		}
		if err != nil && !errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrInvalidTransition) {
			log.Printf("[webhook] %s ref=%s error: %v", ev.Event, ref, err)
			return err
		}
		log.Printf("[webhook] %s ref=%s handled", ev.Event, ref)
		return nil
	default:
		log.Printf("[webhook] ignoring event=%s", ev.Event)
		return nil
	}
}
