package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
	"github.com/imrishuroy/campus-checkout/internal/auth"
	"github.com/imrishuroy/campus-checkout/internal/money"
	"github.com/imrishuroy/campus-checkout/internal/orders"
)

// Order returns an order the actor may see: its buyer, staff, or a seller
// with lines in it.
func (s *Service) Order(ctx context.Context, actor auth.Actor, orderNumber string) (*orders.Order, error) {
	o, err := s.ledger.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return nil, apperr.NotFound("order not found")
	}
	if actor.Seller && actor.StoreID == "" && o.UserID != actor.UserID {
		if shop, err := s.catalog.ShopOf(ctx, actor.UserID); err == nil {
			actor.StoreID = shop.StoreID
		}
	}
	if err := auth.Authorize(actor, auth.Resource{OwnerID: o.UserID, StoreIDs: o.StoreIDs()}); err != nil {
		// do not reveal other users' order numbers
		return nil, apperr.NotFound("order not found")
	}
	return o, nil
}

// Orders lists the buyer's orders, newest first.
func (s *Service) Orders(ctx context.Context, userID string) ([]orders.Order, error) {
	list, err := s.ledger.ListOrders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return list, nil
}

// SellerOrders lists orders containing lines of the seller's store.
func (s *Service) SellerOrders(ctx context.Context, sellerID string) ([]orders.Order, error) {
	shop, err := s.catalog.ShopOf(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	items, err := s.ledger.ItemsByStore(ctx, shop.StoreID)
	if err != nil {
		return nil, fmt.Errorf("items by store: %w", err)
	}
	seen := map[string]bool{}
	var out []orders.Order
	for _, it := range items {
		if seen[it.OrderNumber] {
			continue
		}
		seen[it.OrderNumber] = true
		o, err := s.ledger.GetOrder(ctx, it.OrderNumber)
		if err != nil {
			return nil, fmt.Errorf("get order: %w", err)
		}
		if o != nil {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Cancel cancels the buyer's order while it is pending or processing.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, orderNumber, note string) (*orders.Order, error) {
	o, err := s.Order(ctx, actor, orderNumber)
	if err != nil {
		return nil, err
	}
	if o.UserID != actor.UserID && !actor.Staff {
		return nil, apperr.Forbidden("only the buyer can cancel an order")
	}
	if o.Status != orders.StatusPending && o.Status != orders.StatusProcessing {
		return nil, apperr.New(apperr.KindInvalidTransition, "cannot cancel an order that is already %s", o.Status)
	}
	if err := s.transition(ctx, o, orders.StatusCancelled, actor.UserID, note); err != nil {
		return nil, err
	}
	if o.IsPaid() {
		log.Printf("[orders] paid order cancelled order=%s ref=%s, refund required", o.OrderNumber, o.PaymentReference)
	}
	s.publish(ctx, orders.EventOrderCancelled, o, o.PaymentReference)
	return o, nil
}

// sellerTargets are the statuses a seller may set.
var sellerTargets = map[orders.Status]bool{
	orders.StatusProcessing: true,
	orders.StatusShipped:    true,
	orders.StatusDelivered:  true,
	orders.StatusCancelled:  true,
}

// AdvanceStatus lets a seller with lines in the order (or staff) move it
// along the fulfilment machine. Gateway orders only reach processing
// through a confirmed payment.
func (s *Service) AdvanceStatus(ctx context.Context, actor auth.Actor, orderNumber string, to orders.Status, note string) (*orders.Order, error) {
	if !sellerTargets[to] {
		return nil, apperr.InvalidRequest("invalid status %q", to)
	}
	if !actor.Staff {
		shop, err := s.catalog.ShopOf(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		actor.StoreID = shop.StoreID
	}
	o, err := s.ledger.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return nil, apperr.NotFound("order not found")
	}
	// the buyer is not a fulfilment actor, so only stores count here
	if err := auth.Authorize(actor, auth.Resource{StoreIDs: o.StoreIDs()}); err != nil {
		return nil, err
	}
	if to == orders.StatusProcessing && o.PaymentMethod == orders.MethodGateway && !o.IsPaid() {
		return nil, apperr.New(apperr.KindInvalidTransition, "order is awaiting payment")
	}
	if err := s.transition(ctx, o, to, actor.UserID, note); err != nil {
		return nil, err
	}
	typ := orders.EventStatusChanged
	if to == orders.StatusCancelled {
		typ = orders.EventOrderCancelled
	}
	s.publish(ctx, typ, o, o.PaymentReference)
	return o, nil
}

func (s *Service) transition(ctx context.Context, o *orders.Order, to orders.Status, actor, note string) error {
	from := o.Status
	if err := o.Transition(to, actor, note, s.nowFunc().UTC()); err != nil {
		return err
	}
	err := s.ledger.UpdateStatus(ctx, o, from)
	if errors.Is(err, orders.ErrStatusMismatch) {
		return apperr.Conflict("order %s was modified concurrently, please retry", o.OrderNumber)
	}
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	log.Printf("[orders] order=%s %s -> %s by=%s", o.OrderNumber, from, to, actor)
	return nil
}

// PaymentState is the buyer-facing payment summary of an order.
type PaymentState struct {
	OrderNumber          string               `json:"order_number"`
	IsPaid               bool                 `json:"is_paid"`
	PaymentStatus        string               `json:"payment_status"`
	PaymentMethod        orders.PaymentMethod `json:"payment_method"`
	Total                money.Amount         `json:"total"`
	TransactionReference string               `json:"transaction_reference,omitempty"`
	TransactionStatus    orders.TxnStatus     `json:"transaction_status,omitempty"`
	TransactionAmount    *money.Amount        `json:"transaction_amount,omitempty"`
}

// PaymentStatus reports the order's payment state and its latest attempt.
func (s *Service) PaymentStatus(ctx context.Context, actor auth.Actor, orderNumber string) (*PaymentState, error) {
	o, err := s.Order(ctx, actor, orderNumber)
	if err != nil {
		return nil, err
	}
	st := &PaymentState{
		OrderNumber:   o.OrderNumber,
		IsPaid:        o.IsPaid(),
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		Total:         o.Total,
	}
	txns, err := s.ledger.TransactionsForOrder(ctx, o.OrderNumber)
	if err != nil {
		return nil, fmt.Errorf("transactions for order: %w", err)
	}
	if n := len(txns); n > 0 {
		latest := txns[n-1]
		st.TransactionReference = latest.Reference
		st.TransactionStatus = latest.Status
		amt := latest.Amount
		st.TransactionAmount = &amt
	}
	return st, nil
}

// Transactions lists an order's payment attempts, oldest first.
func (s *Service) Transactions(ctx context.Context, actor auth.Actor, orderNumber string) ([]orders.Transaction, error) {
	o, err := s.Order(ctx, actor, orderNumber)
	if err != nil {
		return nil, err
	}
	return s.ledger.TransactionsForOrder(ctx, o.OrderNumber)
}
