// Package checkout turns carts into orders and settles their payments. It is
// the only writer of order and transaction state.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
	"github.com/imrishuroy/campus-checkout/internal/carts"
	"github.com/imrishuroy/campus-checkout/internal/catalog"
	"github.com/imrishuroy/campus-checkout/internal/identity"
	"github.com/imrishuroy/campus-checkout/internal/money"
	"github.com/imrishuroy/campus-checkout/internal/orders"
	"github.com/imrishuroy/campus-checkout/internal/paystack"
	"github.com/imrishuroy/campus-checkout/internal/refs"
)

const (
	placeAttempts  = 5
	settleAttempts = 3
	platformName   = "Campus Shop"
)

// Gateway is the subset of the payment gateway the orchestrator drives.
type Gateway interface {
	Initialize(ctx context.Context, in paystack.InitRequest) paystack.InitResult
	Verify(ctx context.Context, reference string) paystack.VerifyResult
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// CartReader reads the buyer's cart.
type CartReader interface {
	GetCart(ctx context.Context, userID string) (*carts.Cart, error)
}

// Counter records business metrics. aws.MetricsEmitter satisfies it.
type Counter interface {
	Count(ctx context.Context, name string, dims map[string]string) error
}

// TransferHandler receives payout transfer outcomes from the webhook.
type TransferHandler interface {
	TransferSucceeded(ctx context.Context, reference string) error
	TransferFailed(ctx context.Context, reference, reason string) error
}

type Deps struct {
	Ledger    Ledger
	Carts     CartReader
	Catalog   *catalog.Accessor
	Identity  *identity.Service
	Gateway   Gateway
	Events    *orders.EventPublisher
	Metrics   Counter
	Transfers TransferHandler
	// CallbackURL is where the gateway sends the buyer after paying.
	CallbackURL string
	Currency    string
}

type Service struct {
	ledger      Ledger
	carts       CartReader
	catalog     *catalog.Accessor
	identity    *identity.Service
	gateway     Gateway
	events      *orders.EventPublisher
	metrics     Counter
	transfers   TransferHandler
	callbackURL string
	currency    string

	nowFunc  func() time.Time
	newToken func() string
	newID    func() string
}

func New(d Deps) *Service {
	currency := d.Currency
	if currency == "" {
		currency = money.DefaultCurrency
	}
	return &Service{
		ledger:      d.Ledger,
		carts:       d.Carts,
		catalog:     d.Catalog,
		identity:    d.Identity,
		gateway:     d.Gateway,
		events:      d.Events,
		metrics:     d.Metrics,
		transfers:   d.Transfers,
		callbackURL: d.CallbackURL,
		currency:    currency,
		nowFunc:     time.Now,
		newToken:    refs.Token,
		newID:       uuid.NewString,
	}
}

// SetTransferHandler wires payout webhook handling after construction; the
// payouts service itself depends on the gateway.
func (s *Service) SetTransferHandler(h TransferHandler) {
	s.transfers = h
}

// Request is a checkout submission.
type Request struct {
	UserID            string
	ShippingAddressID string
	BillingAddressID  string
	PaymentMethod     orders.PaymentMethod
	CustomerNote      string
	IPAddress         string
}

// PaymentInit is the gateway hand-off returned to the buyer.
type PaymentInit struct {
	Success    bool   `json:"success"`
	PaymentURL string `json:"payment_url,omitempty"`
	Reference  string `json:"reference"`
	Message    string `json:"message,omitempty"`
}

// Result is the outcome of Checkout and RetryPayment.
type Result struct {
	Order       *orders.Order       `json:"order"`
	Transaction *orders.Transaction `json:"transaction"`
	Payment     *PaymentInit        `json:"payment,omitempty"`
	Message     string              `json:"message,omitempty"`
}

// Checkout converts the user's cart into a pending order with one pending
// transaction and an empty cart, all in one atomic write. For gateway
// payments the charge is then initialized; if that fails the order stays
// pending, the Result is still returned and the error is a GatewayFailure.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	if req.PaymentMethod == "" {
		req.PaymentMethod = orders.MethodGateway
	}
	cart, err := s.carts.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart == nil || cart.IsEmpty() {
		return nil, apperr.ErrEmptyCart
	}

	user, err := s.identity.User(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.identity.OwnedAddress(ctx, req.UserID, req.ShippingAddressID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("shipping address not found")
		}
		return nil, err
	}
	if _, err := s.identity.OwnedAddress(ctx, req.UserID, req.BillingAddressID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("billing address not found")
		}
		return nil, err
	}

	// Stock may have moved since the lines were added.
	for _, line := range cart.Items {
		sel, err := s.catalog.Resolve(ctx, line.ProductID, line.VariantID)
		if err != nil {
			return nil, err
		}
		if sel.CheckQuantity(line.Quantity) != nil {
			return nil, apperr.New(apperr.KindOutOfStock, "%s: only %d items available", line.ProductName, sel.Available)
		}
	}

	totals := ComputeTotals(cart.Subtotal())
	if !totals.Total.IsPositive() {
		return nil, apperr.InvalidRequest("order total must be greater than zero")
	}

	now := s.nowFunc().UTC()
	order := &orders.Order{
		UserID:            req.UserID,
		Status:            orders.StatusPending,
		PaymentMethod:     req.PaymentMethod,
		PaymentStatus:     orders.PaymentPending,
		PaymentAttempts:   1,
		Currency:          s.currency,
		Subtotal:          totals.Subtotal,
		TaxAmount:         totals.TaxAmount,
		ShippingCost:      totals.ShippingCost,
		PlatformFee:       totals.PlatformFee,
		Total:             totals.Total,
		ShippingAddressID: req.ShippingAddressID,
		BillingAddressID:  req.BillingAddressID,
		CustomerNote:      req.CustomerNote,
		IPAddress:         req.IPAddress,
		History:           []orders.HistoryEntry{{Status: orders.StatusPending, Note: "order placed", ChangedBy: req.UserID, At: now}},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	txn := &orders.Transaction{
		UserID:        req.UserID,
		Amount:        totals.Total,
		Fee:           money.Zero,
		Currency:      s.currency,
		PaymentMethod: req.PaymentMethod,
		Status:        orders.TxnPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.PaymentMethod == orders.MethodGateway {
		txn.Fee = GatewayFee(totals.Total)
	}
	s.assignOrderNumber(order, cart, now)
	txn.Reference = refs.Transaction(s.newToken())
	txn.OrderNumber = order.OrderNumber

	if err := s.place(ctx, order, txn, cart, now); err != nil {
		return nil, err
	}
	log.Printf("[checkout] placed order=%s ref=%s user=%s total=%s method=%s lines=%d",
		order.OrderNumber, txn.Reference, req.UserID, order.Total, order.PaymentMethod, len(order.Items))
	s.publish(ctx, orders.EventOrderPlaced, order, txn.Reference)
	s.count(ctx, "OrdersPlaced", map[string]string{"PaymentMethod": string(order.PaymentMethod)})

	res := &Result{Order: order, Transaction: txn}
	if order.PaymentMethod != orders.MethodGateway {
		res.Message = "Order created successfully"
		return res, nil
	}
	return res, s.initialize(ctx, res, user)
}

func (s *Service) assignOrderNumber(o *orders.Order, cart *carts.Cart, now time.Time) {
	o.OrderNumber = refs.OrderNumber(now, s.newToken())
	o.Items = make([]orders.Item, 0, len(cart.Items))
	for _, line := range cart.Items {
		o.Items = append(o.Items, orders.NewItem(orders.Item{
			OrderNumber: o.OrderNumber,
			ItemID:      s.newID(),
			ProductID:   line.ProductID,
			VariantID:   line.VariantID,
			StoreID:     line.StoreID,
			ProductName: line.ProductName,
			VariantName: line.VariantName,
			Price:       line.Price,
			Quantity:    line.Quantity,
			CreatedAt:   now,
		}))
	}
}

// place retries the atomic write when a generated identifier collides.
func (s *Service) place(ctx context.Context, order *orders.Order, txn *orders.Transaction, cart *carts.Cart, now time.Time) error {
	for attempt := 1; ; attempt++ {
		err := s.ledger.Place(ctx, Placement{Order: order, Transaction: txn, CartVersion: cart.Version})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, carts.ErrCartChanged):
			return apperr.Conflict("cart changed during checkout, please review it and retry")
		case attempt >= placeAttempts:
			return fmt.Errorf("place order after %d attempts: %w", attempt, err)
		case errors.Is(err, ErrOrderNumberTaken):
			log.Printf("[checkout] order number collision order=%s attempt=%d", order.OrderNumber, attempt)
			s.assignOrderNumber(order, cart, now)
			txn.OrderNumber = order.OrderNumber
		case errors.Is(err, ErrReferenceTaken):
			log.Printf("[checkout] reference collision ref=%s attempt=%d", txn.Reference, attempt)
			txn.Reference = refs.Transaction(s.newToken())
		default:
			return fmt.Errorf("place order: %w", err)
		}
	}
}

// initialize asks the gateway for a hosted payment page for res.Transaction.
func (s *Service) initialize(ctx context.Context, res *Result, user *identity.User) error {
	txn := res.Transaction
	out := s.gateway.Initialize(ctx, paystack.InitRequest{
		Email:       user.Email,
		Amount:      txn.ChargeAmount(),
		Reference:   txn.Reference,
		CallbackURL: s.callbackURL,
		Metadata: map[string]interface{}{
			"order_number":  res.Order.OrderNumber,
			"customer_name": user.FullName(),
			"items_count":   len(res.Order.Items),
			"platform":      platformName,
		},
	})
	res.Payment = &PaymentInit{Success: out.Success, Reference: txn.Reference, Message: out.Message}
	if !out.Success {
		log.Printf("[checkout] gateway initialize failed order=%s ref=%s msg=%q", res.Order.OrderNumber, txn.Reference, out.Message)
		s.count(ctx, "GatewayFailures", map[string]string{"Operation": "initialize"})
		res.Message = "Order created but payment initialization failed"
		return apperr.GatewayFailure("payment initialization failed: " + out.Message)
	}
	res.Payment.PaymentURL = out.AuthorizationURL
	return nil
}

// RetryPayment opens a new gateway attempt for an unpaid pending order the
// user owns. Each attempt gets its own transaction and reference.
func (s *Service) RetryPayment(ctx context.Context, userID, orderNumber string) (*Result, error) {
	order, err := s.ledger.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil || order.UserID != userID {
		return nil, apperr.NotFound("order not found")
	}
	if order.IsPaid() {
		return nil, apperr.InvalidRequest("order is already paid")
	}
	if order.Status != orders.StatusPending {
		return nil, apperr.InvalidTransition(string(order.Status), "paid")
	}
	if order.PaymentMethod != orders.MethodGateway {
		return nil, apperr.InvalidRequest("order is not paid through the gateway")
	}
	user, err := s.identity.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc().UTC()
	txn := &orders.Transaction{
		OrderNumber:   order.OrderNumber,
		UserID:        userID,
		Amount:        order.Total,
		Fee:           GatewayFee(order.Total),
		Currency:      order.Currency,
		PaymentMethod: order.PaymentMethod,
		Status:        orders.TxnPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for attempt := 1; ; attempt++ {
		txn.Reference = refs.Transaction(s.newToken())
		err = s.ledger.AddAttempt(ctx, txn)
		if err == nil {
			break
		}
		if errors.Is(err, orders.ErrStatusMismatch) {
			return nil, apperr.Conflict("order is no longer awaiting payment")
		}
		if !errors.Is(err, ErrReferenceTaken) || attempt >= placeAttempts {
			return nil, fmt.Errorf("add payment attempt: %w", err)
		}
	}
	order.PaymentAttempts++
	log.Printf("[checkout] payment retry order=%s ref=%s attempt=%d", order.OrderNumber, txn.Reference, order.PaymentAttempts)

	res := &Result{Order: order, Transaction: txn}
	return res, s.initialize(ctx, res, user)
}

func (s *Service) publish(ctx context.Context, typ orders.EventType, o *orders.Order, ref string) {
	if err := s.events.Publish(ctx, orders.NewEvent(typ, o, ref, s.nowFunc().UTC())); err != nil {
		log.Printf("[events] publish %s order=%s failed: %v", typ, o.OrderNumber, err)
	}
}

func (s *Service) count(ctx context.Context, name string, dims map[string]string) {
	if s.metrics == nil {
		return
	}
	if err := s.metrics.Count(ctx, name, dims); err != nil {
		log.Printf("[metrics] %s failed: %v", name, err)
	}
}
