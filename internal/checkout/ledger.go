package checkout

import (
	"context"
	"errors"

	"github.com/imrishuroy/campus-checkout/internal/catalog"
	"github.com/imrishuroy/campus-checkout/internal/orders"
)

var (
	// ErrOrderNumberTaken means the generated order number already exists.
	ErrOrderNumberTaken = errors.New("order number already taken")
	// ErrReferenceTaken means the generated transaction reference already exists.
	ErrReferenceTaken = errors.New("transaction reference already taken")
	// ErrOrderChanged means the order moved on between read and settlement.
	ErrOrderChanged = errors.New("order changed during settlement")
	// ErrStockChanged means a stock row dropped below a planned decrement.
	ErrStockChanged = errors.New("stock changed during settlement")
)

// Placement is everything a checkout writes in one atomic unit.
type Placement struct {
	Order       *orders.Order
	Transaction *orders.Transaction
	// CartVersion guards the cart clear; a cart edited since it was read
	// fails the whole placement with carts.ErrCartChanged.
	CartVersion int64
}

// Settlement is everything a confirmed payment writes in one atomic unit.
type Settlement struct {
	Transaction *orders.Transaction
	// Order is nil when only the transaction is settled (cancelled or
	// already paid orders).
	Order          *orders.Order
	ExpectedStatus orders.Status
	Decrements     []catalog.StockDecrement
}

// Ledger persists orders and transactions. Reads return (nil, nil) when
// the row does not exist.
type Ledger interface {
	GetOrder(ctx context.Context, orderNumber string) (*orders.Order, error)
	ListOrders(ctx context.Context, userID string) ([]orders.Order, error)
	GetTransaction(ctx context.Context, reference string) (*orders.Transaction, error)
	TransactionsForOrder(ctx context.Context, orderNumber string) ([]orders.Transaction, error)
	ItemsByStore(ctx context.Context, storeID string) ([]orders.Item, error)

	// Place creates order, lines and transaction and clears the cart.
	Place(ctx context.Context, p Placement) error
	// AddAttempt records a new pending transaction on an unpaid pending
	// order. orders.ErrStatusMismatch when the order is no longer payable.
	AddAttempt(ctx context.Context, txn *orders.Transaction) error
	// Settle completes a pending transaction. orders.ErrStatusMismatch when
	// the transaction is no longer pending.
	Settle(ctx context.Context, s Settlement) error
	FailTransaction(ctx context.Context, txn *orders.Transaction) error
	UpdateStatus(ctx context.Context, o *orders.Order, expected orders.Status) error
}
