package checkout

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/campus-checkout/internal/aws"
	"github.com/imrishuroy/campus-checkout/internal/carts"
	"github.com/imrishuroy/campus-checkout/internal/catalog"
	"github.com/imrishuroy/campus-checkout/internal/orders"
)

// DynamoLedger composes the orders, carts and catalog stores into
// TransactWriteItems calls.
type DynamoLedger struct {
	orders  *orders.Store
	carts   *carts.Store
	catalog *catalog.Store
}

func NewDynamoLedger(o *orders.Store, c *carts.Store, cat *catalog.Store) *DynamoLedger {
	return &DynamoLedger{orders: o, carts: c, catalog: cat}
}

func (l *DynamoLedger) GetOrder(ctx context.Context, orderNumber string) (*orders.Order, error) {
	return l.orders.Get(ctx, orderNumber)
}

func (l *DynamoLedger) ListOrders(ctx context.Context, userID string) ([]orders.Order, error) {
	return l.orders.ListByUser(ctx, userID)
}

func (l *DynamoLedger) GetTransaction(ctx context.Context, reference string) (*orders.Transaction, error) {
	return l.orders.GetTransaction(ctx, reference)
}

func (l *DynamoLedger) TransactionsForOrder(ctx context.Context, orderNumber string) ([]orders.Transaction, error) {
	return l.orders.TransactionsForOrder(ctx, orderNumber)
}

func (l *DynamoLedger) ItemsByStore(ctx context.Context, storeID string) ([]orders.Item, error) {
	return l.orders.ItemsByStore(ctx, storeID)
}

func (l *DynamoLedger) UpdateStatus(ctx context.Context, o *orders.Order, expected orders.Status) error {
	return l.orders.UpdateStatus(ctx, o, expected)
}

func (l *DynamoLedger) FailTransaction(ctx context.Context, txn *orders.Transaction) error {
	return l.orders.FailTransaction(ctx, txn)
}

// Place writes [order, txn, cart clear, lines...] in one transaction.
func (l *DynamoLedger) Place(ctx context.Context, p Placement) error {
	orderOp, err := l.orders.PutOrderOp(p.Order)
	if err != nil {
		return err
	}
	txnOp, err := l.orders.PutTransactionOp(p.Transaction)
	if err != nil {
		return err
	}
	ops := []types.TransactWriteItem{orderOp, txnOp, l.carts.ClearOp(p.Order.UserID, p.CartVersion, p.Order.CreatedAt)}
	for _, it := range p.Order.Items {
		op, err := l.orders.PutItemOp(it)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}

	err = l.orders.Transact(ctx, ops)
	if err == nil {
		return nil
	}
	codes, ok := aws.CancellationCodes(err)
	if !ok {
		return fmt.Errorf("place order: %w", err)
	}
	for _, i := range aws.FailedIndexes(codes) {
		switch i {
		case 0:
			return ErrOrderNumberTaken
		case 1:
			return ErrReferenceTaken
		case 2:
			return carts.ErrCartChanged
		}
	}
	return fmt.Errorf("place order: %w", err)
}

// AddAttempt writes [order attempt bump, txn put].
func (l *DynamoLedger) AddAttempt(ctx context.Context, txn *orders.Transaction) error {
	txnOp, err := l.orders.PutTransactionOp(txn)
	if err != nil {
		return err
	}
	ops := []types.TransactWriteItem{l.orders.BumpAttemptsOp(txn.OrderNumber, txn.CreatedAt), txnOp}

	err = l.orders.Transact(ctx, ops)
	if err == nil {
		return nil
	}
	codes, ok := aws.CancellationCodes(err)
	if !ok {
		return fmt.Errorf("add payment attempt: %w", err)
	}
	failed := aws.FailedIndexes(codes)
	if len(failed) == 0 {
		return fmt.Errorf("add payment attempt: %w", err)
	}
	if failed[0] == 0 {
		return orders.ErrStatusMismatch
	}
	return ErrReferenceTaken
}

// Settle writes [txn complete, order mark paid?, stock decrements...].
func (l *DynamoLedger) Settle(ctx context.Context, s Settlement) error {
	ops := []types.TransactWriteItem{l.orders.CompleteTransactionOp(s.Transaction)}
	orderIdx := -1
	if s.Order != nil {
		op, err := l.orders.MarkPaidOp(s.Order, s.ExpectedStatus)
		if err != nil {
			return err
		}
		orderIdx = len(ops)
		ops = append(ops, op)
	}
	for _, d := range s.Decrements {
		ops = append(ops, l.catalog.DecrementOp(d))
	}

	err := l.orders.Transact(ctx, ops)
	if err == nil {
		return nil
	}
	codes, ok := aws.CancellationCodes(err)
	if !ok {
		return fmt.Errorf("settle %s: %w", s.Transaction.Reference, err)
	}
	failed := aws.FailedIndexes(codes)
	if len(failed) == 0 {
		return fmt.Errorf("settle %s: %w", s.Transaction.Reference, err)
	}
	switch i := failed[0]; {
	case i == 0:
		return orders.ErrStatusMismatch
	case i == orderIdx:
		return ErrOrderChanged
	default:
		return ErrStockChanged
	}
}
