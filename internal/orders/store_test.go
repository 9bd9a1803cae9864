package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/campus-checkout/internal/aws"
	"github.com/imrishuroy/campus-checkout/internal/aws/awstest"
	"github.com/imrishuroy/campus-checkout/internal/money"
)

func newTestStore(t *testing.T) (*Store, *awstest.Dynamo) {
	t.Helper()
	mock := awstest.NewDynamo()
	mock.CreateTable("orders", "order_number")
	mock.CreateTable("order_items", "order_number", "item_id")
	mock.CreateTable("transactions", "reference")
	return NewStore(mock, Tables{Orders: "orders", Items: "order_items", Transactions: "transactions"}), mock
}

func sampleOrder(number string, now time.Time) *Order {
	return &Order{
		OrderNumber:   number,
		UserID:        "u1",
		Status:        StatusPending,
		PaymentMethod: MethodGateway,
		PaymentStatus: PaymentPending,
		Currency:      "GHS",
		Subtotal:      money.MustParse("200.00"),
		PlatformFee:   money.MustParse("10.00"),
		Total:         money.MustParse("200.00"),
		History:       []HistoryEntry{{Status: StatusPending, Note: "order placed", At: now}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func createOrder(t *testing.T, s *Store, o *Order, txn *Transaction) {
	t.Helper()
	ops := []types.TransactWriteItem{}
	op, err := s.PutOrderOp(o)
	if err != nil {
		t.Fatalf("put order op: %v", err)
	}
	ops = append(ops, op)
	for _, it := range o.Items {
		op, err := s.PutItemOp(it)
		if err != nil {
			t.Fatalf("put item op: %v", err)
		}
		ops = append(ops, op)
	}
	if txn != nil {
		op, err := s.PutTransactionOp(txn)
		if err != nil {
			t.Fatalf("put txn op: %v", err)
		}
		ops = append(ops, op)
	}
	if err := s.Transact(context.Background(), ops); err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestCreateAndGet_WithItems(t *testing.T) {
	store, _ := newTestStore(t)
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	o := sampleOrder("ORD-20260201-AAAA0001", now)
	o.Items = []Item{NewItem(Item{
		OrderNumber: o.OrderNumber, ItemID: "i1", ProductID: "p1", StoreID: "s1",
		ProductName: "Mug", Price: money.MustParse("100.00"), Quantity: 2, CreatedAt: now,
	})}
	createOrder(t, store, o, &Transaction{Reference: "TXN-00000001", OrderNumber: o.OrderNumber, Amount: o.Total, Currency: "GHS", Status: TxnPending, CreatedAt: now, UpdatedAt: now})

	got, err := store.Get(context.Background(), o.OrderNumber)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatalf("expected order, got nil")
	}
	if len(got.Items) != 1 || got.Items[0].Total.String() != "200.00" {
		t.Fatalf("items not attached: %+v", got.Items)
	}
	if !got.Total.Equal(got.Subtotal.Add(got.TaxAmount).Add(got.ShippingCost)) {
		t.Fatalf("total invariant broken: %s", got.Total)
	}

	txns, err := store.TransactionsForOrder(context.Background(), o.OrderNumber)
	if err != nil || len(txns) != 1 {
		t.Fatalf("expected one transaction, got %d (%v)", len(txns), err)
	}

	missing, err := store.Get(context.Background(), "ORD-NOPE")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for a missing order, got %v %v", missing, err)
	}
}

func TestCreate_DuplicateOrderNumberCancels(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()
	o := sampleOrder("ORD-20260201-DUP00001", now)
	createOrder(t, store, o, nil)

	op, err := store.PutOrderOp(sampleOrder(o.OrderNumber, now))
	if err != nil {
		t.Fatalf("op: %v", err)
	}
	err = store.Transact(context.Background(), []types.TransactWriteItem{op})
	codes, ok := aws.CancellationCodes(err)
	if !ok {
		t.Fatalf("expected transaction cancelled, got %v", err)
	}
	if len(aws.FailedIndexes(codes)) != 1 {
		t.Fatalf("expected the order put to fail, got %v", codes)
	}
	if mock.Len("orders") != 1 {
		t.Fatalf("duplicate must not overwrite")
	}
}

func TestUpdateStatus_Condition_SuccessAndFail(t *testing.T) {
	store, _ := newTestStore(t)
	now := time.Now().UTC()
	o := sampleOrder("ORD-20260201-STAT0001", now)
	createOrder(t, store, o, nil)

	// success: pending -> processing
	if err := o.Transition(StatusProcessing, "seller-1", "", now); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := store.UpdateStatus(context.Background(), o, StatusPending); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	// failure: a stale writer still believes the order is pending
	stale := sampleOrder(o.OrderNumber, now)
	if err := stale.Transition(StatusCancelled, "u1", "", now); err != nil {
		t.Fatalf("transition: %v", err)
	}
	err := store.UpdateStatus(context.Background(), stale, StatusPending)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}

	got, _ := store.Get(context.Background(), o.OrderNumber)
	if got.Status != StatusProcessing || len(got.History) != 2 {
		t.Fatalf("unexpected stored order: status=%s history=%d", got.Status, len(got.History))
	}
}

func TestFailTransaction_OnlyFromPending(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now().UTC()
	txn := Transaction{Reference: "TXN-FAIL0001", OrderNumber: "ORD-1", Amount: money.MustParse("5.00"), Status: TxnPending, CreatedAt: now, UpdatedAt: now}
	item, _ := attributevalue.MarshalMap(txn)
	mock.Seed("transactions", item)

	if err := txn.Fail(`{"status":"failed"}`, now); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := store.FailTransaction(context.Background(), &txn); err != nil {
		t.Fatalf("fail transaction: %v", err)
	}
	if err := store.FailTransaction(context.Background(), &txn); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("second fail must report mismatch, got %v", err)
	}
	got, _ := store.GetTransaction(context.Background(), txn.Reference)
	if got.Status != TxnFailed || got.GatewayResponse == "" {
		t.Fatalf("transaction not failed: %+v", got)
	}
}

func TestMarkPaidOp_RejectsAlreadyPaid(t *testing.T) {
	store, _ := newTestStore(t)
	now := time.Now().UTC()
	o := sampleOrder("ORD-20260201-PAID0001", now)
	createOrder(t, store, o, nil)

	if err := o.MarkPaid("TXN-1", now); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	op, err := store.MarkPaidOp(o, StatusPending)
	if err != nil {
		t.Fatalf("op: %v", err)
	}
	if err := store.Transact(context.Background(), []types.TransactWriteItem{op}); err != nil {
		t.Fatalf("first mark paid: %v", err)
	}
	if err := store.Transact(context.Background(), []types.TransactWriteItem{op}); err == nil {
		t.Fatalf("replayed mark paid must be rejected")
	}

	got, _ := store.Get(context.Background(), o.OrderNumber)
	if !got.IsPaid() || got.Status != StatusProcessing || got.PaymentReference != "TXN-1" {
		t.Fatalf("order not settled: %+v", got)
	}
}

func TestBumpAttempts(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now().UTC()
	o := sampleOrder("ORD-20260201-ATT00001", now)
	createOrder(t, store, o, nil)

	for i := 0; i < 2; i++ {
		if err := store.Transact(context.Background(), []types.TransactWriteItem{store.BumpAttemptsOp(o.OrderNumber, now)}); err != nil {
			t.Fatalf("bump: %v", err)
		}
	}
	n := mock.Get("orders", o.OrderNumber)["payment_attempts"].(*types.AttributeValueMemberN).Value
	if n != "2" {
		t.Fatalf("expected 2 attempts, got %s", n)
	}
}

func TestListByUser_NewestFirst(t *testing.T) {
	store, _ := newTestStore(t)
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	createOrder(t, store, sampleOrder("ORD-20260101-OLD00001", t1), nil)
	createOrder(t, store, sampleOrder("ORD-20260102-NEW00001", t1.Add(24*time.Hour)), nil)

	list, err := store.ListByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].OrderNumber != "ORD-20260102-NEW00001" {
		t.Fatalf("unexpected order: %+v", list)
	}
}
