package payouts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
	"github.com/imrishuroy/campus-checkout/internal/aws/awstest"
	"github.com/imrishuroy/campus-checkout/internal/catalog"
	"github.com/imrishuroy/campus-checkout/internal/money"
	"github.com/imrishuroy/campus-checkout/internal/orders"
	"github.com/imrishuroy/campus-checkout/internal/paystack"
)

type fakeSales struct {
	items  []orders.Item
	orders map[string]*orders.Order
}

func (f *fakeSales) ItemsByStore(ctx context.Context, storeID string) ([]orders.Item, error) {
	var out []orders.Item
	for _, it := range f.items {
		if it.StoreID == storeID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeSales) GetOrder(ctx context.Context, number string) (*orders.Order, error) {
	return f.orders[number], nil
}

type fakeTransfers struct {
	mu       sync.Mutex
	fail     string
	requests []paystack.TransferRequest
}

func (f *fakeTransfers) InitiateTransfer(ctx context.Context, in paystack.TransferRequest) paystack.TransferResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, in)
	if f.fail != "" {
		return paystack.TransferResult{Result: paystack.Result{Success: false, Message: f.fail}}
	}
	return paystack.TransferResult{Result: paystack.Result{Success: true}, TransferCode: "TRF_" + in.Reference, Status: "pending"}
}

func (f *fakeTransfers) CreateTransferRecipient(ctx context.Context, r paystack.Recipient) paystack.RecipientResult {
	return paystack.RecipientResult{Result: paystack.Result{Success: true}, RecipientCode: "RCP_" + r.AccountNumber}
}

func (f *fakeTransfers) Banks(ctx context.Context) paystack.BanksResult {
	return paystack.BanksResult{Result: paystack.Result{Success: true}, Banks: []paystack.Bank{{Name: "GCB Bank", Code: "040"}}}
}

func paidOrder(number string, at time.Time) *orders.Order {
	return &orders.Order{OrderNumber: number, Status: orders.StatusProcessing, PaymentStatus: orders.PaymentPaid, PaidAt: &at}
}

func newTestService(t *testing.T) (*Service, *fakeTransfers, *Store) {
	t.Helper()
	d := awstest.NewDynamo()
	d.CreateTable("payouts", "reference")
	d.CreateTable("stores", "store_id")
	shop, err := attributevalue.MarshalMap(catalog.Shop{StoreID: "s1", OwnerID: "seller-1", Name: "Campus Mugs", IsActive: true})
	require.NoError(t, err)
	d.Seed("stores", shop)

	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	sales := &fakeSales{
		items: []orders.Item{
			orders.NewItem(orders.Item{OrderNumber: "ORD-1", ItemID: "i1", StoreID: "s1", Price: money.MustParse("100.00"), Quantity: 2}),
			orders.NewItem(orders.Item{OrderNumber: "ORD-1", ItemID: "i2", StoreID: "s2", Price: money.MustParse("50.00"), Quantity: 1}),
			orders.NewItem(orders.Item{OrderNumber: "ORD-2", ItemID: "i3", StoreID: "s1", Price: money.MustParse("40.00"), Quantity: 1}),
		},
		orders: map[string]*orders.Order{
			"ORD-1": paidOrder("ORD-1", now),
			"ORD-2": {OrderNumber: "ORD-2", Status: orders.StatusPending, PaymentStatus: orders.PaymentPending},
		},
	}
	store := NewStore(d, "payouts")
	transfers := &fakeTransfers{}
	acc := catalog.NewAccessor(catalog.NewStore(d, catalog.Tables{Products: "products", Variants: "variants", Stores: "stores"}))
	svc := NewService(store, sales, acc, transfers, "GHS")
	svc.nowFunc = func() time.Time { return now }
	var seq int32
	svc.newToken = func() string { return fmt.Sprintf("%08X", atomic.AddInt32(&seq, 1)) }
	return svc, transfers, store
}

func TestBalance_CountsOnlyPaidSales(t *testing.T) {
	svc, _, _ := newTestService(t)
	b, err := svc.Balance(context.Background(), "seller-1")
	require.NoError(t, err)
	assert.Equal(t, "200.00", b.TotalSales.String())
	assert.Equal(t, "10.00", b.PlatformFees.String())
	assert.Equal(t, "190.00", b.AvailableBalance.String())

	_, err = svc.Balance(context.Background(), "buyer")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestRequest_LifecycleAndBalance(t *testing.T) {
	svc, transfers, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Request(ctx, "seller-1", money.MustParse("150.00"), "RCP_1")
	require.NoError(t, err)
	assert.Equal(t, "PYT-00000001", p.Reference)
	assert.Equal(t, StatusProcessing, p.Status)
	assert.Equal(t, "TRF_PYT-00000001", p.TransferCode)
	require.Len(t, transfers.requests, 1)
	assert.Equal(t, p.Reference, transfers.requests[0].Reference)

	b, err := svc.Balance(ctx, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, "150.00", b.PendingPayouts.String())
	assert.Equal(t, "40.00", b.AvailableBalance.String())

	_, err = svc.Request(ctx, "seller-1", money.MustParse("40.01"), "RCP_1")
	assert.True(t, errors.Is(err, apperr.ErrInvalidRequest))

	require.NoError(t, svc.TransferSucceeded(ctx, p.Reference))
	require.NoError(t, svc.TransferSucceeded(ctx, p.Reference), "replayed webhook")
	b, err = svc.Balance(ctx, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, "150.00", b.TotalPayouts.String())
	assert.Equal(t, "0.00", b.PendingPayouts.String())

	list, err := svc.List(ctx, "seller-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusCompleted, list[0].Status)
	assert.NotNil(t, list[0].ProcessedAt)
}

// barrierRepo holds the first two balance reads until both have happened,
// so two requests see the same balance before either writes.
type barrierRepo struct {
	Repository
	mu      sync.Mutex
	reads   int
	release chan struct{}
}

func (r *barrierRepo) ListByStore(ctx context.Context, storeID string) ([]Payout, error) {
	list, err := r.Repository.ListByStore(ctx, storeID)
	r.mu.Lock()
	r.reads++
	n := r.reads
	r.mu.Unlock()
	if n == 2 {
		close(r.release)
	}
	if n <= 2 {
		<-r.release
	}
	return list, err
}

func TestRequest_ConcurrentRequestsCannotOverdraw(t *testing.T) {
	svc, transfers, store := newTestService(t)
	svc.repo = &barrierRepo{Repository: store, release: make(chan struct{})}
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Request(ctx, "seller-1", money.MustParse("150.00"), "RCP_1")
		}(i)
	}
	wg.Wait()

	ok, refused := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInvalidRequest):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, refused)
	assert.Len(t, transfers.requests, 1)

	list, err := store.ListByStore(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	b, err := svc.Balance(ctx, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, "40.00", b.AvailableBalance.String())
}

func TestStore_CreateRejectsStaleLedgerVersion(t *testing.T) {
	_, _, store := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	newPayout := func(ref string) *Payout {
		return &Payout{Reference: ref, StoreID: "s1", Amount: money.MustParse("10.00"), Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	}

	v, err := store.LedgerVersion(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	require.NoError(t, store.Create(ctx, newPayout("PYT-A"), 0))
	assert.ErrorIs(t, store.Create(ctx, newPayout("PYT-B"), 0), ErrLedgerMoved)
	assert.ErrorIs(t, store.Create(ctx, newPayout("PYT-A"), 1), ErrReferenceTaken)

	v, err = store.LedgerVersion(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	require.NoError(t, store.Create(ctx, newPayout("PYT-B"), 1))

	list, err := store.ListByStore(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, list, 2, "ledger row stays out of the store index")
}

func TestRequest_GatewayFailureMarksFailed(t *testing.T) {
	svc, transfers, store := newTestService(t)
	transfers.fail = "Insufficient balance in integration"
	ctx := context.Background()

	p, err := svc.Request(ctx, "seller-1", money.MustParse("50.00"), "RCP_1")
	assert.True(t, errors.Is(err, apperr.ErrGatewayFailure))
	require.NotNil(t, p)

	stored, err := store.Get(ctx, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Contains(t, stored.Notes, "Insufficient balance")

	b, err := svc.Balance(ctx, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, "190.00", b.AvailableBalance.String(), "failed payouts return to the balance")
}

func TestRequest_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Request(ctx, "seller-1", money.Zero, "RCP_1")
	assert.True(t, errors.Is(err, apperr.ErrInvalidRequest))
	_, err = svc.Request(ctx, "seller-1", money.MustParse("1.00"), "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidRequest))
}

func TestTransferFailed(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	p, err := svc.Request(ctx, "seller-1", money.MustParse("20.00"), "RCP_1")
	require.NoError(t, err)

	require.NoError(t, svc.TransferFailed(ctx, p.Reference, "account closed"))
	stored, _ := store.Get(ctx, p.Reference)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, "Failed: account closed", stored.Notes)

	err = svc.TransferSucceeded(ctx, p.Reference)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
	assert.True(t, errors.Is(svc.TransferFailed(ctx, "PYT-NOPE", "x"), apperr.ErrNotFound))
}

func TestRecipientsAndBanks(t *testing.T) {
	svc, _, _ := newTestService(t)
	code, err := svc.AddRecipient(context.Background(), "seller-1", paystack.Recipient{Name: "Kofi", AccountNumber: "0123", BankCode: "040"})
	require.NoError(t, err)
	assert.Equal(t, "RCP_0123", code)

	banks, err := svc.Banks(context.Background())
	require.NoError(t, err)
	assert.Len(t, banks, 1)
}
