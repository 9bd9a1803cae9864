// Package memstore keeps every repository in process memory for local runs
// and tests. One mutex guards all maps, so the multi-row writes that DynamoDB
// does with TransactWriteItems are atomic here too.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/imrishuroy/campus-checkout/internal/carts"
	"github.com/imrishuroy/campus-checkout/internal/catalog"
	"github.com/imrishuroy/campus-checkout/internal/checkout"
	"github.com/imrishuroy/campus-checkout/internal/identity"
	"github.com/imrishuroy/campus-checkout/internal/orders"
	"github.com/imrishuroy/campus-checkout/internal/payouts"
)

type Store struct {
	mu sync.Mutex

	products  map[string]catalog.Product
	variants  map[string]catalog.Variant
	shops     map[string]catalog.Shop
	users     map[string]identity.User
	addresses map[string]identity.Address
	carts     map[string]carts.Cart
	orders    map[string]orders.Order
	txns      map[string]orders.Transaction
	payouts   map[string]payouts.Payout
	ledgers   map[string]int64
	idem      map[string]idemEntry
}

func New() *Store {
	return &Store{
		products:  map[string]catalog.Product{},
		variants:  map[string]catalog.Variant{},
		shops:     map[string]catalog.Shop{},
		users:     map[string]identity.User{},
		addresses: map[string]identity.Address{},
		carts:     map[string]carts.Cart{},
		orders:    map[string]orders.Order{},
		txns:      map[string]orders.Transaction{},
		payouts:   map[string]payouts.Payout{},
		ledgers:   map[string]int64{},
		idem:      map[string]idemEntry{},
	}
}

var (
	_ carts.Repository    = (*Store)(nil)
	_ catalog.Repository  = (*Store)(nil)
	_ identity.Repository = (*Store)(nil)
	_ checkout.Ledger     = (*Store)(nil)
)

// seeding

func (s *Store) PutProduct(p catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ProductID] = p
}

func (s *Store) PutVariant(v catalog.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.VariantID] = v
}

func (s *Store) PutShop(sh catalog.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shops[sh.StoreID] = sh
}

func (s *Store) PutUser(u identity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = u
}

func (s *Store) PutAddress(a identity.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[a.AddressID] = a
}

// catalog

func (s *Store) GetProduct(ctx context.Context, productID string) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) GetVariant(ctx context.Context, variantID string) (*catalog.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[variantID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *Store) GetShop(ctx context.Context, storeID string) (*catalog.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shops[storeID]
	if !ok {
		return nil, nil
	}
	return &sh, nil
}

func (s *Store) ShopByOwner(ctx context.Context, ownerID string) (*catalog.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sh := range s.shops {
		if sh.OwnerID == ownerID {
			sh := sh
			return &sh, nil
		}
	}
	return nil, nil
}

// identity

func (s *Store) GetUser(ctx context.Context, userID string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) GetAddress(ctx context.Context, addressID string) (*identity.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.addresses[addressID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// carts

func (s *Store) GetCart(ctx context.Context, userID string) (*carts.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		return nil, nil
	}
	c.Items = append([]carts.Item{}, c.Items...)
	return &c, nil
}

func (s *Store) CreateCart(ctx context.Context, c *carts.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[c.UserID]; ok {
		return carts.ErrCartExists
	}
	s.carts[c.UserID] = cloneCart(*c)
	return nil
}

func (s *Store) SaveCart(ctx context.Context, c *carts.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.carts[c.UserID]
	if !ok || cur.Version != c.Version {
		return carts.ErrCartChanged
	}
	next := cloneCart(*c)
	next.Version++
	s.carts[c.UserID] = next
	c.Version = next.Version
	return nil
}

func cloneCart(c carts.Cart) carts.Cart {
	c.Items = append([]carts.Item{}, c.Items...)
	return c
}

// orders and transactions

func (s *Store) GetOrder(ctx context.Context, orderNumber string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderNumber]
	if !ok {
		return nil, nil
	}
	o = cloneOrder(o)
	return &o, nil
}

func (s *Store) ListOrders(ctx context.Context, userID string) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetTransaction(ctx context.Context, reference string) (*orders.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[reference]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) TransactionsForOrder(ctx context.Context, orderNumber string) ([]orders.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Transaction
	for _, t := range s.txns {
		if t.OrderNumber == orderNumber {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ItemsByStore(ctx context.Context, storeID string) ([]orders.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Item
	for _, o := range s.orders {
		for _, it := range o.Items {
			if it.StoreID == storeID {
				out = append(out, it)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderNumber != out[j].OrderNumber {
			return out[i].OrderNumber < out[j].OrderNumber
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out, nil
}

func (s *Store) Place(ctx context.Context, p checkout.Placement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[p.Order.OrderNumber]; ok {
		return checkout.ErrOrderNumberTaken
	}
	if _, ok := s.txns[p.Transaction.Reference]; ok {
		return checkout.ErrReferenceTaken
	}
	cart, ok := s.carts[p.Order.UserID]
	if !ok || cart.Version != p.CartVersion {
		return carts.ErrCartChanged
	}

	s.orders[p.Order.OrderNumber] = cloneOrder(*p.Order)
	s.txns[p.Transaction.Reference] = *p.Transaction
	cart.Items = []carts.Item{}
	cart.Version++
	cart.UpdatedAt = p.Order.CreatedAt
	s.carts[p.Order.UserID] = cart
	return nil
}

func (s *Store) AddAttempt(ctx context.Context, txn *orders.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[txn.OrderNumber]
	if !ok || o.Status != orders.StatusPending || o.PaymentStatus == orders.PaymentPaid {
		return orders.ErrStatusMismatch
	}
	if _, ok := s.txns[txn.Reference]; ok {
		return checkout.ErrReferenceTaken
	}
	o.PaymentAttempts++
	o.UpdatedAt = txn.CreatedAt
	s.orders[o.OrderNumber] = o
	s.txns[txn.Reference] = *txn
	return nil
}

func (s *Store) Settle(ctx context.Context, st checkout.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// check every condition before writing anything
	cur, ok := s.txns[st.Transaction.Reference]
	if !ok || cur.Status != orders.TxnPending {
		return orders.ErrStatusMismatch
	}
	if st.Order != nil {
		o, ok := s.orders[st.Order.OrderNumber]
		if !ok || o.Status != st.ExpectedStatus || o.PaymentStatus == orders.PaymentPaid {
			return checkout.ErrOrderChanged
		}
	}
	for _, d := range st.Decrements {
		if s.stockOf(d.Key) < d.Quantity {
			return checkout.ErrStockChanged
		}
	}

	s.txns[st.Transaction.Reference] = *st.Transaction
	if st.Order != nil {
		o := s.orders[st.Order.OrderNumber]
		o.Status = st.Order.Status
		o.History = append([]orders.HistoryEntry{}, st.Order.History...)
		o.UpdatedAt = st.Order.UpdatedAt
		o.PaymentStatus = orders.PaymentPaid
		o.PaymentReference = st.Order.PaymentReference
		o.PaidAt = st.Order.PaidAt
		s.orders[o.OrderNumber] = o
	}
	for _, d := range st.Decrements {
		s.decrement(d)
	}
	return nil
}

func (s *Store) stockOf(k catalog.StockKey) int {
	if k.VariantID != "" {
		return s.variants[k.VariantID].Quantity
	}
	return s.products[k.ProductID].Quantity
}

func (s *Store) decrement(d catalog.StockDecrement) {
	if d.Key.VariantID != "" {
		v := s.variants[d.Key.VariantID]
		v.Quantity -= d.Quantity
		s.variants[v.VariantID] = v
		return
	}
	p := s.products[d.Key.ProductID]
	p.Quantity -= d.Quantity
	s.products[p.ProductID] = p
}

func (s *Store) FailTransaction(ctx context.Context, txn *orders.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txns[txn.Reference]
	if !ok || cur.Status != orders.TxnPending {
		return orders.ErrStatusMismatch
	}
	cur.Status = orders.TxnFailed
	cur.GatewayResponse = txn.GatewayResponse
	cur.UpdatedAt = txn.UpdatedAt
	s.txns[txn.Reference] = cur
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, o *orders.Order, expected orders.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.OrderNumber]
	if !ok || cur.Status != expected {
		return orders.ErrStatusMismatch
	}
	cur.Status = o.Status
	cur.History = append([]orders.HistoryEntry{}, o.History...)
	cur.UpdatedAt = o.UpdatedAt
	if o.DeliveredAt != nil {
		cur.DeliveredAt = o.DeliveredAt
	}
	s.orders[o.OrderNumber] = cur
	return nil
}

func cloneOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.Item{}, o.Items...)
	o.History = append([]orders.HistoryEntry{}, o.History...)
	return o
}
