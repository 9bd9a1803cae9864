package memstore

import (
	"context"
	"sort"

	"github.com/imrishuroy/campus-checkout/internal/payouts"
)

// PayoutRepo is the payouts.Repository view of a Store.
type PayoutRepo struct{ s *Store }

var _ payouts.Repository = PayoutRepo{}

func (s *Store) Payouts() PayoutRepo { return PayoutRepo{s: s} }

func (r PayoutRepo) LedgerVersion(ctx context.Context, storeID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.ledgers[storeID], nil
}

func (r PayoutRepo) Create(ctx context.Context, p *payouts.Payout, version int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payouts[p.Reference]; ok {
		return payouts.ErrReferenceTaken
	}
	if r.s.ledgers[p.StoreID] != version {
		return payouts.ErrLedgerMoved
	}
	r.s.payouts[p.Reference] = *p
	r.s.ledgers[p.StoreID] = version + 1
	return nil
}

func (r PayoutRepo) Get(ctx context.Context, reference string) (*payouts.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payouts[reference]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r PayoutRepo) ListByStore(ctx context.Context, storeID string) ([]payouts.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []payouts.Payout
	for _, p := range r.s.payouts {
		if p.StoreID == storeID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r PayoutRepo) UpdateStatus(ctx context.Context, p *payouts.Payout, expected payouts.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.payouts[p.Reference]
	if !ok || cur.Status != expected {
		return payouts.ErrStatusMismatch
	}
	r.s.payouts[p.Reference] = *p
	return nil
}
