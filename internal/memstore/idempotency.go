package memstore

import (
	"context"
	"time"

	"github.com/imrishuroy/campus-checkout/internal/idempotency"
)

type idemEntry = idempotency.Record

// IdempotencyRepo mirrors idempotency.Store in memory.
type IdempotencyRepo struct {
	s     *Store
	ttl   time.Duration
	lease time.Duration
}

func (s *Store) Idempotency() IdempotencyRepo {
	return IdempotencyRepo{s: s, ttl: idempotency.DefaultTTL, lease: idempotency.DefaultLease}
}

func (r IdempotencyRepo) Claim(ctx context.Context, userID, key string) (*idempotency.Record, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	k := idempotency.ScopedKey(userID, key)
	if cur, ok := r.s.idem[k]; ok && !cur.Reclaimable(now) {
		return &cur, false, nil
	}
	r.s.idem[k] = idempotency.Record{
		Key:       k,
		UserID:    userID,
		Status:    idempotency.StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(r.lease).Unix(),
	}
	return nil, true, nil
}

func (r IdempotencyRepo) MarkDone(ctx context.Context, userID, key, orderNumber, body string, status int) error {
	return r.finish(userID, key, func(rec *idempotency.Record) {
		rec.Status = idempotency.StatusDone
		rec.OrderNumber = orderNumber
		rec.ResponseBody = body
		rec.ResponseStatus = status
		rec.ExpiresAt = time.Now().Add(r.ttl).Unix()
	})
}

func (r IdempotencyRepo) MarkFailed(ctx context.Context, userID, key, note string) error {
	return r.finish(userID, key, func(rec *idempotency.Record) {
		rec.Status = idempotency.StatusFailed
		rec.Note = note
	})
}

func (r IdempotencyRepo) finish(userID, key string, fn func(*idempotency.Record)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := idempotency.ScopedKey(userID, key)
	rec, ok := r.s.idem[k]
	if !ok || rec.Status != idempotency.StatusInProgress {
		return idempotency.ErrLost
	}
	fn(&rec)
	rec.UpdatedAt = time.Now().UTC()
	r.s.idem[k] = rec
	return nil
}
