package idempotency

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/campus-checkout/internal/aws/awstest"
)

func newTestStore() (*Store, *awstest.Dynamo, *time.Time) {
	d := awstest.NewDynamo()
	d.CreateTable("idempotency", "idempotency_key")
	s := NewStore(d, "idempotency", time.Hour, time.Minute)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }
	return s, d, &now
}

func TestClaim_Get_MarkDone(t *testing.T) {
	s, d, _ := newTestStore()
	ctx := context.Background()

	rec, owned, err := s.Claim(ctx, "user-1", "key-1")
	if err != nil {
		t.Fatalf("Claim error: %v", err)
	}
	if !owned || rec != nil {
		t.Fatalf("expected first claim to own the key, got owned=%v rec=%+v", owned, rec)
	}

	// second claim sees the in-flight entry
	rec, owned, err = s.Claim(ctx, "user-1", "key-1")
	if err != nil {
		t.Fatalf("second Claim error: %v", err)
	}
	if owned {
		t.Fatalf("expected owned=false on duplicate claim")
	}
	if rec == nil || rec.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS entry, got %+v", rec)
	}

	if err := s.MarkDone(ctx, "user-1", "key-1", "ORD-20260314-0000ABCD", `{"ok":true}`, 201); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}

	item := d.Get("idempotency", "user-1:key-1")
	if item == nil {
		t.Fatalf("stored item missing")
	}
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusDone {
		t.Fatalf("status not updated to DONE, got %+v", item["status"])
	}
	if rb, ok := item["response_body"].(*types.AttributeValueMemberS); !ok || rb.Value != `{"ok":true}` {
		t.Fatalf("response_body not set correctly: %+v", item["response_body"])
	}

	got, err := s.Get(ctx, "user-1", "key-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.OrderNumber != "ORD-20260314-0000ABCD" || got.ResponseStatus != 201 {
		t.Fatalf("unexpected record %+v", got)
	}

	// a done entry is replayed, never re-run
	rec, owned, err = s.Claim(ctx, "user-1", "key-1")
	if err != nil || owned || rec.Status != StatusDone {
		t.Fatalf("expected replay of DONE entry, got owned=%v rec=%+v err=%v", owned, rec, err)
	}
}

func TestClaim_ScopedPerUser(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()
	if _, owned, _ := s.Claim(ctx, "user-1", "same"); !owned {
		t.Fatalf("user-1 should own its key")
	}
	if _, owned, _ := s.Claim(ctx, "user-2", "same"); !owned {
		t.Fatalf("user-2 should not collide with user-1")
	}
}

func TestClaim_ReclaimsFailedAndExpired(t *testing.T) {
	s, _, now := newTestStore()
	ctx := context.Background()

	if _, owned, _ := s.Claim(ctx, "u", "k"); !owned {
		t.Fatalf("expected first claim to own the key")
	}
	if err := s.MarkFailed(ctx, "u", "k", "out of stock"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	rec, err := s.Get(ctx, "u", "k")
	if err != nil || rec.Status != StatusFailed || rec.Note != "out of stock" {
		t.Fatalf("expected FAILED with note, got %+v err=%v", rec, err)
	}
	if _, owned, err := s.Claim(ctx, "u", "k"); err != nil || !owned {
		t.Fatalf("failed entry should be reclaimable, owned=%v err=%v", owned, err)
	}
	if err := s.MarkDone(ctx, "u", "k", "ORD-1", "{}", 201); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}

	*now = now.Add(2 * time.Hour)
	if _, owned, err := s.Claim(ctx, "u", "k"); err != nil || !owned {
		t.Fatalf("expired entry should be reclaimable, owned=%v err=%v", owned, err)
	}
}

func TestMarkDone_RequiresInProgress(t *testing.T) {
	s, _, _ := newTestStore()
	if err := s.MarkDone(context.Background(), "u", "missing", "ORD-1", "{}", 201); err != ErrLost {
		t.Fatalf("expected ErrLost, got %v", err)
	}
}

func TestClaim_AbandonedClaimFreesAfterLease(t *testing.T) {
	s, d, now := newTestStore()
	ctx := context.Background()

	if _, owned, _ := s.Claim(ctx, "u", "k"); !owned {
		t.Fatalf("expected first claim to own the key")
	}
	// the owner never finishes
	*now = now.Add(30 * time.Second)
	if rec, owned, err := s.Claim(ctx, "u", "k"); err != nil || owned || rec.Status != StatusInProgress {
		t.Fatalf("claim inside the lease should see IN_PROGRESS, owned=%v rec=%+v err=%v", owned, rec, err)
	}

	*now = now.Add(time.Minute)
	if _, owned, err := s.Claim(ctx, "u", "k"); err != nil || !owned {
		t.Fatalf("claim after the lease should take over, owned=%v err=%v", owned, err)
	}
	if err := s.MarkDone(ctx, "u", "k", "ORD-1", "{}", 201); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}

	exp, ok := d.Get("idempotency", "u:k")["expires_at"].(*types.AttributeValueMemberN)
	if !ok {
		t.Fatalf("expires_at missing")
	}
	want := strconv.FormatInt(now.Add(time.Hour).Unix(), 10)
	if exp.Value != want {
		t.Fatalf("MarkDone should extend expiry to the replay TTL, got %s want %s", exp.Value, want)
	}

	// a done entry outlives the lease
	*now = now.Add(10 * time.Minute)
	if rec, owned, err := s.Claim(ctx, "u", "k"); err != nil || owned || rec.Status != StatusDone {
		t.Fatalf("expected replay of DONE entry, owned=%v rec=%+v err=%v", owned, rec, err)
	}
}
