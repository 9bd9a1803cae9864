package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency table. Keys are scoped to
// the user, so two buyers sending the same header value never collide.
type Record struct {
	Key            string    `dynamodbav:"idempotency_key"` // PK, "<user>:<header value>"
	UserID         string    `dynamodbav:"user_id"`
	Status         string    `dynamodbav:"status"`
	OrderNumber    string    `dynamodbav:"order_number,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`
	ResponseStatus int       `dynamodbav:"response_status,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// ScopedKey builds the stored key for a user's header value.
func ScopedKey(userID, key string) string { return userID + ":" + key }

// Reclaimable reports whether a new request may take over the entry: a failed
// attempt can be retried and an expired one is forgotten.
func (r *Record) Reclaimable(now time.Time) bool {
	return r.Status == StatusFailed || r.ExpiresAt <= now.Unix()
}
