// Package refs generates the human-facing identifiers for orders,
// payment transactions and seller payouts.
package refs

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Token returns 8 upper-case hex characters taken from a random UUID.
func Token() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// OrderNumber formats ORD-<YYYYMMDD>-<token>.
func OrderNumber(now time.Time, token string) string {
	return "ORD-" + now.UTC().Format("20060102") + "-" + token
}

// Transaction formats TXN-<token>.
func Transaction(token string) string { return "TXN-" + token }

// Payout formats PYT-<token>.
func Payout(token string) string { return "PYT-" + token }
