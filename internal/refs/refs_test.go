package refs

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormats(t *testing.T) {
	tok := Token()
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{8}$`), tok)

	day := time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "ORD-20260309-"+tok, OrderNumber(day, tok))
	assert.Regexp(t, `^TXN-[0-9A-F]{8}$`, Transaction(Token()))
	assert.Regexp(t, `^PYT-[0-9A-F]{8}$`, Payout(Token()))
}

func TestTokensDiffer(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		seen[Token()] = true
	}
	// 32 bits of randomness; a collision in 200 draws would point at a broken generator.
	assert.Len(t, seen, 200)
}
