package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE", "")
	t.Setenv("CURRENCY", "")
	t.Setenv("PAYSTACK_TIMEOUT", "")
	t.Setenv("FRONTEND_URL", "https://shop.example.edu/")
	t.Setenv("CORS_ORIGINS", "https://shop.example.edu, http://localhost:3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageDynamo, cfg.Storage)
	assert.Equal(t, "GHS", cfg.Currency)
	assert.Equal(t, 15*time.Second, cfg.PaystackTimeout)
	assert.Equal(t, "https://shop.example.edu/checkout/callback", cfg.CallbackURL())
	assert.Equal(t, []string{"https://shop.example.edu", "http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, "order_items", cfg.Tables.OrdersTables().Items)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("PAYSTACK_TIMEOUT", "soon")
	_, err := Load()
	assert.ErrorContains(t, err, "PAYSTACK_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cfg := &Config{Storage: StorageDynamo, PaystackTimeout: time.Second}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "PAYSTACK_SECRET_KEY")
	assert.Contains(t, err.Error(), "EVENTS_QUEUE_URL")

	mem := &Config{Storage: StorageMemory, JWTSecret: "s", PaystackTimeout: time.Second}
	assert.NoError(t, mem.Validate())

	bad := &Config{Storage: "postgres", JWTSecret: "s", PaystackSecretKey: "k", EventsQueueURL: "q", PaystackTimeout: time.Second}
	assert.ErrorContains(t, bad.Validate(), "STORAGE")
}
