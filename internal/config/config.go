// Package config reads the service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/imrishuroy/campus-checkout/internal/catalog"
	"github.com/imrishuroy/campus-checkout/internal/orders"
)

// Storage backends.
const (
	StorageDynamo = "dynamodb"
	StorageMemory = "memory"
)

// Tables holds every DynamoDB table name.
type Tables struct {
	Carts        string
	Orders       string
	OrderItems   string
	Transactions string
	Products     string
	Variants     string
	Users        string
	Addresses    string
	Stores       string
	Payouts      string
	Idempotency  string
}

// OrdersTables returns the order table names in the form the orders store wants.
func (t Tables) OrdersTables() orders.Tables {
	return orders.Tables{Orders: t.Orders, Items: t.OrderItems, Transactions: t.Transactions}
}

func (t Tables) CatalogTables() catalog.Tables {
	return catalog.Tables{Products: t.Products, Variants: t.Variants, Stores: t.Stores}
}

type Config struct {
	RunLocal bool
	Port     string
	Storage  string
	Tables   Tables

	EventsQueueURL   string
	MetricsNamespace string

	PaystackSecretKey string
	PaystackPublicKey string
	PaystackBaseURL   string
	PaystackTimeout   time.Duration

	FrontendURL      string
	JWTSecret        string
	Currency         string
	CORSOrigins      []string
	IdempotencyTTL   time.Duration
	IdempotencyLease time.Duration
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RunLocal: os.Getenv("RUN_LOCAL") == "true",
		Port:     getenv("PORT", "8080"),
		Storage:  strings.ToLower(getenv("STORAGE", StorageDynamo)),
		Tables: Tables{
			Carts:        getenv("CARTS_TABLE", "carts"),
			Orders:       getenv("ORDERS_TABLE", "orders"),
			OrderItems:   getenv("ORDER_ITEMS_TABLE", "order_items"),
			Transactions: getenv("TRANSACTIONS_TABLE", "transactions"),
			Products:     getenv("PRODUCTS_TABLE", "products"),
			Variants:     getenv("VARIANTS_TABLE", "product_variants"),
			Users:        getenv("USERS_TABLE", "users"),
			Addresses:    getenv("ADDRESSES_TABLE", "addresses"),
			Stores:       getenv("STORES_TABLE", "stores"),
			Payouts:      getenv("PAYOUTS_TABLE", "payouts"),
			Idempotency:  getenv("IDEMPOTENCY_TABLE", "idempotency"),
		},
		EventsQueueURL:    os.Getenv("EVENTS_QUEUE_URL"),
		MetricsNamespace:  getenv("METRICS_NAMESPACE", "CampusCheckout"),
		PaystackSecretKey: os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackPublicKey: os.Getenv("PAYSTACK_PUBLIC_KEY"),
		PaystackBaseURL:   getenv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		FrontendURL:       strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:3000"), "/"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		Currency:          strings.ToUpper(getenv("CURRENCY", "GHS")),
		CORSOrigins:       splitList(getenv("CORS_ORIGINS", "*")),
	}

	var err error
	if cfg.PaystackTimeout, err = duration("PAYSTACK_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = duration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.IdempotencyLease, err = duration("IDEMPOTENCY_LEASE", 2*time.Minute); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on settings the service cannot run without.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage {
	case StorageDynamo, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE must be %q or %q, got %q", StorageDynamo, StorageMemory, c.Storage))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Storage != StorageMemory {
		if c.PaystackSecretKey == "" {
			errs = append(errs, errors.New("PAYSTACK_SECRET_KEY is required"))
		}
		if c.EventsQueueURL == "" {
			errs = append(errs, errors.New("EVENTS_QUEUE_URL is required"))
		}
	}
	if c.PaystackTimeout <= 0 {
		errs = append(errs, errors.New("PAYSTACK_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// CallbackURL is where the gateway sends the buyer after paying.
func (c *Config) CallbackURL() string {
	return c.FrontendURL + "/checkout/callback"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
