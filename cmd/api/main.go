package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/imrishuroy/campus-checkout/internal/auth"
	"github.com/imrishuroy/campus-checkout/internal/aws"
	"github.com/imrishuroy/campus-checkout/internal/carts"
	"github.com/imrishuroy/campus-checkout/internal/catalog"
	"github.com/imrishuroy/campus-checkout/internal/checkout"
	"github.com/imrishuroy/campus-checkout/internal/config"
	"github.com/imrishuroy/campus-checkout/internal/handlers"
	"github.com/imrishuroy/campus-checkout/internal/idempotency"
	"github.com/imrishuroy/campus-checkout/internal/identity"
	"github.com/imrishuroy/campus-checkout/internal/memstore"
	"github.com/imrishuroy/campus-checkout/internal/metrics"
	"github.com/imrishuroy/campus-checkout/internal/orders"
	"github.com/imrishuroy/campus-checkout/internal/payouts"
	"github.com/imrishuroy/campus-checkout/internal/paystack"
)

// backend is the set of repositories the services run on.
type backend struct {
	ledger      checkout.Ledger
	carts       carts.Repository
	catalog     catalog.Repository
	identity    identity.Repository
	payouts     payouts.Repository
	idempotency handlers.IdempotencyStore
	events      *orders.EventPublisher
	counter     checkout.Counter
}

func dynamoBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	clients, err := aws.NewClients(ctx, aws.Targets{EventsQueueURL: cfg.EventsQueueURL, MetricsNamespace: cfg.MetricsNamespace})
	if err != nil {
		return nil, err
	}
	ordersStore := orders.NewStore(clients.DynamoDB, cfg.Tables.OrdersTables())
	cartsStore := carts.NewStore(clients.DynamoDB, cfg.Tables.Carts)
	catalogStore := catalog.NewStore(clients.DynamoDB, cfg.Tables.CatalogTables())
	return &backend{
		ledger:      checkout.NewDynamoLedger(ordersStore, cartsStore, catalogStore),
		carts:       cartsStore,
		catalog:     catalogStore,
		identity:    identity.NewStore(clients.DynamoDB, cfg.Tables.Users, cfg.Tables.Addresses),
		payouts:     payouts.NewStore(clients.DynamoDB, cfg.Tables.Payouts),
		idempotency: idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.IdempotencyTTL, cfg.IdempotencyLease),
		events:      orders.NewEventPublisher(clients.Events()),
		counter:     clients.Metrics(),
	}, nil
}

func memoryBackend() *backend {
	m := memstore.New()
	seedDemo(m)
	return &backend{
		ledger:      m,
		carts:       m,
		catalog:     m,
		identity:    m,
		payouts:     m.Payouts(),
		idempotency: m.Idempotency(),
	}
}

func setupRouter(cfg *config.Config, hc handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	corsCfg.AddAllowHeaders("Authorization", handlers.IdempotencyHeader)
	r.Use(cors.New(corsCfg))
	r.Use(hc.Metrics.Middleware())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "storage": cfg.Storage})
	})
	r.GET("/metrics", gin.WrapH(hc.Metrics.Handler()))

	handlers.RegisterRoutes(r, hc)
	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	var be *backend
	switch cfg.Storage {
	case config.StorageMemory:
		log.Printf("[api] using in-memory storage with demo data")
		be = memoryBackend()
	default:
		if be, err = dynamoBackend(context.Background(), cfg); err != nil {
			log.Fatalf("failed to init aws clients: %v", err)
		}
	}

	gateway := paystack.New(paystack.Config{
		BaseURL:   cfg.PaystackBaseURL,
		SecretKey: cfg.PaystackSecretKey,
		PublicKey: cfg.PaystackPublicKey,
		Currency:  cfg.Currency,
		Timeout:   cfg.PaystackTimeout,
	})
	cat := catalog.NewAccessor(be.catalog)
	checkoutSvc := checkout.New(checkout.Deps{
		Ledger:      be.ledger,
		Carts:       be.carts,
		Catalog:     cat,
		Identity:    identity.NewService(be.identity),
		Gateway:     gateway,
		Events:      be.events,
		Metrics:     be.counter,
		CallbackURL: cfg.CallbackURL(),
		Currency:    cfg.Currency,
	})
	payoutSvc := payouts.NewService(be.payouts, be.ledger, cat, gateway, cfg.Currency)
	checkoutSvc.SetTransferHandler(payoutSvc)

	r := setupRouter(cfg, handlers.HandlerConfig{
		Checkout:    checkoutSvc,
		Carts:       carts.NewService(be.carts, cat),
		Payouts:     payoutSvc,
		Idempotency: be.idempotency,
		Gateway:     gateway,
		Auth:        auth.NewVerifier(cfg.JWTSecret),
		Metrics:     metrics.NewServerMetrics(prometheus.NewRegistry(), "api"),
		PublicKey:   gateway.PublicKey(),
		Currency:    gateway.Currency(),
	})

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}
		log.Printf("running local server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
