// Package handlers exposes the cart, checkout, order, payment and payout
// services over HTTP.
package handlers

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
	"github.com/imrishuroy/campus-checkout/internal/auth"
	"github.com/imrishuroy/campus-checkout/internal/carts"
	"github.com/imrishuroy/campus-checkout/internal/checkout"
	"github.com/imrishuroy/campus-checkout/internal/idempotency"
	"github.com/imrishuroy/campus-checkout/internal/metrics"
	"github.com/imrishuroy/campus-checkout/internal/payouts"
	"github.com/imrishuroy/campus-checkout/internal/paystack"
	"github.com/imrishuroy/campus-checkout/internal/validation"
)

// IdempotencyStore remembers checkout responses per Idempotency-Key.
// idempotency.Store and the memstore view satisfy it.
type IdempotencyStore interface {
	Claim(ctx context.Context, userID, key string) (*idempotency.Record, bool, error)
	MarkDone(ctx context.Context, userID, key, orderNumber, body string, status int) error
	MarkFailed(ctx context.Context, userID, key, note string) error
}

// GatewayLedger lists transactions as the gateway recorded them, for staff
// reconciliation.
type GatewayLedger interface {
	ListTransactions(ctx context.Context, page, perPage int) paystack.ListResult
}

// HandlerConfig groups dependencies for the API handlers.
type HandlerConfig struct {
	Checkout    *checkout.Service
	Carts       *carts.Service
	Payouts     *payouts.Service
	Idempotency IdempotencyStore
	Gateway     GatewayLedger
	Auth        *auth.Verifier
	Metrics     *metrics.ServerMetrics
	PublicKey   string
	Currency    string
}

type api struct {
	cfg HandlerConfig
	v   *validatorv10.Validate
}

// RegisterRoutes registers every API route on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	h := &api{cfg: cfg, v: validation.New()}

	// the gateway and the storefront call these without a user token
	r.POST("/payments/webhook", h.webhook)
	r.GET("/payments/config", h.paymentConfig)

	authed := r.Group("/", cfg.Auth.Middleware())

	authed.GET("/cart", h.getCart)
	authed.POST("/cart/items", h.addCartItem)
	authed.PUT("/cart/items/:id", h.updateCartItem)
	authed.DELETE("/cart/items/:id", h.removeCartItem)
	authed.DELETE("/cart", h.clearCart)

	authed.POST("/checkout", h.checkout)

	authed.GET("/orders", h.listOrders)
	authed.GET("/orders/:number", h.getOrder)
	authed.POST("/orders/:number/cancel", h.cancelOrder)
	authed.GET("/orders/:number/transactions", h.orderTransactions)

	authed.POST("/payments/initialize", h.initializePayment)
	authed.GET("/payments/verify/:reference", h.verifyPayment)
	authed.GET("/payments/status/:number", h.paymentStatus)

	seller := authed.Group("/seller", auth.RequireSeller())
	seller.GET("/orders", h.sellerOrders)
	seller.POST("/orders/:number/status", h.updateOrderStatus)
	seller.GET("/payouts/balance", h.payoutBalance)
	seller.GET("/payouts", h.listPayouts)
	seller.POST("/payouts", h.requestPayout)
	seller.POST("/payouts/recipients", h.addRecipient)
	seller.GET("/banks", h.listBanks)

	staff := authed.Group("/staff", auth.RequireStaff())
	staff.GET("/payments/gateway", h.gatewayTransactions)
	staff.POST("/payments/:reference/reconcile", h.reconcilePayment)
}

// writeError maps err to a status and the {"error","message"} payload.
// Internal errors are logged and never echoed.
func writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if apperr.KindOf(err) == apperr.KindInternal {
		log.Printf("[http] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": string(apperr.KindOf(err)), "message": apperr.Message(err)})
}

// actor returns the authenticated caller. The auth middleware guarantees it
// on every authed route.
func actor(c *gin.Context) auth.Actor {
	a, _ := auth.ActorFrom(c)
	return a
}
