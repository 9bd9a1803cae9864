package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
	"github.com/imrishuroy/campus-checkout/internal/checkout"
	"github.com/imrishuroy/campus-checkout/internal/idempotency"
	"github.com/imrishuroy/campus-checkout/internal/orders"
	"github.com/imrishuroy/campus-checkout/internal/paystack"
	"github.com/imrishuroy/campus-checkout/internal/validation"
)

// IdempotencyHeader lets a client retry POST /checkout without creating a
// second order.
const IdempotencyHeader = "Idempotency-Key"

type checkoutResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	*checkout.Result
}

func (h *api) checkout(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.CheckoutRequest
	// an empty body means gateway payment with no addresses
	if c.Request.ContentLength != 0 {
		if err := validation.BindAndValidate(c, &req, h.v); err != nil {
			return
		}
	}
	method := orders.MethodGateway
	if req.PaymentMethod != "" {
		method, _ = orders.ParsePaymentMethod(req.PaymentMethod)
	}

	a := actor(c)
	key := c.GetHeader(IdempotencyHeader)
	if h.cfg.Idempotency == nil {
		key = ""
	}
	if key != "" {
		rec, owned, err := h.cfg.Idempotency.Claim(ctx, a.UserID, key)
		if err != nil {
			writeError(c, err)
			return
		}
		if !owned {
			replay(c, rec)
			return
		}
	}

	res, err := h.cfg.Checkout.Checkout(ctx, checkout.Request{
		UserID:            a.UserID,
		ShippingAddressID: req.ShippingAddressID,
		BillingAddressID:  req.BillingAddressID,
		PaymentMethod:     method,
		CustomerNote:      req.CustomerNote,
		IPAddress:         c.ClientIP(),
	})
	if res == nil {
		if key != "" {
			if merr := h.cfg.Idempotency.MarkFailed(ctx, a.UserID, key, apperr.Message(err)); merr != nil {
				log.Printf("[checkout] release idempotency key user=%s: %v", a.UserID, merr)
			}
		}
		writeError(c, err)
		return
	}

	// an order exists from here on, even when the gateway hand-off failed
	status, body := http.StatusCreated, checkoutResponse{Success: true, Result: res}
	if err != nil {
		status, body = apperr.HTTPStatus(err), checkoutResponse{Error: string(apperr.KindOf(err)), Result: res}
	}
	raw, merr := json.Marshal(body)
	if merr != nil {
		writeError(c, merr)
		return
	}
	if key != "" {
		if derr := h.cfg.Idempotency.MarkDone(ctx, a.UserID, key, res.Order.OrderNumber, string(raw), status); derr != nil {
			log.Printf("[checkout] store idempotent response order=%s: %v", res.Order.OrderNumber, derr)
		}
	}
	c.Header("Location", "/orders/"+res.Order.OrderNumber)
	c.Data(status, "application/json; charset=utf-8", raw)
}

// replay answers a repeated Idempotency-Key from the stored response.
func replay(c *gin.Context, rec *idempotency.Record) {
	if rec == nil || rec.Status != idempotency.StatusDone {
		c.JSON(http.StatusConflict, gin.H{
			"error":   string(apperr.KindConflict),
			"message": "a request with this Idempotency-Key is still in progress",
		})
		return
	}
	c.Header("Idempotent-Replayed", "true")
	if rec.ResponseBody == "" {
		c.JSON(http.StatusOK, gin.H{"order_number": rec.OrderNumber})
		return
	}
	c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
}

func (h *api) initializePayment(c *gin.Context) {
	var req validation.InitializePaymentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	res, err := h.cfg.Checkout.RetryPayment(c.Request.Context(), actor(c).UserID, req.OrderNumber)
	if res == nil {
		writeError(c, err)
		return
	}
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), checkoutResponse{Error: string(apperr.KindOf(err)), Result: res})
		return
	}
	c.JSON(http.StatusOK, checkoutResponse{Success: true, Result: res})
}

type settledResponse struct {
	Success bool `json:"success"`
	*checkout.Settled
}

func (h *api) verifyPayment(c *gin.Context) {
	res, err := h.cfg.Checkout.VerifyPayment(c.Request.Context(), actor(c), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settledResponse{Success: res.Success(), Settled: res})
}

func (h *api) reconcilePayment(c *gin.Context) {
	res, err := h.cfg.Checkout.Settle(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	log.Printf("[payments] reconciled ref=%s by=%s outcome=%s", c.Param("reference"), actor(c).UserID, res.Outcome)
	c.JSON(http.StatusOK, settledResponse{Success: res.Success(), Settled: res})
}

// gatewayTransactions pages through the gateway's own transaction list so
// staff can spot references that never settled here.
func (h *api) gatewayTransactions(c *gin.Context) {
	if h.cfg.Gateway == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "not_configured", "message": "gateway listing is not configured"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
	res := h.cfg.Gateway.ListTransactions(c.Request.Context(), page, perPage)
	if !res.Success {
		writeError(c, apperr.GatewayFailure(res.Message))
		return
	}
	txns := res.Transactions
	if txns == nil {
		txns = []paystack.TransactionSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "page": page})
}

func (h *api) paymentStatus(c *gin.Context) {
	st, err := h.cfg.Checkout.PaymentStatus(c.Request.Context(), actor(c), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *api) paymentConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"public_key": h.cfg.PublicKey, "currency": h.cfg.Currency})
}

// maxWebhookBody bounds what is read before the signature is checked.
const maxWebhookBody = 1 << 20

// webhook checks the signature over the raw body, so it must not be bound
// or re-encoded first. Anything but a bad signature or a transient failure
// is answered 200 so the gateway stops redelivering.
func (h *api) webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": string(apperr.KindInvalidRequest), "message": "could not read body"})
		return
	}
	event := eventName(payload)

	err = h.cfg.Checkout.HandleWebhook(c.Request.Context(), payload, c.GetHeader(paystack.SignatureHeader))
	switch {
	case err == nil:
		h.cfg.Metrics.Webhook(event, "processed")
		c.String(http.StatusOK, "OK")
	case errors.Is(err, apperr.ErrInvalidSignature):
		h.cfg.Metrics.Webhook(event, "rejected")
		writeError(c, err)
	default:
		h.cfg.Metrics.Webhook(event, "retry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": string(apperr.KindOf(err)), "message": "webhook processing failed, retry later"})
	}
}

// eventName labels webhook metrics. The body is unverified at this point, so
// only known event names become label values.
func eventName(payload []byte) string {
	ev, err := paystack.ParseEvent(payload)
	if err != nil {
		return "undecodable"
	}
	switch ev.Event {
	case paystack.EventChargeSuccess, paystack.EventTransferSuccess, paystack.EventTransferFailed, paystack.EventTransferReverse:
		return ev.Event
	}
	return "other"
}
