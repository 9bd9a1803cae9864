package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
	"github.com/imrishuroy/campus-checkout/internal/payouts"
	"github.com/imrishuroy/campus-checkout/internal/paystack"
	"github.com/imrishuroy/campus-checkout/internal/validation"
)

func (h *api) payoutBalance(c *gin.Context) {
	b, err := h.cfg.Payouts.Balance(c.Request.Context(), actor(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *api) listPayouts(c *gin.Context) {
	list, err := h.cfg.Payouts.List(c.Request.Context(), actor(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []payouts.Payout{}
	}
	c.JSON(http.StatusOK, gin.H{"payouts": list})
}

func (h *api) requestPayout(c *gin.Context) {
	var req validation.PayoutRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	p, err := h.cfg.Payouts.Request(c.Request.Context(), actor(c).UserID, req.Amount, req.RecipientCode)
	if err != nil {
		if p == nil {
			writeError(c, err)
			return
		}
		// the payout row exists and is already marked failed
		c.JSON(apperr.HTTPStatus(err), gin.H{
			"error":   string(apperr.KindOf(err)),
			"message": apperr.Message(err),
			"payout":  p,
		})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *api) addRecipient(c *gin.Context) {
	var req validation.RecipientRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	typ := req.Type
	if typ == "" {
		typ = "nuban"
	}
	code, err := h.cfg.Payouts.AddRecipient(c.Request.Context(), actor(c).UserID, paystack.Recipient{
		Name:          req.Name,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
		Type:          typ,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"recipient_code": code})
}

func (h *api) listBanks(c *gin.Context) {
	banks, err := h.cfg.Payouts.Banks(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if banks == nil {
		banks = []paystack.Bank{}
	}
	c.JSON(http.StatusOK, gin.H{"banks": banks})
}
