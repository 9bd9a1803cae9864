package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/campus-checkout/internal/orders"
	"github.com/imrishuroy/campus-checkout/internal/validation"
)

func (h *api) listOrders(c *gin.Context) {
	list, err := h.cfg.Checkout.Orders(c.Request.Context(), actor(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

func (h *api) getOrder(c *gin.Context) {
	o, err := h.cfg.Checkout.Order(c.Request.Context(), actor(c), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *api) cancelOrder(c *gin.Context) {
	var req validation.CancelOrderRequest
	if c.Request.ContentLength != 0 {
		if err := validation.BindAndValidate(c, &req, h.v); err != nil {
			return
		}
	}
	o, err := h.cfg.Checkout.Cancel(c.Request.Context(), actor(c), c.Param("number"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *api) orderTransactions(c *gin.Context) {
	txns, err := h.cfg.Checkout.Transactions(c.Request.Context(), actor(c), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	if txns == nil {
		txns = []orders.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

func (h *api) sellerOrders(c *gin.Context) {
	list, err := h.cfg.Checkout.SellerOrders(c.Request.Context(), actor(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

func (h *api) updateOrderStatus(c *gin.Context) {
	var req validation.UpdateOrderStatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.cfg.Checkout.AdvanceStatus(c.Request.Context(), actor(c), c.Param("number"), orders.Status(req.Status), req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
