package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/campus-checkout/internal/validation"
)

func (h *api) getCart(c *gin.Context) {
	cart, err := h.cfg.Carts.GetOrCreate(c.Request.Context(), actor(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart.View())
}

func (h *api) addCartItem(c *gin.Context) {
	var req validation.AddCartItemRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	cart, err := h.cfg.Carts.AddItem(c.Request.Context(), actor(c).UserID, req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart.View())
}

func (h *api) updateCartItem(c *gin.Context) {
	var req validation.UpdateCartItemRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	cart, err := h.cfg.Carts.UpdateItem(c.Request.Context(), actor(c).UserID, c.Param("id"), req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart.View())
}

func (h *api) removeCartItem(c *gin.Context) {
	cart, err := h.cfg.Carts.RemoveItem(c.Request.Context(), actor(c).UserID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart.View())
}

func (h *api) clearCart(c *gin.Context) {
	cart, err := h.cfg.Carts.Clear(c.Request.Context(), actor(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart.View())
}
