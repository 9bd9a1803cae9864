package validation

import "github.com/imrishuroy/campus-checkout/internal/money"

// AddCartItemRequest is the payload for POST /cart/items
type AddCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// UpdateCartItemRequest is the payload for PUT /cart/items/:id
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

// CheckoutRequest is the payload for POST /checkout. Omitted payment_method
// means the online gateway.
type CheckoutRequest struct {
	ShippingAddressID string `json:"shipping_address_id,omitempty" validate:"omitempty,max=64"`
	BillingAddressID  string `json:"billing_address_id,omitempty" validate:"omitempty,max=64"`
	PaymentMethod     string `json:"payment_method,omitempty" validate:"omitempty,oneof=gateway paystack bank_transfer cash_on_delivery"`
	CustomerNote      string `json:"customer_note,omitempty" validate:"max=500"`
}

// InitializePaymentRequest is the payload for POST /payments/initialize
type InitializePaymentRequest struct {
	OrderNumber string `json:"order_number" validate:"required"`
}

// UpdateOrderStatusRequest is the payload for seller status updates.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=processing shipped delivered cancelled"`
	Note   string `json:"note,omitempty" validate:"max=500"`
}

// CancelOrderRequest is the optional payload for POST /orders/:number/cancel
type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// PayoutRequest is the payload for POST /seller/payouts
type PayoutRequest struct {
	Amount        money.Amount `json:"amount" validate:"gt=0"`
	RecipientCode string       `json:"recipient_code" validate:"required"`
}

// RecipientRequest is the payload for POST /seller/payouts/recipients
type RecipientRequest struct {
	Name          string `json:"name" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required,numeric,min=6,max=20"`
	BankCode      string `json:"bank_code" validate:"required"`
	Type          string `json:"type,omitempty" validate:"omitempty,oneof=nuban mobile_money ghipss"`
}
