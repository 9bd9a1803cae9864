package validation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/campus-checkout/internal/money"
)

func TestCheckoutRequest_Valid(t *testing.T) {
	v := New()

	for _, method := range []string{"", "gateway", "paystack", "bank_transfer", "cash_on_delivery"} {
		req := CheckoutRequest{
			ShippingAddressID: "addr-1",
			PaymentMethod:     method,
			CustomerNote:      "leave at the porter's lodge",
		}
		if err := v.Struct(req); err != nil {
			t.Fatalf("method %q: expected valid, got error: %v", method, err)
		}
	}
}

func TestCheckoutRequest_Invalid(t *testing.T) {
	v := New()

	if err := v.Struct(CheckoutRequest{PaymentMethod: "crypto"}); err == nil {
		t.Fatal("expected error for unknown payment method, got nil")
	}
	if err := v.Struct(CheckoutRequest{CustomerNote: "   "}); err == nil {
		t.Fatal("expected error for blank note, got nil")
	}
}

func TestCartRequests(t *testing.T) {
	v := New()

	if err := v.Struct(AddCartItemRequest{ProductID: "p1", Quantity: 1}); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
	if err := v.Struct(AddCartItemRequest{ProductID: "p1", Quantity: 0}); err == nil {
		t.Fatal("expected error for zero quantity, got nil")
	}
	if err := v.Struct(AddCartItemRequest{Quantity: 2}); err == nil {
		t.Fatal("expected error for missing product_id, got nil")
	}
	if err := v.Struct(UpdateCartItemRequest{Quantity: -1}); err == nil {
		t.Fatal("expected error for negative quantity, got nil")
	}
}

func TestPayoutRequest_Amount(t *testing.T) {
	v := New()

	if err := v.Struct(PayoutRequest{Amount: money.MustParse("0.01"), RecipientCode: "RCP_1"}); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
	for _, amt := range []string{"0", "-5.00", "0.001"} {
		err := v.Struct(PayoutRequest{Amount: money.MustParse(amt), RecipientCode: "RCP_1"})
		if err == nil {
			t.Fatalf("amount %s: expected error, got nil", amt)
		}
		ve, ok := err.(validatorv10.ValidationErrors)
		if !ok || ve[0].Field() != "amount" {
			t.Fatalf("amount %s: expected amount field error, got %v", amt, err)
		}
	}
}

func TestUpdateOrderStatusRequest(t *testing.T) {
	v := New()

	if err := v.Struct(UpdateOrderStatusRequest{Status: "shipped"}); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
	if err := v.Struct(UpdateOrderStatusRequest{Status: "refunded"}); err == nil {
		t.Fatal("expected error for refunded, got nil")
	}
}

func TestBindAndValidate_WritesFieldErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	cases := []struct {
		body  string
		field string
	}{
		{`{"product_id":"p1","quantity":0}`, "quantity"},
		{`{"quantity":1}`, "product_id"},
		{`{"product_id":`, ""},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(tc.body))
		c.Request.Header.Set("Content-Type", "application/json")

		var req AddCartItemRequest
		if err := BindAndValidate(c, &req, v); err == nil {
			t.Fatalf("body %s: expected error", tc.body)
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", tc.body, w.Code)
		}
		var resp struct {
			Error   string            `json:"error"`
			Message string            `json:"message"`
			Fields  map[string]string `json:"fields"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Error != "invalid_request" || resp.Message == "" {
			t.Fatalf("body %s: unexpected payload %+v", tc.body, resp)
		}
		if tc.field != "" {
			if _, ok := resp.Fields[tc.field]; !ok {
				t.Fatalf("body %s: expected field %s in %v", tc.body, tc.field, resp.Fields)
			}
		}
	}
}
