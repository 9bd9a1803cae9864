package orders

import (
	"time"

	"github.com/imrishuroy/campus-checkout/internal/money"
)

// Status is the order fulfilment status.
type Status string

// Order statuses
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Payment statuses stored on the order.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// PaymentMethod is how the buyer pays.
type PaymentMethod string

const (
	MethodGateway        PaymentMethod = "gateway"
	MethodBankTransfer   PaymentMethod = "bank_transfer"
	MethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// ParsePaymentMethod accepts the canonical names plus "paystack" as an alias
// for the online gateway.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch s {
	case "gateway", "paystack":
		return MethodGateway, true
	case "bank_transfer":
		return MethodBankTransfer, true
	case "cash_on_delivery":
		return MethodCashOnDelivery, true
	}
	return "", false
}

// TxnStatus is the payment transaction status.
type TxnStatus string

const (
	TxnPending   TxnStatus = "pending"
	TxnCompleted TxnStatus = "completed"
	TxnFailed    TxnStatus = "failed"
	TxnRefunded  TxnStatus = "refunded"
)

// HistoryEntry records one status change.
type HistoryEntry struct {
	Status    Status    `dynamodbav:"status" json:"status"`
	Note      string    `dynamodbav:"note,omitempty" json:"note,omitempty"`
	ChangedBy string    `dynamodbav:"changed_by,omitempty" json:"changed_by,omitempty"`
	At        time.Time `dynamodbav:"at" json:"at"`
}

// Order represents the item stored in the orders table. Items live in their
// own table and are attached on read.
type Order struct {
	OrderNumber       string         `dynamodbav:"order_number" json:"order_number"` // PK
	UserID            string         `dynamodbav:"user_id,omitempty" json:"user_id,omitempty"`
	Status            Status         `dynamodbav:"status" json:"status"`
	PaymentMethod     PaymentMethod  `dynamodbav:"payment_method" json:"payment_method"`
	PaymentStatus     string         `dynamodbav:"payment_status" json:"payment_status"`
	PaymentReference  string         `dynamodbav:"payment_reference,omitempty" json:"payment_reference,omitempty"`
	PaymentAttempts   int            `dynamodbav:"payment_attempts" json:"payment_attempts"`
	Currency          string         `dynamodbav:"currency" json:"currency"`
	Subtotal          money.Amount   `dynamodbav:"subtotal" json:"subtotal"`
	TaxAmount         money.Amount   `dynamodbav:"tax_amount" json:"tax_amount"`
	ShippingCost      money.Amount   `dynamodbav:"shipping_cost" json:"shipping_cost"`
	PlatformFee       money.Amount   `dynamodbav:"platform_fee" json:"platform_fee"`
	Total             money.Amount   `dynamodbav:"total" json:"total"`
	ShippingAddressID string         `dynamodbav:"shipping_address_id,omitempty" json:"shipping_address_id,omitempty"`
	BillingAddressID  string         `dynamodbav:"billing_address_id,omitempty" json:"billing_address_id,omitempty"`
	CustomerNote      string         `dynamodbav:"customer_note,omitempty" json:"customer_note,omitempty"`
	IPAddress         string         `dynamodbav:"ip_address,omitempty" json:"-"`
	History           []HistoryEntry `dynamodbav:"status_history" json:"status_history"`
	Items             []Item         `dynamodbav:"-" json:"items"`
	CreatedAt         time.Time      `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `dynamodbav:"updated_at" json:"updated_at"`
	PaidAt            *time.Time     `dynamodbav:"paid_at,omitempty" json:"paid_at,omitempty"`
	DeliveredAt       *time.Time     `dynamodbav:"delivered_at,omitempty" json:"delivered_at,omitempty"`
}

// IsPaid reports payment_status == paid with a paid timestamp.
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid && o.PaidAt != nil
}

// StoreIDs returns the distinct stores that have lines in the order.
func (o *Order) StoreIDs() []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range o.Items {
		if !seen[it.StoreID] {
			seen[it.StoreID] = true
			out = append(out, it.StoreID)
		}
	}
	return out
}

// Item is a purchased line, snapshotting catalog identity and price.
type Item struct {
	OrderNumber string       `dynamodbav:"order_number" json:"-"` // PK
	ItemID      string       `dynamodbav:"item_id" json:"id"`     // SK
	ProductID   string       `dynamodbav:"product_id" json:"product_id"`
	VariantID   string       `dynamodbav:"variant_id,omitempty" json:"variant_id,omitempty"`
	StoreID     string       `dynamodbav:"store_id" json:"store_id"`
	ProductName string       `dynamodbav:"product_name" json:"product_name"`
	VariantName string       `dynamodbav:"variant_name,omitempty" json:"variant_name,omitempty"`
	Price       money.Amount `dynamodbav:"price" json:"price"`
	Quantity    int          `dynamodbav:"quantity" json:"quantity"`
	Subtotal    money.Amount `dynamodbav:"subtotal" json:"subtotal"`
	TaxAmount   money.Amount `dynamodbav:"tax_amount" json:"tax_amount"`
	Total       money.Amount `dynamodbav:"total" json:"total"`
	CreatedAt   time.Time    `dynamodbav:"created_at" json:"created_at"`
}

// NewItem fills the derived amounts of a line. Tax is always zero.
func NewItem(it Item) Item {
	it.Subtotal = it.Price.Mul(it.Quantity)
	it.TaxAmount = money.Zero
	it.Total = it.Subtotal.Add(it.TaxAmount)
	return it
}

// Transaction is one payment attempt for an order.
type Transaction struct {
	Reference       string        `dynamodbav:"reference" json:"reference"` // PK
	OrderNumber     string        `dynamodbav:"order_number" json:"order_number"`
	UserID          string        `dynamodbav:"user_id,omitempty" json:"-"`
	Amount          money.Amount  `dynamodbav:"amount" json:"amount"`
	Fee             money.Amount  `dynamodbav:"fee" json:"fee"`
	Currency        string        `dynamodbav:"currency" json:"currency"`
	PaymentMethod   PaymentMethod `dynamodbav:"payment_method" json:"payment_method"`
	Status          TxnStatus     `dynamodbav:"status" json:"status"`
	GatewayResponse string        `dynamodbav:"gateway_response,omitempty" json:"-"`
	CreatedAt       time.Time     `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `dynamodbav:"updated_at" json:"updated_at"`
	PaidAt          *time.Time    `dynamodbav:"paid_at,omitempty" json:"paid_at,omitempty"`
}

// ChargeAmount is what the buyer is asked to pay: the order amount plus the
// gateway processing fee.
func (t *Transaction) ChargeAmount() money.Amount {
	return t.Amount.Add(t.Fee)
}
