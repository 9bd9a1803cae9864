package carts

import (
	"time"

	"github.com/imrishuroy/campus-checkout/internal/money"
)

// MaxLines bounds the number of distinct lines in a cart. Checkout writes
// every line in one DynamoDB transaction, which caps the item count.
const MaxLines = 50

// Item is one cart line. Price is the unit price read from the catalog when
// the line was last written.
type Item struct {
	ItemID      string       `dynamodbav:"item_id" json:"id"`
	ProductID   string       `dynamodbav:"product_id" json:"product_id"`
	VariantID   string       `dynamodbav:"variant_id,omitempty" json:"variant_id,omitempty"`
	StoreID     string       `dynamodbav:"store_id" json:"store_id"`
	ProductName string       `dynamodbav:"product_name" json:"product_name"`
	VariantName string       `dynamodbav:"variant_name,omitempty" json:"variant_name,omitempty"`
	Quantity    int          `dynamodbav:"quantity" json:"quantity"`
	Price       money.Amount `dynamodbav:"price" json:"price"`
	UpdatedAt   time.Time    `dynamodbav:"updated_at" json:"updated_at"`
}

func (i Item) TotalPrice() money.Amount {
	return i.Price.Mul(i.Quantity)
}

// Cart is a user's basket. Version increases on every write and guards
// concurrent modification.
type Cart struct {
	UserID    string    `dynamodbav:"user_id" json:"user_id"`
	Items     []Item    `dynamodbav:"items" json:"items"`
	Version   int64     `dynamodbav:"version" json:"-"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// ItemCount is the number of units in the cart.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) Subtotal() money.Amount {
	total := money.Zero
	for _, it := range c.Items {
		total = total.Add(it.TotalPrice())
	}
	return total
}

// Total equals Subtotal; carts carry no tax or shipping.
func (c *Cart) Total() money.Amount {
	return c.Subtotal()
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

func (c *Cart) find(productID, variantID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID && it.VariantID == variantID {
			return i
		}
	}
	return -1
}

func (c *Cart) indexOf(itemID string) int {
	for i, it := range c.Items {
		if it.ItemID == itemID {
			return i
		}
	}
	return -1
}

// View is the JSON shape returned to clients, with derived totals.
type View struct {
	UserID    string       `json:"user_id"`
	Items     []ItemView   `json:"items"`
	ItemCount int          `json:"item_count"`
	Subtotal  money.Amount `json:"subtotal"`
	Total     money.Amount `json:"total"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type ItemView struct {
	Item
	TotalPrice money.Amount `json:"total_price"`
}

func (c *Cart) View() View {
	items := make([]ItemView, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, ItemView{Item: it, TotalPrice: it.TotalPrice()})
	}
	return View{
		UserID:    c.UserID,
		Items:     items,
		ItemCount: c.ItemCount(),
		Subtotal:  c.Subtotal(),
		Total:     c.Total(),
		UpdatedAt: c.UpdatedAt,
	}
}
