package catalog

import (
	"sort"

	"github.com/imrishuroy/campus-checkout/internal/money"
)

// Product is a sellable catalog entry. Quantity is the available-to-sell
// count when the product has no variants.
type Product struct {
	ProductID   string       `dynamodbav:"product_id" json:"id"`
	StoreID     string       `dynamodbav:"store_id" json:"store_id"`
	Name        string       `dynamodbav:"name" json:"name"`
	SKU         string       `dynamodbav:"sku,omitempty" json:"sku,omitempty"`
	Price       money.Amount `dynamodbav:"price" json:"price"`
	Quantity    int          `dynamodbav:"quantity" json:"quantity"`
	IsActive    bool         `dynamodbav:"is_active" json:"is_active"`
	HasVariants bool         `dynamodbav:"has_variants" json:"has_variants"`
}

// Variant is a purchasable option of a product (size, colour) with its own
// price and stock.
type Variant struct {
	VariantID string       `dynamodbav:"variant_id" json:"id"`
	ProductID string       `dynamodbav:"product_id" json:"product_id"`
	Name      string       `dynamodbav:"name" json:"name"`
	SKU       string       `dynamodbav:"sku,omitempty" json:"sku,omitempty"`
	Price     money.Amount `dynamodbav:"price" json:"price"`
	Quantity  int          `dynamodbav:"quantity" json:"quantity"`
	IsActive  bool         `dynamodbav:"is_active" json:"is_active"`
}

// Shop is a seller's store.
type Shop struct {
	StoreID  string `dynamodbav:"store_id" json:"id"`
	OwnerID  string `dynamodbav:"owner_id" json:"owner_id"`
	Name     string `dynamodbav:"name" json:"name"`
	IsActive bool   `dynamodbav:"is_active" json:"is_active"`
}

// StockKey identifies the row holding stock: the variant when one is set,
// otherwise the product.
type StockKey struct {
	ProductID string
	VariantID string
}

func (k StockKey) String() string {
	if k.VariantID != "" {
		return "variant:" + k.VariantID
	}
	return "product:" + k.ProductID
}

// StockDecrement removes Quantity units from the row identified by Key.
type StockDecrement struct {
	Key      StockKey
	Quantity int
}

// Aggregate merges decrements that target the same stock row and returns
// them in a stable order.
func Aggregate(decs []StockDecrement) []StockDecrement {
	totals := map[StockKey]int{}
	for _, d := range decs {
		totals[d.Key] += d.Quantity
	}
	out := make([]StockDecrement, 0, len(totals))
	for k, q := range totals {
		if q > 0 {
			out = append(out, StockDecrement{Key: k, Quantity: q})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}
