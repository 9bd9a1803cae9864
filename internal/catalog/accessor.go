// Package catalog resolves products and variants for the cart and checkout
// flows and is the single source of truth for available-to-sell stock.
package catalog

import (
	"context"
	"fmt"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
	"github.com/imrishuroy/campus-checkout/internal/money"
)

// Repository reads catalog rows. Missing rows return (nil, nil).
type Repository interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
	GetVariant(ctx context.Context, variantID string) (*Variant, error)
	GetShop(ctx context.Context, storeID string) (*Shop, error)
	ShopByOwner(ctx context.Context, ownerID string) (*Shop, error)
}

// Selection is a resolved purchasable line: product plus optional variant,
// the current unit price and the stock currently available.
type Selection struct {
	Product   *Product
	Variant   *Variant
	Price     money.Amount
	Available int
}

func (s *Selection) Key() StockKey {
	k := StockKey{ProductID: s.Product.ProductID}
	if s.Variant != nil {
		k.VariantID = s.Variant.VariantID
	}
	return k
}

func (s *Selection) VariantName() string {
	if s.Variant == nil {
		return ""
	}
	return s.Variant.Name
}

// CheckQuantity fails with OutOfStock when qty exceeds the available stock.
func (s *Selection) CheckQuantity(qty int) error {
	if qty > s.Available {
		return apperr.OutOfStock(s.Available)
	}
	return nil
}

type Accessor struct {
	repo Repository
}

func NewAccessor(repo Repository) *Accessor {
	return &Accessor{repo: repo}
}

// Resolve looks up the product (and variant) a cart line refers to.
func (a *Accessor) Resolve(ctx context.Context, productID, variantID string) (*Selection, error) {
	p, err := a.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	if p == nil || !p.IsActive {
		return nil, apperr.NotFound("product not found")
	}

	if variantID == "" {
		if p.HasVariants {
			return nil, apperr.InvalidRequest("please select a variant for %s", p.Name)
		}
		return &Selection{Product: p, Price: p.Price, Available: p.Quantity}, nil
	}

	v, err := a.repo.GetVariant(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("get variant %s: %w", variantID, err)
	}
	if v == nil || !v.IsActive {
		return nil, apperr.NotFound("variant not found")
	}
	if v.ProductID != p.ProductID {
		return nil, apperr.InvalidRequest("variant does not belong to this product")
	}
	return &Selection{Product: p, Variant: v, Price: v.Price, Available: v.Quantity}, nil
}

// Available returns the current stock of the row identified by key.
// Missing rows report zero.
func (a *Accessor) Available(ctx context.Context, key StockKey) (int, error) {
	if key.VariantID != "" {
		v, err := a.repo.GetVariant(ctx, key.VariantID)
		if err != nil {
			return 0, fmt.Errorf("get variant %s: %w", key.VariantID, err)
		}
		if v == nil {
			return 0, nil
		}
		return v.Quantity, nil
	}
	p, err := a.repo.GetProduct(ctx, key.ProductID)
	if err != nil {
		return 0, fmt.Errorf("get product %s: %w", key.ProductID, err)
	}
	if p == nil {
		return 0, nil
	}
	return p.Quantity, nil
}

// Shop returns the store or NotFound.
func (a *Accessor) Shop(ctx context.Context, storeID string) (*Shop, error) {
	s, err := a.repo.GetShop(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("get store %s: %w", storeID, err)
	}
	if s == nil {
		return nil, apperr.NotFound("store not found")
	}
	return s, nil
}

// ShopOf returns the store owned by ownerID or NotFound.
func (a *Accessor) ShopOf(ctx context.Context, ownerID string) (*Shop, error) {
	s, err := a.repo.ShopByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store by owner %s: %w", ownerID, err)
	}
	if s == nil {
		return nil, apperr.NotFound("you do not have a store")
	}
	return s, nil
}
