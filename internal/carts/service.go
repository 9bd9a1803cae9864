// Package carts implements the mutable pre-order basket.
package carts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
	"github.com/imrishuroy/campus-checkout/internal/catalog"
)

var (
	// ErrCartExists is returned by Create when the user already has a cart.
	ErrCartExists = errors.New("cart already exists")
	// ErrCartChanged is returned by Save when the stored version moved on.
	ErrCartChanged = errors.New("cart version mismatch")
)

// Repository persists carts. Get returns (nil, nil) when the user has none.
type Repository interface {
	GetCart(ctx context.Context, userID string) (*Cart, error)
	CreateCart(ctx context.Context, c *Cart) error
	SaveCart(ctx context.Context, c *Cart) error
}

const saveAttempts = 3

type Service struct {
	repo    Repository
	catalog *catalog.Accessor
	nowFunc func() time.Time
	newID   func() string
}

func NewService(repo Repository, cat *catalog.Accessor) *Service {
	return &Service{
		repo:    repo,
		catalog: cat,
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
}

// GetOrCreate returns the user's cart, creating an empty one on first access.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if c != nil {
		return c, nil
	}

	now := s.nowFunc().UTC()
	c = &Cart{UserID: userID, Items: []Item{}, CreatedAt: now, UpdatedAt: now}
	err = s.repo.CreateCart(ctx, c)
	if errors.Is(err, ErrCartExists) {
		// lost a creation race with a parallel request
		return s.repo.GetCart(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return c, nil
}

// AddItem adds a product (or variant) line. An existing line for the same
// product and variant has its quantity replaced, not incremented.
func (s *Service) AddItem(ctx context.Context, userID, productID, variantID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, apperr.InvalidRequest("quantity must be at least 1")
	}
	sel, err := s.catalog.Resolve(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}
	if err := sel.CheckQuantity(quantity); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, func(c *Cart, now time.Time) error {
		if i := c.find(productID, variantID); i >= 0 {
			c.Items[i].Quantity = quantity
			c.Items[i].Price = sel.Price
			c.Items[i].ProductName = sel.Product.Name
			c.Items[i].VariantName = sel.VariantName()
			c.Items[i].UpdatedAt = now
			return nil
		}
		if len(c.Items) >= MaxLines {
			return apperr.InvalidRequest("a cart can hold at most %d different items", MaxLines)
		}
		c.Items = append(c.Items, Item{
			ItemID:      s.newID(),
			ProductID:   productID,
			VariantID:   variantID,
			StoreID:     sel.Product.StoreID,
			ProductName: sel.Product.Name,
			VariantName: sel.VariantName(),
			Quantity:    quantity,
			Price:       sel.Price,
			UpdatedAt:   now,
		})
		return nil
	})
}

// UpdateItem sets the quantity of a line, re-validating stock and refreshing
// the price snapshot.
func (s *Service) UpdateItem(ctx context.Context, userID, itemID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, apperr.InvalidRequest("quantity must be at least 1")
	}
	return s.mutate(ctx, userID, func(c *Cart, now time.Time) error {
		i := c.indexOf(itemID)
		if i < 0 {
			return apperr.NotFound("cart item not found")
		}
		sel, err := s.catalog.Resolve(ctx, c.Items[i].ProductID, c.Items[i].VariantID)
		if err != nil {
			return err
		}
		if err := sel.CheckQuantity(quantity); err != nil {
			return err
		}
		c.Items[i].Quantity = quantity
		c.Items[i].Price = sel.Price
		c.Items[i].UpdatedAt = now
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (*Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart, _ time.Time) error {
		i := c.indexOf(itemID)
		if i < 0 {
			return apperr.NotFound("cart item not found")
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	})
}

// Clear empties the cart. Clearing an empty cart is a no-op.
func (s *Service) Clear(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return c, nil
	}
	return s.mutate(ctx, userID, func(c *Cart, _ time.Time) error {
		c.Items = []Item{}
		return nil
	})
}

// mutate loads the cart, applies fn and saves it, retrying when another
// request wrote the cart in between.
func (s *Service) mutate(ctx context.Context, userID string, fn func(c *Cart, now time.Time) error) (*Cart, error) {
	for attempt := 0; attempt < saveAttempts; attempt++ {
		c, err := s.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}
		now := s.nowFunc().UTC()
		if err := fn(c, now); err != nil {
			return nil, err
		}
		c.UpdatedAt = now
		err = s.repo.SaveCart(ctx, c)
		if errors.Is(err, ErrCartChanged) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save cart: %w", err)
		}
		return c, nil
	}
	return nil, apperr.Conflict("cart was modified concurrently, please retry")
}
