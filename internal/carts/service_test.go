package carts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
	"github.com/imrishuroy/campus-checkout/internal/aws/awstest"
	"github.com/imrishuroy/campus-checkout/internal/catalog"
	"github.com/imrishuroy/campus-checkout/internal/money"
)

type fixture struct {
	dynamo *awstest.Dynamo
	svc    *Service
	store  *Store
}

func (f *fixture) setProduct(t *testing.T, p catalog.Product) {
	t.Helper()
	item, err := attributevalue.MarshalMap(p)
	require.NoError(t, err)
	f.dynamo.Seed("products", item)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := awstest.NewDynamo()
	d.CreateTable("carts", "user_id")
	d.CreateTable("products", "product_id")
	d.CreateTable("variants", "variant_id")
	d.CreateTable("stores", "store_id")

	f := &fixture{dynamo: d}
	f.setProduct(t, catalog.Product{ProductID: "p-mug", StoreID: "s1", Name: "Mug", Price: money.MustParse("100.00"), Quantity: 5, IsActive: true})
	f.setProduct(t, catalog.Product{ProductID: "p-pen", StoreID: "s2", Name: "Pen", Price: money.MustParse("2.50"), Quantity: 100, IsActive: true})
	f.setProduct(t, catalog.Product{ProductID: "p-tee", StoreID: "s1", Name: "Tee", Price: money.MustParse("80.00"), IsActive: true, HasVariants: true})
	v, err := attributevalue.MarshalMap(catalog.Variant{VariantID: "v-tee-l", ProductID: "p-tee", Name: "L", Price: money.MustParse("90.00"), Quantity: 1, IsActive: true})
	require.NoError(t, err)
	d.Seed("variants", v)

	acc := catalog.NewAccessor(catalog.NewStore(d, catalog.Tables{Products: "products", Variants: "variants", Stores: "stores"}))
	f.store = NewStore(d, "carts")
	f.svc = NewService(f.store, acc)
	f.svc.nowFunc = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }
	seq := 0
	f.svc.newID = func() string { seq++; return fmt.Sprintf("item-%d", seq) }
	return f
}

func TestGetOrCreate_CreatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, err = f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.dynamo.Len("carts"))
}

func TestAddItem_SameLineOverwritesQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", "p-mug", "", 2)
	require.NoError(t, err)
	c, err := f.svc.AddItem(ctx, "u1", "p-mug", "", 3)
	require.NoError(t, err)

	require.Len(t, c.Items, 1, "re-adding must not duplicate the line")
	assert.Equal(t, 3, c.Items[0].Quantity, "quantity is replaced, not summed")
	assert.Equal(t, "300.00", c.Subtotal().String())
}

func TestAddItem_PriceComesFromCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.AddItem(ctx, "u1", "p-tee", "v-tee-l", 1)
	require.NoError(t, err)
	assert.Equal(t, "90.00", c.Items[0].Price.String())
	assert.Equal(t, "L", c.Items[0].VariantName)

	// price change is picked up on the next write to the line
	f.setProduct(t, catalog.Product{ProductID: "p-mug", StoreID: "s1", Name: "Mug", Price: money.MustParse("120.00"), Quantity: 5, IsActive: true})
	c, err = f.svc.AddItem(ctx, "u1", "p-mug", "", 1)
	require.NoError(t, err)
	assert.Equal(t, "120.00", c.Items[1].Price.String())
}

func TestAddItem_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", "p-mug", "", 6)
	assert.True(t, errors.Is(err, apperr.ErrOutOfStock))

	_, err = f.svc.AddItem(ctx, "u1", "nope", "", 1)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.svc.AddItem(ctx, "u1", "p-tee", "", 1)
	assert.True(t, errors.Is(err, apperr.ErrInvalidRequest))

	_, err = f.svc.AddItem(ctx, "u1", "p-mug", "", 0)
	assert.True(t, errors.Is(err, apperr.ErrInvalidRequest))
}

func TestUpdateItem_RevalidatesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.AddItem(ctx, "u1", "p-mug", "", 1)
	require.NoError(t, err)
	itemID := c.Items[0].ItemID

	c, err = f.svc.UpdateItem(ctx, "u1", itemID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, c.ItemCount())

	f.setProduct(t, catalog.Product{ProductID: "p-mug", StoreID: "s1", Name: "Mug", Price: money.MustParse("100.00"), Quantity: 2, IsActive: true})
	_, err = f.svc.UpdateItem(ctx, "u1", itemID, 3)
	assert.True(t, errors.Is(err, apperr.ErrOutOfStock))

	_, err = f.svc.UpdateItem(ctx, "u2", itemID, 1)
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "item of another user's cart")
}

func TestRemoveAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.AddItem(ctx, "u1", "p-mug", "", 1)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, "u1", "p-pen", "", 4)
	require.NoError(t, err)

	c, err = f.svc.RemoveItem(ctx, "u1", c.Items[0].ItemID)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "10.00", c.Total().String())

	_, err = f.svc.RemoveItem(ctx, "u1", "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	c, err = f.svc.Clear(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	c, err = f.svc.Clear(ctx, "u1")
	require.NoError(t, err, "clearing an empty cart is a no-op")
	assert.True(t, c.IsEmpty())
}

func TestSubtotalMatchesLines(t *testing.T) {
	c := &Cart{Items: []Item{
		{Price: money.MustParse("19.99"), Quantity: 3},
		{Price: money.MustParse("0.01"), Quantity: 1},
		{Price: money.MustParse("250.00"), Quantity: 2},
	}}
	want := money.Zero
	for _, it := range c.Items {
		want = want.Add(it.Price.Mul(it.Quantity))
	}
	assert.Equal(t, want.String(), c.Subtotal().String())
	assert.Equal(t, "559.98", c.Subtotal().String())
	assert.Equal(t, 6, c.ItemCount())
	assert.Equal(t, c.Subtotal(), c.Total())
}

func TestSaveCart_StaleVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	stale := *c

	require.NoError(t, f.store.SaveCart(ctx, c))
	assert.Equal(t, int64(1), c.Version)
	assert.ErrorIs(t, f.store.SaveCart(ctx, &stale), ErrCartChanged)
}
