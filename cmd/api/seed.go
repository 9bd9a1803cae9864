package main

import (
	"github.com/imrishuroy/campus-checkout/internal/catalog"
	"github.com/imrishuroy/campus-checkout/internal/identity"
	"github.com/imrishuroy/campus-checkout/internal/memstore"
	"github.com/imrishuroy/campus-checkout/internal/money"
)

// seedDemo fills the in-memory store with one shop, a buyer and a seller so
// STORAGE=memory is usable straight away. Tokens are issued for the user ids
// below.
func seedDemo(m *memstore.Store) {
	m.PutUser(identity.User{UserID: "demo-buyer", Email: "buyer@campus.test", FirstName: "Ama", LastName: "Mensah"})
	m.PutUser(identity.User{UserID: "demo-seller", Email: "seller@campus.test", FirstName: "Yaw", LastName: "Boateng"})
	m.PutAddress(identity.Address{AddressID: "demo-address", UserID: "demo-buyer", StreetAddress: "Commonwealth Hall, Room 12", City: "Accra"})

	m.PutShop(catalog.Shop{StoreID: "demo-store", OwnerID: "demo-seller", Name: "Hall Essentials", IsActive: true})
	m.PutProduct(catalog.Product{ProductID: "demo-notebook", StoreID: "demo-store", Name: "A4 notebook", Price: money.MustParse("12.50"), Quantity: 40, IsActive: true})
	m.PutProduct(catalog.Product{ProductID: "demo-hoodie", StoreID: "demo-store", Name: "Campus hoodie", Price: money.MustParse("150.00"), HasVariants: true, IsActive: true})
	m.PutVariant(catalog.Variant{VariantID: "demo-hoodie-m", ProductID: "demo-hoodie", Name: "M", Price: money.MustParse("150.00"), Quantity: 6, IsActive: true})
	m.PutVariant(catalog.Variant{VariantID: "demo-hoodie-xl", ProductID: "demo-hoodie", Name: "XL", Price: money.MustParse("165.00"), Quantity: 2, IsActive: true})
}
