package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
	"github.com/imrishuroy/campus-checkout/internal/aws/awstest"
)

func TestOwnedAddress(t *testing.T) {
	d := awstest.NewDynamo()
	d.CreateTable("users", "user_id")
	d.CreateTable("addresses", "address_id")
	for _, a := range []Address{
		{AddressID: "a1", UserID: "u1", StreetAddress: "Hall 3", City: "Kumasi", Country: "Ghana"},
		{AddressID: "a2", UserID: "u2", StreetAddress: "Hall 7", City: "Accra", Country: "Ghana"},
	} {
		item, err := attributevalue.MarshalMap(a)
		require.NoError(t, err)
		d.Seed("addresses", item)
	}
	userItem, err := attributevalue.MarshalMap(User{UserID: "u1", Email: "ama@knust.edu.gh", FirstName: "Ama", LastName: "Mensah"})
	require.NoError(t, err)
	d.Seed("users", userItem)

	svc := NewService(NewStore(d, "users", "addresses"))
	ctx := context.Background()

	a, err := svc.OwnedAddress(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Kumasi", a.City)

	a, err = svc.OwnedAddress(ctx, "u1", "")
	require.NoError(t, err)
	assert.Nil(t, a)

	_, err = svc.OwnedAddress(ctx, "u1", "a2")
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "another user's address")

	_, err = svc.OwnedAddress(ctx, "u1", "nope")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	u, err := svc.User(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ama Mensah", u.FullName())

	_, err = svc.User(ctx, "ghost")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
