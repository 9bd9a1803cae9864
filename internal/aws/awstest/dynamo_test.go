package awstest

import (
	"context"
	"errors"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

func TestConditionalDecrement(t *testing.T) {
	d := NewDynamo()
	d.CreateTable("products", "product_id")
	d.Seed("products", map[string]types.AttributeValue{"product_id": s("p1"), "quantity": n("5")})

	update := func(q string) error {
		_, err := d.UpdateItem(context.Background(), &dyn.UpdateItemInput{
			TableName:                 sdkaws.String("products"),
			Key:                       map[string]types.AttributeValue{"product_id": s("p1")},
			UpdateExpression:          sdkaws.String("SET quantity = quantity - :q"),
			ConditionExpression:       sdkaws.String("quantity >= :q"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":q": n(q)},
		})
		return err
	}

	require.NoError(t, update("2"))
	assert.Equal(t, "3", d.Get("products", "p1")["quantity"].(*types.AttributeValueMemberN).Value)

	err := update("4")
	var ccf *types.ConditionalCheckFailedException
	assert.True(t, errors.As(err, &ccf))
}

func TestTransactIsAllOrNothing(t *testing.T) {
	d := NewDynamo()
	d.CreateTable("orders", "order_number")
	d.CreateTable("transactions", "reference")
	d.Seed("transactions", map[string]types.AttributeValue{"reference": s("TXN-1")})

	_, err := d.TransactWriteItems(context.Background(), &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           sdkaws.String("orders"),
				Item:                map[string]types.AttributeValue{"order_number": s("ORD-1")},
				ConditionExpression: sdkaws.String("attribute_not_exists(order_number)"),
			}},
			{Put: &types.Put{
				TableName:           sdkaws.String("transactions"),
				Item:                map[string]types.AttributeValue{"reference": s("TXN-1")},
				ConditionExpression: sdkaws.String("attribute_not_exists(reference)"),
			}},
		},
	})
	var tce *types.TransactionCanceledException
	require.True(t, errors.As(err, &tce))
	assert.Equal(t, "None", sdkaws.ToString(tce.CancellationReasons[0].Code))
	assert.Equal(t, "ConditionalCheckFailed", sdkaws.ToString(tce.CancellationReasons[1].Code))
	assert.Equal(t, 0, d.Len("orders"))
}

func TestListAppendAndIfNotExists(t *testing.T) {
	d := NewDynamo()
	d.CreateTable("orders", "order_number")
	in := &dyn.UpdateItemInput{
		TableName:        sdkaws.String("orders"),
		Key:              map[string]types.AttributeValue{"order_number": s("ORD-1")},
		UpdateExpression: sdkaws.String("SET #h = list_append(if_not_exists(#h, :empty), :e), attempts = if_not_exists(attempts, :zero) + :one"),
		ExpressionAttributeNames: map[string]string{
			"#h": "history",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberL{},
			":e":     &types.AttributeValueMemberL{Value: []types.AttributeValue{s("pending")}},
			":zero":  n("0"),
			":one":   n("1"),
		},
	}
	_, err := d.UpdateItem(context.Background(), in)
	require.NoError(t, err)
	_, err = d.UpdateItem(context.Background(), in)
	require.NoError(t, err)

	got := d.Get("orders", "ORD-1")
	assert.Len(t, got["history"].(*types.AttributeValueMemberL).Value, 2)
	assert.Equal(t, "2", got["attempts"].(*types.AttributeValueMemberN).Value)
}
