package catalog

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/campus-checkout/internal/aws"
)

// Tables names the catalog tables.
type Tables struct {
	Products string
	Variants string
	Stores   string
}

const ownerIndex = "owner_id-index"

// Store reads catalog rows from DynamoDB and builds the stock decrement
// operations used inside settlement transactions.
type Store struct {
	client aws.DynamoDBAPI
	tables Tables
}

func NewStore(client aws.DynamoDBAPI, tables Tables) *Store {
	return &Store{client: client, tables: tables}
}

func (s *Store) get(ctx context.Context, table, keyAttr, id string, out interface{}) (bool, error) {
	res, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &table,
		Key:            map[string]types.AttributeValue{keyAttr: aws.S(id)},
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("get item: %w", err)
	}
	if len(res.Item) == 0 {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", table, err)
	}
	return true, nil
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var p Product
	ok, err := s.get(ctx, s.tables.Products, "product_id", productID, &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetVariant(ctx context.Context, variantID string) (*Variant, error) {
	var v Variant
	ok, err := s.get(ctx, s.tables.Variants, "variant_id", variantID, &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

func (s *Store) GetShop(ctx context.Context, storeID string) (*Shop, error) {
	var sh Shop
	ok, err := s.get(ctx, s.tables.Stores, "store_id", storeID, &sh)
	if err != nil || !ok {
		return nil, err
	}
	return &sh, nil
}

func (s *Store) ShopByOwner(ctx context.Context, ownerID string) (*Shop, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:                 &s.tables.Stores,
		IndexName:                 sdkaws.String(ownerIndex),
		KeyConditionExpression:    sdkaws.String("owner_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":o": aws.S(ownerID)},
		Limit:                     sdkaws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query stores by owner: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var sh Shop
	if err := attributevalue.UnmarshalMap(out.Items[0], &sh); err != nil {
		return nil, fmt.Errorf("unmarshal store: %w", err)
	}
	return &sh, nil
}

// DecrementOp returns a transactional update that removes d.Quantity units,
// guarded so stock never goes below zero.
func (s *Store) DecrementOp(d StockDecrement) types.TransactWriteItem {
	table, keyAttr, id := s.tables.Products, "product_id", d.Key.ProductID
	if d.Key.VariantID != "" {
		table, keyAttr, id = s.tables.Variants, "variant_id", d.Key.VariantID
	}
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 sdkaws.String(table),
			Key:                       map[string]types.AttributeValue{keyAttr: aws.S(id)},
			UpdateExpression:          sdkaws.String("SET #qty = #qty - :q"),
			ConditionExpression:       sdkaws.String("#qty >= :q"),
			ExpressionAttributeNames:  map[string]string{"#qty": "quantity"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":q": aws.N(d.Quantity)},
		},
	}
}
