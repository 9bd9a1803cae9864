package carts

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/campus-checkout/internal/aws"
)

// Store keeps one item per user in the carts table, lines embedded.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

func (s *Store) GetCart(ctx context.Context, userID string) (*Cart, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            map[string]types.AttributeValue{"user_id": aws.S(userID)},
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Cart
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	if c.Items == nil {
		c.Items = []Item{}
	}
	return &c, nil
}

func (s *Store) CreateCart(ctx context.Context, c *Cart) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: sdkaws.String("attribute_not_exists(user_id)"),
	})
	if aws.IsConditionFailed(err) {
		return ErrCartExists
	}
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// SaveCart replaces the cart if the stored version still equals c.Version,
// then bumps c.Version.
func (s *Store) SaveCart(ctx context.Context, c *Cart) error {
	next := *c
	next.Version = c.Version + 1
	item, err := attributevalue.MarshalMap(next)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                 &s.tableName,
		Item:                      item,
		ConditionExpression:       sdkaws.String("#ver = :v"),
		ExpressionAttributeNames:  map[string]string{"#ver": "version"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": aws.N64(c.Version)},
	})
	if aws.IsConditionFailed(err) {
		return ErrCartChanged
	}
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	c.Version = next.Version
	return nil
}

// ClearOp returns a transactional update that empties the cart when it is
// still at version. Checkout commits it together with the new order.
func (s *Store) ClearOp(userID string, version int64, at time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:           sdkaws.String(s.tableName),
			Key:                 map[string]types.AttributeValue{"user_id": aws.S(userID)},
			UpdateExpression:    sdkaws.String("SET #items = :empty, #ver = :next, updated_at = :ua"),
			ConditionExpression: sdkaws.String("#ver = :v"),
			ExpressionAttributeNames: map[string]string{
				"#items": "items",
				"#ver":   "version",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
				":next":  aws.N64(version + 1),
				":v":     aws.N64(version),
				":ua":    aws.S(at.UTC().Format(time.RFC3339Nano)),
			},
		},
	}
}
