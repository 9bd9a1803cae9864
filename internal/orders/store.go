package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/campus-checkout/internal/aws"
)

// Tables names the three tables of the settlement aggregate.
//
//	orders:       PK order_number, GSI user_id-index
//	order_items:  PK order_number, SK item_id, GSI store_id-index
//	transactions: PK reference, GSI order_number-index
type Tables struct {
	Orders       string
	Items        string
	Transactions string
}

const (
	userIndex  = "user_id-index"
	storeIndex = "store_id-index"
	orderIndex = "order_number-index"
)

// ErrStatusMismatch is returned when a conditional status update finds the
// row in a different state than expected.
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// Store encapsulates operations on the orders, order items and transactions tables.
type Store struct {
	client  aws.DynamoDBAPI
	tables  Tables
	nowFunc func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tables Tables) *Store {
	return &Store{
		client:  client,
		tables:  tables,
		nowFunc: time.Now,
	}
}

// Get fetches an order with its items. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderNumber string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tables.Orders,
		Key:            map[string]types.AttributeValue{"order_number": aws.S(orderNumber)},
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	if o.Items, err = s.items(ctx, orderNumber); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) items(ctx context.Context, orderNumber string) ([]Item, error) {
	var items []Item
	err := s.query(ctx, &dyn.QueryInput{
		TableName:                 &s.tables.Items,
		KeyConditionExpression:    sdkaws.String("order_number = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":o": aws.S(orderNumber)},
		ConsistentRead:            sdkaws.Bool(true),
	}, &items)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	return items, nil
}

// ListByUser returns the user's orders, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	var list []Order
	err := s.query(ctx, &dyn.QueryInput{
		TableName:                 &s.tables.Orders,
		IndexName:                 sdkaws.String(userIndex),
		KeyConditionExpression:    sdkaws.String("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":u": aws.S(userID)},
	}, &list)
	if err != nil {
		return nil, fmt.Errorf("query orders by user: %w", err)
	}
	for i := range list {
		if list[i].Items, err = s.items(ctx, list[i].OrderNumber); err != nil {
			return nil, err
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// ItemsByStore returns every order line sold by a store.
func (s *Store) ItemsByStore(ctx context.Context, storeID string) ([]Item, error) {
	var items []Item
	err := s.query(ctx, &dyn.QueryInput{
		TableName:                 &s.tables.Items,
		IndexName:                 sdkaws.String(storeIndex),
		KeyConditionExpression:    sdkaws.String("store_id = :s"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":s": aws.S(storeID)},
	}, &items)
	if err != nil {
		return nil, fmt.Errorf("query items by store: %w", err)
	}
	return items, nil
}

// GetTransaction fetches a transaction by reference. Returns (nil, nil) if not found.
func (s *Store) GetTransaction(ctx context.Context, reference string) (*Transaction, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tables.Transactions,
		Key:            map[string]types.AttributeValue{"reference": aws.S(reference)},
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var t Transaction
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	return &t, nil
}

// TransactionsForOrder returns an order's payment attempts, oldest first.
func (s *Store) TransactionsForOrder(ctx context.Context, orderNumber string) ([]Transaction, error) {
	var list []Transaction
	err := s.query(ctx, &dyn.QueryInput{
		TableName:                 &s.tables.Transactions,
		IndexName:                 sdkaws.String(orderIndex),
		KeyConditionExpression:    sdkaws.String("order_number = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":o": aws.S(orderNumber)},
	}, &list)
	if err != nil {
		return nil, fmt.Errorf("query transactions by order: %w", err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

// query drains every page of in into out (a pointer to a slice).
func (s *Store) query(ctx context.Context, in *dyn.QueryInput, out interface{}) error {
	var all []map[string]types.AttributeValue
	for {
		page, err := s.client.Query(ctx, in)
		if err != nil {
			return err
		}
		all = append(all, page.Items...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
	return attributevalue.UnmarshalListOfMaps(all, out)
}

// UpdateStatus persists o's status, history and delivered_at, conditional on
// the stored status still being expected.
// Returns nil on success, ErrStatusMismatch if condition failed.
func (s *Store) UpdateStatus(ctx context.Context, o *Order, expected Status) error {
	in, err := s.statusUpdate(o, expected)
	if err != nil {
		return err
	}
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 in.TableName,
		Key:                       in.Key,
		UpdateExpression:          in.UpdateExpression,
		ConditionExpression:       in.ConditionExpression,
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: in.ExpressionAttributeValues,
	})
	if aws.IsConditionFailed(err) {
		return ErrStatusMismatch
	}
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func (s *Store) statusUpdate(o *Order, expected Status) (*types.Update, error) {
	hist, err := attributevalue.Marshal(o.History)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	expr := "SET #s = :new, updated_at = :ua, status_history = :h"
	values := map[string]types.AttributeValue{
		":new":      aws.S(string(o.Status)),
		":ua":       aws.S(timestamp(o.UpdatedAt)),
		":h":        hist,
		":expected": aws.S(string(expected)),
	}
	if o.DeliveredAt != nil {
		expr += ", delivered_at = :da"
		values[":da"] = aws.S(timestamp(*o.DeliveredAt))
	}
	return &types.Update{
		TableName:                 sdkaws.String(s.tables.Orders),
		Key:                       map[string]types.AttributeValue{"order_number": aws.S(o.OrderNumber)},
		UpdateExpression:          sdkaws.String(expr),
		ConditionExpression:       sdkaws.String("#s = :expected"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	}, nil
}

// FailTransaction persists a pending -> failed transition.
// Returns ErrStatusMismatch when the transaction is no longer pending.
func (s *Store) FailTransaction(ctx context.Context, t *Transaction) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tables.Transactions,
		Key:                      map[string]types.AttributeValue{"reference": aws.S(t.Reference)},
		UpdateExpression:         sdkaws.String("SET #s = :failed, gateway_response = :raw, updated_at = :ua"),
		ConditionExpression:      sdkaws.String("#s = :pending"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":  aws.S(string(TxnFailed)),
			":pending": aws.S(string(TxnPending)),
			":raw":     aws.S(t.GatewayResponse),
			":ua":      aws.S(timestamp(t.UpdatedAt)),
		},
	})
	if aws.IsConditionFailed(err) {
		return ErrStatusMismatch
	}
	if err != nil {
		return fmt.Errorf("update item (fail transaction): %w", err)
	}
	return nil
}

// PutOrderOp creates the order row; fails if the order number is taken.
func (s *Store) PutOrderOp(o *Order) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal order item: %w", err)
	}
	return types.TransactWriteItem{Put: &types.Put{
		TableName:           sdkaws.String(s.tables.Orders),
		Item:                item,
		ConditionExpression: sdkaws.String("attribute_not_exists(order_number)"),
	}}, nil
}

// PutItemOp creates one order line.
func (s *Store) PutItemOp(it Item) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(it)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal order line: %w", err)
	}
	return types.TransactWriteItem{Put: &types.Put{
		TableName: sdkaws.String(s.tables.Items),
		Item:      item,
	}}, nil
}

// PutTransactionOp creates a transaction; fails if the reference is taken.
func (s *Store) PutTransactionOp(t *Transaction) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal transaction: %w", err)
	}
	return types.TransactWriteItem{Put: &types.Put{
		TableName:           sdkaws.String(s.tables.Transactions),
		Item:                item,
		ConditionExpression: sdkaws.String("attribute_not_exists(reference)"),
	}}, nil
}

// CompleteTransactionOp moves a pending transaction to completed. The
// condition is the settlement compare-and-set: only one caller can win it.
func (s *Store) CompleteTransactionOp(t *Transaction) types.TransactWriteItem {
	paidAt := t.UpdatedAt
	if t.PaidAt != nil {
		paidAt = *t.PaidAt
	}
	return types.TransactWriteItem{Update: &types.Update{
		TableName:                sdkaws.String(s.tables.Transactions),
		Key:                      map[string]types.AttributeValue{"reference": aws.S(t.Reference)},
		UpdateExpression:         sdkaws.String("SET #s = :completed, gateway_response = :raw, paid_at = :pa, updated_at = :ua"),
		ConditionExpression:      sdkaws.String("#s = :pending"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":completed": aws.S(string(TxnCompleted)),
			":pending":   aws.S(string(TxnPending)),
			":raw":       aws.S(t.GatewayResponse),
			":pa":        aws.S(timestamp(paidAt)),
			":ua":        aws.S(timestamp(t.UpdatedAt)),
		},
	}}
}

// MarkPaidOp persists Order.MarkPaid, conditional on the order still being
// in status expected and not yet paid.
func (s *Store) MarkPaidOp(o *Order, expected Status) (types.TransactWriteItem, error) {
	up, err := s.statusUpdate(o, expected)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	*up.UpdateExpression += ", payment_status = :paid, payment_reference = :ref, paid_at = :pa"
	*up.ConditionExpression += " AND payment_status <> :paid"
	up.ExpressionAttributeValues[":paid"] = aws.S(PaymentPaid)
	up.ExpressionAttributeValues[":ref"] = aws.S(o.PaymentReference)
	up.ExpressionAttributeValues[":pa"] = aws.S(timestamp(*o.PaidAt))
	return types.TransactWriteItem{Update: up}, nil
}

// BumpAttemptsOp counts a new payment attempt on an order that is still
// pending and unpaid.
func (s *Store) BumpAttemptsOp(orderNumber string, at time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{Update: &types.Update{
		TableName:                sdkaws.String(s.tables.Orders),
		Key:                      map[string]types.AttributeValue{"order_number": aws.S(orderNumber)},
		UpdateExpression:         sdkaws.String("SET payment_attempts = if_not_exists(payment_attempts, :zero) + :inc, updated_at = :ua"),
		ConditionExpression:      sdkaws.String("#s = :pending AND payment_status <> :paid"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero":    aws.N(0),
			":inc":     aws.N(1),
			":ua":      aws.S(timestamp(at)),
			":pending": aws.S(string(StatusPending)),
			":paid":    aws.S(PaymentPaid),
		},
	}}
}

// Transact runs a TransactWriteItems call over ops.
func (s *Store) Transact(ctx context.Context, ops []types.TransactWriteItem) error {
	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: ops})
	return err
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
