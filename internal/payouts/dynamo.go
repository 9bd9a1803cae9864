package payouts

import (
	"context"
	"errors"
	"fmt"
	"sort"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/campus-checkout/internal/aws"
)

const (
	storeIndex   = "store_id-index"
	ledgerPrefix = "LEDGER#"
)

var (
	ErrReferenceTaken = errors.New("payout reference already taken")
	ErrStatusMismatch = errors.New("payout status mismatch/conditional failed")
	ErrLedgerMoved    = errors.New("payout ledger version changed")
)

// ledgerKey addresses the per-store ledger row. It carries no store_id, so
// it never shows up in the store index.
func ledgerKey(storeID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"reference": aws.S(ledgerPrefix + storeID)}
}

// Store keeps payouts in a table keyed by reference with a store_id GSI.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// LedgerVersion returns the store's payout ledger version, 0 before the
// first payout.
func (s *Store) LedgerVersion(ctx context.Context, storeID string) (int64, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            ledgerKey(storeID),
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("get ledger: %w", err)
	}
	var row struct {
		Version int64 `dynamodbav:"version"`
	}
	if len(out.Item) == 0 {
		return 0, nil
	}
	if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
		return 0, fmt.Errorf("unmarshal ledger: %w", err)
	}
	return row.Version, nil
}

// Create writes the payout and bumps the store's ledger version in one
// transaction. It fails with ErrLedgerMoved when another payout was created
// since version was read, and with ErrReferenceTaken on a reference clash.
func (s *Store) Create(ctx context.Context, p *Payout, version int64) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal payout: %w", err)
	}

	values := map[string]types.AttributeValue{
		":next": aws.N64(version + 1),
		":sid":  aws.S(p.StoreID),
		":ua":   aws.S(p.UpdatedAt.UTC().Format(timeLayout)),
	}
	cond := "attribute_not_exists(#v)"
	if version > 0 {
		cond = "#v = :v"
		values[":v"] = aws.N64(version)
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                item,
					ConditionExpression: sdkaws.String("attribute_not_exists(reference)"),
				},
			},
			{
				Update: &types.Update{
					TableName:                 &s.tableName,
					Key:                       ledgerKey(p.StoreID),
					UpdateExpression:          sdkaws.String("SET #v = :next, ledger_store = :sid, updated_at = :ua"),
					ConditionExpression:       sdkaws.String(cond),
					ExpressionAttributeNames:  map[string]string{"#v": "version"},
					ExpressionAttributeValues: values,
				},
			},
		},
	})
	if codes, ok := aws.CancellationCodes(err); ok {
		for _, i := range aws.FailedIndexes(codes) {
			if i == 0 {
				return ErrReferenceTaken
			}
		}
		return ErrLedgerMoved
	}
	if err != nil {
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get returns (nil, nil) when the payout does not exist.
func (s *Store) Get(ctx context.Context, reference string) (*Payout, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            map[string]types.AttributeValue{"reference": aws.S(reference)},
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Payout
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payout: %w", err)
	}
	return &p, nil
}

// ListByStore returns the store's payouts, newest first.
func (s *Store) ListByStore(ctx context.Context, storeID string) ([]Payout, error) {
	in := &dyn.QueryInput{
		TableName:                 &s.tableName,
		IndexName:                 sdkaws.String(storeIndex),
		KeyConditionExpression:    sdkaws.String("store_id = :s"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":s": aws.S(storeID)},
	}
	var all []map[string]types.AttributeValue
	for {
		page, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query payouts: %w", err)
		}
		all = append(all, page.Items...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
	var list []Payout
	if err := attributevalue.UnmarshalListOfMaps(all, &list); err != nil {
		return nil, fmt.Errorf("unmarshal payouts: %w", err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// UpdateStatus writes p's status fields if the stored status is still expected.
func (s *Store) UpdateStatus(ctx context.Context, p *Payout, expected Status) error {
	expr := "SET #s = :new, notes = :n, transfer_code = :tc, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":new":      aws.S(string(p.Status)),
		":n":        aws.S(p.Notes),
		":tc":       aws.S(p.TransferCode),
		":ua":       aws.S(p.UpdatedAt.UTC().Format(timeLayout)),
		":expected": aws.S(string(expected)),
	}
	if p.ProcessedAt != nil {
		expr += ", processed_at = :pa"
		values[":pa"] = aws.S(p.ProcessedAt.UTC().Format(timeLayout))
	}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       map[string]types.AttributeValue{"reference": aws.S(p.Reference)},
		UpdateExpression:          sdkaws.String(expr),
		ConditionExpression:       sdkaws.String("#s = :expected"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	})
	if aws.IsConditionFailed(err) {
		return ErrStatusMismatch
	}
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}
