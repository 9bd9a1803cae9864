package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/campus-checkout/internal/aws"
)

const (
	// DefaultTTL is how long a completed checkout can be replayed.
	DefaultTTL = 24 * time.Hour
	// DefaultLease is how long an IN_PROGRESS claim blocks the key. A
	// request that dies before MarkDone/MarkFailed frees it after this.
	DefaultLease = 2 * time.Minute
)

// ErrLost is returned when another request took over the entry between the
// read and the conditional write.
var ErrLost = errors.New("idempotency entry claimed by another request")

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client      aws.DynamoDBAPI
	tableName   string
	ttlWindow   time.Duration
	leaseWindow time.Duration
	nowFunc     func() time.Time
}

// NewStore returns a configured Store. Zero windows use DefaultTTL and
// DefaultLease.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow, leaseWindow time.Duration) *Store {
	if ttlWindow <= 0 {
		ttlWindow = DefaultTTL
	}
	if leaseWindow <= 0 {
		leaseWindow = DefaultLease
	}
	return &Store{
		client:      client,
		tableName:   tableName,
		ttlWindow:   ttlWindow,
		leaseWindow: leaseWindow,
		nowFunc:     time.Now,
	}
}

// Claim takes the key for a new request. It returns (nil, true, nil) when the
// caller owns the key and should run the request, or (rec, false, nil) with
// the existing entry when it is in progress or done. The claim only holds
// the key for the lease window; MarkDone extends it to the full TTL.
func (s *Store) Claim(ctx context.Context, userID, key string) (*Record, bool, error) {
	now := s.nowFunc().UTC()
	rec := Record{
		Key:       ScopedKey(userID, key),
		UserID:    userID,
		Status:    StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.leaseWindow).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, false, fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: sdkaws.String("attribute_not_exists(idempotency_key)"),
	})
	if err == nil {
		return nil, true, nil
	}
	if !aws.IsConditionFailed(err) {
		return nil, false, fmt.Errorf("put item: %w", err)
	}

	existing, err := s.Get(ctx, userID, key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil || !existing.Reclaimable(now) {
		return existing, false, nil
	}
	if err := s.reclaim(ctx, existing, rec); err != nil {
		if errors.Is(err, ErrLost) {
			return existing, false, nil
		}
		return nil, false, err
	}
	return nil, true, nil
}

// reclaim overwrites a failed or expired entry, guarded on the state that
// was read.
func (s *Store) reclaim(ctx context.Context, old *Record, rec Record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      sdkaws.String("#s = :s AND expires_at = :e"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": aws.S(old.Status),
			":e": aws.N64(old.ExpiresAt),
		},
	})
	if aws.IsConditionFailed(err) {
		return ErrLost
	}
	if err != nil {
		return fmt.Errorf("put item (reclaim): %w", err)
	}
	return nil
}

// Get retrieves an entry. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, userID, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            map[string]types.AttributeValue{"idempotency_key": aws.S(ScopedKey(userID, key))},
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone stores the response of the request that owned the key so replays
// can return it unchanged.
func (s *Store) MarkDone(ctx context.Context, userID, key, orderNumber, responseBody string, responseStatus int) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      map[string]types.AttributeValue{"idempotency_key": aws.S(ScopedKey(userID, key))},
		UpdateExpression:         sdkaws.String("SET #s = :done, order_number = :o, response_body = :rb, response_status = :rs, updated_at = :ua, expires_at = :exp"),
		ConditionExpression:      sdkaws.String("#s = :inprogress"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done":       aws.S(StatusDone),
			":inprogress": aws.S(StatusInProgress),
			":o":          aws.S(orderNumber),
			":rb":         aws.S(responseBody),
			":rs":         &types.AttributeValueMemberN{Value: strconv.Itoa(responseStatus)},
			":ua":         aws.S(now.Format(time.RFC3339Nano)),
			":exp":        aws.N64(now.Add(s.ttlWindow).Unix()),
		},
	})
	if aws.IsConditionFailed(err) {
		return ErrLost
	}
	if err != nil {
		return fmt.Errorf("update item (mark done): %w", err)
	}
	return nil
}

// MarkFailed releases the key so the client can retry with it.
func (s *Store) MarkFailed(ctx context.Context, userID, key, note string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      map[string]types.AttributeValue{"idempotency_key": aws.S(ScopedKey(userID, key))},
		UpdateExpression:         sdkaws.String("SET #s = :failed, note = :n, updated_at = :ua"),
		ConditionExpression:      sdkaws.String("#s = :inprogress"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":     aws.S(StatusFailed),
			":inprogress": aws.S(StatusInProgress),
			":n":          aws.S(note),
			":ua":         aws.S(now.Format(time.RFC3339Nano)),
		},
	})
	if aws.IsConditionFailed(err) {
		return ErrLost
	}
	if err != nil {
		return fmt.Errorf("update item (mark failed): %w", err)
	}
	return nil
}
