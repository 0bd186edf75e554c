// Package idempotency records which requests and messages have already been
// handled so that retries replay instead of repeating side effects.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-storefront/internal/aws"
)

// Store keeps idempotency claims in DynamoDB. Records expire through the
// table TTL on expires_at.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // TTL applied when creating entries
	nowFunc   func() time.Time
}

// NewStore returns a Store whose records live for ttlWindow.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// CreateIfNotExists claims key with status IN_PROGRESS.
// Returns (true, nil) if this call created the record and (false, nil) if it
// already existed; the caller should Get it to decide what to do.
func (s *Store) CreateIfNotExists(ctx context.Context, key, orderID string) (bool, error) {
	return s.create(ctx, key, orderID, "")
}

// ClaimRequest is CreateIfNotExists for client keys. requestHash is stored so
// a later request reusing the key can be checked with Record.Matches.
func (s *Store) ClaimRequest(ctx context.Context, key, requestHash string) (bool, error) {
	return s.create(ctx, key, "", requestHash)
}

func (s *Store) create(ctx context.Context, key, orderID, requestHash string) (bool, error) {
	now := s.nowFunc().UTC()
	rec := Record{
		Key:         key,
		Status:      StatusInProgress,
		OrderID:     orderID,
		RequestHash: requestHash,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
	})
	if err != nil {
		if isConditionFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Get retrieves a record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            recordKey(key),
		ConsistentRead: awsBool(true),
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

// Reclaim moves a FAILED record back to IN_PROGRESS so the work can be retried.
// It returns false when the record is not FAILED (another attempt owns it or
// it is already done).
func (s *Store) Reclaim(ctx context.Context, key string) (bool, error) {
	return s.reclaim(ctx, key, "")
}

// ReclaimRequest reclaims a FAILED client key for a new request, replacing the
// stored fingerprint with requestHash.
func (s *Store) ReclaimRequest(ctx context.Context, key, requestHash string) (bool, error) {
	return s.reclaim(ctx, key, requestHash)
}

func (s *Store) reclaim(ctx context.Context, key, requestHash string) (bool, error) {
	now := s.nowFunc().UTC()
	update := "SET #s = :inprogress, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
		":failed":     &types.AttributeValueMemberS{Value: StatusFailed},
		":ua":         &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
	}
	if requestHash != "" {
		update += ", request_hash = :rh"
		values[":rh"] = &types.AttributeValueMemberS{Value: requestHash}
	}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       recordKey(key),
		UpdateExpression:          awsString(update),
		ConditionExpression:       awsString("#s = :failed"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("update item (reclaim): %w", err)
	}
	return true, nil
}

// MarkDone sets status to DONE and stores a small response body & status so
// duplicates can be answered with the original response.
func (s *Store) MarkDone(ctx context.Context, key, orderID, responseBody string, responseStatus int) error {
	now := s.nowFunc().UTC()
	update := "SET #s = :done, response_body = :rb, response_status = :rs, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":done": &types.AttributeValueMemberS{Value: StatusDone},
		":rb":   &types.AttributeValueMemberS{Value: responseBody},
		":rs":   &types.AttributeValueMemberN{Value: strconv.Itoa(responseStatus)},
		":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
	}
	if orderID != "" {
		update += ", order_id = :oid"
		values[":oid"] = &types.AttributeValueMemberS{Value: orderID}
	}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       recordKey(key),
		UpdateExpression:          awsString(update),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return fmt.Errorf("update item (mark done): %w", err)
	}
	return nil
}

// MarkFailed marks the record FAILED and stores a note.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      recordKey(key),
		UpdateExpression:         awsString("SET #s = :failed, note = :n, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":n":      &types.AttributeValueMemberS{Value: note},
			":ua":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return fmt.Errorf("update item (mark failed): %w", err)
	}
	return nil
}

// isConditionFailure matches on the API error code so wrapped and
// deserialized variants are both recognised.
func isConditionFailure(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func recordKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
