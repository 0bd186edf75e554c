package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/aws"
)

// UserIndex is the GSI on user_id used by ListByUser.
const UserIndex = "user_id-index"

var (
	// ErrNotFound is returned by status updates when the order does not exist.
	ErrNotFound = apperr.New(apperr.ErrNotFound, "order not found")
	// ErrStatusMismatch means the stored status was not the expected one.
	ErrStatusMismatch = apperr.New(apperr.ErrConflict, "order status changed concurrently")
)

// Store is the order persistence contract every backend satisfies.
type Store interface {
	Create(ctx context.Context, o Order) error
	// Get returns (nil, nil) if the order does not exist.
	Get(ctx context.Context, orderID string) (*Order, error)
	List(ctx context.Context) ([]Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// SetStatus overwrites the status and returns the updated order.
	SetStatus(ctx context.Context, orderID string, status Status) (*Order, error)
	// CompareAndSetStatus writes next only while the stored status is expected.
	CompareAndSetStatus(ctx context.Context, orderID string, expected, next Status) (*Order, error)
}

// DynamoStore encapsulates operations on the orders table.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoStore creates a new orders Store.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create persists a new order. order.OrderID must be set by caller.
func (s *DynamoStore) Create(ctx context.Context, order Order) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.nowFunc().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return apperr.New(apperr.ErrConflict, "order %s already exists", order.OrderID)
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *DynamoStore) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
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
	return &o, nil
}

func (s *DynamoStore) List(ctx context.Context) ([]Order, error) {
	input := &dyn.ScanInput{TableName: &s.tableName}
	out := []Order{}
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func (s *DynamoStore) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	input := &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(UserIndex),
		KeyConditionExpression: awsString("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	}
	out := []Order{}
	for {
		page, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query orders by user: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

// SetStatus unconditionally overwrites the status of an existing order.
func (s *DynamoStore) SetStatus(ctx context.Context, orderID string, status Status) (*Order, error) {
	return s.updateStatus(ctx, orderID, "", status)
}

// CompareAndSetStatus performs a conditional update: it only succeeds
// if the current status equals expected. Returns ErrStatusMismatch if
// the condition fails and ErrNotFound if the order is gone.
func (s *DynamoStore) CompareAndSetStatus(ctx context.Context, orderID string, expected, next Status) (*Order, error) {
	o, err := s.updateStatus(ctx, orderID, expected, next)
	if !errors.Is(err, errConditionFailed) {
		return o, err
	}
	current, getErr := s.Get(ctx, orderID)
	if getErr != nil {
		return nil, getErr
	}
	if current == nil {
		return nil, ErrNotFound
	}
	return nil, ErrStatusMismatch
}

var errConditionFailed = errors.New("condition failed")

func (s *DynamoStore) updateStatus(ctx context.Context, orderID string, expected, next Status) (*Order, error) {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      orderKey(orderID),
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ConditionExpression:      awsString("attribute_exists(order_id)"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new": &types.AttributeValueMemberS{Value: string(next)},
			":ua":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueAllNew,
	}
	if expected != "" {
		input.ConditionExpression = awsString("attribute_exists(order_id) AND #s = :expected")
		input.ExpressionAttributeValues[":expected"] = &types.AttributeValueMemberS{Value: string(expected)}
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		// detect conditional check failing
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			if expected != "" {
				return nil, errConditionFailed
			}
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
