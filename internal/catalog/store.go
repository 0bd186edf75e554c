package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/aws"
)

// ErrNotFound is returned by writes that target a missing product.
var ErrNotFound = apperr.New(apperr.ErrNotFound, "product not found")

// Store is the product persistence contract every backend satisfies.
type Store interface {
	// Get returns (nil, nil) when the product does not exist.
	Get(ctx context.Context, id string) (*Product, error)
	// List returns every product, or only those in category when it is non-empty.
	List(ctx context.Context, category string) ([]Product, error)
	Create(ctx context.Context, p Product) error
	Update(ctx context.Context, p Product) error
	// Delete removes the product and returns the record as it was.
	Delete(ctx context.Context, id string) (*Product, error)
	SetStock(ctx context.Context, id string, stock int) error
}

// DynamoStore keeps products in a table keyed by product_id.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoStore creates a new products store.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *DynamoStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoStore) Get(ctx context.Context, id string) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(id),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

func (s *DynamoStore) List(ctx context.Context, category string) ([]Product, error) {
	input := &dyn.ScanInput{TableName: &s.tableName}
	if category != "" {
		input.FilterExpression = awsString("category = :c")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: category},
		}
	}

	products := []Product{}
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan products: %w", err)
		}
		var page []Product
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal products: %w", err)
		}
		products = append(products, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return products, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *DynamoStore) Create(ctx context.Context, p Product) error {
	now := s.nowFunc().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(product_id)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return apperr.New(apperr.ErrConflict, "product %s already exists", p.ID)
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Update overwrites the whole record; the product must already exist.
func (s *DynamoStore) Update(ctx context.Context, p Product) error {
	p.UpdatedAt = s.nowFunc().UTC()
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_exists(product_id)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return ErrNotFound
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, id string) (*Product, error) {
	out, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(id),
		ConditionExpression: awsString("attribute_exists(product_id)"),
		ReturnValues:        types.ReturnValueAllOld,
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete item: %w", err)
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Attributes, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// SetStock writes an absolute stock value. It does not compare against the
// stored value, so concurrent writers can overwrite each other.
func (s *DynamoStore) SetStock(ctx context.Context, id string, stock int) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(id),
		UpdateExpression:    awsString("SET stock = :stock, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(product_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":stock": &types.AttributeValueMemberN{Value: strconv.Itoa(stock)},
			":ua":    &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return ErrNotFound
		}
		return fmt.Errorf("update stock: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
