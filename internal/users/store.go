package users

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

// ExternalIDIndex is the GSI used by GetByExternalID.
const ExternalIDIndex = "external_id-index"

var (
	ErrNotFound   = apperr.New(apperr.ErrNotFound, "user not found")
	ErrEmailTaken = apperr.New(apperr.ErrConflict, "email already registered")
)

type Store interface {
	// Create stores u and reserves its email; ErrEmailTaken if reserved.
	Create(ctx context.Context, u User) error
	// Get returns (nil, nil) if the user does not exist.
	Get(ctx context.Context, id string) (*User, error)
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	List(ctx context.Context) ([]User, error)
	// Update replaces prev with next, moving the email reservation when it changed.
	Update(ctx context.Context, prev, next User) error
	Delete(ctx context.Context, id string) (*User, error)
}

// DynamoStore keeps users in one table and email reservations in another,
// writing both in a single transaction.
type DynamoStore struct {
	client      aws.DynamoDBAPI
	usersTable  string
	emailsTable string
	nowFunc     func() time.Time
}

func NewDynamoStore(client aws.DynamoDBAPI, usersTable, emailsTable string) *DynamoStore {
	return &DynamoStore{
		client:      client,
		usersTable:  usersTable,
		emailsTable: emailsTable,
		nowFunc:     time.Now,
	}
}

func (s *DynamoStore) Create(ctx context.Context, u User) error {
	now := s.nowFunc().UTC()
	u.Email = NormalizeEmail(u.Email)
	u.CreatedAt, u.UpdatedAt = now, now

	userItem, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	guardItem, err := attributevalue.MarshalMap(emailGuard{Email: u.Email, UserID: u.ID})
	if err != nil {
		return fmt.Errorf("marshal email guard: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           &s.usersTable,
				Item:                userItem,
				ConditionExpression: awsString("attribute_not_exists(user_id)"),
			}},
			{Put: &types.Put{
				TableName:           &s.emailsTable,
				Item:                guardItem,
				ConditionExpression: awsString("attribute_not_exists(email)"),
			}},
		},
	})
	if err != nil {
		switch failedItem(err) {
		case 0:
			return apperr.New(apperr.ErrConflict, "user %s already exists", u.ID)
		case 1:
			return ErrEmailTaken
		}
		return fmt.Errorf("transact create user: %w", err)
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, id string) (*User, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.usersTable,
		Key:            userKey(id),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var u User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

// GetByExternalID returns (nil, nil) when no user is linked to externalID.
func (s *DynamoStore) GetByExternalID(ctx context.Context, externalID string) (*User, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.usersTable,
		IndexName:              awsString(ExternalIDIndex),
		KeyConditionExpression: awsString("external_id = :ext"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ext": &types.AttributeValueMemberS{Value: externalID},
		},
		Limit: awsInt32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query by external id: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var u User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

func (s *DynamoStore) List(ctx context.Context) ([]User, error) {
	input := &dyn.ScanInput{TableName: &s.usersTable}
	out := []User{}
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan users: %w", err)
		}
		var batch []User
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal users: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func (s *DynamoStore) Update(ctx context.Context, prev, next User) error {
	next.ID = prev.ID
	next.CreatedAt = prev.CreatedAt
	next.UpdatedAt = s.nowFunc().UTC()
	next.Email = NormalizeEmail(next.Email)

	userItem, err := attributevalue.MarshalMap(next)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	items := []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           &s.usersTable,
			Item:                userItem,
			ConditionExpression: awsString("attribute_exists(user_id)"),
		}},
	}
	if next.Email != NormalizeEmail(prev.Email) {
		guardItem, err := attributevalue.MarshalMap(emailGuard{Email: next.Email, UserID: next.ID})
		if err != nil {
			return fmt.Errorf("marshal email guard: %w", err)
		}
		items = append(items,
			types.TransactWriteItem{Put: &types.Put{
				TableName:           &s.emailsTable,
				Item:                guardItem,
				ConditionExpression: awsString("attribute_not_exists(email)"),
			}},
			types.TransactWriteItem{Delete: &types.Delete{
				TableName: &s.emailsTable,
				Key:       emailKey(NormalizeEmail(prev.Email)),
			}},
		)
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		switch failedItem(err) {
		case 0:
			return ErrNotFound
		case 1:
			return ErrEmailTaken
		}
		return fmt.Errorf("transact update user: %w", err)
	}
	return nil
}

// Delete removes the user and releases the email. Returns the removed user.
func (s *DynamoStore) Delete(ctx context.Context, id string) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:           &s.usersTable,
				Key:                 userKey(id),
				ConditionExpression: awsString("attribute_exists(user_id)"),
			}},
			{Delete: &types.Delete{
				TableName: &s.emailsTable,
				Key:       emailKey(NormalizeEmail(u.Email)),
			}},
		},
	})
	if err != nil {
		if failedItem(err) == 0 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("transact delete user: %w", err)
	}
	return u, nil
}

// failedItem returns the index of the first transact item whose condition
// failed, or -1.
func failedItem(err error) int {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return -1
	}
	for i, r := range tce.CancellationReasons {
		if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
			return i
		}
	}
	return -1
}

func userKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"user_id": &types.AttributeValueMemberS{Value: id}}
}

func emailKey(email string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"email": &types.AttributeValueMemberS{Value: email}}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }

func awsInt32(i int32) *int32 { return &i }
