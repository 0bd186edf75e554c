// Package dynamotest provides an in-memory DynamoDB stand-in for store tests.
// It understands the small expression dialect the stores emit: SET lists,
// equality comparisons joined by AND, and attribute_exists/attribute_not_exists.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type table struct {
	key   string
	items map[string]map[string]types.AttributeValue
}

// Fake is safe for concurrent use.
type Fake struct {
	mu     sync.Mutex
	tables map[string]*table

	// Hook, when set, runs before every call; a non-nil error is returned as-is.
	Hook func(op, table string) error

	Calls map[string]int
}

func New() *Fake {
	return &Fake{
		tables: map[string]*table{},
		Calls:  map[string]int{},
	}
}

// CreateTable registers a table keyed by a single partition attribute.
func (f *Fake) CreateTable(name, keyAttr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{key: keyAttr, items: map[string]map[string]types.AttributeValue{}}
}

// Item returns a copy of the stored item, or nil.
func (f *Fake) Item(tableName, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[tableName]
	if !ok {
		return nil
	}
	item, ok := t.items[key]
	if !ok {
		return nil
	}
	return clone(item)
}

// Seed stores item directly, bypassing conditions.
func (f *Fake) Seed(tableName string, item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tables[tableName]
	t.items[scalar(item[t.key])] = clone(item)
}

// Len returns the number of items in a table.
func (f *Fake) Len(tableName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[tableName].items)
}

func (f *Fake) begin(op, tableName string) (*table, error) {
	f.Calls[op]++
	if f.Hook != nil {
		if err := f.Hook(op, tableName); err != nil {
			return nil, err
		}
	}
	t, ok := f.tables[tableName]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: strPtr("table not found: " + tableName)}
	}
	return t, nil
}

func (f *Fake) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.begin("PutItem", deref(params.TableName))
	if err != nil {
		return nil, err
	}
	k, ok := params.Item[t.key]
	if !ok {
		return nil, errors.New("missing key attribute " + t.key)
	}
	current := t.items[scalar(k)]
	if !evalCondition(params.ConditionExpression, current, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	t.items[scalar(k)] = clone(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *Fake) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.begin("GetItem", deref(params.TableName))
	if err != nil {
		return nil, err
	}
	item, ok := t.items[scalar(params.Key[t.key])]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(item)}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.begin("UpdateItem", deref(params.TableName))
	if err != nil {
		return nil, err
	}
	item, err := applyUpdate(t, params.Key, params.ConditionExpression, params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, false)
	if err != nil {
		return nil, err
	}
	out := &dyn.UpdateItemOutput{}
	if params.ReturnValues == types.ReturnValueAllNew || params.ReturnValues == types.ReturnValueUpdatedNew {
		out.Attributes = clone(item)
	}
	return out, nil
}

func (f *Fake) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.begin("DeleteItem", deref(params.TableName))
	if err != nil {
		return nil, err
	}
	k := scalar(params.Key[t.key])
	current := t.items[k]
	if !evalCondition(params.ConditionExpression, current, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(t.items, k)
	out := &dyn.DeleteItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld && current != nil {
		out.Attributes = current
	}
	return out, nil
}

func (f *Fake) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.begin("Scan", deref(params.TableName))
	if err != nil {
		return nil, err
	}
	items := t.sorted()
	var out []map[string]types.AttributeValue
	for _, it := range items {
		if params.FilterExpression == nil || evalCondition(params.FilterExpression, it, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
			out = append(out, clone(it))
		}
	}
	return &dyn.ScanOutput{Items: out, Count: int32(len(out))}, nil
}

// Query ignores IndexName and evaluates the key condition as a filter.
func (f *Fake) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.begin("Query", deref(params.TableName))
	if err != nil {
		return nil, err
	}
	var out []map[string]types.AttributeValue
	for _, it := range t.sorted() {
		if !evalCondition(params.KeyConditionExpression, it, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
			continue
		}
		if params.FilterExpression != nil && !evalCondition(params.FilterExpression, it, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
			continue
		}
		out = append(out, clone(it))
	}
	return &dyn.QueryOutput{Items: out, Count: int32(len(out))}, nil
}

// TransactWriteItems checks every condition before applying any write.
func (f *Fake) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["TransactWriteItems"]++
	if f.Hook != nil {
		if err := f.Hook("TransactWriteItems", ""); err != nil {
			return nil, err
		}
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, it := range params.TransactItems {
		var (
			tableName string
			key       map[string]types.AttributeValue
			cond      *string
			names     map[string]string
			values    map[string]types.AttributeValue
		)
		switch {
		case it.Put != nil:
			tableName, cond, names, values = deref(it.Put.TableName), it.Put.ConditionExpression, it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues
		case it.Delete != nil:
			tableName, key, cond, names, values = deref(it.Delete.TableName), it.Delete.Key, it.Delete.ConditionExpression, it.Delete.ExpressionAttributeNames, it.Delete.ExpressionAttributeValues
		case it.Update != nil:
			tableName, key, cond, names, values = deref(it.Update.TableName), it.Update.Key, it.Update.ConditionExpression, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues
		case it.ConditionCheck != nil:
			tableName, key, cond, names, values = deref(it.ConditionCheck.TableName), it.ConditionCheck.Key, it.ConditionCheck.ConditionExpression, it.ConditionCheck.ExpressionAttributeNames, it.ConditionCheck.ExpressionAttributeValues
		default:
			return nil, errors.New("empty transact item")
		}
		t, ok := f.tables[tableName]
		if !ok {
			return nil, &types.ResourceNotFoundException{Message: strPtr("table not found: " + tableName)}
		}
		if it.Put != nil {
			key = map[string]types.AttributeValue{t.key: it.Put.Item[t.key]}
		}
		reasons[i] = types.CancellationReason{Code: strPtr("None")}
		if !evalCondition(cond, t.items[scalar(key[t.key])], names, values) {
			reasons[i] = types.CancellationReason{Code: strPtr("ConditionalCheckFailed")}
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	for _, it := range params.TransactItems {
		switch {
		case it.Put != nil:
			t := f.tables[deref(it.Put.TableName)]
			t.items[scalar(it.Put.Item[t.key])] = clone(it.Put.Item)
		case it.Delete != nil:
			t := f.tables[deref(it.Delete.TableName)]
			delete(t.items, scalar(it.Delete.Key[t.key]))
		case it.Update != nil:
			t := f.tables[deref(it.Update.TableName)]
			if _, err := applyUpdate(t, it.Update.Key, nil, it.Update.UpdateExpression, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues, true); err != nil {
				return nil, err
			}
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func applyUpdate(t *table, key map[string]types.AttributeValue, cond, update *string, names map[string]string, values map[string]types.AttributeValue, upsert bool) (map[string]types.AttributeValue, error) {
	k := scalar(key[t.key])
	current := t.items[k]
	if !evalCondition(cond, current, names, values) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	item := clone(current)
	if item == nil {
		// UpdateItem creates the item when no condition prevents it.
		item = map[string]types.AttributeValue{t.key: key[t.key]}
	}
	if update != nil {
		expr := strings.TrimSpace(*update)
		if !strings.HasPrefix(strings.ToUpper(expr), "SET ") {
			return nil, fmt.Errorf("dynamotest: unsupported update expression %q", expr)
		}
		for _, assign := range strings.Split(expr[4:], ",") {
			parts := strings.SplitN(assign, "=", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("dynamotest: bad assignment %q", assign)
			}
			name := resolveName(strings.TrimSpace(parts[0]), names)
			v, ok := values[strings.TrimSpace(parts[1])]
			if !ok {
				return nil, fmt.Errorf("dynamotest: missing value %q", parts[1])
			}
			item[name] = v
		}
	}
	t.items[k] = item
	return item, nil
}

// evalCondition supports "a AND b" of: attribute_exists(x), attribute_not_exists(x), x = :v.
func evalCondition(expr *string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) bool {
	if expr == nil || strings.TrimSpace(*expr) == "" {
		return true
	}
	for _, clause := range strings.Split(*expr, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_exists("):
			name := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_exists("), ")"), names)
			if _, ok := item[name]; !ok {
				return false
			}
		case strings.HasPrefix(clause, "attribute_not_exists("):
			name := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")"), names)
			if _, ok := item[name]; ok {
				return false
			}
		default:
			parts := strings.SplitN(clause, "=", 2)
			if len(parts) != 2 {
				return false
			}
			name := resolveName(strings.TrimSpace(parts[0]), names)
			want, ok := values[strings.TrimSpace(parts[1])]
			got, present := item[name]
			if !ok || !present || scalar(got) != scalar(want) {
				return false
			}
		}
	}
	return true
}

func resolveName(n string, names map[string]string) string {
	n = strings.TrimSpace(n)
	if strings.HasPrefix(n, "#") {
		if real, ok := names[n]; ok {
			return real
		}
	}
	return n
}

func (t *table) sorted() []map[string]types.AttributeValue {
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.items[k])
	}
	return out
}

func scalar(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberBOOL:
		return fmt.Sprint(v.Value)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func clone(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string { return &s }
