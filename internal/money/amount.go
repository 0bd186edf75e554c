// Package money holds the decimal amount type used for prices and totals.
package money

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// Amount is a decimal currency value. It encodes as a JSON number and a
// DynamoDB N attribute.
type Amount struct {
	d decimal.Decimal
}

func Zero() Amount { return Amount{} }

func FromInt(i int64) Amount { return Amount{d: decimal.NewFromInt(i)} }

// Parse accepts a decimal string such as "10.00".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

// MustParse is for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

// Times multiplies by a unit count.
func (a Amount) Times(qty int) Amount { return Amount{d: a.d.Mul(decimal.NewFromInt(int64(qty)))} }

func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

func (a Amount) IsNegative() bool { return a.d.IsNegative() }

func (a Amount) String() string { return a.d.String() }

// StringFixed renders with two decimal places, for messages and mail.
func (a Amount) StringFixed() string { return a.d.StringFixed(2) }

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.d.String()), nil
}

// UnmarshalJSON accepts both numbers and numeric strings.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = Amount{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", b, err)
	}
	a.d = d
	return nil
}

func (a Amount) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: a.d.String()}, nil
}

func (a *Amount) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	var raw string
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		raw = v.Value
	case *types.AttributeValueMemberS:
		raw = v.Value
	case *types.AttributeValueMemberNULL:
		*a = Amount{}
		return nil
	default:
		return fmt.Errorf("unsupported attribute type %T for amount", av)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid stored amount %q: %w", raw, err)
	}
	a.d = d
	return nil
}
