package money

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept at rest and in responses.
const Places = 2

// Amount is a decimal money value rounded to two places.
// It is stored in DynamoDB as a number and rendered in JSON as a fixed-point string.
type Amount struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Amount{}

// New rounds d to two places.
func New(d decimal.Decimal) Amount {
	return Amount{d: d.Round(Places)}
}

// Parse reads a decimal string such as "100.00".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return New(d), nil
}

// MustParse is Parse for constants and tests. It panics on malformed input.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromMinor converts an integer minor-unit value (pesewas, kobo) back to an Amount.
func FromMinor(minor int64) Amount {
	return Amount{d: decimal.New(minor, -Places)}
}

// Minor converts the amount to integer minor units. The value is rounded to
// two places before the shift so fractional pesewas never leak to the gateway.
func (a Amount) Minor() int64 {
	return a.d.Round(Places).Shift(Places).IntPart()
}

func (a Amount) Add(b Amount) Amount { return New(a.d.Add(b.d)) }
func (a Amount) Sub(b Amount) Amount { return New(a.d.Sub(b.d)) }

// Mul multiplies by an integer quantity.
func (a Amount) Mul(qty int) Amount {
	return New(a.d.Mul(decimal.NewFromInt(int64(qty))))
}

// MulRate multiplies by a decimal rate (0.05 for five percent) and rounds.
func (a Amount) MulRate(rate decimal.Decimal) Amount {
	return New(a.d.Mul(rate))
}

func (a Amount) Cmp(b Amount) int          { return a.d.Cmp(b.d) }
func (a Amount) Equal(b Amount) bool       { return a.d.Equal(b.d) }
func (a Amount) LessThan(b Amount) bool    { return a.d.LessThan(b.d) }
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }
func (a Amount) IsZero() bool              { return a.d.IsZero() }
func (a Amount) IsPositive() bool          { return a.d.IsPositive() }
func (a Amount) IsNegative() bool          { return a.d.IsNegative() }

// Decimal exposes the underlying value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// String renders the amount with exactly two fractional digits.
func (a Amount) String() string { return a.d.StringFixed(Places) }

// Sum adds all amounts.
func Sum(amounts ...Amount) Amount {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Max returns the larger of a and b.
func Max(a, b Amount) Amount {
	if a.LessThan(b) {
		return b
	}
	return a
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted strings and bare JSON numbers.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("decode amount: %w", err)
	}
	*a = New(d)
	return nil
}

func (a Amount) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: a.String()}, nil
}

func (a *Amount) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		parsed, err := Parse(v.Value)
		if err != nil {
			return err
		}
		*a = parsed
	case *types.AttributeValueMemberS:
		parsed, err := Parse(v.Value)
		if err != nil {
			return err
		}
		*a = parsed
	case *types.AttributeValueMemberNULL:
		*a = Zero
	default:
		return fmt.Errorf("unsupported attribute type %T for amount", av)
	}
	return nil
}
