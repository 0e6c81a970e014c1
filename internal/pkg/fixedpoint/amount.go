// Package fixedpoint holds token and settlement quantities as integers of base units.
//
// The carbon-credit token and the settlement currency both use 8 decimals, so one
// precision covers every authoritative amount in the system. Floating point is never
// used on these values.
package fixedpoint

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

// Decimals is the precision of every Amount.
const Decimals = 8

var scale = sdkmath.NewIntWithDecimal(1, Decimals)

// Amount is a non-negative quantity in base units (1 token = 10^8 units).
type Amount struct {
	v sdkmath.Int
}

// Zero returns the zero amount.
func Zero() Amount { return Amount{v: sdkmath.ZeroInt()} }

// FromUnits builds an amount from base units.
func FromUnits(units sdkmath.Int) Amount { return Amount{v: units} }

// FromUnitsInt64 builds an amount from base units.
func FromUnitsInt64(units int64) Amount { return Amount{v: sdkmath.NewInt(units)} }

// FromBig builds an amount from base units.
func FromBig(units *big.Int) Amount { return Amount{v: sdkmath.NewIntFromBigInt(units)} }

// Parse reads a decimal string such as "500" or "2.5". More than Decimals fractional
// digits, negative values, and malformed input are rejected rather than rounded.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return FromDecimal(d)
}

// FromDecimal converts a decimal value, rejecting sub-unit precision.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("amount must not be negative")
	}
	shifted := d.Shift(Decimals)
	if !shifted.IsInteger() {
		return Amount{}, fmt.Errorf("amount %s has more than %d decimal places", d.String(), Decimals)
	}
	return FromBig(shifted.BigInt()), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) int() sdkmath.Int {
	if a.v.IsNil() {
		return sdkmath.ZeroInt()
	}
	return a.v
}

// Units returns the base-unit integer.
func (a Amount) Units() sdkmath.Int { return a.int() }

// BigInt returns a copy of the base-unit integer.
func (a Amount) BigInt() *big.Int { return a.int().BigInt() }

// Int64Units returns base units when they fit an int64.
func (a Amount) Int64Units() (int64, bool) {
	i := a.int()
	if !i.IsInt64() {
		return 0, false
	}
	return i.Int64(), true
}

// Decimal returns the human value.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.int().BigInt(), -Decimals)
}

// String renders the human value without trailing zeros ("1000", "2.5").
func (a Amount) String() string { return a.Decimal().String() }

func (a Amount) IsZero() bool     { return a.int().IsZero() }
func (a Amount) IsPositive() bool { return a.int().IsPositive() }

func (a Amount) Equal(b Amount) bool { return a.int().Equal(b.int()) }
func (a Amount) GT(b Amount) bool    { return a.int().GT(b.int()) }

func (a Amount) Add(b Amount) Amount { return Amount{v: a.int().Add(b.int())} }

// Sub returns a-b; it errors instead of going negative.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b.GT(a) {
		return Amount{}, fmt.Errorf("amount %s exceeds %s", b, a)
	}
	return Amount{v: a.int().Sub(b.int())}, nil
}

// Mul returns a×b at the same precision. It fails when the exact product has more than
// Decimals fractional digits, so a total is never silently rounded.
func Mul(a, b Amount) (Amount, error) {
	prod := a.int().Mul(b.int())
	if !prod.Mod(scale).IsZero() {
		return Amount{}, fmt.Errorf("%s × %s is not representable with %d decimals", a, b, Decimals)
	}
	return Amount{v: prod.Quo(scale)}, nil
}

// Quo returns a/b at the same precision, failing when the result is not exact.
func Quo(a, b Amount) (Amount, error) {
	if b.IsZero() {
		return Amount{}, fmt.Errorf("division by zero amount")
	}
	num := a.int().Mul(scale)
	if !num.Mod(b.int()).IsZero() {
		return Amount{}, fmt.Errorf("%s / %s is not representable with %d decimals", a, b, Decimals)
	}
	return Amount{v: num.Quo(b.int())}, nil
}

// MarshalJSON encodes the human value as a string to keep full precision.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts "2.5" or 2.5.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "null" {
		*a = Amount{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value stores base units as an integer string (numeric(38,0) column).
func (a Amount) Value() (driver.Value, error) {
	return a.int().String(), nil
}

// Scan reads base units from numeric, text or integer columns.
func (a *Amount) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*a = Amount{}
		return nil
	case int64:
		*a = FromUnitsInt64(v)
		return nil
	case []byte:
		return a.scanString(string(v))
	case string:
		return a.scanString(v)
	case float64:
		f := new(big.Float).SetFloat64(v)
		i, acc := f.Int(nil)
		if acc != big.Exact {
			return fmt.Errorf("amount column holds non-integer %v", v)
		}
		*a = FromBig(i)
		return nil
	default:
		return fmt.Errorf("unsupported type %T for Amount", value)
	}
}

func (a *Amount) scanString(s string) error {
	s = strings.TrimSpace(s)
	// Postgres may render numeric(38,0) as "123" or "123.0" depending on the driver path.
	if i := strings.IndexByte(s, '.'); i >= 0 && strings.Trim(s[i+1:], "0") == "" {
		s = s[:i]
	}
	i, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return fmt.Errorf("invalid amount units %q", s)
	}
	*a = Amount{v: i}
	return nil
}
