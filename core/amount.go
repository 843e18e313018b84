package core

import (
	"fmt"
	"math/big"
)

// TokenAmount is an unsigned arbitrary-precision integer. All ledger
// arithmetic is unsigned by construction: a subtraction that would go
// negative is rejected by the caller (InsufficientBalance/Allowance)
// rather than ever being stored, so TokenAmount never needs a sign.
type TokenAmount struct {
	v *big.Int
}

// ZeroAmount is the additive identity.
func ZeroAmount() TokenAmount { return TokenAmount{v: big.NewInt(0)} }

// NewAmount wraps a uint64 as a TokenAmount.
func NewAmount(v uint64) TokenAmount {
	return TokenAmount{v: new(big.Int).SetUint64(v)}
}

// AmountFromString parses a base-10 unsigned decimal string.
func AmountFromString(s string) (TokenAmount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return TokenAmount{}, fmt.Errorf("invalid token amount %q", s)
	}
	return TokenAmount{v: v}, nil
}

func (a TokenAmount) ensure() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return a.v
}

func (a TokenAmount) String() string { return a.ensure().String() }

func (a TokenAmount) IsZero() bool { return a.ensure().Sign() == 0 }

func (a TokenAmount) Cmp(b TokenAmount) int { return a.ensure().Cmp(b.ensure()) }

func (a TokenAmount) LessThan(b TokenAmount) bool { return a.Cmp(b) < 0 }

func (a TokenAmount) GreaterOrEqual(b TokenAmount) bool { return a.Cmp(b) >= 0 }

// Add returns a + b.
func (a TokenAmount) Add(b TokenAmount) TokenAmount {
	return TokenAmount{v: new(big.Int).Add(a.ensure(), b.ensure())}
}

// Sub returns a - b. If b > a, ok is false and the zero value is returned;
// callers map this to InsufficientBalance/InsufficientAllowance.
func (a TokenAmount) Sub(b TokenAmount) (TokenAmount, bool) {
	if a.LessThan(b) {
		return TokenAmount{}, false
	}
	return TokenAmount{v: new(big.Int).Sub(a.ensure(), b.ensure())}, true
}

// Mul returns a * b.
func (a TokenAmount) Mul(b TokenAmount) TokenAmount {
	return TokenAmount{v: new(big.Int).Mul(a.ensure(), b.ensure())}
}

// DivUint64 returns integer a / d.
func (a TokenAmount) DivUint64(d uint64) TokenAmount {
	if d == 0 {
		return ZeroAmount()
	}
	return TokenAmount{v: new(big.Int).Div(a.ensure(), new(big.Int).SetUint64(d))}
}

// MulUint64 returns a * m.
func (a TokenAmount) MulUint64(m uint64) TokenAmount {
	return TokenAmount{v: new(big.Int).Mul(a.ensure(), new(big.Int).SetUint64(m))}
}

// Uint64 returns the amount truncated to a uint64, for callers (tests,
// RLP-encodable fixed-width fields) known to stay within range.
func (a TokenAmount) Uint64() uint64 { return a.ensure().Uint64() }

// Bytes returns the big-endian unsigned representation, used by the
// canonical transaction/block encoder.
func (a TokenAmount) Bytes() []byte { return a.ensure().Bytes() }

// AmountFromBytes reconstructs a TokenAmount from a big-endian unsigned
// byte slice, the counterpart to Bytes.
func AmountFromBytes(b []byte) TokenAmount {
	return TokenAmount{v: new(big.Int).SetBytes(b)}
}

// MarshalJSON encodes the amount as a decimal string so large balances
// round-trip exactly instead of losing precision through float64 JSON
// numbers.
func (a TokenAmount) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", a.String())), nil
}

// UnmarshalJSON decodes a decimal string produced by MarshalJSON.
func (a *TokenAmount) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		s = string(data[1 : len(data)-1])
	} else {
		s = string(data)
	}
	if s == "" {
		s = "0"
	}
	v, err := AmountFromString(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
