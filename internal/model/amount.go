package model

import (
	"fmt"
	"math/big"
)

// Amount is an unsigned 128-bit quantity attached to a forwarded call
// and transferred to the target with it.
type Amount struct {
	Hi, Lo uint64
}

var maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// AmountFromUint64 builds an Amount that fits in 64 bits.
func AmountFromUint64(v uint64) Amount {
	return Amount{Lo: v}
}

// ParseAmount parses a non-negative decimal string of at most 128 bits.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 || v.Cmp(maxAmount) > 0 {
		return Amount{}, fmt.Errorf("amount %q out of range for 128 bits", s)
	}
	lo := new(big.Int).And(v, new(big.Int).SetUint64(^uint64(0)))
	hi := new(big.Int).Rsh(v, 64)
	return Amount{Hi: hi.Uint64(), Lo: lo.Uint64()}, nil
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.Hi == 0 && a.Lo == 0
}

// Big returns the amount as a big.Int.
func (a Amount) Big() *big.Int {
	v := new(big.Int).SetUint64(a.Hi)
	v.Lsh(v, 64)
	return v.Or(v, new(big.Int).SetUint64(a.Lo))
}

// String returns the decimal form.
func (a Amount) String() string {
	return a.Big().String()
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
