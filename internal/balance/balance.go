// Package balance provides the unsigned amount type used by every ledger
// record. Arithmetic on Balance never fails: results clamp to Max on overflow
// and to Zero on underflow.
package balance

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
)

// Balance is an unsigned token amount with saturating arithmetic.
type Balance uint64

const (
	// Zero is the empty amount.
	Zero Balance = 0
	// Max is the largest representable amount. Saturating operations clamp to it.
	Max Balance = math.MaxUint64
)

// Add returns b + other, clamped to Max.
func (b Balance) Add(other Balance) Balance {
	sum, carry := bits.Add64(uint64(b), uint64(other), 0)
	if carry != 0 {
		return Max
	}
	return Balance(sum)
}

// CheckedAdd returns b + other and false when the sum does not fit.
func (b Balance) CheckedAdd(other Balance) (Balance, bool) {
	sum, carry := bits.Add64(uint64(b), uint64(other), 0)
	return Balance(sum), carry == 0
}

// Sub returns b - other, clamped to Zero.
func (b Balance) Sub(other Balance) Balance {
	if other > b {
		return Zero
	}
	return b - other
}

// Mul returns b * other, clamped to Max.
func (b Balance) Mul(other Balance) Balance {
	hi, lo := bits.Mul64(uint64(b), uint64(other))
	if hi != 0 {
		return Max
	}
	return Balance(lo)
}

// IsZero reports whether the amount is empty.
func (b Balance) IsZero() bool { return b == Zero }

// String renders the amount in base 10.
func (b Balance) String() string {
	return strconv.FormatUint(uint64(b), 10)
}

// Sum folds values with saturating addition.
func Sum(values ...Balance) Balance {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Parse reads a base 10 amount.
func Parse(s string) (Balance, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Zero, fmt.Errorf("parse balance %q: %w", s, err)
	}
	return Balance(v), nil
}
