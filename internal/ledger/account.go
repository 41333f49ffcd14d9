package ledger

import (
	"encoding/binary"
	"errors"

	"github.com/congo-pay/tokenledger/internal/balance"
)

var (
	// ErrInsufficientBalance occurs when a decrease asks for more than the free balance.
	ErrInsufficientBalance = errors.New("insufficient free balance")

	// ErrAccountNotFound indicates no record exists for the (token, account) pair.
	ErrAccountNotFound = errors.New("account not found")
)

// TokenID identifies a token.
type TokenID uint64

// AccountID identifies a holder.
type AccountID uint64

// Encode returns the canonical leaf payload of the account: 8 bytes little endian.
func (a AccountID) Encode() []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(a))
	return buf[:]
}

// AccountKey is the storage key of an account record.
type AccountKey struct {
	Token   TokenID
	Account AccountID
}

// AccountRecord holds the balances of one account for one token.
type AccountRecord struct {
	// FreeBalance can be transferred.
	FreeBalance balance.Balance `json:"free_balance"`
	// ReservedBalance is owned but set aside by another subsystem.
	ReservedBalance balance.Balance `json:"reserved_balance"`
}

// Total returns free + reserved.
func (a AccountRecord) Total() balance.Balance {
	return a.FreeBalance.Add(a.ReservedBalance)
}

// IncreaseLiquidityBy credits the free balance.
func (a *AccountRecord) IncreaseLiquidityBy(amount balance.Balance) {
	a.FreeBalance = a.FreeBalance.Add(amount)
}

// DecreaseLiquidityBy debits the free balance. Callers check sufficiency first.
func (a *AccountRecord) DecreaseLiquidityBy(amount balance.Balance) {
	a.FreeBalance = a.FreeBalance.Sub(amount)
}

// ReserveBy moves amount from free to reserved.
func (a *AccountRecord) ReserveBy(amount balance.Balance) error {
	if a.FreeBalance < amount {
		return ErrInsufficientBalance
	}
	a.FreeBalance = a.FreeBalance.Sub(amount)
	a.ReservedBalance = a.ReservedBalance.Add(amount)
	return nil
}

// UnreserveBy moves up to amount from reserved back to free.
func (a *AccountRecord) UnreserveBy(amount balance.Balance) {
	if amount > a.ReservedBalance {
		amount = a.ReservedBalance
	}
	a.ReservedBalance = a.ReservedBalance.Sub(amount)
	a.FreeBalance = a.FreeBalance.Add(amount)
}

// DecreaseOutcome tells the caller how to apply a checked decrease. It is
// either Reduce or Remove.
type DecreaseOutcome interface {
	decreaseOutcome()
}

// Reduce means the account survives and only Amount is debited.
type Reduce struct {
	Amount balance.Balance
}

// Remove means the account falls under the existential deposit: it must be
// deleted and Dust, the remaining total, swept.
type Remove struct {
	Amount balance.Balance
	Dust   balance.Balance
}

func (Reduce) decreaseOutcome() {}
func (Remove) decreaseOutcome() {}

// DecreaseWithExistentialDeposit checks whether amount can leave the account
// and whether the account survives the debit. The record is not modified.
func (a AccountRecord) DecreaseWithExistentialDeposit(amount, existentialDeposit balance.Balance) (DecreaseOutcome, error) {
	if a.FreeBalance < amount {
		return nil, ErrInsufficientBalance
	}

	newTotal := a.FreeBalance.Sub(amount).Add(a.ReservedBalance)
	if newTotal.IsZero() || newTotal < existentialDeposit {
		return Remove{Amount: amount, Dust: newTotal}, nil
	}
	return Reduce{Amount: amount}, nil
}
