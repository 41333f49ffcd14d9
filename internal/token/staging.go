package token

import (
	"context"
	"errors"

	"github.com/congo-pay/tokenledger/internal/balance"
	"github.com/congo-pay/tokenledger/internal/ledger"
)

type stagedAccount struct {
	record ledger.AccountRecord
	live   bool
	stored bool
}

// staging holds the account records touched by one state transition until
// they are written as a single changeset.
type staging struct {
	repo     ledger.Repository
	token    ledger.TokenID
	deposit  balance.Balance
	accounts map[ledger.AccountID]*stagedAccount
	order    []ledger.AccountID
}

func newStaging(repo ledger.Repository, token ledger.TokenID, deposit balance.Balance) *staging {
	return &staging{
		repo:     repo,
		token:    token,
		deposit:  deposit,
		accounts: make(map[ledger.AccountID]*stagedAccount),
	}
}

func (s *staging) get(ctx context.Context, id ledger.AccountID) (*stagedAccount, error) {
	if acc, ok := s.accounts[id]; ok {
		return acc, nil
	}
	record, err := s.repo.Account(ctx, ledger.AccountKey{Token: s.token, Account: id})
	acc := &stagedAccount{}
	switch {
	case err == nil:
		acc.record, acc.live, acc.stored = record, true, true
	case errors.Is(err, ledger.ErrAccountNotFound):
	default:
		return nil, err
	}
	s.accounts[id] = acc
	s.order = append(s.order, id)
	return acc, nil
}

// credit adds amount to the free balance of id. An account that does not
// exist yet must receive at least the existential deposit.
func (s *staging) credit(ctx context.Context, id ledger.AccountID, amount balance.Balance) error {
	acc, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !acc.live {
		if amount.IsZero() || amount < s.deposit {
			return ErrBelowExistentialDeposit
		}
		acc.record = ledger.AccountRecord{}
		acc.live = true
	}
	acc.record.IncreaseLiquidityBy(amount)
	return nil
}

// debit applies a checked decrease outcome to id and returns the dust of a
// removed account.
func (s *staging) debit(ctx context.Context, id ledger.AccountID, amount balance.Balance) (ledger.DecreaseOutcome, error) {
	acc, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	outcome, err := acc.record.DecreaseWithExistentialDeposit(amount, s.deposit)
	if err != nil {
		return nil, err
	}
	switch o := outcome.(type) {
	case ledger.Reduce:
		acc.record.DecreaseLiquidityBy(o.Amount)
	case ledger.Remove:
		acc.record = ledger.AccountRecord{}
		acc.live = false
	}
	return outcome, nil
}

func (s *staging) record(id ledger.AccountID) (ledger.AccountRecord, bool) {
	acc, ok := s.accounts[id]
	if !ok || !acc.live {
		return ledger.AccountRecord{}, false
	}
	return acc.record, true
}

func (s *staging) writeTo(cs *ledger.Changeset) {
	for _, id := range s.order {
		acc := s.accounts[id]
		key := ledger.AccountKey{Token: s.token, Account: id}
		switch {
		case acc.live:
			cs.SetAccount(key, acc.record)
		case acc.stored:
			cs.RemoveAccount(key)
		}
	}
}
