package ledger

import "github.com/congo-pay/tokenledger/internal/balance"

// TransferOutput credits Amount to Beneficiary.
type TransferOutput struct {
	Beneficiary AccountID       `json:"beneficiary"`
	Amount      balance.Balance `json:"amount"`
}

// TransferBatch is the ordered set of outputs of one transfer. The whole
// batch is debited from the sender at once; beneficiaries are credited only
// when that debit succeeds.
type TransferBatch []TransferOutput

// TotalAmount returns the saturating sum of all output amounts.
func (b TransferBatch) TotalAmount() balance.Balance {
	total := balance.Zero
	for _, out := range b {
		total = total.Add(out.Amount)
	}
	return total
}

// CheckedTotal returns the exact sum of all output amounts and false when it
// does not fit in a Balance.
func (b TransferBatch) CheckedTotal() (balance.Balance, bool) {
	total := balance.Zero
	for _, out := range b {
		var ok bool
		if total, ok = total.CheckedAdd(out.Amount); !ok {
			return balance.Max, false
		}
	}
	return total, true
}

// CreditsByBeneficiary merges outputs per beneficiary, in first-seen order.
func (b TransferBatch) CreditsByBeneficiary() []TransferOutput {
	index := make(map[AccountID]int, len(b))
	merged := make([]TransferOutput, 0, len(b))
	for _, out := range b {
		if i, ok := index[out.Beneficiary]; ok {
			merged[i].Amount = merged[i].Amount.Add(out.Amount)
			continue
		}
		index[out.Beneficiary] = len(merged)
		merged = append(merged, out)
	}
	return merged
}
