package ledger

import "github.com/congo-pay/tokenledger/internal/balance"

// BlockNumber is a host block height.
type BlockNumber uint64

// PatronageState accrues Rate per block since LastUpdate on top of Tally.
// Credit is computed on demand; nothing is written per block.
type PatronageState struct {
	Rate       balance.Balance `json:"rate"`
	Tally      balance.Balance `json:"tally"`
	LastUpdate BlockNumber     `json:"last_update"`
}

// OutstandingCredit returns Tally + Rate * (block - LastUpdate). block must
// not be lower than LastUpdate.
func (p PatronageState) OutstandingCredit(block BlockNumber) balance.Balance {
	var period BlockNumber
	if block > p.LastUpdate {
		period = block - p.LastUpdate
	}
	accrued := balance.Balance(period).Mul(p.Rate)
	return accrued.Add(p.Tally)
}

// SetNewRateAtBlock checkpoints the credit accrued under the old rate and then
// switches to newRate.
func (p *PatronageState) SetNewRateAtBlock(newRate balance.Balance, block BlockNumber) {
	p.Tally = p.OutstandingCredit(block)
	p.LastUpdate = block
	p.Rate = newRate
}

// ResetTallyAtBlock restarts accrual from zero at block with the current rate.
func (p *PatronageState) ResetTallyAtBlock(block BlockNumber) {
	p.Tally = balance.Zero
	p.LastUpdate = block
}
