package token

import (
	"fmt"
	"strings"

	"github.com/congo-pay/tokenledger/internal/ledger"
)

// DustPolicy decides what happens to the balance left behind by an account
// removed under the existential deposit. It is either BurnDust or TreasuryDust.
type DustPolicy interface {
	dustPolicy()
	Name() string
}

// BurnDust takes the dust out of circulation.
type BurnDust struct{}

// TreasuryDust credits the dust to Account.
type TreasuryDust struct {
	Account ledger.AccountID
}

func (BurnDust) dustPolicy()     {}
func (TreasuryDust) dustPolicy() {}

// Name returns "burn".
func (BurnDust) Name() string { return "burn" }

// Name returns "treasury".
func (TreasuryDust) Name() string { return "treasury" }

// ParseDustPolicy builds a policy from its configured name. The treasury
// account is required for "treasury" and ignored for "burn".
func ParseDustPolicy(name string, treasury *ledger.AccountID) (DustPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "burn":
		return BurnDust{}, nil
	case "treasury":
		if treasury == nil {
			return nil, fmt.Errorf("dust policy treasury requires a treasury account")
		}
		return TreasuryDust{Account: *treasury}, nil
	case "":
		return nil, fmt.Errorf("dust policy must be configured")
	default:
		return nil, fmt.Errorf("unknown dust policy %q", name)
	}
}
