package ledger

import (
	"errors"
	"fmt"

	"github.com/congo-pay/tokenledger/internal/balance"
	"github.com/congo-pay/tokenledger/internal/merkle"
)

var (
	// ErrTokenNotFound indicates no token record exists for the id.
	ErrTokenNotFound = errors.New("token not found")

	// ErrIssuanceBelowDeposit rejects a non-zero initial issuance smaller than
	// the existential deposit: the issuer account could not exist.
	ErrIssuanceBelowDeposit = errors.New("initial issuance below existential deposit")

	// ErrEmptyCommitment rejects a restricted policy committing to the zero hash.
	ErrEmptyCommitment = errors.New("restricted policy requires a commitment")
)

// OfferingState is the issuance phase of a token.
type OfferingState uint8

const (
	// Idle is the initial state.
	Idle OfferingState = iota
	// Sale is an initial token sale.
	Sale
	// BondingCurve is an issuance priced by a bonding curve.
	BondingCurve
)

func (s OfferingState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sale:
		return "sale"
	case BondingCurve:
		return "bonding_curve"
	default:
		return fmt.Sprintf("offering_state(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s OfferingState) MarshalText() ([]byte, error) {
	switch s {
	case Idle, Sale, BondingCurve:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("invalid offering state %d", uint8(s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty value is Idle.
func (s *OfferingState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "idle":
		*s = Idle
	case "sale":
		*s = Sale
	case "bonding_curve":
		*s = BondingCurve
	default:
		return fmt.Errorf("invalid offering state %q", string(text))
	}
	return nil
}

// TransferPolicy gates transfers of a token. It is either Open or Restricted.
type TransferPolicy interface {
	transferPolicy()
}

// Open lets any holder transfer.
type Open struct{}

// Restricted requires the sender to prove membership in the allow-list
// committed to by Commitment.
type Restricted struct {
	Commitment merkle.Hash
}

func (Open) transferPolicy()       {}
func (Restricted) transferPolicy() {}

const (
	// PolicyOpen is the storage and wire name of Open.
	PolicyOpen = "open"
	// PolicyRestricted is the storage and wire name of Restricted.
	PolicyRestricted = "restricted"
)

// EncodePolicy splits a policy into its kind and optional commitment.
func EncodePolicy(p TransferPolicy) (string, *merkle.Hash) {
	switch v := p.(type) {
	case Restricted:
		c := v.Commitment
		return PolicyRestricted, &c
	case Open, nil:
		return PolicyOpen, nil
	default:
		panic(fmt.Sprintf("ledger: unknown transfer policy %T", p))
	}
}

// DecodePolicy rebuilds a policy from its kind and commitment.
func DecodePolicy(kind string, commitment *merkle.Hash) (TransferPolicy, error) {
	switch kind {
	case "", PolicyOpen:
		return Open{}, nil
	case PolicyRestricted:
		if commitment == nil {
			return nil, ErrEmptyCommitment
		}
		return Restricted{Commitment: *commitment}, nil
	default:
		return nil, fmt.Errorf("unknown transfer policy %q", kind)
	}
}

// TokenRecord is the token-wide state.
type TokenRecord struct {
	TotalIssuance      balance.Balance
	ExistentialDeposit balance.Balance
	IssuanceState      OfferingState
	TransferPolicy     TransferPolicy
	Patronage          PatronageState
	Symbol             merkle.Hash
}

// IncreaseIssuanceBy records minted tokens.
func (t *TokenRecord) IncreaseIssuanceBy(amount balance.Balance) {
	t.TotalIssuance = t.TotalIssuance.Add(amount)
}

// DecreaseIssuanceBy records burned tokens.
func (t *TokenRecord) DecreaseIssuanceBy(amount balance.Balance) {
	t.TotalIssuance = t.TotalIssuance.Sub(amount)
}

// IssuanceParams describes a token at creation time.
type IssuanceParams struct {
	InitialIssuance    balance.Balance
	ExistentialDeposit balance.Balance
	InitialState       OfferingState
	Symbol             merkle.Hash
	TransferPolicy     TransferPolicy
	PatronageRate      balance.Balance
}

// TryBuild validates the parameters and returns the token record created at block.
func (p IssuanceParams) TryBuild(block BlockNumber) (TokenRecord, error) {
	if !p.InitialIssuance.IsZero() && p.InitialIssuance < p.ExistentialDeposit {
		return TokenRecord{}, ErrIssuanceBelowDeposit
	}

	policy := p.TransferPolicy
	switch v := policy.(type) {
	case nil:
		policy = Open{}
	case Open:
	case Restricted:
		if v.Commitment.IsZero() {
			return TokenRecord{}, ErrEmptyCommitment
		}
	default:
		return TokenRecord{}, fmt.Errorf("unknown transfer policy %T", policy)
	}

	return TokenRecord{
		TotalIssuance:      p.InitialIssuance,
		ExistentialDeposit: p.ExistentialDeposit,
		IssuanceState:      p.InitialState,
		TransferPolicy:     policy,
		Symbol:             p.Symbol,
		Patronage: PatronageState{
			Rate:       p.PatronageRate,
			Tally:      balance.Zero,
			LastUpdate: block,
		},
	}, nil
}
