// Package allowlist reads the YAML account lists a restricted transfer policy
// commits to and derives their Merkle commitment and membership proofs.
package allowlist

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/congo-pay/tokenledger/internal/ledger"
	"github.com/congo-pay/tokenledger/internal/merkle"
)

// ErrNotListed is returned when a proof is requested for an absent account.
var ErrNotListed = errors.New("account not in allow-list")

// List is the ordered set of accounts allowed to transfer. Leaf order is the
// file order.
type List struct {
	Accounts []ledger.AccountID `yaml:"accounts"`
}

// Load reads a list from a YAML file.
func Load(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return List{}, fmt.Errorf("open allow-list: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a list from YAML. Duplicate accounts are rejected: each account
// must map to a single leaf.
func Decode(r io.Reader) (List, error) {
	var l List
	if err := yaml.NewDecoder(r).Decode(&l); err != nil {
		return List{}, fmt.Errorf("decode allow-list: %w", err)
	}
	if len(l.Accounts) == 0 {
		return List{}, merkle.ErrEmptyTree
	}
	seen := make(map[ledger.AccountID]struct{}, len(l.Accounts))
	for _, acc := range l.Accounts {
		if _, dup := seen[acc]; dup {
			return List{}, fmt.Errorf("allow-list lists account %d twice", acc)
		}
		seen[acc] = struct{}{}
	}
	return l, nil
}

// Tree builds the Merkle tree over the encoded accounts.
func (l List) Tree() (*merkle.Tree, error) {
	payloads := make([][]byte, len(l.Accounts))
	for i, acc := range l.Accounts {
		payloads[i] = acc.Encode()
	}
	return merkle.Build(payloads)
}

// Proof returns the membership proof of account.
func (l List) Proof(account ledger.AccountID) (merkle.Proof, error) {
	tree, err := l.Tree()
	if err != nil {
		return nil, err
	}
	for i, acc := range l.Accounts {
		if acc == account {
			return tree.Proof(i + 1)
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrNotListed, account)
}
