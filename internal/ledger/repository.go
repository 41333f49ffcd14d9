package ledger

import "context"

// Repository persists token and account records. Reads return
// ErrTokenNotFound / ErrAccountNotFound for missing keys; writes are grouped
// in a Changeset and applied atomically.
type Repository interface {
	Token(ctx context.Context, id TokenID) (TokenRecord, error)
	Account(ctx context.Context, key AccountKey) (AccountRecord, error)
	Holders(ctx context.Context, token TokenID) (map[AccountID]AccountRecord, error)
	NextTokenID(ctx context.Context) (TokenID, error)
	Apply(ctx context.Context, cs *Changeset) error
}

type tokenWrite struct {
	id     TokenID
	record TokenRecord
}

type accountWrite struct {
	key    AccountKey
	record AccountRecord
	remove bool
}

// Changeset collects the writes of one state transition. Writes to the same
// key are applied in order, the last one wins.
type Changeset struct {
	tokens   []tokenWrite
	accounts []accountWrite
}

// SetToken stores the token record.
func (c *Changeset) SetToken(id TokenID, record TokenRecord) {
	c.tokens = append(c.tokens, tokenWrite{id: id, record: record})
}

// SetAccount stores the account record.
func (c *Changeset) SetAccount(key AccountKey, record AccountRecord) {
	c.accounts = append(c.accounts, accountWrite{key: key, record: record})
}

// RemoveAccount deletes the account record.
func (c *Changeset) RemoveAccount(key AccountKey) {
	c.accounts = append(c.accounts, accountWrite{key: key, remove: true})
}

// Empty reports whether the changeset holds no writes.
func (c *Changeset) Empty() bool {
	return len(c.tokens) == 0 && len(c.accounts) == 0
}
