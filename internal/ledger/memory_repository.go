package ledger

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu       sync.RWMutex
	tokens   map[TokenID]TokenRecord
	accounts map[AccountKey]AccountRecord
}

// NewMemoryRepository creates a concurrency-safe in-memory repository useful
// for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		tokens:   make(map[TokenID]TokenRecord),
		accounts: make(map[AccountKey]AccountRecord),
	}
}

func (r *memoryRepository) Token(_ context.Context, id TokenID) (TokenRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.tokens[id]
	if !ok {
		return TokenRecord{}, ErrTokenNotFound
	}
	return record, nil
}

func (r *memoryRepository) Account(_ context.Context, key AccountKey) (AccountRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.accounts[key]
	if !ok {
		return AccountRecord{}, ErrAccountNotFound
	}
	return record, nil
}

func (r *memoryRepository) Holders(_ context.Context, token TokenID) (map[AccountID]AccountRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.tokens[token]; !ok {
		return nil, ErrTokenNotFound
	}
	out := make(map[AccountID]AccountRecord)
	for key, record := range r.accounts {
		if key.Token == token {
			out[key.Account] = record
		}
	}
	return out, nil
}

func (r *memoryRepository) NextTokenID(_ context.Context) (TokenID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var highest TokenID
	for id := range r.tokens {
		if id > highest {
			highest = id
		}
	}
	return highest + 1, nil
}

func (r *memoryRepository) Apply(_ context.Context, cs *Changeset) error {
	if cs == nil || cs.Empty() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range cs.tokens {
		r.tokens[w.id] = w.record
	}
	for _, w := range cs.accounts {
		if w.remove {
			delete(r.accounts, w.key)
			continue
		}
		r.accounts[w.key] = w.record
	}
	return nil
}
