package ledger

// SeedToken is a test helper that stores a token record directly when using the in-memory repository.
func SeedToken(r Repository, id TokenID, record TokenRecord) {
	if mem, ok := r.(*memoryRepository); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.tokens[id] = record
	}
}

// SeedAccount is a test helper that stores an account record directly when using the in-memory repository.
func SeedAccount(r Repository, key AccountKey, record AccountRecord) {
	if mem, ok := r.(*memoryRepository); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.accounts[key] = record
	}
}
