package domain

import "context"

// ScopedStore is a persistent key-value store partitioned by scope.
// Get returns ErrNotFound for a missing key.
type ScopedStore interface {
	Get(ctx context.Context, scope, key string) ([]byte, error)
	Set(ctx context.Context, scope, key string, value []byte) error
	Delete(ctx context.Context, scope, key string) error
	Keys(ctx context.Context, scope string) ([]string, error)
}

// LedgerArchive mirrors resolved actions into durable storage.
type LedgerArchive interface {
	Append(ctx context.Context, entry LedgerEntry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]LedgerEntry, error)
}
