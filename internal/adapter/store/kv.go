package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wayfinder/internal/domain"
)

// KVStore implements domain.ScopedStore on the kv table.
type KVStore struct {
	db *DB
}

var _ domain.ScopedStore = (*KVStore)(nil)

func (s *KVStore) Get(ctx context.Context, scope, key string) ([]byte, error) {
	var value []byte
	err := s.db.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE scope = ? AND key = ?", scope, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewSubSystemError("store", "KVStore.Get", domain.ErrNotFound, scope+"/"+key)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", scope, key, err)
	}
	if s.db.sealer == nil {
		return value, nil
	}
	plain, err := s.db.sealer.Open(string(value))
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", scope, key, err)
	}
	return plain, nil
}

func (s *KVStore) Set(ctx context.Context, scope, key string, value []byte) error {
	if scope == "" || key == "" {
		return domain.NewSubSystemError("store", "KVStore.Set", domain.ErrInvalidInput, "scope and key are required")
	}
	stored := value
	if stored == nil {
		stored = []byte{}
	}
	if s.db.sealer != nil {
		sealed, err := s.db.sealer.Seal(value)
		if err != nil {
			return fmt.Errorf("set %s/%s: %w", scope, key, err)
		}
		stored = []byte(sealed)
	}
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO kv (scope, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		scope, key, stored, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", scope, key, err)
	}
	return nil
}

// Delete removes key from scope. Deleting a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, scope, key string) error {
	if _, err := s.db.db.ExecContext(ctx, "DELETE FROM kv WHERE scope = ? AND key = ?", scope, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", scope, key, err)
	}
	return nil
}

// Keys lists the keys of scope in lexical order.
func (s *KVStore) Keys(ctx context.Context, scope string) ([]string, error) {
	rows, err := s.db.db.QueryContext(ctx, "SELECT key FROM kv WHERE scope = ? ORDER BY key", scope)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", scope, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
