// Package dedup implements the deduplication store and the idempotency
// engine built on top of it.
//
// Every exactly-once guarantee in the service reduces to one primitive: an
// atomic insert-if-absent on the composite key (operation id, operation
// class). API-level idempotency keys and message-transport delivery ids live
// in separate classes so identical strings cannot collide.
package dedup

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Well-known operation classes.
const (
	// ClassAPI namespaces caller-supplied idempotency keys on the command
	// surface.
	ClassAPI = "api"

	// ClassMessage namespaces transport delivery ids checked by listeners.
	ClassMessage = "message"
)

// Key identifies one logical operation within a class.
type Key struct {
	OperationID string
	Class       string
}

// Store is the dual-namespace deduplication store. Claim must be a single
// atomic conditional insert, never read-then-write, so concurrent callers
// racing on the same key have exactly one winner.
type Store interface {
	// Claim attempts to record the key. Returns true iff this call created
	// the record; the winner proceeds with side effects, losers must not.
	Claim(ctx context.Context, key Key, processedAt, expiresAt time.Time, result []byte) (bool, error)

	// Exists reports whether the key has been claimed, with no side effect.
	Exists(ctx context.Context, key Key) (bool, error)

	// GetResult returns the cached result when present and not expired.
	GetResult(ctx context.Context, key Key, now time.Time) ([]byte, bool, error)

	// UpdateResult back-fills the result after the guarded work completes.
	UpdateResult(ctx context.Context, key Key, result []byte) error

	// Release removes a claim whose guarded work failed, so an immediate
	// retry can re-execute instead of waiting out the result grace window.
	Release(ctx context.Context, key Key) error

	// SweepExpired deletes records whose expiry has passed.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// PostgresStore implements Store on the processed_operations table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed deduplication store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Claim inserts the key if absent. ON CONFLICT DO NOTHING makes the race
// outcome visible through the affected-row count: 1 row means this caller
// won, 0 rows means the key was already claimed.
func (s *PostgresStore) Claim(ctx context.Context, key Key, processedAt, expiresAt time.Time, result []byte) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO processed_operations (operation_id, operation_class, processed_at, expires_at, result)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (operation_id, operation_class) DO NOTHING`,
		key.OperationID, key.Class, processedAt, expiresAt, result,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Exists reports whether the key has been claimed.
func (s *PostgresStore) Exists(ctx context.Context, key Key) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `
		SELECT 1 FROM processed_operations
		WHERE operation_id = $1 AND operation_class = $2`,
		key.OperationID, key.Class,
	).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetResult returns the cached result if it is set and not expired.
func (s *PostgresStore) GetResult(ctx context.Context, key Key, now time.Time) ([]byte, bool, error) {
	var result []byte
	err := s.pool.QueryRow(ctx, `
		SELECT result FROM processed_operations
		WHERE operation_id = $1 AND operation_class = $2
		  AND result IS NOT NULL AND expires_at > $3`,
		key.OperationID, key.Class, now,
	).Scan(&result)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

// UpdateResult overwrites the stored result for an existing claim.
func (s *PostgresStore) UpdateResult(ctx context.Context, key Key, result []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE processed_operations SET result = $3
		WHERE operation_id = $1 AND operation_class = $2`,
		key.OperationID, key.Class, result,
	)
	return err
}

// Release drops a claim whose work did not complete.
func (s *PostgresStore) Release(ctx context.Context, key Key) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM processed_operations
		WHERE operation_id = $1 AND operation_class = $2`,
		key.OperationID, key.Class,
	)
	return err
}

// SweepExpired deletes records whose TTL has elapsed.
func (s *PostgresStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM processed_operations WHERE expires_at <= $1`, now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// compile-time check
var _ Store = (*PostgresStore)(nil)
