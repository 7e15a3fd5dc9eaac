// Package eventlog persists the append-only event log and replays it.
//
// Events are versioned per aggregate code: the first event for an aggregate
// gets version 1 and every later one increments by exactly one. The unique
// constraint on (aggregate_code, version) is what makes concurrent appends
// safe; the store computes the next version inside the insert itself and
// retries on conflict rather than locking.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toloka-partners/featuretrack/internal/domain"
	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
)

// appendRetries bounds how many times Append retries after losing a version
// race. Contention is per aggregate and short-lived, so a handful is plenty.
const appendRetries = 5

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so appends can run
// standalone or inside a caller-owned transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and appends event log records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an event log store over the shared pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Append writes the event with the next version for its aggregate and
// returns the stored event. The version in the input is ignored.
func (s *Store) Append(ctx context.Context, event *domain.Event) (*domain.Event, error) {
	return s.append(ctx, s.pool, event)
}

// AppendTx is Append running inside a caller-owned transaction, so the event
// record commits or rolls back together with the state change it describes.
func (s *Store) AppendTx(ctx context.Context, tx pgx.Tx, event *domain.Event) (*domain.Event, error) {
	return s.append(ctx, tx, event)
}

func (s *Store) append(ctx context.Context, q querier, event *domain.Event) (*domain.Event, error) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	metadata := domain.Metadata{
		EventType:     event.EventType,
		AggregateCode: event.AggregateCode,
		AggregateType: event.AggregateType,
	}

	for attempt := 0; attempt < appendRetries; attempt++ {
		var version int64
		err := q.QueryRow(ctx, `
			INSERT INTO event_log (event_id, event_type, aggregate_code, aggregate_type, payload, metadata, version, created_at)
			SELECT $1, $2, $3, $4, $5, $6, COALESCE(MAX(version), 0) + 1, $7
			FROM event_log WHERE aggregate_code = $3
			RETURNING version`,
			event.EventID, string(event.EventType), event.AggregateCode, string(event.AggregateType),
			event.Payload, metadataJSON(metadata, 0), event.CreatedAt,
		).Scan(&version)
		if err == nil {
			event.Version = version
			event.Metadata = metadata
			event.Metadata.Version = version
			if err := s.stampMetadataVersion(ctx, q, event.EventID, event.Metadata); err != nil {
				return nil, err
			}
			return event, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "event_log_pkey" {
				return nil, apperrors.Conflict(apperrors.CodeEventAppendFail,
					fmt.Sprintf("event %s already appended", event.EventID))
			}
			// Lost the version race for this aggregate, recompute and retry.
			continue
		}
		return nil, fmt.Errorf("append event %s: %w", event.EventID, err)
	}
	return nil, apperrors.Unavailable(apperrors.CodeEventAppendFail,
		fmt.Sprintf("could not append event for aggregate %s after %d attempts", event.AggregateCode, appendRetries))
}

// stampMetadataVersion rewrites the stored metadata once the version is
// known. The version cannot be embedded up front because it is computed by
// the insert itself.
func (s *Store) stampMetadataVersion(ctx context.Context, q querier, eventID string, metadata domain.Metadata) error {
	_, err := q.Exec(ctx, `UPDATE event_log SET metadata = $2 WHERE event_id = $1`,
		eventID, metadataJSON(metadata, metadata.Version))
	return err
}

func metadataJSON(metadata domain.Metadata, version int64) []byte {
	metadata.Version = version
	data, _ := metadata.ToJSON()
	return data
}

// ByID fetches a single event.
func (s *Store) ByID(ctx context.Context, eventID string) (*domain.Event, error) {
	events, err := s.query(ctx, `WHERE event_id = $1`, eventID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, apperrors.NotFound(apperrors.CodeEventNotFound,
			fmt.Sprintf("event %s not found", eventID))
	}
	return events[0], nil
}

// ByAggregateCode returns the full per-aggregate history in version order.
func (s *Store) ByAggregateCode(ctx context.Context, aggregateCode string) ([]*domain.Event, error) {
	return s.query(ctx, `WHERE aggregate_code = $1`, aggregateCode)
}

// ByAggregateType returns all events for one aggregate type in append order.
func (s *Store) ByAggregateType(ctx context.Context, aggregateType domain.AggregateType) ([]*domain.Event, error) {
	return s.query(ctx, `WHERE aggregate_type = $1`, string(aggregateType))
}

// ByEventType returns all events of one type in append order.
func (s *Store) ByEventType(ctx context.Context, eventType domain.EventType) ([]*domain.Event, error) {
	return s.query(ctx, `WHERE event_type = $1`, string(eventType))
}

// ByCreatedAtRange returns events created within [from, to] in append order.
func (s *Store) ByCreatedAtRange(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	return s.query(ctx, `WHERE created_at >= $1 AND created_at <= $2`, from, to)
}

// VersionsAfter returns an aggregate's events with version greater than the
// given watermark, in version order. Used for incremental catch-up.
func (s *Store) VersionsAfter(ctx context.Context, aggregateCode string, version int64) ([]*domain.Event, error) {
	return s.query(ctx, `WHERE aggregate_code = $1 AND version > $2`, aggregateCode, version)
}

// MaxVersion returns the highest version for the aggregate. The bool is
// false when the aggregate has no events at all.
func (s *Store) MaxVersion(ctx context.Context, aggregateCode string) (int64, bool, error) {
	var version *int64
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(version) FROM event_log WHERE aggregate_code = $1`, aggregateCode,
	).Scan(&version)
	if err != nil {
		return 0, false, err
	}
	if version == nil {
		return 0, false, nil
	}
	return *version, true, nil
}

func (s *Store) query(ctx context.Context, where string, args ...any) ([]*domain.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, event_type, aggregate_code, aggregate_type, payload, metadata, version, created_at
		FROM event_log `+where+` ORDER BY created_at ASC, version ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		var (
			event         domain.Event
			eventType     string
			aggregateType string
			metadata      []byte
		)
		if err := rows.Scan(&event.EventID, &eventType, &event.AggregateCode, &aggregateType,
			&event.Payload, &metadata, &event.Version, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.EventType = domain.EventType(eventType)
		event.AggregateType = domain.AggregateType(aggregateType)
		if err := event.Metadata.FromJSON(metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for event %s: %w", event.EventID, err)
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
