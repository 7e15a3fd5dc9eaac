// Package usecase implements the command surface. Each use case validates
// against domain rules, then writes the state change, the event log record,
// and the fan-out job in one transaction, so either all of them happen or
// none do.
package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toloka-partners/featuretrack/internal/domain"
)

// EventPublisher hands an appended event to the at-least-once transport.
// Publishing shares the caller's transaction: an event record without its
// fan-out job, or the reverse, cannot exist.
type EventPublisher interface {
	PublishFanoutTx(ctx context.Context, tx pgx.Tx, eventID string) error
}

// CommandResult is the uniform outcome of a state-changing command. It is
// what the idempotency engine caches, so a replayed call returns exactly
// what the original returned.
type CommandResult struct {
	EventID  string `json:"event_id"`
	Version  int64  `json:"version"`
	Replayed bool   `json:"replayed,omitempty"`
}

func (r CommandResult) toJSON() ([]byte, error) {
	return json.Marshal(r)
}

func commandResultFromJSON(data []byte) (*CommandResult, error) {
	var result CommandResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode command result: %w", err)
	}
	return &result, nil
}

// withTx runs fn in a transaction on the shared pool.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, pool, fn)
}

func newEventID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate event id: %w", err)
	}
	return id.String(), nil
}

// eventAppender is the slice of the event log store the use cases need.
type eventAppender interface {
	AppendTx(ctx context.Context, tx pgx.Tx, event *domain.Event) (*domain.Event, error)
}
