// Package notification turns domain events into notification records with
// deduplicated recipient lists.
//
// Fan-out runs behind an at-least-once transport, so creation is keyed by
// event id: the unique constraint on notifications.event_id makes a second
// delivery of the same event a no-op instead of a duplicate notification.
package notification

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toloka-partners/featuretrack/internal/domain"
)

const uniqueViolation = "23505"

// ErrAlreadyNotified reports that a notification for the event id exists.
var ErrAlreadyNotified = errors.New("notification already recorded for event")

// Notification is one recorded notification with its recipients.
type Notification struct {
	ID          string           `json:"id"`
	EventID     string           `json:"event_id"`
	EventType   domain.EventType `json:"event_type"`
	SubjectCode string           `json:"subject_code"`
	Message     string           `json:"message"`
	Recipients  []string         `json:"recipients"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Store persists notifications and their recipients.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a notification store over the shared pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create writes the notification and its recipients in one transaction.
// Returns ErrAlreadyNotified when the event id was already fanned out.
func (s *Store) Create(ctx context.Context, n *Notification) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO notifications (id, event_id, event_type, subject_code, message)
			VALUES ($1, $2, $3, $4, $5)`,
			n.ID, n.EventID, string(n.EventType), n.SubjectCode, n.Message)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyNotified
		}
		if err != nil {
			return err
		}
		for _, recipient := range n.Recipients {
			if _, err := tx.Exec(ctx, `
				INSERT INTO notification_recipients (notification_id, recipient)
				VALUES ($1, $2) ON CONFLICT DO NOTHING`, n.ID, recipient); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExistsByEventID reports whether the event has already been fanned out.
func (s *Store) ExistsByEventID(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM notifications WHERE event_id = $1`, eventID).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ByRecipient returns a user's notifications, newest first.
func (s *Store) ByRecipient(ctx context.Context, recipient string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT n.id, n.event_id, n.event_type, n.subject_code, n.message, n.created_at
		FROM notifications n
		JOIN notification_recipients r ON r.notification_id = n.id
		WHERE r.recipient = $1
		ORDER BY n.created_at DESC
		LIMIT $2`, recipient, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var n Notification
		var eventType string
		if err := rows.Scan(&n.ID, &n.EventID, &eventType, &n.SubjectCode, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.EventType = domain.EventType(eventType)
		n.Recipients = []string{recipient}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// RecipientsByEventID returns the recorded recipient set for an event.
func (s *Store) RecipientsByEventID(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.recipient FROM notification_recipients r
		JOIN notifications n ON n.id = r.notification_id
		WHERE n.event_id = $1 ORDER BY r.recipient`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recipients []string
	for rows.Next() {
		var recipient string
		if err := rows.Scan(&recipient); err != nil {
			return nil, err
		}
		recipients = append(recipients, recipient)
	}
	return recipients, rows.Err()
}

// DeleteOlderThan removes notifications past the retention window.
// Recipients go with them via the cascading foreign key.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
