// Package repository holds the pgx-backed stores for the current-state
// tables. The event log is the source of truth; these tables are the
// read/write projection the command surface and notification fan-out work
// against.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toloka-partners/featuretrack/internal/domain"
	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Feature is the current-state row for a feature.
type Feature struct {
	Code           string
	Name           string
	ReleaseCode    string
	PlanningStatus domain.PlanningStatus
	CreatedBy      string
	Assignee       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// FeatureStore reads and writes feature rows.
type FeatureStore struct {
	pool *pgxpool.Pool
}

// NewFeatureStore creates a feature store over the shared pool.
func NewFeatureStore(pool *pgxpool.Pool) *FeatureStore {
	return &FeatureStore{pool: pool}
}

const featureColumns = `code, name, COALESCE(release_code, ''), planning_status, created_by, assignee, created_at, updated_at, deleted_at`

func scanFeature(row pgx.Row) (*Feature, error) {
	var f Feature
	var status string
	if err := row.Scan(&f.Code, &f.Name, &f.ReleaseCode, &status, &f.CreatedBy,
		&f.Assignee, &f.CreatedAt, &f.UpdatedAt, &f.DeletedAt); err != nil {
		return nil, err
	}
	f.PlanningStatus = domain.PlanningStatus(status)
	return &f, nil
}

// Get returns a feature by code. Soft-deleted features are still returned
// so event history stays resolvable; callers check DeletedAt when it matters.
func (s *FeatureStore) Get(ctx context.Context, code string) (*Feature, error) {
	return s.get(ctx, s.pool, code)
}

// GetTx is Get inside a caller-owned transaction.
func (s *FeatureStore) GetTx(ctx context.Context, tx pgx.Tx, code string) (*Feature, error) {
	return s.get(ctx, tx, code)
}

func (s *FeatureStore) get(ctx context.Context, q querier, code string) (*Feature, error) {
	feature, err := scanFeature(q.QueryRow(ctx,
		`SELECT `+featureColumns+` FROM features WHERE code = $1`, code))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound(apperrors.CodeFeatureNotFound,
			fmt.Sprintf("feature %s not found", code))
	}
	if err != nil {
		return nil, err
	}
	return feature, nil
}

// UpsertTx creates or updates the feature row and clears any soft delete.
func (s *FeatureStore) UpsertTx(ctx context.Context, tx pgx.Tx, f *Feature) error {
	var releaseCode *string
	if f.ReleaseCode != "" {
		releaseCode = &f.ReleaseCode
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO features (code, name, release_code, planning_status, created_by, assignee)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			release_code = EXCLUDED.release_code,
			assignee = EXCLUDED.assignee,
			updated_at = now(),
			deleted_at = NULL`,
		f.Code, f.Name, releaseCode, string(f.PlanningStatus), f.CreatedBy, f.Assignee,
	)
	return err
}

// SoftDeleteTx marks the feature deleted without losing its participants,
// which later notifications may still need.
func (s *FeatureStore) SoftDeleteTx(ctx context.Context, tx pgx.Tx, code string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE features SET deleted_at = now(), updated_at = now() WHERE code = $1 AND deleted_at IS NULL`, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(apperrors.CodeFeatureNotFound,
			fmt.Sprintf("feature %s not found", code))
	}
	return nil
}

// SetPlanningStatusTx updates the planning status column.
func (s *FeatureStore) SetPlanningStatusTx(ctx context.Context, tx pgx.Tx, code string, status domain.PlanningStatus) error {
	tag, err := tx.Exec(ctx,
		`UPDATE features SET planning_status = $2, updated_at = now() WHERE code = $1 AND deleted_at IS NULL`,
		code, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(apperrors.CodeFeatureNotFound,
			fmt.Sprintf("feature %s not found", code))
	}
	return nil
}

// Exists reports whether a non-deleted feature with the code exists.
func (s *FeatureStore) Exists(ctx context.Context, code string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM features WHERE code = $1 AND deleted_at IS NULL`, code).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ByRelease returns the non-deleted features linked to a release.
func (s *FeatureStore) ByRelease(ctx context.Context, releaseCode string) ([]*Feature, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+featureColumns+` FROM features WHERE release_code = $1 AND deleted_at IS NULL ORDER BY code`,
		releaseCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var features []*Feature
	for rows.Next() {
		feature, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		features = append(features, feature)
	}
	return features, rows.Err()
}
