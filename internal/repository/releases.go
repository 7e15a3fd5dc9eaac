package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toloka-partners/featuretrack/internal/domain"
	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
)

// Release is the current-state row for a release.
type Release struct {
	Code      string
	Name      string
	Status    domain.ReleaseStatus
	Owner     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReleaseStore reads and writes release rows.
type ReleaseStore struct {
	pool *pgxpool.Pool
}

// NewReleaseStore creates a release store over the shared pool.
func NewReleaseStore(pool *pgxpool.Pool) *ReleaseStore {
	return &ReleaseStore{pool: pool}
}

// Get returns a release by code.
func (s *ReleaseStore) Get(ctx context.Context, code string) (*Release, error) {
	return s.get(ctx, s.pool, code)
}

// GetTx is Get inside a caller-owned transaction.
func (s *ReleaseStore) GetTx(ctx context.Context, tx pgx.Tx, code string) (*Release, error) {
	return s.get(ctx, tx, code)
}

func (s *ReleaseStore) get(ctx context.Context, q querier, code string) (*Release, error) {
	var r Release
	var status string
	err := q.QueryRow(ctx,
		`SELECT code, name, status, owner, created_at, updated_at FROM releases WHERE code = $1`, code,
	).Scan(&r.Code, &r.Name, &status, &r.Owner, &r.CreatedAt, &r.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound(apperrors.CodeReleaseNotFound,
			fmt.Sprintf("release %s not found", code))
	}
	if err != nil {
		return nil, err
	}
	r.Status = domain.ReleaseStatus(status)
	return &r, nil
}

// Create inserts a release row.
func (s *ReleaseStore) Create(ctx context.Context, r *Release) error {
	if r.Status == "" {
		r.Status = domain.ReleaseDraft
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO releases (code, name, status, owner) VALUES ($1, $2, $3, $4)`,
		r.Code, r.Name, string(r.Status), r.Owner)
	return err
}

// SetStatusTx updates the status column.
func (s *ReleaseStore) SetStatusTx(ctx context.Context, tx pgx.Tx, code string, status domain.ReleaseStatus) error {
	tag, err := tx.Exec(ctx,
		`UPDATE releases SET status = $2, updated_at = now() WHERE code = $1`, code, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(apperrors.CodeReleaseNotFound,
			fmt.Sprintf("release %s not found", code))
	}
	return nil
}
