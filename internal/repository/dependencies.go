package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toloka-partners/featuretrack/internal/domain"
	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
)

const uniqueViolation = "23505"

// DependencyStore reads and writes feature dependency edges.
type DependencyStore struct {
	pool *pgxpool.Pool
}

// NewDependencyStore creates a dependency store over the shared pool.
func NewDependencyStore(pool *pgxpool.Pool) *DependencyStore {
	return &DependencyStore{pool: pool}
}

// ListAll returns every dependency edge. The graph validator needs the full
// edge set for cycle detection, and the graph is small relative to the
// event log, so loading it whole is the simple correct choice.
func (s *DependencyStore) ListAll(ctx context.Context) ([]domain.DependencyEdge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT feature_code, depends_on_code, dep_type, notes, created_at
		FROM feature_dependencies ORDER BY feature_code, depends_on_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.DependencyEdge
	for rows.Next() {
		var edge domain.DependencyEdge
		var depType string
		if err := rows.Scan(&edge.FeatureCode, &edge.DependsOnCode, &depType, &edge.Notes, &edge.CreatedAt); err != nil {
			return nil, err
		}
		edge.DepType = domain.DependencyType(depType)
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// ByFeature returns the outgoing edges of one feature.
func (s *DependencyStore) ByFeature(ctx context.Context, featureCode string) ([]domain.DependencyEdge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT feature_code, depends_on_code, dep_type, notes, created_at
		FROM feature_dependencies WHERE feature_code = $1 ORDER BY depends_on_code`, featureCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.DependencyEdge
	for rows.Next() {
		var edge domain.DependencyEdge
		var depType string
		if err := rows.Scan(&edge.FeatureCode, &edge.DependsOnCode, &depType, &edge.Notes, &edge.CreatedAt); err != nil {
			return nil, err
		}
		edge.DepType = domain.DependencyType(depType)
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// InsertTx writes a validated edge. The primary key backs up the validator
// against the race of two callers adding the same edge concurrently.
func (s *DependencyStore) InsertTx(ctx context.Context, tx pgx.Tx, edge domain.DependencyEdge) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO feature_dependencies (feature_code, depends_on_code, dep_type, notes)
		VALUES ($1, $2, $3, $4)`,
		edge.FeatureCode, edge.DependsOnCode, string(edge.DepType), edge.Notes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperrors.Conflict(apperrors.CodeDuplicateDependency,
			fmt.Sprintf("dependency %s -> %s already exists", edge.FeatureCode, edge.DependsOnCode))
	}
	return err
}
