package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"snapseal/pkg/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SnapshotRepository implements repository.SnapshotRepository for PostgreSQL
type SnapshotRepository struct {
	db sqlx.ExtContext
}

// NewSnapshotRepository creates a new PostgreSQL snapshot repository
func NewSnapshotRepository(db sqlx.ExtContext) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create creates a new snapshot
func (r *SnapshotRepository) Create(ctx context.Context, snapshot *models.EvidenceSnapshot) error {
	query := `
		INSERT INTO evidence_snapshots (id, organization_id, name, status, locked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		snapshot.ID,
		snapshot.OrganizationID,
		snapshot.Name,
		snapshot.Status,
		snapshot.LockedAt,
		snapshot.CreatedAt,
		snapshot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	return nil
}

// GetByID retrieves a snapshot scoped to the organization. A cross-tenant id
// is indistinguishable from an absent one.
func (r *SnapshotRepository) GetByID(ctx context.Context, id, organizationID uuid.UUID) (*models.EvidenceSnapshot, error) {
	var snapshot models.EvidenceSnapshot
	query := `
		SELECT id, organization_id, name, status, locked_at, created_at, updated_at
		FROM evidence_snapshots
		WHERE id = $1 AND organization_id = $2
	`
	err := sqlx.GetContext(ctx, r.db, &snapshot, query, id, organizationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &snapshot, nil
}

// GetByIDForUpdate retrieves a snapshot with a row-level lock so concurrent
// lock transitions on the same row serialize.
func (r *SnapshotRepository) GetByIDForUpdate(ctx context.Context, id, organizationID uuid.UUID) (*models.EvidenceSnapshot, error) {
	var snapshot models.EvidenceSnapshot
	query := `
		SELECT id, organization_id, name, status, locked_at, created_at, updated_at
		FROM evidence_snapshots
		WHERE id = $1 AND organization_id = $2
		FOR UPDATE
	`
	err := sqlx.GetContext(ctx, r.db, &snapshot, query, id, organizationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot for update: %w", err)
	}
	return &snapshot, nil
}

// List retrieves the organization's snapshots, newest first
func (r *SnapshotRepository) List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*models.EvidenceSnapshot, error) {
	snapshots := make([]*models.EvidenceSnapshot, 0)

	query := `
		SELECT id, organization_id, name, status, locked_at, created_at, updated_at
		FROM evidence_snapshots
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`
	args := []interface{}{organizationID}
	argCount := 2

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, limit)
		argCount++
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, offset)
	}

	err := sqlx.SelectContext(ctx, r.db, &snapshots, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	return snapshots, nil
}

// MarkLocked flips status open -> locked. The WHERE clause guards on the
// current status: a concurrent or repeated lock affects zero rows and
// surfaces ErrSnapshotLocked rather than overwriting the first transition.
func (r *SnapshotRepository) MarkLocked(ctx context.Context, id, organizationID uuid.UUID, lockedAt time.Time) error {
	query := `
		UPDATE evidence_snapshots
		SET status = $1, locked_at = $2, updated_at = $2
		WHERE id = $3 AND organization_id = $4 AND status = $5
	`
	result, err := r.db.ExecContext(ctx, query,
		models.SnapshotStatusLocked,
		lockedAt,
		id,
		organizationID,
		models.SnapshotStatusOpen,
	)
	if err != nil {
		return fmt.Errorf("failed to lock snapshot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read lock result: %w", err)
	}
	if rows == 0 {
		return models.ErrSnapshotLocked
	}
	return nil
}
