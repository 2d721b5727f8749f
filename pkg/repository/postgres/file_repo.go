package postgres

import (
	"context"
	"fmt"

	"snapseal/pkg/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// FileRepository implements repository.FileRepository for PostgreSQL
type FileRepository struct {
	db sqlx.ExtContext
}

// NewFileRepository creates a new PostgreSQL evidence file repository
func NewFileRepository(db sqlx.ExtContext) *FileRepository {
	return &FileRepository{db: db}
}

// ListBySnapshot returns the snapshot's file rows ordered by creation time
// then id. The ordering is part of the manifest contract: it is the stable
// insertion order the canonical hash is computed over.
func (r *FileRepository) ListBySnapshot(ctx context.Context, snapshotID, organizationID uuid.UUID) ([]models.EvidenceFile, error) {
	files := make([]models.EvidenceFile, 0)

	query := `
		SELECT id, snapshot_id, organization_id, file_name, file_path, file_hash, category, file_size, created_at
		FROM evidence_files
		WHERE snapshot_id = $1 AND organization_id = $2
		ORDER BY created_at ASC, id ASC
	`
	err := sqlx.SelectContext(ctx, r.db, &files, query, snapshotID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence files: %w", err)
	}

	return files, nil
}
