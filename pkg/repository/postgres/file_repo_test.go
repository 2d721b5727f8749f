package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
)

func setupFileRepoTest(t *testing.T) (*FileRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewFileRepository(sqlxDB)

	cleanup := func() {
		db.Close()
	}

	return repo, mock, cleanup
}

func TestFileRepository_ListBySnapshot(t *testing.T) {
	repo, mock, cleanup := setupFileRepoTest(t)
	defer cleanup()

	snapshotID := uuid.New()
	orgID := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "snapshot_id", "organization_id", "file_name", "file_path",
		"file_hash", "category", "file_size", "created_at",
	}).
		AddRow(uuid.New(), snapshotID, orgID, "policy.pdf", "data/docs/x/policy.pdf",
			"abc123", "Security Logs", int64(2048), now.Add(-time.Minute)).
		AddRow(uuid.New(), snapshotID, orgID, "notes.txt", "data/docs/x/notes.txt",
			nil, nil, nil, now)

	mock.ExpectQuery("SELECT (.+) FROM evidence_files WHERE snapshot_id").
		WithArgs(snapshotID, orgID).
		WillReturnRows(rows)

	files, err := repo.ListBySnapshot(context.Background(), snapshotID, orgID)
	assert.NoError(t, err)
	assert.Len(t, files, 2)

	assert.Equal(t, "policy.pdf", files[0].FileName)
	assert.True(t, files[0].FileHash.Valid)
	assert.Equal(t, "abc123", files[0].FileHash.String)

	// Nullable columns come back invalid, not zero-valued
	assert.False(t, files[1].FileHash.Valid)
	assert.False(t, files[1].Category.Valid)
	assert.False(t, files[1].FileSize.Valid)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileRepository_ListBySnapshot_Empty(t *testing.T) {
	repo, mock, cleanup := setupFileRepoTest(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM evidence_files WHERE snapshot_id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "snapshot_id", "organization_id", "file_name", "file_path",
			"file_hash", "category", "file_size", "created_at",
		}))

	files, err := repo.ListBySnapshot(context.Background(), uuid.New(), uuid.New())
	assert.NoError(t, err)
	assert.Empty(t, files)
}

func TestFileRepository_ListBySnapshot_Error(t *testing.T) {
	repo, mock, cleanup := setupFileRepoTest(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM evidence_files WHERE snapshot_id").
		WillReturnError(sql.ErrConnDone)

	_, err := repo.ListBySnapshot(context.Background(), uuid.New(), uuid.New())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list evidence files")
}
