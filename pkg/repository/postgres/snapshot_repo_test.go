package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"snapseal/pkg/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
)

func setupSnapshotRepoTest(t *testing.T) (*SnapshotRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewSnapshotRepository(sqlxDB)

	cleanup := func() {
		db.Close()
	}

	return repo, mock, cleanup
}

func snapshotRows(s *models.EvidenceSnapshot) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "organization_id", "name", "status", "locked_at", "created_at", "updated_at",
	}).AddRow(s.ID, s.OrganizationID, s.Name, s.Status, s.LockedAt, s.CreatedAt, s.UpdatedAt)
}

func TestSnapshotRepository_Create(t *testing.T) {
	repo, mock, cleanup := setupSnapshotRepoTest(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	snapshot := &models.EvidenceSnapshot{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Name:           "SOC2 2025 H1",
		Status:         models.SnapshotStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	mock.ExpectExec("INSERT INTO evidence_snapshots").
		WithArgs(
			snapshot.ID,
			snapshot.OrganizationID,
			snapshot.Name,
			snapshot.Status,
			snapshot.LockedAt,
			snapshot.CreatedAt,
			snapshot.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(ctx, snapshot)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepository_Create_Error(t *testing.T) {
	repo, mock, cleanup := setupSnapshotRepoTest(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO evidence_snapshots").
		WillReturnError(sql.ErrConnDone)

	err := repo.Create(context.Background(), &models.EvidenceSnapshot{ID: uuid.New()})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create snapshot")
}

func TestSnapshotRepository_GetByID(t *testing.T) {
	repo, mock, cleanup := setupSnapshotRepoTest(t)
	defer cleanup()

	now := time.Now()
	snapshot := &models.EvidenceSnapshot{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Name:           "SOC2 2025 H1",
		Status:         models.SnapshotStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	mock.ExpectQuery("SELECT (.+) FROM evidence_snapshots WHERE id").
		WithArgs(snapshot.ID, snapshot.OrganizationID).
		WillReturnRows(snapshotRows(snapshot))

	got, err := repo.GetByID(context.Background(), snapshot.ID, snapshot.OrganizationID)
	assert.NoError(t, err)
	assert.Equal(t, snapshot.ID, got.ID)
	assert.Equal(t, models.SnapshotStatusOpen, got.Status)
	assert.Nil(t, got.LockedAt)
}

func TestSnapshotRepository_GetByID_NotFound(t *testing.T) {
	repo, mock, cleanup := setupSnapshotRepoTest(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM evidence_snapshots WHERE id").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, models.ErrSnapshotNotFound)
}

func TestSnapshotRepository_GetByIDForUpdate(t *testing.T) {
	repo, mock, cleanup := setupSnapshotRepoTest(t)
	defer cleanup()

	now := time.Now()
	snapshot := &models.EvidenceSnapshot{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Name:           "ISO 27001",
		Status:         models.SnapshotStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	mock.ExpectQuery("SELECT (.+) FROM evidence_snapshots WHERE id (.+) FOR UPDATE").
		WithArgs(snapshot.ID, snapshot.OrganizationID).
		WillReturnRows(snapshotRows(snapshot))

	got, err := repo.GetByIDForUpdate(context.Background(), snapshot.ID, snapshot.OrganizationID)
	assert.NoError(t, err)
	assert.Equal(t, snapshot.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepository_MarkLocked(t *testing.T) {
	repo, mock, cleanup := setupSnapshotRepoTest(t)
	defer cleanup()

	id := uuid.New()
	orgID := uuid.New()
	lockedAt := time.Now()

	mock.ExpectExec("UPDATE evidence_snapshots").
		WithArgs(models.SnapshotStatusLocked, lockedAt, id, orgID, models.SnapshotStatusOpen).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkLocked(context.Background(), id, orgID, lockedAt)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepository_MarkLocked_AlreadyLocked(t *testing.T) {
	repo, mock, cleanup := setupSnapshotRepoTest(t)
	defer cleanup()

	// Guarded update matches zero rows when status is no longer open
	mock.ExpectExec("UPDATE evidence_snapshots").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkLocked(context.Background(), uuid.New(), uuid.New(), time.Now())
	assert.ErrorIs(t, err, models.ErrSnapshotLocked)
}

func TestSnapshotRepository_List(t *testing.T) {
	repo, mock, cleanup := setupSnapshotRepoTest(t)
	defer cleanup()

	orgID := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "organization_id", "name", "status", "locked_at", "created_at", "updated_at",
	}).
		AddRow(uuid.New(), orgID, "newer", models.SnapshotStatusOpen, nil, now, now).
		AddRow(uuid.New(), orgID, "older", models.SnapshotStatusLocked, now, now.Add(-time.Hour), now)

	mock.ExpectQuery("SELECT (.+) FROM evidence_snapshots WHERE organization_id").
		WithArgs(orgID, 10).
		WillReturnRows(rows)

	snapshots, err := repo.List(context.Background(), orgID, 10, 0)
	assert.NoError(t, err)
	assert.Len(t, snapshots, 2)
	assert.Equal(t, "newer", snapshots[0].Name)
}
