package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"snapseal/pkg/models"
)

// Database is the interface that all database implementations must satisfy
type Database interface {
	// Connection management
	Connect(ctx context.Context, connString string) error
	Close() error
	Ping(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction. The lock transition runs
// inside one so the manifest write and the status flip commit together.
type Transaction interface {
	Commit() error
	Rollback() error
	Snapshots() SnapshotRepository
	Files() FileRepository
}

// SnapshotRepository defines operations for snapshot data access. Every
// lookup is scoped by (id, organizationID): tenant isolation is enforced by
// requiring the pair to match, never by id alone.
type SnapshotRepository interface {
	// Create inserts a new snapshot row with status open
	Create(ctx context.Context, snapshot *models.EvidenceSnapshot) error

	// GetByID retrieves a snapshot scoped to the organization
	GetByID(ctx context.Context, id, organizationID uuid.UUID) (*models.EvidenceSnapshot, error)

	// GetByIDForUpdate retrieves a snapshot with a row-level lock. Only
	// meaningful inside a transaction; it serializes concurrent lock
	// attempts on the same snapshot.
	GetByIDForUpdate(ctx context.Context, id, organizationID uuid.UUID) (*models.EvidenceSnapshot, error)

	// List retrieves the organization's snapshots, newest first
	List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*models.EvidenceSnapshot, error)

	// MarkLocked flips status open -> locked. The update is guarded on
	// status = open so a second lock attempt affects zero rows and fails
	// with ErrSnapshotLocked instead of silently overwriting.
	MarkLocked(ctx context.Context, id, organizationID uuid.UUID, lockedAt time.Time) error
}

// FileRepository defines read access to evidence file metadata rows. Rows
// are owned by the external ingestion path; this engine never writes them.
type FileRepository interface {
	// ListBySnapshot returns the snapshot's file rows in stable insertion
	// order. Order matters: it feeds the canonical serialization.
	ListBySnapshot(ctx context.Context, snapshotID, organizationID uuid.UUID) ([]models.EvidenceFile, error)
}

// Repository provides access to all repository interfaces
type Repository struct {
	Snapshots SnapshotRepository
	Files     FileRepository
	db        Database
}

// NewRepository creates a new repository with the given database implementation
func NewRepository(db Database) *Repository {
	return &Repository{db: db}
}

// BeginTx starts a transaction
func (r *Repository) BeginTx(ctx context.Context) (Transaction, error) {
	return r.db.BeginTx(ctx)
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
