// Package snapshot implements the evidence snapshot lifecycle: creating
// snapshots, locking them behind a signed manifest, re-verifying locked
// snapshots against object storage, and exporting evidence packages.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"snapseal/logging"
	"snapseal/pkg/cache"
	"snapseal/pkg/canonical"
	"snapseal/pkg/integrity"
	"snapseal/pkg/manifest"
	"snapseal/pkg/models"
	"snapseal/pkg/repository"
	"snapseal/pkg/storage"
)

const (
	manifestFileName = "MANIFEST.json"
	storageRoot      = "data/docs"

	defaultListLimit = 50
	maxListLimit     = 200
)

// ManifestFolder returns the storage folder for a snapshot's artifacts
func ManifestFolder(snapshotID uuid.UUID) string {
	return storageRoot + "/" + snapshotID.String()
}

// ManifestPath returns the full storage path of a snapshot's manifest
func ManifestPath(snapshotID uuid.UUID) string {
	return storage.JoinPath(ManifestFolder(snapshotID), manifestFileName)
}

// Service orchestrates snapshot operations across the metadata store, object
// storage, the manifest cache and the integrity signer.
type Service struct {
	repo    *repository.Repository
	store   storage.ObjectStore
	cache   cache.ManifestCache
	signer  *integrity.Signer
	builder *manifest.Builder
	logger  *logging.Logger
	now     func() time.Time
}

// NewService creates a snapshot service
func NewService(repo *repository.Repository, store storage.ObjectStore, manifestCache cache.ManifestCache, signer *integrity.Signer) *Service {
	return &Service{
		repo:    repo,
		store:   store,
		cache:   manifestCache,
		signer:  signer,
		builder: manifest.NewBuilder(signer),
		logger:  logging.GetLogger(),
		now:     time.Now,
	}
}

// NewServiceWithClock creates a service with an injected clock for tests
func NewServiceWithClock(repo *repository.Repository, store storage.ObjectStore, manifestCache cache.ManifestCache, signer *integrity.Signer, now func() time.Time) *Service {
	s := NewService(repo, store, manifestCache, signer)
	s.builder = manifest.NewBuilderWithClock(signer, now)
	s.now = now
	return s
}

// CreateSnapshot creates a new open snapshot for the organization
func (s *Service) CreateSnapshot(ctx context.Context, organizationID uuid.UUID, req *models.CreateSnapshotRequest) (*models.EvidenceSnapshot, error) {
	if organizationID == uuid.Nil {
		return nil, models.ErrInvalidOrganizationID
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	snapshot := &models.EvidenceSnapshot{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		Name:           req.Name,
		Status:         models.SnapshotStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Snapshots.Create(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}

	s.logger.Info("Created snapshot %s (%q) for organization %s", snapshot.ID, snapshot.Name, organizationID)
	return snapshot, nil
}

// GetSnapshot retrieves a snapshot scoped to the organization
func (s *Service) GetSnapshot(ctx context.Context, id, organizationID uuid.UUID) (*models.EvidenceSnapshot, error) {
	if organizationID == uuid.Nil {
		return nil, models.ErrInvalidOrganizationID
	}
	return s.repo.Snapshots.GetByID(ctx, id, organizationID)
}

// ListSnapshots retrieves the organization's snapshots, newest first
func (s *Service) ListSnapshots(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*models.EvidenceSnapshot, error) {
	if organizationID == uuid.Nil {
		return nil, models.ErrInvalidOrganizationID
	}

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.Snapshots.List(ctx, organizationID, limit, offset)
}

// LockSnapshot freezes an open snapshot. Inside one transaction it takes a
// row lock on the snapshot, builds and signs the manifest from the file rows
// as they exist at that moment, writes the manifest to object storage, and
// flips the status to locked. Concurrent lock attempts serialize on the row
// lock; the loser observes the locked status and gets ErrSnapshotLocked.
func (s *Service) LockSnapshot(ctx context.Context, id, organizationID uuid.UUID) (*models.SignedManifest, error) {
	if organizationID == uuid.Nil {
		return nil, models.ErrInvalidOrganizationID
	}

	ctx, span := startSnapshotSpan(ctx, "snapshot.lock")
	defer span.End()
	start := s.now()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin lock transaction: %w", err)
	}
	defer tx.Rollback()

	snap, err := tx.Snapshots().GetByIDForUpdate(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	if snap.IsLocked() {
		return nil, models.ErrSnapshotLocked
	}

	rows, err := tx.Files().ListBySnapshot(ctx, id, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence files: %w", err)
	}

	data, err := s.builder.BuildData(id, organizationID, rows)
	if err != nil {
		return nil, err
	}

	signed, err := s.builder.Sign(data)
	if err != nil {
		return nil, err
	}

	manifestBytes, err := canonical.Marshal(signed)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize signed manifest: %w", err)
	}

	// The manifest is durable before the status flips. If the put fails the
	// transaction rolls back and the snapshot stays open.
	path, err := s.store.Put(ctx, ManifestFolder(id), manifestFileName, manifestBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to store manifest: %w", err)
	}

	lockedAt := s.now().UTC()
	if err := tx.Snapshots().MarkLocked(ctx, id, organizationID, lockedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit lock transaction: %w", err)
	}

	if cacheErr := s.cache.Set(ctx, path, manifestBytes); cacheErr != nil {
		s.logger.Warn("Failed to cache manifest for snapshot %s: %v", id, cacheErr)
	}

	recordSnapshotLock(ctx, s.now().Sub(start), len(rows))
	s.logger.Info("Locked snapshot %s with %d files, manifest at %s", id, len(rows), path)

	return &signed, nil
}
