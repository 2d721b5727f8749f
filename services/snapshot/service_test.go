package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapseal/pkg/cache"
	"snapseal/pkg/integrity"
	"snapseal/pkg/models"
	"snapseal/pkg/repository"
	"snapseal/pkg/storage"
)

// fakeMetadataStore is an in-memory stand-in for the postgres repositories.
// MarkLocked keeps the status guard so double-lock behavior matches the
// guarded UPDATE in the real implementation.
type fakeMetadataStore struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*models.EvidenceSnapshot
	files     map[uuid.UUID][]models.EvidenceFile
	pingErr   error
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{
		snapshots: make(map[uuid.UUID]*models.EvidenceSnapshot),
		files:     make(map[uuid.UUID][]models.EvidenceFile),
	}
}

func (f *fakeMetadataStore) Connect(ctx context.Context, connString string) error { return nil }
func (f *fakeMetadataStore) Close() error                                         { return nil }
func (f *fakeMetadataStore) Ping(ctx context.Context) error                       { return f.pingErr }

func (f *fakeMetadataStore) BeginTx(ctx context.Context) (repository.Transaction, error) {
	return &fakeTx{store: f}, nil
}

type fakeTx struct {
	store *fakeMetadataStore
}

func (t *fakeTx) Commit() error                            { return nil }
func (t *fakeTx) Rollback() error                          { return nil }
func (t *fakeTx) Snapshots() repository.SnapshotRepository { return &fakeSnapshotRepo{t.store} }
func (t *fakeTx) Files() repository.FileRepository         { return &fakeFileRepo{t.store} }

type fakeSnapshotRepo struct {
	store *fakeMetadataStore
}

func (r *fakeSnapshotRepo) Create(ctx context.Context, snapshot *models.EvidenceSnapshot) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copied := *snapshot
	r.store.snapshots[snapshot.ID] = &copied
	return nil
}

func (r *fakeSnapshotRepo) GetByID(ctx context.Context, id, organizationID uuid.UUID) (*models.EvidenceSnapshot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	snap, ok := r.store.snapshots[id]
	if !ok || snap.OrganizationID != organizationID {
		return nil, models.ErrSnapshotNotFound
	}
	copied := *snap
	return &copied, nil
}

func (r *fakeSnapshotRepo) GetByIDForUpdate(ctx context.Context, id, organizationID uuid.UUID) (*models.EvidenceSnapshot, error) {
	return r.GetByID(ctx, id, organizationID)
}

func (r *fakeSnapshotRepo) List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*models.EvidenceSnapshot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var result []*models.EvidenceSnapshot
	for _, snap := range r.store.snapshots {
		if snap.OrganizationID == organizationID {
			copied := *snap
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeSnapshotRepo) MarkLocked(ctx context.Context, id, organizationID uuid.UUID, lockedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	snap, ok := r.store.snapshots[id]
	if !ok || snap.OrganizationID != organizationID {
		return models.ErrSnapshotNotFound
	}
	if snap.Status != models.SnapshotStatusOpen {
		return models.ErrSnapshotLocked
	}
	snap.Status = models.SnapshotStatusLocked
	snap.LockedAt = &lockedAt
	snap.UpdatedAt = lockedAt
	return nil
}

type fakeFileRepo struct {
	store *fakeMetadataStore
}

func (r *fakeFileRepo) ListBySnapshot(ctx context.Context, snapshotID, organizationID uuid.UUID) ([]models.EvidenceFile, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var result []models.EvidenceFile
	for _, file := range r.store.files[snapshotID] {
		if file.OrganizationID == organizationID {
			result = append(result, file)
		}
	}
	return result, nil
}

var testClock = func() time.Time {
	return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func sqlString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func sqlInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: true}
}

// flakyStore wraps the in-memory object store with injectable failures so
// tests can exercise storage outages on specific paths or on writes.
type flakyStore struct {
	*storage.MemoryStore
	getErrs map[string]error
	putErr  error
}

func (f *flakyStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err, ok := f.getErrs[path]; ok {
		return nil, err
	}
	return f.MemoryStore.Get(ctx, path)
}

func (f *flakyStore) Put(ctx context.Context, folder, filename string, data []byte) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	return f.MemoryStore.Put(ctx, folder, filename, data)
}

type testEnv struct {
	service *Service
	meta    *fakeMetadataStore
	store   *storage.MemoryStore
	cache   *cache.InMemoryManifestCache
	signer  *integrity.Signer
	repo    *repository.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	meta := newFakeMetadataStore()
	repo := repository.NewRepository(meta)
	repo.Snapshots = &fakeSnapshotRepo{meta}
	repo.Files = &fakeFileRepo{meta}

	store := storage.NewMemoryStore()
	manifestCache := cache.NewInMemoryManifestCache()

	signer, err := integrity.NewSignerWithClock([]byte("test-signing-key"), testClock)
	require.NoError(t, err)

	service := NewServiceWithClock(repo, store, manifestCache, signer, testClock)

	return &testEnv{
		service: service,
		meta:    meta,
		store:   store,
		cache:   manifestCache,
		signer:  signer,
		repo:    repo,
	}
}

// seedSnapshot inserts an open snapshot with evidence files whose content
// lives in the object store and whose hashes match.
func (e *testEnv) seedSnapshot(t *testing.T, organizationID uuid.UUID, fileContents map[string][]byte) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	snapshotID := uuid.New()
	e.meta.snapshots[snapshotID] = &models.EvidenceSnapshot{
		ID:             snapshotID,
		OrganizationID: organizationID,
		Name:           "Q2 SOC2 evidence",
		Status:         models.SnapshotStatusOpen,
		CreatedAt:      testClock(),
		UpdatedAt:      testClock(),
	}

	for name, content := range fileContents {
		path, err := e.store.Put(ctx, "data/docs/"+snapshotID.String()+"/files", name, content)
		require.NoError(t, err)

		hash := integrity.Digest(content)
		size := int64(len(content))
		e.meta.files[snapshotID] = append(e.meta.files[snapshotID], models.EvidenceFile{
			ID:             uuid.New(),
			SnapshotID:     snapshotID,
			OrganizationID: organizationID,
			FileName:       name,
			FilePath:       path,
			FileHash:       sqlString(hash),
			Category:       sqlString("evidence"),
			FileSize:       sqlInt64(size),
			CreatedAt:      testClock(),
		})
	}

	return snapshotID
}

func TestCreateSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	organizationID := uuid.New()

	snapshot, err := env.service.CreateSnapshot(ctx, organizationID, &models.CreateSnapshotRequest{Name: "Annual audit"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, snapshot.ID)
	assert.Equal(t, organizationID, snapshot.OrganizationID)
	assert.Equal(t, "Annual audit", snapshot.Name)
	assert.Equal(t, models.SnapshotStatusOpen, snapshot.Status)
	assert.Nil(t, snapshot.LockedAt)
}

func TestCreateSnapshot_EmptyName(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.CreateSnapshot(context.Background(), uuid.New(), &models.CreateSnapshotRequest{Name: "   "})
	assert.ErrorIs(t, err, models.ErrInvalidSnapshotName)
}

func TestCreateSnapshot_MissingOrganization(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.CreateSnapshot(context.Background(), uuid.Nil, &models.CreateSnapshotRequest{Name: "audit"})
	assert.ErrorIs(t, err, models.ErrInvalidOrganizationID)
}

func TestGetSnapshot_CrossTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	organizationID := uuid.New()
	snapshotID := env.seedSnapshot(t, organizationID, nil)

	// The owning organization sees the snapshot
	_, err := env.service.GetSnapshot(ctx, snapshotID, organizationID)
	require.NoError(t, err)

	// Another organization gets the same answer as for a missing snapshot
	_, err = env.service.GetSnapshot(ctx, snapshotID, uuid.New())
	assert.ErrorIs(t, err, models.ErrSnapshotNotFound)
}

func TestLockSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	organizationID := uuid.New()
	snapshotID := env.seedSnapshot(t, organizationID, map[string][]byte{
		"policy.pdf":  []byte("policy document"),
		"scan-report": []byte("scan results"),
	})

	signed, err := env.service.LockSnapshot(ctx, snapshotID, organizationID)
	require.NoError(t, err)

	assert.Equal(t, snapshotID.String(), signed.SnapshotID)
	assert.Equal(t, organizationID.String(), signed.OrganizationID)
	assert.Equal(t, 2, signed.FileCount)
	assert.Len(t, signed.Files, 2)
	assert.False(t, signed.Integrity.IsZero())
	assert.Equal(t, "SHA-256", signed.Integrity.HashAlgorithm)
	assert.Equal(t, "HMAC-SHA256", signed.Integrity.HMACAlgorithm)

	// The snapshot row flipped to locked
	snap, err := env.service.GetSnapshot(ctx, snapshotID, organizationID)
	require.NoError(t, err)
	assert.True(t, snap.IsLocked())
	require.NotNil(t, snap.LockedAt)

	// The manifest is durable in object storage
	raw, err := env.store.Get(ctx, ManifestPath(snapshotID))
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	// And readable through the cache
	cached, ok := env.cache.Get(ctx, ManifestPath(snapshotID))
	assert.True(t, ok)
	assert.Equal(t, raw, cached)
}

func TestLockSnapshot_AlreadyLocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	organizationID := uuid.New()
	snapshotID := env.seedSnapshot(t, organizationID, nil)

	_, err := env.service.LockSnapshot(ctx, snapshotID, organizationID)
	require.NoError(t, err)

	_, err = env.service.LockSnapshot(ctx, snapshotID, organizationID)
	assert.ErrorIs(t, err, models.ErrSnapshotLocked)
}

func TestLockSnapshot_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.LockSnapshot(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, models.ErrSnapshotNotFound)
}

func TestLockSnapshot_CrossTenant(t *testing.T) {
	env := newTestEnv(t)
	organizationID := uuid.New()
	snapshotID := env.seedSnapshot(t, organizationID, nil)

	_, err := env.service.LockSnapshot(context.Background(), snapshotID, uuid.New())
	assert.ErrorIs(t, err, models.ErrSnapshotNotFound)
}

func TestLockSnapshot_EmptySnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	organizationID := uuid.New()
	snapshotID := env.seedSnapshot(t, organizationID, nil)

	signed, err := env.service.LockSnapshot(ctx, snapshotID, organizationID)
	require.NoError(t, err)

	assert.Equal(t, 0, signed.FileCount)
	assert.Empty(t, signed.Files)
	assert.False(t, signed.Integrity.IsZero())
}

func TestLockSnapshot_InvalidFileRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	organizationID := uuid.New()
	snapshotID := env.seedSnapshot(t, organizationID, nil)

	// A row missing its file name must abort the lock
	env.meta.files[snapshotID] = append(env.meta.files[snapshotID], models.EvidenceFile{
		ID:             uuid.New(),
		SnapshotID:     snapshotID,
		OrganizationID: organizationID,
		FilePath:       "data/docs/broken",
		CreatedAt:      testClock(),
	})

	_, err := env.service.LockSnapshot(ctx, snapshotID, organizationID)
	assert.ErrorIs(t, err, models.ErrInvalidFileRow)

	// The snapshot stays open
	snap, err := env.service.GetSnapshot(ctx, snapshotID, organizationID)
	require.NoError(t, err)
	assert.False(t, snap.IsLocked())
}

func TestLockSnapshot_StorageFailureLeavesOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	organizationID := uuid.New()
	snapshotID := env.seedSnapshot(t, organizationID, map[string][]byte{
		"policy.pdf": []byte("policy document"),
	})

	flaky := &flakyStore{MemoryStore: env.store, putErr: errors.New("storage unavailable")}
	service := NewServiceWithClock(env.repo, flaky, env.cache, env.signer, testClock)

	_, err := service.LockSnapshot(ctx, snapshotID, organizationID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store manifest")

	// A failed manifest write aborts the transition: the snapshot stays open
	snap, err := env.service.GetSnapshot(ctx, snapshotID, organizationID)
	require.NoError(t, err)
	assert.Equal(t, models.SnapshotStatusOpen, snap.Status)
	assert.Nil(t, snap.LockedAt)

	// Once storage recovers, a retry succeeds
	flaky.putErr = nil
	signed, err := service.LockSnapshot(ctx, snapshotID, organizationID)
	require.NoError(t, err)
	assert.Equal(t, 1, signed.FileCount)

	snap, err = env.service.GetSnapshot(ctx, snapshotID, organizationID)
	require.NoError(t, err)
	assert.True(t, snap.IsLocked())
}

func TestListSnapshots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	organizationID := uuid.New()
	otherOrganization := uuid.New()

	env.seedSnapshot(t, organizationID, nil)
	env.seedSnapshot(t, organizationID, nil)
	env.seedSnapshot(t, otherOrganization, nil)

	snapshots, err := env.service.ListSnapshots(ctx, organizationID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, snapshots, 2)

	for _, snap := range snapshots {
		assert.Equal(t, organizationID, snap.OrganizationID)
	}
}

func TestListSnapshots_MissingOrganization(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.ListSnapshots(context.Background(), uuid.Nil, 10, 0)
	assert.ErrorIs(t, err, models.ErrInvalidOrganizationID)
}
