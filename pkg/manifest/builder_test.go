package manifest

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapseal/pkg/integrity"
	"snapseal/pkg/models"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func testBuilder(t *testing.T) *Builder {
	t.Helper()
	signer, err := integrity.NewSignerWithClock([]byte("manifest-test-key"), fixedClock)
	require.NoError(t, err)
	return NewBuilderWithClock(signer, fixedClock)
}

func fileRow(name, category string, hash string) models.EvidenceFile {
	row := models.EvidenceFile{
		ID:        uuid.New(),
		FileName:  name,
		FilePath:  "data/docs/snap/" + name,
		CreatedAt: time.Date(2025, 5, 20, 8, 30, 0, 0, time.UTC),
	}
	if category != "" {
		row.Category = sql.NullString{String: category, Valid: true}
	}
	if hash != "" {
		row.FileHash = sql.NullString{String: hash, Valid: true}
		row.FileSize = sql.NullInt64{Int64: 1024, Valid: true}
	}
	return row
}

func TestClassify(t *testing.T) {
	tests := []struct {
		category string
		want     models.Classification
	}{
		{"Security Logs", models.ClassificationRestricted},
		{"network-security", models.ClassificationRestricted},
		{"Evidence Bundle", models.ClassificationConfidential},
		{"audit evidence", models.ClassificationConfidential},
		{"Product Spec", models.ClassificationInternal},
		{"Miscellaneous", models.ClassificationInternal},
		{"", models.ClassificationInternal},
		// security wins over evidence when both appear
		{"security evidence", models.ClassificationRestricted},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.category), "category %q", tt.category)
	}
}

func TestBuildData_Basic(t *testing.T) {
	b := testBuilder(t)
	snapshotID := uuid.New()
	orgID := uuid.New()

	rows := []models.EvidenceFile{
		fileRow("policy.pdf", "Security Logs", "aaa"),
		fileRow("report.pdf", "Evidence Bundle", "bbb"),
		fileRow("spec.pdf", "Product Spec", ""),
	}

	data, err := b.BuildData(snapshotID, orgID, rows)
	require.NoError(t, err)

	assert.Equal(t, snapshotID.String(), data.SnapshotID)
	assert.Equal(t, orgID.String(), data.OrganizationID)
	assert.Equal(t, "2025-06-01T12:00:00Z", data.GeneratedAt)
	assert.Equal(t, 3, data.FileCount)
	require.Len(t, data.Files, data.FileCount)

	// Entry order mirrors row order
	assert.Equal(t, "policy.pdf", data.Files[0].Name)
	assert.Equal(t, "report.pdf", data.Files[1].Name)
	assert.Equal(t, "spec.pdf", data.Files[2].Name)

	assert.Equal(t, models.ClassificationRestricted, data.Files[0].Classification)
	assert.Equal(t, models.ClassificationConfidential, data.Files[1].Classification)
	assert.Equal(t, models.ClassificationInternal, data.Files[2].Classification)

	require.NotNil(t, data.Files[0].Hash)
	assert.Equal(t, "aaa", *data.Files[0].Hash)
	assert.Nil(t, data.Files[2].Hash, "untracked file has no hash")
	require.NotNil(t, data.Files[0].CreatedAt)
	assert.Equal(t, "2025-05-20T08:30:00Z", *data.Files[0].CreatedAt)
}

func TestBuildData_Deterministic(t *testing.T) {
	b := testBuilder(t)
	snapshotID := uuid.New()
	orgID := uuid.New()
	rows := []models.EvidenceFile{
		fileRow("a.pdf", "evidence", "h1"),
		fileRow("b.pdf", "", ""),
	}

	first, err := b.BuildData(snapshotID, orgID, rows)
	require.NoError(t, err)
	firstPayload, err := CanonicalPayload(first)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := b.BuildData(snapshotID, orgID, rows)
		require.NoError(t, err)
		payload, err := CanonicalPayload(again)
		require.NoError(t, err)
		assert.Equal(t, firstPayload, payload)
	}
}

func TestBuildData_RejectsInvalidRows(t *testing.T) {
	b := testBuilder(t)

	missingPath := fileRow("orphan.pdf", "", "")
	missingPath.FilePath = ""

	_, err := b.BuildData(uuid.New(), uuid.New(), []models.EvidenceFile{missingPath})
	assert.ErrorIs(t, err, models.ErrInvalidFileRow)
	assert.Contains(t, err.Error(), "orphan.pdf")

	missingID := fileRow("no-id.pdf", "", "")
	missingID.ID = uuid.Nil
	_, err = b.BuildData(uuid.New(), uuid.New(), []models.EvidenceFile{missingID})
	assert.ErrorIs(t, err, models.ErrInvalidFileRow)
}

func TestBuildData_EmptySnapshot(t *testing.T) {
	b := testBuilder(t)

	data, err := b.BuildData(uuid.New(), uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, data.FileCount)
	assert.Empty(t, data.Files)
}

func TestSign_RoundTrip(t *testing.T) {
	signer, err := integrity.NewSignerWithClock([]byte("manifest-test-key"), fixedClock)
	require.NoError(t, err)
	b := NewBuilderWithClock(signer, fixedClock)

	data, err := b.BuildData(uuid.New(), uuid.New(), []models.EvidenceFile{
		fileRow("a.pdf", "evidence", "h1"),
	})
	require.NoError(t, err)

	signed, err := b.Sign(data)
	require.NoError(t, err)
	assert.Equal(t, integrity.HashAlgorithm, signed.Integrity.HashAlgorithm)
	assert.Equal(t, integrity.HMACAlgorithm, signed.Integrity.HMACAlgorithm)
	assert.NotEmpty(t, signed.Integrity.Hash)
	assert.NotEmpty(t, signed.Integrity.HMAC)

	payload, err := CanonicalPayload(signed.SnapshotManifestData)
	require.NoError(t, err)
	check := signer.Verify(payload, signed.Integrity)
	assert.True(t, check.Valid())
}
