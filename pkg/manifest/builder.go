// Package manifest builds and signs snapshot manifests: the authoritative,
// tamper-evident listing of evidence files frozen at lock time.
package manifest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"snapseal/pkg/canonical"
	"snapseal/pkg/integrity"
	"snapseal/pkg/models"
)

// Classify derives the sensitivity tier from a file's category using
// case-insensitive substring matching. Precedence: security, then evidence,
// then product; anything else defaults to internal.
func Classify(category string) models.Classification {
	c := strings.ToLower(category)
	switch {
	case strings.Contains(c, "security"):
		return models.ClassificationRestricted
	case strings.Contains(c, "evidence"):
		return models.ClassificationConfidential
	case strings.Contains(c, "product"):
		return models.ClassificationInternal
	default:
		return models.ClassificationInternal
	}
}

// Builder turns evidence file rows into signed manifests
type Builder struct {
	signer *integrity.Signer
	now    func() time.Time
}

// NewBuilder creates a manifest builder backed by the given signer
func NewBuilder(signer *integrity.Signer) *Builder {
	return &Builder{signer: signer, now: time.Now}
}

// NewBuilderWithClock creates a builder with an injected clock for tests
func NewBuilderWithClock(signer *integrity.Signer, now func() time.Time) *Builder {
	return &Builder{signer: signer, now: now}
}

// BuildData assembles manifest data from the file rows as they exist right
// now. Row order is preserved: it reflects the stable query order of the
// metadata store and feeds the canonical hash. Rows missing required fields
// are rejected at this boundary instead of propagating nulls into hashing.
func (b *Builder) BuildData(snapshotID, organizationID uuid.UUID, rows []models.EvidenceFile) (models.SnapshotManifestData, error) {
	for i := range rows {
		if err := rows[i].Validate(); err != nil {
			return models.SnapshotManifestData{}, fmt.Errorf("file row %s (%q): %w", rows[i].ID, rows[i].FileName, err)
		}
	}

	entries := lo.Map(rows, func(row models.EvidenceFile, _ int) models.ManifestFileEntry {
		entry := models.ManifestFileEntry{
			ID:             row.ID.String(),
			Name:           row.FileName,
			Path:           row.FilePath,
			Classification: Classify(row.Category.String),
		}
		if row.FileHash.Valid {
			entry.Hash = &row.FileHash.String
		}
		if row.Category.Valid {
			entry.Category = &row.Category.String
		}
		if row.FileSize.Valid {
			entry.Size = &row.FileSize.Int64
		}
		if !row.CreatedAt.IsZero() {
			created := row.CreatedAt.UTC().Format(time.RFC3339)
			entry.CreatedAt = &created
		}
		return entry
	})

	return models.SnapshotManifestData{
		SnapshotID:     snapshotID.String(),
		OrganizationID: organizationID.String(),
		GeneratedAt:    b.now().UTC().Format(time.RFC3339),
		FileCount:      len(entries),
		Files:          entries,
	}, nil
}

// Sign canonicalizes the manifest data and wraps it with an integrity
// envelope. The envelope covers the data only, never itself.
func (b *Builder) Sign(data models.SnapshotManifestData) (models.SignedManifest, error) {
	payload, err := CanonicalPayload(data)
	if err != nil {
		return models.SignedManifest{}, err
	}

	return models.SignedManifest{
		SnapshotManifestData: data,
		Integrity:            b.signer.Seal(payload),
	}, nil
}

// CanonicalPayload returns the exact byte sequence the envelope is computed
// over. Verification re-derives the same bytes from a parsed manifest.
func CanonicalPayload(data models.SnapshotManifestData) ([]byte, error) {
	payload, err := canonical.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize manifest data: %w", err)
	}
	return payload, nil
}
