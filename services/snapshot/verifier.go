package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"snapseal/pkg/integrity"
	"snapseal/pkg/manifest"
	"snapseal/pkg/models"
	"snapseal/pkg/storage"
)

// GetManifest returns the signed manifest of a locked snapshot
func (s *Service) GetManifest(ctx context.Context, id, organizationID uuid.UUID) (*models.SignedManifest, error) {
	signed, _, err := s.loadManifest(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	return signed, nil
}

// loadManifest fetches and parses the stored manifest, going through the
// cache. The snapshot row is checked first so a cross-tenant or unlocked
// request never touches storage.
func (s *Service) loadManifest(ctx context.Context, id, organizationID uuid.UUID) (*models.SignedManifest, []byte, error) {
	if organizationID == uuid.Nil {
		return nil, nil, models.ErrInvalidOrganizationID
	}

	snap, err := s.repo.Snapshots.GetByID(ctx, id, organizationID)
	if err != nil {
		return nil, nil, err
	}
	if !snap.IsLocked() {
		return nil, nil, models.ErrSnapshotNotLocked
	}

	path := ManifestPath(id)

	raw, hit := s.cache.Get(ctx, path)
	if !hit {
		raw, err = s.store.Get(ctx, path)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return nil, nil, models.ErrManifestNotFound
			}
			return nil, nil, fmt.Errorf("failed to read manifest: %w", err)
		}
		if cacheErr := s.cache.Set(ctx, path, raw); cacheErr != nil {
			s.logger.Warn("Failed to cache manifest for snapshot %s: %v", id, cacheErr)
		}
	}
	recordManifestCacheEvent(ctx, hit)

	var signed models.SignedManifest
	if err := json.Unmarshal(raw, &signed); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrInvalidManifest, err)
	}

	return &signed, raw, nil
}

// VerifySnapshot re-verifies a locked snapshot against object storage. It
// recomputes the integrity envelope over the re-canonicalized manifest data
// and re-hashes every stored file the manifest records a hash for. Integrity
// failures land in the result, not in the error: a tampered snapshot still
// produces a complete report.
func (s *Service) VerifySnapshot(ctx context.Context, id, organizationID uuid.UUID) (*models.VerificationResult, error) {
	ctx, span := startSnapshotSpan(ctx, "snapshot.verify")
	defer span.End()

	signed, _, err := s.loadManifest(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}

	result, err := s.verifyManifest(ctx, signed)
	if err != nil {
		return nil, err
	}

	recordSnapshotVerification(ctx, result.Valid)
	if !result.Valid {
		s.logger.Warn("Verification failed for snapshot %s (hash=%v hmac=%v mismatches=%d)",
			id, result.HashValid, result.HMACValid, len(result.FileHashMismatches))
	}

	return result, nil
}

func (s *Service) verifyManifest(ctx context.Context, signed *models.SignedManifest) (*models.VerificationResult, error) {
	payload, err := manifest.CanonicalPayload(signed.SnapshotManifestData)
	if err != nil {
		return nil, err
	}

	check := s.signer.Verify(payload, signed.Integrity)

	result := &models.VerificationResult{
		HashValid:           check.HashValid,
		HMACValid:           check.HMACValid,
		FileHashMismatches:  []string{},
		ManifestGeneratedAt: signed.GeneratedAt,
	}

	for _, entry := range signed.Files {
		// Entries without a recorded hash or path cannot be drift-checked
		if entry.Hash == nil || *entry.Hash == "" || entry.Path == "" {
			continue
		}
		result.CheckedFiles++

		data, err := s.store.Get(ctx, entry.Path)
		if err != nil {
			// Any fetch failure means the recorded bytes cannot be produced
			// right now. Report it and keep checking the remaining files so
			// the mismatch list is always complete.
			if !errors.Is(err, storage.ErrObjectNotFound) {
				s.logger.Warn("Failed to read evidence file %s during verification: %v", entry.Path, err)
			}
			result.FileHashMismatches = append(result.FileHashMismatches, entry.Name+":missing")
			continue
		}

		if integrity.Digest(data) != *entry.Hash {
			result.FileHashMismatches = append(result.FileHashMismatches, entry.Name+":hash_mismatch")
		}
	}

	result.Valid = check.Valid() && len(result.FileHashMismatches) == 0
	return result, nil
}
