package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"snapseal/pkg/models"
)

const packagesFolder = "packages"

// PackageSnapshot exports a locked snapshot as a zip archive in object
// storage. The archive always carries the signed manifest and a fresh
// verification report; when includeFiles is set, evidence files that can be
// fetched are bundled under files/. A failed verification does not block
// packaging: auditors need the report either way.
func (s *Service) PackageSnapshot(ctx context.Context, id, organizationID uuid.UUID, includeFiles bool) (*models.EvidencePackageResult, error) {
	ctx, span := startSnapshotSpan(ctx, "snapshot.package")
	defer span.End()

	signed, raw, err := s.loadManifest(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}

	verification, err := s.verifyManifest(ctx, signed)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writeZipEntry(zw, "manifest.json", raw); err != nil {
		return nil, err
	}

	report, err := json.MarshalIndent(verification, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize verification report: %w", err)
	}
	if err := writeZipEntry(zw, "verification.json", report); err != nil {
		return nil, err
	}

	included := 0
	if includeFiles {
		seen := make(map[string]int)
		for _, entry := range signed.Files {
			if entry.Path == "" {
				continue
			}

			data, err := s.store.Get(ctx, entry.Path)
			if err != nil {
				// Missing or unreadable files are already reported by the
				// verification; the package ships without them.
				s.logger.Warn("Skipping evidence file %s in package for snapshot %s: %v", entry.Path, id, err)
				continue
			}

			name := archiveName(entry, seen)
			if err := writeZipEntry(zw, "files/"+name, data); err != nil {
				return nil, err
			}
			included++
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize evidence package: %w", err)
	}

	// The uuid suffix keeps concurrent exports of the same snapshot from
	// mapping to the same storage key.
	fileName := fmt.Sprintf("evidence-package-%s-%s-%s.zip", id, s.now().UTC().Format("20060102T150405Z"), uuid.NewString())
	storagePath, err := s.store.Put(ctx, ManifestFolder(id)+"/"+packagesFolder, fileName, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to store evidence package: %w", err)
	}

	recordSnapshotPackage(ctx, included)
	s.logger.Info("Packaged snapshot %s (%d files) at %s", id, included, storagePath)

	return &models.EvidencePackageResult{
		StoragePath:   storagePath,
		FileName:      fileName,
		IncludedFiles: included,
		Verification:  *verification,
	}, nil
}

// archiveName derives a safe, unique archive member name from a manifest
// entry. Duplicated base names get a numeric suffix so no member overwrites
// another.
func archiveName(entry models.ManifestFileEntry, seen map[string]int) string {
	name := entry.Name
	if name == "" {
		name = path.Base(entry.Path)
	}
	name = sanitizeArchiveName(name)

	count := seen[name]
	seen[name] = count + 1
	if count == 0 {
		return name
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s-%d%s", base, count, ext)
}

// sanitizeArchiveName strips path separators and traversal segments so the
// archive never contains members that escape their directory on extraction.
func sanitizeArchiveName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(path.Clean("/" + name))
	if name == "/" || name == "." || name == "" {
		return "unnamed"
	}
	return name
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create archive entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write archive entry %s: %w", name, err)
	}
	return nil
}
