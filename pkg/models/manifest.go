package models

// Classification is the sensitivity tier derived from a file's category
type Classification string

const (
	ClassificationPublic       Classification = "public"
	ClassificationInternal     Classification = "internal"
	ClassificationConfidential Classification = "confidential"
	ClassificationRestricted   Classification = "restricted"
)

// ManifestFileEntry is one file's record inside a snapshot manifest.
// Timestamps are carried as RFC 3339 strings so that re-canonicalizing a
// parsed manifest reproduces the exact signed bytes.
type ManifestFileEntry struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Path           string         `json:"path"`
	Hash           *string        `json:"hash"`
	Category       *string        `json:"category"`
	Classification Classification `json:"classification"`
	Size           *int64         `json:"size"`
	CreatedAt      *string        `json:"createdAt"`
}

// SnapshotManifestData is the payload the integrity envelope is computed
// over. Entry order reflects the stable query order of the source file rows
// and is semantically significant: it feeds the canonical serialization.
type SnapshotManifestData struct {
	SnapshotID     string              `json:"snapshotId"`
	OrganizationID string              `json:"organizationId"`
	GeneratedAt    string              `json:"generatedAt"`
	FileCount      int                 `json:"fileCount"`
	Files          []ManifestFileEntry `json:"files"`
}

// IntegrityEnvelope binds a manifest against undetected modification with a
// content hash plus a keyed MAC. It is computed over the canonical
// serialization of the manifest data and never mutated after creation.
type IntegrityEnvelope struct {
	HashAlgorithm string `json:"hashAlgorithm"`
	Hash          string `json:"hash"`
	HMACAlgorithm string `json:"hmacAlgorithm"`
	HMAC          string `json:"hmac"`
	SignedAt      string `json:"signedAt"`
}

// IsZero reports whether the envelope is entirely absent
func (e IntegrityEnvelope) IsZero() bool {
	return e.Hash == "" && e.HMAC == "" && e.HashAlgorithm == "" && e.HMACAlgorithm == ""
}

// SignedManifest is the manifest data plus its integrity envelope, exactly
// as persisted to object storage. Immutable once written.
type SignedManifest struct {
	SnapshotManifestData
	Integrity IntegrityEnvelope `json:"integrity"`
}

// VerificationResult reports the outcome of re-verifying a locked snapshot
// against storage. Integrity failures are fields here, not errors: a failed
// verification is still a complete, exportable report.
type VerificationResult struct {
	Valid               bool     `json:"valid"`
	HashValid           bool     `json:"hashValid"`
	HMACValid           bool     `json:"hmacValid"`
	CheckedFiles        int      `json:"checkedFiles"`
	FileHashMismatches  []string `json:"fileHashMismatches"`
	ManifestGeneratedAt string   `json:"manifestGeneratedAt"`
}

// EvidencePackageResult describes an evidence package written to storage
type EvidencePackageResult struct {
	StoragePath   string             `json:"storage_path"`
	FileName      string             `json:"file_name"`
	IncludedFiles int                `json:"included_files"`
	Verification  VerificationResult `json:"verification"`
}
