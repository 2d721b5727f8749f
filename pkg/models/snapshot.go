package models

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SnapshotStatus represents the lifecycle state of an evidence snapshot
type SnapshotStatus string

const (
	SnapshotStatusOpen   SnapshotStatus = "open"
	SnapshotStatusLocked SnapshotStatus = "locked"
)

// EvidenceSnapshot represents a named collection of evidence files owned by
// one organization. The status transition open -> locked is one-way and is
// the trigger for manifest generation.
type EvidenceSnapshot struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	OrganizationID uuid.UUID      `json:"organization_id" db:"organization_id"`
	Name           string         `json:"name" db:"name"`
	Status         SnapshotStatus `json:"status" db:"status"`
	LockedAt       *time.Time     `json:"locked_at,omitempty" db:"locked_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// IsLocked returns true once the snapshot has been frozen
func (s *EvidenceSnapshot) IsLocked() bool {
	return s.Status == SnapshotStatusLocked
}

// CreateSnapshotRequest represents a request to create a new snapshot
type CreateSnapshotRequest struct {
	Name string `json:"name" binding:"required"`
}

// Validate checks the create request fields
func (r *CreateSnapshotRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidSnapshotName
	}
	return nil
}

// EvidenceFile is a metadata row for one evidence file under a snapshot.
// Rows are created by the external upload path; this engine only reads them.
type EvidenceFile struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	SnapshotID     uuid.UUID      `json:"snapshot_id" db:"snapshot_id"`
	OrganizationID uuid.UUID      `json:"organization_id" db:"organization_id"`
	FileName       string         `json:"file_name" db:"file_name"`
	FilePath       string         `json:"file_path" db:"file_path"`
	FileHash       sql.NullString `json:"file_hash" db:"file_hash"`
	Category       sql.NullString `json:"category" db:"category"`
	FileSize       sql.NullInt64  `json:"file_size" db:"file_size"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// Validate rejects rows that are missing the fields the manifest builder
// depends on. Hash, category and size may legitimately be absent.
func (f *EvidenceFile) Validate() error {
	if f.ID == uuid.Nil || f.FileName == "" || f.FilePath == "" {
		return ErrInvalidFileRow
	}
	return nil
}
