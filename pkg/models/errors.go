package models

import "errors"

var (
	// Snapshot errors
	ErrSnapshotNotFound      = errors.New("snapshot not found")
	ErrSnapshotLocked        = errors.New("snapshot already locked")
	ErrSnapshotNotLocked     = errors.New("snapshot not locked")
	ErrInvalidSnapshotName   = errors.New("invalid snapshot name")
	ErrInvalidOrganizationID = errors.New("invalid organization id")

	// Manifest errors
	ErrManifestNotFound = errors.New("manifest not found")
	ErrInvalidManifest  = errors.New("stored manifest cannot be parsed")
	ErrInvalidFileRow   = errors.New("evidence file row is missing required fields")

	// Signing configuration errors
	ErrSigningKeyMissing = errors.New("signing key is not configured")

	// Repository errors
	ErrDatabaseConnection = errors.New("database connection failed")
	ErrDatabaseQuery      = errors.New("database query failed")
	ErrDatabaseInsert     = errors.New("database insert failed")
	ErrDatabaseUpdate     = errors.New("database update failed")

	// General errors
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternalServer = errors.New("internal server error")
)
