// Package storage provides the narrow object storage contract the snapshot
// engine consumes: put bytes at a path, get bytes at a path.
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrObjectNotFound is returned by Get when no object exists at the path.
// Absence is a normal control-flow value for callers, not an exceptional
// condition.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the interface all object storage implementations satisfy
type ObjectStore interface {
	// Put writes data under folder/filename and returns the full object path
	Put(ctx context.Context, folder, filename string, data []byte) (string, error)

	// Get reads the object at path, returning ErrObjectNotFound if absent
	Get(ctx context.Context, path string) ([]byte, error)
}

// JoinPath builds an object path from a folder and filename, normalizing
// redundant slashes so the same logical object always maps to one key.
func JoinPath(folder, filename string) string {
	folder = strings.Trim(folder, "/")
	filename = strings.TrimLeft(filename, "/")
	if folder == "" {
		return filename
	}
	return folder + "/" + filename
}
