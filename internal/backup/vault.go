package backup

import (
	"errors"
	"io"
)

// ErrSnapshotNotFound is returned by a Vault that holds no snapshot for a host.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Vault stores one database snapshot per host.
// All operations use io.Reader/io.Writer for streaming so snapshots are
// never loaded into memory by the caller.
type Vault interface {
	// PutSnapshot replaces the snapshot for hostID.
	// size is the number of bytes that will be read from r.
	// version is stored alongside the snapshot for consistency checks.
	PutSnapshot(hostID string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes the snapshot for hostID to w.
	// Returns an error wrapping ErrSnapshotNotFound if none was stored.
	GetSnapshot(hostID string, w io.Writer) error

	// GetSnapshotVersion returns the version stored with the snapshot.
	// Returns 0 if no snapshot has been stored for this host.
	GetSnapshotVersion(hostID string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
