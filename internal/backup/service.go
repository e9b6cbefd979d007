package backup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"waterlog/internal/database"
	"waterlog/internal/database/migrations"
	"waterlog/internal/intake"
)

// ErrBehindRemote is returned when the vault holds a snapshot newer than the
// local database.
var ErrBehindRemote = errors.New("local database is behind remote")

// Snapshotter writes a consistent copy of a database to a new file.
type Snapshotter interface {
	BackupTo(destPath string) error
}

// Service pushes and pulls database snapshots for one host.
type Service struct {
	vault     Vault
	encryptor Encryptor // nil when snapshots are stored in plaintext
	hostID    string
	logger    intake.Logger
}

// NewService creates a backup Service. A nil encryptor stores snapshots
// unencrypted.
func NewService(vault Vault, encryptor Encryptor, hostID string, logger intake.Logger) *Service {
	return &Service{vault: vault, encryptor: encryptor, hostID: hostID, logger: logger}
}

// Encrypted reports whether snapshots are encrypted.
func (s *Service) Encrypted() bool {
	return s.encryptor != nil
}

// RemoteVersion returns the version of the host's snapshot in the vault,
// or 0 if there is none.
func (s *Service) RemoteVersion() (int64, error) {
	v, err := s.vault.GetSnapshotVersion(s.hostID)
	if err != nil {
		return 0, fmt.Errorf("reading remote version: %w", err)
	}
	return v, nil
}

// CheckRemote fails with ErrBehindRemote when the vault holds a snapshot
// newer than localVersion.
func (s *Service) CheckRemote(localVersion int64) error {
	remote, err := s.RemoteVersion()
	if err != nil {
		return err
	}
	if remote > localVersion {
		return fmt.Errorf("%w: local version %d, remote version %d", ErrBehindRemote, localVersion, remote)
	}
	return nil
}

// Push snapshots src into a temporary file, encrypts it if configured, and
// uploads it as the host's snapshot at version.
func (s *Service) Push(src Snapshotter, version int64) error {
	tmpDir, err := os.MkdirTemp("", "waterlog-backup-*")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	uploadPath := filepath.Join(tmpDir, "snapshot.db")
	if err := src.BackupTo(uploadPath); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}

	if s.encryptor != nil {
		encPath := uploadPath + ".age"
		if err := transformFile(uploadPath, encPath, s.encryptor.Encrypt); err != nil {
			return fmt.Errorf("encrypting snapshot: %w", err)
		}
		uploadPath = encPath
	}

	f, err := os.Open(uploadPath)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}

	if err := s.vault.PutSnapshot(s.hostID, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading snapshot: %w", err)
	}

	s.logger.Info("snapshot pushed", "host_id", s.hostID, "version", version, "bytes", info.Size(), "encrypted", s.Encrypted())
	return nil
}

// Pull downloads the host's snapshot, decrypts it with dc when snapshots are
// encrypted, checks its schema, and atomically replaces destPath. An existing
// file at destPath is kept as destPath + ".bak". The database at destPath
// must not be open.
func (s *Service) Pull(destPath string, dc DecryptionContext) error {
	if destPath == "" || destPath == ":memory:" {
		return fmt.Errorf("cannot restore into an in-memory database")
	}
	if s.encryptor != nil && dc == nil {
		return fmt.Errorf("snapshot is encrypted: a decryption context is required")
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(dir, ".restore-*")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	downloaded := filepath.Join(tmpDir, "download")
	if err := s.download(downloaded); err != nil {
		return err
	}

	restored := downloaded
	if s.encryptor != nil {
		restored = filepath.Join(tmpDir, "snapshot.db")
		if err := transformFile(downloaded, restored, dc.Decrypt); err != nil {
			return fmt.Errorf("decrypting snapshot: %w", err)
		}
	}

	if err := verifySnapshot(restored); err != nil {
		return err
	}

	if _, err := os.Stat(destPath); err == nil {
		if err := os.Rename(destPath, destPath+".bak"); err != nil {
			return fmt.Errorf("keeping previous database: %w", err)
		}
	}
	if err := os.Rename(restored, destPath); err != nil {
		return fmt.Errorf("replacing database: %w", err)
	}

	s.logger.Info("snapshot restored", "host_id", s.hostID, "path", destPath)
	return nil
}

func (s *Service) download(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating download file: %w", err)
	}
	if err := s.vault.GetSnapshot(s.hostID, f); err != nil {
		f.Close()
		return fmt.Errorf("downloading snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing download file: %w", err)
	}
	return nil
}

// verifySnapshot opens the file as SQLite and checks that its schema is the
// one this binary expects.
func verifySnapshot(path string) error {
	db, err := database.OpenConnection(path)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer db.Close()

	if err := migrations.CheckDBMigrationStatus(db); err != nil {
		return fmt.Errorf("snapshot schema: %w", err)
	}
	return nil
}

func transformFile(srcPath, destPath string, fn func(io.Reader, io.Writer) error) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if err := fn(src, dest); err != nil {
		dest.Close()
		return err
	}
	return dest.Close()
}
