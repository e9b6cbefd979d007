package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"waterlog/internal/backup"
	"waterlog/internal/config"
	"waterlog/internal/database"
	"waterlog/internal/encryption"
	"waterlog/internal/intake"
	"waterlog/internal/vault"
)

// ErrBackupNotConfigured is returned by backup commands when no vault is configured.
var ErrBackupNotConfigured = errors.New("no backup vault configured")

// WaterApp is the application layer between the CLI or HTTP API and the
// intake Tracker. It builds every dependency from config, journals mutating
// sessions, and pushes database snapshots on Close.
type WaterApp struct {
	cfg     *config.Config
	store   *database.SQLiteStore
	tracker *intake.Tracker
	backup  *backup.Service // nil when no vault is configured
	logger  *slog.Logger
	logFile *os.File
	clock   intake.Clock

	opMu sync.Mutex
	op   *Operation
}

// NewWaterApp creates a fully wired WaterApp from the given config.
// operation names the command being run (e.g. "AddWater", "Serve").
// The caller must call Close when done.
func NewWaterApp(cfg *config.Config, operation string) (*WaterApp, error) {
	return newWaterApp(cfg, operation, intake.RealClock{}, os.Stderr)
}

func newWaterApp(cfg *config.Config, operation string, clock intake.Clock, stderr io.Writer) (*WaterApp, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	opID := clock.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &WaterApp{
		cfg:     cfg,
		logger:  logger,
		logFile: logFile,
		clock:   clock,
		op:      NewOperation(operation, ""),
	}
	if err := a.init(loc); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *WaterApp) init(loc *time.Location) error {
	store, err := database.NewStoreFromConfig(a.cfg.Database, a.cfg.HostID, a.clock)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.store = store

	if err := store.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date: %w", err)
	}

	if a.cfg.BackupEnabled() {
		svc, err := newBackupService(a.cfg, a.logger)
		if err != nil {
			return err
		}
		localMax, err := store.MaxOperationID()
		if err != nil {
			return fmt.Errorf("checking local version: %w", err)
		}
		if err := svc.CheckRemote(localMax); err != nil {
			return fmt.Errorf("%w: restore from vault first", err)
		}
		a.backup = svc
	}

	tracker, err := intake.NewTracker(defaultGoalStore{Store: store, goal: a.cfg.DefaultGoal}, a.clock, &slogAdapter{l: a.logger}, loc)
	if err != nil {
		return err
	}
	a.tracker = tracker
	return nil
}

// defaultGoalStore reports the configured default goal until a goal has
// been saved.
type defaultGoalStore struct {
	intake.Store
	goal int
}

func (s defaultGoalStore) LoadState() (*intake.State, error) {
	state, err := s.Store.LoadState()
	if err != nil {
		return nil, err
	}
	if state.DailyGoal == 0 && s.goal > 0 {
		state.DailyGoal = s.goal
	}
	return state, nil
}

// newBackupService builds the vault and, if enabled, the encryptor for cfg.
func newBackupService(cfg *config.Config, logger *slog.Logger) (*backup.Service, error) {
	v, err := vault.NewVaultFromConfig(context.Background(), cfg.Backup.Vault)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	return newBackupServiceWithVault(cfg, v, logger)
}

func newBackupServiceWithVault(cfg *config.Config, v backup.Vault, logger *slog.Logger) (*backup.Service, error) {
	if err := v.ValidateSetup(); err != nil {
		return nil, fmt.Errorf("vault %q not usable: %w", cfg.Backup.Vault.Name, err)
	}

	var enc backup.Encryptor
	var err error
	if cfg.Backup.Encrypt {
		enc, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return nil, fmt.Errorf("creating encryptor: %w", err)
		}
		if !enc.IsConfigured() {
			return nil, fmt.Errorf("backup.encrypt is set but encryption keys are missing: run `waterlog config init --encrypt`")
		}
	}

	return backup.NewService(v, enc, cfg.HostID, &slogAdapter{l: logger}), nil
}

// Tracker returns the intake Tracker. Mutations made directly on it are not
// journaled; use the WaterApp methods for that.
func (a *WaterApp) Tracker() *intake.Tracker {
	return a.tracker
}

// Logger returns the application logger.
func (a *WaterApp) Logger() *slog.Logger {
	return a.logger
}

// Config returns the configuration the app was built from.
func (a *WaterApp) Config() *config.Config {
	return a.cfg
}

// journal runs mutate under the journal lock. The session's operation
// record is created before its first change and removed again if that change
// fails. Later failures other than rejected input mark the session as errored.
func (a *WaterApp) journal(parameters string, mutate func() error) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	created := false
	if !a.op.Persisted() {
		dbOp, err := a.store.CreateOperation(a.op.Operation, parameters)
		if err != nil {
			return fmt.Errorf("persisting operation: %w", err)
		}
		a.op.ID = dbOp.ID
		a.op.Parameters = parameters
		created = true
	}

	err := mutate()
	switch {
	case err == nil:
	case created:
		if derr := a.store.DeleteOperation(a.op.ID); derr != nil {
			a.logger.Error("dropping operation record", "id", a.op.ID, "error", derr)
			a.op.Status = StatusError
			return err
		}
		a.op.ID = 0
		a.op.Parameters = ""
	case !isRejectedInput(err):
		a.op.Status = StatusError
	}
	return err
}

func isRejectedInput(err error) bool {
	return errors.Is(err, intake.ErrInvalidAmount) || errors.Is(err, intake.ErrInvalidGoal)
}

// AddWater records amount millilitres consumed now.
func (a *WaterApp) AddWater(amount int) (intake.Entry, error) {
	var entry intake.Entry
	err := a.journal(strconv.Itoa(amount), func() error {
		var err error
		entry, err = a.tracker.AddWater(amount)
		return err
	})
	return entry, err
}

// ResetToday removes today's entries and returns how many were removed.
func (a *WaterApp) ResetToday() (int, error) {
	var n int
	err := a.journal("", func() error {
		var err error
		n, err = a.tracker.ResetToday()
		return err
	})
	return n, err
}

// SetDailyGoal changes the daily goal.
func (a *WaterApp) SetDailyGoal(goal int) error {
	return a.journal(strconv.Itoa(goal), func() error {
		return a.tracker.SetDailyGoal(goal)
	})
}

func (a *WaterApp) DailyGoal() int                         { return a.tracker.DailyGoal() }
func (a *WaterApp) Progress() intake.Progress              { return a.tracker.Progress() }
func (a *WaterApp) History(days int) []intake.DayTotal     { return a.tracker.History(days) }
func (a *WaterApp) Entries() []intake.Entry                { return a.tracker.Entries() }
func (a *WaterApp) Subscribe(fn func(intake.Event)) func() { return a.tracker.Subscribe(fn) }

// RecentEntries reads the entries of the last days calendar days, ending
// today, from the store, oldest first.
func (a *WaterApp) RecentEntries(days int) ([]intake.Entry, error) {
	if days < 1 {
		return nil, fmt.Errorf("days must be at least 1, got %d", days)
	}
	start, end := intake.DayBounds(a.clock.Now(), a.tracker.Location())
	start = start.AddDate(0, 0, -(days - 1))
	return a.store.EntriesBetween(start, end)
}

// GetHistory returns the most recent journaled operations, newest first.
func (a *WaterApp) GetHistory(limit int) ([]*database.Operation, error) {
	return a.store.ListOperations(limit)
}

// Backup pushes a snapshot of the database to the vault, versioned by the
// latest journaled operation.
func (a *WaterApp) Backup() (int64, error) {
	if a.backup == nil {
		return 0, ErrBackupNotConfigured
	}
	version, err := a.store.MaxOperationID()
	if err != nil {
		return 0, fmt.Errorf("reading local version: %w", err)
	}
	if err := a.backup.Push(a.store, version); err != nil {
		return 0, err
	}
	return version, nil
}

// Close finalizes the operation and closes all resources.
// For persisted operations it finishes the journal record and, when
// backup.auto is set, pushes a snapshot at the operation's version.
func (a *WaterApp) Close() error {
	var firstErr error

	a.opMu.Lock()
	op := *a.op
	a.opMu.Unlock()

	if op.Persisted() {
		if err := a.store.FinishOperation(op.ID, op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
		if a.backup != nil && a.cfg.Backup.Auto {
			if err := a.backup.Push(a.store, op.ID); err != nil {
				a.logger.Error("auto backup failed", "error", err)
				if firstErr == nil {
					firstErr = fmt.Errorf("auto backup: %w", err)
				}
			}
		}
	}

	if err := a.closeResources(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (a *WaterApp) closeResources() error {
	var err error
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil {
			err = fmt.Errorf("closing database: %w", cerr)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}

// RestoreDatabase replaces the local database with the host's latest
// snapshot from the vault. passphrase unlocks the private key when backups
// are encrypted. No WaterApp may be open on the same database.
func RestoreDatabase(cfg *config.Config, passphrase string) error {
	if !cfg.BackupEnabled() {
		return ErrBackupNotConfigured
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, os.Stderr)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logFile.Close()

	return restoreDatabase(cfg, passphrase, logger)
}

func restoreDatabase(cfg *config.Config, passphrase string, logger *slog.Logger) error {
	path, err := database.PathFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		return err
	}

	svc, err := newBackupService(cfg, logger)
	if err != nil {
		return err
	}

	var dc backup.DecryptionContext
	if svc.Encrypted() {
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return fmt.Errorf("creating encryptor: %w", err)
		}
		dc, err = enc.Unlock(passphrase)
		if err != nil {
			return fmt.Errorf("unlocking private key: %w", err)
		}
	}

	if err := svc.Pull(path, dc); err != nil {
		return fmt.Errorf("restoring database: %w", err)
	}
	return nil
}
