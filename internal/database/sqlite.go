package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"waterlog/internal/database/migrations"
	"waterlog/internal/intake"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	settingDailyGoal   = "daily_goal"
	settingNextEntryID = "next_entry_id"
)

// Operation is a journal record of one mutating session.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// SQLiteStore implements intake.Store on SQLite and additionally keeps the
// operation journal.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	clock intake.Clock
}

// NewSQLiteStore opens the database at path and applies pending migrations.
// path can be a file path or ":memory:" for an in-memory database.
// A nil clock means intake.RealClock.
func NewSQLiteStore(path string, clock intake.Clock) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return NewSQLiteStoreFromDB(db, path, clock), nil
}

// NewSQLiteStoreFromDB wraps an existing, already migrated connection.
func NewSQLiteStoreFromDB(db *sql.DB, path string, clock intake.Clock) *SQLiteStore {
	if clock == nil {
		clock = intake.RealClock{}
	}
	return &SQLiteStore{db: db, path: path, clock: clock}
}

// OpenConnection opens and configures a SQLite connection.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to :memory: would see its own empty database,
	// and a single writer is all the intake log ever needs.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Intake log

func (s *SQLiteStore) LoadState() (*intake.State, error) {
	ctx := context.Background()

	state, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := s.queryEntries(ctx, "SELECT id, amount, consumed_at FROM entries ORDER BY id")
	if err != nil {
		return nil, err
	}
	state.Entries = entries
	return state, nil
}

func (s *SQLiteStore) loadSettings(ctx context.Context) (*intake.State, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	defer rows.Close()

	state := &intake.State{}
	for rows.Next() {
		var key string
		var value int64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		switch key {
		case settingDailyGoal:
			state.DailyGoal = int(value)
		case settingNextEntryID:
			state.NextEntryID = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	return state, nil
}

func (s *SQLiteStore) AppendEntry(entry intake.Entry, nextID int64) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO entries (id, amount, consumed_at) VALUES (?, ?, ?)",
		entry.ID, entry.Amount, entry.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}

	if err := upsertSetting(ctx, tx, settingNextEntryID, nextID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteEntriesBetween(start, end time.Time) (int, error) {
	res, err := s.db.ExecContext(context.Background(),
		"DELETE FROM entries WHERE consumed_at >= ? AND consumed_at < ?",
		start.UnixNano(), end.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("deleting entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted entries: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) SaveDailyGoal(goal int) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertSetting(ctx, tx, settingDailyGoal, int64(goal)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// EntriesBetween returns entries with start <= timestamp < end, oldest first.
func (s *SQLiteStore) EntriesBetween(start, end time.Time) ([]intake.Entry, error) {
	return s.queryEntries(context.Background(),
		"SELECT id, amount, consumed_at FROM entries WHERE consumed_at >= ? AND consumed_at < ? ORDER BY consumed_at, id",
		start.UnixNano(), end.UnixNano())
}

func (s *SQLiteStore) queryEntries(ctx context.Context, query string, args ...any) ([]intake.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []intake.Entry
	for rows.Next() {
		var e intake.Entry
		var consumedAt int64
		if err := rows.Scan(&e.ID, &e.Amount, &consumedAt); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Timestamp = time.Unix(0, consumedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	return entries, nil
}

func upsertSetting(ctx context.Context, tx *sql.Tx, key string, value int64) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}
	return nil
}

// Operation journal

// CreateOperation records the start of a mutating session.
func (s *SQLiteStore) CreateOperation(operation, parameters string) (*Operation, error) {
	op := &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
		StartedAt:  s.clock.Now(),
	}
	res, err := s.db.ExecContext(context.Background(),
		"INSERT INTO operations (operation, parameters, status, started_at) VALUES (?, ?, ?, ?)",
		op.Operation, op.Parameters, op.Status, op.StartedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	op.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return op, nil
}

// FinishOperation stamps the operation with its final status.
func (s *SQLiteStore) FinishOperation(id int64, status string) error {
	res, err := s.db.ExecContext(context.Background(),
		"UPDATE operations SET status = ?, finished_at = ? WHERE id = ?",
		status, s.clock.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %d", id)
	}
	return nil
}

// DeleteOperation removes an operation record. It is used to drop the record
// of a session whose first change was rejected.
func (s *SQLiteStore) DeleteOperation(id int64) error {
	res, err := s.db.ExecContext(context.Background(), "DELETE FROM operations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting operation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deleting operation: no operation with id %d", id)
	}
	return nil
}

// ListOperations returns the most recent operations, newest first.
func (s *SQLiteStore) ListOperations(limit int) ([]*Operation, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT id, operation, parameters, status, started_at, finished_at FROM operations ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		var op Operation
		var startedAt int64
		var finishedAt sql.NullInt64
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		op.StartedAt = time.Unix(0, startedAt)
		if finishedAt.Valid {
			op.FinishedAt = sql.NullTime{Time: time.Unix(0, finishedAt.Int64), Valid: true}
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// MaxOperationID returns the id of the latest operation, or 0 if none exist.
func (s *SQLiteStore) MaxOperationID() (int64, error) {
	var id sql.NullInt64
	err := s.db.QueryRowContext(context.Background(), "SELECT MAX(id) FROM operations").Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("getting max operation id: %w", err)
	}
	return id.Int64, nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the schema is at the version this binary expects.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a complete copy of the database to destPath using VACUUM INTO.
// destPath must not exist or must be an empty file.
func (s *SQLiteStore) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ intake.Store = (*SQLiteStore)(nil)
