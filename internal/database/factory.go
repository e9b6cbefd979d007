package database

import (
	"fmt"
	"os"
	"path/filepath"

	"waterlog/internal/config"
	"waterlog/internal/intake"
)

// PathFromConfig returns the database location for a database config:
// a file named after the host for sqlite, ":memory:" for memory.
func PathFromConfig(cfg config.DatabaseConfig, hostID string) (string, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return "", fmt.Errorf("data_dir required for sqlite database")
		}
		return filepath.Join(cfg.DataDir, hostID+".db"), nil
	case "memory":
		return ":memory:", nil
	default:
		return "", fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// NewStoreFromConfig opens the intake store described by cfg, creating the
// data directory if needed.
func NewStoreFromConfig(cfg config.DatabaseConfig, hostID string, clock intake.Clock) (*SQLiteStore, error) {
	path, err := PathFromConfig(cfg, hostID)
	if err != nil {
		return nil, err
	}
	if cfg.Type == "sqlite" {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	return NewSQLiteStore(path, clock)
}
