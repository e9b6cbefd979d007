package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Environment variables read by waterlog.
const (
	EnvConfigPath = "WATERLOG_CONFIG_PATH"
	EnvHome       = "WATERLOG_HOME"
	EnvEnvFile    = "WATERLOG_ENV_FILE"
)

// LoadEnv loads KEY=value pairs from the dotenv file named by
// WATERLOG_ENV_FILE, or ./.env, into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadEnv() error {
	path := os.Getenv(EnvEnvFile)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - WATERLOG_CONFIG_PATH: config file location (default: ~/.config/waterlog.toml)
//   - WATERLOG_HOME: base directory for waterlog data (default: ~/.local/share/waterlog)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "waterlog.toml"), nil
}

// getBaseDir falls back to the XDG default ~/.local/share/waterlog.
func getBaseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "waterlog"), nil
}
