package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
)

// DefaultGoal is the daily goal, in millilitres, written by NewConfig.
const DefaultGoal = 2000

// Config represents the main configuration for waterlog.
type Config struct {
	HostID      string           `toml:"host_id" validate:"required"`
	BaseDir     string           `toml:"base_dir"`
	LogDir      string           `toml:"log_dir" validate:"required"`
	DefaultGoal int              `toml:"default_goal" validate:"gte=0"` // used until a goal is set; 0 means 2000
	Timezone    string           `toml:"timezone" validate:"omitempty,tzname"`
	Locale      string           `toml:"locale" validate:"omitempty,langtag"`
	Database    DatabaseConfig   `toml:"database"`
	Backup      BackupConfig     `toml:"backup"`
	Encryption  EncryptionConfig `toml:"encryption"`
	Server      ServerConfig     `toml:"server"`
}

// DatabaseConfig represents configuration for the intake store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type" validate:"oneof=sqlite memory"`
	DataDir string `toml:"data_dir,omitempty" validate:"required_if=Type sqlite"` // only used for type=sqlite
}

// BackupConfig controls database snapshots pushed to a vault.
type BackupConfig struct {
	Auto    bool        `toml:"auto"`    // push a snapshot after every mutating session
	Encrypt bool        `toml:"encrypt"` // encrypt snapshots with the configured encryptor
	Vault   VaultConfig `toml:"vault"`
}

// VaultConfig represents configuration for a vault backend. An empty Type
// disables backups.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type" validate:"omitempty,oneof=memory filesystem s3"`
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty" validate:"required_if=Type s3"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty" validate:"omitempty,url"` // S3-compatible service instead of AWS

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty" validate:"required_if=Type filesystem"`
}

// EncryptionConfig holds paths to the age key pair used for snapshot encryption.
type EncryptionConfig struct {
	Type           string `toml:"type" validate:"omitempty,oneof=age test"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string   `toml:"addr" validate:"omitempty,hostname_port"`
	AllowedOrigins []string `toml:"allowed_origins" validate:"dive,url"`
}

// NewConfig creates a new Config with the provided values and defaults
// rooted at baseDir.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:      hostID,
		BaseDir:     baseDir,
		LogDir:      filepath.Join(baseDir, "log"),
		DefaultGoal: DefaultGoal,
		Timezone:    "Local",
		Locale:      "en-US",
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "waterlog.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "waterlog.key"),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// Location resolves the configured timezone. An empty name means time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Language resolves the configured display locale, defaulting to en-US.
func (c *Config) Language() language.Tag {
	if c.Locale == "" {
		return language.AmericanEnglish
	}
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.AmericanEnglish
	}
	return tag
}

// BackupEnabled reports whether a vault is configured.
func (c *Config) BackupEnabled() bool {
	return c.Backup.Vault.Type != ""
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Backup.Encrypt && c.Encryption.Type != "test" {
		if c.Encryption.PublicKeyPath == "" || c.Encryption.PrivateKeyPath == "" {
			return fmt.Errorf("invalid config: backup.encrypt requires encryption key paths")
		}
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("tzname", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		if name == "Local" {
			return true
		}
		_, err := time.LoadLocation(name)
		return err == nil
	})
	v.RegisterValidation("langtag", func(fl validator.FieldLevel) bool {
		_, err := language.Parse(fl.Field().String())
		return err == nil
	})
	return v
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init validates cfg and writes it to a new config file at path.
// An existing file is never overwritten.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
