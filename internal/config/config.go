// Package config provides configuration for the flowydb tool.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "FLOWYDB_"

// Config holds the configuration of the local database and its tooling.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`

	// Backup configuration
	Backup BackupConfig `json:"backup" yaml:"backup"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	// File is the database file name, relative to DataDir unless absolute
	File string `json:"file" yaml:"file"`

	// BusyTimeout is how long a writer waits on a locked database
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout"`

	// JournalMode is the SQLite journal mode
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`

	// MaxOpenConns bounds the connection pool
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`

	// ConflictPolicy is the default insert conflict policy: reject, replace
	ConflictPolicy string `json:"conflict_policy" yaml:"conflict_policy"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum level: debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// File enables a rotating log file at this path
	File string `json:"file" yaml:"file"`

	// MaxSizeMB is the size at which the log file rotates
	MaxSizeMB int `json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files kept
	MaxBackups int `json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is how long rotated files are kept
	MaxAgeDays int `json:"max_age_days" yaml:"max_age_days"`

	// Compress gzips rotated files
	Compress bool `json:"compress" yaml:"compress"`

	// JSON switches console output from human-readable to JSON
	JSON bool `json:"json" yaml:"json"`
}

// BackupConfig holds backup settings.
type BackupConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is the object key prefix backups are stored under
	Prefix string `json:"prefix" yaml:"prefix"`

	// Keep is the number of backups kept by prune
	Keep int `json:"keep" yaml:"keep"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/flowydb",
		Database: DatabaseConfig{
			File:           "flowy.db",
			BusyTimeout:    5 * time.Second,
			JournalMode:    "WAL",
			MaxOpenConns:   1,
			ConflictPolicy: "reject",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Backup: BackupConfig{
			Type:   "local",
			Prefix: "backups",
			Keep:   7,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/flowydb"
	}
	if c.Database.File == "" {
		c.Database.File = "flowy.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = filepath.Join(c.DataDir, "backups")
	}
}

// DatabasePath returns the path to the database file.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Database.File) {
		return c.Database.File
	}
	return filepath.Join(c.DataDir, c.Database.File)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch strings.ToUpper(c.Database.JournalMode) {
	case "WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "OFF":
	default:
		return fmt.Errorf("invalid database.journal_mode: %s", c.Database.JournalMode)
	}

	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1, got %d", c.Database.MaxOpenConns)
	}

	if c.Database.BusyTimeout < 0 {
		return fmt.Errorf("database.busy_timeout must not be negative, got %s", c.Database.BusyTimeout)
	}

	if c.Database.ConflictPolicy != "reject" && c.Database.ConflictPolicy != "replace" {
		return fmt.Errorf("invalid database.conflict_policy: %s (must be reject or replace)", c.Database.ConflictPolicy)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	if c.Backup.Type != "local" && c.Backup.Type != "s3" {
		return fmt.Errorf("invalid backup.type: %s (must be local or s3)", c.Backup.Type)
	}

	if c.Backup.Type == "s3" && c.Backup.S3.Bucket == "" {
		return fmt.Errorf("backup.s3.bucket is required when backup type is s3")
	}

	if c.Backup.Keep < 0 {
		return fmt.Errorf("backup.keep must not be negative, got %d", c.Backup.Keep)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv overlays configuration from FLOWYDB_ environment variables.
// Malformed numeric or boolean values are reported rather than ignored.
func LoadFromEnv(cfg *Config) error {
	e := envReader{}

	e.str("DATA_DIR", &cfg.DataDir)

	e.str("DATABASE_FILE", &cfg.Database.File)
	e.duration("DATABASE_BUSY_TIMEOUT", &cfg.Database.BusyTimeout)
	e.str("DATABASE_JOURNAL_MODE", &cfg.Database.JournalMode)
	e.integer("DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	e.str("DATABASE_CONFLICT_POLICY", &cfg.Database.ConflictPolicy)

	e.str("LOG_LEVEL", &cfg.Log.Level)
	e.str("LOG_FILE", &cfg.Log.File)
	e.integer("LOG_MAX_SIZE_MB", &cfg.Log.MaxSizeMB)
	e.integer("LOG_MAX_BACKUPS", &cfg.Log.MaxBackups)
	e.integer("LOG_MAX_AGE_DAYS", &cfg.Log.MaxAgeDays)
	e.boolean("LOG_COMPRESS", &cfg.Log.Compress)
	e.boolean("LOG_JSON", &cfg.Log.JSON)

	e.str("BACKUP_TYPE", &cfg.Backup.Type)
	e.str("BACKUP_PATH", &cfg.Backup.Path)
	e.str("BACKUP_PREFIX", &cfg.Backup.Prefix)
	e.integer("BACKUP_KEEP", &cfg.Backup.Keep)
	e.str("S3_BUCKET", &cfg.Backup.S3.Bucket)
	e.str("S3_REGION", &cfg.Backup.S3.Region)
	e.str("S3_ENDPOINT", &cfg.Backup.S3.Endpoint)
	e.boolean("S3_USE_PATH_STYLE", &cfg.Backup.S3.UsePathStyle)

	return e.err
}

// envReader reads prefixed variables and keeps the first parse error.
type envReader struct {
	err error
}

func (e *envReader) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	return v, ok && v != ""
}

func (e *envReader) fail(name, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, name, v, err)
	}
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *envReader) integer(name string, dst *int) {
	if v, ok := e.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) boolean(name string, dst *bool) {
	if v, ok := e.lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = d
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.DatabasePath()),
	}
	if c.Backup.Type == "local" {
		dirs = append(dirs, c.Backup.Path)
	}
	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
