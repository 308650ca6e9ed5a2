package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultExtensions is the RAW file whitelist used when [import] extensions is empty.
var DefaultExtensions = []string{"3fr", "arw", "cr2", "fff", "mef", "mos", "iiq", "nef", "raf", "rw2", "dng"}

// Config represents the main configuration for photodb.
type Config struct {
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	LogLevel string         `toml:"log_level"` // debug, info, warn or error
	Workers  int            `toml:"workers"`   // 0 means one per CPU
	Import   ImportConfig   `toml:"import"`
	Database DatabaseConfig `toml:"database"`
	Backup   BackupConfig   `toml:"backup"`
}

// ImportConfig controls RAW discovery.
type ImportConfig struct {
	Extensions []string `toml:"extensions"` // case-insensitive, without the dot
	Ignore     []string `toml:"ignore"`     // glob patterns, see .photodbignore
}

// DatabaseConfig tunes ledger connections. Zero values use the ledger defaults.
type DatabaseConfig struct {
	BusyTimeoutMS int `toml:"busy_timeout_ms"`
	ReadConns     int `toml:"read_conns"`
}

// BackupConfig selects where ledger snapshots are uploaded after a mutating
// command. Type decides which of the remaining fields apply.
type BackupConfig struct {
	Type string `toml:"type"` // "none", "memory", "filesystem" or "s3"
	Name string `toml:"name,omitempty"`

	// filesystem
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`

	// s3
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // for S3-compatible stores
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// Enabled reports whether snapshots should be uploaded.
func (b BackupConfig) Enabled() bool {
	return b.Type != "" && b.Type != "none"
}

// NewConfig creates a Config with default values rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Import: ImportConfig{
			Extensions: append([]string(nil), DefaultExtensions...),
		},
		Backup: BackupConfig{Type: "none"},
	}
}

// Decode parses TOML from r. Fields absent from the input stay zero.
func Decode(r io.Reader) (*Config, error) {
	cfg := new(Config)
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Load reads the config at path, or returns NewConfig(baseDir) if the file
// does not exist. Empty fields of a file that does exist are filled from
// the same defaults, and a leading ~/ in a path setting is expanded.
func Load(path, baseDir string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewConfig(baseDir), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.fillDefaults(baseDir)

	for _, p := range []*string{&cfg.BaseDir, &cfg.LogDir, &cfg.Backup.FSVaultRoot} {
		if *p, err = expandHome(*p); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) fillDefaults(baseDir string) {
	d := NewConfig(baseDir)
	if c.BaseDir == "" {
		c.BaseDir = d.BaseDir
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if len(c.Import.Extensions) == 0 {
		c.Import.Extensions = d.Import.Extensions
	}
	if c.Backup.Type == "" {
		c.Backup.Type = d.Backup.Type
	}
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// Init writes cfg to a new file at path, creating parent directories.
// An existing file is never overwritten.
func Init(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	if err := cfg.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return f.Close()
}
