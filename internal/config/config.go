package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"foundry/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	AssetsDir string `toml:"assets_dir"`
	CacheDir  string `toml:"cache_dir"`
	LogDir    string `toml:"log_dir"`
}

// Deploy contains pipeline tuning: worker counts, batch limits, timeouts,
// and retry behavior.
type Deploy struct {
	Workers             int `toml:"workers"`
	BatchWireLimit      int `toml:"batch_wire_limit"`
	ConfirmTimeout      int `toml:"confirm_timeout"`
	ConfirmPollInterval int `toml:"confirm_poll_interval"`
	ReconcilePasses     int `toml:"reconcile_passes"`
	BatchRetryAttempts  int `toml:"batch_retry_attempts"`
	UploadRetryAttempts int `toml:"upload_retry_attempts"`
	RetryBaseDelay      int `toml:"retry_base_delay"`
	RetryMaxDelay       int `toml:"retry_max_delay"`
}

// Bundlr contains configuration for a bundlr-style storage node.
type Bundlr struct {
	NodeURL  string `toml:"node_url"`
	Currency string `toml:"currency"`
	Timeout  int    `toml:"timeout"`
}

// S3 contains configuration for the AWS S3 storage provider.
type S3 struct {
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	PublicURL string `toml:"public_url"`
}

// Pinata contains configuration for the Pinata pinning provider.
type Pinata struct {
	BaseURL string `toml:"base_url"`
	Gateway string `toml:"gateway"`
	JWT     string `toml:"jwt"`
	Timeout int    `toml:"timeout"`
}

// Storage selects and configures the content storage provider.
type Storage struct {
	Provider string `toml:"provider"`
	Bundlr   Bundlr `toml:"bundlr"`
	S3       S3     `toml:"s3"`
	Pinata   Pinata `toml:"pinata"`
}

// Ledger contains on-chain connection settings.
type Ledger struct {
	RPCURL       string `toml:"rpc_url"`
	KeypairPath  string `toml:"keypair_path"`
	ProgramID    string `toml:"program_id"`
	CollectionID string `toml:"collection_id"`
	Commitment   string `toml:"commitment"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for foundry.
type Config struct {
	Paths   Paths   `toml:"paths"`
	Deploy  Deploy  `toml:"deploy"`
	Storage Storage `toml:"storage"`
	Ledger  Ledger  `toml:"ledger"`
	Logging Logging `toml:"logging"`
}

// CachePath returns the fixed location of the durable cache record file.
func (c *Config) CachePath() string {
	return filepath.Join(c.Paths.CacheDir, "cache.json")
}

// JournalPath returns the fixed location of the submission journal database.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.CacheDir, "journal.db")
}

// LockPath returns the location of the single-run lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.CacheDir, "foundry.lock")
}

// RetryPolicy builds the upload retry policy from deploy tuning.
func (d Deploy) RetryPolicy() services.RetryPolicy {
	policy := services.DefaultRetryPolicy()
	if d.UploadRetryAttempts > 0 {
		policy.MaxAttempts = d.UploadRetryAttempts
	}
	if d.RetryBaseDelay > 0 {
		policy.BaseDelay = time.Duration(d.RetryBaseDelay) * time.Second
	}
	if d.RetryMaxDelay > 0 {
		policy.MaxDelay = time.Duration(d.RetryMaxDelay) * time.Second
	}
	return policy
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/foundry/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("foundry.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.AssetsDir, err = expandPath(c.Paths.AssetsDir); err != nil {
		return err
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Ledger.KeypairPath, err = expandPath(c.Ledger.KeypairPath); err != nil {
		return err
	}
	c.Storage.Provider = strings.ToLower(strings.TrimSpace(c.Storage.Provider))
	c.Ledger.Commitment = strings.ToLower(strings.TrimSpace(c.Ledger.Commitment))
	return nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Sample returns the embedded sample configuration file contents.
func Sample() string {
	return sampleConfig
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return filepath.Abs(path)
}
