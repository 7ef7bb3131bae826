// Package testsupport provides shared fixtures for package tests: temp
// configs, asset directories, and fakes for the storage and ledger
// backends.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"foundry/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.AssetsDir = filepath.Join(base, "assets")
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Deploy.Workers = 2
	cfg.Deploy.ConfirmTimeout = 1
	cfg.Deploy.ConfirmPollInterval = 1
	cfg.Ledger.ProgramID = "TestProgram1111111111111111111111"
	cfg.Ledger.KeypairPath = filepath.Join(base, "keypair.json")

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := os.MkdirAll(cfg.Paths.AssetsDir, 0o755); err != nil {
		t.Fatalf("create assets dir: %v", err)
	}
	return &cfg
}

// WithWorkers overrides the upload worker count on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Deploy.Workers = workers
	}
}

// WithBatchWireLimit overrides the batch size bound on the test config.
func WithBatchWireLimit(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Deploy.BatchWireLimit = limit
	}
}
