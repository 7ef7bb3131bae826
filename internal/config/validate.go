package config

import (
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDeploy(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.AssetsDir) == "" {
		return fmt.Errorf("paths.assets_dir is required")
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return fmt.Errorf("paths.cache_dir is required")
	}
	return nil
}

func (c *Config) validateDeploy() error {
	if c.Deploy.Workers < 0 {
		return fmt.Errorf("deploy.workers must not be negative")
	}
	if c.Deploy.BatchWireLimit <= 0 {
		return fmt.Errorf("deploy.batch_wire_limit must be positive")
	}
	if c.Deploy.ConfirmTimeout <= 0 {
		return fmt.Errorf("deploy.confirm_timeout must be positive")
	}
	if c.Deploy.ConfirmPollInterval <= 0 {
		return fmt.Errorf("deploy.confirm_poll_interval must be positive")
	}
	if c.Deploy.ReconcilePasses <= 0 {
		return fmt.Errorf("deploy.reconcile_passes must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Provider {
	case "bundlr":
		if strings.TrimSpace(c.Storage.Bundlr.NodeURL) == "" {
			return fmt.Errorf("storage.bundlr.node_url is required")
		}
	case "s3":
		if strings.TrimSpace(c.Storage.S3.Bucket) == "" {
			return fmt.Errorf("storage.s3.bucket is required")
		}
		if strings.TrimSpace(c.Storage.S3.Region) == "" {
			return fmt.Errorf("storage.s3.region is required")
		}
	case "pinata":
		if strings.TrimSpace(c.Storage.Pinata.JWT) == "" {
			return fmt.Errorf("storage.pinata.jwt is required")
		}
	default:
		return fmt.Errorf("storage.provider: unsupported value %q (expected bundlr, s3, or pinata)", c.Storage.Provider)
	}
	return nil
}

func (c *Config) validateLedger() error {
	if strings.TrimSpace(c.Ledger.RPCURL) == "" {
		return fmt.Errorf("ledger.rpc_url is required")
	}
	if strings.TrimSpace(c.Ledger.KeypairPath) == "" {
		return fmt.Errorf("ledger.keypair_path is required")
	}
	if strings.TrimSpace(c.Ledger.ProgramID) == "" {
		return fmt.Errorf("ledger.program_id is required")
	}
	switch c.Ledger.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("ledger.commitment: unsupported value %q", c.Ledger.Commitment)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
