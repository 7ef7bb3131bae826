package config

const (
	defaultAssetsDir           = "./assets"
	defaultCacheDir            = "~/.local/share/foundry"
	defaultLogDir              = "~/.local/share/foundry/logs"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultBatchWireLimit      = 1000
	defaultConfirmTimeout      = 60
	defaultConfirmPollInterval = 2
	defaultReconcilePasses     = 3
	defaultBatchRetryAttempts  = 3
	defaultUploadRetryAttempts = 5
	defaultRetryBaseDelay      = 1
	defaultRetryMaxDelay       = 30
	defaultStorageProvider     = "bundlr"
	defaultBundlrNodeURL       = "https://node1.bundlr.network"
	defaultBundlrCurrency      = "solana"
	defaultBundlrTimeout       = 60
	defaultPinataBaseURL       = "https://api.pinata.cloud"
	defaultPinataGateway       = "https://gateway.pinata.cloud/ipfs"
	defaultPinataTimeout       = 60
	defaultLedgerRPCURL        = "https://api.devnet.solana.com"
	defaultLedgerKeypairPath   = "~/.config/foundry/keypair.json"
	defaultLedgerProgramID     = "Co11ectFdryPrgm1111111111111111111111111111"
	defaultLedgerCommitment    = "confirmed"
)

// Default returns a Config populated with repository defaults. Workers
// defaults to zero, which the uploader resolves to the available CPU count.
func Default() Config {
	return Config{
		Paths: Paths{
			AssetsDir: defaultAssetsDir,
			CacheDir:  defaultCacheDir,
			LogDir:    defaultLogDir,
		},
		Deploy: Deploy{
			BatchWireLimit:      defaultBatchWireLimit,
			ConfirmTimeout:      defaultConfirmTimeout,
			ConfirmPollInterval: defaultConfirmPollInterval,
			ReconcilePasses:     defaultReconcilePasses,
			BatchRetryAttempts:  defaultBatchRetryAttempts,
			UploadRetryAttempts: defaultUploadRetryAttempts,
			RetryBaseDelay:      defaultRetryBaseDelay,
			RetryMaxDelay:       defaultRetryMaxDelay,
		},
		Storage: Storage{
			Provider: defaultStorageProvider,
			Bundlr: Bundlr{
				NodeURL:  defaultBundlrNodeURL,
				Currency: defaultBundlrCurrency,
				Timeout:  defaultBundlrTimeout,
			},
			Pinata: Pinata{
				BaseURL: defaultPinataBaseURL,
				Gateway: defaultPinataGateway,
				Timeout: defaultPinataTimeout,
			},
		},
		Ledger: Ledger{
			RPCURL:      defaultLedgerRPCURL,
			KeypairPath: defaultLedgerKeypairPath,
			ProgramID:   defaultLedgerProgramID,
			Commitment:  defaultLedgerCommitment,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
