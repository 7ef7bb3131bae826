// Package storage provides the pluggable content storage backends the
// uploader pushes asset payloads through.
//
// A backend is anything that can turn bytes into a public locator. Cost
// estimation and balance checks exist so the pipeline can refuse to start a
// run it cannot afford; providers without a funding model report a zero
// estimate and an unlimited balance.
package storage

import (
	"context"
	"log/slog"

	"foundry/internal/config"
	"foundry/internal/services"
)

// Uploader is the capability interface every storage backend implements.
type Uploader interface {
	// Name identifies the provider in logs and the journal.
	Name() string
	// Upload pushes one payload and returns its public locator.
	Upload(ctx context.Context, payload []byte, contentType string) (string, error)
	// EstimateCost quotes the price of uploading totalBytes, in the
	// provider's smallest currency unit.
	EstimateCost(ctx context.Context, totalBytes int64) (uint64, error)
	// Balance reports the funds available to the payer on this provider.
	Balance(ctx context.Context) (uint64, error)
}

// New selects and constructs the configured storage backend. payerAddress
// identifies the funding account on providers that meter by balance.
func New(cfg config.Storage, payerAddress string, logger *slog.Logger) (Uploader, error) {
	switch cfg.Provider {
	case "bundlr":
		return NewBundlr(cfg.Bundlr, payerAddress, logger), nil
	case "s3":
		return NewS3(context.Background(), cfg.S3, logger)
	case "pinata":
		return NewPinata(cfg.Pinata, logger), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "storage", "new",
			"unsupported provider "+cfg.Provider, nil)
	}
}
