package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"foundry/internal/config"
	"foundry/internal/logging"
	"foundry/internal/services"
)

const defaultBundlrTimeout = 60 * time.Second

// Bundlr uploads payloads through a bundlr-style storage node that settles
// onto a permanent content-addressed network. Costs are quoted per byte and
// paid from a pre-funded account balance.
type Bundlr struct {
	nodeURL      string
	currency     string
	payerAddress string
	httpClient   *http.Client
	logger       *slog.Logger
}

// BundlrOption customizes the client.
type BundlrOption func(*Bundlr)

// WithBundlrHTTPClient overrides the default HTTP client (used in tests).
func WithBundlrHTTPClient(client *http.Client) BundlrOption {
	return func(b *Bundlr) {
		if client != nil {
			b.httpClient = client
		}
	}
}

// NewBundlr constructs a bundlr node client.
func NewBundlr(cfg config.Bundlr, payerAddress string, logger *slog.Logger, opts ...BundlrOption) *Bundlr {
	timeout := defaultBundlrTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	client := &Bundlr{
		nodeURL:      strings.TrimRight(strings.TrimSpace(cfg.NodeURL), "/"),
		currency:     strings.TrimSpace(cfg.Currency),
		payerAddress: strings.TrimSpace(payerAddress),
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logging.NewComponentLogger(logger, "bundlr"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Name identifies the provider.
func (b *Bundlr) Name() string { return "bundlr" }

// Upload posts one payload as a data transaction and returns the permanent
// gateway locator for the stored content.
func (b *Bundlr) Upload(ctx context.Context, payload []byte, contentType string) (string, error) {
	endpoint := fmt.Sprintf("%s/tx/%s", b.nodeURL, b.currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "bundlr", "upload", "build request", err)
	}
	req.Header.Set("Content-Type", contentType)

	body, err := b.do(req)
	if err != nil {
		return "", classify("bundlr", "upload", err)
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", services.Wrap(services.ErrTransient, "bundlr", "upload", "parse response", err)
	}
	if parsed.ID == "" {
		return "", services.Wrap(services.ErrTransient, "bundlr", "upload", "node returned no transaction id", nil)
	}
	return "https://arweave.net/" + parsed.ID, nil
}

// EstimateCost quotes the node's price for uploading totalBytes.
func (b *Bundlr) EstimateCost(ctx context.Context, totalBytes int64) (uint64, error) {
	endpoint := fmt.Sprintf("%s/price/%s/%d", b.nodeURL, b.currency, totalBytes)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "bundlr", "estimate", "build request", err)
	}

	body, err := b.do(req)
	if err != nil {
		return 0, classify("bundlr", "estimate", err)
	}

	price, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "bundlr", "estimate", "parse price", err)
	}
	return price, nil
}

// Balance reports the payer's pre-funded balance on the node.
func (b *Bundlr) Balance(ctx context.Context) (uint64, error) {
	endpoint := fmt.Sprintf("%s/account/balance/%s?address=%s", b.nodeURL, b.currency, b.payerAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "bundlr", "balance", "build request", err)
	}

	body, err := b.do(req)
	if err != nil {
		return 0, classify("bundlr", "balance", err)
	}

	var parsed struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, services.Wrap(services.ErrTransient, "bundlr", "balance", "parse response", err)
	}
	balance, err := strconv.ParseUint(strings.TrimSpace(parsed.Balance), 10, 64)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "bundlr", "balance", "parse balance", err)
	}
	return balance, nil
}

func (b *Bundlr) do(req *http.Request) ([]byte, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp, body)
	}
	return body, nil
}
