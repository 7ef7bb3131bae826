package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"foundry/internal/config"
	"foundry/internal/logging"
	"foundry/internal/services"
)

const defaultPinataTimeout = 60 * time.Second

// Pinata pins payloads to IPFS through the Pinata API. Pinata bills by
// subscription rather than per upload, so cost estimation reports zero and
// the balance check always passes.
type Pinata struct {
	baseURL    string
	gateway    string
	jwt        string
	httpClient *http.Client
	logger     *slog.Logger
}

// PinataOption customizes the client.
type PinataOption func(*Pinata)

// WithPinataHTTPClient overrides the default HTTP client (used in tests).
func WithPinataHTTPClient(client *http.Client) PinataOption {
	return func(p *Pinata) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// NewPinata constructs a Pinata pinning client.
func NewPinata(cfg config.Pinata, logger *slog.Logger, opts ...PinataOption) *Pinata {
	timeout := defaultPinataTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	client := &Pinata{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		gateway:    strings.TrimRight(strings.TrimSpace(cfg.Gateway), "/"),
		jwt:        strings.TrimSpace(cfg.JWT),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "pinata"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Name identifies the provider.
func (p *Pinata) Name() string { return "pinata" }

// Upload pins one payload and returns its gateway locator.
func (p *Pinata) Upload(ctx context.Context, payload []byte, contentType string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+uuid.NewString()+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "pinata", "upload", "build form", err)
	}
	if _, err := part.Write(payload); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "pinata", "upload", "write form", err)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "pinata", "upload", "close form", err)
	}

	endpoint := p.baseURL + "/pinning/pinFileToIPFS"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "pinata", "upload", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.jwt)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", classify("pinata", "upload", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", classify("pinata", "upload", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classify("pinata", "upload", newStatusError(resp, body))
	}

	var parsed struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", services.Wrap(services.ErrTransient, "pinata", "upload", "parse response", err)
	}
	if parsed.IpfsHash == "" {
		return "", services.Wrap(services.ErrTransient, "pinata", "upload", "response missing hash", nil)
	}
	return p.gateway + "/" + parsed.IpfsHash, nil
}

// EstimateCost reports zero: Pinata meters by plan, not per byte.
func (p *Pinata) EstimateCost(ctx context.Context, totalBytes int64) (uint64, error) {
	return 0, nil
}

// Balance verifies the JWT is accepted and reports an unlimited balance.
func (p *Pinata) Balance(ctx context.Context) (uint64, error) {
	endpoint := p.baseURL + "/data/testAuthentication"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "pinata", "balance", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.jwt)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, classify("pinata", "balance", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, classify("pinata", "balance", newStatusError(resp, body))
	}
	return math.MaxUint64, nil
}
