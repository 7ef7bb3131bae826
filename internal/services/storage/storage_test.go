package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"foundry/internal/config"
	"foundry/internal/logging"
	"foundry/internal/services"
)

func TestNewSelectsProvider(t *testing.T) {
	logger := logging.NewNop()

	cfg := config.Storage{Provider: "bundlr"}
	backend, err := New(cfg, "payer", logger)
	if err != nil {
		t.Fatalf("New bundlr: %v", err)
	}
	if backend.Name() != "bundlr" {
		t.Fatalf("Name = %q, want bundlr", backend.Name())
	}

	cfg = config.Storage{Provider: "pinata"}
	backend, err = New(cfg, "payer", logger)
	if err != nil {
		t.Fatalf("New pinata: %v", err)
	}
	if backend.Name() != "pinata" {
		t.Fatalf("Name = %q, want pinata", backend.Name())
	}

	if _, err := New(config.Storage{Provider: "floppy"}, "payer", logger); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("unsupported provider error = %v, want ErrConfiguration", err)
	}
}

func TestBundlrUpload(t *testing.T) {
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tx/solana" {
			t.Errorf("path = %q, want /tx/solana", r.URL.Path)
		}
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"id":"abc123"}`))
	}))
	defer server.Close()

	b := NewBundlr(config.Bundlr{NodeURL: server.URL, Currency: "solana"}, "payer", logging.NewNop())
	locator, err := b.Upload(context.Background(), []byte("payload"), "image/png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if locator != "https://arweave.net/abc123" {
		t.Fatalf("locator = %q", locator)
	}
	if gotContentType != "image/png" {
		t.Fatalf("content type = %q", gotContentType)
	}
}

func TestBundlrEstimateAndBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/price/solana/"):
			w.Write([]byte("42000"))
		case strings.HasPrefix(r.URL.Path, "/account/balance/solana"):
			if got := r.URL.Query().Get("address"); got != "payer" {
				t.Errorf("address = %q, want payer", got)
			}
			w.Write([]byte(`{"balance":"90000"}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer server.Close()

	b := NewBundlr(config.Bundlr{NodeURL: server.URL, Currency: "solana"}, "payer", logging.NewNop())
	cost, err := b.EstimateCost(context.Background(), 1024)
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}
	if cost != 42000 {
		t.Fatalf("cost = %d, want 42000", cost)
	}
	balance, err := b.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 90000 {
		t.Fatalf("balance = %d, want 90000", balance)
	}
}

func TestBundlrClassifiesStatusCodes(t *testing.T) {
	status := http.StatusBadRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "3")
		}
		w.WriteHeader(status)
		w.Write([]byte("nope"))
	}))
	defer server.Close()

	b := NewBundlr(config.Bundlr{NodeURL: server.URL, Currency: "solana"}, "payer", logging.NewNop())

	_, err := b.Upload(context.Background(), []byte("x"), "image/png")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("400 error = %v, want ErrPermanent", err)
	}

	status = http.StatusTooManyRequests
	_, err = b.Upload(context.Background(), []byte("x"), "image/png")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("429 error = %v, want ErrTransient", err)
	}
	var hint services.RetryAfterHint
	if !errors.As(err, &hint) {
		t.Fatal("429 error carries no retry hint")
	}
	if hint.RetryAfter() != 3*time.Second {
		t.Fatalf("RetryAfter = %v, want 3s", hint.RetryAfter())
	}

	status = http.StatusInternalServerError
	if _, err := b.Upload(context.Background(), []byte("x"), "image/png"); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("500 error = %v, want ErrTransient", err)
	}
}

func TestBundlrConnectionFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	b := NewBundlr(config.Bundlr{NodeURL: server.URL, Currency: "solana"}, "payer", logging.NewNop())
	if _, err := b.Balance(context.Background()); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("connection error = %v, want ErrTransient", err)
	}
}

func TestPinataUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pinning/pinFileToIPFS" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-jwt" {
			t.Errorf("authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		w.Write([]byte(`{"IpfsHash":"QmHash"}`))
	}))
	defer server.Close()

	p := NewPinata(config.Pinata{
		BaseURL: server.URL,
		Gateway: "https://gateway.pinata.cloud/ipfs",
		JWT:     "secret-jwt",
	}, logging.NewNop())

	locator, err := p.Upload(context.Background(), []byte("payload"), "application/json")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if locator != "https://gateway.pinata.cloud/ipfs/QmHash" {
		t.Fatalf("locator = %q", locator)
	}
}

func TestPinataBalanceRejectedJWT(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewPinata(config.Pinata{BaseURL: server.URL, JWT: "bad"}, logging.NewNop())
	if _, err := p.Balance(context.Background()); !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("rejected auth error = %v, want ErrPermanent", err)
	}
}

func TestPinataZeroCost(t *testing.T) {
	p := NewPinata(config.Pinata{}, logging.NewNop())
	cost, err := p.EstimateCost(context.Background(), 1<<30)
	if err != nil || cost != 0 {
		t.Fatalf("EstimateCost = (%d, %v), want (0, nil)", cost, err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if delay, ok := parseRetryAfter("5"); !ok || delay != 5*time.Second {
		t.Fatalf("seconds form = (%v, %v)", delay, ok)
	}
	if _, ok := parseRetryAfter(""); ok {
		t.Fatal("empty header parsed")
	}
	if _, ok := parseRetryAfter("garbage"); ok {
		t.Fatal("garbage header parsed")
	}
	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	if delay, ok := parseRetryAfter(future); !ok || delay <= 0 {
		t.Fatalf("http date form = (%v, %v)", delay, ok)
	}
}

func TestExtensionFor(t *testing.T) {
	cases := map[string]string{
		"image/png":        ".png",
		"image/jpeg":       ".jpg",
		"video/mp4":        ".mp4",
		"application/json": ".json",
		"unknown/type":     "",
	}
	for contentType, want := range cases {
		if got := extensionFor(contentType); got != want {
			t.Errorf("extensionFor(%q) = %q, want %q", contentType, got, want)
		}
	}
}
