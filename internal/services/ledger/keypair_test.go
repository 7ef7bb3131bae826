package ledger

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"foundry/internal/services"
)

func writeKeypairFile(t *testing.T, key ed25519.PrivateKey) string {
	t.Helper()

	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}
	payload, err := json.Marshal(values)
	if err != nil {
		t.Fatalf("marshal keypair: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keypair.json")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("write keypair: %v", err)
	}
	return path
}

func TestLoadKeypairSignsVerifiably(t *testing.T) {
	public, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	keypair, err := LoadKeypair(writeKeypairFile(t, private))
	if err != nil {
		t.Fatalf("LoadKeypair: %v", err)
	}

	message := []byte("transaction message")
	signature := keypair.Sign(message)
	if !ed25519.Verify(public, message, signature) {
		t.Fatal("signature does not verify against the public key")
	}
	if keypair.Address() == "" {
		t.Fatal("address should not be empty")
	}
}

func TestLoadKeypairRejectsBadLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keypair.json")
	if err := os.WriteFile(path, []byte("[1,2,3]"), 0o600); err != nil {
		t.Fatalf("write keypair: %v", err)
	}
	_, err := LoadKeypair(path)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadKeypairRejectsMissingFile(t *testing.T) {
	_, err := LoadKeypair(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBase58EncodeKnownVectors(t *testing.T) {
	cases := []struct {
		input []byte
		want  string
	}{
		{[]byte{}, ""},
		{[]byte{0}, "1"},
		{[]byte{0, 0}, "11"},
		{[]byte("hello"), "Cn8eVZg"},
	}
	for _, tc := range cases {
		if got := base58Encode(tc.input); got != tc.want {
			t.Fatalf("base58Encode(%v) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestAddressHasNoInvalidCharacters(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	address := keypair.Address()
	for _, r := range address {
		if strings.ContainsRune("0OIl", r) {
			t.Fatalf("address %q contains ambiguous character %c", address, r)
		}
	}
}
