package testsupport

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// minimalPNG is a valid 1x1 PNG, enough for hashing and upload plumbing
// in tests.
var minimalPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

// WriteAssetPair writes <index>.png and <index>.json into dir. The media
// payload is seeded with the index so every pair hashes differently.
func WriteAssetPair(t testing.TB, dir string, index int) {
	t.Helper()

	media := append([]byte{}, minimalPNG...)
	media = append(media, byte(index), byte(index>>8))
	WriteFileBytes(t, filepath.Join(dir, fmt.Sprintf("%d.png", index)), media)

	metadata := map[string]any{
		"name":        fmt.Sprintf("Item #%d", index),
		"description": "test asset",
		"image":       fmt.Sprintf("%d.png", index),
		"properties": map[string]any{
			"files": []any{
				map[string]any{"uri": fmt.Sprintf("%d.png", index), "type": "image/png"},
			},
		},
	}
	payload, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		t.Fatalf("marshal metadata %d: %v", index, err)
	}
	WriteFileBytes(t, filepath.Join(dir, fmt.Sprintf("%d.json", index)), payload)
}

// WriteAssetSet writes a contiguous asset set of count pairs starting at
// index zero.
func WriteAssetSet(t testing.TB, dir string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		WriteAssetPair(t, dir, i)
	}
}

// WriteFileBytes writes content to path, creating parent directories.
func WriteFileBytes(t testing.TB, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteKeypair generates a signing keypair, writes it in the JSON byte
// array format the ledger client loads, and returns its path.
func WriteKeypair(t testing.TB, path string) string {
	t.Helper()

	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	values := make([]int, len(private))
	for i, b := range private {
		values[i] = int(b)
	}
	payload, err := json.Marshal(values)
	if err != nil {
		t.Fatalf("marshal keypair: %v", err)
	}
	WriteFileBytes(t, path, payload)
	return path
}
