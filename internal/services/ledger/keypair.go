package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"foundry/internal/services"
)

// Keypair is the signing identity that pays for and authorizes every
// on-chain write.
type Keypair struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// LoadKeypair reads a keypair file: a JSON array of 64 bytes, private key
// seed followed by public key.
func LoadKeypair(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ledger", "keypair", fmt.Sprintf("read keypair %q", path), err)
	}

	var values []int
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ledger", "keypair", fmt.Sprintf("parse keypair %q", path), err)
	}
	if len(values) != ed25519.PrivateKeySize {
		return nil, services.Wrap(services.ErrConfiguration, "ledger", "keypair",
			fmt.Sprintf("keypair %q has %d bytes, expected %d", path, len(values), ed25519.PrivateKeySize), nil)
	}

	key := make([]byte, ed25519.PrivateKeySize)
	for i, value := range values {
		if value < 0 || value > 255 {
			return nil, services.Wrap(services.ErrConfiguration, "ledger", "keypair",
				fmt.Sprintf("keypair %q has out-of-range byte %d at position %d", path, value, i), nil)
		}
		key[i] = byte(value)
	}

	private := ed25519.PrivateKey(key)
	return &Keypair{
		public:  private.Public().(ed25519.PublicKey),
		private: private,
	}, nil
}

// GenerateKeypair creates a fresh account keypair (used when deploy
// initializes a new collection account).
func GenerateKeypair() (*Keypair, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{public: public, private: private}, nil
}

// Address returns the base58-encoded public key.
func (k *Keypair) Address() string {
	return base58Encode(k.public)
}

// Sign signs a transaction message.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func base58Encode(input []byte) string {
	zeros := 0
	for zeros < len(input) && input[zeros] == 0 {
		zeros++
	}

	// Repeated division by 58 over a big-endian byte slice.
	digits := make([]byte, 0, len(input)*2)
	source := make([]byte, len(input))
	copy(source, input)
	for start := zeros; start < len(source); {
		remainder := 0
		for i := start; i < len(source); i++ {
			value := remainder*256 + int(source[i])
			source[i] = byte(value / 58)
			remainder = value % 58
		}
		digits = append(digits, base58Alphabet[remainder])
		for start < len(source) && source[start] == 0 {
			start++
		}
	}

	encoded := make([]byte, 0, zeros+len(digits))
	for i := 0; i < zeros; i++ {
		encoded = append(encoded, base58Alphabet[0])
	}
	for i := len(digits) - 1; i >= 0; i-- {
		encoded = append(encoded, digits[i])
	}
	return string(encoded)
}
