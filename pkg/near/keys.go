package near

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/ed25519"
)

const ed25519Prefix = "ed25519:"

// keyTypeED25519 is the borsh discriminant of ed25519 keys and signatures
const keyTypeED25519 uint8 = 0

// KeyPair is an ed25519 signing key for a NEAR account.
type KeyPair struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// GenerateKeyPair creates a random key pair
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &KeyPair{public: pub, private: priv}, nil
}

// ParseKeyPair parses an "ed25519:<base58>" secret key. Both the 64 byte expanded form
// and a bare 32 byte seed are accepted.
func ParseKeyPair(secret string) (*KeyPair, error) {
	raw, err := decodePrefixed(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("invalid secret key length %d", len(raw))
	}

	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unexpected public key type")
	}
	return &KeyPair{public: pub, private: priv}, nil
}

// ParsePublicKey parses an "ed25519:<base58>" public key
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := decodePrefixed(s)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key length %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// FormatPublicKey renders a public key in the RPC's "ed25519:<base58>" form
func FormatPublicKey(pub ed25519.PublicKey) string {
	return ed25519Prefix + base58.Encode(pub)
}

// PublicKey returns the raw public key
func (k *KeyPair) PublicKey() ed25519.PublicKey {
	return k.public
}

// PublicKeyString returns the public key in "ed25519:<base58>" form
func (k *KeyPair) PublicKeyString() string {
	return FormatPublicKey(k.public)
}

// SecretKeyString returns the secret key in "ed25519:<base58>" form
func (k *KeyPair) SecretKeyString() string {
	return ed25519Prefix + base58.Encode(k.private)
}

// Sign signs msg with the private key
func (k *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

func decodePrefixed(s string) ([]byte, error) {
	body := s
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		if s[:idx+1] != ed25519Prefix {
			return nil, fmt.Errorf("unsupported key type %q", s[:idx])
		}
		body = s[idx+1:]
	}
	raw := base58.Decode(body)
	if len(raw) == 0 {
		return nil, fmt.Errorf("malformed base58")
	}
	return raw, nil
}

// DecodeHash decodes a base58 encoded 32 byte hash such as a block or transaction hash.
func DecodeHash(s string) ([32]byte, error) {
	var h [32]byte
	raw := base58.Decode(s)
	if len(raw) != len(h) {
		return h, fmt.Errorf("invalid hash %q: want 32 bytes, got %d", s, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// EncodeHash renders a 32 byte hash in base58
func EncodeHash(h [32]byte) string {
	return base58.Encode(h[:])
}
