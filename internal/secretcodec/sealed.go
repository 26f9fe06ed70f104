package secretcodec

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealedVersion prefixes every sealed blob so the format can evolve.
const sealedVersion byte = 0x01

// sealedAdditionalData binds ciphertext to its purpose.
var sealedAdditionalData = []byte("b2clogin token cache")

// SealedCodec encrypts blobs with XChaCha20-Poly1305 under a 256-bit key.
// Layout: version (1 byte) || nonce (24 bytes) || ciphertext || tag.
//
// The key is resolved once at construction so that Encrypt and Decrypt never
// perform I/O while the cache lock is held.
type SealedCodec struct {
	key  []byte
	mode Mode
}

// Compile-time check to ensure SealedCodec implements Codec
var _ Codec = (*SealedCodec)(nil)

// NewSealedCodec creates a SealedCodec from a 32-byte key. mode records where
// the key came from and is reported by Mode.
func NewSealedCodec(key []byte, mode Mode) (*SealedCodec, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	if mode == ModeNone {
		return nil, fmt.Errorf("sealed codec cannot report mode %q", mode)
	}

	return &SealedCodec{
		key:  append([]byte(nil), key...),
		mode: mode,
	}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (s *SealedCodec) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = sealedVersion
	nonce := out[1:]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aead.Seal(out, nonce, plaintext, sealedAdditionalData), nil
}

// Decrypt opens a blob produced by Encrypt with the same key.
func (s *SealedCodec) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < 1+aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: sealed blob too short (%d bytes)", ErrUnreadableSecret, len(ciphertext))
	}
	if ciphertext[0] != sealedVersion {
		return nil, fmt.Errorf("%w: unknown sealed format version %d", ErrUnreadableSecret, ciphertext[0])
	}

	nonce := ciphertext[1 : 1+aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, ciphertext[1+aead.NonceSize():], sealedAdditionalData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableSecret, err)
	}
	return nonNil(plaintext), nil
}

func (s *SealedCodec) Mode() Mode { return s.mode }

func (s *SealedCodec) Protected() bool { return true }
