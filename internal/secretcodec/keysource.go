package secretcodec

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySource supplies the key material for a SealedCodec.
type KeySource interface {
	// Key returns a 32-byte key. Writable sources create and persist a key
	// on first use; read-only sources return an error if none is configured.
	Key(ctx context.Context) ([]byte, error)
}

// decodeKey parses a base64 (standard or URL alphabet) encoded 32-byte key.
func decodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("empty key")
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		key, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("key is not valid base64")
		}
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("key must decode to %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

func encodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
