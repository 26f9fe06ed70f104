package secretcodec

import "bytes"

// NoopCodec stores blobs unencrypted. Used where no per-user protection
// primitive is available.
type NoopCodec struct{}

// Compile-time check to ensure NoopCodec implements Codec
var _ Codec = NoopCodec{}

// Encrypt returns a copy of plaintext.
func (NoopCodec) Encrypt(plaintext []byte) ([]byte, error) {
	return bytes.Clone(nonNil(plaintext)), nil
}

// Decrypt returns a copy of ciphertext.
func (NoopCodec) Decrypt(ciphertext []byte) ([]byte, error) {
	return bytes.Clone(nonNil(ciphertext)), nil
}

func (NoopCodec) Mode() Mode { return ModeNone }

func (NoopCodec) Protected() bool { return false }

// nonNil keeps bytes.Clone from turning an empty input into nil.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
