//go:build windows

package secretcodec

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const dpapiAvailable = true

// dpapiCodec uses the Windows Data Protection API scoped to the current user.
type dpapiCodec struct{}

// Compile-time check to ensure dpapiCodec implements Codec
var _ Codec = dpapiCodec{}

func newDPAPICodec() (Codec, error) {
	return dpapiCodec{}, nil
}

func (dpapiCodec) Encrypt(plaintext []byte) ([]byte, error) {
	var out windows.DataBlob
	err := windows.CryptProtectData(toBlob(plaintext), nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out)
	if err != nil {
		return nil, fmt.Errorf("CryptProtectData: %w", err)
	}
	return takeBlob(&out), nil
}

func (dpapiCodec) Decrypt(ciphertext []byte) ([]byte, error) {
	var out windows.DataBlob
	err := windows.CryptUnprotectData(toBlob(ciphertext), nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out)
	if err != nil {
		// Blobs from another user or machine fail here.
		return nil, fmt.Errorf("%w: CryptUnprotectData: %w", ErrUnreadableSecret, err)
	}
	return takeBlob(&out), nil
}

func (dpapiCodec) Mode() Mode { return ModeDPAPI }

func (dpapiCodec) Protected() bool { return true }

func toBlob(b []byte) *windows.DataBlob {
	blob := &windows.DataBlob{Size: uint32(len(b))}
	if len(b) > 0 {
		blob.Data = &b[0]
	}
	return blob
}

// takeBlob copies a DPAPI-allocated blob into Go memory and frees it.
func takeBlob(blob *windows.DataBlob) []byte {
	if blob.Data == nil {
		return []byte{}
	}
	defer func() { _, _ = windows.LocalFree(windows.Handle(unsafe.Pointer(blob.Data))) }()
	return append([]byte{}, unsafe.Slice(blob.Data, blob.Size)...)
}
