//go:build !windows

package secretcodec

const dpapiAvailable = false

func newDPAPICodec() (Codec, error) {
	return nil, ErrUnsupported
}
