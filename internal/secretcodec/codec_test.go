package secretcodec

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"runtime"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestCodecRoundTrip(t *testing.T) {
	sealed, err := NewSealedCodec(randomBytes(t, 32), ModeEnv)
	require.NoError(t, err)

	codecs := map[string]Codec{
		"noop":   NoopCodec{},
		"sealed": sealed,
	}
	if runtime.GOOS == "windows" {
		dpapi, err := newDPAPICodec()
		require.NoError(t, err)
		codecs["dpapi"] = dpapi
	}

	inputs := map[string][]byte{
		"nil":    nil,
		"empty":  {},
		"text":   []byte(`{"AccessToken":{},"RefreshToken":{}}`),
		"binary": randomBytes(t, 64*1024),
	}

	for codecName, codec := range codecs {
		for inputName, in := range inputs {
			t.Run(codecName+"/"+inputName, func(t *testing.T) {
				ciphertext, err := codec.Encrypt(in)
				require.NoError(t, err)

				out, err := codec.Decrypt(ciphertext)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(in, out), "round trip changed the blob")
			})
		}
	}
}

func TestNoopCodecCapabilities(t *testing.T) {
	codec := NoopCodec{}
	assert.Equal(t, ModeNone, codec.Mode())
	assert.False(t, codec.Protected())

	in := []byte("secret")
	out, err := codec.Encrypt(in)
	require.NoError(t, err)
	out[0] = 'X'
	assert.Equal(t, "secret", string(in), "encrypt must not alias its input")
}

func TestSealedCodec(t *testing.T) {
	key := randomBytes(t, 32)
	codec, err := NewSealedCodec(key, ModeKeyring)
	require.NoError(t, err)
	assert.Equal(t, ModeKeyring, codec.Mode())
	assert.True(t, codec.Protected())

	t.Run("fresh nonce per encryption", func(t *testing.T) {
		a, err := codec.Encrypt([]byte("same"))
		require.NoError(t, err)
		b, err := codec.Encrypt([]byte("same"))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
		assert.Equal(t, sealedVersion, a[0])
	})

	t.Run("different key is unreadable", func(t *testing.T) {
		ciphertext, err := codec.Encrypt([]byte("payload"))
		require.NoError(t, err)

		other, err := NewSealedCodec(randomBytes(t, 32), ModeKeyring)
		require.NoError(t, err)
		_, err = other.Decrypt(ciphertext)
		assert.ErrorIs(t, err, ErrUnreadableSecret)
	})

	t.Run("tampered ciphertext is unreadable", func(t *testing.T) {
		ciphertext, err := codec.Encrypt([]byte("payload"))
		require.NoError(t, err)
		ciphertext[len(ciphertext)-1] ^= 0xff

		_, err = codec.Decrypt(ciphertext)
		assert.ErrorIs(t, err, ErrUnreadableSecret)
	})

	t.Run("short blob is unreadable", func(t *testing.T) {
		_, err := codec.Decrypt([]byte{sealedVersion, 1, 2, 3})
		assert.ErrorIs(t, err, ErrUnreadableSecret)
	})

	t.Run("unknown version is unreadable", func(t *testing.T) {
		ciphertext, err := codec.Encrypt([]byte("payload"))
		require.NoError(t, err)
		ciphertext[0] = 0x7f

		_, err = codec.Decrypt(ciphertext)
		assert.ErrorIs(t, err, ErrUnreadableSecret)
	})

	t.Run("plaintext blob from noop codec is unreadable", func(t *testing.T) {
		_, err := codec.Decrypt([]byte(`{"Account":{}}`))
		assert.ErrorIs(t, err, ErrUnreadableSecret)
	})
}

func TestNewSealedCodecValidation(t *testing.T) {
	_, err := NewSealedCodec(make([]byte, 16), ModeEnv)
	assert.Error(t, err)

	_, err = NewSealedCodec(make([]byte, 32), ModeNone)
	assert.Error(t, err)
}

func TestKeyringKeySource(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()

	src, err := NewKeyringKeySource("b2clogin-test", "ada")
	require.NoError(t, err)

	first, err := src.Key(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 32)

	second, err := src.Key(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second, "key must be stable once created")

	require.NoError(t, src.Delete(ctx))
	third, err := src.Key(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)

	_, err = NewKeyringKeySource("", "ada")
	assert.Error(t, err)
	_, err = NewKeyringKeySource("svc", "")
	assert.Error(t, err)
}

func TestKeyringKeySourceRejectsCorruptEntry(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set("b2clogin-test", "ada", "not-a-key"))

	src, err := NewKeyringKeySource("b2clogin-test", "ada")
	require.NoError(t, err)
	_, err = src.Key(context.Background())
	assert.Error(t, err)
}

func TestEnvKeySource(t *testing.T) {
	key := randomBytes(t, 32)
	t.Setenv("B2CLOGIN_TEST_CACHE_KEY", base64.StdEncoding.EncodeToString(key))

	src, err := NewEnvKeySource("B2CLOGIN_TEST_CACHE_KEY")
	require.NoError(t, err)
	got, err := src.Key(context.Background())
	require.NoError(t, err)
	assert.Equal(t, key, got)

	t.Setenv("B2CLOGIN_TEST_SHORT_KEY", base64.StdEncoding.EncodeToString(key[:8]))
	short, err := NewEnvKeySource("B2CLOGIN_TEST_SHORT_KEY")
	require.NoError(t, err)
	_, err = short.Key(context.Background())
	assert.Error(t, err)

	_, err = NewEnvKeySource("B2CLOGIN_TEST_UNSET_KEY")
	assert.Error(t, err)
	_, err = NewEnvKeySource("")
	assert.Error(t, err)
}

type stubSecretGetter struct {
	value *string
	err   error
}

func (s stubSecretGetter) GetSecret(context.Context, string, string, *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	if s.err != nil {
		return azsecrets.GetSecretResponse{}, s.err
	}
	return azsecrets.GetSecretResponse{Secret: azsecrets.Secret{Value: s.value}}, nil
}

func TestKeyVaultKeySource(t *testing.T) {
	key := randomBytes(t, 32)
	encoded := base64.URLEncoding.EncodeToString(key)

	tests := []struct {
		name    string
		getter  stubSecretGetter
		wantErr bool
	}{
		{name: "valid secret", getter: stubSecretGetter{value: &encoded}},
		{name: "missing value", getter: stubSecretGetter{}, wantErr: true},
		{name: "service error", getter: stubSecretGetter{err: errors.New("forbidden")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &KeyVaultKeySource{client: tt.getter, secretName: "token-cache-key"}
			got, err := src.Key(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, key, got)
		})
	}

	_, err := NewKeyVaultKeySource("", "secret", nil)
	assert.Error(t, err)
}
