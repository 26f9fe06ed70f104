package identity

import (
	"context"
	"testing"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/b2clogin/internal/secretcodec"
	"github.com/florianilch/b2clogin/internal/tokencache"
)

type recordingAccessor struct {
	replaced int
	exported int
}

var _ cache.ExportReplace = (*recordingAccessor)(nil)

func (r *recordingAccessor) Replace(context.Context, cache.Unmarshaler, cache.ReplaceHints) error {
	r.replaced++
	return nil
}

func (r *recordingAccessor) Export(context.Context, cache.Marshaler, cache.ExportHints) error {
	r.exported++
	return nil
}

func testConfig() Config {
	return Config{
		Tenant:      "contoso",
		ClientID:    "00000000-0000-0000-0000-00000000c11e",
		Policy:      "B2C_1_susi",
		RedirectURI: "http://localhost",
	}
}

func TestB2CAuthority(t *testing.T) {
	want := "https://contoso.b2clogin.com/tfp/contoso.onmicrosoft.com/B2C_1_susi"
	assert.Equal(t, want, B2CAuthority("contoso", "B2C_1_susi"))
	assert.Equal(t, want, B2CAuthority("Contoso.onmicrosoft.com", "B2C_1_susi"))
}

func TestNewMSALClientRequiresIdentifiers(t *testing.T) {
	_, err := NewMSALClient(Config{Tenant: "contoso"}, nil)
	assert.Error(t, err)
}

func TestAccountsDrivesCacheHooks(t *testing.T) {
	accessor := &recordingAccessor{}
	client, err := NewMSALClient(testConfig(), accessor)
	require.NoError(t, err)

	accounts, err := client.Accounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
	assert.Equal(t, 1, accessor.replaced)
	assert.Zero(t, accessor.exported)
}

func TestAccountsWithEmptyPersistentCache(t *testing.T) {
	memFs := afero.NewMemMapFs()
	store, err := tokencache.New(
		tokencache.CacheConfig{Path: "/cache/app" + tokencache.FileSuffix, Lock: tokencache.NewMutexLock()},
		secretcodec.NoopCodec{},
		tokencache.WithFs(memFs),
		tokencache.WithEmptyCache([]byte("{}")),
	)
	require.NoError(t, err)

	client, err := NewMSALClient(testConfig(), store)
	require.NoError(t, err)

	accounts, err := client.Accounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)

	exists, err := afero.Exists(memFs, store.Path())
	require.NoError(t, err)
	assert.False(t, exists, "listing accounts must not write the cache")
}

func TestAcquireSilentUnknownAccount(t *testing.T) {
	client, err := NewMSALClient(testConfig(), &recordingAccessor{})
	require.NoError(t, err)

	res := client.AcquireSilent(context.Background(), []string{"https://contoso.onmicrosoft.com/api/read"}, Account{HomeAccountID: "missing"})
	assert.Equal(t, SilentInteractionRequired, res.Status)
	assert.Error(t, res.Err)
}
