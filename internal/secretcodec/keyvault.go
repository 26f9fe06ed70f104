package secretcodec

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// secretGetter is the subset of *azsecrets.Client used by KeyVaultKeySource.
type secretGetter interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// KeyVaultKeySource reads the cache key from an Azure Key Vault secret.
// Read-only: the secret must be provisioned out of band with a base64 32-byte value.
type KeyVaultKeySource struct {
	client     secretGetter
	secretName string
}

// Compile-time check to ensure KeyVaultKeySource implements KeySource
var _ KeySource = (*KeyVaultKeySource)(nil)

// NewKeyVaultKeySource creates a KeyVaultKeySource for the secret in the given vault.
func NewKeyVaultKeySource(vaultURL, secretName string, cred azcore.TokenCredential) (*KeyVaultKeySource, error) {
	if vaultURL == "" {
		return nil, fmt.Errorf("vault URL cannot be empty")
	}
	if secretName == "" {
		return nil, fmt.Errorf("secret name cannot be empty")
	}
	if cred == nil {
		return nil, fmt.Errorf("missing credential")
	}

	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating key vault client: %w", err)
	}

	return &KeyVaultKeySource{
		client:     client,
		secretName: secretName,
	}, nil
}

// Key fetches the latest version of the secret.
func (k *KeyVaultKeySource) Key(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := k.client.GetSecret(ctx, k.secretName, "", nil)
	if err != nil {
		return nil, fmt.Errorf("getting secret %s: %w", k.secretName, err)
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("secret %s has no value", k.secretName)
	}

	key, err := decodeKey(*resp.Value)
	if err != nil {
		return nil, fmt.Errorf("secret %s: %w", k.secretName, err)
	}
	return key, nil
}
