package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
)

// Config identifies the B2C application and user flow.
type Config struct {
	// Tenant is the B2C tenant name, e.g. "contoso" (".onmicrosoft.com" optional).
	Tenant   string
	ClientID string
	// Policy is the sign-up/sign-in user flow, e.g. "B2C_1_susi".
	Policy string
	// RedirectURI must be a loopback URI; MSAL listens on it during interactive login.
	RedirectURI string
}

// B2CAuthority returns the authority URL of a B2C user flow.
func B2CAuthority(tenant, policy string) string {
	name := strings.TrimSuffix(strings.ToLower(tenant), ".onmicrosoft.com")
	return fmt.Sprintf("https://%s.b2clogin.com/tfp/%s.onmicrosoft.com/%s", name, name, policy)
}

// MSALClient implements Client with MSAL for Go's public client application.
type MSALClient struct {
	client      public.Client
	redirectURI string
}

// Compile-time check to ensure MSALClient implements Client
var _ Client = (*MSALClient)(nil)

// NewMSALClient creates a public client for cfg. MSAL calls accessor's
// Replace/Export around every cache-touching operation; a nil accessor keeps
// the cache in memory only.
func NewMSALClient(cfg Config, accessor cache.ExportReplace) (*MSALClient, error) {
	if cfg.Tenant == "" || cfg.ClientID == "" || cfg.Policy == "" {
		return nil, fmt.Errorf("tenant, client ID and policy are required")
	}

	opts := []public.Option{
		public.WithAuthority(B2CAuthority(cfg.Tenant, cfg.Policy)),
		// B2C hosts are not in the AAD instance discovery metadata.
		public.WithInstanceDiscovery(false),
	}
	if accessor != nil {
		opts = append(opts, public.WithCache(accessor))
	}

	client, err := public.New(cfg.ClientID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating public client: %w", err)
	}

	return &MSALClient{
		client:      client,
		redirectURI: cfg.RedirectURI,
	}, nil
}

func (c *MSALClient) Accounts(ctx context.Context) ([]Account, error) {
	accounts, err := c.client.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Account, 0, len(accounts))
	for i := range accounts {
		out = append(out, fromMSALAccount(accounts[i]))
	}
	return out, nil
}

func (c *MSALClient) AcquireSilent(ctx context.Context, scopes []string, account Account) SilentResult {
	native := account.native
	if native == nil {
		// Accounts built outside this client carry no MSAL handle; look it up.
		accounts, err := c.client.Accounts(ctx)
		if err != nil {
			return classifySilent(err)
		}
		for i := range accounts {
			if accounts[i].HomeAccountID == account.HomeAccountID {
				native = &accounts[i]
				break
			}
		}
		if native == nil {
			return SilentResult{Status: SilentInteractionRequired, Err: fmt.Errorf("account %q not in token cache", account.HomeAccountID)}
		}
	}

	res, err := c.client.AcquireTokenSilent(ctx, scopes, public.WithSilentAccount(*native))
	if err != nil {
		return classifySilent(err)
	}
	return SilentResult{Status: SilentAcquired, Token: fromAuthResult(res)}
}

func (c *MSALClient) AcquireInteractive(ctx context.Context, scopes []string, loginHint string) (Token, error) {
	opts := []public.AcquireInteractiveOption{}
	if c.redirectURI != "" {
		opts = append(opts, public.WithRedirectURI(c.redirectURI))
	}
	if loginHint != "" {
		opts = append(opts, public.WithLoginHint(loginHint))
	}

	res, err := c.client.AcquireTokenInteractive(ctx, scopes, opts...)
	if err != nil {
		return Token{}, classify(err)
	}
	return fromAuthResult(res), nil
}

func fromMSALAccount(a public.Account) Account {
	return Account{
		HomeAccountID: a.HomeAccountID,
		Username:      a.PreferredUsername,
		Environment:   a.Environment,
		native:        &a,
	}
}

func fromAuthResult(res public.AuthResult) Token {
	return Token{
		AccessToken: res.AccessToken,
		IDToken:     res.IDToken.RawToken,
		ExpiresOn:   res.ExpiresOn,
		Account:     fromMSALAccount(res.Account),
	}
}
