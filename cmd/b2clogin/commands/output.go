package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/florianilch/b2clogin/internal/apiclient"
	"github.com/florianilch/b2clogin/internal/auth"
	"github.com/florianilch/b2clogin/internal/claims"
	"github.com/florianilch/b2clogin/internal/tokencache"
)

func printHeader(w io.Writer, tenant, loginHint string) {
	fmt.Fprintln(w, "Azure AD B2C login")
	fmt.Fprintln(w, "==================")
	if loginHint != "" {
		fmt.Fprintf(w, "Login hint: %s\n", loginHint)
	}
	fmt.Fprintf(w, "Tenant: %s\n\n", tenant)
}

func printSuccess(w io.Writer, s *auth.Success) {
	if s.Silent {
		fmt.Fprintln(w, "Silent authentication successful.")
	}

	// Claims were decoded without signature verification; display only.
	if summary := claims.Summarize(s.Claims); !summary.IsZero() {
		printUserInfo(w, summary)
	}

	fmt.Fprintln(w, "Authentication successful!")
	if !s.ExpiresOn.IsZero() {
		fmt.Fprintf(w, "Expires: %s\n", s.ExpiresOn.Local().Format(time.RFC1123))
	}
	fmt.Fprintf(w, "Access token: %s\n\n", s.AccessToken)
}

func printUserInfo(w io.Writer, s claims.Summary) {
	fmt.Fprintln(w, "User information:")
	for _, field := range []struct{ label, value string }{
		{"Name", s.Name},
		{"User identifier", s.ObjectID},
		{"Street address", s.StreetAddress},
		{"City", s.City},
		{"State", s.State},
		{"Country", s.Country},
		{"Job title", s.JobTitle},
		{"Email", s.Email},
		{"Identity provider", s.IdentityProvider},
	} {
		if field.value != "" {
			fmt.Fprintf(w, "  %s: %s\n", field.label, field.value)
		}
	}
	fmt.Fprintln(w)
}

func printFailure(w io.Writer, f *auth.Failure) {
	fmt.Fprintln(w, "Authentication failed!")
	if f.Code != "" {
		fmt.Fprintf(w, "  Error code: %s\n", f.Code)
	}
	if f.Detail != "" {
		fmt.Fprintf(w, "  Message: %s\n", f.Detail)
	}

	keys := make([]string, 0, len(f.Diagnostics))
	for k := range f.Diagnostics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, f.Diagnostics[k])
	}

	fmt.Fprintln(w, f.Remediation())
}

func printAPIResult(w io.Writer, res apiclient.Result) {
	fmt.Fprintf(w, "API response: %s\n", res)
	if res.Truncated {
		fmt.Fprintln(w, "(response body truncated)")
	}
	fmt.Fprintf(w, "Correlation ID: %s\n", res.CorrelationID)
}

func printCacheStatus(w io.Writer, s tokencache.Status) {
	fmt.Fprintf(w, "Path: %s\n", s.Path)
	fmt.Fprintf(w, "Protection: %s\n", s.Mode)
	if !s.Exists {
		fmt.Fprintln(w, "Status: no cached tokens")
	} else {
		fmt.Fprintf(w, "Status: present (%d bytes, modified %s)\n", s.Size, s.ModTime.Local().Format(time.RFC1123))
	}
	switch {
	case !s.Protected:
		fmt.Fprintln(w, "Warning: the token cache is not encrypted at rest. Set cache.protection to keyring, env or keyvault.")
	case !s.Mode.UserScoped():
		fmt.Fprintln(w, "Note: protection is key-based, not tied to your OS user. Anyone holding the key can read the cache.")
	}
}
