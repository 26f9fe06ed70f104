package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/florianilch/b2clogin/internal/app"
)

// prompter asks for configuration values on the terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	// readSecret reads a line without echo.
	readSecret func() (string, error)
}

func newTerminalPrompter(out io.Writer) *prompter {
	fd := int(os.Stdin.Fd())
	return &prompter{
		in:  bufio.NewReader(os.Stdin),
		out: out,
		readSecret: func() (string, error) {
			b, err := term.ReadPassword(fd)
			return string(b), err
		},
	}
}

// stdinIsTerminal reports whether prompting is possible.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ask prompts for a value; an empty answer keeps current.
func (p *prompter) ask(label, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, current)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}

	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading %s: %w", label, err)
	}

	if answer := strings.TrimSpace(line); answer != "" {
		return answer, nil
	}
	return current, nil
}

// askSecret prompts without echo; an empty answer keeps current.
func (p *prompter) askSecret(label, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(p.out, "%s [keep current]: ", label)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}

	answer, err := p.readSecret()
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", label, err)
	}

	if answer = strings.TrimSpace(answer); answer != "" {
		return answer, nil
	}
	return current, nil
}

// promptConfig asks for the login settings and returns the answers as dotted
// config keys. Unless all is set, only missing required values are asked for.
func promptConfig(p *prompter, cfg *app.Config, all bool) (map[string]any, error) {
	missing := make(map[string]bool)
	for _, key := range cfg.MissingAuth() {
		missing[key] = true
	}
	want := func(key string) bool { return all || missing[key] }

	values := make(map[string]any)
	askInto := func(key, label string, target *string) error {
		if !want(key) {
			return nil
		}
		answer, err := p.ask(label, *target)
		if err != nil {
			return err
		}
		*target = answer
		if answer != "" {
			values[key] = answer
		}
		return nil
	}

	if err := askInto("auth.tenant", "Tenant name (e.g. contoso)", &cfg.Auth.Tenant); err != nil {
		return nil, err
	}
	if err := askInto("auth.client_id", "Application (client) ID", &cfg.Auth.ClientID); err != nil {
		return nil, err
	}
	if err := askInto("auth.policy_sign_up_sign_in", "Sign-up/sign-in user flow (e.g. B2C_1_susi)", &cfg.Auth.PolicySignUpSignIn); err != nil {
		return nil, err
	}

	if want("auth.scopes") {
		answer, err := p.ask("API scopes (comma-separated)", strings.Join(cfg.Auth.Scopes, ","))
		if err != nil {
			return nil, err
		}
		scopes := splitList(answer)
		cfg.Auth.Scopes = scopes
		if len(scopes) > 0 {
			values["auth.scopes"] = scopes
		}
	}

	if all {
		if err := askInto("auth.policy_reset_password", "Password reset user flow (optional)", &cfg.Auth.PolicyResetPassword); err != nil {
			return nil, err
		}
		if err := askInto("auth.redirect_uri", "Redirect URI", &cfg.Auth.RedirectURI); err != nil {
			return nil, err
		}
		if err := askInto("api.endpoint", "API endpoint (optional)", &cfg.API.Endpoint); err != nil {
			return nil, err
		}
		if cfg.API.Endpoint != "" {
			key, err := p.askSecret("API subscription key (optional)", cfg.API.SubscriptionKey)
			if err != nil {
				return nil, err
			}
			cfg.API.SubscriptionKey = key
			if key != "" {
				values["api.subscription_key"] = key
			}
		}
	}

	return values, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
