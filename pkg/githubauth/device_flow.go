// Package githubauth implements the GitHub device authorization flow used
// to obtain a Copilot-scoped token for agent steps that select a "copilot"
// provider, plus keychain-backed caching of the resulting token.
package githubauth

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

// DefaultClientID is GitHub's public device-flow client id for the GitHub
// CLI OAuth app, reused here since Copilot token exchange accepts it.
const DefaultClientID = "01ab8ac9400c4e429b23"

// Prompter displays the device-flow user code and verification URL. The
// CLI's implementation writes to a terminal; tests substitute a recorder.
type Prompter interface {
	ShowCode(ctx context.Context, da *oauth2.DeviceAuthResponse) error
}

// Authenticator drives the device authorization flow for one GitHub OAuth
// app, caching issued tokens so repeated agent steps in the same run don't
// each trigger a fresh device-flow prompt (spec §9's single-flight
// dedup for token sources applies here).
type Authenticator struct {
	config   oauth2.Config
	prompter Prompter
	cache    TokenCache
	group    *callGroup
}

// TokenCache persists the token between CLI invocations.
type TokenCache interface {
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
}

// NewAuthenticator builds an Authenticator for clientID against GitHub's
// device-flow endpoints. cache may be nil, in which case every call
// re-runs the device flow.
func NewAuthenticator(clientID string, scopes []string, prompter Prompter, cache TokenCache) *Authenticator {
	if clientID == "" {
		clientID = DefaultClientID
	}
	return &Authenticator{
		config: oauth2.Config{
			ClientID: clientID,
			Endpoint: endpoints.GitHub,
			Scopes:   scopes,
		},
		prompter: prompter,
		cache:    cache,
		group:    newCallGroup(),
	}
}

// Token returns a valid token, reusing a cached one if it hasn't expired,
// otherwise running the device authorization flow. Concurrent callers
// within the same process share one in-flight flow.
func (a *Authenticator) Token(ctx context.Context) (*oauth2.Token, error) {
	v, err := a.group.Do("token", func() (any, error) {
		return a.token(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

func (a *Authenticator) token(ctx context.Context) (*oauth2.Token, error) {
	if a.cache != nil {
		if tok, err := a.cache.Load(); err == nil && tok != nil && tok.Valid() {
			return tok, nil
		}
	}

	da, err := a.config.DeviceAuth(ctx)
	if err != nil {
		return nil, &flowerrors.ExecutorError{Type: "githubauth", Message: "starting device authorization", Cause: err}
	}

	if a.prompter != nil {
		if err := a.prompter.ShowCode(ctx, da); err != nil {
			return nil, flowerrors.Wrap(err, "displaying device code")
		}
	}

	tok, err := a.config.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, &flowerrors.ExecutorError{Type: "githubauth", Message: "exchanging device code for token", Cause: err}
	}

	if a.cache != nil {
		if err := a.cache.Save(tok); err != nil {
			return nil, flowerrors.Wrap(err, "caching device flow token")
		}
	}
	return tok, nil
}

// StdoutPrompter writes the verification URL and user code to stdout,
// the device-flow equivalent of a browser redirect.
type StdoutPrompter struct{}

// ShowCode implements Prompter.
func (StdoutPrompter) ShowCode(ctx context.Context, da *oauth2.DeviceAuthResponse) error {
	expires := da.Expiry
	var ttl time.Duration
	if !expires.IsZero() {
		ttl = time.Until(expires)
	}
	_, err := fmt.Fprintf(os.Stdout,
		"To authenticate, visit %s and enter code: %s\n(expires in %s)\n",
		da.VerificationURI, da.UserCode, ttl.Round(time.Second))
	return err
}
