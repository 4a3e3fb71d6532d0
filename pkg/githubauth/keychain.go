package githubauth

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

const keychainService = "flowctl"

// KeychainCache implements TokenCache using the OS keychain (macOS
// Keychain, Linux Secret Service, Windows Credential Manager).
type KeychainCache struct {
	// Account namespaces the stored token, e.g. "github-copilot".
	Account string
}

// NewKeychainCache builds a cache for account.
func NewKeychainCache(account string) *KeychainCache {
	return &KeychainCache{Account: account}
}

type storedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Load returns the cached token, or (nil, nil) if none is stored.
func (c *KeychainCache) Load() (*oauth2.Token, error) {
	raw, err := keyring.Get(keychainService, c.Account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var st storedToken
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  st.AccessToken,
		RefreshToken: st.RefreshToken,
		TokenType:    st.TokenType,
		Expiry:       st.Expiry,
	}, nil
}

// Save stores tok in the keychain, overwriting any previous value.
func (c *KeychainCache) Save(tok *oauth2.Token) error {
	raw, err := json.Marshal(storedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	})
	if err != nil {
		return err
	}
	return keyring.Set(keychainService, c.Account, string(raw))
}
