package garmin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/oauth2"
)

// expirySkew treats a token as expired slightly before it really is
const expirySkew = time.Minute

// ErrNoTokens is returned when the token file holds no usable token
var ErrNoTokens = errors.New("no garmin tokens stored")

// OAuth1Token is the long-lived token obtained from an SSO ticket. It is
// valid for about a year and is used to mint OAuth2 tokens.
type OAuth1Token struct {
	Token         string `json:"oauth_token"`
	Secret        string `json:"oauth_token_secret"`
	MFAToken      string `json:"mfa_token,omitempty"`
	MFAExpiration string `json:"mfa_expiration_timestamp,omitempty"`
	Domain        string `json:"domain,omitempty"`
}

// OAuth2Token is the bearer token used against connectapi
type OAuth2Token struct {
	Scope                 string `json:"scope"`
	JTI                   string `json:"jti"`
	TokenType             string `json:"token_type"`
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int64  `json:"expires_in"`
	ExpiresAt             int64  `json:"expires_at"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
	RefreshTokenExpiresAt int64  `json:"refresh_token_expires_at"`
}

// Expired reports whether the access token is (about to be) expired
func (t *OAuth2Token) Expired(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	return now.Add(expirySkew).Unix() >= t.ExpiresAt
}

// stamp fills the absolute expiry times from the relative ones
func (t *OAuth2Token) stamp(now time.Time) {
	t.ExpiresAt = now.Unix() + t.ExpiresIn
	t.RefreshTokenExpiresAt = now.Unix() + t.RefreshTokenExpiresIn
}

func (t *OAuth2Token) oauth2() *oauth2.Token {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    tokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       time.Unix(t.ExpiresAt, 0),
	}
}

// Tokens is the token file layout
type Tokens struct {
	OAuth1 *OAuth1Token `json:"oauth1"`
	OAuth2 *OAuth2Token `json:"oauth2"`
}

// DefaultTokenPath returns ~/.wearabledump/garmin_tokens.json
func DefaultTokenPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".wearabledump", "garmin_tokens.json"), nil
}

// LoadTokens reads a token file
func LoadTokens(path string) (*Tokens, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand token path: %w", err)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}

	var tokens Tokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tokens: %w", err)
	}
	if tokens.OAuth1 == nil && tokens.OAuth2 == nil {
		return nil, ErrNoTokens
	}
	return &tokens, nil
}

// SaveTokens writes a token file readable only by the owner
func SaveTokens(path string, tokens *Tokens) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand token path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(expanded), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	if err := os.WriteFile(expanded, data, 0600); err != nil {
		return fmt.Errorf("failed to write tokens: %w", err)
	}
	return nil
}
