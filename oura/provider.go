// Package oura reads the Oura API v2 user collections.
package oura

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/roessland/wearabledump/dump"
	"github.com/roessland/wearabledump/pkg/httpapi"
)

const (
	Vendor = "oura"

	DefaultAPIBase  = "https://api.ouraring.com/v2/usercollection"
	DefaultAuthURL  = "https://cloud.ouraring.com/oauth/authorize"
	DefaultTokenURL = "https://api.ouraring.com/oauth/token"
)

// Session is an authenticated Oura API session
type Session struct {
	api    *httpapi.Client
	source oauth2.TokenSource
}

// Token returns the current token, refreshing it if needed
func (s *Session) Token() (*oauth2.Token, error) {
	return s.source.Token()
}

// OAuthApp holds the client registration needed to refresh tokens
type OAuthApp struct {
	ClientID     string
	ClientSecret string
}

// Provider implements dump.SessionProvider for Oura
type Provider struct {
	httpClient *http.Client
	apiBase    string
	oauth      *oauth2.Config
	logger     dump.Logger
}

// Option configures a Provider
type Option func(*Provider)

// WithHTTPClient sets the base client used for every request
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithAPIBase overrides the usercollection base URL
func WithAPIBase(base string) Option {
	return func(p *Provider) { p.apiBase = strings.TrimRight(base, "/") }
}

// WithOAuthApp enables refreshing of stored tokens. tokenURL may be empty.
func WithOAuthApp(app OAuthApp, tokenURL string) Option {
	return func(p *Provider) {
		if app.ClientID == "" {
			return
		}
		if tokenURL == "" {
			tokenURL = DefaultTokenURL
		}
		p.oauth = &oauth2.Config{
			ClientID:     app.ClientID,
			ClientSecret: app.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   DefaultAuthURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
	}
}

// WithLogger sets the logger
func WithLogger(l dump.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a provider talking to the real Oura API
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiBase:    DefaultAPIBase,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadStoredSession implements dump.SessionProvider. With an OAuth app
// configured an expired token is refreshed and written back.
func (p *Provider) LoadStoredSession(ctx context.Context, path string) (*Session, error) {
	stored, err := LoadToken(path)
	if err != nil {
		return nil, err
	}

	var source oauth2.TokenSource
	switch {
	case p.oauth != nil && stored.RefreshToken != "":
		source = p.oauth.TokenSource(p.clientContext(), stored)
	case !stored.Expiry.IsZero() && stored.Expiry.Before(time.Now()):
		return nil, errors.New("stored token expired and cannot be refreshed")
	default:
		source = oauth2.StaticTokenSource(stored)
	}

	session, err := p.newSession(ctx, source)
	if err != nil {
		return nil, err
	}

	current, err := session.Token()
	if err == nil && current.AccessToken != stored.AccessToken {
		p.logger.Info("oura token refreshed", "path", path)
		if err := SaveToken(path, current); err != nil {
			p.logger.Warn("failed to persist refreshed token", "path", path, "error", err)
		}
	}
	return session, nil
}

// Authenticate implements dump.SessionProvider with a personal access token
func (p *Provider) Authenticate(ctx context.Context, creds dump.Credentials) (*Session, error) {
	if creds.Token == "" {
		return nil, &dump.AuthenticationError{Vendor: Vendor, Cause: "an access token is required"}
	}
	session, err := p.newSession(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: creds.Token,
		TokenType:   "Bearer",
	}))
	if err != nil {
		return nil, &dump.AuthenticationError{Vendor: Vendor, Cause: "token rejected", Err: err}
	}
	return session, nil
}

// SaveSession implements dump.SessionProvider
func (p *Provider) SaveSession(path string, session *Session) error {
	token, err := session.Token()
	if err != nil {
		return err
	}
	return SaveToken(path, token)
}

// MatchesCredentials implements dump.CredentialMatcher. A session matches
// when no token was given or it holds that very token.
func (p *Provider) MatchesCredentials(session *Session, creds dump.Credentials) bool {
	if creds.Token == "" {
		return true
	}
	token, err := session.Token()
	return err == nil && token.AccessToken == creds.Token
}

// clientContext carries the base HTTP client into golang.org/x/oauth2
func (p *Provider) clientContext() context.Context {
	return context.WithValue(context.Background(), oauth2.HTTPClient, p.httpClient)
}

// newSession builds the bearer client and checks the token with one call
func (p *Provider) newSession(ctx context.Context, source oauth2.TokenSource) (*Session, error) {
	source = oauth2.ReuseTokenSource(nil, source)
	session := &Session{
		api:    httpapi.New(oauth2.NewClient(p.clientContext(), source), p.apiBase, httpapi.WithLogger(p.logger)),
		source: source,
	}

	if _, err := session.getObject(ctx, "personal_info"); err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	return session, nil
}
