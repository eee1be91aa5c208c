// Package garmin talks to Garmin Connect: SSO login, OAuth token handling and
// the per-day wellness endpoints.
package garmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/roessland/wearabledump/dump"
	"github.com/roessland/wearabledump/pkg/httpapi"
)

const (
	Vendor = "garmin"

	DefaultAPIBase     = "https://connectapi.garmin.com"
	DefaultSSOBase     = "https://sso.garmin.com/sso"
	DefaultConsumerURL = "https://thegarth.s3.amazonaws.com/oauth_consumer.json"

	userAgent      = "GCM-iOS-5.7.2.1"
	oauthUserAgent = "com.garmin.android.apps.connectmobile"
	profilePath    = "/userprofile-service/socialProfile"
)

// Session is an authenticated Garmin Connect API session
type Session struct {
	api         *httpapi.Client
	source      *exchangingSource
	DisplayName string
	Tokens      *Tokens
}

// GetJSON performs a GET against connectapi and decodes the payload
func (s *Session) GetJSON(ctx context.Context, path string, query url.Values) (any, error) {
	var out any
	if err := s.api.GetJSON(ctx, path, query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Provider implements dump.SessionProvider for Garmin Connect
type Provider struct {
	httpClient  *http.Client
	apiBase     string
	ssoBase     string
	consumerURL string
	logger      dump.Logger
	now         func() time.Time
	nonce       func() string

	consumer *Consumer
}

// Option configures a Provider
type Option func(*Provider)

// WithHTTPClient sets the base client used for every request
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithEndpoints overrides the Garmin URLs
func WithEndpoints(apiBase, ssoBase, consumerURL string) Option {
	return func(p *Provider) {
		p.apiBase = strings.TrimRight(apiBase, "/")
		p.ssoBase = strings.TrimRight(ssoBase, "/")
		p.consumerURL = consumerURL
	}
}

// WithConsumer skips fetching the OAuth consumer
func WithConsumer(c Consumer) Option {
	return func(p *Provider) { p.consumer = &c }
}

// WithLogger sets the logger
func WithLogger(l dump.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithClock sets the time source used for token expiry
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// NewProvider creates a provider talking to the real Garmin endpoints
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		apiBase:     DefaultAPIBase,
		ssoBase:     DefaultSSOBase,
		consumerURL: DefaultConsumerURL,
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
		nonce:       newNonce,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadStoredSession implements dump.SessionProvider. An expired OAuth2 token
// is exchanged again using the stored OAuth1 token and written back.
func (p *Provider) LoadStoredSession(ctx context.Context, path string) (*Session, error) {
	tokens, err := LoadTokens(path)
	if err != nil {
		return nil, err
	}

	if tokens.OAuth2.Expired(p.now()) {
		if tokens.OAuth1 == nil {
			return nil, errors.New("oauth2 token expired and no oauth1 token stored")
		}
		p.logger.Info("oauth2 token expired, exchanging", "path", path)
		oauth2Token, err := p.exchange(ctx, tokens.OAuth1)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh oauth2 token: %w", err)
		}
		tokens.OAuth2 = oauth2Token
		if err := SaveTokens(path, tokens); err != nil {
			p.logger.Warn("failed to persist refreshed tokens", "path", path, "error", err)
		}
	}

	return p.newSession(ctx, tokens, path)
}

// Authenticate implements dump.SessionProvider with a full SSO login
func (p *Provider) Authenticate(ctx context.Context, creds dump.Credentials) (*Session, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, &dump.AuthenticationError{Vendor: Vendor, Cause: "email and password are required"}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	ssoHTTP := *p.httpClient
	ssoHTTP.Jar = jar

	sso := &ssoSession{
		client: httpapi.New(&ssoHTTP, p.ssoBase, httpapi.WithHeader("User-Agent", userAgent), httpapi.WithLogger(p.logger)),
		base:   p.ssoBase,
	}

	p.logger.Debug("starting sso login")
	ticket, err := sso.login(ctx, creds.Username, creds.Password, creds.MFA)
	if err != nil {
		return nil, &dump.AuthenticationError{Vendor: Vendor, Cause: "sso login failed", Err: err}
	}

	oauth1Token, err := p.preauthorize(ctx, ticket)
	if err != nil {
		return nil, &dump.AuthenticationError{Vendor: Vendor, Cause: "oauth1 preauthorization failed", Err: err}
	}

	oauth2Token, err := p.exchange(ctx, oauth1Token)
	if err != nil {
		return nil, &dump.AuthenticationError{Vendor: Vendor, Cause: "oauth2 exchange failed", Err: err}
	}

	return p.newSession(ctx, &Tokens{OAuth1: oauth1Token, OAuth2: oauth2Token}, "")
}

// SaveSession implements dump.SessionProvider
func (p *Provider) SaveSession(path string, session *Session) error {
	if err := SaveTokens(path, session.Tokens); err != nil {
		return err
	}
	// Later exchanges write back to the same file
	session.source.setPath(path)
	return nil
}

// newSession builds the bearer client and resolves the display name. The
// bearer token is exchanged again whenever it expires; path may be empty.
func (p *Provider) newSession(ctx context.Context, tokens *Tokens, path string) (*Session, error) {
	if tokens.OAuth2 == nil {
		return nil, ErrNoTokens
	}

	source := &exchangingSource{p: p, tokens: tokens, path: path}
	base := context.WithValue(context.Background(), oauth2.HTTPClient, p.httpClient)
	bearer := oauth2.NewClient(base, source)

	session := &Session{
		api: httpapi.New(bearer, p.apiBase,
			httpapi.WithHeader("User-Agent", userAgent),
			httpapi.WithLogger(p.logger)),
		source: source,
		Tokens: tokens,
	}

	var profile struct {
		DisplayName string `json:"displayName"`
	}
	if err := session.api.GetJSON(ctx, profilePath, nil, &profile); err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if profile.DisplayName == "" {
		return nil, errors.New("profile has no display name")
	}
	session.DisplayName = profile.DisplayName

	p.logger.Debug("garmin session ready", "display_name", session.DisplayName)
	return session, nil
}

// oauthClient is the unauthenticated client for the oauth-service
func (p *Provider) oauthClient() *httpapi.Client {
	return httpapi.New(p.httpClient, p.apiBase,
		httpapi.WithHeader("User-Agent", oauthUserAgent),
		httpapi.WithLogger(p.logger))
}

func (p *Provider) getConsumer(ctx context.Context) (Consumer, error) {
	if p.consumer != nil {
		return *p.consumer, nil
	}
	var c Consumer
	if err := httpapi.New(p.httpClient, "").GetJSON(ctx, p.consumerURL, nil, &c); err != nil {
		return Consumer{}, fmt.Errorf("failed to fetch oauth consumer: %w", err)
	}
	if c.Key == "" || c.Secret == "" {
		return Consumer{}, errors.New("oauth consumer is incomplete")
	}
	p.consumer = &c
	return c, nil
}

// preauthorize trades an SSO ticket for an OAuth1 token
func (p *Provider) preauthorize(ctx context.Context, ticket string) (*OAuth1Token, error) {
	consumer, err := p.getConsumer(ctx)
	if err != nil {
		return nil, err
	}

	client := p.oauthClient()
	query := url.Values{
		"ticket":             {ticket},
		"login-url":          {p.ssoBase + "/embed"},
		"accepts-mfa-tokens": {"true"},
	}
	req, err := client.NewRequest(ctx, http.MethodGet, "/oauth-service/oauth/preauthorized", query, nil)
	if err != nil {
		return nil, err
	}
	if err := p.sign(req, consumer, nil, nil); err != nil {
		return nil, err
	}

	_, body, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse oauth1 response: %w", err)
	}
	token := &OAuth1Token{
		Token:         values.Get("oauth_token"),
		Secret:        values.Get("oauth_token_secret"),
		MFAToken:      values.Get("mfa_token"),
		MFAExpiration: values.Get("mfa_expiration_timestamp"),
		Domain:        req.URL.Hostname(),
	}
	if token.Token == "" || token.Secret == "" {
		return nil, errors.New("oauth1 response has no token")
	}
	return token, nil
}

// exchange mints a fresh OAuth2 token from an OAuth1 token
func (p *Provider) exchange(ctx context.Context, oauth1Token *OAuth1Token) (*OAuth2Token, error) {
	consumer, err := p.getConsumer(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	if oauth1Token.MFAToken != "" {
		form.Set("mfa_token", oauth1Token.MFAToken)
	}

	client := p.oauthClient()
	req, err := client.NewRequest(ctx, http.MethodPost, "/oauth-service/oauth/exchange/user/2.0", nil, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := p.sign(req, consumer, oauth1Token, form); err != nil {
		return nil, err
	}

	_, body, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	var token OAuth2Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to decode oauth2 token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("oauth2 response has no access token")
	}
	token.stamp(p.now())
	return &token, nil
}

func (p *Provider) sign(req *http.Request, consumer Consumer, token *OAuth1Token, form url.Values) error {
	params := oauth1Params{
		consumer:  consumer,
		token:     token,
		nonce:     p.nonce(),
		timestamp: p.now().Unix(),
	}
	header, err := params.authorizationHeader(req.Method, req.URL.String(), form)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", header)
	return nil
}
