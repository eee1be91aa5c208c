package garmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roessland/wearabledump/dump"
)

const (
	signinPage = `<!DOCTYPE html><html><head><title>GARMIN Authentication Application</title></head>
<body><form method="post"><input type="hidden" name="_csrf" value="csrf-signin-1"/>
<input name="username"/><input name="password" type="password"/></form></body></html>`

	mfaPage = `<!DOCTYPE html><html><head><title>GARMIN > MFA Challenge</title></head>
<body><form><input type="hidden" name="_csrf" value="csrf-mfa-2"/><input name="mfa-code"/></form></body></html>`

	successPage = `<!DOCTYPE html><html><head><title>Success</title></head>
<body><script>var response_url = "https:\/\/sso.garmin.com\/sso\/embed?ticket=ST-0123456-abcdef-cas";</script></body></html>`

	lockedPage = `<!DOCTYPE html><html><head><title>Account Locked</title></head><body></body></html>`
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestParseSSOPages(t *testing.T) {
	csrf, err := parseCSRF(mustDoc(t, signinPage))
	require.NoError(t, err)
	assert.Equal(t, "csrf-signin-1", csrf)

	_, err = parseCSRF(mustDoc(t, lockedPage))
	assert.Error(t, err)

	assert.Equal(t, "GARMIN > MFA Challenge", parseTitle(mustDoc(t, mfaPage)))
	assert.Equal(t, "Success", parseTitle(mustDoc(t, successPage)))

	ticket, err := parseTicket(successPage)
	require.NoError(t, err)
	assert.Equal(t, "ST-0123456-abcdef-cas", ticket)

	_, err = parseTicket(lockedPage)
	assert.Error(t, err)
}

func TestOAuth1Signature_KnownVector(t *testing.T) {
	// Reference request from the Twitter OAuth 1.0a signing guide
	params := oauth1Params{
		consumer: Consumer{Key: "xvz1evFS4wEEPTGEFPHBog", Secret: "kAcSOqF21Fu85e7zjz7ZN2U4ZRhfV3WpwPAoE3Z7kBw"},
		token: &OAuth1Token{
			Token:  "370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb",
			Secret: "LswwdoUaIvS8ltyTt5jkRh4J50vUPVVHtR2YPi5kE",
		},
		nonce:     "kYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg",
		timestamp: 1318622958,
	}
	form := url.Values{"status": {"Hello Ladies + Gentlemen, a signed OAuth request!"}}

	header, err := params.authorizationHeader("POST", "https://api.twitter.com/1.1/statuses/update.json?include_entities=true", form)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(header, "OAuth "))
	assert.Contains(t, header, `oauth_signature="hCtSmYh%2BiHYCEqBWrE7C7hYmtUk%3D"`)
	assert.Contains(t, header, `oauth_token="370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb"`)
	assert.Contains(t, header, `oauth_signature_method="HMAC-SHA1"`)
}

func TestOAuth1Signature_WithoutToken(t *testing.T) {
	params := oauth1Params{consumer: Consumer{Key: "k", Secret: "s"}, nonce: "n", timestamp: 1}

	header, err := params.authorizationHeader("GET", "https://connectapi.garmin.com/oauth-service/oauth/preauthorized?ticket=ST-1", nil)

	require.NoError(t, err)
	assert.NotContains(t, header, "oauth_token=")
	assert.Contains(t, header, `oauth_consumer_key="k"`)
}

func TestPercentEncode(t *testing.T) {
	tests := map[string]string{
		"abc-._~XYZ019": "abc-._~XYZ019",
		"a b":           "a%20b",
		"a+b":           "a%2Bb",
		"https://x/y?z": "https%3A%2F%2Fx%2Fy%3Fz",
		"ø":             "%C3%B8",
	}
	for in, want := range tests {
		assert.Equal(t, want, percentEncode(in), in)
	}
}

func TestTokens_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "garmin_tokens.json")
	tokens := &Tokens{
		OAuth1: &OAuth1Token{Token: "t1", Secret: "s1", MFAToken: "mfa"},
		OAuth2: &OAuth2Token{AccessToken: "a2", ExpiresAt: fixedNow.Unix() + 3600},
	}

	require.NoError(t, SaveTokens(path, tokens))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadTokens(path)
	require.NoError(t, err)
	assert.Equal(t, tokens, loaded)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"oauth_token_secret": "s1"`)
}

func TestLoadTokens_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadTokens(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"oauth1": null, "oauth2": null}`), 0600))
	_, err = LoadTokens(empty)
	assert.ErrorIs(t, err, ErrNoTokens)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{`), 0600))
	_, err = LoadTokens(broken)
	assert.Error(t, err)
}

func TestOAuth2Token_Expired(t *testing.T) {
	var missing *OAuth2Token
	assert.True(t, missing.Expired(fixedNow))
	assert.True(t, (&OAuth2Token{}).Expired(fixedNow))
	assert.True(t, (&OAuth2Token{AccessToken: "a", ExpiresAt: fixedNow.Unix() + 30}).Expired(fixedNow))
	assert.False(t, (&OAuth2Token{AccessToken: "a", ExpiresAt: fixedNow.Unix() + 3600}).Expired(fixedNow))
}

// fakeGarmin serves the SSO, OAuth and connectapi endpoints
type fakeGarmin struct {
	t          *testing.T
	requireMFA bool
	exchanges  int
	gotMFACode string
	requests   []string
	auths      []string

	failSleepQuery bool
}

func (f *fakeGarmin) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/consumer", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"consumer_key":"ck","consumer_secret":"cs"}`)
	})
	mux.HandleFunc("/sso/embed", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "GARMIN-SSO", Value: "1", Path: "/"})
		fmt.Fprint(w, "<html><title>embed</title></html>")
	})
	mux.HandleFunc("/sso/signin", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, signinPage)
			return
		}
		if _, err := r.Cookie("GARMIN-SSO"); err != nil {
			http.Error(w, "no cookie", http.StatusForbidden)
			return
		}
		_ = r.ParseForm()
		if r.PostForm.Get("_csrf") != "csrf-signin-1" || r.PostForm.Get("password") != "hunter2" {
			fmt.Fprint(w, lockedPage)
			return
		}
		if f.requireMFA {
			fmt.Fprint(w, mfaPage)
			return
		}
		fmt.Fprint(w, successPage)
	})
	mux.HandleFunc("/sso/verifyMFA/loginEnterMfaCode", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.gotMFACode = r.PostForm.Get("mfa-code")
		if r.PostForm.Get("_csrf") != "csrf-mfa-2" || r.PostForm.Get("fromPage") != "setupEnterMfaCode" {
			fmt.Fprint(w, lockedPage)
			return
		}
		fmt.Fprint(w, successPage)
	})
	mux.HandleFunc("/oauth-service/oauth/preauthorized", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ticket") != "ST-0123456-abcdef-cas" || !strings.HasPrefix(r.Header.Get("Authorization"), "OAuth ") {
			http.Error(w, "bad ticket", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, "oauth_token=pre-token&oauth_token_secret=pre-secret&mfa_token=mfa-xyz")
	})
	mux.HandleFunc("/oauth-service/oauth/exchange/user/2.0", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Authorization"), `oauth_token="pre-token"`) {
			http.Error(w, "not signed", http.StatusUnauthorized)
			return
		}
		f.exchanges++
		fmt.Fprintf(w, `{"access_token":"access-%d","token_type":"Bearer","expires_in":3600,"refresh_token":"r","refresh_token_expires_in":7200}`, f.exchanges)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer access-") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		f.requests = append(f.requests, r.URL.RequestURI())
		f.auths = append(f.auths, r.Header.Get("Authorization"))
		switch {
		case f.failSleepQuery && r.URL.Query().Has("nonSleepBufferMinutes"):
			http.Error(w, "gone", http.StatusInternalServerError)
		case r.URL.Path == profilePath:
			fmt.Fprint(w, `{"displayName":"runner42","fullName":"Test Runner"}`)
		case strings.HasPrefix(r.URL.Path, "/activitylist-service/"):
			fmt.Fprint(w, `[{"activityId":1}]`)
		case strings.HasPrefix(r.URL.Path, "/device-service/"):
			fmt.Fprint(w, `null`)
		case strings.HasPrefix(r.URL.Path, "/hrv-service/"):
			w.WriteHeader(http.StatusNoContent)
		default:
			fmt.Fprintf(w, `{"path":%q}`, r.URL.Path)
		}
	})
	return mux
}

func newTestProvider(t *testing.T, f *fakeGarmin) (*Provider, *httptest.Server) {
	return newTestProviderWithClock(t, f, func() time.Time { return fixedNow })
}

func newTestProviderWithClock(t *testing.T, f *fakeGarmin, now func() time.Time) (*Provider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	p := NewProvider(
		WithHTTPClient(srv.Client()),
		WithEndpoints(srv.URL, srv.URL+"/sso", srv.URL+"/consumer"),
		WithClock(now),
	)
	return p, srv
}

func TestProvider_Authenticate(t *testing.T) {
	// Arrange
	f := &fakeGarmin{t: t}
	p, _ := newTestProvider(t, f)

	// Act
	session, err := p.Authenticate(context.Background(), dump.Credentials{Username: "me@example.com", Password: "hunter2"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "runner42", session.DisplayName)
	assert.Equal(t, "pre-token", session.Tokens.OAuth1.Token)
	assert.Equal(t, "mfa-xyz", session.Tokens.OAuth1.MFAToken)
	assert.Equal(t, "access-1", session.Tokens.OAuth2.AccessToken)
	assert.Equal(t, fixedNow.Unix()+3600, session.Tokens.OAuth2.ExpiresAt)
}

func TestProvider_AuthenticateWithMFA(t *testing.T) {
	f := &fakeGarmin{t: t, requireMFA: true}
	p, _ := newTestProvider(t, f)
	creds := dump.Credentials{
		Username: "me@example.com",
		Password: "hunter2",
		MFA:      func(context.Context) (string, error) { return " 123456\n", nil },
	}

	session, err := p.Authenticate(context.Background(), creds)

	require.NoError(t, err)
	assert.Equal(t, "123456", f.gotMFACode)
	assert.Equal(t, "runner42", session.DisplayName)
}

func TestProvider_AuthenticateMFAWithoutPrompt(t *testing.T) {
	f := &fakeGarmin{t: t, requireMFA: true}
	p, _ := newTestProvider(t, f)

	_, err := p.Authenticate(context.Background(), dump.Credentials{Username: "me@example.com", Password: "hunter2"})

	var authErr *dump.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, ErrMFARequired)
}

func TestProvider_AuthenticateWrongPassword(t *testing.T) {
	f := &fakeGarmin{t: t}
	p, _ := newTestProvider(t, f)

	_, err := p.Authenticate(context.Background(), dump.Credentials{Username: "me@example.com", Password: "wrong"})

	var authErr *dump.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "sso login failed", authErr.Cause)
	assert.Contains(t, err.Error(), "Account Locked")
}

func TestProvider_AuthenticateNeedsCredentials(t *testing.T) {
	p := NewProvider()

	_, err := p.Authenticate(context.Background(), dump.Credentials{Token: "not-for-garmin"})

	var authErr *dump.AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}

func TestProvider_LoadStoredSession(t *testing.T) {
	f := &fakeGarmin{t: t}
	p, _ := newTestProvider(t, f)
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, SaveTokens(path, &Tokens{
		OAuth1: &OAuth1Token{Token: "pre-token", Secret: "pre-secret"},
		OAuth2: &OAuth2Token{AccessToken: "access-0", ExpiresAt: fixedNow.Unix() + 3600},
	}))

	session, err := p.LoadStoredSession(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, "runner42", session.DisplayName)
	assert.Zero(t, f.exchanges, "a valid token is not exchanged")
}

func TestProvider_LoadStoredSessionRefreshesExpiredToken(t *testing.T) {
	// Arrange
	f := &fakeGarmin{t: t}
	p, _ := newTestProvider(t, f)
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, SaveTokens(path, &Tokens{
		OAuth1: &OAuth1Token{Token: "pre-token", Secret: "pre-secret"},
		OAuth2: &OAuth2Token{AccessToken: "access-0", ExpiresAt: fixedNow.Unix() - 10},
	}))

	// Act
	session, err := p.LoadStoredSession(context.Background(), path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, f.exchanges)
	assert.Equal(t, "access-1", session.Tokens.OAuth2.AccessToken)

	stored, err := LoadTokens(path)
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.OAuth2.AccessToken, "refreshed token is written back")
}

func TestSession_ExchangesTokenThatExpiresDuringRun(t *testing.T) {
	// Arrange
	f := &fakeGarmin{t: t}
	now := fixedNow
	p, _ := newTestProviderWithClock(t, f, func() time.Time { return now })
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, SaveTokens(path, &Tokens{
		OAuth1: &OAuth1Token{Token: "pre-token", Secret: "pre-secret"},
		OAuth2: &OAuth2Token{AccessToken: "access-0", ExpiresAt: fixedNow.Unix() + 3600},
	}))
	session, err := p.LoadStoredSession(context.Background(), path)
	require.NoError(t, err)
	require.Zero(t, f.exchanges)

	now = fixedNow.Add(2 * time.Hour)
	f.auths = nil

	// Act
	_, err = fetchStress(context.Background(), session, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, f.exchanges)
	assert.Equal(t, []string{"Bearer access-1"}, f.auths)
	assert.Equal(t, "access-1", session.Tokens.OAuth2.AccessToken)

	stored, err := LoadTokens(path)
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.OAuth2.AccessToken, "exchanged token is written back")
}

func TestSession_ExchangedTokenFollowsSavedPath(t *testing.T) {
	// Arrange
	f := &fakeGarmin{t: t}
	now := fixedNow
	p, _ := newTestProviderWithClock(t, f, func() time.Time { return now })
	session, err := p.Authenticate(context.Background(), dump.Credentials{Username: "me@example.com", Password: "hunter2"})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, p.SaveSession(path, session))

	now = fixedNow.Add(2 * time.Hour)

	// Act
	_, err = fetchHRV(context.Background(), session, fixedNow)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, f.exchanges)
	stored, err := LoadTokens(path)
	require.NoError(t, err)
	assert.Equal(t, "access-2", stored.OAuth2.AccessToken)
}

func TestProvider_LoadStoredSessionExpiredWithoutOAuth1(t *testing.T) {
	p, _ := newTestProvider(t, &fakeGarmin{t: t})
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, SaveTokens(path, &Tokens{
		OAuth2: &OAuth2Token{AccessToken: "access-0", ExpiresAt: fixedNow.Unix() - 10},
	}))

	_, err := p.LoadStoredSession(context.Background(), path)

	assert.Error(t, err)
}

func TestProvider_LoadStoredSessionRejectedToken(t *testing.T) {
	p, _ := newTestProvider(t, &fakeGarmin{t: t})
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, SaveTokens(path, &Tokens{
		OAuth2: &OAuth2Token{AccessToken: "revoked", ExpiresAt: fixedNow.Unix() + 3600},
	}))

	_, err := p.LoadStoredSession(context.Background(), path)

	assert.Error(t, err)
}

func TestMetrics_RequestsAndPayloads(t *testing.T) {
	// Arrange
	f := &fakeGarmin{t: t}
	p, _ := newTestProvider(t, f)
	session, err := p.Authenticate(context.Background(), dump.Credentials{Username: "me@example.com", Password: "hunter2"})
	require.NoError(t, err)
	f.requests = nil
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	// Act
	results := make(map[string]any)
	for _, m := range Metrics() {
		v, err := m.Fetch(context.Background(), session, day)
		require.NoError(t, err, m.Name)
		results[m.Name] = v
	}

	// Assert
	names := make([]string, 0, len(Metrics()))
	for _, m := range Metrics() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"profile", "daily_summary", "heart_rate", "sleep", "stress", "hrv", "body_battery", "activities", "devices"}, names)

	assert.Equal(t, []string{
		"/userprofile-service/socialProfile",
		"/usersummary-service/usersummary/daily/runner42?calendarDate=2024-03-10",
		"/wellness-service/wellness/dailyHeartRate/runner42?date=2024-03-10",
		"/wellness-service/wellness/dailySleepData/runner42?date=2024-03-10&nonSleepBufferMinutes=60",
		"/wellness-service/wellness/dailyStress/2024-03-10",
		"/hrv-service/hrv/2024-03-10",
		"/wellness-service/wellness/bodyBattery/reports/daily?endDate=2024-03-10&startDate=2024-03-10",
		"/activitylist-service/activities/search/activities?endDate=2024-03-10&limit=100&start=0&startDate=2024-03-10",
		"/device-service/deviceregistration/devices",
	}, f.requests)

	assert.Nil(t, results["hrv"], "no content decodes to null")
	assert.Equal(t, []any{}, results["devices"])
	assert.Len(t, results["activities"], 1)

	encoded, err := json.Marshal(results["daily_summary"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"/usersummary-service/usersummary/daily/runner42"}`, string(encoded))
}

func TestFetchSleep_FallsBackToDatedPath(t *testing.T) {
	// Arrange
	f := &fakeGarmin{t: t, failSleepQuery: true}
	p, _ := newTestProvider(t, f)
	session, err := p.Authenticate(context.Background(), dump.Credentials{Username: "me@example.com", Password: "hunter2"})
	require.NoError(t, err)
	f.requests = nil

	// Act
	payload, err := fetchSleep(context.Background(), session, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/wellness-service/wellness/dailySleepData/runner42?date=2024-03-10&nonSleepBufferMinutes=60",
		"/wellness-service/wellness/dailySleepData/runner42/2024-03-10",
	}, f.requests)
	assert.Equal(t, map[string]any{"path": "/wellness-service/wellness/dailySleepData/runner42/2024-03-10"}, payload)
}

func TestAsList(t *testing.T) {
	got, err := asList(nil)
	require.NoError(t, err)
	assert.Equal(t, []any{}, got)

	got, err = asList([]any{1.0})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = asList(map[string]any{"error": "x"})
	assert.Error(t, err)
}
