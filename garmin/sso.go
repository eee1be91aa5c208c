package garmin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/roessland/wearabledump/pkg/httpapi"
)

var (
	ticketRe = regexp.MustCompile(`embed\?ticket=([^"]+)"`)

	// ErrMFARequired is returned when the account needs a one-time code and
	// no way to ask for one was given
	ErrMFARequired = errors.New("garmin account requires an MFA code")
)

// parseCSRF returns the _csrf form value of an SSO page
func parseCSRF(doc *goquery.Document) (string, error) {
	csrf, ok := doc.Find(`input[name="_csrf"]`).First().Attr("value")
	if !ok || csrf == "" {
		return "", fmt.Errorf("csrf token not found in sso page")
	}
	return csrf, nil
}

// parseTitle returns the trimmed page title
func parseTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// parseTicket extracts the service ticket from the success page
func parseTicket(html string) (string, error) {
	matches := ticketRe.FindStringSubmatch(html)
	if len(matches) < 2 {
		return "", fmt.Errorf("ticket not found in sso response")
	}
	return matches[1], nil
}

// ssoSession walks the SSO embed widget. It needs its own cookie jar.
type ssoSession struct {
	client  *httpapi.Client
	base    string
	referer string
}

func (s *ssoSession) embedURL() string {
	return s.base + "/embed"
}

func (s *ssoSession) embedParams() url.Values {
	return url.Values{
		"id":          {"gauth-widget"},
		"embedWidget": {"true"},
		"gauthHost":   {s.base},
	}
}

func (s *ssoSession) signinParams() url.Values {
	embed := s.embedURL()
	params := s.embedParams()
	params.Set("gauthHost", embed)
	params.Set("service", embed)
	params.Set("source", embed)
	params.Set("redirectAfterAccountLoginUrl", embed)
	params.Set("redirectAfterAccountCreationUrl", embed)
	return params
}

// page performs a GET or form POST and returns the parsed HTML
func (s *ssoSession) page(ctx context.Context, method, path string, query, form url.Values) (*goquery.Document, string, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := s.client.NewRequest(ctx, method, s.base+path, query, body)
	if err != nil {
		return nil, "", err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if s.referer != "" {
		req.Header.Set("Referer", s.referer)
	}

	_, respBody, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	s.referer = req.URL.String()

	html := string(respBody)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse sso page: %w", err)
	}
	return doc, html, nil
}

// login signs in with username and password and returns the service ticket
func (s *ssoSession) login(ctx context.Context, username, password string, mfa func(ctx context.Context) (string, error)) (string, error) {
	// Sets the initial cookies
	if _, _, err := s.page(ctx, http.MethodGet, "/embed", s.embedParams(), nil); err != nil {
		return "", fmt.Errorf("failed to open sso embed: %w", err)
	}

	signin := s.signinParams()
	doc, _, err := s.page(ctx, http.MethodGet, "/signin", signin, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get signin page: %w", err)
	}
	csrf, err := parseCSRF(doc)
	if err != nil {
		return "", err
	}

	doc, html, err := s.page(ctx, http.MethodPost, "/signin", signin, url.Values{
		"username": {username},
		"password": {password},
		"embed":    {"true"},
		"_csrf":    {csrf},
	})
	if err != nil {
		return "", fmt.Errorf("failed to post credentials: %w", err)
	}

	title := parseTitle(doc)
	if strings.Contains(title, "MFA") {
		if mfa == nil {
			return "", ErrMFARequired
		}
		if csrf, err = parseCSRF(doc); err != nil {
			return "", err
		}
		code, err := mfa(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read MFA code: %w", err)
		}

		doc, html, err = s.page(ctx, http.MethodPost, "/verifyMFA/loginEnterMfaCode", signin, url.Values{
			"mfa-code": {strings.TrimSpace(code)},
			"embed":    {"true"},
			"_csrf":    {csrf},
			"fromPage": {"setupEnterMfaCode"},
		})
		if err != nil {
			return "", fmt.Errorf("failed to submit MFA code: %w", err)
		}
		title = parseTitle(doc)
	}

	if title != "Success" {
		return "", fmt.Errorf("unexpected sso page title %q", title)
	}
	return parseTicket(html)
}
