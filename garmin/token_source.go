package garmin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// exchangeTimeout bounds a mid-run exchange; oauth2.TokenSource has no context
const exchangeTimeout = time.Minute

// exchangingSource hands out the session's OAuth2 token and mints a new one
// from the OAuth1 token once it expires. The tokens are shared with the
// Session, and a fresh token is written to path when one is set.
type exchangingSource struct {
	p *Provider

	mu     sync.Mutex
	tokens *Tokens
	path   string
}

var _ oauth2.TokenSource = (*exchangingSource)(nil)

func (s *exchangingSource) setPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
}

// Token implements oauth2.TokenSource
func (s *exchangingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tokens.OAuth2.Expired(s.p.now()) {
		return s.tokens.OAuth2.oauth2(), nil
	}
	if s.tokens.OAuth1 == nil {
		return nil, errors.New("oauth2 token expired and no oauth1 token stored")
	}

	s.p.logger.Info("oauth2 token expired during session, exchanging")
	ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
	defer cancel()
	fresh, err := s.p.exchange(ctx, s.tokens.OAuth1)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh oauth2 token: %w", err)
	}
	s.tokens.OAuth2 = fresh

	if s.path != "" {
		if err := SaveTokens(s.path, s.tokens); err != nil {
			s.p.logger.Warn("failed to persist refreshed tokens", "path", s.path, "error", err)
		}
	}
	return fresh.oauth2(), nil
}
