package dump

import (
	"context"
	"errors"
)

// AuthService handles authentication and session management
type AuthService[S any] struct {
	vendor    string
	provider  SessionProvider[S]
	tokenPath string
	logger    Logger
}

// NewAuthService creates a new authentication service
func NewAuthService[S any](vendor string, provider SessionProvider[S], tokenPath string, logger Logger) *AuthService[S] {
	if logger == nil {
		logger = nopLogger{}
	}
	return &AuthService[S]{
		vendor:    vendor,
		provider:  provider,
		tokenPath: tokenPath,
		logger:    logger,
	}
}

// CredentialMatcher is implemented by providers that can tell whether a
// stored session belongs to the credentials given for this run.
type CredentialMatcher[S any] interface {
	MatchesCredentials(session S, creds Credentials) bool
}

// EnsureSession returns a usable session.
// It tries the stored session first and logs in with creds if that fails.
// Credentials that name a different account than the stored session win;
// the stored session is only kept if logging in with them fails.
func (a *AuthService[S]) EnsureSession(ctx context.Context, creds Credentials) (S, error) {
	var zero S

	a.logger.Debug("attempting to use stored session", "path", a.tokenPath)
	session, err := a.provider.LoadStoredSession(ctx, a.tokenPath)
	if err == nil {
		if !a.matches(session, creds) {
			a.logger.Info("given credentials differ from stored session, attempting login", "vendor", a.vendor)
			fresh, loginErr := a.login(ctx, creds)
			if loginErr == nil {
				return fresh, nil
			}
			a.logger.Warn("login with given credentials failed, keeping stored session", "vendor", a.vendor, "error", loginErr)
		}
		a.logger.Info("using stored session", "vendor", a.vendor)
		return session, nil
	}

	if creds.Empty() {
		return zero, asAuthError(a.vendor, "no stored session and no credentials", err)
	}
	a.logger.Info("stored session unusable, attempting login", "vendor", a.vendor, "reason", err)

	return a.login(ctx, creds)
}

func (a *AuthService[S]) matches(session S, creds Credentials) bool {
	m, ok := a.provider.(CredentialMatcher[S])
	return !ok || creds.Empty() || m.MatchesCredentials(session, creds)
}

// login authenticates with creds and persists the new session
func (a *AuthService[S]) login(ctx context.Context, creds Credentials) (S, error) {
	var zero S

	session, err := a.provider.Authenticate(ctx, creds)
	if err != nil {
		return zero, asAuthError(a.vendor, "login failed", err)
	}

	// Persist immediately after a successful login
	if err := a.provider.SaveSession(a.tokenPath, session); err != nil {
		a.logger.Warn("failed to persist session", "path", a.tokenPath, "error", err)
	}

	a.logger.Info("successfully logged in", "vendor", a.vendor)
	return session, nil
}

// asAuthError keeps an existing AuthenticationError intact and wraps anything
// else.
func asAuthError(vendor, cause string, err error) error {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return err
	}
	return &AuthenticationError{Vendor: vendor, Cause: cause, Err: err}
}
