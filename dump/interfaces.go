package dump

import (
	"context"
	"time"
)

// FileSystem interface abstracts file operations for testing
type FileSystem interface {
	WriteFile(path string, data []byte, perm int) error
	Exists(path string) bool
	MkdirAll(path string, perm int) error
}

// Logger interface abstracts logging for testing
type Logger interface {
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Sink persists a finished record under the given file name and returns
// where it ended up.
type Sink interface {
	Save(ctx context.Context, record any, fileName string) (string, error)
}

// Reporter receives progress events from the downloader in fetch order.
type Reporter interface {
	DayStarted(vendor string, day time.Time)
	MetricFetched(vendor string, day time.Time, result MetricResult)
	DayFinished(vendor string, record *DayRecord, err error)
}

// Credentials holds whatever a vendor needs for a fresh login.
// Garmin uses Username/Password (and MFA when the account has it enabled),
// Oura uses Token.
type Credentials struct {
	Username string
	Password string
	Token    string

	// MFA is asked for a one-time code when the vendor requires it.
	MFA func(ctx context.Context) (string, error)
}

// Empty reports whether no credential at all was provided.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == "" && c.Token == ""
}

// SessionProvider produces authenticated sessions for one vendor.
type SessionProvider[S any] interface {
	LoadStoredSession(ctx context.Context, path string) (S, error)
	Authenticate(ctx context.Context, creds Credentials) (S, error)
	SaveSession(path string, session S) error
}

// Metric describes one remote call that yields one named payload for a day.
type Metric[S any] struct {
	Name string
	// List marks metrics whose payload is a sequence; a degraded list metric
	// is stored as an empty sequence instead of null.
	List  bool
	Fetch func(ctx context.Context, session S, day time.Time) (any, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the production SleepFunc.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopReporter struct{}

func (nopReporter) DayStarted(string, time.Time)                  {}
func (nopReporter) MetricFetched(string, time.Time, MetricResult) {}
func (nopReporter) DayFinished(string, *DayRecord, error)         {}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
