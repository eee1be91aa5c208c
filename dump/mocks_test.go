package dump

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MockLogger implements Logger for testing
type MockLogger struct {
	InfoCalls  []LogCall
	DebugCalls []LogCall
	WarnCalls  []LogCall
	ErrorCalls []LogCall
}

type LogCall struct {
	Message string
	Args    []any
}

func (m *MockLogger) Info(msg string, args ...any) {
	m.InfoCalls = append(m.InfoCalls, LogCall{Message: msg, Args: args})
}

func (m *MockLogger) Debug(msg string, args ...any) {
	m.DebugCalls = append(m.DebugCalls, LogCall{Message: msg, Args: args})
}

func (m *MockLogger) Warn(msg string, args ...any) {
	m.WarnCalls = append(m.WarnCalls, LogCall{Message: msg, Args: args})
}

func (m *MockLogger) Error(msg string, args ...any) {
	m.ErrorCalls = append(m.ErrorCalls, LogCall{Message: msg, Args: args})
}

func (m *MockLogger) hasMessage(calls []LogCall, msg string) bool {
	for _, c := range calls {
		if c.Message == msg {
			return true
		}
	}
	return false
}

// recordingSleeper counts pacing and retry waits without sleeping
type recordingSleeper struct {
	Calls []time.Duration
	Err   error
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.Calls = append(s.Calls, d)
	if s.Err != nil {
		return s.Err
	}
	return ctx.Err()
}

func (s *recordingSleeper) count(d time.Duration) int {
	n := 0
	for _, c := range s.Calls {
		if c == d {
			n++
		}
	}
	return n
}

// MockSink implements Sink for testing
type MockSink struct {
	Saved     map[string]any
	SaveCalls []string
	// FailNames makes Save fail for the listed file names
	FailNames map[string]error
}

func NewMockSink() *MockSink {
	return &MockSink{
		Saved:     make(map[string]any),
		FailNames: make(map[string]error),
	}
}

func (m *MockSink) Save(ctx context.Context, record any, fileName string) (string, error) {
	m.SaveCalls = append(m.SaveCalls, fileName)
	if err, ok := m.FailNames[fileName]; ok {
		return "", err
	}
	m.Saved[fileName] = record
	return "/data/" + fileName, nil
}

// fakeSession is the session type used by downloader tests
type fakeSession struct {
	Token string
}

// MockSessionProvider implements SessionProvider[fakeSession] for testing
type MockSessionProvider struct {
	Stored      *fakeSession
	LoadError   error
	AuthError   error
	SaveError   error
	AuthCalled  bool
	SavedPath   string
	SavedToken  string
	GotCreds    Credentials
	LoadedPaths []string
}

func (m *MockSessionProvider) LoadStoredSession(ctx context.Context, path string) (fakeSession, error) {
	m.LoadedPaths = append(m.LoadedPaths, path)
	if m.LoadError != nil {
		return fakeSession{}, m.LoadError
	}
	if m.Stored == nil {
		return fakeSession{}, errors.New("no stored session")
	}
	return *m.Stored, nil
}

func (m *MockSessionProvider) Authenticate(ctx context.Context, creds Credentials) (fakeSession, error) {
	m.AuthCalled = true
	m.GotCreds = creds
	if m.AuthError != nil {
		return fakeSession{}, m.AuthError
	}
	return fakeSession{Token: "fresh-" + creds.Username + creds.Token}, nil
}

func (m *MockSessionProvider) SaveSession(path string, session fakeSession) error {
	m.SavedPath = path
	m.SavedToken = session.Token
	return m.SaveError
}

// MatchingSessionProvider also tells whether the stored session belongs to
// the given credentials
type MatchingSessionProvider struct {
	*MockSessionProvider
	Matches bool
}

func (m *MatchingSessionProvider) MatchesCredentials(session fakeSession, creds Credentials) bool {
	return m.Matches
}

// recordingReporter captures reporter events in order
type recordingReporter struct {
	Events []string
}

func (r *recordingReporter) DayStarted(vendor string, day time.Time) {
	r.Events = append(r.Events, fmt.Sprintf("start %s %s", vendor, FormatDate(day)))
}

func (r *recordingReporter) MetricFetched(vendor string, day time.Time, result MetricResult) {
	r.Events = append(r.Events, fmt.Sprintf("metric %s %s %s", FormatDate(day), result.Metric, result.Outcome))
}

func (r *recordingReporter) DayFinished(vendor string, record *DayRecord, err error) {
	r.Events = append(r.Events, fmt.Sprintf("finish %s %s err=%v", vendor, record.Date, err != nil))
}

// callLog records the order of remote calls made by test metrics
type callLog struct {
	Calls []string
}

func (c *callLog) add(metric string, day time.Time) {
	c.Calls = append(c.Calls, metric+"@"+FormatDate(day))
}

// okMetric always succeeds with a payload derived from the date
func okMetric(name string, log *callLog) Metric[fakeSession] {
	return Metric[fakeSession]{
		Name: name,
		Fetch: func(ctx context.Context, s fakeSession, day time.Time) (any, error) {
			log.add(name, day)
			return map[string]any{"metric": name, "date": FormatDate(day)}, nil
		},
	}
}

// failingMetric fails every attempt with err
func failingMetric(name string, list bool, err error, log *callLog) Metric[fakeSession] {
	return Metric[fakeSession]{
		Name: name,
		List: list,
		Fetch: func(ctx context.Context, s fakeSession, day time.Time) (any, error) {
			log.add(name, day)
			return nil, err
		},
	}
}

func mustDate(s string) time.Time {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

// testConfig returns a config with recognizable delays and a recording sleeper
func testConfig(sleeper *recordingSleeper) Config {
	cfg := DefaultConfig()
	cfg.Sleep = sleeper.Sleep
	cfg.Now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return cfg
}
