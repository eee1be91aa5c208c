package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roessland/wearabledump/dump"
	"github.com/roessland/wearabledump/history"
	"github.com/roessland/wearabledump/pkg/output"
)

var testNow = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func date(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestResolveWindow(t *testing.T) {
	tests := []struct {
		name        string
		flags       downloadFlags
		wantMode    string
		wantStart   string
		wantEnd     string
		wantClamped bool
		wantErr     bool
	}{
		{name: "default is today", wantMode: history.ModeDay, wantStart: "2024-03-15", wantEnd: "2024-03-15"},
		{name: "explicit date", flags: downloadFlags{date: "2024-02-29"}, wantMode: history.ModeDay, wantStart: "2024-02-29", wantEnd: "2024-02-29"},
		{name: "yesterday", flags: downloadFlags{yesterday: true}, wantMode: history.ModeDay, wantStart: "2024-03-14", wantEnd: "2024-03-14"},
		{name: "future date is clamped", flags: downloadFlags{date: "2024-04-01"}, wantMode: history.ModeDay, wantStart: "2024-03-15", wantEnd: "2024-03-15", wantClamped: true},
		{name: "since selects range", flags: downloadFlags{since: "2024-03-01"}, wantMode: history.ModeRange, wantStart: "2024-03-01", wantEnd: "2024-03-15"},
		{name: "relative since", flags: downloadFlags{since: "7d", until: "2024-03-10"}, wantMode: history.ModeRange, wantStart: "2024-03-04", wantEnd: "2024-03-10"},
		{name: "until alone is a one day range", flags: downloadFlags{until: "2024-03-10"}, wantMode: history.ModeRange, wantStart: "2024-03-10", wantEnd: "2024-03-10"},
		{name: "date with since", flags: downloadFlags{date: "2024-03-01", since: "2024-02-01"}, wantErr: true},
		{name: "date with yesterday", flags: downloadFlags{date: "2024-03-01", yesterday: true}, wantErr: true},
		{name: "reversed range", flags: downloadFlags{since: "2024-03-10", until: "2024-03-01"}, wantErr: true},
		{name: "bad date", flags: downloadFlags{date: "march"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := resolveWindow(tt.flags, testNow)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, w.mode)
			assert.Equal(t, tt.wantStart, dump.FormatDate(w.start))
			assert.Equal(t, tt.wantEnd, dump.FormatDate(w.end))
			assert.Equal(t, tt.wantClamped, w.clamped)
		})
	}
}

func TestParseVendors(t *testing.T) {
	vendors, err := parseVendors([]string{"Oura, garmin", "oura"})
	require.NoError(t, err)
	assert.Equal(t, []string{"oura", "garmin"}, vendors)

	_, err = parseVendors([]string{"fitbit"})
	assert.Error(t, err)

	_, err = parseVendors([]string{" , "})
	assert.Error(t, err)
}

func TestHistoryTable(t *testing.T) {
	started := time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC)
	runs := []history.RunEntry{
		{Vendor: "garmin", Mode: history.ModeDay, Start: "2024-03-14", End: "2024-03-14", Total: 1, Succeeded: 1, Path: "/data/garmin_data_2024-03-14.json", StartedAt: started, FinishedAt: started.Add(12 * time.Second)},
		{Vendor: "oura", Mode: history.ModeRange, Start: "2024-03-01", End: "2024-03-07", Total: 7, Succeeded: 6, Failed: 1, Partial: true, ErrorCount: 1, StartedAt: started},
		{Vendor: "oura", Mode: history.ModeDay, Start: "2024-03-14", End: "2024-03-14", Error: "oura authentication failed", StartedAt: started},
	}

	data := historyTable(runs)

	require.Len(t, data, 4)
	assert.Equal(t, "Vendor", data[0][1])
	assert.Equal(t, "2024-03-14", data[1][3])
	assert.Equal(t, "12s", data[1][7])
	assert.Equal(t, "✅ /data/garmin_data_2024-03-14.json", data[1][8])
	assert.Equal(t, "2024-03-01 → 2024-03-07", data[2][3])
	assert.Contains(t, data[2][8], "partial (1 errors)")
	assert.Equal(t, "❌ oura authentication failed", data[3][8])
}

// fakeProvider hands out string sessions
type fakeProvider struct {
	stored  string
	authErr error
	saved   []string
}

func (p *fakeProvider) LoadStoredSession(ctx context.Context, path string) (string, error) {
	if p.stored == "" {
		return "", errors.New("no stored session")
	}
	return p.stored, nil
}

func (p *fakeProvider) Authenticate(ctx context.Context, creds dump.Credentials) (string, error) {
	if p.authErr != nil {
		return "", p.authErr
	}
	return "session-" + creds.Token, nil
}

func (p *fakeProvider) SaveSession(path string, session string) error {
	p.saved = append(p.saved, path)
	return nil
}

// memorySink keeps saved records by file name
type memorySink struct {
	records map[string]any
}

func (s *memorySink) Save(ctx context.Context, record any, fileName string) (string, error) {
	s.records[fileName] = record
	return "/mem/" + fileName, nil
}

// memoryRecorder keeps recorded runs
type memoryRecorder struct {
	runs []history.RunEntry
}

func (r *memoryRecorder) RecordRun(ctx context.Context, e *history.RunEntry) error {
	r.runs = append(r.runs, *e)
	return nil
}

func (r *memoryRecorder) ListRuns(ctx context.Context, vendor string, limit int) ([]history.RunEntry, error) {
	return r.runs, nil
}

func (r *memoryRecorder) Close() error { return nil }

// highlighted collects the dates passed to the test job's highlights
var highlighted []string

func newTestEnv() (*runEnv, *memorySink, *memoryRecorder) {
	highlighted = nil
	ol := output.NewWithLogger(slog.New(slog.DiscardHandler), true, io.Discard)
	sink := &memorySink{records: make(map[string]any)}
	rec := &memoryRecorder{}
	cfg := dump.DefaultConfig()
	cfg.MetricDelay = 0
	cfg.DayDelay = 0
	cfg.Retry.Delay = 0
	return &runEnv{
		ol:           ol,
		presentation: dump.NewPresentationService(ol),
		sink:         sink,
		recorder:     rec,
		config:       cfg,
	}, sink, rec
}

func testJob(p *fakeProvider, failOn string) vendorJob[string] {
	return vendorJob[string]{
		highlights: func(r *dump.DayRecord) []output.Highlight {
			highlighted = append(highlighted, r.Date)
			return []output.Highlight{{Label: "Steps", Value: "1"}}
		},
		vendor:   "acme",
		provider: p,
		metrics: []dump.Metric[string]{
			{Name: "steps", Fetch: func(ctx context.Context, s string, day time.Time) (any, error) {
				if dump.FormatDate(day) == failOn {
					panic("steps exploded")
				}
				return map[string]any{"session": s, "day": dump.FormatDate(day)}, nil
			}},
			{Name: "workouts", List: true, Fetch: func(ctx context.Context, s string, day time.Time) (any, error) {
				return nil, errors.New("upstream 500")
			}},
		},
		tokenPath: "/tokens/acme.json",
		creds:     dump.Credentials{Token: "pat"},
	}
}

func TestRunJob_Day(t *testing.T) {
	// Arrange
	e, sink, rec := newTestEnv()
	provider := &fakeProvider{}
	w := window{mode: history.ModeDay, start: date("2024-03-14"), end: date("2024-03-14")}

	// Act
	err := runJob(context.Background(), e, testJob(provider, ""), w)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"/tokens/acme.json"}, provider.saved, "fresh login is persisted")

	require.Contains(t, sink.records, "acme_data_2024-03-14.json")
	record := sink.records["acme_data_2024-03-14.json"].(*dump.DayRecord)
	assert.Equal(t, map[string]any{"session": "session-pat", "day": "2024-03-14"}, record.Metrics["steps"])
	assert.Equal(t, []any{}, record.Metrics["workouts"], "degraded list metric is empty")
	assert.Empty(t, record.Errors)
	assert.Equal(t, []string{"2024-03-14"}, highlighted, "saved day is highlighted")

	require.Len(t, rec.runs, 1)
	run := rec.runs[0]
	assert.Equal(t, "acme", run.Vendor)
	assert.Equal(t, history.ModeDay, run.Mode)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, "/mem/acme_data_2024-03-14.json", run.Path)
	assert.False(t, run.Partial)
	assert.Empty(t, run.Error)
	assert.False(t, run.FinishedAt.IsZero())
}

func TestRunJob_RangeWithFailedDay(t *testing.T) {
	// Arrange
	e, sink, rec := newTestEnv()
	provider := &fakeProvider{stored: "stored"}
	w := window{mode: history.ModeRange, start: date("2024-03-01"), end: date("2024-03-03")}

	// Act
	err := runJob(context.Background(), e, testJob(provider, "2024-03-02"), w)

	// Assert
	require.NoError(t, err)
	assert.Empty(t, provider.saved, "stored session is reused")

	// Day errors stay inside their day record
	name := "acme_bulk_2024-03-01_to_2024-03-03.json"
	require.Contains(t, sink.records, name)
	record := sink.records[name].(*dump.RangeRecord)
	assert.Equal(t, dump.Summary{Total: 3, Succeeded: 2, Failed: 1}, record.Summary)
	assert.Equal(t, []string{"steps exploded"}, record.Days[1].Errors)

	require.Len(t, rec.runs, 1)
	run := rec.runs[0]
	assert.Equal(t, history.ModeRange, run.Mode)
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 1, run.Failed)
	assert.False(t, run.Partial)
}

func TestRunJob_AuthFailureIsRecorded(t *testing.T) {
	// Arrange
	e, sink, rec := newTestEnv()
	provider := &fakeProvider{authErr: errors.New("bad token")}
	w := window{mode: history.ModeDay, start: date("2024-03-14"), end: date("2024-03-14")}

	// Act
	err := runJob(context.Background(), e, testJob(provider, ""), w)

	// Assert
	var authErr *dump.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Empty(t, sink.records)
	assert.Empty(t, highlighted)
	require.Len(t, rec.runs, 1)
	assert.Contains(t, rec.runs[0].Error, "bad token")
}
