package dump

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roessland/wearabledump/pkg/output"
)

// logLines decodes one JSON object per line
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		lines = append(lines, m)
	}
	return lines
}

func newJSONPresentation() (*PresentationService, *bytes.Buffer, *bytes.Buffer) {
	logs := &bytes.Buffer{}
	stdout := &bytes.Buffer{}
	l := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewPresentationService(output.NewWithLogger(l, true, stdout)), logs, stdout
}

func TestPresentationService_MetricFetched(t *testing.T) {
	// Arrange
	ps, logs, _ := newJSONPresentation()
	day := mustDate("2024-01-05")

	// Act
	ps.MetricFetched("oura", day, MetricResult{Metric: "daily_sleep", Outcome: OutcomeSuccess, Attempts: 1})
	ps.MetricFetched("oura", day, MetricResult{Metric: "workouts", Outcome: OutcomeDegraded, Attempts: 3, Reason: "status 500"})
	ps.MetricFetched("oura", day, MetricResult{Metric: "tags", Outcome: OutcomeFatal, Attempts: 1, Err: errors.New("context canceled")})

	// Assert
	lines := logLines(t, logs)
	require.Len(t, lines, 3)
	assert.Equal(t, "metric_status", lines[0]["msg"])
	assert.Equal(t, "fetched", lines[0]["state"])
	assert.Equal(t, "unavailable", lines[1]["state"])
	assert.Equal(t, "status 500", lines[1]["detail"])
	assert.Equal(t, float64(3), lines[1]["attempts"])
	assert.Equal(t, "failed", lines[2]["state"])
	assert.Equal(t, "context canceled", lines[2]["detail"])
}

func TestPresentationService_DayFinished(t *testing.T) {
	ps, logs, _ := newJSONPresentation()
	record := &DayRecord{Vendor: "garmin", Date: "2024-01-05", Errors: []string{"boom", "bang"}}

	ps.DayFinished("garmin", record, nil)

	lines := logLines(t, logs)
	require.Len(t, lines, 2)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "garmin 2024-01-05: boom", lines[0]["message"])
}

func TestPresentationService_ShowJSONResults(t *testing.T) {
	ps, _, stdout := newJSONPresentation()
	start, end := mustDate("2024-01-01"), mustDate("2024-01-03")

	ps.ShowJSONResults("oura", start, end, Summary{Total: 3, Succeeded: 2, Failed: 1},
		RunResult{Path: "/data/oura_bulk_2024-01-01_to_2024-01-03.json"}, true)

	var got map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, "oura", got["vendor"])
	assert.Equal(t, map[string]any{"total": float64(3), "succeeded": float64(2), "failed": float64(1)}, got["summary"])
	assert.Equal(t, map[string]any{"since": "2024-01-01", "until": "2024-01-03"}, got["date_range"])
	assert.Equal(t, false, got["partial"])
}

func TestPresentationService_ShowJSONResultsInteractive(t *testing.T) {
	ps, _, stdout := newJSONPresentation()

	ps.ShowJSONResults("oura", mustDate("2024-01-01"), mustDate("2024-01-01"), Summary{}, RunResult{}, false)

	assert.Empty(t, stdout.String())
}

func TestPresentationService_ShowDayHighlights(t *testing.T) {
	ps, logs, _ := newJSONPresentation()
	record := &DayRecord{Vendor: "oura", Date: "2024-01-05"}

	ps.ShowDayHighlights(record, []output.Highlight{{Label: "Sleep score", Value: "85"}})

	lines := logLines(t, logs)
	require.Len(t, lines, 1)
	assert.Equal(t, "day_highlights", lines[0]["msg"])
	assert.Equal(t, "oura", lines[0]["vendor"])
	assert.Equal(t, "85", lines[0]["Sleep score"])
}
