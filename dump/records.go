package dump

import (
	"time"
)

// Outcome classifies a single metric fetch.
type Outcome int

const (
	OutcomeSuccess  Outcome = iota
	OutcomeDegraded         // retries exhausted, payload replaced by null or []
	OutcomeFatal            // the day must stop here
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// MetricResult is the typed outcome of one metric fetch
type MetricResult struct {
	Metric   string
	Outcome  Outcome
	Value    any // what goes into DayRecord.Metrics
	Attempts int
	Reason   string // set for degraded results
	Err      error  // set for degraded and fatal results
}

// DayRecord holds every metric fetched for one calendar date
type DayRecord struct {
	Vendor       string         `json:"vendor"`
	Date         string         `json:"date"`
	Metrics      map[string]any `json:"metrics"`
	DownloadedAt time.Time      `json:"downloaded_at"`
	Errors       []string       `json:"errors"`
}

func newDayRecord(vendor string, day time.Time, now time.Time) *DayRecord {
	return &DayRecord{
		Vendor:       vendor,
		Date:         FormatDate(day),
		Metrics:      make(map[string]any),
		DownloadedAt: now,
		Errors:       []string{},
	}
}

// Failed reports whether the day carries any captured error.
func (r *DayRecord) Failed() bool {
	return len(r.Errors) > 0
}

// Summary counts the days of a range download
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RangeRecord aggregates the day records of an inclusive date range
type RangeRecord struct {
	Vendor       string       `json:"vendor"`
	Start        string       `json:"start"`
	End          string       `json:"end"`
	Days         []*DayRecord `json:"days"`
	Summary      Summary      `json:"summary"`
	DownloadedAt time.Time    `json:"downloaded_at"`
	Errors       []string     `json:"errors"`
}

// Failed reports whether anything went wrong at range level.
func (r *RangeRecord) Failed() bool {
	return len(r.Errors) > 0
}
