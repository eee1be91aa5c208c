package dump

import (
	"fmt"
	"time"
)

// AuthenticationError aborts a run before any metric is fetched.
type AuthenticationError struct {
	Vendor string
	Cause  string // human readable, e.g. "missing token file"
	Err    error
}

func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("%s authentication failed: %s", e.Vendor, e.Cause)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// MetricFetchError describes a metric whose retries were exhausted. It never
// leaves the downloader; it is logged and the metric is degraded.
type MetricFetchError struct {
	Metric   string
	Date     time.Time
	Attempts int
	Err      error
}

func (e *MetricFetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s failed after %d attempts: %v", e.Metric, FormatDate(e.Date), e.Attempts, e.Err)
}

func (e *MetricFetchError) Unwrap() error { return e.Err }

// DayFetchError is an error that escaped DownloadDay.
type DayFetchError struct {
	Date time.Time
	Err  error
}

func (e *DayFetchError) Error() string {
	return fmt.Sprintf("download %s: %v", FormatDate(e.Date), e.Err)
}

func (e *DayFetchError) Unwrap() error { return e.Err }

// PersistenceError wraps a failing sink write.
type PersistenceError struct {
	FileName string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to save %s: %v", e.FileName, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
