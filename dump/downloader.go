package dump

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMetricDelay = 500 * time.Millisecond
	DefaultDayDelay    = 1000 * time.Millisecond
)

// Config holds the pacing and retry settings of a Downloader
type Config struct {
	Retry RetryPolicy

	// MetricDelay is slept after every metric of a day, DayDelay after every
	// day of a range. Both are spent even when the fetch failed.
	MetricDelay time.Duration
	DayDelay    time.Duration

	// IsFatal marks errors that must stop the current day instead of
	// degrading the metric. Nil treats only context cancellation as fatal.
	IsFatal func(err error) bool

	Sleep SleepFunc
	Now   func() time.Time
}

// DefaultConfig returns the pacing used against the vendor APIs.
func DefaultConfig() Config {
	return Config{
		Retry:       DefaultRetryPolicy(),
		MetricDelay: DefaultMetricDelay,
		DayDelay:    DefaultDayDelay,
	}
}

// Downloader fetches a fixed, ordered list of metrics for one vendor.
type Downloader[S any] struct {
	vendor   string
	metrics  []Metric[S]
	cfg      Config
	logger   Logger
	reporter Reporter
}

// NewDownloader creates a downloader. logger and reporter may be nil.
func NewDownloader[S any](vendor string, metrics []Metric[S], cfg Config, logger Logger, reporter Reporter) *Downloader[S] {
	if cfg.Sleep == nil {
		cfg.Sleep = ContextSleep
	}
	if cfg.Retry.Sleep == nil {
		cfg.Retry.Sleep = cfg.Sleep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IsFatal == nil {
		cfg.IsFatal = isContextError
	}
	if logger == nil {
		logger = nopLogger{}
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Downloader[S]{
		vendor:   vendor,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
		reporter: reporter,
	}
}

// Vendor returns the vendor name used in records and file names.
func (d *Downloader[S]) Vendor() string {
	return d.vendor
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// fetchMetric runs one metric through the retry wrapper and never returns an
// error: failures come back as degraded or fatal results.
func (d *Downloader[S]) fetchMetric(ctx context.Context, session S, day time.Time, m Metric[S]) MetricResult {
	policy := d.cfg.Retry
	policy.OnRetry = func(attempt int, err error) {
		d.logger.Warn("metric fetch failed, retrying",
			"metric", m.Name,
			"date", FormatDate(day),
			"attempt", attempt,
			"error", err)
	}

	value, attempts, err := Retry(ctx, policy, func(ctx context.Context) (any, error) {
		return m.Fetch(ctx, session, day)
	})
	if err == nil {
		return MetricResult{Metric: m.Name, Outcome: OutcomeSuccess, Value: value, Attempts: attempts}
	}

	fetchErr := &MetricFetchError{Metric: m.Name, Date: day, Attempts: attempts, Err: err}
	if d.cfg.IsFatal(err) {
		return MetricResult{Metric: m.Name, Outcome: OutcomeFatal, Attempts: attempts, Err: fetchErr}
	}

	d.logger.Warn("metric unavailable",
		"metric", m.Name,
		"date", FormatDate(day),
		"attempts", attempts,
		"error", err)

	var degraded any
	if m.List {
		degraded = []any{}
	}
	return MetricResult{
		Metric:   m.Name,
		Outcome:  OutcomeDegraded,
		Value:    degraded,
		Attempts: attempts,
		Reason:   err.Error(),
		Err:      fetchErr,
	}
}

// DownloadDay fetches every metric for day in declared order. The returned
// record is never nil. A panic during the sequence is recorded in
// record.Errors; a fatal metric stops the day and is returned as a
// *DayFetchError alongside the partial record.
func (d *Downloader[S]) DownloadDay(ctx context.Context, session S, day time.Time) (record *DayRecord, err error) {
	day = Midnight(day)
	record = newDayRecord(d.vendor, day, d.cfg.Now())

	d.logger.Info("downloading day", "vendor", d.vendor, "date", record.Date)
	d.reporter.DayStarted(d.vendor, day)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("day download aborted", "date", record.Date, "panic", r)
			record.Errors = append(record.Errors, fmt.Sprint(r))
		}
		d.reporter.DayFinished(d.vendor, record, err)
	}()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return record, &DayFetchError{Date: day, Err: ctxErr}
	}

	for _, m := range d.metrics {
		result := d.fetchMetric(ctx, session, day, m)
		d.reporter.MetricFetched(d.vendor, day, result)

		if result.Outcome == OutcomeFatal {
			return record, &DayFetchError{Date: day, Err: result.Err}
		}
		record.Metrics[m.Name] = result.Value

		if sleepErr := d.cfg.Sleep(ctx, d.cfg.MetricDelay); sleepErr != nil {
			return record, &DayFetchError{Date: day, Err: sleepErr}
		}
	}

	return record, nil
}

// DownloadRange downloads every day of [start, end] sequentially. Only a
// reversed range is an error; per-day problems end up in the record.
func (d *Downloader[S]) DownloadRange(ctx context.Context, session S, start, end time.Time) (*RangeRecord, error) {
	start, end = Midnight(start), Midnight(end)
	if start.After(end) {
		return nil, fmt.Errorf("start %s is after end %s", FormatDate(start), FormatDate(end))
	}

	record := &RangeRecord{
		Vendor:       d.vendor,
		Start:        FormatDate(start),
		End:          FormatDate(end),
		Days:         make([]*DayRecord, 0, Len(start, end)),
		DownloadedAt: d.cfg.Now(),
		Errors:       []string{},
	}

	d.logger.Info("downloading range",
		"vendor", d.vendor,
		"start", record.Start,
		"end", record.End)

	iter := NewDayIterator(start, end)
	for day, ok := iter.Next(); ok; day, ok = iter.Next() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			record.Errors = append(record.Errors, fmt.Sprintf("stopped before %s: %v", FormatDate(day), ctxErr))
			break
		}

		dayRecord, err := d.DownloadDay(ctx, session, day)
		record.Days = append(record.Days, dayRecord)
		record.Summary.Total++

		switch {
		case err != nil:
			record.Summary.Failed++
			record.Errors = append(record.Errors, err.Error())
		case dayRecord.Failed():
			record.Summary.Failed++
		default:
			record.Summary.Succeeded++
		}

		// Pace even after failures; the rate budget is shared by all days
		if sleepErr := d.cfg.Sleep(ctx, d.cfg.DayDelay); sleepErr != nil {
			d.logger.Debug("inter-day wait interrupted", "error", sleepErr)
		}
	}

	d.logger.Info("range downloaded",
		"vendor", d.vendor,
		"total", record.Summary.Total,
		"succeeded", record.Summary.Succeeded,
		"failed", record.Summary.Failed)

	return record, nil
}
