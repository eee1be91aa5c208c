package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roessland/wearabledump/dump"
	"github.com/roessland/wearabledump/history"
	"github.com/roessland/wearabledump/pkg/output"
	"github.com/roessland/wearabledump/store"
)

// downloadFlags are shared by the vendor download commands
type downloadFlags struct {
	date      string
	yesterday bool
	since     string
	until     string
}

func (f *downloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "Download a single day (YYYY-MM-DD, default: today)")
	cmd.Flags().BoolVar(&f.yesterday, "yesterday", false, "Download yesterday")
	cmd.Flags().StringVar(&f.since, "since", "", "Download a range starting at this date (e.g., '2024-01-01', '2024-01', '30d', '4w')")
	cmd.Flags().StringVar(&f.until, "until", "", "End of the range (default: today)")
}

// window is the date selection of one run
type window struct {
	mode    string
	start   time.Time
	end     time.Time
	clamped bool // a future single date was moved to today
}

// resolveWindow turns the download flags into a single day or a range.
// --since or --until select range mode, everything else is one day.
func resolveWindow(f downloadFlags, now time.Time) (window, error) {
	isRange := strings.TrimSpace(f.since) != "" || strings.TrimSpace(f.until) != ""

	switch {
	case isRange && (f.date != "" || f.yesterday):
		return window{}, errors.New("--date and --yesterday cannot be combined with --since or --until")
	case f.date != "" && f.yesterday:
		return window{}, errors.New("--date and --yesterday are mutually exclusive")
	}

	if isRange {
		since, until, err := dump.ValidateAndParseRange(f.since, f.until, now)
		if err != nil {
			return window{}, err
		}
		return window{mode: history.ModeRange, start: since, end: until}, nil
	}

	if f.yesterday {
		day := dump.Midnight(now).AddDate(0, 0, -1)
		return window{mode: history.ModeDay, start: day, end: day}, nil
	}

	day, err := dump.ParseDate(f.date, dump.BoundStart, now)
	if err != nil {
		return window{}, err
	}
	day, clamped := dump.ClampToToday(day, now)
	return window{mode: history.ModeDay, start: day, end: day, clamped: clamped}, nil
}

// runEnv holds the dependencies shared by every vendor run
type runEnv struct {
	ol           *output.OutputLogger
	presentation *dump.PresentationService
	sink         dump.Sink
	recorder     history.Recorder
	config       dump.Config
}

// setupEnv creates the output logger, the sink chain and the run recorder
func setupEnv(jsonMode bool) (*runEnv, error) {
	ol, err := output.New(jsonMode, viper.GetString("log_file"))
	if err != nil {
		return nil, fmt.Errorf("failed to create output system: %w", err)
	}
	presentation := dump.NewPresentationService(ol)

	fileSink, err := store.NewJSONFileSink(store.NewOSFileSystem(), viper.GetString("save_dir"), ol.Component("store"))
	if err != nil {
		presentation.ShowError(err, "Failed to prepare save directory")
		return nil, err
	}

	var sink dump.Sink = fileSink
	s3cfg := store.S3Config{
		Endpoint:  viper.GetString("s3.endpoint"),
		AccessKey: viper.GetString("s3.access_key"),
		SecretKey: viper.GetString("s3.secret_key"),
		Bucket:    viper.GetString("s3.bucket"),
		Region:    viper.GetString("s3.region"),
		Prefix:    viper.GetString("s3.prefix"),
	}
	if s3cfg.Enabled() {
		objects, err := store.NewS3Store(s3cfg, ol.Slog("s3"))
		if err != nil {
			presentation.ShowError(err, "Failed to connect to S3 mirror %s", s3cfg.Endpoint)
			return nil, err
		}
		sink = store.NewMirrorSink(fileSink, objects, s3cfg.Prefix, ol.Component("mirror"))
	}

	return &runEnv{
		ol:           ol,
		presentation: presentation,
		sink:         sink,
		recorder:     openRecorder(ol),
		config:       dump.DefaultConfig(),
	}, nil
}

// openRecorder falls back to the no-op recorder when the database cannot be
// opened; history is never a reason to skip a download
func openRecorder(ol *output.OutputLogger) history.Recorder {
	dbPath := viper.GetString("history_db")
	if dbPath == "" {
		return history.NewNoopRecorder()
	}
	rec, err := history.NewSQLiteRecorder(dbPath, ol.Slog("history"))
	if err != nil {
		ol.Logger.Warn("history disabled", "path", dbPath, "error", err)
		return history.NewNoopRecorder()
	}
	return rec
}

func (e *runEnv) Close() {
	if err := e.recorder.Close(); err != nil {
		e.ol.Logger.Warn("failed to close history", "error", err)
	}
}

// vendorJob is everything needed to run one vendor
type vendorJob[S any] struct {
	vendor    string
	provider  dump.SessionProvider[S]
	metrics   []dump.Metric[S]
	tokenPath string
	creds     dump.Credentials

	// highlights picks the numbers shown under a saved day, may be nil
	highlights func(*dump.DayRecord) []output.Highlight
}

// runJob authenticates, downloads w and records the run in history
func runJob[S any](ctx context.Context, e *runEnv, j vendorJob[S], w window) (err error) {
	logger := e.ol.Component(j.vendor)
	entry := history.NewRunEntry(j.vendor, w.mode, time.Now())
	entry.Start, entry.End = dump.FormatDate(w.start), dump.FormatDate(w.end)

	defer func() {
		entry.FinishedAt = time.Now()
		if err != nil {
			entry.Error = err.Error()
		}
		// Record even after Ctrl-C
		if recErr := e.recorder.RecordRun(context.WithoutCancel(ctx), entry); recErr != nil {
			logger.Warn("failed to record run", "run_id", entry.ID, "error", recErr)
		}
	}()

	logger.Info("starting download process",
		"run_id", entry.ID,
		"mode", w.mode,
		"start", entry.Start,
		"end", entry.End)

	if w.clamped {
		e.presentation.ShowWarning("Date is in the future, using today (%s) instead", entry.Start)
	}

	e.presentation.ShowProgress("Connecting to %s...", j.vendor)
	auth := dump.NewAuthService(j.vendor, j.provider, j.tokenPath, logger)
	session, err := auth.EnsureSession(ctx, j.creds)
	if err != nil {
		e.presentation.ShowError(err, "Failed to authenticate with %s", j.vendor)
		return err
	}
	e.presentation.ShowStatus("Successfully authenticated with %s", j.vendor)

	downloader := dump.NewDownloader(j.vendor, j.metrics, e.config, logger, e.presentation)

	if w.mode == history.ModeRange {
		return runRange(ctx, e, downloader, session, w, entry)
	}
	return runDay(ctx, e, downloader, session, w, entry, j.highlights)
}

func runDay[S any](ctx context.Context, e *runEnv, d *dump.Downloader[S], session S, w window, entry *history.RunEntry, highlights func(*dump.DayRecord) []output.Highlight) error {
	record, result, err := d.RunDay(ctx, session, w.start, e.sink)

	summary := dump.Summary{Total: 1, Succeeded: 1}
	if record.Failed() {
		summary = dump.Summary{Total: 1, Failed: 1}
	}
	fillEntry(entry, summary, result, len(record.Errors))

	if err != nil {
		e.presentation.ShowError(err, "Failed to save %s data for %s", d.Vendor(), record.Date)
		return err
	}

	e.presentation.ShowDayResults(record, result)
	if highlights != nil {
		e.presentation.ShowDayHighlights(record, highlights(record))
	}
	e.presentation.ShowJSONResults(d.Vendor(), w.start, w.end, summary, result, e.ol.JSONMode())
	return nil
}

func runRange[S any](ctx context.Context, e *runEnv, d *dump.Downloader[S], session S, w window, entry *history.RunEntry) error {
	e.presentation.ShowStatus("Downloading %s data from %s to %s", d.Vendor(), dump.FormatDate(w.start), dump.FormatDate(w.end))

	record, result, err := d.RunRange(ctx, session, w.start, w.end, e.sink)
	if record == nil {
		e.presentation.ShowError(err, "Failed to download %s data", d.Vendor())
		return err
	}
	fillEntry(entry, record.Summary, result, len(record.Errors))

	if err != nil {
		e.presentation.ShowError(err, "Failed to save %s data", d.Vendor())
		return err
	}

	e.presentation.ShowRangeResults(record, result)
	e.presentation.ShowJSONResults(d.Vendor(), w.start, w.end, record.Summary, result, e.ol.JSONMode())
	return nil
}

func fillEntry(entry *history.RunEntry, summary dump.Summary, result dump.RunResult, errorCount int) {
	entry.Total = summary.Total
	entry.Succeeded = summary.Succeeded
	entry.Failed = summary.Failed
	entry.Path = result.Path
	entry.Partial = result.Partial
	entry.ErrorCount = errorCount
}
