package output

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pterm/pterm"
)

// Logger wraps slog.Logger with context-aware methods
type Logger interface {
	// Component returns a logger for a specific component
	Component(name string) Logger
	// With returns a logger with additional attributes
	With(args ...any) Logger

	// Standard log levels
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// OutputLogger handles both user output and structured logging
type OutputLogger struct {
	Logger
	base     *slog.Logger
	jsonMode bool
	stdout   io.Writer
}

// MetricState represents how a metric fetch ended
type MetricState int

const (
	StateFetched MetricState = iota
	StateDegraded
	StateFailed
)

func (s MetricState) String() string {
	switch s {
	case StateFetched:
		return "fetched"
	case StateDegraded:
		return "unavailable"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MetricInfo represents the outcome of one metric for display
type MetricInfo struct {
	Name     string
	Icon     string
	State    MetricState
	Attempts int
	Detail   string // short reason for degraded or failed metrics
}

// Highlight is one headline number of a downloaded day
type Highlight struct {
	Label string
	Value string
}

// New creates a new OutputLogger
// If jsonMode is true, only structured logs go to stdout
// If jsonMode is false, structured logs go to logFile and user messages use pterm
func New(jsonMode bool, logFile string) (*OutputLogger, error) {
	var slogLogger *slog.Logger

	if jsonMode {
		// JSON mode: structured logs only to stdout
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: getLogLevel(),
		})
		slogLogger = slog.New(handler)
	} else {
		if logFile == "" {
			var err error
			logFile, err = getLogFilePath()
			if err != nil {
				return nil, fmt.Errorf("failed to get log file path: %w", err)
			}
		}
		expanded, err := homedir.Expand(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand log file path: %w", err)
		}

		if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(expanded, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		handler := slog.NewTextHandler(file, &slog.HandlerOptions{
			Level: getLogLevel(),
		})
		slogLogger = slog.New(handler)
	}

	return &OutputLogger{
		Logger:   &loggerImpl{slog: slogLogger},
		base:     slogLogger,
		jsonMode: jsonMode,
		stdout:   os.Stdout,
	}, nil
}

// NewWithLogger builds an OutputLogger around an existing slog logger.
// Used by tests and by callers that already own a handler.
func NewWithLogger(l *slog.Logger, jsonMode bool, stdout io.Writer) *OutputLogger {
	return &OutputLogger{
		Logger:   &loggerImpl{slog: l},
		base:     l,
		jsonMode: jsonMode,
		stdout:   stdout,
	}
}

// Slog returns the underlying slog logger tagged with component, for
// packages that take a *slog.Logger directly
func (ol *OutputLogger) Slog(component string) *slog.Logger {
	return ol.base.With("component", component)
}

// JSONMode reports whether user output is suppressed in favour of JSON logs
func (ol *OutputLogger) JSONMode() bool {
	return ol.jsonMode
}

// getLogLevel returns the log level from LOG_LEVEL env var, defaulting to debug
func getLogLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "trace":
		return slog.LevelDebug - 4 // Trace is lower than debug
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// getLogFilePath returns the path to the log file
func getLogFilePath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".wearabledump", "wearabledump.log"), nil
}

// DayHeader shows which date is being downloaded
func (ol *OutputLogger) DayHeader(vendor string, day time.Time) {
	if ol.jsonMode {
		ol.Logger.Info("day_start", "vendor", vendor, "date", day.Format("2006-01-02"))
		return
	}
	pterm.Println()
	pterm.Info.Println(fmt.Sprintf("📅 %s data for %s", vendor, day.Format("Mon 2006-01-02")))
}

// MetricLine shows a single metric result
func (ol *OutputLogger) MetricLine(info MetricInfo) {
	if ol.jsonMode {
		ol.Logger.Info("metric_status",
			"metric", info.Name,
			"state", info.State.String(),
			"attempts", info.Attempts,
			"detail", info.Detail)
		return
	}
	pterm.Println(ol.buildMetricLine(info))
}

// buildMetricLine creates a formatted metric line
func (ol *OutputLogger) buildMetricLine(info MetricInfo) string {
	parts := []string{"  ", info.Icon, ol.formatName(info), ol.formatStatus(info)}
	if info.Attempts > 1 {
		parts = append(parts, pterm.NewStyle(pterm.FgGray).Sprintf("(%d attempts)", info.Attempts))
	}
	return strings.Join(parts, " ")
}

// formatName formats the metric name with appropriate styling
func (ol *OutputLogger) formatName(info MetricInfo) string {
	switch info.State {
	case StateFetched:
		return pterm.NewStyle(pterm.BgGreen, pterm.FgWhite).Sprint(info.Name)
	case StateDegraded:
		return pterm.NewStyle(pterm.BgGray, pterm.FgBlack).Sprint(info.Name)
	case StateFailed:
		return pterm.NewStyle(pterm.BgRed, pterm.FgWhite).Sprint(info.Name)
	default:
		return info.Name
	}
}

// formatStatus formats the status part of the line
func (ol *OutputLogger) formatStatus(info MetricInfo) string {
	switch info.State {
	case StateFetched:
		return pterm.NewStyle(pterm.FgGreen).Sprint("✅ Downloaded")
	case StateDegraded:
		return pterm.NewStyle(pterm.FgYellow).Sprint("⚠️  Not available")
	case StateFailed:
		return pterm.NewStyle(pterm.FgRed).Sprint("❌ Error")
	default:
		return ""
	}
}

// DayHighlights shows the headline numbers of a saved day
func (ol *OutputLogger) DayHighlights(vendor, date string, items []Highlight) {
	if len(items) == 0 {
		return
	}
	if ol.jsonMode {
		args := []any{"vendor", vendor, "date", date}
		for _, h := range items {
			args = append(args, h.Label, h.Value)
		}
		ol.Logger.Info("day_highlights", args...)
		return
	}
	width := 0
	for _, h := range items {
		width = max(width, len(h.Label))
	}
	for _, h := range items {
		label := pterm.NewStyle(pterm.FgGray).Sprintf("%-*s", width, h.Label)
		pterm.Printf("   %s  %s\n", label, h.Value)
	}
}

// Progress shows ongoing operations
func (ol *OutputLogger) Progress(format string, args ...any) {
	if ol.jsonMode {
		ol.Logger.Info("progress", "message", fmt.Sprintf(format, args...))
	} else {
		pterm.Info.Printf(format+"\n", args...)
	}
}

// Status shows important state changes
func (ol *OutputLogger) Status(format string, args ...any) {
	if ol.jsonMode {
		ol.Logger.Info("status", "message", fmt.Sprintf(format, args...))
	} else {
		pterm.Success.Printf(format+"\n", args...)
	}
}

// Warning shows a non-fatal problem the user should know about
func (ol *OutputLogger) Warning(format string, args ...any) {
	if ol.jsonMode {
		ol.Logger.Warn("user_warning", "message", fmt.Sprintf(format, args...))
	} else {
		pterm.Warning.Printf(format+"\n", args...)
	}
}

// Result shows final results/summaries
func (ol *OutputLogger) Result(format string, args ...any) {
	if ol.jsonMode {
		ol.Logger.Info("result", "message", fmt.Sprintf(format, args...))
	} else {
		pterm.Success.Printf("🎯 "+format+"\n", args...)
	}
}

// Error shows user-facing errors
func (ol *OutputLogger) Error(format string, args ...any) {
	if ol.jsonMode {
		ol.Logger.Error("user_error", "message", fmt.Sprintf(format, args...))
	} else {
		pterm.Error.Printf(format+"\n", args...)
	}
}

// JSON outputs structured data (only in JSON mode)
func (ol *OutputLogger) JSON(data any) error {
	if !ol.jsonMode {
		return nil
	}
	return json.NewEncoder(ol.stdout).Encode(data)
}

// LogAndShowError logs an error with full context and shows a user-friendly message
func (ol *OutputLogger) LogAndShowError(err error, userMsg string, args ...any) {
	ol.Logger.Error("operation_failed", "error", err.Error(), "user_message", fmt.Sprintf(userMsg, args...))
	ol.Error(userMsg, args...)
}

// loggerImpl implements Logger interface
type loggerImpl struct {
	slog *slog.Logger
}

func (l *loggerImpl) Component(name string) Logger {
	return &loggerImpl{slog: l.slog.With("component", name)}
}

func (l *loggerImpl) With(args ...any) Logger {
	return &loggerImpl{slog: l.slog.With(args...)}
}

func (l *loggerImpl) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

func (l *loggerImpl) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

func (l *loggerImpl) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

func (l *loggerImpl) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}
