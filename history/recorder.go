package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ModeDay   = "day"
	ModeRange = "range"
)

// RunEntry records the outcome of one download run.
type RunEntry struct {
	ID         string    `json:"id"`
	Vendor     string    `json:"vendor"`
	Mode       string    `json:"mode"` // "day" or "range"
	Start      string    `json:"start"`
	End        string    `json:"end"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Path       string    `json:"path"`
	Partial    bool      `json:"partial"`
	ErrorCount int       `json:"error_count"`
	Error      string    `json:"error,omitempty"` // set when the run itself failed
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewRunEntry starts an entry with a fresh run id.
func NewRunEntry(vendor, mode string, startedAt time.Time) *RunEntry {
	return &RunEntry{
		ID:        uuid.NewString(),
		Vendor:    vendor,
		Mode:      mode,
		StartedAt: startedAt,
	}
}

// Duration returns how long the run took.
func (e *RunEntry) Duration() time.Duration {
	if e.FinishedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Recorder persists run history.
type Recorder interface {
	RecordRun(ctx context.Context, entry *RunEntry) error
	// ListRuns returns the newest runs first. An empty vendor lists all.
	ListRuns(ctx context.Context, vendor string, limit int) ([]RunEntry, error)
	Close() error
}
