package history

import "context"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(context.Context, *RunEntry) error { return nil }
func (n *NoopRecorder) ListRuns(context.Context, string, int) ([]RunEntry, error) {
	return nil, nil
}
func (n *NoopRecorder) Close() error { return nil }
