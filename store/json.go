package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/roessland/wearabledump/dump"
)

// Encode renders a record the way it is written to disk
func Encode(record any) ([]byte, error) {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return append(data, '\n'), nil
}

// JSONFileSink writes records as indented JSON files into one directory
type JSONFileSink struct {
	fs     dump.FileSystem
	dir    string
	logger dump.Logger
}

// NewJSONFileSink creates a sink writing into dir. "~" is expanded and an
// empty dir means the working directory.
func NewJSONFileSink(fs dump.FileSystem, dir string, logger dump.Logger) (*JSONFileSink, error) {
	if dir == "" {
		dir = "."
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand save directory: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &JSONFileSink{fs: fs, dir: expanded, logger: logger}, nil
}

// Dir returns the directory files are written to
func (s *JSONFileSink) Dir() string {
	return s.dir
}

// Save implements dump.Sink. The record is written even when ctx is done so
// that an interrupted run still leaves its partial file behind.
func (s *JSONFileSink) Save(ctx context.Context, record any, fileName string) (string, error) {
	data, err := Encode(record)
	if err != nil {
		return "", err
	}

	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", s.dir, err)
	}

	path := filepath.Join(s.dir, fileName)
	if s.fs.Exists(path) {
		s.logger.Info("replacing earlier export", "path", path)
	}
	if err := s.fs.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	s.logger.Debug("wrote record", "path", path, "bytes", len(data))
	return path, nil
}
