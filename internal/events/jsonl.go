package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// JSONLSink appends one JSON object per event to a file. Safe for concurrent
// use; each event is written as a single line so the file tails cleanly.
type JSONLSink struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
}

var _ Emitter = (*JSONLSink)(nil)

// NewJSONLSink opens (appending, creating if needed) the status file.
func NewJSONLSink(path string, logger *slog.Logger) (*JSONLSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open status file %s: %w", path, err)
	}

	return &JSONLSink{file: file, logger: logger}, nil
}

// Emit implements Emitter. Marshal or write failures are logged and dropped.
func (s *JSONLSink) Emit(event Event) {
	payload, err := json.Marshal(Stamp(event))
	if err != nil {
		s.logger.Warn("drop status event", slog.String("error", err.Error()))

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(append(payload, '\n')); err != nil {
		s.logger.Warn("drop status event", slog.String("error", err.Error()))
	}
}

// Close implements Emitter.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.file.Close()
}
