package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// LogEntry is one captured log record for a research job.
type LogEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

// JobLogHandler is a slog.Handler that appends records to a job's
// in-memory log buffer, so each run carries its own trace without any
// shared global sink.
type JobLogHandler struct {
	appendLog func(LogEntry)
}

func NewJobLogHandler(appendLog func(LogEntry)) *JobLogHandler {
	return &JobLogHandler{appendLog: appendLog}
}

func (h *JobLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *JobLogHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}

	h.appendLog(LogEntry{
		Timestamp: r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
		Metadata:  metaJSON,
	})
	return nil
}

func (h *JobLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Attribute chaining is not needed for the job trace; the metadata
	// map on each record is enough.
	return h
}

func (h *JobLogHandler) WithGroup(name string) slog.Handler {
	return h
}
