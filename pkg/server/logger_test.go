package server

import (
	"encoding/json"
	"log/slog"
	"testing"
)

func TestJobLogHandlerCapturesRecords(t *testing.T) {
	var entries []LogEntry
	logger := slog.New(NewJobLogHandler(func(e LogEntry) {
		entries = append(entries, e)
	}))

	logger.Info("Search complete", "query", "test", "count", 4)
	logger.Warn("Grading call failed, using fallback", "url", "https://a")

	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}

	if entries[0].Level != "INFO" || entries[0].Message != "Search complete" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Level != "WARN" {
		t.Errorf("entry 1 level = %q, want WARN", entries[1].Level)
	}

	var meta map[string]interface{}
	if err := json.Unmarshal(entries[0].Metadata, &meta); err != nil {
		t.Fatalf("metadata not valid JSON: %v", err)
	}
	if meta["query"] != "test" {
		t.Errorf("metadata query = %v, want test", meta["query"])
	}
	if meta["count"] != float64(4) {
		t.Errorf("metadata count = %v, want 4", meta["count"])
	}
}
