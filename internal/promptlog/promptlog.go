// Package promptlog writes structured JSONL lifecycle events for prompt runs.
package promptlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger appends run_prompt lifecycle events to a JSONL file. A disabled
// logger is valid and drops everything.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	path    string
}

// New builds a logger from the settings logging mapping.
func New(cfg map[string]any) *Logger {
	enabled, _ := cfg["enabled"].(bool)
	path, _ := cfg["logfile_location"].(string)
	if path == "" {
		path = "./simpleai.log"
	}
	return &Logger{enabled: enabled, path: path}
}

func (l *Logger) Enabled() bool {
	return l != nil && l.enabled
}

// Start emits a run_prompt.start event and returns its event ID.
func (l *Logger) Start(args map[string]any, adapterPayload map[string]any) string {
	eventID := uuid.NewString()
	l.emit(map[string]any{
		"event":           "run_prompt.start",
		"event_id":        eventID,
		"args":            args,
		"adapter_payload": adapterPayload,
	})
	return eventID
}

// End emits a run_prompt.end event. resultPreview is truncated to 5000 chars.
func (l *Logger) End(eventID string, startedAt time.Time, resultPreview string, citationsCount int) {
	endedAt := time.Now()
	if len(resultPreview) > 5000 {
		resultPreview = resultPreview[:5000]
	}
	l.emit(map[string]any{
		"event":           "run_prompt.end",
		"event_id":        eventID,
		"started_at":      unixSeconds(startedAt),
		"ended_at":        unixSeconds(endedAt),
		"elapsed_seconds": endedAt.Sub(startedAt).Seconds(),
		"result_preview":  resultPreview,
		"citations_count": citationsCount,
	})
}

// Error emits a run_prompt.error event.
func (l *Logger) Error(eventID string, startedAt time.Time, runErr error, context map[string]any) {
	endedAt := time.Now()
	l.emit(map[string]any{
		"event":           "run_prompt.error",
		"event_id":        eventID,
		"started_at":      unixSeconds(startedAt),
		"ended_at":        unixSeconds(endedAt),
		"elapsed_seconds": endedAt.Sub(startedAt).Seconds(),
		"error_type":      fmt.Sprintf("%T", runErr),
		"error":           fmt.Sprint(runErr),
		"context":         context,
	})
}

func (l *Logger) emit(payload map[string]any) {
	if !l.Enabled() {
		return
	}

	payload["ts"] = unixSeconds(time.Now())
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = f.Write(append(b, '\n'))
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
