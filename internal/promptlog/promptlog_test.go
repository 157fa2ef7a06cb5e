package promptlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readEvents(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var events []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		var event map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("log line not json: %v", err)
		}
		events = append(events, event)
	}
	return events
}

func TestStartEndEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "simpleai.log")
	l := New(map[string]any{"enabled": true, "logfile_location": path})

	startedAt := time.Now()
	eventID := l.Start(map[string]any{"prompt": "hello"}, map[string]any{"provider": "openai"})
	if eventID == "" {
		t.Fatalf("event id missing")
	}
	l.End(eventID, startedAt, "the result", 2)

	events := readEvents(t, path)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	start := events[0]
	if start["event"] != "run_prompt.start" || start["event_id"] != eventID {
		t.Fatalf("start event = %v", start)
	}
	if start["args"].(map[string]any)["prompt"] != "hello" {
		t.Fatalf("args not recorded: %v", start)
	}
	if start["adapter_payload"].(map[string]any)["provider"] != "openai" {
		t.Fatalf("adapter payload not recorded: %v", start)
	}

	end := events[1]
	if end["event"] != "run_prompt.end" || end["event_id"] != eventID {
		t.Fatalf("end event = %v", end)
	}
	if end["result_preview"] != "the result" || end["citations_count"] != float64(2) {
		t.Fatalf("end payload = %v", end)
	}
	for _, key := range []string{"started_at", "ended_at", "elapsed_seconds"} {
		if _, ok := end[key].(float64); !ok {
			t.Fatalf("missing numeric %s: %v", key, end)
		}
	}
}

func TestEndTruncatesPreview(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simpleai.log")
	l := New(map[string]any{"enabled": true, "logfile_location": path})

	eventID := l.Start(nil, nil)
	l.End(eventID, time.Now(), strings.Repeat("x", 6000), 0)

	events := readEvents(t, path)
	preview := events[1]["result_preview"].(string)
	if len(preview) != 5000 {
		t.Fatalf("preview length = %d", len(preview))
	}
}

func TestErrorEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simpleai.log")
	l := New(map[string]any{"enabled": true, "logfile_location": path})

	eventID := l.Start(nil, nil)
	l.Error(eventID, time.Now(), errors.New("boom"), map[string]any{"provider": "grok"})

	events := readEvents(t, path)
	errEvent := events[1]
	if errEvent["event"] != "run_prompt.error" {
		t.Fatalf("event = %v", errEvent)
	}
	if errEvent["error"] != "boom" {
		t.Fatalf("error message = %v", errEvent["error"])
	}
	if errEvent["error_type"] == "" {
		t.Fatalf("error type missing")
	}
	if errEvent["context"].(map[string]any)["provider"] != "grok" {
		t.Fatalf("context = %v", errEvent["context"])
	}
}

func TestDisabledLoggerWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simpleai.log")
	l := New(map[string]any{"enabled": false, "logfile_location": path})

	eventID := l.Start(map[string]any{"prompt": "x"}, nil)
	l.End(eventID, time.Now(), "y", 0)

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("disabled logger must not create the log file")
	}
	if eventID == "" {
		t.Fatalf("event id still issued while disabled")
	}
}
