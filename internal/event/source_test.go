package event

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Printf(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func TestParseNormalizesAndSorts(t *testing.T) {
	feed := []byte(`[
		{"date": "2025-01-02", "time": "9:00", "title": "  Standup  "},
		{"date": "2025-01-01", "time": "19:30", "title": "Dinner", "id": "evt_9"}
	]`)

	events, err := Parse(feed, nil)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Title != "Dinner" || events[0].ID != "evt_9" {
		t.Fatalf("expected sorted feed with Dinner first, got %+v", events[0])
	}
	if events[1].Title != "Standup" {
		t.Fatalf("expected trimmed title, got %q", events[1].Title)
	}
	if events[1].Time != "09:00" {
		t.Fatalf("expected normalized time, got %q", events[1].Time)
	}
}

func TestParseSkipsEventsWithoutTime(t *testing.T) {
	feed := []byte(`[
		{"date": "2025-01-01", "title": "All day thing"},
		{"date": "2025-01-01", "time": "7:00", "title": "Yoga"}
	]`)

	logger := &recordingLogger{}
	events, err := Parse(feed, logger)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(events) != 1 || events[0].Title != "Yoga" {
		t.Fatalf("expected only the timed event, got %+v", events)
	}
	if len(logger.lines) != 1 || !strings.Contains(logger.lines[0], "All day thing") {
		t.Fatalf("expected a skip log naming the event, got %v", logger.lines)
	}
}

func TestParseRejectsMalformedFeed(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"date": `,
		"not an array":  `{"date": "2025-01-01", "title": "x"}`,
		"bad date":      `[{"date": "Jan 1", "time": "7:00", "title": "x"}]`,
		"bad time":      `[{"date": "2025-01-01", "time": "seven", "title": "x"}]`,
		"missing title": `[{"date": "2025-01-01", "time": "7:00"}]`,
		"empty title":   `[{"date": "2025-01-01", "time": "7:00", "title": ""}]`,
	}
	for name, feed := range cases {
		if _, err := Parse([]byte(feed), nil); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	feed := `[{"date": "2025-01-01", "time": "7:00", "title": "Yoga"}]`
	if err := os.WriteFile(path, []byte(feed), 0o644); err != nil {
		t.Fatal(err)
	}

	events, err := LoadFile(path, nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(events) != 1 || events[0].Title != "Yoga" {
		t.Fatalf("unexpected events: %+v", events)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}
