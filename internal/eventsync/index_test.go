package eventsync

import (
	"context"
	"errors"
	"testing"

	"github.com/timetree-tools/notionsync/internal/event"
	"github.com/timetree-tools/notionsync/internal/notion"
)

var testProps = notion.PropertyMap{
	Title:      "Name",
	Date:       "When",
	Memo:       "Memo",
	ExternalID: "TimeTreeID",
	URL1:       "Image1",
	URL2:       "Image2",
}

func seedRecord(store *fakeStore, title, start, externalID string) string {
	props := map[string]notion.PropertyValue{
		"Name": {Title: []notion.RichText{notion.NewRichText(title)}},
		"When": {Date: &notion.DateValue{Start: start}},
	}
	if externalID != "" {
		props["TimeTreeID"] = notion.PropertyValue{RichText: []notion.RichText{notion.NewRichText(externalID)}}
	}
	return store.seedPage(props)
}

func TestBuildIndexRecordsBothIdentityTiers(t *testing.T) {
	store := newFakeStore()
	withID := seedRecord(store, "Yoga", "2025-01-01T07:00:00+09:00", "evt_1")
	withoutID := seedRecord(store, "Dinner", "2025-01-01T19:30:00+09:00", "")

	idx := BuildIndex(context.Background(), store, "db_1", testProps, "2025-01-01", "2025-01-01", nil)

	if idx.Degraded {
		t.Fatal("unexpected degraded index")
	}
	if got := idx.ByID["evt_1"]; got != withID {
		t.Fatalf("ByID[evt_1] = %q, want %q", got, withID)
	}
	if got := idx.ByKey["2025-01-01T07:00_Yoga"]; got != withID {
		t.Fatalf("ByKey for Yoga = %q, want %q", got, withID)
	}
	if got := idx.ByKey["2025-01-01T19:30_Dinner"]; got != withoutID {
		t.Fatalf("ByKey for Dinner = %q, want %q", got, withoutID)
	}
	if len(idx.ByID) != 1 {
		t.Fatalf("expected one id entry, got %v", idx.ByID)
	}
}

func TestBuildIndexFollowsCursors(t *testing.T) {
	store := newFakeStore()
	store.queryPageSize = 2
	for i := 0; i < 5; i++ {
		seedRecord(store, "Event", "2025-01-01T07:00:00+09:00", string(rune('a'+i)))
	}

	idx := BuildIndex(context.Background(), store, "db_1", testProps, "2025-01-01", "2025-01-01", nil)

	if len(idx.ByID) != 5 {
		t.Fatalf("expected 5 indexed ids, got %d", len(idx.ByID))
	}
	if got := store.queryCalls.Load(); got != 3 {
		t.Fatalf("expected 3 query pages, got %d", got)
	}
}

func TestBuildIndexDegradesOnQueryFailure(t *testing.T) {
	store := newFakeStore()
	store.queryErr = errors.New("boom")
	seedRecord(store, "Yoga", "2025-01-01T07:00:00+09:00", "evt_1")

	logger := &recordingLogger{}
	idx := BuildIndex(context.Background(), store, "db_1", testProps, "2025-01-01", "2025-01-01", logger)

	if !idx.Degraded {
		t.Fatal("expected degraded index")
	}
	if len(idx.ByID) != 0 || len(idx.ByKey) != 0 {
		t.Fatalf("degraded index must be empty, got %v / %v", idx.ByID, idx.ByKey)
	}
	if len(logger.lines) != 1 {
		t.Fatalf("expected one log line, got %v", logger.lines)
	}
}

func TestFallbackKeyNormalizesTime(t *testing.T) {
	e := event.Event{Date: "2025-01-01", Time: "7:00", Title: "Yoga"}
	if got := FallbackKey(e); got != "2025-01-01T07:00_Yoga" {
		t.Fatalf("FallbackKey = %q", got)
	}
}

func TestMatchPrefersExternalIDOverFallbackKey(t *testing.T) {
	idx := PageIndex{
		ByID:  map[string]string{"evt_1": "page_by_id"},
		ByKey: map[string]string{"2025-01-01T07:00_Yoga": "page_by_key"},
	}
	e := event.Event{Date: "2025-01-01", Time: "07:00", Title: "Yoga", ID: "evt_1"}

	if got := Match(e, idx); got != "page_by_id" {
		t.Fatalf("expected id tier to win, got %q", got)
	}

	e.ID = ""
	if got := Match(e, idx); got != "page_by_key" {
		t.Fatalf("expected key tier fallback, got %q", got)
	}

	e.Title = "Pilates"
	if got := Match(e, idx); got != "" {
		t.Fatalf("expected no match, got %q", got)
	}
}

func TestMatchFallsThroughWhenIDUnknown(t *testing.T) {
	idx := PageIndex{
		ByID:  map[string]string{},
		ByKey: map[string]string{"2025-01-01T07:00_Yoga": "page_by_key"},
	}
	e := event.Event{Date: "2025-01-01", Time: "07:00", Title: "Yoga", ID: "evt_unseen"}
	if got := Match(e, idx); got != "page_by_key" {
		t.Fatalf("expected key tier to catch unknown id, got %q", got)
	}
}
