package notion

import (
	"strings"
	"testing"
)

func TestPlainTextPrefersAPIPopulatedText(t *testing.T) {
	spans := []RichText{{PlainText: "from api", Text: &TextContent{Content: "raw"}}}
	if got := PlainText(spans); got != "from api" {
		t.Fatalf("expected plain_text to win, got %q", got)
	}
	if got := PlainText([]RichText{NewRichText("raw only")}); got != "raw only" {
		t.Fatalf("expected text content fallback, got %q", got)
	}
	if got := PlainText(nil); got != "" {
		t.Fatalf("expected empty string for no spans, got %q", got)
	}
}

func TestPropertyMapValidateReportsAllMissingMappings(t *testing.T) {
	err := PropertyMap{Date: "When"}.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"title", "external_id"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in error, got %v", want, err)
		}
	}
	if strings.Contains(err.Error(), "date") {
		t.Fatalf("date is mapped and must not be reported: %v", err)
	}

	full := PropertyMap{Title: "Name", Date: "When", ExternalID: "TimeTreeID"}
	if err := full.Validate(); err != nil {
		t.Fatalf("expected complete map to validate, got %v", err)
	}
}

func TestBuildPropertiesWritesMappedFields(t *testing.T) {
	m := PropertyMap{
		Title:      "Name",
		Date:       "When",
		Memo:       "Memo",
		ExternalID: "TimeTreeID",
		URL1:       "Image1",
		URL2:       "Image2",
	}
	props := m.BuildProperties(PageFields{
		Title:      "Standup",
		Start:      "2025-01-02T09:30:00+09:00",
		ExternalID: "evt_1",
		URL1:       "https://example.com/a.jpg",
	})

	if got := PlainText(props["Name"].Title); got != "Standup" {
		t.Fatalf("title = %q", got)
	}
	if props["When"].Date == nil || props["When"].Date.Start != "2025-01-02T09:30:00+09:00" {
		t.Fatalf("unexpected date property: %+v", props["When"])
	}
	if got := PlainText(props["TimeTreeID"].RichText); got != "evt_1" {
		t.Fatalf("external id = %q", got)
	}

	// An empty memo is still written so a cleared memo propagates on update.
	memo, ok := props["Memo"]
	if !ok || len(memo.RichText) != 1 || memo.RichText[0].Text.Content != "" {
		t.Fatalf("expected explicit empty memo, got %+v", memo)
	}

	files := props["Image1"].Files
	if len(files) != 1 || files[0].External == nil || files[0].External.URL != "https://example.com/a.jpg" {
		t.Fatalf("unexpected file property: %+v", files)
	}
	if _, ok := props["Image2"]; ok {
		t.Fatal("empty url must not produce a file property")
	}
}

func TestBuildPropertiesSkipsUnmappedOptionalFields(t *testing.T) {
	m := PropertyMap{Title: "Name", Date: "When", ExternalID: "TimeTreeID"}
	props := m.BuildProperties(PageFields{
		Title:      "Standup",
		Start:      "2025-01-02T09:30:00+09:00",
		Memo:       "notes",
		ExternalID: "evt_1",
		URL1:       "https://example.com/a.jpg",
	})
	if len(props) != 3 {
		t.Fatalf("expected only the mapped properties, got %d: %v", len(props), props)
	}
}
