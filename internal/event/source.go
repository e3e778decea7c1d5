package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// feedSchema is the contract with the event source: an array of event
// objects where only date and title are mandatory. Anything violating it is
// a feed-level error, not a per-event one.
const feedSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["date", "title"],
    "properties": {
      "date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
      "time": {"type": ["string", "null"], "pattern": "^\\d{1,2}:\\d{2}$"},
      "title": {"type": "string", "minLength": 1},
      "memo": {"type": ["string", "null"]},
      "id": {"type": ["string", "null"]},
      "url1": {"type": ["string", "null"]},
      "url2": {"type": ["string", "null"]}
    }
  }
}`

type Logger interface {
	Printf(format string, args ...any)
}

// LoadFile reads an event feed from a JSON file, validates it against the
// feed schema, drops events without a parsable time, and returns the rest
// normalized and sorted by (date, time).
func LoadFile(path string, logger Logger) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, logger)
}

// Parse decodes and validates a raw event feed.
func Parse(data []byte, logger Logger) ([]Event, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("event feed is not valid JSON: %w", err)
	}
	schema, err := compileFeedSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("event feed failed validation: %w", err)
	}

	var raw []Event
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(raw))
	for _, e := range raw {
		e.Time = NormalizeTime(e.Time)
		if e.Time == "" {
			// No time means no sortable instant; skipped upstream of the core.
			if logger != nil {
				logger.Printf("event: skipping %q on %s: no parsable time", e.Title, e.Date)
			}
			continue
		}
		e.Title = strings.TrimSpace(e.Title)
		events = append(events, e)
	}
	Sort(events)
	return events, nil
}

func compileFeedSchema() (*jsonschema.Schema, error) {
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(feedSchema))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("events.schema.json", schemaDoc); err != nil {
		return nil, err
	}
	return compiler.Compile("events.schema.json")
}
