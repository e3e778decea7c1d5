// Package event defines the normalized calendar event consumed by the sync
// core and the JSON boundary with the event source.
package event

import (
	"sort"
	"strings"
)

// Event is one normalized calendar entry. Date and Title are mandatory;
// everything else may be empty. Time is local 24-hour "HH:MM" (a missing
// leading zero is tolerated and normalized).
type Event struct {
	Date  string `json:"date"`
	Time  string `json:"time"`
	Title string `json:"title"`
	Memo  string `json:"memo,omitempty"`
	ID    string `json:"id,omitempty"`
	URL1  string `json:"url1,omitempty"`
	URL2  string `json:"url2,omitempty"`
}

// NormalizeTime pads "H:MM" to "HH:MM" so times sort and compare textually.
func NormalizeTime(t string) string {
	t = strings.TrimSpace(t)
	if len(t) == 4 && t[1] == ':' {
		return "0" + t
	}
	return t
}

// SortKey orders events by calendar instant: (date, time).
func (e Event) SortKey() string {
	return e.Date + "T" + NormalizeTime(e.Time)
}

// Sort orders events in place by (date, time).
func Sort(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].SortKey() < events[j].SortKey()
	})
}

// Span returns the inclusive [min, max] date range covered by events.
// ok is false for an empty slice.
func Span(events []Event) (start, end string, ok bool) {
	if len(events) == 0 {
		return "", "", false
	}
	start, end = events[0].Date, events[0].Date
	for _, e := range events[1:] {
		if e.Date < start {
			start = e.Date
		}
		if e.Date > end {
			end = e.Date
		}
	}
	return start, end, true
}
