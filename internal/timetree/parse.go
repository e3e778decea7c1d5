package timetree

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	clockPattern  = regexp.MustCompile(`(\d{1,2}:\d{2})`)
	headerPattern = regexp.MustCompile(`(\d{4})年(\d{1,2})月`)
)

// ParseClockTime extracts a 24-hour "H:MM"/"HH:MM" time from the weekly
// view's raw time label. ok is false when no time pattern is present
// (all-day entries and decorative labels).
func ParseClockTime(raw string) (string, bool) {
	match := clockPattern.FindStringSubmatch(raw)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// ParseMonthHeader extracts "YYYY-MM" from the weekly view's month/year
// header, e.g. "2025年7月" → "2025-07".
func ParseMonthHeader(text string) (string, bool) {
	match := headerPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return match[1] + "-" + pad2(match[2]), true
}

// DayDate joins a month header with a day-of-month, zero-padding the day.
func DayDate(monthYear, day string) string {
	return fmt.Sprintf("%s-%s", monthYear, pad2(day))
}

// ParseDetailPayload decodes the detail-panel extraction result: the memo
// paragraph and the attachment image URLs, in panel order.
func ParseDetailPayload(raw string) (string, []string, error) {
	var payload struct {
		Memo string   `json:"memo"`
		URLs []string `json:"urls"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(payload.Memo), payload.URLs, nil
}

// AttachmentURLs picks the first two non-blank URLs; the store schema
// carries at most two image properties per record.
func AttachmentURLs(urls []string) (string, string) {
	var picked []string
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		picked = append(picked, u)
		if len(picked) == 2 {
			break
		}
	}
	switch len(picked) {
	case 0:
		return "", ""
	case 1:
		return picked[0], ""
	default:
		return picked[0], picked[1]
	}
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
