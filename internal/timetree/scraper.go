// Package timetree extracts normalized events from the TimeTree weekly
// calendar view with a headless Chromium. It is the event source
// collaborator of the sync core; everything downstream consumes only the
// []event.Event it produces.
package timetree

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/timetree-tools/notionsync/internal/event"
)

const (
	calendarRootSelector = `[data-test-id="weekly-calendar-root"]`
	defaultNavTimeout    = 40 * time.Second
	weekSettleDelay      = 500 * time.Millisecond
	detailSettleDelay    = 500 * time.Millisecond
)

// weekScrapeJS gathers the visible week's header text and per-column event
// rows. Monday's column is column="2"; day numbers come from the weekly
// day-number strip in the same order.
const weekScrapeJS = `(() => {
	const headerEl = document.querySelector('time');
	const header = headerEl ? headerEl.innerText : '';
	const rows = [];
	const dayEls = Array.from(document.querySelectorAll('[data-test-id="weekly-day-number"]'));
	dayEls.forEach((el, i) => {
		const dayEl = el.querySelector('div');
		const day = dayEl ? dayEl.innerText.trim() : '';
		if (!/^\d+$/.test(day)) return;
		const col = document.querySelector('div[column="' + (i + 2) + '"]');
		if (!col) return;
		col.querySelectorAll('div[data-grid-item="true"]').forEach((item, j) => {
			const titleEl = item.querySelector('h2');
			const timeEl = item.querySelector('time');
			if (!titleEl || !timeEl) return;
			rows.push({day: day, time: timeEl.innerText, title: titleEl.innerText, col: i + 2, idx: j});
		});
	});
	return JSON.stringify({header: header, rows: rows});
})()`

// detailScrapeJS reads the open event's detail panel: the memo paragraph and
// the uploaded attachment images.
const detailScrapeJS = `(() => {
	const memoEl = document.querySelector('p.exlc7u1.vjrcbi0');
	const memo = memoEl ? memoEl.innerText : '';
	const urls = Array.from(document.querySelectorAll('img[alt="Sent by you"]'))
		.map((img) => img.getAttribute('src') || '')
		.filter((src) => src !== '');
	return JSON.stringify({memo: memo, urls: urls});
})()`

const closeDetailJS = `(() => {
	const btn = document.querySelector('button[aria-label="閉じる"]');
	if (btn) btn.click();
})()`

type Logger interface {
	Printf(format string, args ...any)
}

type Options struct {
	Email       string
	Password    string
	CalendarURL string

	// WeeksBack is how many weeks before the current one to walk; the week
	// after the current one is always scraped first.
	WeeksBack int

	Headless   bool
	NavTimeout time.Duration
	Logger     Logger
}

type Scraper struct {
	opts Options
}

func NewScraper(opts Options) (*Scraper, error) {
	if strings.TrimSpace(opts.CalendarURL) == "" {
		return nil, fmt.Errorf("calendar url is required")
	}
	if opts.WeeksBack <= 0 {
		opts.WeeksBack = 20
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = defaultNavTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Scraper{opts: opts}, nil
}

type weekPayload struct {
	Header string    `json:"header"`
	Rows   []weekRow `json:"rows"`
}

type weekRow struct {
	Day   string `json:"day"`
	Time  string `json:"time"`
	Title string `json:"title"`
	Col   int    `json:"col"`
	Idx   int    `json:"idx"`
}

// Fetch opens the calendar, logs in when redirected to the sign-in page,
// and scrapes next week plus up to WeeksBack previous weeks. Walking stops
// early at the first week whose header cannot be parsed.
func (s *Scraper) Fetch(ctx context.Context) ([]event.Event, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("force-device-scale-factor", "1.1"),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	navCtx, cancelNav := context.WithTimeout(browserCtx, s.opts.NavTimeout)
	defer cancelNav()
	if err := s.openCalendar(navCtx); err != nil {
		return nil, err
	}

	var all []event.Event

	// One week forward first, then walk backwards through WeeksBack weeks.
	if err := s.turnWeek(browserCtx, "next"); err != nil {
		return nil, err
	}
	events, ok, err := s.scrapeWeek(browserCtx)
	if err != nil {
		return nil, err
	}
	if ok {
		all = append(all, events...)
	}

	for i := 0; i < s.opts.WeeksBack; i++ {
		if err := s.turnWeek(browserCtx, "previous"); err != nil {
			return nil, err
		}
		events, ok, err := s.scrapeWeek(browserCtx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		all = append(all, events...)
	}

	event.Sort(all)
	return all, nil
}

func (s *Scraper) openCalendar(ctx context.Context) error {
	var location string
	if err := chromedp.Run(ctx,
		chromedp.Navigate(s.opts.CalendarURL),
		chromedp.Location(&location),
	); err != nil {
		return fmt.Errorf("timetree: failed to open calendar: %w", err)
	}

	if strings.Contains(location, "signin") {
		s.opts.Logger.Printf("timetree: sign-in page detected, logging in")
		if err := chromedp.Run(ctx,
			chromedp.WaitVisible(`input[type="email"]`, chromedp.ByQuery),
			chromedp.SendKeys(`input[type="email"]`, s.opts.Email, chromedp.ByQuery),
			chromedp.SendKeys(`input[type="password"]`, s.opts.Password, chromedp.ByQuery),
			chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("timetree: login failed: %w", err)
		}
	}

	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(calendarRootSelector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("timetree: calendar did not load: %w", err)
	}
	return nil
}

func (s *Scraper) turnWeek(ctx context.Context, direction string) error {
	if err := chromedp.Run(ctx,
		chromedp.Click(fmt.Sprintf(`button[value=%q]`, direction), chromedp.ByQuery),
		chromedp.Sleep(weekSettleDelay),
	); err != nil {
		return fmt.Errorf("timetree: failed to turn week %s: %w", direction, err)
	}
	return nil
}

// scrapeWeek returns the visible week's events. ok is false when the
// month/year header cannot be parsed, which the walker treats as the edge
// of the calendar.
func (s *Scraper) scrapeWeek(ctx context.Context) ([]event.Event, bool, error) {
	var raw string
	if err := chromedp.Run(ctx, chromedp.Evaluate(weekScrapeJS, &raw)); err != nil {
		return nil, false, fmt.Errorf("timetree: week extraction failed: %w", err)
	}
	var payload weekPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, false, fmt.Errorf("timetree: malformed week payload: %w", err)
	}

	monthYear, ok := ParseMonthHeader(payload.Header)
	if !ok {
		s.opts.Logger.Printf("timetree: could not parse month header %q, stopping", payload.Header)
		return nil, false, nil
	}

	var events []event.Event
	for _, row := range payload.Rows {
		clock, ok := ParseClockTime(row.Time)
		if !ok {
			continue
		}
		memo, urls := s.scrapeDetail(ctx, row)
		url1, url2 := AttachmentURLs(urls)
		events = append(events, event.Event{
			Date:  DayDate(monthYear, row.Day),
			Time:  event.NormalizeTime(clock),
			Title: strings.TrimSpace(row.Title),
			Memo:  memo,
			URL1:  url1,
			URL2:  url2,
		})
	}
	s.opts.Logger.Printf("timetree: [%s] found %d events", monthYear, len(events))
	return events, true, nil
}

// scrapeDetail opens one event's detail panel and reads its memo and
// attachment URLs. Detail failures never lose the event itself; they are
// logged and the event keeps empty memo/URLs.
func (s *Scraper) scrapeDetail(ctx context.Context, row weekRow) (string, []string) {
	openJS := fmt.Sprintf(`(() => {
		const items = document.querySelectorAll('div[column="%d"] div[data-grid-item="true"]');
		if (items.length <= %d) return false;
		items[%d].click();
		return true;
	})()`, row.Col, row.Idx, row.Idx)

	var opened bool
	if err := chromedp.Run(ctx,
		chromedp.Evaluate(openJS, &opened),
		chromedp.Sleep(detailSettleDelay),
	); err != nil || !opened {
		s.opts.Logger.Printf("timetree: could not open detail for %q: %v", row.Title, err)
		return "", nil
	}
	defer s.closeDetail(ctx)

	var raw string
	if err := chromedp.Run(ctx, chromedp.Evaluate(detailScrapeJS, &raw)); err != nil {
		s.opts.Logger.Printf("timetree: detail extraction failed for %q: %v", row.Title, err)
		return "", nil
	}
	memo, urls, err := ParseDetailPayload(raw)
	if err != nil {
		s.opts.Logger.Printf("timetree: malformed detail payload for %q: %v", row.Title, err)
		return "", nil
	}
	return memo, urls
}

func (s *Scraper) closeDetail(ctx context.Context) {
	if err := chromedp.Run(ctx,
		chromedp.Evaluate(closeDetailJS, nil),
		chromedp.Sleep(detailSettleDelay),
	); err != nil {
		s.opts.Logger.Printf("timetree: could not close detail panel: %v", err)
	}
}
