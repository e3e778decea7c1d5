package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/timetree-tools/notionsync/internal/config"
	"github.com/timetree-tools/notionsync/internal/event"
	"github.com/timetree-tools/notionsync/internal/eventsync"
	"github.com/timetree-tools/notionsync/internal/history"
	"github.com/timetree-tools/notionsync/internal/notion"
	"github.com/timetree-tools/notionsync/internal/timetree"
)

func main() {
	configPath := flag.String("config", envOrDefault("NOTIONSYNC_CONFIG", "notionsync.yaml"), "config file path")
	eventsFile := flag.String("events", "", "events JSON feed path (overrides source.events_file)")
	scrape := flag.Bool("scrape", false, "scrape the TimeTree weekly view instead of reading the events feed")
	watch := flag.Bool("watch", false, "keep running and re-sync whenever the events feed changes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", *configPath, err)
	}
	applyEnvOverrides(cfg)
	if strings.TrimSpace(*eventsFile) != "" {
		cfg.Source.EventsFile = strings.TrimSpace(*eventsFile)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if *watch && *scrape {
		log.Fatalf("-watch requires an events feed file, not -scrape")
	}
	if !*scrape && strings.TrimSpace(cfg.Source.EventsFile) == "" {
		log.Fatalf("no event source: set source.events_file (or -events) or pass -scrape")
	}

	client := notion.NewClient(notion.Options{
		BaseURL:    cfg.Notion.BaseURL,
		Token:      cfg.Notion.Token,
		APIVersion: cfg.Notion.APIVersion,
		Logger:     log.Default(),
	})
	syncer, err := eventsync.NewSyncer(eventsync.SyncerOptions{
		Client:        client,
		DatabaseID:    cfg.Notion.DatabaseID,
		Properties:    cfg.Properties.Map(),
		UTCOffset:     cfg.Sync.UTCOffset,
		MaxConcurrent: cfg.Sync.MaxConcurrent,
		Logger:        log.Default(),
	})
	if err != nil {
		log.Fatalf("failed to initialize syncer: %v", err)
	}

	var recorder *history.Recorder
	if strings.TrimSpace(cfg.History.PostgresDSN) != "" {
		recorder, err = history.NewRecorder(cfg.History.PostgresDSN)
		if err != nil {
			log.Fatalf("failed to initialize run history: %v", err)
		}
		defer recorder.Close()
	}

	timeout, err := cfg.Sync.TimeoutDuration()
	if err != nil {
		log.Fatalf("invalid sync.timeout: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := func() {
		ctx := rootCtx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(rootCtx, timeout)
			defer cancel()
		}
		events, err := loadEvents(ctx, cfg, *scrape)
		if err != nil {
			log.Printf("failed to load events: %v", err)
			return
		}
		if len(events) == 0 {
			log.Printf("no events to sync")
			return
		}
		log.Printf("syncing %d events", len(events))

		startedAt := time.Now()
		report := syncer.Run(ctx, events)
		printReport(report, len(events))
		recordRun(rootCtx, recorder, startedAt, len(events), report)
	}

	run()
	if !*watch {
		return
	}
	if err := watchAndRun(rootCtx, cfg.Source.EventsFile, run); err != nil {
		log.Fatalf("watch failed: %v", err)
	}
}

func loadEvents(ctx context.Context, cfg *config.Config, scrape bool) ([]event.Event, error) {
	if !scrape {
		return event.LoadFile(cfg.Source.EventsFile, log.Default())
	}
	tt := cfg.Source.TimeTree
	if tt == nil {
		return nil, fmt.Errorf("source.timetree is not configured")
	}
	scraper, err := timetree.NewScraper(timetree.Options{
		Email:       tt.Email,
		Password:    tt.Password,
		CalendarURL: tt.CalendarURL,
		WeeksBack:   tt.WeeksBack,
		Headless:    tt.Headless,
		Logger:      log.Default(),
	})
	if err != nil {
		return nil, err
	}
	return scraper.Fetch(ctx)
}

func printReport(report eventsync.Report, eventCount int) {
	if report.IndexDegraded {
		log.Printf("WARNING: existing-record index was unavailable; this run was create-only and may have produced duplicates")
	}
	log.Printf("sync complete: %d events, %d created, %d updated, %d failed",
		eventCount, report.Created, report.Updated, len(report.Failures))
	for _, f := range report.Failures {
		log.Printf("  FAILED %s (%s): %v", f.Title, f.When, f.Err)
	}
}

func recordRun(ctx context.Context, recorder *history.Recorder, startedAt time.Time, eventCount int, report eventsync.Report) {
	if recorder == nil {
		return
	}
	record := history.RunRecord{
		StartedAt:     startedAt,
		FinishedAt:    time.Now(),
		EventCount:    eventCount,
		Created:       report.Created,
		Updated:       report.Updated,
		IndexDegraded: report.IndexDegraded,
	}
	for _, f := range report.Failures {
		record.Failures = append(record.Failures, history.FailureRecord{
			Title: f.Title,
			When:  f.When,
			Error: f.Err.Error(),
		})
	}
	if err := recorder.Record(ctx, record); err != nil {
		log.Printf("failed to record run history: %v", err)
	}
}

// watchAndRun re-runs the sync whenever the events feed is rewritten.
// Editors replace files by rename, so the parent directory is watched and
// events are filtered by name; rapid write bursts are debounced.
func watchAndRun(ctx context.Context, eventsFile string, run func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(eventsFile)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(eventsFile)
	log.Printf("watching %s for changes", target)

	const debounce = 500 * time.Millisecond
	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch error: %v", err)
		case <-pending:
			log.Printf("events feed changed, re-syncing")
			run()
		}
	}
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

// applyEnvOverrides lets credentials come from the environment instead of
// the config file, so the file can be committed without secrets.
func applyEnvOverrides(cfg *config.Config) {
	if v := strings.TrimSpace(os.Getenv("NOTION_API_KEY")); v != "" {
		cfg.Notion.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("NOTION_DATABASE_ID")); v != "" {
		cfg.Notion.DatabaseID = v
	}
	if tt := cfg.Source.TimeTree; tt != nil {
		if v := strings.TrimSpace(os.Getenv("TIMETREE_EMAIL")); v != "" {
			tt.Email = v
		}
		if v := strings.TrimSpace(os.Getenv("TIMETREE_PASSWORD")); v != "" {
			tt.Password = v
		}
		if v := strings.TrimSpace(os.Getenv("TIMETREE_CALENDAR_URL")); v != "" {
			tt.CalendarURL = v
		}
	}
	if v := strings.TrimSpace(os.Getenv("NOTIONSYNC_POSTGRES_DSN")); v != "" {
		cfg.History.PostgresDSN = v
	}
}
