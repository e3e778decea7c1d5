package eventsync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/timetree-tools/notionsync/internal/event"
	"github.com/timetree-tools/notionsync/internal/notion"
)

const defaultMaxConcurrent = 3

// Failure is the per-event outcome when any step of an event's pipeline
// failed. A nil *Failure is success.
type Failure struct {
	Title string
	When  string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s (%s): %v", f.Title, f.When, f.Err)
}

// Report is the aggregate outcome of one batch run. The run itself always
// completes; Failures lists the events that did not make it.
type Report struct {
	Created       int
	Updated       int
	Failures      []Failure
	IndexDegraded bool
}

type SyncerOptions struct {
	Client     StoreClient
	DatabaseID string
	Properties notion.PropertyMap

	// UTCOffset is appended to the combined date+time when building the
	// store's timestamp, e.g. "+09:00".
	UTCOffset string

	// MaxConcurrent bounds simultaneously in-flight event pipelines, not
	// individual HTTP calls. Default 3, under the store's safe
	// concurrent-request guidance.
	MaxConcurrent int

	Logger Logger
}

// Syncer runs upsert-and-attach pipelines for events against one database.
type Syncer struct {
	client      StoreClient
	databaseID  string
	props       notion.PropertyMap
	utcOffset   string
	attachments *AttachmentManager
	sem         chan struct{}
	logger      Logger
}

func NewSyncer(opts SyncerOptions) (*Syncer, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("store client is required")
	}
	if opts.DatabaseID == "" {
		return nil, fmt.Errorf("database id is required")
	}
	if err := opts.Properties.Validate(); err != nil {
		return nil, err
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	utcOffset := opts.UTCOffset
	if utcOffset == "" {
		utcOffset = "+09:00"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Syncer{
		client:      opts.Client,
		databaseID:  opts.DatabaseID,
		props:       opts.Properties,
		utcOffset:   utcOffset,
		attachments: NewAttachmentManager(opts.Client, logger),
		sem:         make(chan struct{}, maxConcurrent),
		logger:      logger,
	}, nil
}

// SyncEvent runs the whole pipeline for one event: acquire a concurrency
// slot, create or update the record, then maintain its attachments. The
// slot is held until the attachment step finishes.
func (s *Syncer) SyncEvent(ctx context.Context, e event.Event, matchedPageID string) *Failure {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return s.failure(e, ctx.Err())
	}
	defer func() { <-s.sem }()

	fields := notion.PageFields{
		Title:      e.Title,
		Start:      s.isoStart(e),
		Memo:       e.Memo,
		ExternalID: e.ID,
		URL1:       e.URL1,
		URL2:       e.URL2,
	}
	properties := s.props.BuildProperties(fields)

	pageID := matchedPageID
	if matchedPageID != "" {
		if err := s.client.UpdatePage(ctx, matchedPageID, notion.UpdatePageRequest{Properties: properties}); err != nil {
			return s.failure(e, err)
		}
		s.logger.Printf("eventsync: updated %q (%s %s)", e.Title, e.Date, e.Time)
	} else {
		page, err := s.client.CreatePage(ctx, notion.CreatePageRequest{
			Parent:     notion.Parent{DatabaseID: s.databaseID},
			Properties: properties,
		})
		if err != nil {
			return s.failure(e, err)
		}
		pageID = page.ID
		s.logger.Printf("eventsync: created %q (%s %s)", e.Title, e.Date, e.Time)
	}

	if pageID != "" && (e.URL1 != "" || e.URL2 != "") {
		s.attachments.Replace(ctx, pageID, []string{e.URL1, e.URL2})
	}
	return nil
}

// Run builds the index once for the events' date span, fans out one
// pipeline per event, and gathers every outcome without short-circuiting.
// Completion order across events is unspecified.
func (s *Syncer) Run(ctx context.Context, events []event.Event) Report {
	if len(events) == 0 {
		return Report{}
	}
	dateStart, dateEnd, _ := event.Span(events)
	idx := BuildIndex(ctx, s.client, s.databaseID, s.props, dateStart, dateEnd, s.logger)

	var (
		wg       sync.WaitGroup
		created  atomic.Int64
		updated  atomic.Int64
		failures = make([]*Failure, len(events))
	)
	for i, e := range events {
		matched := Match(e, idx)
		wg.Add(1)
		go func(i int, e event.Event, matched string) {
			defer wg.Done()
			f := s.SyncEvent(ctx, e, matched)
			failures[i] = f
			if f != nil {
				return
			}
			if matched == "" {
				created.Add(1)
			} else {
				updated.Add(1)
			}
		}(i, e, matched)
	}
	wg.Wait()

	report := Report{
		Created:       int(created.Load()),
		Updated:       int(updated.Load()),
		IndexDegraded: idx.Degraded,
	}
	for _, f := range failures {
		if f != nil {
			report.Failures = append(report.Failures, *f)
		}
	}
	return report
}

func (s *Syncer) isoStart(e event.Event) string {
	return e.Date + "T" + event.NormalizeTime(e.Time) + ":00" + s.utcOffset
}

func (s *Syncer) failure(e event.Event, err error) *Failure {
	return &Failure{
		Title: e.Title,
		When:  e.Date + " " + e.Time,
		Err:   err,
	}
}
