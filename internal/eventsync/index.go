// Package eventsync reconciles scraped calendar events against an existing
// Notion database and applies the minimal set of creates and updates, under
// a bounded number of concurrent event pipelines.
package eventsync

import (
	"context"
	"strings"

	"github.com/timetree-tools/notionsync/internal/event"
	"github.com/timetree-tools/notionsync/internal/notion"
)

const indexPageSize = 100

type Logger interface {
	Printf(format string, args ...any)
}

// StoreClient is the slice of the Notion API the sync core depends on.
type StoreClient interface {
	QueryDatabase(ctx context.Context, databaseID string, req notion.QueryRequest) (notion.QueryResponse, error)
	CreatePage(ctx context.Context, req notion.CreatePageRequest) (notion.Page, error)
	UpdatePage(ctx context.Context, pageID string, req notion.UpdatePageRequest) error
	ListBlockChildren(ctx context.Context, blockID, cursor string, pageSize int) (notion.BlockChildrenResponse, error)
	AppendBlockChildren(ctx context.Context, blockID string, children []notion.Block) error
	DeleteBlock(ctx context.Context, blockID string) error
}

// PageIndex maps existing records to their page ids, built once per run
// from a single paginated scan and never mutated afterwards.
//
// ByID is keyed by the external event id and is authoritative when present.
// ByKey is keyed by "{date}T{HH:MM}_{title}" and catches records whose id
// property was never set or has been cleared.
type PageIndex struct {
	ByID  map[string]string
	ByKey map[string]string

	// Degraded is set when the index scan failed and both maps are empty:
	// the run falls back to create-only behavior.
	Degraded bool
}

// BuildIndex scans the database for records whose date property falls in
// [dateStart, dateEnd] inclusive. A fatal error mid-scan yields an empty,
// degraded index rather than aborting the run.
func BuildIndex(ctx context.Context, client StoreClient, databaseID string, props notion.PropertyMap, dateStart, dateEnd string, logger Logger) PageIndex {
	idx := PageIndex{
		ByID:  map[string]string{},
		ByKey: map[string]string{},
	}

	req := notion.QueryRequest{
		Filter: &notion.QueryFilter{
			And: []notion.PropertyFilter{
				{Property: props.Date, Date: &notion.DateCondition{OnOrAfter: dateStart}},
				{Property: props.Date, Date: &notion.DateCondition{OnOrBefore: dateEnd}},
			},
		},
		PageSize: indexPageSize,
	}

	for {
		resp, err := client.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			if logger != nil {
				logger.Printf("eventsync: index build failed, continuing with empty index (create-only run): %v", err)
			}
			return PageIndex{ByID: map[string]string{}, ByKey: map[string]string{}, Degraded: true}
		}

		for _, page := range resp.Results {
			indexPage(&idx, page, props)
		}

		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}
		req.StartCursor = *resp.NextCursor
	}
	return idx
}

func indexPage(idx *PageIndex, page notion.Page, props notion.PropertyMap) {
	externalID := notion.PlainText(page.Properties[props.ExternalID].RichText)
	if externalID != "" {
		idx.ByID[externalID] = page.ID
	}

	// The fallback key is always recorded, so a record whose id property was
	// cleared by hand can still be matched by semantic identity.
	title := notion.PlainText(page.Properties[props.Title].Title)
	start := ""
	if date := page.Properties[props.Date].Date; date != nil {
		start = date.Start
	}
	idx.ByKey[fallbackKeyFromStart(start, title)] = page.ID
}

// fallbackKeyFromStart truncates an ISO-8601 start to minute precision
// before joining it with the title.
func fallbackKeyFromStart(start, title string) string {
	dateKey := start
	if strings.Contains(start, "T") && len(start) >= 16 {
		dateKey = start[:16]
	}
	return dateKey + "_" + title
}

// FallbackKey computes the composite identity for an incoming event,
// matching the shape produced by fallbackKeyFromStart on the index side.
func FallbackKey(e event.Event) string {
	return e.Date + "T" + event.NormalizeTime(e.Time) + "_" + e.Title
}

// Match resolves the existing page for an event. The external id wins when
// both tiers match different pages; the composite key is best-effort
// identity for sources that cannot mint stable ids.
func Match(e event.Event, idx PageIndex) string {
	if e.ID != "" {
		if pageID, ok := idx.ByID[e.ID]; ok {
			return pageID
		}
	}
	if pageID, ok := idx.ByKey[FallbackKey(e)]; ok {
		return pageID
	}
	return ""
}
