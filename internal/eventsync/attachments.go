package eventsync

import (
	"context"

	"github.com/timetree-tools/notionsync/internal/notion"
)

// AutoImageCaption marks image blocks owned by this engine. Blocks carrying
// it are replaced wholesale on every run; human-authored blocks are never
// touched.
const AutoImageCaption = "TimeTree Auto Image"

// AttachmentManager keeps a page's auto-managed image blocks in step with
// the event's attachment URLs. All of its failures are logged and swallowed:
// attachment maintenance must never fail the owning record's upsert.
type AttachmentManager struct {
	client StoreClient
	logger Logger
}

func NewAttachmentManager(client StoreClient, logger Logger) *AttachmentManager {
	return &AttachmentManager{client: client, logger: logger}
}

// Replace deletes every sentinel-tagged image block on the page and appends
// one external image block per non-empty URL, in order. An empty URL list
// performs cleanup only.
func (m *AttachmentManager) Replace(ctx context.Context, pageID string, urls []string) {
	m.cleanup(ctx, pageID)

	var blocks []notion.Block
	for _, u := range urls {
		if u == "" {
			continue
		}
		blocks = append(blocks, notion.NewExternalImageBlock(u, AutoImageCaption))
	}
	if len(blocks) == 0 {
		return
	}
	if err := m.client.AppendBlockChildren(ctx, pageID, blocks); err != nil {
		m.logf("eventsync: failed to append image blocks to %s: %v", pageID, err)
	}
}

func (m *AttachmentManager) cleanup(ctx context.Context, pageID string) {
	cursor := ""
	for {
		resp, err := m.client.ListBlockChildren(ctx, pageID, cursor, indexPageSize)
		if err != nil {
			m.logf("eventsync: failed to list blocks of %s: %v", pageID, err)
			return
		}
		for _, block := range resp.Results {
			if block.Type != "image" || block.Image == nil || block.ID == "" {
				continue
			}
			if !captionMatches(block.Image.Caption) {
				continue
			}
			if err := m.client.DeleteBlock(ctx, block.ID); err != nil {
				m.logf("eventsync: failed to delete image block %s: %v", block.ID, err)
			}
		}
		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			return
		}
		cursor = *resp.NextCursor
	}
}

func captionMatches(caption []notion.RichText) bool {
	for _, span := range caption {
		if span.PlainText == AutoImageCaption {
			return true
		}
		if span.Text != nil && span.Text.Content == AutoImageCaption {
			return true
		}
	}
	return false
}

func (m *AttachmentManager) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
