package eventsync

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timetree-tools/notionsync/internal/notion"
)

// fakeStore is an in-memory StoreClient. Query pagination slices the seeded
// pages by queryPageSize; the date filter itself is not interpreted, so
// tests seed only the pages they want visible.
type fakeStore struct {
	mu    sync.Mutex
	pages map[string]*storedPage
	order []string
	seq   int

	queryErr      error
	queryPageSize int
	createErr     func(title string) error
	updateErr     func(pageID string) error
	listErr       error
	appendErr     error
	deleteErr     error

	createDelay time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	queryCalls  atomic.Int32
	createCalls atomic.Int32
	updateCalls atomic.Int32
}

type storedPage struct {
	id     string
	props  map[string]notion.PropertyValue
	blocks []notion.Block
}

func newFakeStore() *fakeStore {
	return &fakeStore{pages: map[string]*storedPage{}}
}

func (s *fakeStore) seedPage(props map[string]notion.PropertyValue) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(props)
}

func (s *fakeStore) insertLocked(props map[string]notion.PropertyValue) string {
	s.seq++
	id := fmt.Sprintf("page_%d", s.seq)
	copied := make(map[string]notion.PropertyValue, len(props))
	for k, v := range props {
		copied[k] = v
	}
	s.pages[id] = &storedPage{id: id, props: copied}
	s.order = append(s.order, id)
	return id
}

func (s *fakeStore) seedBlock(pageID string, block notion.Block) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	block.ID = fmt.Sprintf("block_%d", s.seq)
	s.pages[pageID].blocks = append(s.pages[pageID].blocks, block)
	return block.ID
}

func (s *fakeStore) blocksOf(pageID string) []notion.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[pageID]
	if !ok {
		return nil
	}
	return append([]notion.Block(nil), page.blocks...)
}

func (s *fakeStore) QueryDatabase(ctx context.Context, databaseID string, req notion.QueryRequest) (notion.QueryResponse, error) {
	s.queryCalls.Add(1)
	if s.queryErr != nil {
		return notion.QueryResponse{}, s.queryErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	offset := 0
	if req.StartCursor != "" {
		offset, _ = strconv.Atoi(req.StartCursor)
	}
	end := len(s.order)
	if s.queryPageSize > 0 && offset+s.queryPageSize < end {
		end = offset + s.queryPageSize
	}

	var resp notion.QueryResponse
	for _, id := range s.order[offset:end] {
		page := s.pages[id]
		props := make(map[string]notion.PropertyValue, len(page.props))
		for k, v := range page.props {
			props[k] = v
		}
		resp.Results = append(resp.Results, notion.Page{ID: page.id, Properties: props})
	}
	if end < len(s.order) {
		cursor := strconv.Itoa(end)
		resp.HasMore = true
		resp.NextCursor = &cursor
	}
	return resp, nil
}

func (s *fakeStore) CreatePage(ctx context.Context, req notion.CreatePageRequest) (notion.Page, error) {
	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		max := s.maxInFlight.Load()
		if current <= max || s.maxInFlight.CompareAndSwap(max, current) {
			break
		}
	}
	s.createCalls.Add(1)
	if s.createDelay > 0 {
		time.Sleep(s.createDelay)
	}
	if s.createErr != nil {
		if err := s.createErr(titleOf(req.Properties)); err != nil {
			return notion.Page{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.insertLocked(req.Properties)
	return notion.Page{ID: id}, nil
}

func (s *fakeStore) UpdatePage(ctx context.Context, pageID string, req notion.UpdatePageRequest) error {
	s.updateCalls.Add(1)
	if s.updateErr != nil {
		if err := s.updateErr(pageID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[pageID]
	if !ok {
		return fmt.Errorf("no such page %s", pageID)
	}
	for k, v := range req.Properties {
		page.props[k] = v
	}
	return nil
}

func (s *fakeStore) ListBlockChildren(ctx context.Context, blockID, cursor string, pageSize int) (notion.BlockChildrenResponse, error) {
	if s.listErr != nil {
		return notion.BlockChildrenResponse{}, s.listErr
	}
	return notion.BlockChildrenResponse{Results: s.blocksOf(blockID)}, nil
}

func (s *fakeStore) AppendBlockChildren(ctx context.Context, blockID string, children []notion.Block) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[blockID]
	if !ok {
		return fmt.Errorf("no such page %s", blockID)
	}
	for _, child := range children {
		s.seq++
		child.ID = fmt.Sprintf("block_%d", s.seq)
		page.blocks = append(page.blocks, child)
	}
	return nil
}

func (s *fakeStore) DeleteBlock(ctx context.Context, blockID string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, page := range s.pages {
		for i, block := range page.blocks {
			if block.ID == blockID {
				page.blocks = append(page.blocks[:i], page.blocks[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("no such block %s", blockID)
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func titleOf(props map[string]notion.PropertyValue) string {
	for _, v := range props {
		if len(v.Title) > 0 {
			return notion.PlainText(v.Title)
		}
	}
	return ""
}
