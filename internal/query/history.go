package query

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/logging"
	"go.uber.org/zap"
)

// DefaultPageSize is the number of questions per history page.
const DefaultPageSize = 20

// ListFunc fetches one page of query history.
type ListFunc func(ctx context.Context, skip, limit int) (*api.QueryList, error)

// HistoryView is a copy of the pager state.
type HistoryView struct {
	Items      []api.QueryListItem
	TotalCount int
	Page       int // zero-based
	TotalPages int
	Loading    bool
}

// HasContent reports whether any question exists. The shell shows the
// history sidebar only then.
func (v HistoryView) HasContent() bool {
	return v.TotalCount > 0
}

// HasPrev reports whether Prev would move.
func (v HistoryView) HasPrev() bool {
	return v.Page > 0
}

// HasNext reports whether Next would move.
func (v HistoryView) HasNext() bool {
	return v.Page < v.TotalPages-1
}

// PageLabel returns "Page N of M". An empty history reads "Page 1 of 1".
func (v HistoryView) PageLabel() string {
	pages := v.TotalPages
	if pages < 1 {
		pages = 1
	}
	return fmt.Sprintf("Page %d of %d", v.Page+1, pages)
}

// History pages through past questions, newest first.
type History struct {
	list     ListFunc
	pageSize int
	logger   *logging.Logger

	mu          sync.Mutex
	items       []api.QueryListItem
	total       int
	page        int
	loading     bool
	lastRefresh int
	epoch       uint64
}

// NewHistory returns a pager over list. A pageSize below one falls back
// to DefaultPageSize.
func NewHistory(list ListFunc, pageSize int, logger *logging.Logger) *History {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &History{list: list, pageSize: pageSize, logger: logger, lastRefresh: -1}
}

// View returns a copy of the current state.
func (h *History) View() HistoryView {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HistoryView{
		Items:      append([]api.QueryListItem(nil), h.items...),
		TotalCount: h.total,
		Page:       h.page,
		TotalPages: h.totalPagesLocked(),
		Loading:    h.loading,
	}
}

func (h *History) totalPagesLocked() int {
	return (h.total + h.pageSize - 1) / h.pageSize
}

// Reload fetches the current page. A failure empties the listing.
func (h *History) Reload(ctx context.Context) error {
	h.mu.Lock()
	page, epoch := h.page, h.epoch
	h.loading = true
	h.mu.Unlock()

	resp, err := h.list(ctx, page*h.pageSize, h.pageSize)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.epoch != epoch {
		return nil
	}
	h.loading = false
	if err != nil {
		h.items = nil
		h.total = 0
		h.logger.Warn(ctx, "failed to load query history", zap.Int("page", page), zap.Error(err))
		return err
	}
	h.items = resp.Queries
	h.total = resp.TotalCount
	return nil
}

// Refresh reloads when counter differs from the one last seen. The shell
// passes the session's history refresh counter.
func (h *History) Refresh(ctx context.Context, counter int) error {
	h.mu.Lock()
	if counter == h.lastRefresh {
		h.mu.Unlock()
		return nil
	}
	h.lastRefresh = counter
	h.mu.Unlock()
	return h.Reload(ctx)
}

// Next moves to the following page. It reports false at the last page.
func (h *History) Next(ctx context.Context) (bool, error) {
	h.mu.Lock()
	if h.page >= h.totalPagesLocked()-1 {
		h.mu.Unlock()
		return false, nil
	}
	h.page++
	h.mu.Unlock()
	return true, h.Reload(ctx)
}

// Prev moves to the preceding page. It reports false at the first page.
func (h *History) Prev(ctx context.Context) (bool, error) {
	h.mu.Lock()
	if h.page == 0 {
		h.mu.Unlock()
		return false, nil
	}
	h.page--
	h.mu.Unlock()
	return true, h.Reload(ctx)
}

// Reset returns to the first page and forgets the listing. The next
// Refresh reloads whatever counter it is given, and a Reload still in
// flight is discarded.
func (h *History) Reset() {
	h.mu.Lock()
	h.page = 0
	h.items = nil
	h.total = 0
	h.loading = false
	h.lastRefresh = -1
	h.epoch++
	h.mu.Unlock()
}
