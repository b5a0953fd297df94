package query_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_Paging(t *testing.T) {
	_, c, _ := newWorkflow(t)
	ctx := context.Background()
	for i := 0; i < 45; i++ {
		_, err := c.AskQuestion(ctx, fmt.Sprintf("question %d", i))
		require.NoError(t, err)
	}

	h := query.NewHistory(c.ListQueries, 20, nil)
	require.NoError(t, h.Refresh(ctx, 0))

	v := h.View()
	assert.True(t, v.HasContent())
	assert.Equal(t, 45, v.TotalCount)
	assert.Equal(t, 3, v.TotalPages)
	assert.Equal(t, "Page 1 of 3", v.PageLabel())
	assert.Len(t, v.Items, 20)
	assert.Equal(t, "question 44", v.Items[0].Question, "newest first")
	assert.False(t, v.HasPrev())
	assert.True(t, v.HasNext())

	moved, err := h.Prev(ctx)
	require.NoError(t, err)
	assert.False(t, moved)

	for i := 0; i < 2; i++ {
		moved, err = h.Next(ctx)
		require.NoError(t, err)
		assert.True(t, moved)
	}
	v = h.View()
	assert.Equal(t, "Page 3 of 3", v.PageLabel())
	assert.Len(t, v.Items, 5)
	assert.False(t, v.HasNext())

	moved, err = h.Next(ctx)
	require.NoError(t, err)
	assert.False(t, moved)

	h.Reset()
	assert.Equal(t, 0, h.View().Page)
}

func TestHistory_RefreshOnlyOnNewCounter(t *testing.T) {
	b, c, _ := newWorkflow(t)
	ctx := context.Background()
	h := query.NewHistory(c.ListQueries, 0, nil)

	require.NoError(t, h.Refresh(ctx, 1))
	require.NoError(t, h.Refresh(ctx, 1))
	require.NoError(t, h.Refresh(ctx, 2))

	reqs := b.RequestsTo(http.MethodGet, "/user_query/list")
	require.Len(t, reqs, 2)
	assert.Equal(t, "limit=20&skip=0", reqs[0].Query)
	assert.False(t, h.View().HasContent())
}

func TestHistory_FailureEmptiesListing(t *testing.T) {
	b, c, _ := newWorkflow(t)
	ctx := context.Background()
	_, err := c.AskQuestion(ctx, "q")
	require.NoError(t, err)

	h := query.NewHistory(c.ListQueries, 20, nil)
	require.NoError(t, h.Reload(ctx))
	require.True(t, h.View().HasContent())

	b.Fail(http.MethodGet, "/user_query/list", http.StatusInternalServerError, 1)
	require.Error(t, h.Reload(ctx))
	v := h.View()
	assert.Empty(t, v.Items)
	assert.False(t, v.HasContent())
}

func TestHistoryView_PageLabelWhenEmpty(t *testing.T) {
	assert.Equal(t, "Page 1 of 1", query.HistoryView{}.PageLabel())
}

func TestHistory_ResetDropsReloadInFlight(t *testing.T) {
	_, c, _ := newWorkflow(t)
	ctx := context.Background()
	_, err := c.AskQuestion(ctx, "q")
	require.NoError(t, err)

	var h *query.History
	h = query.NewHistory(func(ctx context.Context, skip, limit int) (*api.QueryList, error) {
		list, err := c.ListQueries(ctx, skip, limit)
		h.Reset()
		return list, err
	}, 20, nil)

	require.NoError(t, h.Refresh(ctx, 3))
	v := h.View()
	assert.Empty(t, v.Items)
	assert.False(t, v.Loading)

	h = query.NewHistory(c.ListQueries, 20, nil)
	require.NoError(t, h.Refresh(ctx, 3))
	h.Reset()
	require.NoError(t, h.Refresh(ctx, 3))
	assert.Equal(t, 1, h.View().TotalCount, "the same counter reloads after a reset")
}
