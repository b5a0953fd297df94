package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/fyrsmithlabs/aicacia/internal/apitest"
	"github.com/fyrsmithlabs/aicacia/internal/session"
	"github.com/fyrsmithlabs/aicacia/internal/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	var _ Registry = (*registry)(nil)
}

func TestNewRegistry_RequiresClientAndTokens(t *testing.T) {
	_, err := NewRegistry(Options{})
	assert.EqualError(t, err, "client is required")

	b := apitest.New(t)
	_, err = NewRegistry(Options{Client: b.Client(t, tokenstore.NewMemoryStore(""))})
	assert.EqualError(t, err, "token store is required")
}

func newRegistry(t *testing.T, opts Options) (*apitest.Backend, Registry) {
	t.Helper()
	b := apitest.New(t)
	store := b.SignedIn("ada@example.org", true)
	opts.Client = b.Client(t, store)
	opts.Tokens = store
	reg, err := NewRegistry(opts)
	require.NoError(t, err)
	t.Cleanup(reg.Close)
	return b, reg
}

func TestRegistryAccessors(t *testing.T) {
	_, reg := newRegistry(t, Options{})

	assert.NotNil(t, reg.Client())
	assert.NotNil(t, reg.Session())
	assert.NotNil(t, reg.Query())
	assert.NotNil(t, reg.History())
	assert.NotNil(t, reg.Chat())
	assert.NotNil(t, reg.Review())
	assert.NotNil(t, reg.Documents())
	assert.Equal(t, session.Unverified, reg.Session().Snapshot().State)
}

func TestRegistry_AskBumpsHistory(t *testing.T) {
	var seen []int
	_, reg := newRegistry(t, Options{
		OnSessionChange: func(s session.Snapshot) { seen = append(seen, s.HistoryRefresh) },
	})
	ctx := context.Background()

	require.NoError(t, reg.Query().Ask(ctx, "Which grasses hold dunes?"))

	assert.Equal(t, 1, reg.Session().Snapshot().HistoryRefresh)
	assert.Equal(t, []int{1}, seen)

	require.NoError(t, reg.History().Refresh(ctx, 1))
	assert.Equal(t, 1, reg.History().View().TotalCount)
}

func TestRegistry_UnauthorizedExpiresSession(t *testing.T) {
	b, reg := newRegistry(t, Options{})
	ctx := context.Background()
	require.NoError(t, reg.Session().Verify(ctx))
	require.True(t, reg.Session().Snapshot().IsAdmin())

	b.RevokeTokens()
	err := reg.Chat().ReloadThreads(ctx)
	require.Error(t, err)

	assert.Equal(t, session.LoggedOut, reg.Session().Snapshot().State)
	assert.Len(t, b.RequestsTo(http.MethodGet, "/chat/threads"), 1)
}

func TestRegistry_PageSize(t *testing.T) {
	b, reg := newRegistry(t, Options{PageSize: 5})

	require.NoError(t, reg.History().Reload(context.Background()))

	reqs := b.RequestsTo(http.MethodGet, "/user_query/list")
	require.Len(t, reqs, 1)
	assert.Equal(t, "limit=5&skip=0", reqs[0].Query)
}

func TestRegistry_LogoutClearsWorkflowsForNextUser(t *testing.T) {
	var states []session.State
	b, reg := newRegistry(t, Options{
		ChatRefreshDelay: time.Hour,
		OnSessionChange:  func(s session.Snapshot) { states = append(states, s.State) },
	})
	ctx := context.Background()
	b.AddUser("bob@example.org", "secret", false)
	b.AddDocument("ada@example.org", "notes.pdf", 64)

	require.NoError(t, reg.Session().Verify(ctx))
	require.NoError(t, reg.Query().Ask(ctx, "Which grasses hold dunes?"))
	require.NoError(t, reg.History().Refresh(ctx, reg.Session().Snapshot().HistoryRefresh))
	require.NoError(t, reg.Chat().Send(ctx, "Hello there"))
	require.NoError(t, reg.Chat().ReloadThreads(ctx))
	require.NoError(t, reg.Review().LoadUsers(ctx))
	require.NoError(t, reg.Review().SelectUser(ctx, b.UserID("ada@example.org")))
	require.NoError(t, reg.Documents().SelectUser(ctx, "ada@example.org"))
	require.NotNil(t, reg.Query().View().Payload)
	require.NotEmpty(t, reg.Chat().View().ThreadID)

	reg.Session().Logout(ctx)
	require.NoError(t, reg.Session().Login(ctx, session.Credentials{Email: "bob@example.org", Password: "secret"}))
	require.Equal(t, "bob@example.org", reg.Session().Snapshot().User.Email)

	q := reg.Query().View()
	assert.Nil(t, q.Payload)
	assert.Empty(t, q.Values)
	assert.False(t, q.Submitted)

	assert.Empty(t, reg.History().View().Items)
	assert.Zero(t, reg.History().View().TotalCount)

	c := reg.Chat().View()
	assert.Empty(t, c.ThreadID)
	assert.Empty(t, c.Messages)
	assert.Empty(t, c.Threads)
	assert.Zero(t, c.RefreshCount, "the pending thread refresh was stopped")

	rv := reg.Review().View()
	assert.Empty(t, rv.Users)
	assert.Empty(t, rv.UserID)
	assert.Empty(t, rv.History.Items)

	dv := reg.Documents().View()
	assert.Empty(t, dv.Email)
	assert.Empty(t, dv.Documents)
	assert.Nil(t, dv.Quota)

	require.NoError(t, reg.History().Refresh(ctx, reg.Session().Snapshot().HistoryRefresh))
	assert.Zero(t, reg.History().View().TotalCount, "bob has asked nothing")
	assert.Contains(t, states, session.LoggedOut)
}
