package tui

import (
	"context"
	"net/http"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fyrsmithlabs/aicacia/internal/apitest"
	"github.com/fyrsmithlabs/aicacia/internal/router"
	"github.com/fyrsmithlabs/aicacia/internal/services"
	"github.com/fyrsmithlabs/aicacia/internal/session"
	"github.com/fyrsmithlabs/aicacia/internal/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail = "root@example.org"
	userEmail  = "ada@example.org"
)

// newModel builds the shell against a fake backend using store.
func newModel(t *testing.T, b *apitest.Backend, store tokenstore.Store, path string) Model {
	t.Helper()
	events := NewNotifier()
	reg, err := services.NewRegistry(services.Options{
		Client:              b.Client(t, store),
		Tokens:              store,
		ChatRefreshDelay:    time.Millisecond,
		ChatRefreshAttempts: 3,
		OnSessionChange:     events.SessionChanged,
		OnChange:            events.Changed,
	})
	require.NoError(t, err)
	t.Cleanup(reg.Close)
	return New(context.Background(), NewDeps(reg, events, nil), path)
}

// signedIn returns a shell whose session is already verified.
func signedIn(t *testing.T, b *apitest.Backend, email string, isAdmin bool) Model {
	t.Helper()
	m := newModel(t, b, b.SignedIn(email, isAdmin), router.PathQuery)
	require.NoError(t, m.deps.Session.Verify(context.Background()))
	return settle(t, m, nil)
}

// settle runs cmd and feeds every resulting message back into the model
// until nothing is left to run.
func settle(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	m, first := m.sync()
	queue := []tea.Cmd{cmd, first}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 200, "commands did not settle")
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case doneMsg:
			next, cmd := m.Update(msg)
			m = next.(Model)
			queue = append(queue, cmd)
		}
	}
	return m
}

func press(t *testing.T, m Model, msg tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	return settle(t, next.(Model), cmd)
}

func keys(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func TestNew_LoggedOutShowsLogin(t *testing.T) {
	b := apitest.New(t)
	m := newModel(t, b, tokenstore.NewMemoryStore(""), router.PathChat)

	assert.Equal(t, router.ScreenLogin, m.route.Screen)
	assert.Equal(t, router.PathLogin, m.path)
	view := m.View()
	assert.Contains(t, view, "Sign in")
	assert.NotContains(t, view, "Search")
}

func TestNew_NonAdminRedirectedFromAdmin(t *testing.T) {
	b := apitest.New(t)
	m := newModel(t, b, b.SignedIn(userEmail, false), router.PathAdmin)

	assert.Equal(t, router.ScreenQuery, m.route.Screen)
	assert.Equal(t, router.PathQuery, m.path)
}

func TestModel_Init(t *testing.T) {
	b := apitest.New(t)
	m := newModel(t, b, tokenstore.NewMemoryStore(""), router.PathQuery)
	assert.NotNil(t, m.Init())
}

func TestModel_LoginFlow(t *testing.T) {
	b := apitest.New(t)
	b.AddUser(userEmail, "secret", false)
	m := newModel(t, b, tokenstore.NewMemoryStore(""), router.PathQuery)

	m = press(t, m, keys(userEmail))
	m = press(t, m, key(tea.KeyTab))
	m = press(t, m, keys("secret"))
	m = press(t, m, key(tea.KeyEnter))

	snap := m.deps.Session.Snapshot()
	assert.Equal(t, session.Verified, snap.State)
	assert.Equal(t, router.ScreenQuery, m.route.Screen)
	assert.Equal(t, router.PathQuery, m.path)
	assert.Equal(t, 0, m.busy)

	view := m.View()
	assert.Contains(t, view, userEmail)
	assert.Contains(t, view, "[1] Search")
	assert.Contains(t, view, "[2] Chat")
	assert.NotContains(t, view, "[3] Admin")
	assert.Len(t, b.RequestsTo(http.MethodGet, "/user_query/list"), 1, "login reloads history")
}

func TestModel_LoginValidation(t *testing.T) {
	b := apitest.New(t)
	m := newModel(t, b, tokenstore.NewMemoryStore(""), router.PathQuery)

	m = press(t, m, keys("not-an-email"))
	m = press(t, m, key(tea.KeyTab))
	m = press(t, m, keys("pw"))
	m = press(t, m, key(tea.KeyEnter))

	assert.Equal(t, "Invalid email address", m.status)
	assert.True(t, m.statusErr)
	assert.Equal(t, router.ScreenLogin, m.route.Screen)
	assert.Empty(t, b.Requests())
}

func TestModel_LoginWrongPassword(t *testing.T) {
	b := apitest.New(t)
	b.AddUser(userEmail, "secret", false)
	m := newModel(t, b, tokenstore.NewMemoryStore(""), router.PathQuery)

	m = press(t, m, keys(userEmail))
	m = press(t, m, key(tea.KeyTab))
	m = press(t, m, keys("wrong"))
	m = press(t, m, key(tea.KeyEnter))

	assert.Equal(t, "Invalid email or password", m.status)
	assert.Equal(t, router.ScreenLogin, m.route.Screen)
	assert.Contains(t, m.View(), "Invalid email or password")
}

func TestModel_Register(t *testing.T) {
	b := apitest.New(t)
	m := newModel(t, b, tokenstore.NewMemoryStore(""), router.PathQuery)

	m = press(t, m, key(tea.KeyCtrlR))
	assert.Contains(t, m.View(), "Create an account")

	m = press(t, m, keys(userEmail))
	m = press(t, m, key(tea.KeyTab))
	m = press(t, m, keys("secret"))
	m = press(t, m, key(tea.KeyEnter))

	assert.False(t, m.login.register)
	assert.Equal(t, userEmail, m.login.email.Value())
	assert.Empty(t, m.login.password.Value())
	assert.Contains(t, m.View(), session.RegisteredMessage)
	assert.Equal(t, router.ScreenLogin, m.route.Screen, "registration does not sign in")
	assert.NotEmpty(t, b.UserID(userEmail))
}

func TestModel_QuitKeys(t *testing.T) {
	b := apitest.New(t)
	m := newModel(t, b, tokenstore.NewMemoryStore(""), router.PathQuery)

	// On the login form q is just a letter.
	updated, _ := m.Update(keys("q"))
	assert.False(t, updated.(Model).quitting)
	assert.Equal(t, "q", updated.(Model).login.email.Value())

	updated, cmd := m.Update(key(tea.KeyCtrlC))
	assert.True(t, updated.(Model).quitting)
	assert.NotNil(t, cmd)
	assert.Empty(t, updated.(Model).View())

	m = signedIn(t, b, userEmail, false)
	m = press(t, m, key(tea.KeyEsc))
	updated, cmd = m.Update(keys("q"))
	assert.True(t, updated.(Model).quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Navigation(t *testing.T) {
	b := apitest.New(t)
	m := signedIn(t, b, userEmail, false)

	m = press(t, m, key(tea.KeyEsc))
	m = press(t, m, keys("2"))
	assert.Equal(t, router.ScreenChat, m.route.Screen)
	assert.Len(t, b.RequestsTo(http.MethodGet, "/chat/threads"), 1, "entering chat loads threads")

	m = press(t, m, key(tea.KeyEsc))
	m = press(t, m, keys("3"))
	assert.Equal(t, router.ScreenChat, m.route.Screen, "no admin link for regular users")

	m = press(t, m, keys("1"))
	assert.Equal(t, router.ScreenQuery, m.route.Screen)
}

func TestModel_Logout(t *testing.T) {
	b := apitest.New(t)
	store := b.SignedIn(userEmail, false)
	m := newModel(t, b, store, router.PathQuery)
	m = settle(t, m, nil)

	m = press(t, m, key(tea.KeyEsc))
	m = press(t, m, keys("o"))

	assert.Equal(t, router.ScreenLogin, m.route.Screen)
	_, ok := store.Get()
	assert.False(t, ok)
	assert.Contains(t, m.View(), "Sign in")
}

func TestModel_SessionExpiryReturnsToLogin(t *testing.T) {
	b := apitest.New(t)
	m := signedIn(t, b, userEmail, false)
	m = press(t, m, key(tea.KeyEsc))
	m = press(t, m, keys("2"))
	require.Equal(t, router.ScreenChat, m.route.Screen)

	b.RevokeTokens()
	m = press(t, m, key(tea.KeyEsc))
	m = press(t, m, keys("r"))

	assert.Equal(t, router.ScreenLogin, m.route.Screen)
	assert.Equal(t, "Your session has expired. Please login again.", m.status)
	assert.Contains(t, m.View(), "Sign in")
}

func TestModel_ConfirmPromptBlocksOtherKeys(t *testing.T) {
	b := apitest.New(t)
	m := signedIn(t, b, userEmail, false)
	ran := false
	m.ask("Really?", opDeleteThread, func(context.Context) error {
		ran = true
		return nil
	})

	assert.Contains(t, m.View(), "Really?")
	m = press(t, m, keys("2"))
	assert.Equal(t, router.ScreenQuery, m.route.Screen)
	assert.NotNil(t, m.confirm)

	m = press(t, m, key(tea.KeyEsc))
	assert.Nil(t, m.confirm)
	assert.False(t, ran)

	m.ask("Really?", opDeleteThread, func(context.Context) error {
		ran = true
		return nil
	})
	m = press(t, m, keys("y"))
	assert.True(t, ran)
	assert.Nil(t, m.confirm)
}

func TestModel_WindowResize(t *testing.T) {
	b := apitest.New(t)
	m := newModel(t, b, tokenstore.NewMemoryStore(""), router.PathQuery)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 50})
	m = updated.(Model)
	assert.Equal(t, 160, m.width)
	assert.Equal(t, 50, m.height)
	assert.Equal(t, 160-threadListWidth-6, m.chat.transcript.Width)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a long…", truncate("a long question", 7))
	assert.Equal(t, "one two", truncate("one\n  two", 10))
}
