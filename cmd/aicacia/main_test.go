package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/aicacia/internal/apitest"
	"github.com/fyrsmithlabs/aicacia/internal/chat"
	"github.com/fyrsmithlabs/aicacia/internal/query"
	"github.com/fyrsmithlabs/aicacia/internal/session"
	"github.com/fyrsmithlabs/aicacia/internal/tokenstore"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail = "root@example.org"
	userEmail  = "ada@example.org"
)

type harness struct {
	b         *apitest.Backend
	tokenPath string
}

type result struct {
	stdout string
	stderr string
	err    error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	tokenPath := filepath.Join(home, "token.json")
	t.Setenv("AICACIA_TOKEN_PATH", tokenPath)
	t.Setenv("AICACIA_LOGGING_FILE", filepath.Join(home, "logs", "aicacia.log"))
	return &harness{b: apitest.New(t), tokenPath: tokenPath}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--api-url", h.b.URL, "--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

// signIn registers email and stores a valid token for it.
func (h *harness) signIn(t *testing.T, email string, isAdmin bool) {
	t.Helper()
	h.b.AddUser(email, "password", isAdmin)
	store, err := tokenstore.NewFileStore(h.tokenPath)
	require.NoError(t, err)
	require.NoError(t, store.Set(h.b.IssueToken(email)))
}

func (h *harness) storedToken(t *testing.T) (string, bool) {
	t.Helper()
	store, err := tokenstore.NewFileStore(h.tokenPath)
	require.NoError(t, err)
	return store.Get()
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	h.b.AddUser(userEmail, "secret", false)

	r := h.run(t, "", "login", "--email", userEmail, "--password", "secret")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Signed in as "+userEmail)

	_, ok := h.storedToken(t)
	assert.True(t, ok)
}

func TestLogin_PromptsForMissingCredentials(t *testing.T) {
	h := newHarness(t)
	h.b.AddUser(userEmail, "secret", false)

	r := h.run(t, userEmail+"\nsecret\n", "login")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stderr, "Email: ")
	assert.Contains(t, r.stderr, "Password: ")
	assert.Contains(t, r.stdout, "Signed in as "+userEmail)
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newHarness(t)
	h.b.AddUser(userEmail, "secret", false)

	r := h.run(t, "", "login", "--email", userEmail, "--password", "nope")
	require.Error(t, r.err)
	assert.Contains(t, r.stderr, "Error: ")

	_, ok := h.storedToken(t)
	assert.False(t, ok)
}

func TestRegister(t *testing.T) {
	h := newHarness(t)

	r := h.run(t, "", "register", "--email", userEmail, "--password", "secret")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, session.RegisteredMessage)
	assert.NotEmpty(t, h.b.UserID(userEmail))
}

func TestWhoami(t *testing.T) {
	h := newHarness(t)

	r := h.run(t, "", "whoami")
	require.ErrorIs(t, r.err, errNotLoggedIn)
	assert.Contains(t, r.stderr, "not logged in")

	h.signIn(t, adminEmail, true)
	r = h.run(t, "", "whoami")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, adminEmail)
	assert.Contains(t, r.stdout, "administrator")
	assert.Contains(t, r.stdout, h.b.URL)
}

func TestWhoami_ExpiredSession(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, userEmail, false)
	h.b.RevokeTokens()

	r := h.run(t, "", "whoami")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "session has expired")
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, userEmail, false)

	r := h.run(t, "", "logout")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Logged out")

	_, ok := h.storedToken(t)
	assert.False(t, ok)
}

func TestAsk(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, userEmail, false)

	r := h.run(t, "", "ask", "Which", "grasses", "hold", "dunes?")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Q: Which grasses hold dunes?")
	assert.Contains(t, r.stdout, "Answer A to: Which grasses hold dunes?")
	assert.Contains(t, r.stdout, "Answer B to: Which grasses hold dunes?")
	assert.Contains(t, r.stdout, "Doc A")
	assert.Contains(t, r.stdout, "query id: ")
}

func TestAsk_RequiresLogin(t *testing.T) {
	h := newHarness(t)

	r := h.run(t, "", "ask", "anything")
	require.ErrorIs(t, r.err, errNotLoggedIn)
	assert.Empty(t, h.b.RequestsTo("POST", "/user_query/"))
}

func TestHistory(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, userEmail, false)

	r := h.run(t, "", "history")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "No questions yet.")

	r = h.run(t, "", "ask", "How do peat bogs recover?")
	require.NoError(t, r.err, r.stderr)

	r = h.run(t, "", "history")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "How do peat bogs recover?")
	assert.Contains(t, r.stdout, "Page 1 of 1")

	r = h.run(t, "", "history", "--page", "3")
	require.Error(t, r.err)
	assert.Contains(t, r.stderr, "past the last page")
}

func TestHistoryShow(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, userEmail, false)

	r := h.run(t, "", "ask", "What is rewilding?")
	require.NoError(t, r.err, r.stderr)
	_, id, found := strings.Cut(r.stdout, "query id: ")
	require.True(t, found)
	id = strings.TrimSpace(id)

	r = h.run(t, "", "history", "show", id)
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Answer A to: What is rewilding?")
	assert.NotContains(t, r.stdout, "Feedback submitted")
}

func TestChat(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, userEmail, false)

	r := h.run(t, "", "chat", "threads")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "No conversations yet")

	r = h.run(t, "", "chat", "send", "hello")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Reply to: hello")
	assert.Contains(t, r.stdout, "thread id: ")

	ids := h.b.ThreadIDs()
	require.Len(t, ids, 1)
	thread := ids[0]

	r = h.run(t, "", "chat", "threads")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, thread)

	r = h.run(t, "", "chat", "show", thread)
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "you › hello")

	r = h.run(t, "", "chat", "rate", thread, "up", "--comment", "useful")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Rated the latest reply")
	feedbacks := h.b.ChatFeedbacks()
	require.Len(t, feedbacks, 1)
	assert.Equal(t, int(chat.ThumbsUp), feedbacks[0].Feedback)
	assert.Equal(t, "useful", feedbacks[0].FeedbackMessage)
}

func TestChat_RateRejectsUnknownRating(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, userEmail, false)

	r := h.run(t, "", "chat", "rate", "t-1", "sideways")
	require.Error(t, r.err)
	assert.Contains(t, r.stderr, "rating must be up or down")
}

func TestChat_Delete(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, userEmail, false)

	r := h.run(t, "", "chat", "send", "hello")
	require.NoError(t, r.err, r.stderr)
	thread := h.b.ThreadIDs()[0]

	r = h.run(t, "n\n", "chat", "delete", thread)
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Cancelled")
	assert.Len(t, h.b.ThreadIDs(), 1)

	r = h.run(t, "", "chat", "delete", thread, "--yes")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Conversation deleted")
	assert.Empty(t, h.b.ThreadIDs())
}

func TestAdmin_RequiresAdministrator(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, userEmail, false)

	r := h.run(t, "", "admin", "users")
	require.Error(t, r.err)
	assert.Empty(t, h.b.RequestsTo("GET", "/admin/users"))
}

func TestAdmin_UsersAndQueries(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, userEmail, false)
	r := h.run(t, "", "ask", "Where do otters den?")
	require.NoError(t, r.err, r.stderr)
	_, id, _ := strings.Cut(r.stdout, "query id: ")
	id = strings.TrimSpace(id)

	h.signIn(t, adminEmail, true)

	r = h.run(t, "", "admin", "users")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, userEmail)
	assert.Contains(t, r.stdout, adminEmail)

	r = h.run(t, "", "admin", "queries", userEmail)
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "1 questions")
	assert.Contains(t, r.stdout, "Where do otters den?")

	r = h.run(t, "", "admin", "query", userEmail, id)
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Q: Where do otters den?")
	assert.Contains(t, r.stdout, "No feedback recorded.")

	r = h.run(t, "", "admin", "queries", "nobody@example.org")
	require.Error(t, r.err)
	assert.Contains(t, r.stderr, "no user with email")
}

func TestAdmin_Documents(t *testing.T) {
	h := newHarness(t)
	h.b.AddUser(userEmail, "password", false)
	h.signIn(t, adminEmail, true)

	r := h.run(t, "", "admin", "docs", "list", userEmail)
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "0 of 10 documents, 10 remaining")
	assert.Contains(t, r.stdout, "No documents uploaded.")

	pdf := filepath.Join(t.TempDir(), "dune-survey.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4\n%%EOF\n"), 0600))

	r = h.run(t, "", "admin", "docs", "upload", userEmail, pdf)
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Successfully uploaded 1 document(s)")
	assert.Contains(t, r.stdout, "1 of 10 documents, 9 remaining")

	r = h.run(t, "", "admin", "docs", "list", userEmail)
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "dune-survey.pdf")

	r = h.run(t, "", "admin", "docs", "delete", userEmail, "missing")
	require.Error(t, r.err)
	assert.Contains(t, r.stderr, "has no document")

	docID := h.b.AddDocument(userEmail, "notes.pdf", 2048).DocID
	r = h.run(t, "no\n", "admin", "docs", "delete", userEmail, docID)
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Cancelled")

	r = h.run(t, "", "admin", "docs", "delete", userEmail, docID, "-y")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, `Deleted "notes.pdf"`)
}

func TestAdmin_UploadMissingFile(t *testing.T) {
	h := newHarness(t)
	h.b.AddUser(userEmail, "password", false)
	h.signIn(t, adminEmail, true)

	r := h.run(t, "", "admin", "docs", "upload", userEmail, filepath.Join(t.TempDir(), "absent.pdf"))
	require.Error(t, r.err)
	assert.Empty(t, h.b.RequestsTo("POST", "/admin/users/"+userEmail+"/documents"))
}

func TestConfirmer(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \r\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			cmd := &cobra.Command{}
			cmd.SetIn(strings.NewReader(tt.input))
			cmd.SetErr(&bytes.Buffer{})
			assert.Equal(t, tt.want, confirmer(cmd)("Delete?"))
		})
	}
}

func TestReadLine_SharesInput(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("first\nsecond"))
	var prompts bytes.Buffer
	cmd.SetErr(&prompts)

	a, err := readLine(cmd, "A: ")
	require.NoError(t, err)
	b, err := readLine(cmd, "B: ")
	require.NoError(t, err)

	assert.Equal(t, "first", a)
	assert.Equal(t, "second", b)
	assert.Equal(t, "A: B: ", prompts.String())
}

func TestGotoPage(t *testing.T) {
	b := apitest.New(t)
	store := b.SignedIn(userEmail, false)
	client := b.Client(t, store)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := client.AskQuestion(ctx, "question")
		require.NoError(t, err)
	}

	h := query.NewHistory(client.ListQueries, 2, nil)
	require.NoError(t, h.Reload(ctx))

	require.NoError(t, gotoPage(ctx, h, 2))
	assert.Equal(t, "Page 2 of 2", h.View().PageLabel())

	assert.Error(t, gotoPage(ctx, h, 0))
	assert.Error(t, gotoPage(ctx, h, 5))
}
