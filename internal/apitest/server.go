// Package apitest provides an in-memory aicacia backend for tests.
//
// Backend implements the endpoints the client consumes with enough
// behavior to drive the workflows end to end: token auth, questions in
// both payload shapes, feedback, chat threads, admin listings and
// documents. Requests are recorded and failures can be injected.
package apitest

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/tokenstore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RecordedRequest is a request the backend received.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

type user struct {
	id        string
	email     string
	password  string
	isAdmin   bool
	createdAt time.Time
}

type storedQuery struct {
	owner     string // user id
	createdAt time.Time
	query     api.StoredQuery
}

type thread struct {
	id       string
	owner    string
	messages []api.ChatMessage
	updated  time.Time
	// listings that must pass before the thread shows up in /chat/threads
	hiddenFor int
}

type failure struct {
	status int
	detail string
	times  int // 0 means every request
}

// Backend is a fake aicacia backend served over HTTP.
type Backend struct {
	URL string

	echo   *echo.Echo
	server *httptest.Server

	mu       sync.Mutex
	now      func() time.Time
	seq      int
	users    map[string]*user  // by email
	tokens   map[string]string // token -> email
	queries  map[string]*storedQuery
	order    []string // query ids, oldest first
	threads  map[string]*thread
	docs     map[string][]api.Document // by user email
	maxDocs  int
	listLag  int
	answer   func(question string) api.AskResponse
	failures map[string]*failure // "METHOD path"
	requests []RecordedRequest

	feedbacks           []api.FeedbackRequest
	experimentFeedbacks []api.ExperimentFeedbackRequest
	chatFeedbacks       []api.ChatFeedbackRequest
}

// New starts a backend and stops it when the test ends.
func New(tb testing.TB) *Backend {
	tb.Helper()

	b := &Backend{
		now:      func() time.Time { return time.Now().UTC() },
		users:    make(map[string]*user),
		tokens:   make(map[string]string),
		queries:  make(map[string]*storedQuery),
		threads:  make(map[string]*thread),
		docs:     make(map[string][]api.Document),
		maxDocs:  10,
		failures: make(map[string]*failure),
	}
	b.answer = b.defaultAnswer

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(b.record)
	e.Use(b.inject)
	b.echo = e
	b.routes()

	b.server = httptest.NewServer(e)
	b.URL = b.server.URL
	tb.Cleanup(b.server.Close)
	return b
}

func (b *Backend) routes() {
	e := b.echo

	e.POST("/user/login", b.handleLogin)
	e.POST("/user/", b.handleRegister)

	authed := e.Group("", b.authenticate)
	authed.GET("/user_info/", b.handleUserInfo)
	authed.POST("/user_query/", b.handleAsk)
	authed.GET("/user_query/list", b.handleListQueries)
	authed.GET("/user_query/:id", b.handleGetQuery)
	authed.POST("/feedback/", b.handleFeedback)
	authed.POST("/feedback/experiment", b.handleExperimentFeedback)
	authed.POST("/chat/", b.handleChat)
	authed.GET("/chat/threads", b.handleListThreads)
	authed.GET("/chat/threads/:id", b.handleGetThread)
	authed.DELETE("/chat/threads/:id", b.handleDeleteThread)
	authed.POST("/chat_feedback/", b.handleChatFeedback)

	admin := authed.Group("/admin", b.requireAdmin)
	admin.GET("/users", b.handleListUsers)
	admin.GET("/users/:user/queries", b.handleUserQueries)
	admin.GET("/users/:user/queries/:id", b.handleUserQuery)
	admin.GET("/users/:user/documents", b.handleListDocuments)
	admin.POST("/users/:user/documents", b.handleUpload)
	admin.GET("/users/:user/documents/quota", b.handleQuota)
	admin.DELETE("/users/:user/documents/:doc", b.handleDeleteDocument)
}

// record captures every request, including ones rejected later.
func (b *Backend) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		var body []byte
		if req.Body != nil {
			body, _ = io.ReadAll(req.Body)
			req.Body = io.NopCloser(bytes.NewReader(body))
		}
		b.mu.Lock()
		b.requests = append(b.requests, RecordedRequest{
			Method: req.Method,
			Path:   req.URL.Path,
			Query:  req.URL.RawQuery,
			Header: req.Header.Clone(),
			Body:   body,
		})
		b.mu.Unlock()
		return next(c)
	}
}

// inject answers with a forced status when a failure is registered.
func (b *Backend) inject(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Method + " " + c.Request().URL.Path
		b.mu.Lock()
		f, ok := b.failures[key]
		if ok && f.times > 0 {
			f.times--
			if f.times == 0 {
				delete(b.failures, key)
			}
		}
		b.mu.Unlock()
		if ok {
			return c.JSON(f.status, map[string]string{"detail": f.detail})
		}
		return next(c)
	}
}

func (b *Backend) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tok := c.Request().Header.Get(tokenstore.Key)
		b.mu.Lock()
		email, ok := b.tokens[tok]
		b.mu.Unlock()
		if tok == "" || !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "Invalid token"})
		}
		c.Set("email", email)
		return next(c)
	}
}

func (b *Backend) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		u := b.currentUser(c)
		if u == nil || !u.isAdmin {
			return c.JSON(http.StatusForbidden, map[string]string{"detail": "Admin access required"})
		}
		return next(c)
	}
}

// currentUser returns the authenticated user. Callers must not hold mu.
func (b *Backend) currentUser(c echo.Context) *user {
	email, _ := c.Get("email").(string)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.users[email]
}

// nextID returns prefix followed by a backend-wide sequence number.
// Callers must hold mu.
func (b *Backend) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s%d", prefix, b.seq)
}

// AddUser registers a user directly and returns its id.
func (b *Backend) AddUser(email, password string, isAdmin bool) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := &user{id: b.nextID("u"), email: email, password: password, isAdmin: isAdmin, createdAt: b.now()}
	b.users[email] = u
	return u.id
}

// IssueToken returns a valid token for a registered user.
func (b *Backend) IssueToken(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	tok := b.nextID("tok-")
	b.tokens[tok] = email
	return tok
}

// RevokeTokens invalidates every issued token.
func (b *Backend) RevokeTokens() {
	b.mu.Lock()
	b.tokens = make(map[string]string)
	b.mu.Unlock()
}

// SetClock replaces the backend's notion of now.
func (b *Backend) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// SetAnswer replaces how questions are answered.
func (b *Backend) SetAnswer(fn func(question string) api.AskResponse) {
	b.mu.Lock()
	b.answer = fn
	b.mu.Unlock()
}

// SetThreadListLag hides each newly created thread from the next n
// thread listings, imitating a listing endpoint that lags behind writes.
func (b *Backend) SetThreadListLag(n int) {
	b.mu.Lock()
	b.listLag = n
	b.mu.Unlock()
}

// SetMaxDocuments sets the per-user document quota.
func (b *Backend) SetMaxDocuments(n int) {
	b.mu.Lock()
	b.maxDocs = n
	b.mu.Unlock()
}

// Fail makes requests to method+path answer with status. times of zero
// fails every request until ClearFailures; otherwise only the next times.
func (b *Backend) Fail(method, path string, status, times int) {
	b.mu.Lock()
	b.failures[method+" "+path] = &failure{status: status, detail: "injected failure", times: times}
	b.mu.Unlock()
}

// ClearFailures removes every injected failure.
func (b *Backend) ClearFailures() {
	b.mu.Lock()
	b.failures = make(map[string]*failure)
	b.mu.Unlock()
}

// Requests returns every recorded request.
func (b *Backend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RecordedRequest, len(b.requests))
	copy(out, b.requests)
	return out
}

// RequestsTo returns recorded requests matching method and path.
func (b *Backend) RequestsTo(method, path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// ResetRequests forgets recorded requests.
func (b *Backend) ResetRequests() {
	b.mu.Lock()
	b.requests = nil
	b.mu.Unlock()
}

// Feedbacks returns submitted legacy feedback.
func (b *Backend) Feedbacks() []api.FeedbackRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.FeedbackRequest(nil), b.feedbacks...)
}

// ExperimentFeedbacks returns submitted experiment feedback.
func (b *Backend) ExperimentFeedbacks() []api.ExperimentFeedbackRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.ExperimentFeedbackRequest(nil), b.experimentFeedbacks...)
}

// ChatFeedbacks returns submitted chat feedback.
func (b *Backend) ChatFeedbacks() []api.ChatFeedbackRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.ChatFeedbackRequest(nil), b.chatFeedbacks...)
}

// ThreadIDs returns the ids of all stored threads.
func (b *Backend) ThreadIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.threads))
	for id := range b.threads {
		ids = append(ids, id)
	}
	return ids
}

// AddDocument files a document for a user directly.
func (b *Backend) AddDocument(email, filename string, size int64) api.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc := api.Document{
		DocID:            b.nextID("d"),
		Filename:         filename,
		FileSize:         size,
		CreatedAt:        api.At(b.now()),
		ProcessingStatus: "completed",
	}
	b.docs[email] = append(b.docs[email], doc)
	return doc
}

func badRequest(c echo.Context, detail string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"detail": detail})
}

func notFound(c echo.Context, what string) error {
	return c.JSON(http.StatusNotFound, map[string]string{"detail": what + " not found"})
}

func isPDF(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}

// Client returns an API client pointed at the backend.
func (b *Backend) Client(tb testing.TB, tokens tokenstore.Store, opts ...api.Option) *api.Client {
	tb.Helper()
	c, err := api.NewClient(b.URL, tokens, opts...)
	if err != nil {
		tb.Fatalf("new client: %v", err)
	}
	return c
}

// SignedIn registers email (if needed) and returns a token store already
// holding a valid token for it.
func (b *Backend) SignedIn(email string, isAdmin bool) *tokenstore.MemoryStore {
	b.mu.Lock()
	_, exists := b.users[email]
	b.mu.Unlock()
	if !exists {
		b.AddUser(email, "password", isAdmin)
	}
	return tokenstore.NewMemoryStore(b.IssueToken(email))
}

// UserID returns the id of a registered user, or "".
func (b *Backend) UserID(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u, ok := b.users[email]; ok {
		return u.id
	}
	return ""
}
