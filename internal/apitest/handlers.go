package apitest

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/labstack/echo/v4"
)

func (b *Backend) handleLogin(c echo.Context) error {
	var req api.Credentials
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	b.mu.Lock()
	u, ok := b.users[req.Email]
	b.mu.Unlock()
	if !ok || u.password != req.Password {
		return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "Incorrect email or password"})
	}

	return c.JSON(http.StatusOK, map[string]string{"token": b.IssueToken(req.Email)})
}

func (b *Backend) handleRegister(c echo.Context) error {
	var req api.Credentials
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Password == "" {
		return badRequest(c, "email and password are required")
	}

	b.mu.Lock()
	_, exists := b.users[req.Email]
	b.mu.Unlock()
	if exists {
		return badRequest(c, "User already exists")
	}

	b.AddUser(req.Email, req.Password, false)
	return c.JSON(http.StatusOK, map[string]any{})
}

func (b *Backend) handleUserInfo(c echo.Context) error {
	u := b.currentUser(c)
	return c.JSON(http.StatusOK, api.UserInfo{Email: u.email, UserID: u.id, IsAdmin: u.isAdmin})
}

// defaultAnswer returns a two-configuration experiment response.
func (b *Backend) defaultAnswer(question string) api.AskResponse {
	first, second := "Answer A to: "+question, "Answer B to: "+question
	return api.AskResponse{
		ExperimentID: "exp-1",
		Responses: []api.ConfigurationResponse{
			{ConfigurationID: "A", Summary: &first, References: []api.Reference{{Title: "Doc A", URL: "https://example.org/a", Score: 0.9, Chunk: "chunk a"}}},
			{ConfigurationID: "B", Summary: &second},
		},
		FeedbackConfig: &api.FeedbackConfig{Fields: []api.FeedbackFieldConfig{
			{FieldID: "relevance", FieldType: api.FieldRadio, Label: "Is the answer relevant?", Required: true,
				Options: []api.FeedbackOption{{Value: 0, Label: "No"}, {Value: 1, Label: "Yes"}}},
			{FieldID: "comment", FieldType: api.FieldText, Label: "Comments", Tooltip: "Anything else?"},
		}},
	}
}

func (b *Backend) handleAsk(c echo.Context) error {
	var req struct {
		Question string `json:"question"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		return badRequest(c, "question is required")
	}
	owner := b.currentUser(c).id

	b.mu.Lock()
	resp := b.answer(req.Question)
	if resp.QueryID == "" {
		resp.QueryID = b.nextID("q")
	}
	sq := &storedQuery{
		owner:     owner,
		createdAt: b.now(),
		query: api.StoredQuery{
			QueryID:             resp.QueryID,
			Question:            req.Question,
			References:          resp.References,
			Summary:             resp.Summary,
			ExperimentResponses: resp.Responses,
			FeedbackConfig:      resp.FeedbackConfig,
		},
	}
	b.queries[resp.QueryID] = sq
	b.order = append(b.order, resp.QueryID)
	b.mu.Unlock()

	return c.JSON(http.StatusOK, resp)
}

// listFor pages owner's queries newest first. Callers must not hold mu.
func (b *Backend) listFor(c echo.Context, owner string) error {
	skip, _ := strconv.Atoi(c.QueryParam("skip"))
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	b.mu.Lock()
	var items []api.QueryListItem
	for i := len(b.order) - 1; i >= 0; i-- {
		q := b.queries[b.order[i]]
		if q.owner != owner {
			continue
		}
		summary := ""
		switch {
		case len(q.query.ExperimentResponses) > 0:
			summary = q.query.ExperimentResponses[0].SummaryText()
		case q.query.Summary != nil:
			summary = *q.query.Summary
		}
		items = append(items, api.QueryListItem{
			QueryID:   q.query.QueryID,
			Question:  q.query.Question,
			CreatedAt: api.At(q.createdAt),
			Summary:   summary,
		})
	}
	b.mu.Unlock()

	total := len(items)
	if skip > total {
		skip = total
	}
	end := skip + limit
	if end > total {
		end = total
	}
	page := items[skip:end]
	if page == nil {
		page = []api.QueryListItem{}
	}
	return c.JSON(http.StatusOK, api.QueryList{Queries: page, TotalCount: total})
}

func (b *Backend) handleListQueries(c echo.Context) error {
	return b.listFor(c, b.currentUser(c).id)
}

func (b *Backend) getFor(c echo.Context, owner, id string) error {
	b.mu.Lock()
	q, ok := b.queries[id]
	b.mu.Unlock()
	if !ok || q.owner != owner {
		return notFound(c, "Query")
	}
	return c.JSON(http.StatusOK, q.query)
}

func (b *Backend) handleGetQuery(c echo.Context) error {
	return b.getFor(c, b.currentUser(c).id, c.Param("id"))
}

func (b *Backend) handleFeedback(c echo.Context) error {
	var req api.FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queries[req.QueryID]
	if !ok {
		return notFound(c, "Query")
	}
	refs := make([]api.ReferenceFeedback, len(req.ReferencesFeedback))
	for i, v := range req.ReferencesFeedback {
		refs[i] = api.ReferenceFeedback{Feedback: v}
	}
	summary := req.SummaryFeedback
	q.query.Feedback = &api.StoredFeedback{
		ReferencesFeedback: refs,
		SummaryFeedback:    &summary,
		Feedback:           req.Feedback,
	}
	b.feedbacks = append(b.feedbacks, req)
	return c.JSON(http.StatusOK, map[string]any{})
}

func (b *Backend) handleExperimentFeedback(c echo.Context) error {
	var req api.ExperimentFeedbackRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queries[req.QueryID]
	if !ok {
		return notFound(c, "Query")
	}
	byConfig := make(map[string][]api.FieldValue)
	for _, fb := range req.Feedbacks {
		byConfig[fb.ConfigurationID] = append(byConfig[fb.ConfigurationID], api.FieldValue{FieldID: fb.FieldID, Value: fb.Value})
	}
	q.query.Feedback = &api.StoredFeedback{
		ExperimentFeedback: &api.ExperimentFeedback{ConfigurationFeedbacks: byConfig},
	}
	b.experimentFeedbacks = append(b.experimentFeedbacks, req)
	return c.JSON(http.StatusOK, api.ExperimentFeedbackResponse{FeedbackID: b.nextID("f")})
}

func (b *Backend) handleChat(c echo.Context) error {
	var req api.ChatRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		return badRequest(c, "message is required")
	}
	owner := b.currentUser(c).id

	b.mu.Lock()
	defer b.mu.Unlock()

	var t *thread
	if req.ThreadID != "" {
		existing, ok := b.threads[req.ThreadID]
		if !ok || existing.owner != owner {
			return notFound(c, "Thread")
		}
		t = existing
	} else {
		t = &thread{id: b.nextID("t"), owner: owner, hiddenFor: b.listLag}
		b.threads[t.id] = t
	}

	t.messages = append(t.messages,
		api.ChatMessage{Message: req.Message, MessageFrom: api.FromUser, MessageID: b.nextID("m")},
		api.ChatMessage{Message: "Reply to: " + req.Message, MessageFrom: api.FromAgent, MessageID: b.nextID("m")},
	)
	t.updated = b.now()

	return c.JSON(http.StatusOK, api.ChatResponse{
		ChatMessages: append([]api.ChatMessage(nil), t.messages...),
		ThreadID:     t.id,
	})
}

func (b *Backend) handleListThreads(c echo.Context) error {
	owner := b.currentUser(c).id

	b.mu.Lock()
	threads := []api.ThreadSummary{}
	for _, t := range b.threads {
		if t.owner != owner {
			continue
		}
		if t.hiddenFor > 0 {
			t.hiddenFor--
			continue
		}
		threads = append(threads, api.ThreadSummary{
			ThreadID:        t.id,
			LastMessage:     t.messages[len(t.messages)-1].Message,
			LastMessageTime: api.At(t.updated),
			MessageCount:    len(t.messages),
		})
	}
	b.mu.Unlock()

	sort.Slice(threads, func(i, j int) bool {
		if threads[i].LastMessageTime.Equal(threads[j].LastMessageTime.Time) {
			return threads[i].ThreadID > threads[j].ThreadID
		}
		return threads[i].LastMessageTime.After(threads[j].LastMessageTime.Time)
	})
	return c.JSON(http.StatusOK, map[string]any{"threads": threads})
}

func (b *Backend) handleGetThread(c echo.Context) error {
	owner := b.currentUser(c).id

	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.threads[c.Param("id")]
	if !ok || t.owner != owner {
		return notFound(c, "Thread")
	}
	return c.JSON(http.StatusOK, api.ChatResponse{
		ChatMessages: append([]api.ChatMessage(nil), t.messages...),
		ThreadID:     t.id,
	})
}

func (b *Backend) handleDeleteThread(c echo.Context) error {
	owner := b.currentUser(c).id

	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.threads[c.Param("id")]
	if !ok || t.owner != owner {
		return notFound(c, "Thread")
	}
	delete(b.threads, t.id)
	return c.JSON(http.StatusOK, map[string]string{"message": "Thread deleted"})
}

func (b *Backend) handleChatFeedback(c echo.Context) error {
	var req api.ChatFeedbackRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Feedback != api.ThumbsUp && req.Feedback != api.ThumbsDown {
		return badRequest(c, "feedback must be 0 or 1")
	}
	b.mu.Lock()
	b.chatFeedbacks = append(b.chatFeedbacks, req)
	b.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]any{})
}

func (b *Backend) handleListUsers(c echo.Context) error {
	b.mu.Lock()
	users := make([]api.AdminUser, 0, len(b.users))
	for _, u := range b.users {
		users = append(users, api.AdminUser{UserID: u.id, Email: u.email, IsAdmin: u.isAdmin, CreatedAt: api.At(u.createdAt)})
	}
	b.mu.Unlock()
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return c.JSON(http.StatusOK, map[string]any{"users": users})
}

func (b *Backend) handleUserQueries(c echo.Context) error {
	return b.listFor(c, c.Param("user"))
}

func (b *Backend) handleUserQuery(c echo.Context) error {
	return b.getFor(c, c.Param("user"), c.Param("id"))
}

func (b *Backend) handleListDocuments(c echo.Context) error {
	b.mu.Lock()
	docs := append([]api.Document{}, b.docs[c.Param("user")]...)
	b.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]any{"documents": docs})
}

func (b *Backend) quota(email string) api.DocumentQuota {
	count := len(b.docs[email])
	return api.DocumentQuota{
		CurrentDocumentCount: count,
		MaxDocuments:         b.maxDocs,
		RemainingQuota:       b.maxDocs - count,
	}
}

func (b *Backend) handleQuota(c echo.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return c.JSON(http.StatusOK, b.quota(c.Param("user")))
}

func (b *Backend) handleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return badRequest(c, "multipart form required")
	}
	files := form.File["files"]
	if len(files) == 0 {
		return badRequest(c, "no files uploaded")
	}
	if len(files) > 5 {
		return badRequest(c, "Maximum 5 files allowed per upload")
	}
	email := c.Param("user")

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.docs[email])+len(files) > b.maxDocs {
		return badRequest(c, "Document quota exceeded")
	}

	var uploaded []api.Document
	for _, fh := range files {
		if !isPDF(fh.Filename) {
			return badRequest(c, "Only PDF files are allowed")
		}
		f, err := fh.Open()
		if err != nil {
			return badRequest(c, "unreadable file")
		}
		n, _ := io.Copy(io.Discard, f)
		f.Close()

		doc := api.Document{
			DocID:            b.nextID("d"),
			Filename:         fh.Filename,
			FileSize:         n,
			CreatedAt:        api.At(b.now()),
			ProcessingStatus: "pending",
		}
		uploaded = append(uploaded, doc)
	}
	b.docs[email] = append(b.docs[email], uploaded...)
	q := b.quota(email)

	return c.JSON(http.StatusOK, api.UploadResult{
		UploadedDocuments: uploaded,
		TotalUploaded:     len(uploaded),
		UserDocumentCount: q.CurrentDocumentCount,
		RemainingQuota:    q.RemainingQuota,
	})
}

func (b *Backend) handleDeleteDocument(c echo.Context) error {
	email, docID := c.Param("user"), c.Param("doc")

	b.mu.Lock()
	defer b.mu.Unlock()
	docs := b.docs[email]
	for i, d := range docs {
		if d.DocID == docID {
			b.docs[email] = append(docs[:i:i], docs[i+1:]...)
			return c.JSON(http.StatusOK, map[string]string{"message": "Document deleted"})
		}
	}
	return notFound(c, "Document")
}
