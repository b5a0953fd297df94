package chat_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/apitest"
	"github.com/fyrsmithlabs/aicacia/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend answers chat calls from canned values.
type stubBackend struct {
	mu        sync.Mutex
	send      *api.ChatResponse
	sendGate  chan struct{}
	threads   []api.ThreadSummary
	feedbacks []api.ChatFeedbackRequest
}

func (s *stubBackend) SendChat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
	if s.sendGate != nil {
		<-s.sendGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send, nil
}

func (s *stubBackend) ListThreads(ctx context.Context) ([]api.ThreadSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads, nil
}

func (s *stubBackend) GetThread(ctx context.Context, threadID string) (*api.ChatResponse, error) {
	return nil, errors.New("not found")
}

func (s *stubBackend) DeleteThread(ctx context.Context, threadID string) error {
	return nil
}

func (s *stubBackend) SubmitChatFeedback(ctx context.Context, fb api.ChatFeedbackRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedbacks = append(s.feedbacks, fb)
	return nil
}

func newWorkflow(t *testing.T, opts ...chat.Option) (*apitest.Backend, *api.Client, *chat.Workflow) {
	t.Helper()
	b := apitest.New(t)
	c := b.Client(t, b.SignedIn("ada@example.org", false))
	w := chat.NewWorkflow(c, opts...)
	t.Cleanup(w.Close)
	return b, c, w
}

func TestSend_NewThreadScenario(t *testing.T) {
	server := []api.ChatMessage{
		{Message: "hello", MessageFrom: api.FromUser, MessageID: "m1"},
		{Message: "hi there", MessageFrom: api.FromAgent, MessageID: "m2"},
	}
	stub := &stubBackend{
		send:    &api.ChatResponse{ThreadID: "t1", ChatMessages: server},
		threads: []api.ThreadSummary{{ThreadID: "t1", LastMessage: "hi there", MessageCount: 2}},
	}
	var changes atomic.Int32
	w := chat.NewWorkflow(stub,
		chat.WithRefresh(50*time.Millisecond, 1),
		chat.WithOnChange(func() { changes.Add(1) }))
	t.Cleanup(w.Close)

	require.NoError(t, w.Send(context.Background(), "hello"))

	v := w.View()
	assert.Equal(t, server, v.Messages)
	assert.Equal(t, "t1", v.ThreadID)
	assert.Equal(t, chat.Loaded, v.Status)
	assert.Equal(t, 0, v.RefreshCount, "refresh waits for the delay")

	assert.Eventually(t, func() bool {
		v := w.View()
		return v.RefreshCount == 1 && len(v.Threads) == 1
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, changes.Load(), int32(1))
}

func TestSend_ShowsOptimisticMessage(t *testing.T) {
	stub := &stubBackend{
		send:     &api.ChatResponse{ThreadID: "t1"},
		sendGate: make(chan struct{}),
	}
	w := chat.NewWorkflow(stub, chat.WithRefresh(time.Hour, 1))
	t.Cleanup(w.Close)

	done := make(chan error, 1)
	go func() { done <- w.Send(context.Background(), "  hello  ") }()

	require.Eventually(t, func() bool { return w.View().Status == chat.Sending }, time.Second, time.Millisecond)
	v := w.View()
	require.Len(t, v.Messages, 1)
	assert.Equal(t, "hello", v.Messages[0].Message)
	assert.Equal(t, api.FromUser, v.Messages[0].MessageFrom)
	assert.Empty(t, v.Messages[0].MessageID)

	close(stub.sendGate)
	require.NoError(t, <-done)
	assert.Empty(t, w.View().Messages, "server list replaces the optimistic copy")
}

func TestSend_EmptyMessageRejected(t *testing.T) {
	b, _, w := newWorkflow(t)

	err := w.Send(context.Background(), " \n\t")
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
	assert.True(t, errors.Is(err, api.ErrValidationRejected))
	assert.Empty(t, b.RequestsTo(http.MethodPost, "/chat/"))
	assert.Equal(t, chat.Idle, w.View().Status)
}

func TestSend_ContinuesActiveThread(t *testing.T) {
	b, _, w := newWorkflow(t, chat.WithRefresh(time.Millisecond, 1))
	ctx := context.Background()

	require.NoError(t, w.Send(ctx, "first"))
	threadID := w.View().ThreadID
	require.NotEmpty(t, threadID)
	require.Eventually(t, func() bool { return w.View().RefreshCount == 1 }, time.Second, time.Millisecond)

	require.NoError(t, w.Send(ctx, "second"))

	v := w.View()
	assert.Equal(t, threadID, v.ThreadID)
	require.Len(t, v.Messages, 4)
	assert.Equal(t, "first", v.Messages[0].Message)
	assert.Equal(t, "Reply to: second", v.Messages[3].Message)

	reqs := b.RequestsTo(http.MethodPost, "/chat/")
	require.Len(t, reqs, 2)
	assert.Contains(t, string(reqs[1].Body), `"thread_id":"`+threadID+`"`)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, w.View().RefreshCount, "existing threads do not trigger a refresh")
}

func TestSend_FailureRevertsMessages(t *testing.T) {
	b, _, w := newWorkflow(t, chat.WithRefresh(time.Hour, 1))
	ctx := context.Background()

	b.Fail(http.MethodPost, "/chat/", http.StatusInternalServerError, 1)
	err := w.Send(ctx, "hello")
	require.Error(t, err)
	assert.Equal(t, "Failed to send message", err.Error())
	v := w.View()
	assert.Equal(t, chat.Idle, v.Status)
	assert.Empty(t, v.Messages)
	assert.Empty(t, v.ThreadID)

	require.NoError(t, w.Send(ctx, "hello"))
	before := w.View()
	b.Fail(http.MethodPost, "/chat/", http.StatusBadGateway, 1)
	require.Error(t, w.Send(ctx, "again"))

	after := w.View()
	assert.Equal(t, before.Messages, after.Messages)
	assert.Equal(t, before.ThreadID, after.ThreadID)
	assert.Equal(t, chat.Loaded, after.Status)
	assert.Len(t, b.RequestsTo(http.MethodPost, "/chat/"), 3, "no automatic retry")
}

func TestRefresh_PollsUntilThreadVisible(t *testing.T) {
	b, _, w := newWorkflow(t, chat.WithRefresh(5*time.Millisecond, 3))
	b.SetThreadListLag(2)

	require.NoError(t, w.Send(context.Background(), "hello"))
	threadID := w.View().ThreadID

	require.Eventually(t, func() bool {
		for _, th := range w.View().Threads {
			if th.ThreadID == threadID {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	assert.Equal(t, 1, w.View().RefreshCount)
	assert.Len(t, b.RequestsTo(http.MethodGet, "/chat/threads"), 3)
}

func TestRefresh_GivesUpAfterAttempts(t *testing.T) {
	b, _, w := newWorkflow(t, chat.WithRefresh(2*time.Millisecond, 2))
	b.SetThreadListLag(10)

	require.NoError(t, w.Send(context.Background(), "hello"))

	require.Eventually(t, func() bool {
		return len(b.RequestsTo(http.MethodGet, "/chat/threads")) == 2
	}, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, b.RequestsTo(http.MethodGet, "/chat/threads"), 2)
	assert.Empty(t, w.View().Threads)
}

func TestClose_CancelsPendingRefresh(t *testing.T) {
	b, _, w := newWorkflow(t, chat.WithRefresh(time.Hour, 1))

	require.NoError(t, w.Send(context.Background(), "hello"))
	w.Close()

	assert.Equal(t, 0, w.View().RefreshCount)
	assert.Empty(t, b.RequestsTo(http.MethodGet, "/chat/threads"))
}

func TestSelectThread(t *testing.T) {
	b, c, w := newWorkflow(t)
	ctx := context.Background()

	resp, err := c.SendChat(ctx, api.ChatRequest{Message: "stored"})
	require.NoError(t, err)

	require.NoError(t, w.SelectThread(ctx, resp.ThreadID))
	v := w.View()
	assert.Equal(t, chat.Loaded, v.Status)
	assert.Equal(t, resp.ThreadID, v.ThreadID)
	assert.Equal(t, resp.ChatMessages, v.Messages)
	assert.False(t, v.Loading)

	b.ResetRequests()
	require.NoError(t, w.SelectThread(ctx, ""))
	v = w.View()
	assert.Equal(t, chat.Idle, v.Status)
	assert.Empty(t, v.ThreadID)
	assert.Empty(t, v.Messages)
	assert.Empty(t, b.Requests())

	err = w.SelectThread(ctx, "missing")
	require.Error(t, err)
	v = w.View()
	assert.Equal(t, "missing", v.ThreadID)
	assert.Empty(t, v.Messages)
}

func TestFeedback(t *testing.T) {
	b, _, w := newWorkflow(t, chat.WithRefresh(time.Hour, 1))
	ctx := context.Background()
	require.NoError(t, w.Send(ctx, "hello"))
	v := w.View()
	agent := v.Messages[1]

	require.NoError(t, w.Feedback(ctx, 1, chat.ThumbsUp, "helpful"))

	r, ok := w.View().Reaction(agent.MessageID)
	require.True(t, ok)
	assert.Equal(t, chat.ThumbsUp, r)
	sent := b.ChatFeedbacks()
	require.Len(t, sent, 1)
	assert.Equal(t, api.ChatFeedbackRequest{
		ThreadID:        v.ThreadID,
		MessageID:       agent.MessageID,
		FeedbackMessage: "helpful",
		Feedback:        api.ThumbsUp,
	}, sent[0])
}

func TestFeedback_FailureKeepsMark(t *testing.T) {
	b, _, w := newWorkflow(t, chat.WithRefresh(time.Hour, 1))
	ctx := context.Background()
	require.NoError(t, w.Send(ctx, "hello"))
	b.Fail(http.MethodPost, "/chat_feedback/", http.StatusInternalServerError, 1)

	err := w.Feedback(ctx, 1, chat.ThumbsDown, "")
	require.Error(t, err)

	r, ok := w.View().Reaction(w.View().Messages[1].MessageID)
	require.True(t, ok)
	assert.Equal(t, chat.ThumbsDown, r)
}

func TestFeedback_Preconditions(t *testing.T) {
	stub := &stubBackend{send: &api.ChatResponse{ChatMessages: []api.ChatMessage{
		{Message: "hello", MessageFrom: api.FromUser},
		{Message: "hi", MessageFrom: api.FromAgent, MessageID: "m2"},
	}}}
	w := chat.NewWorkflow(stub)
	t.Cleanup(w.Close)
	ctx := context.Background()
	require.NoError(t, w.Send(ctx, "hello"))

	assert.ErrorIs(t, w.Feedback(ctx, 0, chat.ThumbsUp, ""), chat.ErrNoMessageID)
	assert.ErrorIs(t, w.Feedback(ctx, 1, chat.ThumbsUp, ""), chat.ErrNoActiveThread)
	assert.Error(t, w.Feedback(ctx, 5, chat.ThumbsUp, ""))
	assert.Empty(t, stub.feedbacks)
	assert.Empty(t, w.View().Reactions)
}

func TestDeleteThread(t *testing.T) {
	b, c, w := newWorkflow(t)
	ctx := context.Background()

	keep, err := c.SendChat(ctx, api.ChatRequest{Message: "keep"})
	require.NoError(t, err)
	drop, err := c.SendChat(ctx, api.ChatRequest{Message: "drop"})
	require.NoError(t, err)
	require.NoError(t, w.ReloadThreads(ctx))
	require.NoError(t, w.SelectThread(ctx, drop.ThreadID))

	var asked string
	deleted, err := w.DeleteThread(ctx, drop.ThreadID, func(prompt string) bool {
		asked = prompt
		return false
	})
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, chat.DeletePrompt, asked)
	assert.Empty(t, b.RequestsTo(http.MethodDelete, "/chat/threads/"+drop.ThreadID))

	deleted, err = w.DeleteThread(ctx, drop.ThreadID, func(string) bool { return true })
	require.NoError(t, err)
	assert.True(t, deleted)

	v := w.View()
	assert.Equal(t, chat.Idle, v.Status)
	assert.Empty(t, v.ThreadID)
	assert.Empty(t, v.Messages)
	require.Len(t, v.Threads, 1)
	assert.Equal(t, keep.ThreadID, v.Threads[0].ThreadID)
	assert.ElementsMatch(t, []string{keep.ThreadID}, b.ThreadIDs())
}

func TestDeleteThread_InactiveKeepsConversation(t *testing.T) {
	_, c, w := newWorkflow(t)
	ctx := context.Background()

	other, err := c.SendChat(ctx, api.ChatRequest{Message: "other"})
	require.NoError(t, err)
	active, err := c.SendChat(ctx, api.ChatRequest{Message: "active"})
	require.NoError(t, err)
	require.NoError(t, w.SelectThread(ctx, active.ThreadID))

	deleted, err := w.DeleteThread(ctx, other.ThreadID, nil)
	require.NoError(t, err)
	assert.True(t, deleted)

	v := w.View()
	assert.Equal(t, active.ThreadID, v.ThreadID)
	assert.Len(t, v.Messages, 2)
}

func TestDeleteThread_Failure(t *testing.T) {
	b, c, w := newWorkflow(t)
	ctx := context.Background()
	resp, err := c.SendChat(ctx, api.ChatRequest{Message: "x"})
	require.NoError(t, err)
	require.NoError(t, w.ReloadThreads(ctx))

	b.Fail(http.MethodDelete, "/chat/threads/"+resp.ThreadID, http.StatusInternalServerError, 1)
	deleted, err := w.DeleteThread(ctx, resp.ThreadID, func(string) bool { return true })
	require.Error(t, err)
	assert.False(t, deleted)
	assert.Equal(t, "Failed to delete conversation", err.Error())
	assert.Len(t, w.View().Threads, 1)
}

func TestReloadThreads_FailureEmptiesList(t *testing.T) {
	b, c, w := newWorkflow(t)
	ctx := context.Background()
	_, err := c.SendChat(ctx, api.ChatRequest{Message: "x"})
	require.NoError(t, err)

	require.NoError(t, w.ReloadThreads(ctx))
	require.Len(t, w.View().Threads, 1)

	b.Fail(http.MethodGet, "/chat/threads", http.StatusInternalServerError, 1)
	require.Error(t, w.ReloadThreads(ctx))
	v := w.View()
	assert.Empty(t, v.Threads)
	assert.False(t, v.ThreadsLoading)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", chat.Idle.String())
	assert.Equal(t, "loaded", chat.Loaded.String())
	assert.Equal(t, "sending", chat.Sending.String())
	assert.Equal(t, "Status(9)", chat.Status(9).String())
}

func TestReset_DropsReplyAndStopsRefresh(t *testing.T) {
	stub := &stubBackend{
		send:     &api.ChatResponse{ThreadID: "t1", ChatMessages: []api.ChatMessage{{MessageID: "m1", Message: "hi"}}},
		sendGate: make(chan struct{}),
		threads:  []api.ThreadSummary{{ThreadID: "t0"}},
	}
	w := chat.NewWorkflow(stub, chat.WithRefresh(10*time.Millisecond, 1))
	t.Cleanup(w.Close)
	ctx := context.Background()
	require.NoError(t, w.ReloadThreads(ctx))

	done := make(chan error, 1)
	go func() { done <- w.Send(ctx, "hello") }()
	require.Eventually(t, func() bool { return w.View().Status == chat.Sending }, time.Second, time.Millisecond)

	w.Reset()
	close(stub.sendGate)
	require.NoError(t, <-done)

	v := w.View()
	assert.Equal(t, chat.Idle, v.Status)
	assert.Empty(t, v.ThreadID)
	assert.Empty(t, v.Messages)
	assert.Empty(t, v.Threads)
	assert.Never(t, func() bool { return w.View().RefreshCount > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, w.Send(ctx, "again"))
	assert.Equal(t, "t1", w.View().ThreadID, "the workflow stays usable")
}
