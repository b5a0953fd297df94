// Package chat implements multi-turn conversations: selecting a thread,
// sending messages with an optimistic echo, rating agent replies and
// managing the thread list.
//
// A conversation moves through three states:
//
//	Idle ──Send──▶ Sending ──ok──▶ Loaded ──Send──▶ Sending
//	  ▲               │                │
//	  └───fail(new)───┘     SelectThread / DeleteThread(active) ──▶ Idle
//
// The server's message list is authoritative. After every send the local
// list is replaced wholesale with the one returned; the client never
// reorders or deduplicates.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/logging"
	"go.uber.org/zap"
)

// DeletePrompt is the question asked before a thread is deleted.
const DeletePrompt = "Are you sure you want to delete this conversation?"

// Validation failures. Each matches api.ErrValidationRejected.
var (
	ErrEmptyMessage   error = api.NewValidationError("Please enter a message")
	ErrNoMessageID    error = api.NewValidationError("This message cannot be rated yet")
	ErrNoActiveThread error = api.NewValidationError("There is no active conversation")
)

// Backend is the subset of the API client the workflow needs.
type Backend interface {
	SendChat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
	ListThreads(ctx context.Context) ([]api.ThreadSummary, error)
	GetThread(ctx context.Context, threadID string) (*api.ChatResponse, error)
	DeleteThread(ctx context.Context, threadID string) error
	SubmitChatFeedback(ctx context.Context, fb api.ChatFeedbackRequest) error
}

// Confirmer asks the user a yes/no question.
type Confirmer func(prompt string) bool

// Status is the composer state of the active conversation.
type Status int

const (
	Idle Status = iota
	Loaded
	Sending
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Sending:
		return "sending"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Reaction is a thumbs rating of one message.
type Reaction int

const (
	ThumbsDown Reaction = api.ThumbsDown
	ThumbsUp   Reaction = api.ThumbsUp
)

func (r Reaction) String() string {
	if r == ThumbsUp {
		return "up"
	}
	return "down"
}

// View is a copy of the workflow state for rendering.
type View struct {
	Status    Status
	ThreadID  string // empty when no thread is active
	Messages  []api.ChatMessage
	Reactions map[string]Reaction // keyed by message id
	Loading   bool                // a thread fetch is in flight

	Threads        []api.ThreadSummary
	ThreadsLoading bool
	// RefreshCount increments each time a newly created thread asks the
	// thread list to re-fetch.
	RefreshCount int
}

// Reaction returns the rating marked on message id.
func (v View) Reaction(messageID string) (Reaction, bool) {
	r, ok := v.Reactions[messageID]
	return r, ok
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Workflow) {
		w.logger = l.Named("chat")
	}
}

// WithRefresh sets the delay before a new thread triggers a thread list
// refresh and how many listings are tried until the thread shows up.
func WithRefresh(delay time.Duration, attempts int) Option {
	return func(w *Workflow) {
		if delay >= 0 {
			w.refreshDelay = delay
		}
		if attempts > 0 {
			w.refreshAttempts = attempts
		}
	}
}

// WithOnChange registers fn to run whenever state changes in the
// background, such as the delayed thread list refresh. It is called
// outside the lock.
func WithOnChange(fn func()) Option {
	return func(w *Workflow) {
		w.onChange = fn
	}
}

// Workflow is the chat screen state. It is safe for concurrent use. No
// request is cancelled by a later action, so a late response overwrites
// newer state. Only Reset fences off responses that were in flight.
type Workflow struct {
	backend         Backend
	logger          *logging.Logger
	refreshDelay    time.Duration
	refreshAttempts int
	onChange        func()

	mu             sync.Mutex
	status         Status
	threadID       string
	messages       []api.ChatMessage
	reactions      map[string]Reaction
	loading        bool
	threads        []api.ThreadSummary
	threadsLoading bool
	refreshCount   int
	epoch          uint64

	timers  map[*time.Timer]struct{}
	closed  bool
	pending sync.WaitGroup
}

// NewWorkflow returns an idle workflow.
func NewWorkflow(backend Backend, opts ...Option) *Workflow {
	w := &Workflow{
		backend:         backend,
		logger:          logging.NewNop(),
		refreshDelay:    500 * time.Millisecond,
		refreshAttempts: 3,
		reactions:       make(map[string]Reaction),
		timers:          make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// View returns a copy of the current state.
func (w *Workflow) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	reactions := make(map[string]Reaction, len(w.reactions))
	for k, v := range w.reactions {
		reactions[k] = v
	}
	return View{
		Status:         w.status,
		ThreadID:       w.threadID,
		Messages:       append([]api.ChatMessage(nil), w.messages...),
		Reactions:      reactions,
		Loading:        w.loading,
		Threads:        append([]api.ThreadSummary(nil), w.threads...),
		ThreadsLoading: w.threadsLoading,
		RefreshCount:   w.refreshCount,
	}
}

// resetLocked clears the conversation back to idle.
func (w *Workflow) resetLocked() {
	w.status = Idle
	w.threadID = ""
	w.messages = nil
	w.reactions = make(map[string]Reaction)
	w.loading = false
}

// Reset forgets the conversation and the thread list and stops pending
// refreshes. Responses to requests made before it are dropped. Unlike
// Close the workflow stays usable.
func (w *Workflow) Reset() {
	w.mu.Lock()
	w.resetLocked()
	w.threads = nil
	w.threadsLoading = false
	w.epoch++
	w.stopTimersLocked()
	w.mu.Unlock()
}

func (w *Workflow) stopTimersLocked() {
	for t := range w.timers {
		if t.Stop() {
			w.pending.Done()
		}
		delete(w.timers, t)
	}
}

// SelectThread makes threadID the active conversation and fetches its
// messages. An empty id starts a new conversation.
func (w *Workflow) SelectThread(ctx context.Context, threadID string) error {
	w.mu.Lock()
	w.resetLocked()
	if threadID == "" {
		w.mu.Unlock()
		return nil
	}
	w.threadID = threadID
	w.status = Loaded
	w.loading = true
	epoch := w.epoch
	w.mu.Unlock()

	resp, err := w.backend.GetThread(ctx, threadID)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.epoch != epoch {
		return nil
	}
	w.loading = false
	if err != nil {
		w.messages = nil
		w.logger.Warn(ctx, "failed to load thread messages", zap.String("thread_id", threadID), zap.Error(err))
		return err
	}
	w.messages = resp.ChatMessages
	return nil
}

// Send posts text to the active thread, or starts a new one. The user's
// message shows immediately; on success the server's list replaces it and
// on failure the previous list is restored.
func (w *Workflow) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	w.mu.Lock()
	prevStatus := w.status
	prev := w.messages
	threadID := w.threadID
	epoch := w.epoch
	w.messages = append(append([]api.ChatMessage(nil), prev...), api.ChatMessage{
		Message:     text,
		MessageFrom: api.FromUser,
	})
	w.status = Sending
	w.mu.Unlock()

	resp, err := w.backend.SendChat(ctx, api.ChatRequest{Message: text, ThreadID: threadID})
	if err != nil {
		w.mu.Lock()
		if w.epoch == epoch {
			w.messages = prev
			w.status = prevStatus
		}
		w.mu.Unlock()
		w.logger.Warn(ctx, "send failed", zap.String("thread_id", threadID), zap.Error(err))
		return err
	}

	w.mu.Lock()
	current := w.epoch == epoch
	if current {
		w.messages = resp.ChatMessages
		w.threadID = resp.ThreadID
		w.status = Loaded
	}
	w.mu.Unlock()
	if !current {
		w.logger.Debug(ctx, "reply dropped after reset", zap.String("thread_id", resp.ThreadID))
		return nil
	}

	if threadID == "" && resp.ThreadID != "" {
		w.logger.Info(ctx, "thread created", zap.String("thread_id", resp.ThreadID))
		w.scheduleRefresh(epoch, resp.ThreadID)
	}
	return nil
}

// Feedback rates message index of the active thread. The reaction is
// marked before the request completes and stays marked if it fails.
func (w *Workflow) Feedback(ctx context.Context, index int, reaction Reaction, comment string) error {
	w.mu.Lock()
	if index < 0 || index >= len(w.messages) {
		w.mu.Unlock()
		return fmt.Errorf("message index %d out of range", index)
	}
	msg := w.messages[index]
	if msg.MessageID == "" {
		w.mu.Unlock()
		return ErrNoMessageID
	}
	if w.threadID == "" {
		w.mu.Unlock()
		return ErrNoActiveThread
	}
	threadID := w.threadID
	w.reactions[msg.MessageID] = reaction
	w.mu.Unlock()

	err := w.backend.SubmitChatFeedback(ctx, api.ChatFeedbackRequest{
		ThreadID:        threadID,
		MessageID:       msg.MessageID,
		FeedbackMessage: comment,
		Feedback:        int(reaction),
	})
	if err != nil {
		w.logger.Warn(ctx, "chat feedback failed",
			zap.String("thread_id", threadID),
			zap.String("message_id", msg.MessageID),
			zap.Error(err))
		return err
	}
	return nil
}

// ReloadThreads fetches the thread list. A failure empties it.
func (w *Workflow) ReloadThreads(ctx context.Context) error {
	w.mu.Lock()
	w.threadsLoading = true
	epoch := w.epoch
	w.mu.Unlock()

	threads, err := w.backend.ListThreads(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.epoch != epoch {
		return nil
	}
	w.threadsLoading = false
	if err != nil {
		w.threads = nil
		w.logger.Warn(ctx, "failed to load threads", zap.Error(err))
		return err
	}
	w.threads = threads
	return nil
}

// DeleteThread deletes threadID once confirm agrees. It reports whether
// the thread was deleted. Deleting the active thread returns to idle.
func (w *Workflow) DeleteThread(ctx context.Context, threadID string, confirm Confirmer) (bool, error) {
	if confirm != nil && !confirm(DeletePrompt) {
		return false, nil
	}
	w.mu.Lock()
	epoch := w.epoch
	w.mu.Unlock()

	if err := w.backend.DeleteThread(ctx, threadID); err != nil {
		w.logger.Warn(ctx, "failed to delete thread", zap.String("thread_id", threadID), zap.Error(err))
		return false, err
	}

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		return true, nil
	}
	kept := w.threads[:0:0]
	for _, t := range w.threads {
		if t.ThreadID != threadID {
			kept = append(kept, t)
		}
	}
	w.threads = kept
	if w.threadID == threadID {
		w.resetLocked()
	}
	w.mu.Unlock()

	w.logger.Info(ctx, "thread deleted", zap.String("thread_id", threadID))
	return true, nil
}

// scheduleRefresh bumps the refresh counter after the configured delay,
// then re-lists threads until threadID is visible or attempts run out.
func (w *Workflow) scheduleRefresh(epoch uint64, threadID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.epoch != epoch {
		return
	}

	w.pending.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.refreshDelay, func() {
		defer w.pending.Done()
		w.mu.Lock()
		delete(w.timers, t)
		if w.epoch != epoch {
			w.mu.Unlock()
			return
		}
		w.refreshCount++
		w.mu.Unlock()
		w.notify()
		w.pollUntilVisible(epoch, threadID)
	})
	w.timers[t] = struct{}{}
}

func (w *Workflow) pollUntilVisible(epoch uint64, threadID string) {
	ctx := context.Background()
	for attempt := 1; attempt <= w.refreshAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(w.refreshDelay)
		}
		if w.stale(epoch) {
			return
		}
		err := w.ReloadThreads(ctx)
		w.notify()
		if err == nil && w.hasThread(threadID) {
			return
		}
		w.logger.Debug(ctx, "new thread not listed yet",
			zap.String("thread_id", threadID),
			zap.Int("attempt", attempt))
	}
}

func (w *Workflow) hasThread(threadID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.threads {
		if t.ThreadID == threadID {
			return true
		}
	}
	return false
}

// stale reports whether work started at epoch should stop.
func (w *Workflow) stale(epoch uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed || w.epoch != epoch
}

func (w *Workflow) notify() {
	if w.onChange != nil {
		w.onChange()
	}
}

// Close stops pending thread list refreshes and waits for one already
// running to finish.
func (w *Workflow) Close() {
	w.mu.Lock()
	w.closed = true
	w.stopTimersLocked()
	w.mu.Unlock()
	w.pending.Wait()
}
