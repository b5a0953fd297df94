// Package query implements asking questions, collecting feedback on the
// answers and paging through past questions.
package query

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/logging"
	"go.uber.org/zap"
)

// Validation failures. Each matches api.ErrValidationRejected.
var (
	ErrEmptyQuestion    error = api.NewValidationError("Please enter a question")
	ErrNoAnswer         error = api.NewValidationError("There is no answer to give feedback on")
	ErrAlreadySubmitted error = api.NewValidationError("Feedback has already been submitted")
)

// Backend is the subset of the API client the workflow needs.
type Backend interface {
	AskQuestion(ctx context.Context, question string) (*api.AskResponse, error)
	GetQuery(ctx context.Context, queryID string) (*api.StoredQuery, error)
	SubmitFeedback(ctx context.Context, fb api.FeedbackRequest) error
	SubmitExperimentFeedback(ctx context.Context, fb api.ExperimentFeedbackRequest) (*api.ExperimentFeedbackResponse, error)
}

// View is a copy of the workflow state for rendering.
type View struct {
	Payload   *Payload // nil before the first answer
	Values    map[string]api.FeedbackValue
	Submitted bool
	ActiveTab int
	Loading   bool
}

// Value returns the entered value for a field of response i.
func (v View) Value(i int, fieldID string) (api.FeedbackValue, bool) {
	if v.Payload == nil || i < 0 || i >= len(v.Payload.Responses) {
		return api.FeedbackValue{}, false
	}
	val, ok := v.Values[FieldKey(i, v.Payload.Responses[i].ConfigurationID, fieldID)]
	return val, ok
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Workflow) {
		w.logger = l.Named("query")
	}
}

// WithOnAsked registers fn to run after every successful ask. The shell
// uses it to bump the history refresh counter.
func WithOnAsked(fn func()) Option {
	return func(w *Workflow) {
		w.onAsked = fn
	}
}

// Workflow holds the current answer and its feedback form. It is safe
// for concurrent use; a response that completes late replaces whatever
// is shown, as the last write wins, unless Reset ran in between.
type Workflow struct {
	backend Backend
	logger  *logging.Logger
	onAsked func()

	mu        sync.Mutex
	payload   *Payload
	values    map[string]api.FeedbackValue
	submitted bool
	activeTab int
	loading   bool
	epoch     uint64
}

// NewWorkflow returns an empty workflow.
func NewWorkflow(backend Backend, opts ...Option) *Workflow {
	w := &Workflow{
		backend: backend,
		logger:  logging.NewNop(),
		values:  make(map[string]api.FeedbackValue),
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

	values := make(map[string]api.FeedbackValue, len(w.values))
	for k, v := range w.values {
		values[k] = v
	}
	return View{
		Payload:   w.payload,
		Values:    values,
		Submitted: w.submitted,
		ActiveTab: w.activeTab,
		Loading:   w.loading,
	}
}

// Reset drops the answer and its form. Requests still in flight are
// discarded when they complete.
func (w *Workflow) Reset() {
	w.mu.Lock()
	w.payload = nil
	w.values = make(map[string]api.FeedbackValue)
	w.submitted = false
	w.activeTab = 0
	w.loading = false
	w.epoch++
	w.mu.Unlock()
}

// start marks a request in flight and returns the epoch it belongs to.
func (w *Workflow) start() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loading = true
	return w.epoch
}

func (w *Workflow) stop(epoch uint64) {
	w.mu.Lock()
	if w.epoch == epoch {
		w.loading = false
	}
	w.mu.Unlock()
}

// replace installs a new payload with fresh feedback state. It reports
// false when the workflow was reset after epoch.
func (w *Workflow) replace(epoch uint64, p *Payload, values map[string]api.FeedbackValue, submitted bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.epoch != epoch {
		return false
	}
	w.payload = p
	w.values = values
	w.submitted = submitted
	w.activeTab = 0
	w.loading = false
	return true
}

// Ask submits a question and shows its answers. On failure the previous
// answer stays on screen.
func (w *Workflow) Ask(ctx context.Context, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return ErrEmptyQuestion
	}

	epoch := w.start()
	resp, err := w.backend.AskQuestion(ctx, question)
	if err != nil {
		w.stop(epoch)
		w.logger.Warn(ctx, "ask failed", zap.Error(err))
		return err
	}

	p := FromAsk(question, resp)
	if !w.replace(epoch, p, p.defaultValues(), false) {
		w.logger.Debug(ctx, "answer dropped after reset", zap.String("query_id", p.QueryID))
		return nil
	}
	w.logger.Debug(ctx, "answer received",
		zap.String("query_id", p.QueryID),
		zap.Stringer("kind", p.Kind),
		zap.Int("responses", len(p.Responses)))

	if w.onAsked != nil {
		w.onAsked()
	}
	return nil
}

// Load shows a stored query together with any feedback already given. A
// query with recorded feedback is marked submitted.
func (w *Workflow) Load(ctx context.Context, queryID string) error {
	epoch := w.start()
	q, err := w.backend.GetQuery(ctx, queryID)
	if err != nil {
		w.stop(epoch)
		w.logger.Warn(ctx, "load query failed", zap.String("query_id", queryID), zap.Error(err))
		return err
	}

	p := FromStored(q)
	stored := p.storedValues(q.Feedback)
	submitted := len(stored) > 0
	if !submitted {
		stored = p.defaultValues()
	}
	w.replace(epoch, p, stored, submitted)
	return nil
}

// SelectTab makes response i active. Out-of-range indexes are ignored.
func (w *Workflow) SelectTab(i int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.payload != nil && i >= 0 && i < len(w.payload.Responses) {
		w.activeTab = i
	}
}

// SetValue records the value entered for field fieldID of response i.
func (w *Workflow) SetValue(i int, fieldID string, value api.FeedbackValue) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.payload == nil {
		return ErrNoAnswer
	}
	if w.submitted {
		return ErrAlreadySubmitted
	}
	if i < 0 || i >= len(w.payload.Responses) {
		return fmt.Errorf("response index %d out of range", i)
	}
	field, ok := w.payload.Field(fieldID)
	if !ok {
		return fmt.Errorf("unknown feedback field %q", fieldID)
	}
	if _, isNum := value.Number(); field.FieldType == api.FieldRadio && !isNum {
		return fmt.Errorf("field %q takes an option value", fieldID)
	}

	w.values[FieldKey(i, w.payload.Responses[i].ConfigurationID, fieldID)] = value
	return nil
}

// SubmitFeedback posts every non-empty value in a single call and marks
// the form submitted. With nothing entered an empty list is still sent.
func (w *Workflow) SubmitFeedback(ctx context.Context) error {
	w.mu.Lock()
	p := w.payload
	submitted := w.submitted
	values := make(map[string]api.FeedbackValue, len(w.values))
	for k, v := range w.values {
		values[k] = v
	}
	w.mu.Unlock()

	if p == nil {
		return ErrNoAnswer
	}
	if submitted {
		return ErrAlreadySubmitted
	}

	var err error
	if p.Kind == Experiment {
		_, err = w.backend.SubmitExperimentFeedback(ctx, experimentRequest(p, values))
	} else {
		err = w.backend.SubmitFeedback(ctx, legacyRequest(p, values))
	}
	if err != nil {
		w.logger.Warn(ctx, "feedback submission failed", zap.String("query_id", p.QueryID), zap.Error(err))
		return err
	}

	w.mu.Lock()
	if w.payload == p {
		w.submitted = true
	}
	w.mu.Unlock()
	w.logger.Info(ctx, "feedback submitted", zap.String("query_id", p.QueryID), zap.Stringer("kind", p.Kind))
	return nil
}

// experimentRequest walks responses then declared fields, skipping
// fields left empty.
func experimentRequest(p *Payload, values map[string]api.FeedbackValue) api.ExperimentFeedbackRequest {
	req := api.ExperimentFeedbackRequest{QueryID: p.QueryID, Feedbacks: []api.ConfigurationFeedbackEntry{}}
	for i, resp := range p.Responses {
		for _, field := range p.FeedbackConfig.Fields {
			v, ok := values[FieldKey(i, resp.ConfigurationID, field.FieldID)]
			if !ok || v.IsEmpty() {
				continue
			}
			req.Feedbacks = append(req.Feedbacks, api.ConfigurationFeedbackEntry{
				ConfigurationID: resp.ConfigurationID,
				FieldID:         field.FieldID,
				Value:           v,
			})
		}
	}
	return req
}

// legacyRequest flattens the legacy form. Unrated entries count as
// "Don't Know".
func legacyRequest(p *Payload, values map[string]api.FeedbackValue) api.FeedbackRequest {
	rating := func(fieldID string) int {
		if v, ok := values[FieldKey(0, LegacyConfigurationID, fieldID)]; ok {
			if n, isNum := v.Number(); isNum {
				return n
			}
		}
		return api.FeedbackDontKnow
	}

	refs := make([]int, len(p.Responses[0].References))
	for i := range refs {
		refs[i] = rating(LegacyReferenceField(i))
	}
	comment := values[FieldKey(0, LegacyConfigurationID, LegacyCommentField)]

	return api.FeedbackRequest{
		QueryID:            p.QueryID,
		ReferencesFeedback: refs,
		SummaryFeedback:    rating(LegacySummaryField),
		Feedback:           comment.Text(),
	}
}
