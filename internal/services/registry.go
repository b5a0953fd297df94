package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fyrsmithlabs/aicacia/internal/admin"
	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/chat"
	"github.com/fyrsmithlabs/aicacia/internal/logging"
	"github.com/fyrsmithlabs/aicacia/internal/query"
	"github.com/fyrsmithlabs/aicacia/internal/session"
	"github.com/fyrsmithlabs/aicacia/internal/tokenstore"
)

// Registry provides access to all client workflows.
// Use accessor methods to retrieve individual workflows.
type Registry interface {
	Client() *api.Client
	Session() *session.Controller
	Query() *query.Workflow
	History() *query.History
	Chat() *chat.Workflow
	Review() *admin.Review
	Documents() *admin.Documents
	// Close stops background work such as pending thread refreshes.
	Close()
}

// Options configures the registry.
type Options struct {
	Client *api.Client
	Tokens tokenstore.Store
	Logger *logging.Logger

	// PageSize is the history page size; zero uses query.DefaultPageSize.
	PageSize int
	// ChatRefreshDelay and ChatRefreshAttempts tune the listing refresh
	// after a new thread. A zero attempt count keeps the chat default.
	ChatRefreshDelay    time.Duration
	ChatRefreshAttempts int

	// OnSessionChange runs after every session transition, once the
	// workflows have been cleared on sign-out.
	OnSessionChange func(session.Snapshot)
	// OnChange runs when background work changed workflow state.
	OnChange func()
}

// registry is the concrete implementation of Registry.
type registry struct {
	client    *api.Client
	session   *session.Controller
	query     *query.Workflow
	history   *query.History
	chat      *chat.Workflow
	review    *admin.Review
	documents *admin.Documents

	onSessionChange func(session.Snapshot)
	mu              sync.Mutex
	signedOut       bool
}

// NewRegistry builds every workflow on top of opts.Client.
//
// A 401 from any call expires the session, and every successful question
// bumps the history refresh counter. Logging out or expiring clears every
// workflow so the next user starts from nothing.
func NewRegistry(opts Options) (Registry, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("token store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	r := &registry{client: opts.Client, onSessionChange: opts.OnSessionChange}
	ctrl, err := session.NewController(opts.Client, opts.Tokens,
		session.WithLogger(logger),
		session.WithOnChange(r.sessionChanged))
	if err != nil {
		return nil, err
	}
	opts.Client.SetAuthRejectedHandler(func() {
		ctrl.Expire(context.Background())
	})

	chatOpts := []chat.Option{
		chat.WithLogger(logger),
		chat.WithRefresh(opts.ChatRefreshDelay, opts.ChatRefreshAttempts),
	}
	if opts.OnChange != nil {
		chatOpts = append(chatOpts, chat.WithOnChange(opts.OnChange))
	}

	docs, err := admin.NewDocuments(opts.Client, admin.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	r.session = ctrl
	r.query = query.NewWorkflow(opts.Client, query.WithLogger(logger), query.WithOnAsked(ctrl.BumpHistory))
	r.history = query.NewHistory(opts.Client.ListQueries, opts.PageSize, logger.Named("history"))
	r.chat = chat.NewWorkflow(opts.Client, chatOpts...)
	r.review = admin.NewReview(opts.Client, admin.WithLogger(logger), admin.WithPageSize(opts.PageSize))
	r.documents = docs
	return r, nil
}

// sessionChanged clears the workflows on the way into LoggedOut, then
// forwards s.
func (r *registry) sessionChanged(s session.Snapshot) {
	r.mu.Lock()
	entering := s.State == session.LoggedOut && !r.signedOut
	r.signedOut = s.State == session.LoggedOut
	r.mu.Unlock()

	if entering {
		r.query.Reset()
		r.history.Reset()
		r.chat.Reset()
		r.review.Reset()
		r.documents.Reset()
	}
	if r.onSessionChange != nil {
		r.onSessionChange(s)
	}
}

func (r *registry) Client() *api.Client          { return r.client }
func (r *registry) Session() *session.Controller { return r.session }
func (r *registry) Query() *query.Workflow       { return r.query }
func (r *registry) History() *query.History      { return r.history }
func (r *registry) Chat() *chat.Workflow         { return r.chat }
func (r *registry) Review() *admin.Review        { return r.review }
func (r *registry) Documents() *admin.Documents  { return r.documents }
func (r *registry) Close()                       { r.chat.Close() }
