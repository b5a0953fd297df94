// Package admin implements the administrator views: reviewing the
// questions and feedback of any user, and managing a user's documents.
//
// Everything is read through the same API client as the user-facing
// screens. Mutations either re-fetch or patch the counts the backend
// returns; nothing is cached across views.
package admin

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/logging"
	"github.com/fyrsmithlabs/aicacia/internal/query"
	"go.uber.org/zap"
)

// Backend is the subset of the API client the admin views need.
type Backend interface {
	ListUsers(ctx context.Context) ([]api.AdminUser, error)
	ListUserQueries(ctx context.Context, userID string, skip, limit int) (*api.QueryList, error)
	GetUserQuery(ctx context.Context, userID, queryID string) (*api.StoredQuery, error)
	ListDocuments(ctx context.Context, user string) ([]api.Document, error)
	DocumentQuota(ctx context.Context, user string) (*api.DocumentQuota, error)
	DeleteDocument(ctx context.Context, user, docID string) error
	UploadDocuments(ctx context.Context, user string, files []api.UploadFile) (*api.UploadResult, error)
}

// Confirmer asks the user a yes/no question.
type Confirmer func(prompt string) bool

// Option configures the admin views.
type Option func(*options)

type options struct {
	logger   *logging.Logger
	pageSize int
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l.Named("admin")
	}
}

// WithPageSize sets the per-user history page size.
func WithPageSize(n int) Option {
	return func(o *options) {
		o.pageSize = n
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: logging.NewNop(), pageSize: query.DefaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ReviewView is a copy of the feedback review state.
type ReviewView struct {
	Users        []api.AdminUser
	UsersLoading bool
	UserID       string // selected user, empty for none
	QueryID      string // selected query, empty for none
	History      query.HistoryView
	Detail       *Detail // nil until a query is loaded
	Loading      bool    // the detail is being fetched
}

// SelectedUser returns the selected user's row, if listed.
func (v ReviewView) SelectedUser() (api.AdminUser, bool) {
	for _, u := range v.Users {
		if u.UserID == v.UserID {
			return u, true
		}
	}
	return api.AdminUser{}, false
}

// Review drives the user list, a user's paged history and the detail of
// one of their queries.
type Review struct {
	backend Backend
	logger  *logging.Logger
	history *query.History

	mu           sync.Mutex
	users        []api.AdminUser
	usersLoading bool
	userID       string
	queryID      string
	detail       *Detail
	loading      bool
	epoch        uint64
}

// NewReview returns a review with no user selected.
func NewReview(backend Backend, opts ...Option) *Review {
	o := buildOptions(opts)
	r := &Review{backend: backend, logger: o.logger}
	r.history = query.NewHistory(r.listSelected, o.pageSize, o.logger)
	return r
}

// listSelected pages the selected user's queries.
func (r *Review) listSelected(ctx context.Context, skip, limit int) (*api.QueryList, error) {
	r.mu.Lock()
	userID := r.userID
	r.mu.Unlock()
	if userID == "" {
		return &api.QueryList{}, nil
	}
	return r.backend.ListUserQueries(ctx, userID, skip, limit)
}

// View returns a copy of the current state.
func (r *Review) View() ReviewView {
	hv := r.history.View()
	r.mu.Lock()
	defer r.mu.Unlock()
	return ReviewView{
		Users:        append([]api.AdminUser(nil), r.users...),
		UsersLoading: r.usersLoading,
		UserID:       r.userID,
		QueryID:      r.queryID,
		History:      hv,
		Detail:       r.detail,
		Loading:      r.loading,
	}
}

// History exposes the pager of the selected user's queries.
func (r *Review) History() *query.History {
	return r.history
}

// Reset clears the user list, the selection and the history. Responses
// still in flight are dropped.
func (r *Review) Reset() {
	r.mu.Lock()
	r.users = nil
	r.usersLoading = false
	r.userID = ""
	r.queryID = ""
	r.detail = nil
	r.loading = false
	r.epoch++
	r.mu.Unlock()
	r.history.Reset()
}

// LoadUsers fetches every user. A failure empties the list.
func (r *Review) LoadUsers(ctx context.Context) error {
	r.mu.Lock()
	r.usersLoading = true
	epoch := r.epoch
	r.mu.Unlock()

	users, err := r.backend.ListUsers(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != epoch {
		return nil
	}
	r.usersLoading = false
	if err != nil {
		r.users = nil
		r.logger.Warn(ctx, "failed to load users", zap.Error(err))
		return err
	}
	r.users = users
	return nil
}

// SelectUser shows the first history page of userID and clears the
// selected query.
func (r *Review) SelectUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	r.userID = userID
	r.queryID = ""
	r.detail = nil
	r.mu.Unlock()

	r.history.Reset()
	if userID == "" {
		return nil
	}
	return r.history.Reload(ctx)
}

// SelectQuery loads the detail of one of the selected user's queries.
// An empty id clears the detail. The result is dropped when the selection
// moved on before it arrived.
func (r *Review) SelectQuery(ctx context.Context, queryID string) error {
	r.mu.Lock()
	userID := r.userID
	r.queryID = queryID
	r.detail = nil
	if userID == "" || queryID == "" {
		r.mu.Unlock()
		return nil
	}
	r.loading = true
	epoch := r.epoch
	r.mu.Unlock()

	q, err := r.backend.GetUserQuery(ctx, userID, queryID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != epoch || r.userID != userID || r.queryID != queryID {
		return nil
	}
	r.loading = false
	if err != nil {
		r.logger.Warn(ctx, "failed to load query",
			zap.String("user_id", userID),
			zap.String("query_id", queryID),
			zap.Error(err))
		return err
	}
	r.detail = NewDetail(q)
	return nil
}

// SelectTab switches the detail to response i.
func (r *Review) SelectTab(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detail != nil {
		r.detail = r.detail.withTab(i)
	}
}

// ToggleConfiguration expands or collapses the configuration details of
// configurationID.
func (r *Review) ToggleConfiguration(configurationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detail != nil {
		r.detail = r.detail.withToggled(configurationID)
	}
}
