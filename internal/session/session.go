// Package session owns the signed-in state of the client.
//
// A Controller moves between three states:
//
//	LoggedOut ──login──▶ Unverified ──user info ok──▶ Verified
//	    ▲                     │                           │
//	    └──── verify failed ──┘◀─── logout / 401 ─────────┘
//
// The user info is populated only in Verified. A failed verification
// clears the token, the state and the user info together.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/logging"
	"github.com/fyrsmithlabs/aicacia/internal/tokenstore"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// RegisteredMessage is shown after a successful registration.
const RegisteredMessage = "Registration successful. Please login."

// State is the session state.
type State int

const (
	LoggedOut State = iota
	Unverified
	Verified
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case Unverified:
		return "unverified"
	case Verified:
		return "verified"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Backend is the subset of the API client the session needs.
type Backend interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, email, password string) error
	UserInfo(ctx context.Context) (*api.UserInfo, error)
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	State State
	User  *api.UserInfo
	// HistoryRefresh increases whenever history listings must reload.
	HistoryRefresh int
}

// LoggedIn reports whether a token is held, verified or not.
func (s Snapshot) LoggedIn() bool {
	return s.State != LoggedOut
}

// IsAdmin reports whether the verified user is an administrator.
func (s Snapshot) IsAdmin() bool {
	return s.State == Verified && s.User != nil && s.User.IsAdmin
}

// Credentials are the login and registration form values.
type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		c.logger = l.Named("session")
	}
}

// WithOnChange registers fn to run after every state change. fn runs
// without the controller lock held.
func WithOnChange(fn func(Snapshot)) Option {
	return func(c *Controller) {
		c.onChange = fn
	}
}

// Controller tracks the session. It is safe for concurrent use.
type Controller struct {
	backend  Backend
	tokens   tokenstore.Store
	logger   *logging.Logger
	validate *validator.Validate
	onChange func(Snapshot)

	mu             sync.Mutex
	state          State
	user           *api.UserInfo
	historyRefresh int
	// generation changes on every sign-in and sign-out so that a late
	// verification result cannot resurrect a session that has ended.
	generation uint64
}

// NewController returns a controller starting in Unverified when the
// store holds a token and in LoggedOut otherwise.
func NewController(backend Backend, tokens tokenstore.Store, opts ...Option) (*Controller, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if tokens == nil {
		return nil, errors.New("token store is required")
	}

	c := &Controller{
		backend:  backend,
		tokens:   tokens,
		logger:   logging.NewNop(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(c)
	}

	if _, ok := tokens.Get(); ok {
		c.state = Unverified
	}
	return c, nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{State: c.state, HistoryRefresh: c.historyRefresh}
	if c.user != nil {
		u := *c.user
		s.User = &u
	}
	return s
}

// transition applies fn under the lock and notifies the listener.
func (c *Controller) transition(fn func()) Snapshot {
	c.mu.Lock()
	fn()
	s := c.snapshotLocked()
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(s)
	}
	return s
}

// Verify checks the stored token by fetching the current user. It does
// nothing when logged out. On failure the token is cleared and the
// session ends, unless the session already changed while the request was
// in flight.
func (c *Controller) Verify(ctx context.Context) error {
	c.mu.Lock()
	if c.state == LoggedOut {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	c.mu.Unlock()

	info, err := c.backend.UserInfo(ctx)
	if err != nil {
		c.logger.Warn(ctx, "session verification failed", zap.Error(err))
		c.mu.Lock()
		current := c.generation == gen && c.state != LoggedOut
		c.mu.Unlock()
		if !current {
			return err
		}
		if rmErr := c.tokens.Remove(); rmErr != nil {
			c.logger.Error(ctx, "failed to clear token", zap.Error(rmErr))
		}
		c.transition(func() {
			if c.generation != gen {
				return
			}
			c.state = LoggedOut
			c.user = nil
			c.generation++
		})
		return err
	}

	applied := false
	c.transition(func() {
		if c.generation != gen || c.state == LoggedOut {
			return
		}
		c.state = Verified
		c.user = info
		applied = true
	})
	if applied {
		c.logger.Info(logging.WithUserID(ctx, info.UserID), "session verified", zap.Bool("admin", info.IsAdmin))
	}
	return nil
}

// Login validates the credentials, exchanges them for a token and
// verifies the new session. The history refresh counter is bumped so
// listings reload for the new user.
func (c *Controller) Login(ctx context.Context, creds Credentials) error {
	if err := c.check(creds); err != nil {
		return err
	}

	token, err := c.backend.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		c.logger.Warn(ctx, "login failed", zap.Error(err))
		return err
	}
	if err := c.tokens.Set(token); err != nil {
		c.logger.Error(ctx, "failed to store token", zap.Error(err))
		return fmt.Errorf("storing token: %w", err)
	}

	c.transition(func() {
		c.state = Unverified
		c.user = nil
		c.historyRefresh++
		c.generation++
	})
	c.logger.Info(ctx, "logged in")

	return c.Verify(ctx)
}

// Register validates the credentials and creates an account. The session
// is unchanged; the user signs in afterwards.
func (c *Controller) Register(ctx context.Context, creds Credentials) error {
	if err := c.check(creds); err != nil {
		return err
	}
	if err := c.backend.Register(ctx, creds.Email, creds.Password); err != nil {
		c.logger.Warn(ctx, "registration failed", zap.Error(err))
		return err
	}
	c.logger.Info(ctx, "registered")
	return nil
}

// Logout clears the token and ends the session without contacting the
// backend.
func (c *Controller) Logout(ctx context.Context) {
	c.end(ctx, "logged out")
}

// Expire ends the session after the backend rejected the token.
func (c *Controller) Expire(ctx context.Context) {
	c.end(ctx, "session expired")
}

func (c *Controller) end(ctx context.Context, msg string) {
	if err := c.tokens.Remove(); err != nil {
		c.logger.Error(ctx, "failed to clear token", zap.Error(err))
	}
	c.transition(func() {
		c.state = LoggedOut
		c.user = nil
		c.generation++
	})
	c.logger.Info(ctx, msg)
}

// BumpHistory asks history listings to reload.
func (c *Controller) BumpHistory() {
	c.transition(func() {
		c.historyRefresh++
	})
}

// check runs struct validation and converts the first failure into a
// user-facing ValidationError.
func (c *Controller) check(creds Credentials) error {
	err := c.validate.Struct(creds)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validating credentials: %w", err)
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "Email" && fe.Tag() == "required":
		return api.NewValidationError("Email is required")
	case fe.Field() == "Email":
		return api.NewValidationError("Invalid email address")
	default:
		return api.NewValidationError("Password is required")
	}
}
