// Package tui is the terminal shell: a top bar with navigation, one
// screen per route and a confirmation prompt for destructive actions.
//
// Screens never talk to the backend directly. Every request runs as a
// tea.Cmd that calls a workflow method and reports back with a doneMsg;
// rendering reads the workflows' View copies.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fyrsmithlabs/aicacia/internal/admin"
	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/chat"
	"github.com/fyrsmithlabs/aicacia/internal/logging"
	"github.com/fyrsmithlabs/aicacia/internal/query"
	"github.com/fyrsmithlabs/aicacia/internal/router"
	"github.com/fyrsmithlabs/aicacia/internal/services"
	"github.com/fyrsmithlabs/aicacia/internal/session"
	"go.uber.org/zap"
)

// Deps are the workflows the shell drives.
type Deps struct {
	Session   *session.Controller
	Query     *query.Workflow
	History   *query.History
	Chat      *chat.Workflow
	Review    *admin.Review
	Documents *admin.Documents
	Events    *Notifier
	Logger    *logging.Logger
}

// NewDeps takes the workflows from a registry. events should be the
// notifier whose callbacks the registry was built with.
func NewDeps(reg services.Registry, events *Notifier, logger *logging.Logger) Deps {
	return Deps{
		Session:   reg.Session(),
		Query:     reg.Query(),
		History:   reg.History(),
		Chat:      reg.Chat(),
		Review:    reg.Review(),
		Documents: reg.Documents(),
		Events:    events,
		Logger:    logger,
	}
}

// Operation names carried by doneMsg.
const (
	opVerify         = "verify"
	opLogin          = "login"
	opRegister       = "register"
	opAsk            = "ask"
	opLoadQuery      = "load query"
	opSubmitFeedback = "submit feedback"
	opHistory        = "history"
	opThreads        = "threads"
	opSelectThread   = "select thread"
	opSend           = "send"
	opReact          = "react"
	opDeleteThread   = "delete thread"
	opUsers          = "users"
	opSelectUser     = "select user"
	opSelectQuery    = "select query"
	opDocuments      = "documents"
	opUpload         = "upload"
	opDeleteDocument = "delete document"
)

// quietOps report their failures inside the screen instead of the
// status line.
var quietOps = map[string]bool{
	opVerify:         true,
	opHistory:        true,
	opDocuments:      true,
	opUpload:         true,
	opDeleteDocument: true,
}

// doneMsg reports a finished backend operation.
type doneMsg struct {
	op  string
	err error
}

// sessionMsg reports a session state change.
type sessionMsg struct {
	snapshot session.Snapshot
}

// refreshMsg asks for a redraw after background work.
type refreshMsg struct{}

// Notifier turns workflow callbacks into tea messages. Sends never
// block; a full queue drops the message since every redraw reads fresh
// state anyway.
type Notifier struct {
	ch chan tea.Msg
}

// NewNotifier returns a notifier with a small buffer.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan tea.Msg, 32)}
}

// SessionChanged is a session.WithOnChange callback.
func (n *Notifier) SessionChanged(s session.Snapshot) {
	n.send(sessionMsg{snapshot: s})
}

// Changed is a chat.WithOnChange callback.
func (n *Notifier) Changed() {
	n.send(refreshMsg{})
}

func (n *Notifier) send(msg tea.Msg) {
	select {
	case n.ch <- msg:
	default:
	}
}

func (n *Notifier) wait() tea.Cmd {
	return func() tea.Msg {
		return <-n.ch
	}
}

// confirmPrompt is a pending yes/no question. On yes, fn runs as op.
type confirmPrompt struct {
	text string
	op   string
	fn   func(ctx context.Context) error
}

// Model is the root bubbletea model.
type Model struct {
	deps   Deps
	ctx    context.Context
	logger *logging.Logger

	path    string
	route   router.Route
	width   int
	height  int
	spinner spinner.Model

	busy        int
	status      string
	statusErr   bool
	confirm     *confirmPrompt
	lastRefresh int
	quitting    bool

	login  loginModel
	search searchModel
	chat   chatModel
	admin  adminModel
}

// New returns the shell showing path. ctx bounds every backend call.
func New(ctx context.Context, deps Deps, path string) Model {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Events == nil {
		deps.Events = NewNotifier()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = labelStyle

	m := Model{
		deps:        deps,
		ctx:         ctx,
		logger:      logger.Named("tui"),
		path:        path,
		width:       100,
		height:      30,
		spinner:     s,
		lastRefresh: -1,
		login:       newLoginModel(),
		search:      newSearchModel(),
		chat:        newChatModel(),
		admin:       newAdminModel(),
	}
	m.route = router.Resolve(deps.Session.Snapshot(), path)
	m.path = m.route.Path
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	verify := func() tea.Msg {
		return doneMsg{op: opVerify, err: m.deps.Session.Verify(m.ctx)}
	}
	return tea.Batch(
		m.spinner.Tick,
		m.deps.Events.wait(),
		verify,
		m.enter(m.route.Screen),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.chat.resize(msg.Width, msg.Height)
		m.admin.resize(msg.Width)

	case tea.KeyMsg:
		next, cmd := m.handleKey(msg)
		if next.quitting {
			return next, cmd
		}
		m = next
		cmds = append(cmds, cmd)

	case doneMsg:
		m.busy--
		if m.busy < 0 {
			m.busy = 0
		}
		m = m.finish(msg)

	case sessionMsg:
		m.logger.Debug(m.ctx, "session changed", zap.Stringer("state", msg.snapshot.State))
		cmds = append(cmds, m.deps.Events.wait())

	case refreshMsg:
		cmds = append(cmds, m.deps.Events.wait())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	m, cmd := m.sync()
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// sync re-resolves the route against the session and starts whatever
// the new state needs: screen loads and history refreshes.
func (m Model) sync() (Model, tea.Cmd) {
	snap := m.deps.Session.Snapshot()
	var cmds []tea.Cmd

	route := router.Resolve(snap, m.path)
	if route.Redirected {
		m.logger.Debug(m.ctx, "redirected", zap.String("from", m.path), zap.String("to", route.Path))
	}
	m.path = route.Path
	if route.Screen != m.route.Screen {
		m.confirm = nil
		if route.Screen == router.ScreenLogin {
			m.login = newLoginModel()
		}
		cmds = append(cmds, m.startEnter(route.Screen))
	}
	m.route = route

	if snap.LoggedIn() && snap.HistoryRefresh != m.lastRefresh {
		m.lastRefresh = snap.HistoryRefresh
		counter := snap.HistoryRefresh
		cmds = append(cmds, m.start(opHistory, func(ctx context.Context) error {
			return m.deps.History.Refresh(ctx, counter)
		}))
	}

	m.chat.refreshTranscript(m.deps.Chat.View(), m.spinner.View())
	return m, tea.Batch(cmds...)
}

// enter returns the loads a screen needs when it is shown.
func (m Model) enter(screen router.Screen) tea.Cmd {
	switch screen {
	case router.ScreenChat:
		return m.command(opThreads, m.deps.Chat.ReloadThreads)
	case router.ScreenAdmin:
		return m.command(opUsers, m.deps.Review.LoadUsers)
	}
	return nil
}

func (m *Model) startEnter(screen router.Screen) tea.Cmd {
	cmd := m.enter(screen)
	if cmd != nil {
		m.busy++
	}
	return cmd
}

// start counts op as in flight and returns the command running fn.
func (m *Model) start(op string, fn func(ctx context.Context) error) tea.Cmd {
	m.busy++
	if !quietOps[op] {
		m.clearStatus()
	}
	return m.command(op, fn)
}

func (m Model) command(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return doneMsg{op: op, err: fn(ctx)}
	}
}

// finish applies the outcome of an operation.
func (m Model) finish(msg doneMsg) Model {
	if msg.err != nil {
		if api.IsAuthRejected(msg.err) && msg.op != opLogin && msg.op != opRegister {
			// The client has already expired the session.
			m.setStatus("Your session has expired. Please login again.", true)
			return m
		}
		if !quietOps[msg.op] {
			m.setStatus(api.UserMessage(msg.err, msg.err.Error()), true)
		}
		if !errors.Is(msg.err, api.ErrValidationRejected) {
			m.logger.Warn(m.ctx, "operation failed", zap.String("op", msg.op), zap.Error(msg.err))
		}
		return m
	}

	switch msg.op {
	case opLogin:
		m.login = newLoginModel()
	case opRegister:
		m.login = m.login.registered()
	case opSend:
		m.chat.composer.Reset()
	case opSubmitFeedback:
		m.setStatus("Thank you for your feedback!", false)
	case opDeleteThread:
		m.setStatus("Conversation deleted", false)
	case opAsk:
		m.search.field = 0
	}
	return m
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

func (m *Model) clearStatus() {
	m.status = ""
	m.statusErr = false
}

// ask shows a confirmation prompt; fn runs as op when the user agrees.
func (m *Model) ask(text, op string, fn func(ctx context.Context) error) {
	m.confirm = &confirmPrompt{text: text, op: op, fn: fn}
}

// navigate moves to path; sync resolves any redirect.
func (m *Model) navigate(path string) {
	m.path = path
	m.clearStatus()
}

// typing reports whether keys go to a text input.
func (m Model) typing() bool {
	switch m.route.Screen {
	case router.ScreenLogin:
		return true
	case router.ScreenQuery:
		return m.search.typing()
	case router.ScreenChat:
		return m.chat.typing
	case router.ScreenAdmin:
		return m.admin.addingFiles
	}
	return false
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	if m.confirm != nil {
		switch key {
		case "y", "Y", "enter":
			c := m.confirm
			m.confirm = nil
			return m, m.start(c.op, c.fn)
		case "n", "N", "esc":
			m.confirm = nil
		}
		return m, nil
	}

	if !m.typing() {
		snap := m.deps.Session.Snapshot()
		for _, link := range router.Links(snap) {
			if key == link.Key {
				m.navigate(link.Path)
				return m, nil
			}
		}
		switch key {
		case "q":
			m.quitting = true
			return m, tea.Quit
		case "o":
			if snap.LoggedIn() {
				m.deps.Session.Logout(m.ctx)
				return m, nil
			}
		}
	}

	switch m.route.Screen {
	case router.ScreenLogin:
		return m.updateLogin(msg)
	case router.ScreenQuery:
		return m.updateSearch(msg)
	case router.ScreenChat:
		return m.updateChat(msg)
	case router.ScreenAdmin:
		return m.updateAdmin(msg)
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var body, help string
	switch m.route.Screen {
	case router.ScreenLogin:
		body, help = m.viewLogin(), m.loginHelp()
	case router.ScreenQuery:
		body, help = m.viewSearch(), m.searchHelp()
	case router.ScreenChat:
		body, help = m.viewChat(), m.chatHelp()
	case router.ScreenAdmin:
		body, help = m.viewAdmin(), m.adminHelp()
	}

	var b strings.Builder
	b.WriteString(m.viewTopBar())
	b.WriteString("\n\n")
	b.WriteString(body)
	b.WriteString("\n")
	if m.confirm != nil {
		b.WriteString("\n")
		b.WriteString(promptStyle.Render(warningStyle.Render(m.confirm.text) + "\n" + keyHelp("y", "yes", "n", "no")))
		b.WriteString("\n")
	}
	if status := m.viewStatus(); status != "" {
		b.WriteString("\n" + status + "\n")
	}
	b.WriteString(help)
	return b.String()
}

func (m Model) viewTopBar() string {
	snap := m.deps.Session.Snapshot()
	parts := []string{headerStyle.Render(" Aicacia ")}
	for _, link := range router.Links(snap) {
		text := "[" + link.Key + "] " + link.Label
		if link.Path == m.route.Path {
			parts = append(parts, activeLinkStyle.Render(text))
		} else {
			parts = append(parts, linkStyle.Render(text))
		}
	}
	bar := lipgloss.JoinHorizontal(lipgloss.Top, parts...)

	switch snap.State {
	case session.Verified:
		who := valueStyle.Render(snap.User.Email)
		if snap.User.IsAdmin {
			who += " " + warningStyle.Render("admin")
		}
		bar += "   " + who
	case session.Unverified:
		bar += "   " + dimStyle.Render("verifying session…")
	}
	return bar
}

func (m Model) viewStatus() string {
	var out string
	if m.busy > 0 {
		out = m.spinner.View() + " " + dimStyle.Render("Working…")
	}
	if m.status != "" {
		if out != "" {
			out += "  "
		}
		if m.statusErr {
			out += errorStyle.Render("✗ " + m.status)
		} else {
			out += successStyle.Render("✓ " + m.status)
		}
	}
	return out
}

// navHelp lists the global shortcuts shown on every signed-in screen.
func (m Model) navHelp() []string {
	var pairs []string
	for _, link := range router.Links(m.deps.Session.Snapshot()) {
		pairs = append(pairs, link.Key, strings.ToLower(link.Label))
	}
	return append(pairs, "o", "logout", "q", "quit")
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
