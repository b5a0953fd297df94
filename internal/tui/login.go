package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fyrsmithlabs/aicacia/internal/session"
)

// newInput returns a text input with a steady cursor.
func newInput(prompt, placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.Placeholder = placeholder
	ti.PromptStyle = labelStyle
	ti.Cursor.SetMode(cursor.CursorStatic)
	return ti
}

// loginModel is the sign-in and registration form.
type loginModel struct {
	email    textinput.Model
	password textinput.Model
	register bool
	notice   string
}

func newLoginModel() loginModel {
	email := newInput("Email    ", "you@example.org")
	email.Focus()
	password := newInput("Password ", "")
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	return loginModel{email: email, password: password}
}

// registered switches back to sign-in after an account was created.
func (l loginModel) registered() loginModel {
	next := newLoginModel()
	next.email.SetValue(l.email.Value())
	next.email.Blur()
	next.password.Focus()
	next.notice = session.RegisteredMessage
	return next
}

func (l *loginModel) toggleFocus() {
	if l.email.Focused() {
		l.email.Blur()
		l.password.Focus()
		return
	}
	l.password.Blur()
	l.email.Focus()
}

func (l loginModel) credentials() session.Credentials {
	return session.Credentials{
		Email:    strings.TrimSpace(l.email.Value()),
		Password: l.password.Value(),
	}
}

func (m Model) updateLogin(msg tea.KeyMsg) (Model, tea.Cmd) {
	l := &m.login
	switch msg.String() {
	case "tab", "shift+tab", "up", "down":
		l.toggleFocus()
		return m, nil
	case "ctrl+r":
		l.register = !l.register
		l.notice = ""
		m.clearStatus()
		return m, nil
	case "enter":
		creds := l.credentials()
		l.notice = ""
		if l.register {
			return m, m.start(opRegister, func(ctx context.Context) error {
				return m.deps.Session.Register(ctx, creds)
			})
		}
		return m, m.start(opLogin, func(ctx context.Context) error {
			return m.deps.Session.Login(ctx, creds)
		})
	}

	var cmd tea.Cmd
	if l.email.Focused() {
		l.email, cmd = l.email.Update(msg)
	} else {
		l.password, cmd = l.password.Update(msg)
	}
	return m, cmd
}

func (m Model) viewLogin() string {
	l := m.login
	title := "Sign in"
	if l.register {
		title = "Create an account"
	}

	var b strings.Builder
	b.WriteString(sectionStyle.Render(title) + "\n\n")
	b.WriteString(l.email.View() + "\n")
	b.WriteString(l.password.View() + "\n")
	if l.notice != "" {
		b.WriteString("\n" + successStyle.Render(l.notice) + "\n")
	}
	return containerStyle.Render(b.String())
}

func (m Model) loginHelp() string {
	other := "register"
	if m.login.register {
		other = "sign in"
	}
	return keyHelp("enter", "submit", "tab", "next field", "ctrl+r", other, "ctrl+c", "quit")
}
