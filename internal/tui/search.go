package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/query"
)

type searchFocus int

const (
	focusQuestion searchFocus = iota
	focusAnswer
	focusHistory
	focusComment
)

// searchModel is the question screen: an input, the answer tabs with
// their feedback form and the history sidebar.
type searchModel struct {
	question      textinput.Model
	comment       textinput.Model
	focus         searchFocus
	field         int // cursor over the feedback fields
	historyCursor int
}

func newSearchModel() searchModel {
	q := newInput("› ", "Ask a question about restoration…")
	q.Focus()
	return searchModel{
		question: q,
		comment:  newInput("  ", "Type your feedback"),
	}
}

func (s searchModel) typing() bool {
	return s.focus == focusQuestion || s.focus == focusComment
}

func (s *searchModel) setFocus(f searchFocus) {
	s.focus = f
	s.question.Blur()
	s.comment.Blur()
	switch f {
	case focusQuestion:
		s.question.Focus()
	case focusComment:
		s.comment.Focus()
	}
}

// fields returns the feedback inputs of the current answer.
func fields(v query.View) []api.FeedbackFieldConfig {
	if v.Payload == nil || v.Payload.FeedbackConfig == nil {
		return nil
	}
	return v.Payload.FeedbackConfig.Fields
}

// nextOption returns the radio option dir steps away from the current
// value, wrapping around. Without a value it starts at either end.
func nextOption(f api.FeedbackFieldConfig, current api.FeedbackValue, set bool, dir int) (api.FeedbackValue, bool) {
	n := len(f.Options)
	if n == 0 {
		return api.FeedbackValue{}, false
	}
	idx := -1
	if set {
		if num, ok := current.Number(); ok {
			for i, o := range f.Options {
				if o.Value == num {
					idx = i
					break
				}
			}
		}
	}
	switch {
	case idx < 0 && dir > 0:
		idx = 0
	case idx < 0:
		idx = n - 1
	default:
		idx = ((idx+dir)%n + n) % n
	}
	return api.NumberValue(f.Options[idx].Value), true
}

func (m Model) updateSearch(msg tea.KeyMsg) (Model, tea.Cmd) {
	s := &m.search
	wf := m.deps.Query
	key := msg.String()

	switch s.focus {
	case focusQuestion:
		switch key {
		case "enter":
			question := s.question.Value()
			return m, m.start(opAsk, func(ctx context.Context) error {
				return wf.Ask(ctx, question)
			})
		case "esc":
			s.setFocus(focusAnswer)
			return m, nil
		}
		var cmd tea.Cmd
		s.question, cmd = s.question.Update(msg)
		return m, cmd

	case focusComment:
		switch key {
		case "enter":
			v := wf.View()
			list := fields(v)
			if s.field < len(list) {
				if err := wf.SetValue(v.ActiveTab, list[s.field].FieldID, api.TextValue(s.comment.Value())); err != nil {
					m.setStatus(err.Error(), true)
				}
			}
			s.setFocus(focusAnswer)
			return m, nil
		case "esc":
			s.setFocus(focusAnswer)
			return m, nil
		}
		var cmd tea.Cmd
		s.comment, cmd = s.comment.Update(msg)
		return m, cmd

	case focusHistory:
		return m.updateHistory(key)
	}

	v := wf.View()
	list := fields(v)
	switch key {
	case "/", "i":
		s.setFocus(focusQuestion)
	case "h":
		if m.deps.History.View().HasContent() {
			s.setFocus(focusHistory)
		}
	case "tab", "shift+tab":
		if v.Payload != nil && len(v.Payload.Responses) > 1 {
			n := len(v.Payload.Responses)
			step := 1
			if key == "shift+tab" {
				step = -1
			}
			wf.SelectTab(((v.ActiveTab+step)%n + n) % n)
		}
	case "up", "k":
		if s.field > 0 {
			s.field--
		}
	case "down", "j":
		if s.field < len(list)-1 {
			s.field++
		}
	case "left", "right":
		if s.field >= len(list) || list[s.field].FieldType != api.FieldRadio {
			break
		}
		dir := 1
		if key == "left" {
			dir = -1
		}
		current, set := v.Value(v.ActiveTab, list[s.field].FieldID)
		if next, ok := nextOption(list[s.field], current, set, dir); ok {
			if err := wf.SetValue(v.ActiveTab, list[s.field].FieldID, next); err != nil {
				m.setStatus(err.Error(), true)
			}
		}
	case "enter":
		if s.field < len(list) && list[s.field].FieldType == api.FieldText && !v.Submitted {
			current, _ := v.Value(v.ActiveTab, list[s.field].FieldID)
			s.comment.SetValue(current.Text())
			s.comment.CursorEnd()
			s.setFocus(focusComment)
		}
	case "s":
		return m, m.start(opSubmitFeedback, wf.SubmitFeedback)
	}
	return m, nil
}

func (m Model) updateHistory(key string) (Model, tea.Cmd) {
	s := &m.search
	h := m.deps.History
	items := h.View().Items

	switch key {
	case "esc", "h":
		s.setFocus(focusAnswer)
	case "/", "i":
		s.setFocus(focusQuestion)
	case "up", "k":
		if s.historyCursor > 0 {
			s.historyCursor--
		}
	case "down", "j":
		if s.historyCursor < len(items)-1 {
			s.historyCursor++
		}
	case "[":
		s.historyCursor = 0
		return m, m.start(opHistory, func(ctx context.Context) error {
			_, err := h.Prev(ctx)
			return err
		})
	case "]":
		s.historyCursor = 0
		return m, m.start(opHistory, func(ctx context.Context) error {
			_, err := h.Next(ctx)
			return err
		})
	case "enter":
		if s.historyCursor < len(items) {
			id := items[s.historyCursor].QueryID
			s.setFocus(focusAnswer)
			s.field = 0
			return m, m.start(opLoadQuery, func(ctx context.Context) error {
				return m.deps.Query.Load(ctx, id)
			})
		}
	}
	return m, nil
}

func (m Model) viewSearch() string {
	s := m.search
	v := m.deps.Query.View()

	var b strings.Builder
	b.WriteString(s.question.View() + "\n")
	if v.Loading {
		b.WriteString("\n" + m.spinner.View() + " " + dimStyle.Render("Searching…") + "\n")
	}
	if v.Payload != nil {
		b.WriteString(m.viewAnswer(v))
	} else if !v.Loading {
		b.WriteString("\n" + dimStyle.Render("Ask a question to get started.") + "\n")
	}

	main := b.String()
	hv := m.deps.History.View()
	if !hv.HasContent() {
		return main
	}

	mainWidth := m.width - 40
	if mainWidth < 40 {
		mainWidth = 40
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(mainWidth).Render(main),
		" ",
		m.viewHistory(hv),
	)
}

func (m Model) viewAnswer(v query.View) string {
	p := v.Payload
	var b strings.Builder

	b.WriteString(sectionStyle.Render("Q: "+p.Question) + "\n")
	if len(p.Responses) > 1 {
		var tabs []string
		for i, label := range p.TabLabels() {
			if i == v.ActiveTab {
				tabs = append(tabs, activeTabStyle.Render(label))
			} else {
				tabs = append(tabs, tabStyle.Render(label))
			}
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...) + "\n")
	}

	resp := p.Responses[v.ActiveTab]
	width := m.width - 44
	if width < 36 {
		width = 36
	}
	if summary := resp.SummaryText(); summary != "" {
		b.WriteString("\n" + lipgloss.NewStyle().Width(width).Render(summary) + "\n")
	} else {
		b.WriteString("\n" + dimStyle.Render("No summary available.") + "\n")
	}

	if len(resp.References) > 0 {
		b.WriteString(sectionStyle.Render("References") + "\n")
		for i, ref := range resp.References {
			line := fmt.Sprintf("%s %s %s",
				labelStyle.Render(fmt.Sprintf("[%d]", i+1)),
				valueStyle.Render(ref.Title),
				dimStyle.Render(fmt.Sprintf("(%.2f)", ref.Score)))
			b.WriteString(line + "\n")
			if ref.URL != "" {
				b.WriteString("    " + dimStyle.Render(ref.URL) + "\n")
			}
		}
	}

	b.WriteString(m.viewFeedbackForm(v))
	return b.String()
}

func (m Model) viewFeedbackForm(v query.View) string {
	list := fields(v)
	if len(list) == 0 {
		return ""
	}
	s := m.search
	answerFocused := s.focus == focusAnswer || s.focus == focusComment

	var b strings.Builder
	b.WriteString(sectionStyle.Render("Feedback") + "\n")
	for i, f := range list {
		marker := "  "
		if answerFocused && i == s.field {
			marker = footerKeyStyle.Render("› ")
		}
		label := f.Label
		if f.Required {
			label += "*"
		}
		b.WriteString(marker + labelStyle.Render(label) + "  ")

		current, set := v.Value(v.ActiveTab, f.FieldID)
		switch f.FieldType {
		case api.FieldRadio:
			var opts []string
			for _, o := range f.Options {
				num, _ := current.Number()
				if set && num == o.Value {
					opts = append(opts, valueStyle.Render("(•) "+o.Label))
				} else {
					opts = append(opts, dimStyle.Render("( ) "+o.Label))
				}
			}
			b.WriteString(strings.Join(opts, "  "))
		default:
			if s.focus == focusComment && i == s.field {
				b.WriteString("\n" + s.comment.View())
			} else if text := current.Text(); text != "" {
				b.WriteString(valueStyle.Render(text))
			} else {
				b.WriteString(dimStyle.Render("(enter to write)"))
			}
		}
		b.WriteString("\n")
		if f.Tooltip != "" {
			b.WriteString("    " + dimStyle.Render(f.Tooltip) + "\n")
		}
	}
	if v.Submitted {
		b.WriteString("\n" + successStyle.Render("Feedback submitted. Thank you!") + "\n")
	}
	return b.String()
}

func (m Model) viewHistory(hv query.HistoryView) string {
	s := m.search
	var b strings.Builder
	b.WriteString(sectionStyle.UnsetMarginTop().Render("History") + "\n")
	for i, item := range hv.Items {
		line := truncate(item.Question, 30)
		if s.focus == focusHistory && i == s.historyCursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + dimStyle.Render(hv.PageLabel()))
	return sidebarStyle.Render(b.String())
}

func (m Model) searchHelp() string {
	switch m.search.focus {
	case focusQuestion:
		return keyHelp("enter", "ask", "esc", "browse")
	case focusComment:
		return keyHelp("enter", "save", "esc", "cancel")
	case focusHistory:
		return keyHelp("↑/↓", "select", "enter", "open", "[/]", "page", "esc", "back")
	}
	pairs := []string{"/", "ask", "↑/↓", "field", "←/→", "rate", "enter", "write", "s", "submit"}
	if m.deps.Query.View().Payload != nil && len(m.deps.Query.View().Payload.Responses) > 1 {
		pairs = append(pairs, "tab", "answer")
	}
	if m.deps.History.View().HasContent() {
		pairs = append(pairs, "h", "history")
	}
	return keyHelp(append(pairs, m.navHelp()...)...)
}
