package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/chat"
)

const threadListWidth = 36

// chatModel is the conversation screen: the thread list, the transcript
// and the composer.
type chatModel struct {
	composer   textinput.Model
	typing     bool
	cursor     int
	transcript viewport.Model
	rendered   string
}

func newChatModel() chatModel {
	c := chatModel{
		composer:   newInput("› ", "Type a message…"),
		transcript: viewport.New(60, 16),
	}
	c.focusComposer()
	return c
}

func (c *chatModel) focusComposer() {
	c.typing = true
	c.composer.Focus()
}

func (c *chatModel) blurComposer() {
	c.typing = false
	c.composer.Blur()
}

func (c *chatModel) resize(width, height int) {
	w := width - threadListWidth - 6
	if w < 30 {
		w = 30
	}
	h := height - 10
	if h < 5 {
		h = 5
	}
	c.transcript.Width = w
	c.transcript.Height = h
	c.composer.Width = w - 4
	c.rendered = ""
}

// refreshTranscript re-renders the messages when they changed and keeps
// the newest one in sight.
func (c *chatModel) refreshTranscript(v chat.View, spin string) {
	content := renderTranscript(v, c.transcript.Width, spin)
	if content == c.rendered {
		return
	}
	c.rendered = content
	c.transcript.SetContent(content)
	c.transcript.GotoBottom()
}

func renderTranscript(v chat.View, width int, spin string) string {
	if v.Loading {
		return spin + " " + dimStyle.Render("Loading conversation…")
	}
	if len(v.Messages) == 0 {
		return dimStyle.Render("Start a new conversation by typing a message below.")
	}

	bubbleWidth := width * 3 / 4
	var b strings.Builder
	for _, msg := range v.Messages {
		if msg.MessageFrom == api.FromUser {
			bubble := userBubbleStyle.MaxWidth(bubbleWidth).Render(msg.Message)
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Right, bubble) + "\n\n")
			continue
		}

		b.WriteString(agentBubbleStyle.MaxWidth(bubbleWidth).Render(msg.Message) + "\n")
		for i, ref := range msg.References {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  [%d] %s", i+1, ref.Title)) + "\n")
		}
		if r, ok := v.Reaction(msg.MessageID); ok {
			if r == chat.ThumbsUp {
				b.WriteString(successStyle.Render("  ▲ helpful") + "\n")
			} else {
				b.WriteString(errorStyle.Render("  ▼ not helpful") + "\n")
			}
		}
		b.WriteString("\n")
	}
	if v.Status == chat.Sending {
		b.WriteString(spin + " " + dimStyle.Render("Thinking…"))
	}
	return b.String()
}

// lastAgentMessage returns the index of the newest agent reply.
func lastAgentMessage(messages []api.ChatMessage) (int, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].MessageFrom == api.FromAgent {
			return i, true
		}
	}
	return 0, false
}

func (m Model) updateChat(msg tea.KeyMsg) (Model, tea.Cmd) {
	c := &m.chat
	wf := m.deps.Chat
	key := msg.String()

	if c.typing {
		switch key {
		case "enter":
			text := c.composer.Value()
			return m, m.start(opSend, func(ctx context.Context) error {
				return wf.Send(ctx, text)
			})
		case "esc":
			c.blurComposer()
			return m, nil
		}
		var cmd tea.Cmd
		c.composer, cmd = c.composer.Update(msg)
		return m, cmd
	}

	v := wf.View()
	switch key {
	case "i", "/":
		c.focusComposer()
	case "up", "k":
		if c.cursor > 0 {
			c.cursor--
		}
	case "down", "j":
		if c.cursor < len(v.Threads)-1 {
			c.cursor++
		}
	case "enter":
		if c.cursor < len(v.Threads) {
			id := v.Threads[c.cursor].ThreadID
			return m, m.start(opSelectThread, func(ctx context.Context) error {
				return wf.SelectThread(ctx, id)
			})
		}
	case "n":
		c.composer.Reset()
		c.focusComposer()
		return m, m.start(opSelectThread, func(ctx context.Context) error {
			return wf.SelectThread(ctx, "")
		})
	case "d":
		if c.cursor < len(v.Threads) {
			id := v.Threads[c.cursor].ThreadID
			m.ask(chat.DeletePrompt, opDeleteThread, func(ctx context.Context) error {
				_, err := wf.DeleteThread(ctx, id, nil)
				return err
			})
		}
	case "r":
		return m, m.start(opThreads, wf.ReloadThreads)
	case "+", "-":
		idx, ok := lastAgentMessage(v.Messages)
		if !ok {
			break
		}
		reaction := chat.ThumbsUp
		if key == "-" {
			reaction = chat.ThumbsDown
		}
		return m, m.start(opReact, func(ctx context.Context) error {
			return wf.Feedback(ctx, idx, reaction, "")
		})
	case "pgup":
		c.transcript.HalfPageUp()
	case "pgdown":
		c.transcript.HalfPageDown()
	}
	return m, nil
}

func (m Model) viewChat() string {
	c := m.chat
	v := m.deps.Chat.View()

	var list strings.Builder
	list.WriteString(sectionStyle.UnsetMarginTop().Render("Conversations") + "\n")
	if v.ThreadsLoading && len(v.Threads) == 0 {
		list.WriteString(m.spinner.View() + " " + dimStyle.Render("Loading…") + "\n")
	}
	if !v.ThreadsLoading && len(v.Threads) == 0 {
		list.WriteString(dimStyle.Render("No conversations yet") + "\n")
	}
	now := time.Now()
	for i, t := range v.Threads {
		title := truncate(t.LastMessage, threadListWidth-6)
		if t.ThreadID == v.ThreadID {
			title = footerKeyStyle.Render("● ") + title
		} else {
			title = "  " + title
		}
		if !c.typing && i == c.cursor {
			title = selectedStyle.Render(title)
		}
		list.WriteString(title + "\n")
		list.WriteString("  " + dimStyle.Render(chat.FormatThreadDate(t.LastMessageTime.Time, now)+" · "+chat.FormatMessageCount(t.MessageCount)) + "\n")
	}
	sidebar := sidebarStyle.Render(list.String())

	conversation := c.transcript.View() + "\n" + c.composer.View()
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " ", conversation)
}

func (m Model) chatHelp() string {
	if m.chat.typing {
		return keyHelp("enter", "send", "esc", "browse")
	}
	pairs := []string{"i", "write", "n", "new chat", "↑/↓", "thread", "enter", "open", "d", "delete", "+/-", "rate reply", "pgup/pgdn", "scroll"}
	return keyHelp(append(pairs, m.navHelp()...)...)
}
