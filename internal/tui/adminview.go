package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fyrsmithlabs/aicacia/internal/admin"
	"github.com/fyrsmithlabs/aicacia/internal/api"
	"golang.org/x/sync/errgroup"
)

const (
	sparklineWidth  = 28
	sparklineHeight = 3
	activityDays    = 14
)

type adminPane int

const (
	paneFeedback adminPane = iota
	paneDocuments
)

type adminFocus int

const (
	focusUsers adminFocus = iota
	focusPane
)

// adminModel is the administrator screen: the user list on the left and
// either the user's questions or their documents on the right.
type adminModel struct {
	pane        adminPane
	focus       adminFocus
	userCursor  int
	queryCursor int
	docCursor   int
	addingFiles bool
	paths       textinput.Model
	quota       progress.Model
}

func newAdminModel() adminModel {
	return adminModel{
		paths: newInput("Files ", "/path/one.pdf, /path/two.pdf"),
		quota: progress.New(progress.WithGradient("#00ff00", "#ff0000"), progress.WithWidth(40)),
	}
}

func (a *adminModel) resize(width int) {
	a.paths.Width = width - 50
}

// parsePaths splits a comma separated list of file paths.
func parsePaths(s string) []string {
	var paths []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func (m Model) updateAdmin(msg tea.KeyMsg) (Model, tea.Cmd) {
	a := &m.admin
	key := msg.String()

	if a.addingFiles {
		switch key {
		case "enter":
			a.addingFiles = false
			a.paths.Blur()
			m.selectFiles(parsePaths(a.paths.Value()))
			a.paths.Reset()
		case "esc":
			a.addingFiles = false
			a.paths.Blur()
			a.paths.Reset()
		default:
			var cmd tea.Cmd
			a.paths, cmd = a.paths.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	switch key {
	case "v":
		if a.pane == paneFeedback {
			a.pane = paneDocuments
		} else {
			a.pane = paneFeedback
		}
		return m, nil
	case "tab":
		if a.focus == focusUsers && m.deps.Review.View().UserID != "" {
			a.focus = focusPane
		} else {
			a.focus = focusUsers
		}
		return m, nil
	}

	if a.focus == focusUsers {
		return m.updateAdminUsers(key)
	}
	if a.pane == paneFeedback {
		return m.updateAdminFeedback(key)
	}
	return m.updateAdminDocuments(key)
}

func (m Model) updateAdminUsers(key string) (Model, tea.Cmd) {
	a := &m.admin
	users := m.deps.Review.View().Users
	switch key {
	case "up", "k":
		if a.userCursor > 0 {
			a.userCursor--
		}
	case "down", "j":
		if a.userCursor < len(users)-1 {
			a.userCursor++
		}
	case "r":
		return m, m.start(opUsers, m.deps.Review.LoadUsers)
	case "enter":
		if a.userCursor >= len(users) {
			break
		}
		u := users[a.userCursor]
		a.focus = focusPane
		a.queryCursor = 0
		a.docCursor = 0
		review, docs := m.deps.Review, m.deps.Documents
		return m, m.start(opSelectUser, func(ctx context.Context) error {
			var g errgroup.Group
			g.Go(func() error { return review.SelectUser(ctx, u.UserID) })
			g.Go(func() error {
				// The documents pane shows its own load failure.
				_ = docs.SelectUser(ctx, u.Email)
				return nil
			})
			return g.Wait()
		})
	}
	return m, nil
}

func (m Model) updateAdminFeedback(key string) (Model, tea.Cmd) {
	a := &m.admin
	review := m.deps.Review
	v := review.View()

	switch key {
	case "esc":
		if v.Detail != nil {
			return m, m.start(opSelectQuery, func(ctx context.Context) error {
				return review.SelectQuery(ctx, "")
			})
		}
		a.focus = focusUsers
	case "up", "k":
		if a.queryCursor > 0 {
			a.queryCursor--
		}
	case "down", "j":
		if a.queryCursor < len(v.History.Items)-1 {
			a.queryCursor++
		}
	case "enter":
		if a.queryCursor < len(v.History.Items) {
			id := v.History.Items[a.queryCursor].QueryID
			return m, m.start(opSelectQuery, func(ctx context.Context) error {
				return review.SelectQuery(ctx, id)
			})
		}
	case "[", "]":
		a.queryCursor = 0
		h := review.History()
		return m, m.start(opHistory, func(ctx context.Context) error {
			var err error
			if key == "[" {
				_, err = h.Prev(ctx)
			} else {
				_, err = h.Next(ctx)
			}
			return err
		})
	case "left", "right":
		if v.Detail == nil {
			break
		}
		n := len(v.Detail.Payload.Responses)
		step := 1
		if key == "left" {
			step = -1
		}
		review.SelectTab(((v.Detail.ActiveTab+step)%n + n) % n)
	case "c":
		if v.Detail != nil {
			review.ToggleConfiguration(v.Detail.Payload.Responses[v.Detail.ActiveTab].ConfigurationID)
		}
	}
	return m, nil
}

func (m Model) updateAdminDocuments(key string) (Model, tea.Cmd) {
	a := &m.admin
	docs := m.deps.Documents
	v := docs.View()

	switch key {
	case "esc":
		a.focus = focusUsers
	case "up", "k":
		if a.docCursor > 0 {
			a.docCursor--
		}
	case "down", "j":
		if a.docCursor < len(v.Documents)-1 {
			a.docCursor++
		}
	case "a":
		if v.Email != "" {
			a.addingFiles = true
			a.paths.Focus()
		}
	case "u":
		return m, m.start(opUpload, func(ctx context.Context) error {
			_, err := docs.Upload(ctx)
			return err
		})
	case "r":
		return m, m.start(opDocuments, docs.Load)
	case "x":
		if a.docCursor < len(v.Documents) {
			doc := v.Documents[a.docCursor]
			m.ask(admin.DeletePrompt(doc), opDeleteDocument, func(ctx context.Context) error {
				_, err := docs.Delete(ctx, doc, nil)
				return err
			})
		}
	}
	return m, nil
}

// selectFiles stats paths and hands them to the upload selection. The
// documents pane shows any rejection.
func (m *Model) selectFiles(paths []string) {
	files := make([]admin.File, 0, len(paths))
	for _, p := range paths {
		f, err := admin.FileFromPath(p)
		if err != nil {
			m.setStatus(fmt.Sprintf("Cannot read %s", p), true)
			return
		}
		files = append(files, f)
	}
	m.clearStatus()
	_ = m.deps.Documents.Select(files)
}

func (m Model) viewAdmin() string {
	rv := m.deps.Review.View()
	users := m.viewUsers(rv)

	var pane string
	tabs := []string{tabStyle.Render("Feedback"), tabStyle.Render("Documents")}
	tabs[m.admin.pane] = activeTabStyle.Render([]string{"Feedback", "Documents"}[m.admin.pane])
	header := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	if m.admin.pane == paneFeedback {
		pane = m.viewReview(rv)
	} else {
		pane = m.viewDocuments(m.deps.Documents.View())
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, users, " ", header+"\n"+pane)
}

func (m Model) viewUsers(rv admin.ReviewView) string {
	a := m.admin
	var b strings.Builder
	b.WriteString(sectionStyle.UnsetMarginTop().Render("Users") + "\n")
	if rv.UsersLoading && len(rv.Users) == 0 {
		b.WriteString(m.spinner.View() + " " + dimStyle.Render("Loading…") + "\n")
	}
	for i, u := range rv.Users {
		line := truncate(u.Email, 24)
		if u.UserID == rv.UserID {
			line = footerKeyStyle.Render("● ") + line
		} else {
			line = "  " + line
		}
		if a.focus == focusUsers && i == a.userCursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line + "\n")
		meta := admin.FormatUserDate(u.CreatedAt.Time)
		if u.IsAdmin {
			meta += " · admin"
		}
		b.WriteString("  " + dimStyle.Render(meta) + "\n")
	}
	return sidebarStyle.Render(b.String())
}

func (m Model) viewReview(rv admin.ReviewView) string {
	if rv.UserID == "" {
		return dimStyle.Render("Select a user to review their questions.")
	}
	if rv.Detail != nil {
		return m.viewDetail(rv.Detail)
	}
	if rv.Loading {
		return m.spinner.View() + " " + dimStyle.Render("Loading query…")
	}

	hv := rv.History
	var b strings.Builder
	if user, ok := rv.SelectedUser(); ok {
		b.WriteString(valueStyle.Render(user.Email) + "  " + dimStyle.Render(fmt.Sprintf("%d questions", hv.TotalCount)) + "\n")
	}
	b.WriteString(labelStyle.Render("Activity") + " " + activitySparkline(hv.Items, time.Now()) + "\n\n")
	if !hv.HasContent() {
		b.WriteString(dimStyle.Render("This user has not asked anything yet.") + "\n")
	}
	for i, item := range hv.Items {
		line := fmt.Sprintf("%s  %s", dimStyle.Render(admin.FormatUserDate(item.CreatedAt.Time)), truncate(item.Question, 50))
		if m.admin.focus == focusPane && i == m.admin.queryCursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + dimStyle.Render(hv.PageLabel()))
	return b.String()
}

// activitySparkline charts questions per day over the last two weeks of
// the listed page.
func activitySparkline(items []api.QueryListItem, now time.Time) string {
	counts := make([]float64, activityDays)
	y, mo, d := now.Date()
	today := time.Date(y, mo, d, 0, 0, 0, 0, now.Location())
	recent := false
	for _, item := range items {
		at := item.CreatedAt.In(now.Location())
		day := int(today.Sub(time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, now.Location())).Hours() / 24)
		if day >= 0 && day < activityDays {
			counts[activityDays-1-day]++
			recent = true
		}
	}
	if !recent {
		return dimStyle.Render("no recent questions")
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range counts {
		spark.Push(v)
	}
	spark.Draw()
	return sparklineStyle.Render(spark.View())
}

func (m Model) viewDetail(d *admin.Detail) string {
	p := d.Payload
	var b strings.Builder
	b.WriteString(sectionStyle.UnsetMarginTop().Render("Q: "+p.Question) + "\n")

	if len(p.Responses) > 1 {
		var tabs []string
		for i, label := range p.TabLabels() {
			if i == d.ActiveTab {
				tabs = append(tabs, activeTabStyle.Render(label))
			} else {
				tabs = append(tabs, tabStyle.Render(label))
			}
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...) + "\n")
	}

	i := d.ActiveTab
	resp := p.Responses[i]
	if d.IsExperiment() {
		b.WriteString(labelStyle.Render("Configuration ") + valueStyle.Render(d.ConfigurationName(i)) + "\n")
		if d.Expanded(resp.ConfigurationID) {
			for _, row := range d.ConfigurationRows(i) {
				b.WriteString("  " + dimStyle.Render(fmt.Sprintf("%-16s", row[0])) + row[1] + "\n")
			}
		}
	}

	width := m.width - 48
	if width < 36 {
		width = 36
	}
	if summary := resp.SummaryText(); summary != "" {
		b.WriteString("\n" + lipgloss.NewStyle().Width(width).Render(summary) + "\n")
	}
	if !d.IsExperiment() {
		if label, ok := d.SummaryFeedback(); ok {
			b.WriteString(labelStyle.Render("Summary feedback: ") + valueStyle.Render(label) + "\n")
		}
	}

	if len(resp.References) > 0 {
		b.WriteString(sectionStyle.Render("References") + "\n")
		for r, ref := range resp.References {
			b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(fmt.Sprintf("[%d]", r+1)), ref.Title))
			if label, reason, ok := d.ReferenceFeedback(r); ok {
				line := "    " + dimStyle.Render("Feedback: ") + label
				if reason != "" {
					line += dimStyle.Render(" (" + reason + ")")
				}
				b.WriteString(line + "\n")
			}
		}
	}

	if d.IsExperiment() {
		b.WriteString(sectionStyle.Render("Feedback") + "\n")
		lines := d.ResponseFeedback(i)
		if len(lines) == 0 {
			b.WriteString(dimStyle.Render("No feedback recorded.") + "\n")
		}
		for _, fl := range lines {
			b.WriteString(labelStyle.Render(fl.Label+": ") + valueStyle.Render(fl.Value) + "\n")
			if fl.Tooltip != "" {
				b.WriteString("  " + dimStyle.Render(fl.Tooltip) + "\n")
			}
		}
	} else if comment := d.Comment(); comment != "" {
		b.WriteString(sectionStyle.Render("Comment") + "\n" + comment + "\n")
	}
	return b.String()
}

func (m Model) viewDocuments(v admin.DocumentsView) string {
	if v.Email == "" {
		return dimStyle.Render(admin.ErrNoUser.Error() + ".")
	}
	a := m.admin
	var b strings.Builder
	b.WriteString(valueStyle.Render(v.Email) + "\n")

	if v.Quota != nil {
		pct := 0.0
		if v.Quota.MaxDocuments > 0 {
			pct = float64(v.Quota.CurrentDocumentCount) / float64(v.Quota.MaxDocuments)
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			labelStyle.Render("Quota"),
			a.quota.ViewAs(pct),
			dimStyle.Render(fmt.Sprintf("%d of %d documents, %d remaining",
				v.Quota.CurrentDocumentCount, v.Quota.MaxDocuments, v.Quota.RemainingQuota))))
	}

	if v.Loading && len(v.Documents) == 0 {
		b.WriteString(m.spinner.View() + " " + dimStyle.Render("Loading documents…") + "\n")
	}
	b.WriteString(sectionStyle.Render("Documents") + "\n")
	if len(v.Documents) == 0 && !v.Loading {
		b.WriteString(dimStyle.Render("No documents uploaded.") + "\n")
	}
	for i, doc := range v.Documents {
		line := fmt.Sprintf("%-32s %10s  %s  %s",
			truncate(doc.Filename, 32),
			admin.FormatFileSize(doc.FileSize),
			admin.FormatDocumentDate(doc.CreatedAt.Time),
			doc.ProcessingStatus)
		if a.focus == focusPane && i == a.docCursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	if len(v.Selected) > 0 {
		b.WriteString(sectionStyle.Render("Ready to upload") + "\n")
		for _, f := range v.Selected {
			b.WriteString("  " + f.Name + " " + dimStyle.Render(admin.FormatFileSize(f.Size)) + "\n")
		}
	}
	if a.addingFiles {
		b.WriteString("\n" + a.paths.View() + "\n")
	}
	if v.Uploading {
		b.WriteString("\n" + m.spinner.View() + " " + dimStyle.Render("Uploading…") + "\n")
	}
	if v.Message != nil {
		if v.Message.Kind == admin.MessageError {
			b.WriteString("\n" + errorStyle.Render(v.Message.Text) + "\n")
		} else {
			b.WriteString("\n" + successStyle.Render(v.Message.Text) + "\n")
		}
	}
	return b.String()
}

func (m Model) adminHelp() string {
	a := m.admin
	if a.addingFiles {
		return keyHelp("enter", "select", "esc", "cancel")
	}
	var pairs []string
	switch {
	case a.focus == focusUsers:
		pairs = []string{"↑/↓", "user", "enter", "open", "r", "reload"}
	case a.pane == paneFeedback:
		pairs = []string{"↑/↓", "question", "enter", "open", "[/]", "page", "←/→", "answer", "c", "configuration", "esc", "back"}
	default:
		pairs = []string{"a", "add files", "u", "upload", "x", "delete", "r", "reload", "esc", "back"}
	}
	pairs = append(pairs, "v", "feedback/documents", "tab", "switch pane")
	return keyHelp(append(pairs, m.navHelp()...)...)
}
