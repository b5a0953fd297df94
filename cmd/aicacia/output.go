package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/query"
	"github.com/spf13/cobra"
)

var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// withApp opens the client stack for the duration of fn and reports any
// error on stderr.
func (o *globalOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := o.open(ctx, false)
	if err != nil {
		return reportError(cmd, err)
	}
	defer a.Close(ctx)
	return reportError(cmd, fn(ctx, a))
}

// readLine prompts on stderr and reads one line from the command input.
// It reads a byte at a time so consecutive prompts share the input.
func readLine(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	in := cmd.InOrStdin()
	var line strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			line.WriteByte(buf[0])
		}
		if errors.Is(err, io.EOF) && line.Len() > 0 {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
	}
	return strings.TrimRight(line.String(), "\r"), nil
}

// confirmer asks prompt on the terminal; it agrees only to y or yes.
func confirmer(cmd *cobra.Command) func(prompt string) bool {
	return func(prompt string) bool {
		answer, err := readLine(cmd, prompt+" [y/N] ")
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, successColor.Sprint("✓ ")+fmt.Sprintf(format, args...))
}

// printAnswer writes every response of p, one section per answer tab.
func printAnswer(w io.Writer, p *query.Payload) {
	fmt.Fprintln(w, titleColor.Sprint("Q: ")+p.Question)
	labels := p.TabLabels()
	for i, resp := range p.Responses {
		fmt.Fprintln(w)
		if len(p.Responses) > 1 {
			fmt.Fprintln(w, labelColor.Sprint(labels[i]))
		}
		if summary := resp.SummaryText(); summary != "" {
			fmt.Fprintln(w, summary)
		} else {
			fmt.Fprintln(w, dimColor.Sprint("No summary available."))
		}
		printReferences(w, resp.References)
	}
	if p.QueryID != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, dimColor.Sprint("query id: "+p.QueryID))
	}
}

func printReferences(w io.Writer, refs []api.Reference) {
	if len(refs) == 0 {
		return
	}
	fmt.Fprintln(w, labelColor.Sprint("References"))
	for i, ref := range refs {
		fmt.Fprintf(w, "  [%d] %s %s\n", i+1, ref.Title, dimColor.Sprintf("(%.2f)", ref.Score))
		if ref.URL != "" {
			fmt.Fprintln(w, "      "+dimColor.Sprint(ref.URL))
		}
	}
}

// printHistory writes one page of a query listing.
func printHistory(w io.Writer, v query.HistoryView, date func(api.QueryListItem) string) {
	if !v.HasContent() {
		fmt.Fprintln(w, dimColor.Sprint("No questions yet."))
		return
	}
	for _, item := range v.Items {
		fmt.Fprintf(w, "%s  %s  %s\n", dimColor.Sprint(date(item)), item.QueryID, item.Question)
	}
	fmt.Fprintln(w, dimColor.Sprint(v.PageLabel()))
}

// gotoPage moves h from its first page to page (1-based).
func gotoPage(ctx context.Context, h *query.History, page int) error {
	if page < 1 {
		return fmt.Errorf("page must be at least 1, got %d", page)
	}
	for i := 1; i < page; i++ {
		ok, err := h.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("page %d is past the last page (%d)", page, h.View().TotalPages)
		}
	}
	return nil
}
