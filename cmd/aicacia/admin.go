package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fyrsmithlabs/aicacia/internal/admin"
	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/spf13/cobra"
)

func newAdminCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Review users' questions and manage their documents",
		Long: `Administrator commands. Every command checks that the signed-in
account is an administrator before doing anything.

Examples:
  aicacia admin users
  aicacia admin queries ada@example.org --page 2
  aicacia admin docs upload ada@example.org survey.pdf notes.pdf`,
	}
	cmd.AddCommand(
		newAdminUsersCmd(opts),
		newAdminQueriesCmd(opts),
		newAdminQueryCmd(opts),
		newAdminDocsCmd(opts),
	)
	return cmd
}

// findUser returns the listed user with email.
func findUser(ctx context.Context, review *admin.Review, email string) (api.AdminUser, error) {
	if err := review.LoadUsers(ctx); err != nil {
		return api.AdminUser{}, err
	}
	for _, u := range review.View().Users {
		if u.Email == email {
			return u, nil
		}
	}
	return api.AdminUser{}, fmt.Errorf("no user with email %q", email)
}

func newAdminUsersCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.admin(ctx); err != nil {
					return err
				}
				review := a.reg.Review()
				if err := review.LoadUsers(ctx); err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, u := range review.View().Users {
					line := fmt.Sprintf("%-32s %s  %s", u.Email, dimColor.Sprint(u.UserID), admin.FormatUserDate(u.CreatedAt.Time))
					if u.IsAdmin {
						line += " " + labelColor.Sprint("admin")
					}
					fmt.Fprintln(w, line)
				}
				return nil
			})
		},
	}
}

func newAdminQueriesCmd(opts *globalOptions) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "queries <email>",
		Short: "List a user's questions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.admin(ctx); err != nil {
					return err
				}
				review := a.reg.Review()
				user, err := findUser(ctx, review, args[0])
				if err != nil {
					return err
				}
				if err := review.SelectUser(ctx, user.UserID); err != nil {
					return err
				}
				if err := gotoPage(ctx, review.History(), page); err != nil {
					return err
				}
				hv := review.View().History
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s %s\n", titleColor.Sprint(user.Email), dimColor.Sprintf("%s questions", humanize.Comma(int64(hv.TotalCount))))
				printHistory(w, hv, func(item api.QueryListItem) string {
					return humanize.Time(item.CreatedAt.Time)
				})
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page to show")
	return cmd
}

func newAdminQueryCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <email> <query-id>",
		Short: "Show one of a user's questions with the feedback given",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.admin(ctx); err != nil {
					return err
				}
				review := a.reg.Review()
				user, err := findUser(ctx, review, args[0])
				if err != nil {
					return err
				}
				if err := review.SelectUser(ctx, user.UserID); err != nil {
					return err
				}
				if err := review.SelectQuery(ctx, args[1]); err != nil {
					return err
				}
				printDetail(cmd.OutOrStdout(), review.View().Detail)
				return nil
			})
		},
	}
}

// printDetail writes a reviewed query: each answer with its
// configuration and the feedback recorded for it.
func printDetail(w io.Writer, d *admin.Detail) {
	p := d.Payload
	fmt.Fprintln(w, titleColor.Sprint("Q: ")+p.Question)
	labels := p.TabLabels()
	for i, resp := range p.Responses {
		fmt.Fprintln(w)
		if d.IsExperiment() {
			fmt.Fprintf(w, "%s  %s\n", labelColor.Sprint(labels[i]), dimColor.Sprint("configuration "+d.ConfigurationName(i)))
			for _, row := range d.ConfigurationRows(i) {
				fmt.Fprintf(w, "    %-16s %s\n", row[0], row[1])
			}
		}
		if summary := resp.SummaryText(); summary != "" {
			fmt.Fprintln(w, summary)
		}
		for r, ref := range resp.References {
			fmt.Fprintf(w, "  [%d] %s\n", r+1, ref.Title)
			if label, reason, ok := d.ReferenceFeedback(r); ok {
				line := "      feedback: " + label
				if reason != "" {
					line += " (" + reason + ")"
				}
				fmt.Fprintln(w, dimColor.Sprint(line))
			}
		}
		if !d.IsExperiment() {
			continue
		}
		lines := d.ResponseFeedback(i)
		if len(lines) == 0 {
			fmt.Fprintln(w, dimColor.Sprint("No feedback recorded."))
		}
		for _, fl := range lines {
			fmt.Fprintf(w, "%s %s\n", labelColor.Sprint(fl.Label+":"), fl.Value)
		}
	}
	if d.IsExperiment() {
		return
	}
	if label, ok := d.SummaryFeedback(); ok {
		fmt.Fprintln(w, labelColor.Sprint("Summary feedback: ")+label)
	}
	if comment := d.Comment(); comment != "" {
		fmt.Fprintln(w, labelColor.Sprint("Comment: ")+comment)
	}
}

func newAdminDocsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage a user's uploaded documents",
	}
	cmd.AddCommand(
		newAdminDocsListCmd(opts),
		newAdminDocsUploadCmd(opts),
		newAdminDocsDeleteCmd(opts),
	)
	return cmd
}

// selectDocsUser checks the caller is an administrator and loads email's
// documents and quota.
func selectDocsUser(ctx context.Context, a *app, email string) (*admin.Documents, error) {
	if err := a.admin(ctx); err != nil {
		return nil, err
	}
	docs := a.reg.Documents()
	if err := docs.SelectUser(ctx, email); err != nil {
		return nil, err
	}
	return docs, nil
}

func printQuota(w io.Writer, q *api.DocumentQuota) {
	if q == nil {
		return
	}
	fmt.Fprintf(w, "%s %d of %d documents, %d remaining\n",
		labelColor.Sprint("Quota:"), q.CurrentDocumentCount, q.MaxDocuments, q.RemainingQuota)
}

func newAdminDocsListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <email>",
		Short: "List a user's documents and quota",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				docs, err := selectDocsUser(ctx, a, args[0])
				if err != nil {
					return err
				}
				v := docs.View()
				w := cmd.OutOrStdout()
				printQuota(w, v.Quota)
				if len(v.Documents) == 0 {
					fmt.Fprintln(w, dimColor.Sprint("No documents uploaded."))
					return nil
				}
				for _, d := range v.Documents {
					fmt.Fprintf(w, "%s  %-32s %10s  %s  %s\n",
						dimColor.Sprint(d.DocID), d.Filename,
						admin.FormatFileSize(d.FileSize),
						admin.FormatDocumentDate(d.CreatedAt.Time),
						d.ProcessingStatus)
				}
				return nil
			})
		},
	}
}

func newAdminDocsUploadCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <email> <file.pdf>...",
		Short: "Upload up to five PDF files for a user",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				docs, err := selectDocsUser(ctx, a, args[0])
				if err != nil {
					return err
				}
				files := make([]admin.File, 0, len(args)-1)
				for _, p := range args[1:] {
					f, err := admin.FileFromPath(p)
					if err != nil {
						return err
					}
					files = append(files, f)
				}
				if err := docs.Select(files); err != nil {
					return err
				}
				result, err := docs.Upload(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if msg := docs.View().Message; msg != nil {
					printSuccess(w, "%s", msg.Text)
				}
				for _, d := range result.UploadedDocuments {
					fmt.Fprintf(w, "  %s  %s  %s\n", dimColor.Sprint(d.DocID), d.Filename, admin.FormatFileSize(d.FileSize))
				}
				printQuota(w, docs.View().Quota)
				return nil
			})
		},
	}
}

func newAdminDocsDeleteCmd(opts *globalOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <email> <doc-id>",
		Short: "Delete one of a user's documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				docs, err := selectDocsUser(ctx, a, args[0])
				if err != nil {
					return err
				}
				var target *api.Document
				for _, d := range docs.View().Documents {
					if d.DocID == args[1] {
						target = &d
						break
					}
				}
				if target == nil {
					return fmt.Errorf("%s has no document %q", args[0], args[1])
				}

				var confirm admin.Confirmer
				if !yes {
					confirm = confirmer(cmd)
				}
				deleted, err := docs.Delete(ctx, *target, confirm)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if !deleted {
					fmt.Fprintln(w, "Cancelled")
					return nil
				}
				if msg := docs.View().Message; msg != nil {
					printSuccess(w, "%s", msg.Text)
				}
				printQuota(w, docs.View().Quota)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking")
	return cmd
}
