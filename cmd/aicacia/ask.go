package main

import (
	"context"
	"strings"

	"github.com/fyrsmithlabs/aicacia/internal/admin"
	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/spf13/cobra"
)

func newAskCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question and print every answer",
		Long: `Ask a question. When the backend runs an experiment, each
configuration's answer is printed under its own heading.

Examples:
  aicacia ask "Which grasses stabilise coastal dunes?"
  aicacia ask how do I restore a peat bog`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.verified(ctx); err != nil {
					return err
				}
				wf := a.reg.Query()
				if err := wf.Ask(ctx, strings.Join(args, " ")); err != nil {
					return err
				}
				printAnswer(cmd.OutOrStdout(), wf.View().Payload)
				return nil
			})
		},
	}
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your past questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.verified(ctx); err != nil {
					return err
				}
				h := a.reg.History()
				if err := h.Reload(ctx); err != nil {
					return err
				}
				if err := gotoPage(ctx, h, page); err != nil {
					return err
				}
				printHistory(cmd.OutOrStdout(), h.View(), func(item api.QueryListItem) string {
					return admin.FormatUserDate(item.CreatedAt.Time)
				})
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page to show")
	cmd.AddCommand(newHistoryShowCmd(opts))
	return cmd
}

func newHistoryShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <query-id>",
		Short: "Print a past question with its answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.verified(ctx); err != nil {
					return err
				}
				wf := a.reg.Query()
				if err := wf.Load(ctx, args[0]); err != nil {
					return err
				}
				v := wf.View()
				w := cmd.OutOrStdout()
				printAnswer(w, v.Payload)
				if v.Submitted {
					printSuccess(w, "Feedback submitted")
				}
				return nil
			})
		},
	}
}
