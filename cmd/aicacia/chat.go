package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/chat"
	"github.com/spf13/cobra"
)

func newChatCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Converse with the assistant",
		Long: `Send messages and manage conversation threads.

Examples:
  # Start a new conversation
  aicacia chat send "What is assisted natural regeneration?"

  # Continue one
  aicacia chat send --thread t-12 "How long does it take?"

  # Rate the latest reply
  aicacia chat rate t-12 up`,
	}
	cmd.AddCommand(
		newChatSendCmd(opts),
		newChatThreadsCmd(opts),
		newChatShowCmd(opts),
		newChatRateCmd(opts),
		newChatDeleteCmd(opts),
	)
	return cmd
}

func newChatSendCmd(opts *globalOptions) *cobra.Command {
	var threadID string
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.verified(ctx); err != nil {
					return err
				}
				wf := a.reg.Chat()
				if threadID != "" {
					if err := wf.SelectThread(ctx, threadID); err != nil {
						return err
					}
				}
				if err := wf.Send(ctx, strings.Join(args, " ")); err != nil {
					return err
				}
				v := wf.View()
				w := cmd.OutOrStdout()
				if i, ok := lastReply(v.Messages); ok {
					printMessage(w, v.Messages[i], v)
				}
				fmt.Fprintln(w, dimColor.Sprint("thread id: "+v.ThreadID))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "continue this thread instead of starting a new one")
	return cmd
}

func newChatThreadsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List your conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.verified(ctx); err != nil {
					return err
				}
				wf := a.reg.Chat()
				if err := wf.ReloadThreads(ctx); err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				threads := wf.View().Threads
				if len(threads) == 0 {
					fmt.Fprintln(w, dimColor.Sprint("No conversations yet"))
					return nil
				}
				now := time.Now()
				for _, t := range threads {
					fmt.Fprintf(w, "%s  %s\n", labelColor.Sprint(t.ThreadID), t.LastMessage)
					fmt.Fprintf(w, "    %s\n", dimColor.Sprint(chat.FormatThreadDate(t.LastMessageTime.Time, now)+" · "+chat.FormatMessageCount(t.MessageCount)))
				}
				return nil
			})
		},
	}
}

func newChatShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <thread-id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.verified(ctx); err != nil {
					return err
				}
				wf := a.reg.Chat()
				if err := wf.SelectThread(ctx, args[0]); err != nil {
					return err
				}
				v := wf.View()
				for _, msg := range v.Messages {
					printMessage(cmd.OutOrStdout(), msg, v)
				}
				return nil
			})
		},
	}
}

func newChatRateCmd(opts *globalOptions) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "rate <thread-id> up|down",
		Short: "Rate the latest reply of a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reaction chat.Reaction
			switch args[1] {
			case "up":
				reaction = chat.ThumbsUp
			case "down":
				reaction = chat.ThumbsDown
			default:
				return reportError(cmd, fmt.Errorf("rating must be up or down, got %q", args[1]))
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.verified(ctx); err != nil {
					return err
				}
				wf := a.reg.Chat()
				if err := wf.SelectThread(ctx, args[0]); err != nil {
					return err
				}
				i, ok := lastReply(wf.View().Messages)
				if !ok {
					return chat.ErrNoMessageID
				}
				if err := wf.Feedback(ctx, i, reaction, comment); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Rated the latest reply %s", reaction)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "optional comment sent with the rating")
	return cmd
}

func newChatDeleteCmd(opts *globalOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.verified(ctx); err != nil {
					return err
				}
				var confirm chat.Confirmer
				if !yes {
					confirm = confirmer(cmd)
				}
				deleted, err := a.reg.Chat().DeleteThread(ctx, args[0], confirm)
				if err != nil {
					return err
				}
				if !deleted {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
					return nil
				}
				printSuccess(cmd.OutOrStdout(), "Conversation deleted")
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking")
	return cmd
}

// lastReply returns the index of the newest agent message.
func lastReply(messages []api.ChatMessage) (int, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].MessageFrom == api.FromAgent {
			return i, true
		}
	}
	return 0, false
}

func printMessage(w io.Writer, msg api.ChatMessage, v chat.View) {
	if msg.MessageFrom == api.FromUser {
		fmt.Fprintln(w, titleColor.Sprint("you › ")+msg.Message)
		return
	}
	fmt.Fprintln(w, labelColor.Sprint("aicacia › ")+msg.Message)
	for i, ref := range msg.References {
		fmt.Fprintln(w, dimColor.Sprintf("    [%d] %s", i+1, ref.Title))
	}
	if r, ok := v.Reaction(msg.MessageID); ok {
		fmt.Fprintln(w, dimColor.Sprint("    rated "+r.String()))
	}
}
