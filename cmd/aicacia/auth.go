package main

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/aicacia/internal/session"
	"github.com/spf13/cobra"
)

// promptMissing asks for whichever credential was not given as a flag.
func promptMissing(cmd *cobra.Command, creds *session.Credentials) error {
	var err error
	if creds.Email == "" {
		if creds.Email, err = readLine(cmd, "Email: "); err != nil {
			return err
		}
	}
	if creds.Password == "" {
		if creds.Password, err = readLine(cmd, "Password: "); err != nil {
			return err
		}
	}
	return nil
}

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var creds session.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Long: `Sign in with an email and password. The token is stored in the
token file (token.path) and reused by later commands.

Examples:
  # Prompt for the password
  aicacia login --email ada@example.org`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := promptMissing(cmd, &creds); err != nil {
					return err
				}
				sess := a.reg.Session()
				if err := sess.Login(ctx, creds); err != nil {
					return err
				}
				snap := sess.Snapshot()
				if snap.User == nil {
					return errNotLoggedIn
				}
				printSuccess(cmd.OutOrStdout(), "Signed in as %s", snap.User.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&creds.Email, "email", "", "account email (prompted when omitted)")
	cmd.Flags().StringVar(&creds.Password, "password", "", "account password (prompted when omitted)")
	return cmd
}

func newRegisterCmd(opts *globalOptions) *cobra.Command {
	var creds session.Credentials
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := promptMissing(cmd, &creds); err != nil {
					return err
				}
				if err := a.reg.Session().Register(ctx, creds); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "%s", session.RegisteredMessage)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&creds.Email, "email", "", "account email (prompted when omitted)")
	cmd.Flags().StringVar(&creds.Password, "password", "", "account password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				a.reg.Session().Logout(ctx)
				printSuccess(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

func newWhoamiCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				snap, err := a.verified(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Email:  "), snap.User.Email)
				fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("User id:"), snap.User.UserID)
				if snap.User.IsAdmin {
					fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Role:   "), "administrator")
				}
				fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Backend:"), a.reg.Client().BaseURL())
				return nil
			})
		},
	}
}
