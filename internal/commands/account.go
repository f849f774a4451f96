package commands

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"
)

// NewLogoutCommand creates the logout command
func NewLogoutCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the saved tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, global, func(ctx context.Context, s *session, out io.Writer) error {
				if err := s.client.Auth.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Logged out")
				return nil
			})
		},
	}
}

// NewWhoamiCommand creates the whoami command
func NewWhoamiCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, global, func(ctx context.Context, s *session, out io.Writer) error {
				if !s.client.IsAuthenticated() {
					return fmt.Errorf("not logged in. %s", reloginHint)
				}
				user, err := s.client.Auth.Me(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s <%s> role=%s verified=%t\n", user.Username, user.Email, user.Role, user.IsVerified)
				return nil
			})
		},
	}
}

// StatusOptions holds options for the status command
type StatusOptions struct {
	Check bool
}

// NewStatusCommand creates the status command
func NewStatusCommand(global *GlobalOptions) *cobra.Command {
	opts := &StatusOptions{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show local session state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, global, func(ctx context.Context, s *session, out io.Writer) error {
				loggedIn := "no"
				if s.client.IsAuthenticated() {
					loggedIn = "yes"
				}
				fmt.Fprintf(out, "API:           %s\n", s.cfg.API.BaseURL)
				fmt.Fprintf(out, "Session store: %s\n", s.storeDesc)
				fmt.Fprintf(out, "Logged in:     %s\n", loggedIn)
				fmt.Fprintf(out, "Refresh state: %s\n", s.client.RefreshState())
				if !opts.Check {
					return nil
				}
				status, err := s.client.Health.Check(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "API health:    %s\n", status.Status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Check, "check", false, "Also call the health endpoint")
	return cmd
}

// NewHealthCommand creates the health command
func NewHealthCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the API health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, global, func(ctx context.Context, s *session, out io.Writer) error {
				status, err := s.client.Health.Check(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "status=%s version=%s\n", status.Status, status.Version)
				for _, name := range slices.Sorted(maps.Keys(status.Services)) {
					fmt.Fprintf(out, "  %s: %s\n", name, status.Services[name])
				}
				return nil
			})
		},
	}
}
