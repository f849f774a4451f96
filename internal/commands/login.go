package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tradesense/tradesense-go/api"
)

// LoginOptions holds options for the login command
type LoginOptions struct {
	Email    string
	Password string
}

// NewLoginCommand creates the login command
func NewLoginCommand(global *GlobalOptions) *cobra.Command {
	opts := &LoginOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session",
		Example: `  # Prompt for the password on stdin
  tradesense login --email trader@example.com

  # Non-interactive
  echo "$PASSWORD" | tradesense login --email trader@example.com`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Password == "" {
				password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				opts.Password = password
			}
			return withSession(cmd, global, func(ctx context.Context, s *session, out io.Writer) error {
				return runLogin(ctx, s, opts, out)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "Account password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func runLogin(ctx context.Context, s *session, opts *LoginOptions, out io.Writer) error {
	sess, err := s.client.Auth.Login(ctx, api.LoginRequest{Email: opts.Email, Password: opts.Password})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged in as %s (%s)\n", sess.User.Username, sess.User.Email)
	return nil
}

func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
