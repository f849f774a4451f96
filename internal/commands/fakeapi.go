package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tradesense/tradesense-go/logger"
	"github.com/tradesense/tradesense-go/testing/fakeapi"
)

// NewFakeAPICommand creates the fake-api command, a local backend for
// trying the client without a TradeSense deployment.
func NewFakeAPICommand(global *GlobalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:    "fake-api",
		Short:  "Serve an in-memory TradeSense API for local testing",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := global.LogLevel
			if level == "" {
				level = "info"
			}
			log := logger.NewWithWriter(cmd.ErrOrStderr(), level, true)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return fakeapi.New(log).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:5000", "Listen address")
	return cmd
}
