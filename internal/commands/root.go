// Package commands implements the tradesense CLI.
package commands

import (
	"github.com/spf13/cobra"
)

// GlobalOptions are the flags shared by every command
type GlobalOptions struct {
	ConfigFile string
	BaseURL    string
	LogLevel   string
}

// NewRootCommand assembles the CLI
func NewRootCommand(version string) *cobra.Command {
	opts := &GlobalOptions{}

	root := &cobra.Command{
		Use:   "tradesense",
		Short: "TradeSense API client",
		Long: `Command line client for the TradeSense API.

Sessions are kept in the configured session store, so a login survives
between invocations. Expired access tokens are renewed automatically.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "config.yaml", "Config file")
	root.PersistentFlags().StringVar(&opts.BaseURL, "base-url", "", "Override api.baseurl")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Override log.level")

	root.AddCommand(
		NewLoginCommand(opts),
		NewLogoutCommand(opts),
		NewWhoamiCommand(opts),
		NewStatusCommand(opts),
		NewHealthCommand(opts),
		NewFakeAPICommand(opts),
		NewVersionCommand(version),
	)
	return root
}
