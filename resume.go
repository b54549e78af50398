package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maynetee/osfeed-go/internal/config"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume background polling",
		Long: `Resume background polling after 'osfeed pause'.

A running 'osfeed watch' daemon picks up the change immediately and fires a
catch-up resync if the data has gone stale while paused.`,
		Args: cobra.NoArgs,
		RunE: runResume,
	}
}

func runResume(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfgPath := cc.Flags.ConfigPath

	if err := config.Set(cfgPath, "paused", "false"); err != nil {
		return fmt.Errorf("clearing paused flag: %w", err)
	}

	if err := config.Unset(cfgPath, "paused_until"); err != nil {
		return fmt.Errorf("clearing paused_until: %w", err)
	}

	cc.Statusf("Polling resumed\n")

	return nil
}
