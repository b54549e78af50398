package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the stored session",
		Long: `Invalidate the server-side session (best effort) and remove the
persisted session from disk. Safe to run when already logged out.`,
		RunE: runLogout,
	}
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	stack, err := newClientStack(ctx, cc)
	if err != nil {
		return err
	}

	if sess, _ := stack.Store.Await(ctx); sess == nil {
		cc.Statusf("Already logged out\n")
		return nil
	}

	// Server-side invalidation is advisory: the local session goes away
	// regardless, so an unreachable server cannot block logout.
	if err := stack.Client.Logout(ctx); err != nil {
		cc.Logger.Warn("server-side logout failed", "error", err.Error())
	}

	if err := stack.Store.Clear(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}

	cc.Statusf("Logged out\n")

	return nil
}
