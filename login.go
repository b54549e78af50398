package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/maynetee/osfeed-go/internal/config"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the OSFeed service",
		Long: `Authenticate against the OSFeed service and persist the session.

The password is read from the terminal (never from flags or argv, which leak
into shell history and process listings). With --password-stdin the password
is read from standard input instead, for scripting.`,
		RunE: runLogin,
	}

	cmd.Flags().String("email", "", "account email")
	cmd.Flags().Bool("password-stdin", false, "read password from stdin")

	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	email, _ := cmd.Flags().GetString("email")
	if email == "" {
		var err error
		if email, err = promptLine("Email: "); err != nil {
			return err
		}
	}

	passwordStdin, _ := cmd.Flags().GetBool("password-stdin")

	password, err := readPassword(passwordStdin)
	if err != nil {
		return err
	}

	stack, err := newClientStack(ctx, cc)
	if err != nil {
		return err
	}

	sess, err := stack.Creds.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := stack.Store.Set(sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	// First login writes the template config so users can discover options.
	if err := config.WriteDefault(cc.Flags.ConfigPath); err != nil {
		cc.Logger.Warn("writing default config failed", "error", err.Error())
	}

	cc.Statusf("Logged in as %s\n", email)

	return nil
}

// promptLine reads one line from stdin with the given prompt.
func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// readPassword reads the password without echo when attached to a terminal,
// from stdin otherwise.
func readPassword(forceStdin bool) (string, error) {
	if !forceStdin && isatty.IsTerminal(os.Stdin.Fd()) {
		fmt.Fprint(os.Stderr, "Password: ")

		raw, err := term.ReadPassword(int(syscall.Stdin))

		fmt.Fprintln(os.Stderr)

		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		return string(raw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password from stdin: %w", err)
	}

	return strings.TrimSpace(line), nil
}
