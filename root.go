package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maynetee/osfeed-go/internal/api"
	"github.com/maynetee/osfeed-go/internal/config"
	"github.com/maynetee/osfeed-go/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// httpClientTimeout is the default timeout for HTTP requests.
// Prevents hung connections from blocking CLI commands indefinitely.
const httpClientTimeout = 30 * time.Second

// CLIFlags carries the effective persistent flag values.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext bundles what every command needs: flags, logger, and the
// loaded configuration. Stored on the cobra command context in the root
// pre-run so subcommands share one setup path.
type CLIContext struct {
	Flags  CLIFlags
	Logger *slog.Logger
	Config *config.Config
}

type cliContextKey struct{}

// mustCLIContext retrieves the CLIContext installed by the root pre-run.
// Panics on absence — that is a wiring bug, not a runtime condition.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("CLIContext missing from command context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "osfeed",
		Short:   "OSFeed client",
		Long:    "Command-line client and background daemon for the OSFeed aggregation service.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath := resolveConfigPath(flagConfigPath)

			cfg, err := config.LoadOrDefault(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cc := &CLIContext{
				Flags: CLIFlags{
					ConfigPath: cfgPath,
					JSON:       flagJSON,
					Verbose:    flagVerbose,
					Quiet:      flagQuiet,
				},
				Logger: buildLogger(cfg),
				Config: cfg,
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())

	return cmd
}

// resolveConfigPath applies the CLI > env > default precedence for the
// config file location.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if env := os.Getenv("OSFEED_CONFIG"); env != "" {
		return env
	}

	return config.DefaultConfigPath()
}

// buildLogger creates an slog.Logger configured by the loaded config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	// CLI flags override config (highest priority).
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// clientStack holds the wired coordination layer for a command invocation.
type clientStack struct {
	Store  *session.Store
	Client *api.Client
	Creds  api.Credentials
}

// newClientStack wires the session store, credential strategy, refresh
// coordinator, and API client from config, and hydrates the store. Every
// command that talks to the server goes through this.
func newClientStack(ctx context.Context, cc *CLIContext) (*clientStack, error) {
	store := session.NewStore(cc.Config.SessionPath(), cc.Logger)

	if err := store.Hydrate(ctx); err != nil {
		// A failed hydration leaves the store ready but logged out; the
		// command proceeds and fails with a clearer "not logged in" later.
		cc.Logger.Warn("session restore failed", slog.String("error", err.Error()))
	}

	httpClient := &http.Client{Timeout: httpClientTimeout}

	var creds api.Credentials

	switch cc.Config.AuthMode {
	case config.AuthModeCookie:
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}

		httpClient.Jar = jar
		creds = api.NewCookieCredentials(cc.Config.ServerURL, httpClient, cc.Logger)
	default:
		creds = api.NewBearerCredentials(cc.Config.ServerURL, httpClient, cc.Logger)
	}

	coordinator := api.NewCoordinator(store, creds, cc.Logger)
	client := api.NewClient(cc.Config.ServerURL, httpClient, store, creds, coordinator, cc.Logger)

	return &clientStack{Store: store, Client: client, Creds: creds}, nil
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
