package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maynetee/osfeed-go/internal/session"
	"github.com/maynetee/osfeed-go/internal/statedb"
)

// Session state strings for status reporting.
const (
	sessionStateMissing = "logged out"
	sessionStateExpired = "refresh expired"
	sessionStateValid   = "logged in"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session and freshness status",
		Long: `Display the session state, data staleness, and recent resync history.

Reads only local state — no network calls.`,
		RunE: runStatus,
	}
}

// statusReport is the JSON shape of the status output.
type statusReport struct {
	Session      string         `json:"session"`
	AuthMode     string         `json:"auth_mode"`
	Paused       bool           `json:"paused"`
	LastSuccess  *time.Time     `json:"last_success,omitempty"`
	NewItems     int            `json:"new_items"`
	RecentCycles []statusCycles `json:"recent_cycles,omitempty"`
}

type statusCycles struct {
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
	NewItems   int       `json:"new_items"`
	Trigger    string    `json:"trigger"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	store := session.NewStore(cc.Config.SessionPath(), cc.Logger)
	if err := store.Hydrate(ctx); err != nil {
		cc.Logger.Warn("session restore failed", "error", err.Error())
	}

	report := statusReport{
		Session:  sessionState(store.Current()),
		AuthMode: cc.Config.AuthMode,
		Paused:   cc.Config.EffectivePaused(time.Now()),
	}

	db, err := statedb.Open(ctx, cc.Config.StateDBPath(), cc.Logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if last, lastErr := db.LastSuccess(ctx); lastErr == nil && !last.IsZero() {
		report.LastSuccess = &last
	}

	if n, nErr := db.NewItems(ctx); nErr == nil {
		report.NewItems = n
	}

	history, err := db.History(ctx)
	if err != nil {
		return err
	}

	for _, rec := range history {
		report.RecentCycles = append(report.RecentCycles, statusCycles{
			FinishedAt: rec.FinishedAt,
			Outcome:    rec.Outcome,
			NewItems:   rec.NewItems,
			Trigger:    rec.Trigger,
		})
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(report)
	}

	printStatusText(report)

	return nil
}

// sessionState maps the current session to a display string.
func sessionState(sess *session.Session) string {
	switch {
	case sess == nil:
		return sessionStateMissing
	case sess.RefreshExpired(time.Now()):
		return sessionStateExpired
	default:
		return sessionStateValid
	}
}

func printStatusText(report statusReport) {
	fmt.Printf("Session:   %s (%s mode)\n", colorize(report.Session, report.Session == sessionStateValid), report.AuthMode)

	if report.Paused {
		fmt.Println("Polling:   paused")
	} else {
		fmt.Println("Polling:   active")
	}

	if report.LastSuccess != nil {
		fmt.Printf("Last sync: %s (%s ago)\n",
			formatTime(*report.LastSuccess),
			time.Since(*report.LastSuccess).Round(time.Second),
		)
	} else {
		fmt.Println("Last sync: never")
	}

	fmt.Printf("New items: %d\n", report.NewItems)

	if len(report.RecentCycles) == 0 {
		return
	}

	fmt.Println()

	headers := []string{"FINISHED", "OUTCOME", "NEW", "TRIGGER"}
	rows := make([][]string, 0, len(report.RecentCycles))

	for _, c := range report.RecentCycles {
		rows = append(rows, []string{
			formatTime(c.FinishedAt),
			c.Outcome,
			fmt.Sprintf("%d", c.NewItems),
			c.Trigger,
		})
	}

	printTable(os.Stdout, headers, rows)
}
