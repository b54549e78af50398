package api

import (
	"context"
	"net/http"
)

// ContentSummary is the aggregated view the dashboard reads after a resync.
// The coordination layer treats its contents as opaque; it is fetched here
// only because manual refresh ends with one summary read.
type ContentSummary struct {
	Total            int `json:"total"`
	NewSinceLastSync int `json:"new_since_last_sync"`
}

// FetchSummary reads the current content summary.
func (c *Client) FetchSummary(ctx context.Context) (*ContentSummary, error) {
	var out ContentSummary
	if err := c.DoJSON(ctx, http.MethodGet, "/content/summary", nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Logout tells the server to invalidate the session. Best-effort: the local
// session is cleared regardless of the outcome, so errors here are advisory.
func (c *Client) Logout(ctx context.Context) error {
	return c.DoJSON(ctx, http.MethodPost, "/auth/logout", nil, nil)
}
