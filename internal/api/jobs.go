package api

import (
	"context"
	"net/http"
	"time"
)

// Job statuses reported by the server. Completed and failed are terminal:
// no further transition occurs after either.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job is a server-owned background fetch job. The client only observes it
// through status polling.
type Job struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the job has reached a state it cannot leave.
func (j Job) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

type resyncRequest struct {
	IDs []string `json:"ids,omitempty"`
}

type resyncResponse struct {
	JobIDs []string `json:"job_ids"`
}

type jobStatusRequest struct {
	JobIDs []string `json:"job_ids"`
}

type jobStatusResponse struct {
	Jobs []Job `json:"jobs"`
}

// SubmitResync asks the server to start background fetch jobs for the given
// source ids (all sources when empty) and returns the job identifiers.
func (c *Client) SubmitResync(ctx context.Context, ids []string) ([]string, error) {
	var out resyncResponse
	if err := c.DoJSON(ctx, http.MethodPost, "/resync", resyncRequest{IDs: ids}, &out); err != nil {
		return nil, err
	}

	return out.JobIDs, nil
}

// JobStatuses queries the current status of the given jobs.
func (c *Client) JobStatuses(ctx context.Context, ids []string) ([]Job, error) {
	var out jobStatusResponse
	if err := c.DoJSON(ctx, http.MethodPost, "/jobs/status", jobStatusRequest{JobIDs: ids}, &out); err != nil {
		return nil, err
	}

	return out.Jobs, nil
}
