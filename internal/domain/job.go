package domain

import "time"

// JobStatus is the state of a validation job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// ValidationJob tracks one validation pass over a tenant's pending claims.
type ValidationJob struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenantId"`
	Status   JobStatus `json:"status"`

	// Pass counters
	ClaimsSelected     int `json:"claimsSelected"`
	ClaimsValidated    int `json:"claimsValidated"`
	ClaimsNotValidated int `json:"claimsNotValidated"`

	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Done reports whether the job reached a terminal state.
func (j *ValidationJob) Done() bool {
	return j.Status == JobSucceeded || j.Status == JobFailed
}

// ValidationRequest is the event bus payload asking for a validation pass.
type ValidationRequest struct {
	JobID    string `json:"jobId"`
	TenantID string `json:"tenantId"`
	TraceID  string `json:"traceId,omitempty"`
}
