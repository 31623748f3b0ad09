package model

import "time"

// RunStatus represents the current state of an enrichment run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one invocation of a pipeline over an input table.
type Run struct {
	ID          string     `json:"id"`
	Pipeline    string     `json:"pipeline"`
	Input       string     `json:"input"`
	Status      RunStatus  `json:"status"`
	Result      *RunResult `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunResult holds the final counts of a run.
type RunResult struct {
	Rows        int            `json:"rows"`
	Batches     int            `json:"batches"`
	Resolved    int            `json:"resolved"`
	FollowUp    int            `json:"follow_up"`
	PhonesFound int            `json:"phones_found"`
	Statuses    map[Status]int `json:"statuses,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// ProbeResult is the outcome of a website reachability check.
type ProbeResult struct {
	URL       string    `json:"url"`
	Reachable bool      `json:"reachable"`
	FinalURL  string    `json:"final_url,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}
