// Package jobs defines the contract with the headless-browser scraping service:
// a job specification goes in, a list of opaque result items comes out.
package jobs

import (
	"context"
	"fmt"
)

// Item is one result record produced by a scraping job. Its keys depend on the
// scraper; read it through the accessors in package reconcile.
type Item map[string]any

// Kind selects how a Spec is turned into scraper input.
type Kind string

const (
	// KindPages submits a flat list of page URLs (Facebook page scraper).
	KindPages Kind = "pages"
	// KindBrowser submits start URLs to the browser extraction job.
	KindBrowser Kind = "browser"
)

// User data keys understood by browser jobs.
const (
	KeyOriginalURL = "originalUrl"
	KeyIsContact   = "isContact"
	KeyIsHomepage  = "isHomepage"
)

// Target is one URL submitted to a job, with the user data that travels with
// its requests.
type Target struct {
	URL      string            `json:"url"`
	UserData map[string]string `json:"userData,omitempty"`
}

// ProxyProfile names the proxy pool used by the job.
type ProxyProfile struct {
	UseProxy bool     `json:"useApifyProxy"`
	Groups   []string `json:"apifyProxyGroups,omitempty"`
	URL      string   `json:"-"`
}

// Spec is a scraping job specification.
type Spec struct {
	Kind    Kind
	Actor   string
	Targets []Target

	// PerTarget carries scraper-specific options, e.g. {"language": "en-US"}.
	PerTarget map[string]any

	Concurrency           int
	Retries               int
	MaxRequests           int
	NavigationTimeoutSecs int
	ScriptTimeoutSecs     int
	Proxy                 ProxyProfile
}

// URLs returns the target URLs in submission order.
func (s Spec) URLs() []string {
	out := make([]string, len(s.Targets))
	for i, t := range s.Targets {
		out[i] = t.URL
	}
	return out
}

// Status is a scraping run status.
type Status string

const (
	StatusReady     Status = "READY"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusTimingOut Status = "TIMING-OUT"
	StatusTimedOut  Status = "TIMED-OUT"
	StatusAborting  Status = "ABORTING"
	StatusAborted   Status = "ABORTED"
)

// Terminal reports whether no further status change will happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusAborted:
		return true
	}
	return false
}

// RunError reports a job that reached a terminal non-success status.
type RunError struct {
	RunID   string
	Status  Status
	Message string
}

func (e *RunError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "No error details"
	}
	return fmt.Sprintf("Actor run %s: %s", e.Status, msg)
}

// Account describes the credential owner.
type Account struct {
	Username string
	Plan     string
}

// Runner executes a job to a terminal state.
type Runner interface {
	// Verify checks the service credential. Any error is fatal for the run.
	Verify(ctx context.Context) (*Account, error)
	// Run submits spec, blocks until the job is terminal and returns its items.
	Run(ctx context.Context, spec Spec) ([]Item, error)
}
