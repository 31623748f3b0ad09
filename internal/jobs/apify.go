package jobs

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/phone-enrich/internal/resilience"
	"github.com/sells-group/phone-enrich/pkg/apify"
)

// DefaultPagesActor is the hosted Facebook page scraper.
const DefaultPagesActor = "oJ48ceKNY7ueGPGL0"

// abortTimeout bounds the best-effort abort issued after a cancelled wait.
const abortTimeout = 10 * time.Second

// ApifyRunner executes job specs as hosted actor runs.
type ApifyRunner struct {
	client   apify.Client
	retry    resilience.RetryConfig
	pollOpts []apify.PollOption
}

// RunnerOption configures an ApifyRunner.
type RunnerOption func(*ApifyRunner)

// WithRetry sets the retry policy for API calls.
func WithRetry(cfg resilience.RetryConfig) RunnerOption {
	return func(r *ApifyRunner) {
		r.retry = cfg
	}
}

// WithPollOptions sets the options passed to apify.WaitForRun.
func WithPollOptions(opts ...apify.PollOption) RunnerOption {
	return func(r *ApifyRunner) {
		r.pollOpts = opts
	}
}

// NewApifyRunner creates a Runner backed by the given API client.
func NewApifyRunner(client apify.Client, opts ...RunnerOption) *ApifyRunner {
	r := &ApifyRunner{
		client: client,
		retry:  resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.retry.ShouldRetry = shouldRetry
	if r.retry.OnRetry == nil {
		r.retry.OnRetry = resilience.RetryLogger("apify", "actor run")
	}
	return r
}

func shouldRetry(err error) bool {
	if apify.IsUnauthorized(err) {
		return false
	}
	return apify.IsRetryable(err) || resilience.IsTransient(err)
}

// Verify checks the API token against the account endpoint.
func (r *ApifyRunner) Verify(ctx context.Context) (*Account, error) {
	user, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) (*apify.User, error) {
		return r.client.GetUser(ctx)
	})
	if err != nil {
		return nil, eris.Wrap(err, "jobs: verify credential")
	}
	return &Account{Username: user.Username, Plan: user.Plan.ID}, nil
}

// Run starts the actor, waits for a terminal status and returns the dataset
// items. A run ending in any status other than SUCCEEDED yields a *RunError.
func (r *ApifyRunner) Run(ctx context.Context, spec Spec) ([]Item, error) {
	actor := spec.Actor
	if actor == "" && spec.Kind == KindPages {
		actor = DefaultPagesActor
	}
	if actor == "" {
		return nil, eris.Errorf("jobs: no actor configured for %s job", spec.Kind)
	}

	input, err := BuildInput(spec)
	if err != nil {
		return nil, err
	}

	started, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) (*apify.Run, error) {
		return r.client.StartActor(ctx, actor, input)
	})
	if err != nil {
		return nil, eris.Wrap(err, "jobs: start run")
	}

	log := zap.L().With(zap.String("actor", actor), zap.String("run_id", started.ID))
	log.Info("actor run started", zap.Int("targets", len(spec.Targets)))

	run, err := apify.WaitForRun(ctx, r.client, started.ID, r.pollOpts...)
	if err != nil {
		if ctx.Err() != nil {
			r.abort(ctx, started.ID)
		}
		return nil, eris.Wrap(err, "jobs: wait for run")
	}

	if run.Status != apify.StatusSucceeded {
		log.Warn("actor run did not succeed",
			zap.String("status", run.Status),
			zap.String("message", run.StatusMessage),
		)
		return nil, &RunError{RunID: run.ID, Status: Status(run.Status), Message: run.StatusMessage}
	}

	datasetID := run.DefaultDatasetID
	if datasetID == "" {
		datasetID = started.DefaultDatasetID
	}
	raw, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) ([]map[string]any, error) {
		return r.client.ListDatasetItems(ctx, datasetID)
	})
	if err != nil {
		return nil, eris.Wrap(err, "jobs: list items")
	}

	items := make([]Item, len(raw))
	for i, m := range raw {
		items[i] = Item(m)
	}
	log.Info("actor run finished", zap.Int("items", len(items)))
	return items, nil
}

func (r *ApifyRunner) abort(ctx context.Context, runID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if _, err := r.client.AbortRun(ctx, runID); err != nil {
		zap.L().Warn("abort actor run failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// BuildInput translates a Spec into actor input. Page jobs submit a flat
// "pages" list; browser jobs submit "startUrls" with their user data and the
// crawl limits. PerTarget entries are merged last and win on conflict.
func BuildInput(spec Spec) (map[string]any, error) {
	input := map[string]any{}
	switch spec.Kind {
	case KindPages:
		input["pages"] = spec.URLs()
		input["language"] = "en-US"
		setPositive(input, "maxConcurrency", spec.Concurrency)
	case KindBrowser:
		start := make([]map[string]any, len(spec.Targets))
		for i, t := range spec.Targets {
			entry := map[string]any{"url": t.URL}
			if len(t.UserData) > 0 {
				entry["userData"] = t.UserData
			}
			start[i] = entry
		}
		input["startUrls"] = start
		setPositive(input, "maxConcurrency", spec.Concurrency)
		setPositive(input, "maxRequestsPerCrawl", spec.MaxRequests)
		setPositive(input, "pageLoadTimeoutSecs", spec.NavigationTimeoutSecs)
		setPositive(input, "pageFunctionTimeoutSecs", spec.ScriptTimeoutSecs)
		input["maxRequestRetries"] = spec.Retries
		input["proxyConfiguration"] = spec.Proxy
	default:
		return nil, eris.Errorf("jobs: unknown job kind %q", spec.Kind)
	}

	for k, v := range spec.PerTarget {
		input[k] = v
	}
	return input, nil
}

func setPositive(m map[string]any, key string, v int) {
	if v > 0 {
		m[key] = v
	}
}
