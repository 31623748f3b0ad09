package pipeline

import (
	"context"
	"sync"

	"github.com/sells-group/phone-enrich/internal/jobs"
	"github.com/sells-group/phone-enrich/internal/model"
)

// fakeRunner records submitted specs and answers each with runFn.
type fakeRunner struct {
	mu        sync.Mutex
	specs     []jobs.Spec
	verifyErr error
	runFn     func(n int, spec jobs.Spec) ([]jobs.Item, error)
}

func (f *fakeRunner) Verify(context.Context) (*jobs.Account, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &jobs.Account{Username: "tester", Plan: "FREE"}, nil
}

func (f *fakeRunner) Run(_ context.Context, spec jobs.Spec) ([]jobs.Item, error) {
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	n := len(f.specs)
	f.mu.Unlock()
	if f.runFn == nil {
		return nil, nil
	}
	return f.runFn(n, spec)
}

func (f *fakeRunner) submitted() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.specs))
	for i, s := range f.specs {
		out[i] = s.URLs()
	}
	return out
}

// fakeChecker returns canned probe results; unknown URLs are unreachable.
type fakeChecker struct {
	mu      sync.Mutex
	results map[string]model.ProbeResult
	checked []string
}

func (f *fakeChecker) Check(_ context.Context, raw string) model.ProbeResult {
	f.mu.Lock()
	f.checked = append(f.checked, raw)
	f.mu.Unlock()
	if r, ok := f.results[raw]; ok {
		return r
	}
	return model.ProbeResult{URL: raw, Reason: "Connection Failed"}
}

func (f *fakeChecker) CheckAll(ctx context.Context, urls []string) []model.ProbeResult {
	out := make([]model.ProbeResult, len(urls))
	for i, u := range urls {
		out[i] = f.Check(ctx, u)
	}
	return out
}

func leadsOf(facebook, website []string) []model.EnrichedLead {
	n := max(len(facebook), len(website))
	leads := make([]model.Lead, n)
	for i := range leads {
		leads[i].Row = i
		if i < len(facebook) {
			leads[i].Facebook = facebook[i]
		}
		if i < len(website) {
			leads[i].Website = website[i]
		}
	}
	return model.Enrich(leads)
}
