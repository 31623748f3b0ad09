// Package browser runs the website extraction job locally: it loads each start
// URL, extracts phones, follows one contact-page link per site and emits one
// item per loaded page.
package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/phone-enrich/internal/extract"
	"github.com/sells-group/phone-enrich/internal/jobs"
	"github.com/sells-group/phone-enrich/internal/model"
	"github.com/sells-group/phone-enrich/internal/phone"
	"github.com/sells-group/phone-enrich/internal/resilience"
)

const (
	defaultNavigationTimeout = 15 * time.Second
	defaultScriptTimeout     = 30 * time.Second
)

// Engine implements jobs.Runner for browser-kind specs.
type Engine struct {
	loader    PageLoader
	validator *phone.Validator
	backoff   time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithValidator sets the validator applied to every candidate.
func WithValidator(v *phone.Validator) EngineOption {
	return func(e *Engine) {
		e.validator = v
	}
}

// WithRetryBackoff sets the pause before a page load is retried.
func WithRetryBackoff(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.backoff = d
	}
}

// NewEngine creates an Engine that loads pages with loader.
func NewEngine(loader PageLoader, opts ...EngineOption) *Engine {
	e := &Engine{
		loader:    loader,
		validator: phone.NewValidator(),
		backoff:   time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Verify always succeeds; a local engine needs no credential.
func (e *Engine) Verify(context.Context) (*jobs.Account, error) {
	return &jobs.Account{Username: "local", Plan: "browser"}, nil
}

type request struct {
	url      string
	userData map[string]string
}

func (r request) flag(key string) bool {
	return strings.EqualFold(r.userData[key], "true")
}

func (r request) original() string {
	if o := r.userData[jobs.KeyOriginalURL]; o != "" {
		return o
	}
	return r.url
}

// Run processes the spec's start URLs with at most spec.Concurrency pages in
// flight, then the contact pages they discovered. The number of pages loaded
// never exceeds spec.MaxRequests when it is set.
func (e *Engine) Run(ctx context.Context, spec jobs.Spec) ([]jobs.Item, error) {
	start := make([]request, 0, len(spec.Targets))
	for _, t := range spec.Targets {
		start = append(start, request{url: t.URL, userData: t.UserData})
	}

	budget := spec.MaxRequests
	if budget <= 0 {
		budget = len(start) * 2
	}
	if len(start) > budget {
		start = start[:budget]
	}

	items, followUps, err := e.wave(ctx, spec, start)
	if err != nil {
		return nil, err
	}

	if remaining := budget - len(start); len(followUps) > remaining {
		zap.L().Warn("contact pages dropped by request budget",
			zap.Int("discovered", len(followUps)),
			zap.Int("remaining", remaining),
		)
		followUps = followUps[:remaining]
	}
	if len(followUps) > 0 {
		more, _, err := e.wave(ctx, spec, followUps)
		if err != nil {
			return nil, err
		}
		items = append(items, more...)
	}

	zap.L().Info("browser job finished",
		zap.Int("start_urls", len(start)),
		zap.Int("contact_pages", len(followUps)),
		zap.Int("items", len(items)),
	)
	return items, nil
}

func (e *Engine) wave(ctx context.Context, spec jobs.Spec, reqs []request) ([]jobs.Item, []request, error) {
	concurrency := spec.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	items := make([]jobs.Item, len(reqs))
	var (
		mu        sync.Mutex
		followUps []request
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			item, next := e.process(gctx, spec, req)
			items[i] = item
			if next != nil {
				mu.Lock()
				followUps = append(followUps, *next)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return items, followUps, nil
}

// process loads one page with retries and applies the extraction directive.
func (e *Engine) process(ctx context.Context, spec jobs.Spec, req request) (jobs.Item, *request) {
	navTimeout := secondsOr(spec.NavigationTimeoutSecs, defaultNavigationTimeout)
	scriptTimeout := secondsOr(spec.ScriptTimeoutSecs, defaultScriptTimeout)

	retry := resilience.RetryConfig{
		MaxAttempts:    spec.Retries + 1,
		InitialBackoff: e.backoff,
		MaxBackoff:     e.backoff * 4,
		ShouldRetry:    retryableLoad,
		OnRetry:        resilience.RetryLogger("browser", "load "+req.url),
	}
	page, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*Page, error) {
		navCtx, cancel := context.WithTimeout(ctx, navTimeout)
		defer cancel()
		return e.loader.Load(navCtx, req.url)
	})
	if err != nil {
		zap.L().Debug("page failed", zap.String("url", req.url), zap.Error(err))
		return errorItem(req, err), nil
	}

	type result struct {
		phones  []string
		contact string
	}
	isContact := req.flag(jobs.KeyIsContact)
	done := make(chan result, 1)
	go func() {
		r := result{phones: extract.Phones(page.Doc, e.validator)}
		if !isContact && !req.flag(jobs.KeyIsHomepage) {
			r.contact = extract.ContactLink(page.Doc, page.URL)
		}
		done <- r
	}()

	var res result
	timer := time.NewTimer(scriptTimeout)
	defer timer.Stop()
	select {
	case res = <-done:
	case <-timer.C:
		return errorItem(req, context.DeadlineExceeded), nil
	case <-ctx.Done():
		return errorItem(req, ctx.Err()), nil
	}

	item := jobs.Item{
		"website":    req.original(),
		"contactUrl": nil,
		"phones":     nil,
		"pageType":   string(model.PageHomepage),
		"status":     string(model.StatusSuccess),
	}
	if isContact {
		item["contactUrl"] = req.url
		item["pageType"] = string(model.PageContact)
	}
	if len(res.phones) > 0 {
		item["phones"] = res.phones
	}

	var next *request
	if res.contact != "" && !strings.EqualFold(res.contact, req.url) {
		next = &request{
			url: res.contact,
			userData: map[string]string{
				jobs.KeyIsContact:   "true",
				jobs.KeyOriginalURL: req.original(),
			},
		}
	}
	return item, next
}

func errorItem(req request, err error) jobs.Item {
	return jobs.Item{
		"website":  req.original(),
		"phones":   nil,
		"pageType": string(model.PageUnknown),
		"status":   string(model.StatusError),
		"error":    err.Error(),
	}
}

func secondsOr(secs int, def time.Duration) time.Duration {
	if secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}
