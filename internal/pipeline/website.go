package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/phone-enrich/internal/ident"
	"github.com/sells-group/phone-enrich/internal/jobs"
	"github.com/sells-group/phone-enrich/internal/model"
	"github.com/sells-group/phone-enrich/internal/phone"
	"github.com/sells-group/phone-enrich/internal/probe"
	"github.com/sells-group/phone-enrich/internal/reconcile"
)

// WebsiteConfig configures the website pipeline.
type WebsiteConfig struct {
	Actor                 string
	ActorInput            map[string]any
	BatchSize             int
	BatchDelay            time.Duration
	MaxConcurrency        int
	MaxRetries            int
	PageTimeoutSecs       int
	FunctionTimeoutSecs   int
	Proxy                 jobs.ProxyProfile
	SkipKeywords          []string
	RequestsPerTargetPage int
}

// DefaultWebsiteConfig returns the batch and crawl limits used in production.
func DefaultWebsiteConfig() WebsiteConfig {
	return WebsiteConfig{
		Actor:                 "apify/puppeteer-scraper",
		BatchSize:             DefaultBatchSize,
		BatchDelay:            2 * time.Second,
		MaxConcurrency:        3,
		MaxRetries:            1,
		PageTimeoutSecs:       15,
		FunctionTimeoutSecs:   30,
		Proxy:                 jobs.ProxyProfile{UseProxy: true, Groups: []string{"SHADER"}},
		SkipKeywords:          ident.DefaultSkipKeywords,
		RequestsPerTargetPage: 2,
	}
}

// WebsitePipeline finds phones on business websites.
type WebsitePipeline struct {
	runner    jobs.Runner
	checker   probe.Checker
	validator *phone.Validator
	skip      *ident.SkipList
	cfg       WebsiteConfig
}

// NewWebsitePipeline creates a WebsitePipeline.
func NewWebsitePipeline(runner jobs.Runner, checker probe.Checker, v *phone.Validator, cfg WebsiteConfig) *WebsitePipeline {
	if v == nil {
		v = phone.NewValidator()
	}
	if cfg.RequestsPerTargetPage <= 0 {
		cfg.RequestsPerTargetPage = 2
	}
	return &WebsitePipeline{
		runner:    runner,
		checker:   checker,
		validator: v,
		skip:      ident.NewSkipList(cfg.SkipKeywords),
		cfg:       cfg,
	}
}

// Run returns a new slice with the website enrichment of every row. Blank or
// blocked websites are skipped, as are unreachable ones with the probe reason
// as their error. Skipped rows are never submitted to the scraping job.
func (p *WebsitePipeline) Run(ctx context.Context, leads []model.EnrichedLead) ([]model.EnrichedLead, Stats, error) {
	acct, err := p.runner.Verify(ctx)
	if err != nil {
		return nil, Stats{}, eris.Wrap(err, "pipeline: website credential")
	}
	zap.L().Info("scraping service credential ok", zap.String("user", acct.Username), zap.String("plan", acct.Plan))

	out := make([]model.EnrichedLead, len(leads))
	copy(out, leads)

	var candidates []Target
	var skipped int
	for i, l := range leads {
		site, ok := ident.CleanWebsite(l.Website)
		if !ok {
			skipped++
			out[i] = out[i].With(skippedEnrichment(model.ChannelWebsite, MsgNoWebsite))
			continue
		}
		if kw, blocked := p.skip.Match(site); blocked {
			skipped++
			out[i] = out[i].With(skippedEnrichment(model.ChannelWebsite, msgKeywordBlocked+kw))
			continue
		}
		candidates = append(candidates, Target{Index: i, ID: ident.WebsiteKey(site)})
	}

	reachable, unreachable, start := p.verify(ctx, candidates)
	for _, u := range unreachable {
		out[u.Index] = out[u.Index].With(model.Enrichment{
			Channel: model.ChannelWebsite,
			Status:  model.StatusSkipped,
			Error:   u.reason,
		})
	}
	zap.L().Info("websites verified",
		zap.Int("rows", len(leads)),
		zap.Int("skipped", skipped),
		zap.Int("reachable", len(reachable)),
		zap.Int("unreachable", len(unreachable)),
	)

	orch := &Orchestrator{
		Name:      "website",
		Runner:    p.runner,
		BatchSize: p.cfg.BatchSize,
		Delay:     p.cfg.BatchDelay,
		Fields:    reconcile.WebsiteFields,
		Key:       ident.WebsiteKey,
		Spec: func(ids []string) jobs.Spec {
			return p.spec(ids, start)
		},
	}
	outcomes, stats, err := orch.Run(ctx, reachable)
	for _, oc := range outcomes {
		out[oc.Index] = out[oc.Index].With(p.enrichment(oc))
	}
	return out, stats, err
}

type unreachableTarget struct {
	Target
	reason string
}

// verify probes each distinct website once and splits targets by outcome. The
// returned map gives the URL to load for each reachable identifier.
func (p *WebsitePipeline) verify(ctx context.Context, targets []Target) ([]Target, []unreachableTarget, map[string]string) {
	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	unique := dedupe(ids)

	results := make(map[string]model.ProbeResult, len(unique))
	if len(unique) > 0 {
		for i, r := range p.checker.CheckAll(ctx, unique) {
			results[unique[i]] = r
		}
	}

	start := make(map[string]string, len(unique))
	var ok []Target
	var bad []unreachableTarget
	for _, t := range targets {
		r := results[t.ID]
		if !r.Reachable {
			bad = append(bad, unreachableTarget{Target: t, reason: r.Reason})
			continue
		}
		start[t.ID] = r.FinalURL
		ok = append(ok, t)
	}
	return ok, bad, start
}

func (p *WebsitePipeline) spec(ids []string, start map[string]string) jobs.Spec {
	targets := make([]jobs.Target, len(ids))
	for i, id := range ids {
		u := start[id]
		if u == "" {
			u = ident.EnsureScheme(id)
		}
		targets[i] = jobs.Target{
			URL:      u,
			UserData: map[string]string{jobs.KeyOriginalURL: id},
		}
	}
	return jobs.Spec{
		Kind:                  jobs.KindBrowser,
		Actor:                 p.cfg.Actor,
		Targets:               targets,
		PerTarget:             p.cfg.ActorInput,
		Concurrency:           p.cfg.MaxConcurrency,
		Retries:               p.cfg.MaxRetries,
		MaxRequests:           len(ids) * p.cfg.RequestsPerTargetPage,
		NavigationTimeoutSecs: p.cfg.PageTimeoutSecs,
		ScriptTimeoutSecs:     p.cfg.FunctionTimeoutSecs,
		Proxy:                 p.cfg.Proxy,
	}
}

// enrichment maps a reconciled item onto the row. Phones are validated again;
// only canonical numbers reach the output.
func (p *WebsitePipeline) enrichment(oc Outcome) model.Enrichment {
	en := model.Enrichment{Channel: model.ChannelWebsite}
	switch {
	case oc.Err != nil:
		en.Status = model.StatusError
		en.Error = oc.Err.Error()
	case oc.Item == nil:
		en.Status = model.StatusMissing
		en.Error = MsgNoData
	default:
		en.Status = model.StatusError
		if reconcile.Field(oc.Item, "status") == string(model.StatusSuccess) {
			en.Status = model.StatusSuccess
		}
		en.Error = reconcile.Field(oc.Item, "error")
		en.Phones = p.validator.ValidateAll(reconcile.WebsiteFields.Candidates(oc.Item))
		en.ContactPageURL = reconcile.Field(oc.Item, "contactUrl")
		en.PageType = model.PageUnknown
		if pt := reconcile.Field(oc.Item, "pageType"); pt != "" {
			en.PageType = model.PageType(pt)
		}
		zap.L().Debug("website scraped",
			zap.String("website", oc.ID),
			zap.String("status", string(en.Status)),
			zap.String("page_type", string(en.PageType)),
			zap.Strings("phones", en.Phones),
		)
	}
	return en
}
