package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/phone-enrich/internal/ident"
	"github.com/sells-group/phone-enrich/internal/jobs"
	"github.com/sells-group/phone-enrich/internal/model"
	"github.com/sells-group/phone-enrich/internal/phone"
	"github.com/sells-group/phone-enrich/internal/reconcile"
)

// Row-level messages.
const (
	MsgNoData          = "No data returned"
	MsgPersonalProfile = "Skipped - personal profile URL"
	MsgNotFacebook     = "Skipped - not a Facebook URL"
	MsgNoFacebook      = "Skipped - no Facebook URL"
	MsgNoWebsite       = "Skipped - no website"
	msgKeywordBlocked  = "Skipped - keyword blocked: "
)

// FacebookConfig configures the Facebook page pipeline.
type FacebookConfig struct {
	Actor       string
	Language    string
	BatchSize   int
	BatchDelay  time.Duration
	Concurrency int
}

// FacebookPipeline finds phones on Facebook business pages.
type FacebookPipeline struct {
	runner    jobs.Runner
	validator *phone.Validator
	cfg       FacebookConfig
}

// NewFacebookPipeline creates a FacebookPipeline.
func NewFacebookPipeline(runner jobs.Runner, v *phone.Validator, cfg FacebookConfig) *FacebookPipeline {
	if v == nil {
		v = phone.NewValidator()
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	return &FacebookPipeline{runner: runner, validator: v, cfg: cfg}
}

// Run returns a new slice with the Facebook enrichment of every row. Rows
// without a Facebook value are marked skipped. The credential is
// verified before any batch is submitted; a failure there is the only error
// that aborts the run besides cancellation.
func (p *FacebookPipeline) Run(ctx context.Context, leads []model.EnrichedLead) ([]model.EnrichedLead, Stats, error) {
	acct, err := p.runner.Verify(ctx)
	if err != nil {
		return nil, Stats{}, eris.Wrap(err, "pipeline: facebook credential")
	}
	zap.L().Info("scraping service credential ok", zap.String("user", acct.Username), zap.String("plan", acct.Plan))

	out := make([]model.EnrichedLead, len(leads))
	copy(out, leads)

	var targets []Target
	var skipped int
	for i, l := range leads {
		cleaned, err := ident.CleanFacebook(l.Facebook)
		switch {
		case err == nil:
			targets = append(targets, Target{Index: i, ID: cleaned})
		case errors.Is(err, ident.ErrEmpty):
			skipped++
			out[i] = out[i].With(skippedEnrichment(model.ChannelFacebook, MsgNoFacebook))
		case errors.Is(err, ident.ErrPersonalProfile):
			skipped++
			out[i] = out[i].With(skippedEnrichment(model.ChannelFacebook, MsgPersonalProfile))
		default:
			skipped++
			out[i] = out[i].With(skippedEnrichment(model.ChannelFacebook, MsgNotFacebook))
		}
	}
	zap.L().Info("facebook identifiers cleaned",
		zap.Int("rows", len(leads)),
		zap.Int("valid", len(targets)),
		zap.Int("skipped", skipped),
	)

	orch := &Orchestrator{
		Name:      "facebook",
		Runner:    p.runner,
		BatchSize: p.cfg.BatchSize,
		Delay:     p.cfg.BatchDelay,
		Fields:    reconcile.FacebookFields,
		Key:       ident.FacebookKey,
		Spec:      p.spec,
	}
	outcomes, stats, err := orch.Run(ctx, targets)
	for _, oc := range outcomes {
		out[oc.Index] = out[oc.Index].With(p.enrichment(oc))
	}
	return out, stats, err
}

func (p *FacebookPipeline) spec(ids []string) jobs.Spec {
	targets := make([]jobs.Target, len(ids))
	for i, id := range ids {
		targets[i] = jobs.Target{URL: id}
	}
	return jobs.Spec{
		Kind:        jobs.KindPages,
		Actor:       p.cfg.Actor,
		Targets:     targets,
		Concurrency: p.cfg.Concurrency,
		PerTarget:   map[string]any{"language": p.cfg.Language},
	}
}

// enrichment reads the highest-priority phone field and validates it.
func (p *FacebookPipeline) enrichment(oc Outcome) model.Enrichment {
	en := model.Enrichment{Channel: model.ChannelFacebook}
	switch {
	case oc.Err != nil:
		en.Status = model.StatusError
		en.Error = oc.Err.Error()
	case oc.Item == nil:
		en.Status = model.StatusMissing
		en.Error = MsgNoData
	default:
		en.Status = model.StatusSuccess
		raw := reconcile.FacebookFields.FirstCandidate(oc.Item)
		if ph, ok := p.validator.Validate(raw); ok {
			en.Phones = []string{ph}
		}
		zap.L().Debug("facebook page scraped",
			zap.String("url", oc.ID),
			zap.String("raw_phone", raw),
			zap.Strings("phones", en.Phones),
		)
	}
	return en
}

func skippedEnrichment(c model.Channel, reason string) model.Enrichment {
	return model.Enrichment{Channel: c, Status: model.StatusSkipped, Error: reason}
}
