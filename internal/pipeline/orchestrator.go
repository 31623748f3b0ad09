// Package pipeline runs lead tables through the scraping job in fixed-size
// batches and turns the results into per-row enrichments.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/phone-enrich/internal/jobs"
	"github.com/sells-group/phone-enrich/internal/reconcile"
)

// DefaultBatchSize is the number of rows submitted per job.
const DefaultBatchSize = 500

// Target is a row to scrape: its position in the caller's slice and the
// identifier submitted for it.
type Target struct {
	Index int
	ID    string
}

// Outcome is the result for one target. Err is set when the target's batch
// failed; otherwise Item is the reconciled item or nil when the job returned
// nothing for it.
type Outcome struct {
	Target
	Item jobs.Item
	Err  error
}

// Stats counts orchestration progress.
type Stats struct {
	Batches       int `json:"batches"`
	FailedBatches int `json:"failed_batches"`
	Processed     int `json:"processed"`
	Matched       int `json:"matched"`
	Missing       int `json:"missing"`
	Failed        int `json:"failed"`
}

// SpecFunc builds the job spec for one batch of distinct identifiers.
type SpecFunc func(ids []string) jobs.Spec

// Orchestrator submits targets to a Runner one batch at a time.
type Orchestrator struct {
	Name      string
	Runner    jobs.Runner
	BatchSize int
	Delay     time.Duration
	Fields    reconcile.Fields
	Key       func(string) string
	Spec      SpecFunc
}

// Run processes targets in consecutive batches of BatchSize. Identifiers are
// deduplicated per batch before submission. A failed job marks every target of
// its batch and the run moves on. The delay is skipped after the last batch.
// Only context cancellation stops the run early.
func (o *Orchestrator) Run(ctx context.Context, targets []Target) ([]Outcome, Stats, error) {
	size := o.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	log := zap.L().With(zap.String("pipeline", o.Name))

	var stats Stats
	out := make([]Outcome, 0, len(targets))
	total := (len(targets) + size - 1) / size

	for start := 0; start < len(targets); start += size {
		end := min(start+size, len(targets))
		batch := targets[start:end]
		stats.Batches++

		ids := make([]string, len(batch))
		for i, t := range batch {
			ids[i] = t.ID
		}
		unique := dedupe(ids)

		log.Info("submitting batch",
			zap.Int("batch", stats.Batches),
			zap.Int("of", total),
			zap.Int("rows", len(batch)),
			zap.Int("unique", len(unique)),
		)

		items, err := o.Runner.Run(ctx, o.Spec(unique))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, stats, eris.Wrap(ctxErr, "pipeline: run cancelled")
		}

		if err != nil {
			stats.FailedBatches++
			stats.Failed += len(batch)
			stats.Processed += len(batch)
			log.Warn("batch failed", zap.Int("batch", stats.Batches), zap.Error(err))
			for _, t := range batch {
				out = append(out, Outcome{Target: t, Err: err})
			}
		} else {
			matched := o.Fields.Reconcile(items, ids, o.Key)
			for i, t := range batch {
				if matched[i] == nil {
					stats.Missing++
				} else {
					stats.Matched++
				}
				out = append(out, Outcome{Target: t, Item: matched[i]})
			}
			stats.Processed += len(batch)
			log.Info("batch complete",
				zap.Int("batch", stats.Batches),
				zap.Int("items", len(items)),
				zap.Int("matched", stats.Matched),
				zap.Int("processed", stats.Processed),
			)
		}

		if end < len(targets) && o.Delay > 0 {
			timer := time.NewTimer(o.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out, stats, eris.Wrap(ctx.Err(), "pipeline: run cancelled")
			case <-timer.C:
			}
		}
	}

	log.Info("orchestration finished",
		zap.Int("batches", stats.Batches),
		zap.Int("failed_batches", stats.FailedBatches),
		zap.Int("matched", stats.Matched),
		zap.Int("missing", stats.Missing),
	)
	return out, stats, nil
}

// dedupe returns the distinct values of ids in first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
