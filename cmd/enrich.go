package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/phone-enrich/internal/model"
	"github.com/sells-group/phone-enrich/internal/partition"
	"github.com/sells-group/phone-enrich/internal/pipeline"
	"github.com/sells-group/phone-enrich/internal/store"
	"github.com/sells-group/phone-enrich/internal/table"
)

// channelPipeline enriches every row of a table for one channel.
type channelPipeline interface {
	Run(ctx context.Context, leads []model.EnrichedLead) ([]model.EnrichedLead, pipeline.Stats, error)
}

type channelStep struct {
	Channel  model.Channel
	Pipeline channelPipeline
}

// enrichJob loads a lead table, runs each step over it, partitions the result
// and writes the output tables.
type enrichJob struct {
	Name     string
	Input    string
	Resolved string
	FollowUp string
	Enriched string // optional
	Columns  table.Columns
	Steps    []channelStep
	Policy   partition.Policy
	Store    store.Store // optional
}

func (j *enrichJob) Run(ctx context.Context) (*model.RunResult, error) {
	tbl, err := table.Load(j.Input, j.Columns)
	if err != nil {
		return nil, err
	}
	for _, s := range j.Steps {
		if err := tbl.Require(j.column(s.Channel)); err != nil {
			return nil, err
		}
	}

	var run *model.Run
	if j.Store != nil {
		run, err = j.Store.CreateRun(ctx, j.Name, j.Input)
		if err != nil {
			return nil, eris.Wrap(err, "create run")
		}
	}

	result, err := j.enrich(ctx, tbl)
	if run != nil {
		status := model.RunStatusComplete
		if err != nil {
			status = model.RunStatusFailed
			result.Error = err.Error()
		}
		// Record the outcome even when ctx was cancelled.
		if cerr := j.Store.CompleteRun(context.WithoutCancel(ctx), run.ID, status, result); cerr != nil {
			zap.L().Error("failed to record run", zap.String("run_id", run.ID), zap.Error(cerr))
		}
	}
	return result, err
}

func (j *enrichJob) enrich(ctx context.Context, tbl *table.Table) (*model.RunResult, error) {
	result := &model.RunResult{Rows: len(tbl.Leads), Statuses: make(map[model.Status]int)}

	leads := model.Enrich(tbl.Leads)
	channels := make([]model.Channel, 0, len(j.Steps))
	for _, s := range j.Steps {
		start := time.Now()
		out, stats, err := s.Pipeline.Run(ctx, leads)
		result.Batches += stats.Batches
		if err != nil {
			return result, eris.Wrapf(err, "%s pipeline", s.Channel)
		}
		leads = out
		channels = append(channels, s.Channel)
		zap.L().Info("channel complete",
			zap.String("channel", string(s.Channel)),
			zap.Int("batches", stats.Batches),
			zap.Int("failed_batches", stats.FailedBatches),
			zap.Int("matched", stats.Matched),
			zap.Int("missing", stats.Missing),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	policy := j.Policy
	policy.Channels = channels
	parts := partition.Partition(leads, policy)
	result.Resolved = len(parts.Resolved)
	result.FollowUp = len(parts.FollowUp)
	for _, l := range leads {
		for _, c := range channels {
			en := l.Enrichment(c)
			if en.Attempted() {
				result.Statuses[en.Status]++
			}
			result.PhonesFound += len(en.Phones)
		}
	}

	header := table.Header(tbl.Header, channels...)
	outputs := []struct {
		path  string
		leads []model.EnrichedLead
	}{
		{j.Resolved, parts.Resolved},
		{j.FollowUp, parts.FollowUp},
		{j.Enriched, leads},
	}
	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		if err := table.Save(o.path, header, table.Rows(header, o.leads)); err != nil {
			return result, err
		}
	}

	zap.L().Info("enrichment complete",
		zap.String("pipeline", j.Name),
		zap.Int("rows", result.Rows),
		zap.Int("resolved", result.Resolved),
		zap.Int("follow_up", result.FollowUp),
		zap.Int("phones_found", result.PhonesFound),
		zap.String("statuses", formatStatuses(result.Statuses)),
	)
	return result, nil
}

func (j *enrichJob) column(c model.Channel) string {
	if c == model.ChannelFacebook {
		return j.Columns.Facebook
	}
	return j.Columns.Website
}

// -- facebook / website / enrich --

var facebookCmd = newEnrichCmd("facebook", "Find phones on Facebook business pages")

var websiteCmd = newEnrichCmd("website", "Find phones on business websites")

var enrichCmd = newEnrichCmd("enrich", "Run the Facebook and website pipelines on one table")

func newEnrichCmd(mode, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   mode,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := initEnv(ctx, cfg, mode)
			if err != nil {
				return err
			}
			defer env.Close()

			job, err := newEnrichJob(cmd, mode, env)
			if err != nil {
				return err
			}
			_, err = job.Run(ctx)
			return err
		},
	}
	cmd.Flags().String("input", "", "input table (.csv or .xlsx)")
	cmd.Flags().String("resolved", "", "output table for rows with a unique phone")
	cmd.Flags().String("follow-up", "", "output table for rows that need follow-up")
	cmd.Flags().String("enriched", "", "optional output table with every row")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("resolved")
	_ = cmd.MarkFlagRequired("follow-up")
	return cmd
}

func newEnrichJob(cmd *cobra.Command, mode string, env *enrichEnv) (*enrichJob, error) {
	input, _ := cmd.Flags().GetString("input")
	resolved, _ := cmd.Flags().GetString("resolved")
	followUp, _ := cmd.Flags().GetString("follow-up")
	enriched, _ := cmd.Flags().GetString("enriched")

	job := &enrichJob{
		Name:     mode,
		Input:    input,
		Resolved: resolved,
		FollowUp: followUp,
		Enriched: enriched,
		Columns:  table.Columns{Facebook: cfg.Columns.Facebook, Website: cfg.Columns.Website},
		Store:    env.Store,
	}
	switch mode {
	case "facebook":
		job.Steps = []channelStep{{model.ChannelFacebook, env.Facebook}}
	case "website":
		job.Steps = []channelStep{{model.ChannelWebsite, env.Website}}
	case "enrich":
		job.Steps = []channelStep{
			{model.ChannelFacebook, env.Facebook},
			{model.ChannelWebsite, env.Website},
		}
		job.Policy.CrossChannel = cfg.Partition.CrossChannelDuplicates
	default:
		return nil, eris.Errorf("unknown mode %q", mode)
	}
	return job, nil
}

func init() {
	rootCmd.AddCommand(facebookCmd)
	rootCmd.AddCommand(websiteCmd)
	rootCmd.AddCommand(enrichCmd)
}
