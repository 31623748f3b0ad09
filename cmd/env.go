package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/phone-enrich/internal/browser"
	"github.com/sells-group/phone-enrich/internal/config"
	"github.com/sells-group/phone-enrich/internal/jobs"
	"github.com/sells-group/phone-enrich/internal/phone"
	"github.com/sells-group/phone-enrich/internal/pipeline"
	"github.com/sells-group/phone-enrich/internal/probe"
	"github.com/sells-group/phone-enrich/internal/resilience"
	"github.com/sells-group/phone-enrich/internal/store"
	"github.com/sells-group/phone-enrich/pkg/apify"
)

// enrichEnv holds the clients shared by the enrichment commands and the server.
type enrichEnv struct {
	Store     store.Store // nil when store.driver is none
	Validator *phone.Validator
	Checker   probe.Checker
	Facebook  *pipeline.FacebookPipeline
	Website   *pipeline.WebsitePipeline

	closers []func() error
}

// Close releases resources held by the environment.
func (e *enrichEnv) Close() {
	for _, c := range e.closers {
		if err := c(); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

// initEnv validates the configuration for mode and builds what that mode
// needs. Callers should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, mode string) (*enrichEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	env := &enrichEnv{}
	st, err := initStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	if st != nil {
		env.Store = st
		env.closers = append(env.closers, st.Close)
	}

	env.Validator, err = initValidator(c.Phone)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Checker = initProber(c.Probe, env.Store)

	if mode == "facebook" || mode == "enrich" {
		env.Facebook = pipeline.NewFacebookPipeline(initRunner(c.Apify), env.Validator, pipeline.FacebookConfig{
			Actor:       c.Apify.FacebookActor,
			Language:    c.Facebook.Language,
			BatchSize:   c.Facebook.BatchSize,
			BatchDelay:  time.Duration(c.Facebook.BatchDelaySecs) * time.Second,
			Concurrency: c.Facebook.Concurrency,
		})
	}
	if mode == "website" || mode == "enrich" {
		runner, closeRunner := initWebsiteRunner(c, env.Validator)
		if closeRunner != nil {
			env.closers = append(env.closers, closeRunner)
		}
		wcfg, err := websiteConfig(c.Website)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Website = pipeline.NewWebsitePipeline(runner, env.Checker, env.Validator, wcfg)
	}
	return env, nil
}

// initStore opens and migrates the configured store. It returns nil for the
// "none" driver.
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch sc.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		st, err = store.NewSQLite(sc.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, sc.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	if n, err := st.DeleteExpiredProbes(ctx); err != nil {
		zap.L().Warn("failed to prune probe cache", zap.Error(err))
	} else if n > 0 {
		zap.L().Debug("pruned probe cache", zap.Int("deleted", n))
	}
	return st, nil
}

func initValidator(pc config.PhoneConfig) (*phone.Validator, error) {
	opts := []phone.Option{phone.WithStrict(pc.Strict)}
	if pc.BannedCodesFile != "" {
		codes, err := phone.LoadBannedCodes(pc.BannedCodesFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, phone.WithBannedCodes(codes))
	}
	return phone.NewValidator(opts...), nil
}

func initProber(pc config.ProbeConfig, st store.Store) *probe.Prober {
	opts := []probe.Option{
		probe.WithTimeout(time.Duration(pc.TimeoutSecs) * time.Second),
		probe.WithConcurrency(pc.Concurrency),
	}
	if pc.RatePerSec > 0 {
		opts = append(opts, probe.WithRate(pc.RatePerSec))
	}
	if st != nil && pc.CacheTTLHours > 0 {
		opts = append(opts, probe.WithCache(st, time.Duration(pc.CacheTTLHours)*time.Hour))
	}
	return probe.New(opts...)
}

func initRunner(ac config.ApifyConfig) *jobs.ApifyRunner {
	client := apify.NewClient(ac.Token, apify.WithBaseURL(ac.BaseURL))
	return jobs.NewApifyRunner(client,
		jobs.WithRetry(resilience.FromRetryConfig(ac.MaxAttempts, 0, 0)),
		jobs.WithPollOptions(
			apify.WithWaitForFinish(ac.WaitSecs),
			apify.WithPollInterval(time.Duration(ac.PollIntervalSecs)*time.Second),
			apify.WithPollTimeout(time.Duration(ac.PollTimeoutMins)*time.Minute),
		),
	)
}

// initWebsiteRunner picks the extraction engine. Local engines return a close
// function for their page loader.
func initWebsiteRunner(c *config.Config, v *phone.Validator) (jobs.Runner, func() error) {
	var loader browser.PageLoader
	switch c.Website.Engine {
	case "chrome":
		loader = browser.NewChromeLoader(browser.ChromeOptions{
			Headless: c.Website.Headless,
			ProxyURL: c.Website.ProxyURL,
			ExecPath: c.Website.ChromePath,
		})
	case "http":
		var opts []browser.HTTPOption
		if c.Website.ProxyURL != "" {
			opts = append(opts, browser.WithProxy(c.Website.ProxyURL))
		}
		loader = browser.NewHTTPLoader(opts...)
	default:
		return initRunner(c.Apify), nil
	}
	zap.L().Info("using local website engine", zap.String("engine", c.Website.Engine))
	return browser.NewEngine(loader, browser.WithValidator(v)), loader.Close
}

func websiteConfig(wc config.WebsiteConfig) (pipeline.WebsiteConfig, error) {
	out := pipeline.DefaultWebsiteConfig()
	out.Actor = wc.Actor
	out.BatchSize = wc.BatchSize
	out.BatchDelay = time.Duration(wc.BatchDelaySecs) * time.Second
	out.MaxConcurrency = wc.MaxConcurrency
	out.MaxRetries = wc.MaxRetries
	out.PageTimeoutSecs = wc.PageTimeoutSecs
	out.FunctionTimeoutSecs = wc.FunctionTimeoutSecs
	out.RequestsPerTargetPage = wc.RequestsPerTarget
	out.SkipKeywords = wc.SkipKeywords
	out.Proxy = jobs.ProxyProfile{
		UseProxy: len(wc.ProxyGroups) > 0 || wc.ProxyURL != "",
		Groups:   wc.ProxyGroups,
		URL:      wc.ProxyURL,
	}

	if wc.PageFunctionFile != "" {
		src, err := os.ReadFile(wc.PageFunctionFile)
		if err != nil {
			return out, eris.Wrapf(err, "read page function %s", wc.PageFunctionFile)
		}
		out.ActorInput = map[string]any{"pageFunction": string(src)}
	}
	return out, nil
}
