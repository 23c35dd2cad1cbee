package main

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/catfim/internal/catfim"
	"github.com/sells-group/catfim/internal/config"
	"github.com/sells-group/catfim/internal/datum"
	"github.com/sells-group/catfim/internal/fetcher"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/monitoring"
	"github.com/sells-group/catfim/internal/nwm"
	"github.com/sells-group/catfim/internal/resilience"
	"github.com/sells-group/catfim/internal/sites"
	"github.com/sells-group/catfim/internal/vdatum"
	"github.com/sells-group/catfim/internal/wbd"
	"github.com/sells-group/catfim/internal/wrds"
)

// newWRDSClient builds the metadata/threshold client with an adaptive
// per-host rate limit and a circuit breaker.
func newWRDSClient(env *config.Env, metrics *monitoring.Metrics) (*wrds.Client, error) {
	u, err := url.Parse(env.APIBaseURL)
	if err != nil || u.Host == "" {
		return nil, eris.Errorf("invalid API base URL %q", env.APIBaseURL)
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   cfg.WRDS.UserAgent,
		Timeout:     time.Duration(cfg.WRDS.TimeoutSecs) * time.Second,
		MaxRetries:  cfg.WRDS.MaxRetries,
		BackoffBase: time.Second,
		Adaptive: map[string]*fetcher.AdaptiveLimiter{
			u.Host: fetcher.NewAdaptiveLimiter(rate.Limit(cfg.WRDS.RatePerSec), cfg.WRDS.Burst),
		},
		InsecureSkipVerify: cfg.WRDS.InsecureSkipVerify,
	})
	breaker := resilience.NewCircuitBreaker(
		resilience.FromCircuitConfig("wrds", cfg.WRDS.FailureThreshold, cfg.WRDS.ResetTimeoutSecs))

	c := wrds.NewClient(env.APIBaseURL, f, breaker)
	if metrics != nil {
		c.Observe = metrics.ObserveWRDS
	}
	return c, nil
}

// initRunDeps loads the environment file and the reference layers and wires
// the collaborators of a run.
func initRunDeps(ctx context.Context, opts catfim.Options, envFile string) (catfim.Deps, error) {
	env, err := config.LoadEnv(envFile)
	if err != nil {
		return catfim.Deps{}, err
	}

	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetrics(opts.Mode)
	}

	wc, err := newWRDSClient(env, metrics)
	if err != nil {
		return catfim.Deps{}, err
	}

	vf := vdatum.NewFetcher(cfg.WRDS.UserAgent,
		time.Duration(cfg.VDatum.TimeoutSecs)*time.Second, cfg.VDatum.InsecureSkipVerify)
	vc := vdatum.NewClient(cfg.VDatum.BaseURL, cfg.VDatum.Region, vf,
		vdatum.WithRetryDelay(time.Duration(cfg.VDatum.RetryDelaySecs)*time.Second))
	if metrics != nil {
		vc.Observe = metrics.ObserveVDatum
	}

	restricted, err := sites.LoadRestricted(cfg.Sites.RestrictedFile)
	if err != nil {
		return catfim.Deps{}, err
	}

	deps := catfim.Deps{
		Thresholds: wc,
		Datums:     datum.NewNormalizer(nil, vc),
		Restricted: restricted,
		Metrics:    metrics,
	}

	metaFile := opts.MetaFile
	if metaFile == "" {
		metaFile = catfim.Layout{Root: opts.OutputDir(), Mode: opts.Mode}.MetaFile()
	}
	deps.Catalog = catfim.CatalogFunc(func(ctx context.Context) ([]model.SiteMetadata, error) {
		records, built, err := wrds.LoadOrBuild(ctx, wc, metaFile, opts.SearchMiles)
		if err != nil {
			return nil, err
		}
		zap.L().Info("gauge catalog ready",
			zap.String("path", metaFile), zap.Bool("built", built), zap.Int("records", len(records)))
		return records, nil
	})

	if opts.Step != catfim.StepStatus {
		if env.WBDLayer == "" {
			return catfim.Deps{}, eris.New("environment file does not name a WBD layer")
		}
		layer, err := wbd.Load(ctx, env.WBDLayer)
		if err != nil {
			return catfim.Deps{}, err
		}
		deps.Watersheds = layer

		if env.NWMFlowsLayer != "" {
			orders, err := nwm.LoadStreamOrders(ctx, env.NWMFlowsLayer)
			if err != nil {
				return catfim.Deps{}, err
			}
			deps.StreamOrders = orders
		}
	}

	return deps, nil
}
