package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/bekeleftw/utility-lookup-api-sub000/internal/config"
	"github.com/bekeleftw/utility-lookup-api-sub000/internal/normalize"
	"github.com/bekeleftw/utility-lookup-api-sub000/internal/resilience"
	"github.com/bekeleftw/utility-lookup-api-sub000/internal/resolver"
	"github.com/bekeleftw/utility-lookup-api-sub000/internal/source"
	"github.com/bekeleftw/utility-lookup-api-sub000/pkg/arbiter"
	"github.com/bekeleftw/utility-lookup-api-sub000/pkg/geocode"
)

// buildResolver loads the static configuration (registry, alias tables,
// scoring constants) and assembles the pipeline. Load failures here are
// configuration errors and abort startup.
func buildResolver(cfg *config.Config) (*resolver.Resolver, *source.Registry, error) {
	registry, err := source.LoadRegistry(cfg.Sources)
	if err != nil {
		return nil, nil, err
	}

	norm, err := normalize.LoadTable(cfg.Aliases)
	if err != nil {
		return nil, nil, err
	}

	opts := []resolver.Option{
		resolver.WithScoring(resolver.DefaultScoringConfig().WithOverrides(cfg.Pipeline.Scoring)),
		resolver.WithExecutor(resolver.ExecutorConfig{
			SourceTimeout:   time.Duration(cfg.Pipeline.SourceTimeoutMS) * time.Millisecond,
			OverallDeadline: time.Duration(cfg.Pipeline.OverallDeadlineMS) * time.Millisecond,
			MaxConcurrent:   cfg.Pipeline.MaxConcurrent,
		}),
	}

	if cfg.Geocode.Enabled {
		opts = append(opts, resolver.WithGeocoder(geocode.NewCensus(
			geocode.WithRateLimit(cfg.Geocode.RatePerSec),
			geocode.WithCacheTTL(time.Duration(cfg.Geocode.CacheTTLSecs)*time.Second),
		)))
	}

	if cfg.Arbiter.Enabled && cfg.Arbiter.Key != "" {
		opts = append(opts,
			resolver.WithArbiter(arbiter.NewClaude(cfg.Arbiter.Key,
				arbiter.WithModel(cfg.Arbiter.Model),
				arbiter.WithMaxTokens(cfg.Arbiter.MaxTokens),
				arbiter.WithTimeout(cfg.Arbiter.Timeout()),
			)),
			resolver.WithBreaker(resilience.NewCircuitBreaker(
				resilience.FromCircuitConfig(cfg.Arbiter.BreakerTrips, cfg.Arbiter.BreakerReset))),
		)
	} else {
		zap.L().Info("arbitrator disabled; disputes resolve deterministically")
	}

	return resolver.New(registry, norm, opts...), registry, nil
}
