package resolver

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bekeleftw/utility-lookup-api-sub000/internal/resilience"
	"github.com/bekeleftw/utility-lookup-api-sub000/internal/source"
)

// ExecutorConfig controls the parallel fan-out of source queries.
type ExecutorConfig struct {
	// SourceTimeout bounds each individual source query.
	SourceTimeout time.Duration `mapstructure:"source_timeout"`
	// OverallDeadline bounds the whole fan-out; sources still outstanding
	// when it fires are recorded as unavailable.
	OverallDeadline time.Duration `mapstructure:"overall_deadline"`
	// MaxConcurrent caps in-flight source queries (0 = unbounded).
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// DefaultExecutorConfig returns the default fan-out limits.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		SourceTimeout:   2 * time.Second,
		OverallDeadline: 8 * time.Second,
	}
}

// ExecResult is the collected outcome of the fan-out. Results are sorted by
// source name so downstream decisions never depend on completion order.
type ExecResult struct {
	Results     []source.SourceResult
	Unavailable []string // sources that timed out or failed
}

// Execute queries every source concurrently with per-source timeouts and an
// overall deadline. Every failure mode of an individual source — error,
// timeout, panic-free nil — degrades to "unavailable" and never aborts the
// resolution. The fan-out always waits for all sources to settle, because
// disagreement detection needs every available answer.
func Execute(ctx context.Context, cfg ExecutorConfig, sources []source.Source, qc source.QueryContext) ExecResult {
	if len(sources) == 0 {
		return ExecResult{}
	}

	if cfg.OverallDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.OverallDeadline)
		defer cancel()
	}

	var (
		mu          sync.Mutex
		results     []source.SourceResult
		unavailable []string
	)

	// The errgroup never carries an error: per-source failures are
	// recorded, not propagated, so one bad source cannot cancel siblings.
	g := &errgroup.Group{}
	if cfg.MaxConcurrent > 0 {
		g.SetLimit(cfg.MaxConcurrent)
	}

	for _, src := range sources {
		src := src
		g.Go(func() error {
			qctx := ctx
			if cfg.SourceTimeout > 0 {
				var cancel context.CancelFunc
				qctx, cancel = context.WithTimeout(ctx, cfg.SourceTimeout)
				defer cancel()
			}

			res, err := src.Query(qctx, qc)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				unavailable = append(unavailable, src.Name())
				logSourceFailure(src.Name(), err)
			case res == nil || len(res.Candidates) == 0:
				// No match is a valid outcome, not unavailability.
			default:
				results = append(results, *res)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Source < results[j].Source })
	sort.Strings(unavailable)

	return ExecResult{Results: results, Unavailable: unavailable}
}

func logSourceFailure(name string, err error) {
	if resilience.IsPermanent(err) {
		// Likely misconfiguration; louder than a transient blip.
		zap.L().Warn("source permanently failing",
			zap.String("source", name),
			zap.Error(err),
		)
		return
	}
	zap.L().Debug("source unavailable",
		zap.String("source", name),
		zap.Error(err),
	)
}
