// Package resolver implements the multi-source resolution pipeline: fan out
// to every applicable data source, normalize and cross-validate the answers,
// score confidence, and arbitrate conflicts.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bekeleftw/utility-lookup-api-sub000/internal/normalize"
	"github.com/bekeleftw/utility-lookup-api-sub000/internal/resilience"
	"github.com/bekeleftw/utility-lookup-api-sub000/internal/source"
	"github.com/bekeleftw/utility-lookup-api-sub000/pkg/arbiter"
	"github.com/bekeleftw/utility-lookup-api-sub000/pkg/geocode"
)

// Method records which path produced a resolution.
type Method string

const (
	MethodAgreement    Method = "agreement"
	MethodSingleSource Method = "single-source"
	MethodArbitrated   Method = "arbitrated"
	MethodUnarbitrated Method = "unarbitrated"
	MethodNoAnswer     Method = "no-answer"
)

// Disagreement is a losing candidate kept for audit.
type Disagreement struct {
	Source    string           `json:"source"`
	Candidate source.Candidate `json:"candidate"`
}

// Resolution is the final artifact of one resolve call. It is serializable
// to a flat record for whatever transport the caller uses.
type Resolution struct {
	ID       string           `json:"id"`
	Category source.Category  `json:"category"`

	Provider *source.Candidate `json:"provider,omitempty"`
	Score    float64           `json:"score"`
	Level    Level             `json:"level"`
	Method   Method            `json:"method"`

	AgreeingSources []string       `json:"agreeing_sources"`
	Disagreements   []Disagreement `json:"disagreements,omitempty"`
	Unavailable     []string       `json:"unavailable_sources,omitempty"`

	Arbitrated   bool   `json:"arbitrated,omitempty"`
	Unarbitrated bool   `json:"unarbitrated,omitempty"`
	Reason       string `json:"reason"`

	ElapsedMS int64 `json:"elapsed_ms"`
}

// NoAnswer reports whether the resolution carries no provider.
func (r *Resolution) NoAnswer() bool { return r.Method == MethodNoAnswer }

// Resolver composes the pipeline. All referenced configuration is read-only
// after construction, so a single Resolver serves concurrent requests.
type Resolver struct {
	registry *source.Registry
	norm     *normalize.Normalizer
	arb      arbiter.Arbiter
	geo      geocode.Geocoder
	breaker  *resilience.CircuitBreaker
	scoring  ScoringConfig
	exec     ExecutorConfig
	now      func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithArbiter installs the external arbitrator consulted on disputes. Without
// one, disputes resolve deterministically with the unarbitrated penalty.
func WithArbiter(a arbiter.Arbiter) Option {
	return func(r *Resolver) { r.arb = a }
}

// WithGeocoder installs an address geocoder. Address-only queries are
// enriched with coordinates and geography before the fan-out, so boundary
// and region-keyed sources can answer them.
func WithGeocoder(g geocode.Geocoder) Option {
	return func(r *Resolver) { r.geo = g }
}

// WithScoring overrides the scoring constants.
func WithScoring(cfg ScoringConfig) Option {
	return func(r *Resolver) { r.scoring = cfg }
}

// WithExecutor overrides the fan-out limits.
func WithExecutor(cfg ExecutorConfig) Option {
	return func(r *Resolver) { r.exec = cfg }
}

// WithBreaker overrides the arbitrator circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(r *Resolver) { r.breaker = cb }
}

// WithNow fixes the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New creates a Resolver over the given registry and alias tables.
func New(registry *source.Registry, norm *normalize.Normalizer, opts ...Option) *Resolver {
	r := &Resolver{
		registry: registry,
		norm:     norm,
		scoring:  DefaultScoringConfig(),
		exec:     DefaultExecutorConfig(),
		breaker:  resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve answers "which provider serves this location" for the context's
// category. Per-request failures degrade to lower-confidence resolutions;
// the only returned errors are programming mistakes (empty category).
func (r *Resolver) Resolve(ctx context.Context, qc source.QueryContext) (*Resolution, error) {
	if qc.Category == "" {
		return nil, fmt.Errorf("resolver: category required")
	}

	start := r.now()
	res := &Resolution{
		ID:              uuid.NewString(),
		Category:        qc.Category,
		AgreeingSources: []string{},
	}
	defer func() {
		res.ElapsedMS = time.Since(start).Milliseconds()
	}()

	qc = r.enrich(ctx, qc)

	sources := r.registry.For(qc.Category, qc.State)
	if len(sources) == 0 {
		res.Method = MethodNoAnswer
		res.Level = LevelLow
		res.Reason = fmt.Sprintf("no sources configured for category %s in %s", qc.Category, regionLabel(qc))
		return res, nil
	}

	exec := Execute(ctx, r.exec, sources, qc)
	res.Unavailable = exec.Unavailable

	v := CrossValidate(exec.Results, r.norm, string(qc.Category))
	top := v.Top()
	if top == nil {
		res.Method = MethodNoAnswer
		res.Level = LevelLow
		if v.NoService != nil {
			res.Reason = fmt.Sprintf("sources report no %s service at this location (%s)",
				qc.Category, strings.Join(v.NoService.SourceNames(), ", "))
		} else {
			res.Reason = fmt.Sprintf("no source returned a %s provider for %s", qc.Category, regionLabel(qc))
		}
		return res, nil
	}

	if r.scoring.Disputed(top, v.Second()) {
		r.arbitrate(ctx, qc, v, res)
	} else {
		r.emitDeterministic(v, *top, res)
	}

	zap.L().Info("resolved",
		zap.String("id", res.ID),
		zap.String("category", string(res.Category)),
		zap.String("method", string(res.Method)),
		zap.Float64("score", res.Score),
		zap.String("level", string(res.Level)),
	)
	return res, nil
}

// enrich geocodes an address-only context so boundary and region-keyed
// sources can answer it. Geocode failure is not fatal: the lookup proceeds on
// whatever geography the caller supplied.
func (r *Resolver) enrich(ctx context.Context, qc source.QueryContext) source.QueryContext {
	if r.geo == nil || qc.Address == "" || (qc.HasPoint() && qc.State != "") {
		return qc
	}

	loc, err := r.geo.Locate(ctx, qc.Address)
	if err != nil {
		zap.L().Warn("geocode failed, resolving without coordinates",
			zap.Error(err),
		)
		return qc
	}
	if !loc.Matched {
		return qc
	}

	if !qc.HasPoint() {
		qc.Latitude = loc.Latitude
		qc.Longitude = loc.Longitude
	}
	if qc.State == "" {
		qc.State = loc.State
	}
	if qc.County == "" {
		qc.County = loc.County
	}
	if qc.City == "" {
		qc.City = loc.City
	}
	if qc.ZIP == "" {
		qc.ZIP = loc.ZIP
	}
	return qc
}

// emitDeterministic finishes the Agreed (or lone weak source) path.
func (r *Resolver) emitDeterministic(v Validation, top AgreementGroup, res *Resolution) {
	r.fill(res, v, top, r.scoring.Score(top, v.Groups, r.now()))

	if top.Count() >= 2 {
		res.Method = MethodAgreement
		res.Reason = fmt.Sprintf("%d sources agree on %s (%s)",
			top.Count(), top.Candidate.Name, strings.Join(top.SourceNames(), ", "))
		return
	}
	res.Method = MethodSingleSource
	res.Reason = fmt.Sprintf("single source %s reports %s", top.Contributions[0].Source, top.Candidate.Name)
}

// arbitrate runs the Disputed path: external arbitration with a retried
// call behind a circuit breaker, falling back to the deterministic top
// group with a penalty when arbitration is unavailable or invalid.
func (r *Resolver) arbitrate(ctx context.Context, qc source.QueryContext, v Validation, res *Resolution) {
	req := buildArbitrationRequest(qc, v)

	var resp *arbiter.Response
	err := arbiter.ErrEmptyResponse
	if r.arb != nil {
		resp, err = resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*arbiter.Response, error) {
			return r.arb.Arbitrate(ctx, req)
		})
	}

	if err == nil && resp != nil {
		if g := v.groupByCandidateName(resp.SelectedCandidateName); g != nil {
			det := r.scoring.Score(*g, v.Groups, r.now())
			r.fill(res, v, *g, blend(det, resp.Confidence, r.scoring.ArbitrationMargin))
			res.Method = MethodArbitrated
			res.Arbitrated = true
			res.Reason = fmt.Sprintf("arbitration selected %s among %d disputed candidates (sources: %s): %s",
				g.Candidate.Name, len(v.Groups), strings.Join(g.SourceNames(), ", "), resp.Reasoning)
			return
		}
		err = arbiter.ErrInvalidSelection
	}

	zap.L().Warn("arbitration failed, deterministic fallback",
		zap.String("category", string(qc.Category)),
		zap.Error(err),
	)

	top := *v.Top()
	score := clamp(r.scoring.Score(top, v.Groups, r.now()) - r.scoring.UnarbitratedPenalty)
	r.fill(res, v, top, score)
	res.Method = MethodUnarbitrated
	res.Unarbitrated = true
	res.Reason = fmt.Sprintf("sources disagree and arbitration was unavailable; strongest group is %s (%s)",
		top.Candidate.Name, strings.Join(top.SourceNames(), ", "))
}

// fill sets the winner-derived fields shared by every terminal path.
func (r *Resolver) fill(res *Resolution, v Validation, winner AgreementGroup, score float64) {
	provider := winner.Candidate
	res.Provider = &provider
	res.Score = score
	res.Level = r.scoring.Level(score)
	res.AgreeingSources = winner.SourceNames()

	for _, g := range v.Groups {
		if g.Identity == winner.Identity {
			continue
		}
		for _, c := range g.Contributions {
			res.Disagreements = append(res.Disagreements, Disagreement{Source: c.Source, Candidate: c.Candidate})
		}
	}
	if v.NoService != nil {
		for _, c := range v.NoService.Contributions {
			res.Disagreements = append(res.Disagreements, Disagreement{Source: c.Source, Candidate: c.Candidate})
		}
	}
}

// blend combines the deterministic score with the arbitrator's confidence,
// never exceeding the deterministic ceiling by more than margin. The cap
// bounds how far a hallucinated confidence can move the result.
func blend(deterministic, arbitrated, margin float64) float64 {
	blended := (deterministic + arbitrated) / 2
	if ceiling := deterministic + margin; blended > ceiling {
		blended = ceiling
	}
	return clamp(blended)
}

func buildArbitrationRequest(qc source.QueryContext, v Validation) arbiter.Request {
	req := arbiter.Request{
		Category:       string(qc.Category),
		ContextSummary: regionLabel(qc),
	}
	for _, g := range v.Groups {
		ag := arbiter.Group{CandidateName: g.Candidate.Name}
		for _, c := range g.Contributions {
			ag.Sources = append(ag.Sources, arbiter.SourceVote{
				Name:           c.Source,
				BaseConfidence: c.BaseConfidence,
			})
		}
		req.Groups = append(req.Groups, ag)
	}
	return req
}

// groupByCandidateName finds the group whose representative candidate was
// offered to the arbitrator under the given name.
func (v Validation) groupByCandidateName(name string) *AgreementGroup {
	for i := range v.Groups {
		if strings.EqualFold(v.Groups[i].Candidate.Name, name) {
			return &v.Groups[i]
		}
	}
	return nil
}

func regionLabel(qc source.QueryContext) string {
	if qc.Address != "" {
		return qc.Address
	}
	var parts []string
	for _, p := range []string{qc.City, qc.County, qc.State, qc.ZIP} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 && qc.HasPoint() {
		return fmt.Sprintf("%.5f,%.5f", qc.Latitude, qc.Longitude)
	}
	if len(parts) == 0 {
		return "unknown location"
	}
	return strings.Join(parts, ", ")
}
