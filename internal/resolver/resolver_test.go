package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bekeleftw/utility-lookup-api-sub000/internal/source"
	"github.com/bekeleftw/utility-lookup-api-sub000/pkg/arbiter"
	"github.com/bekeleftw/utility-lookup-api-sub000/pkg/geocode"
)

// fakeArbiter is a scriptable Arbiter that records what it was asked.
type fakeArbiter struct {
	resp  *arbiter.Response
	err   error
	calls int
	last  arbiter.Request
}

func (f *fakeArbiter) Arbitrate(_ context.Context, req arbiter.Request) (*arbiter.Response, error) {
	f.calls++
	f.last = req
	return f.resp, f.err
}

func electricSource(name string, conf float64, p source.Precision, answer string) *fakeSource {
	meta := source.Meta{
		Name:           name,
		Categories:     []source.Category{source.CategoryElectric},
		BaseConfidence: conf,
		Precision:      p,
	}
	var res *source.SourceResult
	if answer != "" {
		res = meta.NewResult(source.Candidate{Name: answer})
	}
	return &fakeSource{name: name, meta: meta, res: res}
}

func gasSource(name string, conf float64, answer string) *fakeSource {
	meta := source.Meta{
		Name:           name,
		Categories:     []source.Category{source.CategoryGas},
		BaseConfidence: conf,
		Precision:      source.PrecisionRegion,
	}
	var res *source.SourceResult
	if answer != "" {
		res = meta.NewResult(source.Candidate{Name: answer})
	}
	return &fakeSource{name: name, meta: meta, res: res}
}

func newTestResolver(t *testing.T, srcs []source.Source, opts ...Option) *Resolver {
	t.Helper()
	reg := source.NewRegistry()
	for _, s := range srcs {
		reg.Register(s)
	}
	return New(reg, testNorm(), opts...)
}

func TestResolve_Agreement(t *testing.T) {
	r := newTestResolver(t, []source.Source{
		electricSource("state-boundaries", 85, source.PrecisionPoint, "DUKE ENERGY CAROLINAS, LLC"),
		electricSource("federal-map", 70, source.PrecisionPoint, "Duke Energy"),
		electricSource("annual-survey", 58, source.PrecisionRegion, "Duke Power"),
	})

	res, err := r.Resolve(context.Background(), source.QueryContext{
		Category: source.CategoryElectric,
		State:    "NC",
		County:   "Mecklenburg",
	})
	require.NoError(t, err)

	assert.Equal(t, MethodAgreement, res.Method)
	require.NotNil(t, res.Provider)
	assert.Equal(t, "Duke Energy Carolinas", res.Provider.Identity)
	// 85 + 15 point + 20 triple agreement, clamped.
	assert.Equal(t, 100.0, res.Score)
	assert.Equal(t, LevelVerified, res.Level)
	assert.Len(t, res.AgreeingSources, 3)
	assert.Empty(t, res.Disagreements)
	assert.Empty(t, res.Unavailable)
	assert.False(t, res.NoAnswer())
	assert.NotEmpty(t, res.ID)
	assert.Contains(t, res.Reason, "3 sources agree")
}

func TestResolve_DominantGroupSkipsArbitration(t *testing.T) {
	arb := &fakeArbiter{}
	r := newTestResolver(t, []source.Source{
		electricSource("a", 85, source.PrecisionRegion, "Duke Energy"),
		electricSource("b", 70, source.PrecisionRegion, "Duke Power"),
		electricSource("c", 58, source.PrecisionRegion, "EnergyUnited"),
	}, WithArbiter(arb))

	res, err := r.Resolve(context.Background(), source.QueryContext{Category: source.CategoryElectric, State: "NC"})
	require.NoError(t, err)

	// 155 vs 58 summed confidence: dominance margin met, no arbitration.
	assert.Equal(t, 0, arb.calls)
	assert.Equal(t, MethodAgreement, res.Method)
	require.Len(t, res.Disagreements, 1)
	assert.Equal(t, "c", res.Disagreements[0].Source)
}

func TestResolve_Arbitrated(t *testing.T) {
	arb := &fakeArbiter{resp: &arbiter.Response{
		SelectedCandidateName: "Duke Energy",
		Confidence:            95,
		Reasoning:             "franchise boundary maps favor Duke in this county",
	}}
	r := newTestResolver(t, []source.Source{
		electricSource("s-high", 85, source.PrecisionRegion, "Duke Energy"),
		electricSource("s-low", 80, source.PrecisionRegion, "EnergyUnited"),
	}, WithArbiter(arb))

	res, err := r.Resolve(context.Background(), source.QueryContext{Category: source.CategoryElectric, State: "NC"})
	require.NoError(t, err)

	assert.Equal(t, 1, arb.calls)
	assert.Equal(t, MethodArbitrated, res.Method)
	assert.True(t, res.Arbitrated)
	require.NotNil(t, res.Provider)
	assert.Equal(t, "Duke Energy Carolinas", res.Provider.Identity)
	// Deterministic score for the winner is 85 - 15 disagreement = 70; the
	// blended score may not exceed it by more than the arbitration margin.
	assert.Equal(t, 80.0, res.Score)
	assert.Contains(t, res.Reason, "franchise boundary maps")

	// The arbitrator saw both candidates with their source votes.
	require.Len(t, arb.last.Groups, 2)
	assert.Equal(t, source.Category(arb.last.Category), source.CategoryElectric)
	assert.Equal(t, "Duke Energy", arb.last.Groups[0].CandidateName)
	assert.Equal(t, "EnergyUnited", arb.last.Groups[1].CandidateName)
}

func TestResolve_ArbitratedConfidenceBounded(t *testing.T) {
	arb := &fakeArbiter{resp: &arbiter.Response{SelectedCandidateName: "Duke Energy", Confidence: 100}}
	r := newTestResolver(t, []source.Source{
		electricSource("s-high", 85, source.PrecisionRegion, "Duke Energy"),
		electricSource("s-low", 80, source.PrecisionRegion, "EnergyUnited"),
	}, WithArbiter(arb))

	res, err := r.Resolve(context.Background(), source.QueryContext{Category: source.CategoryElectric, State: "NC"})
	require.NoError(t, err)

	// det=70, margin=10: even a maximal arbitrator confidence caps at 80.
	assert.Equal(t, 80.0, res.Score)
}

func TestResolve_InvalidSelectionFallsBack(t *testing.T) {
	arb := &fakeArbiter{resp: &arbiter.Response{SelectedCandidateName: "Consolidated Edison", Confidence: 99}}
	r := newTestResolver(t, []source.Source{
		electricSource("s-high", 85, source.PrecisionRegion, "Duke Energy"),
		electricSource("s-low", 80, source.PrecisionRegion, "EnergyUnited"),
	}, WithArbiter(arb))

	res, err := r.Resolve(context.Background(), source.QueryContext{Category: source.CategoryElectric, State: "NC"})
	require.NoError(t, err)

	assert.Equal(t, MethodUnarbitrated, res.Method)
	assert.True(t, res.Unarbitrated)
	require.NotNil(t, res.Provider)
	assert.Equal(t, "Duke Energy Carolinas", res.Provider.Identity)
	// det=70 minus the unarbitrated penalty of 15.
	assert.Equal(t, 55.0, res.Score)
	assert.Equal(t, LevelMedium, res.Level)
	require.Len(t, res.Disagreements, 1)
	assert.Equal(t, "s-low", res.Disagreements[0].Source)
}

func TestResolve_ArbiterErrorFallsBack(t *testing.T) {
	arb := &fakeArbiter{err: eris.New("model overloaded")}
	r := newTestResolver(t, []source.Source{
		electricSource("s-high", 85, source.PrecisionRegion, "Duke Energy"),
		electricSource("s-low", 80, source.PrecisionRegion, "EnergyUnited"),
	}, WithArbiter(arb))

	res, err := r.Resolve(context.Background(), source.QueryContext{Category: source.CategoryElectric, State: "NC"})
	require.NoError(t, err)

	assert.Equal(t, MethodUnarbitrated, res.Method)
	assert.True(t, res.Unarbitrated)
	assert.Equal(t, 55.0, res.Score)
}

func TestResolve_NoArbiterConfigured(t *testing.T) {
	r := newTestResolver(t, []source.Source{
		electricSource("s-high", 85, source.PrecisionRegion, "Duke Energy"),
		electricSource("s-low", 80, source.PrecisionRegion, "EnergyUnited"),
	})

	res, err := r.Resolve(context.Background(), source.QueryContext{Category: source.CategoryElectric, State: "NC"})
	require.NoError(t, err)

	assert.Equal(t, MethodUnarbitrated, res.Method)
	assert.True(t, res.Unarbitrated)
}

func TestResolve_NoService(t *testing.T) {
	r := newTestResolver(t, []source.Source{
		gasSource("franchise-map", 75, "none"),
		gasSource("county-records", 60, "propane"),
	})

	res, err := r.Resolve(context.Background(), source.QueryContext{Category: source.CategoryGas, State: "NC", County: "Ashe"})
	require.NoError(t, err)

	assert.True(t, res.NoAnswer())
	assert.Nil(t, res.Provider)
	assert.Equal(t, LevelLow, res.Level)
	assert.Contains(t, res.Reason, "no gas service")
	assert.Contains(t, res.Reason, "franchise-map")
}

func TestResolve_NoServiceVoteRecordedAsDisagreement(t *testing.T) {
	r := newTestResolver(t, []source.Source{
		gasSource("franchise-map", 75, "Piedmont Natural Gas"),
		gasSource("county-records", 60, "propane"),
	})

	res, err := r.Resolve(context.Background(), source.QueryContext{Category: source.CategoryGas, State: "NC"})
	require.NoError(t, err)

	assert.Equal(t, MethodSingleSource, res.Method)
	require.NotNil(t, res.Provider)
	assert.Equal(t, "Piedmont Natural Gas", res.Provider.Name)
	require.Len(t, res.Disagreements, 1)
	assert.Equal(t, "county-records", res.Disagreements[0].Source)
}

func TestResolve_AllSourcesFail(t *testing.T) {
	bad := func(name string) *fakeSource {
		s := electricSource(name, 70, source.PrecisionRegion, "")
		s.err = eris.New("upstream down")
		return s
	}
	r := newTestResolver(t, []source.Source{bad("a"), bad("b")})

	res, err := r.Resolve(context.Background(), source.QueryContext{Category: source.CategoryElectric, State: "NC"})
	require.NoError(t, err)

	assert.True(t, res.NoAnswer())
	assert.Equal(t, []string{"a", "b"}, res.Unavailable)
	assert.Contains(t, res.Reason, "no source returned")
}

func TestResolve_NoSourcesForCategory(t *testing.T) {
	r := newTestResolver(t, []source.Source{
		electricSource("a", 70, source.PrecisionRegion, "Duke Energy"),
	})

	res, err := r.Resolve(context.Background(), source.QueryContext{Category: source.CategoryWater, State: "NC"})
	require.NoError(t, err)

	assert.True(t, res.NoAnswer())
	assert.Contains(t, res.Reason, "no sources configured")
}

func TestResolve_EmptyCategory(t *testing.T) {
	r := newTestResolver(t, nil)

	_, err := r.Resolve(context.Background(), source.QueryContext{})
	assert.Error(t, err)
}

func TestResolve_Deterministic(t *testing.T) {
	r := newTestResolver(t, []source.Source{
		electricSource("a", 85, source.PrecisionPoint, "Duke Energy"),
		electricSource("b", 70, source.PrecisionRegion, "EnergyUnited"),
		electricSource("c", 58, source.PrecisionRegion, "Duke Power"),
	})

	qc := source.QueryContext{Category: source.CategoryElectric, State: "NC"}
	first, err := r.Resolve(context.Background(), qc)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		next, err := r.Resolve(context.Background(), qc)
		require.NoError(t, err)
		assert.Equal(t, first.Method, next.Method)
		assert.Equal(t, first.Score, next.Score)
		assert.Equal(t, first.Provider.Identity, next.Provider.Identity)
		assert.Equal(t, first.AgreeingSources, next.AgreeingSources)
	}
}

func TestResolve_TimedOutSourceLeftOutOfReason(t *testing.T) {
	slow := electricSource("slow-api", 90, source.PrecisionPoint, "EnergyUnited")
	slow.res = nil
	slow.delay = time.Second

	r := newTestResolver(t, []source.Source{
		electricSource("a", 85, source.PrecisionRegion, "Duke Energy"),
		electricSource("b", 70, source.PrecisionRegion, "Duke Power"),
		slow,
	}, WithExecutor(ExecutorConfig{SourceTimeout: 20 * time.Millisecond, OverallDeadline: time.Second}))

	res, err := r.Resolve(context.Background(), source.QueryContext{Category: source.CategoryElectric, State: "NC"})
	require.NoError(t, err)

	assert.Equal(t, MethodAgreement, res.Method)
	assert.Equal(t, []string{"slow-api"}, res.Unavailable)
	assert.NotContains(t, res.Reason, "slow-api")
	assert.Equal(t, []string{"a", "b"}, res.AgreeingSources)
}

type fakeGeocoder struct {
	loc   *geocode.Location
	err   error
	calls int
}

func (f *fakeGeocoder) Locate(context.Context, string) (*geocode.Location, error) {
	f.calls++
	return f.loc, f.err
}

func TestResolve_GeocodesAddressOnlyQueries(t *testing.T) {
	var seen source.QueryContext
	src := electricSource("nc-boundaries", 85, source.PrecisionPoint, "Duke Energy")
	src.meta.States = []string{"NC"}
	src.seen = &seen

	geo := &fakeGeocoder{loc: &geocode.Location{
		Latitude: 35.2271, Longitude: -80.8414,
		State: "NC", County: "Mecklenburg", ZIP: "28202",
		Matched: true,
	}}

	r := newTestResolver(t, []source.Source{src}, WithGeocoder(geo))

	res, err := r.Resolve(context.Background(), source.QueryContext{
		Category: source.CategoryElectric,
		Address:  "100 N Tryon St, Charlotte, NC",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, geo.calls)
	assert.Equal(t, "NC", seen.State)
	assert.Equal(t, 35.2271, seen.Latitude)
	assert.Equal(t, "28202", seen.ZIP)
	require.NotNil(t, res.Provider)
}

func TestResolve_GeocodeFailureDegrades(t *testing.T) {
	geo := &fakeGeocoder{err: eris.New("census unavailable")}
	r := newTestResolver(t, []source.Source{
		electricSource("a", 85, source.PrecisionRegion, "Duke Energy"),
		electricSource("b", 70, source.PrecisionRegion, "Duke Power"),
	}, WithGeocoder(geo))

	res, err := r.Resolve(context.Background(), source.QueryContext{
		Category: source.CategoryElectric,
		Address:  "100 N Tryon St",
	})
	require.NoError(t, err)
	assert.Equal(t, MethodAgreement, res.Method)
}

func TestResolve_GeocoderSkippedWhenContextComplete(t *testing.T) {
	geo := &fakeGeocoder{loc: &geocode.Location{Matched: true}}
	r := newTestResolver(t, []source.Source{
		electricSource("a", 85, source.PrecisionRegion, "Duke Energy"),
	}, WithGeocoder(geo))

	_, err := r.Resolve(context.Background(), source.QueryContext{
		Category: source.CategoryElectric,
		Address:  "100 N Tryon St",
		Latitude: 35.2, Longitude: -80.8,
		State: "NC",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, geo.calls)
}

func TestBlend(t *testing.T) {
	assert.Equal(t, 65.0, blend(70, 60, 10))
	assert.Equal(t, 80.0, blend(70, 100, 10), "capped at deterministic + margin")
	assert.Equal(t, 70.0, blend(70, 70, 10))
	assert.Equal(t, 0.0, blend(0, -50, 10))
	assert.Equal(t, 100.0, blend(100, 100, 10))
}

func TestRegionLabel(t *testing.T) {
	assert.Equal(t, "123 Main St", regionLabel(source.QueryContext{Address: "123 Main St", State: "NC"}))
	assert.Equal(t, "Charlotte, Mecklenburg, NC, 28202", regionLabel(source.QueryContext{
		City: "Charlotte", County: "Mecklenburg", State: "NC", ZIP: "28202",
	}))
	assert.Equal(t, "35.22700,-80.84300", regionLabel(source.QueryContext{Latitude: 35.227, Longitude: -80.843}))
	assert.Equal(t, "unknown location", regionLabel(source.QueryContext{}))
}
