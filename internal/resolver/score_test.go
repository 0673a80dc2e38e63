package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bekeleftw/utility-lookup-api-sub000/internal/source"
)

var scoreNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func group(identity string, contribs ...Contribution) AgreementGroup {
	g := AgreementGroup{Identity: identity, Contributions: contribs}
	if len(contribs) > 0 {
		g.Candidate = contribs[0].Candidate
	}
	return g
}

func contrib(src string, conf float64, p source.Precision) Contribution {
	return Contribution{
		Source:         src,
		BaseConfidence: conf,
		Precision:      p,
		Candidate:      source.Candidate{Name: "Provider", Identity: "PROVIDER"},
	}
}

func contribAged(src string, conf float64, p source.Precision, asOf time.Time) Contribution {
	c := contrib(src, conf, p)
	c.DataAsOf = &asOf
	return c
}

func TestScore_TripleAgreement(t *testing.T) {
	cfg := DefaultScoringConfig()
	top := group("DUKE",
		contrib("a", 85, source.PrecisionRegion),
		contrib("b", 70, source.PrecisionRegion),
		contrib("c", 58, source.PrecisionRegion),
	)

	// 85 + 0 precision + 20 agreement = 105 -> clamped to 100.
	got := cfg.Score(top, []AgreementGroup{top}, scoreNow)
	assert.Equal(t, 100.0, got)
	assert.Equal(t, LevelVerified, cfg.Level(got))
}

func TestScore_PairAgreementWithPrecision(t *testing.T) {
	cfg := DefaultScoringConfig()
	top := group("DUKE",
		contrib("a", 60, source.PrecisionPoint),
		contrib("b", 55, source.PrecisionRegion),
	)

	// 60 + 15 point + 10 pair = 85.
	assert.Equal(t, 85.0, cfg.Score(top, []AgreementGroup{top}, scoreNow))
}

func TestScore_DisagreementPenalty(t *testing.T) {
	cfg := DefaultScoringConfig()
	top := group("DUKE", contrib("a", 85, source.PrecisionRegion))
	rival := group("ENERGYUNITED", contrib("b", 80, source.PrecisionRegion))

	// 85 + 0 + 0 agreement - 15 disagreement = 70.
	got := cfg.Score(top, []AgreementGroup{top, rival}, scoreNow)
	assert.Equal(t, 70.0, got)
	assert.Equal(t, LevelHigh, cfg.Level(got))
}

func TestScore_NoPenaltyWhenDominant(t *testing.T) {
	cfg := DefaultScoringConfig()
	top := group("DUKE",
		contrib("a", 85, source.PrecisionRegion),
		contrib("b", 70, source.PrecisionRegion),
		contrib("c", 58, source.PrecisionRegion),
	)
	rival := group("ENERGYUNITED", contrib("d", 80, source.PrecisionRegion))

	// Rival count (1) is two below top count (3): no disagreement penalty.
	assert.Equal(t, 100.0, cfg.Score(top, []AgreementGroup{top, rival}, scoreNow))
}

func TestScore_StalenessPenalty(t *testing.T) {
	cfg := DefaultScoringConfig()

	fresh := scoreNow.AddDate(0, -6, 0)
	stale := scoreNow.AddDate(0, -18, 0)
	ancient := scoreNow.AddDate(-3, 0, 0)

	assert.Equal(t, 50.0, cfg.Score(group("X", contribAged("a", 50, source.PrecisionRegion, fresh)), nil, scoreNow))
	assert.Equal(t, 45.0, cfg.Score(group("X", contribAged("a", 50, source.PrecisionRegion, stale)), nil, scoreNow))
	assert.Equal(t, 40.0, cfg.Score(group("X", contribAged("a", 50, source.PrecisionRegion, ancient)), nil, scoreNow))
}

func TestScore_FreshestContributorVouchesForCurrency(t *testing.T) {
	cfg := DefaultScoringConfig()
	ancient := scoreNow.AddDate(-3, 0, 0)
	fresh := scoreNow.AddDate(0, -1, 0)

	top := group("X",
		contribAged("a", 50, source.PrecisionRegion, ancient),
		contribAged("b", 40, source.PrecisionRegion, fresh),
	)

	// 50 + 10 pair bonus, no staleness because one contributor is fresh.
	assert.Equal(t, 60.0, cfg.Score(top, []AgreementGroup{top}, scoreNow))
}

func TestScore_MonotonicAgreement(t *testing.T) {
	cfg := DefaultScoringConfig()
	ancient := scoreNow.AddDate(-3, 0, 0)

	base := group("DUKE",
		contrib("a", 85, source.PrecisionRegion),
	)
	rival := group("OTHER", contrib("z", 60, source.PrecisionRegion))

	prev := cfg.Score(base, []AgreementGroup{base, rival}, scoreNow)

	// Keep adding agreeing sources, including stale ones; the score must
	// never decrease.
	additions := []Contribution{
		contribAged("b", 40, source.PrecisionRegion, ancient),
		contribAged("c", 90, source.PrecisionPostal, ancient),
		contrib("d", 30, source.PrecisionRegion),
		contribAged("e", 85, source.PrecisionPoint, ancient),
	}
	for _, add := range additions {
		base.Contributions = append(base.Contributions, add)
		got := cfg.Score(base, []AgreementGroup{base, rival}, scoreNow)
		assert.GreaterOrEqual(t, got, prev, "adding %s decreased score", add.Source)
		prev = got
	}
}

func TestScore_Clamped(t *testing.T) {
	cfg := DefaultScoringConfig()

	low := group("X", contribAged("a", 5, source.PrecisionRegion, scoreNow.AddDate(-5, 0, 0)))
	rival := group("Y", contrib("b", 90, source.PrecisionRegion))
	got := cfg.Score(low, []AgreementGroup{low, rival}, scoreNow)
	assert.GreaterOrEqual(t, got, 0.0)
	assert.LessOrEqual(t, got, 100.0)
}

func TestLevel_Thresholds(t *testing.T) {
	cfg := DefaultScoringConfig()

	assert.Equal(t, LevelVerified, cfg.Level(80))
	assert.Equal(t, LevelHigh, cfg.Level(79.9))
	assert.Equal(t, LevelHigh, cfg.Level(60))
	assert.Equal(t, LevelMedium, cfg.Level(59.9))
	assert.Equal(t, LevelMedium, cfg.Level(40))
	assert.Equal(t, LevelLow, cfg.Level(39.9))
	assert.Equal(t, LevelLow, cfg.Level(0))
}

func TestAgreed(t *testing.T) {
	cfg := DefaultScoringConfig()

	pair := group("X", contrib("a", 50, source.PrecisionRegion), contrib("b", 40, source.PrecisionRegion))
	assert.True(t, cfg.Agreed(&pair))

	authoritative := group("X", contrib("gov", 85, source.PrecisionPoint))
	assert.True(t, cfg.Agreed(&authoritative))

	lone := group("X", contrib("a", 50, source.PrecisionRegion))
	assert.False(t, cfg.Agreed(&lone))

	assert.False(t, cfg.Agreed(nil))
}

func TestDisputed(t *testing.T) {
	cfg := DefaultScoringConfig()

	top := group("X", contrib("a", 85, source.PrecisionRegion))
	close := group("Y", contrib("b", 80, source.PrecisionRegion))
	weak := group("Z", contrib("c", 20, source.PrecisionRegion))

	assert.True(t, cfg.Disputed(&top, &close))
	assert.False(t, cfg.Disputed(&top, &weak), "dominance margin exceeded")
	assert.False(t, cfg.Disputed(&top, nil))

	big := group("X",
		contrib("a", 85, source.PrecisionRegion),
		contrib("b", 70, source.PrecisionRegion),
		contrib("c", 58, source.PrecisionRegion),
	)
	lone := group("Y", contrib("d", 80, source.PrecisionRegion))
	assert.False(t, cfg.Disputed(&big, &lone), "3 vs 1 is not comparable strength")
}

func TestWithOverrides(t *testing.T) {
	cfg := DefaultScoringConfig().WithOverrides(map[string]float64{
		"point_bonus":          20,
		"disagreement_penalty": 5,
		"unknown_key":          99,
	})

	assert.Equal(t, 20.0, cfg.PointBonus)
	assert.Equal(t, 5.0, cfg.DisagreementPenalty)
	// Untouched constants keep defaults.
	assert.Equal(t, 10.0, cfg.AgreementBonusPair)
}
