package resolver

import (
	"time"

	"github.com/bekeleftw/utility-lookup-api-sub000/internal/source"
)

// Level is the coarse confidence classification of a resolution.
type Level string

const (
	LevelVerified Level = "verified"
	LevelHigh     Level = "high"
	LevelMedium   Level = "medium"
	LevelLow      Level = "low"
)

// ScoringConfig holds every constant of the confidence formula. The
// magnitudes are tuned policy, not a derived model, so they are all
// overridable through configuration.
type ScoringConfig struct {
	// Precision bonuses by match precision.
	RegionBonus    float64 `mapstructure:"region_bonus"`
	PostalBonus    float64 `mapstructure:"postal_bonus"`
	SubPostalBonus float64 `mapstructure:"subpostal_bonus"`
	PointBonus     float64 `mapstructure:"point_bonus"`

	// Agreement bonuses by agreeing-source count.
	AgreementBonusTriple float64 `mapstructure:"agreement_bonus_triple"` // >=3 sources
	AgreementBonusPair   float64 `mapstructure:"agreement_bonus_pair"`   // exactly 2

	// DisagreementPenalty applies when a competing group's source count is
	// within one of the top group's.
	DisagreementPenalty float64 `mapstructure:"disagreement_penalty"`

	// Staleness penalties by declared data age.
	StalenessPenalty12mo float64 `mapstructure:"staleness_penalty_12mo"` // 12-24 months
	StalenessPenalty24mo float64 `mapstructure:"staleness_penalty_24mo"` // >24 months

	// AuthoritativeThreshold exempts a lone source from the two-source
	// agreement requirement when its base confidence is at or above it.
	AuthoritativeThreshold float64 `mapstructure:"authoritative_threshold"`

	// DominanceMargin is the summed-confidence lead at which a top group is
	// considered dominant over a same-sized competitor (no arbitration).
	DominanceMargin float64 `mapstructure:"dominance_margin"`

	// ArbitrationMargin caps how far an arbitrated confidence may exceed
	// the deterministic score.
	ArbitrationMargin float64 `mapstructure:"arbitration_margin"`

	// UnarbitratedPenalty is subtracted when arbitration fails and the
	// deterministic top group is used anyway.
	UnarbitratedPenalty float64 `mapstructure:"unarbitrated_penalty"`

	// Level thresholds.
	VerifiedThreshold float64 `mapstructure:"verified_threshold"`
	HighThreshold     float64 `mapstructure:"high_threshold"`
	MediumThreshold   float64 `mapstructure:"medium_threshold"`
}

// DefaultScoringConfig returns the default policy constants.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		RegionBonus:    0,
		PostalBonus:    4,
		SubPostalBonus: 8,
		PointBonus:     15,

		AgreementBonusTriple: 20,
		AgreementBonusPair:   10,

		DisagreementPenalty: 15,

		StalenessPenalty12mo: 5,
		StalenessPenalty24mo: 10,

		AuthoritativeThreshold: 80,
		DominanceMargin:        25,
		ArbitrationMargin:      10,
		UnarbitratedPenalty:    15,

		VerifiedThreshold: 80,
		HighThreshold:     60,
		MediumThreshold:   40,
	}
}

// WithOverrides returns a copy of the config with the named constants
// replaced. Keys follow the mapstructure tags; unknown keys are ignored so
// stale config entries never break startup.
func (c ScoringConfig) WithOverrides(overrides map[string]float64) ScoringConfig {
	for key, val := range overrides {
		switch key {
		case "region_bonus":
			c.RegionBonus = val
		case "postal_bonus":
			c.PostalBonus = val
		case "subpostal_bonus":
			c.SubPostalBonus = val
		case "point_bonus":
			c.PointBonus = val
		case "agreement_bonus_triple":
			c.AgreementBonusTriple = val
		case "agreement_bonus_pair":
			c.AgreementBonusPair = val
		case "disagreement_penalty":
			c.DisagreementPenalty = val
		case "staleness_penalty_12mo":
			c.StalenessPenalty12mo = val
		case "staleness_penalty_24mo":
			c.StalenessPenalty24mo = val
		case "authoritative_threshold":
			c.AuthoritativeThreshold = val
		case "dominance_margin":
			c.DominanceMargin = val
		case "arbitration_margin":
			c.ArbitrationMargin = val
		case "unarbitrated_penalty":
			c.UnarbitratedPenalty = val
		case "verified_threshold":
			c.VerifiedThreshold = val
		case "high_threshold":
			c.HighThreshold = val
		case "medium_threshold":
			c.MediumThreshold = val
		}
	}
	return c
}

// PrecisionBonus maps a match precision to its score bonus.
func (c ScoringConfig) PrecisionBonus(p source.Precision) float64 {
	switch p {
	case source.PrecisionPoint:
		return c.PointBonus
	case source.PrecisionSubPostal:
		return c.SubPostalBonus
	case source.PrecisionPostal:
		return c.PostalBonus
	default:
		return c.RegionBonus
	}
}

// Score computes the deterministic confidence for the top-ranked group:
//
//	score = max base confidence in group
//	      + precision bonus (best precision among contributors)
//	      + agreement bonus (by contributor count)
//	      - disagreement penalty (competitor within one source of the top)
//	      - staleness penalty (freshest declared data age in the group)
//
// clamped to [0,100]. Pure: same inputs always produce the same score.
func (c ScoringConfig) Score(top AgreementGroup, competitors []AgreementGroup, now time.Time) float64 {
	score := top.MaxConfidence()
	score += c.PrecisionBonus(top.BestPrecision())

	switch {
	case top.Count() >= 3:
		score += c.AgreementBonusTriple
	case top.Count() == 2:
		score += c.AgreementBonusPair
	}

	for _, comp := range competitors {
		if comp.Identity == top.Identity {
			continue
		}
		if comp.Count()+1 >= top.Count() {
			score -= c.DisagreementPenalty
			break
		}
	}

	score -= c.stalenessPenalty(top, now)

	return clamp(score)
}

// stalenessPenalty keys off the freshest declared data age in the group:
// one current source vouching for the answer is enough to trust its
// currency. Undated data is assumed current, and adding a contributor can
// therefore never increase the penalty.
func (c ScoringConfig) stalenessPenalty(g AgreementGroup, now time.Time) float64 {
	var freshest *time.Time
	for _, contrib := range g.Contributions {
		if contrib.DataAsOf == nil {
			return 0
		}
		if freshest == nil || contrib.DataAsOf.After(*freshest) {
			freshest = contrib.DataAsOf
		}
	}
	if freshest == nil {
		return 0
	}

	months := now.Sub(*freshest).Hours() / (24 * 30)
	switch {
	case months > 24:
		return c.StalenessPenalty24mo
	case months >= 12:
		return c.StalenessPenalty12mo
	default:
		return 0
	}
}

// Level maps a score to its coarse level.
func (c ScoringConfig) Level(score float64) Level {
	switch {
	case score >= c.VerifiedThreshold:
		return LevelVerified
	case score >= c.HighThreshold:
		return LevelHigh
	case score >= c.MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Agreed reports whether the top group counts as agreement: two or more
// contributing sources, or a lone authoritative source.
func (c ScoringConfig) Agreed(top *AgreementGroup) bool {
	if top == nil {
		return false
	}
	if top.Count() >= 2 {
		return true
	}
	return top.MaxConfidence() >= c.AuthoritativeThreshold
}

// Disputed reports whether the runner-up is close enough to the top group
// that deterministic resolution cannot pick a clear winner: contributor
// counts within one of each other and a summed-confidence lead below the
// dominance margin.
func (c ScoringConfig) Disputed(top, second *AgreementGroup) bool {
	if top == nil || second == nil {
		return false
	}
	if second.Count()+1 < top.Count() {
		return false
	}
	return top.TotalConfidence()-second.TotalConfidence() < c.DominanceMargin
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
