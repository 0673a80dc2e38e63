package resolver

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/bekeleftw/utility-lookup-api-sub000/internal/normalize"
	"github.com/bekeleftw/utility-lookup-api-sub000/internal/source"
)

// Contribution records one source's vote for a candidate identity.
type Contribution struct {
	Source         string           `json:"source"`
	BaseConfidence float64          `json:"base_confidence"`
	Precision      source.Precision `json:"precision"`
	Candidate      source.Candidate `json:"candidate"`
	DataAsOf       *time.Time       `json:"data_as_of,omitempty"`
}

// AgreementGroup is the set of candidates sharing a normalized identity,
// with the sources that contributed them.
type AgreementGroup struct {
	Identity      string           `json:"identity"`
	Candidate     source.Candidate `json:"candidate"` // representative, from the strongest contributor
	Contributions []Contribution   `json:"contributions"`
}

// Count returns the number of contributing sources.
func (g AgreementGroup) Count() int { return len(g.Contributions) }

// TotalConfidence sums the contributors' base confidences.
func (g AgreementGroup) TotalConfidence() float64 {
	var sum float64
	for _, c := range g.Contributions {
		sum += c.BaseConfidence
	}
	return sum
}

// MaxConfidence returns the highest contributor base confidence.
func (g AgreementGroup) MaxConfidence() float64 {
	var m float64
	for _, c := range g.Contributions {
		if c.BaseConfidence > m {
			m = c.BaseConfidence
		}
	}
	return m
}

// BestPrecision returns the finest precision among contributors.
func (g AgreementGroup) BestPrecision() source.Precision {
	best := source.Precision("")
	for _, c := range g.Contributions {
		if c.Precision.Rank() > best.Rank() {
			best = c.Precision
		}
	}
	return best
}

// SourceNames lists contributing source names in contribution order.
func (g AgreementGroup) SourceNames() []string {
	out := make([]string, len(g.Contributions))
	for i, c := range g.Contributions {
		out[i] = c.Source
	}
	return out
}

// Validation is the cross-validator's output: competing groups in rank
// order, plus any no-service votes kept aside for audit.
type Validation struct {
	Groups    []AgreementGroup
	NoService *AgreementGroup
}

// Top returns the highest-ranked group, or nil when no real candidates
// were returned.
func (v Validation) Top() *AgreementGroup {
	if len(v.Groups) == 0 {
		return nil
	}
	return &v.Groups[0]
}

// Second returns the runner-up group, or nil.
func (v Validation) Second() *AgreementGroup {
	if len(v.Groups) < 2 {
		return nil
	}
	return &v.Groups[1]
}

// CrossValidate groups every candidate from every source result by
// normalized identity and ranks the groups by (summed base confidence, best
// match precision, contributor count). The ranking is deterministic for a
// fixed result set regardless of source completion order: ties beyond the
// three criteria break on identity.
func CrossValidate(results []source.SourceResult, norm *normalize.Normalizer, category string) Validation {
	byIdentity := make(map[string]*AgreementGroup)
	order := []string{}

	for _, res := range results {
		for _, cand := range res.Candidates {
			identity, aliased := norm.Lookup(category, cand.Name)
			if !aliased {
				zap.L().Debug("no alias for provider name, using cleaned form",
					zap.String("category", category),
					zap.String("raw", cand.Name),
					zap.String("identity", identity),
				)
			}

			cand.Identity = identity
			g, ok := byIdentity[identity]
			if !ok {
				g = &AgreementGroup{Identity: identity, Candidate: cand}
				byIdentity[identity] = g
				order = append(order, identity)
			}
			g.Contributions = append(g.Contributions, Contribution{
				Source:         res.Source,
				BaseConfidence: res.BaseConfidence,
				Precision:      res.Precision,
				Candidate:      cand,
				DataAsOf:       res.DataAsOf,
			})
			// Representative candidate follows the strongest contributor.
			if res.BaseConfidence > groupLeadConfidence(g) {
				g.Candidate = cand
			}
		}
	}

	var v Validation
	for _, identity := range order {
		g := byIdentity[identity]
		sortContributions(g.Contributions)
		if normalize.IsNoService(identity) {
			v.NoService = g
			continue
		}
		v.Groups = append(v.Groups, *g)
	}

	sort.SliceStable(v.Groups, func(i, j int) bool {
		gi, gj := v.Groups[i], v.Groups[j]
		if gi.TotalConfidence() != gj.TotalConfidence() {
			return gi.TotalConfidence() > gj.TotalConfidence()
		}
		if gi.BestPrecision().Rank() != gj.BestPrecision().Rank() {
			return gi.BestPrecision().Rank() > gj.BestPrecision().Rank()
		}
		if gi.Count() != gj.Count() {
			return gi.Count() > gj.Count()
		}
		return gi.Identity < gj.Identity
	})

	return v
}

// groupLeadConfidence returns the base confidence of the contributor whose
// candidate is currently the group representative.
func groupLeadConfidence(g *AgreementGroup) float64 {
	var m float64
	for _, c := range g.Contributions {
		if c.Candidate == g.Candidate && c.BaseConfidence > m {
			m = c.BaseConfidence
		}
	}
	return m
}

func sortContributions(contribs []Contribution) {
	sort.SliceStable(contribs, func(i, j int) bool {
		if contribs[i].BaseConfidence != contribs[j].BaseConfidence {
			return contribs[i].BaseConfidence > contribs[j].BaseConfidence
		}
		return contribs[i].Source < contribs[j].Source
	})
}
