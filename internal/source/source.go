// Package source defines the data-source contract for utility provider
// lookups and the registry of configured sources.
package source

import (
	"context"
	"time"
)

// Category identifies the utility service being resolved.
type Category string

// Known categories. The pipeline is category-agnostic; these are the ones
// shipped in the default configuration.
const (
	CategoryElectric Category = "electric"
	CategoryGas      Category = "gas"
	CategoryWater    Category = "water"
)

// Precision describes how geographically specific a source's answer is.
type Precision string

const (
	PrecisionRegion    Precision = "region"
	PrecisionPostal    Precision = "postal"
	PrecisionSubPostal Precision = "subpostal"
	PrecisionPoint     Precision = "point"
)

// Rank orders precisions from coarsest (0) to finest (3). Unknown values
// rank below region.
func (p Precision) Rank() int {
	switch p {
	case PrecisionRegion:
		return 0
	case PrecisionPostal:
		return 1
	case PrecisionSubPostal:
		return 2
	case PrecisionPoint:
		return 3
	default:
		return -1
	}
}

// QueryContext is the immutable input to a resolution request. It is shared
// read-only across all concurrently queried sources.
type QueryContext struct {
	Category  Category `json:"category"`
	Address   string   `json:"address,omitempty"`
	Latitude  float64  `json:"latitude,omitempty"`
	Longitude float64  `json:"longitude,omitempty"`
	State     string   `json:"state,omitempty"`
	County    string   `json:"county,omitempty"`
	City      string   `json:"city,omitempty"`
	ZIP       string   `json:"zip,omitempty"`
}

// HasPoint reports whether the context carries usable coordinates.
func (q QueryContext) HasPoint() bool {
	return q.Latitude != 0 || q.Longitude != 0
}

// Candidate is a single provider-name answer returned by a source.
// Identity is filled in by the resolver after normalization; sources only
// populate the raw name and contact metadata.
type Candidate struct {
	Name     string `json:"name"`
	Identity string `json:"identity,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Website  string `json:"website,omitempty"`
}

// SourceResult is the outcome of querying one source. A nil *SourceResult
// from Query means the source had no answer, which is a valid non-error
// outcome.
type SourceResult struct {
	Source         string     `json:"source"`
	BaseConfidence float64    `json:"base_confidence"`
	Precision      Precision  `json:"precision"`
	Candidates     []Candidate `json:"candidates"`
	DataAsOf       *time.Time `json:"data_as_of,omitempty"`
	Raw            []byte     `json:"-"`
}

// Source is an independent data provider answering "what serves this
// location" for one or more categories. Implementations must not mutate
// shared state and must return (nil, nil) for "no data found"; errors are
// reserved for genuine transport or parse failures.
type Source interface {
	// Name returns the source identifier used in registry config and audit
	// output.
	Name() string
	// Meta returns the source's static configuration.
	Meta() Meta
	// Query looks up the provider for the given context. The caller imposes
	// the timeout through ctx.
	Query(ctx context.Context, qc QueryContext) (*SourceResult, error)
}

// Meta is the static, per-source configuration declared in the registry.
type Meta struct {
	Name           string
	Categories     []Category
	States         []string // empty = nationwide
	BaseConfidence float64
	Precision      Precision
	DataAsOf       *time.Time
}

// AppliesTo reports whether the source is configured for the given category
// and state.
func (m Meta) AppliesTo(cat Category, state string) bool {
	found := false
	for _, c := range m.Categories {
		if c == cat {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if len(m.States) == 0 {
		return true
	}
	for _, s := range m.States {
		if s == state {
			return true
		}
	}
	return false
}

// NewResult builds a single-candidate SourceResult from the source's meta.
func (m Meta) NewResult(c Candidate) *SourceResult {
	return &SourceResult{
		Source:         m.Name,
		BaseConfidence: m.BaseConfidence,
		Precision:      m.Precision,
		Candidates:     []Candidate{c},
		DataAsOf:       m.DataAsOf,
	}
}
