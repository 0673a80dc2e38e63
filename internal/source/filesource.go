package source

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FileSource answers lookups from a static YAML dataset keyed by state,
// county, and ZIP. The whole dataset is loaded at startup and read-only
// afterward.
type FileSource struct {
	meta    Meta
	entries []DatasetEntry
}

// DatasetEntry is one row of a static dataset.
type DatasetEntry struct {
	State    string `yaml:"state"`
	County   string `yaml:"county,omitempty"`
	ZIP      string `yaml:"zip,omitempty"`
	Provider string `yaml:"provider"`
	Phone    string `yaml:"phone,omitempty"`
	Website  string `yaml:"website,omitempty"`
}

type datasetFile struct {
	Entries []DatasetEntry `yaml:"entries"`
}

// LoadFileSource reads a YAML dataset from disk.
func LoadFileSource(meta Meta, path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source %s: read dataset %s", meta.Name, path)
	}

	var df datasetFile
	if err := yaml.Unmarshal(data, &df); err != nil {
		return nil, eris.Wrapf(err, "source %s: parse dataset", meta.Name)
	}

	for i, e := range df.Entries {
		if e.Provider == "" {
			return nil, eris.Errorf("source %s: dataset entry %d missing provider", meta.Name, i)
		}
	}

	return &FileSource{meta: meta, entries: df.Entries}, nil
}

// NewFileSource builds a FileSource from in-memory entries, for tests.
func NewFileSource(meta Meta, entries []DatasetEntry) *FileSource {
	return &FileSource{meta: meta, entries: entries}
}

// Name implements Source.
func (s *FileSource) Name() string { return s.meta.Name }

// Meta implements Source.
func (s *FileSource) Meta() Meta { return s.meta }

// Query implements Source. The most specific matching entry wins:
// ZIP beats county beats state. Returns (nil, nil) when nothing matches.
func (s *FileSource) Query(_ context.Context, qc QueryContext) (*SourceResult, error) {
	var best *DatasetEntry
	bestRank := -1
	for i := range s.entries {
		e := &s.entries[i]
		rank, ok := matchRank(e, qc)
		if !ok {
			continue
		}
		if rank > bestRank {
			best = e
			bestRank = rank
		}
	}
	if best == nil {
		return nil, nil
	}

	res := s.meta.NewResult(Candidate{
		Name:    best.Provider,
		Phone:   best.Phone,
		Website: best.Website,
	})
	// A state-level row is only region-precise no matter what the source
	// declares; never report finer than the row that actually matched.
	if p := rankPrecision(bestRank); p.Rank() < res.Precision.Rank() {
		res.Precision = p
	}
	return res, nil
}

// matchRank scores how specifically an entry matches the context:
// 2 = ZIP, 1 = county, 0 = state only.
func matchRank(e *DatasetEntry, qc QueryContext) (int, bool) {
	if e.State != "" && !strings.EqualFold(e.State, qc.State) {
		return 0, false
	}
	if e.ZIP != "" {
		if e.ZIP != qc.ZIP {
			return 0, false
		}
		return 2, true
	}
	if e.County != "" {
		if !strings.EqualFold(e.County, qc.County) {
			return 0, false
		}
		return 1, true
	}
	if e.State == "" {
		return 0, false
	}
	return 0, true
}

func rankPrecision(rank int) Precision {
	switch rank {
	case 2:
		return PrecisionPostal
	default:
		return PrecisionRegion
	}
}
