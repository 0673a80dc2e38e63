package source

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FileConfig is the top-level sources YAML file.
type FileConfig struct {
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig declares one source in the registry file.
type SourceConfig struct {
	Name           string    `yaml:"name"`
	Kind           string    `yaml:"kind"` // "http", "file", "boundary"
	Categories     []string  `yaml:"categories"`
	States         []string  `yaml:"states,omitempty"`
	BaseConfidence float64   `yaml:"base_confidence"`
	Precision      Precision `yaml:"precision"`
	DataAsOf       string    `yaml:"data_as_of,omitempty"` // YYYY-MM-DD

	HTTP     *HTTPConfig     `yaml:"http,omitempty"`
	File     *DatasetConfig  `yaml:"file,omitempty"`
	Boundary *BoundaryConfig `yaml:"boundary,omitempty"`
}

// HTTPConfig parametrizes a generic HTTP JSON lookup source.
type HTTPConfig struct {
	URL           string  `yaml:"url"` // template with {lat} {lon} {state} {county} {city} {zip} {address}
	ProviderField string  `yaml:"provider_field"`
	PhoneField    string  `yaml:"phone_field,omitempty"`
	WebsiteField  string  `yaml:"website_field,omitempty"`
	ResultsField  string  `yaml:"results_field,omitempty"` // optional array wrapper
	RatePerSec    float64 `yaml:"rate_per_sec,omitempty"`
	MaxRetries    int     `yaml:"max_retries,omitempty"`
}

// DatasetConfig points at a static YAML dataset mapping regions to providers.
type DatasetConfig struct {
	Path string `yaml:"path"`
}

// BoundaryConfig points at a territory polygon file (GeoJSON or shapefile).
type BoundaryConfig struct {
	Path             string `yaml:"path"`
	ProviderProperty string `yaml:"provider_property"`
	PhoneProperty    string `yaml:"phone_property,omitempty"`
	WebsiteProperty  string `yaml:"website_property,omitempty"`
}

// LoadRegistry reads the sources YAML file and builds a Registry with one
// concrete source per entry. Malformed entries fail the load: configuration
// errors are the one class of failure that must not degrade silently.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read registry %s", path)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "source: parse registry")
	}

	reg := NewRegistry()
	baseDir := filepath.Dir(path)
	for _, sc := range fc.Sources {
		src, err := buildSource(sc, baseDir)
		if err != nil {
			return nil, err
		}
		reg.Register(src)
	}
	return reg, nil
}

func buildSource(sc SourceConfig, baseDir string) (Source, error) {
	meta, err := sc.meta()
	if err != nil {
		return nil, err
	}

	switch sc.Kind {
	case "http":
		if sc.HTTP == nil {
			return nil, eris.Errorf("source %s: kind http requires http block", sc.Name)
		}
		return NewHTTPSource(meta, *sc.HTTP), nil
	case "file":
		if sc.File == nil {
			return nil, eris.Errorf("source %s: kind file requires file block", sc.Name)
		}
		return LoadFileSource(meta, resolvePath(baseDir, sc.File.Path))
	case "boundary":
		if sc.Boundary == nil {
			return nil, eris.Errorf("source %s: kind boundary requires boundary block", sc.Name)
		}
		bc := *sc.Boundary
		bc.Path = resolvePath(baseDir, bc.Path)
		return LoadBoundarySource(meta, bc)
	default:
		return nil, eris.Errorf("source %s: unknown kind %q", sc.Name, sc.Kind)
	}
}

func (sc SourceConfig) meta() (Meta, error) {
	if sc.Name == "" {
		return Meta{}, eris.New("source: missing name")
	}
	if sc.BaseConfidence < 0 || sc.BaseConfidence > 100 {
		return Meta{}, eris.Errorf("source %s: base_confidence %v out of range [0,100]", sc.Name, sc.BaseConfidence)
	}
	if sc.Precision.Rank() < 0 {
		return Meta{}, eris.Errorf("source %s: unknown precision %q", sc.Name, sc.Precision)
	}
	if len(sc.Categories) == 0 {
		return Meta{}, eris.Errorf("source %s: at least one category required", sc.Name)
	}

	meta := Meta{
		Name:           sc.Name,
		States:         sc.States,
		BaseConfidence: sc.BaseConfidence,
		Precision:      sc.Precision,
	}
	for _, c := range sc.Categories {
		meta.Categories = append(meta.Categories, Category(c))
	}
	if sc.DataAsOf != "" {
		t, err := time.Parse("2006-01-02", sc.DataAsOf)
		if err != nil {
			return Meta{}, eris.Wrapf(err, "source %s: parse data_as_of", sc.Name)
		}
		meta.DataAsOf = &t
	}
	return meta, nil
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
