package normalize

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// aliasFile is the on-disk alias table layout:
//
//	aliases:
//	  electric:
//	    "duke energy": Duke Energy Carolinas
//	    "duke energy carolinas, llc": Duke Energy Carolinas
//	  gas:
//	    "psnc": Dominion Energy North Carolina
type aliasFile struct {
	Aliases map[string]map[string]string `yaml:"aliases"`
}

// LoadTable reads a category-scoped alias table from a YAML file and builds
// a Normalizer. Alias additions are a data change, not a code change.
func LoadTable(path string) (*Normalizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: read aliases %s", path)
	}

	var af aliasFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return nil, eris.Wrap(err, "normalize: parse aliases")
	}

	return New(af.Aliases), nil
}
