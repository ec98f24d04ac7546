// config/overlay.go
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedSource is one entry of the optional sources.yml seed file.
type SeedSource struct {
	OwnerID    int64  `yaml:"owner_id"`
	Type       string `yaml:"type"`
	Identifier string `yaml:"identifier"`
	URL        string `yaml:"url"`
}

type SeedFile struct {
	Sources []SeedSource `yaml:"sources"`
}

// LoadSeedSources reads sources.yml. A missing file is not an error.
func LoadSeedSources(path string) ([]SeedSource, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		// Missing seed file should not kill startup
		return nil, nil
	}

	var sf SeedFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return nil, err
	}

	out := sf.Sources[:0]
	for _, s := range sf.Sources {
		s.Type = strings.TrimSpace(s.Type)
		s.Identifier = strings.TrimSpace(s.Identifier)
		if s.Type == "" || s.Identifier == "" || s.OwnerID <= 0 {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
