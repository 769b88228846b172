package kb

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Credit is one (work, relation, person) edge from a seed file. Relation is
// kept as the raw label; callers validate it against the closed relation set.
type Credit struct {
	Work     string `yaml:"work" json:"work"`
	Relation string `yaml:"relation" json:"relation"`
	Person   string `yaml:"person" json:"person"`
}

// Seed is the YAML knowledge-base seed format:
//
//	works: [青花瓷, 七里香]
//	collections: [我很忙]
//	persons: [周杰伦, 方文山]
//	credits:
//	  - {work: 青花瓷, relation: lyricist, person: 方文山}
type Seed struct {
	Works       []string `yaml:"works"`
	Collections []string `yaml:"collections"`
	Persons     []string `yaml:"persons"`
	Credits     []Credit `yaml:"credits"`
}

// LoadSeedFile reads and parses a YAML seed file.
func LoadSeedFile(path string) (*Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return ParseSeed(b)
}

// ParseSeed parses YAML seed content.
func ParseSeed(b []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed yaml: %w", err)
	}
	for i, c := range seed.Credits {
		if strings.TrimSpace(c.Work) == "" || strings.TrimSpace(c.Person) == "" {
			return nil, fmt.Errorf("credit %d: work and person are required", i)
		}
	}
	return &seed, nil
}

// Names implements Source.
func (s *Seed) Names(_ context.Context, cat Category) ([]string, error) {
	switch cat {
	case Work:
		return s.Works, nil
	case Collection:
		return s.Collections, nil
	case Person:
		return s.Persons, nil
	default:
		return nil, fmt.Errorf("unknown category %q", cat)
	}
}
