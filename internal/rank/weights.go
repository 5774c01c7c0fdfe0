// Package rank orders candidates by a weighted multi-factor score and
// reports score distribution statistics for run-quality diagnostics.
package rank

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Weights holds the factor weights of the scoring formula.
type Weights struct {
	Relevance   float64 `yaml:"relevance"`
	Credibility float64 `yaml:"credibility"`
	Recency     float64 `yaml:"recency"`
	Diversity   float64 `yaml:"diversity"`
}

// Profile is the full ranking configuration, loadable from a YAML file so
// deployments can tune weights without rebuilding.
type Profile struct {
	Weights Weights `yaml:"weights"`

	// SourceCredibility maps worker origins to a credibility score in [0,1].
	SourceCredibility map[string]float64 `yaml:"source_credibility"`

	// DefaultCredibility applies to origins missing from SourceCredibility.
	DefaultCredibility float64 `yaml:"default_credibility"`

	// RecencyHalfLifeDays controls the exponential decay of the recency
	// factor; RecencyFloor bounds it from below.
	RecencyHalfLifeDays int     `yaml:"recency_half_life_days"`
	RecencyFloor        float64 `yaml:"recency_floor"`

	// Band boundaries for distribution statistics: scores below LowBand are
	// "low", below HighBand "medium", otherwise "high".
	LowBand  float64 `yaml:"low_band"`
	HighBand float64 `yaml:"high_band"`
}

// DefaultProfile returns the built-in ranking profile.
func DefaultProfile() Profile {
	return Profile{
		Weights: Weights{
			Relevance:   0.40,
			Credibility: 0.25,
			Recency:     0.20,
			Diversity:   0.15,
		},
		SourceCredibility: map[string]float64{
			"places":    0.9,
			"atlas":     0.8,
			"narrative": 0.6,
		},
		DefaultCredibility:  0.5,
		RecencyHalfLifeDays: 180,
		RecencyFloor:        0.2,
		LowBand:             0.4,
		HighBand:            0.7,
	}
}

// profileFile mirrors Profile with pointer fields so an explicit zero in the
// file (a legitimate value for the floor and band keys) is distinguishable
// from a key that was left out.
type profileFile struct {
	Weights             *Weights           `yaml:"weights"`
	SourceCredibility   map[string]float64 `yaml:"source_credibility"`
	DefaultCredibility  *float64           `yaml:"default_credibility"`
	RecencyHalfLifeDays *int               `yaml:"recency_half_life_days"`
	RecencyFloor        *float64           `yaml:"recency_floor"`
	LowBand             *float64           `yaml:"low_band"`
	HighBand            *float64           `yaml:"high_band"`
}

// LoadProfile reads a ranking profile from a YAML file. Keys present in the
// file override the defaults; absent keys keep them.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()

	data, err := os.ReadFile(path)
	if err != nil {
		return p, eris.Wrapf(err, "rank: read profile %s", path)
	}

	var wrapper struct {
		Ranking profileFile `yaml:"ranking"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return p, eris.Wrap(err, "rank: parse profile")
	}

	loaded := wrapper.Ranking
	if loaded.Weights != nil {
		p.Weights = *loaded.Weights
	}
	if len(loaded.SourceCredibility) > 0 {
		p.SourceCredibility = loaded.SourceCredibility
	}
	if loaded.DefaultCredibility != nil {
		p.DefaultCredibility = *loaded.DefaultCredibility
	}
	if loaded.RecencyHalfLifeDays != nil {
		p.RecencyHalfLifeDays = *loaded.RecencyHalfLifeDays
	}
	if loaded.RecencyFloor != nil {
		p.RecencyFloor = *loaded.RecencyFloor
	}
	if loaded.LowBand != nil {
		p.LowBand = *loaded.LowBand
	}
	if loaded.HighBand != nil {
		p.HighBand = *loaded.HighBand
	}

	return p, nil
}
