// Package dedupe groups near-duplicate candidates using combined text and
// geographic similarity.
package dedupe

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/roamline/trip-cli/internal/model"
)

// Config holds the similarity weights and clustering threshold. The defaults
// were chosen empirically; they are configurable rather than hard-coded so
// deployments can revisit them.
type Config struct {
	TitleWeight      float64 `mapstructure:"title_weight"`
	LocationWeight   float64 `mapstructure:"location_weight"`
	ClusterThreshold float64 `mapstructure:"cluster_threshold"`
}

// DefaultConfig returns the default 60/40 weighting and 0.85 threshold.
func DefaultConfig() Config {
	return Config{
		TitleWeight:      0.6,
		LocationWeight:   0.4,
		ClusterThreshold: 0.85,
	}
}

// Geographic distance bands for location similarity, in meters.
const (
	distExact = 50
	distNear  = 200
	distClose = 500
)

// earthRadiusM is the mean Earth radius in meters.
const earthRadiusM = 6371000

// stripMarks removes diacritic marks after NFKD decomposition so that
// "café" and "cafe" tokenize identically.
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases s and strips diacritics and surrounding punctuation
// for token comparison.
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// tokenSet splits normalized text into a set of words, trimming punctuation.
func tokenSet(s string) map[string]bool {
	words := strings.Fields(Normalize(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?()[]{}\"'&-")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// Jaccard computes the Jaccard coefficient over whitespace-tokenized,
// normalized text. Two empty strings are similarity 1.0; one empty and one
// non-empty is 0.0.
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// Haversine returns the great-circle distance between p and q in meters.
func Haversine(p, q model.Coordinates) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := q.Lat * math.Pi / 180
	dLat := (q.Lat - p.Lat) * math.Pi / 180
	dLng := (q.Lng - p.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// LocationSimilarity prefers geographic distance when both candidates carry
// coordinates, banded by proximity; otherwise it falls back to Jaccard
// similarity over the free-text location strings.
func LocationSimilarity(a, b model.Candidate) float64 {
	if a.Coordinates != nil && b.Coordinates != nil {
		switch d := Haversine(*a.Coordinates, *b.Coordinates); {
		case d < distExact:
			return 1.0
		case d < distNear:
			return 0.8
		case d < distClose:
			return 0.5
		default:
			return 0.0
		}
	}
	return Jaccard(a.LocationText, b.LocationText)
}

// Similarity combines title and location similarity with the configured
// weights.
func (c Config) Similarity(a, b model.Candidate) float64 {
	return c.TitleWeight*Jaccard(a.Title, b.Title) + c.LocationWeight*LocationSimilarity(a, b)
}
