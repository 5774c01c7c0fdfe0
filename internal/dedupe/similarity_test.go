package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roamline/trip-cli/internal/model"
)

func TestJaccard_Properties(t *testing.T) {
	cases := [][2]string{
		{"Tokyo Tower Observation Deck", "Tokyo Tower Observatory"},
		{"senso-ji temple", "Senso-Ji Temple Asakusa"},
		{"", "shibuya"},
		{"a b c", "c b a"},
	}
	for _, c := range cases {
		assert.Equal(t, Jaccard(c[0], c[1]), Jaccard(c[1], c[0]), "symmetry for %q / %q", c[0], c[1])
	}

	assert.Equal(t, 1.0, Jaccard("Meiji Shrine", "Meiji Shrine"), "identity for non-empty")
	assert.Equal(t, 1.0, Jaccard("", ""), "two empty strings are identical")
	assert.Equal(t, 0.0, Jaccard("", "Meiji Shrine"), "empty vs non-empty")
}

func TestJaccard_TokenizationAndNormalization(t *testing.T) {
	// Case-insensitive, punctuation-trimmed word sets.
	assert.Equal(t, 1.0, Jaccard("Senso-Ji Temple!", "senso-ji temple"))
	// Diacritics are stripped before comparison.
	assert.Equal(t, 1.0, Jaccard("Café de Flore", "cafe de flore"))
	// {tokyo,tower,observation,deck} vs {tokyo,tower,observatory}: 2/5.
	assert.InDelta(t, 0.4, Jaccard("Tokyo Tower Observation Deck", "Tokyo Tower Observatory"), 1e-9)
}

func TestHaversine_Properties(t *testing.T) {
	p := model.Coordinates{Lat: 35.6586, Lng: 139.7454}
	q := model.Coordinates{Lat: 34.9949, Lng: 135.7850}

	assert.Equal(t, Haversine(p, q), Haversine(q, p))
	assert.Equal(t, 0.0, Haversine(p, p))

	// Tokyo Tower to Kiyomizu-dera is roughly 370 km.
	assert.InDelta(t, 370_000, Haversine(p, q), 10_000)
}

func TestLocationSimilarity_DistanceBands(t *testing.T) {
	base := model.Coordinates{Lat: 35.6586, Lng: 139.7454}
	at := func(meters float64) *model.Coordinates {
		// One degree of latitude is ~111.32 km.
		return &model.Coordinates{Lat: base.Lat + meters/111_320, Lng: base.Lng}
	}

	a := model.Candidate{Coordinates: &base}
	for _, tc := range []struct {
		meters float64
		want   float64
	}{
		{0, 1.0},
		{40, 1.0},
		{120, 0.8},
		{400, 0.5},
		{5000, 0.0},
	} {
		b := model.Candidate{Coordinates: at(tc.meters)}
		assert.Equal(t, tc.want, LocationSimilarity(a, b), "at %.0fm", tc.meters)
	}
}

func TestLocationSimilarity_TextFallback(t *testing.T) {
	a := model.Candidate{LocationText: "Minato City, Tokyo"}
	b := model.Candidate{LocationText: "minato city tokyo"}
	assert.Equal(t, 1.0, LocationSimilarity(a, b))

	// Coordinates on only one side fall back to text.
	coords := model.Coordinates{Lat: 35.6586, Lng: 139.7454}
	c := model.Candidate{Coordinates: &coords, LocationText: "Shibuya"}
	assert.Equal(t, 0.0, LocationSimilarity(c, b))
}

func TestCombinedSimilarity_Weighting(t *testing.T) {
	cfg := DefaultConfig()
	near := model.Coordinates{Lat: 35.6586, Lng: 139.7454}
	alsoNear := model.Coordinates{Lat: 35.65896, Lng: 139.7454} // ~40m north

	a := model.Candidate{Title: "Tokyo Tower Observation Deck", Coordinates: &near}
	b := model.Candidate{Title: "Tokyo Tower Observatory", Coordinates: &alsoNear}

	// Title Jaccard 0.4, location 1.0 → 0.6*0.4 + 0.4*1.0 = 0.64.
	assert.InDelta(t, 0.64, cfg.Similarity(a, b), 1e-9)
}
