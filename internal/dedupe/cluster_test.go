package dedupe

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roamline/trip-cli/internal/model"
)

var tokyoTower = model.Coordinates{Lat: 35.6586, Lng: 139.7454}

// fortyMetersNorth is close enough for the exact-location band.
var fortyMetersNorth = model.Coordinates{Lat: 35.65896, Lng: 139.7454}

func TestCluster_BoundaryAboveThreshold(t *testing.T) {
	cfg := DefaultConfig()

	// Title Jaccard 3/4 = 0.75, location 1.0 → 0.6*0.75 + 0.4 = 0.85,
	// exactly at the threshold: must merge.
	a := model.Candidate{ID: "a", Title: "Tokyo Tower Observation Deck", Origin: "places", Score: 0.9, Coordinates: &tokyoTower}
	b := model.Candidate{ID: "b", Title: "Tokyo Tower Observation", Origin: "atlas", Score: 0.7, Coordinates: &fortyMetersNorth}
	require.InDelta(t, 0.85, cfg.Similarity(a, b), 1e-9)

	result := Cluster([]model.Candidate{a, b}, cfg)
	require.Len(t, result.Clusters, 1)
	assert.Equal(t, "a", result.Clusters[0].Representative.ID)
	assert.Equal(t, 2, result.Clusters[0].MemberCount)
	assert.Equal(t, 1, result.Merged)
}

func TestCluster_BoundaryBelowThreshold(t *testing.T) {
	cfg := DefaultConfig()

	// Title Jaccard 2/5 = 0.4, location 1.0 → 0.64: must not merge.
	a := model.Candidate{ID: "a", Title: "Tokyo Tower Observation Deck", Origin: "places", Score: 0.9, Coordinates: &tokyoTower}
	b := model.Candidate{ID: "b", Title: "Tokyo Tower Observatory", Origin: "atlas", Score: 0.7, Coordinates: &fortyMetersNorth}
	require.Less(t, cfg.Similarity(a, b), cfg.ClusterThreshold)

	result := Cluster([]model.Candidate{a, b}, cfg)
	assert.Len(t, result.Clusters, 2)
	assert.Equal(t, 0, result.Merged)
}

func TestCluster_RepresentativeIsHighestScored(t *testing.T) {
	cfg := DefaultConfig()
	members := []model.Candidate{
		{ID: "low", Title: "Meiji Shrine", Origin: "places", Score: 0.5, LocationText: "Shibuya"},
		{ID: "high", Title: "Meiji Shrine", Origin: "atlas", Score: 0.95, LocationText: "Shibuya"},
		{ID: "mid", Title: "Meiji Shrine", Origin: "narrative", Score: 0.7, LocationText: "Shibuya"},
	}

	result := Cluster(members, cfg)
	require.Len(t, result.Clusters, 1)
	cluster := result.Clusters[0]

	assert.Equal(t, "high", cluster.Representative.ID)
	assert.Equal(t, 3, cluster.MemberCount)
	require.Len(t, cluster.Alternates, 2)
	assert.Equal(t, "mid", cluster.Alternates[0].ID, "alternates ordered by score")
}

func TestCluster_AlternatesDistinctOriginsAndBounded(t *testing.T) {
	cfg := DefaultConfig()
	var members []model.Candidate
	origins := []string{"places", "places", "atlas", "narrative", "narrative", "wiki", "forum"}
	for i, origin := range origins {
		members = append(members, model.Candidate{
			ID:           fmt.Sprintf("c%d", i),
			Title:        "Fushimi Inari Taisha",
			LocationText: "Kyoto",
			Origin:       origin,
			Score:        1.0 - float64(i)*0.1,
		})
	}

	result := Cluster(members, cfg)
	require.Len(t, result.Clusters, 1)
	cluster := result.Clusters[0]

	assert.Equal(t, "c0", cluster.Representative.ID)
	assert.LessOrEqual(t, len(cluster.Alternates), model.MaxAlternates)
	assert.Equal(t, len(origins), cluster.MemberCount)

	seen := map[string]bool{cluster.Representative.Origin: true}
	for _, alt := range cluster.Alternates {
		assert.False(t, seen[alt.Origin], "duplicate alternate origin %s", alt.Origin)
		seen[alt.Origin] = true
	}
}

func TestCluster_Idempotence(t *testing.T) {
	cfg := DefaultConfig()
	candidates := []model.Candidate{
		{ID: "a1", Title: "Tokyo Tower Observation Deck", Origin: "places", Score: 0.9, Coordinates: &tokyoTower},
		{ID: "a2", Title: "Tokyo Tower Observation", Origin: "atlas", Score: 0.8, Coordinates: &fortyMetersNorth},
		{ID: "b1", Title: "Senso-ji Temple", Origin: "places", Score: 0.85, LocationText: "Asakusa"},
		{ID: "b2", Title: "Senso-ji Temple", Origin: "narrative", Score: 0.6, LocationText: "Asakusa"},
		{ID: "c1", Title: "Shibuya Sky Deck", Origin: "atlas", Score: 0.7, LocationText: "Shibuya"},
	}

	first := Cluster(candidates, cfg)
	require.Len(t, first.Clusters, 3)

	// Re-clustering an already-deduplicated set must not merge any further
	// pairs: every remaining pairwise similarity is below the threshold.
	second := Cluster(first.Candidates, cfg)
	assert.Len(t, second.Clusters, len(first.Clusters))
	assert.Equal(t, 0, second.Merged)

	for i := range first.Candidates {
		for j := i + 1; j < len(first.Candidates); j++ {
			sim := cfg.Similarity(first.Candidates[i], first.Candidates[j])
			assert.Less(t, sim, cfg.ClusterThreshold,
				"deduped pair %s/%s still above threshold", first.Candidates[i].ID, first.Candidates[j].ID)
		}
	}
}

func TestCluster_EmptyInput(t *testing.T) {
	result := Cluster(nil, DefaultConfig())
	assert.Empty(t, result.Clusters)
	assert.Empty(t, result.Candidates)
	assert.Equal(t, 0, result.Merged)
}
