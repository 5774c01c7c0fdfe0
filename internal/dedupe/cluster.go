package dedupe

import (
	"sort"

	"go.uber.org/zap"

	"github.com/roamline/trip-cli/internal/model"
)

// Result holds the outcome of clustering a candidate set.
type Result struct {
	Clusters   []model.ClusterInfo `json:"clusters"`
	Candidates []model.Candidate   `json:"candidates"`
	InputCount int                 `json:"input_count"`
	Merged     int                 `json:"merged"`
}

// Cluster groups near-duplicate candidates. Candidates are compared against
// each cluster's seed (its first member) in input order; the first cluster
// whose combined similarity meets the threshold absorbs the candidate. The
// highest-scored member of each cluster becomes the representative, and up
// to model.MaxAlternates members with origins distinct from the
// representative and from each other are retained as alternates. Remaining
// members are only counted.
func Cluster(candidates []model.Candidate, cfg Config) Result {
	type group struct {
		seed    model.Candidate
		members []model.Candidate
	}

	var groups []*group
	for _, c := range candidates {
		placed := false
		for _, g := range groups {
			if cfg.Similarity(g.seed, c) >= cfg.ClusterThreshold {
				g.members = append(g.members, c)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, &group{seed: c, members: []model.Candidate{c}})
		}
	}

	result := Result{InputCount: len(candidates)}
	for _, g := range groups {
		info := buildCluster(g.members)
		result.Clusters = append(result.Clusters, info)
		result.Candidates = append(result.Candidates, info.Representative)
		result.Merged += info.MemberCount - 1
	}

	zap.L().Debug("dedupe: clustering complete",
		zap.Int("input", result.InputCount),
		zap.Int("clusters", len(result.Clusters)),
		zap.Int("merged", result.Merged),
	)
	return result
}

// buildCluster selects the representative and alternates from a cluster's
// members.
func buildCluster(members []model.Candidate) model.ClusterInfo {
	// Stable sort by score descending keeps input order on ties.
	sorted := make([]model.Candidate, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	rep := sorted[0]
	seenOrigins := map[string]bool{rep.Origin: true}

	var alternates []model.Candidate
	for _, m := range sorted[1:] {
		if len(alternates) >= model.MaxAlternates {
			break
		}
		if seenOrigins[m.Origin] {
			continue
		}
		seenOrigins[m.Origin] = true
		alternates = append(alternates, m)
	}

	return model.ClusterInfo{
		Representative: rep,
		Alternates:     alternates,
		MemberCount:    len(members),
	}
}
