package rank

import (
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roamline/trip-cli/internal/model"
)

// Stats summarizes the score distribution of a ranked set.
type Stats struct {
	Count        float64 `json:"count"`
	AverageScore float64 `json:"average_score"`
	LowCount     int     `json:"low_count"`
	MediumCount  int     `json:"medium_count"`
	HighCount    int     `json:"high_count"`
}

// Result holds the ranked candidates and their distribution statistics.
type Result struct {
	Candidates []model.Candidate `json:"candidates"`
	Stats      Stats             `json:"stats"`
}

// Ranker scores candidates against a session intent using a weighted
// multi-factor formula.
type Ranker struct {
	profile Profile
	now     time.Time // injectable for testing
}

// New creates a Ranker with the given profile.
func New(profile Profile) *Ranker {
	return &Ranker{profile: profile, now: time.Now()}
}

// WithNow sets a fixed time for testing.
func (r *Ranker) WithNow(t time.Time) *Ranker {
	r.now = t
	return r
}

// Rank scores every candidate and returns a total ordering, descending by
// score with ties broken by stable input order. Candidate scores are
// overwritten with the computed value.
func (r *Ranker) Rank(candidates []model.Candidate, intent model.SessionIntent) Result {
	w := r.profile.Weights

	ranked := make([]model.Candidate, len(candidates))
	copy(ranked, candidates)

	typeSeen := make(map[model.CandidateType]int)
	var total float64
	for i := range ranked {
		c := &ranked[i]
		score := w.Relevance*r.relevance(*c, intent) +
			w.Credibility*r.credibility(c.Origin) +
			w.Recency*r.recency(c.ObservedAt) +
			w.Diversity*diversity(typeSeen[c.Type])
		typeSeen[c.Type]++

		c.Score = score
		total += score
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	stats := Stats{Count: float64(len(ranked))}
	if len(ranked) > 0 {
		stats.AverageScore = total / float64(len(ranked))
	}
	for _, c := range ranked {
		switch {
		case c.Score < r.profile.LowBand:
			stats.LowCount++
		case c.Score < r.profile.HighBand:
			stats.MediumCount++
		default:
			stats.HighCount++
		}
	}

	zap.L().Debug("rank: scoring complete",
		zap.Int("candidates", len(ranked)),
		zap.Float64("average", stats.AverageScore),
		zap.Int("high", stats.HighCount),
	)
	return Result{Candidates: ranked, Stats: stats}
}

// relevance measures how well a candidate matches the stated interests and
// destination. Interest hits in tags, title, or summary dominate; a
// destination mention in the location adds the rest.
func (r *Ranker) relevance(c model.Candidate, intent model.SessionIntent) float64 {
	if len(intent.Interests) == 0 && intent.Destination == "" {
		return 0.5 // nothing stated — neutral relevance
	}

	var score float64
	if len(intent.Interests) > 0 {
		hits := 0
		haystack := strings.ToLower(c.Title + " " + c.Summary + " " + strings.Join(c.Tags, " "))
		for _, interest := range intent.Interests {
			if strings.Contains(haystack, strings.ToLower(interest)) {
				hits++
			}
		}
		score += 0.7 * float64(hits) / float64(len(intent.Interests))
	} else {
		score += 0.35
	}

	if intent.Destination != "" {
		location := strings.ToLower(c.LocationText + " " + c.Title + " " + c.Summary)
		if strings.Contains(location, strings.ToLower(intent.Destination)) {
			score += 0.3
		}
	} else {
		score += 0.15
	}

	return score
}

// credibility returns the configured per-origin credibility.
func (r *Ranker) credibility(origin string) float64 {
	if v, ok := r.profile.SourceCredibility[origin]; ok {
		return v
	}
	return r.profile.DefaultCredibility
}

// recency decays exponentially with the age of the observation:
// max(floor, 2^(-ageDays/halfLife)). Missing timestamps are treated as
// current.
func (r *Ranker) recency(observedAt *time.Time) float64 {
	if observedAt == nil || observedAt.IsZero() {
		return 1.0
	}

	ageDays := r.now.Sub(*observedAt).Hours() / 24
	if ageDays <= 0 {
		return 1.0
	}

	halfLife := float64(r.profile.RecencyHalfLifeDays)
	if halfLife <= 0 {
		halfLife = 180
	}

	decayed := math.Pow(2, -ageDays/halfLife)
	if decayed < r.profile.RecencyFloor {
		return r.profile.RecencyFloor
	}
	return decayed
}

// diversity rewards candidates whose type is still underrepresented in the
// result set: the nth candidate of a type contributes 1/(n+1).
func diversity(priorOfSameType int) float64 {
	return 1.0 / float64(priorOfSameType+1)
}
