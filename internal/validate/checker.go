package validate

import (
	"context"

	"github.com/roamline/trip-cli/internal/dedupe"
	"github.com/roamline/trip-cli/internal/model"
	"github.com/roamline/trip-cli/pkg/atlas"
)

// Names must overlap this much before two entries count as the same place.
const nameMatchThreshold = 0.5

// A confirmed location must sit within this distance of the claimed one.
const locationMatchMeters = 500

// AtlasChecker confirms candidates against the atlas knowledge API, which is
// independent of the narrative worker's LLM output.
type AtlasChecker struct {
	client atlas.Client
}

// NewAtlasChecker creates an atlas-backed checker.
func NewAtlasChecker(client atlas.Client) *AtlasChecker {
	return &AtlasChecker{client: client}
}

// Check looks the candidate's title up and compares name and, when both
// sides carry coordinates, location.
func (ac *AtlasChecker) Check(ctx context.Context, c model.Candidate) (CheckResult, error) {
	query := c.Title
	if c.LocationText != "" {
		query += " " + c.LocationText
	}

	resp, err := ac.client.Lookup(ctx, atlas.LookupRequest{Query: query, MaxResults: 3})
	if err != nil {
		return CheckResult{}, err
	}

	var result CheckResult
	for _, entry := range resp.Entries {
		if dedupe.Jaccard(c.Title, entry.Name) < nameMatchThreshold {
			continue
		}
		result.Exists = true
		if entry.SourceURL != "" {
			result.Sources = append(result.Sources, entry.SourceURL)
		}

		if c.Coordinates != nil && entry.Latitude != nil && entry.Longitude != nil {
			result.LocationChecked = true
			distance := dedupe.Haversine(*c.Coordinates,
				model.Coordinates{Lat: *entry.Latitude, Lng: *entry.Longitude})
			// One agreeing entry settles it; a disagreeing entry keeps the
			// search going in case a later entry matches.
			if distance <= locationMatchMeters {
				result.LocationMatches = true
				return result, nil
			}
		}
	}
	return result, nil
}
