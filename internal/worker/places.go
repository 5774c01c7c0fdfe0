package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roamline/trip-cli/internal/cost"
	"github.com/roamline/trip-cli/internal/model"
	"github.com/roamline/trip-cli/internal/resilience"
	"github.com/roamline/trip-cli/pkg/places"
)

const (
	placesWorkerID      = "places"
	placesMaxResults    = 20
	placesQueryTimeout  = 30 * time.Second
	placesResultPerCall = 10
)

// PlacesWorker sources candidates from a Places-style text search API.
type PlacesWorker struct {
	client  places.Client
	tracker *cost.Tracker
	retry   resilience.RetryConfig
}

// NewPlacesWorker creates a places worker. tracker may be nil.
func NewPlacesWorker(client places.Client, tracker *cost.Tracker) *PlacesWorker {
	return &PlacesWorker{
		client:  client,
		tracker: tracker,
		retry:   resilience.DefaultRetryConfig(),
	}
}

func (w *PlacesWorker) ID() string       { return placesWorkerID }
func (w *PlacesWorker) Provider() string { return placesWorkerID }

// Plan derives one search query per stated interest plus a general
// attractions query for the destination.
func (w *PlacesWorker) Plan(intent model.SessionIntent) model.WorkerAssignment {
	queries := make([]string, 0, len(intent.Interests)+1)
	for _, interest := range intent.Interests {
		queries = append(queries, fmt.Sprintf("%s in %s", interest, intent.Destination))
	}
	queries = append(queries, fmt.Sprintf("top attractions in %s", intent.Destination))

	return model.WorkerAssignment{
		WorkerID:   placesWorkerID,
		Queries:    queries,
		MaxResults: placesMaxResults,
		TimeoutMS:  placesQueryTimeout.Milliseconds() * int64(len(queries)),
	}
}

// Execute runs the assignment's queries in order, short-circuiting once
// MaxResults candidates are collected. Failures are encoded in the output
// status, never returned.
func (w *PlacesWorker) Execute(ctx context.Context, assignment model.WorkerAssignment) model.WorkerOutput {
	log := zap.L().With(zap.String("worker", placesWorkerID))
	var candidates []model.Candidate
	var failed []string

	for _, query := range assignment.Queries {
		if assignment.MaxResults > 0 && len(candidates) >= assignment.MaxResults {
			break
		}

		resp, err := resilience.DoVal(ctx, w.retry, func(ctx context.Context) (*places.TextSearchResponse, error) {
			if w.tracker != nil {
				w.tracker.RecordQuery(placesWorkerID)
			}
			resp, err := w.client.TextSearch(ctx, places.TextSearchRequest{
				TextQuery:  query,
				MaxResults: placesResultPerCall,
			})
			return resp, classifyPlacesErr(err)
		})
		if err != nil {
			log.Warn("places: query failed", zap.String("query", query), zap.Error(err))
			failed = append(failed, query)
			continue
		}

		observed := time.Now().UTC()
		for _, p := range resp.Places {
			if assignment.MaxResults > 0 && len(candidates) >= assignment.MaxResults {
				break
			}
			candidates = append(candidates, placeToCandidate(p, observed))
		}
	}

	return settle(placesWorkerID, candidates, failed, len(assignment.Queries), nil)
}

// classifyPlacesErr marks retryable API responses as transient so the retry
// executor keeps going and aborts on the rest.
func classifyPlacesErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *places.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}

func placeToCandidate(p places.Place, observed time.Time) model.Candidate {
	c := model.Candidate{
		ID:           uuid.NewString(),
		Type:         placeType(p.Types),
		Title:        p.DisplayName.Text,
		LocationText: p.FormattedAddress,
		Origin:       placesWorkerID,
		Confidence:   model.ConfidenceLikely,
		Tags:         p.Types,
		ObservedAt:   &observed,
	}
	if p.Rating > 0 {
		c.Summary = fmt.Sprintf("Rated %.1f by %d visitors", p.Rating, p.UserRatingCount)
		if p.Rating >= 4.5 && p.UserRatingCount >= 500 {
			c.Confidence = model.ConfidenceConfirmed
		}
	}
	if p.Location != nil {
		c.Coordinates = &model.Coordinates{Lat: p.Location.Latitude, Lng: p.Location.Longitude}
	}
	if p.ID != "" {
		c.SourceRefs = []model.SourceRef{{
			Title: p.DisplayName.Text,
			URL:   "https://www.google.com/maps/place/?q=place_id:" + p.ID,
		}}
	}
	return c
}

func placeType(types []string) model.CandidateType {
	for _, t := range types {
		switch {
		case strings.Contains(t, "restaurant"), strings.Contains(t, "food"),
			strings.Contains(t, "cafe"), strings.Contains(t, "bakery"):
			return model.TypeFood
		case strings.Contains(t, "lodging"), strings.Contains(t, "hotel"):
			return model.TypeLodging
		case strings.Contains(t, "amusement"), strings.Contains(t, "tour"):
			return model.TypeActivity
		}
	}
	return model.TypePlace
}

// settle folds per-query outcomes into one typed output: everything failed →
// error, some failed → partial, otherwise ok.
func settle(workerID string, candidates []model.Candidate, failed []string, totalQueries int, usage *model.TokenUsage) model.WorkerOutput {
	out := model.WorkerOutput{
		WorkerID:   workerID,
		Candidates: candidates,
		Usage:      usage,
	}
	switch {
	case totalQueries > 0 && len(failed) == totalQueries:
		out.Status = model.OutputError
		out.Error = eris.Errorf("%s: all %d queries failed", workerID, totalQueries).Error()
	case len(failed) > 0:
		out.Status = model.OutputPartial
		out.Error = fmt.Sprintf("%s: %d of %d queries failed: %s", workerID, len(failed), totalQueries, strings.Join(failed, "; "))
	default:
		out.Status = model.OutputOK
	}
	return out
}
