package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roamline/trip-cli/internal/cost"
	"github.com/roamline/trip-cli/internal/model"
	"github.com/roamline/trip-cli/internal/resilience"
	"github.com/roamline/trip-cli/pkg/atlas"
)

const (
	atlasWorkerID     = "atlas"
	atlasMaxResults   = 15
	atlasQueryTimeout = 20 * time.Second
)

// AtlasWorker sources candidates from the atlas geographic knowledge API.
type AtlasWorker struct {
	client  atlas.Client
	tracker *cost.Tracker
	retry   resilience.RetryConfig
}

// NewAtlasWorker creates an atlas worker. tracker may be nil.
func NewAtlasWorker(client atlas.Client, tracker *cost.Tracker) *AtlasWorker {
	return &AtlasWorker{
		client:  client,
		tracker: tracker,
		retry:   resilience.DefaultRetryConfig(),
	}
}

func (w *AtlasWorker) ID() string       { return atlasWorkerID }
func (w *AtlasWorker) Provider() string { return atlasWorkerID }

// Plan issues one lookup per interest, anchored to the destination so the
// assignment stays self-contained. With no interests it falls back to a
// single general query.
func (w *AtlasWorker) Plan(intent model.SessionIntent) model.WorkerAssignment {
	interests := intent.Interests
	if len(interests) == 0 {
		interests = []string{"points of interest"}
	}
	queries := make([]string, len(interests))
	for i, interest := range interests {
		queries[i] = interest + " near " + intent.Destination
	}
	return model.WorkerAssignment{
		WorkerID:   atlasWorkerID,
		Queries:    queries,
		MaxResults: atlasMaxResults,
		TimeoutMS:  atlasQueryTimeout.Milliseconds() * int64(len(queries)),
	}
}

// Execute resolves each query in order, stopping once MaxResults candidates
// are collected.
func (w *AtlasWorker) Execute(ctx context.Context, assignment model.WorkerAssignment) model.WorkerOutput {
	log := zap.L().With(zap.String("worker", atlasWorkerID))
	var candidates []model.Candidate
	var failed []string

	perQuery := 1
	if n := len(assignment.Queries); n > 0 && assignment.MaxResults > n {
		perQuery = assignment.MaxResults / n
	}

	for _, query := range assignment.Queries {
		if assignment.MaxResults > 0 && len(candidates) >= assignment.MaxResults {
			break
		}

		resp, err := resilience.DoVal(ctx, w.retry, func(ctx context.Context) (*atlas.LookupResponse, error) {
			if w.tracker != nil {
				w.tracker.RecordQuery(atlasWorkerID)
			}
			resp, err := w.client.Lookup(ctx, atlas.LookupRequest{
				Query:      query,
				MaxResults: perQuery,
			})
			return resp, classifyAtlasErr(err)
		})
		if err != nil {
			log.Warn("atlas: lookup failed", zap.String("query", query), zap.Error(err))
			failed = append(failed, query)
			continue
		}

		for _, entry := range resp.Entries {
			if assignment.MaxResults > 0 && len(candidates) >= assignment.MaxResults {
				break
			}
			candidates = append(candidates, entryToCandidate(entry))
		}
	}

	return settle(atlasWorkerID, candidates, failed, len(assignment.Queries), nil)
}

func classifyAtlasErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *atlas.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}

func entryToCandidate(e atlas.Entry) model.Candidate {
	c := model.Candidate{
		ID:           uuid.NewString(),
		Type:         atlasKindToType(e.Kind),
		Title:        e.Name,
		Summary:      e.Summary,
		LocationText: e.Address,
		Origin:       atlasWorkerID,
		Confidence:   model.ConfidenceLikely,
		Tags:         e.Tags,
		ObservedAt:   e.UpdatedAt,
	}
	if e.Latitude != nil && e.Longitude != nil {
		c.Coordinates = &model.Coordinates{Lat: *e.Latitude, Lng: *e.Longitude}
	}
	if e.SourceURL != "" {
		c.SourceRefs = []model.SourceRef{{Title: e.Name, URL: e.SourceURL}}
	}
	return c
}

func atlasKindToType(kind string) model.CandidateType {
	switch kind {
	case "restaurant", "food", "market":
		return model.TypeFood
	case "hotel", "ryokan", "hostel":
		return model.TypeLodging
	case "festival", "event":
		return model.TypeEvent
	case "hike", "tour", "experience":
		return model.TypeActivity
	default:
		return model.TypePlace
	}
}
