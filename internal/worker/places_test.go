package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roamline/trip-cli/internal/cost"
	"github.com/roamline/trip-cli/internal/model"
	"github.com/roamline/trip-cli/internal/resilience"
	"github.com/roamline/trip-cli/pkg/places"
)

type fakePlacesClient struct {
	responses map[string]*places.TextSearchResponse
	errs      map[string]error
	calls     []string
}

func (f *fakePlacesClient) TextSearch(_ context.Context, req places.TextSearchRequest) (*places.TextSearchResponse, error) {
	f.calls = append(f.calls, req.TextQuery)
	if err, ok := f.errs[req.TextQuery]; ok {
		return nil, err
	}
	if resp, ok := f.responses[req.TextQuery]; ok {
		return resp, nil
	}
	return &places.TextSearchResponse{}, nil
}

func placesResp(names ...string) *places.TextSearchResponse {
	resp := &places.TextSearchResponse{}
	for _, name := range names {
		resp.Places = append(resp.Places, places.Place{
			ID:               "id-" + name,
			DisplayName:      places.DisplayName{Text: name},
			FormattedAddress: name + " Street",
			Location:         &places.LatLng{Latitude: 35.0, Longitude: 139.0},
			Types:            []string{"tourist_attraction"},
			Rating:           4.2,
			UserRatingCount:  100,
		})
	}
	return resp
}

func TestPlacesWorker_Plan(t *testing.T) {
	w := NewPlacesWorker(&fakePlacesClient{}, nil)
	a := w.Plan(model.SessionIntent{Destination: "Kyoto", Interests: []string{"temples", "food"}})

	assert.Equal(t, "places", a.WorkerID)
	require.Len(t, a.Queries, 3)
	assert.Equal(t, "temples in Kyoto", a.Queries[0])
	assert.Equal(t, "food in Kyoto", a.Queries[1])
	assert.Equal(t, "top attractions in Kyoto", a.Queries[2])
	assert.Greater(t, a.TimeoutMS, int64(0))
}

func TestPlacesWorker_ExecuteOK(t *testing.T) {
	client := &fakePlacesClient{responses: map[string]*places.TextSearchResponse{
		"temples in Kyoto": placesResp("Kinkaku-ji", "Ginkaku-ji"),
	}}
	tracker := cost.NewTracker(cost.NewCalculator(cost.DefaultRates()))
	w := NewPlacesWorker(client, tracker)

	out := w.Execute(context.Background(), model.WorkerAssignment{
		WorkerID:   "places",
		Queries:    []string{"temples in Kyoto"},
		MaxResults: 10,
	})

	assert.Equal(t, model.OutputOK, out.Status)
	require.Len(t, out.Candidates, 2)
	c := out.Candidates[0]
	assert.Equal(t, "Kinkaku-ji", c.Title)
	assert.Equal(t, "places", c.Origin)
	assert.Equal(t, model.ConfidenceLikely, c.Confidence)
	assert.NotNil(t, c.Coordinates)
	assert.NotEmpty(t, c.ID)
	assert.NotEqual(t, out.Candidates[0].ID, out.Candidates[1].ID)

	assert.Equal(t, 1, tracker.Summary().Providers["places"].Calls)
}

func TestPlacesWorker_ExecuteRespectsMaxResults(t *testing.T) {
	client := &fakePlacesClient{responses: map[string]*places.TextSearchResponse{
		"a": placesResp("p1", "p2", "p3"),
		"b": placesResp("p4"),
	}}
	w := NewPlacesWorker(client, nil)

	out := w.Execute(context.Background(), model.WorkerAssignment{
		Queries:    []string{"a", "b"},
		MaxResults: 2,
	})

	assert.Len(t, out.Candidates, 2)
	// Short-circuit: the second query is never issued.
	assert.Equal(t, []string{"a"}, client.calls)
}

func TestPlacesWorker_PartialOnSomeFailures(t *testing.T) {
	client := &fakePlacesClient{
		responses: map[string]*places.TextSearchResponse{"good": placesResp("p1")},
		errs:      map[string]error{"bad": &places.APIError{StatusCode: 403, Body: "denied"}},
	}
	w := NewPlacesWorker(client, nil)

	out := w.Execute(context.Background(), model.WorkerAssignment{
		Queries:    []string{"good", "bad"},
		MaxResults: 10,
	})

	assert.Equal(t, model.OutputPartial, out.Status)
	assert.Len(t, out.Candidates, 1)
	assert.Contains(t, out.Error, "1 of 2 queries failed")
}

func TestPlacesWorker_ErrorWhenAllFail(t *testing.T) {
	client := &fakePlacesClient{errs: map[string]error{
		"bad": &places.APIError{StatusCode: 401, Body: "unauthorized"},
	}}
	w := NewPlacesWorker(client, nil)

	out := w.Execute(context.Background(), model.WorkerAssignment{
		Queries:    []string{"bad"},
		MaxResults: 10,
	})

	assert.Equal(t, model.OutputError, out.Status)
	assert.Empty(t, out.Candidates)
	// 401 is non-retryable: exactly one attempt.
	assert.Len(t, client.calls, 1)
}

func TestClassifyPlacesErr(t *testing.T) {
	assert.True(t, resilience.IsTransient(classifyPlacesErr(&places.APIError{StatusCode: 503})))
	assert.False(t, resilience.IsTransient(classifyPlacesErr(&places.APIError{StatusCode: 403})))
	assert.NoError(t, classifyPlacesErr(nil))
}

func TestPlaceType(t *testing.T) {
	assert.Equal(t, model.TypeFood, placeType([]string{"japanese_restaurant"}))
	assert.Equal(t, model.TypeLodging, placeType([]string{"lodging"}))
	assert.Equal(t, model.TypeActivity, placeType([]string{"amusement_park"}))
	assert.Equal(t, model.TypePlace, placeType([]string{"museum"}))
	assert.Equal(t, model.TypePlace, placeType(nil))
}
