package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roamline/trip-cli/internal/model"
	"github.com/roamline/trip-cli/pkg/atlas"
)

type fakeAtlasClient struct {
	responses map[string]*atlas.LookupResponse
	errs      map[string]error
	calls     []atlas.LookupRequest
}

func (f *fakeAtlasClient) Lookup(_ context.Context, req atlas.LookupRequest) (*atlas.LookupResponse, error) {
	f.calls = append(f.calls, req)
	if err, ok := f.errs[req.Query]; ok {
		return nil, err
	}
	if resp, ok := f.responses[req.Query]; ok {
		return resp, nil
	}
	return &atlas.LookupResponse{}, nil
}

func atlasEntry(name, kind string) atlas.Entry {
	lat, lng := 35.0, 135.0
	return atlas.Entry{
		ID:        "atlas-" + name,
		Name:      name,
		Summary:   name + " summary",
		Kind:      kind,
		Latitude:  &lat,
		Longitude: &lng,
		SourceURL: "https://atlas.example.com/" + name,
	}
}

func TestAtlasWorker_Plan(t *testing.T) {
	w := NewAtlasWorker(&fakeAtlasClient{}, nil)
	a := w.Plan(model.SessionIntent{Destination: "Kyoto", Interests: []string{"temples", "gardens"}})

	assert.Equal(t, "atlas", a.WorkerID)
	assert.Equal(t, []string{"temples near Kyoto", "gardens near Kyoto"}, a.Queries)
}

func TestAtlasWorker_PlanWithoutInterests(t *testing.T) {
	w := NewAtlasWorker(&fakeAtlasClient{}, nil)
	a := w.Plan(model.SessionIntent{Destination: "Kyoto"})

	require.Len(t, a.Queries, 1)
	assert.Equal(t, "points of interest near Kyoto", a.Queries[0])
}

func TestAtlasWorker_ExecuteMapsEntries(t *testing.T) {
	client := &fakeAtlasClient{responses: map[string]*atlas.LookupResponse{
		"temples near Kyoto": {Entries: []atlas.Entry{
			atlasEntry("Kiyomizu-dera", "temple"),
			atlasEntry("Nishiki Market", "market"),
		}},
	}}
	w := NewAtlasWorker(client, nil)

	out := w.Execute(context.Background(), model.WorkerAssignment{
		Queries:    []string{"temples near Kyoto"},
		MaxResults: 10,
	})

	assert.Equal(t, model.OutputOK, out.Status)
	require.Len(t, out.Candidates, 2)
	assert.Equal(t, model.TypePlace, out.Candidates[0].Type)
	assert.Equal(t, model.TypeFood, out.Candidates[1].Type)
	assert.Equal(t, "atlas", out.Candidates[0].Origin)
	require.NotNil(t, out.Candidates[0].Coordinates)
	assert.InDelta(t, 35.0, out.Candidates[0].Coordinates.Lat, 0.001)
	require.Len(t, out.Candidates[0].SourceRefs, 1)
}

func TestAtlasWorker_ErrorWhenAllFail(t *testing.T) {
	client := &fakeAtlasClient{errs: map[string]error{
		"bad near X": &atlas.APIError{StatusCode: 400, Body: "malformed"},
	}}
	w := NewAtlasWorker(client, nil)

	out := w.Execute(context.Background(), model.WorkerAssignment{
		Queries:    []string{"bad near X"},
		MaxResults: 5,
	})

	assert.Equal(t, model.OutputError, out.Status)
	assert.Len(t, client.calls, 1, "400 must not be retried")
}

func TestAtlasKindToType(t *testing.T) {
	assert.Equal(t, model.TypeFood, atlasKindToType("restaurant"))
	assert.Equal(t, model.TypeLodging, atlasKindToType("ryokan"))
	assert.Equal(t, model.TypeEvent, atlasKindToType("festival"))
	assert.Equal(t, model.TypeActivity, atlasKindToType("hike"))
	assert.Equal(t, model.TypePlace, atlasKindToType("temple"))
}
