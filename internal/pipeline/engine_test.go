package pipeline

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roamline/trip-cli/internal/checkpoint"
	"github.com/roamline/trip-cli/internal/model"
)

// fakeStage counts payloads through the pipeline so checkpoints differ per
// stage and per execution.
type fakeStage struct {
	id    string
	runs  int
	fail  bool
	seen  []json.RawMessage
	extra string
}

func (f *fakeStage) ID() string { return f.id }

func (f *fakeStage) Execute(_ context.Context, _ *StageContext, input json.RawMessage) (any, error) {
	f.runs++
	f.seen = append(f.seen, input)
	if f.fail {
		return nil, eris.New(f.id + ": induced failure")
	}
	return map[string]any{"stage": f.id, "runs": f.runs, "extra": f.extra}, nil
}

func fakeStages(ids ...string) []*fakeStage {
	out := make([]*fakeStage, len(ids))
	for i, id := range ids {
		out[i] = &fakeStage{id: id}
	}
	return out
}

func asStages(fakes []*fakeStage) []Stage {
	out := make([]Stage, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}

func testContext() *StageContext {
	return &StageContext{SessionID: "sess", RunID: "run-1"}
}

var hexHash = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestRun_FullRunWritesManifestAndCheckpoints(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())
	fakes := fakeStages("alpha", "beta", "gamma")
	engine := NewEngine(store, asStages(fakes)...)

	manifest, err := engine.Run(context.Background(), testContext(), RunOptions{})
	require.NoError(t, err)

	assert.True(t, manifest.Success)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, manifest.StagesExecuted)
	assert.Empty(t, manifest.StagesSkipped)
	assert.Equal(t, "gamma", manifest.FinalStage)

	require.Len(t, manifest.Stages, 3)
	assert.Empty(t, manifest.Stages[0].Upstream)
	assert.Equal(t, "alpha", manifest.Stages[1].Upstream)
	assert.Equal(t, "beta", manifest.Stages[2].Upstream)
	for _, entry := range manifest.Stages {
		assert.Regexp(t, hexHash, entry.SHA256)
		assert.Greater(t, entry.SizeBytes, int64(0))
	}

	// Each stage received the previous stage's checkpoint bytes.
	require.Len(t, fakes[1].seen, 1)
	var upstream map[string]any
	require.NoError(t, json.Unmarshal(fakes[1].seen[0], &upstream))
	assert.Equal(t, "alpha", upstream["stage"])

	// Latest pointer tracks the completed run.
	latest, err := store.ReadLatest("sess")
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest)
}

func TestRun_StageFailureFinalizesManifest(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())
	fakes := fakeStages("alpha", "beta", "gamma")
	fakes[1].fail = true
	engine := NewEngine(store, asStages(fakes)...)

	manifest, err := engine.Run(context.Background(), testContext(), RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beta")

	require.NotNil(t, manifest)
	assert.False(t, manifest.Success)
	assert.Equal(t, []string{"alpha"}, manifest.StagesExecuted)
	assert.Equal(t, 0, fakes[2].runs, "failure aborts downstream stages")

	// The failure manifest is durably written.
	var persisted checkpoint.RunManifest
	require.NoError(t, store.Read(store.ManifestPath("sess", "run-1"), &persisted))
	assert.False(t, persisted.Success)
	assert.Equal(t, []string{"alpha"}, persisted.StagesExecuted)
}

func TestRun_ResumeSkipsAndReusesCheckpoints(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())
	fakes := fakeStages("alpha", "beta", "gamma", "delta")
	engine := NewEngine(store, asStages(fakes)...)

	first, err := engine.Run(context.Background(), testContext(), RunOptions{})
	require.NoError(t, err)

	// Re-execute from gamma; alpha and beta are reloaded.
	resumed, err := engine.Run(context.Background(), testContext(), RunOptions{ResumeFrom: "gamma"})
	require.NoError(t, err)

	assert.True(t, resumed.Success)
	assert.Equal(t, []string{"alpha", "beta"}, resumed.StagesSkipped)
	assert.Equal(t, []string{"gamma", "delta"}, resumed.StagesExecuted)

	// Skipped stages keep the original entries byte for byte.
	for _, id := range []string{"alpha", "beta"} {
		orig, res := first.Entry(id), resumed.Entry(id)
		require.NotNil(t, res)
		assert.Equal(t, orig.SHA256, res.SHA256)
		assert.Equal(t, orig.CreatedAt, res.CreatedAt)
	}
	// Re-executed stages produce fresh checkpoints (runs counter changed).
	assert.NotEqual(t, first.Entry("gamma").SHA256, resumed.Entry("gamma").SHA256)

	assert.Equal(t, 1, fakes[0].runs, "skipped stages are not re-executed")
	assert.Equal(t, 2, fakes[2].runs)

	// The resumed gamma received beta's original checkpoint.
	var betaOut map[string]any
	require.NoError(t, json.Unmarshal(fakes[2].seen[1], &betaOut))
	assert.Equal(t, "beta", betaOut["stage"])
}

func TestRun_ResumeUnknownStageFails(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())
	engine := NewEngine(store, asStages(fakeStages("alpha"))...)

	_, err := engine.Run(context.Background(), testContext(), RunOptions{ResumeFrom: "nope"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}

func TestRun_ResumeWithoutPriorRunFails(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())
	engine := NewEngine(store, asStages(fakeStages("alpha", "beta"))...)

	_, err := engine.Run(context.Background(), testContext(), RunOptions{ResumeFrom: "beta"})
	assert.Error(t, err)
}

func TestRun_ManifestVerifiesAfterRun(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())
	engine := NewEngine(store, asStages(fakeStages("alpha", "beta"))...)

	sc := testContext()
	manifest, err := engine.Run(context.Background(), sc, RunOptions{})
	require.NoError(t, err)

	dir := filepath.Join(store.RunDir("sess", "run-1"), "checkpoints")
	result := checkpoint.VerifyManifest(manifest, dir)
	assert.True(t, result.Valid)
}

func TestRun_OnStageObserverSeesTransitions(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())
	engine := NewEngine(store, asStages(fakeStages("alpha"))...)

	var records []model.StageRecord
	engine.OnStage = func(r model.StageRecord) { records = append(records, r) }

	_, err := engine.Run(context.Background(), testContext(), RunOptions{})
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, model.StageStatusRunning, records[0].Status)
	assert.Equal(t, model.StageStatusComplete, records[1].Status)
}
