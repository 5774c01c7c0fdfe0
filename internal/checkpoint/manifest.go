package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
)

// SchemaVersion identifies the manifest schema.
const SchemaVersion = 1

// StageEntry records one completed stage's checkpoint: its file, content
// hash, size, and upstream linkage. Entries are created once when a stage
// completes and never mutated.
type StageEntry struct {
	StageID   string    `json:"stage_id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	SHA256    string    `json:"sha256"`
	SizeBytes int64     `json:"size_bytes"`
	Upstream  string    `json:"upstream,omitempty"`
}

// RunManifest is the per-run ledger of stage checkpoints. It is created
// empty at run start, appended to after each stage, and finalized at run
// end. Resumed runs append fresh entries and list the reused stages as
// skipped.
type RunManifest struct {
	SchemaVersion  int          `json:"schema_version"`
	RunID          string       `json:"run_id"`
	SessionID      string       `json:"session_id"`
	CreatedAt      time.Time    `json:"created_at"`
	Stages         []StageEntry `json:"stages"`
	StagesExecuted []string     `json:"stages_executed"`
	StagesSkipped  []string     `json:"stages_skipped"`
	FinalStage     string       `json:"final_stage,omitempty"`
	Success        bool         `json:"success"`
}

// NewManifest creates an empty manifest for a run.
func NewManifest(sessionID, runID string) *RunManifest {
	return &RunManifest{
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		SessionID:     sessionID,
		CreatedAt:     time.Now().UTC(),
	}
}

// Entry returns the entry for stageID, or nil.
func (m *RunManifest) Entry(stageID string) *StageEntry {
	for i := range m.Stages {
		if m.Stages[i].StageID == stageID {
			return &m.Stages[i]
		}
	}
	return nil
}

// CreateStageEntry hashes the persisted checkpoint file and builds its
// manifest entry. upstream names the stage whose checkpoint fed this one.
func CreateStageEntry(stageID, path, upstream string) (StageEntry, error) {
	sum, size, err := FileSHA256(path)
	if err != nil {
		return StageEntry{}, eris.Wrapf(err, "checkpoint: hash stage %s", stageID)
	}
	return StageEntry{
		StageID:   stageID,
		Filename:  filepath.Base(path),
		CreatedAt: time.Now().UTC(),
		SHA256:    sum,
		SizeBytes: size,
		Upstream:  upstream,
	}, nil
}

// FileSHA256 returns the lowercase hex SHA-256 digest and byte size of the
// file at path.
func FileSHA256(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// StageCheck is the verification outcome for one manifest entry.
type StageCheck struct {
	StageID string `json:"stage_id"`
	Matches bool   `json:"matches"`
	Reason  string `json:"reason,omitempty"`
}

// VerifyResult is the outcome of verifying a manifest against its files.
type VerifyResult struct {
	Valid  bool         `json:"valid"`
	Stages []StageCheck `json:"stages"`
}

// VerifyManifest recomputes each stage file's hash under checkpointDir and
// compares it against the manifest's recorded hash. A missing file is
// reported as a "not found" mismatch rather than an error.
func VerifyManifest(m *RunManifest, checkpointDir string) VerifyResult {
	result := VerifyResult{Valid: true}

	for _, entry := range m.Stages {
		check := StageCheck{StageID: entry.StageID}
		path := filepath.Join(checkpointDir, entry.Filename)

		sum, size, err := FileSHA256(path)
		switch {
		case os.IsNotExist(err):
			check.Reason = "not found"
		case err != nil:
			check.Reason = err.Error()
		case sum != entry.SHA256:
			check.Reason = "hash mismatch"
		case size != entry.SizeBytes:
			check.Reason = "size mismatch"
		default:
			check.Matches = true
		}

		if !check.Matches {
			result.Valid = false
		}
		result.Stages = append(result.Stages, check)
	}

	return result
}
