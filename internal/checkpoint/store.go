// Package checkpoint persists stage outputs as atomically written JSON files
// and maintains the per-run manifest that makes runs resumable and
// tamper-detectable.
package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a checkpoint file does not exist.
var ErrNotFound = eris.New("checkpoint: not found")

// Store is a directory-keyed atomic JSON store addressed by
// (sessionID, runID, stageID). Session and run IDs are opaque path-safe keys
// supplied by the session layer.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// RunDir returns the directory holding one run's files.
func (s *Store) RunDir(sessionID, runID string) string {
	return filepath.Join(s.root, sessionID, runID)
}

// StagePath returns the checkpoint file path for a stage.
func (s *Store) StagePath(sessionID, runID, stageID string) string {
	return filepath.Join(s.RunDir(sessionID, runID), "checkpoints", stageID+".json")
}

// OutputPath returns the raw worker-output file path for a worker.
func (s *Store) OutputPath(sessionID, runID, workerID string) string {
	return filepath.Join(s.RunDir(sessionID, runID), "outputs", workerID+".json")
}

// ManifestPath returns the manifest file path for a run.
func (s *Store) ManifestPath(sessionID, runID string) string {
	return filepath.Join(s.RunDir(sessionID, runID), "manifest.json")
}

// Write serializes v to path atomically: the JSON is written to a temporary
// file in the destination directory, then renamed over the destination, so a
// crash never leaves a partially written file visible. The temp file is
// removed on failure.
func (s *Store) Write(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "checkpoint: mkdir %s", dir)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "checkpoint: marshal")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "checkpoint: create temp")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrapf(err, "checkpoint: write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrapf(err, "checkpoint: sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "checkpoint: close %s", tmpName)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "checkpoint: rename to %s", path)
	}
	return nil
}

// Read deserializes path into v. Returns ErrNotFound if the file is missing.
func (s *Store) Read(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return eris.Wrapf(err, "checkpoint: read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "checkpoint: unmarshal %s", path)
	}
	return nil
}

// Exists reports whether path exists.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// latestPointer names the most recent run for a session. An explicit pointer
// file is used instead of a symlink for portability.
type latestPointer struct {
	RunID string `json:"run_id"`
}

// WriteLatest records runID as the session's most recent run.
func (s *Store) WriteLatest(sessionID, runID string) error {
	path := filepath.Join(s.root, sessionID, "latest.json")
	return s.Write(path, latestPointer{RunID: runID})
}

// ReadLatest returns the session's most recent run ID, or ErrNotFound.
func (s *Store) ReadLatest(sessionID string) (string, error) {
	var p latestPointer
	if err := s.Read(filepath.Join(s.root, sessionID, "latest.json"), &p); err != nil {
		return "", err
	}
	return p.RunID, nil
}
