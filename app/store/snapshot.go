package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

const snapshotFile = "signals.json"

// ErrNoSnapshot is returned when no collection run has produced a snapshot
// yet. The analyze stage treats it as fatal.
var ErrNoSnapshot = errors.New("no signal snapshot found, run collection first")

// SnapshotStore persists the full collected signal set as one artifact.
// Writes are atomic (temp file + rename) and happen exactly once per
// collection run, after every adapter has reported, so reads always see a
// complete, consistent snapshot from exactly one run.
type SnapshotStore struct {
	dataDir string
}

func NewSnapshotStore(dataDir string) *SnapshotStore {
	return &SnapshotStore{dataDir: dataDir}
}

func (s *SnapshotStore) Path() string {
	return filepath.Join(s.dataDir, snapshotFile)
}

func (s *SnapshotStore) Write(snap *signal.Snapshot) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.dataDir, snapshotFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.Path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Read() (*signal.Snapshot, error) {
	data, err := os.ReadFile(s.Path())
	if os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap signal.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snap, nil
}
