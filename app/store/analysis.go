package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/narrative"
)

const analysisFile = "analysis.json"

// ErrNoAnalysis is returned when no analysis run has produced an artifact yet.
var ErrNoAnalysis = errors.New("no analysis artifact found, run analysis first")

// WriteAnalysis persists the analysis artifact next to the snapshot, with the
// same atomic commit semantics.
func (s *SnapshotStore) WriteAnalysis(analysis *narrative.Analysis) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	tmp, err := os.CreateTemp(s.dataDir, analysisFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write analysis: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.AnalysisPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit analysis: %w", err)
	}
	return nil
}

func (s *SnapshotStore) ReadAnalysis() (*narrative.Analysis, error) {
	data, err := os.ReadFile(s.AnalysisPath())
	if os.IsNotExist(err) {
		return nil, ErrNoAnalysis
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis: %w", err)
	}

	var analysis narrative.Analysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	return &analysis, nil
}

func (s *SnapshotStore) AnalysisPath() string {
	return filepath.Join(s.dataDir, analysisFile)
}
