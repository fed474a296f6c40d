package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/narrative"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/store"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/synthesis"
)

// AnalyzeTask scores the snapshot into clusters and synthesizes narratives
// for the survivors. The resulting analysis artifact is persisted so the
// publish stage can be re-run without re-analyzing.
type AnalyzeTask struct {
	Stage
	engine      *narrative.Engine
	synthesizer *synthesis.Synthesizer
	snapshots   *store.SnapshotStore
	history     *store.History
}

func NewAnalyzeTask(engine *narrative.Engine, synthesizer *synthesis.Synthesizer,
	snapshots *store.SnapshotStore, history *store.History) *AnalyzeTask {
	return &AnalyzeTask{
		Stage:       NewStage(StageAnalyze),
		engine:      engine,
		synthesizer: synthesizer,
		snapshots:   snapshots,
		history:     history,
	}
}

func (t *AnalyzeTask) Execute(ctx context.Context, snap *signal.Snapshot) (*narrative.Analysis, error) {
	t.Start()

	// Scoring over zero signals is meaningless: fatal, unlike any
	// individual source failure.
	if snap.Count() == 0 {
		return nil, fmt.Errorf("signal snapshot is empty, nothing to analyze")
	}

	now := time.Now().UTC()
	clusters := t.engine.Run(snap.All(), now)
	slog.Info("Clusters scored",
		"total_signals", snap.Count(),
		"published_clusters", len(clusters))

	analysis := t.synthesizer.Run(ctx, clusters, snap.Count(), now)

	if err := t.snapshots.WriteAnalysis(analysis); err != nil {
		return nil, fmt.Errorf("failed to persist analysis: %w", err)
	}

	if t.history != nil {
		if err := t.history.RecordAnalysis(snap.RunID, analysis.Narratives); err != nil {
			slog.Warn("Failed to record analysis history", "run_id", snap.RunID, "error", err)
		}
	}

	slog.Info("Task completed",
		"type", "AnalyzeSignals",
		"run_id", snap.RunID,
		"duration", t.GetDuration(),
		"narratives", len(analysis.Narratives))
	return analysis, nil
}
