package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/sources"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/store"
)

// CollectTask runs the adapter set and commits the resulting snapshot. The
// snapshot commit happens only after all adapters have reported, so a
// previously-good snapshot is never corrupted by a partially-failed
// collection.
type CollectTask struct {
	Stage
	collector *sources.Collector
	snapshots *store.SnapshotStore
	history   *store.History
}

func NewCollectTask(collector *sources.Collector, snapshots *store.SnapshotStore, history *store.History) *CollectTask {
	return &CollectTask{
		Stage:     NewStage(StageCollect),
		collector: collector,
		snapshots: snapshots,
		history:   history,
	}
}

func (t *CollectTask) Execute(ctx context.Context) (*signal.Snapshot, error) {
	t.Start()

	snap := t.collector.Run(ctx)
	if err := t.snapshots.Write(snap); err != nil {
		return nil, fmt.Errorf("failed to persist snapshot: %w", err)
	}

	if t.history != nil {
		if err := t.history.RecordCollection(snap); err != nil {
			slog.Warn("Failed to record run history", "run_id", snap.RunID, "error", err)
		}
	}

	slog.Info("Task completed",
		"type", "CollectSignals",
		"run_id", snap.RunID,
		"duration", t.GetDuration(),
		"signals", snap.Count())
	return snap, nil
}
