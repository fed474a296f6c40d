package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/narrative"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/publish"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/sources"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/store"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/synthesis"
)

// ErrRunInProgress is returned when a full run is requested while another is
// still executing. Storage is single-writer-per-run: overlapping runs are
// skipped, not queued.
var ErrRunInProgress = errors.New("a run is already in progress")

// Runner wires the pipeline stages together. Each stage receives its input
// snapshot as a parameter and returns its output as a value; the durable
// artifacts between stages let any stage be re-run in isolation.
type Runner struct {
	collector   *sources.Collector
	engine      *narrative.Engine
	synthesizer *synthesis.Synthesizer
	publisher   *publish.Publisher
	snapshots   *store.SnapshotStore
	history     *store.History

	mu sync.Mutex
}

func NewRunner(collector *sources.Collector, engine *narrative.Engine,
	synthesizer *synthesis.Synthesizer, publisher *publish.Publisher,
	snapshots *store.SnapshotStore, history *store.History) *Runner {
	return &Runner{
		collector:   collector,
		engine:      engine,
		synthesizer: synthesizer,
		publisher:   publisher,
		snapshots:   snapshots,
		history:     history,
	}
}

// Collect runs only the collection stage.
func (r *Runner) Collect(ctx context.Context) (*signal.Snapshot, error) {
	return NewCollectTask(r.collector, r.snapshots, r.history).Execute(ctx)
}

// Analyze runs scoring, synthesis and publishing against an existing
// snapshot.
func (r *Runner) Analyze(ctx context.Context) error {
	snap, err := r.snapshots.Read()
	if err != nil {
		return err
	}
	return r.analyzeAndPublish(ctx, snap)
}

// FullRun executes collect, analyze and publish as one run. Only one run
// executes at a time; a second caller gets ErrRunInProgress.
func (r *Runner) FullRun(ctx context.Context) error {
	if !r.mu.TryLock() {
		return ErrRunInProgress
	}
	defer r.mu.Unlock()
	return r.fullRun(ctx)
}

// TriggerRun starts a full run in the background, for the serve-mode API.
func (r *Runner) TriggerRun() error {
	if !r.mu.TryLock() {
		return ErrRunInProgress
	}
	go func() {
		defer r.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := r.fullRun(ctx); err != nil {
			slog.Error("Triggered run failed", "error", err)
		}
	}()
	return nil
}

func (r *Runner) fullRun(ctx context.Context) error {
	snap, err := NewCollectTask(r.collector, r.snapshots, r.history).Execute(ctx)
	if err != nil {
		return err
	}
	return r.analyzeAndPublish(ctx, snap)
}

func (r *Runner) analyzeAndPublish(ctx context.Context, snap *signal.Snapshot) error {
	analysis, err := NewAnalyzeTask(r.engine, r.synthesizer, r.snapshots, r.history).Execute(ctx, snap)
	if err != nil {
		return err
	}
	return NewPublishTask(r.publisher).Execute(analysis, snap)
}
