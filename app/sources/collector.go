package sources

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

// Collector runs the adapter set concurrently and merges the results into
// one snapshot. Adapters are independent: the snapshot is assembled only
// after every adapter has reported, succeeded or failed, so downstream
// stages always see a stage-complete set.
type Collector struct {
	adapters []Adapter
	timeout  time.Duration
}

func NewCollector(timeout time.Duration, adapters ...Adapter) *Collector {
	return &Collector{
		adapters: adapters,
		timeout:  timeout,
	}
}

// Run executes all adapters, bounded by the run-level timeout. An adapter
// still in flight when the timeout fires is cut off and reports status
// error; the run itself never fails.
func (c *Collector) Run(ctx context.Context) *signal.Snapshot {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results := make([]signal.SourceResult, len(c.adapters))
	g := new(errgroup.Group)
	g.SetLimit(len(c.adapters))

	started := time.Now()
	for i, adapter := range c.adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			results[i] = adapter.Collect(runCtx)
			slog.Info("Adapter finished",
				"source", string(adapter.Source()),
				"status", string(results[i].Status),
				"signals", len(results[i].Signals),
				"duration", time.Since(started).Round(time.Millisecond).String())
			return nil
		})
	}
	g.Wait()

	snap := &signal.Snapshot{
		RunID:       uuid.NewString(),
		CollectedAt: time.Now().UTC(),
		Sources:     make(map[signal.Source]signal.SourceResult, len(c.adapters)),
	}
	for i, adapter := range c.adapters {
		res := results[i]
		if res.Signals == nil {
			res.Signals = []signal.Signal{}
		}
		if res.Status == "" {
			res.Status = signal.StatusError
		}
		snap.Sources[adapter.Source()] = res
	}
	return snap
}
