package tasks

import (
	"log/slog"
	"time"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/narrative"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/publish"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

// PublishTask writes the dashboard data artifact from the analysis and the
// snapshot it was derived from.
type PublishTask struct {
	Stage
	publisher *publish.Publisher
}

func NewPublishTask(publisher *publish.Publisher) *PublishTask {
	return &PublishTask{
		Stage:     NewStage(StagePublish),
		publisher: publisher,
	}
}

func (t *PublishTask) Execute(analysis *narrative.Analysis, snap *signal.Snapshot) error {
	t.Start()

	if err := t.publisher.Run(analysis, snap, time.Now().UTC()); err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", "PublishDashboard",
		"duration", t.GetDuration(),
		"path", t.publisher.Path())
	return nil
}
