package tasks

import (
	"errors"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers full runs on a cron schedule in serve mode. An
// overlapping tick is skipped with a log line rather than queued: the
// Runner's single-flight guard is the source of truth.
type Scheduler struct {
	runner   *Runner
	schedule string
	cron     *cron.Cron
}

func NewScheduler(runner *Runner, schedule string) *Scheduler {
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		cron:     cron.New(),
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.tick)
	if err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("Scheduler started", "schedule", s.schedule)
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) tick() {
	if err := s.runner.TriggerRun(); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			slog.Info("Skipping scheduled run, previous run still in progress")
			return
		}
		slog.Error("Scheduled run failed to start", "error", err)
	}
}
