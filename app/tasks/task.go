package tasks

import (
	"time"

	"github.com/google/uuid"
)

type StageType string

const (
	StageCollect StageType = "collect"
	StageAnalyze StageType = "analyze"
	StagePublish StageType = "publish"
)

// Stage is the common bookkeeping for one pipeline stage execution. Stages
// carry no retry state: retries exist only inside individual adapter
// requests and the synthesis call, never across stage boundaries.
type Stage struct {
	ID        string
	Type      StageType
	StartedAt *time.Time
}

func NewStage(stageType StageType) Stage {
	return Stage{
		ID:   uuid.NewString(),
		Type: stageType,
	}
}

func (s *Stage) Start() {
	now := time.Now()
	s.StartedAt = &now
}

func (s *Stage) GetDuration() time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	return time.Since(*s.StartedAt)
}
