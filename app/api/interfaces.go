package api

import (
	"github.com/ExpertVagabond/solana-narrative-tracker/app/store"
)

// RunTrigger starts a full pipeline run on demand. Satisfied by tasks.Runner.
type RunTrigger interface {
	TriggerRun() error
}

// RunHistory exposes past run records for the stats endpoint.
type RunHistory interface {
	RecentRuns(limit int) ([]store.RunRecord, error)
}
