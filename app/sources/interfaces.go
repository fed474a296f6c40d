package sources

import (
	"context"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

// Adapter wraps one upstream data source. Collect never returns a Go error:
// failures are encoded in the SourceResult status so that no adapter's
// failure can prevent other adapters or downstream stages from running.
type Adapter interface {
	Source() signal.Source
	Collect(ctx context.Context) signal.SourceResult
}
