package narrative

import (
	"time"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

// BuildIdea is one concrete product suggestion attached to a narrative.
type BuildIdea struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Complexity      string `json:"complexity"`
	PotentialImpact string `json:"potential_impact"`
}

// Narrative is a scored, synthesized trend derived from one cluster of
// correlated signals.
type Narrative struct {
	ID             int         `json:"id"`
	Title          string      `json:"title"`
	SignalStrength int         `json:"signal_strength"`
	Category       string      `json:"category,omitempty"`
	Summary        string      `json:"summary"`
	Evidence       []string    `json:"evidence"`
	SignalTypes    []string    `json:"signal_types"`
	BuildIdeas     []BuildIdea `json:"build_ideas"`
	KeyProjects    []string    `json:"key_projects,omitempty"`
	RiskFactors    []string    `json:"risk_factors,omitempty"`
}

// Meta describes the provenance of one analysis run.
type Meta struct {
	SignalsAnalyzed int      `json:"signals_analyzed"`
	Agent           string   `json:"agent"`
	DataSources     []string `json:"data_sources"`
}

// Analysis is the published analysis artifact: an ordered narrative list
// plus run metadata. The narrative order mirrors the cluster score order.
type Analysis struct {
	AnalysisDate     string      `json:"analysis_date"`
	Period           string      `json:"period"`
	ExecutiveSummary string      `json:"executive_summary"`
	Narratives       []Narrative `json:"narratives"`
	Meta             Meta        `json:"meta"`
}

// Cluster is a set of signals sharing a category, with the aggregate
// statistics scoring is computed from. Clusters are engine-internal: only
// those at or above the publishing threshold are handed to synthesis.
type Cluster struct {
	// Key is the grouping key: the lowercased category, or "kind:<kind>"
	// for uncategorized signals.
	Key      string
	Category string
	Signals  []signal.Signal

	SourceBreadth int
	Recency       float64
	Magnitude     float64
	NewestAt      time.Time
	Score         int
}

// SignalTypes returns the distinct sources represented in the cluster, in
// canonical source order.
func (c *Cluster) SignalTypes() []string {
	present := make(map[signal.Source]bool, 4)
	for _, sig := range c.Signals {
		present[sig.Source] = true
	}
	types := make([]string, 0, len(present))
	for _, src := range signal.AllSources() {
		if present[src] {
			types = append(types, string(src))
		}
	}
	return types
}
