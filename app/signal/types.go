package signal

import (
	"fmt"
	"time"
)

// Source identifies one of the four upstream signal categories.
type Source string

const (
	SourceOnchain   Source = "onchain"
	SourceDeveloper Source = "developer"
	SourceMarket    Source = "market"
	SourceSocial    Source = "social"
)

// AllSources returns the sources in their canonical order. Iteration over a
// Snapshot must use this order, never the map order, so that two analysis runs
// over the same snapshot see the same signal sequence.
func AllSources() []Source {
	return []Source{SourceOnchain, SourceDeveloper, SourceMarket, SourceSocial}
}

// SourceStatus describes the health of one adapter's collection.
type SourceStatus string

const (
	StatusLive    SourceStatus = "live"
	StatusPartial SourceStatus = "partial"
	StatusError   SourceStatus = "error"
)

// Signal kinds emitted by the adapters.
const (
	KindTVLChange          = "tvl_change"
	KindProtocolTVLMove    = "protocol_tvl_move"
	KindYieldOpportunity   = "yield_opportunity"
	KindStablecoinSupply   = "stablecoin_supply"
	KindNetworkTPS         = "network_tps"
	KindRepoTrending       = "repo_trending"
	KindRepoActive         = "repo_active"
	KindRepoEstablished    = "repo_established"
	KindTopicActivity      = "topic_activity"
	KindPriceMove          = "price_move"
	KindTokenPriceMove     = "token_price_move"
	KindTokenTrending      = "token_trending"
	KindCategoryPerf       = "category_performance"
	KindEcosystemArticle   = "ecosystem_article"
	KindNewsArticle        = "news_article"
	KindGovernanceProposal = "governance_proposal"
)

// Signal is one normalized observed fact from an upstream source.
// Metadata is consumed for evidence rendering only, never for scoring.
type Signal struct {
	ID         string            `json:"id"`
	Source     Source            `json:"source"`
	Category   string            `json:"category,omitempty"`
	Kind       string            `json:"kind"`
	Value      *float64          `json:"value,omitempty"`
	ObservedAt time.Time         `json:"observed_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Float wraps a numeric magnitude for Signal.Value.
func Float(v float64) *float64 {
	return &v
}

// Validate reports whether the signal satisfies the schema invariants:
// id, source and kind present, observed_at set. Value and category stay
// optional (textual signals carry no magnitude).
func (s Signal) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("signal missing id")
	}
	switch s.Source {
	case SourceOnchain, SourceDeveloper, SourceMarket, SourceSocial:
	default:
		return fmt.Errorf("signal %s: unknown source %q", s.ID, s.Source)
	}
	if s.Kind == "" {
		return fmt.Errorf("signal %s: missing kind", s.ID)
	}
	if s.ObservedAt.IsZero() {
		return fmt.Errorf("signal %s: missing observed_at", s.ID)
	}
	return nil
}

// SourceResult is one adapter's section of a snapshot: its health status and
// the signals it collected. An errored adapter contributes an empty list, not
// an absent entry.
type SourceResult struct {
	Status  SourceStatus `json:"status"`
	Error   string       `json:"error,omitempty"`
	Signals []Signal     `json:"signals"`
}

// Snapshot is the complete output of one collection run. It is the unit of
// hand-off between collection and analysis: an analysis run always sees one
// consistent snapshot from exactly one collection run.
type Snapshot struct {
	RunID       string                  `json:"run_id"`
	CollectedAt time.Time               `json:"collected_at"`
	Sources     map[Source]SourceResult `json:"sources"`
}

// Result returns the section for one source, or an empty errored section when
// the source is absent from the snapshot.
func (s *Snapshot) Result(src Source) SourceResult {
	if s == nil || s.Sources == nil {
		return SourceResult{Status: StatusError, Signals: []Signal{}}
	}
	res, ok := s.Sources[src]
	if !ok {
		return SourceResult{Status: StatusError, Signals: []Signal{}}
	}
	return res
}

// All flattens the snapshot into a single signal list in canonical source
// order. The order is deterministic so repeated analysis of the same snapshot
// produces identical results.
func (s *Snapshot) All() []Signal {
	if s == nil {
		return nil
	}
	var out []Signal
	for _, src := range AllSources() {
		out = append(out, s.Result(src).Signals...)
	}
	return out
}

// Count returns the total number of signals across all sources.
func (s *Snapshot) Count() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, src := range AllSources() {
		total += len(s.Result(src).Signals)
	}
	return total
}

// Find returns the first signal with the given source and kind, or nil.
// Used by the publisher to pass highlight metrics through from the snapshot.
func (s *Snapshot) Find(src Source, kind string) *Signal {
	res := s.Result(src)
	for i := range res.Signals {
		if res.Signals[i].Kind == kind {
			return &res.Signals[i]
		}
	}
	return nil
}

// FindAll returns every signal with the given source and kind, in snapshot order.
func (s *Snapshot) FindAll(src Source, kind string) []Signal {
	res := s.Result(src)
	var out []Signal
	for _, sig := range res.Signals {
		if sig.Kind == kind {
			out = append(out, sig)
		}
	}
	return out
}
