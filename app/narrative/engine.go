package narrative

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

// PublishThreshold is the minimum score a cluster must reach to be
// synthesized and published.
const PublishThreshold = 5

const (
	weightBreadth   = 0.4
	weightRecency   = 0.3
	weightMagnitude = 0.3

	// magnitudeScale is the half-saturation point of the magnitude norm:
	// a mean absolute value of this size scores 0.5. Values are
	// percentage-scale for most signal kinds.
	magnitudeScale = 25.0
)

// Engine is the correlation and scoring stage: it groups signals into
// candidate narrative clusters, assigns each a 1-10 score and drops clusters
// below the publishing threshold. Scoring is fully deterministic: the same
// snapshot and analysis time always yield the same clusters in the same
// order.
type Engine struct {
	window time.Duration
}

func NewEngine(windowDays int) *Engine {
	return &Engine{window: time.Duration(windowDays) * 24 * time.Hour}
}

// Run clusters and scores the signal list. Surviving clusters are ordered by
// score descending, tie-broken by source breadth, then recency of the newest
// signal, then cluster key.
func (e *Engine) Run(signals []signal.Signal, now time.Time) []Cluster {
	groups := make(map[string]*Cluster)
	var order []string

	for _, sig := range signals {
		key := clusterKey(sig)
		cluster, ok := groups[key]
		if !ok {
			cluster = &Cluster{Key: key, Category: sig.Category}
			groups[key] = cluster
			order = append(order, key)
		}
		cluster.Signals = append(cluster.Signals, sig)
	}

	clusters := make([]Cluster, 0, len(groups))
	for _, key := range order {
		cluster := groups[key]
		e.score(cluster, now)
		if cluster.Score < PublishThreshold {
			slog.Debug("Cluster below threshold",
				"cluster", cluster.Key,
				"score", cluster.Score,
				"signals", len(cluster.Signals))
			continue
		}
		clusters = append(clusters, *cluster)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Score != clusters[j].Score {
			return clusters[i].Score > clusters[j].Score
		}
		if clusters[i].SourceBreadth != clusters[j].SourceBreadth {
			return clusters[i].SourceBreadth > clusters[j].SourceBreadth
		}
		if !clusters[i].NewestAt.Equal(clusters[j].NewestAt) {
			return clusters[i].NewestAt.After(clusters[j].NewestAt)
		}
		return clusters[i].Key < clusters[j].Key
	})

	return clusters
}

func (e *Engine) score(c *Cluster, now time.Time) {
	sources := make(map[signal.Source]bool, 4)
	recent := 0
	magnitudeSum := 0.0
	magnitudeCount := 0
	cutoff := now.Add(-e.window)

	for _, sig := range c.Signals {
		sources[sig.Source] = true
		if sig.ObservedAt.After(cutoff) {
			recent++
		}
		// Missing values are excluded from the aggregate, not treated as zero.
		if sig.Value != nil {
			magnitudeSum += math.Abs(*sig.Value)
			magnitudeCount++
		}
		if sig.ObservedAt.After(c.NewestAt) {
			c.NewestAt = sig.ObservedAt
		}
	}

	c.SourceBreadth = len(sources)
	c.Recency = float64(recent) / float64(len(c.Signals))
	if magnitudeCount > 0 {
		c.Magnitude = magnitudeSum / float64(magnitudeCount)
	}

	// Two corroborating sources already count as strong breadth; three or
	// more saturate the term. Breadth is a weight, not a gate: a single
	// extreme signal can still cross the threshold.
	breadthNorm := math.Min(1, float64(c.SourceBreadth-1)/2)
	magnitudeNorm := c.Magnitude / (c.Magnitude + magnitudeScale)

	total := weightBreadth*breadthNorm + weightRecency*c.Recency + weightMagnitude*magnitudeNorm
	c.Score = clampScore(int(math.Round(1 + 9*total)))
}

func clampScore(s int) int {
	if s < 1 {
		return 1
	}
	if s > 10 {
		return 10
	}
	return s
}

func clusterKey(sig signal.Signal) string {
	if sig.Category == "" {
		return "kind:" + sig.Kind
	}
	return strings.ToLower(sig.Category)
}

// Evidence renders the cluster's signals as human-readable strings, used for
// the synthesis digest and as the published evidence fallback. Signals with
// values are listed largest magnitude first.
func (c *Cluster) Evidence(limit int) []string {
	sigs := make([]signal.Signal, len(c.Signals))
	copy(sigs, c.Signals)
	sort.SliceStable(sigs, func(i, j int) bool {
		return absValue(sigs[i]) > absValue(sigs[j])
	})
	if limit > 0 && len(sigs) > limit {
		sigs = sigs[:limit]
	}

	evidence := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		evidence = append(evidence, describeSignal(sig))
	}
	return evidence
}

func describeSignal(sig signal.Signal) string {
	name := sig.Metadata["name"]
	if name == "" {
		name = sig.Metadata["title"]
	}
	if name == "" {
		name = sig.ID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s/%s] %s", sig.Source, sig.Kind, name)
	if sig.Value != nil {
		switch sig.Kind {
		case signal.KindRepoTrending, signal.KindRepoActive, signal.KindRepoEstablished:
			fmt.Fprintf(&b, ": %.0f stars", *sig.Value)
		case signal.KindTopicActivity:
			fmt.Fprintf(&b, ": %s repos, %.0f total stars", sig.Metadata["repo_count"], *sig.Value)
		case signal.KindStablecoinSupply:
			fmt.Fprintf(&b, ": $%.0f circulating", *sig.Value)
		case signal.KindNetworkTPS:
			fmt.Fprintf(&b, ": %.0f avg TPS", *sig.Value)
		case signal.KindYieldOpportunity:
			fmt.Fprintf(&b, ": %.1f%% APY", *sig.Value)
		default:
			fmt.Fprintf(&b, ": %+.1f%%", *sig.Value)
		}
	}
	return b.String()
}

func absValue(sig signal.Signal) float64 {
	if sig.Value == nil {
		return -1
	}
	return math.Abs(*sig.Value)
}
