package publish

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/narrative"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

const dataFile = "data.json"

const (
	maxTopMovers     = 5
	maxTrendingRepos = 5
	maxRecentNews    = 10
)

// Metric is one highlight value with its descriptive metadata passed through
// from the originating signal, never re-derived.
type Metric struct {
	Value    *float64          `json:"value,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SourceHealth makes the published artifact self-describing about data
// completeness.
type SourceHealth struct {
	Status  signal.SourceStatus `json:"status"`
	Signals int                 `json:"signals"`
	Error   string              `json:"error,omitempty"`
}

// Highlights are the ancillary dashboard metrics alongside the narrative list.
type Highlights struct {
	SolPrice      *Metric                        `json:"sol_price,omitempty"`
	TVL           *Metric                        `json:"tvl,omitempty"`
	Network       *Metric                        `json:"network,omitempty"`
	TopMovers     []Metric                       `json:"top_movers"`
	TrendingRepos []Metric                       `json:"trending_repos"`
	RecentNews    []Metric                       `json:"recent_news"`
	Sources       map[signal.Source]SourceHealth `json:"sources"`
}

// Artifact is the dashboard data document: the sole contract with the
// rendering layer.
type Artifact struct {
	GeneratedAt string              `json:"generated_at"`
	Analysis    *narrative.Analysis `json:"analysis"`
	Highlights  Highlights          `json:"highlights"`
}

// Publisher assembles and writes the dashboard data artifact. It always
// writes a complete, valid document: an empty narrative list is a
// renderable output, not an error.
type Publisher struct {
	siteDir string
}

func NewPublisher(siteDir string) *Publisher {
	return &Publisher{siteDir: siteDir}
}

func (p *Publisher) Path() string {
	return filepath.Join(p.siteDir, dataFile)
}

func (p *Publisher) Run(analysis *narrative.Analysis, snap *signal.Snapshot, now time.Time) error {
	if analysis == nil {
		analysis = &narrative.Analysis{Narratives: []narrative.Narrative{}}
	}
	if analysis.Narratives == nil {
		analysis.Narratives = []narrative.Narrative{}
	}

	artifact := Artifact{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Analysis:    analysis,
		Highlights:  p.highlights(snap),
	}

	if err := os.MkdirAll(p.siteDir, 0o755); err != nil {
		return fmt.Errorf("failed to create site directory: %w", err)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dashboard artifact: %w", err)
	}

	tmp, err := os.CreateTemp(p.siteDir, dataFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write dashboard artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, p.Path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit dashboard artifact: %w", err)
	}
	return nil
}

func (p *Publisher) highlights(snap *signal.Snapshot) Highlights {
	h := Highlights{
		TopMovers:     []Metric{},
		TrendingRepos: []Metric{},
		RecentNews:    []Metric{},
		Sources:       make(map[signal.Source]SourceHealth, 4),
	}

	for _, src := range signal.AllSources() {
		res := snap.Result(src)
		h.Sources[src] = SourceHealth{
			Status:  res.Status,
			Signals: len(res.Signals),
			Error:   res.Error,
		}
	}

	if sig := snap.Find(signal.SourceMarket, signal.KindPriceMove); sig != nil {
		h.SolPrice = &Metric{Value: sig.Value, Metadata: sig.Metadata}
	}
	if sig := snap.Find(signal.SourceOnchain, signal.KindTVLChange); sig != nil {
		h.TVL = &Metric{Value: sig.Value, Metadata: sig.Metadata}
	}
	if sig := snap.Find(signal.SourceOnchain, signal.KindNetworkTPS); sig != nil {
		h.Network = &Metric{Value: sig.Value, Metadata: sig.Metadata}
	}

	movers := snap.FindAll(signal.SourceOnchain, signal.KindProtocolTVLMove)
	sort.SliceStable(movers, func(i, j int) bool {
		return absValue(movers[i]) > absValue(movers[j])
	})
	for _, sig := range movers {
		if len(h.TopMovers) == maxTopMovers {
			break
		}
		h.TopMovers = append(h.TopMovers, Metric{Value: sig.Value, Metadata: sig.Metadata})
	}

	repos := snap.FindAll(signal.SourceDeveloper, signal.KindRepoTrending)
	sort.SliceStable(repos, func(i, j int) bool {
		return absValue(repos[i]) > absValue(repos[j])
	})
	for _, sig := range repos {
		if len(h.TrendingRepos) == maxTrendingRepos {
			break
		}
		h.TrendingRepos = append(h.TrendingRepos, Metric{Value: sig.Value, Metadata: sig.Metadata})
	}

	news := snap.FindAll(signal.SourceSocial, signal.KindEcosystemArticle)
	if len(news) > maxRecentNews/2 {
		news = news[:maxRecentNews/2]
	}
	general := snap.FindAll(signal.SourceSocial, signal.KindNewsArticle)
	if len(general) > maxRecentNews/2 {
		general = general[:maxRecentNews/2]
	}
	for _, sig := range append(news, general...) {
		h.RecentNews = append(h.RecentNews, Metric{Metadata: sig.Metadata})
	}

	return h
}

func absValue(sig signal.Signal) float64 {
	if sig.Value == nil {
		return -1
	}
	return math.Abs(*sig.Value)
}
