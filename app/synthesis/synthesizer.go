package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/narrative"
)

const systemPrompt = `You are an expert Solana ecosystem analyst. You are given one cluster of
correlated data signals (onchain metrics, developer activity, market data, social/news) and its
derived statistics. Describe the emerging narrative this cluster evidences, for builders deciding
what to work on next.

Respond with a single JSON object and nothing else:
{
  "title": "Concise narrative title",
  "summary": "2-3 sentences explaining WHY this trend is emerging",
  "evidence": ["the 3-6 most telling signals, as short human-readable strings"],
  "build_ideas": [
    {
      "title": "Product idea",
      "description": "1-2 sentence description",
      "complexity": "low|medium|high",
      "potential_impact": "low|medium|high"
    }
  ],
  "key_projects": ["project names central to the trend"],
  "risk_factors": ["what could invalidate the narrative"],
  "signal_strength": 7
}`

// dataSources is the fixed upstream inventory published in meta.
var dataSources = []string{"DeFiLlama", "GitHub", "CoinGecko", "RSS Feeds", "Solana RPC"}

// narrativeReply is the expected collaborator response shape for one cluster.
type narrativeReply struct {
	Title          string                `json:"title"`
	Summary        string                `json:"summary"`
	Evidence       []string              `json:"evidence"`
	BuildIdeas     []narrative.BuildIdea `json:"build_ideas"`
	KeyProjects    []string              `json:"key_projects"`
	RiskFactors    []string              `json:"risk_factors"`
	SignalStrength float64               `json:"signal_strength"`
}

// Synthesizer turns scored clusters into human-readable narratives via the
// external synthesis collaborator. Synthesis degradation is non-fatal: a
// failed or unusable reply drops that one narrative, never the run.
type Synthesizer struct {
	client        Completer
	agent         string
	maxNarratives int
}

func NewSynthesizer(client Completer, agent string, maxNarratives int) *Synthesizer {
	return &Synthesizer{
		client:        client,
		agent:         agent,
		maxNarratives: maxNarratives,
	}
}

// Run synthesizes the highest-scored clusters, capped at the configured
// maximum to bound synthesis cost. The returned narratives are ordered by
// descending signal strength with sequential IDs.
func (s *Synthesizer) Run(ctx context.Context, clusters []narrative.Cluster, signalsAnalyzed int, now time.Time) *narrative.Analysis {
	capped := clusters
	if len(capped) > s.maxNarratives {
		capped = capped[:s.maxNarratives]
	}

	narratives := make([]narrative.Narrative, 0, len(capped))
	for _, cluster := range capped {
		n, err := s.synthesizeCluster(ctx, cluster, now)
		if err != nil {
			slog.Warn("Narrative omitted, synthesis failed",
				"cluster", cluster.Key,
				"score", cluster.Score,
				"error", err)
			continue
		}
		narratives = append(narratives, *n)
	}

	// Collaborator-reported strengths may reorder clusters; the published
	// list is sorted by strength, with IDs assigned after sorting.
	sort.SliceStable(narratives, func(i, j int) bool {
		return narratives[i].SignalStrength > narratives[j].SignalStrength
	})
	for i := range narratives {
		narratives[i].ID = i + 1
	}

	return &narrative.Analysis{
		AnalysisDate:     now.UTC().Format(time.RFC3339),
		Period:           periodLabel(now),
		ExecutiveSummary: executiveSummary(narratives, signalsAnalyzed),
		Narratives:       narratives,
		Meta: narrative.Meta{
			SignalsAnalyzed: signalsAnalyzed,
			Agent:           s.agent,
			DataSources:     dataSources,
		},
	}
}

func (s *Synthesizer) synthesizeCluster(ctx context.Context, cluster narrative.Cluster, now time.Time) (*narrative.Narrative, error) {
	reply, err := s.client.Complete(ctx, systemPrompt, clusterDigest(cluster, now))
	if err != nil {
		return nil, err
	}

	var parsed narrativeReply
	if err := json.Unmarshal([]byte(extractJSON(reply)), &parsed); err != nil {
		return nil, fmt.Errorf("unparsable reply: %w", err)
	}
	if strings.TrimSpace(parsed.Title) == "" || strings.TrimSpace(parsed.Summary) == "" {
		return nil, fmt.Errorf("reply missing title or summary")
	}

	n := &narrative.Narrative{
		Title:       strings.TrimSpace(parsed.Title),
		Summary:     strings.TrimSpace(parsed.Summary),
		Category:    cluster.Category,
		Evidence:    parsed.Evidence,
		KeyProjects: parsed.KeyProjects,
		RiskFactors: parsed.RiskFactors,
		// The cluster's actual source set always wins over whatever the
		// collaborator claims contributed.
		SignalTypes: cluster.SignalTypes(),
	}

	// An out-of-range, fractional or sub-threshold strength is replaced by
	// the engine-computed score, never published as-is: every cluster that
	// reaches synthesis already crossed the publishing threshold, so the
	// collaborator cannot demote it back below.
	strength := int(parsed.SignalStrength)
	if float64(strength) != parsed.SignalStrength || strength < narrative.PublishThreshold || strength > 10 {
		slog.Debug("Substituting engine score for invalid signal_strength",
			"cluster", cluster.Key,
			"reported", parsed.SignalStrength,
			"engine", cluster.Score)
		strength = cluster.Score
	}
	n.SignalStrength = strength

	if len(n.Evidence) == 0 {
		n.Evidence = cluster.Evidence(6)
	}
	if n.BuildIdeas = parsed.BuildIdeas; n.BuildIdeas == nil {
		// Build-idea degradation is non-fatal: publish with an empty list.
		n.BuildIdeas = []narrative.BuildIdea{}
	}
	return n, nil
}

// clusterDigest renders one cluster and its statistics as the structured
// prompt payload.
func clusterDigest(cluster narrative.Cluster, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today's date is %s.\n\n", now.UTC().Format("2006-01-02"))

	label := cluster.Category
	if label == "" {
		label = cluster.Key
	}
	fmt.Fprintf(&b, "## CLUSTER: %s\n", label)
	fmt.Fprintf(&b, "Signals: %d | Distinct sources: %d (%s) | Recency: %.0f%% within window | Mean magnitude: %.1f | Engine score: %d/10\n\n",
		len(cluster.Signals), cluster.SourceBreadth, strings.Join(cluster.SignalTypes(), ", "),
		cluster.Recency*100, cluster.Magnitude, cluster.Score)

	b.WriteString("## SIGNALS\n")
	for _, line := range cluster.Evidence(0) {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteString("\n## DETAIL\n")
	for _, sig := range cluster.Signals {
		fmt.Fprintf(&b, "- %s (%s", sig.Kind, sig.Source)
		if sig.Value != nil {
			fmt.Fprintf(&b, ", value %.2f", *sig.Value)
		}
		b.WriteString(")")
		for _, key := range []string{"name", "title", "summary", "description", "symbol", "url"} {
			if v := sig.Metadata[key]; v != "" {
				fmt.Fprintf(&b, " %s=%s", key, v)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// periodLabel renders the trailing fortnight, e.g. "Aug 13–26, 2026".
func periodLabel(now time.Time) string {
	end := now.UTC()
	start := end.AddDate(0, 0, -13)
	if start.Month() == end.Month() {
		return fmt.Sprintf("%s %d–%d, %d", start.Format("Jan"), start.Day(), end.Day(), end.Year())
	}
	return fmt.Sprintf("%s %d – %s %d, %d", start.Format("Jan"), start.Day(), end.Format("Jan"), end.Day(), end.Year())
}

func executiveSummary(narratives []narrative.Narrative, signalsAnalyzed int) string {
	if len(narratives) == 0 {
		return fmt.Sprintf("No narratives crossed the publishing threshold this period (%d signals analyzed).", signalsAnalyzed)
	}

	categories := make([]string, 0, len(narratives))
	seen := make(map[string]bool)
	for _, n := range narratives {
		if n.Category == "" || seen[n.Category] {
			continue
		}
		seen[n.Category] = true
		categories = append(categories, n.Category)
	}

	summary := fmt.Sprintf("%d narratives identified from %d signals, led by %q (strength %d/10).",
		len(narratives), signalsAnalyzed, narratives[0].Title, narratives[0].SignalStrength)
	if len(categories) > 0 {
		summary += fmt.Sprintf(" Active categories: %s.", strings.Join(categories, ", "))
	}
	return summary
}
