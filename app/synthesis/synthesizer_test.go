package synthesis

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/narrative"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

var synthTime = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

// fakeCompleter returns canned replies in order, one per Complete call.
type fakeCompleter struct {
	replies []string
	errs    []error
	calls   int
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, _, userPrompt string) (string, error) {
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, userPrompt)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", fmt.Errorf("no canned reply for call %d", i)
}

func testCluster(key, category string, score int) narrative.Cluster {
	return narrative.Cluster{
		Key:           key,
		Category:      category,
		Score:         score,
		SourceBreadth: 2,
		Recency:       1,
		Magnitude:     40,
		NewestAt:      synthTime.Add(-24 * time.Hour),
		Signals: []signal.Signal{
			{ID: key + ":a", Source: signal.SourceOnchain, Category: category,
				Kind: signal.KindProtocolTVLMove, Value: signal.Float(42),
				ObservedAt: synthTime.Add(-24 * time.Hour),
				Metadata:   map[string]string{"name": "SomeProtocol"}},
			{ID: key + ":b", Source: signal.SourceDeveloper, Category: category,
				Kind: signal.KindRepoTrending, Value: signal.Float(800),
				ObservedAt: synthTime.Add(-48 * time.Hour),
				Metadata:   map[string]string{"name": "some/repo"}},
		},
	}
}

func validReply(title string, strength float64) string {
	return fmt.Sprintf(`{
		"title": %q,
		"summary": "Activity is converging across onchain and developer data.",
		"evidence": ["TVL up 42%%", "repo gaining stars"],
		"build_ideas": [{"title": "Idea", "description": "Build it", "complexity": "low", "potential_impact": "high"}],
		"key_projects": ["SomeProtocol"],
		"risk_factors": ["momentum fades"],
		"signal_strength": %g
	}`, title, strength)
}

func TestRunProducesNarratives(t *testing.T) {
	client := &fakeCompleter{replies: []string{validReply("AI Momentum", 8)}}
	s := NewSynthesizer(client, "test-model", 8)

	analysis := s.Run(context.Background(), []narrative.Cluster{testCluster("ai", "AI", 8)}, 120, synthTime)

	if len(analysis.Narratives) != 1 {
		t.Fatalf("Expected 1 narrative, got %d", len(analysis.Narratives))
	}
	n := analysis.Narratives[0]
	if n.ID != 1 {
		t.Errorf("Expected sequential ID 1, got %d", n.ID)
	}
	if n.Title != "AI Momentum" {
		t.Errorf("Unexpected title: %q", n.Title)
	}
	if n.SignalStrength != 8 {
		t.Errorf("Expected strength 8, got %d", n.SignalStrength)
	}
	if n.Category != "AI" {
		t.Errorf("Expected category from cluster, got %q", n.Category)
	}
	if analysis.Meta.SignalsAnalyzed != 120 {
		t.Errorf("Expected 120 signals analyzed, got %d", analysis.Meta.SignalsAnalyzed)
	}
	if analysis.Meta.Agent != "test-model" {
		t.Errorf("Expected agent test-model, got %q", analysis.Meta.Agent)
	}
}

func TestRunCapsClusterCount(t *testing.T) {
	client := &fakeCompleter{replies: []string{
		validReply("First", 7),
		validReply("Second", 7),
	}}
	s := NewSynthesizer(client, "test-model", 2)

	clusters := []narrative.Cluster{
		testCluster("a", "AI", 9),
		testCluster("b", "DeFi", 8),
		testCluster("c", "Gaming", 7),
	}
	analysis := s.Run(context.Background(), clusters, 50, synthTime)

	if client.calls != 2 {
		t.Errorf("Expected synthesis capped at 2 calls, got %d", client.calls)
	}
	if len(analysis.Narratives) != 2 {
		t.Errorf("Expected 2 narratives, got %d", len(analysis.Narratives))
	}
}

func TestFailedClusterOmittedNotFatal(t *testing.T) {
	client := &fakeCompleter{
		replies: []string{"", validReply("Survivor", 6)},
		errs:    []error{fmt.Errorf("rate limited"), nil},
	}
	s := NewSynthesizer(client, "test-model", 8)

	clusters := []narrative.Cluster{
		testCluster("a", "AI", 9),
		testCluster("b", "DeFi", 8),
	}
	analysis := s.Run(context.Background(), clusters, 50, synthTime)

	if len(analysis.Narratives) != 1 {
		t.Fatalf("Expected failed cluster dropped and run to continue, got %d narratives", len(analysis.Narratives))
	}
	if analysis.Narratives[0].Title != "Survivor" {
		t.Errorf("Unexpected surviving narrative: %q", analysis.Narratives[0].Title)
	}
	if analysis.Narratives[0].ID != 1 {
		t.Errorf("Expected IDs to stay sequential after a drop, got %d", analysis.Narratives[0].ID)
	}
}

func TestUnparsableReplyDropsNarrative(t *testing.T) {
	client := &fakeCompleter{replies: []string{"I could not produce JSON for this one."}}
	s := NewSynthesizer(client, "test-model", 8)

	analysis := s.Run(context.Background(), []narrative.Cluster{testCluster("a", "AI", 9)}, 10, synthTime)
	if len(analysis.Narratives) != 0 {
		t.Errorf("Expected unparsable reply to drop the narrative, got %d", len(analysis.Narratives))
	}
}

func TestMissingTitleDropsNarrative(t *testing.T) {
	client := &fakeCompleter{replies: []string{`{"title": "  ", "summary": "something", "signal_strength": 7}`}}
	s := NewSynthesizer(client, "test-model", 8)

	analysis := s.Run(context.Background(), []narrative.Cluster{testCluster("a", "AI", 9)}, 10, synthTime)
	if len(analysis.Narratives) != 0 {
		t.Errorf("Expected blank title to drop the narrative, got %d", len(analysis.Narratives))
	}
}

func TestInvalidStrengthSubstitutedWithEngineScore(t *testing.T) {
	cases := []struct {
		name     string
		strength float64
	}{
		{"above range", 15},
		{"below range", 0},
		{"below publish threshold", 3},
		{"fractional", 7.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeCompleter{replies: []string{validReply("X", tc.strength)}}
			s := NewSynthesizer(client, "test-model", 8)

			cluster := testCluster("a", "AI", 9)
			analysis := s.Run(context.Background(), []narrative.Cluster{cluster}, 10, synthTime)
			if len(analysis.Narratives) != 1 {
				t.Fatalf("Expected narrative published with substituted strength, got %d", len(analysis.Narratives))
			}
			if got := analysis.Narratives[0].SignalStrength; got != cluster.Score {
				t.Errorf("Expected engine score %d substituted, got %d", cluster.Score, got)
			}
		})
	}
}

func TestNarrativesSortedByStrength(t *testing.T) {
	// The collaborator rates the second cluster stronger than the first;
	// the published list must follow the strengths, not the cluster order.
	client := &fakeCompleter{replies: []string{
		validReply("First", 5),
		validReply("Second", 9),
	}}
	s := NewSynthesizer(client, "test-model", 8)

	clusters := []narrative.Cluster{
		testCluster("a", "AI", 9),
		testCluster("b", "DeFi", 8),
	}
	analysis := s.Run(context.Background(), clusters, 50, synthTime)

	if len(analysis.Narratives) != 2 {
		t.Fatalf("Expected 2 narratives, got %d", len(analysis.Narratives))
	}
	if got := analysis.Narratives[0]; got.Title != "Second" || got.SignalStrength != 9 {
		t.Errorf("Expected strongest narrative first, got %q with strength %d", got.Title, got.SignalStrength)
	}
	if got := analysis.Narratives[1]; got.Title != "First" || got.SignalStrength != 5 {
		t.Errorf("Expected weaker narrative second, got %q with strength %d", got.Title, got.SignalStrength)
	}
	for i, n := range analysis.Narratives {
		if n.SignalStrength < narrative.PublishThreshold {
			t.Errorf("Narrative %q published with strength %d below threshold", n.Title, n.SignalStrength)
		}
		if n.ID != i+1 {
			t.Errorf("Expected ID %d after sorting, got %d", i+1, n.ID)
		}
	}
}

func TestMissingBuildIdeasPublishedEmpty(t *testing.T) {
	reply := `{"title": "T", "summary": "S", "build_ideas": null, "signal_strength": 6}`
	client := &fakeCompleter{replies: []string{reply}}
	s := NewSynthesizer(client, "test-model", 8)

	analysis := s.Run(context.Background(), []narrative.Cluster{testCluster("a", "AI", 9)}, 10, synthTime)
	if len(analysis.Narratives) != 1 {
		t.Fatalf("Expected narrative published, got %d", len(analysis.Narratives))
	}
	if analysis.Narratives[0].BuildIdeas == nil {
		t.Error("Expected empty build idea list, got nil")
	}
	if len(analysis.Narratives[0].BuildIdeas) != 0 {
		t.Errorf("Expected zero build ideas, got %d", len(analysis.Narratives[0].BuildIdeas))
	}
}

func TestEmptyEvidenceFallsBackToCluster(t *testing.T) {
	reply := `{"title": "T", "summary": "S", "evidence": [], "signal_strength": 6}`
	client := &fakeCompleter{replies: []string{reply}}
	s := NewSynthesizer(client, "test-model", 8)

	analysis := s.Run(context.Background(), []narrative.Cluster{testCluster("a", "AI", 9)}, 10, synthTime)
	if len(analysis.Narratives) != 1 {
		t.Fatalf("Expected narrative published, got %d", len(analysis.Narratives))
	}
	if len(analysis.Narratives[0].Evidence) == 0 {
		t.Error("Expected evidence fallback from cluster signals")
	}
}

func TestSignalTypesAlwaysFromCluster(t *testing.T) {
	reply := `{"title": "T", "summary": "S", "signal_types": ["made-up"], "signal_strength": 6}`
	client := &fakeCompleter{replies: []string{reply}}
	s := NewSynthesizer(client, "test-model", 8)

	analysis := s.Run(context.Background(), []narrative.Cluster{testCluster("a", "AI", 9)}, 10, synthTime)
	if len(analysis.Narratives) != 1 {
		t.Fatalf("Expected narrative published, got %d", len(analysis.Narratives))
	}
	got := analysis.Narratives[0].SignalTypes
	if len(got) != 2 || got[0] != "onchain" || got[1] != "developer" {
		t.Errorf("Expected signal types from cluster sources, got %v", got)
	}
}

func TestFencedReplyParsed(t *testing.T) {
	fenced := "Here is the analysis:\n```json\n" + validReply("Fenced", 7) + "\n```\nDone."
	client := &fakeCompleter{replies: []string{fenced}}
	s := NewSynthesizer(client, "test-model", 8)

	analysis := s.Run(context.Background(), []narrative.Cluster{testCluster("a", "AI", 9)}, 10, synthTime)
	if len(analysis.Narratives) != 1 {
		t.Fatalf("Expected fenced JSON parsed, got %d narratives", len(analysis.Narratives))
	}
	if analysis.Narratives[0].Title != "Fenced" {
		t.Errorf("Unexpected title: %q", analysis.Narratives[0].Title)
	}
}

func TestEmptyClusterListStillProducesAnalysis(t *testing.T) {
	client := &fakeCompleter{}
	s := NewSynthesizer(client, "test-model", 8)

	analysis := s.Run(context.Background(), nil, 75, synthTime)
	if analysis == nil {
		t.Fatal("Expected analysis document for empty cluster list")
	}
	if len(analysis.Narratives) != 0 {
		t.Errorf("Expected zero narratives, got %d", len(analysis.Narratives))
	}
	if !strings.Contains(analysis.ExecutiveSummary, "75 signals") {
		t.Errorf("Expected summary to mention signal count, got %q", analysis.ExecutiveSummary)
	}
	if client.calls != 0 {
		t.Errorf("Expected no synthesis calls, got %d", client.calls)
	}
}

func TestPeriodLabel(t *testing.T) {
	cases := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), "Aug 13–26, 2026"},
		{time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC), "Aug 23 – Sep 5, 2026"},
	}
	for _, tc := range cases {
		if got := periodLabel(tc.now); got != tc.want {
			t.Errorf("periodLabel(%s) = %q, want %q", tc.now.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestClusterDigestIncludesStatistics(t *testing.T) {
	digest := clusterDigest(testCluster("ai", "AI", 8), synthTime)
	for _, want := range []string{"CLUSTER: AI", "Engine score: 8/10", "SomeProtocol", "some/repo", "2026-08-26"} {
		if !strings.Contains(digest, want) {
			t.Errorf("Expected digest to contain %q", want)
		}
	}
}
