package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

func rssBody(items ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Test Feed</title>` + strings.Join(items, "") + `</channel></rss>`
}

func rssItem(title, link, description string, published time.Time) string {
	return fmt.Sprintf(
		`<item><title>%s</title><link>%s</link><description>%s</description><pubDate>%s</pubDate></item>`,
		title, link, description, published.Format(time.RFC1123Z))
}

const governanceBody = `[
	{"title": "SIMD-0123: Increase compute budget", "html_url": "https://github.com/solana-foundation/solana-improvement-documents/pull/123", "created_at": "2026-08-20T10:00:00Z", "user": {"login": "someone"}, "labels": [{"name": "SIMD"}]},
	{"title": "", "html_url": "https://example.com/empty", "created_at": "2026-08-21T10:00:00Z", "user": {"login": "nobody"}}
]`

type socialFixture struct {
	ecosystemBody    string
	ecosystemStatus  int
	newsBody         string
	newsStatus       int
	governanceStatus int
	pages            map[string]string
}

func newSocialAdapterForTest(t *testing.T, fix socialFixture) *SocialAdapter {
	t.Helper()
	status := func(code int) int {
		if code == 0 {
			return http.StatusOK
		}
		return code
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ecosystem.xml", func(w http.ResponseWriter, r *http.Request) {
		if s := status(fix.ecosystemStatus); s != http.StatusOK {
			w.WriteHeader(s)
			return
		}
		w.Write([]byte(fix.ecosystemBody))
	})
	mux.HandleFunc("/news.xml", func(w http.ResponseWriter, r *http.Request) {
		if s := status(fix.newsStatus); s != http.StatusOK {
			w.WriteHeader(s)
			return
		}
		w.Write([]byte(fix.newsBody))
	})
	mux.HandleFunc("/governance", func(w http.ResponseWriter, r *http.Request) {
		if s := status(fix.governanceStatus); s != http.StatusOK {
			w.WriteHeader(s)
			return
		}
		w.Write([]byte(governanceBody))
	})
	for path, page := range fix.pages {
		body := page
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
	}

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	config := &SocialConfig{
		Ecosystem: []FeedConfig{{Name: "Ecosystem Blog", URL: server.URL + "/ecosystem.xml"}},
		News:      []FeedConfig{{Name: "Crypto News", URL: server.URL + "/news.xml", Filtered: true}},
		Keywords:  []string{"solana", "jupiter"},
	}
	config.Settings.MaxItemsPerFeed = 10
	config.Settings.EnrichLimit = 5

	adapter := NewSocialAdapter(newTestFetcher(), config)
	adapter.governanceURL = server.URL + "/governance"
	return adapter
}

func TestSocialCollectLive(t *testing.T) {
	published := time.Now().UTC().Add(-24 * time.Hour)
	adapter := newSocialAdapterForTest(t, socialFixture{
		ecosystemBody: rssBody(
			rssItem("Firedancer hits testnet", "https://blog.example/firedancer", "<p>The validator client reaches a milestone.</p>", published),
			rssItem("DeFi lending grows", "https://blog.example/lending", "Lending TVL is up.", published),
		),
		newsBody: rssBody(
			rssItem("Solana ETF filed", "https://news.example/etf", "An issuer filed for a Solana ETF.", published),
			rssItem("Bitcoin halving recap", "https://news.example/halving", "Nothing ecosystem related.", published),
		),
	})

	result := adapter.Collect(context.Background())
	if result.Status != signal.StatusLive {
		t.Fatalf("Expected live status, got %s (%s)", result.Status, result.Error)
	}

	if n := countKind(result.Signals, signal.KindEcosystemArticle); n != 2 {
		t.Errorf("Expected 2 ecosystem articles, got %d", n)
	}
	// The filtered news feed keeps only keyword matches.
	if n := countKind(result.Signals, signal.KindNewsArticle); n != 1 {
		t.Errorf("Expected 1 keyword-matched news article, got %d", n)
	}
	if n := countKind(result.Signals, signal.KindGovernanceProposal); n != 1 {
		t.Errorf("Expected 1 governance proposal (empty-title PR dropped), got %d", n)
	}

	article := findKind(result.Signals, signal.KindEcosystemArticle)
	if article.Value != nil {
		t.Error("Expected articles to carry no magnitude")
	}
	if strings.Contains(article.Metadata["summary"], "<p>") {
		t.Errorf("Expected HTML stripped from summary, got %q", article.Metadata["summary"])
	}
	if article.Category != signal.CategoryInfrastructure {
		t.Errorf("Expected firedancer article categorized Infrastructure, got %q", article.Category)
	}
}

func TestSocialArticleCategoryProbesOrdered(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"New AI agent framework for defi", signal.CategoryAI},
		{"Lending protocol update", signal.CategoryDeFi},
		{"Liquid staking yields rise", signal.CategoryYield},
		{"Quarterly report", ""},
	}
	for _, tc := range cases {
		if got := articleCategory(tc.text); got != tc.want {
			t.Errorf("articleCategory(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestSocialEnrichmentFillsMissingSummary(t *testing.T) {
	published := time.Now().UTC().Add(-24 * time.Hour)
	page := `<html><head><title>Full article</title></head><body><article><h1>Jupiter launches</h1>` +
		strings.Repeat("<p>Jupiter shipped a new aggregator release with deep liquidity routing improvements for defi traders.</p>", 10) +
		`</article></body></html>`

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssBody(rssItem("Jupiter launches", server.URL+"/article", "", published))))
	})
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	})
	mux.HandleFunc("/governance", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	config := &SocialConfig{
		Ecosystem: []FeedConfig{{Name: "Ecosystem Blog", URL: server.URL + "/feed.xml"}},
		Keywords:  []string{"solana"},
	}
	config.Settings.MaxItemsPerFeed = 10
	config.Settings.EnrichLimit = 5

	adapter := NewSocialAdapter(newTestFetcher(), config)
	adapter.governanceURL = server.URL + "/governance"

	result := adapter.Collect(context.Background())
	if result.Status != signal.StatusLive {
		t.Fatalf("Expected live status, got %s (%s)", result.Status, result.Error)
	}

	article := findKind(result.Signals, signal.KindEcosystemArticle)
	if article == nil {
		t.Fatal("Expected the article signal")
	}
	summary := article.Metadata["summary"]
	if summary == "" {
		t.Fatal("Expected enrichment to fill the missing summary")
	}
	if !strings.Contains(summary, "aggregator release") {
		t.Errorf("Expected extracted page text in summary, got %q", summary)
	}
	if len(summary) > maxSummaryLength {
		t.Errorf("Expected enriched summary capped at %d, got %d", maxSummaryLength, len(summary))
	}
	if article.Category != signal.CategoryDeFi {
		t.Errorf("Expected category derived from enriched text, got %q", article.Category)
	}
}

func TestSocialEnrichmentFailureIsPartial(t *testing.T) {
	published := time.Now().UTC().Add(-24 * time.Hour)

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssBody(rssItem("Solana story", server.URL+"/gone", "", published))))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/governance", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	config := &SocialConfig{
		Ecosystem: []FeedConfig{{Name: "Ecosystem Blog", URL: server.URL + "/feed.xml"}},
		Keywords:  []string{"solana"},
	}
	config.Settings.MaxItemsPerFeed = 10
	config.Settings.EnrichLimit = 5

	adapter := NewSocialAdapter(newTestFetcher(), config)
	adapter.governanceURL = server.URL + "/governance"

	result := adapter.Collect(context.Background())
	if result.Status != signal.StatusPartial {
		t.Fatalf("Expected partial status after enrichment failure, got %s", result.Status)
	}
	// The article itself is kept, just without a summary.
	if findKind(result.Signals, signal.KindEcosystemArticle) == nil {
		t.Error("Expected enrichment failure to keep the article")
	}
}

func TestSocialGovernanceFailureIsPartial(t *testing.T) {
	published := time.Now().UTC().Add(-24 * time.Hour)
	adapter := newSocialAdapterForTest(t, socialFixture{
		ecosystemBody:    rssBody(rssItem("Solana news", "https://blog.example/a", "Something happened.", published)),
		newsBody:         rssBody(rssItem("Solana ETF", "https://news.example/etf", "Solana ETF news.", published)),
		governanceStatus: http.StatusNotFound,
	})

	result := adapter.Collect(context.Background())
	if result.Status != signal.StatusPartial {
		t.Fatalf("Expected partial status, got %s", result.Status)
	}
	if n := countKind(result.Signals, signal.KindEcosystemArticle); n == 0 {
		t.Error("Expected articles to survive governance failure")
	}
}

func TestSocialFeedFailureIsPartial(t *testing.T) {
	published := time.Now().UTC().Add(-24 * time.Hour)
	adapter := newSocialAdapterForTest(t, socialFixture{
		ecosystemStatus: http.StatusNotFound,
		newsBody:        rssBody(rssItem("Solana ETF", "https://news.example/etf", "Solana ETF news.", published)),
	})

	result := adapter.Collect(context.Background())
	if result.Status != signal.StatusPartial {
		t.Fatalf("Expected partial status, got %s", result.Status)
	}
	if !strings.Contains(result.Error, "Ecosystem Blog") {
		t.Errorf("Expected failing feed named in error, got %q", result.Error)
	}
}

func TestSocialAllSourcesFailedIsError(t *testing.T) {
	adapter := newSocialAdapterForTest(t, socialFixture{
		ecosystemStatus:  http.StatusNotFound,
		newsStatus:       http.StatusNotFound,
		governanceStatus: http.StatusNotFound,
	})

	result := adapter.Collect(context.Background())
	if result.Status != signal.StatusError {
		t.Fatalf("Expected error status when every call fails, got %s", result.Status)
	}
	if len(result.Signals) != 0 {
		t.Errorf("Expected no signals, got %d", len(result.Signals))
	}
}

func TestSocialZeroArticlesIsPartial(t *testing.T) {
	adapter := newSocialAdapterForTest(t, socialFixture{
		ecosystemBody: rssBody(),
		newsBody:      rssBody(),
	})

	result := adapter.Collect(context.Background())
	if result.Status != signal.StatusPartial {
		t.Fatalf("Expected partial status for zero articles, got %s", result.Status)
	}
}

func TestStripHTML(t *testing.T) {
	in := ` <p>Hello <a href="x">world</a></p> `
	if got := stripHTML(in); got != "Hello world" {
		t.Errorf("stripHTML(%q) = %q", in, got)
	}
	long := strings.Repeat("a", 600)
	if got := stripHTML(long); len(got) != maxSummaryLength {
		t.Errorf("Expected summary capped at %d, got %d", maxSummaryLength, len(got))
	}
}

func TestCapLengthKeepsRunesIntact(t *testing.T) {
	// "é" is 2 bytes; a byte-indexed cut at 499 would split it.
	in := strings.Repeat("a", maxSummaryLength-1) + "é"
	got := capLength(in, maxSummaryLength)
	if !utf8.ValidString(got) {
		t.Errorf("Expected valid UTF-8 after truncation, got %q tail", got[len(got)-4:])
	}
	if len(got) != maxSummaryLength-1 {
		t.Errorf("Expected cut back to the rune boundary at %d bytes, got %d", maxSummaryLength-1, len(got))
	}
	if got := capLength("héllo", 100); got != "héllo" {
		t.Errorf("Expected short string unchanged, got %q", got)
	}
}

func TestArticleHashStable(t *testing.T) {
	a := articleHash("Title", "https://example.com")
	b := articleHash("Title", "https://example.com")
	if a != b {
		t.Error("Expected identical input to hash identically")
	}
	if len(a) != 16 {
		t.Errorf("Expected 16-char hash, got %d", len(a))
	}
	if a == articleHash("Other", "https://example.com") {
		t.Error("Expected different titles to hash differently")
	}
}
