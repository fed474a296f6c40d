package sources

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

const (
	defaultGovernanceURL = "https://api.github.com/repos/solana-foundation/solana-improvement-documents/pulls?state=open&sort=created&direction=desc&per_page=10"

	maxSummaryLength = 500
)

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// articleCategoryProbes tag articles with a canonical category based on
// title+summary keywords. Probes are ordered: the first match wins.
var articleCategoryProbes = []struct {
	keyword  string
	category string
}{
	{"ai agent", signal.CategoryAI},
	{"artificial intelligence", signal.CategoryAI},
	{"depin", signal.CategoryDePIN},
	{"stablecoin", signal.CategoryStablecoins},
	{"payment", signal.CategoryPayments},
	{"liquid staking", signal.CategoryYield},
	{"restaking", signal.CategoryYield},
	{"yield", signal.CategoryYield},
	{"defi", signal.CategoryDeFi},
	{"lending", signal.CategoryDeFi},
	{"dex", signal.CategoryDeFi},
	{"nft", signal.CategoryNFT},
	{"gaming", signal.CategoryGaming},
	{"memecoin", signal.CategoryMemecoins},
	{"meme coin", signal.CategoryMemecoins},
	{"rwa", signal.CategoryRWA},
	{"real world asset", signal.CategoryRWA},
	{"mobile", signal.CategoryMobile},
	{"validator", signal.CategoryInfrastructure},
	{"firedancer", signal.CategoryInfrastructure},
	{"token extensions", signal.CategoryInfrastructure},
	{"wallet", signal.CategoryConsumer},
	{"blink", signal.CategoryConsumer},
}

// SocialAdapter collects articles from ecosystem blogs and crypto media via
// RSS/Atom plus open governance proposals. Articles without a summary are
// optionally enriched by fetching the page and extracting readable text.
type SocialAdapter struct {
	fetcher       *Fetcher
	config        *SocialConfig
	parser        *gofeed.Parser
	governanceURL string
}

func NewSocialAdapter(fetcher *Fetcher, config *SocialConfig) *SocialAdapter {
	return &SocialAdapter{
		fetcher:       fetcher,
		config:        config,
		parser:        gofeed.NewParser(),
		governanceURL: defaultGovernanceURL,
	}
}

func (a *SocialAdapter) Source() signal.Source {
	return signal.SourceSocial
}

func (a *SocialAdapter) Collect(ctx context.Context) signal.SourceResult {
	var sigs []signal.Signal
	var failures []string
	feedCount := len(a.config.Ecosystem) + len(a.config.News)
	failedFeeds := 0
	degraded := false

	for _, feed := range a.config.Ecosystem {
		articles, err := a.collectFeed(ctx, feed, signal.KindEcosystemArticle, false)
		if err != nil {
			failedFeeds++
			failures = append(failures, fmt.Sprintf("%s: %v", feed.Name, err))
			continue
		}
		sigs = append(sigs, articles...)
	}

	for _, feed := range a.config.News {
		articles, err := a.collectFeed(ctx, feed, signal.KindNewsArticle, feed.Filtered)
		if err != nil {
			failedFeeds++
			failures = append(failures, fmt.Sprintf("%s: %v", feed.Name, err))
			continue
		}
		sigs = append(sigs, articles...)
	}

	if !a.enrich(ctx, sigs) {
		degraded = true
		failures = append(failures, "summary enrichment incomplete")
	}

	governanceSignals, err := a.collectGovernance(ctx)
	governanceFailed := err != nil
	if governanceFailed {
		failures = append(failures, fmt.Sprintf("governance: %v", err))
	} else {
		sigs = append(sigs, governanceSignals...)
	}

	articleCount := 0
	for _, sig := range sigs {
		if sig.Kind == signal.KindEcosystemArticle || sig.Kind == signal.KindNewsArticle {
			articleCount++
		}
	}

	result := signal.SourceResult{
		Status:  signal.StatusLive,
		Signals: normalize(signal.SourceSocial, sigs),
	}
	switch {
	case failedFeeds == feedCount && governanceFailed:
		result.Status = signal.StatusError
	case failedFeeds > 0 || articleCount == 0 || governanceFailed || degraded:
		result.Status = signal.StatusPartial
	}
	if len(failures) > 0 {
		result.Error = strings.Join(failures, "; ")
	}
	return result
}

func (a *SocialAdapter) collectFeed(ctx context.Context, feed FeedConfig, kind string, filtered bool) ([]signal.Signal, error) {
	data, err := a.fetcher.Get(ctx, feed.URL, nil)
	if err != nil {
		return nil, err
	}

	parsed, err := a.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	now := time.Now().UTC()
	var sigs []signal.Signal
	for _, item := range parsed.Items {
		if len(sigs) == a.config.Settings.MaxItemsPerFeed {
			break
		}
		if item.Title == "" {
			continue
		}

		summary := stripHTML(item.Description)
		if filtered && !a.matchesKeywords(item.Title + " " + summary) {
			continue
		}

		observed := now
		if item.PublishedParsed != nil {
			observed = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			observed = item.UpdatedParsed.UTC()
		}

		metadata := map[string]string{
			"source": feed.Name,
			"title":  strings.TrimSpace(item.Title),
		}
		if item.Link != "" {
			metadata["url"] = item.Link
		}
		if summary != "" {
			metadata["summary"] = summary
		}

		sigs = append(sigs, signal.Signal{
			ID:         fmt.Sprintf("%s:%s:%s", signal.SourceSocial, kind, articleHash(item.Title, item.Link)),
			Source:     signal.SourceSocial,
			Category:   articleCategory(item.Title + " " + summary),
			Kind:       kind,
			ObservedAt: observed,
			Metadata:   metadata,
		})
	}
	return sigs, nil
}

// enrich fetches the page for articles lacking a summary and extracts
// readable text, bounded per run. Returns false when any enrichment attempt
// failed; enrichment failure only ever degrades status, never drops articles.
func (a *SocialAdapter) enrich(ctx context.Context, sigs []signal.Signal) bool {
	ok := true
	budget := a.config.Settings.EnrichLimit
	for i := range sigs {
		if budget == 0 {
			break
		}
		if sigs[i].Metadata["summary"] != "" || sigs[i].Metadata["url"] == "" {
			continue
		}
		budget--

		pageURL := sigs[i].Metadata["url"]
		data, err := a.fetcher.Get(ctx, pageURL, nil)
		if err != nil {
			slog.Debug("Article enrichment fetch failed", "url", pageURL, "error", err)
			ok = false
			continue
		}
		article, err := readability.FromReader(bytes.NewReader(data), nil)
		if err != nil || article.TextContent == "" {
			slog.Debug("Article enrichment extraction failed", "url", pageURL, "error", err)
			ok = false
			continue
		}
		sigs[i].Metadata["summary"] = capLength(strings.TrimSpace(article.TextContent), maxSummaryLength)
		if sigs[i].Category == "" {
			sigs[i].Category = articleCategory(sigs[i].Metadata["title"] + " " + sigs[i].Metadata["summary"])
		}
	}
	return ok
}

type governancePR struct {
	Title     string    `json:"title"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

func (a *SocialAdapter) collectGovernance(ctx context.Context) ([]signal.Signal, error) {
	var prs []governancePR
	headers := map[string]string{"Accept": "application/vnd.github.v3+json"}
	if err := a.fetcher.GetJSON(ctx, a.governanceURL, headers, &prs); err != nil {
		return nil, err
	}

	sigs := make([]signal.Signal, 0, len(prs))
	for _, pr := range prs {
		if pr.Title == "" {
			continue
		}
		labels := make([]string, 0, len(pr.Labels))
		for _, l := range pr.Labels {
			labels = append(labels, l.Name)
		}
		metadata := map[string]string{
			"title":  pr.Title,
			"url":    pr.HTMLURL,
			"author": pr.User.Login,
		}
		if len(labels) > 0 {
			metadata["labels"] = strings.Join(labels, ",")
		}
		// Governance proposals are textual signals: the proposal existing is
		// the fact, there is no magnitude.
		sigs = append(sigs, signal.Signal{
			ID:         fmt.Sprintf("%s:%s:%s", signal.SourceSocial, signal.KindGovernanceProposal, articleHash(pr.Title, pr.HTMLURL)),
			Source:     signal.SourceSocial,
			Category:   signal.CategoryInfrastructure,
			Kind:       signal.KindGovernanceProposal,
			ObservedAt: pr.CreatedAt.UTC(),
			Metadata:   metadata,
		})
	}
	return sigs, nil
}

func (a *SocialAdapter) matchesKeywords(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range a.config.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func articleCategory(text string) string {
	lower := strings.ToLower(text)
	for _, probe := range articleCategoryProbes {
		if strings.Contains(lower, probe.keyword) {
			return probe.category
		}
	}
	return ""
}

func articleHash(title, link string) string {
	hash := sha256.Sum256([]byte(title + "|" + link))
	return hex.EncodeToString(hash[:])[:16]
}

func stripHTML(s string) string {
	return capLength(strings.TrimSpace(htmlTagPattern.ReplaceAllString(s, "")), maxSummaryLength)
}

// capLength truncates on a rune boundary so a multi-byte character is never
// split into an invalid UTF-8 tail.
func capLength(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
