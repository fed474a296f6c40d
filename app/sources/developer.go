package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

const (
	defaultGithubURL = "https://api.github.com"

	trendingWindowDays = 30
	activeWindowDays   = 14
	searchLimit        = 15
	topicSearchLimit   = 5
)

// ecosystemTopics are the fixed sub-verticals searched each run. Each topic
// produces one aggregate activity signal.
var ecosystemTopics = []string{
	"defi", "nft", "payments", "ai agent", "mobile",
	"depin", "gaming", "rwa", "blink", "token-extensions",
}

// DeveloperAdapter collects repository activity signals from the GitHub
// search API. A token is optional: its absence only lowers the search rate
// ceiling, never fails the adapter.
type DeveloperAdapter struct {
	fetcher   *Fetcher
	githubURL string
	token     string
}

func NewDeveloperAdapter(fetcher *Fetcher, token string) *DeveloperAdapter {
	// Unauthenticated GitHub search allows 10 requests/min, authenticated 30.
	searchBudget := rate.Limit(10.0 / 60.0)
	if token != "" {
		searchBudget = rate.Limit(30.0 / 60.0)
	}
	fetcher.SetHostLimit("api.github.com", searchBudget, 2)

	return &DeveloperAdapter{
		fetcher:   fetcher,
		githubURL: defaultGithubURL,
		token:     token,
	}
}

func (a *DeveloperAdapter) Source() signal.Source {
	return signal.SourceDeveloper
}

func (a *DeveloperAdapter) Collect(ctx context.Context) signal.SourceResult {
	var sigs []signal.Signal
	var failures []string
	degraded := false

	now := time.Now().UTC()
	trendingCutoff := now.AddDate(0, 0, -trendingWindowDays).Format("2006-01-02")
	activeCutoff := now.AddDate(0, 0, -activeWindowDays).Format("2006-01-02")

	trending, err := a.searchRepos(ctx, fmt.Sprintf("solana created:>%s", trendingCutoff), "stars", searchLimit)
	trendingFailed := err != nil
	if trendingFailed {
		failures = append(failures, fmt.Sprintf("trending search: %v", err))
	} else {
		if len(trending) == 0 {
			degraded = true
		}
		sigs = append(sigs, a.repoSignals(trending, signal.KindRepoTrending, func(r githubRepo) time.Time { return r.CreatedAt })...)
	}

	active, err := a.searchRepos(ctx, fmt.Sprintf("solana pushed:>%s", activeCutoff), "updated", searchLimit)
	activeFailed := err != nil
	if activeFailed {
		failures = append(failures, fmt.Sprintf("active search: %v", err))
	} else {
		if len(active) == 0 {
			degraded = true
		}
		sigs = append(sigs, a.repoSignals(active, signal.KindRepoActive, func(r githubRepo) time.Time { return r.PushedAt })...)
	}

	established, err := a.searchRepos(ctx, "solana stars:>500", "stars", searchLimit)
	if err != nil {
		degraded = true
		failures = append(failures, fmt.Sprintf("established search: %v", err))
	} else {
		sigs = append(sigs, a.repoSignals(established, signal.KindRepoEstablished, func(r githubRepo) time.Time { return r.PushedAt })...)
	}

	for _, topic := range ecosystemTopics {
		topicSignal, err := a.collectTopic(ctx, topic)
		if err != nil {
			degraded = true
			failures = append(failures, fmt.Sprintf("topic %s: %v", topic, err))
			continue
		}
		sigs = append(sigs, *topicSignal)
	}

	result := signal.SourceResult{
		Status:  signal.StatusLive,
		Signals: normalize(signal.SourceDeveloper, sigs),
	}
	switch {
	case trendingFailed && activeFailed:
		result.Status = signal.StatusError
	case trendingFailed || activeFailed || degraded:
		result.Status = signal.StatusPartial
	}
	if len(failures) > 0 {
		result.Error = strings.Join(failures, "; ")
	}
	return result
}

type githubRepo struct {
	FullName        string    `json:"full_name"`
	Description     string    `json:"description"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	Language        string    `json:"language"`
	CreatedAt       time.Time `json:"created_at"`
	PushedAt        time.Time `json:"pushed_at"`
	HTMLURL         string    `json:"html_url"`
	Topics          []string  `json:"topics"`
}

func (a *DeveloperAdapter) searchRepos(ctx context.Context, query, sortBy string, limit int) ([]githubRepo, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", sortBy)
	params.Set("order", "desc")
	params.Set("per_page", fmt.Sprintf("%d", limit))

	var payload struct {
		Items []githubRepo `json:"items"`
	}
	if err := a.fetcher.GetJSON(ctx, a.githubURL+"/search/repositories?"+params.Encode(), a.headers(), &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

func (a *DeveloperAdapter) headers() map[string]string {
	headers := map[string]string{"Accept": "application/vnd.github.v3+json"}
	if a.token != "" {
		headers["Authorization"] = "token " + a.token
	}
	return headers
}

func (a *DeveloperAdapter) repoSignals(repos []githubRepo, kind string, observedAt func(githubRepo) time.Time) []signal.Signal {
	sigs := make([]signal.Signal, 0, len(repos))
	for _, r := range repos {
		metadata := map[string]string{
			"name": r.FullName,
			"url":  r.HTMLURL,
		}
		if r.Language != "" {
			metadata["language"] = r.Language
		}
		if r.Description != "" {
			metadata["description"] = capLength(r.Description, 200)
		}
		if len(r.Topics) > 0 {
			metadata["topics"] = strings.Join(r.Topics, ",")
		}
		sigs = append(sigs, signal.Signal{
			ID:         signalID(signal.SourceDeveloper, kind, r.FullName),
			Source:     signal.SourceDeveloper,
			Category:   repoCategory(r),
			Kind:       kind,
			Value:      signal.Float(float64(r.StargazersCount)),
			ObservedAt: observedAt(r).UTC(),
			Metadata:   metadata,
		})
	}
	return sigs
}

func (a *DeveloperAdapter) collectTopic(ctx context.Context, topic string) (*signal.Signal, error) {
	repos, err := a.searchRepos(ctx, "solana "+topic, "stars", topicSearchLimit)
	if err != nil {
		return nil, err
	}

	totalStars := 0
	names := make([]string, 0, len(repos))
	for _, r := range repos {
		totalStars += r.StargazersCount
		if len(names) < 3 {
			names = append(names, r.FullName)
		}
	}

	return &signal.Signal{
		ID:         signalID(signal.SourceDeveloper, signal.KindTopicActivity, topic),
		Source:     signal.SourceDeveloper,
		Category:   signal.CanonicalCategory(topic),
		Kind:       signal.KindTopicActivity,
		Value:      signal.Float(float64(totalStars)),
		ObservedAt: time.Now().UTC(),
		Metadata: map[string]string{
			"topic":      topic,
			"repo_count": fmt.Sprintf("%d", len(repos)),
			"top_repos":  strings.Join(names, ","),
		},
	}, nil
}

// repoCategory derives a canonical category from repo topics first, then
// description keywords. Repos that match nothing stay uncategorized and
// cluster by kind.
func repoCategory(r githubRepo) string {
	for _, topic := range r.Topics {
		if c := signal.CanonicalCategory(topic); isKnownCategory(c) {
			return c
		}
	}
	desc := strings.ToLower(r.Description)
	for _, probe := range []struct {
		keyword  string
		category string
	}{
		{"defi", signal.CategoryDeFi},
		{"ai agent", signal.CategoryAI},
		{"nft", signal.CategoryNFT},
		{"payment", signal.CategoryPayments},
		{"game", signal.CategoryGaming},
		{"depin", signal.CategoryDePIN},
		{"wallet", signal.CategoryConsumer},
		{"validator", signal.CategoryInfrastructure},
		{"rpc", signal.CategoryInfrastructure},
	} {
		if strings.Contains(desc, probe.keyword) {
			return probe.category
		}
	}
	return ""
}

func isKnownCategory(c string) bool {
	switch c {
	case signal.CategoryDeFi, signal.CategoryInfrastructure, signal.CategoryConsumer,
		signal.CategoryAI, signal.CategoryDePIN, signal.CategoryGaming,
		signal.CategoryPayments, signal.CategorySocial, signal.CategoryNFT,
		signal.CategoryRWA, signal.CategoryStablecoins, signal.CategoryMobile,
		signal.CategoryMemecoins, signal.CategoryYield, signal.CategoryMarket:
		return true
	}
	return false
}
