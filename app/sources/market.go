package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

const (
	defaultCoingeckoURL = "https://api.coingecko.com/api/v3"

	maxEcosystemTokens = 30
	maxCategorySignals = 15
)

// categoryKeywords filters the CoinGecko category list down to the verticals
// relevant to the ecosystem.
var categoryKeywords = []string{
	"solana", "defi", "liquid staking", "dex", "lending",
	"yield", "meme", "ai", "depin", "rwa",
}

// MarketAdapter collects price and market structure signals from CoinGecko.
// SOL itself and the ecosystem token list are the primary calls; trending
// tokens and category performance are enrichment.
type MarketAdapter struct {
	fetcher      *Fetcher
	coingeckoURL string
}

func NewMarketAdapter(fetcher *Fetcher) *MarketAdapter {
	return &MarketAdapter{
		fetcher:      fetcher,
		coingeckoURL: defaultCoingeckoURL,
	}
}

func (a *MarketAdapter) Source() signal.Source {
	return signal.SourceMarket
}

func (a *MarketAdapter) Collect(ctx context.Context) signal.SourceResult {
	var sigs []signal.Signal
	var failures []string
	degraded := false

	solSignal, err := a.collectSOL(ctx)
	solFailed := err != nil
	if solFailed {
		failures = append(failures, fmt.Sprintf("sol: %v", err))
	} else {
		sigs = append(sigs, *solSignal)
	}

	tokenSignals, err := a.collectEcosystemTokens(ctx)
	tokensFailed := err != nil
	if tokensFailed {
		failures = append(failures, fmt.Sprintf("ecosystem tokens: %v", err))
	} else {
		if len(tokenSignals) == 0 {
			degraded = true
		}
		sigs = append(sigs, tokenSignals...)
	}

	if trendingSignals, err := a.collectTrending(ctx); err != nil {
		degraded = true
		failures = append(failures, fmt.Sprintf("trending: %v", err))
	} else {
		sigs = append(sigs, trendingSignals...)
	}

	if categorySignals, err := a.collectCategories(ctx); err != nil {
		degraded = true
		failures = append(failures, fmt.Sprintf("categories: %v", err))
	} else {
		sigs = append(sigs, categorySignals...)
	}

	result := signal.SourceResult{
		Status:  signal.StatusLive,
		Signals: normalize(signal.SourceMarket, sigs),
	}
	switch {
	case solFailed && tokensFailed:
		result.Status = signal.StatusError
	case solFailed || tokensFailed || degraded:
		result.Status = signal.StatusPartial
	}
	if len(failures) > 0 {
		result.Error = strings.Join(failures, "; ")
	}
	return result
}

func (a *MarketAdapter) collectSOL(ctx context.Context) (*signal.Signal, error) {
	var payload struct {
		MarketData struct {
			CurrentPrice             map[string]float64 `json:"current_price"`
			MarketCap                map[string]float64 `json:"market_cap"`
			TotalVolume              map[string]float64 `json:"total_volume"`
			PriceChangePercentage24H *float64           `json:"price_change_percentage_24h"`
			PriceChangePercentage7D  *float64           `json:"price_change_percentage_7d"`
			PriceChangePercentage14D *float64           `json:"price_change_percentage_14d"`
			PriceChangePercentage30D *float64           `json:"price_change_percentage_30d"`
			ATH                      map[string]float64 `json:"ath"`
			ATHChangePercentage      map[string]float64 `json:"ath_change_percentage"`
		} `json:"market_data"`
	}
	url := a.coingeckoURL + "/coins/solana?localization=false&tickers=false&community_data=false"
	if err := a.fetcher.GetJSON(ctx, url, nil, &payload); err != nil {
		return nil, err
	}

	market := payload.MarketData
	metadata := map[string]string{
		"price_usd":  fmt.Sprintf("%.2f", market.CurrentPrice["usd"]),
		"market_cap": formatUSD(market.MarketCap["usd"]),
		"volume_24h": formatUSD(market.TotalVolume["usd"]),
		"ath":        fmt.Sprintf("%.2f", market.ATH["usd"]),
	}
	if v, ok := market.ATHChangePercentage["usd"]; ok {
		metadata["ath_change_pct"] = formatPct(v)
	}
	if market.PriceChangePercentage24H != nil {
		metadata["change_24h"] = formatPct(*market.PriceChangePercentage24H)
	}
	if market.PriceChangePercentage14D != nil {
		metadata["change_14d"] = formatPct(*market.PriceChangePercentage14D)
	}
	if market.PriceChangePercentage30D != nil {
		metadata["change_30d"] = formatPct(*market.PriceChangePercentage30D)
	}

	change7d := 0.0
	if market.PriceChangePercentage7D != nil {
		change7d = *market.PriceChangePercentage7D
	}

	// SOL carries no category: it is a singleton cluster keyed by its kind.
	return &signal.Signal{
		ID:         signalID(signal.SourceMarket, signal.KindPriceMove, "sol"),
		Source:     signal.SourceMarket,
		Kind:       signal.KindPriceMove,
		Value:      signal.Float(change7d),
		ObservedAt: time.Now().UTC(),
		Metadata:   metadata,
	}, nil
}

type coingeckoToken struct {
	ID                              string   `json:"id"`
	Symbol                          string   `json:"symbol"`
	Name                            string   `json:"name"`
	CurrentPrice                    *float64 `json:"current_price"`
	MarketCap                       *float64 `json:"market_cap"`
	TotalVolume                     *float64 `json:"total_volume"`
	PriceChangePercentage24H        *float64 `json:"price_change_percentage_24h"`
	PriceChangePercentage7DInCcy    *float64 `json:"price_change_percentage_7d_in_currency"`
	PriceChangePercentage14DInCcy   *float64 `json:"price_change_percentage_14d_in_currency"`
	PriceChangePercentage30DInCcy   *float64 `json:"price_change_percentage_30d_in_currency"`
}

func (a *MarketAdapter) collectEcosystemTokens(ctx context.Context) ([]signal.Signal, error) {
	url := fmt.Sprintf("%s/coins/markets?vs_currency=usd&category=solana-ecosystem&order=market_cap_desc&per_page=%d&page=1&sparkline=false&price_change_percentage=7d,14d,30d",
		a.coingeckoURL, maxEcosystemTokens)
	var tokens []coingeckoToken
	if err := a.fetcher.GetJSON(ctx, url, nil, &tokens); err != nil {
		return nil, err
	}

	observed := time.Now().UTC()
	sigs := make([]signal.Signal, 0, len(tokens))
	for _, t := range tokens {
		if t.ID == "" {
			continue
		}
		metadata := map[string]string{
			"symbol": strings.ToUpper(t.Symbol),
			"name":   t.Name,
		}
		if t.CurrentPrice != nil {
			metadata["price"] = fmt.Sprintf("%.4f", *t.CurrentPrice)
		}
		if t.MarketCap != nil {
			metadata["market_cap"] = formatUSD(*t.MarketCap)
		}
		if t.PriceChangePercentage24H != nil {
			metadata["change_24h"] = formatPct(*t.PriceChangePercentage24H)
		}
		if t.PriceChangePercentage14DInCcy != nil {
			metadata["change_14d"] = formatPct(*t.PriceChangePercentage14DInCcy)
		}
		if t.PriceChangePercentage30DInCcy != nil {
			metadata["change_30d"] = formatPct(*t.PriceChangePercentage30DInCcy)
		}

		change7d := 0.0
		if t.PriceChangePercentage7DInCcy != nil {
			change7d = *t.PriceChangePercentage7DInCcy
		}
		sigs = append(sigs, signal.Signal{
			ID:         signalID(signal.SourceMarket, signal.KindTokenPriceMove, t.ID),
			Source:     signal.SourceMarket,
			Kind:       signal.KindTokenPriceMove,
			Value:      signal.Float(change7d),
			ObservedAt: observed,
			Metadata:   metadata,
		})
	}
	return sigs, nil
}

func (a *MarketAdapter) collectTrending(ctx context.Context) ([]signal.Signal, error) {
	var payload struct {
		Coins []struct {
			Item struct {
				Name          string         `json:"name"`
				Symbol        string         `json:"symbol"`
				MarketCapRank *int           `json:"market_cap_rank"`
				Platforms     map[string]any `json:"platforms"`
			} `json:"item"`
		} `json:"coins"`
	}
	if err := a.fetcher.GetJSON(ctx, a.coingeckoURL+"/search/trending", nil, &payload); err != nil {
		return nil, err
	}

	observed := time.Now().UTC()
	var sigs []signal.Signal
	for _, c := range payload.Coins {
		if !onSolana(c.Item.Platforms) {
			continue
		}
		metadata := map[string]string{
			"name":   c.Item.Name,
			"symbol": c.Item.Symbol,
		}
		if c.Item.MarketCapRank != nil {
			metadata["market_cap_rank"] = fmt.Sprintf("%d", *c.Item.MarketCapRank)
		}
		// Trending is a textual signal: presence on the list matters, not a magnitude.
		sigs = append(sigs, signal.Signal{
			ID:         signalID(signal.SourceMarket, signal.KindTokenTrending, c.Item.Name),
			Source:     signal.SourceMarket,
			Kind:       signal.KindTokenTrending,
			ObservedAt: observed,
			Metadata:   metadata,
		})
	}
	return sigs, nil
}

func onSolana(platforms map[string]any) bool {
	for k, v := range platforms {
		if strings.Contains(strings.ToLower(k), "solana") {
			return true
		}
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), "solana") {
			return true
		}
	}
	return false
}

func (a *MarketAdapter) collectCategories(ctx context.Context) ([]signal.Signal, error) {
	var categories []struct {
		Name                string   `json:"name"`
		MarketCap           *float64 `json:"market_cap"`
		MarketCapChange24H  *float64 `json:"market_cap_change_24h"`
		Volume24H           *float64 `json:"volume_24h"`
	}
	if err := a.fetcher.GetJSON(ctx, a.coingeckoURL+"/coins/categories", nil, &categories); err != nil {
		return nil, err
	}

	observed := time.Now().UTC()
	var sigs []signal.Signal
	for _, c := range categories {
		if !matchesCategoryKeyword(c.Name) {
			continue
		}
		metadata := map[string]string{"name": c.Name}
		if c.MarketCap != nil {
			metadata["market_cap"] = formatUSD(*c.MarketCap)
		}
		if c.Volume24H != nil {
			metadata["volume_24h"] = formatUSD(*c.Volume24H)
		}

		change := 0.0
		if c.MarketCapChange24H != nil {
			change = *c.MarketCapChange24H
		}
		sigs = append(sigs, signal.Signal{
			ID:         signalID(signal.SourceMarket, signal.KindCategoryPerf, c.Name),
			Source:     signal.SourceMarket,
			Category:   signal.CanonicalCategory(c.Name),
			Kind:       signal.KindCategoryPerf,
			Value:      signal.Float(change),
			ObservedAt: observed,
			Metadata:   metadata,
		})
		if len(sigs) == maxCategorySignals {
			break
		}
	}
	return sigs, nil
}

func matchesCategoryKeyword(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range categoryKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
