package sources

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

const (
	defaultLlamaURL       = "https://api.llama.fi"
	defaultYieldsURL      = "https://yields.llama.fi"
	defaultStablecoinsURL = "https://stablecoins.llama.fi"
	defaultSolanaRPCURL   = "https://api.mainnet-beta.solana.com"

	protocolTVLFloor    = 1_000_000
	yieldTVLFloor       = 500_000
	maxProtocolSignals  = 30
	maxYieldSignals     = 20
	maxStablecoins      = 10
	protocolSanityFloor = 5
)

// OnchainAdapter collects TVL, protocol, yield and network signals from
// DeFiLlama and the Solana RPC. Chain TVL and the protocol list are the
// primary calls; yields, stablecoins and RPC performance are enrichment.
type OnchainAdapter struct {
	fetcher        *Fetcher
	llamaURL       string
	yieldsURL      string
	stablecoinsURL string
	rpcURL         string
}

func NewOnchainAdapter(fetcher *Fetcher) *OnchainAdapter {
	return &OnchainAdapter{
		fetcher:        fetcher,
		llamaURL:       defaultLlamaURL,
		yieldsURL:      defaultYieldsURL,
		stablecoinsURL: defaultStablecoinsURL,
		rpcURL:         defaultSolanaRPCURL,
	}
}

func (a *OnchainAdapter) Source() signal.Source {
	return signal.SourceOnchain
}

func (a *OnchainAdapter) Collect(ctx context.Context) signal.SourceResult {
	var sigs []signal.Signal
	var failures []string
	secondaryFailed := false

	tvlSignal, err := a.collectChainTVL(ctx)
	tvlFailed := err != nil
	if tvlFailed {
		failures = append(failures, fmt.Sprintf("chain TVL: %v", err))
	} else {
		sigs = append(sigs, *tvlSignal)
	}

	protocolSignals, err := a.collectProtocols(ctx)
	protocolsFailed := err != nil
	if protocolsFailed {
		failures = append(failures, fmt.Sprintf("protocols: %v", err))
	} else {
		sigs = append(sigs, protocolSignals...)
	}

	if yieldSignals, err := a.collectYields(ctx); err != nil {
		secondaryFailed = true
		failures = append(failures, fmt.Sprintf("yields: %v", err))
	} else {
		sigs = append(sigs, yieldSignals...)
	}

	if stableSignals, err := a.collectStablecoins(ctx); err != nil {
		secondaryFailed = true
		failures = append(failures, fmt.Sprintf("stablecoins: %v", err))
	} else {
		sigs = append(sigs, stableSignals...)
	}

	if tpsSignal, err := a.collectNetworkTPS(ctx); err != nil {
		secondaryFailed = true
		failures = append(failures, fmt.Sprintf("network: %v", err))
	} else {
		sigs = append(sigs, *tpsSignal)
	}

	result := signal.SourceResult{
		Status:  signal.StatusLive,
		Signals: normalize(signal.SourceOnchain, sigs),
	}
	switch {
	case tvlFailed && protocolsFailed:
		result.Status = signal.StatusError
	case tvlFailed || protocolsFailed || len(protocolSignals) < protocolSanityFloor || secondaryFailed:
		result.Status = signal.StatusPartial
	}
	if len(failures) > 0 {
		result.Error = strings.Join(failures, "; ")
	}
	return result
}

type tvlPoint struct {
	Date int64   `json:"date"`
	TVL  float64 `json:"tvl"`
}

func (a *OnchainAdapter) collectChainTVL(ctx context.Context) (*signal.Signal, error) {
	var points []tvlPoint
	if err := a.fetcher.GetJSON(ctx, a.llamaURL+"/v2/historicalChainTvl/Solana", nil, &points); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("empty TVL history")
	}

	recent := points
	if len(recent) > 30 {
		recent = recent[len(recent)-30:]
	}
	current := recent[len(recent)-1]
	tvl14d := recent[0].TVL
	if len(recent) >= 14 {
		tvl14d = recent[len(recent)-14].TVL
	}
	tvl30d := recent[0].TVL

	change14d := pctChange(tvl14d, current.TVL)
	change30d := pctChange(tvl30d, current.TVL)

	return &signal.Signal{
		ID:         signalID(signal.SourceOnchain, signal.KindTVLChange, "solana"),
		Source:     signal.SourceOnchain,
		Category:   signal.CategoryDeFi,
		Kind:       signal.KindTVLChange,
		Value:      signal.Float(change14d),
		ObservedAt: time.Unix(current.Date, 0).UTC(),
		Metadata: map[string]string{
			"current_tvl":    formatUSD(current.TVL),
			"tvl_14d_ago":    formatUSD(tvl14d),
			"tvl_30d_ago":    formatUSD(tvl30d),
			"change_30d_pct": formatPct(change30d),
		},
	}, nil
}

type llamaProtocol struct {
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Chains   []string `json:"chains"`
	TVL      *float64 `json:"tvl"`
	Change1D *float64 `json:"change_1d"`
	Change7D *float64 `json:"change_7d"`
	URL      string   `json:"url"`
}

func (a *OnchainAdapter) collectProtocols(ctx context.Context) ([]signal.Signal, error) {
	var protocols []llamaProtocol
	if err := a.fetcher.GetJSON(ctx, a.llamaURL+"/protocols", nil, &protocols); err != nil {
		return nil, err
	}

	solana := make([]llamaProtocol, 0, len(protocols))
	for _, p := range protocols {
		if p.TVL == nil || *p.TVL <= protocolTVLFloor {
			continue
		}
		for _, chain := range p.Chains {
			if chain == "Solana" {
				solana = append(solana, p)
				break
			}
		}
	}

	sort.SliceStable(solana, func(i, j int) bool {
		return math.Abs(change7d(solana[i])) > math.Abs(change7d(solana[j]))
	})
	if len(solana) > maxProtocolSignals {
		solana = solana[:maxProtocolSignals]
	}

	observed := time.Now().UTC()
	sigs := make([]signal.Signal, 0, len(solana))
	for _, p := range solana {
		metadata := map[string]string{
			"name": p.Name,
			"tvl":  formatUSD(*p.TVL),
		}
		if p.Change1D != nil {
			metadata["change_1d"] = formatPct(*p.Change1D)
		}
		if p.URL != "" {
			metadata["url"] = p.URL
		}
		sigs = append(sigs, signal.Signal{
			ID:         signalID(signal.SourceOnchain, signal.KindProtocolTVLMove, p.Name),
			Source:     signal.SourceOnchain,
			Category:   signal.CanonicalCategory(p.Category),
			Kind:       signal.KindProtocolTVLMove,
			Value:      signal.Float(change7d(p)),
			ObservedAt: observed,
			Metadata:   metadata,
		})
	}
	return sigs, nil
}

type llamaPool struct {
	Pool       string   `json:"pool"`
	Project    string   `json:"project"`
	Symbol     string   `json:"symbol"`
	Chain      string   `json:"chain"`
	TVLUsd     *float64 `json:"tvlUsd"`
	APY        *float64 `json:"apy"`
	APYMean30D *float64 `json:"apyMean30d"`
}

func (a *OnchainAdapter) collectYields(ctx context.Context) ([]signal.Signal, error) {
	var payload struct {
		Data []llamaPool `json:"data"`
	}
	if err := a.fetcher.GetJSON(ctx, a.yieldsURL+"/pools", nil, &payload); err != nil {
		return nil, err
	}

	pools := make([]llamaPool, 0, len(payload.Data))
	for _, p := range payload.Data {
		if p.Chain == "Solana" && p.TVLUsd != nil && *p.TVLUsd > yieldTVLFloor {
			pools = append(pools, p)
		}
	}
	sort.SliceStable(pools, func(i, j int) bool {
		return math.Abs(apyMean30d(pools[i])) > math.Abs(apyMean30d(pools[j]))
	})
	if len(pools) > maxYieldSignals {
		pools = pools[:maxYieldSignals]
	}

	observed := time.Now().UTC()
	sigs := make([]signal.Signal, 0, len(pools))
	for _, p := range pools {
		apy := 0.0
		if p.APY != nil {
			apy = *p.APY
		}
		sigs = append(sigs, signal.Signal{
			ID:         signalID(signal.SourceOnchain, signal.KindYieldOpportunity, p.Pool),
			Source:     signal.SourceOnchain,
			Category:   signal.CategoryYield,
			Kind:       signal.KindYieldOpportunity,
			Value:      signal.Float(apy),
			ObservedAt: observed,
			Metadata: map[string]string{
				"project":      p.Project,
				"symbol":       p.Symbol,
				"tvl_usd":      formatUSD(*p.TVLUsd),
				"apy_mean_30d": formatPct(apyMean30d(p)),
			},
		})
	}
	return sigs, nil
}

type peggedAsset struct {
	Name             string `json:"name"`
	Symbol           string `json:"symbol"`
	ChainCirculating map[string]struct {
		Current struct {
			PeggedUSD float64 `json:"peggedUSD"`
		} `json:"current"`
	} `json:"chainCirculating"`
}

func (a *OnchainAdapter) collectStablecoins(ctx context.Context) ([]signal.Signal, error) {
	var payload struct {
		PeggedAssets []peggedAsset `json:"peggedAssets"`
	}
	if err := a.fetcher.GetJSON(ctx, a.stablecoinsURL+"/stablecoins?includePrices=true", nil, &payload); err != nil {
		return nil, err
	}

	type solStable struct {
		name        string
		symbol      string
		circulating float64
	}
	stables := make([]solStable, 0)
	for _, s := range payload.PeggedAssets {
		chain, ok := s.ChainCirculating["Solana"]
		if !ok {
			continue
		}
		stables = append(stables, solStable{name: s.Name, symbol: s.Symbol, circulating: chain.Current.PeggedUSD})
	}
	sort.SliceStable(stables, func(i, j int) bool {
		return stables[i].circulating > stables[j].circulating
	})
	if len(stables) > maxStablecoins {
		stables = stables[:maxStablecoins]
	}

	observed := time.Now().UTC()
	sigs := make([]signal.Signal, 0, len(stables))
	for _, s := range stables {
		sigs = append(sigs, signal.Signal{
			ID:         signalID(signal.SourceOnchain, signal.KindStablecoinSupply, s.symbol),
			Source:     signal.SourceOnchain,
			Category:   signal.CategoryStablecoins,
			Kind:       signal.KindStablecoinSupply,
			Value:      signal.Float(s.circulating),
			ObservedAt: observed,
			Metadata: map[string]string{
				"name":   s.name,
				"symbol": s.symbol,
			},
		})
	}
	return sigs, nil
}

func (a *OnchainAdapter) collectNetworkTPS(ctx context.Context) (*signal.Signal, error) {
	request := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "getRecentPerformanceSamples",
		"params":  []any{10},
	}
	var response struct {
		Result []struct {
			NumTransactions  float64 `json:"numTransactions"`
			SamplePeriodSecs float64 `json:"samplePeriodSecs"`
		} `json:"result"`
	}
	if err := a.fetcher.PostJSON(ctx, a.rpcURL, request, &response); err != nil {
		return nil, err
	}
	if len(response.Result) == 0 {
		return nil, fmt.Errorf("no performance samples returned")
	}

	total := 0.0
	for _, s := range response.Result {
		if s.SamplePeriodSecs > 0 {
			total += s.NumTransactions / s.SamplePeriodSecs
		}
	}
	avgTPS := math.Round(total / float64(len(response.Result)))

	return &signal.Signal{
		ID:         signalID(signal.SourceOnchain, signal.KindNetworkTPS, "solana"),
		Source:     signal.SourceOnchain,
		Category:   signal.CategoryInfrastructure,
		Kind:       signal.KindNetworkTPS,
		Value:      signal.Float(avgTPS),
		ObservedAt: time.Now().UTC(),
		Metadata: map[string]string{
			"samples": fmt.Sprintf("%d", len(response.Result)),
		},
	}, nil
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

func change7d(p llamaProtocol) float64 {
	if p.Change7D == nil {
		return 0
	}
	return *p.Change7D
}

func apyMean30d(p llamaPool) float64 {
	if p.APYMean30D == nil {
		return 0
	}
	return *p.APYMean30D
}
