package signal

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Canonical category tags used for cross-source correlation. Upstream tags
// (protocol categories, repo topics, article keywords) are mapped onto this
// set so that signals from different sources land in the same cluster.
const (
	CategoryDeFi           = "DeFi"
	CategoryInfrastructure = "Infrastructure"
	CategoryConsumer       = "Consumer"
	CategoryAI             = "AI"
	CategoryDePIN          = "DePIN"
	CategoryGaming         = "Gaming"
	CategoryPayments       = "Payments"
	CategorySocial         = "Social"
	CategoryNFT            = "NFT"
	CategoryRWA            = "RWA"
	CategoryStablecoins    = "Stablecoins"
	CategoryMobile         = "Mobile"
	CategoryMemecoins      = "Memecoins"
	CategoryYield          = "Yield"
	CategoryMarket         = "Market"
)

// categoryAliases maps lowercased upstream tags onto canonical categories.
// Keys cover DeFiLlama protocol categories, GitHub topic queries and
// CoinGecko category names observed in practice.
var categoryAliases = map[string]string{
	"defi":               CategoryDeFi,
	"dexes":              CategoryDeFi,
	"dex":                CategoryDeFi,
	"lending":            CategoryDeFi,
	"derivatives":        CategoryDeFi,
	"cdp":                CategoryDeFi,
	"options":            CategoryDeFi,
	"synthetics":         CategoryDeFi,
	"launchpad":          CategoryDeFi,
	"liquid staking":     CategoryYield,
	"liquid-staking":     CategoryYield,
	"restaking":          CategoryYield,
	"yield":              CategoryYield,
	"yield aggregator":   CategoryYield,
	"farm":               CategoryYield,
	"infrastructure":     CategoryInfrastructure,
	"oracle":             CategoryInfrastructure,
	"bridge":             CategoryInfrastructure,
	"cross chain":        CategoryInfrastructure,
	"indexer":            CategoryInfrastructure,
	"rpc":                CategoryInfrastructure,
	"validator":          CategoryInfrastructure,
	"token-extensions":   CategoryInfrastructure,
	"token extensions":   CategoryInfrastructure,
	"ai":                 CategoryAI,
	"ai agent":           CategoryAI,
	"ai agents":          CategoryAI,
	"artificial intelligence": CategoryAI,
	"depin":              CategoryDePIN,
	"gaming":             CategoryGaming,
	"gamefi":             CategoryGaming,
	"games":              CategoryGaming,
	"payments":           CategoryPayments,
	"payment":            CategoryPayments,
	"social":             CategorySocial,
	"socialfi":           CategorySocial,
	"nft":                CategoryNFT,
	"nfts":               CategoryNFT,
	"nft marketplace":    CategoryNFT,
	"rwa":                CategoryRWA,
	"real world assets":  CategoryRWA,
	"stablecoin":         CategoryStablecoins,
	"stablecoins":        CategoryStablecoins,
	"algo-stables":       CategoryStablecoins,
	"mobile":             CategoryMobile,
	"meme":               CategoryMemecoins,
	"memes":              CategoryMemecoins,
	"memecoin":           CategoryMemecoins,
	"memecoins":          CategoryMemecoins,
	"meme token":         CategoryMemecoins,
	"blink":              CategoryConsumer,
	"blinks":             CategoryConsumer,
	"consumer":           CategoryConsumer,
	"wallet":             CategoryConsumer,
	"market":             CategoryMarket,
	"solana ecosystem":   CategoryMarket,
}

var titleCaser = cases.Title(language.English)

// CanonicalCategory maps a free-form upstream tag onto the canonical category
// set. Unknown tags are Title-cased as a display fallback so they still
// cluster consistently; an empty tag stays empty (the signal falls into a
// singleton cluster keyed by its kind).
func CanonicalCategory(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if canonical, ok := categoryAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return titleCaser.String(strings.ToLower(trimmed))
}
