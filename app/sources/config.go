package sources

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FeedConfig describes one RSS/Atom feed to poll.
type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// Filtered feeds are general crypto media: only items matching the
	// keyword list are kept. Ecosystem-specific feeds are never filtered.
	Filtered bool `yaml:"filtered"`
}

// SocialConfig is the sources.yml schema for the social adapter.
type SocialConfig struct {
	Ecosystem []FeedConfig `yaml:"ecosystem"`
	News      []FeedConfig `yaml:"news"`
	Keywords  []string     `yaml:"keywords"`
	Settings  struct {
		MaxItemsPerFeed int `yaml:"max_items_per_feed"`
		EnrichLimit     int `yaml:"enrich_limit"`
	} `yaml:"settings"`
}

// DefaultSocialConfig returns the built-in feed set, used when no
// sources.yml is present.
func DefaultSocialConfig() *SocialConfig {
	cfg := &SocialConfig{
		Ecosystem: []FeedConfig{
			{Name: "Solana Foundation", URL: "https://solana.com/news/rss.xml"},
			{Name: "Helius Blog", URL: "https://www.helius.dev/blog/rss.xml"},
			{Name: "Jito Blog", URL: "https://www.jito.network/blog/rss.xml"},
			{Name: "Marinade", URL: "https://blog.marinade.finance/rss/"},
			{Name: "Jupiter", URL: "https://www.jupresear.ch/latest.rss"},
		},
		News: []FeedConfig{
			{Name: "CoinDesk Solana", URL: "https://www.coindesk.com/tag/solana/feed/"},
			{Name: "TheBlock", URL: "https://www.theblock.co/rss/all", Filtered: true},
		},
		Keywords: []string{"solana", "sol", "jupiter", "jito", "raydium", "phantom", "marinade"},
	}
	cfg.Settings.MaxItemsPerFeed = 10
	cfg.Settings.EnrichLimit = 5
	return cfg
}

// LoadSocialConfig reads sources.yml, applies defaults and validates. A
// missing file falls back to the built-in feed set.
func LoadSocialConfig(path string) (*SocialConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultSocialConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cfg SocialConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if cfg.Settings.MaxItemsPerFeed == 0 {
		cfg.Settings.MaxItemsPerFeed = 10
	}
	if cfg.Settings.EnrichLimit == 0 {
		cfg.Settings.EnrichLimit = 5
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = DefaultSocialConfig().Keywords
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *SocialConfig) validate() error {
	if len(c.Ecosystem)+len(c.News) == 0 {
		return fmt.Errorf("at least one feed is required")
	}
	for i, f := range c.Ecosystem {
		if f.Name == "" || f.URL == "" {
			return fmt.Errorf("ecosystem feed at index %d must have name and url", i)
		}
	}
	for i, f := range c.News {
		if f.Name == "" || f.URL == "" {
			return fmt.Errorf("news feed at index %d must have name and url", i)
		}
	}
	if c.Settings.MaxItemsPerFeed < 0 || c.Settings.EnrichLimit < 0 {
		return fmt.Errorf("settings must be non-negative")
	}
	return nil
}
