package cfg

import (
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	if Version == "" {
		return "unknown"
	}
	return Version
}

type rawCfg struct {
	// Pipeline configuration
	DataDir         string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"Directory for signal snapshots and run history"`
	SiteDir         string `long:"site-dir" env:"SITE_DIR" default:"./site" description:"Directory the dashboard data artifact is written to"`
	SourcesFile     string `long:"sources-file" env:"SOURCES_FILE" default:"./sources.yml" description:"YAML file listing social feeds and keywords"`
	RunTimeout      int    `long:"run-timeout" env:"RUN_TIMEOUT" default:"600" description:"Run-level timeout in seconds for the collection stage"`
	MaxNarratives   int    `long:"max-narratives" env:"MAX_NARRATIVES" default:"8" description:"Maximum number of clusters sent to synthesis per run"`
	AnalysisWindow  int    `long:"analysis-window" env:"ANALYSIS_WINDOW" default:"14" description:"Recency window in days for narrative scoring"`
	CollectSchedule string `long:"collect-schedule" env:"COLLECT_SCHEDULE" default:"0 */6 * * *" description:"Cron schedule for full runs in serve mode"`

	// Credentials
	AnthropicAPIKey string `long:"anthropic-api-key" env:"ANTHROPIC_API_KEY" description:"Anthropic API key, required for narrative synthesis"`
	AnthropicModel  string `long:"anthropic-model" env:"ANTHROPIC_MODEL" default:"claude-sonnet-4-5-20250929" description:"Anthropic model used for narrative synthesis"`
	GithubToken     string `long:"github-token" env:"GITHUB_TOKEN" description:"GitHub token, optional, raises the search rate ceiling"`

	// Serve mode configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port for serve mode"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for the run trigger endpoint (optional)"`

	// Invocation modes
	CollectOnly bool `long:"collect-only" description:"Run only signal collection and snapshot write"`
	AnalyzeOnly bool `long:"analyze-only" description:"Run only analysis against the existing snapshot"`
	Serve       bool `long:"serve" description:"Run the HTTP server with scheduled full runs"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Solana Narrative Tracker/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	// A local .env is a convenience for development; its absence is not an error.
	_ = godotenv.Load()

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validateModes(&raw); err != nil {
		return nil, err
	}

	cfg := &Cfg{
		DataDir:         raw.DataDir,
		SiteDir:         raw.SiteDir,
		SourcesFile:     raw.SourcesFile,
		RunTimeout:      raw.RunTimeout,
		MaxNarratives:   raw.MaxNarratives,
		AnalysisWindow:  raw.AnalysisWindow,
		CollectSchedule: raw.CollectSchedule,
		AnthropicAPIKey: raw.AnthropicAPIKey,
		AnthropicModel:  raw.AnthropicModel,
		GithubToken:     raw.GithubToken,
		Port:            raw.Port,
		APIAccessKey:    raw.APIAccessKey,
		CollectOnly:     raw.CollectOnly,
		AnalyzeOnly:     raw.AnalyzeOnly,
		Serve:           raw.Serve,
		UserAgent:       raw.UserAgent,
		Timezone:        raw.Timezone,
		Debug:           raw.Debug,
		Version:         GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

// validateModes rejects invocation flag combinations that have no coherent
// meaning. Serve mode always schedules full runs, so it cannot be narrowed
// to a single stage.
func validateModes(raw *rawCfg) error {
	if raw.CollectOnly && raw.AnalyzeOnly {
		return fmt.Errorf("--collect-only and --analyze-only are mutually exclusive")
	}
	if raw.Serve && (raw.CollectOnly || raw.AnalyzeOnly) {
		return fmt.Errorf("--serve cannot be combined with --collect-only or --analyze-only")
	}
	return nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
