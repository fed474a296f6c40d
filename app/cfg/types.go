package cfg

type Cfg struct {
	// Pipeline configuration
	DataDir         string
	SiteDir         string
	SourcesFile     string
	RunTimeout      int
	MaxNarratives   int
	AnalysisWindow  int
	CollectSchedule string

	// Credentials
	AnthropicAPIKey string
	AnthropicModel  string
	GithubToken     string

	// Serve mode configuration
	Port         string
	APIAccessKey string

	// Invocation modes
	CollectOnly bool
	AnalyzeOnly bool
	Serve       bool

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
