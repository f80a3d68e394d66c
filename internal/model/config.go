package model

// Config holds the complete factrag configuration
type Config struct {
	FactBase     FactBaseConfig     `yaml:"fact_base" mapstructure:"fact_base"`
	Embedding    EmbeddingConfig    `yaml:"embedding" mapstructure:"embedding"`
	Retrieval    RetrievalConfig    `yaml:"retrieval" mapstructure:"retrieval"`
	Index        IndexConfig        `yaml:"index" mapstructure:"index"`
	Extraction   ExtractionConfig   `yaml:"extraction" mapstructure:"extraction"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	Authority    AuthorityConfig    `yaml:"authority" mapstructure:"authority"`
}

// FactBaseConfig locates the persisted evidence base
type FactBaseConfig struct {
	Path            string `yaml:"path" mapstructure:"path" validate:"required"`
	PersistBackfill bool   `yaml:"persist_backfill" mapstructure:"persist_backfill"` // write backfilled embeddings back
}

// EmbeddingConfig selects the embedding capability
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider" validate:"oneof=hash openai ollama"`
	Model     string `yaml:"model" mapstructure:"model"`
	Dimension int    `yaml:"dimension" mapstructure:"dimension" validate:"min=1"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKey    string `yaml:"-" mapstructure:"api_key"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout" validate:"min=1"` // seconds
}

// RetrievalConfig controls evidence filtering
type RetrievalConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold" validate:"gte=0,lte=1"`
	TopK                int     `yaml:"top_k" mapstructure:"top_k" validate:"min=1"`
}

// IndexConfig selects the nearest-neighbour backend
type IndexConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend" validate:"oneof=memory weaviate"`
	Host    string `yaml:"host,omitempty" mapstructure:"host"`
	Scheme  string `yaml:"scheme,omitempty" mapstructure:"scheme"`
	Class   string `yaml:"class,omitempty" mapstructure:"class"`
	Rebuild bool   `yaml:"rebuild" mapstructure:"rebuild"` // upsert every fact on startup
}

// ExtractionConfig selects the entity extraction capability
type ExtractionConfig struct {
	Extractor string `yaml:"extractor" mapstructure:"extractor" validate:"oneof=rules llm"`
	StripHTML bool   `yaml:"strip_html" mapstructure:"strip_html"`
}

// LLMConfig holds generation provider settings
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider" validate:"oneof=openai anthropic claude ollama"`
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"-" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout" validate:"min=0"` // seconds, 0 = provider default
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens" validate:"min=1"`

	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// CacheConfig controls the embedding cache
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir       string `yaml:"dir" mapstructure:"dir"`
	MemoryTTL int    `yaml:"memory_ttl" mapstructure:"memory_ttl"` // minutes
	DiskTTL   int    `yaml:"disk_ttl" mapstructure:"disk_ttl"`     // hours
}

// ConcurrencyConfig controls worker counts
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers" validate:"min=1"`
}

// RateLimitingConfig limits calls to generation providers
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
	// Providers overrides the default bucket per provider name. A zero rate is unlimited.
	Providers map[string]ProviderRate `yaml:"providers,omitempty" mapstructure:"providers" validate:"dive"`
}

// ProviderRate is the bucket of a single provider
type ProviderRate struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ServerConfig configures the HTTP transport
type ServerConfig struct {
	Addr           string `yaml:"addr" mapstructure:"addr"`
	MaxClaimLength int    `yaml:"max_claim_length" mapstructure:"max_claim_length" validate:"min=1"`
}

// LoggingConfig configures slog output
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=text json"`
}

// AuthorityConfig holds domain lists used to classify evidence sources
type AuthorityConfig struct {
	PrimaryDomains   []string          `yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string          `yaml:"secondary_domains" mapstructure:"secondary_domains"`
	PathPatterns     []PathPattern     `yaml:"path_patterns,omitempty" mapstructure:"path_patterns"`
	DomainMap        map[string]string `yaml:"domain_map,omitempty" mapstructure:"domain_map"`
}

// PathPattern maps a URL path regex to a tier name
type PathPattern struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
	Tier    string `yaml:"tier" mapstructure:"tier"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		FactBase: FactBaseConfig{
			Path:            "data/fact_base.json",
			PersistBackfill: true,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "text-embedding-3-small",
			Dimension: 384,
			Timeout:   30,
		},
		Retrieval: RetrievalConfig{
			SimilarityThreshold: 0.3,
			TopK:                5,
		},
		Index: IndexConfig{
			Backend: "memory",
			Host:    "localhost:8080",
			Scheme:  "http",
			Class:   "Fact",
		},
		Extraction: ExtractionConfig{
			Extractor: "rules",
			StripHTML: true,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 1000,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".factrag-cache",
			MemoryTTL: 60,
			DiskTTL:   24 * 7,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         5,
			Providers: map[string]ProviderRate{
				// local inference is bounded by the GPU, not by a quota
				"ollama": {RequestsPerSecond: 0, BurstSize: 1},
			},
		},
		Server: ServerConfig{
			Addr:           ":8001",
			MaxClaimLength: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Authority: AuthorityConfig{
			PrimaryDomains: []string{
				"pib.gov.in",
				"gov.in",
				"nic.in",
				"rbi.org.in",
				"who.int",
				"worldbank.org",
				"data.gov",
			},
			SecondaryDomains: []string{
				"wikipedia.org",
				"reuters.com",
				"apnews.com",
				"bbc.co.uk",
				"thehindu.com",
				"britannica.com",
			},
		},
	}
}
