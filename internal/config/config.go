package config

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. Rule tables are
// loaded once at pipeline construction; a config that fails Validate
// must prevent the pipeline from starting.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	// DedupWindow bounds how many recent stored grants the gateway's
	// fuzzy duplicate check scans per upsert.
	DedupWindow int `yaml:"dedup_window" mapstructure:"dedup_window"`
}

// PerplexityConfig holds settings for the web-grounded search provider.
type PerplexityConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	Model     string  `yaml:"model" mapstructure:"model"`
	MaxTokens int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temp      float64 `yaml:"temperature" mapstructure:"temperature"`
}

// AnthropicConfig holds Anthropic API settings (refinement provider).
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SearchConfig configures the rate-limited query executor.
type SearchConfig struct {
	// Provider selects the chat-completion backend: "perplexity" or
	// "anthropic".
	Provider string `yaml:"provider" mapstructure:"provider"`
	// RefineProvider optionally routes the refinement pass to a second
	// backend; empty means same as Provider.
	RefineProvider string `yaml:"refine_provider" mapstructure:"refine_provider"`

	MaxConcurrent      int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	BaseStaggerSecs    float64 `yaml:"base_stagger_secs" mapstructure:"base_stagger_secs"`
	InterBatchSecs     float64 `yaml:"inter_batch_secs" mapstructure:"inter_batch_secs"`
	RequestsPerMinute  int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	RequestsPerDay     int     `yaml:"requests_per_day" mapstructure:"requests_per_day"`
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffCeilingSecs float64 `yaml:"backoff_ceiling_secs" mapstructure:"backoff_ceiling_secs"`

	// RefineThreshold is the count of new candidates from a chunk's
	// first pass that triggers the refinement pass; RefineTopN bounds
	// how many candidates are re-queried individually.
	RefineThreshold int `yaml:"refine_threshold" mapstructure:"refine_threshold"`
	RefineTopN      int `yaml:"refine_top_n" mapstructure:"refine_top_n"`
}

// KeywordRuleSet is one weighted keyword table for a relevance sub-score.
type KeywordRuleSet struct {
	Priority   []string `yaml:"priority" mapstructure:"priority"`
	Secondary  []string `yaml:"secondary" mapstructure:"secondary"`
	Exclusions []string `yaml:"exclusions" mapstructure:"exclusions"`
}

// RelevanceConfig parameterizes the research-context scorer.
type RelevanceConfig struct {
	DefaultScore    float64        `yaml:"default_score" mapstructure:"default_score"`
	PriorityWeight  float64        `yaml:"priority_weight" mapstructure:"priority_weight"`
	SecondaryWeight float64        `yaml:"secondary_weight" mapstructure:"secondary_weight"`
	NationalBonus   float64        `yaml:"national_bonus" mapstructure:"national_bonus"`
	Sector          KeywordRuleSet `yaml:"sector" mapstructure:"sector"`
	Geographic      KeywordRuleSet `yaml:"geographic" mapstructure:"geographic"`
	Operational     KeywordRuleSet `yaml:"operational" mapstructure:"operational"`
}

// BusinessProfile describes the applicant organization the compliance
// scorer checks grants against.
type BusinessProfile struct {
	OrgTypes          []string `yaml:"org_types" mapstructure:"org_types"`
	ReportingCapacity string   `yaml:"reporting_capacity" mapstructure:"reporting_capacity"`
	PrimaryObjectives []string `yaml:"primary_objectives" mapstructure:"primary_objectives"`
	TargetSectors     []string `yaml:"target_sectors" mapstructure:"target_sectors"`
}

// ComplianceConfig parameterizes the compliance scorer.
type ComplianceConfig struct {
	ProhibitedKeywords  []string        `yaml:"prohibited_keywords" mapstructure:"prohibited_keywords"`
	EthicalFlags        []string        `yaml:"ethical_flags" mapstructure:"ethical_flags"`
	RequiredOrgKeywords []string        `yaml:"required_org_keywords" mapstructure:"required_org_keywords"`
	SynergisticKeywords []string        `yaml:"synergistic_keywords" mapstructure:"synergistic_keywords"`
	MisalignedKeywords  []string        `yaml:"misaligned_keywords" mapstructure:"misaligned_keywords"`
	Profile             BusinessProfile `yaml:"profile" mapstructure:"profile"`
}

// CompositeWeights are the fusion weights for the final score.
// They must sum to 1.0.
type CompositeWeights struct {
	BusinessLogic float64 `yaml:"business_logic" mapstructure:"business_logic"`
	Feasibility   float64 `yaml:"feasibility" mapstructure:"feasibility"`
	Synergy       float64 `yaml:"synergy" mapstructure:"synergy"`
}

// ScoringConfig bundles the planner tables, both scorer rule sets, and
// the fusion weights.
type ScoringConfig struct {
	FocusAreas map[string][]string `yaml:"focus_areas" mapstructure:"focus_areas"`
	GeoTiers   map[string][]string `yaml:"geo_tiers" mapstructure:"geo_tiers"`
	Relevance  RelevanceConfig     `yaml:"relevance" mapstructure:"relevance"`
	Compliance ComplianceConfig    `yaml:"compliance" mapstructure:"compliance"`
	Weights    CompositeWeights    `yaml:"weights" mapstructure:"weights"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GRANTFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.dedup_window", 500)

	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-reasoning-pro")
	v.SetDefault("perplexity.max_tokens", 2048)
	v.SetDefault("perplexity.temperature", 0.2)

	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)

	v.SetDefault("search.provider", "perplexity")
	v.SetDefault("search.max_concurrent", 5)
	v.SetDefault("search.base_stagger_secs", 0.5)
	v.SetDefault("search.inter_batch_secs", 5.0)
	v.SetDefault("search.requests_per_minute", 20)
	v.SetDefault("search.requests_per_day", 500)
	v.SetDefault("search.max_attempts", 3)
	v.SetDefault("search.backoff_ceiling_secs", 60.0)
	v.SetDefault("search.refine_threshold", 3)
	v.SetDefault("search.refine_top_n", 3)

	v.SetDefault("scoring.focus_areas", map[string][]string{
		"telecommunications":    {"broadband", "rural connectivity", "digital infrastructure", "wireless deployment"},
		"community_development": {"community development", "economic revitalization", "small town", "main street"},
		"women_owned_nonprofit": {"women-owned", "women entrepreneurs", "nonprofit capacity", "minority business"},
	})
	v.SetDefault("scoring.geo_tiers", map[string][]string{
		"local":    {"Natchitoches Parish"},
		"state":    {"Louisiana"},
		"regional": {"Gulf South"},
		"federal":  {"federal nationwide"},
	})

	v.SetDefault("scoring.relevance.default_score", 0.2)
	v.SetDefault("scoring.relevance.priority_weight", 0.25)
	v.SetDefault("scoring.relevance.secondary_weight", 0.1)
	v.SetDefault("scoring.relevance.national_bonus", 0.2)
	v.SetDefault("scoring.relevance.sector.priority", []string{"telecommunications", "broadband", "connectivity"})
	v.SetDefault("scoring.relevance.sector.secondary", []string{"technology", "infrastructure", "internet"})
	v.SetDefault("scoring.relevance.geographic.priority", []string{"louisiana", "natchitoches"})
	v.SetDefault("scoring.relevance.geographic.secondary", []string{"rural", "gulf south", "southern"})
	v.SetDefault("scoring.relevance.operational.priority", []string{"small business", "nonprofit"})
	v.SetDefault("scoring.relevance.operational.secondary", []string{"capacity building", "technical assistance"})

	v.SetDefault("scoring.compliance.prohibited_keywords", []string{"gambling", "tobacco", "firearms"})
	v.SetDefault("scoring.compliance.ethical_flags", []string{"predatory", "discriminatory"})
	v.SetDefault("scoring.compliance.required_org_keywords", []string{"501(c)(3)", "nonprofit status required"})
	v.SetDefault("scoring.compliance.synergistic_keywords", []string{"digital divide", "workforce development"})
	v.SetDefault("scoring.compliance.misaligned_keywords", []string{"large enterprise only", "international only"})
	v.SetDefault("scoring.compliance.profile.org_types", []string{"llc", "small business"})
	v.SetDefault("scoring.compliance.profile.reporting_capacity", "quarterly")
	v.SetDefault("scoring.compliance.profile.primary_objectives", []string{"broadband expansion", "community access"})
	v.SetDefault("scoring.compliance.profile.target_sectors", []string{"telecommunications", "community_development"})

	v.SetDefault("scoring.weights.business_logic", 0.3)
	v.SetDefault("scoring.weights.feasibility", 0.4)
	v.SetDefault("scoring.weights.synergy", 0.3)
}

// Validate checks invariants the pipeline must not start without.
func (c *Config) Validate() error {
	w := c.Scoring.Weights
	sum := w.BusinessLogic + w.Feasibility + w.Synergy
	if math.Abs(sum-1.0) > 1e-9 {
		return eris.Errorf("config: composite weights must sum to 1.0, got %.4f", sum)
	}
	if w.BusinessLogic < 0 || w.Feasibility < 0 || w.Synergy < 0 {
		return eris.New("config: composite weights must be non-negative")
	}

	if c.Scoring.FocusAreas == nil {
		return eris.New("config: scoring.focus_areas table is absent")
	}
	if c.Scoring.GeoTiers == nil {
		return eris.New("config: scoring.geo_tiers table is absent")
	}
	for tier := range c.Scoring.GeoTiers {
		switch tier {
		case "local", "state", "regional", "federal":
		default:
			return eris.Errorf("config: unknown geographic tier %q", tier)
		}
	}

	r := c.Scoring.Relevance
	if r.DefaultScore < 0 || r.DefaultScore > 1 {
		return eris.Errorf("config: relevance default score %.2f out of [0,1]", r.DefaultScore)
	}

	switch c.Scoring.Compliance.Profile.ReportingCapacity {
	case "", "monthly", "quarterly", "annual":
	default:
		return eris.Errorf("config: unknown reporting capacity %q", c.Scoring.Compliance.Profile.ReportingCapacity)
	}

	switch c.Search.Provider {
	case "perplexity", "anthropic":
	default:
		return eris.Errorf("config: unknown search provider %q", c.Search.Provider)
	}

	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
