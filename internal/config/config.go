package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/repostsleuth/sleuth/internal/types"
)

// Config is the full service configuration. It is built from DefaultConfig,
// overlaid by an optional YAML file and then by SLEUTH_* environment variables.
type Config struct {
	Database        DatabaseConfig        `yaml:"database"`
	Reddit          RedditConfig          `yaml:"reddit"`
	ImageSearch     ImageSearchConfig     `yaml:"image_search"`
	Summons         SummonsConfig         `yaml:"summons"`
	Search          SearchConfig          `yaml:"search"`
	Logging         LoggingConfig         `yaml:"logging"`
	Admin           AdminConfig           `yaml:"admin"`
	EventRetention  EventRetentionConfig  `yaml:"event_retention"`
	InstanceCleanup InstanceCleanupConfig `yaml:"instance_cleanup"`
}

// DatabaseConfig selects and configures the storage backend
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver string `yaml:"driver"`
	// Path is the SQLite database file path
	Path string `yaml:"path"`
	// DSN is the PostgreSQL connection string
	DSN string `yaml:"dsn"`
	// MaxConns caps the PostgreSQL pool size
	MaxConns int32 `yaml:"max_conns"`
}

// RedditConfig holds credentials and limits for the messaging gateway
type RedditConfig struct {
	ClientID          string        `yaml:"client_id"`
	ClientSecret      string        `yaml:"client_secret"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	UserAgent         string        `yaml:"user_agent"`
	BaseURL           string        `yaml:"base_url"`
	AuthURL           string        `yaml:"auth_url"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
}

// ImageSearchConfig points at the similarity engine's HTTP API
type ImageSearchConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// SummonsConfig controls the summons worker loop
type SummonsConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	HeartbeatPeriod    time.Duration `yaml:"heartbeat_period"`
	NoIndexBackoff     time.Duration `yaml:"no_index_backoff"`
	MaxBackoff         time.Duration `yaml:"max_backoff"`
	MaxConcurrent      int           `yaml:"max_concurrent"`
	Disabled           bool          `yaml:"disabled"`
	MentionTag         string        `yaml:"mention_tag"`
	KeywordMarker      string        `yaml:"keyword_marker"`
	StrictCommands     bool          `yaml:"strict_commands"`
	OverflowThreshold  int           `yaml:"overflow_threshold"`
	SupportedPostTypes []string      `yaml:"supported_post_types"`
	NoLinkSubreddits   []string      `yaml:"no_link_subreddits"`
	Signature          string        `yaml:"signature"`
	LockPath           string        `yaml:"lock_path"`
}

// SearchConfig holds global duplicate-detection defaults
type SearchConfig struct {
	DefaultHammingDistance int     `yaml:"default_hamming_distance"`
	DefaultAnnoyDistance   float64 `yaml:"default_annoy_distance"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// AdminConfig controls the read-only admin HTTP API
type AdminConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultSignature is appended to every delivered reply
const DefaultSignature = "\n\n***\n\nThe Repost Detective\n\nWiki | About Me | [Report a Bug](https://www.reddit.com/message/compose/?to=RepostSleuthBot&subject=RepostSleuthBot%20Bug)"

// DefaultConfig returns the default service configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:   "sqlite",
			Path:     "sleuth.db",
			MaxConns: 10,
		},
		Reddit: RedditConfig{
			UserAgent:         "repostsleuth/0.1",
			BaseURL:           "https://oauth.reddit.com",
			AuthURL:           "https://www.reddit.com/api/v1/access_token",
			RequestsPerMinute: 60,
			Timeout:           30 * time.Second,
			MaxRetries:        3,
		},
		ImageSearch: ImageSearchConfig{
			BaseURL: "http://localhost:8888",
			Timeout: 60 * time.Second,
		},
		Summons: SummonsConfig{
			PollInterval:       2 * time.Second,
			HeartbeatPeriod:    30 * time.Second,
			NoIndexBackoff:     10 * time.Second,
			MaxBackoff:         10 * time.Minute,
			MaxConcurrent:      1,
			MentionTag:         "repostsleuthbot",
			KeywordMarker:      "?repost",
			OverflowThreshold:  4,
			SupportedPostTypes: []string{string(types.PostTypeImage), string(types.PostTypeLink)},
			Signature:          DefaultSignature,
		},
		Search: SearchConfig{
			DefaultHammingDistance: 3,
			DefaultAnnoyDistance:   0.17,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Admin: AdminConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		EventRetention:  DefaultEventRetentionConfig(),
		InstanceCleanup: DefaultInstanceCleanupConfig(),
	}
}

// Load builds a configuration from defaults, the YAML file at path (if path
// is non-empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays values from SLEUTH_* environment variables
func (c *Config) ApplyEnv() error {
	strs := []struct {
		key  string
		dest *string
	}{
		{"SLEUTH_DB_DRIVER", &c.Database.Driver},
		{"SLEUTH_DB_PATH", &c.Database.Path},
		{"SLEUTH_DB_DSN", &c.Database.DSN},
		{"SLEUTH_REDDIT_CLIENT_ID", &c.Reddit.ClientID},
		{"SLEUTH_REDDIT_CLIENT_SECRET", &c.Reddit.ClientSecret},
		{"SLEUTH_REDDIT_USERNAME", &c.Reddit.Username},
		{"SLEUTH_REDDIT_PASSWORD", &c.Reddit.Password},
		{"SLEUTH_REDDIT_USER_AGENT", &c.Reddit.UserAgent},
		{"SLEUTH_REDDIT_BASE_URL", &c.Reddit.BaseURL},
		{"SLEUTH_REDDIT_AUTH_URL", &c.Reddit.AuthURL},
		{"SLEUTH_IMAGE_SEARCH_URL", &c.ImageSearch.BaseURL},
		{"SLEUTH_MENTION_TAG", &c.Summons.MentionTag},
		{"SLEUTH_KEYWORD_MARKER", &c.Summons.KeywordMarker},
		{"SLEUTH_LOCK_PATH", &c.Summons.LockPath},
		{"SLEUTH_LOG_LEVEL", &c.Logging.Level},
		{"SLEUTH_LOG_FORMAT", &c.Logging.Format},
		{"SLEUTH_ADMIN_ADDR", &c.Admin.Addr},
	}
	for _, s := range strs {
		if err := parseEnvString(s.key, s.dest); err != nil {
			return err
		}
	}

	durations := []struct {
		key  string
		dest *time.Duration
	}{
		{"SLEUTH_POLL_INTERVAL", &c.Summons.PollInterval},
		{"SLEUTH_HEARTBEAT_PERIOD", &c.Summons.HeartbeatPeriod},
		{"SLEUTH_NO_INDEX_BACKOFF", &c.Summons.NoIndexBackoff},
		{"SLEUTH_MAX_BACKOFF", &c.Summons.MaxBackoff},
		{"SLEUTH_REDDIT_TIMEOUT", &c.Reddit.Timeout},
		{"SLEUTH_IMAGE_SEARCH_TIMEOUT", &c.ImageSearch.Timeout},
	}
	for _, d := range durations {
		if err := parseEnvDuration(d.key, d.dest); err != nil {
			return err
		}
	}

	if err := parseEnvInt("SLEUTH_MAX_CONCURRENT", &c.Summons.MaxConcurrent); err != nil {
		return err
	}
	if err := parseEnvInt("SLEUTH_OVERFLOW_THRESHOLD", &c.Summons.OverflowThreshold); err != nil {
		return err
	}
	if err := parseEnvInt("SLEUTH_REDDIT_REQUESTS_PER_MINUTE", &c.Reddit.RequestsPerMinute); err != nil {
		return err
	}
	if err := parseEnvInt("SLEUTH_DEFAULT_HAMMING_DISTANCE", &c.Search.DefaultHammingDistance); err != nil {
		return err
	}
	if err := parseEnvFloat("SLEUTH_DEFAULT_ANNOY_DISTANCE", &c.Search.DefaultAnnoyDistance); err != nil {
		return err
	}
	if err := parseEnvBool("SLEUTH_SUMMONS_DISABLED", &c.Summons.Disabled); err != nil {
		return err
	}
	if err := parseEnvBool("SLEUTH_STRICT_COMMANDS", &c.Summons.StrictCommands); err != nil {
		return err
	}
	if err := parseEnvList("SLEUTH_SUPPORTED_POST_TYPES", &c.Summons.SupportedPostTypes); err != nil {
		return err
	}
	if err := parseEnvList("SLEUTH_NO_LINK_SUBREDDITS", &c.Summons.NoLinkSubreddits); err != nil {
		return err
	}

	if err := c.EventRetention.applyEnv(); err != nil {
		return err
	}
	return c.InstanceCleanup.applyEnv()
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be 'sqlite' or 'postgres' (got %q)", c.Database.Driver)
	}

	if c.Summons.PollInterval <= 0 {
		return fmt.Errorf("summons.poll_interval must be positive (got %v)", c.Summons.PollInterval)
	}
	if c.Summons.NoIndexBackoff <= 0 {
		return fmt.Errorf("summons.no_index_backoff must be positive (got %v)", c.Summons.NoIndexBackoff)
	}
	if c.Summons.MaxBackoff < c.Summons.NoIndexBackoff {
		return fmt.Errorf("summons.max_backoff (%v) must be >= no_index_backoff (%v)",
			c.Summons.MaxBackoff, c.Summons.NoIndexBackoff)
	}
	if c.Summons.MaxConcurrent < 1 {
		return fmt.Errorf("summons.max_concurrent must be at least 1 (got %d)", c.Summons.MaxConcurrent)
	}
	if c.Summons.MentionTag == "" && c.Summons.KeywordMarker == "" {
		return errors.New("summons.mention_tag or summons.keyword_marker is required")
	}
	if c.Summons.OverflowThreshold < 0 {
		return fmt.Errorf("summons.overflow_threshold cannot be negative (got %d)", c.Summons.OverflowThreshold)
	}
	if _, err := c.SupportedPostTypes(); err != nil {
		return err
	}

	if c.Search.DefaultHammingDistance < 0 {
		return fmt.Errorf("search.default_hamming_distance cannot be negative (got %d)", c.Search.DefaultHammingDistance)
	}
	if c.Search.DefaultAnnoyDistance < 0 {
		return fmt.Errorf("search.default_annoy_distance cannot be negative (got %f)", c.Search.DefaultAnnoyDistance)
	}

	if c.Reddit.RequestsPerMinute < 1 {
		return fmt.Errorf("reddit.requests_per_minute must be at least 1 (got %d)", c.Reddit.RequestsPerMinute)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console' (got %q)", c.Logging.Format)
	}

	if err := c.EventRetention.Validate(); err != nil {
		return fmt.Errorf("event_retention: %w", err)
	}
	if err := c.InstanceCleanup.Validate(); err != nil {
		return fmt.Errorf("instance_cleanup: %w", err)
	}

	return nil
}

// SupportedPostTypes converts the configured names into the post type enum
func (c *Config) SupportedPostTypes() ([]types.PostType, error) {
	if len(c.Summons.SupportedPostTypes) == 0 {
		return nil, errors.New("summons.supported_post_types must not be empty")
	}
	out := make([]types.PostType, 0, len(c.Summons.SupportedPostTypes))
	for _, name := range c.Summons.SupportedPostTypes {
		pt, err := types.ParsePostType(name)
		if err != nil {
			return nil, fmt.Errorf("summons.supported_post_types: %w", err)
		}
		if pt == types.PostTypeUnsupported {
			return nil, fmt.Errorf("summons.supported_post_types cannot include %q", pt)
		}
		out = append(out, pt)
	}
	return out, nil
}

// IsNoLinkSubreddit reports whether replies in subreddit must omit hyperlinks
func (c *Config) IsNoLinkSubreddit(subreddit string) bool {
	for _, s := range c.Summons.NoLinkSubreddits {
		if strings.EqualFold(s, subreddit) {
			return true
		}
	}
	return false
}
