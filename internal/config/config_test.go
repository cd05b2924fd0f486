package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repostsleuth/sleuth/internal/types"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2*time.Second, cfg.Summons.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Summons.NoIndexBackoff)
	assert.Equal(t, 4, cfg.Summons.OverflowThreshold)
	assert.Equal(t, 3, cfg.Search.DefaultHammingDistance)
	assert.InDelta(t, 0.17, cfg.Search.DefaultAnnoyDistance, 1e-9)

	pts, err := cfg.SupportedPostTypes()
	require.NoError(t, err)
	assert.Equal(t, []types.PostType{types.PostTypeImage, types.PostTypeLink}, pts)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sleuth.yaml")
	yml := `
database:
  driver: postgres
  dsn: postgres://sleuth@localhost/sleuth
summons:
  poll_interval: 5s
  max_backoff: 30m
  overflow_threshold: 6
  supported_post_types: [image]
  no_link_subreddits: [NoLinksHere]
search:
  default_hamming_distance: 5
logging:
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Summons.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.Summons.MaxBackoff)
	assert.Equal(t, 6, cfg.Summons.OverflowThreshold)
	assert.Equal(t, 5, cfg.Search.DefaultHammingDistance)
	// unset keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Summons.NoIndexBackoff)
	assert.Equal(t, "repostsleuthbot", cfg.Summons.MentionTag)

	assert.True(t, cfg.IsNoLinkSubreddit("nolinkshere"))
	assert.False(t, cfg.IsNoLinkSubreddit("pics"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sleuth.yaml")
	require.NoError(t, os.WriteFile(path, []byte("summons:\n  poll_interval: 5s\n"), 0o644))

	t.Setenv("SLEUTH_POLL_INTERVAL", "750ms")
	t.Setenv("SLEUTH_SUPPORTED_POST_TYPES", "image, link ,video")
	t.Setenv("SLEUTH_DEFAULT_ANNOY_DISTANCE", "0.25")
	t.Setenv("SLEUTH_SUMMONS_DISABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 750*time.Millisecond, cfg.Summons.PollInterval)
	assert.Equal(t, []string{"image", "link", "video"}, cfg.Summons.SupportedPostTypes)
	assert.InDelta(t, 0.25, cfg.Search.DefaultAnnoyDistance, 1e-9)
	assert.True(t, cfg.Summons.Disabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("SLEUTH_POLL_INTERVAL", "soon")
	_, err := Load("")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }},
		{"zero poll interval", func(c *Config) { c.Summons.PollInterval = 0 }},
		{"max backoff below base", func(c *Config) { c.Summons.MaxBackoff = time.Second }},
		{"zero concurrency", func(c *Config) { c.Summons.MaxConcurrent = 0 }},
		{"no summons markers", func(c *Config) {
			c.Summons.MentionTag = ""
			c.Summons.KeywordMarker = ""
		}},
		{"empty supported types", func(c *Config) { c.Summons.SupportedPostTypes = nil }},
		{"bad supported type", func(c *Config) { c.Summons.SupportedPostTypes = []string{"gif"} }},
		{"unsupported listed as supported", func(c *Config) { c.Summons.SupportedPostTypes = []string{"unsupported"} }},
		{"negative hamming", func(c *Config) { c.Search.DefaultHammingDistance = -1 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad retention", func(c *Config) { c.EventRetention.RetentionDays = 0 }},
		{"bad instance cleanup", func(c *Config) { c.InstanceCleanup.CleanupKeep = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
