package config

import (
	"fmt"
	"time"
)

// InstanceCleanupConfig holds configuration for worker instance bookkeeping
type InstanceCleanupConfig struct {
	// StaleThresholdMinutes is how long a running instance may go without a
	// heartbeat before it is marked stopped
	// Default: 5, Range: 1-1440
	StaleThresholdMinutes int `yaml:"stale_threshold_minutes"`

	// CleanupAgeHours is how old stopped instances must be before deletion (in hours)
	// Default: 24, Range: 0-720 (0-30 days)
	// 0 = disable cleanup
	CleanupAgeHours int `yaml:"cleanup_age_hours"`

	// CleanupKeep is the minimum number of stopped instances to keep
	// Default: 10, Range: 0-1000
	CleanupKeep int `yaml:"cleanup_keep"`
}

// DefaultInstanceCleanupConfig returns the default instance cleanup configuration
func DefaultInstanceCleanupConfig() InstanceCleanupConfig {
	return InstanceCleanupConfig{
		StaleThresholdMinutes: 5,
		CleanupAgeHours:       24,
		CleanupKeep:           10,
	}
}

// Validate checks if the configuration has valid values
func (c InstanceCleanupConfig) Validate() error {
	if c.StaleThresholdMinutes < 1 || c.StaleThresholdMinutes > 1440 {
		return fmt.Errorf("stale_threshold_minutes must be between 1 and 1440 (got %d)", c.StaleThresholdMinutes)
	}

	if c.CleanupAgeHours < 0 || c.CleanupAgeHours > 720 {
		return fmt.Errorf("cleanup_age_hours must be between 0 and 720 (got %d)", c.CleanupAgeHours)
	}

	if c.CleanupKeep < 0 || c.CleanupKeep > 1000 {
		return fmt.Errorf("cleanup_keep must be between 0 and 1000 (got %d)", c.CleanupKeep)
	}

	return nil
}

// String returns a human-readable representation of the config
func (c InstanceCleanupConfig) String() string {
	return fmt.Sprintf(
		"InstanceCleanupConfig{StaleThreshold: %dm, CleanupAgeHours: %d, CleanupKeep: %d}",
		c.StaleThresholdMinutes, c.CleanupAgeHours, c.CleanupKeep,
	)
}

// StaleThreshold returns the heartbeat staleness threshold as a time.Duration
func (c InstanceCleanupConfig) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdMinutes) * time.Minute
}

// CleanupAge returns the age threshold as a time.Duration
func (c InstanceCleanupConfig) CleanupAge() time.Duration {
	return time.Duration(c.CleanupAgeHours) * time.Hour
}

// applyEnv overlays instance cleanup settings from the environment
//
// Environment variables:
//   - SLEUTH_INSTANCE_STALE_MINUTES: Heartbeat staleness threshold (default: 5)
//   - SLEUTH_INSTANCE_CLEANUP_AGE_HOURS: How old stopped instances must be before deletion (default: 24)
//   - SLEUTH_INSTANCE_CLEANUP_KEEP: Minimum stopped instances to keep (default: 10)
func (c *InstanceCleanupConfig) applyEnv() error {
	if err := parseEnvInt("SLEUTH_INSTANCE_STALE_MINUTES", &c.StaleThresholdMinutes); err != nil {
		return err
	}
	if err := parseEnvInt("SLEUTH_INSTANCE_CLEANUP_AGE_HOURS", &c.CleanupAgeHours); err != nil {
		return err
	}
	return parseEnvInt("SLEUTH_INSTANCE_CLEANUP_KEEP", &c.CleanupKeep)
}
