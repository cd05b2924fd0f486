package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// parseEnv overwrites dest with the parsed value of key. Unset or empty
// variables leave the default in place.
func parseEnv[T any](key string, dest *T, parse func(string) (T, error)) error {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}
	parsed, err := parse(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvInt(key string, dest *int) error {
	return parseEnv(key, dest, strconv.Atoi)
}

func parseEnvFloat(key string, dest *float64) error {
	return parseEnv(key, dest, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func parseEnvBool(key string, dest *bool) error {
	return parseEnv(key, dest, strconv.ParseBool)
}

func parseEnvString(key string, dest *string) error {
	return parseEnv(key, dest, func(s string) (string, error) { return s, nil })
}

// parseEnvDuration accepts Go duration syntax such as "2s" or "10m"
func parseEnvDuration(key string, dest *time.Duration) error {
	return parseEnv(key, dest, time.ParseDuration)
}

// parseEnvList splits a comma-separated value, dropping empty entries
func parseEnvList(key string, dest *[]string) error {
	return parseEnv(key, dest, func(s string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	})
}
