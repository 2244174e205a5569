package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: HOSTSCRIPT_[SECTION]_[KEY] (e.g., HOSTSCRIPT_WATCH_DEBOUNCE).
func ApplyEnvOverrides(cfg *Config) {
	// Classpath
	setEnvList(&cfg.Classpath.Entries, "HOSTSCRIPT_CLASSPATH_ENTRIES")
	setEnvInt(&cfg.Classpath.ByteCacheSize, "HOSTSCRIPT_CLASSPATH_BYTE_CACHE_SIZE")
	setEnvString(&cfg.Classpath.ManifestCache, "HOSTSCRIPT_CLASSPATH_MANIFEST_CACHE")

	// Watch
	setEnvBool(&cfg.Watch.Enabled, "HOSTSCRIPT_WATCH_ENABLED")
	setEnvDuration(&cfg.Watch.Debounce, "HOSTSCRIPT_WATCH_DEBOUNCE")

	// Dispatch
	setEnvInt(&cfg.Dispatch.CacheSize, "HOSTSCRIPT_DISPATCH_CACHE_SIZE")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

// setEnvList splits on the platform list separator, like CLASSPATH.
func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = strings.Split(val, string(filepath.ListSeparator))
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			slog.Warn("ignoring invalid env override", "key", key, "value", val, "error", err)
			return
		}
		*target = b
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(val)
		if err != nil {
			slog.Warn("ignoring invalid env override", "key", key, "value", val, "error", err)
			return
		}
		*target = i
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			slog.Warn("ignoring invalid env override", "key", key, "value", val, "error", err)
			return
		}
		*target = d
	}
}
