package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)
	normalizeClasspath(&cfg)
	normalizeSecurity(&cfg)

	if err := validateVersion(&cfg); err != nil {
		return nil, err
	}
	if err := validateClasspath(&cfg); err != nil {
		return nil, err
	}
	if err := validateWatch(&cfg); err != nil {
		return nil, err
	}
	if err := validateScope(&cfg); err != nil {
		return nil, err
	}
	if err := validateSecurity(&cfg); err != nil {
		return nil, err
	}
	if err := validateClassgen(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if len(cfg.Classpath.ArchiveSuffixes) == 0 {
		cfg.Classpath.ArchiveSuffixes = []string{".jar", ".zip"}
	}
	if len(cfg.Classpath.ModuleSuffixes) == 0 {
		cfg.Classpath.ModuleSuffixes = []string{".jmod"}
	}
	if len(cfg.Classpath.ExcludeDirs) == 0 {
		cfg.Classpath.ExcludeDirs = []string{".git", ".svn", "META-INF"}
	}
	if cfg.Classpath.ByteCacheSize <= 0 {
		cfg.Classpath.ByteCacheSize = 512
	}

	// Default debounce if not set.
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Watch.MaxReindexPerSecond <= 0 {
		cfg.Watch.MaxReindexPerSecond = 2
	}

	if len(cfg.Scope.DefaultImports) == 0 {
		cfg.Scope.DefaultImports = []string{"java.lang"}
	}

	if cfg.Dispatch.CacheSize <= 0 {
		cfg.Dispatch.CacheSize = 1024
	}

	if strings.TrimSpace(cfg.Classgen.PackagePrefix) == "" {
		cfg.Classgen.PackagePrefix = "hostscript.generated"
	}
}

func normalizeClasspath(cfg *Config) {
	cfg.Classpath.Entries = trimNonEmpty(cfg.Classpath.Entries, false)
	cfg.Classpath.ArchiveSuffixes = normalizeSuffixes(cfg.Classpath.ArchiveSuffixes)
	cfg.Classpath.ModuleSuffixes = normalizeSuffixes(cfg.Classpath.ModuleSuffixes)
	cfg.Classpath.ExcludeDirs = trimNonEmpty(cfg.Classpath.ExcludeDirs, false)
	cfg.Classpath.ManifestCache = strings.TrimSpace(cfg.Classpath.ManifestCache)
}

func normalizeSuffixes(values []string) []string {
	out := trimNonEmpty(values, true)
	for i, v := range out {
		if !strings.HasPrefix(v, ".") {
			out[i] = "." + v
		}
	}
	return out
}

func normalizeSecurity(cfg *Config) {
	for i := range cfg.Security.Deny {
		rule := &cfg.Security.Deny[i]
		rule.Operation = strings.ToLower(strings.TrimSpace(rule.Operation))
		rule.Pattern = strings.TrimSpace(rule.Pattern)
		rule.Reason = strings.TrimSpace(rule.Reason)
	}
}

func trimNonEmpty(values []string, lower bool) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if lower {
			v = strings.ToLower(v)
		}
		out = append(out, v)
	}
	return out
}
