package config

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// SecurityOperations lists the operation names accepted by security.deny rules.
var SecurityOperations = []string{
	"construct",
	"invoke_static",
	"invoke_method",
	"invoke_super",
	"get_field",
	"get_static_field",
	"extend",
	"implement",
	"*",
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateClasspath(cfg *Config) error {
	seen := make(map[string]string)
	for _, suffix := range cfg.Classpath.ArchiveSuffixes {
		seen[suffix] = "archive_suffixes"
	}
	for _, suffix := range cfg.Classpath.ModuleSuffixes {
		if owner, ok := seen[suffix]; ok {
			return fmt.Errorf("classpath.module_suffixes entry %q already listed in classpath.%s", suffix, owner)
		}
	}
	for i, pattern := range cfg.Classpath.ExcludeDirs {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("classpath.exclude_dirs[%d] invalid glob %q: %w", i, pattern, err)
		}
	}
	if cfg.Classpath.ByteCacheSize < 1 {
		return fmt.Errorf("classpath.byte_cache_size must be >= 1, got %d", cfg.Classpath.ByteCacheSize)
	}
	return nil
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", cfg.Watch.Debounce)
	}
	if cfg.Watch.Enabled && len(cfg.Classpath.Entries) == 0 {
		return fmt.Errorf("watch.enabled requires at least one classpath.entries location")
	}
	return nil
}

func validateScope(cfg *Config) error {
	for i, pkg := range cfg.Scope.DefaultImports {
		pkg = strings.TrimSpace(pkg)
		if pkg == "" {
			return fmt.Errorf("scope.default_imports[%d] must not be empty", i)
		}
		if strings.HasSuffix(pkg, ".*") || strings.HasSuffix(pkg, ".") {
			return fmt.Errorf("scope.default_imports[%d] must be a bare package name, got %q", i, pkg)
		}
	}
	return nil
}

func validateSecurity(cfg *Config) error {
	for i, rule := range cfg.Security.Deny {
		ref := fmt.Sprintf("security.deny[%d]", i)
		if !isSecurityOperation(rule.Operation) {
			return fmt.Errorf("%s.operation must be one of: %s", ref, strings.Join(SecurityOperations, ", "))
		}
		if rule.Pattern == "" {
			return fmt.Errorf("%s.pattern must not be empty", ref)
		}
		if _, err := glob.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("%s.pattern invalid glob %q: %w", ref, rule.Pattern, err)
		}
	}
	return nil
}

func validateClassgen(cfg *Config) error {
	prefix := cfg.Classgen.PackagePrefix
	if strings.HasPrefix(prefix, ".") || strings.HasSuffix(prefix, ".") || strings.Contains(prefix, "..") {
		return fmt.Errorf("classgen.package_prefix %q is not a valid package name", prefix)
	}
	return nil
}

func isSecurityOperation(op string) bool {
	for _, candidate := range SecurityOperations {
		if op == candidate {
			return true
		}
	}
	return false
}
