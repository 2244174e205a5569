package config

import "time"

type Config struct {
	Version   int       `toml:"version"`
	Classpath Classpath `toml:"classpath"`
	Watch     Watch     `toml:"watch"`
	Scope     Scope     `toml:"scope"`
	Security  Security  `toml:"security"`
	Dispatch  Dispatch  `toml:"dispatch"`
	Classgen  Classgen  `toml:"classgen"`
}

type Classpath struct {
	Entries         []string `toml:"entries"`
	ArchiveSuffixes []string `toml:"archive_suffixes"`
	ModuleSuffixes  []string `toml:"module_suffixes"`
	ExcludeDirs     []string `toml:"exclude_dirs"`
	ByteCacheSize   int      `toml:"byte_cache_size"`
	// ManifestCache is the sqlite file remembering archive contents. Empty disables it.
	ManifestCache string `toml:"manifest_cache"`
}

type Watch struct {
	Enabled             bool          `toml:"enabled"`
	Debounce            time.Duration `toml:"debounce"`
	MaxReindexPerSecond float64       `toml:"max_reindex_per_second"`
}

type Scope struct {
	DefaultImports      []string `toml:"default_imports"`
	ImplicitClassLookup *bool    `toml:"implicit_class_lookup"`
}

type Security struct {
	Deny []DenyRule `toml:"deny"`
}

// DenyRule blocks an operation whose "Type#member" target matches Pattern.
type DenyRule struct {
	Operation string `toml:"operation"`
	Pattern   string `toml:"pattern"`
	Reason    string `toml:"reason"`
}

type Dispatch struct {
	CacheSize int `toml:"cache_size"`
}

type Classgen struct {
	PackagePrefix string `toml:"package_prefix"`
}

func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// ImplicitLookup reports whether unimported simple names fall back to the classpath index.
func (s Scope) ImplicitLookup() bool {
	return s.ImplicitClassLookup == nil || *s.ImplicitClassLookup
}
