package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ClasspathMappingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hostscript_classpath_mapping_seconds",
		Help:    "Time spent mapping classpath locations into a new index.",
		Buckets: prometheus.DefBuckets,
	})

	ClasspathClasses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hostscript_classpath_classes_total",
		Help: "Number of fully-qualified class names in the active classpath index.",
	})

	ClasspathMappingErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostscript_classpath_mapping_errors_total",
		Help: "Total number of classpath locations that could not be mapped.",
	})

	ClasspathSwapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostscript_classpath_index_swaps_total",
		Help: "Total number of classpath index replacements, by cause.",
	}, []string{"cause"})

	ClassBytesCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostscript_class_bytes_cache_total",
		Help: "Class byte cache lookups, by result.",
	}, []string{"result"})

	ManifestCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostscript_archive_manifest_cache_total",
		Help: "Archive manifest cache lookups, by result.",
	}, []string{"result"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostscript_watcher_events_total",
		Help: "Total number of file system events received by the classpath watcher.",
	})

	DispatchResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostscript_dispatch_resolutions_total",
		Help: "Overload resolutions, by outcome.",
	}, []string{"outcome"})

	SecurityDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostscript_security_denials_total",
		Help: "Operations refused by the security checkpoint, by operation.",
	}, []string{"operation"})

	GeneratedClassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostscript_generated_classes_total",
		Help: "Total number of classes synthesized and registered at runtime.",
	})

	GeneratedClassBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hostscript_generated_class_bytes",
		Help:    "Size of emitted class definitions.",
		Buckets: prometheus.ExponentialBuckets(128, 2, 10),
	})
)
