package listctl

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsMu          sync.Mutex
	metricsInitialized bool

	cacheHitCounter    *prometheus.CounterVec
	cacheMissCounter   *prometheus.CounterVec
	fetchDuration      *prometheus.HistogramVec
	fetchFailedCounter *prometheus.CounterVec
	metricsError       error
)

// SetupMetrics registers the list cache collectors. Later calls are no-ops.
func SetupMetrics(reg prometheus.Registerer) error {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metricsInitialized {
		return metricsError
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bloodbridge_list_cache_hits_total",
		Help: "Number of list pages served from cache.",
	}, []string{"resource"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bloodbridge_list_cache_miss_total",
		Help: "Number of list pages fetched from the remote API.",
	}, []string{"resource"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bloodbridge_list_fetch_duration_seconds",
		Help:    "Duration of remote list fetches.",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bloodbridge_list_fetch_failed_total",
		Help: "Number of remote list fetches that failed.",
	}, []string{"resource"})

	for _, c := range []*prometheus.CounterVec{hits, misses, failed} {
		registered, err := registerCounter(reg, c)
		if err != nil {
			metricsError = err
			metricsInitialized = true
			return err
		}
		switch c {
		case hits:
			cacheHitCounter = registered
		case misses:
			cacheMissCounter = registered
		case failed:
			fetchFailedCounter = registered
		}
	}
	if err := reg.Register(duration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			metricsError = err
			metricsInitialized = true
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			metricsError = fmt.Errorf("list metrics: unexpected collector type %T", already.ExistingCollector)
			metricsInitialized = true
			return metricsError
		}
		duration = existing
	}
	fetchDuration = duration
	metricsInitialized = true
	return nil
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("list metrics: unexpected collector type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

func recordCacheHit(resource string) {
	if cacheHitCounter != nil {
		cacheHitCounter.WithLabelValues(resource).Inc()
	}
}

func recordCacheMiss(resource string) {
	if cacheMissCounter != nil {
		cacheMissCounter.WithLabelValues(resource).Inc()
	}
}

func recordFetchFailed(resource string) {
	if fetchFailedCounter != nil {
		fetchFailedCounter.WithLabelValues(resource).Inc()
	}
}

func observeFetch(resource string, d time.Duration) {
	if fetchDuration != nil {
		fetchDuration.WithLabelValues(resource).Observe(d.Seconds())
	}
}
