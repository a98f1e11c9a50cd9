package jwks

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jwks_resolver",
			Subsystem: "client",
			Name:      "cache_lookups_total",
			Help:      "Signing key lookups by cache tier (memory or file) and result (hit or miss).",
		}, []string{"tier", "result"})

	metricFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jwks_resolver",
			Subsystem: "client",
			Name:      "fetches_total",
			Help:      "Attempts to fetch the JWKS document, by result.",
		}, []string{"result"})
)

const (
	tierMemory = "memory"
	tierFile   = "file"

	resultHit  = "hit"
	resultMiss = "miss"

	fetchSuccess        = "success"
	fetchTransportError = "transport_error"
	fetchParseError     = "parse_error"
	fetchRateLimited    = "rate_limited"
	fetchOtherError     = "error"
)

// RegisterMetrics registers the client metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{metricCacheLookups, metricFetches} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
