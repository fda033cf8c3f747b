package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// fetchAttempts tracks HTTP GET attempts, including retries.
	fetchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraiper_fetch_attempts_total",
		Help: "The total number of artifact fetch attempts.",
	})
	// fetchRetries tracks attempts that ended in a backoff sleep.
	fetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraiper_fetch_retries_total",
		Help: "The total number of fetch retries after a failed attempt.",
	})
	// fetchSuccesses tracks artifacts persisted to the content store.
	fetchSuccesses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraiper_fetch_successes_total",
		Help: "The total number of artifacts fetched and stored.",
	})
	// fetchFailures tracks URLs whose retry budget was exhausted.
	fetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraiper_fetch_failures_total",
		Help: "The total number of fetches that failed permanently.",
	})
)
