package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "annobot",
		Subsystem: "pipeline",
		Name:      "requests_total",
		Help:      "Candidates admitted into the pipeline, by annotator.",
	}, []string{"annotator"})

	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "annobot",
		Subsystem: "pipeline",
		Name:      "dropped_total",
		Help:      "Candidates dropped before execution.",
	}, []string{"reason"}) // ignored, capped, ratelimited, unavailable, queue_timeout

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "annobot",
		Subsystem: "pipeline",
		Name:      "failures_total",
		Help:      "Executed requests that produced no output.",
	}, []string{"kind"})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "annobot",
		Subsystem: "pipeline",
		Name:      "cache_hits_total",
		Help:      "Requests served from the result cache.",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "annobot",
		Subsystem: "pipeline",
		Name:      "cache_misses_total",
		Help:      "Requests that started or joined a producer run.",
	})

	linesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "annobot",
		Subsystem: "pipeline",
		Name:      "lines_emitted_total",
		Help:      "Annotation lines sent to the transport.",
	})
)
