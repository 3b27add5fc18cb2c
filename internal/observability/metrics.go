package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AcceptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "swoop", Name: "offer_accepts_total",
		Help: "Total offers successfully accepted",
	})
	AcceptConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "swoop", Name: "offer_accept_conflicts_total",
		Help: "Acceptance attempts that lost the CAS race",
	})
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swoop", Name: "offer_transitions_total",
		Help: "Successful status transitions by target status",
	}, []string{"status"})
	MatcherQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "swoop", Name: "matcher_queries_total",
		Help: "Nearby-offer queries served",
	})
	OutboxPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swoop", Name: "outbox_published_total",
		Help: "Outbox tasks delivered by topic",
	}, []string{"topic"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swoop", Name: "http_requests_total",
		Help: "Total HTTP requests handled",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "swoop", Name: "http_request_duration_seconds",
		Help:    "HTTP request latency distribution",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
