// Package metrics holds the view service's domain counters. HTTP metrics live in
// shared/middleware/metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "streambed"

var (
	PostsRendered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cascade",
		Name:      "posts_rendered_total",
		Help:      "Posts rendered into a cascade",
	})

	PostsFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cascade",
		Name:      "posts_filtered_total",
		Help:      "Posts consumed from the pending queue without rendering because their sort is below the filter sentinel",
	})

	RenderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cascade",
		Name:      "render_failures_total",
		Help:      "Post renders that failed, by reason",
	}, []string{"reason"})

	// Updates counts pushed posts by how reconciliation resolved them.
	Updates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cascade",
		Name:      "updates_total",
		Help:      "Pushed posts by reconciliation outcome",
	}, []string{"outcome"})

	Fetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cascade",
		Name:      "fetches_total",
		Help:      "Cascade page fetches by kind and result",
	}, []string{"kind", "result"})

	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "sessions",
		Help:      "Open page sessions",
	})

	Messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "messages_total",
		Help:      "Messages queued, by type",
	}, []string{"type"})

	PushClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "push",
		Name:      "clients",
		Help:      "Connected websocket clients",
	})
)

// Update outcomes.
const (
	OutcomeShadowed = "shadowed"
	OutcomeNew      = "new"
	OutcomePending  = "pending"
	OutcomeDropped  = "dropped"
)
