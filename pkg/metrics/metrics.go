package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Sweep metrics
	RulesEvaluated       *prometheus.CounterVec
	RulesSkipped         *prometheus.CounterVec
	IntentsEmitted       *prometheus.CounterVec
	DuplicatesSuppressed prometheus.Counter
	SweepLatency         prometheus.Histogram

	// Delivery metrics
	Deliveries      *prometheus.CounterVec
	DeliveryLatency *prometheus.HistogramVec
	BulkBatchSize   prometheus.Histogram

	// Discount metrics
	DiscountApplications *prometheus.CounterVec

	// Outbox metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxEventsRetried     prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics on reg.
// A nil reg registers on the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RulesEvaluated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "rules_evaluated_total",
			Help:      "Total number of reminder rule evaluations",
		}, []string{"type"}),
		RulesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "rules_skipped_total",
			Help:      "Total number of reminder rules skipped during a sweep",
		}, []string{"reason"}),
		IntentsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "send_intents_emitted_total",
			Help:      "Total number of send intents emitted by the evaluator",
		}, []string{"type"}),
		DuplicatesSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "duplicates_suppressed_total",
			Help:      "Total number of send intents suppressed by the send log",
		}),
		SweepLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "sweep_duration_seconds",
			Help:      "Time spent on one sweep",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),

		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "deliveries_total",
			Help:      "Total number of gateway deliveries",
		}, []string{"channel", "status"}),
		DeliveryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "delivery_duration_seconds",
			Help:      "Duration of gateway deliveries",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"channel"}),
		BulkBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "bulk_batch_size",
			Help:      "Number of subscriptions in a bulk reminder request",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		DiscountApplications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discounts",
			Name:      "applications_total",
			Help:      "Total number of discount consumption attempts",
		}, []string{"result"}),

		OutboxEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_processed_total",
			Help:      "The total number of published outbox events",
		}),
		OutboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_failed_total",
			Help:      "The total number of outbox events given up on",
		}),
		OutboxEventsRetried: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_retried_total",
			Help:      "The total number of outbox publish attempts scheduled for retry",
		}),
		OutboxProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "batch_duration_seconds",
			Help:      "Time spent relaying one batch of outbox events",
			Buckets:   prometheus.DefBuckets,
		}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}

// NewNop returns metrics registered on a throwaway registry.
func NewNop() *Metrics {
	return NewMetrics("test", prometheus.NewRegistry())
}
