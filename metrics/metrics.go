// Package metrics exposes the span pipeline's finish events as Prometheus
// metrics, for hosts that already scrape a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tracekit/tracekit-go/trace"
)

// Collector counts pipeline events by type and outcome.
type Collector struct {
	Events *prometheus.CounterVec
	Items  *prometheus.CounterVec
	Drops  prometheus.Counter
}

// NewCollector registers the pipeline metrics with reg. Passing nil uses the
// default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_pipeline_events_total",
				Help: "Total span pipeline events by type and outcome",
			},
			[]string{"event", "result"},
		),
		Items: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_pipeline_spans_total",
				Help: "Total spans moved through each pipeline stage by outcome",
			},
			[]string{"event", "result"},
		),
		Drops: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tracekit_queue_dropped_spans_total",
				Help: "Spans rejected at the export queue because it was full",
			},
		),
	}
}

// Handler returns a FinishEventHandler feeding the collector. Install it via
// the client's finish-event option; it is cheap enough for the hot path.
func (c *Collector) Handler() trace.FinishEventHandler {
	return func(e trace.FinishEvent) {
		result := "ok"
		if e.Fail {
			result = "fail"
		}
		c.Events.WithLabelValues(string(e.Type), result).Inc()
		c.Items.WithLabelValues(string(e.Type), result).Add(float64(e.ItemCount))
		if e.Type == trace.EventQueueEntry && e.Fail {
			c.Drops.Inc()
		}
	}
}
