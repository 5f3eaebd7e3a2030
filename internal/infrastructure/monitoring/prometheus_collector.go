package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	publishAttemptsTotal prometheus.Counter
	publishFailuresTotal *prometheus.CounterVec
	activeSessions       prometheus.Gauge

	heartbeatsSentTotal    prometheus.Counter
	heartbeatFailuresTotal prometheus.Counter

	resumeOutcomesTotal *prometheus.CounterVec

	iceGatheringDuration prometheus.Histogram
	publishSetupDuration prometheus.Histogram

	rtpPacketsForwarded *prometheus.CounterVec
	senderFractionLost  prometheus.Gauge
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		publishAttemptsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whipcast_publish_attempts_total",
			Help: "Total number of publish attempts",
		}),

		publishFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "whipcast_publish_failures_total",
			Help: "Total number of failed publish attempts",
		}, []string{"stage"}),

		activeSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "whipcast_active_sessions",
			Help: "Number of active publish sessions",
		}),

		heartbeatsSentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whipcast_heartbeats_sent_total",
			Help: "Total number of heartbeat acknowledgements sent",
		}),

		heartbeatFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whipcast_heartbeat_failures_total",
			Help: "Total number of heartbeat acknowledgements that failed",
		}),

		resumeOutcomesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "whipcast_resume_outcomes_total",
			Help: "Auto-resume attempts by outcome",
		}, []string{"outcome"}),

		iceGatheringDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "whipcast_ice_gathering_duration_seconds",
			Help:    "Duration of ICE candidate gathering",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		publishSetupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "whipcast_publish_setup_duration_seconds",
			Help:    "Duration of the full publish setup, from request to answer applied",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		rtpPacketsForwarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "whipcast_rtp_packets_forwarded_total",
			Help: "RTP packets forwarded from the local source into the peer connection",
		}, []string{"kind"}),

		senderFractionLost: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "whipcast_sender_fraction_lost",
			Help: "Most recent fraction of sent packets reported lost by the ingest server",
		}),
	}
}

// All record methods tolerate a nil collector so wiring metrics stays
// optional for callers and tests.

func (c *PrometheusCollector) RecordPublishAttempt() {
	if c == nil {
		return
	}
	c.publishAttemptsTotal.Inc()
}

func (c *PrometheusCollector) RecordPublishFailure(stage string) {
	if c == nil {
		return
	}
	c.publishFailuresTotal.WithLabelValues(stage).Inc()
}

func (c *PrometheusCollector) SetActiveSessions(n int) {
	if c == nil {
		return
	}
	c.activeSessions.Set(float64(n))
}

func (c *PrometheusCollector) RecordHeartbeat(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.heartbeatFailuresTotal.Inc()
		return
	}
	c.heartbeatsSentTotal.Inc()
}

func (c *PrometheusCollector) RecordResumeOutcome(outcome string) {
	if c == nil {
		return
	}
	c.resumeOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (c *PrometheusCollector) ObserveICEGathering(d time.Duration) {
	if c == nil {
		return
	}
	c.iceGatheringDuration.Observe(d.Seconds())
}

func (c *PrometheusCollector) ObservePublishSetup(d time.Duration) {
	if c == nil {
		return
	}
	c.publishSetupDuration.Observe(d.Seconds())
}

func (c *PrometheusCollector) RecordRTPPacket(kind string) {
	if c == nil {
		return
	}
	c.rtpPacketsForwarded.WithLabelValues(kind).Inc()
}

func (c *PrometheusCollector) SetSenderFractionLost(fraction float64) {
	if c == nil {
		return
	}
	c.senderFractionLost.Set(fraction)
}
