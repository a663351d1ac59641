package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roost_instances_total",
			Help: "Total number of instances by provider and status",
		},
		[]string{"provider", "status"},
	)

	InstancesStale = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roost_instances_stale",
			Help: "Number of RUNNING instances silent for over five minutes",
		},
	)

	AgentsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roost_agents_connected",
			Help: "Number of agent links currently attached",
		},
	)

	ViewersConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roost_viewers_connected",
			Help: "Number of viewer links currently attached",
		},
	)

	// Ingest metrics
	FramesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roost_frames_ingested_total",
			Help: "Total number of telemetry frames processed by channel",
		},
		[]string{"channel"},
	)

	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roost_frames_dropped_total",
			Help: "Total number of frames dropped under backpressure by channel",
		},
		[]string{"channel"},
	)

	// Alerting and observability metrics
	AlertRulesEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roost_alert_rules_enabled",
			Help: "Number of enabled alert rules",
		},
	)

	DriftReportsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roost_drift_reports_open",
			Help: "Number of drift reports not yet resolved or suppressed",
		},
	)

	FleetSecurityScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roost_security_score_fleet",
			Help: "Mean security score across scored instances",
		},
	)

	ScheduledTasksActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roost_scheduled_tasks_active",
			Help: "Number of ACTIVE scheduled tasks",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roost_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roost_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(InstancesStale)
	prometheus.MustRegister(AgentsConnected)
	prometheus.MustRegister(ViewersConnected)
	prometheus.MustRegister(FramesIngested)
	prometheus.MustRegister(FramesDropped)
	prometheus.MustRegister(AlertRulesEnabled)
	prometheus.MustRegister(DriftReportsOpen)
	prometheus.MustRegister(FleetSecurityScore)
	prometheus.MustRegister(ScheduledTasksActive)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
