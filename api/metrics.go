package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warp/capacity-engine/capacity"
)

var (
	apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "capacity",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total number of API requests broken down by route and status code.",
	}, []string{"route", "code"})

	apiLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "capacity",
		Subsystem: "api",
		Name:      "latency_seconds",
		Help:      "Latency distribution for API requests.",
		Buckets: []float64{
			0.001, 0.002, 0.005,
			0.01, 0.02, 0.05,
			0.1, 0.2, 0.5,
			1, 2, 5,
		},
	}, []string{"route"})

	admissionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "capacity",
		Subsystem: "admission",
		Name:      "decisions_total",
		Help:      "Admission decisions by portfolio, status and whether the decision was persisted.",
	}, []string{"portfolio", "status", "mode"})

	writeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "capacity",
		Subsystem: "store",
		Name:      "write_conflicts_total",
		Help:      "Compare-and-swap conflicts on governance config and commitment writes.",
	}, []string{"entity"})

	alertStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "capacity",
		Subsystem: "governance",
		Name:      "role_alert_status",
		Help:      "Per-role alert status: 0 OK, 1 WARNING, 2 CRITICAL.",
	}, []string{"role"})

	peakUtilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "capacity",
		Subsystem: "governance",
		Name:      "role_peak_utilization_percent",
		Help:      "Peak weekly utilization per role, as reported by the last alert run.",
	}, []string{"role"})

	unscheduledItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "capacity",
		Subsystem: "governance",
		Name:      "unscheduled_demand_items",
		Help:      "Commitments with FTE demand but no planned window.",
	})

	configVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "capacity",
		Subsystem: "governance",
		Name:      "config_version",
		Help:      "Version of the currently published governance config.",
	})
)

// instrument records request count and latency under the matched route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		apiRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		apiLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func recordDecision(portfolio capacity.Portfolio, res *capacity.ValidationResult, mode string) {
	if res == nil {
		return
	}
	admissionDecisions.WithLabelValues(string(portfolio), string(res.Status), mode).Inc()
}

func alertLevel(s capacity.AlertStatus) float64 {
	switch s {
	case capacity.AlertCritical:
		return 2
	case capacity.AlertWarning:
		return 1
	}
	return 0
}

// recordAlert publishes one alert run to the governance gauges.
func recordAlert(alert capacity.GovernanceAlert) {
	alertStatus.Reset()
	peakUtilization.Reset()
	for _, ra := range alert.RoleAlerts {
		alertStatus.WithLabelValues(string(ra.Role)).Set(alertLevel(ra.Status))
		if ra.PeakUtilization != nil {
			peakUtilization.WithLabelValues(string(ra.Role)).Set(ra.PeakUtilization.Float64())
		}
	}
	unscheduledItems.Set(float64(alert.UnscheduledDemandItems))
}
