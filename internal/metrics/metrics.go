// Package metrics exposes the gateway's Prometheus instrumentation,
// grounded on the pack's promauto-based metrics packages (package-level
// vars registered against the default registry, one file of counters per
// concern) rather than threading a *prometheus.Registry through every
// constructor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CamerasByStatus tracks the current camera count per lifecycle status
	// (spec.md §4.0/SPEC_FULL §4.0 Metrics).
	CamerasByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vcamgw_cameras_by_status",
		Help: "Number of cameras currently in each status",
	}, []string{"status"})

	// MediaServerRestartsTotal counts every unexpected media-server restart
	// the Media Server Controller performs.
	MediaServerRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vcamgw_media_server_restarts_total",
		Help: "Total number of times the Media Server Controller restarted the media server process after an unexpected exit",
	})

	// MediaServerDeadTotal counts every time the restart budget was
	// exceeded and the controller surfaced E_MEDIA_DEAD.
	MediaServerDeadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vcamgw_media_server_dead_total",
		Help: "Total number of times the media server exceeded its crash-restart budget",
	})

	// OnvifRequestsTotal counts ONVIF SOAP requests handled by a camera's
	// Endpoint, labeled by service and action.
	OnvifRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vcamgw_onvif_requests_total",
		Help: "Total number of ONVIF SOAP requests handled, by service and action",
	}, []string{"service", "action"})

	// OnvifAuthFailuresTotal counts WS-UsernameToken validation failures.
	OnvifAuthFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vcamgw_onvif_auth_failures_total",
		Help: "Total number of ONVIF requests rejected for failing WS-UsernameToken validation",
	}, []string{"service"})
)

// SetCameraStatusCounts replaces the CamerasByStatus gauge with counts,
// zeroing any status absent from counts so a status that just emptied out
// still reports 0 instead of a stale last value.
func SetCameraStatusCounts(counts map[string]int) {
	for _, status := range []string{"stopped", "starting", "running", "stopping", "failed"} {
		CamerasByStatus.WithLabelValues(status).Set(float64(counts[status]))
	}
}
