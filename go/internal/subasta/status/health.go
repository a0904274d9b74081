package status

import (
	"fmt"
	"net/http"
	"time"

	"github.com/subastafrutas/console/go/internal/subasta/relay"
)

// RelayState is the read side of the NATS relay.
type RelayState interface {
	Connected() bool
	Stats() relay.Stats
}

type HealthStatus struct {
	Healthy        bool         `json:"healthy"`
	BusConnected   bool         `json:"bus_connected"`
	Changes        uint64       `json:"changes"`
	OpenViews      int          `json:"open_views"`
	RelayEnabled   bool         `json:"relay_enabled"`
	RelayConnected bool         `json:"relay_connected"`
	Relay          *relay.Stats `json:"relay,omitempty"`
	Errors         []string     `json:"errors"`
}

// SetRelay adds relay connectivity and counters to health and metrics.
func (s *Server) SetRelay(r RelayState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relay = r
}

// Check reports readiness. The console is unhealthy while the global feed
// or an enabled relay is disconnected.
func (s *Server) Check() HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	if s.bus != nil {
		status.BusConnected = s.bus.Connected()
		status.Changes = s.bus.Changes()
		if !status.BusConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "global auction feed disconnected")
		}
	}

	s.mu.RLock()
	status.OpenViews = len(s.views)
	r := s.relay
	s.mu.RUnlock()

	if r != nil {
		stats := r.Stats()
		status.RelayEnabled = true
		status.RelayConnected = r.Connected()
		status.Relay = &stats
		if !status.RelayConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	return status
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.Check()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprint(w, exportMetrics(s.Check()))
}

func exportMetrics(status HealthStatus) string {
	var published, failed uint64
	var lastPublished time.Time
	if status.Relay != nil {
		published = status.Relay.Published
		failed = status.Relay.Failed
		lastPublished = status.Relay.LastPublished
	}
	var lastUnix int64
	if !lastPublished.IsZero() {
		lastUnix = lastPublished.Unix()
	}

	return fmt.Sprintf(`# HELP subasta_console_healthy Whether the console is healthy
# TYPE subasta_console_healthy gauge
subasta_console_healthy %d

# HELP subasta_console_feed_connected Whether the global auction feed is connected
# TYPE subasta_console_feed_connected gauge
subasta_console_feed_connected %d

# HELP subasta_console_events_total Accepted global auction events
# TYPE subasta_console_events_total counter
subasta_console_events_total %d

# HELP subasta_console_open_views Open auction detail views
# TYPE subasta_console_open_views gauge
subasta_console_open_views %d

# HELP subasta_console_relay_published_total Events relayed to NATS
# TYPE subasta_console_relay_published_total counter
subasta_console_relay_published_total %d

# HELP subasta_console_relay_failed_total Events that failed to relay
# TYPE subasta_console_relay_failed_total counter
subasta_console_relay_failed_total %d

# HELP subasta_console_relay_last_published_timestamp Unix timestamp of last relayed event
# TYPE subasta_console_relay_last_published_timestamp gauge
subasta_console_relay_last_published_timestamp %d
`,
		boolGauge(status.Healthy),
		boolGauge(status.BusConnected),
		status.Changes,
		status.OpenViews,
		published,
		failed,
		lastUnix,
	)
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}
