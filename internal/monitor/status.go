package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type statusResponse struct {
	ObservedAt        time.Time     `json:"observed_at"`
	AuthErrorNotified bool          `json:"auth_error_notified"`
	LastDigest        *time.Time    `json:"last_digest,omitempty"`
	DigestInterval    string        `json:"digest_interval"`
	Devices           []deviceState `json:"devices"`
}

type deviceState struct {
	DeviceID                string     `json:"device_id"`
	Status                  string     `json:"status,omitempty"`
	Readiness               string     `json:"readiness,omitempty"`
	LastChallengeSuccessful bool       `json:"last_challenge_successful"`
	Healthy                 bool       `json:"healthy"`
	LastChecked             *time.Time `json:"last_checked,omitempty"`
	LastAlert               *time.Time `json:"last_alert,omitempty"`
	Error                   string     `json:"error,omitempty"`
}

// Handler serves the JSON status snapshot at / and Prometheus metrics at
// /metrics when a gatherer is configured.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleStatus)
	if m.cfg.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(m.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (m *Monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m.snapshot(m.cfg.Now())); err != nil {
		m.logger.Warn("encode status failed", "err", err)
	}
}

// snapshot lists devices in configured order.
func (m *Monitor) snapshot(now time.Time) statusResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	resp := statusResponse{
		ObservedAt:        now,
		AuthErrorNotified: m.state.AuthErrorNotified,
		DigestInterval:    m.digestInterval.String(),
		Devices:           make([]deviceState, 0, len(m.devices)),
	}
	if !m.state.LastDigest.IsZero() {
		last := m.state.LastDigest
		resp.LastDigest = &last
	}

	for _, id := range m.devices {
		ds := deviceState{DeviceID: id}
		if obs, ok := m.observed[id]; ok {
			checked := obs.checkedAt
			ds.LastChecked = &checked
			ds.Status = obs.status.Status
			ds.Readiness = obs.status.Readiness
			ds.LastChallengeSuccessful = obs.status.LastChallengeSuccessful
			ds.Healthy = obs.err == nil && obs.status.Healthy()
			if obs.err != nil {
				ds.Error = obs.err.Error()
			}
		}
		if last, ok := m.state.LastAlert[id]; ok {
			ds.LastAlert = &last
		}
		resp.Devices = append(resp.Devices, ds)
	}
	return resp
}
