package monitor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/venkytv/iodevice-watch/internal/device"
	"github.com/venkytv/iodevice-watch/internal/notifier"
	"github.com/venkytv/iodevice-watch/pkg/heartbeat"
)

const authFailureText = "⚠️ API Token has expired or is invalid. Please update the TOKEN in .env file."

// Beacon publishes the watcher's own liveness.
type Beacon interface {
	Publish(ctx context.Context, msg heartbeat.Message) error
}

// Config controls the polling cadence, alert suppression and the optional
// status, metrics and heartbeat outputs of a Monitor.
type Config struct {
	DeviceIDs      []string
	DigestInterval time.Duration
	PollEvery      time.Duration
	RepeatEvery    time.Duration
	StatusAddr     string
	Debug          bool
	Logger         *slog.Logger

	// State lets callers seed or inspect the notification bookkeeping.
	State *State
	// Metrics and Gatherer back the /metrics endpoint; both may be nil.
	Metrics  *Metrics
	Gatherer prometheus.Gatherer

	Beacon           Beacon
	HeartbeatSubject string

	Now func() time.Time
}

// Monitor runs the digest and health-check passes over a fixed device list.
type Monitor struct {
	cfg      Config
	fetcher  device.Fetcher
	notifier notifier.Notifier
	logger   *slog.Logger
	metrics  *Metrics

	mu             sync.Mutex
	state          *State
	devices        []string
	digestInterval time.Duration
	observed       map[string]observation
	pending        *reload
}

type reload struct {
	devices        []string
	digestInterval time.Duration
}

// New builds a Monitor. Zero PollEvery and RepeatEvery default to one minute
// and one hour; a nil notifier discards events.
func New(f device.Fetcher, n notifier.Notifier, cfg Config) *Monitor {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = time.Minute
	}
	if cfg.RepeatEvery <= 0 {
		cfg.RepeatEvery = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.HeartbeatSubject == "" {
		cfg.HeartbeatSubject = "iodevice-watch"
	}
	logger := cfg.Logger
	if logger == nil {
		level := slog.LevelInfo
		if cfg.Debug {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))
	}
	state := cfg.State
	if state == nil {
		state = NewState()
	}
	if state.LastAlert == nil {
		state.LastAlert = make(map[string]time.Time)
	}
	if n == nil {
		n = notifier.Nop{}
	}
	return &Monitor{
		cfg:            cfg,
		fetcher:        f,
		notifier:       n,
		logger:         logger,
		metrics:        cfg.Metrics,
		state:          state,
		devices:        append([]string(nil), cfg.DeviceIDs...),
		digestInterval: cfg.DigestInterval,
		observed:       make(map[string]observation),
	}
}

// Start runs polling cycles until ctx is cancelled. The wait between cycles
// is not shortened by the time a cycle took.
func (m *Monitor) Start(ctx context.Context) error {
	if m.fetcher == nil {
		return errors.New("device fetcher is required")
	}

	if m.cfg.StatusAddr != "" {
		srv := &http.Server{Addr: m.cfg.StatusAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			m.logger.Info("status server listening", "addr", m.cfg.StatusAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.logger.Error("status server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	m.logger.Info("monitor started",
		"devices", len(m.deviceIDs()),
		"poll", m.cfg.PollEvery,
		"digest_interval", m.currentDigestInterval(),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return nil
		case <-timer.C:
			m.cycle(ctx)
			timer.Reset(m.cfg.PollEvery)
		}
	}
}

// Reload swaps the device list and digest interval. The change takes effect
// at the start of the next cycle.
func (m *Monitor) Reload(deviceIDs []string, digestInterval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = &reload{
		devices:        append([]string(nil), deviceIDs...),
		digestInterval: digestInterval,
	}
}

func (m *Monitor) applyPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return
	}
	removed := difference(m.devices, m.pending.devices)
	m.devices = m.pending.devices
	m.digestInterval = m.pending.digestInterval
	m.pending = nil

	m.state.retain(m.devices)
	for _, id := range removed {
		delete(m.observed, id)
		m.metrics.forget(id)
	}
	m.logger.Info("applied config reload", "devices", len(m.devices), "removed", len(removed), "digest_interval", m.digestInterval)
}

func (m *Monitor) cycle(ctx context.Context) {
	started := time.Now()
	m.applyPending()

	now := m.cfg.Now()
	m.RunDigestPass(ctx, now)
	m.RunHealthCheckPass(ctx, now)

	m.metrics.observeCycle(time.Since(started))
	m.beat(ctx, now)
}

// RunHealthCheckPass checks every device in order and alerts on unhealthy
// ones, at most once per RepeatEvery per device. A rejected token aborts the
// remainder of the pass.
func (m *Monitor) RunHealthCheckPass(ctx context.Context, now time.Time) {
	for _, id := range m.deviceIDs() {
		st, err := m.fetcher.Fetch(ctx, id)
		m.observe(id, st, err, now)

		if errors.Is(err, device.ErrUnauthorized) {
			m.metrics.fetched(fetchUnauthorized)
			m.handleUnauthorized(ctx, id, now)
			return
		}

		if device.Responded(err) {
			m.mu.Lock()
			m.state.AuthErrorNotified = false
			m.mu.Unlock()
		}

		if err != nil {
			m.metrics.fetched(fetchFailed)
			m.logger.Warn("device check failed", "device", id, "err", err)
			continue
		}
		m.metrics.fetched(fetchOK)
		m.metrics.setHealthy(id, st.Healthy())

		if st.Healthy() {
			m.logger.Debug("device healthy", "device", id)
			continue
		}

		m.mu.Lock()
		due := m.state.alertDue(id, now, m.cfg.RepeatEvery)
		if due {
			m.state.LastAlert[id] = now
		}
		m.mu.Unlock()

		if !due {
			m.logger.Debug("device still unhealthy, alert suppressed", "device", id, "status", st.Status, "readiness", st.Readiness)
			continue
		}

		m.logger.Warn("device unhealthy",
			"device", id,
			"status", st.Status,
			"readiness", st.Readiness,
			"last_challenge_successful", st.LastChallengeSuccessful,
		)
		m.send(ctx, notifier.Event{
			Kind:     notifier.KindAlert,
			DeviceID: id,
			Text:     st.Message(),
			At:       now,
		})
	}
}

func (m *Monitor) handleUnauthorized(ctx context.Context, id string, now time.Time) {
	m.mu.Lock()
	first := !m.state.AuthErrorNotified
	m.state.AuthErrorNotified = true
	m.mu.Unlock()

	m.logger.Error("device api rejected token, skipping remaining devices", "device", id)
	if !first {
		return
	}
	m.send(ctx, notifier.Event{
		Kind: notifier.KindAuth,
		Text: authFailureText,
		At:   now,
	})
}

// RunDigestPass sends the status of every device regardless of health when
// the digest interval has elapsed. Devices that cannot be fetched are left
// out; the digest still counts as sent.
func (m *Monitor) RunDigestPass(ctx context.Context, now time.Time) {
	m.mu.Lock()
	due := m.state.digestDue(now, m.digestInterval)
	m.mu.Unlock()
	if !due {
		return
	}

	ids := m.deviceIDs()
	m.logger.Info("sending fleet digest", "devices", len(ids))
	for _, id := range ids {
		st, err := m.fetcher.Fetch(ctx, id)
		m.observe(id, st, err, now)
		if err != nil {
			m.metrics.fetched(fetchResult(err))
			m.logger.Warn("digest fetch failed", "device", id, "err", err)
			continue
		}
		m.metrics.fetched(fetchOK)
		m.metrics.setHealthy(id, st.Healthy())
		m.send(ctx, notifier.Event{
			Kind:     notifier.KindDigest,
			DeviceID: id,
			Text:     st.Message(),
			At:       now,
		})
	}

	m.mu.Lock()
	m.state.LastDigest = now
	m.mu.Unlock()
}

func (m *Monitor) send(ctx context.Context, evt notifier.Event) {
	if err := m.notifier.Notify(ctx, evt); err != nil {
		m.metrics.notified(evt.Kind, false)
		m.logger.Error("notification failed", "kind", evt.Kind, "device", evt.DeviceID, "err", err)
		return
	}
	m.metrics.notified(evt.Kind, true)
	m.logger.Debug("notification sent", "kind", evt.Kind, "device", evt.DeviceID)
}

func (m *Monitor) observe(id string, st device.Status, err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obs := m.observed[id]
	obs.checkedAt = now
	obs.err = err
	if err == nil {
		obs.status = st
	}
	m.observed[id] = obs
}

func (m *Monitor) beat(ctx context.Context, now time.Time) {
	if m.cfg.Beacon == nil {
		return
	}
	msg := heartbeat.Message{
		Subject:     m.cfg.HeartbeatSubject,
		GeneratedAt: now.UTC(),
		Interval:    m.cfg.PollEvery,
		Description: "iodevice-watch polling loop",
	}
	grace := 3 * m.cfg.PollEvery
	msg.GracePeriod = &grace

	m.mu.Lock()
	for _, id := range m.devices {
		msg.Devices++
		obs, ok := m.observed[id]
		switch {
		case !ok:
		case obs.err != nil:
			msg.Failed++
		case !obs.status.Healthy():
			msg.Unhealthy++
		}
	}
	m.mu.Unlock()

	if err := m.cfg.Beacon.Publish(ctx, msg); err != nil {
		m.logger.Warn("heartbeat publish failed", "subject", msg.Subject, "err", err)
	}
}

func (m *Monitor) deviceIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.devices...)
}

func (m *Monitor) currentDigestInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.digestInterval
}

// difference returns the entries of a missing from b.
func difference(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, id := range b {
		in[id] = struct{}{}
	}
	var out []string
	for _, id := range a {
		if _, ok := in[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
