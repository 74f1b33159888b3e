package monitor

import (
	"time"

	"github.com/venkytv/iodevice-watch/internal/device"
)

// State is the notification bookkeeping carried between passes. It lives in
// memory only and starts empty on every process start.
type State struct {
	// LastAlert holds the last time an unhealthy alert was sent per device.
	LastAlert map[string]time.Time
	// AuthErrorNotified is set once the token-failure alert has gone out and
	// cleared by the next authenticated response.
	AuthErrorNotified bool
	// LastDigest is zero until the first full-fleet digest.
	LastDigest time.Time
}

// NewState returns empty bookkeeping.
func NewState() *State {
	return &State{LastAlert: make(map[string]time.Time)}
}

// alertDue reports whether an unhealthy device may be alerted at now.
func (s *State) alertDue(id string, now time.Time, repeat time.Duration) bool {
	last, ok := s.LastAlert[id]
	return !ok || now.Sub(last) >= repeat
}

// digestDue reports whether a digest should go out at now. A non-positive
// interval disables digests.
func (s *State) digestDue(now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	return s.LastDigest.IsZero() || now.Sub(s.LastDigest) >= interval
}

// retain drops alert bookkeeping for devices no longer configured.
func (s *State) retain(ids []string) {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	for id := range s.LastAlert {
		if _, ok := keep[id]; !ok {
			delete(s.LastAlert, id)
		}
	}
}

// observation is the last thing seen for a device, kept for the status API.
type observation struct {
	status    device.Status
	checkedAt time.Time
	err       error
}
