package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlertDueFirstTimeAndAfterRepeat(t *testing.T) {
	s := NewState()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, s.alertDue("dev", now, time.Hour))

	s.LastAlert["dev"] = now
	assert.False(t, s.alertDue("dev", now, time.Hour))
	assert.False(t, s.alertDue("dev", now.Add(59*time.Minute), time.Hour))
	assert.True(t, s.alertDue("dev", now.Add(time.Hour), time.Hour))
}

func TestDigestDue(t *testing.T) {
	s := NewState()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, s.digestDue(now, 0), "zero interval disables digests")
	assert.True(t, s.digestDue(now, time.Hour), "first digest is due immediately")

	s.LastDigest = now
	assert.False(t, s.digestDue(now.Add(30*time.Minute), time.Hour))
	assert.True(t, s.digestDue(now.Add(time.Hour), time.Hour))
	assert.False(t, s.digestDue(now.Add(100*time.Hour), 0))
}

func TestRetainDropsRemovedDevices(t *testing.T) {
	s := NewState()
	now := time.Now()
	s.LastAlert["a"] = now
	s.LastAlert["b"] = now

	s.retain([]string{"b", "c"})

	assert.NotContains(t, s.LastAlert, "a")
	assert.Contains(t, s.LastAlert, "b")
	assert.NotContains(t, s.LastAlert, "c")
}
