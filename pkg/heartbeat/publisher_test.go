package heartbeat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubHostname(t *testing.T, fn func() (string, error)) {
	t.Helper()
	original := hostname
	t.Cleanup(func() { hostname = original })
	hostname = fn
}

func TestApplyHostDefaultKeepsProvidedHost(t *testing.T) {
	stubHostname(t, func() (string, error) { return "ignored-hostname", nil })

	got := applyHostDefault(Message{Host: "explicit"})
	assert.Equal(t, "explicit", got.Host)
}

func TestApplyHostDefaultUsesHostname(t *testing.T) {
	stubHostname(t, func() (string, error) { return "watcher-1", nil })

	got := applyHostDefault(Message{})
	assert.Equal(t, "watcher-1", got.Host)
}

func TestApplyHostDefaultIgnoresHostnameErrors(t *testing.T) {
	stubHostname(t, func() (string, error) { return "", errors.New("lookup failed") })

	got := applyHostDefault(Message{})
	assert.Empty(t, got.Host)
}

func TestFullSubject(t *testing.T) {
	assert.Equal(t, "heartbeat.iodevice-watch", NewPublisher(nil, "heartbeat.").fullSubject("iodevice-watch"))
	assert.Equal(t, "iodevice-watch", NewPublisher(nil, "").fullSubject("iodevice-watch"))
}

func TestPublishRequiresConnection(t *testing.T) {
	err := NewPublisher(nil, "heartbeat").Publish(context.Background(), Message{Subject: "x"})
	require.Error(t, err)
}

func TestMessageRoundTrip(t *testing.T) {
	grace := 3 * time.Minute
	msg := Message{
		Subject:     "iodevice-watch",
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Interval:    time.Minute,
		GracePeriod: &grace,
		Devices:     3,
		Unhealthy:   1,
		Failed:      1,
	}
	data, err := msg.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestValidateRejectsInconsistentCounts(t *testing.T) {
	msg := Message{Subject: "s", GeneratedAt: time.Now(), Interval: time.Minute, Devices: 1, Unhealthy: 1, Failed: 1}
	require.Error(t, msg.Validate())

	short := 30 * time.Second
	msg = Message{Subject: "s", GeneratedAt: time.Now(), Interval: time.Minute, GracePeriod: &short}
	require.Error(t, msg.Validate())
}
