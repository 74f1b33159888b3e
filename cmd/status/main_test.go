package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeDevice(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "PENDING", summarizeDevice(deviceState{}))
	assert.Equal(t, "ERROR", summarizeDevice(deviceState{LastChecked: &now, Error: "boom"}))
	assert.Equal(t, "OK", summarizeDevice(deviceState{LastChecked: &now, Healthy: true}))
	assert.Equal(t, "DOWN", summarizeDevice(deviceState{LastChecked: &now, Status: "down"}))
}

func TestPrintStatusTable(t *testing.T) {
	checked := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	resp := statusResponse{
		ObservedAt:     checked,
		DigestInterval: "1h0m0s",
		Devices: []deviceState{
			{DeviceID: "dev1", Status: "up", Readiness: "Cluster Ready", LastChallengeSuccessful: true, Healthy: true, LastChecked: &checked},
			{DeviceID: "dev2", Status: "down", Readiness: "Cluster Ready", LastChecked: &checked, LastAlert: &checked},
			{DeviceID: "dev3", LastChecked: &checked, Error: "device api: unexpected status 502"},
		},
	}

	var buf bytes.Buffer
	printStatus(resp, &buf)
	out := buf.String()

	assert.Contains(t, out, "Last digest: never (every 1h0m0s)")
	assert.Contains(t, out, "dev2")
	assert.Contains(t, out, "DOWN")
	assert.Contains(t, out, "dev3: device api: unexpected status 502")
	assert.Contains(t, out, "1 unhealthy across 3 device(s)")
	assert.NotContains(t, out, "\x1b[", "no colour when not writing to a terminal")
}

func TestFetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"observed_at":"2024-05-01T12:00:00Z","auth_error_notified":true,"digest_interval":"0s","devices":[{"device_id":"dev1","healthy":false}]}`))
	}))
	defer srv.Close()

	resp, err := fetchStatus(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, resp.AuthErrorNotified)
	require.Len(t, resp.Devices, 1)
	assert.Equal(t, "dev1", resp.Devices[0].DeviceID)
}

func TestFetchStatusNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := fetchStatus(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
