package device

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchDecodesDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/devices/dev-1/details", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Token"))
		assert.Equal(t, "application/json", r.Header.Get("accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"status":"down","readiness_info":{"readiness":"Cluster Ready"},"last_challenge_successful":true}}`))
	}))
	defer srv.Close()

	c := Client{BaseURL: srv.URL, Token: "secret", Client: srv.Client()}
	st, err := c.Fetch(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, Status{
		DeviceID:                "dev-1",
		Status:                  "down",
		Readiness:               "Cluster Ready",
		LastChallengeSuccessful: true,
	}, st)
	assert.False(t, st.Healthy())
}

func TestFetchUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := Client{BaseURL: srv.URL, Client: srv.Client()}
	_, err := c.Fetch(context.Background(), "dev-1")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, Responded(err))
}

func TestFetchNon200IsResponseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := Client{BaseURL: srv.URL, Client: srv.Client()}
	_, err := c.Fetch(context.Background(), "dev-1")
	var re *ResponseError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusBadGateway, re.StatusCode)
	assert.True(t, Responded(err))
}

func TestFetchBadBodyIsResponseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := Client{BaseURL: srv.URL, Client: srv.Client()}
	_, err := c.Fetch(context.Background(), "dev-1")
	require.Error(t, err)
	assert.True(t, Responded(err))
}

func TestFetchTransportErrorDidNotRespond(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := Client{BaseURL: url}
	_, err := c.Fetch(context.Background(), "dev-1")
	require.Error(t, err)
	assert.False(t, Responded(err))
}

func TestHealthy(t *testing.T) {
	ok := Status{Status: "up", Readiness: "Cluster Ready", LastChallengeSuccessful: true}
	assert.True(t, ok.Healthy())

	notReady := ok
	notReady.Readiness = "Pending"
	assert.False(t, notReady.Healthy())

	failedChallenge := ok
	failedChallenge.LastChallengeSuccessful = false
	assert.False(t, failedChallenge.Healthy())
}

func TestMessage(t *testing.T) {
	st := Status{DeviceID: "dev-2", Status: "down", Readiness: "Cluster Ready", LastChallengeSuccessful: false}
	want := "Device ID: dev-2\n  Device Status: down\n  Readiness: Cluster Ready\n  Last Challenge Successful: false\n"
	assert.Equal(t, want, st.Message())
}
