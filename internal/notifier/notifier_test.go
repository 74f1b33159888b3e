package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordPostsContent(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := Discord{WebhookURL: srv.URL, Client: srv.Client()}
	err := d.Notify(context.Background(), Event{Kind: KindAlert, Text: "hello", At: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"content": "hello"}, got)
}

func TestDiscordRequiresNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := Discord{WebhookURL: srv.URL, Client: srv.Client()}
	err := d.Notify(context.Background(), Event{Text: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "200")
}

func TestDiscordRequiresURL(t *testing.T) {
	require.Error(t, Discord{}.Notify(context.Background(), Event{Text: "x"}))
}

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, evt Event) error {
	r.events = append(r.events, evt)
	return r.err
}

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	failing := &recorder{err: errors.New("down")}
	ok := &recorder{}

	err := Multi{failing, nil, ok}.Notify(context.Background(), Event{Text: "x"})
	require.Error(t, err)
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1)
}

func TestNATSSubject(t *testing.T) {
	assert.Equal(t, "iodevice.alert", NATS{Prefix: "iodevice."}.subject(KindAlert))
	assert.Equal(t, "digest", NATS{}.subject(KindDigest))
}

func TestNATSRequiresConn(t *testing.T) {
	require.Error(t, NATS{}.Notify(context.Background(), Event{Kind: KindAuth}))
}
