package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATS publishes events as JSON on <prefix>.<kind>.
type NATS struct {
	Conn   *nats.Conn
	Prefix string
}

// Notify publishes evt without waiting for a server acknowledgement.
func (n NATS) Notify(_ context.Context, evt Event) error {
	if n.Conn == nil {
		return errors.New("nats connection is required")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return n.Conn.Publish(n.subject(evt.Kind), payload)
}

func (n NATS) subject(kind Kind) string {
	prefix := strings.TrimSuffix(n.Prefix, ".")
	if prefix == "" {
		return string(kind)
	}
	return fmt.Sprintf("%s.%s", prefix, kind)
}
