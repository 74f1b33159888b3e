package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher sends liveness beacons to NATS under a subject prefix.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

var hostname = os.Hostname

// NewPublisher publishes under prefix; a trailing dot is ignored.
func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	return &Publisher{
		nc:     nc,
		prefix: strings.TrimSuffix(prefix, "."),
	}
}

// Publish fills in GeneratedAt and Host when missing and sends msg.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	if p.nc == nil {
		return errors.New("nats connection is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.GeneratedAt.IsZero() {
		msg.GeneratedAt = time.Now().UTC()
	}
	msg = applyHostDefault(msg)
	payload, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("heartbeat %q: %w", msg.Subject, err)
	}
	return p.nc.Publish(p.fullSubject(msg.Subject), payload)
}

func (p *Publisher) fullSubject(s string) string {
	if p.prefix == "" {
		return s
	}
	return fmt.Sprintf("%s.%s", p.prefix, s)
}

func applyHostDefault(msg Message) Message {
	if msg.Host != "" {
		return msg
	}
	if host, err := hostname(); err == nil && host != "" {
		msg.Host = host
	}
	return msg
}
