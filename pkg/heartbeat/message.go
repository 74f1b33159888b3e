package heartbeat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message is the liveness beacon published after every polling cycle. It is
// wire-compatible with the heartbeat monitor's subject/interval/grace fields,
// so a stalled watcher raises an alert of its own.
type Message struct {
	Subject     string         `json:"subject"`
	GeneratedAt time.Time      `json:"generated_at"`
	Interval    time.Duration  `json:"interval"`
	GracePeriod *time.Duration `json:"grace_period,omitempty"`
	Description string         `json:"description,omitempty"`
	Host        string         `json:"host,omitempty"`

	// fleet summary for the cycle that produced the beat
	Devices   int `json:"devices"`
	Unhealthy int `json:"unhealthy"`
	Failed    int `json:"failed"`
}

// Marshal validates and encodes the message.
func (m Message) Marshal() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Unmarshal decodes and validates a message.
func Unmarshal(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	return msg, msg.Validate()
}

// Validate checks required fields and that the fleet counts add up.
func (m Message) Validate() error {
	if m.Subject == "" {
		return errors.New("subject is required")
	}
	if m.GeneratedAt.IsZero() {
		return errors.New("generated_at is required")
	}
	if m.Interval <= 0 {
		return fmt.Errorf("interval must be >0, got %s", m.Interval)
	}
	if m.GracePeriod != nil && *m.GracePeriod < m.Interval {
		return fmt.Errorf("grace period %s is shorter than interval %s", *m.GracePeriod, m.Interval)
	}
	if m.Devices < 0 || m.Unhealthy < 0 || m.Failed < 0 {
		return errors.New("device counts cannot be negative")
	}
	if m.Unhealthy+m.Failed > m.Devices {
		return fmt.Errorf("unhealthy+failed (%d) exceeds devices (%d)", m.Unhealthy+m.Failed, m.Devices)
	}
	return nil
}
