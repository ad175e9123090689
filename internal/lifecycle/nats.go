package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is prepended to the event kind to form the NATS subject,
// e.g. "carebridge.events.envelope.signed".
const SubjectPrefix = "carebridge.events."

// NATSSink publishes lifecycle events to NATS subjects.
type NATSSink struct {
	conn *nats.Conn
}

// NewNATSSink connects to NATS at the given URL.
func NewNATSSink(url string) (*NATSSink, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSink{conn: nc}, nil
}

func (s *NATSSink) Deliver(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return s.conn.Publish(SubjectPrefix+string(event.Kind), data)
}

func (s *NATSSink) Close() error {
	s.conn.Close()
	return nil
}
