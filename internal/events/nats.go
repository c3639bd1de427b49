package events

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/tvwarden/internal/metrics"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when none is configured.
const DefaultSubjectPrefix = "tvwarden.events"

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes events as JSON to <prefix>.<name>.
type NATSSink struct {
	conn   publisher
	prefix string
	close  func()
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	URL            string
	SubjectPrefix  string
	ConnectTimeout time.Duration
}

// NewNATSSink connects to NATS. The connection retries in the background, so
// a broker that is down at startup does not stop the agent.
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("tvwarden"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	sink := newNATSSink(conn, cfg.SubjectPrefix)
	sink.close = conn.Close
	return sink, nil
}

func newNATSSink(conn publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

// Subject returns the subject an event is published on.
func (s *NATSSink) Subject(ev Event) string {
	return s.prefix + "." + ev.Name
}

func (s *NATSSink) Emit(_ context.Context, ev Event) error {
	if err := s.conn.Publish(s.Subject(ev), ev.JSON()); err != nil {
		metrics.EventsPublished.WithLabelValues("nats", "error").Inc()
		return fmt.Errorf("publish %s: %w", ev.Name, err)
	}
	metrics.EventsPublished.WithLabelValues("nats", "ok").Inc()
	return nil
}

// Close closes the NATS connection.
func (s *NATSSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
