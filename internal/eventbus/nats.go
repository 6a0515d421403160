package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsPublisher publishes task lifecycle events to NATS with JetStream.
type NatsPublisher struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	streamName string
}

// Config holds NATS configuration.
type Config struct {
	URL        string        `json:"url" yaml:"url"`                 // e.g. "nats://nats:4222"
	StreamName string        `json:"stream_name" yaml:"stream_name"` // default "COUNSEL"
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// NewNatsPublisher connects to NATS and ensures the event stream exists.
func NewNatsPublisher(cfg Config) (*NatsPublisher, error) {
	if cfg.URL == "" {
		cfg.URL = "nats://localhost:4222"
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "COUNSEL"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("[EventBus] NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[EventBus] NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &NatsPublisher{conn: nc, js: js, streamName: cfg.StreamName}
	if err := p.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	log.Printf("[EventBus] Connected to NATS at %s with JetStream stream %s", cfg.URL, cfg.StreamName)
	return p, nil
}

func (p *NatsPublisher) ensureStream() error {
	streamConfig := &nats.StreamConfig{
		Name:      p.streamName,
		Subjects:  []string{"counsel.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
		Replicas:  1,
		Discard:   nats.DiscardOld,
	}

	if _, err := p.js.StreamInfo(p.streamName); err != nil {
		if _, err := p.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		log.Printf("[EventBus] Created JetStream stream: %s", p.streamName)
	}
	return nil
}

// Publish sends one task event on the given subject.
func (p *NatsPublisher) Publish(ctx context.Context, subject string, event *TaskEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (p *NatsPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

var _ Publisher = (*NatsPublisher)(nil)
