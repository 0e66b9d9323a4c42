package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Publisher is the subset of a NATS connection or JetStream context used to
// publish reports.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

type natsSender struct {
	subject string
	pub     Publisher
	conn    *nats.Conn
}

// NewNATSSender publishes JSON cycle reports to subject. With a stream name
// the report goes through JetStream and the stream is created when missing.
func NewNATSSender(url, stream, subject string) (Sender, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats subject required")
	}
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("mintwatch"), nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if stream == "" {
		return &natsSender{subject: subject, pub: corePublisher{conn}, conn: conn}, nil
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if _, err := js.StreamInfo(stream); err != nil {
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     stream,
			Subjects: []string{subject},
			Storage:  nats.FileStorage,
			Replicas: 1,
		}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("create stream %s: %w", stream, err)
		}
	}
	return &natsSender{subject: subject, pub: jetStreamPublisher{js}, conn: conn}, nil
}

// NewPublisherSender wraps an existing publisher.
func NewPublisherSender(subject string, pub Publisher) (Sender, error) {
	if subject == "" || pub == nil {
		return nil, fmt.Errorf("subject and publisher required")
	}
	return &natsSender{subject: subject, pub: pub}, nil
}

func (s *natsSender) Send(ctx context.Context, payload CyclePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := s.pub.Publish(ctx, s.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", s.subject, err)
	}
	return nil
}

// Close drains the underlying connection.
func (s *natsSender) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

type corePublisher struct{ conn *nats.Conn }

func (p corePublisher) Publish(_ context.Context, subject string, data []byte) error {
	return p.conn.Publish(subject, data)
}

type jetStreamPublisher struct{ js nats.JetStreamContext }

func (p jetStreamPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := p.js.Publish(subject, data, nats.Context(ctx))
	return err
}
