package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/venuefinder/internal/core/ports"
)

// Subjects used by the entrance service.
const (
	StreamName            = "ENTRANCES"
	SubjectSourceFailures = "entrances.source.failed"
	SubjectCatalogReload  = "entrances.catalog.reload"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Connect opens a NATS connection that keeps retrying in the background.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("venuefinder"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}

// NewPublisher enables JetStream on conn and ensures the event stream exists.
func NewPublisher(conn *nats.Conn) (*Publisher, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"entrances.source.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(cfg); err != nil {
		// Stream may already exist; try update
		if _, err := js.UpdateStream(cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishSourceFailure records a source that contributed nothing to a query.
func (p *Publisher) PublishSourceFailure(ctx context.Context, f ports.SourceFailure) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectSourceFailures+"."+subjectToken(f.Source), data, nats.Context(ctx))
	return err
}

// RequestCatalogReload asks every running API instance to re-read the catalog.
func (p *Publisher) RequestCatalogReload(ctx context.Context) error {
	if err := p.conn.Publish(SubjectCatalogReload, nil); err != nil {
		return err
	}
	return p.conn.FlushWithContext(ctx)
}

// subjectToken makes a source label safe for use as a subject token.
func subjectToken(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
	if s == "" {
		return "_"
	}
	return s
}
