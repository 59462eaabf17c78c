package natsadapter

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/venuefinder/internal/core/ports"
)

// Subscriber implements ports.EventSubscriber using core NATS.
// Reload requests are fan-out: every API instance must see every message,
// so no queue group or durable consumer is used.
type Subscriber struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber sharing conn.
func NewSubscriber(conn *nats.Conn) *Subscriber {
	return &Subscriber{conn: conn}
}

// SubscribeCatalogReload runs handler for every reload request until Close.
func (s *Subscriber) SubscribeCatalogReload(ctx context.Context, handler func(ctx context.Context) error) error {
	sub, err := s.conn.Subscribe(SubjectCatalogReload, func(msg *nats.Msg) {
		if err := handler(ctx); err != nil {
			slog.WarnContext(ctx, "catalog reload failed", "subject", msg.Subject, "error", err)
			return
		}
		if msg.Reply != "" {
			_ = msg.Respond([]byte("ok"))
		}
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes. The shared connection is drained by its owner.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
}

var _ ports.EventSubscriber = (*Subscriber)(nil)
