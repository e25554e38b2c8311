package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/cafescout/internal/discovery/domain"
)

// NATSSink publishes notifications to a NATS subject so that interested
// frontends (websocket bridges, push relays) can fan them out.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink builds a sink on an existing connection. A nil connection
// yields a sink that silently drops everything, matching local setups that
// run without a broker.
func NewNATSSink(conn *nats.Conn, subject string) *NATSSink {
	if subject == "" {
		subject = "discovery.notifications"
	}
	return &NATSSink{conn: conn, subject: subject}
}

// Publish satisfies Sink.
func (s *NATSSink) Publish(ctx context.Context, n domain.Notification) error {
	if s == nil || s.conn == nil {
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return s.conn.PublishMsg(&nats.Msg{Subject: s.subject, Data: payload, Header: map[string][]string{
		"x-dedupe-key": {n.DedupeKey},
		"x-kind":       {string(n.Kind)},
		"x-trace-id":   {traceIDFromContext(ctx)},
	}})
}

func traceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
