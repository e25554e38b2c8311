// Package notify delivers user-facing toast notifications to whatever
// rendering layer is listening. Sinks carry the dedupe key through so the
// renderer can drop repeats.
package notify

import (
	"context"
	"sync"

	"github.com/example/cafescout/internal/discovery/domain"
)

// Sink accepts notifications produced by the discovery core.
type Sink interface {
	Publish(ctx context.Context, n domain.Notification) error
}

// MemorySink buffers notifications in memory for tests and local demos.
type MemorySink struct {
	mu    sync.Mutex
	items []domain.Notification
}

// NewMemorySink constructs an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish appends the notification.
func (s *MemorySink) Publish(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, n)
	return nil
}

// Items returns a copy of everything published so far.
func (s *MemorySink) Items() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.items...)
}

// Drain returns buffered notifications and clears the buffer.
func (s *MemorySink) Drain() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.items
	s.items = nil
	return out
}

// MultiSink fans one notification out to several sinks, returning the first
// error encountered.
type MultiSink []Sink

// Publish satisfies Sink.
func (m MultiSink) Publish(ctx context.Context, n domain.Notification) error {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, n); err != nil {
			return err
		}
	}
	return nil
}
