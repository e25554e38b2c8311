// Package device ingests raw position readings streamed by device apps and
// serves them to the acquisition state machine through the Locator contract.
package device

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/cafescout/internal/discovery/domain"
	"github.com/example/cafescout/internal/discovery/geofix"
)

type stampedReading struct {
	reading geofix.Reading
	at      time.Time
}

// FixObserver keeps the latest reading per session and wakes any locator
// waiting for the next one.
type FixObserver struct {
	clock   domain.Clock
	mu      sync.Mutex
	latest  map[uuid.UUID]stampedReading
	waiters map[uuid.UUID]map[chan geofix.Reading]struct{}
}

// NewFixObserver constructs the observer.
func NewFixObserver(clock domain.Clock) *FixObserver {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &FixObserver{
		clock:   clock,
		latest:  make(map[uuid.UUID]stampedReading),
		waiters: make(map[uuid.UUID]map[chan geofix.Reading]struct{}),
	}
}

// Update stores a reading and delivers it to pending waiters.
func (o *FixObserver) Update(sessionID uuid.UUID, reading geofix.Reading) {
	o.mu.Lock()
	o.latest[sessionID] = stampedReading{reading: reading, at: o.clock.Now()}
	pending := o.waiters[sessionID]
	delete(o.waiters, sessionID)
	o.mu.Unlock()

	for ch := range pending {
		ch <- reading // buffered, never blocks
	}
}

// Latest returns the most recent reading and its receipt time.
func (o *FixObserver) Latest(sessionID uuid.UUID) (geofix.Reading, time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	stamped, ok := o.latest[sessionID]
	return stamped.reading, stamped.at, ok
}

// await registers a one-shot waiter for the session's next reading. The
// returned cancel removes the waiter if it never fires.
func (o *FixObserver) await(sessionID uuid.UUID) (<-chan geofix.Reading, func()) {
	ch := make(chan geofix.Reading, 1)
	o.mu.Lock()
	set, ok := o.waiters[sessionID]
	if !ok {
		set = make(map[chan geofix.Reading]struct{})
		o.waiters[sessionID] = set
	}
	set[ch] = struct{}{}
	o.mu.Unlock()

	cancel := func() {
		o.mu.Lock()
		if set, ok := o.waiters[sessionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(o.waiters, sessionID)
			}
		}
		o.mu.Unlock()
	}
	return ch, cancel
}

// Forget drops all state for a closed session.
func (o *FixObserver) Forget(sessionID uuid.UUID) {
	o.mu.Lock()
	delete(o.latest, sessionID)
	delete(o.waiters, sessionID)
	o.mu.Unlock()
}

// Server implements the FixIngest gRPC contract on top of the observer.
type Server struct {
	observer *FixObserver
}

// NewServer constructs a server.
func NewServer(observer *FixObserver) *Server {
	return &Server{observer: observer}
}

// StreamFixes ingests device readings until the stream closes.
func (s *Server) StreamFixes(stream FixIngest_StreamFixesServer) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&Ack{})
		}
		if err != nil {
			return err
		}
		sessionID, err := uuid.Parse(msg.SessionId)
		if err != nil {
			continue
		}
		s.observer.Update(sessionID, geofix.Reading{
			Latitude:  msg.Lat,
			Longitude: msg.Lng,
			AccuracyM: msg.AccuracyM,
		})
	}
}
