package device

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/cafescout/internal/discovery/domain"
	"github.com/example/cafescout/internal/discovery/geofix"
)

// StreamLocator satisfies the geofix.Locator contract using readings a
// device streams for one session. A low-accuracy request may be answered
// from the cached reading when within MaximumAge; a high-accuracy request
// always waits for a fresh one.
type StreamLocator struct {
	observer *FixObserver
	session  uuid.UUID
	clock    domain.Clock
}

// NewStreamLocator binds a locator to a session.
func NewStreamLocator(observer *FixObserver, session uuid.UUID, clock domain.Clock) *StreamLocator {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &StreamLocator{observer: observer, session: session, clock: clock}
}

// CurrentPosition implements geofix.Locator.
func (l *StreamLocator) CurrentPosition(ctx context.Context, opts geofix.PositionOptions) (geofix.Reading, error) {
	if l.observer == nil {
		return geofix.Reading{}, geofix.ErrPositionUnavailable
	}

	if !opts.HighAccuracy && opts.MaximumAge > 0 {
		if reading, at, ok := l.observer.Latest(l.session); ok {
			if l.clock.Now().Sub(at) <= opts.MaximumAge {
				return reading, nil
			}
		}
	}

	wait, cancel := l.observer.await(l.session)
	defer cancel()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reading := <-wait:
		return reading, nil
	case <-timer.C:
		return geofix.Reading{}, geofix.ErrTimeout
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return geofix.Reading{}, geofix.ErrTimeout
		}
		return geofix.Reading{}, ctx.Err()
	}
}
