package device_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/cafescout/internal/device"
	"github.com/example/cafescout/internal/discovery/geofix"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestLowAccuracyRequestServedFromFreshCache(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	observer := device.NewFixObserver(clock)
	session := uuid.New()
	locator := device.NewStreamLocator(observer, session, clock)

	observer.Update(session, geofix.Reading{Latitude: 40, AccuracyM: 300})

	got, err := locator.CurrentPosition(context.Background(), geofix.PositionOptions{
		Timeout:    time.Second,
		MaximumAge: time.Minute,
	})
	require.NoError(t, err)
	require.Equal(t, 40.0, got.Latitude)
}

func TestStaleCacheForcesAWait(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	observer := device.NewFixObserver(clock)
	session := uuid.New()
	locator := device.NewStreamLocator(observer, session, clock)

	observer.Update(session, geofix.Reading{Latitude: 40, AccuracyM: 300})
	clock.advance(2 * time.Minute)

	go func() {
		time.Sleep(10 * time.Millisecond)
		observer.Update(session, geofix.Reading{Latitude: 41, AccuracyM: 50})
	}()

	got, err := locator.CurrentPosition(context.Background(), geofix.PositionOptions{
		Timeout:    time.Second,
		MaximumAge: time.Minute,
	})
	require.NoError(t, err)
	require.Equal(t, 41.0, got.Latitude)
}

func TestHighAccuracyRequestIgnoresCache(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	observer := device.NewFixObserver(clock)
	session := uuid.New()
	locator := device.NewStreamLocator(observer, session, clock)

	observer.Update(session, geofix.Reading{Latitude: 40, AccuracyM: 300})

	go func() {
		time.Sleep(10 * time.Millisecond)
		observer.Update(session, geofix.Reading{Latitude: 42, AccuracyM: 15})
	}()

	got, err := locator.CurrentPosition(context.Background(), geofix.PositionOptions{
		HighAccuracy: true,
		Timeout:      time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, 42.0, got.Latitude)
}

func TestWaitTimesOutWithoutReadings(t *testing.T) {
	observer := device.NewFixObserver(nil)
	locator := device.NewStreamLocator(observer, uuid.New(), nil)

	_, err := locator.CurrentPosition(context.Background(), geofix.PositionOptions{
		HighAccuracy: true,
		Timeout:      20 * time.Millisecond,
	})
	require.ErrorIs(t, err, geofix.ErrTimeout)
}

func TestContextDeadlineMapsToTimeout(t *testing.T) {
	observer := device.NewFixObserver(nil)
	locator := device.NewStreamLocator(observer, uuid.New(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := locator.CurrentPosition(ctx, geofix.PositionOptions{
		HighAccuracy: true,
		Timeout:      time.Second,
	})
	require.ErrorIs(t, err, geofix.ErrTimeout)
}

func TestUpdatesAreScopedPerSession(t *testing.T) {
	observer := device.NewFixObserver(nil)
	a := uuid.New()
	b := uuid.New()

	observer.Update(a, geofix.Reading{Latitude: 1})
	observer.Update(b, geofix.Reading{Latitude: 2})

	got, _, ok := observer.Latest(a)
	require.True(t, ok)
	require.Equal(t, 1.0, got.Latitude)

	observer.Forget(a)
	_, _, ok = observer.Latest(a)
	require.False(t, ok)
	_, _, ok = observer.Latest(b)
	require.True(t, ok)
}
