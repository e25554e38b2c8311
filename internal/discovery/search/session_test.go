package search_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/cafescout/internal/discovery/domain"
	"github.com/example/cafescout/internal/discovery/search"
	"github.com/example/cafescout/internal/notify"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testFactory() search.Factory {
	return func(id uuid.UUID) (*search.Session, error) {
		return &search.Session{
			Coordinator:   search.NewCoordinator(nil, nil, nil, nil, nil, search.Config{}, nil),
			Camera:        &search.CameraRecorder{},
			Notifications: notify.NewMemorySink(),
		}, nil
	}
}

func TestManagerCreateGetClose(t *testing.T) {
	mgr := search.NewManager(testFactory(), time.Minute, &stepClock{t: time.Unix(0, 0)}, nil)

	sess, err := mgr.Create()
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, sess.ID)

	got, err := mgr.Get(sess.ID)
	require.NoError(t, err)
	require.Same(t, sess, got)

	require.NoError(t, mgr.Close(sess.ID))
	_, err = mgr.Get(sess.ID)
	require.ErrorIs(t, err, search.ErrSessionNotFound)
	require.ErrorIs(t, mgr.Close(sess.ID), search.ErrSessionNotFound)
}

func TestManagerCloseRunsCleanup(t *testing.T) {
	mgr := search.NewManager(testFactory(), time.Minute, &stepClock{t: time.Unix(0, 0)}, nil)

	sess, err := mgr.Create()
	require.NoError(t, err)

	cleaned := make(chan struct{})
	sess.SetCleanup(func() { close(cleaned) })

	require.NoError(t, mgr.Close(sess.ID))
	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup did not run")
	}
}

func TestManagerSweepsIdleSessions(t *testing.T) {
	clock := &stepClock{t: time.Unix(0, 0)}
	mgr := search.NewManager(testFactory(), 10*time.Millisecond, clock, nil)

	sess, err := mgr.Create()
	require.NoError(t, err)

	var expired sync.WaitGroup
	expired.Add(1)
	sess.SetCleanup(expired.Done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx) //nolint:errcheck

	clock.advance(time.Hour)
	done := make(chan struct{})
	go func() { expired.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("idle session was never swept")
	}

	_, err = mgr.Get(sess.ID)
	require.ErrorIs(t, err, search.ErrSessionNotFound)
}

func TestCameraRecorderKeepsLatestIntent(t *testing.T) {
	rec := &search.CameraRecorder{}
	require.Nil(t, rec.Last())

	rec.FlyTo(domain.GeoPoint{Lat: 40, Lng: -3}, 13, time.Second)
	rec.FlyTo(domain.GeoPoint{Lat: 41, Lng: -4}, 17, time.Second)

	intent := rec.Last()
	require.NotNil(t, intent)
	require.Equal(t, 17, intent.Zoom)
}
