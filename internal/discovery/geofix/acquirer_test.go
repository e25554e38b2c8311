package geofix_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/cafescout/internal/discovery/geofix"
)

type scriptedLocator struct {
	mu    sync.Mutex
	calls []geofix.PositionOptions
	steps []func(ctx context.Context) (geofix.Reading, error)
}

func (l *scriptedLocator) CurrentPosition(ctx context.Context, opts geofix.PositionOptions) (geofix.Reading, error) {
	l.mu.Lock()
	l.calls = append(l.calls, opts)
	var step func(ctx context.Context) (geofix.Reading, error)
	if len(l.steps) > 0 {
		step = l.steps[0]
		l.steps = l.steps[1:]
	}
	l.mu.Unlock()
	if step == nil {
		return geofix.Reading{}, geofix.ErrPositionUnavailable
	}
	return step(ctx)
}

func (l *scriptedLocator) callCount() int {
	return len(l.callsSnapshot())
}

func (l *scriptedLocator) callsSnapshot() []geofix.PositionOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]geofix.PositionOptions(nil), l.calls...)
}

func reply(r geofix.Reading, err error) func(context.Context) (geofix.Reading, error) {
	return func(context.Context) (geofix.Reading, error) { return r, err }
}

func fastConfig() geofix.Config {
	return geofix.Config{
		CoarseTimeout: 50 * time.Millisecond,
		FineTimeout:   50 * time.Millisecond,
		CacheMaxAge:   time.Minute,
		AccuracyGoalM: 100,
		RefinePause:   time.Millisecond,
		RetryPause:    time.Millisecond,
		MaxAttempts:   2,
	}
}

func collectStates() (chan geofix.State, func(geofix.State)) {
	ch := make(chan geofix.State, 32)
	return ch, func(st geofix.State) { ch <- st }
}

func waitForPhase(t *testing.T, ch chan geofix.State, phase geofix.Phase) geofix.State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if st.Phase == phase {
				return st
			}
		case <-deadline:
			t.Fatalf("never reached phase %s", phase)
		}
	}
}

func TestAcquireRefinesWideCoarseFix(t *testing.T) {
	locator := &scriptedLocator{steps: []func(context.Context) (geofix.Reading, error){
		reply(geofix.Reading{Latitude: 40.0, Longitude: -3.0, AccuracyM: 800}, nil),
		reply(geofix.Reading{Latitude: 40.01, Longitude: -3.01, AccuracyM: 20}, nil),
	}}
	states, onChange := collectStates()
	acq := geofix.NewAcquirer(locator, nil, nil, fastConfig(), onChange)

	acq.Acquire()

	final := waitForPhase(t, states, geofix.PhaseSucceeded)
	require.NotNil(t, final.Fix)
	require.Equal(t, 20.0, final.Fix.AccuracyM)
	require.Equal(t, 1, final.Attempt)

	calls := locator.callsSnapshot()
	require.Len(t, calls, 2)
	require.False(t, calls[0].HighAccuracy)
	require.NotZero(t, calls[0].MaximumAge)
	require.True(t, calls[1].HighAccuracy)
	require.Zero(t, calls[1].MaximumAge)
}

func TestAcquireExposesCoarseFixWhileRefining(t *testing.T) {
	release := make(chan struct{})
	locator := &scriptedLocator{steps: []func(context.Context) (geofix.Reading, error){
		reply(geofix.Reading{AccuracyM: 500}, nil),
		func(context.Context) (geofix.Reading, error) {
			<-release
			return geofix.Reading{AccuracyM: 10}, nil
		},
	}}
	states, onChange := collectStates()
	acq := geofix.NewAcquirer(locator, nil, nil, fastConfig(), onChange)

	acq.Acquire()

	st := waitForPhase(t, states, geofix.PhaseAcquiring)
	for st.Fix == nil {
		st = waitForPhase(t, states, geofix.PhaseAcquiring)
	}
	require.Equal(t, 500.0, st.Fix.AccuracyM)
	require.NotNil(t, acq.LastFix())

	close(release)
	waitForPhase(t, states, geofix.PhaseSucceeded)
}

func TestAcquireAcceptsAccurateCoarseFixWithoutRefining(t *testing.T) {
	locator := &scriptedLocator{steps: []func(context.Context) (geofix.Reading, error){
		reply(geofix.Reading{AccuracyM: 30}, nil),
	}}
	states, onChange := collectStates()
	acq := geofix.NewAcquirer(locator, nil, nil, fastConfig(), onChange)

	acq.Acquire()

	final := waitForPhase(t, states, geofix.PhaseSucceeded)
	require.Equal(t, 0, final.Attempt)
	require.Equal(t, 1, locator.callCount())
}

func TestAcquireRetriesAfterTimeout(t *testing.T) {
	locator := &scriptedLocator{steps: []func(context.Context) (geofix.Reading, error){
		reply(geofix.Reading{}, geofix.ErrTimeout),
		reply(geofix.Reading{AccuracyM: 40}, nil),
	}}
	states, onChange := collectStates()
	acq := geofix.NewAcquirer(locator, nil, nil, fastConfig(), onChange)

	acq.Acquire()

	final := waitForPhase(t, states, geofix.PhaseSucceeded)
	require.Equal(t, 1, final.Attempt)
	require.Equal(t, 2, locator.callCount())
}

func TestAcquireFailsAfterExhaustedTimeouts(t *testing.T) {
	locator := &scriptedLocator{steps: []func(context.Context) (geofix.Reading, error){
		reply(geofix.Reading{}, geofix.ErrTimeout),
		reply(geofix.Reading{}, geofix.ErrTimeout),
	}}
	states, onChange := collectStates()
	acq := geofix.NewAcquirer(locator, nil, nil, fastConfig(), onChange)

	acq.Acquire()

	final := waitForPhase(t, states, geofix.PhaseFailed)
	require.Equal(t, geofix.KindTimeout, final.Kind)
	require.Equal(t, 2, locator.callCount())
}

func TestAcquireFailsImmediatelyOnPermissionDenied(t *testing.T) {
	locator := &scriptedLocator{steps: []func(context.Context) (geofix.Reading, error){
		reply(geofix.Reading{}, geofix.ErrPermissionDenied),
	}}
	states, onChange := collectStates()
	acq := geofix.NewAcquirer(locator, nil, nil, fastConfig(), onChange)

	acq.Acquire()

	final := waitForPhase(t, states, geofix.PhaseFailed)
	require.Equal(t, geofix.KindPermissionDenied, final.Kind)
	require.Equal(t, 1, locator.callCount())
}

func TestCancelDiscardsInFlightReading(t *testing.T) {
	release := make(chan struct{})
	locator := &scriptedLocator{steps: []func(context.Context) (geofix.Reading, error){
		func(context.Context) (geofix.Reading, error) {
			<-release
			return geofix.Reading{AccuracyM: 10}, nil
		},
	}}
	acq := geofix.NewAcquirer(locator, nil, nil, fastConfig(), nil)

	acq.Acquire()
	acq.Cancel()
	close(release)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, geofix.PhaseIdle, acq.State().Phase)
	require.Nil(t, acq.LastFix())
}

func TestSecondAcquireSupersedesFirst(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	locator := &scriptedLocator{steps: []func(context.Context) (geofix.Reading, error){
		func(context.Context) (geofix.Reading, error) {
			close(started)
			<-release
			return geofix.Reading{Latitude: 1, AccuracyM: 10}, nil
		},
		reply(geofix.Reading{Latitude: 2, AccuracyM: 10}, nil),
	}}
	states, onChange := collectStates()
	acq := geofix.NewAcquirer(locator, nil, nil, fastConfig(), onChange)

	acq.Acquire()
	<-started
	acq.Acquire()

	final := waitForPhase(t, states, geofix.PhaseSucceeded)
	require.Equal(t, 2.0, final.Fix.Latitude)

	// The superseded reading must not overwrite the newer fix.
	close(release)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 2.0, acq.LastFix().Latitude)
}

func TestStateChangesArriveInTransitionOrder(t *testing.T) {
	locator := &scriptedLocator{steps: []func(context.Context) (geofix.Reading, error){
		reply(geofix.Reading{AccuracyM: 800}, nil),
		reply(geofix.Reading{AccuracyM: 20}, nil),
	}}
	states, onChange := collectStates()
	acq := geofix.NewAcquirer(locator, nil, nil, fastConfig(), onChange)

	acq.Acquire()

	var seen []geofix.State
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-states:
			seen = append(seen, st)
		case <-deadline:
			t.Fatal("never reached the succeeded phase")
		}
		if len(seen) > 0 && seen[len(seen)-1].Phase == geofix.PhaseSucceeded {
			break
		}
	}

	// The listener must observe the refine step before the final fix, never
	// a success snapshot followed by a stale acquiring one.
	require.Len(t, seen, 3)
	require.Equal(t, geofix.PhaseAcquiring, seen[0].Phase)
	require.Nil(t, seen[0].Fix)
	require.Equal(t, geofix.PhaseAcquiring, seen[1].Phase)
	require.NotNil(t, seen[1].Fix)
	require.Equal(t, 800.0, seen[1].Fix.AccuracyM)
	require.Equal(t, geofix.PhaseSucceeded, seen[2].Phase)
	require.Equal(t, 20.0, seen[2].Fix.AccuracyM)
}

func TestZoomForAccuracy(t *testing.T) {
	require.Equal(t, geofix.ZoomClosest, geofix.ZoomForAccuracy(10))
	require.Equal(t, geofix.ZoomMedium, geofix.ZoomForAccuracy(75))
	require.Equal(t, geofix.ZoomWide, geofix.ZoomForAccuracy(100))
	require.Equal(t, geofix.ZoomWide, geofix.ZoomForAccuracy(2500))
}
