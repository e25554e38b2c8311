package search_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/cafescout/internal/discovery/domain"
	"github.com/example/cafescout/internal/discovery/search"
	"github.com/example/cafescout/internal/notify"
)

type countingResolver struct {
	mu      sync.Mutex
	calls   []string
	results []domain.CafeRecord
}

func (r *countingResolver) Resolve(term string) []domain.CafeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, term)
	return r.results
}

func (r *countingResolver) termsSeen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type staticFix struct{ fix *domain.GeoFix }

func (s staticFix) LastFix() *domain.GeoFix { return s.fix }

func fastSearchConfig() search.Config {
	return search.Config{
		Debounce:     20 * time.Millisecond,
		CommitDelay:  5 * time.Millisecond,
		ResolveDelay: 5 * time.Millisecond,
		MinLength:    3,
		FocusZoom:    16,
		FlyDuration:  time.Millisecond,
	}
}

func awaitOutcome(t *testing.T, ch chan search.Outcome, kind search.OutcomeKind) search.Outcome {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case out := <-ch:
			if out.Kind == kind {
				return out
			}
		case <-deadline:
			t.Fatalf("never observed outcome %s", kind)
		}
	}
}

func cafe(name string, distanceKm float64) domain.CafeRecord {
	return domain.CafeRecord{ID: uuid.New(), Name: name, DistanceKm: &distanceKm}
}

func TestTypingBurstResolvesOnlyFinalText(t *testing.T) {
	resolver := &countingResolver{results: []domain.CafeRecord{cafe("Café Olé", 0.5)}}
	outcomes := make(chan search.Outcome, 8)
	coord := search.NewCoordinator(resolver, nil, nil, nil, nil, fastSearchConfig(),
		func(out search.Outcome) { outcomes <- out })
	defer coord.Close()

	for _, text := range []string{"c", "ca", "caf", "café", "café o"} {
		coord.OnTextChanged(text)
		time.Sleep(2 * time.Millisecond)
	}

	out := awaitOutcome(t, outcomes, search.OutcomeActivated)
	require.Equal(t, "café o", out.Term)
	require.Equal(t, []string{"café o"}, resolver.termsSeen())
	require.False(t, coord.Processing())
}

func TestShortInputNeverStartsACycle(t *testing.T) {
	resolver := &countingResolver{}
	coord := search.NewCoordinator(resolver, nil, nil, nil, nil, fastSearchConfig(), nil)
	defer coord.Close()

	coord.OnTextChanged("ca")
	require.False(t, coord.Processing())

	time.Sleep(60 * time.Millisecond)
	require.Empty(t, resolver.termsSeen())
	require.Equal(t, search.OutcomeIdle, coord.LastOutcome().Kind)
}

func TestClearingTextResetsImmediately(t *testing.T) {
	resolver := &countingResolver{results: []domain.CafeRecord{cafe("Tostadero", 1.0)}}
	outcomes := make(chan search.Outcome, 8)
	coord := search.NewCoordinator(resolver, nil, nil, nil, nil, fastSearchConfig(),
		func(out search.Outcome) { outcomes <- out })
	defer coord.Close()

	coord.OnTextChanged("tostadero")
	awaitOutcome(t, outcomes, search.OutcomeActivated)

	coord.OnTextChanged("")
	out := awaitOutcome(t, outcomes, search.OutcomeIdle)
	require.Equal(t, search.OutcomeIdle, out.Kind)
	require.False(t, coord.Processing())

	// The same search afterwards is treated as fresh, not a duplicate.
	coord.OnTextChanged("tostadero")
	awaitOutcome(t, outcomes, search.OutcomeActivated)
	require.Len(t, resolver.termsSeen(), 2)
}

func TestDuplicateTermAndCountIsAnnouncedOnce(t *testing.T) {
	resolver := &countingResolver{results: []domain.CafeRecord{cafe("Café Olé", 0.5)}}
	sink := notify.NewMemorySink()
	outcomes := make(chan search.Outcome, 8)
	coord := search.NewCoordinator(resolver, nil, nil, sink, nil, fastSearchConfig(),
		func(out search.Outcome) { outcomes <- out })
	defer coord.Close()

	coord.OnTextChanged("café")
	awaitOutcome(t, outcomes, search.OutcomeActivated)

	coord.OnTextChanged("café")
	time.Sleep(80 * time.Millisecond)

	require.Len(t, resolver.termsSeen(), 2)
	require.Len(t, sink.Items(), 1)
	require.False(t, coord.Processing())
}

func TestNotFoundEmitsErrorNotification(t *testing.T) {
	resolver := &countingResolver{}
	sink := notify.NewMemorySink()
	outcomes := make(chan search.Outcome, 8)
	coord := search.NewCoordinator(resolver, nil, nil, sink, nil, fastSearchConfig(),
		func(out search.Outcome) { outcomes <- out })
	defer coord.Close()

	coord.OnTextChanged("nowhere")
	out := awaitOutcome(t, outcomes, search.OutcomeNotFound)
	require.Equal(t, "nowhere", out.Term)

	require.Eventually(t, func() bool { return len(sink.Items()) == 1 }, time.Second, 5*time.Millisecond)
	n := sink.Items()[0]
	require.Equal(t, domain.NotifyError, n.Kind)
	require.Contains(t, n.Text, "nowhere")
}

func TestActivationTargetsClosestMatchWhenFixKnown(t *testing.T) {
	far := cafe("far", 9.0)
	near := cafe("near", 0.3)
	resolver := &countingResolver{results: []domain.CafeRecord{far, near}}
	fix := &domain.GeoFix{Latitude: 40, Longitude: -3}
	camera := &search.CameraRecorder{}
	sink := notify.NewMemorySink()
	outcomes := make(chan search.Outcome, 8)
	coord := search.NewCoordinator(resolver, staticFix{fix}, camera, sink, nil, fastSearchConfig(),
		func(out search.Outcome) { outcomes <- out })
	defer coord.Close()

	coord.OnTextChanged("cafetería")
	out := awaitOutcome(t, outcomes, search.OutcomeActivated)
	require.Equal(t, near.ID, out.CafeID)
	require.Equal(t, 2, out.Matches)

	intent := camera.Last()
	require.NotNil(t, intent)
	require.Equal(t, 16, intent.Zoom)

	require.Eventually(t, func() bool { return len(sink.Items()) == 1 }, time.Second, 5*time.Millisecond)
	require.Contains(t, sink.Items()[0].Text, "near")
	require.Equal(t, domain.NotifySuccess, sink.Items()[0].Kind)
}

func TestActivationWithoutFixTakesFirstResult(t *testing.T) {
	far := cafe("far", 9.0)
	near := cafe("near", 0.3)
	resolver := &countingResolver{results: []domain.CafeRecord{far, near}}
	outcomes := make(chan search.Outcome, 8)
	coord := search.NewCoordinator(resolver, staticFix{nil}, nil, nil, nil, fastSearchConfig(),
		func(out search.Outcome) { outcomes <- out })
	defer coord.Close()

	coord.OnTextChanged("cafetería")
	out := awaitOutcome(t, outcomes, search.OutcomeActivated)
	require.Equal(t, far.ID, out.CafeID)
}

func TestOutcomeCallbacksArriveInEmissionOrder(t *testing.T) {
	resolver := &countingResolver{results: []domain.CafeRecord{cafe("Café Olé", 0.5)}}
	outcomes := make(chan search.Outcome, 8)
	coord := search.NewCoordinator(resolver, nil, nil, nil, nil, fastSearchConfig(),
		func(out search.Outcome) { outcomes <- out })
	defer coord.Close()

	coord.OnTextChanged("café")

	// Wait for the activation to be recorded, then clear before the listener
	// has necessarily been called. The callback for the activation must still
	// land before the one for the reset.
	require.Eventually(t, func() bool {
		return coord.LastOutcome().Kind == search.OutcomeActivated
	}, 2*time.Second, time.Millisecond)
	coord.OnTextChanged("")

	first := awaitAnyOutcome(t, outcomes)
	require.Equal(t, search.OutcomeActivated, first.Kind)
	second := awaitAnyOutcome(t, outcomes)
	require.Equal(t, search.OutcomeIdle, second.Kind)
}

func awaitAnyOutcome(t *testing.T, ch chan search.Outcome) search.Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome delivered")
		return search.Outcome{}
	}
}

func TestCloseStopsPendingStages(t *testing.T) {
	resolver := &countingResolver{results: []domain.CafeRecord{cafe("x", 1)}}
	coord := search.NewCoordinator(resolver, nil, nil, nil, nil, fastSearchConfig(), nil)

	coord.OnTextChanged("cafetería")
	coord.Close()

	time.Sleep(80 * time.Millisecond)
	require.Empty(t, resolver.termsSeen())
	require.False(t, coord.Processing())
}
