// Package search turns a stream of raw keystrokes into a single, race-free
// search outcome. Each pipeline stage (debounce, commit, resolution) runs on
// its own timer and re-checks a generation counter before acting, so no stage
// can commit effects on behalf of input that has since been superseded.
package search

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/cafescout/internal/discovery/domain"
	"github.com/example/cafescout/internal/discovery/geo"
	"github.com/example/cafescout/internal/notify"
)

// Resolver recomputes the filtered cafe list for a committed term.
type Resolver interface {
	Resolve(term string) []domain.CafeRecord
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(term string) []domain.CafeRecord

func (f ResolverFunc) Resolve(term string) []domain.CafeRecord { return f(term) }

// FixSource exposes the last known geolocation fix, if any.
type FixSource interface {
	LastFix() *domain.GeoFix
}

// OutcomeKind is the terminal result of one logical search.
type OutcomeKind string

const (
	OutcomeIdle      OutcomeKind = "idle"
	OutcomeActivated OutcomeKind = "activated"
	OutcomeNotFound  OutcomeKind = "not_found"
)

// Outcome is emitted at most once per logical search.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	Term     string      `json:"term,omitempty"`
	CafeID   uuid.UUID   `json:"cafe_id,omitempty"`
	CafeName string      `json:"cafe_name,omitempty"`
	Matches  int         `json:"matches"`
}

// Config carries the pipeline tuning constants.
type Config struct {
	Debounce     time.Duration
	CommitDelay  time.Duration
	ResolveDelay time.Duration
	MinLength    int
	FocusZoom    int
	FlyDuration  time.Duration
}

// DefaultConfig returns the production tuning values.
func DefaultConfig() Config {
	return Config{
		Debounce:     800 * time.Millisecond,
		CommitDelay:  200 * time.Millisecond,
		ResolveDelay: 400 * time.Millisecond,
		MinLength:    3,
		FocusZoom:    16,
		FlyDuration:  1500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.CommitDelay <= 0 {
		c.CommitDelay = d.CommitDelay
	}
	if c.ResolveDelay <= 0 {
		c.ResolveDelay = d.ResolveDelay
	}
	if c.MinLength <= 0 {
		c.MinLength = d.MinLength
	}
	if c.FocusZoom <= 0 {
		c.FocusZoom = d.FocusZoom
	}
	if c.FlyDuration <= 0 {
		c.FlyDuration = d.FlyDuration
	}
	return c
}

// Coordinator owns one search session. All "last processed" markers live on
// this struct instead of free-floating cells, and the three stage timers sit
// in one table so Close can deterministically clear them.
type Coordinator struct {
	cfg      Config
	resolver Resolver
	fixes    FixSource
	viewport domain.ViewportController
	sink     notify.Sink
	logger   *zap.Logger

	mu         sync.Mutex
	gen        uint64
	timers     [3]*time.Timer
	pending    string // text waiting in the debounce stage
	committed  string // active filter term after the commit stage
	lastKey    string // last announced (term, count) pair
	processing bool
	outcome    Outcome
	onOutcome  func(Outcome)
	closed     bool

	events      []func()
	dispatching bool
}

const (
	stageDebounce = iota
	stageCommit
	stageResolve
)

// NewCoordinator wires a coordinator. viewport, sink and onOutcome may be nil.
func NewCoordinator(resolver Resolver, fixes FixSource, viewport domain.ViewportController, sink notify.Sink, logger *zap.Logger, cfg Config, onOutcome func(Outcome)) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:       cfg.withDefaults(),
		resolver:  resolver,
		fixes:     fixes,
		viewport:  viewport,
		sink:      sink,
		logger:    logger,
		outcome:   Outcome{Kind: OutcomeIdle},
		onOutcome: onOutcome,
	}
}

// Processing reports whether a search cycle is currently in flight.
func (c *Coordinator) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processing
}

// LastOutcome returns the most recent emitted outcome.
func (c *Coordinator) LastOutcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// OnTextChanged feeds one keystroke's worth of input into the pipeline.
// Every pending stage timer is invalidated; only input that survives the
// debounce quiet period proceeds.
func (c *Coordinator) OnTextChanged(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.gen++
	c.stopTimersLocked()

	if text == "" {
		// Clearing resets every marker immediately, without debounce, so a
		// repeated identical search later is treated as fresh.
		c.pending = ""
		c.committed = ""
		c.lastKey = ""
		c.processing = false
		c.emitLocked(Outcome{Kind: OutcomeIdle})
		return
	}

	if utf8.RuneCountInString(text) < c.cfg.MinLength {
		c.pending = text
		c.processing = false
		return
	}

	c.pending = text
	c.processing = true
	token := c.gen
	c.timers[stageDebounce] = time.AfterFunc(c.cfg.Debounce, func() {
		c.commit(token, text)
	})
}

// commit applies the debounced value as the active filter term after a short
// extra delay that absorbs edit bursts pausing just under the debounce.
func (c *Coordinator) commit(token uint64, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.gen || c.closed {
		return
	}
	c.timers[stageCommit] = time.AfterFunc(c.cfg.CommitDelay, func() {
		c.applyTerm(token, text)
	})
}

func (c *Coordinator) applyTerm(token uint64, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.gen || c.closed {
		return
	}
	c.committed = text
	c.timers[stageResolve] = time.AfterFunc(c.cfg.ResolveDelay, func() {
		c.resolve(token, text)
	})
}

// resolve finalizes the outcome, guarded twice: the generation must still be
// current, and the exact (term, result count) pair must not have been
// announced before.
func (c *Coordinator) resolve(token uint64, text string) {
	c.mu.Lock()
	if token != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	resolver := c.resolver
	c.mu.Unlock()

	results := resolver.Resolve(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.gen || c.closed {
		return
	}
	c.processing = false

	key := fmt.Sprintf("%s|%d", text, len(results))
	if key == c.lastKey {
		duplicatesSuppressed.Inc()
		return
	}
	c.lastKey = key

	if len(results) == 0 {
		searchOutcomes.WithLabelValues("not_found").Inc()
		c.emitLocked(Outcome{Kind: OutcomeNotFound, Term: text})
		c.publishLocked(domain.Notification{
			Kind:      domain.NotifyError,
			Text:      fmt.Sprintf("No se encontraron cafeterías para %q", text),
			IconHint:  "search-off",
			Duration:  4 * time.Second,
			DedupeKey: key,
		})
		return
	}

	target := results[0]
	if c.fixes != nil && c.fixes.LastFix() != nil {
		if closest, ok := geo.Closest(results); ok {
			target = closest
		}
	}

	searchOutcomes.WithLabelValues("activated").Inc()
	c.emitLocked(Outcome{
		Kind:     OutcomeActivated,
		Term:     text,
		CafeID:   target.ID,
		CafeName: target.Name,
		Matches:  len(results),
	})

	if c.viewport != nil {
		c.viewport.FlyTo(target.Point(), c.cfg.FocusZoom, c.cfg.FlyDuration)
	}

	c.publishLocked(domain.Notification{
		Kind:      domain.NotifySuccess,
		Text:      notificationText(target.Name, len(results)),
		IconHint:  "map-pin",
		Duration:  4 * time.Second,
		DedupeKey: key,
	})
}

func notificationText(name string, matches int) string {
	if matches == 1 {
		return fmt.Sprintf("Cafetería encontrada: %s", name)
	}
	return fmt.Sprintf("Mostrando la más cercana de %d cafeterías: %s", matches, name)
}

func (c *Coordinator) emitLocked(out Outcome) {
	c.outcome = out
	if c.onOutcome != nil {
		c.enqueueLocked(func() { c.onOutcome(out) })
	}
}

func (c *Coordinator) publishLocked(n domain.Notification) {
	if c.sink == nil {
		return
	}
	c.enqueueLocked(func() {
		if err := c.sink.Publish(context.Background(), n); err != nil {
			c.logger.Warn("notification publish failed", zap.Error(err))
		}
	})
}

// enqueueLocked appends an event for the drainer goroutine. A single drainer
// delivers events in the order they were queued, outside the lock, so an
// outcome listener never observes two transitions swapped.
func (c *Coordinator) enqueueLocked(fn func()) {
	c.events = append(c.events, fn)
	if c.dispatching {
		return
	}
	c.dispatching = true
	go c.drainEvents()
}

func (c *Coordinator) drainEvents() {
	for {
		c.mu.Lock()
		if len(c.events) == 0 {
			c.dispatching = false
			c.mu.Unlock()
			return
		}
		fn := c.events[0]
		c.events = c.events[1:]
		c.mu.Unlock()
		fn()
	}
}

func (c *Coordinator) stopTimersLocked() {
	for i, t := range c.timers {
		if t != nil {
			t.Stop()
			c.timers[i] = nil
		}
	}
}

// Close tears the coordinator down, clearing every pending timer. It is safe
// to call more than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.gen++
	c.stopTimersLocked()
	c.processing = false
}
