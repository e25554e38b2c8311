// Package geofix acquires the user's coordinates from a device locator with
// a progressive-accuracy strategy: a fast coarse reading first, refined by a
// high-accuracy request when the coarse radius is too wide. Every delayed
// continuation is guarded by an acquisition token so a cancelled or
// superseded attempt can never resurrect stale state.
package geofix

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/cafescout/internal/discovery/domain"
)

// Locator-level errors. Implementations must return one of these (or wrap
// them) so the acquirer can pick the retry path.
var (
	ErrPermissionDenied    = errors.New("geolocation permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("position request timed out")
)

// ErrorKind classifies a failed acquisition for display.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindPermissionDenied    ErrorKind = "permission_denied"
	KindPositionUnavailable ErrorKind = "position_unavailable"
	KindTimeout             ErrorKind = "timeout"
	KindUnknown             ErrorKind = "unknown"
)

// Message returns the fixed user-facing text for the kind.
func (k ErrorKind) Message() string {
	switch k {
	case KindPermissionDenied:
		return "No pudimos acceder a tu ubicación. Revisa los permisos de ubicación."
	case KindPositionUnavailable:
		return "Tu ubicación no está disponible en este momento. Intenta de nuevo."
	case KindTimeout:
		return "La señal de ubicación es débil. Lo intentamos varias veces sin éxito."
	default:
		return "No pudimos obtener tu ubicación. Intenta de nuevo."
	}
}

// KindFromErr maps a locator error onto its display classification.
func KindFromErr(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrPositionUnavailable):
		return KindPositionUnavailable
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindUnknown
	}
}

// Reading is a raw position report from the device.
type Reading struct {
	Latitude  float64
	Longitude float64
	AccuracyM float64
}

// PositionOptions mirrors the device geolocation request contract.
type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// Locator is the device geolocation capability.
type Locator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Reading, error)
}

// Phase is the coarse acquisition lifecycle.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseAcquiring Phase = "acquiring"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// State is the externally observable acquisition state. Fix may be non-nil
// while still acquiring: a coarse fix is reported immediately so the caller
// has something to render while the refinement runs.
type State struct {
	Phase   Phase
	Attempt int
	Fix     *domain.GeoFix
	Kind    ErrorKind
}

// Config carries the product tuning constants. The exact values shape UX
// feel, not correctness, so they stay configurable.
type Config struct {
	CoarseTimeout time.Duration
	FineTimeout   time.Duration
	CacheMaxAge   time.Duration
	AccuracyGoalM float64
	RefinePause   time.Duration
	RetryPause    time.Duration
	MaxAttempts   int
}

// DefaultConfig returns the production tuning values.
func DefaultConfig() Config {
	return Config{
		CoarseTimeout: 3 * time.Second,
		FineTimeout:   10 * time.Second,
		CacheMaxAge:   60 * time.Second,
		AccuracyGoalM: 100,
		RefinePause:   1500 * time.Millisecond,
		RetryPause:    time.Second,
		MaxAttempts:   2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CoarseTimeout <= 0 {
		c.CoarseTimeout = d.CoarseTimeout
	}
	if c.FineTimeout <= 0 {
		c.FineTimeout = d.FineTimeout
	}
	if c.CacheMaxAge <= 0 {
		c.CacheMaxAge = d.CacheMaxAge
	}
	if c.AccuracyGoalM <= 0 {
		c.AccuracyGoalM = d.AccuracyGoalM
	}
	if c.RefinePause <= 0 {
		c.RefinePause = d.RefinePause
	}
	if c.RetryPause <= 0 {
		c.RetryPause = d.RetryPause
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	return c
}

// Acquirer owns the acquisition state machine. At most one acquisition is in
// flight; starting a new one invalidates every timer and device callback of
// the previous one.
type Acquirer struct {
	locator  Locator
	clock    domain.Clock
	logger   *zap.Logger
	cfg      Config
	onChange func(State)

	mu      sync.Mutex
	token   uint64
	cancel  context.CancelFunc
	pending *time.Timer
	state   State
	lastFix *domain.GeoFix

	queue       []State
	dispatching bool
}

// NewAcquirer constructs an acquirer. onChange may be nil; when set it is
// invoked, outside the internal lock, after every state transition.
func NewAcquirer(locator Locator, clock domain.Clock, logger *zap.Logger, cfg Config, onChange func(State)) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Acquirer{
		locator:  locator,
		clock:    clock,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		onChange: onChange,
		state:    State{Phase: PhaseIdle},
	}
}

// State returns a snapshot of the current acquisition state.
func (a *Acquirer) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// LastFix returns the most recent fix, coarse or final.
func (a *Acquirer) LastFix() *domain.GeoFix {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastFix
}

// Acquire starts a fresh acquisition, superseding any in-flight attempt.
func (a *Acquirer) Acquire() {
	a.mu.Lock()
	token := a.invalidateLocked()
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.state = State{Phase: PhaseAcquiring, Attempt: 0}
	a.notifyLocked()

	go a.runAttempt(ctx, token, 0)
	a.mu.Unlock()
}

// Cancel stops any in-flight attempt and returns to Idle. No timer or device
// callback started before the call may mutate state afterwards.
func (a *Acquirer) Cancel() {
	a.mu.Lock()
	a.invalidateLocked()
	a.state = State{Phase: PhaseIdle}
	a.notifyLocked()
	a.mu.Unlock()
}

// invalidateLocked advances the token, cancels the locator context and stops
// the pending pause timer. It returns the new token.
func (a *Acquirer) invalidateLocked() uint64 {
	a.token++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.pending != nil {
		a.pending.Stop()
		a.pending = nil
	}
	return a.token
}

// notifyLocked enqueues a snapshot taken under the lock. A single drainer
// goroutine delivers snapshots in transition order, outside the lock, so
// listeners may call back into the acquirer and never observe two
// transitions swapped.
func (a *Acquirer) notifyLocked() {
	if a.onChange == nil {
		return
	}
	a.queue = append(a.queue, a.state)
	if a.dispatching {
		return
	}
	a.dispatching = true
	go a.drain()
}

func (a *Acquirer) drain() {
	for {
		a.mu.Lock()
		if len(a.queue) == 0 {
			a.dispatching = false
			a.mu.Unlock()
			return
		}
		snapshot := a.queue[0]
		a.queue = a.queue[1:]
		a.mu.Unlock()
		a.onChange(snapshot)
	}
}

func (a *Acquirer) options(attempt int) PositionOptions {
	if attempt == 0 {
		return PositionOptions{Timeout: a.cfg.CoarseTimeout, MaximumAge: a.cfg.CacheMaxAge}
	}
	return PositionOptions{HighAccuracy: true, Timeout: a.cfg.FineTimeout}
}

func (a *Acquirer) runAttempt(ctx context.Context, token uint64, attempt int) {
	reading, err := a.locator.CurrentPosition(ctx, a.options(attempt))

	a.mu.Lock()
	defer a.mu.Unlock()
	if token != a.token {
		return // superseded or cancelled while the device call was in flight
	}

	if err != nil {
		a.handleErrorLocked(ctx, token, attempt, err)
		return
	}

	fix := &domain.GeoFix{
		Latitude:   reading.Latitude,
		Longitude:  reading.Longitude,
		AccuracyM:  reading.AccuracyM,
		AcquiredAt: a.clock.Now(),
	}
	a.lastFix = fix
	acquisitionsTotal.WithLabelValues("fix").Inc()

	if attempt == 0 && reading.AccuracyM > a.cfg.AccuracyGoalM && a.cfg.MaxAttempts > 1 {
		// Coarse fix is good enough to render but not to finalize: expose it
		// as current and schedule the high-accuracy pass.
		a.state = State{Phase: PhaseAcquiring, Attempt: 1, Fix: fix}
		a.notifyLocked()
		a.scheduleLocked(ctx, token, 1, a.cfg.RefinePause)
		return
	}

	a.state = State{Phase: PhaseSucceeded, Attempt: attempt, Fix: fix}
	a.notifyLocked()
	acquisitionsTotal.WithLabelValues("succeeded").Inc()
}

func (a *Acquirer) handleErrorLocked(ctx context.Context, token uint64, attempt int, err error) {
	kind := KindFromErr(err)
	if kind == KindTimeout && attempt+1 < a.cfg.MaxAttempts {
		a.logger.Debug("position request timed out, retrying",
			zap.Int("attempt", attempt))
		a.state = State{Phase: PhaseAcquiring, Attempt: attempt + 1, Fix: a.state.Fix}
		a.notifyLocked()
		a.scheduleLocked(ctx, token, attempt+1, a.cfg.RetryPause)
		return
	}

	a.logger.Warn("acquisition failed", zap.String("kind", string(kind)), zap.Error(err))
	a.state = State{Phase: PhaseFailed, Attempt: attempt, Kind: kind}
	a.notifyLocked()
	acquisitionsTotal.WithLabelValues("failed_" + string(kind)).Inc()
}

// scheduleLocked arms the single pause timer. The token is re-checked when
// the timer fires because Cancel/Acquire may have raced with it.
func (a *Acquirer) scheduleLocked(ctx context.Context, token uint64, attempt int, pause time.Duration) {
	a.pending = time.AfterFunc(pause, func() {
		a.mu.Lock()
		stale := token != a.token
		a.mu.Unlock()
		if stale {
			return
		}
		a.runAttempt(ctx, token, attempt)
	})
}

// Viewport zoom levels chosen by fix accuracy.
const (
	ZoomClosest = 17
	ZoomMedium  = 15
	ZoomWide    = 13
)

// ZoomForAccuracy picks the recenter zoom for a successful fix.
func ZoomForAccuracy(accuracyM float64) int {
	switch {
	case accuracyM < 50:
		return ZoomClosest
	case accuracyM < 100:
		return ZoomMedium
	default:
		return ZoomWide
	}
}
