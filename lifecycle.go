package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle phase of the agent.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Lifecycle claims the allow-listed pins at startup and releases them exactly
// once at shutdown.  Drain hooks registered with OnDrain run before the
// release, so the HTTP server can stop taking requests and let in-flight ones
// finish.
type Lifecycle struct {
	driver       Driver
	reg          *LineRegistry
	polarity     Polarity
	drainTimeout time.Duration
	logger       *slog.Logger
	events       *EventLogger

	state atomic.Int32

	mu          sync.Mutex // guards drainHooks, cancelStart and the move out of Starting
	drainHooks  []func(context.Context) error
	cancelStart context.CancelFunc
	starting    sync.WaitGroup

	releaseOnce sync.Once
	releaseErr  error
}

// NewLifecycle returns a lifecycle in the Starting state.  A drainTimeout of
// zero skips the wait for in-flight requests.
func NewLifecycle(driver Driver, reg *LineRegistry, polarity Polarity, drainTimeout time.Duration, logger *slog.Logger, events *EventLogger) *Lifecycle {
	return &Lifecycle{
		driver:       driver,
		reg:          reg,
		polarity:     polarity,
		drainTimeout: drainTimeout,
		logger:       logger,
		events:       events,
	}
}

// State returns the current phase.
func (l *Lifecycle) State() State { return State(l.state.Load()) }

// Ready reports whether requests may be served.
func (l *Lifecycle) Ready() bool { return l.State() == StateReady }

// OnDrain registers a hook run when draining begins.
func (l *Lifecycle) OnDrain(fn func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drainHooks = append(l.drainHooks, fn)
}

// Start claims every allow-listed pin as an output driven to the "off" level.
// It returns only after all claims have finished.  Any failed claim is fatal:
// the agent stays out of Ready and the caller is expected to shut down.
// Shutdown cancels a Start in progress and waits for it before releasing.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	if s := l.State(); s != StateStarting {
		l.mu.Unlock()
		return fmt.Errorf("start: lifecycle is %s", s)
	}
	if l.cancelStart != nil {
		l.mu.Unlock()
		return errors.New("start: already called")
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancelStart = cancel
	l.starting.Add(1)
	l.mu.Unlock()
	defer l.starting.Done()
	defer cancel()

	ctx, span := startSpan(ctx, "lifecycle.claim", attribute.IntSlice("pins", l.reg.Allowlist()))
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)
	for _, pin := range l.reg.Allowlist() {
		g.Go(func() error {
			if l.State() != StateStarting {
				return fmt.Errorf("claim pin %d: %w", pin, ErrNotReady)
			}
			l.logger.Debug("claiming pin", "pin", pin)
			if err := l.driver.ClaimOutput(gctx, pin, l.polarity.OffLevel()); err != nil {
				return &HardwareError{Op: "claim", Line: pin, Err: err}
			}
			l.events.Log("pin %d claimed as output", pin)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		recordSpanError(span, err)
		return err
	}

	if !l.state.CompareAndSwap(int32(StateStarting), int32(StateReady)) {
		return fmt.Errorf("start: %w (shutdown began during startup)", ErrNotReady)
	}
	l.logger.Info("all pins claimed", "pins", len(l.reg.allowlist))
	return nil
}

// Shutdown moves to Draining, runs the drain hooks with a bounded wait, then
// releases all pins in a single driver call and moves to Terminated.  Later
// calls do nothing but return the first call's error.
func (l *Lifecycle) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	for {
		cur := l.state.Load()
		if cur >= int32(StateDraining) || l.state.CompareAndSwap(cur, int32(StateDraining)) {
			break
		}
	}
	cancelStart := l.cancelStart
	l.mu.Unlock()

	l.releaseOnce.Do(func() {
		if cancelStart != nil {
			cancelStart()
		}
		// No claim may finish after the release.
		l.starting.Wait()

		l.mu.Lock()
		hooks := append([]func(context.Context) error(nil), l.drainHooks...)
		l.mu.Unlock()

		var drainCtx context.Context
		var cancel context.CancelFunc
		if l.drainTimeout > 0 {
			drainCtx, cancel = context.WithTimeout(ctx, l.drainTimeout)
		} else {
			drainCtx, cancel = context.WithCancel(ctx)
			cancel()
		}
		defer cancel()
		for _, hook := range hooks {
			if err := hook(drainCtx); err != nil {
				l.logger.Warn("drain hook failed, releasing anyway", "error", err)
			}
		}

		_, span := startSpan(ctx, "lifecycle.release")
		defer span.End()
		if err := l.driver.Release(ctx); err != nil {
			l.releaseErr = &HardwareError{Op: "release", Err: err}
			recordSpanError(span, l.releaseErr)
			l.logger.Error("release pins", "error", err)
		} else {
			l.events.Log("all pins released")
			l.logger.Info("all pins released")
		}
		l.state.Store(int32(StateTerminated))
	})
	return l.releaseErr
}
