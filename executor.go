package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Executor applies an action to every pin of a selection.  Each pin gets its
// own goroutine; the batch is joined by counting completions for this call
// only, so concurrent requests never observe each other.
type Executor struct {
	driver   Driver
	polarity Polarity
	timeout  time.Duration // zero waits for the driver indefinitely
	logger   *slog.Logger
}

// NewExecutor returns an executor issuing operations through driver.
func NewExecutor(driver Driver, polarity Polarity, timeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{driver: driver, polarity: polarity, timeout: timeout, logger: logger}
}

type lineOutcome struct {
	index  int
	result LineResult
}

// Execute runs action on every pin in sel and returns one result per pin in
// selection order.  A failing pin does not affect the others; its error is
// carried in its LineResult.  The returned error is non-nil only when the
// request itself is malformed, in which case no hardware is touched.
func (e *Executor) Execute(ctx context.Context, sel Selection, action Action) (BatchResult, error) {
	if len(sel) == 0 {
		return nil, ErrEmptySelection
	}
	if !action.valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidAddressing, action)
	}

	ctx, span := startSpan(ctx, "executor.batch",
		attribute.String("action", string(action)),
		attribute.IntSlice("pins", sel))
	defer span.End()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// Buffered so line goroutines never block, even after a timeout has
	// ended the wait below.
	done := make(chan lineOutcome, len(sel))
	for i, pin := range sel {
		go func() {
			done <- lineOutcome{index: i, result: e.runLine(ctx, pin, action)}
		}()
	}

	results := make(BatchResult, len(sel))
	reported := make([]bool, len(sel))
	for remaining := len(sel); remaining > 0; {
		select {
		case out := <-done:
			if reported[out.index] {
				continue
			}
			results[out.index] = out.result
			reported[out.index] = true
			remaining--
		case <-ctx.Done():
			cause := ctx.Err()
			if errors.Is(cause, context.DeadlineExceeded) {
				cause = ErrTimeout
			}
			for i, ok := range reported {
				if !ok {
					results[i] = LineResult{Pin: sel[i], Err: &HardwareError{Op: string(action), Line: sel[i], Err: cause}}
				}
			}
			remaining = 0
		}
	}

	if err := results.Err(); err != nil {
		recordSpanError(span, err)
		e.logger.Warn("batch finished with errors", "action", action, "pins", len(sel), "error", err)
	}
	return results, nil
}

// runLine performs the operation chain for one pin.  A toggle reads first and
// only writes once the read has completed.
func (e *Executor) runLine(ctx context.Context, pin int, action Action) (res LineResult) {
	ctx, span := startSpan(ctx, "executor.line",
		attribute.Int("pin", pin),
		attribute.String("action", string(action)))
	defer span.End()

	res.Pin = pin
	defer func() {
		if r := recover(); r != nil {
			res = LineResult{Pin: pin, Err: &HardwareError{Op: string(action), Line: pin, Err: fmt.Errorf("driver panic: %v", r)}}
		}
		if res.Err != nil {
			recordSpanError(span, res.Err)
		}
	}()

	switch action {
	case ActionStatus:
		res.State, res.Err = e.read(ctx, pin)
	case ActionOn:
		res.State = e.polarity.OnLevel()
		res.Err = e.write(ctx, pin, res.State)
	case ActionOff:
		res.State = e.polarity.OffLevel()
		res.Err = e.write(ctx, pin, res.State)
	case ActionToggle:
		current, err := e.read(ctx, pin)
		if err != nil {
			res.Err = err
			break
		}
		res.State = !current
		res.Err = e.write(ctx, pin, res.State)
	}
	if res.Err != nil {
		res.State = false
	}
	return res
}

func (e *Executor) read(ctx context.Context, pin int) (bool, error) {
	level, err := e.driver.Read(ctx, pin)
	if err != nil {
		return false, &HardwareError{Op: "read", Line: pin, Err: err}
	}
	return level, nil
}

func (e *Executor) write(ctx context.Context, pin int, level bool) error {
	if err := e.driver.Write(ctx, pin, level); err != nil {
		return &HardwareError{Op: "write", Line: pin, Err: err}
	}
	return nil
}
