package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var testPins = []int{18, 3, 22, 16}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.DiscardHandler)
}

func testRegistry(t *testing.T) *LineRegistry {
	t.Helper()
	reg, err := NewLineRegistry(testPins, defaultGPIOMap)
	require.NoError(t, err)
	return reg
}

type driverCall struct {
	Op    string
	Pin   int
	Level bool
}

// scriptedDriver is a Driver whose operations can be held open per pin and
// released in any order, made to fail, or made to panic.
type scriptedDriver struct {
	mu      sync.Mutex
	levels  map[int]bool
	gates   map[int]chan struct{}
	fail    map[string]error // keyed by "op:pin"
	panics  map[int]bool
	calls   []driverCall
	started chan int
}

func newScriptedDriver(levels map[int]bool) *scriptedDriver {
	if levels == nil {
		levels = make(map[int]bool)
	}
	return &scriptedDriver{
		levels:  levels,
		gates:   make(map[int]chan struct{}),
		fail:    make(map[string]error),
		panics:  make(map[int]bool),
		started: make(chan int, 64),
	}
}

// hold makes every operation on pin block until the returned func is called.
func (d *scriptedDriver) hold(pin int) func() {
	ch := make(chan struct{})
	d.mu.Lock()
	d.gates[pin] = ch
	d.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (d *scriptedDriver) failOn(op string, pin int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[fmt.Sprintf("%s:%d", op, pin)] = err
}

func (d *scriptedDriver) enter(op string, pin int, level bool) error {
	d.mu.Lock()
	d.calls = append(d.calls, driverCall{Op: op, Pin: pin, Level: level})
	gate := d.gates[pin]
	err := d.fail[fmt.Sprintf("%s:%d", op, pin)]
	panics := d.panics[pin]
	d.mu.Unlock()

	d.started <- pin
	if gate != nil {
		<-gate
	}
	if panics {
		panic("bus fault")
	}
	return err
}

func (d *scriptedDriver) ClaimOutput(_ context.Context, pin int, level bool) error {
	if err := d.enter("claim", pin, level); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.levels[pin] = level
	return nil
}

func (d *scriptedDriver) Read(_ context.Context, pin int) (bool, error) {
	if err := d.enter("read", pin, false); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.levels[pin], nil
}

func (d *scriptedDriver) Write(_ context.Context, pin int, level bool) error {
	if err := d.enter("write", pin, level); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.levels[pin] = level
	return nil
}

func (d *scriptedDriver) Release(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, driverCall{Op: "release"})
	return nil
}

func (d *scriptedDriver) callsFor(op string) []driverCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []driverCall
	for _, c := range d.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (d *scriptedDriver) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}
