package main

import (
	"context"
	"fmt"
	"sync"
)

// MemoryDriver keeps pin levels in memory.  It lets the agent run on a
// machine without GPIO hardware and backs the tests.
type MemoryDriver struct {
	mu       sync.Mutex
	levels   map[int]bool
	releases int
}

// NewMemoryDriver returns a driver with no claimed pins.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{levels: make(map[int]bool)}
}

func (d *MemoryDriver) ClaimOutput(ctx context.Context, pin int, level bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.levels[pin]; ok {
		return fmt.Errorf("pin %d is already claimed", pin)
	}
	d.levels[pin] = level
	return nil
}

func (d *MemoryDriver) Read(ctx context.Context, pin int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	level, ok := d.levels[pin]
	if !ok {
		return false, fmt.Errorf("pin %d is not claimed", pin)
	}
	return level, nil
}

func (d *MemoryDriver) Write(ctx context.Context, pin int, level bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.levels[pin]; !ok {
		return fmt.Errorf("pin %d is not claimed", pin)
	}
	d.levels[pin] = level
	return nil
}

func (d *MemoryDriver) Release(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.levels = make(map[int]bool)
	d.releases++
	return nil
}

// Claimed reports whether pin is currently claimed.
func (d *MemoryDriver) Claimed(pin int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.levels[pin]
	return ok
}

// Releases counts Release calls.
func (d *MemoryDriver) Releases() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releases
}
