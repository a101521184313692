//go:build linux && (arm || arm64) && !disablegpio

// This file provides the Raspberry Pi implementation of the HAL using the
// periph.io library.  When cross-compiling for other platforms or when the
// build tag "disablegpio" is specified, hal_stub.go is used instead.

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	// Use the new periph module layout.  See https://periph.io/news/2020/a_new_start/
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// periphDriver drives header pins through periph.io.  periph names lines by
// BCM number, so the physical pin is translated back through the registry's
// gpio map before lookup.
type periphDriver struct {
	reg *LineRegistry

	mu      sync.Mutex
	claimed map[int]gpio.PinIO
}

// newPeriphDriver initialises periph host state.  Returning an error here
// prevents the agent from starting.
func newPeriphDriver(reg *LineRegistry) (Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &periphDriver{reg: reg, claimed: make(map[int]gpio.PinIO)}, nil
}

func (d *periphDriver) lookup(pin int) (gpio.PinIO, error) {
	bcm, ok := d.reg.Logical(pin)
	if !ok {
		return nil, fmt.Errorf("pin %d has no entry in the gpio map", pin)
	}
	name := fmt.Sprintf("GPIO%d", bcm)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("pin %d (%s) not found in hardware", pin, name)
	}
	return p, nil
}

func (d *periphDriver) pin(pin int) (gpio.PinIO, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.claimed[pin]
	if !ok {
		return nil, fmt.Errorf("pin %d is not claimed", pin)
	}
	return p, nil
}

func (d *periphDriver) ClaimOutput(ctx context.Context, pin int, level bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.claimed[pin]; ok {
		return fmt.Errorf("pin %d is already claimed", pin)
	}
	if err := p.Out(gpio.Level(level)); err != nil {
		return fmt.Errorf("set %s to output: %w", p.Name(), err)
	}
	d.claimed[pin] = p
	return nil
}

// Read returns the output latch level; bcm283x reports it for output pins, so
// the pin is not switched to input.
func (d *periphDriver) Read(ctx context.Context, pin int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := d.pin(pin)
	if err != nil {
		return false, err
	}
	return p.Read() == gpio.High, nil
}

func (d *periphDriver) Write(ctx context.Context, pin int, level bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := d.pin(pin)
	if err != nil {
		return err
	}
	return p.Out(gpio.Level(level))
}

// Release returns every claimed pin to a floating input, the closest periph
// equivalent of unexporting it.
func (d *periphDriver) Release(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for pin, p := range d.claimed {
		if err := p.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt pin %d: %w", pin, err))
		}
		if err := p.In(gpio.Float, gpio.NoEdge); err != nil {
			errs = append(errs, fmt.Errorf("release pin %d: %w", pin, err))
		}
		delete(d.claimed, pin)
	}
	return errors.Join(errs...)
}
