package main

// This file defines the hardware abstraction layer (HAL) for the output pins.
// The periph.io implementation lives in hal_rpi.go and is only compiled for
// Linux on ARM; every other build gets the stub in hal_stub.go.  The memory
// driver in driver_memory.go works everywhere and is what tests and desktop
// development use.

import (
	"context"
	"fmt"
)

// Driver names accepted in the configuration.
const (
	DriverPeriph = "periph"
	DriverMemory = "memory"
)

// Driver performs the raw pin operations.  Levels are signal levels (true =
// high); the agent's on/off polarity is applied by the caller.  Pins are
// physical header numbers.  Calls for different pins may run concurrently.
type Driver interface {
	// ClaimOutput configures a pin as an output driven to level.
	ClaimOutput(ctx context.Context, pin int, level bool) error
	// Read returns the current level of a claimed pin.
	Read(ctx context.Context, pin int) (bool, error)
	// Write drives a claimed pin to level.
	Write(ctx context.Context, pin int, level bool) error
	// Release gives up every claimed pin in one operation.
	Release(ctx context.Context) error
}

// openDriver constructs the driver named in the configuration.
func openDriver(name string, reg *LineRegistry) (Driver, error) {
	switch name {
	case DriverMemory:
		return NewMemoryDriver(), nil
	case DriverPeriph, "":
		return newPeriphDriver(reg)
	default:
		return nil, fmt.Errorf("unknown driver %q", name)
	}
}
