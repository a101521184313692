//go:build !(linux && (arm || arm64)) || disablegpio

package main

import "errors"

// newPeriphDriver is unavailable off the Pi.  Use the memory driver to run
// the agent on a desktop machine.
func newPeriphDriver(*LineRegistry) (Driver, error) {
	return nil, errors.New("periph GPIO driver is not built into this binary (linux/arm or linux/arm64 without the disablegpio tag is required); use --driver memory")
}
