package main

import (
	"fmt"
	"strconv"
)

// Selector resolves the {mode}/{id} part of a request into the physical pins
// it addresses.  It never touches hardware.
type Selector struct {
	reg *LineRegistry
}

// NewSelector returns a selector over the given registry.
func NewSelector(reg *LineRegistry) *Selector {
	return &Selector{reg: reg}
}

// Select accepts a non-negative integer id or one of "all", "even" and "odd".
// The group ids ignore the mode; even and odd refer to the position of a pin
// in the allowlist, not to its number.
func (s *Selector) Select(mode Mode, id string) (Selection, error) {
	if mode != ModePin && mode != ModeGPIO {
		return nil, fmt.Errorf("%w: {mode} must be \"pin\" or \"gpio\" in /agent/{mode}/{id}/{action}, got %q", ErrInvalidAddressing, mode)
	}

	var sel Selection
	switch id {
	case "all":
		sel = s.reg.Allowlist()
	case "even":
		sel = s.byParity(0)
	case "odd":
		sel = s.byParity(1)
	default:
		n, ok := parseLineNumber(id)
		if !ok {
			return nil, fmt.Errorf("%w: {id} must be a number or all, even or odd in /agent/{mode}/{id}/{action}, got %q", ErrInvalidAddressing, id)
		}
		pin, err := s.resolve(mode, n)
		if err != nil {
			return nil, err
		}
		sel = Selection{pin}
	}

	if len(sel) == 0 {
		return nil, fmt.Errorf("%w: %q matches no enabled pins", ErrEmptySelection, id)
	}
	return sel, nil
}

func (s *Selector) resolve(mode Mode, n int) (int, error) {
	if mode == ModePin {
		if !s.reg.IsEnabled(n) {
			return 0, &notEnabledError{kind: "pin", n: n}
		}
		return n, nil
	}
	pin, ok := s.reg.Translate(n)
	if !ok || !s.reg.IsEnabled(pin) {
		return 0, &notEnabledError{kind: "GPIO", n: n}
	}
	return pin, nil
}

func (s *Selector) byParity(parity int) Selection {
	var sel Selection
	for i, pin := range s.reg.allowlist {
		if i%2 == parity {
			sel = append(sel, pin)
		}
	}
	return sel
}

// parseLineNumber accepts plain decimal digits only, so signs and spaces are
// rejected rather than silently normalised.
func parseLineNumber(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
