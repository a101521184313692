package main

import (
	"errors"
	"fmt"
)

// Mode selects how the {id} segment of an action request is interpreted.
type Mode string

const (
	ModePin  Mode = "pin"  // physical header pin numbers
	ModeGPIO Mode = "gpio" // logical BCM numbers, translated through the gpio map
)

// ParseMode validates a mode token from the request path.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModePin, ModeGPIO:
		return m, nil
	}
	return "", fmt.Errorf("%w: {mode} must be \"pin\" or \"gpio\" in /agent/{mode}/{id}/{action}, got %q", ErrInvalidAddressing, s)
}

// Action is the operation applied to every pin of a selection.
type Action string

const (
	ActionOn     Action = "on"
	ActionOff    Action = "off"
	ActionToggle Action = "toggle"
	ActionStatus Action = "status"
)

// ParseAction validates an action token from the request path.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if a.valid() {
		return a, nil
	}
	return "", fmt.Errorf("%w: {action} must be on, off, toggle or status in /agent/{mode}/{id}/{action}, got %q", ErrInvalidAddressing, s)
}

func (a Action) valid() bool {
	switch a {
	case ActionOn, ActionOff, ActionToggle, ActionStatus:
		return true
	}
	return false
}

// DefaultActiveLow matches the relay boards the agent was written for: "on"
// drives the signal low and "off" drives it high.
const DefaultActiveLow = true

// Polarity maps the logical on/off actions to raw signal levels (true = high).
type Polarity struct {
	ActiveLow bool
}

// OnLevel is the level written for the "on" action.
func (p Polarity) OnLevel() bool { return !p.ActiveLow }

// OffLevel is the level written for the "off" action and when a pin is claimed.
func (p Polarity) OffLevel() bool { return p.ActiveLow }

// Selection is the ordered set of physical pins targeted by one request.
type Selection []int

// LineResult is the outcome for a single pin.  State is the raw signal level
// read or written; it is meaningless when Err is set.
type LineResult struct {
	Pin   int
	State bool
	Err   error
}

// BatchResult holds one LineResult per selected pin, in selection order.
type BatchResult []LineResult

// Err joins the errors of every failed line, or returns nil if all succeeded.
func (b BatchResult) Err() error {
	var errs []error
	for _, r := range b {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// PinState is the wire form of a LineResult.
type PinState struct {
	Pin   int    `json:"pin"`
	State bool   `json:"state"`
	Error string `json:"error,omitempty"`
}

// PinStates converts the batch into its response representation.
func (b BatchResult) PinStates() []PinState {
	out := make([]PinState, len(b))
	for i, r := range b {
		out[i] = PinState{Pin: r.Pin, State: r.State}
		if r.Err != nil {
			out[i].State = false
			out[i].Error = r.Err.Error()
		}
	}
	return out
}
