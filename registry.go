package main

import "fmt"

// LineRegistry is the static pin configuration: the ordered allowlist of
// physical pins under agent control and the logical (BCM) to physical table.
// It is built once at startup and never modified, so it is safe to share.
type LineRegistry struct {
	allowlist []int
	enabled   map[int]struct{}
	gpioMap   []int       // index is the logical number, value the physical pin
	logical   map[int]int // physical pin -> first logical number mapping to it
}

// NewLineRegistry validates and copies the pin tables.
func NewLineRegistry(allowlist, gpioMap []int) (*LineRegistry, error) {
	if len(allowlist) == 0 {
		return nil, fmt.Errorf("enabled pin list is empty")
	}
	r := &LineRegistry{
		allowlist: append([]int(nil), allowlist...),
		enabled:   make(map[int]struct{}, len(allowlist)),
		gpioMap:   append([]int(nil), gpioMap...),
		logical:   make(map[int]int, len(gpioMap)),
	}
	for _, pin := range r.allowlist {
		if pin < 0 {
			return nil, fmt.Errorf("enabled pin %d is negative", pin)
		}
		if _, dup := r.enabled[pin]; dup {
			return nil, fmt.Errorf("enabled pin %d is listed twice", pin)
		}
		r.enabled[pin] = struct{}{}
	}
	for gpio, pin := range r.gpioMap {
		if pin < 0 {
			return nil, fmt.Errorf("gpio %d maps to negative pin %d", gpio, pin)
		}
		if _, seen := r.logical[pin]; !seen {
			r.logical[pin] = gpio
		}
	}
	return r, nil
}

// IsEnabled reports whether a physical pin is in the allowlist.
func (r *LineRegistry) IsEnabled(pin int) bool {
	_, ok := r.enabled[pin]
	return ok
}

// Translate returns the physical pin for a logical number.  The result may
// lie outside the allowlist; callers decide what to do with it.
func (r *LineRegistry) Translate(gpio int) (int, bool) {
	if gpio < 0 || gpio >= len(r.gpioMap) {
		return 0, false
	}
	return r.gpioMap[gpio], true
}

// Logical is the reverse of Translate.  Hardware drivers that address lines
// by BCM number use it to find the line behind a physical pin.
func (r *LineRegistry) Logical(pin int) (int, bool) {
	gpio, ok := r.logical[pin]
	return gpio, ok
}

// Allowlist returns a copy of the enabled pins in configured order.
func (r *LineRegistry) Allowlist() []int {
	return append([]int(nil), r.allowlist...)
}

// GPIOMap returns a copy of the logical to physical table.
func (r *LineRegistry) GPIOMap() []int {
	return append([]int(nil), r.gpioMap...)
}
