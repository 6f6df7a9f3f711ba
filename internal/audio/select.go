package audio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrDeviceNotFound is returned when no input device satisfies a Selector
var ErrDeviceNotFound = errors.New("audio device not found")

// Selector picks the capture device out of the host's device list
type Selector interface {
	Select(devices []AudioDevice) (AudioDevice, error)
}

// SubstringSelector matches the first input device whose name contains
// Target, ignoring case.
type SubstringSelector struct {
	Target string
}

func (s SubstringSelector) Select(devices []AudioDevice) (AudioDevice, error) {
	want := strings.ToLower(s.Target)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}
	return AudioDevice{}, fmt.Errorf("%w: no input device matching %q", ErrDeviceNotFound, s.Target)
}

// ExactSelector matches an input device by its full name
type ExactSelector struct {
	Name string
}

func (s ExactSelector) Select(devices []AudioDevice) (AudioDevice, error) {
	for _, d := range devices {
		if d.MaxInputChannels > 0 && d.Name == s.Name {
			return d, nil
		}
	}
	return AudioDevice{}, fmt.Errorf("%w: no input device named %q", ErrDeviceNotFound, s.Name)
}

// IndexSelector picks the input device with the given host index
type IndexSelector struct {
	Index int
}

func (s IndexSelector) Select(devices []AudioDevice) (AudioDevice, error) {
	for _, d := range devices {
		if d.Index == s.Index {
			if d.MaxInputChannels < 1 {
				return AudioDevice{}, fmt.Errorf("%w: device %d (%s) has no input channels", ErrDeviceNotFound, d.Index, d.Name)
			}
			return d, nil
		}
	}
	return AudioDevice{}, fmt.Errorf("%w: no device with index %d", ErrDeviceNotFound, s.Index)
}

// NewSelector builds the selector for a device_match mode
func NewSelector(mode, target string) (Selector, error) {
	switch mode {
	case "", "substring":
		return SubstringSelector{Target: target}, nil
	case "exact":
		return ExactSelector{Name: target}, nil
	case "index":
		idx, err := strconv.Atoi(target)
		if err != nil {
			return nil, fmt.Errorf("device %q is not a device index: %w", target, err)
		}
		return IndexSelector{Index: idx}, nil
	}
	return nil, fmt.Errorf("unknown device match mode %q", mode)
}
