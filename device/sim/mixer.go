/*
DESCRIPTION
  mixer.go provides an in memory mixer and audio route for the simulated
  platform.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package sim

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrNoControl is returned when reading a control that was never written.
var ErrNoControl = errors.New("no such control")

// Write is a recorded write to a mixer control. Value holds an int, a string,
// an []int32 or a []byte depending on the kind of write.
type Write struct {
	Control string
	Value   interface{}
}

// Mixer is an in memory device.Mixer. Controls come into existence when first
// written and every write is recorded.
type Mixer struct {
	mu     sync.Mutex
	ints   map[string][]int32
	enums  map[string]string
	blobs  map[string][]byte
	writes []Write

	// Hooks used by the platform to emulate controls backed by the DSP. They
	// are called without the mixer lock held.
	onSetBytes func(name string, b []byte) error
	onBytes    func(name string) ([]byte, bool)
}

// NewMixer returns an empty Mixer.
func NewMixer() *Mixer {
	return &Mixer{
		ints:  make(map[string][]int32),
		enums: make(map[string]string),
		blobs: make(map[string][]byte),
	}
}

func (m *Mixer) record(name string, v interface{}) {
	m.writes = append(m.writes, Write{Control: name, Value: v})
}

// Value returns the first value of an integer control.
func (m *Mixer) Value(name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.ints[name]
	if !ok || len(v) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoControl, name)
	}
	return int(v[0]), nil
}

// SetValue sets an integer control to v.
func (m *Mixer) SetValue(name string, v int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ints[name] = []int32{int32(v)}
	m.record(name, v)
	return nil
}

// SetEnum selects item of an enumerated control.
func (m *Mixer) SetEnum(name, item string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enums[name] = item
	m.record(name, item)
	return nil
}

// SetInts sets the values of an integer array control.
func (m *Mixer) SetInts(name string, v []int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ints[name] = slices.Clone(v)
	m.record(name, slices.Clone(v))
	return nil
}

// Bytes returns the contents of a byte control.
func (m *Mixer) Bytes(name string) ([]byte, error) {
	if m.onBytes != nil {
		if b, ok := m.onBytes(name); ok {
			return b, nil
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoControl, name)
	}
	return slices.Clone(b), nil
}

// SetBytes writes the contents of a byte control.
func (m *Mixer) SetBytes(name string, b []byte) error {
	if m.onSetBytes != nil {
		err := m.onSetBytes(name, b)
		if err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = slices.Clone(b)
	m.record(name, slices.Clone(b))
	return nil
}

// Writes returns the recorded writes to control name, or every recorded
// write if name is empty.
func (m *Mixer) Writes(name string) []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	var w []Write
	for _, wr := range m.writes {
		if name == "" || wr.Control == name {
			w = append(w, wr)
		}
	}
	return w
}

// Enum returns the selected item of an enumerated control.
func (m *Mixer) Enum(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enums[name]
}

// Route is an in memory device.Router.
type Route struct {
	mu      sync.Mutex
	enabled map[string]int
}

// NewRoute returns a Route with no paths enabled.
func NewRoute() *Route {
	return &Route{enabled: make(map[string]int)}
}

// EnableDevice enables the named path.
func (r *Route) EnableDevice(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled[name]++
	return nil
}

// DisableDevice disables the named path.
func (r *Route) DisableDevice(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled[name] == 0 {
		return fmt.Errorf("path %s not enabled", name)
	}
	r.enabled[name]--
	return nil
}

// Enabled reports whether the named path is enabled.
func (r *Route) Enabled(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled[name] > 0
}
