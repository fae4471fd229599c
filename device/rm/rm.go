/*
DESCRIPTION
  rm.go provides a resource manager for a single audio graph manager virtual
  card: static front end pools, a device table, and dispatch of DSP events
  signalled through the event controls of the virtual card.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package rm provides a device.ResourceManager for the virtual card of the
// audio graph manager.
package rm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/spkrprot/device/agm"
	"github.com/ausocean/utils/logging"
)

// pollInterval bounds how long the dispatch loop waits for a control event
// before checking for cancellation.
const pollInterval = 200 * time.Millisecond

// Errors returned by the Manager.
var (
	ErrNoFrontEnd = errors.New("no free front end")
	ErrNoDevice   = errors.New("device not in device table")
)

// EventMixer is a mixer that can report changes to its controls.
type EventMixer interface {
	device.Mixer

	// SubscribeEvents enables or disables control change events.
	SubscribeEvents(enable bool) error

	// WaitEvent waits up to timeout for a control change event, reporting
	// whether one is pending.
	WaitEvent(timeout time.Duration) (bool, error)

	// ReadEvent returns the name of the changed control.
	ReadEvent() (string, error)
}

// PCMOpener opens PCM devices.
type PCMOpener func(card, dev int, dir device.Direction, c device.PCMConfig) (device.PCM, error)

// Device is an entry of the device table.
type Device struct {
	Backend string      `json:"backend"`
	Info    device.Info `json:"info"`
}

// Config describes the cards, front ends and devices of the platform.
type Config struct {
	VirtualCard int
	PlaybackFEs []int
	CaptureFEs  []int
	Devices     map[device.ID]Device
}

// Manager implements device.ResourceManager.
type Manager struct {
	l     logging.Logger
	cfg   Config
	virt  EventMixer
	hw    device.Mixer
	route device.Router
	open  PCMOpener

	mu        sync.Mutex
	free      map[device.Direction][]int
	callbacks map[int]device.EventCallback
}

// New returns a Manager handing out the front ends and devices of cfg.
func New(l logging.Logger, cfg Config, virt EventMixer, hw device.Mixer, route device.Router, open PCMOpener) *Manager {
	return &Manager{
		l:     l,
		cfg:   cfg,
		virt:  virt,
		hw:    hw,
		route: route,
		open:  open,
		free: map[device.Direction][]int{
			device.Playback: slices.Clone(cfg.PlaybackFEs),
			device.Capture:  slices.Clone(cfg.CaptureFEs),
		},
		callbacks: make(map[int]device.EventCallback),
	}
}

// AllocateFrontEndIDs implements device.ResourceManager.
func (m *Manager) AllocateFrontEndIDs(attr device.StreamAttributes, dir device.Direction) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	free := m.free[dir]
	if len(free) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFrontEnd, dir)
	}
	fe := free[0]
	m.free[dir] = free[1:]
	m.l.Debug("allocated front end", "fe", fe, "device", attr.Device.String())
	return []int{fe}, nil
}

// FreeFrontEndIDs implements device.ResourceManager.
func (m *Manager) FreeFrontEndIDs(ids []int, attr device.StreamAttributes, dir device.Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fe := range ids {
		if slices.Contains(m.free[dir], fe) {
			m.l.Warning("front end freed twice", "fe", fe)
			continue
		}
		m.free[dir] = append(m.free[dir], fe)
		delete(m.callbacks, fe)
	}
}

// VirtualMixer implements device.ResourceManager.
func (m *Manager) VirtualMixer() (device.Mixer, error) { return m.virt, nil }

// HwMixer implements device.ResourceManager.
func (m *Manager) HwMixer() (device.Mixer, error) {
	if m.hw == nil {
		return nil, errors.New("no hardware mixer")
	}
	return m.hw, nil
}

// AudioRoute implements device.ResourceManager.
func (m *Manager) AudioRoute() (device.Router, error) {
	if m.route == nil {
		return nil, errors.New("no audio route")
	}
	return m.route, nil
}

// DeviceInfo implements device.ResourceManager.
func (m *Manager) DeviceInfo(id device.ID, st device.StreamType, key string) (device.Info, error) {
	d, ok := m.cfg.Devices[id]
	if !ok {
		return device.Info{}, fmt.Errorf("%w: %s", ErrNoDevice, id)
	}
	return d.Info, nil
}

// BackendName implements device.ResourceManager.
func (m *Manager) BackendName(id device.ID) (string, error) {
	d, ok := m.cfg.Devices[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoDevice, id)
	}
	return d.Backend, nil
}

// VirtualSndCard implements device.ResourceManager.
func (m *Manager) VirtualSndCard() int { return m.cfg.VirtualCard }

// OpenPCM implements device.ResourceManager.
func (m *Manager) OpenPCM(card, dev int, dir device.Direction, c device.PCMConfig) (device.PCM, error) {
	return m.open(card, dev, dir, c)
}

// RegisterMixerEventCallback implements device.ResourceManager.
func (m *Manager) RegisterMixerEventCallback(feIDs []int, cb device.EventCallback, register bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fe := range feIDs {
		if !register {
			delete(m.callbacks, fe)
			continue
		}
		if cb == nil {
			return errors.New("nil callback")
		}
		m.callbacks[fe] = cb
	}
	return nil
}

// Run dispatches DSP events to registered callbacks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	err := m.virt.SubscribeEvents(true)
	if err != nil {
		return fmt.Errorf("could not subscribe to control events: %w", err)
	}
	defer func() {
		if err := m.virt.SubscribeEvents(false); err != nil {
			m.l.Warning("could not unsubscribe from control events", "error", err)
		}
	}()

	for ctx.Err() == nil {
		ok, err := m.virt.WaitEvent(pollInterval)
		if err != nil {
			return fmt.Errorf("could not wait for control event: %w", err)
		}
		if !ok {
			continue
		}
		name, err := m.virt.ReadEvent()
		if err != nil {
			m.l.Warning("could not read control event", "error", err)
			continue
		}
		m.dispatch(name)
	}
	return nil
}

// dispatch hands the DSP event signalled by a change of control name to the
// callback of its front end.
func (m *Manager) dispatch(name string) {
	fe, suffix, ok := agm.ParseControlName(name)
	if !ok || suffix != agm.CtlEvent {
		return
	}
	m.mu.Lock()
	cb := m.callbacks[fe]
	m.mu.Unlock()
	if cb == nil {
		m.l.Debug("event on front end without callback", "fe", fe)
		return
	}

	b, err := m.virt.Bytes(name)
	if err != nil {
		m.l.Warning("could not read event", "control", name, "error", err)
		return
	}
	e, err := agm.ParseEvent(fe, b)
	if err != nil {
		m.l.Warning("bad event", "control", name, "error", err)
		return
	}
	cb(e)
}
