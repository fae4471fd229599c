/*
DESCRIPTION
  device.go provides the interfaces through which speaker protection reaches
  the audio hardware: the resource manager that owns front ends and mixer
  handles, mixer controls, audio routes and PCM devices.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package device provides interfaces describing the audio hardware used by
// speaker protection, i.e. mixer controls, routes, PCM devices and the
// resource manager that hands them out.
package device

import (
	"fmt"
)

// Direction is the direction of a PCM path.
type Direction int

// Path directions.
const (
	Playback Direction = iota
	Capture
)

func (d Direction) String() string {
	switch d {
	case Playback:
		return "playback"
	case Capture:
		return "capture"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ID identifies a logical audio device.
type ID int

// Logical devices used by speaker protection.
const (
	Speaker ID = iota + 1
	VIFeedback
	CPSFeedback
)

func (id ID) String() string {
	switch id {
	case Speaker:
		return "speaker"
	case VIFeedback:
		return "vi-feedback"
	case CPSFeedback:
		return "cps-feedback"
	default:
		return fmt.Sprintf("device(%d)", int(id))
	}
}

// StreamType describes the kind of stream a front end is allocated for.
type StreamType int

// Stream types.
const (
	StreamLowLatency StreamType = iota + 1
	StreamProxy
	StreamCalibration
)

// StreamAttributes are passed to the resource manager when allocating front ends.
type StreamAttributes struct {
	Type      StreamType
	Direction Direction
	Device    ID
	Channels  int
	Rate      int
	BitWidth  int
}

// Info holds the hardware description of a logical device.
type Info struct {
	Channels      int
	SampleRate    int
	BitWidth      int
	SndDeviceName string // Name of the audio route path enabling the device.
}

// PCMConfig holds the hardware parameters a PCM device is opened with.
type PCMConfig struct {
	Channels    int
	Rate        int
	BitWidth    int
	PeriodSize  int // Frames; zero lets the implementation decide.
	PeriodCount int
}

// Event is an asynchronous notification raised by a DSP module.
type Event struct {
	FrontEnd         int
	ModuleInstanceID uint32
	EventID          uint32
	Payload          []byte
}

// EventCallback receives DSP events for the front ends it was registered for.
// It is invoked on a goroutine owned by the resource manager.
type EventCallback func(Event)

// Mixer provides access to the named controls of a sound card.
type Mixer interface {
	// Value returns the first value of an integer, boolean or enumerated control.
	Value(name string) (int, error)

	// SetValue sets every value of an integer or boolean control to v.
	SetValue(name string, v int) error

	// SetEnum selects the item of an enumerated control by its name.
	SetEnum(name, item string) error

	// SetInts sets the values of an integer array control.
	SetInts(name string, v []int32) error

	// Bytes returns the contents of a byte or TLV control.
	Bytes(name string) ([]byte, error)

	// SetBytes writes the contents of a byte or TLV control.
	SetBytes(name string, b []byte) error
}

// Router enables and disables named audio route paths.
type Router interface {
	EnableDevice(name string) error
	DisableDevice(name string) error
}

// PCM is an open PCM device.
type PCM interface {
	Start() error
	Stop() error
	Close() error
}

// ResourceManager owns front end IDs, mixer handles and event dispatch for the
// audio subsystem.
type ResourceManager interface {
	// AllocateFrontEndIDs reserves front end PCM IDs for a stream.
	AllocateFrontEndIDs(attr StreamAttributes, dir Direction) ([]int, error)

	// FreeFrontEndIDs returns front end IDs to the pool.
	FreeFrontEndIDs(ids []int, attr StreamAttributes, dir Direction)

	// VirtualMixer returns the mixer of the virtual (graph manager) card.
	VirtualMixer() (Mixer, error)

	// HwMixer returns the mixer of the hardware codec card.
	HwMixer() (Mixer, error)

	// AudioRoute returns the audio route controller.
	AudioRoute() (Router, error)

	// DeviceInfo returns the hardware description of a device.
	DeviceInfo(id ID, st StreamType, key string) (Info, error)

	// BackendName returns the backend link name of a device.
	BackendName(id ID) (string, error)

	// RegisterMixerEventCallback registers, or with register false removes,
	// cb for DSP events raised on the given front ends.
	RegisterMixerEventCallback(feIDs []int, cb EventCallback, register bool) error

	// VirtualSndCard returns the virtual card number.
	VirtualSndCard() int

	// OpenPCM opens a PCM device on the given card.
	OpenPCM(card, device int, dir Direction, c PCMConfig) (PCM, error)
}

// MultiError implements the built in error interface. MultiError is used to
// collect errors during validation of configuration and during best effort
// teardown of hardware paths.
type MultiError []error

func (me MultiError) Error() string {
	if len(me) == 0 {
		panic("device: invalid use of MultiError")
	}
	return fmt.Sprintf("%v", []error(me))
}

// Add appends err if it is not nil.
func (me *MultiError) Add(err error) {
	if err != nil {
		*me = append(*me, err)
	}
}

// Err returns me as an error, or nil if no errors were collected.
func (me MultiError) Err() error {
	if len(me) == 0 {
		return nil
	}
	return me
}
