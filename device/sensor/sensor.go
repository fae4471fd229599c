/*
DESCRIPTION
  sensor.go provides readers for the per channel speaker temperature, either
  from amplifier mixer controls or from temperature registers on an I2C bus.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package sensor reads speaker temperatures.
package sensor

import (
	"errors"
	"fmt"

	"github.com/kidoman/embd"

	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/utils/logging"
)

// Physical limits of a temperature reading in degrees Celsius. Readings
// outside these limits indicate a sensor fault rather than a hot or cold
// speaker.
const (
	minPlausible = -50
	maxPlausible = 150
)

// ErrInvalid is returned when a sensor gives no usable reading.
var ErrInvalid = errors.New("invalid temperature reading")

// ErrChannel is returned for channels without a configured sensor.
var ErrChannel = errors.New("no sensor for channel")

func check(ch, t int) (int, error) {
	if t < minPlausible || t > maxPlausible {
		return 0, fmt.Errorf("%w: channel %d read %d", ErrInvalid, ch, t)
	}
	return t, nil
}

// Mixer reads temperatures, in degrees Celsius, from amplifier mixer
// controls, one control per channel.
type Mixer struct {
	l    logging.Logger
	m    device.Mixer
	ctls []string
}

// NewMixer returns a Mixer reading channel i from control ctls[i] of m.
func NewMixer(l logging.Logger, m device.Mixer, ctls []string) *Mixer {
	return &Mixer{l: l, m: m, ctls: ctls}
}

// Temperature returns the temperature of channel ch.
func (s *Mixer) Temperature(ch int) (int, error) {
	if ch < 0 || ch >= len(s.ctls) {
		return 0, fmt.Errorf("%w: %d", ErrChannel, ch)
	}
	t, err := s.m.Value(s.ctls[ch])
	if err != nil {
		s.l.Warning("could not read temperature control", "control", s.ctls[ch], "error", err)
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return check(ch, t)
}

// I2C reads temperatures from registers of an I2C temperature sensor. Each
// register holds a signed whole degree Celsius value.
type I2C struct {
	l    logging.Logger
	bus  embd.I2CBus
	addr byte
	regs []byte
}

// NewI2C returns an I2C reader reading channel i from register regs[i] of the
// device at addr on bus.
func NewI2C(l logging.Logger, bus embd.I2CBus, addr byte, regs []byte) *I2C {
	return &I2C{l: l, bus: bus, addr: addr, regs: regs}
}

// Temperature returns the temperature of channel ch.
func (s *I2C) Temperature(ch int) (int, error) {
	if ch < 0 || ch >= len(s.regs) {
		return 0, fmt.Errorf("%w: %d", ErrChannel, ch)
	}
	b, err := s.bus.ReadByteFromReg(s.addr, s.regs[ch])
	if err != nil {
		s.l.Warning("could not read temperature register", "addr", s.addr, "reg", s.regs[ch], "error", err)
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return check(ch, int(int8(b)))
}

// Fixed reports constant temperatures. It is used where no sensor exists.
type Fixed []int

// Temperature returns the temperature of channel ch.
func (f Fixed) Temperature(ch int) (int, error) {
	if ch < 0 || ch >= len(f) {
		return 0, fmt.Errorf("%w: %d", ErrChannel, ch)
	}
	return f[ch], nil
}
