/*
DESCRIPTION
  config.go provides the parameter structures used to configure the VI
  feedback, speaker protection and CPS modules.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package dsp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// VIOpModeConfig selects the operation mode of the VI module.
type VIOpModeConfig struct {
	Channels uint32
	Mode     OpMode
	QuickCal bool
	CalDelay uint32 // Milliseconds of playback before measurement starts.
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c VIOpModeConfig) MarshalBinary() ([]byte, error) {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:], c.Channels)
	binary.LittleEndian.PutUint32(b[4:], uint32(c.Mode))
	if c.QuickCal {
		binary.LittleEndian.PutUint32(b[8:], 1)
	}
	binary.LittleEndian.PutUint32(b[12:], c.CalDelay)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *VIOpModeConfig) UnmarshalBinary(b []byte) error {
	if len(b) < 16 {
		return errors.Errorf("short VI op mode config: %d bytes", len(b))
	}
	c.Channels = binary.LittleEndian.Uint32(b[0:])
	c.Mode = OpMode(binary.LittleEndian.Uint32(b[4:]))
	c.QuickCal = binary.LittleEndian.Uint32(b[8:]) != 0
	c.CalDelay = binary.LittleEndian.Uint32(b[12:])
	return nil
}

// ChannelMap maps VI feedback channels to speaker channels.
type ChannelMap []int32

// MarshalBinary implements encoding.BinaryMarshaler.
func (m ChannelMap) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4+4*len(m))
	binary.LittleEndian.PutUint32(b, uint32(len(m)))
	for i, v := range m {
		binary.LittleEndian.PutUint32(b[4+4*i:], uint32(v))
	}
	return b, nil
}

// DefaultChannelMap returns the VI channel map for n speakers, where each
// speaker contributes a voltage and a current channel.
func DefaultChannelMap(n int) ChannelMap {
	m := make(ChannelMap, 2*n)
	for i := range m {
		m[i] = int32(i + 1)
	}
	return m
}

// R0T0 is the calibrated resistance and the temperature it was measured at
// for one speaker.
type R0T0 struct {
	R0Q24 int32
	T0Q6  int16
}

// R0T0Config provides the VI module with per speaker calibration.
type R0T0Config []R0T0

// MarshalBinary implements encoding.BinaryMarshaler.
func (c R0T0Config) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4+8*len(c))
	binary.LittleEndian.PutUint32(b, uint32(len(c)))
	for i, v := range c {
		o := 4 + 8*i
		binary.LittleEndian.PutUint32(b[o:], uint32(v.R0Q24))
		binary.LittleEndian.PutUint32(b[o+4:], uint32(int32(v.T0Q6)))
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *R0T0Config) UnmarshalBinary(b []byte) error {
	n, b, err := count(b, 8)
	if err != nil {
		return errors.Wrap(err, "could not parse R0T0 config")
	}
	*c = make(R0T0Config, n)
	for i := range *c {
		o := 8 * i
		(*c)[i] = R0T0{
			R0Q24: int32(binary.LittleEndian.Uint32(b[o:])),
			T0Q6:  int16(int32(binary.LittleEndian.Uint32(b[o+4:]))),
		}
	}
	return nil
}

// TestTiming holds the wait and measurement durations, in milliseconds, of a
// factory test or validation run for one speaker.
type TestTiming struct {
	WaitMS    uint32
	MeasureMS uint32
}

// TestConfig configures factory test or validation mode.
type TestConfig []TestTiming

// MarshalBinary implements encoding.BinaryMarshaler.
func (c TestConfig) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4+8*len(c))
	binary.LittleEndian.PutUint32(b, uint32(len(c)))
	for i, v := range c {
		o := 4 + 8*i
		binary.LittleEndian.PutUint32(b[o:], v.WaitMS)
		binary.LittleEndian.PutUint32(b[o+4:], v.MeasureMS)
	}
	return b, nil
}

// SPOpMode selects the operation mode of the RX speaker protection module.
type SPOpMode OpMode

// MarshalBinary implements encoding.BinaryMarshaler.
func (m SPOpMode) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(m))
	return b, nil
}

// CPSRegisterConfig lists, per speaker, the amplifier register addresses the
// DSP reads battery voltage and temperature from when no CPS capture path is
// opened.
type CPSRegisterConfig []uint32

// MarshalBinary implements encoding.BinaryMarshaler.
func (c CPSRegisterConfig) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4+4*len(c))
	binary.LittleEndian.PutUint32(b, uint32(len(c)))
	for i, v := range c {
		binary.LittleEndian.PutUint32(b[4+4*i:], v)
	}
	return b, nil
}

// TestResult is the factory test or validation result of one speaker.
type TestResult struct {
	ResistanceQ24  int32
	TemperatureQ22 int32
	Status         uint32
}

// Ohms returns the measured resistance in ohms.
func (r TestResult) Ohms() float64 { return float64(r.ResistanceQ24) / (1 << 24) }

// Celsius returns the measured temperature in degrees Celsius.
func (r TestResult) Celsius() float64 { return float64(r.TemperatureQ22) / (1 << 22) }

// TestResults holds per speaker factory test or validation results.
type TestResults []TestResult

// MarshalBinary implements encoding.BinaryMarshaler.
func (r TestResults) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4+12*len(r))
	binary.LittleEndian.PutUint32(b, uint32(len(r)))
	for i, v := range r {
		o := 4 + 12*i
		binary.LittleEndian.PutUint32(b[o:], uint32(v.ResistanceQ24))
		binary.LittleEndian.PutUint32(b[o+4:], uint32(v.TemperatureQ22))
		binary.LittleEndian.PutUint32(b[o+8:], v.Status)
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *TestResults) UnmarshalBinary(b []byte) error {
	n, b, err := count(b, 12)
	if err != nil {
		return errors.Wrap(err, "could not parse test results")
	}
	*r = make(TestResults, n)
	for i := range *r {
		o := 12 * i
		(*r)[i] = TestResult{
			ResistanceQ24:  int32(binary.LittleEndian.Uint32(b[o:])),
			TemperatureQ22: int32(binary.LittleEndian.Uint32(b[o+4:])),
			Status:         binary.LittleEndian.Uint32(b[o+8:]),
		}
	}
	return nil
}

// count reads the leading element count of b and checks that n elements of
// size bytes follow it. It returns the count and the element bytes.
func count(b []byte, size int) (int, []byte, error) {
	if len(b) < 4 {
		return 0, nil, errors.Errorf("short payload: %d bytes", len(b))
	}
	n := int(binary.LittleEndian.Uint32(b))
	if n > maxElems {
		return 0, nil, errors.Errorf("implausible element count: %d", n)
	}
	b = b[4:]
	if len(b) < n*size {
		return 0, nil, errors.Errorf("payload too short for %d elements: %d bytes", n, len(b))
	}
	return n, b[:n*size], nil
}

// maxElems bounds per channel arrays in DSP payloads.
const maxElems = 8
