/*
DESCRIPTION
  event.go provides decoding of the events raised by the VI feedback module:
  calibration progress and speaker diagnostics.

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

// ChannelCalibration is the calibration state of one speaker channel.
type ChannelCalibration struct {
	Status CalibStatus
	R0Q24  int32
}

// CalibrationEvent is the payload of an EventVICalibration event.
type CalibrationEvent []ChannelCalibration

// Outcome summarises a calibration event.
type Outcome int

// Calibration outcomes.
const (
	OutcomePending Outcome = iota // Some channel is still in progress.
	OutcomeSuccess                // Every channel succeeded.
	OutcomeFailure                // Some channel failed or saw low voltage.
)

// Outcome returns the outcome of the event. Any failing channel makes the
// whole calibration fail; success requires every channel to succeed.
func (e CalibrationEvent) Outcome() Outcome {
	if len(e) == 0 {
		return OutcomePending
	}
	ok := true
	for _, c := range e {
		switch c.Status {
		case CalibFailure, CalibLowVoltage:
			return OutcomeFailure
		case CalibSuccess:
		default:
			ok = false
		}
	}
	if ok {
		return OutcomeSuccess
	}
	return OutcomePending
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (e CalibrationEvent) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4+8*len(e))
	binary.LittleEndian.PutUint32(b, uint32(len(e)))
	for i, c := range e {
		o := 4 + 8*i
		binary.LittleEndian.PutUint32(b[o:], uint32(c.Status))
		binary.LittleEndian.PutUint32(b[o+4:], uint32(c.R0Q24))
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *CalibrationEvent) UnmarshalBinary(b []byte) error {
	n, b, err := count(b, 8)
	if err != nil {
		return errors.Wrap(err, "could not parse calibration event")
	}
	*e = make(CalibrationEvent, n)
	for i := range *e {
		o := 8 * i
		(*e)[i] = ChannelCalibration{
			Status: CalibStatus(binary.LittleEndian.Uint32(b[o:])),
			R0Q24:  int32(binary.LittleEndian.Uint32(b[o+4:])),
		}
	}
	return nil
}

// DiagnosticsEvent is the payload of an EventSpeakerDiagnostics event, a set
// of condition flags per channel.
type DiagnosticsEvent []uint32

// DCFault reports whether channel ch has a DC fault.
func (e DiagnosticsEvent) DCFault(ch int) bool { return e[ch]&CondDCFault != 0 }

// OverTemp reports whether channel ch is over temperature.
func (e DiagnosticsEvent) OverTemp(ch int) bool { return e[ch]&CondOverTemp != 0 }

// MarshalBinary implements encoding.BinaryMarshaler.
func (e DiagnosticsEvent) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4+4*len(e))
	binary.LittleEndian.PutUint32(b, uint32(len(e)))
	for i, v := range e {
		binary.LittleEndian.PutUint32(b[4+4*i:], v)
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *DiagnosticsEvent) UnmarshalBinary(b []byte) error {
	n, b, err := count(b, 4)
	if err != nil {
		return errors.Wrap(err, "could not parse diagnostics event")
	}
	*e = make(DiagnosticsEvent, n)
	for i := range *e {
		(*e)[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return nil
}
