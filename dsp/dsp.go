/*
DESCRIPTION
  dsp.go defines the identifiers used to address the speaker protection
  modules running on the audio DSP: module tags, parameter IDs, event IDs
  and the operation modes and status codes they exchange.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package dsp builds parameter payloads for, and decodes events raised by,
// the speaker protection modules of the audio DSP.
//
// All multi byte fields are little endian, matching the DSP.
package dsp

import "fmt"

// Module tags used to look up module instance IDs in a graph.
const (
	TagSpeakerProtection uint32 = 0xC0000019 // RX thermal/excursion protection.
	TagSpeakerProtVI     uint32 = 0xC000001A // TX VI feedback processing.
	TagSpeakerProtCPS    uint32 = 0xC000001B // TX CPS (battery/temperature) feedback.
)

// Parameter IDs.
const (
	ParamSPOpMode        uint32 = 0x080011E7
	ParamVIOpModeCfg     uint32 = 0x080011F4
	ParamVIChannelMapCfg uint32 = 0x080011F5
	ParamVIR0T0Cfg       uint32 = 0x080011F6
	ParamVIFTMCfg        uint32 = 0x080011F8
	ParamVIFTMResults    uint32 = 0x080011F9
	ParamVIValidationCfg uint32 = 0x080011FA
	ParamCPSRegisterCfg  uint32 = 0x08001206
)

// Event IDs.
const (
	EventVICalibration      uint32 = 0x0800119F
	EventSpeakerDiagnostics uint32 = 0x080011A0
)

// OpMode is the operation mode of the VI and SP modules.
type OpMode uint32

// Operation modes.
const (
	OpNormal OpMode = iota
	OpCalibration
	OpFactoryTest
	OpValidation
)

func (m OpMode) String() string {
	switch m {
	case OpNormal:
		return "normal"
	case OpCalibration:
		return "calibration"
	case OpFactoryTest:
		return "factory-test"
	case OpValidation:
		return "validation"
	default:
		return fmt.Sprintf("opmode(%d)", uint32(m))
	}
}

// CalibStatus is the per channel state reported by the VI module during
// calibration.
type CalibStatus uint32

// Calibration status codes.
const (
	CalibIncorrectOpMode CalibStatus = iota
	CalibInactive
	CalibWarmup
	CalibInProgress
	CalibSuccess
	CalibFailure
	CalibLowVoltage
)

func (s CalibStatus) String() string {
	switch s {
	case CalibIncorrectOpMode:
		return "incorrect-opmode"
	case CalibInactive:
		return "inactive"
	case CalibWarmup:
		return "warmup"
	case CalibInProgress:
		return "in-progress"
	case CalibSuccess:
		return "success"
	case CalibFailure:
		return "failure"
	case CalibLowVoltage:
		return "low-voltage"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// Diagnostic condition flags reported per channel.
const (
	CondOverTemp uint32 = 1 << 0
	CondDCFault  uint32 = 1 << 1
)
