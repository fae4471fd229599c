/*
DESCRIPTION
  config.go contains the configuration settings for speaker protection.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config contains the configuration settings for speaker protection.
package config

import (
	"time"

	"github.com/ausocean/utils/logging"
)

// SpeakerMode is the operation mode requested for runtime protection.
type SpeakerMode uint8

// Speaker modes.
const (
	ModeNormal SpeakerMode = iota
	ModeFactoryTest
	ModeValidation
)

func (m SpeakerMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeFactoryTest:
		return "ftm"
	case ModeValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// CPSMode selects how battery and temperature feedback reaches the DSP.
type CPSMode uint8

// CPS modes.
const (
	CPSNone     CPSMode = iota // No CPS feedback.
	CPSPCM                     // CPS data captured on a dedicated PCM path.
	CPSRegister                // DSP reads amplifier registers directly.
)

// Temperature sensor sources.
const (
	SensorMixer uint8 = iota
	SensorI2C
	SensorFixed
)

// StandardMinIdle is the minimum idle time of a full calibration. Shorter
// configured idle times request a quick calibration.
const StandardMinIdle = 180 * time.Second

// Config provides parameters relevant to speaker protection. A new config
// must be validated using the Validate method before use.
type Config struct {
	// Logger holds an implementation of the Logger interface as defined in the
	// logging package.
	Logger logging.Logger

	// LogLevel is the speaker protection logging verbosity level.
	// Valid values are defined by enums from the logger package: logging.Debug,
	// logging.Info, logging.Warning, logging.Error, logging.Fatal.
	LogLevel int8

	Suppress bool // Holds logger suppression state.

	// Channels is the number of speaker channels, 1 or 2.
	Channels uint

	// MinIdle is how long the speaker must be unused before a calibration is
	// attempted. Values below StandardMinIdle request a quick calibration.
	MinIdle time.Duration

	// DynamicCalibration allows calibration without waiting for MinIdle.
	DynamicCalibration bool

	WakeInterval       time.Duration // Longest wait between scheduler checks.
	TempRetries        uint          // Re-reads of an out of range temperature.
	TempRetryInterval  time.Duration // Wait between temperature re-reads.
	CalibrationTimeout time.Duration // Longest wait for the DSP calibration result.

	// StorePath is the path of the calibration store.
	StorePath string

	SpeakerMode  SpeakerMode // Requested runtime operation mode.
	CPSMode      CPSMode     // CPS feedback method.
	CPSRegisters []uint32    // Amplifier registers used in CPSRegister mode.

	// CPSControl is the codec mixer control receiving the CPS register
	// configuration.
	CPSControl string

	FTMWaitTime        time.Duration // Settling time before factory test measurement.
	FTMTime            time.Duration // Factory test measurement time.
	ValidationWaitTime time.Duration // Settling time before validation measurement.
	ValidationTime     time.Duration // Validation measurement time.

	// Backend link names of the speaker, VI feedback and CPS feedback paths.
	// Empty names use the backend of the resource manager's device table.
	RxDevice  string
	TxDevice  string
	CPSDevice string

	TempSensor      uint8    // Temperature source, one of the Sensor enums.
	TempControls    []string // Per channel temperature controls for SensorMixer.
	DCFaultControls []string // Per channel controls pulsed on a DC fault.
	I2CBus          uint     // Bus of the temperature sensor for SensorI2C.
	I2CAddress      uint     // Address of the temperature sensor for SensorI2C.
	I2CRegisters    []uint   // Per channel temperature registers for SensorI2C.
	FixedTemp       int      // Temperature reported for SensorFixed.

	MixerPaths     string // Path of the mixer paths XML file.
	MetricsAddress string // Listen address of the metrics endpoint, empty to disable.
	NATSURL        string // NATS server events are published to, empty to disable.
	NATSSubject    string // NATS subject events are published on.
}

// Validate checks for any errors in the config fields and defaults settings
// if particular parameters have not been defined.
func (c *Config) Validate() error {
	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	return nil
}

// Update takes a map of configuration variable names and their corresponding
// values, parses the string values and converting into correct type, and then
// sets the config struct fields as appropriate.
func (c *Config) Update(vars map[string]string) {
	for _, value := range Variables {
		if v, ok := vars[value.Name]; ok && value.Update != nil {
			value.Update(c, v)
		}
	}
}

// QuickCalibration reports whether calibrations should use the quick
// procedure.
func (c *Config) QuickCalibration() bool {
	return c.MinIdle < StandardMinIdle
}

func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}
