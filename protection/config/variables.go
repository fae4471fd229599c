/*
DESCRIPTION
  variables.go contains a list of structs that provide a variable Name, type in
  a string format, a function for updating the variable in the Config struct
  from a string, and finally, a validation function to check the validity of the
  corresponding field value in the Config.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"
)

// Config map Keys.
const (
	KeyCalibrationTimeout = "CalibrationTimeout"
	KeyChannels           = "Channels"
	KeyCPSControl         = "CPSControl"
	KeyCPSDevice          = "CPSDevice"
	KeyCPSMode            = "CPSMode"
	KeyCPSRegisters       = "CPSRegisters"
	KeyDCFaultControls    = "DCFaultControls"
	KeyDynamicCalibration = "DynamicCalibration"
	KeyFixedTemp          = "FixedTemp"
	KeyFTMTime            = "FTMTime"
	KeyFTMWaitTime        = "FTMWaitTime"
	KeyI2CAddress         = "I2CAddress"
	KeyI2CBus             = "I2CBus"
	KeyI2CRegisters       = "I2CRegisters"
	KeyLogging            = "logging"
	KeyMetricsAddress     = "MetricsAddress"
	KeyMinIdle            = "MinIdle"
	KeyMixerPaths         = "MixerPaths"
	KeyNATSSubject        = "NATSSubject"
	KeyNATSURL            = "NATSURL"
	KeyRxDevice           = "RxDevice"
	KeySpeakerMode        = "SpeakerMode"
	KeyStorePath          = "StorePath"
	KeySuppress           = "Suppress"
	KeyTempControls       = "TempControls"
	KeyTempRetries        = "TempRetries"
	KeyTempRetryInterval  = "TempRetryInterval"
	KeyTempSensor         = "TempSensor"
	KeyTxDevice           = "TxDevice"
	KeyValidationTime     = "ValidationTime"
	KeyValidationWaitTime = "ValidationWaitTime"
	KeyWakeInterval       = "WakeInterval"
)

// Config map parameter types.
const (
	typeString = "string"
	typeInt    = "int"
	typeUint   = "uint"
	typeBool   = "bool"
)

// Default variable values.
const (
	// General defaults.
	defaultVerbosity = logging.Error
	defaultChannels  = 2
	defaultStorePath = "/mnt/vendor/persist/audio/audio.cal"

	// Scheduler defaults.
	defaultMinIdle            = StandardMinIdle
	defaultWakeInterval       = 30 * time.Second
	defaultTempRetries        = 3
	defaultTempRetryInterval  = 1 * time.Second
	defaultCalibrationTimeout = 60 * time.Second

	// Factory test and validation defaults.
	defaultFTMWaitTime        = 2 * time.Second
	defaultFTMTime            = 5 * time.Second
	defaultValidationWaitTime = 2 * time.Second
	defaultValidationTime     = 5 * time.Second

	// Hardware defaults.
	defaultCPSControl  = "WSA CPS Config"
	defaultNATSSubject = "spkrprot.events"
)

var (
	defaultTempControls    = []string{"SpkrLeft WSA Temp", "SpkrRight WSA Temp"}
	defaultDCFaultControls = []string{"SpkrLeft DC Reset", "SpkrRight DC Reset"}
)

// Variables describes the variables that can be used for speaker protection
// control. These structs provide the name and type of variable, a function
// for updating this variable in a Config, and a function for validating the
// value of the variable.
var Variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name:   KeyCalibrationTimeout,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.CalibrationTimeout = parseSeconds(KeyCalibrationTimeout, v, c) },
		Validate: func(c *Config) {
			if c.CalibrationTimeout <= 0 {
				c.LogInvalidField(KeyCalibrationTimeout, defaultCalibrationTimeout)
				c.CalibrationTimeout = defaultCalibrationTimeout
			}
		},
	},
	{
		Name:   KeyChannels,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.Channels = parseUint(KeyChannels, v, c) },
		Validate: func(c *Config) {
			if c.Channels == 0 || c.Channels > 2 {
				c.LogInvalidField(KeyChannels, defaultChannels)
				c.Channels = defaultChannels
			}
		},
	},
	{
		Name:   KeyCPSControl,
		Type:   typeString,
		Update: func(c *Config, v string) { c.CPSControl = v },
		Validate: func(c *Config) {
			if c.CPSControl == "" {
				c.CPSControl = defaultCPSControl
			}
		},
	},
	{
		Name:   KeyCPSDevice,
		Type:   typeString,
		Update: func(c *Config, v string) { c.CPSDevice = v },
	},
	{
		Name: KeyCPSMode,
		Type: "enum:none,pcm,register",
		Update: func(c *Config, v string) {
			c.CPSMode = CPSMode(parseEnum(
				KeyCPSMode,
				v,
				map[string]uint8{
					"none":     uint8(CPSNone),
					"pcm":      uint8(CPSPCM),
					"register": uint8(CPSRegister),
				},
				c,
			))
		},
		Validate: func(c *Config) {
			switch c.CPSMode {
			case CPSNone, CPSPCM:
			case CPSRegister:
				if len(c.CPSRegisters) == 0 {
					c.Logger.Warning("no CPS registers configured, disabling CPS")
					c.CPSMode = CPSNone
				}
			default:
				c.LogInvalidField(KeyCPSMode, CPSNone)
				c.CPSMode = CPSNone
			}
		},
	},
	{
		Name: KeyCPSRegisters,
		Type: typeString,
		Update: func(c *Config, v string) {
			regs := parseUints(KeyCPSRegisters, v, 32, c)
			c.CPSRegisters = make([]uint32, len(regs))
			for i, r := range regs {
				c.CPSRegisters[i] = uint32(r)
			}
		},
	},
	{
		Name:   KeyDCFaultControls,
		Type:   typeString,
		Update: func(c *Config, v string) { c.DCFaultControls = parseList(v) },
		Validate: func(c *Config) {
			if len(c.DCFaultControls) < int(c.Channels) {
				c.LogInvalidField(KeyDCFaultControls, defaultDCFaultControls)
				c.DCFaultControls = append([]string(nil), defaultDCFaultControls...)
			}
		},
	},
	{
		Name:   KeyDynamicCalibration,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.DynamicCalibration = parseBool(KeyDynamicCalibration, v, c) },
	},
	{
		Name:   KeyFixedTemp,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.FixedTemp = parseInt(KeyFixedTemp, v, c) },
	},
	{
		Name:   KeyFTMTime,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.FTMTime = parseMillis(KeyFTMTime, v, c) },
		Validate: func(c *Config) {
			c.FTMTime = positiveDuration(KeyFTMTime, c.FTMTime, defaultFTMTime, c)
		},
	},
	{
		Name:   KeyFTMWaitTime,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.FTMWaitTime = parseMillis(KeyFTMWaitTime, v, c) },
		Validate: func(c *Config) {
			c.FTMWaitTime = positiveDuration(KeyFTMWaitTime, c.FTMWaitTime, defaultFTMWaitTime, c)
		},
	},
	{
		Name:   KeyI2CAddress,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.I2CAddress = parseHex(KeyI2CAddress, v, c) },
	},
	{
		Name:   KeyI2CBus,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.I2CBus = parseUint(KeyI2CBus, v, c) },
	},
	{
		Name:   KeyI2CRegisters,
		Type:   typeString,
		Update: func(c *Config, v string) { c.I2CRegisters = parseUints(KeyI2CRegisters, v, 8, c) },
	},
	{
		Name: KeyLogging,
		Type: "enum:Debug,Info,Warning,Error,Fatal",
		Update: func(c *Config, v string) {
			switch v {
			case "Debug":
				c.LogLevel = logging.Debug
			case "Info":
				c.LogLevel = logging.Info
			case "Warning":
				c.LogLevel = logging.Warning
			case "Error":
				c.LogLevel = logging.Error
			case "Fatal":
				c.LogLevel = logging.Fatal
			default:
				c.Logger.Warning("invalid Logging param", "value", v)
			}
		},
		Validate: func(c *Config) {
			switch c.LogLevel {
			case logging.Debug, logging.Info, logging.Warning, logging.Error, logging.Fatal:
			default:
				c.LogInvalidField("LogLevel", defaultVerbosity)
				c.LogLevel = defaultVerbosity
			}
		},
	},
	{
		Name:   KeyMetricsAddress,
		Type:   typeString,
		Update: func(c *Config, v string) { c.MetricsAddress = v },
	},
	{
		Name:   KeyMinIdle,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.MinIdle = parseSeconds(KeyMinIdle, v, c) },
		Validate: func(c *Config) {
			if c.MinIdle <= 0 {
				c.LogInvalidField(KeyMinIdle, defaultMinIdle)
				c.MinIdle = defaultMinIdle
			}
		},
	},
	{
		Name:   KeyMixerPaths,
		Type:   typeString,
		Update: func(c *Config, v string) { c.MixerPaths = v },
	},
	{
		Name:   KeyNATSSubject,
		Type:   typeString,
		Update: func(c *Config, v string) { c.NATSSubject = v },
		Validate: func(c *Config) {
			if c.NATSSubject == "" {
				c.NATSSubject = defaultNATSSubject
			}
		},
	},
	{
		Name:   KeyNATSURL,
		Type:   typeString,
		Update: func(c *Config, v string) { c.NATSURL = v },
	},
	{
		Name:   KeyRxDevice,
		Type:   typeString,
		Update: func(c *Config, v string) { c.RxDevice = v },
	},
	{
		Name: KeySpeakerMode,
		Type: "enum:normal,ftm,validation",
		Update: func(c *Config, v string) {
			c.SpeakerMode = SpeakerMode(parseEnum(
				KeySpeakerMode,
				v,
				map[string]uint8{
					"normal":     uint8(ModeNormal),
					"ftm":        uint8(ModeFactoryTest),
					"validation": uint8(ModeValidation),
				},
				c,
			))
		},
		Validate: func(c *Config) {
			switch c.SpeakerMode {
			case ModeNormal, ModeFactoryTest, ModeValidation:
			default:
				c.LogInvalidField(KeySpeakerMode, ModeNormal)
				c.SpeakerMode = ModeNormal
			}
		},
	},
	{
		Name:   KeyStorePath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.StorePath = v },
		Validate: func(c *Config) {
			if c.StorePath == "" {
				c.LogInvalidField(KeyStorePath, defaultStorePath)
				c.StorePath = defaultStorePath
			}
		},
	},
	{
		Name: KeySuppress,
		Type: typeBool,
		Update: func(c *Config, v string) {
			c.Suppress = parseBool(KeySuppress, v, c)
			if jl, ok := c.Logger.(*logging.JSONLogger); ok {
				jl.SetSuppress(c.Suppress)
			}
		},
	},
	{
		Name:   KeyTempControls,
		Type:   typeString,
		Update: func(c *Config, v string) { c.TempControls = parseList(v) },
		Validate: func(c *Config) {
			if len(c.TempControls) < int(c.Channels) {
				c.LogInvalidField(KeyTempControls, defaultTempControls)
				c.TempControls = append([]string(nil), defaultTempControls...)
			}
		},
	},
	{
		Name:   KeyTempRetries,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.TempRetries = parseUint(KeyTempRetries, v, c) },
		Validate: func(c *Config) {
			if c.TempRetries == 0 {
				c.LogInvalidField(KeyTempRetries, defaultTempRetries)
				c.TempRetries = defaultTempRetries
			}
		},
	},
	{
		Name:   KeyTempRetryInterval,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.TempRetryInterval = parseMillis(KeyTempRetryInterval, v, c) },
		Validate: func(c *Config) {
			c.TempRetryInterval = positiveDuration(KeyTempRetryInterval, c.TempRetryInterval, defaultTempRetryInterval, c)
		},
	},
	{
		Name: KeyTempSensor,
		Type: "enum:mixer,i2c,fixed",
		Update: func(c *Config, v string) {
			c.TempSensor = parseEnum(
				KeyTempSensor,
				v,
				map[string]uint8{
					"mixer": SensorMixer,
					"i2c":   SensorI2C,
					"fixed": SensorFixed,
				},
				c,
			)
		},
		Validate: func(c *Config) {
			switch c.TempSensor {
			case SensorMixer, SensorFixed:
			case SensorI2C:
				if len(c.I2CRegisters) < int(c.Channels) || c.I2CAddress == 0 {
					c.LogInvalidField(KeyTempSensor, "mixer")
					c.TempSensor = SensorMixer
				}
			default:
				c.LogInvalidField(KeyTempSensor, "mixer")
				c.TempSensor = SensorMixer
			}
		},
	},
	{
		Name:   KeyTxDevice,
		Type:   typeString,
		Update: func(c *Config, v string) { c.TxDevice = v },
	},
	{
		Name:   KeyValidationTime,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.ValidationTime = parseMillis(KeyValidationTime, v, c) },
		Validate: func(c *Config) {
			c.ValidationTime = positiveDuration(KeyValidationTime, c.ValidationTime, defaultValidationTime, c)
		},
	},
	{
		Name:   KeyValidationWaitTime,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.ValidationWaitTime = parseMillis(KeyValidationWaitTime, v, c) },
		Validate: func(c *Config) {
			c.ValidationWaitTime = positiveDuration(KeyValidationWaitTime, c.ValidationWaitTime, defaultValidationWaitTime, c)
		},
	},
	{
		Name:   KeyWakeInterval,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.WakeInterval = parseSeconds(KeyWakeInterval, v, c) },
		Validate: func(c *Config) {
			c.WakeInterval = positiveDuration(KeyWakeInterval, c.WakeInterval, defaultWakeInterval, c)
		},
	},
}

func parseUint(n, v string, c *Config) uint {
	_v, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected unsigned int for param %s", n), "value", v)
	}
	return uint(_v)
}

func parseInt(n, v string, c *Config) int {
	_v, err := strconv.Atoi(v)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected integer for param %s", n), "value", v)
	}
	return _v
}

func parseHex(n, v string, c *Config) uint {
	_v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(v), "0x"), 16, 64)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected hex value for param %s", n), "value", v)
	}
	return uint(_v)
}

// parseUints parses a comma separated list of hex (0x prefixed) or decimal
// values, each fitting in bits bits. Bad values are logged and skipped.
func parseUints(n, v string, bits int, c *Config) []uint {
	var vals []uint
	for _, s := range parseList(v) {
		_v, err := strconv.ParseUint(s, 0, bits)
		if err != nil {
			c.Logger.Warning(fmt.Sprintf("invalid value in list param %s", n), "value", s)
			continue
		}
		vals = append(vals, uint(_v))
	}
	return vals
}

func parseSeconds(n, v string, c *Config) time.Duration {
	return time.Duration(parseUint(n, v, c)) * time.Second
}

func parseMillis(n, v string, c *Config) time.Duration {
	return time.Duration(parseUint(n, v, c)) * time.Millisecond
}

func parseBool(n, v string, c *Config) (b bool) {
	switch strings.ToLower(v) {
	case "true":
		b = true
	case "false":
		b = false
	default:
		c.Logger.Warning(fmt.Sprintf("expect bool for param %s", n), "value", v)
	}
	return
}

func parseEnum(n, v string, enums map[string]uint8, c *Config) uint8 {
	_v, ok := enums[strings.ToLower(v)]
	if !ok {
		c.Logger.Warning(fmt.Sprintf("invalid value for %s param", n), "value", v)
	}
	return _v
}

// parseList splits a comma separated list, trimming space and dropping
// empty entries.
func parseList(v string) []string {
	var l []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			l = append(l, s)
		}
	}
	return l
}

func positiveDuration(n string, v, def time.Duration, c *Config) time.Duration {
	if v <= 0 {
		c.LogInvalidField(n, def)
		return def
	}
	return v
}
