/*
DESCRIPTION
  config_test.go provides testing for the Config struct methods (Validate and Update).

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"
)

type dumbLogger struct{}

func (dl *dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dl *dumbLogger) SetLevel(l int8)                         {}
func (dl *dumbLogger) Debug(msg string, args ...interface{})   {}
func (dl *dumbLogger) Info(msg string, args ...interface{})    {}
func (dl *dumbLogger) Warning(msg string, args ...interface{}) {}
func (dl *dumbLogger) Error(msg string, args ...interface{})   {}
func (dl *dumbLogger) Fatal(msg string, args ...interface{})   {}

func defaults(l logging.Logger) Config {
	return Config{
		Logger:             l,
		LogLevel:           defaultVerbosity,
		Channels:           defaultChannels,
		MinIdle:            defaultMinIdle,
		WakeInterval:       defaultWakeInterval,
		TempRetries:        defaultTempRetries,
		TempRetryInterval:  defaultTempRetryInterval,
		CalibrationTimeout: defaultCalibrationTimeout,
		StorePath:          defaultStorePath,
		CPSControl:         defaultCPSControl,
		FTMWaitTime:        defaultFTMWaitTime,
		FTMTime:            defaultFTMTime,
		ValidationWaitTime: defaultValidationWaitTime,
		ValidationTime:     defaultValidationTime,
		TempControls:       defaultTempControls,
		DCFaultControls:    defaultDCFaultControls,
		NATSSubject:        defaultNATSSubject,
	}
}

func TestValidate(t *testing.T) {
	dl := &dumbLogger{}
	want := defaults(dl)

	got := Config{Logger: dl, LogLevel: -10}
	err := (&got).Validate()
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	if !cmp.Equal(got, want) {
		t.Errorf("configs not equal\nwant: %v\ngot: %v", want, got)
	}
	if got.QuickCalibration() {
		t.Error("default idle time should not request quick calibration")
	}
}

func TestValidateFallbacks(t *testing.T) {
	dl := &dumbLogger{}
	tests := []struct {
		in    Config
		check func(Config) bool
	}{
		{
			in:    Config{Logger: dl, Channels: 3},
			check: func(c Config) bool { return c.Channels == defaultChannels },
		},
		{
			in:    Config{Logger: dl, Channels: 1, TempControls: []string{"Left Temp"}, DCFaultControls: []string{"Left DC"}},
			check: func(c Config) bool { return c.TempControls[0] == "Left Temp" && c.DCFaultControls[0] == "Left DC" },
		},
		{
			in:    Config{Logger: dl, Channels: 2, TempControls: []string{"Left Temp"}},
			check: func(c Config) bool { return cmp.Equal(c.TempControls, defaultTempControls) },
		},
		{
			in:    Config{Logger: dl, CPSMode: CPSRegister},
			check: func(c Config) bool { return c.CPSMode == CPSNone },
		},
		{
			in:    Config{Logger: dl, CPSMode: CPSRegister, CPSRegisters: []uint32{0x3020}},
			check: func(c Config) bool { return c.CPSMode == CPSRegister },
		},
		{
			in:    Config{Logger: dl, TempSensor: SensorI2C},
			check: func(c Config) bool { return c.TempSensor == SensorMixer },
		},
		{
			in:    Config{Logger: dl, TempSensor: SensorI2C, I2CAddress: 0x48, I2CRegisters: []uint{0, 1}},
			check: func(c Config) bool { return c.TempSensor == SensorI2C },
		},
		{
			in:    Config{Logger: dl, SpeakerMode: 9},
			check: func(c Config) bool { return c.SpeakerMode == ModeNormal },
		},
		{
			in:    Config{Logger: dl, MinIdle: 30 * time.Second},
			check: func(c Config) bool { return c.MinIdle == 30*time.Second && c.QuickCalibration() },
		},
	}

	for i, test := range tests {
		c := test.in
		err := c.Validate()
		if err != nil {
			t.Fatalf("did not expect error for test %d: %v", i, err)
		}
		if !test.check(c) {
			t.Errorf("unexpected result for test %d: %+v", i, c)
		}
	}
}

func TestUpdate(t *testing.T) {
	updateMap := map[string]string{
		"CalibrationTimeout": "20",
		"Channels":           "1",
		"CPSControl":         "CPS Ctl",
		"CPSDevice":          "CPS-BE",
		"CPSMode":            "Register",
		"CPSRegisters":       "0x3020, 0x3024",
		"DCFaultControls":    "Left DC",
		"DynamicCalibration": "true",
		"FixedTemp":          "-5",
		"FTMTime":            "4000",
		"FTMWaitTime":        "1500",
		"I2CAddress":         "0x48",
		"I2CBus":             "1",
		"I2CRegisters":       "0x00,0x01",
		"logging":            "Debug",
		"MetricsAddress":     ":9100",
		"MinIdle":            "30",
		"MixerPaths":         "/vendor/etc/mixer_paths.xml",
		"NATSSubject":        "spk",
		"NATSURL":            "nats://localhost:4222",
		"RxDevice":           "RX-BE",
		"SpeakerMode":        "ftm",
		"StorePath":          "/data/spkr.cal",
		"TempControls":       "Left Temp ,",
		"TempRetries":        "5",
		"TempRetryInterval":  "250",
		"TempSensor":         "i2c",
		"TxDevice":           "TX-BE",
		"ValidationTime":     "3000",
		"ValidationWaitTime": "500",
		"WakeInterval":       "10",
	}

	dl := &dumbLogger{}

	want := Config{
		Logger:             dl,
		CalibrationTimeout: 20 * time.Second,
		Channels:           1,
		CPSControl:         "CPS Ctl",
		CPSDevice:          "CPS-BE",
		CPSMode:            CPSRegister,
		CPSRegisters:       []uint32{0x3020, 0x3024},
		DCFaultControls:    []string{"Left DC"},
		DynamicCalibration: true,
		FixedTemp:          -5,
		FTMTime:            4 * time.Second,
		FTMWaitTime:        1500 * time.Millisecond,
		I2CAddress:         0x48,
		I2CBus:             1,
		I2CRegisters:       []uint{0, 1},
		LogLevel:           logging.Debug,
		MetricsAddress:     ":9100",
		MinIdle:            30 * time.Second,
		MixerPaths:         "/vendor/etc/mixer_paths.xml",
		NATSSubject:        "spk",
		NATSURL:            "nats://localhost:4222",
		RxDevice:           "RX-BE",
		SpeakerMode:        ModeFactoryTest,
		StorePath:          "/data/spkr.cal",
		TempControls:       []string{"Left Temp"},
		TempRetries:        5,
		TempRetryInterval:  250 * time.Millisecond,
		TempSensor:         SensorI2C,
		TxDevice:           "TX-BE",
		ValidationTime:     3 * time.Second,
		ValidationWaitTime: 500 * time.Millisecond,
		WakeInterval:       10 * time.Second,
	}

	got := Config{Logger: dl}
	got.Update(updateMap)
	if !cmp.Equal(want, got) {
		t.Errorf("configs not equal\nwant: %v\ngot: %v", want, got)
	}
}
