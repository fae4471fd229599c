/*
DESCRIPTION
  dsp_test.go provides tests for DSP payload construction and event decoding.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package dsp

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuildParam(t *testing.T) {
	got := BuildParam(0x0A0B0C0D, 0x42, []byte{1, 2, 3})
	want := []byte{
		0x42, 0, 0, 0, // MIID.
		0x0D, 0x0C, 0x0B, 0x0A, // Param ID.
		3, 0, 0, 0, // Size.
		0, 0, 0, 0, // Error code.
		1, 2, 3, 0, 0, 0, 0, 0, // Data, padded.
	}
	if !bytes.Equal(got, want) {
		t.Errorf("did not get expected result\nGot: %v\nWant: %v", got, want)
	}
}

func TestPayload(t *testing.T) {
	var p Payload
	mode, _ := VIOpModeConfig{Channels: 2, Mode: OpCalibration, QuickCal: true}.MarshalBinary()
	cmap, _ := DefaultChannelMap(2).MarshalBinary()
	p.Add(ParamVIOpModeCfg, 7, mode)
	p.Add(ParamVIChannelMapCfg, 7, cmap)
	p.Add(ParamSPOpMode, 9, nil)

	params, err := ParseParams(p)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if len(params) != 3 {
		t.Fatalf("unexpected param count: %d", len(params))
	}

	got, ok := Find(params, ParamVIOpModeCfg)
	if !ok {
		t.Fatal("op mode param not found")
	}
	var cfg VIOpModeConfig
	err = cfg.UnmarshalBinary(got.Data)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	want := VIOpModeConfig{Channels: 2, Mode: OpCalibration, QuickCal: true}
	if !cmp.Equal(cfg, want) {
		t.Errorf("did not get expected op mode\nGot: %v\nWant: %v", cfg, want)
	}
	if params[1].MIID != 7 || len(params[1].Data) != len(cmap) {
		t.Errorf("unexpected channel map param: %+v", params[1])
	}
	if params[2].MIID != 9 || len(params[2].Data) != 0 {
		t.Errorf("unexpected empty param: %+v", params[2])
	}

	p.Reset()
	if len(p) != 0 {
		t.Error("payload not reset")
	}
}

func TestParseParamsErrors(t *testing.T) {
	full := BuildParam(ParamVIR0T0Cfg, 1, make([]byte, 12))
	tests := [][]byte{
		full[:HeaderSize-1],
		full[:HeaderSize+4],
	}
	for i, b := range tests {
		_, err := ParseParams(b)
		if err == nil {
			t.Errorf("expected error for test %d", i)
		}
	}
}

func TestR0T0Config(t *testing.T) {
	want := R0T0Config{{R0Q24: 0x900000, T0Q6: 25 << 6}, {R0Q24: 2 << 24, T0Q6: -5 << 6}}
	b, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	var got R0T0Config
	err = got.UnmarshalBinary(b)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if !cmp.Equal(got, want) {
		t.Errorf("did not get expected result\nGot: %v\nWant: %v", got, want)
	}
}

func TestCalibrationOutcome(t *testing.T) {
	tests := []struct {
		ev   CalibrationEvent
		want Outcome
	}{
		{ev: nil, want: OutcomePending},
		{ev: CalibrationEvent{{CalibSuccess, 1}, {CalibSuccess, 2}}, want: OutcomeSuccess},
		{ev: CalibrationEvent{{CalibSuccess, 1}, {CalibInProgress, 0}}, want: OutcomePending},
		{ev: CalibrationEvent{{CalibSuccess, 1}, {CalibFailure, 0}}, want: OutcomeFailure},
		{ev: CalibrationEvent{{CalibWarmup, 0}, {CalibLowVoltage, 0}}, want: OutcomeFailure},
		{ev: CalibrationEvent{{CalibIncorrectOpMode, 0}}, want: OutcomePending},
	}
	for i, test := range tests {
		if got := test.ev.Outcome(); got != test.want {
			t.Errorf("did not get expected outcome for test %d: got %d, want %d", i, got, test.want)
		}
	}
}

func TestCalibrationEvent(t *testing.T) {
	want := CalibrationEvent{{CalibSuccess, 0x900000}, {CalibSuccess, 0x910000}}
	b, _ := want.MarshalBinary()
	var got CalibrationEvent
	err := got.UnmarshalBinary(b)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if !cmp.Equal(got, want) {
		t.Errorf("did not get expected result\nGot: %v\nWant: %v", got, want)
	}

	err = got.UnmarshalBinary(b[:len(b)-1])
	if err == nil {
		t.Error("expected error for truncated event")
	}
	err = got.UnmarshalBinary([]byte{0xff, 0xff, 0, 0})
	if err == nil {
		t.Error("expected error for implausible channel count")
	}
}

func TestDiagnosticsEvent(t *testing.T) {
	b, _ := DiagnosticsEvent{CondDCFault, CondOverTemp | CondDCFault}.MarshalBinary()
	var ev DiagnosticsEvent
	err := ev.UnmarshalBinary(b)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if !ev.DCFault(0) || ev.OverTemp(0) {
		t.Errorf("unexpected flags for channel 0: %#x", ev[0])
	}
	if !ev.DCFault(1) || !ev.OverTemp(1) {
		t.Errorf("unexpected flags for channel 1: %#x", ev[1])
	}
}

func TestTestResults(t *testing.T) {
	want := TestResults{{ResistanceQ24: 7 << 23, TemperatureQ22: 30 << 22, Status: 1}}
	b, _ := want.MarshalBinary()
	var got TestResults
	err := got.UnmarshalBinary(b)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if !cmp.Equal(got, want) {
		t.Errorf("did not get expected result\nGot: %v\nWant: %v", got, want)
	}
	if got[0].Ohms() != 3.5 || got[0].Celsius() != 30 {
		t.Errorf("unexpected conversions: %v ohms, %v C", got[0].Ohms(), got[0].Celsius())
	}
}
