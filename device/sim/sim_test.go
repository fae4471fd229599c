/*
DESCRIPTION
  sim_test.go provides tests for the simulated platform.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/spkrprot/device/agm"
	"github.com/ausocean/spkrprot/dsp"
	"github.com/ausocean/utils/logging"
)

func newTestPlatform(t *testing.T) *Platform {
	p := NewPlatform((*logging.TestLogger)(t), DefaultDevices(2))
	t.Cleanup(p.Close)
	return p
}

func TestMixer(t *testing.T) {
	m := NewMixer()
	if _, err := m.Value("Missing"); !errors.Is(err, ErrNoControl) {
		t.Errorf("expected ErrNoControl, got: %v", err)
	}
	m.SetValue("Temp", 25)
	m.SetEnum("Mode", "On")
	m.SetBytes("Blob", []byte{1, 2})
	if v, err := m.Value("Temp"); err != nil || v != 25 {
		t.Errorf("unexpected value: %d, %v", v, err)
	}
	if m.Enum("Mode") != "On" {
		t.Errorf("unexpected enum: %s", m.Enum("Mode"))
	}
	if n := len(m.Writes("")); n != 3 {
		t.Errorf("unexpected number of writes: %d", n)
	}
}

func TestFrontEnds(t *testing.T) {
	p := newTestPlatform(t)
	attr := device.StreamAttributes{Type: device.StreamProxy, Direction: device.Capture, Device: device.VIFeedback}

	var got [][]int
	for range captureFEs {
		fes, err := p.AllocateFrontEndIDs(attr, device.Capture)
		if err != nil {
			t.Fatalf("could not allocate: %v", err)
		}
		got = append(got, fes)
	}
	_, err := p.AllocateFrontEndIDs(attr, device.Capture)
	if !errors.Is(err, ErrNoFrontEnd) {
		t.Errorf("expected ErrNoFrontEnd, got: %v", err)
	}
	for _, fes := range got {
		p.FreeFrontEndIDs(fes, attr, device.Capture)
	}
	if n := p.Allocated(); n != 0 {
		t.Errorf("front ends still allocated: %d", n)
	}

	_, err = p.OpenPCM(VirtualCard, got[0][0], device.Capture, device.PCMConfig{})
	if err == nil {
		t.Error("expected error opening PCM on freed front end")
	}
}

func TestCalibrationResponse(t *testing.T) {
	p := newTestPlatform(t)
	p.OnCalibration(time.Millisecond, Respond(Success(2, 0x900000)))
	m := p.Virtual()

	open := func(id device.ID, dir device.Direction, st device.StreamType) (int, device.PCM) {
		fes, err := p.AllocateFrontEndIDs(device.StreamAttributes{Type: st, Direction: dir, Device: id}, dir)
		if err != nil {
			t.Fatalf("could not allocate: %v", err)
		}
		pcm, err := p.OpenPCM(VirtualCard, fes[0], dir, device.PCMConfig{})
		if err != nil {
			t.Fatalf("could not open PCM: %v", err)
		}
		return fes[0], pcm
	}
	tx, txPCM := open(device.VIFeedback, device.Capture, device.StreamCalibration)
	_, rxPCM := open(device.Speaker, device.Playback, device.StreamLowLatency)

	miid, err := agm.ModuleInstanceID(m, tx, "CODEC_DMA-LPAIF_WSA-TX-0", dsp.TagSpeakerProtVI)
	if err != nil {
		t.Fatalf("could not get module instance: %v", err)
	}
	mode, _ := dsp.VIOpModeConfig{Channels: 2, Mode: dsp.OpCalibration}.MarshalBinary()
	var payload dsp.Payload
	payload.Add(dsp.ParamVIOpModeCfg, miid, mode)
	err = agm.SetCustomPayload(m, tx, "CODEC_DMA-LPAIF_WSA-TX-0", payload)
	if err != nil {
		t.Fatalf("could not set payload: %v", err)
	}
	err = agm.RegisterEvent(m, tx, miid, dsp.EventVICalibration, true)
	if err != nil {
		t.Fatalf("could not register event: %v", err)
	}

	events := make(chan device.Event, 1)
	p.RegisterMixerEventCallback([]int{tx}, func(e device.Event) { events <- e }, true)

	if err := txPCM.Start(); err != nil {
		t.Fatal(err)
	}
	if err := rxPCM.Start(); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-events:
		var ev dsp.CalibrationEvent
		err := ev.UnmarshalBinary(e.Payload)
		if err != nil || e.EventID != dsp.EventVICalibration || ev.Outcome() != dsp.OutcomeSuccess {
			t.Errorf("unexpected event: %+v, %v", e, err)
		}
	case <-time.After(time.Second):
		t.Fatal("no calibration event")
	}
}
