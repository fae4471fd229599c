/*
DESCRIPTION
  runtime_test.go provides tests for the runtime processing controller, VI
  and CPS feedback, and DSP diagnostics handling.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package protection

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/ausocean/spkrprot/calstore"
	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/spkrprot/device/agm"
	"github.com/ausocean/spkrprot/device/sensor"
	"github.com/ausocean/spkrprot/device/sim"
	"github.com/ausocean/spkrprot/dsp"
	"github.com/ausocean/spkrprot/protection/config"
)

// idleProtection returns a SpeakerProtection whose scheduler never becomes
// eligible to calibrate.
func idleProtection(t *testing.T, cfg config.Config, p *sim.Platform, opts ...Option) *SpeakerProtection {
	return newProtection(t, cfg, p, sensor.Fixed{25, 25}, append(opts, WithClock(newClock().now))...)
}

func useCount(sp *SpeakerProtection) uint {
	sp.ctx.mu.Lock()
	defer sp.ctx.mu.Unlock()
	return sp.ctx.useCount
}

func TestUseCount(t *testing.T) {
	p := newPlatform(t)
	sp := idleProtection(t, testConfig(t), p)

	var handles []*Handle
	for i := 0; i < 3; i++ {
		handles = append(handles, sp.Acquire())
	}
	if n := p.Starts(device.VIFeedback); n != 1 {
		t.Errorf("VI feedback started %d times for 3 users", n)
	}
	if !p.Running(device.VIFeedback, device.StreamProxy) {
		t.Fatal("VI feedback not running")
	}

	handles[0].Release()
	handles[0].Release()
	handles[1].Release()
	if !p.Running(device.VIFeedback, device.StreamProxy) {
		t.Error("VI feedback stopped with a user remaining")
	}
	if n := useCount(sp); n != 1 {
		t.Errorf("unexpected use count: %d", n)
	}

	handles[2].Release()
	if p.Running(device.VIFeedback, 0) {
		t.Error("VI feedback running after last user")
	}
	if n := p.Allocated(); n != 0 {
		t.Errorf("front ends left allocated: %d", n)
	}

	// Unmatched stops saturate at zero.
	sp.Stop()
	if n := useCount(sp); n != 0 {
		t.Errorf("unexpected use count after unmatched stop: %d", n)
	}
	sp.Start()
	if !p.Running(device.VIFeedback, device.StreamProxy) {
		t.Error("VI feedback not running after restart")
	}
	sp.Stop()
}

func TestBackendOverride(t *testing.T) {
	p := newPlatform(t)
	cfg := testConfig(t)
	cfg.TxDevice = "VI-OVERRIDE-BE"
	sp := idleProtection(t, cfg, p)

	h := sp.Acquire()
	defer h.Release()

	linked := map[string]bool{}
	for _, w := range p.Virtual().Writes("") {
		_, suffix, ok := agm.ParseControlName(w.Control)
		if !ok || suffix != agm.CtlConnect {
			continue
		}
		if be, ok := w.Value.(string); ok {
			linked[be] = true
		}
	}
	if !linked["VI-OVERRIDE-BE"] {
		t.Errorf("configured backend not linked, links: %v", linked)
	}
	if linked["CODEC_DMA-LPAIF_WSA-TX-0"] {
		t.Error("device table backend linked despite configured backend")
	}
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	var m dto.Metric
	err := g.Write(&m)
	if err != nil {
		t.Fatalf("could not read gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestInstanceMetrics(t *testing.T) {
	a := idleProtection(t, testConfig(t), newPlatform(t), WithName("left"))
	b := idleProtection(t, testConfig(t), newPlatform(t), WithName("right"))

	h := a.Acquire()
	if v := gaugeValue(t, playbackUseCount.WithLabelValues("left")); v != 1 {
		t.Errorf("unexpected use count of left: %v", v)
	}
	if v := gaugeValue(t, playbackUseCount.WithLabelValues("right")); v != 0 {
		t.Errorf("unexpected use count of right: %v", v)
	}
	b.Acquire().Release()
	if v := gaugeValue(t, playbackUseCount.WithLabelValues("left")); v != 1 {
		t.Errorf("use count of left changed by right: %v", v)
	}
	h.Release()

	for _, name := range []string{"left", "right"} {
		if v := gaugeValue(t, calibrationState.WithLabelValues(name)); v != float64(NotCalibrated) {
			t.Errorf("unexpected calibration state of %s: %v", name, v)
		}
	}

	_, err := New(testConfig(t), newPlatform(t), sensor.Fixed{25, 25}, WithName(""))
	if err == nil {
		t.Error("expected error for empty name")
	}
}

func TestFeedbackDefaults(t *testing.T) {
	p := newPlatform(t)
	sp := idleProtection(t, testConfig(t), p)

	h := sp.Acquire()
	defer h.Release()

	want := dsp.R0T0Config{
		{R0Q24: calstore.MinResistanceQ24, T0Q6: calstore.SafeTempQ6},
		{R0Q24: calstore.MinResistanceQ24, T0Q6: calstore.SafeTempQ6},
	}
	if got := r0t0(t, p); !cmp.Equal(got, want) {
		t.Errorf("unexpected R0T0 config\ngot: %v\nwant: %v", got, want)
	}
}

func TestFeedbackStoredCalibration(t *testing.T) {
	p := newPlatform(t)
	cfg := testConfig(t)
	err := calstore.New(cfg.StorePath).Save([]calstore.Record{
		{ResistanceQ24: 0x900000, TemperatureQ6: 1600},
		{ResistanceQ24: 0x4000000, TemperatureQ6: 1280},
	})
	if err != nil {
		t.Fatalf("could not save calibration: %v", err)
	}
	sp := newProtection(t, cfg, p, sensor.Fixed{25, 25})

	h := sp.Acquire()
	defer h.Release()

	want := dsp.R0T0Config{
		{R0Q24: calstore.MinResistanceQ24, T0Q6: 1600},
		{R0Q24: 0x4000000, T0Q6: 1280},
	}
	if got := r0t0(t, p); !cmp.Equal(got, want) {
		t.Errorf("unexpected R0T0 config\ngot: %v\nwant: %v", got, want)
	}
}

func TestFeedbackFailure(t *testing.T) {
	p := newPlatform(t)
	p.FailStart(device.VIFeedback, errors.New("xrun"))
	sp := idleProtection(t, testConfig(t), p)

	h := sp.Acquire()
	if n := useCount(sp); n != 1 {
		t.Errorf("playback not counted after feedback failure: %d", n)
	}
	if n := p.Allocated(); n != 0 {
		t.Errorf("front ends left allocated after failed setup: %d", n)
	}
	h.Release()
	if n := useCount(sp); n != 0 {
		t.Errorf("unexpected use count: %d", n)
	}
}

func TestModes(t *testing.T) {
	results := dsp.TestResults{
		{ResistanceQ24: 0x6000000, TemperatureQ22: 25 << 22, Status: 1},
		{ResistanceQ24: 0x6100000, TemperatureQ22: 26 << 22, Status: 1},
	}
	tests := []struct {
		mode    config.SpeakerMode
		op      dsp.OpMode
		param   uint32
		timing  dsp.TestTiming
		wantErr error
	}{
		{mode: config.ModeNormal, op: dsp.OpNormal, wantErr: ErrMode},
		{mode: config.ModeFactoryTest, op: dsp.OpFactoryTest, param: dsp.ParamVIFTMCfg, timing: dsp.TestTiming{WaitMS: 1000, MeasureMS: 3000}},
		{mode: config.ModeValidation, op: dsp.OpValidation, param: dsp.ParamVIValidationCfg, timing: dsp.TestTiming{WaitMS: 1500, MeasureMS: 4000}},
	}

	for _, test := range tests {
		t.Run(test.mode.String(), func(t *testing.T) {
			p := newPlatform(t)
			p.SetTestResults(results)
			cfg := testConfig(t)
			cfg.FTMWaitTime, cfg.FTMTime = time.Second, 3*time.Second
			cfg.ValidationWaitTime, cfg.ValidationTime = 1500*time.Millisecond, 4*time.Second
			sp := idleProtection(t, cfg, p)

			_, err := sp.FactoryTestResults()
			if !errors.Is(err, ErrNotActive) {
				t.Errorf("expected ErrNotActive before playback, got: %v", err)
			}

			sp.SetMode(test.mode)
			h := sp.Acquire()
			defer h.Release()

			b, _ := p.Param(device.VIFeedback, dsp.ParamVIOpModeCfg)
			var mode dsp.VIOpModeConfig
			err = mode.UnmarshalBinary(b)
			if err != nil || mode.Mode != test.op {
				t.Errorf("unexpected VI op mode: %+v, %v", mode, err)
			}
			if test.param != 0 {
				got, ok := p.Param(device.VIFeedback, test.param)
				want, _ := dsp.TestConfig{test.timing, test.timing}.MarshalBinary()
				if !ok {
					t.Errorf("test config %#x not sent", test.param)
				} else if !cmp.Equal(got, want) {
					t.Errorf("unexpected test config %#x\ngot: %x\nwant: %x", test.param, got, want)
				}
			}

			got, err := sp.FactoryTestResults()
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Errorf("expected %v, got: %v", test.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("could not get test results: %v", err)
			}
			if !cmp.Equal(got, results) {
				t.Errorf("unexpected test results\ngot: %v\nwant: %v", got, results)
			}
		})
	}
}

func TestCPS(t *testing.T) {
	t.Run("pcm", func(t *testing.T) {
		p := newPlatform(t)
		cfg := testConfig(t)
		cfg.CPSMode = config.CPSPCM
		sp := idleProtection(t, cfg, p)

		h := sp.Acquire()
		if !p.Running(device.CPSFeedback, device.StreamProxy) {
			t.Error("CPS capture not running")
		}
		h.Release()
		if p.Running(device.CPSFeedback, 0) {
			t.Error("CPS capture running after release")
		}
		if n := p.Allocated(); n != 0 {
			t.Errorf("front ends left allocated: %d", n)
		}
	})

	regs := []uint32{0x3020, 0x3024}
	want, _ := dsp.CPSRegisterConfig(regs).MarshalBinary()

	t.Run("register", func(t *testing.T) {
		p := newPlatform(t)
		cfg := testConfig(t)
		cfg.CPSMode = config.CPSRegister
		cfg.CPSRegisters = regs
		sp := idleProtection(t, cfg, p)

		h := sp.Acquire()
		defer h.Release()
		got, ok := p.Param(device.VIFeedback, dsp.ParamCPSRegisterCfg)
		if !ok || !cmp.Equal(got, want) {
			t.Errorf("unexpected CPS register config: %v", got)
		}
		if p.Starts(device.CPSFeedback) != 0 {
			t.Error("CPS capture opened in register mode")
		}
	})

	t.Run("register via codec", func(t *testing.T) {
		p := newPlatform(t)
		p.RemoveCPSModule()
		cfg := testConfig(t)
		cfg.CPSControl = "WSA CPS Config"
		cfg.CPSMode = config.CPSRegister
		cfg.CPSRegisters = regs
		sp := idleProtection(t, cfg, p)

		h := sp.Acquire()
		defer h.Release()
		w := p.Hw().Writes(cfg.CPSControl)
		if len(w) != 1 || !cmp.Equal(w[0].Value, want) {
			t.Errorf("unexpected writes to %s: %v", cfg.CPSControl, w)
		}
	})
}

func TestDiagnostics(t *testing.T) {
	p := newPlatform(t)
	s := &sink{}
	cfg := testConfig(t)
	cfg.DCFaultControls = []string{"SpkrLeft DC Reset", "SpkrRight DC Reset"}
	sp := idleProtection(t, cfg, p, WithEventSink(s))

	h := sp.Acquire()
	defer h.Release()

	b, _ := dsp.DiagnosticsEvent{dsp.CondOverTemp, dsp.CondDCFault}.MarshalBinary()
	err := p.Emit(device.VIFeedback, dsp.EventSpeakerDiagnostics, b)
	if err != nil {
		t.Fatalf("could not emit event: %v", err)
	}

	waitFor(t, "DC reset", func() bool { return len(p.Hw().Writes("SpkrRight DC Reset")) == 2 })
	want := []sim.Write{{Control: "SpkrRight DC Reset", Value: 1}, {Control: "SpkrRight DC Reset", Value: 0}}
	if got := p.Hw().Writes("SpkrRight DC Reset"); !cmp.Equal(got, want) {
		t.Errorf("unexpected DC reset writes\ngot: %v\nwant: %v", got, want)
	}
	if w := p.Hw().Writes("SpkrLeft DC Reset"); len(w) != 0 {
		t.Errorf("unexpected writes to left DC reset: %v", w)
	}
	waitFor(t, "diagnostics notification", func() bool { return s.has(KindDiagnostics, "") })
}

// TestExclusion checks that calibration sessions and runtime feedback never
// run at the same time under concurrent playback starts and stops.
func TestExclusion(t *testing.T) {
	p := newPlatform(t)
	cfg := testConfig(t)
	cfg.DynamicCalibration = true
	cfg.CalibrationTimeout = 10 * time.Millisecond
	sp := newProtection(t, cfg, p, sensor.Fixed{25, 25})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				h := sp.Acquire()
				time.Sleep(time.Millisecond)
				h.Release()
				time.Sleep(2 * time.Millisecond)
			}
		}()
	}
	wg.Wait()
	sp.Close()

	if n := p.Overlaps(); n != 0 {
		t.Errorf("calibration and feedback overlapped %d times", n)
	}
	if n := useCount(sp); n != 0 {
		t.Errorf("unexpected use count: %d", n)
	}
	if n := p.Allocated(); n != 0 {
		t.Errorf("front ends left allocated: %d", n)
	}
}

func TestSharedContext(t *testing.T) {
	p := newPlatform(t)
	c := NewContext()
	sp := idleProtection(t, testConfig(t), p, WithContext(c))

	h := sp.Acquire()
	if !c.InUse() {
		t.Error("shared context not in use during playback")
	}
	h.Release()
	if c.InUse() {
		t.Error("shared context in use after release")
	}
}

func TestUpdate(t *testing.T) {
	p := newPlatform(t)
	cfg := testConfig(t)
	sp := idleProtection(t, cfg, p)

	err := sp.Update(map[string]string{"SpeakerMode": "validation", "Channels": "1", "MinIdle": "60"})
	if err != nil {
		t.Fatalf("could not update: %v", err)
	}
	got := sp.config()
	if got.SpeakerMode != config.ModeValidation || got.MinIdle != time.Minute {
		t.Errorf("update not applied: %+v", got)
	}
	if got.Channels != 2 {
		t.Errorf("channel count changed at runtime: %d", got.Channels)
	}
}
