/*
DESCRIPTION
  feedback.go provides the VI feedback task that runs while the speaker is
  playing, and the factory test result query that depends on it.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package protection

import (
	"context"
	"errors"
	"fmt"

	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/spkrprot/device/agm"
	"github.com/ausocean/spkrprot/dsp"
	"github.com/ausocean/spkrprot/protection/config"
)

// Errors returned by FactoryTestResults.
var (
	ErrNotActive = errors.New("speaker feedback not active")
	ErrMode      = errors.New("speaker not in factory test or validation mode")
)

// feedback is a running VI feedback task.
type feedback struct {
	cancel context.CancelFunc
	done   chan struct{}
	mode   config.SpeakerMode
	p      *path
	miid   uint32
}

// startFeedback starts the VI feedback task and waits for its path to be set
// up. Setup failures are logged.
func (sp *SpeakerProtection) startFeedback(cfg config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	fb := &feedback{
		cancel: cancel,
		done:   make(chan struct{}),
		mode:   cfg.SpeakerMode,
		p: newPath(device.VIFeedback, device.Capture, device.StreamProxy, agm.Metadata{
			GKV: []agm.KV{{Key: agm.KeyStreamTX, Value: agm.ValProxyTX}, {Key: agm.KeyDeviceTX, Value: agm.ValVIFeedback}},
			CKV: []agm.KV{{Key: agm.KeyDevicePP, Value: agm.ValSPNormal}},
		}),
	}
	ready := make(chan error, 1)
	go sp.runFeedback(ctx, fb, cfg, ready)

	err := <-ready
	if err != nil {
		sp.l.Error("could not start VI feedback", "error", err)
		cancel()
		<-fb.done
		return
	}
	sp.mu.Lock()
	sp.fb = fb
	sp.mu.Unlock()
}

// stopFeedback cancels the VI feedback task and waits for its teardown.
func (sp *SpeakerProtection) stopFeedback() {
	sp.mu.Lock()
	fb := sp.fb
	sp.fb = nil
	sp.mu.Unlock()
	if fb == nil {
		return
	}
	fb.cancel()
	<-fb.done
}

func (sp *SpeakerProtection) runFeedback(ctx context.Context, fb *feedback, cfg config.Config, ready chan<- error) {
	defer close(fb.done)

	err := sp.setupFeedback(fb, cfg)
	if err == nil {
		ready <- nil
		<-ctx.Done()
	} else {
		ready <- err
	}

	var errs device.MultiError
	if fb.miid != 0 {
		vm, err := sp.rm.VirtualMixer()
		if err == nil {
			err = agm.RegisterEvent(vm, fb.p.fe(), fb.miid, dsp.EventSpeakerDiagnostics, false)
		}
		errs.Add(err)
		errs.Add(sp.rm.RegisterMixerEventCallback(fb.p.fes, sp.handleEvent, false))
	}
	errs.Add(sp.close(fb.p))
	if err := errs.Err(); err != nil {
		sp.l.Warning("VI feedback teardown incomplete", "error", err)
	}
}

// setupFeedback opens the VI path, configures the VI module with the stored
// calibration and the requested operation mode, registers for diagnostics
// and starts capture.
func (sp *SpeakerProtection) setupFeedback(fb *feedback, cfg config.Config) error {
	err := sp.open(fb.p)
	if err != nil {
		return err
	}
	miid, err := sp.moduleID(fb.p, dsp.TagSpeakerProtVI)
	if err != nil {
		return err
	}

	n := int(cfg.Channels)
	recs, err := sp.store.LoadOrDefault(n)
	if err != nil {
		sp.l.Warning("using default speaker calibration", "error", err)
	}
	r0t0 := make(dsp.R0T0Config, n)
	for i, r := range recs {
		r = r.ClampResistance()
		r0t0[i] = dsp.R0T0{R0Q24: r.ResistanceQ24, T0Q6: r.TemperatureQ6}
	}

	var payload dsp.Payload
	mode := dsp.VIOpModeConfig{Channels: uint32(n), Mode: dsp.OpNormal}
	var test dsp.TestConfig
	switch cfg.SpeakerMode {
	case config.ModeFactoryTest:
		mode.Mode = dsp.OpFactoryTest
		test = timingConfig(n, cfg.FTMWaitTime.Milliseconds(), cfg.FTMTime.Milliseconds())
	case config.ModeValidation:
		mode.Mode = dsp.OpValidation
		test = timingConfig(n, cfg.ValidationWaitTime.Milliseconds(), cfg.ValidationTime.Milliseconds())
	}
	err = addParam(&payload, dsp.ParamVIOpModeCfg, miid, mode)
	if err != nil {
		return err
	}
	err = addParam(&payload, dsp.ParamVIChannelMapCfg, miid, dsp.DefaultChannelMap(n))
	if err != nil {
		return err
	}
	err = addParam(&payload, dsp.ParamVIR0T0Cfg, miid, r0t0)
	if err != nil {
		return err
	}
	switch mode.Mode {
	case dsp.OpFactoryTest:
		err = addParam(&payload, dsp.ParamVIFTMCfg, miid, test)
	case dsp.OpValidation:
		err = addParam(&payload, dsp.ParamVIValidationCfg, miid, test)
	}
	if err != nil {
		return err
	}
	err = sp.configure(fb.p, payload)
	if err != nil {
		return fmt.Errorf("could not configure VI module: %w", err)
	}

	vm, err := sp.rm.VirtualMixer()
	if err != nil {
		return err
	}
	err = agm.RegisterEvent(vm, fb.p.fe(), miid, dsp.EventSpeakerDiagnostics, true)
	if err != nil {
		return err
	}
	fb.miid = miid
	err = sp.rm.RegisterMixerEventCallback(fb.p.fes, sp.handleEvent, true)
	if err != nil {
		return fmt.Errorf("could not register event callback: %w", err)
	}
	return fb.p.start()
}

func timingConfig(n int, wait, measure int64) dsp.TestConfig {
	c := make(dsp.TestConfig, n)
	for i := range c {
		c[i] = dsp.TestTiming{WaitMS: uint32(wait), MeasureMS: uint32(measure)}
	}
	return c
}

// FactoryTestResults returns the per channel measurements of a factory test or
// validation run. The speaker must be playing in one of those modes.
func (sp *SpeakerProtection) FactoryTestResults() (dsp.TestResults, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	fb := sp.fb
	if fb == nil {
		return nil, ErrNotActive
	}
	if fb.mode != config.ModeFactoryTest && fb.mode != config.ModeValidation {
		return nil, ErrMode
	}

	vm, err := sp.rm.VirtualMixer()
	if err != nil {
		return nil, err
	}
	b, err := agm.GetParam(vm, fb.p.fe(), fb.p.be, dsp.BuildParam(dsp.ParamVIFTMResults, fb.miid, nil))
	if err != nil {
		return nil, err
	}
	params, err := dsp.ParseParams(b)
	if err != nil {
		return nil, err
	}
	p, ok := dsp.Find(params, dsp.ParamVIFTMResults)
	if !ok {
		return nil, errors.New("no factory test results in response")
	}
	if p.ErrorCode != 0 {
		return nil, fmt.Errorf("factory test results error code %d", p.ErrorCode)
	}
	var r dsp.TestResults
	err = r.UnmarshalBinary(p.Data)
	if err != nil {
		return nil, err
	}
	return r, nil
}

