/*
DESCRIPTION
  session.go provides a single calibration attempt: it plays a calibration
  signal on the speaker while capturing VI feedback, waits for the DSP to
  report the measured resistance and persists the result.

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
	"encoding"
	"fmt"
	"time"

	"github.com/ausocean/spkrprot/calstore"
	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/spkrprot/device/agm"
	"github.com/ausocean/spkrprot/dsp"
	"github.com/ausocean/spkrprot/protection/config"
)

// Calibration session results, used as metric labels.
const (
	resultSuccess   = "success"
	resultFailure   = "failure"
	resultPreempted = "preempted"
	resultTimeout   = "timeout"
	resultError     = "error"
	resultAborted   = "aborted"
)

// session holds the paths and registrations of one calibration attempt.
type session struct {
	tx, rx     *path
	miid       uint32 // Instance of the VI module on the TX graph.
	registered bool   // Registered for calibration events.
	callback   bool   // Callback registered with the resource manager.
}

// calibrate runs one calibration session using the per channel temperatures
// temps, in Q6 degrees Celsius, and returns the resulting state.
func (sp *SpeakerProtection) calibrate(ctx context.Context, cfg config.Config, temps []int16) State {
	c := sp.ctx
	c.calMu.Lock()
	defer c.calMu.Unlock()

	c.mu.Lock()
	if c.useCount > 0 || c.pending > 0 {
		c.mu.Unlock()
		sp.l.Info("speaker claimed before calibration started")
		calibrationResults.WithLabelValues(resultAborted).Inc()
		return NotCalibrated
	}
	c.state = CalibInProgress
	c.result = nil
	c.setStatus(statusRunning)
	c.mu.Unlock()

	calibrationAttempts.Inc()
	calibrationState.WithLabelValues(sp.name).Set(float64(CalibInProgress))
	sp.l.Info("starting calibration", "channels", cfg.Channels, "quick", cfg.QuickCalibration())

	s := &session{
		tx: newPath(device.VIFeedback, device.Capture, device.StreamCalibration, agm.Metadata{
			GKV: []agm.KV{{Key: agm.KeyStreamTX, Value: agm.ValProxyTX}, {Key: agm.KeyDeviceTX, Value: agm.ValVIFeedback}},
			CKV: []agm.KV{{Key: agm.KeyDevicePP, Value: agm.ValSPCal}},
		}),
		rx: newPath(device.Speaker, device.Playback, device.StreamLowLatency, agm.Metadata{
			GKV: []agm.KV{{Key: agm.KeyStreamRX, Value: agm.ValPCMPlay}, {Key: agm.KeyDeviceRX, Value: agm.ValSpeaker}},
			CKV: []agm.KV{{Key: agm.KeyDevicePP, Value: agm.ValSPCal}},
		}),
	}

	var (
		result string
		recs   []calstore.Record
	)
	err := sp.setupSession(s, cfg, temps)
	if err != nil {
		sp.l.Error("could not set up calibration", "error", err)
		result = resultError
	} else {
		result, recs = sp.awaitResult(ctx, cfg, temps)
	}

	err = sp.teardownSession(s)
	if err != nil {
		sp.l.Warning("calibration teardown incomplete", "error", err)
	}

	state := NotCalibrated
	if result == resultSuccess {
		err = sp.store.Save(recs)
		if err != nil {
			sp.l.Error("could not save calibration", "error", err)
			result = resultError
		} else {
			state = Calibrated
		}
	}

	c.mu.Lock()
	c.state = state
	if state != Calibrated {
		c.resetIdle()
	}
	c.setStatus(statusIdle)
	c.mu.Unlock()

	calibrationResults.WithLabelValues(result).Inc()
	calibrationState.WithLabelValues(sp.name).Set(float64(state))
	sp.l.Info("calibration finished", "result", result, "state", state.String())
	sp.notify(Notification{Kind: KindState, State: state.String(), Result: result, Channels: channelsOf(recs)})
	return state
}

// setupSession brings up the TX then RX paths of s, configures the VI and
// speaker protection modules for calibration and starts both PCMs.
func (sp *SpeakerProtection) setupSession(s *session, cfg config.Config, temps []int16) error {
	err := sp.open(s.tx)
	if err != nil {
		return fmt.Errorf("TX: %w", err)
	}
	err = sp.open(s.rx)
	if err != nil {
		return fmt.Errorf("RX: %w", err)
	}

	s.miid, err = sp.moduleID(s.tx, dsp.TagSpeakerProtVI)
	if err != nil {
		return err
	}
	r0t0 := make(dsp.R0T0Config, len(temps))
	for i, t := range temps {
		r0t0[i] = dsp.R0T0{R0Q24: calstore.MinResistanceQ24, T0Q6: t}
	}
	var payload dsp.Payload
	err = addParam(&payload, dsp.ParamVIOpModeCfg, s.miid, dsp.VIOpModeConfig{
		Channels: uint32(cfg.Channels),
		Mode:     dsp.OpCalibration,
		QuickCal: cfg.QuickCalibration(),
	})
	if err != nil {
		return err
	}
	err = addParam(&payload, dsp.ParamVIChannelMapCfg, s.miid, dsp.DefaultChannelMap(int(cfg.Channels)))
	if err != nil {
		return err
	}
	err = addParam(&payload, dsp.ParamVIR0T0Cfg, s.miid, r0t0)
	if err != nil {
		return err
	}
	err = sp.configure(s.tx, payload)
	if err != nil {
		return fmt.Errorf("could not configure VI module: %w", err)
	}

	spID, err := sp.moduleID(s.rx, dsp.TagSpeakerProtection)
	if err != nil {
		return err
	}
	payload.Reset()
	err = addParam(&payload, dsp.ParamSPOpMode, spID, dsp.SPOpMode(dsp.OpCalibration))
	if err != nil {
		return err
	}
	err = sp.configure(s.rx, payload)
	if err != nil {
		return fmt.Errorf("could not configure speaker protection module: %w", err)
	}

	vm, err := sp.rm.VirtualMixer()
	if err != nil {
		return err
	}
	err = agm.RegisterEvent(vm, s.tx.fe(), s.miid, dsp.EventVICalibration, true)
	if err != nil {
		return err
	}
	s.registered = true
	err = sp.rm.RegisterMixerEventCallback(s.tx.fes, sp.handleEvent, true)
	if err != nil {
		return fmt.Errorf("could not register event callback: %w", err)
	}
	s.callback = true

	err = s.tx.start()
	if err != nil {
		return err
	}
	return s.rx.start()
}

// awaitResult waits for the session status to leave running, the calibration
// timeout or ctx. It returns the session result and, on success, the records
// to persist.
func (sp *SpeakerProtection) awaitResult(ctx context.Context, cfg config.Config, temps []int16) (string, []calstore.Record) {
	c := sp.ctx
	deadline := time.Now().Add(cfg.CalibrationTimeout)

	c.mu.Lock()
	defer c.mu.Unlock()
	for c.status == statusRunning && ctx.Err() == nil {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			sp.l.Warning("calibration timed out", "timeout", cfg.CalibrationTimeout)
			return resultTimeout, nil
		}
		c.waitLocked(ctx, remaining)
	}

	switch c.status {
	case statusSucceeded:
		recs := make([]calstore.Record, len(temps))
		for i := range recs {
			recs[i] = calstore.Record{ResistanceQ24: c.result[i], TemperatureQ6: temps[i]}
		}
		return resultSuccess, recs
	case statusFailed:
		return resultFailure, nil
	case statusPreempted:
		sp.l.Info("calibration preempted by playback")
		return resultPreempted, nil
	default:
		sp.l.Info("calibration cancelled")
		return resultAborted, nil
	}
}

// teardownSession undoes the setup of s. Every step is attempted regardless
// of earlier failures. Both paths are closed before front ends are freed.
func (sp *SpeakerProtection) teardownSession(s *session) error {
	var errs device.MultiError
	if s.registered {
		vm, err := sp.rm.VirtualMixer()
		if err == nil {
			err = agm.RegisterEvent(vm, s.tx.fe(), s.miid, dsp.EventVICalibration, false)
		}
		errs.Add(err)
	}
	if s.callback {
		errs.Add(sp.rm.RegisterMixerEventCallback(s.tx.fes, sp.handleEvent, false))
	}
	s.tx.stop(&errs)
	s.rx.stop(&errs)
	sp.unlink(s.tx, &errs)
	sp.unlink(s.rx, &errs)
	sp.release(s.tx)
	sp.release(s.rx)
	return errs.Err()
}

func addParam(p *dsp.Payload, paramID, miid uint32, v encoding.BinaryMarshaler) error {
	b, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("could not encode parameter %#x: %w", paramID, err)
	}
	p.Add(paramID, miid, b)
	return nil
}
