/*
DESCRIPTION
  scheduler.go provides the calibration scheduler, which waits for the speaker
  to be idle and cool enough and then runs calibration sessions until one
  succeeds.

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
	"time"

	"github.com/ausocean/spkrprot/calstore"
	"github.com/ausocean/spkrprot/protection/config"
)

// schedule runs calibration sessions until the speaker is calibrated or ctx
// is cancelled.
func (sp *SpeakerProtection) schedule(ctx context.Context) {
	sp.l.Debug("calibration scheduler started")
	defer sp.l.Debug("calibration scheduler exiting")

	for ctx.Err() == nil {
		if sp.ctx.State() == Calibrated {
			return
		}
		cfg := sp.config()

		if !sp.eligible(ctx, cfg) {
			continue
		}

		temps, ok := sp.temperatures(ctx, cfg)
		if !ok {
			sp.ctx.wait(ctx, cfg.WakeInterval)
			continue
		}

		if !sp.eligible(ctx, cfg) {
			continue
		}

		if sp.calibrate(ctx, cfg, temps) == Calibrated {
			return
		}
	}
}

// eligible reports whether the speaker has been idle long enough to
// calibrate. If not, it waits before returning.
func (sp *SpeakerProtection) eligible(ctx context.Context, cfg config.Config) bool {
	inUse, idle := sp.ctx.usage()
	switch {
	case inUse:
		sp.l.Debug("speaker in use, waiting")
		sp.ctx.wait(ctx, cfg.WakeInterval)
		return false
	case idle < cfg.MinIdle && !cfg.DynamicCalibration:
		d := min(cfg.WakeInterval, cfg.MinIdle-idle)
		sp.l.Debug("speaker not idle long enough, waiting", "idle", idle, "wait", d)
		sp.ctx.wait(ctx, d)
		return false
	}
	return true
}

// temperatures reads the temperature of every channel and returns them in Q6
// degrees Celsius. Readings outside the calibration range are retried. It
// returns false if any channel has no usable reading.
func (sp *SpeakerProtection) temperatures(ctx context.Context, cfg config.Config) ([]int16, bool) {
	temps := make([]int16, cfg.Channels)
	for ch := range temps {
		t, err := sp.temp.Temperature(ch)
		for i := uint(0); err == nil && !calstore.ValidTemp(t) && i < cfg.TempRetries; i++ {
			sp.l.Info("temperature out of calibration range, retrying", "channel", ch, "celsius", t)
			temperatureRetries.Inc()
			if !sleep(ctx, cfg.TempRetryInterval) {
				return nil, false
			}
			t, err = sp.temp.Temperature(ch)
		}
		if err != nil {
			sp.l.Warning("could not read speaker temperature", "channel", ch, "error", err)
			return nil, false
		}
		if !calstore.ValidTemp(t) {
			sp.l.Info("temperature out of calibration range, skipping calibration", "channel", ch, "celsius", t)
			return nil, false
		}
		temps[ch] = calstore.ToQ6(t)
	}
	return temps, true
}

// sleep waits for d or until ctx is done, returning false in the latter case.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
