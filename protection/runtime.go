/*
DESCRIPTION
  runtime.go provides the runtime processing controller, which arms VI and CPS
  feedback while the speaker is playing and preempts calibration when playback
  starts.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package protection

import (
	"sync"
)

// Handle is a claim on the speaker for playback, returned by Acquire. Release
// gives the claim up; calling it more than once has no further effect.
type Handle struct {
	sp   *SpeakerProtection
	once sync.Once
}

// Release gives up the playback claim.
func (h *Handle) Release() {
	h.once.Do(h.sp.deactivate)
}

// Acquire claims the speaker for playback and returns a Handle that must be
// released when playback stops.
func (sp *SpeakerProtection) Acquire() *Handle {
	sp.activate()
	return &Handle{sp: sp}
}

// Start records the start of speaker playback. Each call must be paired with a
// later call to Stop. Failures to arm feedback are logged and do not prevent
// playback.
func (sp *SpeakerProtection) Start() {
	sp.activate()
}

// Stop records the end of speaker playback.
func (sp *SpeakerProtection) Stop() {
	sp.deactivate()
}

// activate preempts any calibration session in flight and increments the use
// count, arming feedback on the first user.
func (sp *SpeakerProtection) activate() {
	c := sp.ctx
	c.mu.Lock()
	c.pending++
	if c.status == statusRunning {
		sp.l.Info("preempting calibration for playback")
		c.setStatus(statusPreempted)
	}
	c.mu.Unlock()

	c.calMu.Lock()
	defer c.calMu.Unlock()

	c.mu.Lock()
	c.pending--
	c.useCount++
	n := c.useCount
	c.broadcast()
	c.mu.Unlock()
	playbackUseCount.WithLabelValues(sp.name).Set(float64(n))

	if n != 1 {
		return
	}
	cfg := sp.config()
	sp.l.Info("speaker playback started, arming feedback", "mode", cfg.SpeakerMode.String())
	sp.startFeedback(cfg)
	sp.startCPS(cfg)
}

// deactivate decrements the use count, disarming feedback when the last user
// stops.
func (sp *SpeakerProtection) deactivate() {
	c := sp.ctx
	c.calMu.Lock()
	defer c.calMu.Unlock()

	c.mu.Lock()
	if c.useCount == 0 {
		c.mu.Unlock()
		sp.l.Warning("speaker stop without matching start")
		return
	}
	c.useCount--
	n := c.useCount
	c.mu.Unlock()
	playbackUseCount.WithLabelValues(sp.name).Set(float64(n))

	if n != 0 {
		return
	}
	sp.l.Info("speaker playback stopped, disarming feedback")
	sp.stopFeedback()
	sp.stopCPS()

	c.mu.Lock()
	c.resetIdle()
	c.broadcast()
	c.mu.Unlock()
}
