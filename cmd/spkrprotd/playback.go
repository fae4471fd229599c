/*
DESCRIPTION
  playback.go provides tracking of the speaker protection claim held while a
  monitored playback device is running.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"sync"

	"github.com/ausocean/spkrprot/protection"
)

// playback holds at most one playback claim on a SpeakerProtection.
type playback struct {
	sp *protection.SpeakerProtection

	mu sync.Mutex
	h  *protection.Handle
}

// set claims the speaker if running and releases the claim otherwise.
// Repeated calls with the same value have no further effect.
func (p *playback) set(running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case running && p.h == nil:
		p.h = p.sp.Acquire()
	case !running && p.h != nil:
		p.h.Release()
		p.h = nil
	}
}

// release releases any outstanding claim.
func (p *playback) release() { p.set(false) }
