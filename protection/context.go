/*
DESCRIPTION
  context.go provides the state shared between the calibration scheduler,
  calibration sessions, the DSP event handler and the runtime controller.

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
	"sync"
	"time"
)

// State is the calibration state of the speaker.
type State int

// Calibration states.
const (
	NotCalibrated State = iota
	CalibInProgress
	Calibrated
)

func (s State) String() string {
	switch s {
	case NotCalibrated:
		return "not-calibrated"
	case CalibInProgress:
		return "in-progress"
	case Calibrated:
		return "calibrated"
	default:
		return "unknown"
	}
}

// status is the progress of the calibration session in flight.
type status int

const (
	statusIdle status = iota
	statusRunning
	statusSucceeded
	statusFailed
	statusPreempted
)

func (s status) String() string {
	switch s {
	case statusIdle:
		return "idle"
	case statusRunning:
		return "running"
	case statusSucceeded:
		return "succeeded"
	case statusFailed:
		return "failed"
	case statusPreempted:
		return "preempted"
	default:
		return "unknown"
	}
}

// Context holds the calibration state, the calibration session status and the
// playback use count of one speaker protection instance. Every field guarded
// by mu is changed together with a broadcast on the wake channel, which is
// closed and replaced so that any number of waiters observe the change.
type Context struct {
	mu       sync.Mutex
	wake     chan struct{}
	state    State
	status   status
	result   []int32 // Resistances reported by a successful calibration, Q24.
	useCount uint
	pending  uint // Activations waiting for the calibration lock.
	lastUsed time.Time
	now      func() time.Time

	// calMu is held for the whole of a calibration session and for every
	// runtime transition, so the two never overlap.
	calMu sync.Mutex
}

// NewContext returns a Context in the NotCalibrated state whose idle timer
// starts now.
func NewContext() *Context {
	c := &Context{wake: make(chan struct{}), now: time.Now}
	c.lastUsed = c.now()
	return c
}

// broadcast wakes all current waiters. mu must be held.
func (c *Context) broadcast() {
	close(c.wake)
	c.wake = make(chan struct{})
}

// setStatus sets the session status and wakes waiters. mu must be held.
func (c *Context) setStatus(s status) {
	c.status = s
	c.broadcast()
}

// waitLocked releases mu and blocks until a broadcast, d elapses or ctx is
// done, then reacquires mu. mu must be held.
func (c *Context) waitLocked(ctx context.Context, d time.Duration) {
	w := c.wake
	c.mu.Unlock()
	defer c.mu.Lock()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w:
	case <-t.C:
	case <-ctx.Done():
	}
}

// wait blocks until a broadcast, d elapses or ctx is done.
func (c *Context) wait(ctx context.Context, d time.Duration) {
	c.mu.Lock()
	c.waitLocked(ctx, d)
	c.mu.Unlock()
}

// State returns the calibration state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InUse reports whether the speaker is playing.
func (c *Context) InUse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.useCount > 0
}

// usage returns whether the speaker is in use and for how long it has been
// idle.
func (c *Context) usage() (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.useCount > 0 || c.pending > 0, c.now().Sub(c.lastUsed)
}

// resetIdle restarts the idle timer. mu must be held.
func (c *Context) resetIdle() {
	c.lastUsed = c.now()
}
