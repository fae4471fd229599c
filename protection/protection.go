/*
DESCRIPTION
  protection.go provides SpeakerProtection, which calibrates the speaker
  resistance while the speaker is idle and arms DSP feedback based protection
  while it plays.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package protection provides speaker protection: a background scheduler that
// calibrates the DC resistance of the speaker coil using the DSP VI feedback
// module, and a runtime controller that arms VI and CPS feedback while the
// speaker is playing.
package protection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ausocean/spkrprot/calstore"
	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/spkrprot/protection/config"
	"github.com/ausocean/utils/logging"
)

// TemperatureReader gives the temperature of a speaker channel in degrees
// Celsius.
type TemperatureReader interface {
	Temperature(ch int) (int, error)
}

// Option configures a SpeakerProtection at construction.
type Option func(*SpeakerProtection) error

// WithContext makes the SpeakerProtection use c for its shared state.
func WithContext(c *Context) Option {
	return func(sp *SpeakerProtection) error {
		if c == nil {
			return errors.New("nil context")
		}
		sp.ctx = c
		return nil
	}
}

// WithClock replaces the clock used to measure idle time. The idle timer is
// restarted using the new clock.
func WithClock(now func() time.Time) Option {
	return func(sp *SpeakerProtection) error {
		sp.ctx.mu.Lock()
		sp.ctx.now = now
		sp.ctx.resetIdle()
		sp.ctx.mu.Unlock()
		return nil
	}
}

// WithEventSink makes the SpeakerProtection report notifications to s.
func WithEventSink(s EventSink) Option {
	return func(sp *SpeakerProtection) error {
		sp.sink = s
		return nil
	}
}

// WithName sets the name identifying the SpeakerProtection in its metrics.
// The default is the calibration store path.
func WithName(name string) Option {
	return func(sp *SpeakerProtection) error {
		if name == "" {
			return errors.New("empty name")
		}
		sp.name = name
		return nil
	}
}

// SpeakerProtection calibrates and protects one speaker.
type SpeakerProtection struct {
	name  string
	l     logging.Logger
	rm    device.ResourceManager
	temp  TemperatureReader
	store *calstore.Store
	sink  EventSink
	ctx   *Context

	mu  sync.Mutex // Guards the fields below.
	cfg config.Config
	fb  *feedback
	cps *path

	cancel context.CancelFunc
	done   chan struct{} // Closed when the scheduler exits.
}

// New returns a SpeakerProtection using the hardware of rm and the
// temperatures of temp. If no valid calibration is stored, the calibration
// scheduler is started. cfg is validated before use.
func New(cfg config.Config, rm device.ResourceManager, temp TemperatureReader, opts ...Option) (*SpeakerProtection, error) {
	if cfg.Logger == nil {
		return nil, errors.New("no logger")
	}
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if rm == nil || temp == nil {
		return nil, errors.New("nil resource manager or temperature reader")
	}

	sp := &SpeakerProtection{
		name:  cfg.StorePath,
		l:     cfg.Logger,
		rm:    rm,
		temp:  temp,
		store: calstore.New(cfg.StorePath),
		ctx:   NewContext(),
		cfg:   cfg,
		done:  make(chan struct{}),
	}
	for i, opt := range opts {
		err = opt(sp)
		if err != nil {
			return nil, fmt.Errorf("option %d: %w", i, err)
		}
	}

	_, err = sp.store.Load(int(cfg.Channels))
	switch {
	case err == nil:
		sp.l.Info("speaker calibration found", "path", sp.store.Path())
		sp.ctx.mu.Lock()
		sp.ctx.state = Calibrated
		sp.ctx.mu.Unlock()
		calibrationState.WithLabelValues(sp.name).Set(float64(Calibrated))
		close(sp.done)
		return sp, nil
	case errors.Is(err, calstore.ErrNotCalibrated):
		sp.l.Info("speaker not calibrated", "path", sp.store.Path())
	default:
		sp.l.Warning("stored calibration unusable, recalibrating", "error", err)
	}
	calibrationState.WithLabelValues(sp.name).Set(float64(NotCalibrated))

	ctx, cancel := context.WithCancel(context.Background())
	sp.cancel = cancel
	go func() {
		defer close(sp.done)
		sp.schedule(ctx)
	}()
	return sp, nil
}

// Close stops the calibration scheduler, waiting for any session in flight to
// be torn down. Playback claims must be released separately.
func (sp *SpeakerProtection) Close() {
	if sp.cancel != nil {
		sp.cancel()
	}
	<-sp.done
}

// Done returns a channel that is closed when the calibration scheduler has
// exited.
func (sp *SpeakerProtection) Done() <-chan struct{} { return sp.done }

// State returns the calibration state.
func (sp *SpeakerProtection) State() State { return sp.ctx.State() }

// IsCalibrated reports whether a calibration has been stored.
func (sp *SpeakerProtection) IsCalibrated() bool { return sp.ctx.State() == Calibrated }

// Calibration returns the stored per channel calibration.
func (sp *SpeakerProtection) Calibration() ([]calstore.Record, error) {
	return sp.store.Load(int(sp.config().Channels))
}

// SetMode sets the operation mode used the next time playback starts.
func (sp *SpeakerProtection) SetMode(m config.SpeakerMode) {
	sp.mu.Lock()
	sp.cfg.SpeakerMode = m
	sp.mu.Unlock()
	sp.l.Info("speaker mode set", "mode", m.String())
}

// Update applies the variables of vars to the configuration. Changes to the
// channel count and store path take effect on restart.
func (sp *SpeakerProtection) Update(vars map[string]string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	cfg := sp.cfg
	channels, storePath := cfg.Channels, cfg.StorePath
	cfg.Update(vars)
	err := cfg.Validate()
	if err != nil {
		return err
	}
	cfg.Channels, cfg.StorePath = channels, storePath
	sp.cfg = cfg
	sp.l.SetLevel(cfg.LogLevel)
	sp.ctx.mu.Lock()
	sp.ctx.broadcast()
	sp.ctx.mu.Unlock()
	return nil
}

// config returns a copy of the current configuration.
func (sp *SpeakerProtection) config() config.Config {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.cfg
}
