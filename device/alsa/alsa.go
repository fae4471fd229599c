/*
DESCRIPTION
  alsa.go provides PCM devices opened on ALSA sound cards for the VI
  feedback, CPS feedback and speaker paths of speaker protection.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package alsa provides access to ALSA sound cards: PCM devices, mixer
// controls, audio route paths and playback state.
package alsa

import (
	"errors"
	"fmt"
	"sync"

	yalsa "github.com/yobert/alsa"

	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/utils/logging"
)

// "prepared" means the device has negotiated its parameters but is not started.
// "running" means the device has been started and its DSP graph is active.
// "closed" means the device has been closed and cannot be used again.
const (
	prepared = iota + 1
	running
	closed
)

const (
	defaultRate        = 48000
	defaultPeriodCount = 4
	wantPeriod         = 0.02 // Seconds.
)

// ErrNoDevice is returned when the requested PCM device cannot be found.
var ErrNoDevice = errors.New("no such ALSA PCM device")

// PCM is an open ALSA PCM device. It implements device.PCM.
type PCM struct {
	l    logging.Logger
	mu   sync.Mutex
	mode uint8
	dev  *yalsa.Device
	cfg  device.PCMConfig
}

// OpenPCM opens PCM device dev of card in direction dir and negotiates the
// hardware parameters in c.
func OpenPCM(l logging.Logger, card, dev int, dir device.Direction, c device.PCMConfig) (*PCM, error) {
	l.Debug("opening sound card", "card", card)
	cards, err := yalsa.OpenCards()
	if err != nil {
		return nil, err
	}
	defer yalsa.CloseCards(cards)

	var d *yalsa.Device
	for _, sc := range cards {
		if sc.Number != card {
			continue
		}
		devices, err := sc.Devices()
		if err != nil {
			return nil, fmt.Errorf("could not list devices of card %d: %w", card, err)
		}
		for _, cand := range devices {
			if cand.Type != yalsa.PCM || cand.Number != dev {
				continue
			}
			if (dir == device.Playback && cand.Play) || (dir == device.Capture && cand.Record) {
				d = cand
				break
			}
		}
	}
	if d == nil {
		return nil, fmt.Errorf("%w: card %d device %d %s", ErrNoDevice, card, dev, dir)
	}

	l.Debug("opening ALSA device", "title", d.Title)
	err = d.Open()
	if err != nil {
		return nil, err
	}
	p := &PCM{l: l, dev: d, cfg: c}
	err = p.negotiate()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("could not configure %s: %w", d.Title, err)
	}
	p.mode = prepared
	return p, nil
}

// negotiate sets the hardware parameters of the device.
func (p *PCM) negotiate() error {
	channels, err := p.dev.NegotiateChannels(p.cfg.Channels)
	if err != nil {
		return fmt.Errorf("device is unable to use %d channels: %w", p.cfg.Channels, err)
	}
	p.l.Debug("alsa device channels set", "channels", channels)

	want := p.cfg.Rate
	if want <= 0 {
		want = defaultRate
	}
	rate, err := p.dev.NegotiateRate(want)
	if err != nil {
		return fmt.Errorf("device is unable to use rate %d: %w", want, err)
	}
	p.l.Debug("alsa device sample rate set", "rate", rate)

	// 24 bit samples travel in 32 bit containers.
	var aFmt yalsa.FormatType
	var bytesPerSample int
	switch p.cfg.BitWidth {
	case 16:
		aFmt, bytesPerSample = yalsa.S16_LE, 2
	case 24, 32:
		aFmt, bytesPerSample = yalsa.S32_LE, 4
	default:
		return fmt.Errorf("unsupported sample bits %v", p.cfg.BitWidth)
	}
	_, err = p.dev.NegotiateFormat(aFmt)
	if err != nil {
		return err
	}
	p.l.Debug("alsa device bit depth set", "bitdepth", p.cfg.BitWidth)

	// Some devices only accept even period sizes while others want powers of 2.
	// So we will find the closest power of 2 to the desired period size.
	periodSize := p.cfg.PeriodSize
	if periodSize <= 0 {
		bytesPerSecond := rate * channels * bytesPerSample
		periodSize = nearestPowerOfTwo(int(float64(bytesPerSecond) * wantPeriod))
	}
	periodSize, err = p.dev.NegotiatePeriodSize(periodSize)
	if err != nil {
		return err
	}
	p.l.Debug("alsa device period size set", "periodsize", periodSize)

	count := p.cfg.PeriodCount
	if count <= 0 {
		count = defaultPeriodCount
	}
	bufSize, err := p.dev.NegotiateBufferSize(periodSize * count)
	if err != nil {
		return err
	}
	p.l.Debug("alsa device buffer size set", "buffersize", bufSize)
	return nil
}

// Start prepares the device, which activates the DSP graph connected to it.
func (p *PCM) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.mode {
	case running:
		return nil
	case closed:
		return errors.New("device is closed")
	}
	err := p.dev.Prepare()
	if err != nil {
		return fmt.Errorf("could not prepare %s: %w", p.dev.Title, err)
	}
	p.mode = running
	return nil
}

// Stop marks the device stopped. The graph is torn down when the device is
// closed.
func (p *PCM) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode == running {
		p.mode = prepared
	}
	return nil
}

// Close closes the device.
func (p *PCM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode == closed {
		return nil
	}
	p.mode = closed
	p.dev.Close()
	return nil
}

// IsRunning reports whether the device has been started.
func (p *PCM) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode == running
}

// nearestPowerOfTwo finds and returns the nearest power of two to the given integer.
// If the lower and higher power of two are the same distance, it returns the higher power.
// For negative values, 1 is returned.
// Source: https://stackoverflow.com/a/45859570
func nearestPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	if n == 1 {
		return 2
	}
	v := n
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++         // higher power of 2
	x := v >> 1 // lower power of 2
	if (v - n) > (n - x) {
		return x
	}
	return v
}
