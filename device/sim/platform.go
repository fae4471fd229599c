/*
DESCRIPTION
  platform.go provides a simulated audio platform implementing
  device.ResourceManager, with a DSP that answers graph configuration,
  raises calibration events and serves factory test results.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package sim provides a simulated speaker protection platform: mixers, audio
// routes, PCMs and a resource manager backed by a model of the DSP. It is
// used for testing and for bench runs without hardware.
package sim

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/spkrprot/device/agm"
	"github.com/ausocean/spkrprot/dsp"
	"github.com/ausocean/utils/logging"
)

// VirtualCard is the card number of the simulated virtual sound card.
const VirtualCard = 100

// Front end pools.
var (
	playbackFEs = []int{0, 1, 2, 3}
	captureFEs  = []int{8, 9, 10, 11}
)

// Errors returned by the platform.
var (
	ErrNoFrontEnd = errors.New("no free front end")
	ErrNoDevice   = errors.New("unknown device")
)

// Responder returns the calibration event the DSP raises once calibration
// playback has started, given the R0T0 configuration it was sent. A nil
// event raises nothing.
type Responder func(dsp.R0T0Config) dsp.CalibrationEvent

// Respond returns a Responder always raising ev.
func Respond(ev dsp.CalibrationEvent) Responder {
	return func(dsp.R0T0Config) dsp.CalibrationEvent { return ev }
}

// Success returns a calibration event reporting success with resistance r0,
// in Q24 ohms, on n channels.
func Success(n int, r0 int32) dsp.CalibrationEvent {
	ev := make(dsp.CalibrationEvent, n)
	for i := range ev {
		ev[i] = dsp.ChannelCalibration{Status: dsp.CalibSuccess, R0Q24: r0}
	}
	return ev
}

// frontEnd is the simulated state of an allocated front end.
type frontEnd struct {
	attr    device.StreamAttributes
	params  map[uint32][]byte // Last value of each parameter set.
	events  map[uint32]bool   // Registered events.
	request []byte            // Last getParam request.
	started bool
}

// Platform is a simulated device.ResourceManager.
type Platform struct {
	l     logging.Logger
	virt  *Mixer
	hw    *Mixer
	route *Route

	mu        sync.Mutex
	devices   map[device.ID]Device
	free      map[device.Direction][]int
	fes       map[int]*frontEnd
	params    map[device.ID]map[uint32][]byte
	callbacks map[int]device.EventCallback
	starts    map[device.ID]int
	startErr  map[device.ID]error
	overlaps  int
	latency   time.Duration
	respond   Responder
	timer     *time.Timer
	ftm       dsp.TestResults
	noCPS     bool

	events chan device.Event
	done   chan struct{}
	wg     sync.WaitGroup
}

// Device describes a simulated logical device.
type Device struct {
	Backend string
	Info    device.Info
}

// DefaultDevices returns the speaker, VI and CPS feedback devices of a
// platform with n speakers.
func DefaultDevices(n int) map[device.ID]Device {
	return map[device.ID]Device{
		device.Speaker: {
			Backend: "CODEC_DMA-LPAIF_WSA-RX-0",
			Info:    device.Info{Channels: n, SampleRate: 48000, BitWidth: 16, SndDeviceName: "speaker"},
		},
		device.VIFeedback: {
			Backend: "CODEC_DMA-LPAIF_WSA-TX-0",
			Info:    device.Info{Channels: 2 * n, SampleRate: 48000, BitWidth: 32, SndDeviceName: "vi-feedback"},
		},
		device.CPSFeedback: {
			Backend: "CODEC_DMA-LPAIF_RXTX-TX-3",
			Info:    device.Info{Channels: n, SampleRate: 48000, BitWidth: 32, SndDeviceName: "cps-feedback"},
		},
	}
}

// NewPlatform returns a Platform with the given devices and starts its event
// dispatch goroutine. Close must be called to stop it.
func NewPlatform(l logging.Logger, devices map[device.ID]Device) *Platform {
	p := &Platform{
		l:       l,
		virt:    NewMixer(),
		hw:      NewMixer(),
		route:   NewRoute(),
		devices: devices,
		free: map[device.Direction][]int{
			device.Playback: slices.Clone(playbackFEs),
			device.Capture:  slices.Clone(captureFEs),
		},
		fes:       make(map[int]*frontEnd),
		params:    make(map[device.ID]map[uint32][]byte),
		callbacks: make(map[int]device.EventCallback),
		starts:    make(map[device.ID]int),
		startErr:  make(map[device.ID]error),
		events:    make(chan device.Event, 16),
		done:      make(chan struct{}),
	}
	p.virt.onSetBytes = p.setBytes
	p.virt.onBytes = p.bytes
	p.wg.Add(1)
	go p.dispatch()
	return p
}

// Close stops event dispatch.
func (p *Platform) Close() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()
	close(p.done)
	p.wg.Wait()
}

// OnCalibration sets how the DSP answers a calibration: after latency of
// calibration playback, the event returned by r is raised.
func (p *Platform) OnCalibration(latency time.Duration, r Responder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latency, p.respond = latency, r
}

// SetTestResults sets the results served for factory test result requests.
func (p *Platform) SetTestResults(r dsp.TestResults) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ftm = r
}

// RemoveCPSModule removes the CPS module from every graph.
func (p *Platform) RemoveCPSModule() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.noCPS = true
}

// FailStart makes starting PCMs of device id fail with err. A nil err clears
// the failure.
func (p *Platform) FailStart(id device.ID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startErr[id] = err
}

// VirtualMixer implements device.ResourceManager.
func (p *Platform) VirtualMixer() (device.Mixer, error) { return p.virt, nil }

// HwMixer implements device.ResourceManager.
func (p *Platform) HwMixer() (device.Mixer, error) { return p.hw, nil }

// AudioRoute implements device.ResourceManager.
func (p *Platform) AudioRoute() (device.Router, error) { return p.route, nil }

// VirtualSndCard implements device.ResourceManager.
func (p *Platform) VirtualSndCard() int { return VirtualCard }

// Virtual returns the virtual card mixer.
func (p *Platform) Virtual() *Mixer { return p.virt }

// Hw returns the hardware codec mixer.
func (p *Platform) Hw() *Mixer { return p.hw }

// Route returns the audio route.
func (p *Platform) Route() *Route { return p.route }

// AllocateFrontEndIDs implements device.ResourceManager.
func (p *Platform) AllocateFrontEndIDs(attr device.StreamAttributes, dir device.Direction) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	free := p.free[dir]
	if len(free) == 0 {
		return nil, ErrNoFrontEnd
	}
	fe := free[0]
	p.free[dir] = free[1:]
	p.fes[fe] = &frontEnd{attr: attr, params: make(map[uint32][]byte), events: make(map[uint32]bool)}
	p.l.Debug("allocated front end", "fe", fe, "device", attr.Device.String())
	return []int{fe}, nil
}

// FreeFrontEndIDs implements device.ResourceManager.
func (p *Platform) FreeFrontEndIDs(ids []int, attr device.StreamAttributes, dir device.Direction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, fe := range ids {
		if _, ok := p.fes[fe]; !ok {
			p.l.Warning("freeing unallocated front end", "fe", fe)
			continue
		}
		delete(p.fes, fe)
		p.free[dir] = append(p.free[dir], fe)
	}
}

// DeviceInfo implements device.ResourceManager.
func (p *Platform) DeviceInfo(id device.ID, st device.StreamType, key string) (device.Info, error) {
	d, ok := p.devices[id]
	if !ok {
		return device.Info{}, fmt.Errorf("%w: %s", ErrNoDevice, id)
	}
	return d.Info, nil
}

// BackendName implements device.ResourceManager.
func (p *Platform) BackendName(id device.ID) (string, error) {
	d, ok := p.devices[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoDevice, id)
	}
	return d.Backend, nil
}

// RegisterMixerEventCallback implements device.ResourceManager.
func (p *Platform) RegisterMixerEventCallback(feIDs []int, cb device.EventCallback, register bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, fe := range feIDs {
		if register {
			p.callbacks[fe] = cb
		} else {
			delete(p.callbacks, fe)
		}
	}
	return nil
}

// OpenPCM implements device.ResourceManager.
func (p *Platform) OpenPCM(card, dev int, dir device.Direction, c device.PCMConfig) (device.PCM, error) {
	if card != VirtualCard {
		return nil, fmt.Errorf("no card %d", card)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fe, ok := p.fes[dev]
	if !ok {
		return nil, fmt.Errorf("front end %d not allocated", dev)
	}
	if fe.attr.Direction != dir {
		return nil, fmt.Errorf("front end %d is not a %s front end", dev, dir)
	}
	return &PCM{p: p, fe: dev}, nil
}

// Starts returns the number of times a PCM of device id has been started.
func (p *Platform) Starts(id device.ID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts[id]
}

// Overlaps returns the number of times a calibration path and a runtime
// feedback path were running at the same time.
func (p *Platform) Overlaps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlaps
}

// Allocated returns the number of allocated front ends.
func (p *Platform) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fes)
}

// Running reports whether a PCM of device id of stream type st is running.
func (p *Platform) Running(id device.ID, st device.StreamType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running(id, st) >= 0
}

// running returns the front end of a running PCM of device id and stream type
// st, or -1. p.mu must be held.
func (p *Platform) running(id device.ID, st device.StreamType) int {
	for n, fe := range p.fes {
		if fe.started && fe.attr.Device == id && (st == 0 || fe.attr.Type == st) {
			return n
		}
	}
	return -1
}

// Param returns the last value of parameter paramID set on a graph of
// device id.
func (p *Platform) Param(id device.ID, paramID uint32) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.params[id][paramID]
	return b, ok
}

// Emit raises event eventID with payload on the front end of device id that
// is registered for it.
func (p *Platform) Emit(id device.ID, eventID uint32, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n, fe := range p.fes {
		if fe.attr.Device == id && fe.events[eventID] {
			p.emit(n, eventID, payload)
			return nil
		}
	}
	return fmt.Errorf("no front end of %s registered for event %#x", id, eventID)
}

// emit queues an event for dispatch. The event passes through its wire
// encoding as it would from the graph manager. p.mu must be held.
func (p *Platform) emit(fe int, eventID uint32, payload []byte) {
	b := agm.MarshalEvent(miid(fe, dsp.TagSpeakerProtVI), eventID, payload)
	e, err := agm.ParseEvent(fe, b)
	if err != nil {
		p.l.Error("could not encode event", "error", err)
		return
	}
	select {
	case p.events <- e:
	default:
		p.l.Warning("event queue full, dropping event", "fe", fe, "event", eventID)
	}
}

func (p *Platform) dispatch() {
	defer p.wg.Done()
	for {
		select {
		case e := <-p.events:
			p.mu.Lock()
			cb := p.callbacks[e.FrontEnd]
			p.mu.Unlock()
			if cb == nil {
				p.l.Debug("no callback for event", "fe", e.FrontEnd, "event", e.EventID)
				continue
			}
			cb(e)
		case <-p.done:
			return
		}
	}
}

// PCM is a simulated PCM on a front end of a Platform.
type PCM struct {
	p      *Platform
	fe     int
	closed bool
}

// Start implements device.PCM.
func (pcm *PCM) Start() error {
	p := pcm.p
	p.mu.Lock()
	defer p.mu.Unlock()
	fe, ok := p.fes[pcm.fe]
	if !ok || pcm.closed {
		return fmt.Errorf("PCM%d not open", pcm.fe)
	}
	id := fe.attr.Device
	if err := p.startErr[id]; err != nil {
		return err
	}

	calib := p.running(device.VIFeedback, device.StreamCalibration) >= 0 || fe.attr.Type == device.StreamCalibration
	runtime := p.running(device.VIFeedback, device.StreamProxy) >= 0 || (id == device.VIFeedback && fe.attr.Type == device.StreamProxy)
	if calib && runtime {
		p.overlaps++
	}

	fe.started = true
	p.starts[id]++
	if id == device.Speaker {
		p.maybeCalibrate()
	}
	return nil
}

// Stop implements device.PCM.
func (pcm *PCM) Stop() error {
	p := pcm.p
	p.mu.Lock()
	defer p.mu.Unlock()
	fe, ok := p.fes[pcm.fe]
	if !ok || !fe.started {
		return fmt.Errorf("PCM%d not running", pcm.fe)
	}
	fe.started = false
	if fe.attr.Type == device.StreamCalibration && p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return nil
}

// Close implements device.PCM.
func (pcm *PCM) Close() error {
	p := pcm.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if pcm.closed {
		return fmt.Errorf("PCM%d already closed", pcm.fe)
	}
	pcm.closed = true
	if fe, ok := p.fes[pcm.fe]; ok {
		fe.started = false
	}
	return nil
}
