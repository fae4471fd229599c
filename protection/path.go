/*
DESCRIPTION
  path.go provides setup and teardown of the front end to backend PCM paths
  used by calibration sessions and runtime feedback.

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
	"fmt"

	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/spkrprot/device/agm"
	"github.com/ausocean/spkrprot/dsp"
)

// errNoFrontEnd is returned when the resource manager allocates no front end.
var errNoFrontEnd = errors.New("no front end allocated")

// path is a PCM path from a front end to a backend link. Each field records
// how far setup got so that teardown undoes exactly that much.
type path struct {
	attr    device.StreamAttributes
	md      agm.Metadata
	fes     []int
	be      string
	info    device.Info
	linked  bool
	routed  bool
	pcm     device.PCM
	started bool
}

func newPath(id device.ID, dir device.Direction, st device.StreamType, md agm.Metadata) *path {
	return &path{
		attr: device.StreamAttributes{Type: st, Direction: dir, Device: id},
		md:   md,
	}
}

func (p *path) String() string { return fmt.Sprintf("%s %s", p.attr.Device, p.attr.Direction) }

// fe returns the front end the path is set up on.
func (p *path) fe() int { return p.fes[0] }

// backendName returns the backend configured for id, or that of the resource
// manager's device table if none is.
func (sp *SpeakerProtection) backendName(id device.ID) (string, error) {
	cfg := sp.config()
	var be string
	switch id {
	case device.Speaker:
		be = cfg.RxDevice
	case device.VIFeedback:
		be = cfg.TxDevice
	case device.CPSFeedback:
		be = cfg.CPSDevice
	}
	if be != "" {
		return be, nil
	}
	return sp.rm.BackendName(id)
}

// open allocates a front end for p, writes its graph metadata and media
// config, links it to its backend, enables its audio route and opens its PCM.
func (sp *SpeakerProtection) open(p *path) error {
	vm, err := sp.rm.VirtualMixer()
	if err != nil {
		return fmt.Errorf("could not get virtual mixer: %w", err)
	}

	p.be, err = sp.backendName(p.attr.Device)
	if err != nil {
		return fmt.Errorf("could not get backend of %s: %w", p.attr.Device, err)
	}
	p.info, err = sp.rm.DeviceInfo(p.attr.Device, p.attr.Type, "")
	if err != nil {
		return fmt.Errorf("could not get device info of %s: %w", p.attr.Device, err)
	}
	p.attr.Channels, p.attr.Rate, p.attr.BitWidth = p.info.Channels, p.info.SampleRate, p.info.BitWidth

	p.fes, err = sp.rm.AllocateFrontEndIDs(p.attr, p.attr.Direction)
	if err != nil {
		return fmt.Errorf("could not allocate front end for %s: %w", p, err)
	}
	if len(p.fes) == 0 {
		return fmt.Errorf("%s: %w", p, errNoFrontEnd)
	}

	err = agm.SetMetadata(vm, p.fe(), p.be, p.md)
	if err != nil {
		return err
	}
	err = agm.SetMediaConfig(vm, p.be, p.info)
	if err != nil {
		return err
	}
	err = agm.Connect(vm, p.fe(), p.be)
	if err != nil {
		return err
	}
	p.linked = true

	if p.info.SndDeviceName != "" {
		r, err := sp.rm.AudioRoute()
		if err != nil {
			return fmt.Errorf("could not get audio route: %w", err)
		}
		err = r.EnableDevice(p.info.SndDeviceName)
		if err != nil {
			return fmt.Errorf("could not enable %s: %w", p.info.SndDeviceName, err)
		}
		p.routed = true
	}

	p.pcm, err = sp.rm.OpenPCM(sp.rm.VirtualSndCard(), p.fe(), p.attr.Direction, device.PCMConfig{
		Channels: p.info.Channels,
		Rate:     p.info.SampleRate,
		BitWidth: p.info.BitWidth,
	})
	if err != nil {
		return fmt.Errorf("could not open PCM%d: %w", p.fe(), err)
	}
	return nil
}

// moduleID returns the instance ID of the module tagged tag in the graph of p.
func (sp *SpeakerProtection) moduleID(p *path, tag uint32) (uint32, error) {
	vm, err := sp.rm.VirtualMixer()
	if err != nil {
		return 0, fmt.Errorf("could not get virtual mixer: %w", err)
	}
	return agm.ModuleInstanceID(vm, p.fe(), p.be, tag)
}

// configure applies payload to the graph of p.
func (sp *SpeakerProtection) configure(p *path, payload dsp.Payload) error {
	vm, err := sp.rm.VirtualMixer()
	if err != nil {
		return fmt.Errorf("could not get virtual mixer: %w", err)
	}
	return agm.SetCustomPayload(vm, p.fe(), p.be, payload)
}

func (p *path) start() error {
	err := p.pcm.Start()
	if err != nil {
		return fmt.Errorf("could not start PCM%d: %w", p.fe(), err)
	}
	p.started = true
	return nil
}

// stop stops and closes the PCM of p.
func (p *path) stop(errs *device.MultiError) {
	if p.pcm == nil {
		return
	}
	if p.started {
		errs.Add(p.pcm.Stop())
		p.started = false
	}
	errs.Add(p.pcm.Close())
	p.pcm = nil
}

// unlink disconnects p from its backend and disables its audio route.
func (sp *SpeakerProtection) unlink(p *path, errs *device.MultiError) {
	if p.linked {
		vm, err := sp.rm.VirtualMixer()
		if err == nil {
			err = agm.Disconnect(vm, p.fe(), p.be)
		}
		errs.Add(err)
		p.linked = false
	}
	if p.routed {
		r, err := sp.rm.AudioRoute()
		if err == nil {
			err = r.DisableDevice(p.info.SndDeviceName)
		}
		errs.Add(err)
		p.routed = false
	}
}

// release returns the front ends of p to the resource manager.
func (sp *SpeakerProtection) release(p *path) {
	if len(p.fes) == 0 {
		return
	}
	sp.rm.FreeFrontEndIDs(p.fes, p.attr, p.attr.Direction)
	p.fes = nil
}

// close tears down a single path.
func (sp *SpeakerProtection) close(p *path) error {
	var errs device.MultiError
	p.stop(&errs)
	sp.unlink(p, &errs)
	sp.release(p)
	return errs.Err()
}
