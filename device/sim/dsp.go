/*
DESCRIPTION
  dsp.go provides the model of the DSP behind the simulated virtual card
  controls: custom payloads, event registration, tagged module info and
  parameter reads.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package sim

import (
	"fmt"
	"slices"
	"time"

	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/spkrprot/device/agm"
	"github.com/ausocean/spkrprot/dsp"
)

// miid returns the instance ID of the module tagged tag in the graph of
// front end fe.
func miid(fe int, tag uint32) uint32 {
	return 0x4000 + uint32(fe)<<4 + tag&0xf
}

// setBytes emulates writes to DSP backed controls of the virtual card.
func (p *Platform) setBytes(name string, b []byte) error {
	n, suffix, ok := agm.ParseControlName(name)
	if !ok {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fe, ok := p.fes[n]
	if !ok {
		return fmt.Errorf("front end %d not allocated", n)
	}

	switch suffix {
	case agm.CtlSetParam:
		params, err := dsp.ParseParams(b)
		if err != nil {
			return err
		}
		id := fe.attr.Device
		if p.params[id] == nil {
			p.params[id] = make(map[uint32][]byte)
		}
		for _, prm := range params {
			fe.params[prm.ParamID] = slices.Clone(prm.Data)
			p.params[id][prm.ParamID] = slices.Clone(prm.Data)
		}

	case agm.CtlEvent:
		var r agm.EventRegistration
		err := r.UnmarshalBinary(b)
		if err != nil {
			return err
		}
		if r.MIID != miid(n, dsp.TagSpeakerProtVI) {
			return fmt.Errorf("no module %#x in graph of PCM%d", r.MIID, n)
		}
		fe.events[r.EventID] = r.Register

	case agm.CtlGetParam:
		fe.request = slices.Clone(b)
	}
	return nil
}

// bytes emulates reads of DSP backed controls of the virtual card.
func (p *Platform) bytes(name string) ([]byte, bool) {
	n, suffix, ok := agm.ParseControlName(name)
	if !ok {
		return nil, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fe, ok := p.fes[n]
	if !ok {
		return nil, false
	}

	switch suffix {
	case agm.CtlTaggedInfo:
		t := agm.TaggedModules{
			dsp.TagSpeakerProtection: {{ID: 0x07001032, MIID: miid(n, dsp.TagSpeakerProtection)}},
			dsp.TagSpeakerProtVI:     {{ID: 0x07001033, MIID: miid(n, dsp.TagSpeakerProtVI)}},
		}
		if !p.noCPS {
			t[dsp.TagSpeakerProtCPS] = []agm.Module{{ID: 0x07001034, MIID: miid(n, dsp.TagSpeakerProtCPS)}}
		}
		b, _ := t.MarshalBinary()
		return b, true

	case agm.CtlGetParam:
		params, err := dsp.ParseParams(fe.request)
		if err != nil || len(params) == 0 {
			return nil, false
		}
		req := params[0]
		if req.ParamID != dsp.ParamVIFTMResults {
			return dsp.BuildParam(req.ParamID, req.MIID, nil), true
		}
		data, _ := p.ftm.MarshalBinary()
		return dsp.BuildParam(req.ParamID, req.MIID, data), true
	}
	return nil, false
}

// maybeCalibrate arms the calibration response once speaker playback starts
// while the VI module of a running calibration capture is in calibration mode
// and registered for calibration events. p.mu must be held.
func (p *Platform) maybeCalibrate() {
	if p.respond == nil {
		return
	}
	n := p.running(device.VIFeedback, device.StreamCalibration)
	if n < 0 {
		return
	}
	fe := p.fes[n]
	var mode dsp.VIOpModeConfig
	if mode.UnmarshalBinary(fe.params[dsp.ParamVIOpModeCfg]) != nil || mode.Mode != dsp.OpCalibration {
		return
	}
	if !fe.events[dsp.EventVICalibration] {
		return
	}
	var r0t0 dsp.R0T0Config
	err := r0t0.UnmarshalBinary(fe.params[dsp.ParamVIR0T0Cfg])
	if err != nil {
		p.l.Warning("calibration started without R0T0 config", "error", err)
	}

	respond := p.respond
	p.timer = time.AfterFunc(p.latency, func() {
		ev := respond(r0t0)
		if ev == nil {
			return
		}
		b, _ := ev.MarshalBinary()
		p.mu.Lock()
		defer p.mu.Unlock()
		f, ok := p.fes[n]
		if !ok || !f.started {
			return
		}
		p.emit(n, dsp.EventVICalibration, b)
	})
}
