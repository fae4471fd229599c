/*
DESCRIPTION
  cps.go provides setup of CPS (battery voltage and temperature) feedback for
  runtime speaker protection.

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
	"github.com/ausocean/spkrprot/protection/config"
)

// startCPS sets up CPS feedback according to the configured CPS mode.
// Failures are logged.
func (sp *SpeakerProtection) startCPS(cfg config.Config) {
	var err error
	switch cfg.CPSMode {
	case config.CPSNone:
		return
	case config.CPSPCM:
		err = sp.startCPSPath()
	case config.CPSRegister:
		err = sp.writeCPSRegisters(cfg)
	default:
		err = fmt.Errorf("unknown CPS mode %d", cfg.CPSMode)
	}
	if err != nil {
		sp.l.Error("could not set up CPS feedback", "mode", cfg.CPSMode, "error", err)
	}
}

// startCPSPath opens and starts the CPS capture path.
func (sp *SpeakerProtection) startCPSPath() error {
	p := newPath(device.CPSFeedback, device.Capture, device.StreamProxy, agm.Metadata{
		GKV: []agm.KV{{Key: agm.KeyStreamTX, Value: agm.ValProxyTX}, {Key: agm.KeyDeviceTX, Value: agm.ValCPS}},
	})
	err := sp.open(p)
	if err == nil {
		err = p.start()
	}
	if err != nil {
		if cerr := sp.close(p); cerr != nil {
			sp.l.Warning("CPS teardown incomplete", "error", cerr)
		}
		return err
	}
	sp.mu.Lock()
	sp.cps = p
	sp.mu.Unlock()
	return nil
}

// writeCPSRegisters hands the DSP the amplifier registers to read CPS data
// from, so that no capture path is needed. The register list goes to the CPS
// module of the VI feedback graph or, where the graph has none, to the codec
// control that forwards it.
func (sp *SpeakerProtection) writeCPSRegisters(cfg config.Config) error {
	regs := dsp.CPSRegisterConfig(cfg.CPSRegisters)
	b, err := regs.MarshalBinary()
	if err != nil {
		return err
	}

	sp.mu.Lock()
	fb := sp.fb
	sp.mu.Unlock()
	if fb != nil {
		miid, err := sp.moduleID(fb.p, dsp.TagSpeakerProtCPS)
		switch {
		case err == nil:
			var payload dsp.Payload
			payload.Add(dsp.ParamCPSRegisterCfg, miid, b)
			return sp.configure(fb.p, payload)
		case !errors.Is(err, agm.ErrModuleNotFound):
			return err
		}
	}

	m, err := sp.rm.HwMixer()
	if err != nil {
		return fmt.Errorf("could not get hardware mixer: %w", err)
	}
	return m.SetBytes(cfg.CPSControl, b)
}

// stopCPS tears down the CPS capture path, if open.
func (sp *SpeakerProtection) stopCPS() {
	sp.mu.Lock()
	p := sp.cps
	sp.cps = nil
	sp.mu.Unlock()
	if p == nil {
		return
	}
	err := sp.close(p)
	if err != nil {
		sp.l.Warning("CPS teardown incomplete", "error", err)
	}
}
