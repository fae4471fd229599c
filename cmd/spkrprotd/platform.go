/*
DESCRIPTION
  platform.go provides construction of the hardware resource manager and
  temperature sensor used by spkrprotd.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"fmt"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"

	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/spkrprot/device/alsa"
	"github.com/ausocean/spkrprot/device/rm"
	"github.com/ausocean/spkrprot/device/sensor"
	"github.com/ausocean/spkrprot/protection"
	"github.com/ausocean/spkrprot/protection/config"
	"github.com/ausocean/utils/logging"
)

const procRoot = "/proc/asound"

// platform holds the opened audio hardware.
type platform struct {
	rm       *rm.Manager
	virt, hw *alsa.Mixer
	monitor  *alsa.Monitor
	bus      embd.I2CBus
}

// openPlatform opens the cards named by fc and builds a resource manager over
// them.
func openPlatform(l logging.Logger, fc *fileConfig, cfg *config.Config) (*platform, error) {
	devs, err := fc.devices()
	if err != nil {
		return nil, err
	}
	vcard, err := alsa.ResolveCard(procRoot, fc.VirtualCard)
	if err != nil {
		return nil, fmt.Errorf("could not find virtual card: %w", err)
	}
	hcard, err := alsa.ResolveCard(procRoot, fc.HwCard)
	if err != nil {
		return nil, fmt.Errorf("could not find hardware card: %w", err)
	}
	mcard, err := alsa.ResolveCard(procRoot, fc.MonitorCard)
	if err != nil {
		return nil, fmt.Errorf("could not find monitor card: %w", err)
	}

	p := &platform{}
	p.virt, err = alsa.OpenMixer(l, vcard)
	if err != nil {
		return nil, err
	}
	p.hw, err = alsa.OpenMixer(l, hcard)
	if err != nil {
		p.virt.Close()
		return nil, err
	}

	if cfg.MixerPaths == "" {
		p.close()
		return nil, fmt.Errorf("%s not set", config.KeyMixerPaths)
	}
	route, err := alsa.LoadRoute(l, p.hw, cfg.MixerPaths)
	if err != nil {
		p.close()
		return nil, fmt.Errorf("could not load mixer paths: %w", err)
	}

	open := func(card, dev int, dir device.Direction, c device.PCMConfig) (device.PCM, error) {
		pcm, err := alsa.OpenPCM(l, card, dev, dir, c)
		if err != nil {
			return nil, err
		}
		return pcm, nil
	}
	p.rm = rm.New(l, rm.Config{
		VirtualCard: vcard,
		PlaybackFEs: fc.PlaybackFEs,
		CaptureFEs:  fc.CaptureFEs,
		Devices:     devs,
	}, p.virt, p.hw, route, open)
	p.monitor = alsa.NewMonitor(l, procRoot, mcard, fc.MonitorDevices, monitorInterval)
	return p, nil
}

// sensor returns the temperature reader selected by cfg.
func (p *platform) sensor(l logging.Logger, cfg *config.Config) (protection.TemperatureReader, error) {
	switch cfg.TempSensor {
	case config.SensorMixer:
		return sensor.NewMixer(l, p.hw, cfg.TempControls), nil
	case config.SensorI2C:
		regs := make([]byte, len(cfg.I2CRegisters))
		for i, r := range cfg.I2CRegisters {
			regs[i] = byte(r)
		}
		p.bus = embd.NewI2CBus(byte(cfg.I2CBus))
		return sensor.NewI2C(l, p.bus, byte(cfg.I2CAddress), regs), nil
	case config.SensorFixed:
		temps := make(sensor.Fixed, cfg.Channels)
		for i := range temps {
			temps[i] = cfg.FixedTemp
		}
		return temps, nil
	default:
		return nil, fmt.Errorf("unknown temperature sensor %d", cfg.TempSensor)
	}
}

func (p *platform) close() {
	if p.bus != nil {
		p.bus.Close()
	}
	if p.hw != nil {
		p.hw.Close()
	}
	if p.virt != nil {
		p.virt.Close()
	}
}
