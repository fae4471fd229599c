/*
DESCRIPTION
  config.go provides loading and watching of the spkrprotd JSON configuration
  file, which describes the platform and holds speaker protection variables.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/spkrprot/device/rm"
	"github.com/ausocean/utils/logging"
)

// fileConfig is the content of the configuration file.
type fileConfig struct {
	// Cards are named as in /proc/asound/cards.
	VirtualCard string `json:"virtualCard"`
	HwCard      string `json:"hwCard"`

	PlaybackFEs []int `json:"playbackFEs"`
	CaptureFEs  []int `json:"captureFEs"`

	// Devices is the device table, keyed by device name.
	Devices map[string]rm.Device `json:"devices"`

	// MonitorCard and MonitorDevices are the playback devices whose activity
	// claims the speaker.
	MonitorCard    string `json:"monitorCard"`
	MonitorDevices []int  `json:"monitorDevices"`

	// Vars holds speaker protection variables, as also accepted from the
	// cloud.
	Vars map[string]string `json:"vars"`
}

var deviceIDs = map[string]device.ID{
	device.Speaker.String():     device.Speaker,
	device.VIFeedback.String():  device.VIFeedback,
	device.CPSFeedback.String(): device.CPSFeedback,
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc fileConfig
	err = json.Unmarshal(b, &fc)
	if err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}
	if fc.VirtualCard == "" || fc.HwCard == "" {
		return nil, fmt.Errorf("%s: virtual and hardware cards must be named", path)
	}
	if fc.MonitorCard == "" {
		fc.MonitorCard = fc.HwCard
	}
	return &fc, nil
}

// devices returns the device table keyed by device ID.
func (fc *fileConfig) devices() (map[device.ID]rm.Device, error) {
	devs := make(map[device.ID]rm.Device, len(fc.Devices))
	for name, d := range fc.Devices {
		id, ok := deviceIDs[name]
		if !ok {
			return nil, fmt.Errorf("unknown device %q", name)
		}
		devs[id] = d
	}
	if _, ok := devs[device.Speaker]; !ok {
		return nil, fmt.Errorf("no %s device", device.Speaker)
	}
	if _, ok := devs[device.VIFeedback]; !ok {
		return nil, fmt.Errorf("no %s device", device.VIFeedback)
	}
	return devs, nil
}

// watch calls onChange with the variables of the configuration file at path
// each time it is written, until ctx is cancelled. The parent directory is
// watched so that files replaced by rename are seen.
func watch(ctx context.Context, l logging.Logger, path string, onChange func(map[string]string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create watcher: %w", err)
	}
	defer w.Close()

	err = w.Add(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("could not watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			fc, err := loadConfig(path)
			if err != nil {
				l.Warning("could not reload config", "error", err)
				continue
			}
			l.Info("config file changed", "path", path)
			onChange(fc.Vars)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.Warning("config watch error", "error", err)
		}
	}
}
