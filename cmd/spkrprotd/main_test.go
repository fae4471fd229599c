/*
DESCRIPTION
  main_test.go provides tests for spkrprotd configuration loading and event
  publishing.

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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/spkrprot/device/rm"
	"github.com/ausocean/spkrprot/protection"
	"github.com/ausocean/utils/logging"
)

const testConfig = `{
	"virtualCard": "qcsaudio",
	"hwCard": "wsa",
	"playbackFEs": [0, 1],
	"captureFEs": [8, 9],
	"devices": {
		"speaker": {"backend": "CODEC_DMA-LPAIF_WSA-RX-0", "info": {"Channels": 2, "SampleRate": 48000, "BitWidth": 16, "SndDeviceName": "speaker"}},
		"vi-feedback": {"backend": "CODEC_DMA-LPAIF_WSA-TX-0", "info": {"Channels": 4, "SampleRate": 48000, "BitWidth": 32, "SndDeviceName": "vi-feedback"}}
	},
	"monitorDevices": [0],
	"vars": {"MinIdle": "60", "logging": "Debug"}
}`

func writeConfig(t *testing.T, s string) string {
	path := filepath.Join(t.TempDir(), "spkrprot.json")
	err := os.WriteFile(path, []byte(s), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	fc, err := loadConfig(writeConfig(t, testConfig))
	if err != nil {
		t.Fatalf("could not load config: %v", err)
	}
	if fc.MonitorCard != "wsa" {
		t.Errorf("monitor card not defaulted to hardware card: %q", fc.MonitorCard)
	}
	if diff := cmp.Diff(map[string]string{"MinIdle": "60", "logging": "Debug"}, fc.Vars); diff != "" {
		t.Errorf("unexpected vars (-want +got):\n%s", diff)
	}

	got, err := fc.devices()
	if err != nil {
		t.Fatalf("could not get devices: %v", err)
	}
	want := map[device.ID]rm.Device{
		device.Speaker: {
			Backend: "CODEC_DMA-LPAIF_WSA-RX-0",
			Info:    device.Info{Channels: 2, SampleRate: 48000, BitWidth: 16, SndDeviceName: "speaker"},
		},
		device.VIFeedback: {
			Backend: "CODEC_DMA-LPAIF_WSA-TX-0",
			Info:    device.Info{Channels: 4, SampleRate: 48000, BitWidth: 32, SndDeviceName: "vi-feedback"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected devices (-want +got):\n%s", diff)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{name: "syntax", config: `{"virtualCard": `},
		{name: "no cards", config: `{"devices": {}}`},
	}
	for _, test := range tests {
		_, err := loadConfig(writeConfig(t, test.config))
		if err == nil {
			t.Errorf("%s: expected error", test.name)
		}
	}

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not exist error, got: %v", err)
	}

	for _, devs := range []map[string]rm.Device{
		{"speaker": {}, "vi-feedback": {}, "headphones": {}},
		{"speaker": {}},
	} {
		fc := fileConfig{Devices: devs}
		_, err := fc.devices()
		if err == nil {
			t.Errorf("expected error for devices %v", devs)
		}
	}
}

func TestWatch(t *testing.T) {
	path := writeConfig(t, testConfig)
	got := make(chan map[string]string, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- watch(ctx, (*logging.TestLogger)(t), path, func(vars map[string]string) { got <- vars })
	}()

	// Allow the watcher to be established before writing.
	time.Sleep(100 * time.Millisecond)
	err := os.WriteFile(path, []byte(`{"virtualCard": "a", "hwCard": "b", "vars": {"MinIdle": "30"}}`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case vars := <-got:
		if vars["MinIdle"] != "30" {
			t.Errorf("unexpected vars: %v", vars)
		}
	case <-time.After(5 * time.Second):
		t.Error("timed out waiting for config change")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("unexpected watch error: %v", err)
	}
}

type publishRecorder struct {
	subject string
	data    [][]byte
	err     error
}

func (p *publishRecorder) Publish(subject string, data []byte) error {
	p.subject = subject
	p.data = append(p.data, data)
	return p.err
}

func TestNATSSink(t *testing.T) {
	pub := &publishRecorder{}
	s := &natsSink{l: (*logging.TestLogger)(t), conn: pub, subject: "spkrprot.events"}

	n := protection.Notification{
		Kind:   protection.KindState,
		Time:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		State:  protection.Calibrated.String(),
		Result: "success",
	}
	s.Notify(n)
	if pub.subject != "spkrprot.events" || len(pub.data) != 1 {
		t.Fatalf("unexpected publish: subject %q, %d messages", pub.subject, len(pub.data))
	}
	var got protection.Notification
	err := json.Unmarshal(pub.data[0], &got)
	if err != nil {
		t.Fatalf("could not unmarshal published notification: %v", err)
	}
	if diff := cmp.Diff(n, got); diff != "" {
		t.Errorf("unexpected notification (-want +got):\n%s", diff)
	}

	pub.err = errors.New("not connected")
	s.Notify(n)
	if len(pub.data) != 2 {
		t.Errorf("expected publish attempt despite error")
	}
}
