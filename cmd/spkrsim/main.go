/*
DESCRIPTION
  spkrsim is a bench tool that runs speaker calibration against a simulated
  platform. The simulated DSP reports the speaker resistance estimated from
  a VI feedback recording, which is either read from a WAV or FLAC file or
  synthesized.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package spkrsim runs speaker calibration on a simulated platform.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ausocean/spkrprot/calstore"
	"github.com/ausocean/spkrprot/codec/vi"
	"github.com/ausocean/spkrprot/device/sensor"
	"github.com/ausocean/spkrprot/device/sim"
	"github.com/ausocean/spkrprot/dsp"
	"github.com/ausocean/spkrprot/protection"
	"github.com/ausocean/spkrprot/protection/config"
	"github.com/ausocean/utils/logging"
)

const (
	defaultRate  = 48000
	wakeInterval = 50 * time.Millisecond
)

func main() {
	var (
		viPath    = flag.String("vi", "", "VI recording to estimate resistance from; synthesized if empty")
		ohms      = flag.String("ohms", "6,6", "comma separated speaker resistances of the synthesized recording")
		duration  = flag.Float64("duration", 2, "duration of the synthesized recording in seconds")
		pilot     = flag.Float64("pilot", 187.5, "pilot tone frequency in Hz")
		temp      = flag.Int("temp", 25, "speaker temperature in degrees Celsius")
		maxSpread = flag.Float64("spread", 0.05, "largest relative spread of block estimates accepted")
		latency   = flag.Duration("latency", 500*time.Millisecond, "delay before the DSP reports calibration")
		timeout   = flag.Duration("timeout", 30*time.Second, "longest time to wait for calibration")
		plotPath  = flag.String("plot", "", "write a plot of block impedance estimates to this PNG file")
		storePath = flag.String("store", "", "calibration store path; a temporary file if empty")
		logLevel  = flag.Int("LogLevel", int(logging.Info), "log level")
	)
	flag.Parse()

	log := logging.New(int8(*logLevel), os.Stderr, false)

	rec, err := recording(*viPath, *ohms, *duration, *pilot)
	if err != nil {
		log.Fatal("could not get VI recording", "error", err)
	}
	n := rec.Speakers()
	if n > calstore.MaxChannels {
		log.Fatal("too many speakers in recording", "speakers", n)
	}

	ests := make([]vi.Estimate, n)
	for s := range ests {
		ests[s], err = rec.Impedance(s, *pilot, vi.DefaultScale)
		if err != nil {
			log.Fatal("could not estimate impedance", "speaker", s, "error", err)
		}
		log.Info("estimated impedance", "speaker", s, "ohms", ests[s].Ohms, "stddev", ests[s].StdDev, "blocks", len(ests[s].Blocks))
	}

	if *plotPath != "" {
		err = plotEstimates(*plotPath, ests)
		if err != nil {
			log.Error("could not plot estimates", "error", err)
		}
	}

	if *storePath == "" {
		dir, err := os.MkdirTemp("", "spkrsim")
		if err != nil {
			log.Fatal("could not create store directory", "error", err)
		}
		defer os.RemoveAll(dir)
		*storePath = filepath.Join(dir, "audio.cal")
	}

	p := sim.NewPlatform(log, sim.DefaultDevices(n))
	defer p.Close()
	p.OnCalibration(*latency, responder(log, ests, *maxSpread))

	temps := make(sensor.Fixed, n)
	for i := range temps {
		temps[i] = *temp
	}
	cfg := config.Config{
		Logger:             log,
		LogLevel:           int8(*logLevel),
		Channels:           uint(n),
		DynamicCalibration: true,
		WakeInterval:       wakeInterval,
		CalibrationTimeout: *latency + 5*time.Second,
		StorePath:          *storePath,
		TempSensor:         config.SensorFixed,
	}
	sp, err := protection.New(cfg, p, temps, protection.WithEventSink(&printSink{enc: json.NewEncoder(os.Stdout)}))
	if err != nil {
		log.Fatal("could not initialise speaker protection", "error", err)
	}

	select {
	case <-sp.Done():
	case <-time.After(*timeout):
		log.Error("calibration did not complete", "state", sp.State().String())
		sp.Close()
		os.Exit(1)
	}

	recs, err := sp.Calibration()
	if err != nil {
		log.Fatal("no calibration stored", "error", err)
	}
	for ch, r := range recs {
		fmt.Printf("channel %d: %.3f ohms at %.1f C\n", ch, r.Ohms(), r.Celsius())
	}
}

// recording opens the VI recording at path, or synthesizes one if path is
// empty.
func recording(path, ohms string, d, pilot float64) (*vi.Recording, error) {
	if path != "" {
		return vi.Open(path)
	}
	var zs []float64
	for _, s := range strings.Split(ohms, ",") {
		z, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || z <= 0 {
			return nil, fmt.Errorf("invalid resistance %q", s)
		}
		zs = append(zs, z)
	}
	if len(zs) == 0 {
		return nil, errors.New("no resistances")
	}
	return vi.Synthesize(defaultRate, d, pilot, zs, vi.DefaultScale), nil
}

// responder returns a calibration responder reporting the estimated
// resistances. Channels whose block estimates spread by more than maxSpread
// of their mean fail.
func responder(l logging.Logger, ests []vi.Estimate, maxSpread float64) sim.Responder {
	return func(r0t0 dsp.R0T0Config) dsp.CalibrationEvent {
		ev := make(dsp.CalibrationEvent, len(ests))
		for ch, est := range ests {
			ev[ch].R0Q24 = int32(est.Ohms * (1 << 24))
			ev[ch].Status = dsp.CalibSuccess
			if est.StdDev > maxSpread*est.Ohms {
				l.Warning("unstable impedance estimate", "channel", ch, "ohms", est.Ohms, "stddev", est.StdDev)
				ev[ch].Status = dsp.CalibFailure
			}
		}
		return ev
	}
}

// printSink writes notifications to stdout as JSON lines.
type printSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (s *printSink) Notify(n protection.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enc.Encode(n)
}
