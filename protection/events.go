/*
DESCRIPTION
  events.go provides handling of the calibration and diagnostics events raised
  by the DSP speaker protection modules.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package protection

import (
	"time"

	"github.com/ausocean/spkrprot/calstore"
	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/spkrprot/dsp"
)

// Notification kinds.
const (
	KindCalibration = "calibration" // A calibration event from the DSP.
	KindDiagnostics = "diagnostics" // A speaker diagnostics event from the DSP.
	KindState       = "state"       // The end of a calibration session.
)

// Notification describes something that happened to the speaker. It is
// handed to the EventSink, if any.
type Notification struct {
	Kind     string          `json:"kind"`
	Time     time.Time       `json:"time"`
	State    string          `json:"state,omitempty"`
	Result   string          `json:"result,omitempty"`
	Channels []ChannelReport `json:"channels,omitempty"`
}

// ChannelReport is the per channel part of a Notification.
type ChannelReport struct {
	Channel  int     `json:"channel"`
	Status   string  `json:"status,omitempty"`
	Ohms     float64 `json:"ohms,omitempty"`
	DCFault  bool    `json:"dcFault,omitempty"`
	OverTemp bool    `json:"overTemp,omitempty"`
}

// EventSink receives notifications. Notify is called from the event dispatch
// and scheduler goroutines and must not block.
type EventSink interface {
	Notify(n Notification)
}

func (sp *SpeakerProtection) notify(n Notification) {
	if sp.sink == nil {
		return
	}
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	sp.sink.Notify(n)
}

func channelsOf(recs []calstore.Record) []ChannelReport {
	var r []ChannelReport
	for i, rec := range recs {
		r = append(r, ChannelReport{Channel: i, Ohms: rec.Ohms()})
	}
	return r
}

// handleEvent is registered with the resource manager for the front ends of
// calibration sessions and runtime feedback.
func (sp *SpeakerProtection) handleEvent(e device.Event) {
	switch e.EventID {
	case dsp.EventVICalibration:
		sp.handleCalibration(e)
	case dsp.EventSpeakerDiagnostics:
		sp.handleDiagnostics(e)
	default:
		sp.l.Debug("ignoring DSP event", "event", e.EventID, "miid", e.ModuleInstanceID)
	}
}

func (sp *SpeakerProtection) handleCalibration(e device.Event) {
	var ev dsp.CalibrationEvent
	err := ev.UnmarshalBinary(e.Payload)
	if err != nil {
		sp.l.Warning("bad calibration event", "error", err)
		return
	}

	report := make([]ChannelReport, len(ev))
	for i, ch := range ev {
		report[i] = ChannelReport{Channel: i, Status: ch.Status.String(), Ohms: float64(ch.R0Q24) / (1 << 24)}
	}
	sp.notify(Notification{Kind: KindCalibration, Channels: report})

	n := int(sp.config().Channels)
	c := sp.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != statusRunning {
		sp.l.Debug("calibration event outside of session", "status", c.status.String())
		return
	}

	switch ev.Outcome() {
	case dsp.OutcomeSuccess:
		if len(ev) < n {
			sp.l.Warning("calibration event missing channels", "got", len(ev), "want", n)
			return
		}
		c.result = make([]int32, n)
		for i := range c.result {
			c.result[i] = ev[i].R0Q24
		}
		sp.l.Info("calibration succeeded", "channels", report)
		c.setStatus(statusSucceeded)
	case dsp.OutcomeFailure:
		sp.l.Warning("calibration failed", "channels", report)
		c.setStatus(statusFailed)
	default:
		sp.l.Debug("calibration in progress", "channels", report)
	}
}

func (sp *SpeakerProtection) handleDiagnostics(e device.Event) {
	var ev dsp.DiagnosticsEvent
	err := ev.UnmarshalBinary(e.Payload)
	if err != nil {
		sp.l.Warning("bad diagnostics event", "error", err)
		return
	}

	cfg := sp.config()
	var report []ChannelReport
	for ch := range ev {
		dc, hot := ev.DCFault(ch), ev.OverTemp(ch)
		if !dc && !hot {
			continue
		}
		report = append(report, ChannelReport{Channel: ch, DCFault: dc, OverTemp: hot})
		if hot {
			diagnostics.WithLabelValues("over_temperature").Inc()
			sp.l.Warning("speaker over temperature", "channel", ch)
		}
		if dc {
			diagnostics.WithLabelValues("dc_fault").Inc()
			sp.l.Error("speaker DC fault detected", "channel", ch)
			sp.resetDCFault(cfg.DCFaultControls, ch)
		}
	}
	if len(report) != 0 {
		sp.notify(Notification{Kind: KindDiagnostics, Channels: report})
	}
}

// resetDCFault pulses the DC reset control of channel ch.
func (sp *SpeakerProtection) resetDCFault(ctls []string, ch int) {
	if ch >= len(ctls) {
		sp.l.Warning("no DC reset control for channel", "channel", ch)
		return
	}
	m, err := sp.rm.HwMixer()
	if err != nil {
		sp.l.Error("could not get hardware mixer", "error", err)
		return
	}
	for _, v := range []int{1, 0} {
		err = m.SetValue(ctls[ch], v)
		if err != nil {
			sp.l.Error("could not pulse DC reset", "control", ctls[ch], "value", v, "error", err)
			return
		}
	}
}
