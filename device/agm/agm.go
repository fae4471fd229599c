/*
DESCRIPTION
  agm.go provides helpers for configuring DSP graph sessions through the
  mixer controls exposed by the audio graph manager's virtual sound card.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package agm configures DSP graph sessions using the mixer controls of the
// audio graph manager virtual card. Every front end PCM N exposes controls
// named "PCMN <suffix>" and every backend link exposes controls named
// "<backend> <suffix>".
package agm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/ausocean/spkrprot/device"
)

// Front end control suffixes.
const (
	CtlMetadata   = "metadata"
	CtlControl    = "control"
	CtlConnect    = "connect"
	CtlDisconnect = "disconnect"
	CtlSetParam   = "setParam"
	CtlGetParam   = "getParam"
	CtlTaggedInfo = "getTaggedInfo"
	CtlEvent      = "event"
)

// Backend control suffixes.
const (
	CtlMediaConfig = "rate ch fmt"
	CtlBEMetadata  = "metadata"
)

// ALSA PCM format codes used in media configuration.
const (
	FormatS16LE = 2
	FormatS24LE = 6
	FormatS32LE = 10
)

// ErrModuleNotFound is returned when a graph does not contain a module with
// the requested tag.
var ErrModuleNotFound = errors.New("module not found in graph")

// ControlName returns the name of a front end control.
func ControlName(fe int, suffix string) string {
	return fmt.Sprintf("PCM%d %s", fe, suffix)
}

// BackendControlName returns the name of a backend control.
func BackendControlName(be, suffix string) string {
	return be + " " + suffix
}

// ParseControlName splits a front end control name into its front end and
// suffix.
func ParseControlName(name string) (fe int, suffix string, ok bool) {
	rest, found := strings.CutPrefix(name, "PCM")
	if !found {
		return 0, "", false
	}
	num, suffix, found := strings.Cut(rest, " ")
	if !found {
		return 0, "", false
	}
	_, err := fmt.Sscanf(num, "%d", &fe)
	if err != nil {
		return 0, "", false
	}
	return fe, suffix, true
}

// Format returns the PCM format code for a bit width.
func Format(bitWidth int) (int, error) {
	switch bitWidth {
	case 16:
		return FormatS16LE, nil
	case 24:
		return FormatS24LE, nil
	case 32:
		return FormatS32LE, nil
	default:
		return 0, fmt.Errorf("unsupported bit width: %d", bitWidth)
	}
}

// KV is a graph key value pair.
type KV struct {
	Key   uint32
	Value uint32
}

// Graph keys describing the speaker protection use cases.
const (
	KeyStreamRX   uint32 = 0xA1000000
	KeyStreamTX   uint32 = 0xB1000000
	KeyDeviceRX   uint32 = 0xA2000000
	KeyDeviceTX   uint32 = 0xA3000000
	KeyDevicePP   uint32 = 0xAC000000
	ValSpeaker    uint32 = 0xA2000001
	ValVIFeedback uint32 = 0xA3000009
	ValCPS        uint32 = 0xA300000B
	ValSPCal      uint32 = 0xAC000002
	ValSPNormal   uint32 = 0xAC000003
	ValProxyTX    uint32 = 0xB100000C
	ValPCMPlay    uint32 = 0xA1000001
)

// Metadata is the graph description written to a front end or backend
// metadata control.
type Metadata struct {
	GKV []KV // Graph key values.
	CKV []KV // Calibration key values.
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m Metadata) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, 8+8*(len(m.GKV)+len(m.CKV))+8)
	b = appendKVs(b, m.GKV)
	b = appendKVs(b, m.CKV)
	// No properties.
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = binary.LittleEndian.AppendUint32(b, 0)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *Metadata) UnmarshalBinary(b []byte) error {
	var err error
	m.GKV, b, err = readKVs(b)
	if err != nil {
		return fmt.Errorf("could not read graph keys: %w", err)
	}
	m.CKV, _, err = readKVs(b)
	if err != nil {
		return fmt.Errorf("could not read calibration keys: %w", err)
	}
	return nil
}

// Value returns the value stored for key k in the graph key values.
func (m Metadata) Value(k uint32) (uint32, bool) {
	for _, kv := range m.GKV {
		if kv.Key == k {
			return kv.Value, true
		}
	}
	return 0, false
}

func appendKVs(b []byte, kvs []KV) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(kvs)))
	for _, kv := range kvs {
		b = binary.LittleEndian.AppendUint32(b, kv.Key)
		b = binary.LittleEndian.AppendUint32(b, kv.Value)
	}
	return b
}

func readKVs(b []byte) ([]KV, []byte, error) {
	if len(b) < 4 {
		return nil, nil, errors.New("short key value list")
	}
	n := int(binary.LittleEndian.Uint32(b))
	b = b[4:]
	if len(b) < 8*n {
		return nil, nil, fmt.Errorf("key value list too short for %d entries", n)
	}
	kvs := make([]KV, n)
	for i := range kvs {
		kvs[i] = KV{Key: binary.LittleEndian.Uint32(b[8*i:]), Value: binary.LittleEndian.Uint32(b[8*i+4:])}
	}
	return kvs, b[8*n:], nil
}

// SetMetadata writes graph metadata for a front end and its backend.
func SetMetadata(m device.Mixer, fe int, be string, md Metadata) error {
	b, err := md.MarshalBinary()
	if err != nil {
		return err
	}
	err = m.SetBytes(ControlName(fe, CtlMetadata), b)
	if err != nil {
		return fmt.Errorf("could not set front end metadata: %w", err)
	}
	err = m.SetBytes(BackendControlName(be, CtlBEMetadata), b)
	if err != nil {
		return fmt.Errorf("could not set backend metadata: %w", err)
	}
	return nil
}

// SetMediaConfig sets the rate, channel count and format of a backend.
func SetMediaConfig(m device.Mixer, be string, info device.Info) error {
	f, err := Format(info.BitWidth)
	if err != nil {
		return err
	}
	err = m.SetInts(BackendControlName(be, CtlMediaConfig), []int32{int32(info.SampleRate), int32(info.Channels), int32(f)})
	if err != nil {
		return fmt.Errorf("could not set media config for %s: %w", be, err)
	}
	return nil
}

// Connect links front end fe to backend be.
func Connect(m device.Mixer, fe int, be string) error {
	err := m.SetEnum(ControlName(fe, CtlConnect), be)
	if err != nil {
		return fmt.Errorf("could not connect PCM%d to %s: %w", fe, be, err)
	}
	return nil
}

// Disconnect unlinks front end fe from backend be.
func Disconnect(m device.Mixer, fe int, be string) error {
	err := m.SetEnum(ControlName(fe, CtlDisconnect), be)
	if err != nil {
		return fmt.Errorf("could not disconnect PCM%d from %s: %w", fe, be, err)
	}
	return nil
}

// SetCustomPayload applies a parameter payload to the graph of front end fe.
func SetCustomPayload(m device.Mixer, fe int, be string, payload []byte) error {
	err := m.SetEnum(ControlName(fe, CtlControl), be)
	if err != nil {
		return fmt.Errorf("could not select %s on PCM%d: %w", be, fe, err)
	}
	err = m.SetBytes(ControlName(fe, CtlSetParam), payload)
	if err != nil {
		return fmt.Errorf("could not set custom payload on PCM%d: %w", fe, err)
	}
	return nil
}

// GetParam reads back the parameter payload, a request previously built with
// dsp.BuildParam, from the graph of front end fe.
func GetParam(m device.Mixer, fe int, be string, req []byte) ([]byte, error) {
	err := m.SetEnum(ControlName(fe, CtlControl), be)
	if err != nil {
		return nil, fmt.Errorf("could not select %s on PCM%d: %w", be, fe, err)
	}
	err = m.SetBytes(ControlName(fe, CtlGetParam), req)
	if err != nil {
		return nil, fmt.Errorf("could not request parameter on PCM%d: %w", fe, err)
	}
	b, err := m.Bytes(ControlName(fe, CtlGetParam))
	if err != nil {
		return nil, fmt.Errorf("could not read parameter on PCM%d: %w", fe, err)
	}
	return b, nil
}

// Module is a module present in a graph.
type Module struct {
	ID   uint32
	MIID uint32
}

// TaggedModules maps module tags to the modules carrying them.
type TaggedModules map[uint32][]Module

// MarshalBinary implements encoding.BinaryMarshaler.
func (t TaggedModules) MarshalBinary() ([]byte, error) {
	b := binary.LittleEndian.AppendUint32(nil, uint32(len(t)))
	for tag, mods := range t {
		b = binary.LittleEndian.AppendUint32(b, tag)
		b = binary.LittleEndian.AppendUint32(b, uint32(len(mods)))
		for _, m := range mods {
			b = binary.LittleEndian.AppendUint32(b, m.ID)
			b = binary.LittleEndian.AppendUint32(b, m.MIID)
		}
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (t *TaggedModules) UnmarshalBinary(b []byte) error {
	short := errors.New("short tagged module info")
	if len(b) < 4 {
		return short
	}
	n := int(binary.LittleEndian.Uint32(b))
	b = b[4:]
	*t = make(TaggedModules, n)
	for i := 0; i < n; i++ {
		if len(b) < 8 {
			return short
		}
		tag := binary.LittleEndian.Uint32(b)
		nm := int(binary.LittleEndian.Uint32(b[4:]))
		b = b[8:]
		if len(b) < 8*nm {
			return short
		}
		mods := make([]Module, nm)
		for j := range mods {
			mods[j] = Module{ID: binary.LittleEndian.Uint32(b[8*j:]), MIID: binary.LittleEndian.Uint32(b[8*j+4:])}
		}
		(*t)[tag] = mods
		b = b[8*nm:]
	}
	return nil
}

// ModuleInstanceID returns the instance ID of the module tagged tag in the
// graph of front end fe.
func ModuleInstanceID(m device.Mixer, fe int, be string, tag uint32) (uint32, error) {
	err := m.SetEnum(ControlName(fe, CtlControl), be)
	if err != nil {
		return 0, fmt.Errorf("could not select %s on PCM%d: %w", be, fe, err)
	}
	b, err := m.Bytes(ControlName(fe, CtlTaggedInfo))
	if err != nil {
		return 0, fmt.Errorf("could not read tagged info on PCM%d: %w", fe, err)
	}
	var t TaggedModules
	err = t.UnmarshalBinary(b)
	if err != nil {
		return 0, err
	}
	mods := t[tag]
	if len(mods) == 0 {
		return 0, fmt.Errorf("%w: tag %#x on PCM%d", ErrModuleNotFound, tag, fe)
	}
	return mods[0].MIID, nil
}

// EventRegistration registers or deregisters interest in a module event.
type EventRegistration struct {
	MIID     uint32
	EventID  uint32
	Register bool
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r EventRegistration) MarshalBinary() ([]byte, error) {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:], r.MIID)
	binary.LittleEndian.PutUint32(b[4:], r.EventID)
	// Bytes 8 to 11 hold the size of event config, always zero here.
	if r.Register {
		b[12] = 1
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *EventRegistration) UnmarshalBinary(b []byte) error {
	if len(b) < 16 {
		return errors.New("short event registration")
	}
	r.MIID = binary.LittleEndian.Uint32(b[0:])
	r.EventID = binary.LittleEndian.Uint32(b[4:])
	r.Register = b[12] != 0
	return nil
}

// RegisterEvent registers, or with register false deregisters, for event
// eventID raised by module instance miid in the graph of front end fe.
func RegisterEvent(m device.Mixer, fe int, miid, eventID uint32, register bool) error {
	b, _ := EventRegistration{MIID: miid, EventID: eventID, Register: register}.MarshalBinary()
	err := m.SetBytes(ControlName(fe, CtlEvent), b)
	if err != nil {
		return fmt.Errorf("could not set event registration on PCM%d: %w", fe, err)
	}
	return nil
}

// EventHeaderSize is the size of the header preceding an event payload.
const EventHeaderSize = 12

// MarshalEvent returns the wire form of a DSP event as delivered by the graph
// manager.
func MarshalEvent(miid, eventID uint32, payload []byte) []byte {
	b := make([]byte, EventHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(b[0:], miid)
	binary.LittleEndian.PutUint32(b[4:], eventID)
	binary.LittleEndian.PutUint32(b[8:], uint32(len(payload)))
	copy(b[EventHeaderSize:], payload)
	return b
}

// ParseEvent parses a DSP event delivered on front end fe.
func ParseEvent(fe int, b []byte) (device.Event, error) {
	if len(b) < EventHeaderSize {
		return device.Event{}, fmt.Errorf("short event: %d bytes", len(b))
	}
	n := int(binary.LittleEndian.Uint32(b[8:]))
	if len(b)-EventHeaderSize < n {
		return device.Event{}, fmt.Errorf("event payload truncated: want %d bytes, have %d", n, len(b)-EventHeaderSize)
	}
	return device.Event{
		FrontEnd:         fe,
		ModuleInstanceID: binary.LittleEndian.Uint32(b[0:]),
		EventID:          binary.LittleEndian.Uint32(b[4:]),
		Payload:          b[EventHeaderSize : EventHeaderSize+n],
	}, nil
}
