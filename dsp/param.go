/*
DESCRIPTION
  param.go provides construction and parsing of DSP parameter payloads. A
  payload is a sequence of parameters, each a fixed header naming the module
  instance and parameter ID followed by the parameter data padded to an
  8 byte boundary.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package dsp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// HeaderSize is the size of a parameter header in bytes.
const HeaderSize = 16

const paramAlign = 8

// Param is a single decoded parameter.
type Param struct {
	MIID      uint32
	ParamID   uint32
	ErrorCode uint32
	Data      []byte
}

// BuildParam returns the encoding of a single parameter addressed to module
// instance miid.
func BuildParam(paramID, miid uint32, data []byte) []byte {
	n := HeaderSize + padded(len(data))
	b := make([]byte, n)
	binary.LittleEndian.PutUint32(b[0:], miid)
	binary.LittleEndian.PutUint32(b[4:], paramID)
	binary.LittleEndian.PutUint32(b[8:], uint32(len(data)))
	copy(b[HeaderSize:], data)
	return b
}

// Payload accumulates parameters destined for a single custom payload write.
type Payload []byte

// Add appends a parameter to the payload.
func (p *Payload) Add(paramID, miid uint32, data []byte) {
	*p = append(*p, BuildParam(paramID, miid, data)...)
}

// Reset discards any accumulated parameters.
func (p *Payload) Reset() { *p = (*p)[:0] }

// ParseParams splits a payload into its parameters.
func ParseParams(b []byte) ([]Param, error) {
	var params []Param
	for len(b) > 0 {
		if len(b) < HeaderSize {
			return nil, errors.Errorf("short parameter header: %d bytes", len(b))
		}
		p := Param{
			MIID:      binary.LittleEndian.Uint32(b[0:]),
			ParamID:   binary.LittleEndian.Uint32(b[4:]),
			ErrorCode: binary.LittleEndian.Uint32(b[12:]),
		}
		size := int(binary.LittleEndian.Uint32(b[8:]))
		b = b[HeaderSize:]
		if size > len(b) {
			return nil, errors.Errorf("parameter %#x truncated: want %d bytes, have %d", p.ParamID, size, len(b))
		}
		p.Data = b[:size]
		params = append(params, p)
		b = b[min(padded(size), len(b)):]
	}
	return params, nil
}

// Find returns the first parameter with the given ID.
func Find(params []Param, paramID uint32) (Param, bool) {
	for _, p := range params {
		if p.ParamID == paramID {
			return p, true
		}
	}
	return Param{}, false
}

func padded(n int) int {
	return (n + paramAlign - 1) &^ (paramAlign - 1)
}
