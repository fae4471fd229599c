/*
DESCRIPTION
  sensor_test.go provides tests for the temperature readers.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package sensor

import (
	"errors"
	"testing"

	"github.com/kidoman/embd"

	"github.com/ausocean/utils/logging"
)

// testLogger implements a logging.Logger wrapping testing.T.
type testLogger testing.T

func (tl *testLogger) SetLevel(lvl int8) {}
func (tl *testLogger) Log(lvl int8, msg string, args ...interface{}) {
	tl.Logf("%d: %s %v", lvl, msg, args)
}
func (tl *testLogger) Debug(msg string, args ...interface{})   { tl.Log(logging.Debug, msg, args...) }
func (tl *testLogger) Info(msg string, args ...interface{})    { tl.Log(logging.Info, msg, args...) }
func (tl *testLogger) Warning(msg string, args ...interface{}) { tl.Log(logging.Warning, msg, args...) }
func (tl *testLogger) Error(msg string, args ...interface{})   { tl.Log(logging.Error, msg, args...) }
func (tl *testLogger) Fatal(msg string, args ...interface{})   { tl.Log(logging.Fatal, msg, args...) }

type valueMixer map[string]int

func (m valueMixer) Value(name string) (int, error) {
	v, ok := m[name]
	if !ok {
		return 0, errors.New("no control")
	}
	return v, nil
}
func (m valueMixer) SetValue(string, int) error    { return nil }
func (m valueMixer) SetEnum(string, string) error  { return nil }
func (m valueMixer) SetInts(string, []int32) error { return nil }
func (m valueMixer) Bytes(string) ([]byte, error)  { return nil, nil }
func (m valueMixer) SetBytes(string, []byte) error { return nil }

func TestMixer(t *testing.T) {
	m := valueMixer{"SpkrLeft WSA Temp": 25, "SpkrRight WSA Temp": 200}
	s := NewMixer((*testLogger)(t), m, []string{"SpkrLeft WSA Temp", "SpkrRight WSA Temp", "Missing"})

	got, err := s.Temperature(0)
	if err != nil || got != 25 {
		t.Errorf("unexpected reading: %d, %v", got, err)
	}
	_, err = s.Temperature(1)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for implausible value, got: %v", err)
	}
	_, err = s.Temperature(2)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for missing control, got: %v", err)
	}
	_, err = s.Temperature(3)
	if !errors.Is(err, ErrChannel) {
		t.Errorf("expected ErrChannel, got: %v", err)
	}
}

// regBus is an embd.I2CBus serving register reads from a map.
type regBus struct {
	embd.I2CBus
	regs map[byte]byte
}

func (b *regBus) ReadByteFromReg(addr, reg byte) (byte, error) {
	v, ok := b.regs[reg]
	if !ok {
		return 0, errors.New("nack")
	}
	return v, nil
}

func TestI2C(t *testing.T) {
	bus := &regBus{regs: map[byte]byte{0x00: 25, 0x01: 0xF6}} // 0xF6 is -10.
	s := NewI2C((*testLogger)(t), bus, 0x48, []byte{0x00, 0x01, 0x02})

	tests := []struct {
		ch      int
		want    int
		wantErr error
	}{
		{ch: 0, want: 25},
		{ch: 1, want: -10},
		{ch: 2, wantErr: ErrInvalid},
		{ch: 3, wantErr: ErrChannel},
	}
	for _, test := range tests {
		got, err := s.Temperature(test.ch)
		if test.wantErr != nil {
			if !errors.Is(err, test.wantErr) {
				t.Errorf("channel %d: expected %v, got: %v", test.ch, test.wantErr, err)
			}
			continue
		}
		if err != nil || got != test.want {
			t.Errorf("channel %d: got %d, %v, want %d", test.ch, got, err, test.want)
		}
	}
}

func TestFixed(t *testing.T) {
	f := Fixed{25, 30}
	if v, err := f.Temperature(1); err != nil || v != 30 {
		t.Errorf("unexpected reading: %d, %v", v, err)
	}
	if _, err := f.Temperature(2); !errors.Is(err, ErrChannel) {
		t.Errorf("expected ErrChannel, got: %v", err)
	}
}
