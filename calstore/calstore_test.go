/*
DESCRIPTION
  calstore_test.go provides tests for the calibration store.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package calstore

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRoundTrip(t *testing.T) {
	tests := [][]Record{
		{{ResistanceQ24: 0x900000, TemperatureQ6: 25 << 6}},
		{{ResistanceQ24: 0x900000, TemperatureQ6: 25 << 6}, {ResistanceQ24: 0x800000, TemperatureQ6: -10 << 6}},
		{{ResistanceQ24: -1, TemperatureQ6: -30 << 6}, {ResistanceQ24: 1 << 30, TemperatureQ6: 80 << 6}},
	}

	for i, want := range tests {
		s := New(filepath.Join(t.TempDir(), "audio.cal"))
		err := s.Save(want)
		if err != nil {
			t.Fatalf("did not expect error for test %d: %v", i, err)
		}
		got, err := s.Load(len(want))
		if err != nil {
			t.Fatalf("did not expect error for test %d: %v", i, err)
		}
		if !cmp.Equal(got, want) {
			t.Errorf("did not get expected result for test %d\nGot: %v\nWant: %v", i, got, want)
		}
	}
}

func TestFileLayout(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "audio.cal"))
	recs := []Record{{0x900000, 25 << 6}, {0x900000, 25 << 6}}
	err := s.Save(recs)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	b, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("could not read store: %v", err)
	}
	if len(b) != 2*RecordSize {
		t.Fatalf("unexpected store size: got %d, want %d", len(b), 2*RecordSize)
	}
	for ch := 0; ch < 2; ch++ {
		o := ch * RecordSize
		r := int32(binary.NativeEndian.Uint32(b[o:]))
		tq := int16(binary.NativeEndian.Uint16(b[o+4:]))
		if r != 0x900000 || tq != 1600 {
			t.Errorf("unexpected record for channel %d: r=%#x t=%d", ch, r, tq)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "audio.cal"))
	if s.Exists() {
		t.Fatal("store should not exist")
	}
	_, err := s.Load(2)
	if !errors.Is(err, ErrNotCalibrated) {
		t.Fatalf("expected ErrNotCalibrated, got: %v", err)
	}

	got, err := s.LoadOrDefault(2)
	if err == nil {
		t.Error("expected reason for defaults")
	}
	want := []Record{{2 << 24, 40 << 6}, {2 << 24, 40 << 6}}
	if !cmp.Equal(got, want) {
		t.Errorf("did not get expected defaults\nGot: %v\nWant: %v", got, want)
	}
}

func TestLoadShort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.cal")
	err := os.WriteFile(path, make([]byte, RecordSize+2), 0644)
	if err != nil {
		t.Fatalf("could not write short file: %v", err)
	}
	s := New(path)

	_, err = s.Load(2)
	if err == nil || errors.Is(err, ErrNotCalibrated) {
		t.Fatalf("expected short file error, got: %v", err)
	}

	// A single channel still fits.
	got, err := s.Load(1)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("unexpected record count: %d", len(got))
	}
}

func TestSaveChannels(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "audio.cal"))
	for _, n := range []int{0, MaxChannels + 1} {
		err := s.Save(make([]Record, n))
		if !errors.Is(err, ErrChannels) {
			t.Errorf("expected ErrChannels for %d records, got: %v", n, err)
		}
	}
	if s.Exists() {
		t.Error("store should not have been created")
	}
}

func TestSaveReplaces(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "audio.cal"))
	err := s.Save([]Record{{1 << 24, 0}, {1 << 24, 0}})
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	want := []Record{{3 << 24, 20 << 6}, {4 << 24, 21 << 6}}
	err = s.Save(want)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	got, err := s.Load(2)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if !cmp.Equal(got, want) {
		t.Errorf("did not get expected result\nGot: %v\nWant: %v", got, want)
	}

	// No temporary files are left behind.
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("could not read dir: %v", err)
	}
	if len(ents) != 1 {
		t.Errorf("unexpected files in store directory: %v", ents)
	}

	err = s.Remove()
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	err = s.Remove()
	if err != nil {
		t.Errorf("remove of missing store should not fail: %v", err)
	}
}

func TestClampResistance(t *testing.T) {
	tests := []struct {
		in   int32
		want int32
	}{
		{in: 0, want: MinResistanceQ24},
		{in: MinResistanceQ24 - 1, want: MinResistanceQ24},
		{in: MinResistanceQ24, want: MinResistanceQ24},
		{in: 0x900000 << 4, want: 0x900000 << 4},
	}
	for i, test := range tests {
		got := Record{ResistanceQ24: test.in}.ClampResistance().ResistanceQ24
		if got != test.want {
			t.Errorf("did not get expected result for test %d: got %#x, want %#x", i, got, test.want)
		}
	}
}

func TestValidTemp(t *testing.T) {
	tests := []struct {
		c    int
		want bool
	}{
		{-31, false}, {-30, true}, {25, true}, {80, true}, {81, false},
	}
	for _, test := range tests {
		if got := ValidTemp(test.c); got != test.want {
			t.Errorf("ValidTemp(%d) = %v, want %v", test.c, got, test.want)
		}
	}
	if ToQ6(25) != 1600 {
		t.Errorf("unexpected Q6 conversion: %d", ToQ6(25))
	}
}
