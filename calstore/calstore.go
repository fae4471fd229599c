/*
DESCRIPTION
  calstore.go provides persistence of per channel speaker calibration
  results, i.e. DC resistance in Q24 ohms and the temperature in Q6 degrees
  Celsius at which the resistance was measured.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package calstore reads and writes the speaker calibration store.
//
// The store is a flat file holding, for each channel in order, a 32 bit
// signed resistance in Q24 ohms followed by a 16 bit signed temperature in
// Q6 degrees Celsius. Values use the native byte order of the host and the
// file has no header.
package calstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// MaxChannels is the largest number of speaker channels a store holds.
const MaxChannels = 2

// RecordSize is the encoded size of one channel's record in bytes.
const RecordSize = 6

// Calibration limits.
const (
	// MinResistanceQ24 is the lowest resistance handed to the DSP; 2 ohms.
	MinResistanceQ24 int32 = 2 << 24

	// SafeTempC is the temperature assumed when no calibration exists.
	SafeTempC = 40

	// SafeTempQ6 is SafeTempC in Q6.
	SafeTempQ6 int16 = SafeTempC << 6

	// TempMinC and TempMaxC bound temperatures a calibration may start at.
	TempMinC = -30
	TempMaxC = 80
)

// ErrNotCalibrated is returned by Load when no store exists.
var ErrNotCalibrated = errors.New("speaker not calibrated")

// ErrChannels is returned for channel counts outside 1 to MaxChannels.
var ErrChannels = errors.New("invalid channel count")

// Record is the calibration result of a single channel.
type Record struct {
	ResistanceQ24 int32
	TemperatureQ6 int16
}

// ClampResistance returns r with its resistance raised to MinResistanceQ24 if
// it is lower.
func (r Record) ClampResistance() Record {
	if r.ResistanceQ24 < MinResistanceQ24 {
		r.ResistanceQ24 = MinResistanceQ24
	}
	return r
}

// Ohms returns the resistance in ohms.
func (r Record) Ohms() float64 { return float64(r.ResistanceQ24) / (1 << 24) }

// Celsius returns the temperature in degrees Celsius.
func (r Record) Celsius() float64 { return float64(r.TemperatureQ6) / (1 << 6) }

// ToQ6 converts a whole degree Celsius temperature to Q6.
func ToQ6(c int) int16 { return int16(c << 6) }

// ValidTemp reports whether c degrees Celsius is inside the range a
// calibration may be started at.
func ValidTemp(c int) bool { return c >= TempMinC && c <= TempMaxC }

// Defaults returns the safe records used when no calibration is available.
func Defaults(n int) []Record {
	recs := make([]Record, n)
	for i := range recs {
		recs[i] = Record{ResistanceQ24: MinResistanceQ24, TemperatureQ6: SafeTempQ6}
	}
	return recs
}

// Store is a calibration store at a fixed path.
type Store struct {
	path string
}

// New returns a Store backed by the file at path.
func New(path string) *Store { return &Store{path: path} }

// Path returns the path of the store file.
func (s *Store) Path() string { return s.path }

// Exists reports whether the store file exists.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save atomically replaces the store with recs. The records are written to a
// temporary file in the same directory, synced and renamed over the store so
// a reader never observes a partial file.
func (s *Store) Save(recs []Record) error {
	if len(recs) == 0 || len(recs) > MaxChannels {
		return fmt.Errorf("%w: %d", ErrChannels, len(recs))
	}

	f, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("could not create temporary store file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) // No-op after a successful rename.

	_, err = f.Write(Encode(recs))
	if err != nil {
		f.Close()
		return fmt.Errorf("could not write store: %w", err)
	}
	err = f.Sync()
	if err != nil {
		f.Close()
		return fmt.Errorf("could not sync store: %w", err)
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close store: %w", err)
	}
	err = os.Rename(tmp, s.path)
	if err != nil {
		return fmt.Errorf("could not replace store: %w", err)
	}
	return nil
}

// Load reads n channel records from the store. ErrNotCalibrated is returned
// if the store does not exist.
func (s *Store) Load(n int) ([]Record, error) {
	if n <= 0 || n > MaxChannels {
		return nil, fmt.Errorf("%w: %d", ErrChannels, n)
	}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotCalibrated
	}
	if err != nil {
		return nil, fmt.Errorf("could not read store: %w", err)
	}
	if len(b) < n*RecordSize {
		return nil, fmt.Errorf("store too short for %d channels: %d bytes", n, len(b))
	}
	return Decode(b[:n*RecordSize]), nil
}

// LoadOrDefault returns the stored records for n channels or, if the store
// is missing or unreadable, Defaults(n) together with the reason.
func (s *Store) LoadOrDefault(n int) ([]Record, error) {
	recs, err := s.Load(n)
	if err != nil {
		return Defaults(n), err
	}
	return recs, nil
}

// Remove deletes the store, forcing recalibration.
func (s *Store) Remove() error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Encode returns the store encoding of recs.
func Encode(recs []Record) []byte {
	b := make([]byte, len(recs)*RecordSize)
	for i, r := range recs {
		o := i * RecordSize
		binary.NativeEndian.PutUint32(b[o:], uint32(r.ResistanceQ24))
		binary.NativeEndian.PutUint16(b[o+4:], uint16(r.TemperatureQ6))
	}
	return b
}

// Decode parses whole records from b, ignoring any trailing partial record.
func Decode(b []byte) []Record {
	recs := make([]Record, len(b)/RecordSize)
	for i := range recs {
		o := i * RecordSize
		recs[i] = Record{
			ResistanceQ24: int32(binary.NativeEndian.Uint32(b[o:])),
			TemperatureQ6: int16(binary.NativeEndian.Uint16(b[o+4:])),
		}
	}
	return recs
}
