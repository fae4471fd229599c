/*
DESCRIPTION
  vi.go provides decoding and encoding of speaker VI (voltage and current)
  feedback recordings, and estimation of speaker impedance from them.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package vi handles speaker VI feedback recordings. A recording holds, for
// each speaker, a voltage channel followed by a current channel, matching the
// default VI channel map of the DSP.
package vi

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/stat"
)

// BlockSize is the number of samples per impedance estimate.
const BlockSize = 4096

const wavFormat = 1

// Errors returned by the package.
var (
	ErrChannels = errors.New("recording must hold a voltage and current channel per speaker")
	ErrShort    = errors.New("recording shorter than one block")
	ErrFormat   = errors.New("unsupported recording format")
)

// Scale holds the full scale voltage and current of the VI sense channels.
type Scale struct {
	Volts float64
	Amps  float64
}

// DefaultScale is the full scale of the smart amplifier sense ADCs.
var DefaultScale = Scale{Volts: 14, Amps: 4}

// Recording is a VI feedback recording with samples normalised to [-1, 1).
type Recording struct {
	SampleRate int
	V          [][]float64 // Voltage samples per speaker.
	I          [][]float64 // Current samples per speaker.
}

// Speakers returns the number of speakers in r.
func (r *Recording) Speakers() int { return len(r.V) }

// Open decodes the WAV or FLAC recording at path.
func Open(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return DecodeWAV(f)
	case ".flac":
		return DecodeFLAC(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrFormat, path)
	}
}

// DecodeWAV decodes a WAV VI recording.
func DecodeWAV(r io.ReadSeeker) (*Recording, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV", ErrFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("could not decode WAV: %w", err)
	}
	return deinterleave(buf.Data, int(d.NumChans), int(d.BitDepth), int(d.SampleRate))
}

// DecodeFLAC decodes a FLAC VI recording.
func DecodeFLAC(r io.Reader) (*Recording, error) {
	stream, err := flac.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("could not parse FLAC: %w", err)
	}
	defer stream.Close()

	nc := int(stream.Info.NChannels)
	var data []int
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not decode FLAC frame: %w", err)
		}
		for i := 0; i < frame.Subframes[0].NSamples; i++ {
			for _, subframe := range frame.Subframes {
				data = append(data, int(subframe.Samples[i]))
			}
		}
	}
	return deinterleave(data, nc, int(stream.Info.BitsPerSample), int(stream.Info.SampleRate))
}

func deinterleave(data []int, nc, bitDepth, rate int) (*Recording, error) {
	if nc == 0 || nc%2 != 0 {
		return nil, fmt.Errorf("%w: %d channels", ErrChannels, nc)
	}
	full := float64(int(1) << (bitDepth - 1))
	n := len(data) / nc
	rec := &Recording{SampleRate: rate, V: make([][]float64, nc/2), I: make([][]float64, nc/2)}
	for s := range rec.V {
		rec.V[s] = make([]float64, n)
		rec.I[s] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for s := range rec.V {
			rec.V[s][i] = float64(data[i*nc+2*s]) / full
			rec.I[s][i] = float64(data[i*nc+2*s+1]) / full
		}
	}
	return rec, nil
}

// EncodeWAV writes r as a WAV file of the given bit depth.
func (r *Recording) EncodeWAV(w io.WriteSeeker, bitDepth int) error {
	nc := 2 * r.Speakers()
	if nc == 0 {
		return ErrChannels
	}
	full := float64(int(1)<<(bitDepth-1)) - 1
	n := len(r.V[0])
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: nc, SampleRate: r.SampleRate},
		SourceBitDepth: bitDepth,
		Data:           make([]int, 0, n*nc),
	}
	for i := 0; i < n; i++ {
		for s := range r.V {
			buf.Data = append(buf.Data, int(math.Round(r.V[s][i]*full)), int(math.Round(r.I[s][i]*full)))
		}
	}

	enc := wav.NewEncoder(w, r.SampleRate, bitDepth, nc, wavFormat)
	err := enc.Write(buf)
	if err != nil {
		return fmt.Errorf("could not encode WAV: %w", err)
	}
	return enc.Close()
}

// Synthesize returns a recording of a pilot tone of frequency pilot Hz played
// at half of full scale voltage into speakers of the given resistances.
func Synthesize(rate int, d float64, pilot float64, ohms []float64, sc Scale) *Recording {
	n := int(float64(rate) * d)
	rec := &Recording{SampleRate: rate, V: make([][]float64, len(ohms)), I: make([][]float64, len(ohms))}
	for s, z := range ohms {
		rec.V[s] = make([]float64, n)
		rec.I[s] = make([]float64, n)
		for i := range rec.V[s] {
			v := 0.5 * sc.Volts * math.Sin(2*math.Pi*pilot*float64(i)/float64(rate))
			rec.V[s][i] = v / sc.Volts
			rec.I[s][i] = v / z / sc.Amps
		}
	}
	return rec
}

// Estimate is a speaker impedance estimate.
type Estimate struct {
	Ohms   float64   // Mean impedance over all blocks.
	StdDev float64   // Standard deviation of the block estimates.
	Blocks []float64 // Per block estimates.
}

// Impedance estimates the impedance of speaker s at the pilot tone frequency,
// in Hz, from Hann windowed blocks of BlockSize samples.
func (r *Recording) Impedance(s int, pilot float64, sc Scale) (Estimate, error) {
	if s < 0 || s >= r.Speakers() {
		return Estimate{}, fmt.Errorf("no speaker %d", s)
	}
	n := len(r.V[s]) / BlockSize
	if n == 0 {
		return Estimate{}, ErrShort
	}
	bin := int(math.Round(pilot * BlockSize / float64(r.SampleRate)))
	if bin <= 0 || bin >= BlockSize/2 {
		return Estimate{}, fmt.Errorf("pilot %gHz out of range", pilot)
	}

	var est Estimate
	for b := 0; b < n; b++ {
		v := window.Hann(BlockSize)
		i := window.Hann(BlockSize)
		for k := range v {
			v[k] *= r.V[s][b*BlockSize+k]
			i[k] *= r.I[s][b*BlockSize+k]
		}
		vk := cmplx.Abs(fft.FFTReal(v)[bin])
		ik := cmplx.Abs(fft.FFTReal(i)[bin])
		if ik == 0 {
			continue
		}
		est.Blocks = append(est.Blocks, vk/ik*sc.Volts/sc.Amps)
	}
	if len(est.Blocks) == 0 {
		return Estimate{}, errors.New("no current at pilot frequency")
	}
	if len(est.Blocks) == 1 {
		est.Ohms = est.Blocks[0]
		return est, nil
	}
	est.Ohms, est.StdDev = stat.MeanStdDev(est.Blocks, nil)
	return est, nil
}
