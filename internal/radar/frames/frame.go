// Package frames defines the in-memory radar frame model and the packed
// 12-bit ADC payload codec used on the shared-memory transport.
package frames

import (
	"fmt"
)

// ADCFullScale is the maximum value of one 12-bit ADC sample. Samples are
// normalized to [0, 1] on decode so detector thresholds are independent of
// converter resolution.
const ADCFullScale = 4095.0

// Frame is one radar acquisition cycle: complex samples indexed by
// (antenna, chirp, sample-within-chirp). A Frame is immutable once decoded;
// the reader owns its copy outright.
type Frame struct {
	Antennas int
	Chirps   int
	Samples  int

	// data is antenna-major: antenna*(Chirps*Samples) + chirp*Samples + sample.
	data []complex128
}

// NewFrame allocates a zeroed frame of the given shape.
func NewFrame(antennas, chirps, samples int) *Frame {
	return &Frame{
		Antennas: antennas,
		Chirps:   chirps,
		Samples:  samples,
		data:     make([]complex128, antennas*chirps*samples),
	}
}

// At returns the sample at (antenna, chirp, sample).
func (f *Frame) At(antenna, chirp, sample int) complex128 {
	return f.data[antenna*f.Chirps*f.Samples+chirp*f.Samples+sample]
}

// Set stores the sample at (antenna, chirp, sample).
func (f *Frame) Set(antenna, chirp, sample int, v complex128) {
	f.data[antenna*f.Chirps*f.Samples+chirp*f.Samples+sample] = v
}

// Chirp returns the contiguous sample row for one (antenna, chirp) pair.
// The returned slice aliases the frame's backing store.
func (f *Frame) Chirp(antenna, chirp int) []complex128 {
	off := antenna*f.Chirps*f.Samples + chirp*f.Samples
	return f.data[off : off+f.Samples]
}

// PackSamples packs 12-bit ADC values two-per-three-bytes. The value count
// must be even; acquisition frame shapes guarantee this.
func PackSamples(values []uint16) ([]byte, error) {
	if len(values)%2 != 0 {
		return nil, fmt.Errorf("sample count must be even for 12-bit packing, got %d", len(values))
	}
	out := make([]byte, len(values)*3/2)
	for i := 0; i < len(values); i += 2 {
		a, b := values[i]&0x0fff, values[i+1]&0x0fff
		j := i * 3 / 2
		out[j] = byte(a >> 4)
		out[j+1] = byte(a&0x0f)<<4 | byte(b>>8)
		out[j+2] = byte(b)
	}
	return out, nil
}

// UnpackSamples reverses PackSamples, returning count 12-bit values.
func UnpackSamples(payload []byte, count int) ([]uint16, error) {
	if count%2 != 0 {
		return nil, fmt.Errorf("sample count must be even for 12-bit packing, got %d", count)
	}
	if need := count * 3 / 2; len(payload) < need {
		return nil, fmt.Errorf("payload too short: have %d bytes, need %d", len(payload), need)
	}
	out := make([]uint16, count)
	for i := 0; i < count; i += 2 {
		j := i * 3 / 2
		out[i] = uint16(payload[j])<<4 | uint16(payload[j+1])>>4
		out[i+1] = uint16(payload[j+1]&0x0f)<<8 | uint16(payload[j+2])
	}
	return out, nil
}

// DecodeADC turns a packed 12-bit frame payload into a Frame. The ADC stream
// interleaves antennas innermost: for each chirp, for each sample, one value
// per antenna. Values are normalized to [0, 1].
func DecodeADC(payload []byte, antennas, chirps, samples int) (*Frame, error) {
	count := antennas * chirps * samples
	values, err := UnpackSamples(payload, count)
	if err != nil {
		return nil, fmt.Errorf("decode frame payload: %w", err)
	}

	f := NewFrame(antennas, chirps, samples)
	i := 0
	for c := 0; c < chirps; c++ {
		for s := 0; s < samples; s++ {
			for a := 0; a < antennas; a++ {
				f.Set(a, c, s, complex(float64(values[i])/ADCFullScale, 0))
				i++
			}
		}
	}
	return f, nil
}

// EncodeADC converts normalized samples back into a packed payload. Used by
// the synthetic acquisition device and by tests; the hardware path produces
// packed payloads directly.
func EncodeADC(f *Frame) ([]byte, error) {
	values := make([]uint16, 0, f.Antennas*f.Chirps*f.Samples)
	for c := 0; c < f.Chirps; c++ {
		for s := 0; s < f.Samples; s++ {
			for a := 0; a < f.Antennas; a++ {
				v := real(f.At(a, c, s)) * ADCFullScale
				if v < 0 {
					v = 0
				}
				if v > ADCFullScale {
					v = ADCFullScale
				}
				values = append(values, uint16(v+0.5))
			}
		}
	}
	return PackSamples(values)
}
