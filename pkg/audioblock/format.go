// Package audioblock implements the typed audio block and sample-format
// descriptor that flow through the output core: a PCM buffer plus timing
// metadata, and the format negotiated between the decoder and the sink.
package audioblock

import "fmt"

// Channel mask bits, one per physical speaker position. Only the low bits
// actually used by this module are named; higher bits are accepted and
// passed through untouched by the channel mapper.
const (
	ChanFrontLeft uint32 = 1 << iota
	ChanFrontRight
	ChanFrontCenter
	ChanLFE
	ChanRearLeft
	ChanRearRight
	ChanRearCenter
	ChanSideLeft
	ChanSideRight
	ChanDualMono
)

// MaxChannels bounds the physical channel count a Format may describe.
const MaxChannels = 9

const (
	minSampleRate = 4000
	maxSampleRate = 768000
)

// Codec is a fourcc-like tag identifying the sample encoding. PCM codecs
// carry a bits-per-sample value recoverable via BitsPerSample; opaque or
// passthrough codecs (compressed bitstreams tunnelled to the sink) do not.
type Codec uint32

// Well-known PCM codec tags. Values are arbitrary but stable within this
// module; they are not wire-compatible with any external fourcc registry.
const (
	CodecS16 Codec = iota + 1
	CodecS24
	CodecS32
	CodecF32
	CodecF64
	CodecU8
	// CodecPassthrough marks a compressed/opaque bitstream (e.g. AC3/DTS)
	// tunnelled to the sink without conversion. BitsPerSample returns 0.
	CodecPassthrough
)

// BitsPerSample returns the bit depth for PCM codec variants, and 0 for
// opaque/passthrough codecs. Callers handling a passthrough codec must set
// BytesPerFrame manually since it cannot be derived from bits/sample.
func BitsPerSample(c Codec) int {
	switch c {
	case CodecS16:
		return 16
	case CodecS24:
		return 24
	case CodecS32, CodecF32:
		return 32
	case CodecF64:
		return 64
	case CodecU8:
		return 8
	default:
		return 0
	}
}

// CodecFromBitsPerSample maps a raw integer PCM bit depth, the shape a
// decoder library typically reports its format in, to the Codec tag
// carrying it. It is the inverse of BitsPerSample for the integer PCM
// variants; there is no bit depth that maps to CodecF32/CodecF64 since
// those are float formats, not distinguishable by bit depth alone.
func CodecFromBitsPerSample(bits int) (Codec, error) {
	switch bits {
	case 8:
		return CodecU8, nil
	case 16:
		return CodecS16, nil
	case 24:
		return CodecS24, nil
	case 32:
		return CodecS32, nil
	default:
		return 0, fmt.Errorf("audioblock: no PCM codec for %d-bit samples", bits)
	}
}

// DefaultChannelMask derives a plausible physical channel mask from a bare
// channel count, for sources (e.g. a PCM decoder) that report only a count
// and carry no layout metadata of their own: front left/right for the
// first two channels, then front-center-and-up for any further ones.
func DefaultChannelMask(channels int) uint32 {
	if channels <= 0 {
		return 0
	}
	mask := ChanFrontLeft
	if channels >= 2 {
		mask |= ChanFrontRight
	}
	for extra := 2; extra < channels; extra++ {
		mask |= ChanFrontCenter << uint(extra-2)
	}
	return mask
}

// Format is an immutable sample-format descriptor, negotiated once between
// decoder and sink and never mutated in place; a format change is performed
// by building a new Format and renegotiating (destroying and rebuilding the
// owning stream), never by editing fields of a live Format.
type Format struct {
	Codec             Codec
	SampleRate        uint32 // Hz, 4000 <= rate <= 768000
	PhysicalChannels  uint32 // channel mask of the layout actually output
	OriginalChannels  uint32 // channel mask of the layout before any downmix
	BitsPerSample     uint8
	BytesPerFrame     uint32 // (BitsPerSample/8) * channel count
	FrameLength       uint32 // samples per "frame" for block-structured codecs, >= 1
}

// ChannelCount returns the number of channels implied by PhysicalChannels.
func (f Format) ChannelCount() int {
	return popcount(f.PhysicalChannels)
}

func popcount(mask uint32) int {
	n := 0
	for mask != 0 {
		mask &= mask - 1
		n++
	}
	return n
}

// Validate checks the structural invariants a Format must hold before it
// can be used to construct a Stream: channel count in range, sample rate in
// range, and BytesPerFrame/FrameLength consistent with bits/sample and
// channel count for PCM codecs.
func (f Format) Validate() error {
	channels := f.ChannelCount()
	if channels == 0 {
		return fmt.Errorf("audioblock: invalid channel count (mask=%#x)", f.PhysicalChannels)
	}
	if channels > MaxChannels {
		return fmt.Errorf("audioblock: too many channels: %d > %d", channels, MaxChannels)
	}
	if f.SampleRate < minSampleRate || f.SampleRate > maxSampleRate {
		return fmt.Errorf("audioblock: sample rate %d out of range [%d, %d]", f.SampleRate, minSampleRate, maxSampleRate)
	}
	if f.FrameLength < 1 {
		return fmt.Errorf("audioblock: frame length must be >= 1, got %d", f.FrameLength)
	}
	if bps := BitsPerSample(f.Codec); bps != 0 {
		want := uint32(bps/8) * uint32(channels)
		if f.BytesPerFrame != want {
			return fmt.Errorf("audioblock: bytes/frame %d inconsistent with %d channels at %d bits (want %d)",
				f.BytesPerFrame, channels, bps, want)
		}
	}
	return nil
}

// Prepare derives BytesPerFrame and FrameLength from rate, channel count and
// bits/sample for PCM codecs, leaving passthrough codecs untouched (the
// caller is expected to have set BytesPerFrame manually in that case).
func Prepare(f Format) Format {
	bps := BitsPerSample(f.Codec)
	if bps == 0 {
		if f.FrameLength < 1 {
			f.FrameLength = 1
		}
		return f
	}
	f.BitsPerSample = uint8(bps)
	f.BytesPerFrame = uint32(bps/8) * uint32(f.ChannelCount())
	f.FrameLength = 1
	return f
}

// Identical reports whether a and b describe the same format: same codec,
// rate, and both channel masks. Bits-per-sample/bytes-per-frame are derived
// from those fields for PCM codecs and therefore not compared separately.
func Identical(a, b Format) bool {
	return a.Codec == b.Codec &&
		a.SampleRate == b.SampleRate &&
		a.PhysicalChannels == b.PhysicalChannels &&
		a.OriginalChannels == b.OriginalChannels
}

// IsEmpty reports whether f is the zero Format, used to signal "no usable
// mixer format" without a separate boolean flag.
func (f Format) IsEmpty() bool {
	return f.Codec == 0
}
