package filterstage

import (
	"fmt"
	"math"

	"github.com/drgolem/audiocore/pkg/audioblock"
	"github.com/drgolem/audiocore/pkg/chanmap"
)

// ChannelStage converts between two channel layouts sharing the same sample
// rate and codec. When the two sides carry the same channel count it is a
// pure in-place reorder driven by pkg/chanmap; when the counts differ it
// allocates and mixes: down to mono by averaging every input channel, down
// to a smaller multi-channel layout by keeping the leading channels, up by
// repeating input channels across the extra slots.
type ChannelStage struct {
	in, out audioblock.Format
	table   []int
	reorder bool
	bps     int
}

// NewChannelStage builds a ChannelStage for the given input/output formats,
// both of which must already share rate and codec. orderIn/orderOut are the
// physical channel-bit sequences the two sides present; they only matter
// for the equal-count reorder case.
func NewChannelStage(in, out audioblock.Format, orderIn, orderOut []uint32) (*ChannelStage, error) {
	if in.SampleRate != out.SampleRate || in.Codec != out.Codec {
		return nil, fmt.Errorf("filterstage: channel stage requires matching rate/codec")
	}
	if sampleBytes(in.Codec) == 0 {
		return nil, fmt.Errorf("filterstage: channel stage cannot convert passthrough codecs")
	}

	s := &ChannelStage{in: in, out: out, bps: int(in.BitsPerSample)}
	if in.ChannelCount() == out.ChannelCount() {
		mask := in.PhysicalChannels | out.PhysicalChannels
		s.table, s.reorder = chanmap.CheckChannelReorder(orderIn, orderOut, mask, in.ChannelCount())
	}
	return s, nil
}

func (s *ChannelStage) Name() string                    { return "channel_convert" }
func (s *ChannelStage) InputFormat() audioblock.Format  { return s.in }
func (s *ChannelStage) OutputFormat() audioblock.Format { return s.out }
func (s *ChannelStage) InPlace() bool                   { return s.in.ChannelCount() == s.out.ChannelCount() }
func (s *ChannelStage) Drain() *audioblock.Block        { return nil }
func (s *ChannelStage) Flush()                          {}

func (s *ChannelStage) Process(in *audioblock.Block, _ float64) (*audioblock.Block, error) {
	if in == nil || in.NbSamples == 0 {
		return in, nil
	}

	inCh, outCh := s.in.ChannelCount(), s.out.ChannelCount()
	if inCh == outCh {
		if s.reorder {
			chanmap.ChannelReorder(in.Audio, inCh, s.table, s.bps)
		}
		return in, nil
	}

	codec := s.in.Codec
	size := sampleBytes(codec)
	frames := int(in.NbSamples)

	out := audioblock.AllocBlock(frames * outCh * size)
	for f := 0; f < frames; f++ {
		src := in.Audio[f*inCh*size:]
		dst := out.Audio[f*outCh*size:]
		switch {
		case outCh == 1:
			var sum float64
			for ch := 0; ch < inCh; ch++ {
				sum += readNorm(src[ch*size:], codec)
			}
			writeNorm(dst, codec, sum/float64(inCh))
		case outCh < inCh:
			for ch := 0; ch < outCh; ch++ {
				writeNorm(dst[ch*size:], codec, readNorm(src[ch*size:], codec))
			}
		default:
			for ch := 0; ch < outCh; ch++ {
				writeNorm(dst[ch*size:], codec, readNorm(src[(ch%inCh)*size:], codec))
			}
		}
	}

	out.PTS, out.DTS, out.Length, out.NbSamples, out.Flags = in.PTS, in.DTS, in.Length, in.NbSamples, in.Flags
	audioblock.FreeBlock(in)
	return out, nil
}

// FormatStage converts between PCM sample encodings at a fixed rate and
// channel count, including between integer depths and 32/64-bit float.
type FormatStage struct {
	in, out audioblock.Format
}

// NewFormatStage builds a FormatStage for in -> out, both PCM, same rate and
// channel count.
func NewFormatStage(in, out audioblock.Format) (*FormatStage, error) {
	if in.SampleRate != out.SampleRate || in.ChannelCount() != out.ChannelCount() {
		return nil, fmt.Errorf("filterstage: format stage requires matching rate/channels")
	}
	if sampleBytes(in.Codec) == 0 || sampleBytes(out.Codec) == 0 {
		return nil, fmt.Errorf("filterstage: format stage cannot convert passthrough codecs")
	}
	return &FormatStage{in: in, out: out}, nil
}

func (s *FormatStage) Name() string                    { return "format_convert" }
func (s *FormatStage) InputFormat() audioblock.Format  { return s.in }
func (s *FormatStage) OutputFormat() audioblock.Format { return s.out }
func (s *FormatStage) InPlace() bool                   { return false }
func (s *FormatStage) Drain() *audioblock.Block        { return nil }
func (s *FormatStage) Flush()                          {}

func (s *FormatStage) Process(in *audioblock.Block, _ float64) (*audioblock.Block, error) {
	if in == nil || in.NbSamples == 0 {
		return in, nil
	}
	inSize := sampleBytes(s.in.Codec)
	outSize := sampleBytes(s.out.Codec)
	nbSamples := int(in.NbSamples) * s.in.ChannelCount()

	out := audioblock.AllocBlock(nbSamples * outSize)
	for i := 0; i < nbSamples; i++ {
		writeNorm(out.Audio[i*outSize:], s.out.Codec, readNorm(in.Audio[i*inSize:], s.in.Codec))
	}

	out.PTS, out.DTS, out.Length, out.NbSamples, out.Flags = in.PTS, in.DTS, in.Length, in.NbSamples, in.Flags
	audioblock.FreeBlock(in)
	return out, nil
}

// sampleBytes returns the byte width of one sample of codec, or 0 for
// opaque/passthrough codecs no conversion stage can touch.
func sampleBytes(c audioblock.Codec) int {
	return audioblock.BitsPerSample(c) / 8
}

// readNorm reads one sample as a normalized float in [-1, 1). Integer PCM
// is little-endian; 8-bit PCM is unsigned with a 0x80 bias per WAV
// convention.
func readNorm(b []byte, c audioblock.Codec) float64 {
	switch c {
	case audioblock.CodecU8:
		return float64(int(b[0])-128) / 128
	case audioblock.CodecS16:
		v := int16(uint16(b[0]) | uint16(b[1])<<8)
		return float64(v) / (1 << 15)
	case audioblock.CodecS24:
		u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
		v := int32(u<<8) >> 8
		return float64(v) / (1 << 23)
	case audioblock.CodecS32:
		v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
		return float64(v) / (1 << 31)
	case audioblock.CodecF32:
		bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		return float64(math.Float32frombits(bits))
	case audioblock.CodecF64:
		var bits uint64
		for i := 0; i < 8; i++ {
			bits |= uint64(b[i]) << (8 * i)
		}
		return math.Float64frombits(bits)
	default:
		return 0
	}
}

// writeNorm writes a normalized float sample in codec c, clamping integer
// targets at full scale.
func writeNorm(b []byte, c audioblock.Codec, v float64) {
	switch c {
	case audioblock.CodecU8:
		b[0] = byte(clampInt(v*(1<<7), -1<<7, 1<<7-1) + 128)
	case audioblock.CodecS16:
		s := clampInt(v*(1<<15), -1<<15, 1<<15-1)
		b[0], b[1] = byte(s), byte(s>>8)
	case audioblock.CodecS24:
		s := clampInt(v*(1<<23), -1<<23, 1<<23-1)
		b[0], b[1], b[2] = byte(s), byte(s>>8), byte(s>>16)
	case audioblock.CodecS32:
		s := clampInt(v*(1<<31), -1<<31, 1<<31-1)
		b[0], b[1], b[2], b[3] = byte(s), byte(s>>8), byte(s>>16), byte(s>>24)
	case audioblock.CodecF32:
		bits := math.Float32bits(float32(v))
		b[0], b[1], b[2], b[3] = byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24)
	case audioblock.CodecF64:
		bits := math.Float64bits(v)
		for i := 0; i < 8; i++ {
			b[i] = byte(bits >> (8 * i))
		}
	}
}

func clampInt(v float64, lo, hi int64) int64 {
	if v <= float64(lo) {
		return lo
	}
	if v >= float64(hi) {
		return hi
	}
	return int64(v)
}
