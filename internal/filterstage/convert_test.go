package filterstage

import (
	"testing"

	"github.com/drgolem/audiocore/pkg/audioblock"
)

func fmtFor(codec audioblock.Codec, rate uint32, mask uint32) audioblock.Format {
	return audioblock.Prepare(audioblock.Format{
		Codec:            codec,
		SampleRate:       rate,
		PhysicalChannels: mask,
		OriginalChannels: mask,
	})
}

func s16Block(samples ...int16) *audioblock.Block {
	b := audioblock.AllocBlock(len(samples) * 2)
	for i, v := range samples {
		b.Audio[i*2] = byte(uint16(v))
		b.Audio[i*2+1] = byte(uint16(v) >> 8)
	}
	return b
}

func s16At(b *audioblock.Block, i int) int16 {
	return int16(uint16(b.Audio[i*2]) | uint16(b.Audio[i*2+1])<<8)
}

func TestChannelStageDownmixesStereoToMonoByAveraging(t *testing.T) {
	stereo := fmtFor(audioblock.CodecS16, 48000, audioblock.ChanFrontLeft|audioblock.ChanFrontRight)
	mono := fmtFor(audioblock.CodecS16, 48000, audioblock.ChanFrontCenter)

	s, err := NewChannelStage(stereo, mono, nil, nil)
	if err != nil {
		t.Fatalf("NewChannelStage: %v", err)
	}
	if s.InPlace() {
		t.Fatal("a count-changing channel stage cannot be in-place")
	}

	in := s16Block(1000, 3000, -2000, 2000) // two frames: (1000,3000), (-2000,2000)
	in.NbSamples = 2

	out, err := s.Process(in, 1.0)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.NbSamples != 2 || len(out.Audio) != 4 {
		t.Fatalf("unexpected output shape: %d samples, %d bytes", out.NbSamples, len(out.Audio))
	}
	if got := s16At(out, 0); got != 2000 {
		t.Fatalf("frame 0 = %d, want 2000 (average of 1000 and 3000)", got)
	}
	if got := s16At(out, 1); got != 0 {
		t.Fatalf("frame 1 = %d, want 0 (average of -2000 and 2000)", got)
	}
}

func TestChannelStageUpmixesMonoToStereoByDuplication(t *testing.T) {
	mono := fmtFor(audioblock.CodecS16, 48000, audioblock.ChanFrontCenter)
	stereo := fmtFor(audioblock.CodecS16, 48000, audioblock.ChanFrontLeft|audioblock.ChanFrontRight)

	s, err := NewChannelStage(mono, stereo, nil, nil)
	if err != nil {
		t.Fatalf("NewChannelStage: %v", err)
	}

	in := s16Block(1234)
	in.NbSamples = 1

	out, err := s.Process(in, 1.0)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.NbSamples != 1 || len(out.Audio) != 4 {
		t.Fatalf("unexpected output shape: %d samples, %d bytes", out.NbSamples, len(out.Audio))
	}
	if l, r := s16At(out, 0), s16At(out, 1); l != 1234 || r != 1234 {
		t.Fatalf("stereo frame = (%d, %d), want (1234, 1234)", l, r)
	}
}

func TestChannelStageSameCountReordersInPlace(t *testing.T) {
	stereo := fmtFor(audioblock.CodecS16, 48000, audioblock.ChanFrontLeft|audioblock.ChanFrontRight)
	orderIn := []uint32{audioblock.ChanFrontRight, audioblock.ChanFrontLeft}
	orderOut := []uint32{audioblock.ChanFrontLeft, audioblock.ChanFrontRight}

	s, err := NewChannelStage(stereo, stereo, orderIn, orderOut)
	if err != nil {
		t.Fatalf("NewChannelStage: %v", err)
	}
	if !s.InPlace() {
		t.Fatal("equal-count channel stage should be in-place")
	}

	in := s16Block(111, 222)
	in.NbSamples = 1
	out, err := s.Process(in, 1.0)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out != in {
		t.Fatal("in-place stage returned a different block")
	}
	if l, r := s16At(out, 0), s16At(out, 1); l != 222 || r != 111 {
		t.Fatalf("frame = (%d, %d), want swapped (222, 111)", l, r)
	}
}

func TestFormatStageWidensS16ToS32(t *testing.T) {
	mono16 := fmtFor(audioblock.CodecS16, 48000, audioblock.ChanFrontCenter)
	mono32 := fmtFor(audioblock.CodecS32, 48000, audioblock.ChanFrontCenter)

	s, err := NewFormatStage(mono16, mono32)
	if err != nil {
		t.Fatalf("NewFormatStage: %v", err)
	}

	in := s16Block(0x4000) // half scale
	in.NbSamples = 1
	out, err := s.Process(in, 1.0)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out.Audio) != 4 {
		t.Fatalf("len(Audio) = %d, want 4", len(out.Audio))
	}
	v := int32(uint32(out.Audio[0]) | uint32(out.Audio[1])<<8 | uint32(out.Audio[2])<<16 | uint32(out.Audio[3])<<24)
	if v != 0x40000000 {
		t.Fatalf("widened sample = %#x, want 0x40000000", v)
	}
}

func TestNormRoundTripPerCodec(t *testing.T) {
	codecs := []struct {
		codec audioblock.Codec
		size  int
	}{
		{audioblock.CodecU8, 1},
		{audioblock.CodecS16, 2},
		{audioblock.CodecS24, 3},
		{audioblock.CodecS32, 4},
		{audioblock.CodecF32, 4},
		{audioblock.CodecF64, 8},
	}
	for _, c := range codecs {
		buf := make([]byte, c.size)
		writeNorm(buf, c.codec, -0.5)
		got := readNorm(buf, c.codec)
		if got < -0.51 || got > -0.49 {
			t.Errorf("codec %v: round trip of -0.5 gave %v", c.codec, got)
		}
	}
}

func TestFormatStageRejectsPassthrough(t *testing.T) {
	pcm := fmtFor(audioblock.CodecS16, 48000, audioblock.ChanFrontCenter)
	opaque := pcm
	opaque.Codec = audioblock.CodecPassthrough
	if _, err := NewFormatStage(pcm, opaque); err == nil {
		t.Fatal("expected error building a format stage toward a passthrough codec")
	}
}
