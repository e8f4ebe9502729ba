package resampler

import (
	"testing"

	"github.com/drgolem/audiocore/pkg/audioblock"
)

func format(rate uint32, channels uint32) audioblock.Format {
	f := audioblock.Format{
		Codec:            audioblock.CodecS16,
		SampleRate:       rate,
		PhysicalChannels: channels,
		OriginalChannels: channels,
	}
	return audioblock.Prepare(f)
}

func TestNewStageForReturnsNilWhenRatesMatch(t *testing.T) {
	f := format(44100, audioblock.ChanFrontLeft|audioblock.ChanFrontRight)
	s, err := NewStageFor(f, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Fatalf("expected nil stage when sample rates match")
	}
}

func TestNewStageRejectsNonS16(t *testing.T) {
	in := format(44100, audioblock.ChanFrontLeft|audioblock.ChanFrontRight)
	out := in
	out.SampleRate = 48000
	out.Codec = audioblock.CodecF32
	out = audioblock.Prepare(out)
	if _, err := NewStage(in, out); err == nil {
		t.Fatalf("expected error for non-16-bit output codec")
	}
}

func TestStageProcessProducesResampledBlock(t *testing.T) {
	in := format(44100, audioblock.ChanFrontLeft|audioblock.ChanFrontRight)
	out := format(48000, audioblock.ChanFrontLeft|audioblock.ChanFrontRight)

	s, err := NewStage(in, out)
	if err != nil {
		t.Fatalf("NewStage: %v", err)
	}

	const nbSamples = 512
	block := audioblock.AllocBlock(nbSamples * int(in.BytesPerFrame))
	block.NbSamples = nbSamples

	result, err := s.Process(block, 1.0)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result == nil {
		t.Fatalf("expected a produced block for a full input buffer")
	}
	if len(result.Audio)%int(out.BytesPerFrame) != 0 {
		t.Fatalf("output length %d is not a whole number of frames of %d bytes", len(result.Audio), out.BytesPerFrame)
	}
}

func TestStageAdjustResamplingReportsActiveUntilNominal(t *testing.T) {
	in := format(44100, audioblock.ChanFrontLeft)
	out := format(48000, audioblock.ChanFrontLeft)

	s, err := NewStage(in, out)
	if err != nil {
		t.Fatalf("NewStage: %v", err)
	}

	if active := s.AdjustResampling(2); !active {
		t.Fatalf("expected still_active=true after nudging away from nominal")
	}
	if active := s.AdjustResampling(-2); active {
		t.Fatalf("expected still_active=false once back at nominal rate")
	}
}

func TestStageDrainClosesAndPreventsFurtherProcess(t *testing.T) {
	in := format(44100, audioblock.ChanFrontLeft)
	out := format(48000, audioblock.ChanFrontLeft)

	s, err := NewStage(in, out)
	if err != nil {
		t.Fatalf("NewStage: %v", err)
	}
	_ = s.Drain()

	block := audioblock.AllocBlock(int(in.BytesPerFrame) * 16)
	block.NbSamples = 16
	if _, err := s.Process(block, 1.0); err == nil {
		t.Fatalf("expected error processing after Drain")
	}
}

func TestControllerCanResampleReflectsBoundStage(t *testing.T) {
	c := NewController(nil)
	if c.CanResample() {
		t.Fatalf("expected CanResample=false with no stage bound")
	}

	in := format(44100, audioblock.ChanFrontLeft)
	out := format(48000, audioblock.ChanFrontLeft)
	s, err := NewStage(in, out)
	if err != nil {
		t.Fatalf("NewStage: %v", err)
	}
	c.Bind(s)
	if !c.CanResample() {
		t.Fatalf("expected CanResample=true once a stage is bound")
	}
	if active := c.AdjustResampling(2); !active {
		t.Fatalf("expected still_active=true via controller delegation")
	}
}

func TestControllerAdjustResamplingNoStageIsNoop(t *testing.T) {
	c := NewController(nil)
	if active := c.AdjustResampling(2); active {
		t.Fatalf("expected false adjusting with no stage bound")
	}
}
