// Package resampler implements the corrective resampling stage and its
// controller: a thin, trimmable wrapper around a high-quality rate
// converter whose output rate the sync controller can nudge by a few Hz at
// a time to correct drift.
package resampler

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/drgolem/audiocore/pkg/audioblock"
	soxr "github.com/zaf/resample"
)

// resetBuffer lets a single soxr.Resampler stay bound to one io.Writer for
// its whole lifetime (preserving its internal filter history across calls)
// while still letting us harvest only the bytes produced by the most recent
// Process call.
type resetBuffer struct {
	buf bytes.Buffer
}

func (w *resetBuffer) Write(p []byte) (int, error) { return w.buf.Write(p) }

// Stage is a filterstage.Resampleable backed by github.com/zaf/resample
// (a SoX resampler binding). Only 16-bit PCM is wired, the one sample
// format the soxr binding is driven with anywhere in this project.
type Stage struct {
	mu sync.Mutex

	in  audioblock.Format
	out audioblock.Format

	channels    int
	nominalRate float64
	currentRate float64

	w *resetBuffer
	r *soxr.Resampler

	closed bool
}

// NewStage builds a resampler Stage converting in.SampleRate to
// out.SampleRate for in.ChannelCount() channels of 16-bit PCM.
func NewStage(in, out audioblock.Format) (*Stage, error) {
	if in.Codec != audioblock.CodecS16 || out.Codec != audioblock.CodecS16 {
		return nil, fmt.Errorf("resampler: only 16-bit PCM is supported")
	}
	if in.ChannelCount() != out.ChannelCount() {
		return nil, fmt.Errorf("resampler: channel count must match (got %d -> %d)", in.ChannelCount(), out.ChannelCount())
	}

	s := &Stage{
		in:          in,
		out:         out,
		channels:    in.ChannelCount(),
		nominalRate: float64(out.SampleRate),
		currentRate: float64(out.SampleRate),
		w:           &resetBuffer{},
	}
	if err := s.rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stage) rebuild() error {
	r, err := soxr.New(s.w, float64(s.in.SampleRate), s.currentRate, s.channels, soxr.I16, soxr.HighQ)
	if err != nil {
		return fmt.Errorf("resampler: create soxr resampler: %w", err)
	}
	s.r = r
	return nil
}

func (s *Stage) Name() string                    { return "rate_convert" }
func (s *Stage) InputFormat() audioblock.Format  { return s.in }
func (s *Stage) OutputFormat() audioblock.Format { return s.out }
func (s *Stage) InPlace() bool                   { return false }

// CanResample reports whether this stage can currently accept
// AdjustResampling calls (always true once constructed).
func (s *Stage) CanResample() bool { return true }

func (s *Stage) Process(in *audioblock.Block, _ float64) (*audioblock.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("resampler: stage drained")
	}
	if in == nil || in.NbSamples == 0 {
		return nil, nil
	}

	s.w.buf.Reset()
	if _, err := s.r.Write(in.Audio); err != nil {
		return nil, fmt.Errorf("resampler: write: %w", err)
	}

	produced := s.w.buf.Bytes()
	out := audioblock.AllocBlock(len(produced))
	copy(out.Audio, produced)

	bytesPerFrame := int(s.out.BytesPerFrame)
	if bytesPerFrame > 0 {
		out.NbSamples = uint32(len(produced) / bytesPerFrame)
	}
	out.PTS, out.DTS, out.Flags = in.PTS, in.DTS, in.Flags
	out.Length = audioblock.DurationFromSamples(out.NbSamples, s.out.SampleRate)

	audioblock.FreeBlock(in)
	return out, nil
}

// Drain flushes any samples buffered inside the resampler's internal
// filter history as one final Block.
func (s *Stage) Drain() *audioblock.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.w.buf.Reset()
	_ = s.r.Close()
	s.closed = true

	produced := s.w.buf.Bytes()
	if len(produced) == 0 {
		return nil
	}
	out := audioblock.AllocBlock(len(produced))
	copy(out.Audio, produced)
	bytesPerFrame := int(s.out.BytesPerFrame)
	if bytesPerFrame > 0 {
		out.NbSamples = uint32(len(produced) / bytesPerFrame)
	}
	out.Length = audioblock.DurationFromSamples(out.NbSamples, s.out.SampleRate)
	return out
}

// Flush discards internal resampler state and rebuilds it fresh at the
// current (possibly drift-adjusted) rate, without emitting the discarded
// history.
func (s *Stage) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.r != nil {
		_ = s.r.Close()
	}
	s.closed = false
	_ = s.rebuild()
}

// Reset snaps the stage's output rate back to nominal immediately,
// discarding any accumulated drift correction. Used when the sync
// controller decides resampling must stop abruptly (a catastrophic drift
// or divergence), rather than trimming back down by repeated small deltas.
func (s *Stage) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentRate = s.nominalRate
	s.closed = false
	_ = s.rebuild()
}

// AdjustResampling nudges the stage's output rate by deltaHz and reports
// whether it is still actively correcting (false once back at nominal).
// The underlying resampler is rebuilt at the new rate; its filter history
// is necessarily reset by the rebuild, a simplification against the ideal
// of a live rate-adjustable filter that soxr's Go binding does not expose.
func (s *Stage) AdjustResampling(deltaHz int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentRate += float64(deltaHz)
	if err := s.rebuild(); err != nil {
		// Leave the old resampler in place; report inactive so the sync
		// controller stops driving a stage it can no longer adjust.
		s.currentRate -= float64(deltaHz)
		return false
	}
	s.closed = false
	return s.currentRate != s.nominalRate
}
