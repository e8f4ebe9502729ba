// Package volume implements the software volume and replay-gain stage: a
// single multiplier, recomputed whenever the user's volume or a track's
// replay-gain tags change, applied to samples with one atomic load per
// block on the playback hot path.
package volume

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/drgolem/audiocore/pkg/audioblock"
)

// Mode selects which replay-gain tag (if any) to honor.
type Mode int

const (
	ModeNone Mode = iota
	ModeTrack
	ModeAlbum
)

// ReplayGainInfo mirrors the tags a decoder may report alongside a track:
// dB gain and peak sample value for the track and, where known, its album.
type ReplayGainInfo struct {
	TrackGainDB    float32
	TrackGainValid bool
	TrackPeak      float32
	TrackPeakValid bool

	AlbumGainDB    float32
	AlbumGainValid bool
	AlbumPeak      float32
	AlbumPeakValid bool
}

// Config is the immutable replay-gain policy a State is built with.
type Config struct {
	Mode Mode
	// PreampDB is added to a tag's gain when one is present and selected by Mode.
	PreampDB float32
	// DefaultGainDB is used in place of a tag's gain when Mode selects no
	// valid tag (e.g. untagged track, or Mode == ModeNone).
	DefaultGainDB float32
	// PeakProtection, when true, clamps the computed multiplier against the
	// track/album peak sample value (when known) so the loudest sample in
	// the track cannot clip. When false, the peak value is ignored even if
	// present.
	PeakProtection bool
}

// State holds the pieces that combine into the single per-sample
// multiplier: the user-controlled output volume, the currently computed
// replay-gain factor, and an immutable CLI/startup gain. The output and
// gain factors are each written by exactly one thread (the control thread,
// via SetVolume/SetReplayGain) and read by the play thread through a
// single atomic load.
type State struct {
	cfg     Config
	cliGain float32

	outputBits atomic.Uint32 // bits of a float32 output volume, default 1.0
	gainBits   atomic.Uint32 // bits of a float32 replay-gain multiplier, default 1.0
}

// NewState builds a State with output volume and replay-gain both at unity.
// cliGain is a fixed multiplier applied on top of everything else, from
// the --gain startup option.
func NewState(cfg Config, cliGain float32) *State {
	s := &State{cfg: cfg, cliGain: cliGain}
	s.outputBits.Store(math.Float32bits(1.0))
	s.gainBits.Store(math.Float32bits(1.0))
	return s
}

// SetVolume sets the user-controlled output factor (e.g. 0.0-2.0 linear).
func (s *State) SetVolume(factor float32) {
	s.outputBits.Store(math.Float32bits(factor))
}

// Volume reports the current output factor.
func (s *State) Volume() float32 {
	return math.Float32frombits(s.outputBits.Load())
}

// SetReplayGain recomputes and stores the replay-gain multiplier for a
// newly started track, per Config.Mode.
func (s *State) SetReplayGain(info ReplayGainInfo) {
	s.gainBits.Store(math.Float32bits(computeMultiplier(info, s.cfg)))
}

// computeMultiplier implements gain = tag_gain + preamp (if the selected
// mode's tag is valid, falling back to the other mode's tag before falling
// back to default_gain) or default_gain (if neither tag is present);
// multiplier = 10^(gain/20); then clamps the multiplier so the loudest
// sample in the track cannot clip, per the track/album peak value, when
// known and Config.PeakProtection is set.
func computeMultiplier(info ReplayGainInfo, cfg Config) float32 {
	mode := cfg.Mode
	switch mode {
	case ModeTrack:
		if !info.TrackGainValid && info.AlbumGainValid {
			mode = ModeAlbum
		}
	case ModeAlbum:
		if !info.AlbumGainValid && info.TrackGainValid {
			mode = ModeTrack
		}
	}

	var gainDB float32
	hasGain := false
	var peak float32
	peakValid := false

	switch mode {
	case ModeTrack:
		if info.TrackGainValid {
			gainDB, hasGain = info.TrackGainDB, true
		}
		if info.TrackPeakValid {
			peak, peakValid = info.TrackPeak, true
		}
	case ModeAlbum:
		if info.AlbumGainValid {
			gainDB, hasGain = info.AlbumGainDB, true
		}
		if info.AlbumPeakValid {
			peak, peakValid = info.AlbumPeak, true
		}
	}

	var totalDB float32
	if hasGain {
		totalDB = gainDB + cfg.PreampDB
	} else {
		totalDB = cfg.DefaultGainDB
	}

	multiplier := float32(math.Pow(10, float64(totalDB)/20))
	if cfg.PeakProtection && peakValid && peak > 0 {
		if max := 1 / peak; multiplier > max {
			multiplier = max
		}
	}
	return multiplier
}

// Multiplier returns the combined factor: output volume * replay-gain *
// the fixed CLI gain. Each load is a single atomic read per field.
func (s *State) Multiplier() float32 {
	out := math.Float32frombits(s.outputBits.Load())
	gain := math.Float32frombits(s.gainBits.Load())
	return out * gain * s.cliGain
}

// Amplify scales block's samples in place by the current Multiplier,
// loaded once for the whole block. Signed integer PCM (16/24/32-bit) and
// float PCM (32/64-bit) are supported; other codecs return an error rather
// than silently passing through unscaled audio.
func Amplify(block *audioblock.Block, format audioblock.Format, s *State) error {
	if block == nil || block.NbSamples == 0 {
		return nil
	}
	m := s.Multiplier()
	if m == 1.0 {
		return nil
	}

	switch format.Codec {
	case audioblock.CodecS16:
		amplifyS16(block.Audio, m)
	case audioblock.CodecS24:
		amplifyS24(block.Audio, m)
	case audioblock.CodecS32:
		amplifyS32(block.Audio, m)
	case audioblock.CodecF32:
		amplifyF32(block.Audio, m)
	case audioblock.CodecF64:
		amplifyF64(block.Audio, m)
	default:
		return fmt.Errorf("volume: unsupported codec %v for amplification", format.Codec)
	}
	return nil
}

func amplifyS16(buf []byte, m float32) {
	for i := 0; i+1 < len(buf); i += 2 {
		v := int16(uint16(buf[i]) | uint16(buf[i+1])<<8)
		scaled := uint16(saturateS16(float32(v) * m))
		buf[i], buf[i+1] = byte(scaled), byte(scaled>>8)
	}
}

func saturateS16(v float32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func amplifyS24(buf []byte, m float32) {
	for i := 0; i+2 < len(buf); i += 3 {
		u := uint32(buf[i]) | uint32(buf[i+1])<<8 | uint32(buf[i+2])<<16
		v := int32(u<<8) >> 8
		scaled := saturateInt(float64(v)*float64(m), -1<<23, 1<<23-1)
		buf[i], buf[i+1], buf[i+2] = byte(scaled), byte(scaled>>8), byte(scaled>>16)
	}
}

func amplifyS32(buf []byte, m float32) {
	for i := 0; i+3 < len(buf); i += 4 {
		v := int32(uint32(buf[i]) | uint32(buf[i+1])<<8 | uint32(buf[i+2])<<16 | uint32(buf[i+3])<<24)
		scaled := saturateInt(float64(v)*float64(m), math.MinInt32, math.MaxInt32)
		buf[i], buf[i+1], buf[i+2], buf[i+3] = byte(scaled), byte(scaled>>8), byte(scaled>>16), byte(scaled>>24)
	}
}

func saturateInt(v float64, lo, hi int64) int64 {
	if v <= float64(lo) {
		return lo
	}
	if v >= float64(hi) {
		return hi
	}
	return int64(v)
}

func amplifyF32(buf []byte, m float32) {
	for i := 0; i+3 < len(buf); i += 4 {
		bits := uint32(buf[i]) | uint32(buf[i+1])<<8 | uint32(buf[i+2])<<16 | uint32(buf[i+3])<<24
		v := math.Float32frombits(bits) * m
		out := math.Float32bits(v)
		buf[i], buf[i+1], buf[i+2], buf[i+3] = byte(out), byte(out>>8), byte(out>>16), byte(out>>24)
	}
}

func amplifyF64(buf []byte, m float32) {
	for i := 0; i+7 < len(buf); i += 8 {
		var bits uint64
		for j := 0; j < 8; j++ {
			bits |= uint64(buf[i+j]) << (8 * j)
		}
		out := math.Float64bits(math.Float64frombits(bits) * float64(m))
		for j := 0; j < 8; j++ {
			buf[i+j] = byte(out >> (8 * j))
		}
	}
}
