// Package aout is the public façade of the audio output core: the stream
// orchestrator wiring the filter pipeline, resampler controller, volume and
// replay-gain stage, sync controller, audio meter and listener registries
// into the single entry point an upstream decoder and its control threads
// drive playback through.
package aout

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/drgolem/audiocore/internal/avsync"
	"github.com/drgolem/audiocore/internal/events"
	"github.com/drgolem/audiocore/internal/filterpipeline"
	"github.com/drgolem/audiocore/internal/lockorder"
	"github.com/drgolem/audiocore/internal/meter"
	"github.com/drgolem/audiocore/internal/sink"
	"github.com/drgolem/audiocore/internal/volume"
	"github.com/drgolem/audiocore/pkg/audioblock"
)

// Sentinel construction/restart errors.
var (
	ErrFormatInvalid       = errors.New("aout: invalid audio format")
	ErrPipelineBuildFailed = errors.New("aout: filter pipeline could not bridge input and mixer formats")
	ErrMaxFiltersExceeded  = errors.New("aout: filter chain exceeds maximum stage count")
	ErrRestartFailed       = errors.New("aout: restart failed")
)

// PlayResult is the outcome of one Play call.
type PlayResult int

const (
	PlaySuccess PlayResult = iota
	// PlayChanged asks the decoder to renegotiate/re-encode: an output
	// restart reopened the sink during this call and the block was dropped.
	PlayChanged
	// PlayFailed means the stream is in a non-playing error state
	// (RestartFailed); the caller should stop feeding it until the
	// decoder itself recovers by recreating the stream.
	PlayFailed
)

// Restart flags for RequestRestart, OR'd atomically and consumed with an
// atomic exchange at the top of Play.
const (
	RestartFilters uint32 = 1 << iota
	RestartOutput
)

// Config configures NewStream. Clock defaults to a standalone SystemClock
// when nil (no external video/subtitle core to synchronize against).
type Config struct {
	Profile    sink.Profile
	Clock      Clock
	ReplayGain volume.Config
	CLIGain    float32
	StreamID   string
	Bitexact   bool
}

// ViewpointUpdater is an optional 3D-audio/viewpoint hook invoked just
// before the filter chain runs. Wired to nothing unless a caller sets
// Stream.Viewpoint.
type ViewpointUpdater interface {
	UpdateViewpoint(block *audioblock.Block)
}

// sinkCaps records which optional Sink interfaces are present, decided
// once at NewStream time.
type sinkCaps struct {
	pauser  sink.Pauser
	drainer sink.Drainer
	timeGet sink.TimeGetter
	volSet  sink.VolumeSetter
	devName sink.DeviceNamer
}

// Stream is the orchestrator aggregate owning the filter chain, volume
// state, sync controller and timing model of one audio stream. Between
// NewStream and DeleteStream all fields are live; filterFormat and
// mixerFormat are immutable except across a destroy-and-rebuild restart.
type Stream struct {
	sink  sink.Sink
	caps  sinkCaps
	clock Clock
	cfg   Config

	outputLock lockorder.OutputLock
	volumeLock lockorder.VolumeLock

	volume  *volume.State
	filters *filterpipeline.Chain
	sync    *avsync.Controller
	timing  *avsync.TimingState
	meter   *meter.Meter

	registries *events.Registries
	Viewpoint  ViewpointUpdater

	inputFormat  audioblock.Format
	filterFormat audioblock.Format
	mixerFormat  audioblock.Format

	restartFlags  atomic.Uint32
	buffersLost   atomic.Uint64
	buffersPlayed atomic.Uint64
	drained       atomic.Bool
	drainDeadline atomic.Int64 // unix nanoseconds; 0 == none

	rateBits atomic.Uint64 // math.Float64bits(rate)

	pendingSilence atomic.Int64 // ns of silence owed before the next block, set by ChangeDelay/Flush

	errored atomic.Bool
}

// NewStream validates inputFormat, negotiates a mixer format with sink,
// builds the filter chain bridging the two, and returns a live Stream.
// No partial state survives a failed call.
func NewStream(snk sink.Sink, inputFormat audioblock.Format, cfg Config) (*Stream, error) {
	if err := inputFormat.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatInvalid, err)
	}

	mixerFormat, filterFormat, _, err := snk.OutputNew(cfg.Profile, inputFormat)
	if err != nil {
		return nil, fmt.Errorf("aout: sink output_new: %w", err)
	}

	orderIn := channelOrder(inputFormat.PhysicalChannels)
	orderOut := channelOrder(filterFormat.PhysicalChannels)
	chain, err := filterpipeline.CreatePipeline(inputFormat, filterFormat, orderIn, orderOut)
	if err != nil {
		_ = snk.Close()
		return nil, fmt.Errorf("%w: %v", ErrPipelineBuildFailed, err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = NewSystemClock()
	}

	var volState *volume.State
	if !cfg.Bitexact {
		cliGain := cfg.CLIGain
		if cliGain == 0 {
			cliGain = 1.0
		}
		volState = volume.NewState(cfg.ReplayGain, cliGain)
	}

	s := &Stream{
		sink:         snk,
		caps:         probeCaps(snk),
		clock:        clock,
		cfg:          cfg,
		volume:       volState,
		filters:      chain,
		sync:         avsync.New(chain.Resampler()),
		timing:       avsync.NewTimingState(mixerFormat.SampleRate),
		meter:        meter.New(),
		registries:   events.NewRegistries(),
		inputFormat:  inputFormat,
		filterFormat: filterFormat,
		mixerFormat:  mixerFormat,
	}
	s.rateBits.Store(math.Float64bits(1.0))
	return s, nil
}

func probeCaps(s sink.Sink) sinkCaps {
	var c sinkCaps
	c.pauser, _ = s.(sink.Pauser)
	c.drainer, _ = s.(sink.Drainer)
	c.timeGet, _ = s.(sink.TimeGetter)
	c.volSet, _ = s.(sink.VolumeSetter)
	c.devName, _ = s.(sink.DeviceNamer)
	return c
}

// Events exposes the stream's listener registries so callers can subscribe
// to volume, mute, and device-change notifications.
func (s *Stream) Events() *events.Registries {
	return s.registries
}

// channelOrder returns, in ascending bit order, the channel-mask bits set
// in mask: the canonical physical channel sequence this module assumes
// absent a more specific per-sink layout (a full renderer would take the
// sink's own reported order).
func channelOrder(mask uint32) []uint32 {
	var order []uint32
	for bit := uint32(1); bit != 0; bit <<= 1 {
		if mask&bit != 0 {
			order = append(order, bit)
		}
	}
	return order
}

// DeleteStream releases the stream's sink. The caller must not use s
// afterward. This waits for any in-flight sink.Play/Drain to return; no
// forced cancellation.
func DeleteStream(s *Stream) error {
	var locks lockorder.State
	defer locks.Enter(lockorder.KindOutput)()
	unlock := s.outputLock.Lock(lockorder.VolumeToken{})
	defer unlock()
	return s.sink.Close()
}

// Rate reports the stream's current playback rate (1.0 == normal speed).
func (s *Stream) Rate() float64 {
	return math.Float64frombits(s.rateBits.Load())
}

// ChangeRate sets the playback rate observed by the next Play call.
func (s *Stream) ChangeRate(rate float64) {
	if rate <= 0 {
		rate = 1.0
	}
	s.rateBits.Store(math.Float64bits(rate))
}

// ChangeDelay applies delay through the clock; if the clock reports a
// positive adjustment owed immediately, that much silence is inserted
// before the next block.
func (s *Stream) ChangeDelay(delay time.Duration) {
	delta := s.clock.SetDelay(delay)
	if delta > 0 {
		s.pendingSilence.Add(int64(delta))
	}
}

// ChangePause pauses via the sink's native Pause when present, otherwise by
// flushing, and stamps/advances the timing model's pause bookkeeping either
// way so interpolated delay does not charge the pause interval against the
// clock.
func (s *Stream) ChangePause(paused bool, date time.Duration) error {
	var locks lockorder.State
	leave := locks.Enter(lockorder.KindTiming)
	if paused {
		s.timing.Pause(date)
	} else {
		s.timing.Resume(date)
	}
	leave()

	if s.caps.pauser != nil {
		return s.caps.pauser.Pause(paused, date)
	}
	if paused {
		return s.Flush()
	}
	return nil
}

// RequestRestart atomically ORs flags into the stream's restart bitmap;
// they are consumed at the top of the next Play.
func (s *Stream) RequestRestart(flags uint32) {
	s.restartFlags.Or(flags)
}

// GetResetStats returns the buffers-lost/buffers-played counters and
// resets them to zero.
func (s *Stream) GetResetStats() (lost, played uint64) {
	return s.buffersLost.Swap(0), s.buffersPlayed.Swap(0)
}

// IsDrained reports whether Drain has completed: either the sink notified
// native completion, or the cooperative deadline has passed.
func (s *Stream) IsDrained(now time.Time) bool {
	if s.drained.Load() {
		return true
	}
	deadline := s.drainDeadline.Load()
	return deadline != 0 && now.UnixNano() >= deadline
}

// NotifyDrained is called by the sink's callback thread when it has
// finished playing everything submitted so far.
func (s *Stream) NotifyDrained() {
	s.drained.Store(true)
}

// NotifyTiming forwards a sink's out-of-band timing report to the
// late-update interpolation model.
func (s *Stream) NotifyTiming(systemTS, audioTS time.Duration) {
	var locks lockorder.State
	defer locks.Enter(lockorder.KindTiming)()
	s.timing.NotifyTiming(systemTS, audioTS)
}

// NotifyGain is called by the sink's callback thread to report a
// driver-side gain change; it becomes the software volume's output factor,
// which Play applies to every following block, also when the sink has
// VolumeSetter.
func (s *Stream) NotifyGain(gain float32) {
	if s.volume != nil {
		s.volume.SetVolume(gain)
	}
}

// SetVolume sets the user-controlled output factor. If the sink exposes
// VolumeSet, hardware volume is used instead and this call leaves the
// software volume's output factor unchanged.
func (s *Stream) SetVolume(factor float32, mute bool) error {
	var locks lockorder.State
	defer locks.Enter(lockorder.KindVolume)()
	unlock, _ := s.volumeLock.Lock()
	defer unlock()

	muteFactor := factor
	if mute {
		muteFactor = 0
	}
	if s.caps.volSet != nil {
		if err := s.caps.volSet.VolumeSet(factor, mute); err != nil {
			return fmt.Errorf("aout: sink volume_set: %w", err)
		}
	} else if s.volume != nil {
		s.volume.SetVolume(muteFactor)
	}
	s.registries.VolumeChanged.Notify(events.VolumeChanged{Factor: factor, Muted: mute})
	s.registries.MuteChanged.Notify(mute)
	return nil
}

// SetReplayGain recomputes the replay-gain multiplier for a newly started
// track.
func (s *Stream) SetReplayGain(info volume.ReplayGainInfo) {
	if s.volume != nil {
		s.volume.SetReplayGain(info)
	}
}

// Flush resets the timing model and the sync controller's resampling and
// discontinuity state, flushes the filter chain and the sink, and, if a
// positive delay was in effect, schedules an equivalent amount of silence
// on the next Play so the master clock resynchronizes sooner.
func (s *Stream) Flush() error {
	var locks lockorder.State
	defer locks.Enter(lockorder.KindOutput)()
	unlock := s.outputLock.Lock(lockorder.VolumeToken{})
	defer unlock()
	return s.flushLocked(&locks)
}

func (s *Stream) flushLocked(locks *lockorder.State) error {
	s.filters.Flush()

	leave := locks.Enter(lockorder.KindTiming)
	s.timing.Reset()
	leave()

	s.sync.ResetForFlush()
	s.clock.Reset()
	s.meter.Flush()

	// Dropping a positive delay to 0 yields a negative delta from the
	// clock; the same amount is owed as silence before the next block.
	if delta := s.clock.SetDelay(0); delta < 0 {
		s.pendingSilence.Add(int64(-delta))
	}

	if err := s.sink.Flush(); err != nil {
		return fmt.Errorf("aout: sink flush: %w", err)
	}
	return nil
}

// Drain flushes the filter chain's trailing samples to the sink, then
// either waits on the sink's native drain notification or computes a
// cooperative deadline from its last reported delay.
func (s *Stream) Drain(now time.Time) error {
	var locks lockorder.State
	defer locks.Enter(lockorder.KindOutput)()
	unlock := s.outputLock.Lock(lockorder.VolumeToken{})
	defer unlock()

	last, err := s.filters.Drain()
	if err != nil {
		return fmt.Errorf("aout: drain filter chain: %w", err)
	}
	if last != nil {
		playDate := s.clock.ConvertToSystem(time.Duration(now.UnixNano()), last.PTS, s.Rate())
		if err := s.sink.Play(last, playDate); err != nil {
			return fmt.Errorf("aout: play drained block: %w", err)
		}
		leave := locks.Enter(lockorder.KindTiming)
		s.timing.AddPlayedSamples(last.NbSamples)
		leave()
		s.buffersPlayed.Add(1)
	}

	if s.caps.drainer != nil {
		s.drained.Store(false)
		return s.caps.drainer.Drain()
	}

	var delay time.Duration
	if s.caps.timeGet != nil {
		delay, _ = s.caps.timeGet.TimeGet()
	} else {
		leave := locks.Enter(lockorder.KindTiming)
		delay = s.timing.GetDelay(time.Duration(now.UnixNano()))
		leave()
	}
	if delay < 0 {
		delay = 0
	}
	s.drained.Store(false)
	s.drainDeadline.Store(now.Add(delay).UnixNano())
	return nil
}

// silence plays length of zero-filled audio at the mixer rate, stamped at
// pts, and accounts it in played samples like any other block; the
// interpolation model must see silence too. length <= 0 is a no-op.
func (s *Stream) silence(locks *lockorder.State, length, pts time.Duration, systemDate time.Duration) error {
	if length <= 0 {
		return nil
	}
	block := audioblock.NewSilenceBlock(length, s.mixerFormat, pts)
	if err := s.sink.Play(block, systemDate); err != nil {
		return fmt.Errorf("aout: play silence: %w", err)
	}
	leave := locks.Enter(lockorder.KindTiming)
	s.timing.AddPlayedSamples(block.NbSamples)
	leave()
	s.buffersPlayed.Add(1)
	return nil
}

// Play is the hot path: restart check, discontinuity check, clock
// projection, filter chain, volume, synchronization, then the sink write.
// The clock is consulted before output_lock is taken; everything touching
// the pipeline runs under it.
func (s *Stream) Play(block *audioblock.Block, systemNow time.Time) (PlayResult, error) {
	if s.errored.Load() {
		audioblock.FreeBlock(block)
		return PlayFailed, nil
	}

	// Honor a pending restart before processing this block.
	if flags := s.restartFlags.Swap(0); flags != 0 {
		if err := s.handleRestart(flags); err != nil {
			s.errored.Store(true)
			audioblock.FreeBlock(block)
			return PlayFailed, fmt.Errorf("%w: %v", ErrRestartFailed, err)
		}
		if flags&RestartOutput != 0 {
			// Notified outside every lock; handleRestart has released
			// output_lock by now.
			name := ""
			if s.caps.devName != nil {
				name = s.caps.devName.DeviceName()
			}
			s.registries.DeviceChanged.Notify(events.DeviceChanged{DeviceName: name})
			audioblock.FreeBlock(block)
			return PlayChanged, nil
		}
	}

	var locks lockorder.State

	if block.Length == 0 {
		block.Length = audioblock.DurationFromSamples(block.NbSamples, s.inputFormat.SampleRate)
	}

	if block.Flags&audioblock.FlagDiscontinuity != 0 {
		leave := locks.Enter(lockorder.KindTiming)
		s.timing.Reset()
		leave()
		s.sync.SetDiscontinuity(true)
	}

	if s.Viewpoint != nil {
		s.Viewpoint.UpdateViewpoint(block)
	}

	rate := s.Rate()
	systemNowDur := time.Duration(systemNow.UnixNano())
	pts := block.PTS

	// Filter stages preserve PTS, so the clock projection can run on the
	// incoming block, before output_lock is taken.
	playDate := s.clock.ConvertToSystem(systemNowDur, pts, rate)

	var delay time.Duration
	if s.caps.timeGet != nil {
		if d, ok := s.caps.timeGet.TimeGet(); ok {
			delay = d
		}
	} else {
		leave := locks.Enter(lockorder.KindTiming)
		delay = s.timing.GetDelay(systemNowDur)
		leave()
	}

	var drift time.Duration
	if s.caps.timeGet != nil {
		drift = playDate - systemNowDur - delay
	} else {
		drift = s.clock.Update(systemNowDur+delay, pts, rate)
	}

	defer locks.Enter(lockorder.KindOutput)()
	unlock := s.outputLock.Lock(lockorder.VolumeToken{})
	defer unlock()

	out, err := s.filters.Play(block, rate)
	if err != nil {
		s.buffersLost.Add(1)
		return PlaySuccess, fmt.Errorf("aout: filter pipeline: %w", err)
	}
	if out == nil {
		s.buffersLost.Add(1)
		return PlaySuccess, nil
	}

	if s.volume != nil {
		if err := volume.Amplify(out, s.mixerFormat, s.volume); err != nil {
			slog.Warn("aout: volume amplify failed, playing unamplified", "error", err)
		}
	}

	action := s.sync.Synchronize(drift, rate, pts, delay)

	if action.Flush {
		audioblock.FreeBlock(out)
		if err := s.flushLocked(&locks); err != nil {
			return PlaySuccess, err
		}
		s.buffersLost.Add(1)
		return PlaySuccess, nil
	}

	if action.InsertSilence {
		// The gap ends exactly where this block begins.
		if err := s.silence(&locks, action.SilenceLength, action.SilencePTS, playDate-action.SilenceLength); err != nil {
			slog.Warn("aout: silence insertion failed", "error", err)
		}
	}

	if owed := s.pendingSilence.Swap(0); owed > 0 {
		if err := s.silence(&locks, time.Duration(owed), pts, playDate); err != nil {
			slog.Warn("aout: delay-change silence insertion failed", "error", err)
		}
	}

	leave := locks.Enter(lockorder.KindTiming)
	// Commit a pending rate change into the timing model when the sink has
	// no time_get of its own to reconcile it against.
	if s.caps.timeGet == nil {
		s.timing.NoteRateChange(playDate, pts, rate)
	}
	s.timing.EnsureFirstPTS(pts)
	leave()

	if !action.KeepDiscontinuity {
		s.sync.SetDiscontinuity(false)
	}

	s.meter.Process(out, playDate)

	leave = locks.Enter(lockorder.KindTiming)
	s.timing.AddPlayedSamples(out.NbSamples)
	leave()
	s.buffersPlayed.Add(1)
	if err := s.sink.Play(out, playDate); err != nil {
		return PlaySuccess, fmt.Errorf("aout: sink play: %w", err)
	}
	return PlaySuccess, nil
}

// handleRestart tears down and rebuilds the filter chain (RestartFilters)
// and/or the sink (RestartOutput) without destroying the Stream.
func (s *Stream) handleRestart(flags uint32) error {
	var locks lockorder.State
	defer locks.Enter(lockorder.KindOutput)()
	unlock := s.outputLock.Lock(lockorder.VolumeToken{})
	defer unlock()

	mixerFormat, filterFormat := s.mixerFormat, s.filterFormat
	if flags&RestartOutput != 0 {
		if err := s.sink.Close(); err != nil {
			slog.Warn("aout: restart: closing previous sink failed", "error", err)
		}
		mf, ff, _, err := s.sink.OutputNew(s.cfg.Profile, s.inputFormat)
		if err != nil {
			return fmt.Errorf("reopen sink: %w", err)
		}
		mixerFormat, filterFormat = mf, ff
		s.caps = probeCaps(s.sink)
	}

	if flags&(RestartFilters|RestartOutput) != 0 {
		orderIn := channelOrder(s.inputFormat.PhysicalChannels)
		orderOut := channelOrder(filterFormat.PhysicalChannels)
		chain, err := filterpipeline.CreatePipeline(s.inputFormat, filterFormat, orderIn, orderOut)
		if err != nil {
			return fmt.Errorf("rebuild filter chain: %w", err)
		}
		s.filters = chain
		s.sync.BindResampler(chain.Resampler())
		s.mixerFormat, s.filterFormat = mixerFormat, filterFormat
		s.meter.Reset(mixerFormat)
	}
	return nil
}
