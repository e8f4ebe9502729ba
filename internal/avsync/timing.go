package avsync

import (
	"sync"
	"time"
)

// Invalid marks a TimingState field as unset.
const Invalid = time.Duration(1<<63 - 1)

// TimingState is the late-update interpolation model used when a sink has
// no time_get and instead reports timing out-of-band through NotifyTiming.
// It is guarded by its own mutex, separate from the Controller's, since the
// sink callback thread may call NotifyTiming concurrently with the play
// thread running Synchronize.
type TimingState struct {
	mu sync.Mutex

	firstPTS      time.Duration
	playedSamples uint64
	mixerRate     uint32

	systemTS time.Duration
	audioTS  time.Duration
	rate     float64

	rateSystemTS time.Duration
	rateAudioTS  time.Duration

	pauseDate time.Duration
}

// NewTimingState creates a TimingState for a stream mixing at mixerRate,
// reset to its post-construction/post-flush state.
func NewTimingState(mixerRate uint32) *TimingState {
	t := &TimingState{mixerRate: mixerRate}
	t.resetLocked()
	return t
}

func (t *TimingState) resetLocked() {
	t.firstPTS = Invalid
	t.playedSamples = 0
	t.systemTS = 0
	t.audioTS = 0
	t.rate = 1.0
	t.rateSystemTS = Invalid
	t.rateAudioTS = Invalid
	t.pauseDate = Invalid
}

// Reset clears the state as Flush requires: first_pts = INVALID,
// played_samples = 0, and the pending-rate-change markers cleared.
func (t *TimingState) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

// EnsureFirstPTS seeds firstPTS on the first block played after
// construction or a flush; subsequent calls are no-ops.
func (t *TimingState) EnsureFirstPTS(pts time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.firstPTS == Invalid {
		t.firstPTS = pts
	}
}

// FirstPTS reports the seeded first pts, or Invalid if none yet.
func (t *TimingState) FirstPTS() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.firstPTS
}

// AddPlayedSamples accounts for nbSamples (including silence) actually
// handed to the sink.
func (t *TimingState) AddPlayedSamples(nbSamples uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playedSamples += uint64(nbSamples)
}

// PlayedSamples reports the running total.
func (t *TimingState) PlayedSamples() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playedSamples
}

// NoteRateChange records the anchor point a playback rate change takes
// effect from. The play thread calls this every Play; it only records an
// anchor when the observed rate actually differs from the one already
// tracked, so timing points reported under the current rate keep flowing.
func (t *TimingState) NoteRateChange(playDate, blockPTS time.Duration, rate float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rate == t.rate {
		return
	}
	t.rateSystemTS = playDate
	t.rateAudioTS = blockPTS
	t.rate = rate
}

// NotifyTiming applies a sink-reported (systemTS, audioTS) timing point,
// reconstructing audioTS against any pending rate-change anchor. Points
// whose systemTS predates the most recent rate-change anchor are dropped,
// since they describe timing under the rate that no longer applies.
func (t *TimingState) NotifyTiming(systemTS, audioTS time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.firstPTS == Invalid {
		// Tolerated: a late callback arriving after DeleteStream began
		// teardown but before the sink fully stopped. See DESIGN.md.
		return
	}

	if t.rateSystemTS != Invalid {
		if systemTS < t.rateSystemTS {
			return
		}
		audioTS = t.rateAudioTS + time.Duration(float64(systemTS-t.rateSystemTS)*t.rate)
	}

	t.systemTS = systemTS
	t.audioTS = audioTS
}

// GetDelay returns play_date - system_now via the interpolation formula:
// play_date = (first_pts + played_samples/mixer_rate - audio_ts)/rate + system_ts.
func (t *TimingState) GetDelay(systemNow time.Duration) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.firstPTS == Invalid || t.mixerRate == 0 {
		return 0
	}
	samplesAsDuration := time.Duration(float64(t.playedSamples) * float64(time.Second) / float64(t.mixerRate))
	rate := t.rate
	if rate <= 0 {
		rate = 1
	}
	playDate := time.Duration(float64(t.firstPTS+samplesAsDuration-t.audioTS)/rate) + t.systemTS
	return playDate - systemNow
}

// Pause stamps the pause date for the pause-invariance law: on resume,
// Resume(resumeAt) must be called with the pauseAt passed here plus
// whatever real elapsed time passed, advancing system_ts by exactly that
// delta so the pause interval isn't charged against the clock.
func (t *TimingState) Pause(pauseAt time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pauseDate = pauseAt
}

// Resume advances systemTS by (resumeAt - pauseDate) if a pause was
// recorded; it is a no-op if Pause was never called since the last Resume.
func (t *TimingState) Resume(resumeAt time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pauseDate == Invalid {
		return
	}
	t.systemTS += resumeAt - t.pauseDate
	t.pauseDate = Invalid
}
