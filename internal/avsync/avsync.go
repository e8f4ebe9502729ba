// Package avsync implements the sync controller: given a block's drift
// from its intended play time, it decides whether to proceed, flush,
// insert silence, or engage/trim corrective resampling. It also carries
// the late-update interpolation model (TimingState) used when a sink
// cannot report its own latency.
//
// The controller itself never touches a clock or a sink; Synchronize takes
// an already-computed drift (the caller, the stream orchestrator,
// resolves drift from either the sink's reported delay or the shared
// ClockHandle, which lives outside this package's scope since it is shared
// with the video/subtitle cores).
package avsync

import (
	"sync"
	"time"
)

// Drift thresholds, scaled by playback rate in Synchronize. Late and early
// playback share the same tolerance; only the chosen correction differs.
const (
	MaxPTSDelay   = 100 * time.Millisecond
	MaxPTSAdvance = 100 * time.Millisecond
)

// Mode is the active corrective resampling direction.
type Mode int

const (
	ModeNone Mode = iota
	ModeUp
	ModeDown
)

func (m Mode) String() string {
	switch m {
	case ModeUp:
		return "up"
	case ModeDown:
		return "down"
	default:
		return "none"
	}
}

// ResampleState is the controller's resampling bookkeeping.
type ResampleState struct {
	Mode          Mode
	StartDriftAbs time.Duration
}

// RateAdjuster is the minimal surface the controller drives on a
// resampler: nudge by a signed delta, or snap back to nominal immediately
// when resampling must stop.
type RateAdjuster interface {
	AdjustResampling(deltaHz int) (stillActive bool)
	Reset()
}

// Action is everything Synchronize decided the caller must do with the
// current block before handing it to the sink.
type Action struct {
	// Flush requests the caller tear down and replay nothing for this
	// block: call sink.Flush, reset TimingState, and drop the block
	// (buffers_lost += 1).
	Flush bool
	// InsertSilence requests SilenceLength of silence be played at
	// SilencePTS before the current block.
	InsertSilence bool
	SilenceLength time.Duration
	SilencePTS    time.Duration
	// Drift is the drift value the caller should report onward; it is
	// zeroed when a silence insertion has already absorbed the gap.
	Drift time.Duration
	// KeepDiscontinuity, when true, means the caller must not clear the
	// discontinuity flag for this block even on an otherwise normal path.
	KeepDiscontinuity bool
}

// Controller is the per-stream Sync Controller instance.
type Controller struct {
	mu            sync.Mutex
	discontinuity bool
	resample      ResampleState
	deltaSign     int
	resampler     RateAdjuster
}

// New creates a Controller. resampler may be nil if the stream's pipeline
// has no rate-capable stage; in that case resampling is never engaged.
// The controller starts with discontinuity set, matching a freshly
// constructed or just-flushed stream.
func New(resampler RateAdjuster) *Controller {
	return &Controller{discontinuity: true, resampler: resampler}
}

// BindResampler attaches (or replaces) the rate adjuster driven by
// Synchronize, e.g. after a filter pipeline rebuild.
func (c *Controller) BindResampler(r RateAdjuster) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resampler = r
}

// SetDiscontinuity forces the discontinuity flag, e.g. after a flush or a
// DISCONTINUITY-flagged block.
func (c *Controller) SetDiscontinuity(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discontinuity = v
}

// Discontinuity reports the current discontinuity flag.
func (c *Controller) Discontinuity() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discontinuity
}

// ResampleState reports the controller's current resampling bookkeeping.
func (c *Controller) ResampleState() ResampleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resample
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func scale(base time.Duration, rate float64) time.Duration {
	if rate <= 0 {
		rate = 1
	}
	return time.Duration(float64(base) / rate)
}

// Synchronize computes the action for one block given its drift (positive
// = late) and the stream's current playback rate.
func (c *Controller) Synchronize(drift time.Duration, rate float64, blockPTS, delay time.Duration) Action {
	c.mu.Lock()
	defer c.mu.Unlock()

	wayLate := scale(3*MaxPTSDelay, rate)
	wayEarly := scale(3*MaxPTSAdvance, rate)
	late := scale(MaxPTSDelay, rate)
	early := scale(MaxPTSAdvance, rate)
	if c.discontinuity {
		wayLate, wayEarly = 0, 0
	}

	if drift > wayLate {
		c.stopResamplingLocked()
		c.discontinuity = true
		return Action{Flush: true, KeepDiscontinuity: true, Drift: drift}
	}
	if drift < -wayEarly {
		length := -drift
		c.stopResamplingLocked()
		c.discontinuity = true
		return Action{
			InsertSilence:     true,
			SilenceLength:     length,
			SilencePTS:        blockPTS - delay,
			KeepDiscontinuity: true,
			Drift:             0,
		}
	}

	switch {
	case c.resampler == nil:
	case drift > late:
		if c.resample.Mode != ModeUp {
			c.resample = ResampleState{Mode: ModeUp, StartDriftAbs: absDuration(drift)}
			c.deltaSign = 1
		}
	case drift < -early:
		if c.resample.Mode != ModeDown {
			c.resample = ResampleState{Mode: ModeDown, StartDriftAbs: absDuration(drift)}
			c.deltaSign = -1
		}
	}

	if c.resample.Mode != ModeNone {
		ad := absDuration(drift)
		switch {
		case ad > 2*c.resample.StartDriftAbs:
			c.stopResamplingLocked()
		default:
			sign := c.deltaSign
			if 2*ad <= c.resample.StartDriftAbs {
				sign = -sign
			}
			stillActive := true
			if c.resampler != nil {
				stillActive = c.resampler.AdjustResampling(2 * sign)
			}
			if !stillActive {
				c.resample = ResampleState{}
				c.deltaSign = 0
			}
		}
	}

	return Action{Drift: drift}
}

// ResetForFlush clears resampling state and forces discontinuity true, as
// a Flush requires: the next block after a flush must not be judged
// against the pre-flush drift history.
func (c *Controller) ResetForFlush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopResamplingLocked()
	c.discontinuity = true
}

func (c *Controller) stopResamplingLocked() {
	if c.resample.Mode == ModeNone {
		return
	}
	if c.resampler != nil {
		c.resampler.Reset()
	}
	c.resample = ResampleState{}
	c.deltaSign = 0
}
