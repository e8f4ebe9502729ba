package resampler

import (
	"sync"

	"github.com/drgolem/audiocore/internal/filterstage"
	"github.com/drgolem/audiocore/pkg/audioblock"
)

// Controller owns at most one rate-conversion stage within a filter chain
// and exposes the two operations the sync controller drives drift
// correction through. The resampler itself is mechanical; Controller
// carries no drift logic of its own.
type Controller struct {
	mu    sync.Mutex
	stage filterstage.Resampleable
}

// NewController wraps stage, which may be nil if the negotiated formats
// need no rate conversion at all (in which case CanResample reports false).
func NewController(stage filterstage.Resampleable) *Controller {
	return &Controller{stage: stage}
}

// Bind attaches (or replaces) the resampling stage, e.g. after a pipeline
// rebuild triggered by a format change.
func (c *Controller) Bind(stage filterstage.Resampleable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stage = stage
}

// CanResample reports whether this controller currently has a stage able
// to accept rate adjustments.
func (c *Controller) CanResample() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage != nil
}

// AdjustResampling nudges the bound stage's output rate by deltaHz and
// reports whether it is still actively correcting. Calling this with no
// stage bound is a no-op that reports inactive.
func (c *Controller) AdjustResampling(deltaHz int) (stillActive bool) {
	c.mu.Lock()
	stage := c.stage
	c.mu.Unlock()
	if stage == nil {
		return false
	}
	return stage.AdjustResampling(deltaHz)
}

// Reset snaps the bound stage back to its nominal rate, if any is bound.
func (c *Controller) Reset() {
	c.mu.Lock()
	stage := c.stage
	c.mu.Unlock()
	if stage != nil {
		stage.Reset()
	}
}

// NewStageFor builds a soxr-backed resampling Stage for the given format
// pair, or returns (nil, nil) if in and out already share a sample rate
// (no resampler is needed).
func NewStageFor(in, out audioblock.Format) (*Stage, error) {
	if in.SampleRate == out.SampleRate {
		return nil, nil
	}
	return NewStage(in, out)
}
