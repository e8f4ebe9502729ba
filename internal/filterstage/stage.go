// Package filterstage defines the Stage contract shared by the filter
// pipeline and the resampler controller, plus the handful of built-in
// stage kinds (format, channel) simple enough to not need their own
// package.
package filterstage

import "github.com/drgolem/audiocore/pkg/audioblock"

// MaxFilters bounds the number of stages a single Chain may hold.
const MaxFilters = 16

// Stage is a single transforming step in a Chain. A Stage is exclusively
// owned by the chain that contains it; its lifetime is the chain's lifetime.
type Stage interface {
	// Name identifies the stage for logging.
	Name() string
	// InputFormat and OutputFormat are the formats this stage bridges.
	InputFormat() audioblock.Format
	OutputFormat() audioblock.Format
	// InPlace reports whether Process mutates and returns the same Block it
	// was given, rather than allocating a new one.
	InPlace() bool
	// Process transforms a block. Returning (nil, nil) drops the block
	// silently (PlayDrop); a non-nil error aborts the chain.
	Process(in *audioblock.Block, rate float64) (*audioblock.Block, error)
	// Drain flushes any samples buffered inside the stage (e.g. a
	// resampler's internal history) as one final Block, or returns nil if
	// nothing remains.
	Drain() *audioblock.Block
	// Flush discards any buffered internal state without emitting it.
	Flush()
}

// Resampleable is implemented by stages capable of fine rate adjustment
// under the sync controller's command.
type Resampleable interface {
	Stage
	// AdjustResampling nudges the stage's output rate by deltaHz (typically
	// ±2 at a time) and reports whether the stage is still actively
	// correcting (false once it has settled back to nominal).
	AdjustResampling(deltaHz int) (stillActive bool)
	// Reset snaps the stage's output rate straight back to nominal.
	Reset()
}
