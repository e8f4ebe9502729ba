// Package sink defines the contract between the output core and a
// platform audio sink as a capability set: a sink need only implement the
// required Sink methods; presence of the optional ones (pause, drain,
// latency reporting, hardware volume) is probed once at stream
// construction via type assertion, not a table of nullable function
// pointers.
package sink

import (
	"time"

	"github.com/drgolem/audiocore/pkg/audioblock"
)

// Profile carries the negotiation hints a decoder passes to NewStream that
// the sink may use to pick a mixer format (e.g. a preferred device or
// buffer sizing).
type Profile struct {
	PreferredChannels uint32
	FramesPerBuffer   int
	DeviceIndex       int
}

// Sink is the minimal required contract every audio sink must implement.
type Sink interface {
	// OutputNew negotiates the mixer format the sink will actually consume
	// given the stream's input format, filling filterFormat (the format
	// the filter chain should produce, normally == mixerFormat) and an
	// opaque filtersCfg hint (e.g. a preferred filter order string).
	OutputNew(profile Profile, inputFormat audioblock.Format) (mixerFormat, filterFormat audioblock.Format, filtersCfg string, err error)
	// Play hands a block to the sink for playback at systemPTS; it must
	// not modify systemPTS and may block until the device accepts it.
	Play(block *audioblock.Block, systemPTS time.Duration) error
	// Flush discards anything buffered inside the sink without playing it.
	Flush() error
	// Close releases the sink's device resources.
	Close() error
}

// Pauser is implemented by sinks that can pause/resume natively. If a sink
// does not implement Pauser, the stream orchestrator emulates pause by
// flushing instead.
type Pauser interface {
	Pause(paused bool, date time.Duration) error
}

// Drainer is implemented by sinks with a native drain notification. If
// absent, the orchestrator falls back to a deadline computed from the
// sink's last reported delay.
type Drainer interface {
	Drain() error
}

// TimeGetter is implemented by sinks that can report their own output
// latency. If absent, the Sync Controller's late-update interpolation
// model (avsync.TimingState) is used instead.
type TimeGetter interface {
	TimeGet() (delay time.Duration, ok bool)
}

// VolumeSetter is implemented by sinks with hardware/driver volume control.
// If absent, software volume (internal/volume) handles everything.
type VolumeSetter interface {
	VolumeSet(factor float32, mute bool) error
}

// DeviceNamer is implemented by sinks that can identify the output device
// currently driving playback; the stream orchestrator reports it through
// the device-changed listener registry after an output restart. If absent,
// device-change events carry an empty name.
type DeviceNamer interface {
	DeviceName() string
}
