// Package meter implements the audio meter: fan-out of processed blocks
// to optional analysis plug-ins (e.g. loudness metering) under a
// shared lock, independent of playback. A meter failure must never drop
// audio, so Process never alters the caller's block on a plug-in error; it
// only logs and continues with the remaining plug-ins.
package meter

import (
	"log/slog"
	"sync"
	"time"

	"github.com/drgolem/audiocore/pkg/audioblock"
)

// Plugin is an analysis plug-in attached to a Meter. Implementations must
// be in-place: Process must return the same Block it was given, never nil
// or a new allocation, since the meter sits beside the data path, not
// in it.
type Plugin interface {
	Name() string
	// Process observes block (already converted to the stream's mixer
	// format) at the given play date. It must return the same block.
	Process(block *audioblock.Block, playDate time.Duration) (*audioblock.Block, error)
	// Reset re-creates any internal state for a newly negotiated format.
	Reset(format audioblock.Format) error
	// Flush discards buffered analysis state across a discontinuity.
	Flush()
}

// Meter fans processed blocks out to every attached Plugin.
type Meter struct {
	mu      sync.Mutex
	plugins []Plugin
}

// New creates an empty Meter.
func New() *Meter {
	return &Meter{}
}

// Attach adds a plug-in to the meter.
func (m *Meter) Attach(p Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins = append(m.plugins, p)
}

// Detach removes a plug-in by name, if present.
func (m *Meter) Detach(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.plugins[:0]
	for _, p := range m.plugins {
		if p.Name() != name {
			out = append(out, p)
		}
	}
	m.plugins = out
}

// Process runs block through every attached plug-in under the meter's
// lock. A plug-in returning an error, or a block other than the one it was
// given, is logged and skipped; it never aborts the fan-out or mutates
// what the caller sees.
func (m *Meter) Process(block *audioblock.Block, playDate time.Duration) {
	if block == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plugins {
		out, err := p.Process(block, playDate)
		if err != nil {
			slog.Warn("meter: plugin failed, skipping", "plugin", p.Name(), "error", err)
			continue
		}
		if out != block {
			slog.Warn("meter: plugin did not return its input block, ignoring output", "plugin", p.Name())
		}
	}
}

// Reset re-creates every plug-in's internal state for a newly negotiated
// format, e.g. after a Stream restart changes the mixer format.
func (m *Meter) Reset(format audioblock.Format) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plugins {
		if err := p.Reset(format); err != nil {
			slog.Warn("meter: plugin reset failed", "plugin", p.Name(), "error", err)
		}
	}
}

// Flush forwards a discontinuity notification to every attached plug-in.
func (m *Meter) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plugins {
		p.Flush()
	}
}
