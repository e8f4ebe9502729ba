// Package events implements the independent listener registries the
// stream orchestrator notifies on volume, mute, and device changes. Each
// registry has its own mutex and must never be invoked while a clock or
// timer mutex is held: Notify collects the listener snapshot under lock,
// then invokes outside the critical section.
package events

import "sync"

// VolumeChanged carries the new output volume factor and mute state.
type VolumeChanged struct {
	Factor float32
	Muted  bool
}

// DeviceChanged carries the name of the newly selected output device.
type DeviceChanged struct {
	DeviceName string
}

// Registry is a generic singly-linked-in-spirit callback list: append-only,
// snapshot-and-invoke-outside-lock. T is the event payload type.
type Registry[T any] struct {
	mu        sync.Mutex
	listeners []func(T)
}

// Add registers fn and returns a function that removes it.
func (r *Registry[T]) Add(fn func(T)) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
	idx := len(r.listeners) - 1
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if idx < len(r.listeners) {
			r.listeners[idx] = nil
		}
	}
}

// Notify snapshots the current listeners under lock, then invokes each
// outside the lock so a listener calling back into the registry (or into
// the stream) cannot deadlock against Add/the notifying call.
func (r *Registry[T]) Notify(event T) {
	r.mu.Lock()
	snapshot := make([]func(T), len(r.listeners))
	copy(snapshot, r.listeners)
	r.mu.Unlock()

	for _, fn := range snapshot {
		if fn != nil {
			fn(event)
		}
	}
}

// Registries bundles the three independent listener lists a Stream
// exposes, each with its own mutex.
type Registries struct {
	VolumeChanged *Registry[VolumeChanged]
	MuteChanged   *Registry[bool]
	DeviceChanged *Registry[DeviceChanged]
}

// NewRegistries builds an empty set of listener registries.
func NewRegistries() *Registries {
	return &Registries{
		VolumeChanged: &Registry[VolumeChanged]{},
		MuteChanged:   &Registry[bool]{},
		DeviceChanged: &Registry[DeviceChanged]{},
	}
}
