// Package lockorder encodes the mutex ordering rules the stream
// orchestrator depends on: volume_lock may only be acquired before
// output_lock, and timing_lock may be acquired while output_lock is held
// (the play path does exactly that) but never the reverse. The package
// makes the volume/output order unrepresentable (a token only VolumeLock
// can mint, required by OutputLock), and keeps a cheap runtime assertion
// for the timing/output ordering the type system can't rule out, since
// those two are acquired from unrelated call sites with no natural token
// to thread between them.
package lockorder

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// VolumeToken proves the caller currently holds VolumeLock. The zero value
// is valid and means "volume_lock was not taken for this call"; callers
// that only touch output_lock-guarded fields never need volume state.
type VolumeToken struct {
	held bool
}

// VolumeLock guards a stream's VolumeState. It nests inside nothing.
type VolumeLock struct {
	mu sync.Mutex
}

// Lock acquires volume_lock and returns the unlock func plus a token that
// may be presented to OutputLock.Lock to prove correct ordering.
func (l *VolumeLock) Lock() (unlock func(), tok VolumeToken) {
	l.mu.Lock()
	return l.mu.Unlock, VolumeToken{held: true}
}

// OutputLock guards the filter/mixer pipeline configuration. It may be
// acquired while already holding volume_lock, or while holding nothing;
// never the reverse.
type OutputLock struct {
	mu sync.Mutex
}

// Lock acquires output_lock. Pass the zero VolumeToken when volume_lock is
// not held by the caller.
func (l *OutputLock) Lock(_ VolumeToken) func() {
	l.mu.Lock()
	return l.mu.Unlock
}

// TimingLock guards TimingState, acquired independently by the play path
// and the sink's NotifyTiming callback. It may be taken while output_lock
// is held; a caller holding it must never go on to take output_lock.
type TimingLock struct {
	mu sync.Mutex
}

func (l *TimingLock) Lock() func() {
	l.mu.Lock()
	return l.mu.Unlock
}

// Debug enables the runtime order assertion in Enter below. Off by
// default: the assertion walks a per-call-path State explicitly threaded
// by the caller (Go has no implicit thread-locals), so it only costs
// anything when a caller opts in.
var Debug = false

// Kind identifies a lock kind for the debug-mode assertion.
type Kind uint32

const (
	KindVolume Kind = 1 << iota
	KindOutput
	KindTiming
)

// allowedBefore maps a lock kind to the set of kinds that may already be
// held when it is acquired. Output may nest inside Volume; Timing may
// nest inside either; nothing may be acquired while Timing is held.
var allowedBefore = map[Kind]Kind{
	KindVolume: 0,
	KindOutput: KindVolume,
	KindTiming: KindVolume | KindOutput,
}

// State tracks the locks held along one logical call path (one entry into
// the stream from one actor: the decoder thread, a control thread, or the
// sink callback thread). Each entry point owns its own State, typically a
// stack value; it is not safe for concurrent use by itself.
type State struct {
	held atomic.Uint32
}

// Enter records k as held and panics in Debug mode if the current held set
// violates allowedBefore[k]. It returns a func restoring the prior state,
// to be deferred by the caller alongside the real mutex Unlock.
func (s *State) Enter(k Kind) func() {
	if s == nil {
		return func() {}
	}
	prev := Kind(s.held.Load())
	if Debug {
		if bad := prev &^ allowedBefore[k]; bad != 0 {
			panic(fmt.Sprintf("lockorder: acquiring %v while holding %v violates lock order", k, bad))
		}
	}
	s.held.Store(uint32(prev | k))
	return func() { s.held.Store(uint32(prev)) }
}
