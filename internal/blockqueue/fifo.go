// Package blockqueue implements the block FIFO and date engine: a
// lock-free single-producer/single-consumer queue of decoded blocks
// between the decoder thread and the play thread. The queue owns its own
// Date, the fractional-sample-accurate timestamp accumulator that stamps
// every pushed block, so the queued blocks and the timeline they were
// stamped against can only ever be reset or shifted together.
package blockqueue

import (
	"sync/atomic"
	"time"

	"github.com/drgolem/audiocore/pkg/audioblock"
)

// Fifo is a lock-free ring buffer of *audioblock.Block pointers plus the
// Date that stamps them. Push must only be called by the producer
// (decoder) goroutine; Pop must only be called by the consumer (play)
// goroutine. Set and MoveDates touch the same Date the producer stamps
// with, so they additionally require the producer to be quiescent, the
// same discipline the surrounding player enforces by calling them only
// from its reset paths.
type Fifo struct {
	buffer   []*audioblock.Block
	mask     uint64
	writePos atomic.Uint64
	readPos  atomic.Uint64

	date *Date
}

// NewFifo creates a Fifo with capacity rounded up to the next power of 2,
// stamping at rate. The date starts uninitialized: the first pushed block
// seeds it from its own PTS and length.
func NewFifo(capacity uint64, rate uint32) *Fifo {
	capacity = nextPowerOf2(capacity)
	return &Fifo{
		buffer: make([]*audioblock.Block, capacity),
		mask:   capacity - 1,
		date:   NewDate(rate),
	}
}

// Push enqueues one block, reporting false if the queue is full. When the
// date is initialized the block is stamped from it: PTS from the current
// date, Length from the same Increment call that advances the date for the
// next block, so consecutive blocks form a gap-free sample-accurate
// timeline with no independent rounding. When the date is not yet
// initialized, the block keeps its own stamps and seeds the date from
// PTS + Length.
func (f *Fifo) Push(b *audioblock.Block) bool {
	if f.availableWrite() == 0 {
		return false
	}

	if f.date.Initialized() {
		b.PTS = f.date.Get()
		b.DTS = b.PTS
		b.Length = f.date.Increment(b.NbSamples) - b.PTS
	} else {
		f.date.Set(b.PTS + b.Length)
	}

	pos := f.writePos.Load()
	f.buffer[pos&f.mask] = b
	f.writePos.Store(pos + 1)
	return true
}

// Pop dequeues the oldest block, reporting false if the queue is empty.
func (f *Fifo) Pop() (*audioblock.Block, bool) {
	if f.Len() == 0 {
		return nil, false
	}
	pos := f.readPos.Load()
	b := f.buffer[pos&f.mask]
	f.buffer[pos&f.mask] = nil
	f.readPos.Store(pos + 1)
	return b, true
}

// Len reports the number of blocks currently queued.
func (f *Fifo) Len() int {
	return int(f.writePos.Load() - f.readPos.Load())
}

func (f *Fifo) availableWrite() uint64 {
	size := uint64(len(f.buffer))
	return size - (f.writePos.Load() - f.readPos.Load())
}

// Set re-anchors the date at pts and discards every queued block: their
// stamps belong to the old timeline and are no longer trustworthy.
// Requires the producer to be quiescent.
func (f *Fifo) Set(pts time.Duration) {
	f.Destroy()
	f.date.Set(pts)
}

// MoveDates shifts the date and the PTS/DTS of every currently queued
// block by delta, keeping the queued blocks and the stamping timeline in
// lockstep; queue order is preserved. Requires the producer to be
// quiescent.
func (f *Fifo) MoveDates(delta time.Duration) {
	f.date.Move(delta)
	read := f.readPos.Load()
	write := f.writePos.Load()
	for pos := read; pos != write; pos++ {
		b := f.buffer[pos&f.mask]
		if b == nil {
			continue
		}
		b.PTS += delta
		b.DTS += delta
	}
}

// Destroy drains and frees every queued block.
func (f *Fifo) Destroy() {
	for {
		b, ok := f.Pop()
		if !ok {
			break
		}
		audioblock.FreeBlock(b)
	}
}

func nextPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}
