package audioblock

import (
	"math"
	"sync"
	"time"
)

// Flags are bits carried alongside a Block's timing metadata.
type Flags uint32

const (
	// FlagDiscontinuity marks a Block whose PTS is not expected to be
	// contiguous with the previous one (after a seek, a flush, or a
	// stream restart). The sync controller relaxes its drift thresholds
	// to zero for the duration of the discontinuity.
	FlagDiscontinuity Flags = 1 << iota
)

// Block is an owned, contiguous buffer of interleaved PCM samples plus the
// timing metadata needed to place it on the master clock. A Block is linear:
// it is owned by exactly one component at a time and is either released back
// to the pool (FreeBlock) or consumed by the sink.
type Block struct {
	Audio      []byte
	PTS        time.Duration
	DTS        time.Duration
	Length     time.Duration // Audio duration represented by NbSamples
	NbSamples  uint32
	Flags      Flags
}

// pool recycles Block.Audio backing arrays across the hot path so steady
// state playback does not allocate per block. A single pool holds buffers
// of every size; a pooled buffer too small for a request is dropped and a
// new one is allocated.
var pool sync.Pool

// AllocBlock returns a Block with an Audio buffer of at least n bytes,
// reusing a pooled buffer when one of sufficient capacity is available.
func AllocBlock(n int) *Block {
	if v := pool.Get(); v != nil {
		b := v.(*Block)
		if cap(b.Audio) >= n {
			b.Audio = b.Audio[:n]
			b.PTS, b.DTS, b.Length, b.NbSamples, b.Flags = 0, 0, 0, 0, 0
			return b
		}
	}
	return &Block{Audio: make([]byte, n)}
}

// FreeBlock returns a Block's backing buffer to the pool. The caller must
// not use b after calling FreeBlock.
func FreeBlock(b *Block) {
	if b == nil {
		return
	}
	b.Audio = b.Audio[:0]
	pool.Put(b)
}

// NewSilenceBlock allocates a zero-filled Block covering length at format's
// rate (rounded to the nearest sample), stamped with pts. Used by the sync controller to bridge an
// early-playback gap without stalling the sink.
func NewSilenceBlock(length time.Duration, format Format, pts time.Duration) *Block {
	frames := samplesFromDuration(length, format.SampleRate)
	bytes := int(frames) * int(format.BytesPerFrame) / int(maxu32(format.FrameLength, 1))
	b := AllocBlock(bytes)
	for i := range b.Audio {
		b.Audio[i] = 0
	}
	b.NbSamples = frames
	b.PTS = pts
	b.DTS = pts
	b.Length = length
	return b
}

func samplesFromDuration(d time.Duration, rate uint32) uint32 {
	if d <= 0 || rate == 0 {
		return 0
	}
	return uint32(math.Round(d.Seconds() * float64(rate)))
}

// DurationFromSamples computes the time length of nbSamples samples at
// rate Hz, the inverse of samplesFromDuration.
func DurationFromSamples(nbSamples uint32, rate uint32) time.Duration {
	if rate == 0 {
		return 0
	}
	return time.Duration(float64(nbSamples) / float64(rate) * float64(time.Second))
}

func maxu32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
