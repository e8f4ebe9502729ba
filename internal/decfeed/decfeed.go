// Package decfeed adapts a pkg/types.AudioDecoder to the stream
// orchestrator's Play loop: it reads fixed-size sample chunks from the
// decoder and stages them through a blockqueue.Fifo, whose own date engine
// stamps each chunk with a continuous PTS, so the decode goroutine and the
// play goroutine run independently.
package decfeed

import (
	"fmt"
	"time"

	"github.com/drgolem/audiocore/internal/blockqueue"
	"github.com/drgolem/audiocore/pkg/audioblock"
	"github.com/drgolem/audiocore/pkg/types"
)

// ChunkSamples is the number of samples requested from the decoder per
// DecodeBlock call, absent a caller-specified override.
const ChunkSamples = 4096

// Feed decodes fixed-size chunks from an AudioDecoder into the format the
// stream orchestrator consumes, queuing them through a Fifo whose date
// engine stamps every chunk, so playback sees a continuous timeline even
// though the decoder itself only reports a sample count per call.
type Feed struct {
	dec    types.AudioDecoder
	format audioblock.Format
	fifo   *blockqueue.Fifo

	chunkSamples int
}

// Open wraps an already-open decoder, reading its audioblock.Format
// straight from Format(). The feed's timeline starts at zero.
func Open(dec types.AudioDecoder, queueDepth uint64) (*Feed, error) {
	format := dec.Format()
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("decfeed: %w", err)
	}

	fifo := blockqueue.NewFifo(queueDepth, format.SampleRate)
	fifo.Set(0)

	return &Feed{
		dec:          dec,
		format:       format,
		fifo:         fifo,
		chunkSamples: ChunkSamples,
	}, nil
}

// Format reports the format decoded blocks are stamped with.
func (f *Feed) Format() audioblock.Format {
	return f.format
}

// DecodeOne decodes one chunk and pushes it onto the internal Fifo, which
// stamps its PTS and length from the feed's timeline. Returns io.EOF once
// the decoder is exhausted. It must only be called from the producer
// goroutine.
func (f *Feed) DecodeOne() error {
	block, err := f.dec.DecodeBlock(f.chunkSamples)
	if err != nil {
		return err
	}

	for !f.fifo.Push(block) {
		time.Sleep(time.Millisecond)
	}
	return nil
}

// Next pops the next staged block for playback, or reports false if none
// is currently queued. It must only be called from the consumer
// (play) goroutine.
func (f *Feed) Next() (*audioblock.Block, bool) {
	return f.fifo.Pop()
}

// Reset re-anchors the feed's timeline at pts and discards every staged
// block, used after a seek invalidates everything queued so far. The
// producer goroutine must be quiescent.
func (f *Feed) Reset(pts time.Duration) {
	f.fifo.Set(pts)
}

// MoveDates shifts the feed's timeline and every staged-but-unplayed
// block by delta in one step, preserving queue order. The producer
// goroutine must be quiescent.
func (f *Feed) MoveDates(delta time.Duration) {
	f.fifo.MoveDates(delta)
}

// Close releases the underlying decoder.
func (f *Feed) Close() error {
	f.fifo.Destroy()
	return f.dec.Close()
}
