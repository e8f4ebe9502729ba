// Package filterpipeline builds and drives the filter chain that bridges a
// decoder's output format to a sink's input format: channel
// reorder/extraction and sample-format conversion always run ahead of any
// sample rate conversion, so the resampler only ever sees the final channel
// count and sample format.
package filterpipeline

import (
	"fmt"

	"github.com/drgolem/audiocore/internal/filterstage"
	"github.com/drgolem/audiocore/internal/resampler"
	"github.com/drgolem/audiocore/pkg/audioblock"
)

// Chain is an ordered, built filter pipeline converting blocks from one
// format to another. It owns every stage it was built with.
type Chain struct {
	in, out   audioblock.Format
	stages    []filterstage.Stage
	resampler *resampler.Controller
}

// InputFormat and OutputFormat report the formats this chain bridges.
func (c *Chain) InputFormat() audioblock.Format  { return c.in }
func (c *Chain) OutputFormat() audioblock.Format { return c.out }

// StageNames reports the built stages in pipeline order, for logging and
// for tests asserting the channel/format-before-rate invariant.
func (c *Chain) StageNames() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return names
}

// Play pushes a block through every stage in order. A stage returning
// (nil, nil) drops the block; the chain short-circuits and reports no
// output rather than feeding nil onward. A block that comes out with zero
// samples (e.g. a resampler still priming) is consumed here the same way.
func (c *Chain) Play(block *audioblock.Block, rate float64) (*audioblock.Block, error) {
	cur := block
	for _, s := range c.stages {
		if cur == nil {
			return nil, nil
		}
		next, err := s.Process(cur, rate)
		if err != nil {
			return nil, fmt.Errorf("filterpipeline: stage %s: %w", s.Name(), err)
		}
		cur = next
	}
	if cur != nil && cur.NbSamples == 0 {
		audioblock.FreeBlock(cur)
		return nil, nil
	}
	return cur, nil
}

// Drain flushes every stage's internal history in pipeline order, pushing
// each stage's drained block through the remaining downstream stages so a
// resampler's trailing samples still get channel-mapped/format-converted.
func (c *Chain) Drain() (*audioblock.Block, error) {
	var last *audioblock.Block
	for i, s := range c.stages {
		block := s.Drain()
		if block == nil {
			continue
		}
		for _, down := range c.stages[i+1:] {
			next, err := down.Process(block, 1.0)
			if err != nil {
				return nil, fmt.Errorf("filterpipeline: drain stage %s: %w", down.Name(), err)
			}
			block = next
			if block == nil {
				break
			}
		}
		if block != nil {
			last = block
		}
	}
	return last, nil
}

// Flush discards buffered internal state across every stage without
// emitting it, for a seek or other discontinuity.
func (c *Chain) Flush() {
	for _, s := range c.stages {
		s.Flush()
	}
}

// Resampler returns the chain's rate-adjustment controller. The controller
// always exists; it reports CanResample false when the chain has no
// rate-conversion stage.
func (c *Chain) Resampler() *resampler.Controller {
	return c.resampler
}

// CreatePipeline builds the chain converting blocks from in to out.
// orderIn/orderOut describe the physical channel-bit sequence on each
// side (see pkg/chanmap.CheckChannelReorder). Stages are always ordered
// format, then channels, then rate: the resampler always sees the final
// channel count and sample format, never a mixed intermediate one.
func CreatePipeline(in, out audioblock.Format, orderIn, orderOut []uint32) (*Chain, error) {
	chain := &Chain{in: in, out: out}
	cur := in

	if cur.Codec != out.Codec {
		target := cur
		target.Codec = out.Codec
		target = audioblock.Prepare(target)

		stage, err := filterstage.NewFormatStage(cur, target)
		if err != nil {
			return nil, fmt.Errorf("filterpipeline: build format stage: %w", err)
		}
		chain.stages = append(chain.stages, stage)
		cur = target
	}

	if cur.ChannelCount() != out.ChannelCount() || cur.PhysicalChannels != out.PhysicalChannels {
		target := cur
		target.PhysicalChannels = out.PhysicalChannels
		target.OriginalChannels = out.OriginalChannels
		target = audioblock.Prepare(target)

		stage, err := filterstage.NewChannelStage(cur, target, orderIn, orderOut)
		if err != nil {
			return nil, fmt.Errorf("filterpipeline: build channel stage: %w", err)
		}
		chain.stages = append(chain.stages, stage)
		cur = target
	}

	var rateStage *resampler.Stage
	if cur.SampleRate != out.SampleRate {
		target := cur
		target.SampleRate = out.SampleRate
		target = audioblock.Prepare(target)

		stage, err := resampler.NewStageFor(cur, target)
		if err != nil {
			return nil, fmt.Errorf("filterpipeline: build resampler stage: %w", err)
		}
		if stage != nil {
			chain.stages = append(chain.stages, stage)
			rateStage = stage
		}
		cur = target
	}
	if rateStage != nil {
		chain.resampler = resampler.NewController(rateStage)
	} else {
		chain.resampler = resampler.NewController(nil)
	}

	if len(chain.stages) > filterstage.MaxFilters {
		return nil, fmt.Errorf("filterpipeline: pipeline needs %d stages, exceeds limit %d", len(chain.stages), filterstage.MaxFilters)
	}
	if !audioblock.Identical(cur, out) {
		return nil, fmt.Errorf("filterpipeline: could not reach output format %+v from %+v (stopped at %+v)", out, in, cur)
	}
	return chain, nil
}
