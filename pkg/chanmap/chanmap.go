// Package chanmap computes and applies channel reorder / extraction
// permutations between two channel layouts. ChannelReorder and
// CheckChannelExtraction never allocate and are safe to call on the playback
// hot path; CheckChannelReorder allocates the table it returns.
package chanmap

import "github.com/drgolem/audiocore/pkg/audioblock"

// CheckChannelReorder computes the permutation needed to turn buffer slots
// laid out per orderIn into buffer slots laid out per orderOut. Both orderIn
// and orderOut are the channel bit present at each physical buffer position
// (as reported by the decoder / required by the sink respectively, e.g. a
// WAVEFORMATEXTENSIBLE channel mask array); only bits also present in mask
// are considered. table[i] is the destination slot for the channel currently
// at slot i; reorderNeeded is true iff table is not the identity.
func CheckChannelReorder(orderIn, orderOut []uint32, mask uint32, channels int) (table []int, reorderNeeded bool) {
	table = make([]int, channels)
	for i := range table {
		table[i] = i
	}

	outPos := make(map[uint32]int, len(orderOut))
	for pos, bit := range orderOut {
		if bit&mask != 0 {
			outPos[bit] = pos
		}
	}

	for src, bit := range orderIn {
		if src >= channels || bit&mask == 0 {
			continue
		}
		dst, ok := outPos[bit]
		if !ok || dst >= channels {
			continue
		}
		table[src] = dst
		if dst != src {
			reorderNeeded = true
		}
	}
	return table, reorderNeeded
}

// ChannelReorder applies the permutation in table to buf in place, one frame
// at a time: the sample currently at channel i moves to channel table[i].
// channels is the frame's channel count, at most audioblock.MaxChannels;
// bitsPerSample must be one of 8, 16, 24, 32, 64. buf's length must be a whole
// number of frames. The routine performs no allocation.
//
// table may describe any permutation, not just transpositions: channels are
// moved by following cycles, so a 3-way rotation is handled as correctly as
// a simple swap.
func ChannelReorder(buf []byte, channels int, table []int, bitsPerSample int) bool {
	sampleSize := bitsPerSample / 8
	if sampleSize <= 0 || channels <= 0 || channels > audioblock.MaxChannels || len(table) != channels {
		return false
	}
	frameSize := sampleSize * channels
	if frameSize == 0 || len(buf)%frameSize != 0 {
		return false
	}

	// inv[d] = the source channel whose content ends up at d.
	var inv [audioblock.MaxChannels]int
	for src, dst := range table {
		if dst < 0 || dst >= channels {
			return false
		}
		inv[dst] = src
	}

	var tmp [8]byte // max bytes/sample handled (64-bit)
	hold := tmp[:sampleSize]
	var visited [audioblock.MaxChannels]bool

	for frameStart := 0; frameStart+frameSize <= len(buf); frameStart += frameSize {
		frame := buf[frameStart : frameStart+frameSize]
		for i := range visited {
			visited[i] = false
		}
		for i := 0; i < channels; i++ {
			if visited[i] || inv[i] == i {
				visited[i] = true
				continue
			}
			off := func(ch int) []byte { return frame[ch*sampleSize : ch*sampleSize+sampleSize] }
			copy(hold, off(i))
			j := i
			for {
				k := inv[j]
				visited[j] = true
				if k == i {
					copy(off(j), hold)
					break
				}
				copy(off(j), off(k))
				j = k
			}
		}
	}
	return true
}

// CheckChannelExtraction detects a "dual-mono" source (two channels carrying
// the same program, typically tagged with ChanDualMono) and chooses a
// selection mapping down to a single logical channel. It returns the
// resulting layout mask and channel count; if no extraction applies it
// returns the input unchanged.
func CheckChannelExtraction(mask uint32, channels int) (layout uint32, channelCount int) {
	if mask&audioblock.ChanDualMono == 0 {
		return mask, channels
	}
	// Dual-mono: physically two channels, logically one. Present as a
	// single front-center channel; the upstream filter stage is
	// responsible for averaging or selecting a side.
	return audioblock.ChanFrontCenter, 1
}
