package decfeed

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drgolem/audiocore/pkg/audioblock"
)

// fakeDecoder emits a fixed number of stereo 16-bit samples then io.EOF,
// mirroring pkg/decoders/wav's zero-value contract on decoder exhaustion.
type fakeDecoder struct {
	format    audioblock.Format
	remaining int
	closed    bool
}

func newFakeDecoder(remaining int) *fakeDecoder {
	return &fakeDecoder{
		remaining: remaining,
		format: audioblock.Prepare(audioblock.Format{
			Codec:            audioblock.CodecS16,
			SampleRate:       44100,
			PhysicalChannels: audioblock.DefaultChannelMask(2),
			OriginalChannels: audioblock.DefaultChannelMask(2),
		}),
	}
}

func (d *fakeDecoder) Open(string) error         { return nil }
func (d *fakeDecoder) Format() audioblock.Format { return d.format }
func (d *fakeDecoder) Close() error {
	d.closed = true
	return nil
}

func (d *fakeDecoder) DecodeBlock(nbSamples int) (*audioblock.Block, error) {
	if d.remaining == 0 {
		return nil, io.EOF
	}
	n := nbSamples
	if n > d.remaining {
		n = d.remaining
	}
	d.remaining -= n

	block := audioblock.AllocBlock(n * int(d.format.BytesPerFrame))
	for i := range block.Audio {
		block.Audio[i] = 0x11
	}
	block.NbSamples = uint32(n)
	return block, nil
}

func TestFeedDecodesAndStampsContinuousPTS(t *testing.T) {
	dec := newFakeDecoder(ChunkSamples * 3)
	f, err := Open(dec, 8)
	require.NoError(t, err)

	require.NoError(t, f.DecodeOne())
	b1, ok := f.Next()
	require.True(t, ok)
	require.Equal(t, uint32(ChunkSamples), b1.NbSamples)
	require.Equal(t, int64(0), int64(b1.PTS))

	require.NoError(t, f.DecodeOne())
	b2, ok := f.Next()
	require.True(t, ok)
	require.Equal(t, b1.PTS+b1.Length, b2.PTS)

	require.NoError(t, f.DecodeOne())
	b3, ok := f.Next()
	require.True(t, ok)
	require.Equal(t, b2.PTS+b2.Length, b3.PTS)
}

func TestFeedReportsEOFWhenExhausted(t *testing.T) {
	dec := newFakeDecoder(0)
	f, err := Open(dec, 8)
	require.NoError(t, err)
	require.ErrorIs(t, f.DecodeOne(), io.EOF)
}

func TestFeedResetFlushesAndReanchors(t *testing.T) {
	dec := newFakeDecoder(ChunkSamples * 2)
	f, err := Open(dec, 8)
	require.NoError(t, err)

	require.NoError(t, f.DecodeOne())
	f.Reset(5000)
	_, ok := f.Next()
	require.False(t, ok)

	// The next decoded chunk is stamped from the re-anchored timeline.
	require.NoError(t, f.DecodeOne())
	b, ok := f.Next()
	require.True(t, ok)
	require.Equal(t, int64(5000), int64(b.PTS))
}

func TestFeedMoveDatesShiftsStagedBlocksAndTimeline(t *testing.T) {
	dec := newFakeDecoder(ChunkSamples * 2)
	f, err := Open(dec, 8)
	require.NoError(t, err)

	require.NoError(t, f.DecodeOne())
	f.MoveDates(20 * time.Millisecond)

	b1, ok := f.Next()
	require.True(t, ok)
	require.Equal(t, 20*time.Millisecond, b1.PTS, "staged block must be shifted")

	require.NoError(t, f.DecodeOne())
	b2, ok := f.Next()
	require.True(t, ok)
	require.Equal(t, b1.PTS+b1.Length, b2.PTS, "later chunks must continue the shifted timeline")
}

func TestOpenRejectsInvalidFormat(t *testing.T) {
	dec := newFakeDecoder(ChunkSamples)
	dec.format.SampleRate = 0
	_, err := Open(dec, 8)
	require.Error(t, err)
}
