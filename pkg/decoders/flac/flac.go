package flac

import (
	"fmt"
	"io"

	goflac "github.com/drgolem/go-flac/flac"

	"github.com/drgolem/audiocore/pkg/audioblock"
)

// Decoder wraps the go-flac decoder, producing audioblock.Block values
// directly. Implements types.AudioDecoder.
type Decoder struct {
	decoder *goflac.FlacDecoder
	format  audioblock.Format
}

// NewDecoder creates a new FLAC decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Format returns the audioblock.Format the decoder produces blocks in.
func (d *Decoder) Format() audioblock.Format {
	return d.format
}

// DecodeBlock decodes up to nbSamples samples into a freshly allocated
// Block. Returns io.EOF once the stream is exhausted.
func (d *Decoder) DecodeBlock(nbSamples int) (*audioblock.Block, error) {
	if d.decoder == nil {
		return nil, fmt.Errorf("decoder not initialized")
	}

	block := audioblock.AllocBlock(nbSamples * int(d.format.BytesPerFrame))
	n, err := d.decoder.DecodeSamples(nbSamples, block.Audio)
	if err != nil {
		audioblock.FreeBlock(block)
		return nil, err
	}
	if n == 0 {
		audioblock.FreeBlock(block)
		return nil, io.EOF
	}

	block.Audio = block.Audio[:n*int(d.format.BytesPerFrame)]
	block.NbSamples = uint32(n)
	return block, nil
}

// Open opens and initializes a FLAC file for decoding.
func (d *Decoder) Open(fileName string) error {
	// Create new decoder with 16-bit output by default.
	// This can be adjusted to 24 or 32 if needed.
	decoder, err := goflac.NewFlacFrameDecoder(16)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	// Open the FLAC file
	err = decoder.Open(fileName)
	if err != nil {
		decoder.Delete()
		return fmt.Errorf("failed to open file %s: %w", fileName, err)
	}

	rate, channels, bps := decoder.GetFormat()
	codec, err := audioblock.CodecFromBitsPerSample(bps)
	if err != nil {
		decoder.Close()
		decoder.Delete()
		return fmt.Errorf("flac: %w", err)
	}

	d.decoder = decoder
	mask := audioblock.DefaultChannelMask(channels)
	d.format = audioblock.Prepare(audioblock.Format{
		Codec:            codec,
		SampleRate:       uint32(rate),
		PhysicalChannels: mask,
		OriginalChannels: mask,
	})

	return nil
}

// Close closes the decoder and releases resources.
func (d *Decoder) Close() error {
	if d.decoder != nil {
		d.decoder.Close()
		d.decoder.Delete()
		d.decoder = nil
	}
	return nil
}
