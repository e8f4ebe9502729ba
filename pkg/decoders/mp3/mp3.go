package mp3

import (
	"fmt"
	"io"

	"github.com/drgolem/go-mpg123/mpg123"

	"github.com/drgolem/audiocore/pkg/audioblock"
)

// Decoder wraps the mpg123.Decoder, producing audioblock.Block values
// directly. Implements types.AudioDecoder.
type Decoder struct {
	decoder *mpg123.Decoder
	format  audioblock.Format
}

// NewDecoder creates a new MP3 decoder.
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
	// mpg123's DecodeSamples correctly handles all audio formats
	// (mono/stereo, 16/24/32-bit).
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

// Open opens and initializes an MP3 file for decoding.
func (d *Decoder) Open(fileName string) error {
	decoder, err := mpg123.NewDecoder("")
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	err = decoder.Open(fileName)
	if err != nil {
		decoder.Delete()
		return fmt.Errorf("failed to open file %s: %w", fileName, err)
	}

	rate, channels, encoding := decoder.GetFormat()
	codec, err := audioblock.CodecFromBitsPerSample(encoding)
	if err != nil {
		decoder.Close()
		decoder.Delete()
		return fmt.Errorf("mp3: %w", err)
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
