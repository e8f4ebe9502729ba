package wav

import (
	"fmt"
	"io"
	"os"

	"github.com/youpy/go-wav"

	"github.com/drgolem/audiocore/pkg/audioblock"
)

// Decoder wraps go-wav for decoding WAV audio files, producing
// audioblock.Block values directly. Implements types.AudioDecoder.
type Decoder struct {
	file   *os.File
	reader *wav.Reader
	format audioblock.Format
}

// NewDecoder creates a new WAV decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens a WAV file for decoding.
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open WAV file: %w", err)
	}

	reader := wav.NewReader(file)
	wavFormat, err := reader.Format()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to read WAV format: %w", err)
	}

	if wavFormat.AudioFormat != wav.AudioFormatPCM {
		file.Close()
		return fmt.Errorf("unsupported WAV format: %d (only PCM supported)", wavFormat.AudioFormat)
	}

	codec, err := audioblock.CodecFromBitsPerSample(int(wavFormat.BitsPerSample))
	if err != nil {
		file.Close()
		return fmt.Errorf("wav: %w", err)
	}

	d.file = file
	d.reader = reader
	mask := audioblock.DefaultChannelMask(int(wavFormat.NumChannels))
	d.format = audioblock.Prepare(audioblock.Format{
		Codec:            codec,
		SampleRate:       uint32(wavFormat.SampleRate),
		PhysicalChannels: mask,
		OriginalChannels: mask,
	})

	return nil
}

// Close closes the WAV file.
func (d *Decoder) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

// Format returns the audioblock.Format the decoder produces blocks in.
func (d *Decoder) Format() audioblock.Format {
	return d.format
}

// DecodeBlock decodes up to nbSamples samples into a freshly allocated
// Block. Returns io.EOF once the file is exhausted.
//
// go-wav reads one sample (one frame across all channels) at a time, so
// this loops nbSamples times rather than issuing a single bulk read.
func (d *Decoder) DecodeBlock(nbSamples int) (*audioblock.Block, error) {
	if d.reader == nil {
		return nil, fmt.Errorf("decoder not initialized")
	}

	channels := d.format.ChannelCount()
	bytesPerSample := int(d.format.BitsPerSample) / 8

	block := audioblock.AllocBlock(nbSamples * int(d.format.BytesPerFrame))
	total := 0

	for i := 0; i < nbSamples; i++ {
		samplesData, err := d.reader.ReadSamples(1)
		if err != nil {
			if total == 0 {
				audioblock.FreeBlock(block)
				return nil, io.EOF
			}
			break
		}
		if len(samplesData) == 0 {
			break
		}

		for ch := 0; ch < channels; ch++ {
			if ch >= len(samplesData[0].Values) {
				break
			}

			value := samplesData[0].Values[ch]
			offset := (total*channels + ch) * bytesPerSample

			switch d.format.BitsPerSample {
			case 8:
				block.Audio[offset] = byte(value)
			case 16:
				block.Audio[offset] = byte(value & 0xFF)
				block.Audio[offset+1] = byte((value >> 8) & 0xFF)
			case 24:
				block.Audio[offset] = byte(value & 0xFF)
				block.Audio[offset+1] = byte((value >> 8) & 0xFF)
				block.Audio[offset+2] = byte((value >> 16) & 0xFF)
			case 32:
				block.Audio[offset] = byte(value & 0xFF)
				block.Audio[offset+1] = byte((value >> 8) & 0xFF)
				block.Audio[offset+2] = byte((value >> 16) & 0xFF)
				block.Audio[offset+3] = byte((value >> 24) & 0xFF)
			}
		}
		total++
	}

	if total == 0 {
		audioblock.FreeBlock(block)
		return nil, io.EOF
	}

	block.Audio = block.Audio[:total*int(d.format.BytesPerFrame)]
	block.NbSamples = uint32(total)
	return block, nil
}
