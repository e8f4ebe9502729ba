package types

import "github.com/drgolem/audiocore/pkg/audioblock"

// AudioDecoder is the common interface for all audio decoders (MP3, FLAC, WAV).
// Implementations decode straight into audioblock.Block values: the format
// the output core negotiates against comes from Format, not a bare
// (rate, channels, bits) tuple the caller would otherwise have to re-derive
// into a Format itself.
type AudioDecoder interface {
	// Open opens an audio file for decoding
	Open(fileName string) error

	// Close closes the decoder and releases resources
	Close() error

	// Format returns the audioblock.Format of the samples DecodeBlock
	// produces. Only valid after a successful Open.
	Format() audioblock.Format

	// DecodeBlock decodes up to nbSamples samples into a freshly allocated
	// Block (PTS/DTS/Length are left zero; the caller stamps those from its
	// own timeline). Returns io.EOF once the decoder is exhausted.
	DecodeBlock(nbSamples int) (*audioblock.Block, error)
}
