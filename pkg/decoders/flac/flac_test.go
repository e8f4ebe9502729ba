package flac

import (
	"testing"
)

func TestNewDecoder(t *testing.T) {
	decoder := NewDecoder()
	if decoder == nil {
		t.Fatal("NewDecoder returned nil")
	}
}

func TestDecoderFormatBeforeOpen(t *testing.T) {
	decoder := NewDecoder()

	// Before opening a file, the format should be the zero Format.
	format := decoder.Format()
	if !format.IsEmpty() {
		t.Errorf("expected zero Format before Open, got %+v", format)
	}
}

func TestDecoderClose(t *testing.T) {
	decoder := NewDecoder()

	// Should be safe to close without opening.
	if err := decoder.Close(); err != nil {
		t.Errorf("Close on unopened decoder failed: %v", err)
	}

	// Should be safe to close multiple times.
	if err := decoder.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestDecodeBlockWithoutOpen(t *testing.T) {
	decoder := NewDecoder()

	if _, err := decoder.DecodeBlock(1024); err == nil {
		t.Error("expected error when decoding without opening a file")
	}
}

// ExampleDecoder demonstrates basic usage of the FLAC decoder.
func ExampleDecoder() {
	decoder := NewDecoder()
	defer decoder.Close()

	// Note: this example would require an actual FLAC file.
	// err := decoder.Open("test.flac")
	// if err != nil {
	//     log.Fatal(err)
	// }

	// format := decoder.Format()
	// fmt.Printf("Format: %d Hz, %d channels\n", format.SampleRate, format.ChannelCount())

	// block, err := decoder.DecodeBlock(4096)
	// Process block.Audio[:block.NbSamples]
}
