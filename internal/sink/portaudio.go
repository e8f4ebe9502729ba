package sink

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/drgolem/audiocore/pkg/audioblock"

	"github.com/drgolem/go-portaudio/portaudio"
)

// PortAudio is the Sink implementation driving a real output device
// through a blocking PortAudio stream.
type PortAudio struct {
	deviceIndex     int
	framesPerBuffer int

	mu          sync.Mutex
	stream      *portaudio.PaStream
	format      audioblock.Format
	openedIndex int
}

// NewPortAudio creates a PortAudio sink bound to deviceIndex, writing in
// chunks of framesPerBuffer frames. The caller must have already called
// portaudio.Initialize.
func NewPortAudio(deviceIndex, framesPerBuffer int) *PortAudio {
	return &PortAudio{deviceIndex: deviceIndex, framesPerBuffer: framesPerBuffer}
}

func sampleFormatFor(bitsPerSample uint8) (portaudio.PaSampleFormat, error) {
	switch bitsPerSample {
	case 16:
		return portaudio.SampleFmtInt16, nil
	case 24:
		return portaudio.SampleFmtInt24, nil
	case 32:
		return portaudio.SampleFmtInt32, nil
	default:
		return 0, fmt.Errorf("sink: unsupported bit depth for portaudio: %d", bitsPerSample)
	}
}

// OutputNew opens (or reopens) the PortAudio stream for inputFormat. The
// mixer format always equals the input format: this sink performs no
// format negotiation of its own, leaving channel/rate/bit-depth
// conversion entirely to the filter pipeline upstream.
func (s *PortAudio) OutputNew(profile Profile, inputFormat audioblock.Format) (mixerFormat, filterFormat audioblock.Format, filtersCfg string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sampleFormat, err := sampleFormatFor(inputFormat.BitsPerSample)
	if err != nil {
		return audioblock.Format{}, audioblock.Format{}, "", err
	}

	if s.stream != nil {
		if err := s.closeLocked(); err != nil {
			slog.Warn("sink: failed to close previous stream during renegotiation", "error", err)
		}
	}

	framesPerBuffer := s.framesPerBuffer
	if profile.FramesPerBuffer > 0 {
		framesPerBuffer = profile.FramesPerBuffer
	}
	deviceIndex := s.deviceIndex
	if profile.DeviceIndex != 0 {
		deviceIndex = profile.DeviceIndex
	}

	outParams := portaudio.PaStreamParameters{
		DeviceIndex:  deviceIndex,
		ChannelCount: inputFormat.ChannelCount(),
		SampleFormat: sampleFormat,
	}

	stream, err := portaudio.NewStream(outParams, float64(inputFormat.SampleRate))
	if err != nil {
		return audioblock.Format{}, audioblock.Format{}, "", fmt.Errorf("sink: create stream: %w", err)
	}
	if err := stream.Open(framesPerBuffer); err != nil {
		return audioblock.Format{}, audioblock.Format{}, "", fmt.Errorf("sink: open stream: %w", err)
	}
	if err := stream.StartStream(); err != nil {
		return audioblock.Format{}, audioblock.Format{}, "", fmt.Errorf("sink: start stream: %w", err)
	}

	s.stream = stream
	s.format = inputFormat
	s.openedIndex = deviceIndex
	return inputFormat, inputFormat, "", nil
}

// DeviceName identifies the device the sink is (or will be) playing
// through, by index; the binding exposes no richer device metadata.
func (s *PortAudio) DeviceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.openedIndex
	if s.stream == nil {
		index = s.deviceIndex
	}
	return fmt.Sprintf("portaudio:%d", index)
}

// Play writes block's samples to the device. systemPTS is accepted for
// interface symmetry with the Sink contract but not used: PortAudio's
// blocking Write call paces playback by device clock, and the Stream
// Orchestrator is responsible for everything upstream of "hand these
// bytes to the device now".
func (s *PortAudio) Play(block *audioblock.Block, systemPTS time.Duration) error {
	s.mu.Lock()
	stream := s.stream
	bytesPerFrame := int(s.format.BytesPerFrame)
	s.mu.Unlock()

	if stream == nil {
		return fmt.Errorf("sink: play called before OutputNew")
	}
	if block == nil || len(block.Audio) == 0 {
		return nil
	}
	if bytesPerFrame == 0 {
		return fmt.Errorf("sink: zero bytes/frame, format not negotiated")
	}
	frames := len(block.Audio) / bytesPerFrame
	if frames == 0 {
		return nil
	}
	return stream.Write(frames, block.Audio[:frames*bytesPerFrame])
}

// Flush is a no-op: PortAudio's Go binding exposes no explicit
// discard-buffered-samples call distinct from stop/restart, so samples
// already written to the stream still play out after a flush.
func (s *PortAudio) Flush() error {
	return nil
}

// Close stops and releases the device stream.
func (s *PortAudio) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *PortAudio) closeLocked() error {
	if s.stream == nil {
		return nil
	}
	stream := s.stream
	s.stream = nil
	if err := stream.StopStream(); err != nil {
		slog.Warn("sink: stop stream failed", "error", err)
	}
	return stream.Close()
}
