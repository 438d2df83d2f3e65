package audio

import "github.com/gordonklaus/portaudio"

// Mic wraps PortAudio with a configurable buffer size. The caller owns
// portaudio.Initialize/Terminate.
type Mic struct {
	stream *portaudio.Stream
	buf    []int16
}

// NewMic opens a PortAudio capture stream with the given sample rate and
// buffer size (in frames).
func NewMic(sampleRate, framesPerBuffer int) (*Mic, error) {
	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, err
	}
	return &Mic{stream: stream, buf: buf}, nil
}

func (m *Mic) Start() error { return m.stream.Start() }

// Stop halts capture and releases the device.
func (m *Mic) Stop() error {
	if err := m.stream.Stop(); err != nil {
		_ = m.stream.Close()
		return err
	}
	return m.stream.Close()
}

// Read blocks until the next buffer of samples is available and returns it.
// The returned slice is reused between calls.
func (m *Mic) Read() ([]int16, error) {
	if err := m.stream.Read(); err != nil {
		return nil, err
	}
	return m.buf, nil
}
