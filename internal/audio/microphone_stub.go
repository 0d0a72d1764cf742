//go:build !portaudio
// +build !portaudio

package audio

import "errors"

// Microphone stub when portaudio is not available
type Microphone struct{}

func NewMicrophone(sampleRate, chunkBytes int) *Microphone {
	return &Microphone{}
}

func (m *Microphone) Open() error {
	return &DeviceError{Op: "open", Err: errors.New("microphone not available: rebuild with -tags portaudio")}
}

func (m *Microphone) ReadChunk() ([]byte, error) {
	return nil, &DeviceError{Op: "read", Err: errors.New("microphone not available")}
}

func (m *Microphone) Close() error {
	return nil
}
