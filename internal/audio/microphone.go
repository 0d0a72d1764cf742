//go:build portaudio
// +build portaudio

package audio

import (
	"encoding/binary"
	"errors"

	"github.com/gordonklaus/portaudio"
)

// driverFrames is the fixed portaudio buffer size in samples. The ring
// buffer decouples it from the session's configured chunk size.
const driverFrames = 1024

// Microphone captures 16-bit PCM mono from the default input device
type Microphone struct {
	sampleRate int
	chunkBytes int

	stream *portaudio.Stream
	frames []int16
	ring   *RingBuffer
	opened bool
}

// NewMicrophone creates a microphone device. chunkBytes is the size of
// every chunk returned by ReadChunk and must be even (16-bit samples).
func NewMicrophone(sampleRate, chunkBytes int) *Microphone {
	return &Microphone{
		sampleRate: sampleRate,
		chunkBytes: chunkBytes,
		frames:     make([]int16, driverFrames),
		// Room for one full chunk plus one driver buffer in flight
		ring: NewRingBuffer(chunkBytes + driverFrames*2 + 1),
	}
}

func (m *Microphone) Open() error {
	if err := portaudio.Initialize(); err != nil {
		return &DeviceError{Op: "open", Err: err}
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), driverFrames, m.frames)
	if err != nil {
		portaudio.Terminate()
		return &DeviceError{Op: "open", Err: err}
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return &DeviceError{Op: "open", Err: err}
	}

	m.stream = stream
	m.opened = true
	return nil
}

// ReadChunk blocks until chunkBytes of PCM are captured, accumulating
// driver buffers in the ring until a full chunk is available
func (m *Microphone) ReadChunk() ([]byte, error) {
	if !m.opened {
		return nil, &DeviceError{Op: "read", Err: errors.New("device not open")}
	}

	for m.ring.Available() < m.chunkBytes {
		if err := m.stream.Read(); err != nil {
			return nil, &DeviceError{Op: "read", Err: err}
		}
		m.ring.Write(samplesToBytes(m.frames))
	}

	chunk := make([]byte, m.chunkBytes)
	m.ring.Read(chunk)
	return chunk, nil
}

func (m *Microphone) Close() error {
	if !m.opened {
		return nil
	}
	m.opened = false

	var firstErr error
	if err := m.stream.Stop(); err != nil {
		firstErr = err
	}
	if err := m.stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return &DeviceError{Op: "close", Err: firstErr}
	}
	return nil
}

// samplesToBytes converts int16 samples to little-endian PCM bytes
func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
