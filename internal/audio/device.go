// Package audio provides the capture device abstraction and the PCM
// plumbing between the microphone driver and the streaming session.
package audio

import "fmt"

// Device is a fixed-chunk audio capture source. A session opens the
// device once, reads chunks until it stops, and closes it exactly once.
type Device interface {
	// Open prepares the device for capture
	Open() error

	// ReadChunk blocks until one full chunk of PCM bytes is available.
	// Every returned chunk has the same length.
	ReadChunk() ([]byte, error)

	// Close releases the device. Safe to call after a failed Open.
	Close() error
}

// DeviceError reports a capture hardware failure. Device errors are
// treated as non-transient (e.g. hardware disconnect) and end the session.
type DeviceError struct {
	Op  string // "open", "read", or "close"
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}
