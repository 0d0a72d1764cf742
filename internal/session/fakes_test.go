package session

import (
	"errors"
	"sync"
	"time"

	"github.com/lexiqai/streamscribe/internal/audio"
	"github.com/lexiqai/streamscribe/internal/transport"
)

// fakeTransport is an in-memory Transport for session tests
type fakeTransport struct {
	mu       sync.Mutex
	frames   []transport.AudioFrame
	settings []transport.SessionSettings
	sendErr  error

	inbound chan []byte
	closed  chan struct{}

	closeOnce      sync.Once
	physicalCloses int

	// closeAfterUpdate simulates a server that drops the connection
	// right after accepting the session configuration
	closeAfterUpdate bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) SendSessionUpdate(s transport.SessionSettings) error {
	f.mu.Lock()
	f.settings = append(f.settings, s)
	after := f.closeAfterUpdate
	f.mu.Unlock()
	if after {
		f.serverClose()
	}
	return nil
}

func (f *fakeTransport) Send(frame transport.AudioFrame) error {
	select {
	case <-f.closed:
		return transport.ErrTransportClosed
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	// Copy the payload so tests observe what crossed the wire, not
	// whatever the producer's buffer holds later
	data := make([]byte, len(frame.Data))
	copy(data, frame.Data)
	f.frames = append(f.frames, transport.AudioFrame{Seq: frame.Seq, Data: data})
	return nil
}

func (f *fakeTransport) Receive() ([]byte, error) {
	select {
	case raw := <-f.inbound:
		return raw, nil
	case <-f.closed:
		// Drain anything pushed before the close
		select {
		case raw := <-f.inbound:
			return raw, nil
		default:
			return nil, transport.ErrTransportClosed
		}
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.physicalCloses++
		f.mu.Unlock()
		close(f.closed)
	})
	return nil
}

// serverClose simulates the remote side ending the session
func (f *fakeTransport) serverClose() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.physicalCloses++
		f.mu.Unlock()
		close(f.closed)
	})
}

func (f *fakeTransport) push(raw string) {
	f.inbound <- []byte(raw)
}

func (f *fakeTransport) sentFrames() []transport.AudioFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transport.AudioFrame, len(f.frames))
	copy(out, f.frames)
	return out
}

// fakeDevice is a scripted capture device. It plays back its chunks,
// then either fails with finalErr or keeps producing repeat chunks at a
// short cadence, like a real microphone capturing silence.
type fakeDevice struct {
	mu     sync.Mutex
	chunks [][]byte
	idx    int

	finalErr error
	repeat   []byte

	openErr error
	opens   int
	closes  int
	reads   int
}

func (d *fakeDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	return d.openErr
}

func (d *fakeDevice) ReadChunk() ([]byte, error) {
	d.mu.Lock()
	d.reads++
	if d.idx < len(d.chunks) {
		chunk := d.chunks[d.idx]
		d.idx++
		d.mu.Unlock()
		return chunk, nil
	}
	finalErr := d.finalErr
	repeat := d.repeat
	d.mu.Unlock()

	if finalErr != nil {
		return nil, finalErr
	}
	if repeat != nil {
		time.Sleep(2 * time.Millisecond)
		return repeat, nil
	}
	return nil, &audio.DeviceError{Op: "read", Err: errors.New("no more scripted chunks")}
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *fakeDevice) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}
