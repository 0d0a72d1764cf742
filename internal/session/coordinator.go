// Package session multiplexes a continuous microphone capture stream and
// an inbound event stream over one realtime connection. The Coordinator
// owns the session lifecycle; the producer and consumer are its two
// background tasks, one per direction of the duplex channel.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/streamscribe/internal/audio"
	"github.com/lexiqai/streamscribe/internal/config"
	"github.com/lexiqai/streamscribe/internal/events"
	"github.com/lexiqai/streamscribe/internal/observability"
	"github.com/lexiqai/streamscribe/internal/transport"
)

// Transport is the duplex connection the session streams over.
// Implementations must allow one concurrent sender and one concurrent
// receiver, with Close safe from any goroutine.
type Transport interface {
	SendSessionUpdate(transport.SessionSettings) error
	Send(transport.AudioFrame) error
	Receive() ([]byte, error)
	Close() error
}

// Handler receives every decoded inbound event in receipt order.
// A returned error is logged and does not end the session.
type Handler func(events.Event) error

// DialFunc opens the session transport
type DialFunc func(ctx context.Context) (Transport, error)

// State is the coordinator lifecycle state
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Coordinator runs one streaming session end to end: it opens the
// transport, sends the session configuration, starts the capture producer
// and event consumer together, and guarantees that both tasks, the audio
// device, and the transport are released on every exit path.
type Coordinator struct {
	cfg     *config.Config
	device  audio.Device
	handler Handler
	dial    DialFunc

	sessionID string
	logger    zerolog.Logger

	state    atomic.Int32
	stop     chan struct{}
	stopOnce atomic.Bool
}

// New creates a coordinator for one session. Each session gets its own
// Coordinator; Run may be called at most once.
func New(cfg *config.Config, device audio.Device, handler Handler) *Coordinator {
	sessionID := observability.NewSessionID()
	logger := observability.WithSessionID(sessionID)

	c := &Coordinator{
		cfg:       cfg,
		device:    device,
		handler:   handler,
		sessionID: sessionID,
		logger:    logger,
		stop:      make(chan struct{}),
	}
	c.dial = func(ctx context.Context) (Transport, error) {
		return transport.Dial(ctx, transport.DialConfig{
			Endpoint:     cfg.Endpoint,
			Deployment:   cfg.Deployment,
			APIVersion:   cfg.APIVersion,
			APIKey:       cfg.APIKey,
			DialTimeout:  time.Duration(cfg.DialTimeout) * time.Second,
			CloseTimeout: time.Duration(cfg.CloseTimeout) * time.Second,
			Logger:       logger,
		})
	}
	return c
}

// SessionID identifies this session in logs
func (c *Coordinator) SessionID() string {
	return c.sessionID
}

// State returns the current lifecycle state
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Stop requests an orderly shutdown. Safe to call from any goroutine,
// any number of times, including before Run.
func (c *Coordinator) Stop() {
	if c.stopOnce.CompareAndSwap(false, true) {
		close(c.stop)
	}
}

// Run executes the session until it ends and returns nil for an orderly
// shutdown (caller stop or server close after data was exchanged) or the
// fatal error that ended it. All resources are released before Run returns.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return errors.New("session already started")
	}
	observability.SetSessionState(int(StateConnecting))
	start := time.Now()

	if err := c.device.Open(); err != nil {
		c.transition(StateFailed)
		observability.RecordSessionEnd(start, true)
		return err
	}

	tr, err := c.dial(ctx)
	if err != nil {
		c.closeDevice()
		c.transition(StateFailed)
		observability.RecordSessionEnd(start, true)
		return err
	}

	if err := tr.SendSessionUpdate(c.sessionSettings()); err != nil {
		_ = tr.Close()
		c.closeDevice()
		c.transition(StateFailed)
		observability.RecordSessionEnd(start, true)
		return fmt.Errorf("sending session configuration: %w", err)
	}

	c.transition(StateStreaming)
	c.logger.Info().
		Str("deployment", c.cfg.Deployment).
		Str("language", c.cfg.Language).
		Int("sample_rate", c.cfg.SampleRate).
		Msg("session streaming")

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	prod := &producer{device: c.device, tr: tr, logger: c.logger}
	cons := &consumer{tr: tr, handler: c.handler, logger: c.logger}

	results := make(chan error, 2)
	go func() { results <- prod.run(taskCtx) }()
	go func() { results <- cons.run() }()

	// Streaming ends on the first of: caller stop, context cancellation,
	// or either task finishing (failure or transport closure)
	received := 0
	var taskErrs []error
	requested := false
	select {
	case <-c.stop:
		requested = true
	case <-ctx.Done():
		requested = true
	case err := <-results:
		received++
		taskErrs = append(taskErrs, err)
	}

	c.transition(StateClosing)
	cancel()
	_ = tr.Close() // Unblocks the parked Receive and any in-flight Send

	for ; received < 2; received++ {
		taskErrs = append(taskErrs, <-results)
	}
	c.closeDevice()

	cause := classify(taskErrs)
	if cause == nil && !requested && prod.frames.Load() == 0 && cons.events.Load() == 0 {
		// A disconnect before any data moved is a failure, not an
		// orderly end-of-stream
		cause = fmt.Errorf("connection closed before any data was exchanged: %w", transport.ErrTransportClosed)
	}

	if cause != nil {
		c.transition(StateFailed)
		observability.RecordSessionEnd(start, true)
		return cause
	}

	c.transition(StateClosed)
	observability.RecordSessionEnd(start, false)
	c.logger.Info().
		Uint64("frames_sent", prod.frames.Load()).
		Uint64("events_received", cons.events.Load()).
		Dur("duration", time.Since(start)).
		Msg("session closed")
	return nil
}

// classify picks the error that should surface: device and transport
// faults are fatal; an orderly transport closure is not
func classify(errs []error) error {
	for _, err := range errs {
		if err == nil || errors.Is(err, transport.ErrTransportClosed) {
			continue
		}
		return err
	}
	return nil
}

func (c *Coordinator) sessionSettings() transport.SessionSettings {
	return transport.SessionSettings{
		Model:          c.cfg.Deployment,
		AudioFormat:    "pcm16",
		SampleRate:     c.cfg.SampleRate,
		Language:       c.cfg.Language,
		Prompt:         c.cfg.Prompt,
		NoiseReduction: c.cfg.NoiseReduction,
		VADThreshold:   c.cfg.VADThreshold,
		VADPrefixMs:    c.cfg.VADPrefixMs,
		VADSilenceMs:   c.cfg.VADSilenceMs,
	}
}

func (c *Coordinator) closeDevice() {
	if err := c.device.Close(); err != nil {
		observability.RecordError("device")
		c.logger.Warn().Err(err).Msg("device close failed")
	}
}

func (c *Coordinator) transition(to State) {
	from := State(c.state.Swap(int32(to)))
	observability.SetSessionState(int(to))
	c.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("session state change")
}
