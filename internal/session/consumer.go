package session

import (
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lexiqai/streamscribe/internal/events"
	"github.com/lexiqai/streamscribe/internal/observability"
	"github.com/lexiqai/streamscribe/internal/transport"
)

// consumer loops on Receive, decodes each message, and invokes the
// caller's handler in receipt order. A single bad event never kills an
// otherwise healthy session: malformed payloads are delivered as Unknown
// and handler errors are logged and absorbed.
type consumer struct {
	tr      Transport
	handler Handler
	logger  zerolog.Logger

	events atomic.Uint64
}

// run loops until the transport closes. Close from any goroutine
// unblocks the parked Receive.
func (c *consumer) run() error {
	for {
		raw, err := c.tr.Receive()
		if err != nil {
			if errors.Is(err, transport.ErrTransportClosed) {
				return err
			}
			observability.RecordError("transport")
			c.logger.Error().Err(err).Msg("receive failed")
			return err
		}

		ev := events.Parse(raw)
		if _, unknown := ev.(events.Unknown); unknown {
			observability.RecordError("decode")
			c.logger.Debug().Str("raw", string(raw)).Msg("unrecognized server message")
		}

		c.events.Add(1)
		observability.RecordEventReceived(ev.Type())

		if err := c.handler(ev); err != nil {
			observability.RecordError("handler")
			c.logger.Warn().Err(err).Str("event_type", ev.Type()).Msg("event handler failed")
		}
	}
}
