package session

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lexiqai/streamscribe/internal/audio"
	"github.com/lexiqai/streamscribe/internal/observability"
	"github.com/lexiqai/streamscribe/internal/transport"
)

// producer pulls fixed-size chunks from the capture device and forwards
// them in capture order. It blocks on Send rather than dropping frames:
// transcription correctness depends on receiving every frame, so added
// latency is preferred over data loss.
type producer struct {
	device audio.Device
	tr     Transport
	logger zerolog.Logger

	frames atomic.Uint64
}

// run loops until cancelled, the transport closes, or the device fails.
// Device failures are returned for escalation; a closed transport returns
// ErrTransportClosed so the coordinator can classify the shutdown.
func (p *producer) run(ctx context.Context) error {
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		chunk, err := p.device.ReadChunk()
		if err != nil {
			if ctx.Err() != nil {
				// Read interrupted by shutdown, not a device fault
				return nil
			}
			observability.RecordError("device")
			p.logger.Error().Err(err).Msg("device read failed")
			return err
		}

		frame := transport.AudioFrame{Seq: seq, Data: chunk}
		if err := p.tr.Send(frame); err != nil {
			if errors.Is(err, transport.ErrTransportClosed) {
				return err
			}
			observability.RecordError("transport")
			p.logger.Error().Err(err).Uint64("seq", seq).Msg("frame send failed")
			return err
		}

		seq++
		p.frames.Add(1)
		observability.RecordFrameSent(len(chunk))
	}
}
