// Package events decodes server-sent messages from the realtime
// transcription API into a closed set of typed events.
//
// The wire schema is vendor-owned and has changed between API previews,
// so anything that fails to decode or carries an unrecognized type is
// surfaced as Unknown rather than dropped.
package events

import "encoding/json"

// Wire discriminators for recognized server event types
const (
	TypeTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	TypeTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeResponseTextDelta      = "response.text.delta"
	TypeResponseTextDone       = "response.text.done"
	TypeError                  = "error"
	TypeUnknown                = "unknown"
)

// Event is a decoded server-sent message
type Event interface {
	// Type returns the wire discriminator, or "unknown" for unrecognized payloads
	Type() string
}

// TranscriptionDelta is a partial piece of recognized speech text
type TranscriptionDelta struct {
	ItemID string
	Delta  string
}

func (TranscriptionDelta) Type() string { return TypeTranscriptionDelta }

// TranscriptionCompleted carries the full transcript of a finished item
type TranscriptionCompleted struct {
	ItemID     string
	Transcript string
}

func (TranscriptionCompleted) Type() string { return TypeTranscriptionCompleted }

// ResponseTextDelta is a partial piece of model response text
type ResponseTextDelta struct {
	Delta string
}

func (ResponseTextDelta) Type() string { return TypeResponseTextDelta }

// ResponseTextDone carries the complete model response text
type ResponseTextDone struct {
	Text string
}

func (ResponseTextDone) Type() string { return TypeResponseTextDone }

// ErrorEvent is an application-level error reported by the API
type ErrorEvent struct {
	Code    string
	Message string
}

func (ErrorEvent) Type() string { return TypeError }

// Unknown wraps any message that could not be decoded into a recognized
// event, preserving the raw payload for logging and debugging
type Unknown struct {
	Raw json.RawMessage
}

func (Unknown) Type() string { return TypeUnknown }

// envelope covers the union of fields across recognized event types.
// The error payload appears both nested and flat depending on API version.
type envelope struct {
	Type       string        `json:"type"`
	ItemID     string        `json:"item_id"`
	Delta      string        `json:"delta"`
	Transcript string        `json:"transcript"`
	Text       string        `json:"text"`
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Error      *errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Parse decodes one raw server message into an Event. It never fails:
// malformed JSON and unrecognized or missing type fields produce Unknown.
func Parse(raw []byte) Event {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Unknown{Raw: cloneRaw(raw)}
	}

	switch env.Type {
	case TypeTranscriptionDelta:
		return TranscriptionDelta{ItemID: env.ItemID, Delta: env.Delta}
	case TypeTranscriptionCompleted:
		return TranscriptionCompleted{ItemID: env.ItemID, Transcript: env.Transcript}
	case TypeResponseTextDelta:
		return ResponseTextDelta{Delta: env.Delta}
	case TypeResponseTextDone:
		return ResponseTextDone{Text: env.Text}
	case TypeError:
		if env.Error != nil {
			return ErrorEvent{Code: env.Error.Code, Message: env.Error.Message}
		}
		return ErrorEvent{Code: env.Code, Message: env.Message}
	default:
		return Unknown{Raw: cloneRaw(raw)}
	}
}

// cloneRaw copies the payload so Unknown events stay valid after the
// transport reuses its read buffer
func cloneRaw(raw []byte) json.RawMessage {
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
