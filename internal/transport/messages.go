package transport

// Outbound wire messages for the realtime transcription API.
// Shapes follow the 2025-04-01-preview API; the vendor treats these as
// unstable across preview versions.

// AudioFrame is one fixed-size PCM chunk tagged with its capture order.
// Frames are ephemeral: the transport encodes and forgets them.
type AudioFrame struct {
	Seq  uint64
	Data []byte
}

// SessionSettings configures the transcription session sent once after connect
type SessionSettings struct {
	Model          string  // Deployment/model name
	AudioFormat    string  // e.g. "pcm16"
	SampleRate     int     // Capture rate in Hz; informational, pcm16 implies 24kHz
	Language       string  // Transcription language hint
	Prompt         string  // Optional model prompt
	NoiseReduction string  // "near_field", "far_field", or "" to disable
	VADThreshold   float64 // Server VAD sensitivity
	VADPrefixMs    int     // Audio kept before detected speech
	VADSilenceMs   int     // Silence that ends a turn
}

type sessionUpdateMessage struct {
	Type    string         `json:"type"`
	Session sessionPayload `json:"session"`
}

type sessionPayload struct {
	InputAudioFormat         string                 `json:"input_audio_format"`
	InputAudioTranscription  transcriptionPayload   `json:"input_audio_transcription"`
	InputAudioNoiseReduction *noiseReductionPayload `json:"input_audio_noise_reduction,omitempty"`
	TurnDetection            *turnDetectionPayload  `json:"turn_detection,omitempty"`
}

type transcriptionPayload struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt,omitempty"`
	Language string `json:"language,omitempty"`
}

type noiseReductionPayload struct {
	Type string `json:"type"`
}

type turnDetectionPayload struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

type audioAppendMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // Base64-encoded PCM bytes
}

const (
	msgTypeSessionUpdate = "transcription_session.update"
	msgTypeAudioAppend   = "input_audio_buffer.append"
)

func newSessionUpdateMessage(s SessionSettings) sessionUpdateMessage {
	msg := sessionUpdateMessage{
		Type: msgTypeSessionUpdate,
		Session: sessionPayload{
			InputAudioFormat: s.AudioFormat,
			InputAudioTranscription: transcriptionPayload{
				Model:    s.Model,
				Prompt:   s.Prompt,
				Language: s.Language,
			},
		},
	}
	if s.NoiseReduction != "" {
		msg.Session.InputAudioNoiseReduction = &noiseReductionPayload{Type: s.NoiseReduction}
	}
	if s.VADThreshold > 0 {
		msg.Session.TurnDetection = &turnDetectionPayload{
			Type:              "server_vad",
			Threshold:         s.VADThreshold,
			PrefixPaddingMS:   s.VADPrefixMs,
			SilenceDurationMS: s.VADSilenceMs,
		}
	}
	return msg
}
