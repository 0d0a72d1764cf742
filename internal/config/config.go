package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the streamscribe service
type Config struct {
	// Azure OpenAI realtime API configuration
	Endpoint   string `envconfig:"AZURE_OPENAI_STT_TTS_ENDPOINT" required:"true"` // https://<resource>.openai.azure.com
	APIKey     string `envconfig:"AZURE_OPENAI_STT_TTS_KEY" required:"true"`
	Deployment string `envconfig:"DEPLOYMENT_NAME" default:"gpt-4o-mini-transcribe"`
	APIVersion string `envconfig:"API_VERSION" default:"2025-04-01-preview"`

	// Transcription session configuration
	Language       string  `envconfig:"TRANSCRIPTION_LANGUAGE" default:"en"`   // Language hint (en, es, fr, etc.)
	Prompt         string  `envconfig:"TRANSCRIPTION_PROMPT" default:""`       // Optional model prompt
	NoiseReduction string  `envconfig:"NOISE_REDUCTION" default:"near_field"`  // near_field, far_field, or empty to disable
	VADThreshold   float64 `envconfig:"VAD_THRESHOLD" default:"0.5"`           // Server VAD sensitivity
	VADPrefixMs    int     `envconfig:"VAD_PREFIX_PADDING_MS" default:"300"`   // Audio kept before detected speech
	VADSilenceMs   int     `envconfig:"VAD_SILENCE_DURATION_MS" default:"200"` // Silence that ends a turn

	// Audio capture configuration (16-bit PCM mono)
	SampleRate int `envconfig:"SAMPLE_RATE" default:"24000"` // Hz
	ChunkBytes int `envconfig:"CHUNK_BYTES" default:"2048"`  // Bytes per frame (1024 samples at 16-bit)

	// Transport configuration
	DialTimeout  int `envconfig:"DIAL_TIMEOUT" default:"15"` // Handshake timeout in seconds
	CloseTimeout int `envconfig:"CLOSE_TIMEOUT" default:"5"` // Close frame write timeout in seconds

	// Resilience configuration (session-level reconnect; a session itself never retries)
	ReconnectMaxAttempts int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"0"` // 0 disables reconnection
	ReconnectBackoff     int `envconfig:"RECONNECT_BACKOFF" default:"1000"`   // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`        // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`      // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"false"` // Enable Prometheus metrics endpoint
	MetricsAddr    string `envconfig:"METRICS_ADDR" default:":9090"`    // Metrics/health listen address
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("AZURE_OPENAI_STT_TTS_ENDPOINT is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("AZURE_OPENAI_STT_TTS_KEY is required")
	}
	if !strings.HasPrefix(c.Endpoint, "https://") && !strings.HasPrefix(c.Endpoint, "wss://") {
		return fmt.Errorf("endpoint must use https or wss scheme, got %q", c.Endpoint)
	}
	if c.Deployment == "" {
		return fmt.Errorf("DEPLOYMENT_NAME must not be empty")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	if c.ChunkBytes <= 0 || c.ChunkBytes%2 != 0 {
		return fmt.Errorf("CHUNK_BYTES must be a positive even number (16-bit samples), got %d", c.ChunkBytes)
	}
	return nil
}
