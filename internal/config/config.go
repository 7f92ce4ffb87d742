package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the session gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Therapy backend (dialogue agent) base URL, e.g. http://127.0.0.1:5000
	BackendURL string `envconfig:"BACKEND_URL" required:"true"`

	// Bound on a single dialogue turn. The backend models no timeout of its
	// own; without this a hung request would leave the session waiting forever.
	TurnTimeout int `envconfig:"TURN_TIMEOUT" default:"30"` // seconds

	// Deepgram STT configuration. An empty API key disables voice mode
	// rather than failing startup: the gateway then offers text chat only.
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Audio processing configuration
	MicSampleRate      int     `envconfig:"MIC_SAMPLE_RATE" default:"16000"`    // Browser capture rate (Hz)
	TTSSampleRate      int     `envconfig:"TTS_SAMPLE_RATE" default:"48000"`    // Backend LINEAR16 clip rate (Hz)
	AudioBufferSize    int     `envconfig:"AUDIO_BUFFER_SIZE" default:"65536"`  // Playback ring buffer size in bytes
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500"` // RMS energy threshold for VAD
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"50"`    // Frames of silence to end an utterance

	// Appointment times are rendered to the user in this fixed zone.
	AppointmentTimeZone string `envconfig:"APPOINTMENT_TIME_ZONE" default:"America/Los_Angeles"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"` // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables.
// It first attempts to load from a .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load a .env file.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("BACKEND_URL is required")
	}
	if _, err := cfg.AppointmentLocation(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// VoiceEnabled reports whether a speech backend is configured.
func (c *Config) VoiceEnabled() bool {
	return c.DeepgramAPIKey != ""
}

// TurnDeadline returns the per-turn timeout as a duration.
func (c *Config) TurnDeadline() time.Duration {
	return time.Duration(c.TurnTimeout) * time.Second
}

// AppointmentLocation resolves the configured appointment time zone.
func (c *Config) AppointmentLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.AppointmentTimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid APPOINTMENT_TIME_ZONE %q: %w", c.AppointmentTimeZone, err)
	}
	return loc, nil
}
