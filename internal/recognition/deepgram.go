package recognition

import (
	"context"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/talk2me/session-gateway/internal/audio"
	"github.com/talk2me/session-gateway/internal/config"
	"github.com/talk2me/session-gateway/internal/observability"
	"github.com/talk2me/session-gateway/internal/resilience"
)

// messageCallbackHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the methods we need.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
}

func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if m.errorHandler != nil {
		return m.errorHandler(errorResponse)
	}
	return m.DefaultCallbackHandler.Error(errorResponse)
}

// Deepgram implements Recognizer using Deepgram's streaming API. One
// websocket connection is held for the lifetime of the voice session;
// Start/Stop mark capture windows within it.
type Deepgram struct {
	cfg     *config.Config
	log     zerolog.Logger
	onFinal FinalizedFunc
	breaker *resilience.CircuitBreaker

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	client    *listenClient.WSCallback
	connected bool
	capturing bool
	cap       *capture
	vad       *audio.Detector
}

// NewDeepgram creates a Deepgram streaming recognizer. The finalized
// callback fires exactly once per capture window.
func NewDeepgram(cfg *config.Config, log zerolog.Logger, onFinal FinalizedFunc) *Deepgram {
	ctx, cancel := context.WithCancel(context.Background())

	return &Deepgram{
		cfg:     cfg,
		log:     log.With().Str("component", "recognition").Logger(),
		onFinal: onFinal,
		breaker: resilience.NewCircuitBreaker(
			"deepgram",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		ctx:    ctx,
		cancel: cancel,
		vad: audio.NewDetector(&audio.VADConfig{
			EnergyThreshold: cfg.VADEnergyThreshold,
			SilenceFrames:   cfg.VADSilenceFrames,
			FrameSize:       cfg.MicSampleRate / 50, // 20ms frames
		}),
	}
}

// Available reports whether an API key is configured.
func (d *Deepgram) Available() bool {
	return d.cfg.VoiceEnabled()
}

// Start opens a capture window, connecting to Deepgram on first use.
func (d *Deepgram) Start(ctx context.Context) error {
	if !d.Available() {
		return ErrUnavailable
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capturing {
		return ErrCapturing
	}

	if !d.connected {
		err := resilience.Retry(d.connectLocked, &resilience.RetryConfig{
			MaxAttempts:       d.cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(d.cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		}, resilience.IsRetryableNetworkError)
		if err != nil {
			return fmt.Errorf("failed to connect to deepgram: %w", err)
		}
	}

	d.capturing = true
	d.cap = newCapture()
	d.vad.Reset()
	d.breaker.RecordResult(true)
	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.GetState()))
	d.log.Debug().Msg("Capture window opened")
	return nil
}

// connectLocked establishes the streaming connection. Caller holds d.mu.
func (d *Deepgram) connectLocked() error {
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.DeepgramModel,
		Language:       d.cfg.DeepgramLanguage,
		Punctuate:      true,
		InterimResults: false,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     d.cfg.MicSampleRate,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                d.handleMessage,
		errorHandler:           d.handleStreamError,
	}

	client, err := listenClient.NewWSUsingCallback(
		d.ctx,
		d.cfg.DeepgramAPIKey,
		nil, // default client options
		tOptions,
		callback,
	)
	if err != nil {
		return fmt.Errorf("failed to create deepgram client: %w", err)
	}

	d.client = client
	d.connected = true
	d.log.Info().
		Str("model", d.cfg.DeepgramModel).
		Str("language", d.cfg.DeepgramLanguage).
		Msg("Deepgram streaming connection established")
	return nil
}

// Feed forwards a microphone chunk to Deepgram and runs local silence
// detection as a backup end-of-speech signal.
func (d *Deepgram) Feed(pcm []byte) error {
	d.mu.Lock()
	capturing := d.capturing
	client := d.client
	d.mu.Unlock()

	if !capturing || client == nil {
		return nil // Not recording; drop the chunk
	}

	err := d.breaker.Call(func() error {
		_, werr := client.Write(pcm)
		return werr
	})
	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
		return fmt.Errorf("failed to send audio to deepgram: %w", err)
	}

	d.detectSilence(pcm)
	return nil
}

// detectSilence runs the VAD over 20ms frames and ends the capture after
// sustained silence, mirroring the provider's own utterance-end signal.
func (d *Deepgram) detectSilence(pcm []byte) {
	samples, err := audio.SamplesFromLE(pcm)
	if err != nil {
		return
	}

	frame := d.cfg.MicSampleRate / 50
	for off := 0; off+frame <= len(samples); off += frame {
		_, _, ended := d.vad.ProcessFrame(samples[off : off+frame])
		if ended {
			d.log.Debug().Msg("Local VAD detected end of speech")
			d.finalize()
			return
		}
	}
}

// handleMessage processes transcription messages from Deepgram.
func (d *Deepgram) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "UtteranceEnd":
		d.log.Debug().Msg("Deepgram utterance ended")
		d.finalize()

	case "SpeechStarted", "Metadata":
		// informational only

	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" || !msg.IsFinal {
			return // Interim results are ignored
		}

		d.mu.Lock()
		c := d.cap
		d.mu.Unlock()
		if c != nil {
			c.add(alt.Transcript)
			d.log.Debug().Str("fragment", alt.Transcript).Msg("Final transcript fragment")
		}

	default:
		d.log.Debug().Str("type", msg.Type).Msg("Unhandled Deepgram message type")
	}
}

// handleStreamError treats a stream error as an implicit stop: whatever
// was accumulated so far is finalized, and the connection is re-established
// in the background for the next capture.
func (d *Deepgram) handleStreamError(errorResponse *msginterfaces.ErrorResponse) error {
	d.log.Warn().Interface("error", errorResponse).Msg("Deepgram stream error")
	d.breaker.RecordResult(false)
	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.GetState()))
	observability.IncrementCircuitBreakerFailures("deepgram")

	d.mu.Lock()
	d.connected = false
	d.client = nil
	d.mu.Unlock()

	d.finalize()

	go d.reconnect()
	return nil
}

// reconnect re-establishes the streaming connection in the background so
// the next capture window does not pay the connect cost.
func (d *Deepgram) reconnect() {
	err := resilience.Reconnect(d.ctx, func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.connected {
			return nil
		}
		return d.connectLocked()
	}, &resilience.ReconnectConfig{
		MaxAttempts: d.cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(d.cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	})
	if err != nil {
		d.log.Error().Err(err).Msg("Failed to reconnect to Deepgram")
	}
}

// Stop closes the capture window early.
func (d *Deepgram) Stop() {
	d.finalize()
}

// finalize closes the current capture window, if any, and delivers the
// accumulated utterance. Safe to call from any of the end-of-speech paths;
// only the first call per window has an effect.
func (d *Deepgram) finalize() {
	d.mu.Lock()
	if !d.capturing || d.cap == nil {
		d.mu.Unlock()
		return
	}
	d.capturing = false
	c := d.cap
	d.cap = nil
	d.mu.Unlock()

	text, first := c.finish()
	if !first {
		return
	}

	d.log.Debug().Str("utterance", text).Msg("Capture finalized")
	if d.onFinal != nil {
		d.onFinal(text)
	}
}

// Close tears down the recognizer and its connection.
func (d *Deepgram) Close() error {
	d.cancel()
	d.finalize()

	d.mu.Lock()
	client := d.client
	d.client = nil
	d.connected = false
	d.mu.Unlock()

	if client != nil {
		client.Finish()
	}
	return nil
}
