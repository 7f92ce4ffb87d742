package audio

// VADConfig holds configuration for voice activity detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Consecutive silence frames to mark end of speech
	FrameSize       int     // Samples per frame (320 for 16kHz = 20ms)
}

// DefaultVADConfig returns a default VAD configuration for 16 kHz capture
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   50, // 1s of silence (50 frames * 20ms)
		FrameSize:       320, // 20ms at 16kHz
	}
}

// Detector performs voice activity detection on microphone frames. The
// recognition adapter uses it as a local end-of-speech signal in addition
// to the provider's own utterance-end events.
type Detector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewDetector creates a new VAD detector
func NewDetector(config *VADConfig) *Detector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &Detector{config: config}
}

// ProcessFrame processes an audio frame.
// Returns: (isSpeaking, speechStarted, speechEnded)
func (v *Detector) ProcessFrame(samples []int16) (bool, bool, bool) {
	rms := CalculateRMS(samples)
	frameHasSpeech := rms > v.config.EnergyThreshold

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		v.silenceCounter = 0
		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// Reset resets the detector state
func (v *Detector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *Detector) IsSpeaking() bool {
	return v.isSpeaking
}
