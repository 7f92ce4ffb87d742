package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/talk2me/session-gateway/internal/audio"
)

// ErrBusy is returned when a clip is requested while another is playing.
// Playback is not preempted; the caller decides whether to drop or queue.
var ErrBusy = errors.New("playback: clip already playing")

const frameDuration = 20 * time.Millisecond

// Clip is a decoded audio clip ready for playback.
type Clip struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the wall-clock length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// DecodeClip decodes a base64 LINEAR16 payload into a playable clip.
func DecodeClip(payload string, sampleRate int) (Clip, error) {
	samples, err := audio.DecodeBase64PCM(payload)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Samples: samples, SampleRate: sampleRate}, nil
}

// FrameSink receives paced playback frames. The gateway implements this
// by forwarding frames to the browser.
type FrameSink interface {
	WriteFrame(pcm []byte) error
	FlushTail()
}

// Player plays one clip at a time to completion.
type Player interface {
	Play(clip Clip) error
	Busy() bool
	Stop()
	Close() error
}

// SinkPlayer paces a clip through a ring buffer to a FrameSink in 20ms
// LINEAR16 frames, approximating real-time playback from the server side.
type SinkPlayer struct {
	sink       FrameSink
	log        zerolog.Logger
	onStarted  func()
	onFinished func()

	mu      sync.Mutex
	busy    bool
	buf     *audio.RingBuffer
	cancel  chan struct{}
	closed  bool
	wg      sync.WaitGroup
	tickDur time.Duration
}

// NewSinkPlayer creates a player that delivers frames to sink. The started
// and finished callbacks may be nil.
func NewSinkPlayer(sink FrameSink, bufferSize int, log zerolog.Logger, onStarted, onFinished func()) *SinkPlayer {
	return &SinkPlayer{
		sink:       sink,
		log:        log.With().Str("component", "playback").Logger(),
		onStarted:  onStarted,
		onFinished: onFinished,
		buf:        audio.NewRingBuffer(bufferSize),
		tickDur:    frameDuration,
	}
}

// frameBytes returns the byte size of one 20ms LINEAR16 frame at the
// given sample rate.
func frameBytes(sampleRate int) int {
	return sampleRate / 50 * 2
}

// Play begins playback of the clip. Returns ErrBusy if a clip is already
// playing; playback is never preempted.
func (p *SinkPlayer) Play(clip Clip) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("playback: player closed")
	}
	if p.busy {
		p.mu.Unlock()
		return ErrBusy
	}
	p.busy = true
	p.cancel = make(chan struct{})
	cancel := p.cancel
	p.buf.Clear()
	p.mu.Unlock()

	if p.onStarted != nil {
		p.onStarted()
	}

	p.log.Debug().
		Int("samples", len(clip.Samples)).
		Int("sample_rate", clip.SampleRate).
		Dur("duration", clip.Duration()).
		Msg("Playback started")

	p.wg.Add(1)
	go p.pace(clip, cancel)
	return nil
}

// pace streams the clip to the sink one frame per tick until the clip is
// exhausted or playback is stopped.
func (p *SinkPlayer) pace(clip Clip, cancel chan struct{}) {
	defer p.wg.Done()
	defer p.finish()

	data := audio.LEFromSamples(clip.Samples)
	frame := frameBytes(clip.SampleRate)
	if frame <= 0 {
		return
	}

	ticker := time.NewTicker(p.tickDur)
	defer ticker.Stop()

	for off := 0; off < len(data); {
		select {
		case <-cancel:
			return
		case <-ticker.C:
		}

		end := off + frame
		if end > len(data) {
			end = len(data)
		}

		// Stage through the ring buffer so partial sink writes do not
		// lose audio between ticks.
		p.buf.Write(data[off:end])
		chunk := make([]byte, p.buf.Available())
		n := p.buf.Read(chunk)
		if err := p.sink.WriteFrame(chunk[:n]); err != nil {
			p.log.Warn().Err(err).Msg("Frame sink write failed, abandoning clip")
			return
		}
		off = end
	}

	p.sink.FlushTail()
}

func (p *SinkPlayer) finish() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()

	p.log.Debug().Msg("Playback finished")
	if p.onFinished != nil {
		p.onFinished()
	}
}

// Busy reports whether a clip is currently playing.
func (p *SinkPlayer) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// Stop abandons the current clip, if any. The finished callback still
// fires so state tracking stays consistent.
func (p *SinkPlayer) Stop() {
	p.mu.Lock()
	if p.busy && p.cancel != nil {
		close(p.cancel)
		p.cancel = nil
	}
	p.mu.Unlock()
}

// Close stops playback and waits for the pacing goroutine to exit.
func (p *SinkPlayer) Close() error {
	p.mu.Lock()
	p.closed = true
	if p.busy && p.cancel != nil {
		close(p.cancel)
		p.cancel = nil
	}
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}
