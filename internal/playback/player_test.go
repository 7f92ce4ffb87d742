package playback

import (
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type collectSink struct {
	mu      sync.Mutex
	frames  [][]byte
	flushed bool
}

func (s *collectSink) WriteFrame(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	s.frames = append(s.frames, buf)
	return nil
}

func (s *collectSink) FlushTail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = true
}

func (s *collectSink) totalBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.frames {
		n += len(f)
	}
	return n
}

func newTestPlayer(sink FrameSink, onStarted, onFinished func()) *SinkPlayer {
	p := NewSinkPlayer(sink, 8192, zerolog.Nop(), onStarted, onFinished)
	p.tickDur = time.Millisecond // keep tests fast
	return p
}

func TestFrameBytes(t *testing.T) {
	tests := []struct {
		sampleRate int
		want       int
	}{
		{48000, 1920}, // 960 samples * 2 bytes
		{16000, 640},
		{8000, 320},
	}

	for _, tt := range tests {
		if got := frameBytes(tt.sampleRate); got != tt.want {
			t.Errorf("frameBytes(%d) = %d, want %d", tt.sampleRate, got, tt.want)
		}
	}
}

func TestDecodeClip(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xFF, 0x7F} // samples 1, 32767
	payload := base64.StdEncoding.EncodeToString(pcm)

	clip, err := DecodeClip(payload, 48000)
	if err != nil {
		t.Fatalf("DecodeClip failed: %v", err)
	}
	if len(clip.Samples) != 2 {
		t.Errorf("expected 2 samples, got %d", len(clip.Samples))
	}
	if clip.Samples[1] != 32767 {
		t.Errorf("expected sample 32767, got %d", clip.Samples[1])
	}
}

func TestDecodeClip_Invalid(t *testing.T) {
	if _, err := DecodeClip("not base64!!!", 48000); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestSinkPlayer_PlayToCompletion(t *testing.T) {
	sink := &collectSink{}

	started := make(chan struct{})
	finished := make(chan struct{})
	p := newTestPlayer(sink,
		func() { close(started) },
		func() { close(finished) },
	)
	defer p.Close()

	clip := Clip{Samples: make([]int16, 480), SampleRate: 16000} // 30ms = 2 frames
	if err := p.Play(clip); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("started callback never fired")
	}

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("finished callback never fired")
	}

	if got := sink.totalBytes(); got != 960 {
		t.Errorf("expected 960 bytes delivered, got %d", got)
	}
	if !sink.flushed {
		t.Error("expected FlushTail after last frame")
	}
	if p.Busy() {
		t.Error("player should be idle after completion")
	}
}

func TestSinkPlayer_BusyRejection(t *testing.T) {
	sink := &collectSink{}

	finished := make(chan struct{})
	p := newTestPlayer(sink, nil, func() { close(finished) })
	defer p.Close()

	long := Clip{Samples: make([]int16, 16000), SampleRate: 16000}
	if err := p.Play(long); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	if err := p.Play(Clip{Samples: make([]int16, 320), SampleRate: 16000}); err != ErrBusy {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	p.Stop()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("finished callback never fired after Stop")
	}
}

func TestSinkPlayer_StopFiresFinished(t *testing.T) {
	sink := &collectSink{}

	var mu sync.Mutex
	finishes := 0
	p := newTestPlayer(sink, nil, func() {
		mu.Lock()
		finishes++
		mu.Unlock()
	})

	clip := Clip{Samples: make([]int16, 48000), SampleRate: 48000}
	if err := p.Play(clip); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	p.Stop()
	p.Close()

	mu.Lock()
	defer mu.Unlock()
	if finishes != 1 {
		t.Errorf("expected exactly one finished callback, got %d", finishes)
	}
}

func TestClip_Duration(t *testing.T) {
	clip := Clip{Samples: make([]int16, 48000), SampleRate: 48000}
	if d := clip.Duration(); d != time.Second {
		t.Errorf("expected 1s, got %v", d)
	}

	empty := Clip{}
	if d := empty.Duration(); d != 0 {
		t.Errorf("expected 0 for empty clip, got %v", d)
	}
}
