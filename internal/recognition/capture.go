package recognition

import (
	"strings"
	"sync"
)

// capture accumulates finalized transcript fragments for one recording
// window. Interim results never reach it; successive final fragments are
// concatenated. finish may be called from several paths (explicit stop,
// provider utterance end, VAD silence, stream error) but only the first
// call wins.
type capture struct {
	mu        sync.Mutex
	fragments []string
	done      bool
}

func newCapture() *capture {
	return &capture{}
}

// add appends a finalized fragment. Fragments arriving after finish are
// dropped; they belong to no capture.
func (c *capture) add(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.fragments = append(c.fragments, text)
}

// finish closes the capture and returns the accumulated utterance. The
// second return is false if the capture was already finished.
func (c *capture) finish() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return "", false
	}
	c.done = true
	return strings.Join(c.fragments, " "), true
}
