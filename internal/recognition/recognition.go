// Package recognition wraps continuous speech-to-text capture. A capture
// window opens with Start and closes with Stop or an adapter-internal
// end-of-speech condition; either way exactly one finalized callback fires
// with the accumulated utterance, possibly empty.
package recognition

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no speech backend is configured.
var ErrUnavailable = errors.New("speech recognition is not available")

// ErrCapturing is returned when Start is called during an open capture.
var ErrCapturing = errors.New("a capture is already in progress")

// FinalizedFunc receives the accumulated utterance for one capture.
type FinalizedFunc func(text string)

// Recognizer is the capability interface for speech-to-text capture.
type Recognizer interface {
	// Available reports whether a speech backend is configured. When it
	// returns false the caller must degrade to text-only, not crash.
	Available() bool

	// Start opens a capture window. Returns ErrCapturing if one is open.
	Start(ctx context.Context) error

	// Feed forwards a LINEAR16 microphone chunk into the open capture.
	// Chunks fed outside a capture window are dropped.
	Feed(pcm []byte) error

	// Stop closes the capture window early. The accumulated text so far
	// is still delivered through the finalized callback.
	Stop()

	// Close releases the recognizer and its backend connection.
	Close() error
}

// Null is the recognizer used when no speech backend is configured.
type Null struct{}

func (Null) Available() bool             { return false }
func (Null) Start(context.Context) error { return ErrUnavailable }
func (Null) Feed([]byte) error           { return nil }
func (Null) Stop()                       {}
func (Null) Close() error                { return nil }
