package session

import (
	"time"

	"github.com/talk2me/session-gateway/internal/dialogue"
	"github.com/talk2me/session-gateway/internal/transcript"
)

// UISink receives state changes the user should see. The gateway
// implements it by writing frames to the browser; tests implement it
// with a recorder. The controller calls it from its event loop only,
// so implementations need no internal ordering.
type UISink interface {
	// TranscriptChanged delivers a full snapshot after any append or reset.
	TranscriptChanged(messages []transcript.Message)

	// TypingIndicator reports whether a dialogue exchange is outstanding.
	TypingIndicator(active bool)

	// RecordingChanged reports the controller's view of the microphone.
	RecordingChanged(active bool)

	// BannerShown presents an appointment proposal. A second call before
	// BannerHidden replaces the displayed proposal.
	BannerShown(proposed time.Time)
	BannerHidden()

	// SaveStateChanged reports save flow progress.
	SaveStateChanged(state SaveState)

	// ModeOptions reports which input modes may be offered.
	ModeOptions(voiceAvailable bool)

	// AppointmentsListed delivers the user's upcoming appointments,
	// fetched once per session open.
	AppointmentsListed(appointments []dialogue.Appointment)

	// CalendarReady delivers a calendar artifact for download.
	CalendarReady(filename string, ics []byte)

	// SessionEnded reports explicit sign-out.
	SessionEnded()
}
