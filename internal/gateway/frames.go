package gateway

import (
	"time"

	"github.com/talk2me/session-gateway/internal/transcript"
)

// ClientFrame is a JSON frame from the browser.
type ClientFrame struct {
	Type string `json:"type"`

	// select_mode
	Mode string `json:"mode,omitempty"` // "text" or "voice"

	// message
	Text string `json:"text,omitempty"`

	// audio: base64 LINEAR16 microphone chunk
	Chunk string `json:"chunk,omitempty"`

	// appointment_confirm
	Export bool `json:"export,omitempty"`
}

// Client frame types.
const (
	FrameSelectMode        = "select_mode"
	FrameMessage           = "message"
	FrameAudio             = "audio"
	FrameToggleRecording   = "toggle_recording"
	FrameRequestModeChange = "request_mode_change"
	FrameConfirmModeChange = "confirm_mode_change"
	FrameCancelModeChange  = "cancel_mode_change"
	FrameRequestSave       = "request_save"
	FrameConfirmSave       = "confirm_save"
	FrameCancelSave        = "cancel_save"
	FrameRetrySave         = "retry_save"
	FrameEndSession        = "end_session"
	FrameApptConfirm       = "appointment_confirm"
	FrameApptDefer         = "appointment_defer"
	FrameApptExport        = "appointment_export"
)

// ServerFrame is a JSON frame to the browser. Type selects which of the
// optional fields are set.
type ServerFrame struct {
	Type string `json:"type"`

	// transcript
	Messages []MessageFrame `json:"messages,omitempty"`

	// typing / recording
	Active bool `json:"active,omitempty"`

	// banner
	ProposedTime string `json:"proposedTime,omitempty"` // RFC 3339

	// save_state
	SaveState string `json:"saveState,omitempty"`

	// mode_options
	VoiceAvailable bool `json:"voiceAvailable,omitempty"`

	// appointments
	Appointments []AppointmentFrame `json:"appointments,omitempty"`

	// calendar / audio_frame
	Filename string `json:"filename,omitempty"`
	Payload  string `json:"payload,omitempty"` // base64

	// error
	Error string `json:"error,omitempty"`
}

// Server frame types.
const (
	FrameTranscript   = "transcript"
	FrameTyping       = "typing"
	FrameRecording    = "recording"
	FrameBanner       = "banner"
	FrameBannerHide   = "banner_hide"
	FrameSaveState    = "save_state"
	FrameModeOptions  = "mode_options"
	FrameAppointments = "appointments"
	FrameCalendar     = "calendar"
	FrameAudioOut     = "audio_frame"
	FrameAudioEnd     = "audio_end"
	FrameEnded        = "session_ended"
	FrameError        = "error"
)

// MessageFrame is one transcript entry on the wire.
type MessageFrame struct {
	Text   string    `json:"text"`
	Sender string    `json:"sender"` // "user" or "agent"
	At     time.Time `json:"at"`
}

// AppointmentFrame is one upcoming appointment on the wire.
type AppointmentFrame struct {
	Time time.Time `json:"time"`
}

func toMessageFrames(messages []transcript.Message) []MessageFrame {
	out := make([]MessageFrame, 0, len(messages))
	for _, m := range messages {
		sender := "agent"
		if m.Sender == transcript.SenderUser {
			sender = "user"
		}
		out = append(out, MessageFrame{Text: m.Text, Sender: sender, At: m.At})
	}
	return out
}
