package dialogue

import (
	"context"
	"time"
)

// ErrKind classifies a failed operation. The session controller treats
// transport and backend failures identically, so the distinction exists
// only for logs and metrics.
type ErrKind int

const (
	ErrNone ErrKind = iota
	ErrTransport
	ErrBackend
)

func (k ErrKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrTransport:
		return "transport"
	case ErrBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// OpenParams identifies the session being opened.
type OpenParams struct {
	SessionID string
	UserID    string
	UserName  string
	VoiceMode bool
}

// TurnParams carries one user message.
type TurnParams struct {
	SessionID string
	UserID    string
	Message   string
	VoiceMode bool
}

// RegisterParams carries identity fields for a new user.
type RegisterParams struct {
	UserID        string
	Email         string
	FullName      string
	PreferredName string
}

// OpenResult is the outcome of starting a session. Audio is decoded from
// the base64 payload; nil when the backend sent none.
type OpenResult struct {
	Ok      bool
	Kind    ErrKind
	Err     string
	Message string
	Audio   []byte
}

// TurnResult is the outcome of one exchange. SuggestedTime is non-nil
// only when the backend proposed an appointment with a parseable time.
type TurnResult struct {
	Ok            bool
	Kind          ErrKind
	Err           string
	Message       string
	Audio         []byte
	SuggestedTime *time.Time
}

// RepairResult carries punctuation-normalized text.
type RepairResult struct {
	Ok        bool
	Kind      ErrKind
	Err       string
	Corrected string
}

// AckResult is the outcome of an operation with no payload.
type AckResult struct {
	Ok   bool
	Kind ErrKind
	Err  string
}

// ExportResult carries a calendar artifact for download.
type ExportResult struct {
	Ok   bool
	Kind ErrKind
	Err  string
	ICS  []byte
}

// Appointment is one upcoming appointment row.
type Appointment struct {
	UserID string    `json:"user_id"`
	Time   time.Time `json:"appointment_time"`
}

// AppointmentsResult lists a user's upcoming appointments.
type AppointmentsResult struct {
	Ok           bool
	Kind         ErrKind
	Err          string
	Appointments []Appointment
}

// Client performs stateless request/response operations against the
// dialogue backend. No operation retries internally; callers surface a
// failure once and move on.
type Client interface {
	OpenSession(ctx context.Context, p OpenParams) OpenResult
	SendTurn(ctx context.Context, p TurnParams) TurnResult
	RepairPunctuation(ctx context.Context, text string) RepairResult
	SaveSession(ctx context.Context, sessionID string) AckResult
	PersistAppointment(ctx context.Context, userID string, at time.Time) AckResult
	ExportCalendar(ctx context.Context, at time.Time, userName string) ExportResult
	ListAppointments(ctx context.Context, userID string) AppointmentsResult
	RegisterUser(ctx context.Context, p RegisterParams) AckResult
}
