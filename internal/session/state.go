package session

import "time"

// Phase is the top-level session phase.
type Phase int

const (
	PhaseModeSelect Phase = iota
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseModeSelect:
		return "mode_select"
	case PhaseActive:
		return "active"
	default:
		return "unknown"
	}
}

// Mode is the input modality of an active session.
type Mode int

const (
	ModeText Mode = iota
	ModeVoice
)

func (m Mode) String() string {
	if m == ModeVoice {
		return "voice"
	}
	return "text"
}

// TurnState tracks the single outstanding dialogue exchange.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnAwaiting
)

// SaveState is the chat-save confirmation flow. Linear progression;
// cancel returns to SaveHidden from any state.
type SaveState int

const (
	SaveHidden SaveState = iota
	SaveConfirm
	SaveSaving
	SaveSaved
	SaveFailed
)

func (s SaveState) String() string {
	switch s {
	case SaveHidden:
		return "hidden"
	case SaveConfirm:
		return "confirm"
	case SaveSaving:
		return "saving"
	case SaveSaved:
		return "saved"
	case SaveFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Suggestion is a pending appointment proposal from the agent. At most
// one is active; a new one replaces it.
type Suggestion struct {
	ProposedTime time.Time
}

// State is the controller's composite state. All fields are owned by the
// event loop; snapshots are copies.
type State struct {
	Phase                Phase
	Mode                 Mode
	Turn                 TurnState
	Recording            bool
	Save                 SaveState
	Suggestion           *Suggestion
	ConfirmingModeChange bool
}
