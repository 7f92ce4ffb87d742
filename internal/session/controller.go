package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/talk2me/session-gateway/internal/audio"
	"github.com/talk2me/session-gateway/internal/config"
	"github.com/talk2me/session-gateway/internal/dialogue"
	"github.com/talk2me/session-gateway/internal/observability"
	"github.com/talk2me/session-gateway/internal/playback"
	"github.com/talk2me/session-gateway/internal/recognition"
	"github.com/talk2me/session-gateway/internal/transcript"
)

const (
	// fallbackGreeting opens the session when the backend greeting fetch
	// fails. The user is never blocked behind a failed fetch.
	fallbackGreeting = "Hi! I'm Jennifer, Talk2Me's 24/7 AI therapist. What would you like to talk about?"

	// apologyMessage substitutes for the agent's reply on any failed turn.
	apologyMessage = "Sorry, I'm having trouble connecting to the server."

	calendarFilename = "therapy_session.ics"

	appointmentTimeLayout = "Monday, January 2, 2006 at 3:04 PM MST"
)

// event is a unit of work for the controller loop. All state transitions
// happen inside the loop goroutine, one event at a time, so transitions
// are atomic with respect to each other.
type event interface{}

type evSelectMode struct{ mode Mode }
type evOpenDone struct {
	seq    uint64
	result dialogue.OpenResult
}
type evSubmit struct{ text string }
type evTurnDone struct {
	seq     uint64
	started time.Time
	result  dialogue.TurnResult
}
type evToggleRecording struct{}
type evFinalized struct{ text string }
type evUtteranceReady struct{ text string }
type evRequestModeChange struct{}
type evConfirmModeChange struct{}
type evCancelModeChange struct{}
type evRequestSave struct{}
type evConfirmSave struct{}
type evRetrySave struct{}
type evCancelSave struct{}
type evSaveDone struct{ result dialogue.AckResult }
type evEndSession struct{}
type evApptConfirm struct{ export bool }
type evApptDefer struct{}
type evApptPersistDone struct {
	at     time.Time
	export bool
	result dialogue.AckResult
}
type evExportDone struct{ result dialogue.ExportResult }
type evAppointmentsListed struct{ result dialogue.AppointmentsResult }

// Params collects the collaborators for one session.
type Params struct {
	Config *config.Config
	Client dialogue.Client
	Player playback.Player
	Sink   UISink
	Logger zerolog.Logger

	// NewRecognizer builds the speech adapter with the controller's
	// finalized callback wired in.
	NewRecognizer func(recognition.FinalizedFunc) recognition.Recognizer

	SessionID string
	UserID    string
	UserName  string
}

// Controller owns the lifetime of one chat session: mode selection,
// turn-taking, the recording lifecycle, the save and appointment
// sub-flows, and every transcript mutation. It is the transcript's
// single writer.
type Controller struct {
	cfg     *config.Config
	log     zerolog.Logger
	client  dialogue.Client
	rec     recognition.Recognizer
	player  playback.Player
	store   *transcript.Store
	sink    UISink
	metrics *observability.Metrics
	loc     *time.Location

	sessionID string
	userID    string
	userName  string

	events    chan event
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	state State

	// turnSeq identifies the outstanding exchange; a completion event
	// carrying a stale seq is discarded. Loop-owned.
	turnSeq uint64
}

// NewController builds and starts a session controller. The loop runs
// until Close.
func NewController(p Params) *Controller {
	loc, err := p.Config.AppointmentLocation()
	if err != nil {
		loc = time.UTC
	}

	c := &Controller{
		cfg:       p.Config,
		log:       p.Logger.With().Str("component", "session").Str("session_id", p.SessionID).Logger(),
		client:    p.Client,
		player:    p.Player,
		store:     transcript.NewStore(),
		sink:      p.Sink,
		metrics:   observability.NewSessionMetrics(p.SessionID),
		loc:       loc,
		sessionID: p.SessionID,
		userID:    p.UserID,
		userName:  p.UserName,
		events:    make(chan event, 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	c.rec = p.NewRecognizer(c.onFinalized)

	go c.run()
	c.sink.ModeOptions(c.rec.Available())
	return c
}

// State returns a snapshot of the composite state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns a snapshot of the visible transcript.
func (c *Controller) Transcript() []transcript.Message {
	return c.store.Messages()
}

func (c *Controller) setState(mutate func(*State)) {
	c.mu.Lock()
	mutate(&c.state)
	c.mu.Unlock()
}

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.quit:
	}
}

// SelectMode starts a session in the given input mode.
func (c *Controller) SelectMode(m Mode) { c.post(evSelectMode{mode: m}) }

// Submit sends one typed user message.
func (c *Controller) Submit(text string) { c.post(evSubmit{text: text}) }

// ToggleRecording starts or stops voice capture.
func (c *Controller) ToggleRecording() { c.post(evToggleRecording{}) }

// FeedAudio forwards a microphone chunk to the recognizer. Chunks arrive
// far too often for the event loop; the recognizer is internally
// synchronized and drops chunks outside a capture window.
func (c *Controller) FeedAudio(pcm []byte) {
	if err := c.rec.Feed(pcm); err != nil {
		c.log.Warn().Err(err).Msg("Audio chunk dropped")
		c.metrics.RecordError("feed", "recognition")
	}
}

// RequestModeChange asks for confirmation before abandoning the session.
func (c *Controller) RequestModeChange() { c.post(evRequestModeChange{}) }

// ConfirmModeChange discards the session and returns to mode selection.
func (c *Controller) ConfirmModeChange() { c.post(evConfirmModeChange{}) }

// CancelModeChange keeps the session unchanged.
func (c *Controller) CancelModeChange() { c.post(evCancelModeChange{}) }

// RequestSave opens the save confirmation.
func (c *Controller) RequestSave() { c.post(evRequestSave{}) }

// ConfirmSave issues the save request.
func (c *Controller) ConfirmSave() { c.post(evConfirmSave{}) }

// RetrySave re-issues a failed save.
func (c *Controller) RetrySave() { c.post(evRetrySave{}) }

// CancelSave hides the save flow from any of its states.
func (c *Controller) CancelSave() { c.post(evCancelSave{}) }

// EndSession signs the user out. The only way a session ends.
func (c *Controller) EndSession() { c.post(evEndSession{}) }

// ConfirmAppointment accepts the pending suggestion; with export, a
// calendar artifact download follows the confirmation.
func (c *Controller) ConfirmAppointment(export bool) { c.post(evApptConfirm{export: export}) }

// DeferAppointment dismisses the pending suggestion silently.
func (c *Controller) DeferAppointment() { c.post(evApptDefer{}) }

// Close stops the loop and releases the speech adapter.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.done
	return c.rec.Close()
}

func (c *Controller) onFinalized(text string) {
	c.post(evFinalized{text: text})
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev event) {
	switch ev := ev.(type) {
	case evSelectMode:
		c.handleSelectMode(ev.mode)
	case evOpenDone:
		c.handleOpenDone(ev)
	case evSubmit:
		c.submit(ev.text)
	case evTurnDone:
		c.handleTurnDone(ev)
	case evToggleRecording:
		c.handleToggleRecording()
	case evFinalized:
		c.handleFinalized(ev.text)
	case evUtteranceReady:
		c.submit(ev.text)
	case evRequestModeChange:
		c.handleRequestModeChange()
	case evConfirmModeChange:
		c.handleConfirmModeChange()
	case evCancelModeChange:
		c.handleCancelModeChange()
	case evRequestSave:
		c.handleRequestSave()
	case evConfirmSave:
		c.handleConfirmSave()
	case evRetrySave:
		c.handleRetrySave()
	case evCancelSave:
		c.handleCancelSave()
	case evSaveDone:
		c.handleSaveDone(ev.result)
	case evEndSession:
		c.handleEndSession()
	case evApptConfirm:
		c.handleApptConfirm(ev.export)
	case evApptDefer:
		c.handleApptDefer()
	case evApptPersistDone:
		c.handleApptPersistDone(ev)
	case evExportDone:
		c.handleExportDone(ev.result)
	case evAppointmentsListed:
		c.handleAppointmentsListed(ev)
	}
}

func (c *Controller) append(text string, sender transcript.Sender) {
	c.store.Append(text, sender)
	c.sink.TranscriptChanged(c.store.Messages())
}

// handleSelectMode clears the transcript and opens the session with the
// backend. The greeting fetch counts as the first exchange.
func (c *Controller) handleSelectMode(m Mode) {
	st := c.State()
	if st.Phase != PhaseModeSelect || st.Turn != TurnIdle {
		return
	}
	if m == ModeVoice && !c.rec.Available() {
		c.log.Warn().Msg("Voice mode requested without a speech backend")
		c.sink.ModeOptions(false)
		return
	}

	c.store.Reset()
	c.sink.TranscriptChanged(c.store.Messages())
	c.setState(func(s *State) {
		s.Mode = m
		s.Turn = TurnAwaiting
	})
	c.sink.TypingIndicator(true)

	c.turnSeq++
	seq := c.turnSeq
	voice := m == ModeVoice
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TurnDeadline())
		defer cancel()
		result := c.client.OpenSession(ctx, dialogue.OpenParams{
			SessionID: c.sessionID,
			UserID:    c.userID,
			UserName:  c.userName,
			VoiceMode: voice,
		})
		c.post(evOpenDone{seq: seq, result: result})
	}()
}

func (c *Controller) handleOpenDone(ev evOpenDone) {
	st := c.State()
	if ev.seq != c.turnSeq || st.Turn != TurnAwaiting {
		return
	}

	c.setState(func(s *State) {
		s.Phase = PhaseActive
		s.Turn = TurnIdle
	})
	c.sink.TypingIndicator(false)

	if ev.result.Ok {
		c.append(ev.result.Message, transcript.SenderAgent)
		c.playAudio(ev.result.Audio)
	} else {
		c.log.Warn().Str("error", ev.result.Err).Msg("Greeting fetch failed, using fallback")
		c.append(fallbackGreeting, transcript.SenderAgent)
	}

	c.metrics.RecordSessionStart(c.State().Mode.String())
	c.log.Info().Str("mode", c.State().Mode.String()).Msg("Session active")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TurnDeadline())
		defer cancel()
		c.post(evAppointmentsListed{result: c.client.ListAppointments(ctx, c.userID)})
	}()
}

func (c *Controller) handleAppointmentsListed(ev evAppointmentsListed) {
	if !ev.result.Ok {
		c.log.Warn().Str("error", ev.result.Err).Msg("Could not list upcoming appointments")
		return
	}
	c.sink.AppointmentsListed(ev.result.Appointments)
}

// submit runs one exchange, shared by typed input and finalized voice
// utterances. The turn guard keeps at most one exchange outstanding.
func (c *Controller) submit(text string) {
	st := c.State()
	if st.Phase != PhaseActive {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if st.Turn != TurnIdle {
		c.log.Debug().Msg("Submission rejected while a turn is outstanding")
		return
	}

	c.append(text, transcript.SenderUser)
	c.setState(func(s *State) { s.Turn = TurnAwaiting })
	c.sink.TypingIndicator(true)
	c.metrics.RecordTurnStart()

	c.turnSeq++
	seq := c.turnSeq
	voice := st.Mode == ModeVoice
	started := time.Now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TurnDeadline())
		defer cancel()
		result := c.client.SendTurn(ctx, dialogue.TurnParams{
			SessionID: c.sessionID,
			UserID:    c.userID,
			Message:   text,
			VoiceMode: voice,
		})
		c.post(evTurnDone{seq: seq, started: started, result: result})
	}()
}

func (c *Controller) handleTurnDone(ev evTurnDone) {
	st := c.State()
	if ev.seq != c.turnSeq || st.Turn != TurnAwaiting {
		c.log.Debug().Uint64("seq", ev.seq).Msg("Discarding stale turn completion")
		return
	}

	c.setState(func(s *State) { s.Turn = TurnIdle })
	c.sink.TypingIndicator(false)
	c.metrics.RecordTurnEnd(ev.result.Ok)

	if !ev.result.Ok {
		c.log.Warn().
			Str("kind", ev.result.Kind.String()).
			Str("error", ev.result.Err).
			Msg("Turn failed, appending apology")
		c.append(apologyMessage, transcript.SenderAgent)
		return
	}

	c.append(ev.result.Message, transcript.SenderAgent)
	c.log.Debug().Dur("latency", time.Since(ev.started)).Msg("Turn completed")

	if ev.result.SuggestedTime != nil {
		// Last wins: a new suggestion replaces any pending one.
		c.setState(func(s *State) {
			s.Suggestion = &Suggestion{ProposedTime: *ev.result.SuggestedTime}
		})
		c.sink.BannerShown(*ev.result.SuggestedTime)
		c.metrics.RecordSuggestion()
	}

	if st.Mode == ModeVoice {
		c.playAudio(ev.result.Audio)
	}
}

// playAudio hands a decoded clip to the player. Fire and forget: playback
// never blocks the state machine, and a busy player drops the clip.
func (c *Controller) playAudio(data []byte) {
	if len(data) == 0 {
		return
	}
	samples, err := audio.SamplesFromLE(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("Discarding undecodable audio clip")
		c.metrics.RecordPlayback(false)
		return
	}

	err = c.player.Play(playback.Clip{Samples: samples, SampleRate: c.cfg.TTSSampleRate})
	if errors.Is(err, playback.ErrBusy) {
		// No preemption: the newer clip loses.
		c.log.Warn().Msg("Player busy, dropping clip")
	}
	c.metrics.RecordPlayback(err == nil)
}

func (c *Controller) handleToggleRecording() {
	st := c.State()
	if st.Phase != PhaseActive || st.Mode != ModeVoice {
		return
	}

	if st.Recording {
		c.rec.Stop() // Finalization arrives as an event
		return
	}

	// Blocking the toggle while a turn is outstanding avoids a
	// double-submission race between the utterance and the reply.
	if st.Turn != TurnIdle {
		return
	}

	if err := c.rec.Start(context.Background()); err != nil {
		c.log.Warn().Err(err).Msg("Could not start voice capture")
		c.metrics.RecordError("start", "recognition")
		return
	}
	c.setState(func(s *State) { s.Recording = true })
	c.sink.RecordingChanged(true)
}

// handleFinalized resets the recording state and feeds a non-empty
// utterance through punctuation repair into the submit path. Repair is
// best-effort: on failure, the raw utterance is used.
func (c *Controller) handleFinalized(text string) {
	st := c.State()
	if st.Recording {
		c.setState(func(s *State) { s.Recording = false })
		c.sink.RecordingChanged(false)
	}
	if st.Phase != PhaseActive {
		return
	}

	text = strings.TrimSpace(text)
	c.metrics.RecordCapture(text == "")
	if text == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TurnDeadline())
		defer cancel()
		result := c.client.RepairPunctuation(ctx, text)
		c.metrics.RecordRepair(result.Ok)
		final := text
		if result.Ok {
			final = result.Corrected
		} else {
			c.log.Debug().Str("error", result.Err).Msg("Punctuation repair failed, using raw utterance")
		}
		c.post(evUtteranceReady{text: final})
	}()
}

func (c *Controller) handleRequestModeChange() {
	if st := c.State(); st.Phase != PhaseActive || st.ConfirmingModeChange {
		return
	}
	c.setState(func(s *State) { s.ConfirmingModeChange = true })
}

// handleConfirmModeChange discards the session: recording stops, the
// transcript is wiped, and the controller returns to mode selection.
func (c *Controller) handleConfirmModeChange() {
	st := c.State()
	if !st.ConfirmingModeChange {
		return
	}

	if st.Recording {
		c.rec.Stop()
	}
	c.player.Stop()

	c.setState(func(s *State) {
		*s = State{Phase: PhaseModeSelect}
	})
	c.store.Reset()
	c.sink.TranscriptChanged(c.store.Messages())
	c.sink.TypingIndicator(false)
	c.sink.RecordingChanged(false)
	c.sink.BannerHidden()
	c.sink.SaveStateChanged(SaveHidden)
	c.sink.ModeOptions(c.rec.Available())
	c.metrics.RecordSessionEnd()
	c.log.Info().Msg("Session discarded for mode change")
}

func (c *Controller) handleCancelModeChange() {
	c.setState(func(s *State) { s.ConfirmingModeChange = false })
}

func (c *Controller) handleRequestSave() {
	st := c.State()
	if st.Phase != PhaseActive || st.Save != SaveHidden {
		return
	}
	c.setState(func(s *State) { s.Save = SaveConfirm })
	c.sink.SaveStateChanged(SaveConfirm)
}

func (c *Controller) handleConfirmSave() {
	if c.State().Save != SaveConfirm {
		return
	}
	c.beginSave()
}

func (c *Controller) handleRetrySave() {
	if c.State().Save != SaveFailed {
		return
	}
	c.beginSave()
}

func (c *Controller) beginSave() {
	c.setState(func(s *State) { s.Save = SaveSaving })
	c.sink.SaveStateChanged(SaveSaving)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TurnDeadline())
		defer cancel()
		c.post(evSaveDone{result: c.client.SaveSession(ctx, c.sessionID)})
	}()
}

func (c *Controller) handleSaveDone(result dialogue.AckResult) {
	if c.State().Save != SaveSaving {
		return
	}

	next := SaveSaved
	if !result.Ok {
		next = SaveFailed
		c.log.Warn().Str("error", result.Err).Msg("Save failed")
	}
	c.setState(func(s *State) { s.Save = next })
	c.sink.SaveStateChanged(next)
	c.metrics.RecordSave(result.Ok)
}

func (c *Controller) handleCancelSave() {
	if c.State().Save == SaveHidden {
		return
	}
	c.setState(func(s *State) { s.Save = SaveHidden })
	c.sink.SaveStateChanged(SaveHidden)
}

func (c *Controller) handleEndSession() {
	st := c.State()
	if st.Recording {
		c.rec.Stop()
	}
	c.player.Stop()
	if st.Phase == PhaseActive {
		c.metrics.RecordSessionEnd()
	}
	c.setState(func(s *State) { *s = State{Phase: PhaseModeSelect} })
	c.sink.SessionEnded()
	c.log.Info().Msg("Session ended by sign-out")
}

func (c *Controller) handleApptConfirm(export bool) {
	st := c.State()
	if st.Suggestion == nil {
		return
	}
	at := st.Suggestion.ProposedTime

	c.setState(func(s *State) { s.Suggestion = nil })
	c.sink.BannerHidden()

	action := "confirm"
	if export {
		action = "export"
	}
	c.metrics.RecordAppointmentDecision(action)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TurnDeadline())
		defer cancel()
		result := c.client.PersistAppointment(ctx, c.userID, at)
		c.post(evApptPersistDone{at: at, export: export, result: result})
	}()
}

func (c *Controller) handleApptDefer() {
	if c.State().Suggestion == nil {
		return
	}
	c.setState(func(s *State) { s.Suggestion = nil })
	c.sink.BannerHidden()
	c.metrics.RecordAppointmentDecision("defer")
}

func (c *Controller) handleApptPersistDone(ev evApptPersistDone) {
	if !ev.result.Ok {
		c.log.Warn().Str("error", ev.result.Err).Msg("Appointment persistence failed")
		c.append(apologyMessage, transcript.SenderAgent)
		return
	}

	c.append(fmt.Sprintf(
		"Great! I've scheduled your appointment for %s. See you then.",
		ev.at.In(c.loc).Format(appointmentTimeLayout),
	), transcript.SenderAgent)

	if ev.export {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TurnDeadline())
			defer cancel()
			c.post(evExportDone{result: c.client.ExportCalendar(ctx, ev.at, c.userName)})
		}()
	}
}

func (c *Controller) handleExportDone(result dialogue.ExportResult) {
	if !result.Ok {
		c.log.Warn().Str("error", result.Err).Msg("Calendar export failed")
		c.metrics.RecordError("export", "dialogue")
		return
	}
	c.sink.CalendarReady(calendarFilename, result.ICS)
}
