package gateway

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/talk2me/session-gateway/internal/config"
	"github.com/talk2me/session-gateway/internal/dialogue"
	"github.com/talk2me/session-gateway/internal/observability"
	"github.com/talk2me/session-gateway/internal/playback"
	"github.com/talk2me/session-gateway/internal/recognition"
	"github.com/talk2me/session-gateway/internal/session"
	"github.com/talk2me/session-gateway/internal/transcript"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The browser origin is validated upstream by the web tier.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ClientSession binds one browser connection to one session controller.
// It translates client frames into controller calls and implements the
// controller's UI sink and the player's frame sink by writing frames back.
type ClientSession struct {
	conn   *websocket.Conn
	cfg    *config.Config
	logger zerolog.Logger

	ctrl   *session.Controller
	player *playback.SinkPlayer

	sessionID string
	userID    string
	userName  string

	// writeMu serializes writes: the controller loop, the playback pacer,
	// and the read loop's error path all write frames.
	writeMu sync.Mutex

	closeOnce sync.Once
}

// Handler upgrades /ws connections. Identity arrives in the query string
// from the identity provider; the gateway does not authenticate.
func Handler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		userName := r.URL.Query().Get("displayName")
		if userID == "" {
			http.Error(w, "missing userId", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger := observability.GetLogger()
			logger.Error().Err(err).Msg("WebSocket upgrade failed")
			return
		}

		cs := newClientSession(conn, cfg, userID, userName)
		defer cs.close()

		cs.logger.Info().Str("user_id", userID).Msg("Client connected")
		cs.readLoop()
	}
}

func newClientSession(conn *websocket.Conn, cfg *config.Config, userID, userName string) *ClientSession {
	sessionID := uuid.New().String()
	logger := observability.SessionLogger(sessionID, observability.NewCorrelationID())

	cs := &ClientSession{
		conn:      conn,
		cfg:       cfg,
		logger:    logger,
		sessionID: sessionID,
		userID:    userID,
		userName:  userName,
	}

	cs.player = playback.NewSinkPlayer(cs, cfg.AudioBufferSize, logger, nil, nil)

	cs.ctrl = session.NewController(session.Params{
		Config: cfg,
		Client: dialogue.NewHTTPClient(cfg.BackendURL, logger),
		Player: cs.player,
		Sink:   cs,
		Logger: logger,
		NewRecognizer: func(f recognition.FinalizedFunc) recognition.Recognizer {
			if !cfg.VoiceEnabled() {
				return recognition.Null{}
			}
			return recognition.NewDeepgram(cfg, logger, f)
		},
		SessionID: sessionID,
		UserID:    userID,
		UserName:  userName,
	})

	return cs
}

func (cs *ClientSession) readLoop() {
	for {
		_, data, err := cs.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cs.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			cs.logger.Warn().Err(err).Msg("Discarding unparseable client frame")
			continue
		}
		cs.dispatch(frame)
	}
}

func (cs *ClientSession) dispatch(frame ClientFrame) {
	switch frame.Type {
	case FrameSelectMode:
		mode := session.ModeText
		if frame.Mode == "voice" {
			mode = session.ModeVoice
		}
		cs.ctrl.SelectMode(mode)

	case FrameMessage:
		cs.ctrl.Submit(frame.Text)

	case FrameAudio:
		pcm, err := base64.StdEncoding.DecodeString(frame.Chunk)
		if err != nil {
			cs.logger.Warn().Err(err).Msg("Discarding malformed audio chunk")
			return
		}
		cs.ctrl.FeedAudio(pcm)

	case FrameToggleRecording:
		cs.ctrl.ToggleRecording()

	case FrameRequestModeChange:
		cs.ctrl.RequestModeChange()
	case FrameConfirmModeChange:
		cs.ctrl.ConfirmModeChange()
	case FrameCancelModeChange:
		cs.ctrl.CancelModeChange()

	case FrameRequestSave:
		cs.ctrl.RequestSave()
	case FrameConfirmSave:
		cs.ctrl.ConfirmSave()
	case FrameCancelSave:
		cs.ctrl.CancelSave()
	case FrameRetrySave:
		cs.ctrl.RetrySave()

	case FrameEndSession:
		cs.ctrl.EndSession()

	case FrameApptConfirm:
		cs.ctrl.ConfirmAppointment(frame.Export)
	case FrameApptExport:
		cs.ctrl.ConfirmAppointment(true)
	case FrameApptDefer:
		cs.ctrl.DeferAppointment()

	default:
		cs.logger.Debug().Str("type", frame.Type).Msg("Unknown client frame type")
	}
}

func (cs *ClientSession) writeFrame(frame ServerFrame) {
	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()
	if err := cs.conn.WriteJSON(frame); err != nil {
		cs.logger.Debug().Err(err).Str("type", frame.Type).Msg("Frame write failed")
	}
}

func (cs *ClientSession) close() {
	cs.closeOnce.Do(func() {
		if err := cs.ctrl.Close(); err != nil {
			cs.logger.Warn().Err(err).Msg("Controller close error")
		}
		cs.player.Close()
		cs.conn.Close()
		cs.logger.Info().Msg("Client disconnected")
	})
}

// UISink implementation. Called from the controller loop only.

func (cs *ClientSession) TranscriptChanged(messages []transcript.Message) {
	cs.writeFrame(ServerFrame{Type: FrameTranscript, Messages: toMessageFrames(messages)})
}

func (cs *ClientSession) TypingIndicator(active bool) {
	cs.writeFrame(ServerFrame{Type: FrameTyping, Active: active})
}

func (cs *ClientSession) RecordingChanged(active bool) {
	cs.writeFrame(ServerFrame{Type: FrameRecording, Active: active})
}

func (cs *ClientSession) BannerShown(proposed time.Time) {
	cs.writeFrame(ServerFrame{Type: FrameBanner, ProposedTime: proposed.Format(time.RFC3339)})
}

func (cs *ClientSession) BannerHidden() {
	cs.writeFrame(ServerFrame{Type: FrameBannerHide})
}

func (cs *ClientSession) SaveStateChanged(state session.SaveState) {
	cs.writeFrame(ServerFrame{Type: FrameSaveState, SaveState: state.String()})
}

func (cs *ClientSession) ModeOptions(voiceAvailable bool) {
	cs.writeFrame(ServerFrame{Type: FrameModeOptions, VoiceAvailable: voiceAvailable})
}

func (cs *ClientSession) AppointmentsListed(appointments []dialogue.Appointment) {
	frames := make([]AppointmentFrame, 0, len(appointments))
	for _, a := range appointments {
		frames = append(frames, AppointmentFrame{Time: a.Time})
	}
	cs.writeFrame(ServerFrame{Type: FrameAppointments, Appointments: frames})
}

func (cs *ClientSession) CalendarReady(filename string, ics []byte) {
	cs.writeFrame(ServerFrame{
		Type:     FrameCalendar,
		Filename: filename,
		Payload:  base64.StdEncoding.EncodeToString(ics),
	})
}

func (cs *ClientSession) SessionEnded() {
	cs.writeFrame(ServerFrame{Type: FrameEnded})
	cs.conn.Close() // unblocks the read loop; cleanup follows
}

// FrameSink implementation. Called from the playback pacer.

func (cs *ClientSession) WriteFrame(pcm []byte) error {
	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()
	return cs.conn.WriteJSON(ServerFrame{
		Type:    FrameAudioOut,
		Payload: base64.StdEncoding.EncodeToString(pcm),
	})
}

func (cs *ClientSession) FlushTail() {
	cs.writeFrame(ServerFrame{Type: FrameAudioEnd})
}
