package dialogue

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClient talks JSON over HTTP to the dialogue backend.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewHTTPClient creates a client for the backend at baseURL. Per-request
// deadlines come from the caller's context; the transport timeout is a
// backstop only.
func NewHTTPClient(baseURL string, log zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     log.With().Str("component", "dialogue").Logger(),
	}
}

// envelope is the common success/error wrapper the backend puts around
// every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("backend returned status %d for %s", resp.StatusCode, path)
	}
	return data, nil
}

// decodeAudio decodes the optional base64 audio payload. A malformed
// payload is treated as absent audio, not a failed turn.
func (c *HTTPClient) decodeAudio(payload string) []byte {
	if payload == "" {
		return nil
	}
	audio, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		c.log.Warn().Err(err).Msg("Discarding malformed audio payload")
		return nil
	}
	return audio
}

// OpenSession starts a conversation and returns the greeting.
func (c *HTTPClient) OpenSession(ctx context.Context, p OpenParams) OpenResult {
	body := map[string]any{
		"sessionId":   p.SessionID,
		"userId":      p.UserID,
		"userName":    p.UserName,
		"isVoiceMode": p.VoiceMode,
	}

	data, err := c.post(ctx, "/api/firstChat", body)
	if err != nil {
		c.log.Warn().Err(err).Msg("OpenSession transport failure")
		return OpenResult{Kind: ErrTransport, Err: err.Error()}
	}

	var resp struct {
		envelope
		Message   string `json:"message"`
		AudioData string `json:"audioData"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return OpenResult{Kind: ErrTransport, Err: err.Error()}
	}
	if !resp.Success || resp.Message == "" {
		c.log.Warn().Str("error", resp.Error).Msg("OpenSession rejected by backend")
		return OpenResult{Kind: ErrBackend, Err: resp.Error}
	}

	return OpenResult{
		Ok:      true,
		Message: resp.Message,
		Audio:   c.decodeAudio(resp.AudioData),
	}
}

// SendTurn submits one user message and returns the agent's reply.
func (c *HTTPClient) SendTurn(ctx context.Context, p TurnParams) TurnResult {
	body := map[string]any{
		"sessionId":   p.SessionID,
		"userId":      p.UserID,
		"message":     p.Message,
		"isVoiceMode": p.VoiceMode,
	}

	data, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		c.log.Warn().Err(err).Msg("SendTurn transport failure")
		return TurnResult{Kind: ErrTransport, Err: err.Error()}
	}

	var resp struct {
		envelope
		Message              string `json:"message"`
		AudioData            string `json:"audioData"`
		SuggestedAppointment bool   `json:"suggestedAppointment"`
		SuggestedTime        string `json:"suggestedTime"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return TurnResult{Kind: ErrTransport, Err: err.Error()}
	}
	if !resp.Success || resp.Message == "" {
		c.log.Warn().Str("error", resp.Error).Msg("SendTurn rejected by backend")
		return TurnResult{Kind: ErrBackend, Err: resp.Error}
	}

	result := TurnResult{
		Ok:      true,
		Message: resp.Message,
		Audio:   c.decodeAudio(resp.AudioData),
	}
	if resp.SuggestedAppointment && resp.SuggestedTime != "" {
		at, err := time.Parse(time.RFC3339, resp.SuggestedTime)
		if err != nil {
			c.log.Warn().Str("suggested_time", resp.SuggestedTime).Err(err).
				Msg("Discarding unparseable appointment suggestion")
		} else {
			result.SuggestedTime = &at
		}
	}
	return result
}

// RepairPunctuation normalizes a raw speech transcript.
func (c *HTTPClient) RepairPunctuation(ctx context.Context, text string) RepairResult {
	data, err := c.post(ctx, "/api/add-punct", map[string]any{"text": text})
	if err != nil {
		return RepairResult{Kind: ErrTransport, Err: err.Error()}
	}

	var resp struct {
		envelope
		NewText string `json:"newText"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return RepairResult{Kind: ErrTransport, Err: err.Error()}
	}
	if !resp.Success || resp.NewText == "" {
		return RepairResult{Kind: ErrBackend, Err: resp.Error}
	}
	return RepairResult{Ok: true, Corrected: resp.NewText}
}

// SaveSession persists the session transcript.
func (c *HTTPClient) SaveSession(ctx context.Context, sessionID string) AckResult {
	data, err := c.post(ctx, "/api/save", map[string]any{"sessionId": sessionID})
	if err != nil {
		c.log.Warn().Err(err).Msg("SaveSession transport failure")
		return AckResult{Kind: ErrTransport, Err: err.Error()}
	}
	return c.ack(data)
}

// PersistAppointment records an accepted appointment.
func (c *HTTPClient) PersistAppointment(ctx context.Context, userID string, at time.Time) AckResult {
	body := map[string]any{
		"userId":          userID,
		"appointmentTime": at.Format(time.RFC3339),
	}
	data, err := c.post(ctx, "/api/save-appointment", body)
	if err != nil {
		c.log.Warn().Err(err).Msg("PersistAppointment transport failure")
		return AckResult{Kind: ErrTransport, Err: err.Error()}
	}
	return c.ack(data)
}

// ExportCalendar fetches an ICS artifact for the appointment. The response
// body is the artifact itself, not JSON.
func (c *HTTPClient) ExportCalendar(ctx context.Context, at time.Time, userName string) ExportResult {
	body := map[string]any{
		"appointmentTime": at.Format(time.RFC3339),
		"userName":        userName,
	}
	data, err := c.post(ctx, "/api/generate-calendar", body)
	if err != nil {
		c.log.Warn().Err(err).Msg("ExportCalendar transport failure")
		return ExportResult{Kind: ErrTransport, Err: err.Error()}
	}
	if len(data) == 0 {
		return ExportResult{Kind: ErrBackend, Err: "empty calendar artifact"}
	}
	return ExportResult{Ok: true, ICS: data}
}

// ListAppointments returns the user's upcoming appointments.
func (c *HTTPClient) ListAppointments(ctx context.Context, userID string) AppointmentsResult {
	data, err := c.post(ctx, "/api/get-appointments", map[string]any{"userId": userID})
	if err != nil {
		return AppointmentsResult{Kind: ErrTransport, Err: err.Error()}
	}

	var resp struct {
		envelope
		Appointments []Appointment `json:"appointments"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return AppointmentsResult{Kind: ErrTransport, Err: err.Error()}
	}
	if !resp.Success {
		return AppointmentsResult{Kind: ErrBackend, Err: resp.Error}
	}
	return AppointmentsResult{Ok: true, Appointments: resp.Appointments}
}

// RegisterUser records identity fields for a first-time user.
func (c *HTTPClient) RegisterUser(ctx context.Context, p RegisterParams) AckResult {
	body := map[string]any{
		"userID":        p.UserID,
		"email":         p.Email,
		"fullName":      p.FullName,
		"preferredName": p.PreferredName,
	}
	data, err := c.post(ctx, "/api/newUser", body)
	if err != nil {
		return AckResult{Kind: ErrTransport, Err: err.Error()}
	}
	return c.ack(data)
}

func (c *HTTPClient) ack(data []byte) AckResult {
	var resp envelope
	if err := json.Unmarshal(data, &resp); err != nil {
		return AckResult{Kind: ErrTransport, Err: err.Error()}
	}
	if !resp.Success {
		return AckResult{Kind: ErrBackend, Err: resp.Error}
	}
	return AckResult{Ok: true}
}
