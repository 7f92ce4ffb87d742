package dialogue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestBackend(t *testing.T, path string, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, zerolog.Nop())
}

func TestOpenSession(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte{0x01, 0x00})

	client := newTestBackend(t, "/api/firstChat", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req["sessionId"] != "s1" || req["userId"] != "u1" || req["userName"] != "Alex" {
			t.Errorf("unexpected request fields: %v", req)
		}
		if req["isVoiceMode"] != true {
			t.Errorf("expected isVoiceMode true, got %v", req["isVoiceMode"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":   true,
			"message":   "Hi Alex!",
			"audioData": audio,
		})
	})

	result := client.OpenSession(context.Background(), OpenParams{
		SessionID: "s1", UserID: "u1", UserName: "Alex", VoiceMode: true,
	})
	if !result.Ok {
		t.Fatalf("expected success, got kind=%v err=%q", result.Kind, result.Err)
	}
	if result.Message != "Hi Alex!" {
		t.Errorf("unexpected message %q", result.Message)
	}
	if len(result.Audio) != 2 {
		t.Errorf("expected 2 audio bytes, got %d", len(result.Audio))
	}
}

func TestOpenSession_BackendError(t *testing.T) {
	client := newTestBackend(t, "/api/firstChat", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "User not found"})
	})

	result := client.OpenSession(context.Background(), OpenParams{SessionID: "s1"})
	if result.Ok {
		t.Fatal("expected failure")
	}
	if result.Kind != ErrBackend {
		t.Errorf("expected ErrBackend, got %v", result.Kind)
	}
}

func TestOpenSession_TransportError(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", zerolog.Nop())

	result := client.OpenSession(context.Background(), OpenParams{SessionID: "s1"})
	if result.Ok {
		t.Fatal("expected failure")
	}
	if result.Kind != ErrTransport {
		t.Errorf("expected ErrTransport, got %v", result.Kind)
	}
}

func TestSendTurn_Suggestion(t *testing.T) {
	suggested := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)

	client := newTestBackend(t, "/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["message"] != "hello" {
			t.Errorf("unexpected message field: %v", req["message"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":              true,
			"message":              "How are you feeling?",
			"suggestedAppointment": true,
			"suggestedTime":        suggested.Format(time.RFC3339),
		})
	})

	result := client.SendTurn(context.Background(), TurnParams{
		SessionID: "s1", UserID: "u1", Message: "hello",
	})
	if !result.Ok {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if result.SuggestedTime == nil {
		t.Fatal("expected a suggested time")
	}
	if !result.SuggestedTime.Equal(suggested) {
		t.Errorf("expected %v, got %v", suggested, result.SuggestedTime)
	}
}

func TestSendTurn_MalformedSuggestionDropped(t *testing.T) {
	client := newTestBackend(t, "/api/chat", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success":              true,
			"message":              "ok",
			"suggestedAppointment": true,
			"suggestedTime":        "next tuesday",
		})
	})

	result := client.SendTurn(context.Background(), TurnParams{SessionID: "s1"})
	if !result.Ok {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if result.SuggestedTime != nil {
		t.Error("malformed suggestion should be dropped, not surfaced")
	}
}

func TestSendTurn_MalformedAudioDropped(t *testing.T) {
	client := newTestBackend(t, "/api/chat", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success":   true,
			"message":   "ok",
			"audioData": "!!not-base64!!",
		})
	})

	result := client.SendTurn(context.Background(), TurnParams{SessionID: "s1"})
	if !result.Ok {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if result.Audio != nil {
		t.Error("malformed audio should be dropped, not surfaced")
	}
}

func TestRepairPunctuation(t *testing.T) {
	client := newTestBackend(t, "/api/add-punct", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["text"] != "hello how are you" {
			t.Errorf("unexpected text field: %v", req["text"])
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "newText": "Hello, how are you?"})
	})

	result := client.RepairPunctuation(context.Background(), "hello how are you")
	if !result.Ok {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if result.Corrected != "Hello, how are you?" {
		t.Errorf("unexpected corrected text %q", result.Corrected)
	}
}

func TestSaveSession(t *testing.T) {
	client := newTestBackend(t, "/api/save", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["sessionId"] != "s1" {
			t.Errorf("unexpected sessionId: %v", req["sessionId"])
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	if result := client.SaveSession(context.Background(), "s1"); !result.Ok {
		t.Fatalf("expected success, got %v", result.Err)
	}
}

func TestPersistAppointment(t *testing.T) {
	at := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)

	client := newTestBackend(t, "/api/save-appointment", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["userId"] != "u1" {
			t.Errorf("unexpected userId: %v", req["userId"])
		}
		if req["appointmentTime"] != at.Format(time.RFC3339) {
			t.Errorf("unexpected appointmentTime: %v", req["appointmentTime"])
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	if result := client.PersistAppointment(context.Background(), "u1", at); !result.Ok {
		t.Fatalf("expected success, got %v", result.Err)
	}
}

func TestExportCalendar(t *testing.T) {
	ics := "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"

	client := newTestBackend(t, "/api/generate-calendar", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(ics))
	})

	result := client.ExportCalendar(context.Background(), time.Now(), "Alex")
	if !result.Ok {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if string(result.ICS) != ics {
		t.Errorf("unexpected artifact: %q", result.ICS)
	}
}

func TestListAppointments(t *testing.T) {
	at := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)

	client := newTestBackend(t, "/api/get-appointments", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"appointments": []map[string]any{
				{"user_id": "u1", "appointment_time": at.Format(time.RFC3339)},
			},
		})
	})

	result := client.ListAppointments(context.Background(), "u1")
	if !result.Ok {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if len(result.Appointments) != 1 || !result.Appointments[0].Time.Equal(at) {
		t.Errorf("unexpected appointments: %+v", result.Appointments)
	}
}

func TestRegisterUser(t *testing.T) {
	client := newTestBackend(t, "/api/newUser", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["userID"] != "u1" || req["preferredName"] != "Alex" {
			t.Errorf("unexpected request fields: %v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	result := client.RegisterUser(context.Background(), RegisterParams{
		UserID: "u1", Email: "alex@example.com", FullName: "Alex Doe", PreferredName: "Alex",
	})
	if !result.Ok {
		t.Fatalf("expected success, got %v", result.Err)
	}
}

func TestContextCancellation(t *testing.T) {
	client := newTestBackend(t, "/api/chat", func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so net/http watches for the client disconnect;
		// otherwise the request context is never cancelled and server
		// shutdown deadlocks in cleanup.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := client.SendTurn(ctx, TurnParams{SessionID: "s1", Message: "hi"})
	if result.Ok {
		t.Fatal("expected failure on cancelled context")
	}
	if result.Kind != ErrTransport {
		t.Errorf("expected ErrTransport, got %v", result.Kind)
	}
}
