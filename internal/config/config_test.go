package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	os.Setenv("BACKEND_URL", "http://127.0.0.1:5000")
	defer os.Unsetenv("BACKEND_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.BackendURL != "http://127.0.0.1:5000" {
		t.Errorf("Expected BackendURL 'http://127.0.0.1:5000', got '%s'", cfg.BackendURL)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("BACKEND_URL")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when BACKEND_URL is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("BACKEND_URL", "http://127.0.0.1:5000")
	defer os.Unsetenv("BACKEND_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}
	if cfg.TurnTimeout != 30 {
		t.Errorf("Expected default TurnTimeout 30, got %d", cfg.TurnTimeout)
	}
	if cfg.AppointmentTimeZone != "America/Los_Angeles" {
		t.Errorf("Expected default AppointmentTimeZone 'America/Los_Angeles', got '%s'", cfg.AppointmentTimeZone)
	}
	if cfg.MicSampleRate != 16000 {
		t.Errorf("Expected default MicSampleRate 16000, got %d", cfg.MicSampleRate)
	}
}

func TestVoiceEnabled(t *testing.T) {
	os.Setenv("BACKEND_URL", "http://127.0.0.1:5000")
	defer os.Unsetenv("BACKEND_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.VoiceEnabled() {
		t.Error("Expected voice mode disabled without a Deepgram key")
	}

	os.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	defer os.Unsetenv("DEEPGRAM_API_KEY")

	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !cfg.VoiceEnabled() {
		t.Error("Expected voice mode enabled with a Deepgram key")
	}
}

func TestAppointmentLocation_Invalid(t *testing.T) {
	os.Setenv("BACKEND_URL", "http://127.0.0.1:5000")
	os.Setenv("APPOINTMENT_TIME_ZONE", "Not/AZone")
	defer os.Unsetenv("BACKEND_URL")
	defer os.Unsetenv("APPOINTMENT_TIME_ZONE")

	_, err := Load()
	if err == nil {
		t.Error("Expected error for invalid time zone")
	}
}
