package audio

import (
	"encoding/base64"
	"testing"
)

func TestSamplesFromLE_RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345}

	data := LEFromSamples(samples)
	back, err := SamplesFromLE(data)
	if err != nil {
		t.Fatalf("SamplesFromLE failed: %v", err)
	}

	if len(back) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(back))
	}
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("sample %d: expected %d, got %d", i, samples[i], back[i])
		}
	}
}

func TestSamplesFromLE_OddLength(t *testing.T) {
	if _, err := SamplesFromLE([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Error("expected error for odd-length PCM data")
	}
}

func TestDecodeBase64PCM(t *testing.T) {
	samples := []int16{100, -200, 300}
	payload := base64.StdEncoding.EncodeToString(LEFromSamples(samples))

	back, err := DecodeBase64PCM(payload)
	if err != nil {
		t.Fatalf("DecodeBase64PCM failed: %v", err)
	}
	if len(back) != 3 || back[0] != 100 || back[1] != -200 || back[2] != 300 {
		t.Errorf("unexpected samples: %v", back)
	}
}

func TestDecodeBase64PCM_Invalid(t *testing.T) {
	if _, err := DecodeBase64PCM(""); err == nil {
		t.Error("expected error for empty payload")
	}
	if _, err := DecodeBase64PCM("not base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestResample_Downsample(t *testing.T) {
	// 48kHz -> 16kHz should produce a third of the samples
	samples := make([]int16, 480)
	for i := range samples {
		samples[i] = int16(i)
	}

	out := Resample(samples, 48000, 16000)
	if len(out) != 160 {
		t.Errorf("expected 160 samples, got %d", len(out))
	}
}

func TestResample_SameRate(t *testing.T) {
	samples := []int16{1, 2, 3}
	out := Resample(samples, 16000, 16000)
	if len(out) != 3 {
		t.Errorf("expected passthrough, got %d samples", len(out))
	}
}

func TestCalculateRMS(t *testing.T) {
	if rms := CalculateRMS(nil); rms != 0.0 {
		t.Errorf("expected 0 for empty input, got %f", rms)
	}

	samples := []int16{1000, -1000, 1000, -1000}
	if rms := CalculateRMS(samples); rms < 999.0 || rms > 1001.0 {
		t.Errorf("expected RMS ~1000, got %f", rms)
	}
}
