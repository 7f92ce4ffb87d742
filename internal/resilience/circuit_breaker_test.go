package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_StateClosed(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected initial state to be Closed, got %d", cb.GetState())
	}
	if !cb.allowRequest() {
		t.Error("Expected to allow request in Closed state")
	}
}

func TestCircuitBreaker_OpenAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	cb.RecordResult(false)
	cb.RecordResult(false)
	if cb.GetState() != StateClosed {
		t.Error("Expected state to still be Closed after 2 failures")
	}

	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after 3 failures")
	}

	if cb.allowRequest() {
		t.Error("Expected to not allow request in Open state")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 50*time.Millisecond)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Fatal("Expected circuit to be Open")
	}

	time.Sleep(80 * time.Millisecond)

	if !cb.allowRequest() {
		t.Fatal("Expected to allow a probe after reset timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Errorf("Expected HalfOpen state, got %d", cb.GetState())
	}

	// Enough successes close the circuit again
	cb.RecordResult(true)
	cb.RecordResult(true)
	cb.RecordResult(true)
	if cb.GetState() != StateClosed {
		t.Errorf("Expected Closed state after recovery, got %d", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 50*time.Millisecond)

	cb.RecordResult(false)
	time.Sleep(80 * time.Millisecond)
	if !cb.allowRequest() {
		t.Fatal("Expected to allow a probe after reset timeout")
	}

	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Errorf("Expected Open state after half-open failure, got %d", cb.GetState())
	}
}

func TestCircuitBreaker_Call(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 1*time.Second)

	wantErr := errors.New("boom")
	if err := cb.Call(func() error { return wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("Expected wrapped call error, got %v", err)
	}

	if err := cb.Call(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 1*time.Hour)

	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Fatal("Expected Open state")
	}

	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Error("Expected Closed state after reset")
	}
}
