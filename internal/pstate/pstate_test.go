package pstate

import (
	"errors"
	"sync"
	"testing"
)

func TestMachine_InitialStateIsIdle(t *testing.T) {
	m := New("corr-1")
	if m.State() != Idle {
		t.Fatalf("initial state = %v, want Idle", m.State())
	}
	if m.CorrelationID() != "corr-1" {
		t.Fatalf("CorrelationID() = %q, want corr-1", m.CorrelationID())
	}
}

func TestMachine_FullLifecycle(t *testing.T) {
	m := New("")
	if err := m.Start("corr-2"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if m.State() != Starting {
		t.Fatalf("state = %v, want Starting", m.State())
	}
	if m.CorrelationID() != "corr-2" {
		t.Fatalf("CorrelationID() = %q, want corr-2", m.CorrelationID())
	}

	if err := m.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if m.State() != Listening {
		t.Fatalf("state = %v, want Listening", m.State())
	}
	if !m.AcceptsAudio() {
		t.Fatal("Listening should accept audio")
	}

	if err := m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !m.AcceptsAudio() {
		t.Fatal("Paused should still accept audio (and drop silently)")
	}

	if err := m.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if m.State() != Listening {
		t.Fatalf("state = %v, want Listening after resume", m.State())
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.AcceptsAudio() {
		t.Fatal("Stopping should not accept audio")
	}

	if err := m.Stopped(); err != nil {
		t.Fatalf("Stopped: %v", err)
	}
	if m.State() != Idle {
		t.Fatalf("state = %v, want Idle", m.State())
	}
}

func TestMachine_ConcurrentStartWhileStartingErrors(t *testing.T) {
	m := New("")
	if err := m.Start("corr"); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := m.Start("corr"); !errors.Is(err, ErrAlreadyStarting) {
		t.Fatalf("second Start err = %v, want ErrAlreadyStarting", err)
	}
}

func TestMachine_InvalidTransitionsRejected(t *testing.T) {
	m := New("")
	if err := m.Listen(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Listen from Idle err = %v, want ErrInvalidTransition", err)
	}
	if err := m.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Pause from Idle err = %v, want ErrInvalidTransition", err)
	}
	if err := m.Stop(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Stop from Idle err = %v, want ErrInvalidTransition", err)
	}
}

func TestMachine_FailFromAnyState(t *testing.T) {
	m := New("")
	_ = m.Start("corr")
	_ = m.Listen()
	m.Fail()
	if m.State() != Error {
		t.Fatalf("state = %v, want Error", m.State())
	}
	if err := m.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if m.State() != Idle {
		t.Fatalf("state = %v, want Idle after reset", m.State())
	}
}

func TestMachine_IdleAndStartingDoNotAcceptAudio(t *testing.T) {
	m := New("")
	if m.AcceptsAudio() {
		t.Fatal("Idle should not accept audio")
	}
	_ = m.Start("corr")
	if m.AcceptsAudio() {
		t.Fatal("Starting should not accept audio")
	}
}

func TestMachine_ConcurrentTransitionsAreSerialized(t *testing.T) {
	m := New("")
	_ = m.Start("corr")
	_ = m.Listen()

	var wg sync.WaitGroup
	successes := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			successes <- m.Pause()
		}()
	}
	wg.Wait()
	close(successes)

	okCount := 0
	for err := range successes {
		if err == nil {
			okCount++
		}
	}
	if okCount != 1 {
		t.Fatalf("expected exactly 1 successful Pause among concurrent callers, got %d", okCount)
	}
}
