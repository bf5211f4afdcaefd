package agent

import (
	"testing"
	"time"

	"github.com/mu-hashmi/revis/internal/domain/entity"
	"go.uber.org/zap"
)

func TestSessionMachine_ValidAndInvalidTransitions(t *testing.T) {
	m := NewSessionMachine(time.Now(), zap.NewNop())

	if err := m.Transition(entity.SessionCompleted); err != nil {
		t.Fatalf("unexpected error transitioning to completed: %v", err)
	}
	if !m.IsTerminal() {
		t.Fatal("expected completed session to be terminal")
	}
	if err := m.Transition(entity.SessionRunning); err == nil {
		t.Fatal("expected error resurrecting a terminal session")
	}
}

func TestRunMachine_Sequence(t *testing.T) {
	m := NewRunMachine(zap.NewNop())

	if err := m.Transition(entity.RunRunning); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Transition(entity.RunCompleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Transition(entity.RunRunning); err == nil {
		t.Fatal("expected error reopening a completed run")
	}
}

func TestRunMachine_SkipRunningIsInvalid(t *testing.T) {
	m := NewRunMachine(zap.NewNop())
	if err := m.Transition(entity.RunCompleted); err == nil {
		t.Fatal("expected error skipping the running state")
	}
}
