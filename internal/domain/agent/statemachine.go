package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/mu-hashmi/revis/internal/domain/entity"
	"go.uber.org/zap"
)

// validSessionTransitions enumerates the allowed entity.SessionStatus moves.
// Sessions are created directly into Running by the store, so Running is
// the only non-terminal state; every terminal state is final.
var validSessionTransitions = map[entity.SessionStatus]map[entity.SessionStatus]bool{
	entity.SessionRunning: {
		entity.SessionCompleted: true,
		entity.SessionFailed:    true,
		entity.SessionStopped:   true,
	},
	entity.SessionCompleted: {},
	entity.SessionFailed:    {},
	entity.SessionStopped:   {},
}

// validRunTransitions enumerates the allowed entity.RunStatus moves.
var validRunTransitions = map[entity.RunStatus]map[entity.RunStatus]bool{
	entity.RunPending: {
		entity.RunRunning: true,
	},
	entity.RunRunning: {
		entity.RunCompleted: true,
		entity.RunFailed:    true,
	},
	entity.RunCompleted: {},
	entity.RunFailed:    {},
}

// SessionMachine guards a single session's status transitions against the
// flat enum the orchestrator drives, logging every transition and
// refusing any move the protocol doesn't allow.
type SessionMachine struct {
	mu        sync.Mutex
	status    entity.SessionStatus
	startedAt time.Time
	logger    *zap.Logger
}

// NewSessionMachine wraps a session already in entity.SessionRunning.
func NewSessionMachine(startedAt time.Time, logger *zap.Logger) *SessionMachine {
	return &SessionMachine{status: entity.SessionRunning, startedAt: startedAt, logger: logger}
}

// Status returns the current status.
func (m *SessionMachine) Status() entity.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Transition moves to a terminal status, refusing any move the protocol
// does not allow (sessions never leave a terminal state).
func (m *SessionMachine) Transition(to entity.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed, ok := validSessionTransitions[m.status]
	if !ok || !allowed[to] {
		err := fmt.Errorf("invalid session transition: %s -> %s", m.status, to)
		m.logger.Error("session state machine violation", zap.Error(err))
		return err
	}
	m.logger.Debug("session transition", zap.String("from", string(m.status)), zap.String("to", string(to)))
	m.status = to
	return nil
}

// IsTerminal reports whether the session has reached a final status.
func (m *SessionMachine) IsTerminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status != entity.SessionRunning
}

// RunMachine guards a single run's pending -> running -> completed|failed
// transitions.
type RunMachine struct {
	mu     sync.Mutex
	status entity.RunStatus
	logger *zap.Logger
}

// NewRunMachine starts a run in entity.RunPending.
func NewRunMachine(logger *zap.Logger) *RunMachine {
	return &RunMachine{status: entity.RunPending, logger: logger}
}

// Status returns the current status.
func (m *RunMachine) Status() entity.RunStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Transition moves the run forward, refusing any move the protocol does
// not allow.
func (m *RunMachine) Transition(to entity.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed, ok := validRunTransitions[m.status]
	if !ok || !allowed[to] {
		err := fmt.Errorf("invalid run transition: %s -> %s", m.status, to)
		m.logger.Error("run state machine violation", zap.Error(err))
		return err
	}
	m.logger.Debug("run transition", zap.String("from", string(m.status)), zap.String("to", string(to)))
	m.status = to
	return nil
}
