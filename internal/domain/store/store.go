// Package store defines the durable session/run/metric/decision/trace/
// suggestion contract, implemented against an embedded database by
// internal/infrastructure/persistence.
package store

import (
	"context"
	"time"

	"github.com/mu-hashmi/revis/internal/domain/entity"
)

// SessionUpdate carries the targeted-field mutations the orchestrator
// applies to a session over its lifetime; unset pointer fields are left
// untouched.
type SessionUpdate struct {
	BudgetUsed        *float64
	CumulativeCost    *float64
	RetryBudget       *int
	IterationCount    *int
	Status            *entity.SessionStatus
	TerminationReason *entity.TerminationReason
	EndedAt           *time.Time
	ExportedAt        *time.Time
	PullRequestURL    *string
	HolderPID         *int
}

// Store is the full durable contract behind the hidden directory's
// database file.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *entity.Session) error
	GetSession(ctx context.Context, id string) (*entity.Session, error)
	GetSessionByName(ctx context.Context, name string) (*entity.Session, error)
	GetRunningSession(ctx context.Context) (*entity.Session, error)
	ListOrphanedSessions(ctx context.Context) ([]*entity.Session, error)
	ListSessions(ctx context.Context, statusFilter string, limit int) ([]*entity.Session, error)
	UpdateSession(ctx context.Context, id string, update SessionUpdate) error
	DeleteSession(ctx context.Context, id string, force bool) error
	SessionNameExists(ctx context.Context, name string) (bool, error)

	// Runs
	CreateRun(ctx context.Context, r *entity.Run) error
	GetRun(ctx context.Context, id string) (*entity.Run, error)
	ListRuns(ctx context.Context, sessionID string) ([]*entity.Run, error)
	UpdateRun(ctx context.Context, r *entity.Run) error

	// Append-only logs
	AppendMetrics(ctx context.Context, runID string, metrics map[string]float64) error
	ListMetrics(ctx context.Context, runID string) ([]entity.Metric, error)
	AppendTrace(ctx context.Context, runID string, eventType entity.TraceEventType, payload string) error
	ListTrace(ctx context.Context, runID string) ([]entity.Trace, error)
	CreateDecision(ctx context.Context, d *entity.Decision) error
	ListDecisions(ctx context.Context, runID string) ([]entity.Decision, error)

	// Artifacts and suggestions
	CreateArtifact(ctx context.Context, a *entity.Artifact) error
	CreateSuggestion(ctx context.Context, s *entity.Suggestion) error
	UpdateSuggestion(ctx context.Context, s *entity.Suggestion) error
}
