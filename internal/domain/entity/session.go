package entity

import "time"

// SessionStatus is the discrete status of a session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionStopped   SessionStatus = "stopped"
)

// IsValid reports whether s is one of the defined session statuses.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionRunning, SessionCompleted, SessionFailed, SessionStopped:
		return true
	}
	return false
}

// TerminationReason explains why a session stopped iterating.
type TerminationReason string

const (
	ReasonTargetAchieved  TerminationReason = "target-achieved"
	ReasonBudgetExhausted TerminationReason = "budget-exhausted"
	ReasonPlateau         TerminationReason = "plateau"
	ReasonRetryExhaustion TerminationReason = "retry-exhaustion"
	ReasonModelEscalation TerminationReason = "model-escalation"
	ReasonUserStop        TerminationReason = "user-stop"
	ReasonError           TerminationReason = "error"
)

// BudgetType discriminates what a session's budget counts.
type BudgetType string

const (
	BudgetTime BudgetType = "time"
	BudgetRuns BudgetType = "runs"
)

// Budget is a (type, total, used) triple. Used and Total share units implied
// by Type: seconds for BudgetTime, run count for BudgetRuns.
type Budget struct {
	Type  BudgetType `json:"type"`
	Total float64    `json:"total"`
	Used  float64    `json:"used"`
}

// Exhausted reports whether the budget has been fully consumed.
func (b Budget) Exhausted() bool {
	return b.Used >= b.Total
}

// Session is one user-initiated optimization campaign.
type Session struct {
	ID          string `gorm:"primaryKey;size:16"`
	Name        string `gorm:"uniqueIndex;size:128;not null"`
	Branch      string `gorm:"size:255;not null"`
	BaseCommit  string `gorm:"size:64;not null"`
	BaselineRun *string `gorm:"size:16"` // optional run identifier

	Status            SessionStatus      `gorm:"size:16;not null;index"`
	TerminationReason *TerminationReason `gorm:"size:32"`

	StartedAt time.Time
	EndedAt   *time.Time

	BudgetType  BudgetType `gorm:"size:8;not null"`
	BudgetTotal float64    `gorm:"not null"`
	BudgetUsed  float64    `gorm:"not null"`

	IterationCount int `gorm:"not null;default:0"`
	CumulativeCost float64 `gorm:"not null;default:0"`
	RetryBudget    int     `gorm:"not null;default:3"`

	ExportedAt *time.Time
	PullRequestURL *string `gorm:"size:512"`

	// HolderPID is the OS process identifier of the orchestrator currently
	// holding this session, used to detect orphaned (process-dead) sessions.
	HolderPID int `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the GORM table name independent of struct renames.
func (Session) TableName() string { return "sessions" }

// Budget returns the session's budget as a value object.
func (s *Session) Budget() Budget {
	return Budget{Type: s.BudgetType, Total: s.BudgetTotal, Used: s.BudgetUsed}
}

// IsRunning reports whether the session is the single active campaign.
func (s *Session) IsRunning() bool {
	return s.Status == SessionRunning
}
