package entity

import "time"

// RunStatus is the discrete status of a single training attempt.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// IsValid reports whether s is one of the defined run statuses.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunPending, RunRunning, RunCompleted, RunFailed:
		return true
	}
	return false
}

// ChangeType discriminates how a run's configuration differs from the
// previous one.
type ChangeType string

const (
	ChangeConfig     ChangeType = "config"
	ChangeCLIArgs    ChangeType = "cli-args"
	ChangeCodeHandoff ChangeType = "code-handoff"
	ChangeInitial    ChangeType = "initial"
)

// Outcome classifies a completed run's metric movement relative to history.
type Outcome string

const (
	OutcomeImproved Outcome = "improved"
	OutcomeRegressed Outcome = "regressed"
	OutcomePlateau  Outcome = "plateau"
	OutcomeFailed   Outcome = "failed"
)

// Run is one training attempt within a Session.
type Run struct {
	ID        string `gorm:"primaryKey;size:16"`
	SessionID string `gorm:"size:16;not null;index"`

	// Iteration is 1-based and contiguous within a session.
	Iteration int `gorm:"not null;index"`

	ConfigSnapshot string `gorm:"type:text"` // opaque text, e.g. rendered config file
	CommitHash     string `gorm:"size:64"`

	Status   RunStatus `gorm:"size:16;not null"`
	StartedAt time.Time
	EndedAt   *time.Time
	ExitCode  *int

	ChangeType  *ChangeType `gorm:"size:16"`
	ChangeDesc  string      `gorm:"type:text"`
	Diff        string      `gorm:"type:text"`
	Hypothesis  string      `gorm:"type:text"`

	// MetricsJSON is a JSON-encoded map[string]float64 snapshot, denormalized
	// alongside the per-metric Metric rows for cheap whole-run reads.
	MetricsJSON string `gorm:"type:text"`

	Outcome  *Outcome `gorm:"size:16"`
	Analysis string   `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the GORM table name independent of struct renames.
func (Run) TableName() string { return "runs" }

// IsTerminal reports whether the run has finished (successfully or not).
func (r *Run) IsTerminal() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}
