package entity

import "time"

// Metric is one named numeric observation attached to a run.
type Metric struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"size:16;not null;index"`
	Name      string `gorm:"size:128;not null"`
	Value     float64
	Step      *int
	InsertedAt time.Time
}

// TableName pins the GORM table name independent of struct renames.
func (Metric) TableName() string { return "metrics" }

// ArtifactKind discriminates artifact roles.
type ArtifactKind string

// Artifact is a file produced by a run, cached content-addressed on disk.
type Artifact struct {
	ID     string `gorm:"primaryKey;size:16"`
	RunID  string `gorm:"size:16;not null;index"`
	Kind   string `gorm:"size:64;not null"`
	Path   string `gorm:"size:512;not null"`
	Size   *int64
	CreatedAt time.Time
}

// TableName pins the GORM table name independent of struct renames.
func (Artifact) TableName() string { return "artifacts" }

// DecisionAction discriminates what kind of change a Decision records.
type DecisionAction string

const (
	DecisionConfig      DecisionAction = "config"
	DecisionCLIArgs     DecisionAction = "cli-args"
	DecisionCodeHandoff DecisionAction = "code-handoff"
	DecisionCodePatch   DecisionAction = "code-patch"
	DecisionEscalate    DecisionAction = "escalate"
)

// Decision records one agent-proposed change attached to a run.
type Decision struct {
	ID         string         `gorm:"primaryKey;size:16"`
	RunID      string         `gorm:"size:16;not null;index"`
	Action     DecisionAction `gorm:"size:32;not null"`
	Rationale  string         `gorm:"type:text"`
	CommitHash *string        `gorm:"size:64"`
	CreatedAt  time.Time
}

// TableName pins the GORM table name independent of struct renames.
func (Decision) TableName() string { return "decisions" }

// SuggestionStatus is the lifecycle of a pending code-change request.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
	SuggestionHandedOff SuggestionStatus = "handed-off"
)

// Suggestion is a pending request for an out-of-band code change, handed to
// a third-party coding assistant outside this process.
type Suggestion struct {
	ID           string           `gorm:"primaryKey;size:16"`
	RunID        string           `gorm:"size:16;not null;index"`
	Description  string           `gorm:"type:text"`
	Hypothesis   string           `gorm:"type:text"`
	RelevantFiles string          `gorm:"type:text"` // JSON-encoded []string
	Status       SuggestionStatus `gorm:"size:16;not null"`
	HandoffAgent *string          `gorm:"size:128"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName pins the GORM table name independent of struct renames.
func (Suggestion) TableName() string { return "suggestions" }

// TraceEventType discriminates trace entries.
type TraceEventType string

const (
	TraceToolCall   TraceEventType = "tool-call"
	TraceToolResult TraceEventType = "tool-result"
)

// Trace is one append-only event in a run's tool-call history, kept for
// post-hoc introspection (`revis show --trace`).
type Trace struct {
	ID        uint           `gorm:"primaryKey;autoIncrement"`
	RunID     string         `gorm:"size:16;not null;index"`
	EventType TraceEventType `gorm:"size:16;not null"`
	Payload   string         `gorm:"type:text"` // opaque JSON
	CreatedAt time.Time
}

// TableName pins the GORM table name independent of struct renames.
func (Trace) TableName() string { return "traces" }
