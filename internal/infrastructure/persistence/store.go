package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/mu-hashmi/revis/internal/domain/entity"
	domainstore "github.com/mu-hashmi/revis/internal/domain/store"
	apperrors "github.com/mu-hashmi/revis/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
	"gorm.io/gorm"
)

// GormStore is the gorm-backed implementation of domain/store.Store,
// durable across process kills because every mutation commits before the
// call returns (gorm's default autocommit-per-statement behavior; the
// cascading delete explicitly wraps multiple statements in one
// transaction).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an already-migrated *gorm.DB.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var _ domainstore.Store = (*GormStore)(nil)

// CreateSession enforces the at-most-one-running-session invariant and
// the forever-unique session name.
func (s *GormStore) CreateSession(ctx context.Context, sess *entity.Session) error {
	if sess.Status == entity.SessionRunning {
		var running int64
		if err := s.db.WithContext(ctx).Model(&entity.Session{}).
			Where("status = ?", entity.SessionRunning).Count(&running).Error; err != nil {
			return apperrors.NewInternalErrorWithCause("count running sessions", err)
		}
		if running > 0 {
			return apperrors.NewPreconditionError("a session is already running")
		}
	}

	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewAlreadyExistsError("session name already exists: " + sess.Name)
		}
		return apperrors.NewInternalErrorWithCause("create session", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

func (s *GormStore) GetSession(ctx context.Context, id string) (*entity.Session, error) {
	var sess entity.Session
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("session not found: " + id)
		}
		return nil, apperrors.NewInternalErrorWithCause("get session", err)
	}
	return &sess, nil
}

func (s *GormStore) GetSessionByName(ctx context.Context, name string) (*entity.Session, error) {
	var sess entity.Session
	if err := s.db.WithContext(ctx).First(&sess, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("session not found: " + name)
		}
		return nil, apperrors.NewInternalErrorWithCause("get session by name", err)
	}
	return &sess, nil
}

func (s *GormStore) GetRunningSession(ctx context.Context) (*entity.Session, error) {
	var sess entity.Session
	if err := s.db.WithContext(ctx).First(&sess, "status = ?", entity.SessionRunning).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("no running session")
		}
		return nil, apperrors.NewInternalErrorWithCause("get running session", err)
	}
	return &sess, nil
}

// ListOrphanedSessions returns running sessions whose holder process no
// longer exists, using gopsutil process liveness the same way the pack
// checks process existence elsewhere.
func (s *GormStore) ListOrphanedSessions(ctx context.Context) ([]*entity.Session, error) {
	var running []*entity.Session
	if err := s.db.WithContext(ctx).Where("status = ?", entity.SessionRunning).Find(&running).Error; err != nil {
		return nil, apperrors.NewInternalErrorWithCause("list running sessions", err)
	}

	orphaned := make([]*entity.Session, 0)
	for _, sess := range running {
		if sess.HolderPID == 0 {
			orphaned = append(orphaned, sess)
			continue
		}
		alive, err := process.PidExists(int32(sess.HolderPID))
		if err != nil || !alive {
			orphaned = append(orphaned, sess)
		}
	}
	return orphaned, nil
}

func (s *GormStore) ListSessions(ctx context.Context, statusFilter string, limit int) ([]*entity.Session, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if statusFilter != "" {
		q = q.Where("status = ?", statusFilter)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var sessions []*entity.Session
	if err := q.Find(&sessions).Error; err != nil {
		return nil, apperrors.NewInternalErrorWithCause("list sessions", err)
	}
	return sessions, nil
}

func (s *GormStore) UpdateSession(ctx context.Context, id string, update domainstore.SessionUpdate) error {
	values := map[string]interface{}{}
	if update.BudgetUsed != nil {
		values["budget_used"] = *update.BudgetUsed
	}
	if update.CumulativeCost != nil {
		values["cumulative_cost"] = *update.CumulativeCost
	}
	if update.RetryBudget != nil {
		values["retry_budget"] = *update.RetryBudget
	}
	if update.IterationCount != nil {
		values["iteration_count"] = *update.IterationCount
	}
	if update.Status != nil {
		values["status"] = *update.Status
	}
	if update.TerminationReason != nil {
		values["termination_reason"] = *update.TerminationReason
	}
	if update.EndedAt != nil {
		values["ended_at"] = *update.EndedAt
	}
	if update.ExportedAt != nil {
		values["exported_at"] = *update.ExportedAt
	}
	if update.PullRequestURL != nil {
		values["pull_request_url"] = *update.PullRequestURL
	}
	if update.HolderPID != nil {
		values["holder_pid"] = *update.HolderPID
	}
	if len(values) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&entity.Session{}).Where("id = ?", id).Updates(values).Error; err != nil {
		return apperrors.NewInternalErrorWithCause("update session", err)
	}
	return nil
}

// DeleteSession cascades the delete across every child table in a single
// transaction, refusing to delete a running session unless force is set.
func (s *GormStore) DeleteSession(ctx context.Context, id string, force bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sess entity.Session
		if err := tx.First(&sess, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFoundError("session not found: " + id)
			}
			return apperrors.NewInternalErrorWithCause("load session for delete", err)
		}
		if sess.IsRunning() && !force {
			return apperrors.NewPreconditionError("session is running; pass force to delete anyway")
		}

		var runIDs []string
		if err := tx.Model(&entity.Run{}).Where("session_id = ?", id).Pluck("id", &runIDs).Error; err != nil {
			return apperrors.NewInternalErrorWithCause("list runs for delete", err)
		}

		if len(runIDs) > 0 {
			for _, child := range []interface{}{&entity.Metric{}, &entity.Artifact{}, &entity.Decision{}, &entity.Suggestion{}, &entity.Trace{}} {
				if err := tx.Where("run_id IN ?", runIDs).Delete(child).Error; err != nil {
					return apperrors.NewInternalErrorWithCause("cascade delete run children", err)
				}
			}
		}
		if err := tx.Where("session_id = ?", id).Delete(&entity.Run{}).Error; err != nil {
			return apperrors.NewInternalErrorWithCause("delete runs", err)
		}
		if err := tx.Delete(&entity.Session{}, "id = ?", id).Error; err != nil {
			return apperrors.NewInternalErrorWithCause("delete session", err)
		}
		return nil
	})
}

func (s *GormStore) SessionNameExists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&entity.Session{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, apperrors.NewInternalErrorWithCause("check session name", err)
	}
	return count > 0, nil
}

func (s *GormStore) CreateRun(ctx context.Context, r *entity.Run) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return apperrors.NewInternalErrorWithCause("create run", err)
	}
	return nil
}

func (s *GormStore) GetRun(ctx context.Context, id string) (*entity.Run, error) {
	var r entity.Run
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("run not found: " + id)
		}
		return nil, apperrors.NewInternalErrorWithCause("get run", err)
	}
	return &r, nil
}

func (s *GormStore) ListRuns(ctx context.Context, sessionID string) ([]*entity.Run, error) {
	var runs []*entity.Run
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("iteration ASC").Find(&runs).Error; err != nil {
		return nil, apperrors.NewInternalErrorWithCause("list runs", err)
	}
	return runs, nil
}

func (s *GormStore) UpdateRun(ctx context.Context, r *entity.Run) error {
	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		return apperrors.NewInternalErrorWithCause("update run", err)
	}
	return nil
}

func (s *GormStore) AppendMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	rows := make([]entity.Metric, 0, len(metrics))
	for name, value := range metrics {
		rows = append(rows, entity.Metric{RunID: runID, Name: name, Value: value})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return apperrors.NewInternalErrorWithCause("append metrics", err)
	}
	return nil
}

func (s *GormStore) ListMetrics(ctx context.Context, runID string) ([]entity.Metric, error) {
	var metrics []entity.Metric
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Find(&metrics).Error; err != nil {
		return nil, apperrors.NewInternalErrorWithCause("list metrics", err)
	}
	return metrics, nil
}

func (s *GormStore) AppendTrace(ctx context.Context, runID string, eventType entity.TraceEventType, payload string) error {
	t := entity.Trace{RunID: runID, EventType: eventType, Payload: payload}
	if err := s.db.WithContext(ctx).Create(&t).Error; err != nil {
		return apperrors.NewInternalErrorWithCause("append trace", err)
	}
	return nil
}

func (s *GormStore) ListTrace(ctx context.Context, runID string) ([]entity.Trace, error) {
	var trace []entity.Trace
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_at ASC").Find(&trace).Error; err != nil {
		return nil, apperrors.NewInternalErrorWithCause("list trace", err)
	}
	return trace, nil
}

func (s *GormStore) CreateDecision(ctx context.Context, d *entity.Decision) error {
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return apperrors.NewInternalErrorWithCause("create decision", err)
	}
	return nil
}

func (s *GormStore) ListDecisions(ctx context.Context, runID string) ([]entity.Decision, error) {
	var decisions []entity.Decision
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_at ASC").Find(&decisions).Error; err != nil {
		return nil, apperrors.NewInternalErrorWithCause("list decisions", err)
	}
	return decisions, nil
}

func (s *GormStore) CreateArtifact(ctx context.Context, a *entity.Artifact) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return apperrors.NewInternalErrorWithCause("create artifact", err)
	}
	return nil
}

func (s *GormStore) CreateSuggestion(ctx context.Context, sg *entity.Suggestion) error {
	if err := s.db.WithContext(ctx).Create(sg).Error; err != nil {
		return apperrors.NewInternalErrorWithCause("create suggestion", err)
	}
	return nil
}

func (s *GormStore) UpdateSuggestion(ctx context.Context, sg *entity.Suggestion) error {
	if err := s.db.WithContext(ctx).Save(sg).Error; err != nil {
		return apperrors.NewInternalErrorWithCause("update suggestion", err)
	}
	return nil
}
