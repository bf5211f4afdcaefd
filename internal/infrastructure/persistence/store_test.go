package persistence

import (
	"context"
	"testing"

	"github.com/mu-hashmi/revis/internal/domain/entity"
	apperrors "github.com/mu-hashmi/revis/pkg/errors"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := Open("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return NewGormStore(db)
}

func TestCreateSession_EnforcesUniqueNameAndSingleRunning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &entity.Session{ID: entity.NewID(), Name: "exp-1", Branch: "revis/exp-1", BaseCommit: "abc123", Status: entity.SessionRunning, BudgetType: entity.BudgetRuns, BudgetTotal: 10}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("unexpected error creating first session: %v", err)
	}

	dup := &entity.Session{ID: entity.NewID(), Name: "exp-1", Branch: "revis/exp-1b", BaseCommit: "abc123", Status: entity.SessionCompleted, BudgetType: entity.BudgetRuns, BudgetTotal: 10}
	if err := s.CreateSession(ctx, dup); !apperrors.IsAlreadyExists(err) {
		t.Fatalf("expected already-exists error for duplicate name, got %v", err)
	}

	second := &entity.Session{ID: entity.NewID(), Name: "exp-2", Branch: "revis/exp-2", BaseCommit: "abc123", Status: entity.SessionRunning, BudgetType: entity.BudgetRuns, BudgetTotal: 10}
	if err := s.CreateSession(ctx, second); !apperrors.IsPrecondition(err) {
		t.Fatalf("expected precondition error for second running session, got %v", err)
	}
}

func TestDeleteSession_RefusesRunningWithoutForce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &entity.Session{ID: entity.NewID(), Name: "exp-3", Branch: "revis/exp-3", BaseCommit: "abc123", Status: entity.SessionRunning, BudgetType: entity.BudgetRuns, BudgetTotal: 10}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.DeleteSession(ctx, sess.ID, false); !apperrors.IsPrecondition(err) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if err := s.DeleteSession(ctx, sess.ID, true); err != nil {
		t.Fatalf("expected forced delete to succeed, got %v", err)
	}
	if _, err := s.GetSession(ctx, sess.ID); !apperrors.IsNotFound(err) {
		t.Fatalf("expected session to be gone, got %v", err)
	}
}

func TestDeleteSession_CascadesToRunChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &entity.Session{ID: entity.NewID(), Name: "exp-4", Branch: "revis/exp-4", BaseCommit: "abc123", Status: entity.SessionCompleted, BudgetType: entity.BudgetRuns, BudgetTotal: 10}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	run := &entity.Run{ID: entity.NewID(), SessionID: sess.ID, Iteration: 1, Status: entity.RunCompleted}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AppendMetrics(ctx, run.ID, map[string]float64{"loss": 0.5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CreateDecision(ctx, &entity.Decision{ID: entity.NewID(), RunID: run.ID, Action: entity.DecisionConfig}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.DeleteSession(ctx, sess.ID, false); err != nil {
		t.Fatalf("unexpected error deleting non-running session: %v", err)
	}

	metrics, err := s.ListMetrics(ctx, run.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(metrics) != 0 {
		t.Fatalf("expected cascade to remove metrics, found %d", len(metrics))
	}
}
